package consumer

import "fmt"

// CreateConsumer builds a settlement sink from one config block.
func CreateConsumer(config ConsumerConfig) (Consumer, error) {
	switch config.Type {
	case "StdoutConsumer":
		return NewStdoutConsumer(), nil
	case "SaveSettlementsToPostgreSQL":
		return NewSaveSettlementsToPostgreSQL(config.Config)
	case "SaveSettlementsToSQLite":
		return NewSaveSettlementsToSQLite(config.Config)
	case "SaveLatestSettlementToRedis":
		return NewSaveLatestSettlementToRedis(config.Config)
	case "SaveToWebSocket":
		return NewSaveToWebSocket(config.Config)
	default:
		return nil, fmt.Errorf("unsupported consumer type: %s", config.Type)
	}
}
