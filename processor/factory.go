package processor

import "fmt"

// CreateProcessor builds a stage from one pipeline config block. Both the
// short config name and the full registry name are accepted.
func CreateProcessor(config ProcessorConfig) (PaymentProcessor, error) {
	switch config.Type {
	case "Fee", "FeeProcessor":
		return NewFeeProcessor(config.Config)
	case "Discount", "DiscountProcessor":
		return NewDiscountProcessor(config.Config)
	case "TokenFilter", "TokenFilterProcessor":
		return NewTokenFilterProcessor(config.Config)
	case "Oracle", "OracleProcessor":
		return NewOracleProcessor(config.Config)
	default:
		return nil, fmt.Errorf("unsupported processor type: %s", config.Type)
	}
}
