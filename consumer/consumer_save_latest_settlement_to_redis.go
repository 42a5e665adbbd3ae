package consumer

import (
	"context"
	"fmt"
	"time"

	"github.com/paymesh/payment-pipeline-workflow/processor"
	"github.com/redis/go-redis/v9"
)

// SaveLatestSettlementToRedis keeps the most recent settlement per module in
// a hash plus a per-module sorted-set history for quick dashboards.
type SaveLatestSettlementToRedis struct {
	client    *redis.Client
	keyPrefix string
	history   int64
}

func NewSaveLatestSettlementToRedis(config map[string]interface{}) (*SaveLatestSettlementToRedis, error) {
	address, ok := config["redis_address"].(string)
	if !ok {
		return nil, fmt.Errorf("missing redis_address in config")
	}

	password, _ := config["redis_password"].(string)
	dbNum, _ := config["redis_db"].(int)
	keyPrefix, _ := config["key_prefix"].(string)
	if keyPrefix == "" {
		keyPrefix = "payments:settlement:"
	}
	history := int64(1000)
	if h, ok := config["history"].(int); ok && h > 0 {
		history = int64(h)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     address,
		Password: password,
		DB:       dbNum,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %v", err)
	}

	return &SaveLatestSettlementToRedis{
		client:    client,
		keyPrefix: keyPrefix,
		history:   history,
	}, nil
}

func (s *SaveLatestSettlementToRedis) Process(ctx context.Context, msg processor.Message) error {
	settlement, err := processor.ExtractSettlement(msg)
	if err != nil {
		return err
	}

	pipe := s.client.Pipeline()

	key := s.keyPrefix + settlement.ModuleID.String() + ":latest"
	data := map[string]interface{}{
		"payment_id": settlement.PaymentID,
		"token":      settlement.Token.String(),
		"net_amount": settlement.NetAmount,
		"settled_at": settlement.SettledAt.UTC().Format(time.RFC3339),
	}
	pipe.HSet(ctx, key, data)

	historyKey := s.keyPrefix + settlement.ModuleID.String() + ":history"
	pipe.ZAdd(ctx, historyKey, redis.Z{
		Score:  float64(settlement.SettledAt.UnixNano()),
		Member: settlement.PaymentID,
	})
	pipe.ZRemRangeByRank(ctx, historyKey, 0, -(s.history + 1))

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("error executing Redis pipeline: %v", err)
	}
	return nil
}

func (s *SaveLatestSettlementToRedis) Close() error {
	return s.client.Close()
}
