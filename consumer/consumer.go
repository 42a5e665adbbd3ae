package consumer

import (
	"context"

	"github.com/paymesh/payment-pipeline-workflow/processor"
)

// Consumer is a settlement record sink. The gateway forwards every settled
// payment to each configured consumer as a JSON message.
type Consumer interface {
	Process(context.Context, processor.Message) error
}

type ConsumerConfig struct {
	Type   string                 `yaml:"type"`
	Config map[string]interface{} `yaml:"config"`
}
