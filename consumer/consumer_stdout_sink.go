package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/paymesh/payment-pipeline-workflow/processor"
)

// StdoutConsumer writes each settlement record to stdout in JSON format.
type StdoutConsumer struct{}

// NewStdoutConsumer creates a new StdoutConsumer instance.
func NewStdoutConsumer() *StdoutConsumer {
	return &StdoutConsumer{}
}

// Process implements the Consumer interface. It writes the payload to stdout
// followed by a newline.
func (s *StdoutConsumer) Process(ctx context.Context, msg processor.Message) error {
	var output []byte
	switch payload := msg.Payload.(type) {
	case []byte:
		output = payload
	default:
		var err error
		output, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("StdoutConsumer: error marshaling payload: %w", err)
		}
	}

	_, err := os.Stdout.Write(append(output, '\n'))
	return err
}
