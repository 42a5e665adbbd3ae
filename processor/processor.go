package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Result classifies a single stage run.
type Result int

const (
	// ResultSuccess means the stage transformed the context.
	ResultSuccess Result = iota
	// ResultFailed means the stage rejected the payment; the whole run aborts.
	ResultFailed
	// ResultSkipped means the stage had nothing to do; the context is unchanged.
	ResultSkipped
)

func (r Result) String() string {
	switch r {
	case ResultSuccess:
		return "success"
	case ResultFailed:
		return "failed"
	case ResultSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Configuration errors shared by the stage implementations.
var (
	ErrInvalidConfigLength = errors.New("invalid config length")
	ErrFeeTooHigh          = errors.New("fee basis points must be <= 10000")
	ErrInvalidParameter    = errors.New("invalid parameter")
)

// BpsDenominator is the basis-points scale: 10000 bps = 100%.
const BpsDenominator = 10000

// PaymentProcessor is one pluggable transform in the payment pipeline. A
// processor is stateless with respect to any single context; its per-module
// configuration is mutable administrative state changed only via Configure.
type PaymentProcessor interface {
	// Name returns the registry identity of the processor.
	Name() string
	// Version returns the processor version for event decoding.
	Version() string
	// IsApplicable is a cheap, side-effect-free predicate; the orchestrator
	// skips the stage entirely when it returns false.
	IsApplicable(p PaymentContext) bool
	// Process consumes a context and produces an updated copy. A Failed
	// result carries its message on the returned context's ErrorMessage and
	// must not mutate monetary fields further.
	Process(ctx context.Context, p PaymentContext) (PaymentContext, Result)
	// Configure replaces the processor's per-module configuration. The blob
	// layout is stage-specific.
	Configure(moduleID ModuleID, blob []byte) error
}

// ProcessorConfig is one processor block in a pipeline config file.
type ProcessorConfig struct {
	Type   string                 `yaml:"type"`
	Config map[string]interface{} `yaml:"config"`
}

// Message carries a JSON payload to settlement consumers.
type Message struct {
	Payload  interface{}            `json:"payload"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Settlement is the structured record emitted after a payment settles. It is
// what consumers persist and publish.
type Settlement struct {
	PaymentID      string            `json:"payment_id"`
	ModuleID       ModuleID          `json:"module_id"`
	Token          Token             `json:"token"`
	Payer          Account           `json:"payer"`
	Recipient      Account           `json:"recipient"`
	OriginalAmount uint64            `json:"original_amount"`
	PayerAmount    uint64            `json:"payer_amount"`
	NetAmount      uint64            `json:"net_amount"`
	Fees           []Fee             `json:"fees"`
	DiscountRefund uint64            `json:"discount_refund"`
	Residual       uint64            `json:"residual"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	SettledAt      time.Time         `json:"settled_at"`
}

// ExtractSettlement decodes a settlement record from a consumer message.
func ExtractSettlement(msg Message) (Settlement, error) {
	jsonBytes, ok := msg.Payload.([]byte)
	if !ok {
		return Settlement{}, fmt.Errorf("expected []byte payload, got %T", msg.Payload)
	}
	var s Settlement
	if err := json.Unmarshal(jsonBytes, &s); err != nil {
		return Settlement{}, fmt.Errorf("error unmarshaling settlement: %w", err)
	}
	return s, nil
}
