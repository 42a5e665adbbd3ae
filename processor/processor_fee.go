package processor

import (
	"context"
	"encoding/binary"
	"fmt"
	"log"
	"sync"
)

// feeConfig is the per-module fee schedule: basis points plus the account the
// fee is owed to.
type feeConfig struct {
	bps       uint16
	recipient Account
}

// FeeProcessor extracts a platform fee from the running amount and records it
// on the context's fee list. Fees are owed to the configured recipient, unlike
// discounts which flow back to the payer.
type FeeProcessor struct {
	mu      sync.RWMutex
	configs map[ModuleID]feeConfig
}

func NewFeeProcessor(config map[string]interface{}) (*FeeProcessor, error) {
	f := &FeeProcessor{configs: make(map[ModuleID]feeConfig)}

	// Optional static schedule from the pipeline config file; modules not
	// listed here are configured at runtime via Configure.
	if modules, ok := config["modules"].(map[interface{}]interface{}); ok {
		for rawModule, rawCfg := range modules {
			moduleStr, ok := rawModule.(string)
			if !ok {
				return nil, fmt.Errorf("invalid module key %v in FeeProcessor config", rawModule)
			}
			moduleID, err := ModuleIDFromString(moduleStr)
			if err != nil {
				return nil, err
			}
			cfg, ok := rawCfg.(map[interface{}]interface{})
			if !ok {
				return nil, fmt.Errorf("invalid config block for module %s in FeeProcessor config", moduleStr)
			}
			bps, ok := cfg["fee_bps"].(int)
			if !ok || bps < 0 || bps > BpsDenominator {
				return nil, fmt.Errorf("invalid 'fee_bps' for module %s: %w", moduleStr, ErrFeeTooHigh)
			}
			recipientStr, ok := cfg["recipient"].(string)
			if !ok {
				return nil, fmt.Errorf("missing 'recipient' for module %s in FeeProcessor config", moduleStr)
			}
			recipient, err := AccountFromString(recipientStr)
			if err != nil {
				return nil, err
			}
			if recipient.IsZero() {
				return nil, fmt.Errorf("zero fee recipient for module %s: %w", moduleStr, ErrInvalidParameter)
			}
			f.configs[moduleID] = feeConfig{bps: uint16(bps), recipient: recipient}
		}
	}

	return f, nil
}

func (f *FeeProcessor) Name() string    { return "FeeProcessor" }
func (f *FeeProcessor) Version() string { return "1.0.0" }

// IsApplicable reports whether a fee schedule exists for the module. A zero
// bps schedule is a configured no-op and is skipped here.
func (f *FeeProcessor) IsApplicable(p PaymentContext) bool {
	f.mu.RLock()
	cfg, ok := f.configs[p.ModuleID]
	f.mu.RUnlock()
	return ok && cfg.bps > 0
}

func (f *FeeProcessor) Process(ctx context.Context, p PaymentContext) (PaymentContext, Result) {
	f.mu.RLock()
	cfg, ok := f.configs[p.ModuleID]
	f.mu.RUnlock()
	if !ok || cfg.bps == 0 {
		return p, ResultSkipped
	}

	fee := computeBps(p.ProcessedAmount, cfg.bps)
	if fee > p.ProcessedAmount {
		return p.WithError("fee exceeds processed amount"), ResultFailed
	}

	updated, err := p.WithProcessedAmount(p.ProcessedAmount - fee).AddFee(cfg.recipient, fee)
	if err != nil {
		return p.WithError(err.Error()), ResultFailed
	}

	log.Printf("FeeProcessor: payment %s module %s fee %d bps -> %d to %s",
		p.PaymentID, p.ModuleID, cfg.bps, fee, cfg.recipient)
	return updated, ResultSuccess
}

// Configure replaces the module's fee schedule. Blob layout: 2 bytes
// big-endian basis points followed by the 32-byte fee recipient.
func (f *FeeProcessor) Configure(moduleID ModuleID, blob []byte) error {
	if len(blob) != 2+32 {
		return ErrInvalidConfigLength
	}
	bps := binary.BigEndian.Uint16(blob[:2])
	if bps > BpsDenominator {
		return ErrFeeTooHigh
	}
	var recipient Account
	copy(recipient[:], blob[2:])
	if recipient.IsZero() {
		return fmt.Errorf("zero fee recipient: %w", ErrInvalidParameter)
	}

	f.mu.Lock()
	f.configs[moduleID] = feeConfig{bps: bps, recipient: recipient}
	f.mu.Unlock()
	return nil
}
