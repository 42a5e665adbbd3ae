package processor

import (
	"context"
	"encoding/binary"
	"fmt"
	"log"
	"sync"
)

// DiscountProcessor reduces the running amount by a per-module percentage.
// No fee is recorded: the reduction is refunded to the payer at settlement,
// which is exactly what separates a discount from a fee in the data model.
type DiscountProcessor struct {
	mu      sync.RWMutex
	configs map[ModuleID]uint16
}

func NewDiscountProcessor(config map[string]interface{}) (*DiscountProcessor, error) {
	d := &DiscountProcessor{configs: make(map[ModuleID]uint16)}

	if modules, ok := config["modules"].(map[interface{}]interface{}); ok {
		for rawModule, rawBps := range modules {
			moduleStr, ok := rawModule.(string)
			if !ok {
				return nil, fmt.Errorf("invalid module key %v in DiscountProcessor config", rawModule)
			}
			moduleID, err := ModuleIDFromString(moduleStr)
			if err != nil {
				return nil, err
			}
			bps, ok := rawBps.(int)
			if !ok || bps < 0 || bps > BpsDenominator {
				return nil, fmt.Errorf("invalid 'discount_bps' for module %s: %w", moduleStr, ErrFeeTooHigh)
			}
			d.configs[moduleID] = uint16(bps)
		}
	}

	return d, nil
}

func (d *DiscountProcessor) Name() string    { return "DiscountProcessor" }
func (d *DiscountProcessor) Version() string { return "1.0.0" }

func (d *DiscountProcessor) IsApplicable(p PaymentContext) bool {
	d.mu.RLock()
	bps, ok := d.configs[p.ModuleID]
	d.mu.RUnlock()
	return ok && bps > 0
}

func (d *DiscountProcessor) Process(ctx context.Context, p PaymentContext) (PaymentContext, Result) {
	d.mu.RLock()
	bps, ok := d.configs[p.ModuleID]
	d.mu.RUnlock()
	if !ok || bps == 0 {
		return p, ResultSkipped
	}

	discount := computeBps(p.ProcessedAmount, bps)
	updated := p.WithProcessedAmount(p.ProcessedAmount - discount)

	log.Printf("DiscountProcessor: payment %s module %s discount %d bps -> %d back to payer",
		p.PaymentID, p.ModuleID, bps, discount)
	return updated, ResultSuccess
}

// Configure replaces the module's discount. Blob layout: 2 bytes big-endian
// basis points.
func (d *DiscountProcessor) Configure(moduleID ModuleID, blob []byte) error {
	if len(blob) != 2 {
		return ErrInvalidConfigLength
	}
	bps := binary.BigEndian.Uint16(blob)
	if bps > BpsDenominator {
		return ErrFeeTooHigh
	}

	d.mu.Lock()
	d.configs[moduleID] = bps
	d.mu.Unlock()
	return nil
}
