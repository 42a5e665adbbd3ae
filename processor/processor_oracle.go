package processor

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
)

var ErrPairNotSupported = errors.New("conversion pair not supported")

// ratePair is one directed conversion rate expressed as a fraction.
type ratePair struct {
	from Token
	to   Token
	num  uint64
	den  uint64
}

// OracleProcessor is the price-conversion stage. Inside the pipeline it is an
// identity transform; its value is the read-only ConvertAmount and
// IsPairSupported helpers backed by a per-module rate table.
type OracleProcessor struct {
	mu    sync.RWMutex
	rates map[ModuleID][]ratePair
}

func NewOracleProcessor(config map[string]interface{}) (*OracleProcessor, error) {
	return &OracleProcessor{rates: make(map[ModuleID][]ratePair)}, nil
}

func (o *OracleProcessor) Name() string    { return "OracleProcessor" }
func (o *OracleProcessor) Version() string { return "1.0.0" }

// IsApplicable reports whether a rate table exists for the module; the stage
// is still a pass-through either way.
func (o *OracleProcessor) IsApplicable(p PaymentContext) bool {
	o.mu.RLock()
	_, ok := o.rates[p.ModuleID]
	o.mu.RUnlock()
	return ok
}

// Process is an identity transform. A full implementation would replace the
// processed amount's denomination here.
func (o *OracleProcessor) Process(ctx context.Context, p PaymentContext) (PaymentContext, Result) {
	return p, ResultSkipped
}

// Configure replaces the module's rate table. Blob layout: a packed sequence
// of 80-byte entries, each 32-byte from-token, 32-byte to-token, 8-byte
// big-endian numerator and 8-byte big-endian denominator.
func (o *OracleProcessor) Configure(moduleID ModuleID, blob []byte) error {
	const entryLen = 32 + 32 + 8 + 8
	if len(blob)%entryLen != 0 {
		return ErrInvalidConfigLength
	}

	var pairs []ratePair
	for off := 0; off < len(blob); off += entryLen {
		var pair ratePair
		copy(pair.from[:], blob[off:off+32])
		copy(pair.to[:], blob[off+32:off+64])
		pair.num = binary.BigEndian.Uint64(blob[off+64 : off+72])
		pair.den = binary.BigEndian.Uint64(blob[off+72 : off+80])
		if pair.den == 0 {
			return fmt.Errorf("zero rate denominator for pair %s/%s: %w", pair.from, pair.to, ErrInvalidParameter)
		}
		pairs = append(pairs, pair)
	}

	o.mu.Lock()
	o.rates[moduleID] = pairs
	o.mu.Unlock()
	return nil
}

// IsPairSupported reports whether a directed conversion rate is configured.
// Same-token conversion is always supported.
func (o *OracleProcessor) IsPairSupported(moduleID ModuleID, from, to Token) bool {
	if from == to {
		return true
	}
	o.mu.RLock()
	defer o.mu.RUnlock()
	for _, pair := range o.rates[moduleID] {
		if pair.from == from && pair.to == to {
			return true
		}
	}
	return false
}

// ConvertAmount converts an amount between tokens using the module's rate
// table. Identity for same-token conversion.
func (o *OracleProcessor) ConvertAmount(moduleID ModuleID, from, to Token, amount uint64) (uint64, error) {
	if from == to {
		return amount, nil
	}
	o.mu.RLock()
	defer o.mu.RUnlock()
	for _, pair := range o.rates[moduleID] {
		if pair.from == from && pair.to == to {
			converted, ok := mulDiv(amount, pair.num, pair.den)
			if !ok {
				return 0, ErrAmountTooLarge
			}
			return converted, nil
		}
	}
	return 0, ErrPairNotSupported
}
