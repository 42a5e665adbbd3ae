package processor

import (
	"context"
	"errors"
	"fmt"
	"log"
)

var (
	ErrStageFailed     = errors.New("processor stage failed")
	ErrAmountIncreased = errors.New("processor increased processed amount")
)

// PaymentResult is what the orchestrator hands back to the gateway: the final
// settlement split plus the completed context for the settlement record.
type PaymentResult struct {
	NetAmount   uint64
	PaymentID   string
	PayerAmount uint64
	Fees        []Fee
	Context     PaymentContext
}

// Orchestrator walks a module's enabled, ordered stage chain, feeding the
// context through each applicable stage and computing the final split.
type Orchestrator struct {
	registry *Registry
	domain   string
}

// NewOrchestrator creates an orchestrator. The domain string discriminates
// payment ids across deployments sharing a configuration.
func NewOrchestrator(registry *Registry, domain string) *Orchestrator {
	return &Orchestrator{registry: registry, domain: domain}
}

// ProcessPayment drives one payment through the module's chain. Any stage
// reporting Failed aborts the whole run: no further stages execute and the
// caller must not move funds. The chain is snapshotted once up front so a
// concurrent reorder cannot change it mid-flight.
func (o *Orchestrator) ProcessPayment(ctx context.Context, moduleID ModuleID, token Token, payer, recipient Account, amount, nonce uint64, metadata map[string]string) (PaymentResult, error) {
	p := NewPaymentContext(moduleID, payer, recipient, token, amount, nonce, o.domain, metadata)

	p, err := p.WithState(StateValidating)
	if err != nil {
		return PaymentResult{}, err
	}

	chain := o.registry.GetProcessorChain(moduleID)
	for _, entry := range chain {
		if !entry.Enabled {
			log.Printf("Orchestrator: payment %s skipping disabled stage %s", p.PaymentID, entry.Name)
			continue
		}
		if entry.Processor == nil {
			// Dangling slot left by RemoveProcessor.
			log.Printf("Orchestrator: payment %s skipping removed stage %s", p.PaymentID, entry.Name)
			continue
		}
		if !entry.Processor.IsApplicable(p) {
			continue
		}

		before := p.ProcessedAmount
		updated, result := entry.Processor.Process(ctx, p)
		switch result {
		case ResultFailed:
			msg := updated.ErrorMessage
			if msg == "" {
				msg = "stage failed without message"
			}
			return PaymentResult{}, fmt.Errorf("%w: %s: %s", ErrStageFailed, entry.Name, msg)
		case ResultSkipped:
			continue
		}
		if updated.ProcessedAmount > before {
			return PaymentResult{}, fmt.Errorf("%w: %s", ErrAmountIncreased, entry.Name)
		}
		p = updated
	}

	if p, err = p.WithState(StateProcessing); err != nil {
		return PaymentResult{}, err
	}
	if p, err = p.WithState(StateCompleted); err != nil {
		return PaymentResult{}, err
	}
	p = p.WithSuccess(true)

	return PaymentResult{
		NetAmount:   p.ProcessedAmount,
		PaymentID:   p.PaymentID,
		PayerAmount: p.PayerAmount,
		Fees:        p.Fees,
		Context:     p,
	}, nil
}
