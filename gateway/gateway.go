package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/paymesh/payment-pipeline-workflow/consumer"
	"github.com/paymesh/payment-pipeline-workflow/processor"
)

var (
	ErrInvalidAmount     = errors.New("amount must be greater than zero")
	ErrForbidden         = errors.New("module caller not authorized")
	ErrEnforcedPause     = errors.New("gateway is paused")
	ErrAlreadyProcessed  = errors.New("payment already processed")
	ErrTransferFailed    = errors.New("transfer failed")
	ErrInsufficientValue = errors.New("attached value below amount")
	ErrNotAdmin          = errors.New("caller is not an administrator")
	ErrConservation      = errors.New("conservation violated")
)

// Request is one payment submission on behalf of a module.
type Request struct {
	ModuleID processor.ModuleID
	Token    processor.Token
	Payer    processor.Account
	// Caller is the module's service account. Authorization is checked
	// against it and the net amount is forwarded to it.
	Caller processor.Account
	Amount uint64
	// AttachedValue is the native value sent along with the request. Ignored
	// for token payments. Anything beyond Amount is returned immediately.
	AttachedValue uint64
	// Nonce is the caller's freshness value. Retries after a failure must use
	// a fresh nonce so the payment id differs from the failed attempt.
	Nonce    uint64
	AuthData []byte
	Metadata map[string]string
}

// Receipt is the successful outcome of a payment.
type Receipt struct {
	NetAmount  uint64
	PaymentID  string
	Settlement processor.Settlement
}

// Config wires a gateway together.
type Config struct {
	Ledger       Ledger
	Registry     *processor.Registry
	Orchestrator *processor.Orchestrator
	Store        Store
	Consumers    []consumer.Consumer
	// Account is the gateway's own custody account on the ledger.
	Account processor.Account
	// Admins are implicitly authorized for every module and gate the
	// administrative surface.
	Admins []processor.Account
	// TokenFilter and Oracle back the read-only introspection surface.
	TokenFilter *processor.TokenFilterProcessor
	Oracle      *processor.OracleProcessor
}

// Gateway is the externally callable entry point: it custodies incoming
// funds, drives the orchestrator, settles the resulting split and enforces
// authorization, idempotency and pause controls.
type Gateway struct {
	// mu is the per-invocation critical section: custody, orchestration and
	// settlement run under it so nothing can re-enter and double-spend
	// custodied funds or double-use a payment id.
	mu sync.Mutex

	ledger       Ledger
	registry     *processor.Registry
	orchestrator *processor.Orchestrator
	store        Store
	consumers    []consumer.Consumer
	account      processor.Account
	tokenFilter  *processor.TokenFilterProcessor
	oracle       *processor.OracleProcessor

	paused     bool
	admins     map[processor.Account]bool
	authorized map[processor.ModuleID]map[processor.Account]bool
	feeTotals  map[processor.Account]uint64
}

func New(config Config) (*Gateway, error) {
	if config.Ledger == nil {
		return nil, errors.New("gateway requires a ledger")
	}
	if config.Registry == nil {
		return nil, errors.New("gateway requires a registry")
	}
	if config.Orchestrator == nil {
		return nil, errors.New("gateway requires an orchestrator")
	}
	if config.Store == nil {
		config.Store = NewMemoryStore()
	}
	g := &Gateway{
		ledger:       config.Ledger,
		registry:     config.Registry,
		orchestrator: config.Orchestrator,
		store:        config.Store,
		consumers:    config.Consumers,
		account:      config.Account,
		tokenFilter:  config.TokenFilter,
		oracle:       config.Oracle,
		admins:       make(map[processor.Account]bool),
		authorized:   make(map[processor.ModuleID]map[processor.Account]bool),
		feeTotals:    make(map[processor.Account]uint64),
	}
	for _, admin := range config.Admins {
		g.admins[admin] = true
	}
	return g, nil
}

// ProcessPayment takes custody of the payer's funds, runs the module's stage
// chain and settles the resulting split. Every failure after custody refunds
// the custodied funds before returning, so no partial settlement is ever
// observable.
func (g *Gateway) ProcessPayment(ctx context.Context, req Request) (Receipt, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.paused {
		return Receipt{}, ErrEnforcedPause
	}
	if req.Amount == 0 {
		return Receipt{}, ErrInvalidAmount
	}
	if !g.isAuthorizedLocked(req.ModuleID, req.Caller) {
		return Receipt{}, fmt.Errorf("%w: module %s caller %s", ErrForbidden, req.ModuleID, req.Caller)
	}

	measured, excess, err := g.takeCustody(ctx, req)
	if err != nil {
		return Receipt{}, err
	}

	// From here on the gateway holds measured+excess of the payer's funds;
	// every failure path refunds whatever part of that is still in custody.
	refund := func(amount uint64) {
		if amount == 0 {
			return
		}
		if err := g.ledger.Transfer(ctx, req.Token, g.account, req.Payer, amount); err != nil {
			log.Printf("Gateway: CRITICAL refund of payment custody failed: %v", err)
		}
	}

	result, err := g.orchestrator.ProcessPayment(ctx, req.ModuleID, req.Token, req.Payer, req.Caller, measured, req.Nonce, req.Metadata)
	if err != nil {
		refund(measured + excess)
		return Receipt{}, err
	}

	if status, ok, serr := g.store.Get(result.PaymentID); serr != nil {
		refund(measured + excess)
		return Receipt{}, fmt.Errorf("error reading payment status: %w", serr)
	} else if ok && status.Settled {
		refund(measured + excess)
		return Receipt{}, fmt.Errorf("%w: %s", ErrAlreadyProcessed, result.PaymentID)
	}

	settlement, disbursed, err := g.settle(ctx, req, result, measured, excess)
	if err != nil {
		refund(measured + excess - disbursed)
		return Receipt{}, err
	}

	if err := g.store.Put(PaymentStatus{
		PaymentID: result.PaymentID,
		Settled:   true,
		SettledAt: settlement.SettledAt,
	}); err != nil {
		// Funds already moved; surface the store failure loudly rather than
		// refunding settled transfers.
		log.Printf("Gateway: CRITICAL failed to record settled payment %s: %v", result.PaymentID, err)
		return Receipt{}, fmt.Errorf("error recording payment status: %w", err)
	}

	g.emit(ctx, settlement)

	return Receipt{
		NetAmount:  result.NetAmount,
		PaymentID:  result.PaymentID,
		Settlement: settlement,
	}, nil
}

// takeCustody pulls the payment funds into the gateway account and returns
// the measured amount plus any excess native value owed back to the payer.
func (g *Gateway) takeCustody(ctx context.Context, req Request) (measured, excess uint64, err error) {
	if req.Token.IsNative() {
		if req.AttachedValue < req.Amount {
			return 0, 0, fmt.Errorf("%w: attached %d, amount %d", ErrInsufficientValue, req.AttachedValue, req.Amount)
		}
		if err := g.ledger.Transfer(ctx, req.Token, req.Payer, g.account, req.AttachedValue); err != nil {
			return 0, 0, fmt.Errorf("%w: %v", ErrTransferFailed, err)
		}
		return req.Amount, req.AttachedValue - req.Amount, nil
	}

	// Tokens with fee-on-transfer behavior deliver less than requested, so
	// trust the measured balance delta over the nominal amount.
	before, err := g.ledger.BalanceOf(ctx, req.Token, g.account)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	if err := g.ledger.Transfer(ctx, req.Token, req.Payer, g.account, req.Amount); err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	after, err := g.ledger.BalanceOf(ctx, req.Token, g.account)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	delta := after - before
	if delta == 0 {
		return 0, 0, fmt.Errorf("%w: no balance received", ErrTransferFailed)
	}
	return delta, 0, nil
}

// settle distributes the custodied funds: each recorded fee to its recipient,
// net amount to the module, then discount refund, residual and excess back to
// the payer. The split is checked against the custodied total before any
// transfer; on a transfer failure it reports how much already left custody so
// the caller can refund exactly the remainder. Payer-bound transfers go last,
// so a mid-settlement failure never leaves the payer partially paid while
// later recipients were skipped.
func (g *Gateway) settle(ctx context.Context, req Request, result processor.PaymentResult, measured, excess uint64) (processor.Settlement, uint64, error) {
	totalFees, err := result.Context.TotalFees()
	if err != nil {
		return processor.Settlement{}, 0, err
	}
	if result.NetAmount > result.PayerAmount || totalFees > result.PayerAmount-result.NetAmount {
		return processor.Settlement{}, 0, fmt.Errorf("%w: payer %d, net %d, fees %d",
			ErrConservation, result.PayerAmount, result.NetAmount, totalFees)
	}
	if result.PayerAmount > measured {
		return processor.Settlement{}, 0, fmt.Errorf("%w: payer amount %d exceeds custodied %d",
			ErrConservation, result.PayerAmount, measured)
	}
	discountRefund := result.PayerAmount - result.NetAmount - totalFees
	residual := measured - result.PayerAmount

	var disbursed uint64
	for _, fee := range result.Fees {
		if fee.Amount == 0 {
			continue
		}
		if err := g.ledger.Transfer(ctx, req.Token, g.account, fee.Recipient, fee.Amount); err != nil {
			return processor.Settlement{}, disbursed, fmt.Errorf("%w: fee to %s: %v", ErrTransferFailed, fee.Recipient, err)
		}
		disbursed += fee.Amount
		g.feeTotals[fee.Recipient] += fee.Amount
	}
	if result.NetAmount > 0 {
		if err := g.ledger.Transfer(ctx, req.Token, g.account, req.Caller, result.NetAmount); err != nil {
			return processor.Settlement{}, disbursed, fmt.Errorf("%w: net to module: %v", ErrTransferFailed, err)
		}
		disbursed += result.NetAmount
	}
	payerReturn := discountRefund + residual + excess
	if payerReturn > 0 {
		if err := g.ledger.Transfer(ctx, req.Token, g.account, req.Payer, payerReturn); err != nil {
			return processor.Settlement{}, disbursed, fmt.Errorf("%w: payer refund: %v", ErrTransferFailed, err)
		}
		disbursed += payerReturn
	}

	return processor.Settlement{
		PaymentID:      result.PaymentID,
		ModuleID:       req.ModuleID,
		Token:          req.Token,
		Payer:          req.Payer,
		Recipient:      req.Caller,
		OriginalAmount: measured,
		PayerAmount:    result.PayerAmount,
		NetAmount:      result.NetAmount,
		Fees:           result.Fees,
		DiscountRefund: discountRefund,
		Residual:       residual,
		Metadata:       req.Metadata,
		SettledAt:      time.Now().UTC(),
	}, disbursed, nil
}

// emit forwards the settlement record to every configured consumer. Consumer
// failures are logged, not propagated: the payment has already settled.
func (g *Gateway) emit(ctx context.Context, settlement processor.Settlement) {
	if len(g.consumers) == 0 {
		return
	}
	jsonBytes, err := json.Marshal(settlement)
	if err != nil {
		log.Printf("Gateway: error marshaling settlement %s: %v", settlement.PaymentID, err)
		return
	}
	for _, c := range g.consumers {
		if err := c.Process(ctx, processor.Message{Payload: jsonBytes}); err != nil {
			log.Printf("Gateway: consumer error for settlement %s: %v", settlement.PaymentID, err)
		}
	}
}

// GetPaymentStatus looks up the idempotency/audit record for a payment id.
func (g *Gateway) GetPaymentStatus(paymentID string) (PaymentStatus, bool, error) {
	return g.store.Get(paymentID)
}

// GetSupportedTokens returns the module's token allow-list in insertion
// order. The second result is false when the module accepts any token.
func (g *Gateway) GetSupportedTokens(moduleID processor.ModuleID) ([]processor.Token, bool) {
	if g.tokenFilter == nil {
		return nil, false
	}
	return g.tokenFilter.SupportedTokens(moduleID)
}

// ConvertAmount exposes the oracle's read-only conversion helper.
func (g *Gateway) ConvertAmount(moduleID processor.ModuleID, from, to processor.Token, amount uint64) (uint64, error) {
	if g.oracle == nil {
		return 0, processor.ErrPairNotSupported
	}
	return g.oracle.ConvertAmount(moduleID, from, to, amount)
}

// IsPairSupported exposes the oracle's pair lookup.
func (g *Gateway) IsPairSupported(moduleID processor.ModuleID, from, to processor.Token) bool {
	if g.oracle == nil {
		return from == to
	}
	return g.oracle.IsPairSupported(moduleID, from, to)
}

// FeeTotals returns the cumulative fees paid out per recipient since start.
func (g *Gateway) FeeTotals() map[processor.Account]uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[processor.Account]uint64, len(g.feeTotals))
	for recipient, total := range g.feeTotals {
		out[recipient] = total
	}
	return out
}

func (g *Gateway) isAuthorizedLocked(moduleID processor.ModuleID, caller processor.Account) bool {
	if g.admins[caller] {
		return true
	}
	return g.authorized[moduleID][caller]
}

// IsAuthorized reports whether a caller may submit payments for a module.
func (g *Gateway) IsAuthorized(moduleID processor.ModuleID, caller processor.Account) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.isAuthorizedLocked(moduleID, caller)
}

// SetModuleAuthorization mutates the per-module authorization allow-list.
func (g *Gateway) SetModuleAuthorization(admin processor.Account, moduleID processor.ModuleID, caller processor.Account, allowed bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.admins[admin] {
		return ErrNotAdmin
	}
	if allowed {
		if g.authorized[moduleID] == nil {
			g.authorized[moduleID] = make(map[processor.Account]bool)
		}
		g.authorized[moduleID][caller] = true
		return nil
	}
	delete(g.authorized[moduleID], caller)
	return nil
}

// Pause blocks new payments until Unpause.
func (g *Gateway) Pause(admin processor.Account) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.admins[admin] {
		return ErrNotAdmin
	}
	g.paused = true
	log.Printf("Gateway: paused by %s", admin)
	return nil
}

func (g *Gateway) Unpause(admin processor.Account) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.admins[admin] {
		return ErrNotAdmin
	}
	g.paused = false
	log.Printf("Gateway: unpaused by %s", admin)
	return nil
}

// ConfigureProcessor is the admin-gated entry to a stage's Configure.
func (g *Gateway) ConfigureProcessor(admin processor.Account, name string, moduleID processor.ModuleID, blob []byte) error {
	g.mu.Lock()
	isAdmin := g.admins[admin]
	g.mu.Unlock()
	if !isAdmin {
		return ErrNotAdmin
	}
	p, ok := g.registry.GetProcessor(name)
	if !ok {
		return fmt.Errorf("%q: %w", name, processor.ErrProcessorNotFound)
	}
	return p.Configure(moduleID, blob)
}

// UpdateProcessorOrder is the admin-gated registry reorder passthrough.
func (g *Gateway) UpdateProcessorOrder(admin processor.Account, moduleID processor.ModuleID, orderedNames []string) error {
	g.mu.Lock()
	isAdmin := g.admins[admin]
	g.mu.Unlock()
	if !isAdmin {
		return ErrNotAdmin
	}
	return g.registry.UpdateProcessorOrder(moduleID, orderedNames)
}

// SetProcessorEnabled is the admin-gated enable/disable passthrough.
func (g *Gateway) SetProcessorEnabled(admin processor.Account, moduleID processor.ModuleID, name string, enabled bool) error {
	g.mu.Lock()
	isAdmin := g.admins[admin]
	g.mu.Unlock()
	if !isAdmin {
		return ErrNotAdmin
	}
	return g.registry.SetProcessorEnabled(moduleID, name, enabled)
}

// Close releases the status store.
func (g *Gateway) Close() error {
	return g.store.Close()
}
