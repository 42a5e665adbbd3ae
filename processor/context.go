package processor

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"math"
)

// PaymentState tracks a context through the pipeline. States only move
// forward: Initialized -> Validating -> Processing -> {Completed | Failed}.
type PaymentState int

const (
	StateInitialized PaymentState = iota
	StateValidating
	StateProcessing
	StateCompleted
	StateFailed
)

func (s PaymentState) String() string {
	switch s {
	case StateInitialized:
		return "initialized"
	case StateValidating:
		return "validating"
	case StateProcessing:
		return "processing"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

var (
	ErrAmountTooLarge   = errors.New("amount too large")
	ErrInvalidRecipient = errors.New("invalid fee recipient")
	ErrStateRegression  = errors.New("payment state cannot move backward")
)

// MaxAmount is the capacity of the fixed-width amount type; overflow guards
// apply where amounts are summed (AddFee, TotalFees) or multiplied (mulDiv).
const MaxAmount = math.MaxUint64

// Fee is one (recipient, amount) pair accumulated by a fee-extracting stage.
type Fee struct {
	Recipient Account `json:"recipient"`
	Amount    uint64  `json:"amount"`
}

// PaymentContext describes one in-flight payment. It is a value record:
// every mutator returns an updated copy so independently authored stages
// never share mutable state.
type PaymentContext struct {
	ModuleID        ModuleID
	Sender          Account
	Recipient       Account
	Token           Token
	OriginalAmount  uint64
	PayerAmount     uint64
	ProcessedAmount uint64
	State           PaymentState
	Success         bool
	Fees            []Fee
	PaymentID       string
	Metadata        map[string]string
	ErrorMessage    string
}

// NewPaymentContext creates the context for one payment attempt. The payment
// id is a SHA-256 of the request fields, the caller-supplied nonce and the
// executing domain, so the same logical request never collides across
// deployments and a retry with a fresh nonce gets a fresh id.
func NewPaymentContext(moduleID ModuleID, sender, recipient Account, token Token, amount uint64, nonce uint64, domain string, metadata map[string]string) PaymentContext {
	return PaymentContext{
		ModuleID:        moduleID,
		Sender:          sender,
		Recipient:       recipient,
		Token:           token,
		OriginalAmount:  amount,
		PayerAmount:     amount,
		ProcessedAmount: amount,
		State:           StateInitialized,
		PaymentID:       derivePaymentID(moduleID, sender, recipient, token, amount, nonce, domain),
		Metadata:        metadata,
	}
}

func derivePaymentID(moduleID ModuleID, sender, recipient Account, token Token, amount, nonce uint64, domain string) string {
	h := sha256.New()
	h.Write(moduleID[:])
	h.Write(sender[:])
	h.Write(recipient[:])
	h.Write(token[:])
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], amount)
	h.Write(buf[:])
	binary.BigEndian.PutUint64(buf[:], nonce)
	h.Write(buf[:])
	h.Write([]byte(domain))
	return hex.EncodeToString(h.Sum(nil))
}

// WithState advances the payment state. Moving backward is an error; Failed
// is terminal.
func (p PaymentContext) WithState(state PaymentState) (PaymentContext, error) {
	if state < p.State {
		return p, ErrStateRegression
	}
	p.State = state
	return p, nil
}

// WithSuccess marks the outcome flag.
func (p PaymentContext) WithSuccess(success bool) PaymentContext {
	p.Success = success
	return p
}

// WithError records a failure message and moves the context to the terminal
// Failed state.
func (p PaymentContext) WithError(msg string) PaymentContext {
	p.Success = false
	p.State = StateFailed
	p.ErrorMessage = msg
	return p
}

// WithProcessedAmount replaces the running amount. Whether the new value is a
// legal reduction is the orchestrator's concern.
func (p PaymentContext) WithProcessedAmount(amount uint64) PaymentContext {
	p.ProcessedAmount = amount
	return p
}

// WithPayerAmount replaces the amount actually debited from the payer.
func (p PaymentContext) WithPayerAmount(amount uint64) PaymentContext {
	p.PayerAmount = amount
	return p
}

// AddFee appends one fee to the ordered fee list. The fee slice is copied so
// the receiver and the result do not alias.
func (p PaymentContext) AddFee(recipient Account, amount uint64) (PaymentContext, error) {
	if recipient.IsZero() {
		return p, ErrInvalidRecipient
	}
	total, err := p.TotalFees()
	if err != nil {
		return p, err
	}
	if amount > MaxAmount-total {
		return p, ErrAmountTooLarge
	}
	fees := make([]Fee, len(p.Fees), len(p.Fees)+1)
	copy(fees, p.Fees)
	p.Fees = append(fees, Fee{Recipient: recipient, Amount: amount})
	return p, nil
}

// TotalFees sums the accumulated fee amounts. Used by the gateway's
// conservation check before settlement.
func (p PaymentContext) TotalFees() (uint64, error) {
	var total uint64
	for _, fee := range p.Fees {
		if fee.Amount > MaxAmount-total {
			return 0, ErrAmountTooLarge
		}
		total += fee.Amount
	}
	return total, nil
}
