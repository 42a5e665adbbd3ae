package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/paymesh/payment-pipeline-workflow/processor"
)

var ErrInsufficientBalance = errors.New("insufficient balance")

// Ledger is the narrow capability interface the gateway uses to move value.
// Keeping custody behind it makes the whole pipeline testable without a real
// ledger; production deployments plug in their chain or bank adapter here.
type Ledger interface {
	// Transfer moves amount of token from one account to another.
	Transfer(ctx context.Context, token processor.Token, from, to processor.Account, amount uint64) error
	// BalanceOf reports an account's balance in the given token.
	BalanceOf(ctx context.Context, token processor.Token, account processor.Account) (uint64, error)
}

// InMemoryLedger is a process-local ledger used by tests and the demo
// configuration.
type InMemoryLedger struct {
	mu       sync.Mutex
	balances map[processor.Token]map[processor.Account]uint64
}

func NewInMemoryLedger() *InMemoryLedger {
	return &InMemoryLedger{balances: make(map[processor.Token]map[processor.Account]uint64)}
}

// Credit mints balance for an account. Test and demo setup only.
func (l *InMemoryLedger) Credit(token processor.Token, account processor.Account, amount uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.balances[token] == nil {
		l.balances[token] = make(map[processor.Account]uint64)
	}
	l.balances[token][account] += amount
}

func (l *InMemoryLedger) Transfer(ctx context.Context, token processor.Token, from, to processor.Account, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.balances[token][from] < amount {
		return fmt.Errorf("%w: %s has %d, needs %d", ErrInsufficientBalance, from, l.balances[token][from], amount)
	}
	if l.balances[token] == nil {
		l.balances[token] = make(map[processor.Account]uint64)
	}
	l.balances[token][from] -= amount
	l.balances[token][to] += amount
	return nil
}

func (l *InMemoryLedger) BalanceOf(ctx context.Context, token processor.Token, account processor.Account) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[token][account], nil
}
