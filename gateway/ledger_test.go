package gateway

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paymesh/payment-pipeline-workflow/processor"
)

func TestInMemoryLedgerTransfer(t *testing.T) {
	ctx := context.Background()
	l := NewInMemoryLedger()
	alice := processor.Account{1}
	bob := processor.Account{2}
	usdc := processor.Token{0x10}

	l.Credit(usdc, alice, 100)
	require.NoError(t, l.Transfer(ctx, usdc, alice, bob, 60))

	got, err := l.BalanceOf(ctx, usdc, alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(40), got)
	got, err = l.BalanceOf(ctx, usdc, bob)
	require.NoError(t, err)
	assert.Equal(t, uint64(60), got)
}

func TestInMemoryLedgerInsufficientBalance(t *testing.T) {
	ctx := context.Background()
	l := NewInMemoryLedger()
	alice := processor.Account{1}
	bob := processor.Account{2}

	err := l.Transfer(ctx, processor.NativeToken, alice, bob, 1)
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	// Balances are per token.
	l.Credit(processor.Token{0x10}, alice, 100)
	err = l.Transfer(ctx, processor.NativeToken, alice, bob, 1)
	assert.ErrorIs(t, err, ErrInsufficientBalance)
}
