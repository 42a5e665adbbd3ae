package processor

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discountBlob(bps uint16) []byte {
	blob := make([]byte, 2)
	binary.BigEndian.PutUint16(blob, bps)
	return blob
}

func TestDiscountProcessorProcess(t *testing.T) {
	moduleID := ModuleID{1}

	d, err := NewDiscountProcessor(nil)
	require.NoError(t, err)
	require.NoError(t, d.Configure(moduleID, discountBlob(200)))

	p := NewPaymentContext(moduleID, Account{2}, Account{3}, NativeToken, 10000, 1, "test", nil)

	updated, result := d.Process(context.Background(), p)
	assert.Equal(t, ResultSuccess, result)
	assert.Equal(t, uint64(9800), updated.ProcessedAmount)
	// Discounts flow back to the payer, never onto the fee list.
	assert.Empty(t, updated.Fees)
	assert.Equal(t, uint64(10000), updated.PayerAmount)
}

func TestDiscountProcessorFullDiscount(t *testing.T) {
	moduleID := ModuleID{1}

	d, err := NewDiscountProcessor(nil)
	require.NoError(t, err)
	require.NoError(t, d.Configure(moduleID, discountBlob(BpsDenominator)))

	p := NewPaymentContext(moduleID, Account{2}, Account{3}, NativeToken, 500, 1, "test", nil)

	updated, result := d.Process(context.Background(), p)
	assert.Equal(t, ResultSuccess, result)
	assert.Equal(t, uint64(0), updated.ProcessedAmount)
}

func TestDiscountProcessorIsApplicable(t *testing.T) {
	moduleID := ModuleID{1}

	d, err := NewDiscountProcessor(nil)
	require.NoError(t, err)

	p := NewPaymentContext(moduleID, Account{2}, Account{3}, NativeToken, 100, 1, "test", nil)
	assert.False(t, d.IsApplicable(p))

	require.NoError(t, d.Configure(moduleID, discountBlob(50)))
	assert.True(t, d.IsApplicable(p))

	require.NoError(t, d.Configure(moduleID, discountBlob(0)))
	assert.False(t, d.IsApplicable(p))
}

func TestDiscountProcessorConfigureValidation(t *testing.T) {
	moduleID := ModuleID{1}

	d, err := NewDiscountProcessor(nil)
	require.NoError(t, err)

	assert.ErrorIs(t, d.Configure(moduleID, []byte{0x01}), ErrInvalidConfigLength)
	assert.ErrorIs(t, d.Configure(moduleID, discountBlob(BpsDenominator+1)), ErrFeeTooHigh)
}

func TestNewDiscountProcessorFromConfig(t *testing.T) {
	cfg := map[string]interface{}{
		"modules": map[interface{}]interface{}{
			"01": 150,
		},
	}
	d, err := NewDiscountProcessor(cfg)
	require.NoError(t, err)

	p := NewPaymentContext(testModuleID(t, "01"), Account{2}, Account{3}, NativeToken, 10000, 1, "test", nil)
	updated, result := d.Process(context.Background(), p)
	assert.Equal(t, ResultSuccess, result)
	assert.Equal(t, uint64(9850), updated.ProcessedAmount)
}
