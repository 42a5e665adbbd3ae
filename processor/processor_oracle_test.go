package processor

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rateBlob(entries ...[4]interface{}) []byte {
	blob := make([]byte, 0, len(entries)*80)
	for _, e := range entries {
		from := e[0].(Token)
		to := e[1].(Token)
		blob = append(blob, from[:]...)
		blob = append(blob, to[:]...)
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], e[2].(uint64))
		blob = append(blob, buf[:]...)
		binary.BigEndian.PutUint64(buf[:], e[3].(uint64))
		blob = append(blob, buf[:]...)
	}
	return blob
}

func TestOracleConvertAmount(t *testing.T) {
	moduleID := ModuleID{1}
	usdc := Token{0x10}
	dai := Token{0x20}

	o, err := NewOracleProcessor(nil)
	require.NoError(t, err)
	// 3 usdc = 2 dai.
	require.NoError(t, o.Configure(moduleID, rateBlob([4]interface{}{usdc, dai, uint64(2), uint64(3)})))

	got, err := o.ConvertAmount(moduleID, usdc, dai, 9000)
	require.NoError(t, err)
	assert.Equal(t, uint64(6000), got)

	// Truncating division.
	got, err = o.ConvertAmount(moduleID, usdc, dai, 100)
	require.NoError(t, err)
	assert.Equal(t, uint64(66), got)
}

func TestOracleSameTokenIsIdentity(t *testing.T) {
	moduleID := ModuleID{1}
	usdc := Token{0x10}

	o, err := NewOracleProcessor(nil)
	require.NoError(t, err)

	got, err := o.ConvertAmount(moduleID, usdc, usdc, 12345)
	require.NoError(t, err)
	assert.Equal(t, uint64(12345), got)
	assert.True(t, o.IsPairSupported(moduleID, usdc, usdc))
}

func TestOracleDirectedPairs(t *testing.T) {
	moduleID := ModuleID{1}
	usdc := Token{0x10}
	dai := Token{0x20}

	o, err := NewOracleProcessor(nil)
	require.NoError(t, err)
	require.NoError(t, o.Configure(moduleID, rateBlob([4]interface{}{usdc, dai, uint64(1), uint64(1)})))

	assert.True(t, o.IsPairSupported(moduleID, usdc, dai))
	// The reverse direction is not implied.
	assert.False(t, o.IsPairSupported(moduleID, dai, usdc))

	_, err = o.ConvertAmount(moduleID, dai, usdc, 100)
	assert.ErrorIs(t, err, ErrPairNotSupported)
}

func TestOracleConvertOverflow(t *testing.T) {
	moduleID := ModuleID{1}
	usdc := Token{0x10}
	dai := Token{0x20}

	o, err := NewOracleProcessor(nil)
	require.NoError(t, err)
	require.NoError(t, o.Configure(moduleID, rateBlob([4]interface{}{usdc, dai, uint64(2), uint64(1)})))

	_, err = o.ConvertAmount(moduleID, usdc, dai, MaxAmount)
	assert.ErrorIs(t, err, ErrAmountTooLarge)
}

func TestOracleConfigureValidation(t *testing.T) {
	moduleID := ModuleID{1}
	usdc := Token{0x10}
	dai := Token{0x20}

	o, err := NewOracleProcessor(nil)
	require.NoError(t, err)

	assert.ErrorIs(t, o.Configure(moduleID, make([]byte, 79)), ErrInvalidConfigLength)
	assert.ErrorIs(t, o.Configure(moduleID, rateBlob([4]interface{}{usdc, dai, uint64(1), uint64(0)})), ErrInvalidParameter)
}

func TestOracleProcessIsPassThrough(t *testing.T) {
	moduleID := ModuleID{1}

	o, err := NewOracleProcessor(nil)
	require.NoError(t, err)

	p := NewPaymentContext(moduleID, Account{2}, Account{3}, NativeToken, 1000, 1, "test", nil)

	updated, result := o.Process(context.Background(), p)
	assert.Equal(t, ResultSkipped, result)
	assert.Equal(t, p, updated)
}

func TestMulDiv(t *testing.T) {
	tests := []struct {
		name   string
		amount uint64
		num    uint64
		den    uint64
		want   uint64
		ok     bool
	}{
		{"exact", 100, 1, 2, 50, true},
		{"truncates", 101, 1, 2, 50, true},
		{"widened intermediate", 1 << 63, 3, 4, 3 << 61, true},
		{"overflow", MaxAmount, 2, 1, 0, false},
		{"identity", 42, 7, 7, 42, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := mulDiv(tt.amount, tt.num, tt.den)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestComputeBps(t *testing.T) {
	assert.Equal(t, uint64(500), computeBps(10000, 500))
	assert.Equal(t, uint64(0), computeBps(0, 500))
	assert.Equal(t, uint64(10000), computeBps(10000, BpsDenominator))
	// Full-range amount must not overflow the intermediate product.
	assert.Equal(t, uint64(MaxAmount), computeBps(MaxAmount, BpsDenominator))
}
