package runner

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paymesh/payment-pipeline-workflow/gateway"
	"github.com/paymesh/payment-pipeline-workflow/internal/cli/config"
	"github.com/paymesh/payment-pipeline-workflow/processor"
)

const demoConfig = `
gateway:
  domain: "test"
  account: "0e"
  admins:
    - "0a"
ledger:
  type: memory
  balances:
    - token: native
      account: "0b"
      amount: 10000
processors:
  - type: TokenFilter
    config:
      modules:
        "01":
          - native
  - type: Fee
    config:
      modules:
        "01":
          fee_bps: 500
          recipient: "0d"
  - type: Discount
    config:
      modules:
        "01": 200
modules:
  marketplace:
    id: "01"
    authorized:
      - "0c"
`

func loadConfig(t *testing.T, content string) *config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gateway_config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	cfg, err := config.Load(path)
	require.NoError(t, err)
	return cfg
}

func TestBuildAndProcess(t *testing.T) {
	cfg := loadConfig(t, demoConfig)
	gw, srv, err := Build(cfg)
	require.NoError(t, err)
	require.NotNil(t, srv)
	defer gw.Close()

	payer, err := processor.AccountFromString("0b")
	require.NoError(t, err)
	caller, err := processor.AccountFromString("0c")
	require.NoError(t, err)
	moduleID, err := processor.ModuleIDFromString("01")
	require.NoError(t, err)

	receipt, err := gw.ProcessPayment(context.Background(), gateway.Request{
		ModuleID:      moduleID,
		Token:         processor.NativeToken,
		Payer:         payer,
		Caller:        caller,
		Amount:        10000,
		AttachedValue: 10000,
		Nonce:         1,
	})
	require.NoError(t, err)

	// 500 bps fee then 200 bps discount on the remainder.
	assert.Equal(t, uint64(9310), receipt.NetAmount)
	assert.Equal(t, uint64(190), receipt.Settlement.DiscountRefund)
}

func TestBuildRejectsUnknownProcessor(t *testing.T) {
	cfg := loadConfig(t, `
gateway:
  account: "0e"
processors:
  - type: NoSuchProcessor
`)
	_, _, err := Build(cfg)
	assert.Error(t, err)
}

func TestBuildRejectsAuthorizationWithoutAdmins(t *testing.T) {
	cfg := loadConfig(t, `
gateway:
  account: "0e"
modules:
  marketplace:
    id: "01"
    authorized:
      - "0c"
`)
	_, _, err := Build(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no gateway admins")
}

func TestBuildRejectsUnknownChainEntry(t *testing.T) {
	cfg := loadConfig(t, `
gateway:
  account: "0e"
  admins:
    - "0a"
processors:
  - type: Fee
modules:
  marketplace:
    id: "01"
    chain:
      - NoSuchProcessor
`)
	_, _, err := Build(cfg)
	assert.ErrorIs(t, err, processor.ErrProcessorNotFound)
}

func TestValidate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gateway_config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(demoConfig), 0644))

	r := New(Options{ConfigFile: path})
	assert.NoError(t, r.Validate())

	r = New(Options{ConfigFile: filepath.Join(t.TempDir(), "missing.yaml")})
	assert.Error(t, r.Validate())
}
