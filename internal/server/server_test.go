package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paymesh/payment-pipeline-workflow/gateway"
	"github.com/paymesh/payment-pipeline-workflow/processor"
)

type testStack struct {
	srv    *Server
	gw     *gateway.Gateway
	ledger *gateway.InMemoryLedger

	moduleID processor.ModuleID
	admin    processor.Account
	payer    processor.Account
	caller   processor.Account
}

func newTestStack(t *testing.T) *testStack {
	t.Helper()

	st := &testStack{
		ledger:   gateway.NewInMemoryLedger(),
		moduleID: processor.ModuleID{0x01},
		admin:    processor.Account{0x0a},
		payer:    processor.Account{0x0b},
		caller:   processor.Account{0x0c},
	}

	registry := processor.NewRegistry()
	fee, err := processor.NewFeeProcessor(nil)
	require.NoError(t, err)
	require.NoError(t, registry.RegisterProcessor(fee, -1))
	oracle, err := processor.NewOracleProcessor(nil)
	require.NoError(t, err)
	require.NoError(t, registry.RegisterProcessor(oracle, -1))

	st.gw, err = gateway.New(gateway.Config{
		Ledger:       st.ledger,
		Registry:     registry,
		Orchestrator: processor.NewOrchestrator(registry, "test"),
		Store:        gateway.NewMemoryStore(),
		Account:      processor.Account{0x0e},
		Admins:       []processor.Account{st.admin},
		Oracle:       oracle,
	})
	require.NoError(t, err)
	require.NoError(t, st.gw.SetModuleAuthorization(st.admin, st.moduleID, st.caller, true))

	st.srv = New(st.gw, ":0")
	return st
}

func (st *testStack) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	st.srv.httpServer.Handler.ServeHTTP(rec, req)
	return rec
}

func (st *testStack) hex(a processor.Account) string { return a.String() }

func TestHandlePayments(t *testing.T) {
	st := newTestStack(t)
	st.ledger.Credit(processor.NativeToken, st.payer, 1000)

	rec := st.do(t, http.MethodPost, "/v1/payments", map[string]interface{}{
		"module_id":      "01",
		"token":          "native",
		"payer":          st.hex(st.payer),
		"caller":         st.hex(st.caller),
		"amount":         1000,
		"attached_value": 1000,
		"nonce":          1,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp paymentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, uint64(1000), resp.NetAmount)
	assert.Len(t, resp.PaymentID, 64)

	// The status endpoint now knows about it.
	rec = st.do(t, http.MethodGet, "/v1/payments/"+resp.PaymentID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandlePaymentsBadBody(t *testing.T) {
	st := newTestStack(t)
	req := httptest.NewRequest(http.MethodPost, "/v1/payments", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	st.srv.httpServer.Handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlePaymentsErrorMapping(t *testing.T) {
	st := newTestStack(t)
	st.ledger.Credit(processor.NativeToken, st.payer, 1000)

	base := func() map[string]interface{} {
		return map[string]interface{}{
			"module_id":      "01",
			"token":          "native",
			"payer":          st.hex(st.payer),
			"caller":         st.hex(st.caller),
			"amount":         1000,
			"attached_value": 1000,
			"nonce":          1,
		}
	}

	t.Run("forbidden", func(t *testing.T) {
		body := base()
		body["caller"] = "99"
		rec := st.do(t, http.MethodPost, "/v1/payments", body)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("zero amount", func(t *testing.T) {
		body := base()
		body["amount"] = 0
		body["nonce"] = 2
		rec := st.do(t, http.MethodPost, "/v1/payments", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("insufficient attached value", func(t *testing.T) {
		body := base()
		body["attached_value"] = 1
		body["nonce"] = 3
		rec := st.do(t, http.MethodPost, "/v1/payments", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("replay conflict", func(t *testing.T) {
		rec := st.do(t, http.MethodPost, "/v1/payments", base())
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		st.ledger.Credit(processor.NativeToken, st.payer, 1000)
		rec = st.do(t, http.MethodPost, "/v1/payments", base())
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("paused", func(t *testing.T) {
		require.NoError(t, st.gw.Pause(st.admin))
		defer st.gw.Unpause(st.admin)
		rec := st.do(t, http.MethodPost, "/v1/payments", base())
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestHandlePaymentStatusNotFound(t *testing.T) {
	st := newTestStack(t)
	rec := st.do(t, http.MethodGet, "/v1/payments/deadbeef", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleModulesTokens(t *testing.T) {
	st := newTestStack(t)
	rec := st.do(t, http.MethodGet, "/v1/modules/01/tokens", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Restricted bool              `json:"restricted"`
		Tokens     []processor.Token `json:"tokens"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Restricted)

	rec = st.do(t, http.MethodGet, "/v1/modules/01/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleConvert(t *testing.T) {
	st := newTestStack(t)
	token := processor.Token{0x10}
	path := fmt.Sprintf("/v1/convert?module=01&from=%s&to=%s&amount=500", token, token)
	rec := st.do(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]uint64
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, uint64(500), resp["converted"])

	// No oracle wired: distinct pairs are not supported.
	path = fmt.Sprintf("/v1/convert?module=01&from=%s&to=20&amount=500", token)
	rec = st.do(t, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleAdminGates(t *testing.T) {
	st := newTestStack(t)

	rec := st.do(t, http.MethodPost, "/v1/admin/pause", map[string]interface{}{"admin": "99"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = st.do(t, http.MethodPost, "/v1/admin/pause", map[string]interface{}{"admin": st.hex(st.admin)})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = st.do(t, http.MethodPost, "/v1/admin/unpause", map[string]interface{}{"admin": st.hex(st.admin)})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleAdminEnable(t *testing.T) {
	st := newTestStack(t)

	rec := st.do(t, http.MethodPost, "/v1/admin/enable", map[string]interface{}{
		"admin":     st.hex(st.admin),
		"module_id": "01",
		"processor": "FeeProcessor",
		"enabled":   false,
	})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = st.do(t, http.MethodPost, "/v1/admin/enable", map[string]interface{}{
		"admin":     st.hex(st.admin),
		"module_id": "01",
		"processor": "NoSuchProcessor",
		"enabled":   false,
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleAdminConfigure(t *testing.T) {
	st := newTestStack(t)

	// 250 bps to recipient 0d.
	blob := "00fa" + processor.Account{0x0d}.String()
	rec := st.do(t, http.MethodPost, "/v1/admin/configure", map[string]interface{}{
		"admin":     st.hex(st.admin),
		"module_id": "01",
		"processor": "FeeProcessor",
		"blob":      blob,
	})
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = st.do(t, http.MethodPost, "/v1/admin/configure", map[string]interface{}{
		"admin":     st.hex(st.admin),
		"module_id": "01",
		"processor": "FeeProcessor",
		"blob":      "zz",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	st := newTestStack(t)
	rec := st.do(t, http.MethodGet, "/v1/payments", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = st.do(t, http.MethodPost, "/v1/convert", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
