package server

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/paymesh/payment-pipeline-workflow/gateway"
	"github.com/paymesh/payment-pipeline-workflow/processor"
)

// Server exposes the gateway over a small JSON HTTP API.
type Server struct {
	gw         *gateway.Gateway
	httpServer *http.Server
}

func New(gw *gateway.Gateway, address string) *Server {
	s := &Server{gw: gw}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/payments", s.handlePayments)
	mux.HandleFunc("/v1/payments/", s.handlePaymentStatus)
	mux.HandleFunc("/v1/modules/", s.handleModules)
	mux.HandleFunc("/v1/convert", s.handleConvert)
	mux.HandleFunc("/v1/admin/pause", s.handlePause)
	mux.HandleFunc("/v1/admin/unpause", s.handleUnpause)
	mux.HandleFunc("/v1/admin/configure", s.handleConfigure)
	mux.HandleFunc("/v1/admin/order", s.handleOrder)
	mux.HandleFunc("/v1/admin/enable", s.handleEnable)
	mux.HandleFunc("/v1/admin/authorize", s.handleAuthorize)

	s.httpServer = &http.Server{
		Addr:         address,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	return s
}

// Start serves until the context is canceled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

type paymentRequest struct {
	ModuleID      string            `json:"module_id"`
	Token         string            `json:"token"`
	Payer         string            `json:"payer"`
	Caller        string            `json:"caller"`
	Amount        uint64            `json:"amount"`
	AttachedValue uint64            `json:"attached_value"`
	Nonce         uint64            `json:"nonce"`
	AuthData      string            `json:"auth_data"`
	Metadata      map[string]string `json:"metadata"`
}

type paymentResponse struct {
	NetAmount  uint64               `json:"net_amount"`
	PaymentID  string               `json:"payment_id"`
	Settlement processor.Settlement `json:"settlement"`
}

func (s *Server) handlePayments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req paymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	gatewayReq, err := s.toGatewayRequest(req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	receipt, err := s.gw.ProcessPayment(r.Context(), gatewayReq)
	if err != nil {
		writeGatewayError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, paymentResponse{
		NetAmount:  receipt.NetAmount,
		PaymentID:  receipt.PaymentID,
		Settlement: receipt.Settlement,
	})
}

func (s *Server) toGatewayRequest(req paymentRequest) (gateway.Request, error) {
	moduleID, err := processor.ModuleIDFromString(req.ModuleID)
	if err != nil {
		return gateway.Request{}, err
	}
	token, err := processor.TokenFromString(req.Token)
	if err != nil {
		return gateway.Request{}, err
	}
	payer, err := processor.AccountFromString(req.Payer)
	if err != nil {
		return gateway.Request{}, err
	}
	caller, err := processor.AccountFromString(req.Caller)
	if err != nil {
		return gateway.Request{}, err
	}

	nonce := req.Nonce
	if nonce == 0 {
		// Callers that do not track their own freshness values get a random
		// one; retries then never collide with the failed attempt.
		id := uuid.New()
		nonce = binary.BigEndian.Uint64(id[:8])
	}

	var authData []byte
	if req.AuthData != "" {
		authData, err = hex.DecodeString(req.AuthData)
		if err != nil {
			return gateway.Request{}, err
		}
	}

	return gateway.Request{
		ModuleID:      moduleID,
		Token:         token,
		Payer:         payer,
		Caller:        caller,
		Amount:        req.Amount,
		AttachedValue: req.AttachedValue,
		Nonce:         nonce,
		AuthData:      authData,
		Metadata:      req.Metadata,
	}, nil
}

func (s *Server) handlePaymentStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	paymentID := strings.TrimPrefix(r.URL.Path, "/v1/payments/")
	if paymentID == "" {
		http.Error(w, "missing payment id", http.StatusBadRequest)
		return
	}

	status, ok, err := s.gw.GetPaymentStatus(paymentID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "payment not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// handleModules serves /v1/modules/{module}/tokens.
func (s *Server) handleModules(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/v1/modules/"), "/")
	if len(parts) != 2 || parts[1] != "tokens" {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	moduleID, err := processor.ModuleIDFromString(parts[0])
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	tokens, restricted := s.gw.GetSupportedTokens(moduleID)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"restricted": restricted,
		"tokens":     tokens,
	})
}

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	query := r.URL.Query()
	moduleID, err := processor.ModuleIDFromString(query.Get("module"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	from, err := processor.TokenFromString(query.Get("from"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	to, err := processor.TokenFromString(query.Get("to"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	amount, err := strconv.ParseUint(query.Get("amount"), 10, 64)
	if err != nil {
		http.Error(w, "invalid amount", http.StatusBadRequest)
		return
	}

	converted, err := s.gw.ConvertAmount(moduleID, from, to, amount)
	if err != nil {
		writeGatewayError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"converted": converted})
}

type adminRequest struct {
	Admin     string   `json:"admin"`
	ModuleID  string   `json:"module_id"`
	Processor string   `json:"processor"`
	Blob      string   `json:"blob"`
	Chain     []string `json:"chain"`
	Caller    string   `json:"caller"`
	Enabled   bool     `json:"enabled"`
	Allowed   bool     `json:"allowed"`
}

func (s *Server) decodeAdmin(w http.ResponseWriter, r *http.Request) (adminRequest, processor.Account, bool) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return adminRequest{}, processor.Account{}, false
	}
	var req adminRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return adminRequest{}, processor.Account{}, false
	}
	admin, err := processor.AccountFromString(req.Admin)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return adminRequest{}, processor.Account{}, false
	}
	return req, admin, true
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	_, admin, ok := s.decodeAdmin(w, r)
	if !ok {
		return
	}
	if err := s.gw.Pause(admin); err != nil {
		writeGatewayError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "paused"})
}

func (s *Server) handleUnpause(w http.ResponseWriter, r *http.Request) {
	_, admin, ok := s.decodeAdmin(w, r)
	if !ok {
		return
	}
	if err := s.gw.Unpause(admin); err != nil {
		writeGatewayError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "running"})
}

func (s *Server) handleConfigure(w http.ResponseWriter, r *http.Request) {
	req, admin, ok := s.decodeAdmin(w, r)
	if !ok {
		return
	}
	moduleID, err := processor.ModuleIDFromString(req.ModuleID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	blob, err := hex.DecodeString(req.Blob)
	if err != nil {
		http.Error(w, "invalid blob hex", http.StatusBadRequest)
		return
	}
	if err := s.gw.ConfigureProcessor(admin, req.Processor, moduleID, blob); err != nil {
		writeGatewayError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "configured"})
}

func (s *Server) handleOrder(w http.ResponseWriter, r *http.Request) {
	req, admin, ok := s.decodeAdmin(w, r)
	if !ok {
		return
	}
	moduleID, err := processor.ModuleIDFromString(req.ModuleID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.gw.UpdateProcessorOrder(admin, moduleID, req.Chain); err != nil {
		writeGatewayError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reordered"})
}

func (s *Server) handleEnable(w http.ResponseWriter, r *http.Request) {
	req, admin, ok := s.decodeAdmin(w, r)
	if !ok {
		return
	}
	moduleID, err := processor.ModuleIDFromString(req.ModuleID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.gw.SetProcessorEnabled(admin, moduleID, req.Processor, req.Enabled); err != nil {
		writeGatewayError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (s *Server) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	req, admin, ok := s.decodeAdmin(w, r)
	if !ok {
		return
	}
	moduleID, err := processor.ModuleIDFromString(req.ModuleID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	caller, err := processor.AccountFromString(req.Caller)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.gw.SetModuleAuthorization(admin, moduleID, caller, req.Allowed); err != nil {
		writeGatewayError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func writeGatewayError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, gateway.ErrInvalidAmount),
		errors.Is(err, gateway.ErrInsufficientValue),
		errors.Is(err, processor.ErrAmountTooLarge),
		errors.Is(err, processor.ErrInvalidConfigLength),
		errors.Is(err, processor.ErrFeeTooHigh),
		errors.Is(err, processor.ErrInvalidParameter):
		status = http.StatusBadRequest
	case errors.Is(err, gateway.ErrForbidden), errors.Is(err, gateway.ErrNotAdmin):
		status = http.StatusForbidden
	case errors.Is(err, gateway.ErrAlreadyProcessed):
		status = http.StatusConflict
	case errors.Is(err, gateway.ErrEnforcedPause):
		status = http.StatusServiceUnavailable
	case errors.Is(err, processor.ErrStageFailed),
		errors.Is(err, gateway.ErrTransferFailed):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, processor.ErrProcessorNotFound),
		errors.Is(err, processor.ErrPairNotSupported):
		status = http.StatusNotFound
	}
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Server: error encoding response: %v", err)
	}
}
