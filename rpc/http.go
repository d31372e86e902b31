// Package rpc exposes the exchange node over JSON-RPC 2.0 with health and
// metrics endpoints alongside it.
package rpc

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"cipherex/crypto"
	"cipherex/eventstore"
	"cipherex/native/assets"
	"cipherex/native/exchange"
	"cipherex/native/transfer"
	"cipherex/native/whitelist"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB

	rateLimitPerSecond = 25
	rateLimitBurst     = 50
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
	codeNotFound       = -32022
	codeForbidden      = -32023
	codeConflict       = -32024
	codeRateLimited    = -32029
)

// Server dispatches JSON-RPC calls onto the native engines.
type Server struct {
	transfer *transfer.Engine
	exchange *exchange.Engine
	ledger   *assets.Ledger
	events   *eventstore.Store
	logger   *slog.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter

	handlers map[string]func(*RPCRequest) (interface{}, *RPCError)
}

// NewServer wires the engines behind the RPC surface. The event store is
// optional; event queries report not-found when it is absent.
func NewServer(transferEngine *transfer.Engine, exchangeEngine *exchange.Engine, ledger *assets.Ledger, events *eventstore.Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		transfer: transferEngine,
		exchange: exchangeEngine,
		ledger:   ledger,
		events:   events,
		logger:   logger,
		limiters: make(map[string]*rate.Limiter),
	}
	s.handlers = map[string]func(*RPCRequest) (interface{}, *RPCError){
		"transfer_init":               s.handleTransferInit,
		"transfer_draft":              s.handleTransferDraft,
		"transfer_completeDraft":      s.handleTransferCompleteDraft,
		"transfer_setPublicKey":       s.handleTransferSetPublicKey,
		"transfer_approve":            s.handleTransferApprove,
		"transfer_finalize":           s.handleTransferFinalize,
		"transfer_reportFraud":        s.handleTransferReportFraud,
		"transfer_applyFraudDecision": s.handleTransferApplyFraudDecision,
		"transfer_cancel":             s.handleTransferCancel,
		"transfer_get":                s.handleTransferGet,
		"transfer_epoch":              s.handleTransferEpoch,
		"exchange_place":              s.handleExchangePlace,
		"exchange_placeBatch":         s.handleExchangePlaceBatch,
		"exchange_fulfill":            s.handleExchangeFulfill,
		"exchange_fulfillWhitelisted": s.handleExchangeFulfillWhitelisted,
		"exchange_cancel":             s.handleExchangeCancel,
		"exchange_get":                s.handleExchangeGet,
		"assets_createCollection":     s.handleAssetsCreateCollection,
		"assets_mint":                 s.handleAssetsMint,
		"assets_approve":              s.handleAssetsApprove,
		"assets_assignContent":        s.handleAssetsAssignContent,
		"assets_token":                s.handleAssetsToken,
		"events_latest":               s.handleEventsLatest,
		"events_byType":               s.handleEventsByType,
	}
	return s
}

// Router assembles the HTTP surface: /rpc for JSON-RPC, /healthz, /metrics.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/rpc", s.handle)
	return r
}

// Start serves the router on addr and blocks.
func (s *Server) Start(addr string) error {
	s.logger.Info("starting JSON-RPC server", "addr", addr)
	return http.ListenAndServe(addr, s.Router())
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if !s.allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, nil, codeRateLimited, "rate_limited", nil)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	var req RPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "parse_error", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "invalid_request", "unsupported jsonrpc version")
		return
	}
	handler, ok := s.handlers[req.Method]
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "method_not_found", req.Method)
		return
	}
	result, rpcErr := handler(&req)
	if rpcErr != nil {
		s.logger.Warn("rpc call failed", "method", req.Method, "code", rpcErr.Code, "message", rpcErr.Message)
		writeError(w, statusFor(rpcErr.Code), req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	writeResult(w, req.ID, result)
}

func (s *Server) allow(key string) bool {
	s.mu.Lock()
	limiter, ok := s.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(rateLimitPerSecond), rateLimitBurst)
		s.limiters[key] = limiter
	}
	s.mu.Unlock()
	return limiter.Allow()
}

func clientKey(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	host := r.RemoteAddr
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		host = host[:idx]
	}
	return host
}

func statusFor(code int) int {
	switch code {
	case codeInvalidParams, codeParseError, codeInvalidRequest:
		return http.StatusBadRequest
	case codeMethodNotFound, codeNotFound:
		return http.StatusNotFound
	case codeForbidden:
		return http.StatusForbidden
	case codeConflict:
		return http.StatusConflict
	case codeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

func invalidParams(data interface{}) *RPCError {
	return &RPCError{Code: codeInvalidParams, Message: "invalid_params", Data: data}
}

// engineError maps engine sentinels onto RPC error codes.
func engineError(err error) *RPCError {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, transfer.ErrNotFound),
		errors.Is(err, transfer.ErrUnknownCollection),
		errors.Is(err, transfer.ErrAssetNotFound),
		errors.Is(err, exchange.ErrNotFound),
		errors.Is(err, assets.ErrCollectionNotFound),
		errors.Is(err, assets.ErrTokenNotFound):
		return &RPCError{Code: codeNotFound, Message: "not_found", Data: err.Error()}
	case errors.Is(err, transfer.ErrUnauthorized),
		errors.Is(err, exchange.ErrUnauthorized),
		errors.Is(err, assets.ErrUnauthorized):
		return &RPCError{Code: codeForbidden, Message: "forbidden", Data: err.Error()}
	case errors.Is(err, transfer.ErrAlreadyExists),
		errors.Is(err, transfer.ErrInvalidState),
		errors.Is(err, transfer.ErrEpochMismatch),
		errors.Is(err, transfer.ErrNotExpired),
		errors.Is(err, transfer.ErrSalesNotStarted),
		errors.Is(err, transfer.ErrFraudReported),
		errors.Is(err, transfer.ErrFraudNotReported),
		errors.Is(err, transfer.ErrFraudUndecided),
		errors.Is(err, transfer.ErrDeferredDisabled),
		errors.Is(err, exchange.ErrAlreadyExists),
		errors.Is(err, exchange.ErrInvalidState),
		errors.Is(err, exchange.ErrInsufficientFunds),
		errors.Is(err, assets.ErrCollectionExists),
		errors.Is(err, assets.ErrTokenExists):
		return &RPCError{Code: codeConflict, Message: "conflict", Data: err.Error()}
	case errors.Is(err, transfer.ErrEmptyPublicKey),
		errors.Is(err, transfer.ErrEmptySecret),
		errors.Is(err, exchange.ErrInvalidPrice),
		errors.Is(err, exchange.ErrValueMismatch),
		errors.Is(err, exchange.ErrBatchMismatch),
		errors.Is(err, whitelist.ErrInvalidProof),
		errors.Is(err, whitelist.ErrBadSignature),
		errors.Is(err, whitelist.ErrValueMismatch),
		errors.Is(err, whitelist.ErrDiscountTooLarge):
		return invalidParams(err.Error())
	case errors.Is(err, whitelist.ErrExpired),
		errors.Is(err, whitelist.ErrNotConfigured):
		return &RPCError{Code: codeForbidden, Message: "forbidden", Data: err.Error()}
	default:
		return &RPCError{Code: codeServerError, Message: "server_error", Data: err.Error()}
	}
}

func parseBech32Address(raw string) ([20]byte, error) {
	addr, err := crypto.DecodeAddress(strings.TrimSpace(raw))
	if err != nil {
		return [20]byte{}, fmt.Errorf("invalid address %q: %w", raw, err)
	}
	return addr.Bytes(), nil
}

func parsePositiveBigInt(raw string) (*big.Int, error) {
	value, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok {
		return nil, fmt.Errorf("invalid integer %q", raw)
	}
	if value.Sign() <= 0 {
		return nil, fmt.Errorf("amount must be positive")
	}
	return value, nil
}

func parseHexBytes(raw string) ([]byte, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	if trimmed == "" {
		return nil, nil
	}
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("invalid hex payload: %w", err)
	}
	return decoded, nil
}

func parseHash(raw string) ([32]byte, error) {
	var hash [32]byte
	decoded, err := parseHexBytes(raw)
	if err != nil {
		return hash, err
	}
	if len(decoded) == 0 {
		return hash, nil
	}
	if len(decoded) != 32 {
		return hash, fmt.Errorf("expected 32-byte hash, got %d bytes", len(decoded))
	}
	copy(hash[:], decoded)
	return hash, nil
}

func singleParam(req *RPCRequest, out interface{}) *RPCError {
	if len(req.Params) != 1 {
		return invalidParams("exactly one parameter object expected")
	}
	if err := json.Unmarshal(req.Params[0], out); err != nil {
		return invalidParams(err.Error())
	}
	return nil
}
