package rpc

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"dogxsale/core/events"
	"dogxsale/core/types"
	"dogxsale/native/presale"
	"dogxsale/observability"
	"dogxsale/observability/logging"
)

const (
	jsonRPCVersion   = "2.0"
	maxRequestBytes  = 1 << 20 // 1 MiB
	rateLimitWindow  = time.Minute
	maxBuysPerWindow = 30
	recentEventCap   = 256
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
	codeNotFound       = -32004
	codeInvalidState   = -32011
	codeRateLimited    = -32020
)

type rateLimiter struct {
	count       int
	windowStart time.Time
}

// Server exposes the sale engine over JSON-RPC. Admin methods require the
// bearer token from DGX_RPC_TOKEN; purchase submissions are rate limited per
// source address.
type Server struct {
	engine *presale.Engine
	ledger *presale.Ledger
	log    *slog.Logger

	mu           sync.Mutex
	rateLimiters map[string]*rateLimiter
	recentEvents []*types.Event
	authToken    string
}

// NewServer wires the engine and ledger into a JSON-RPC server. The auth
// token is read from the DGX_RPC_TOKEN environment variable.
func NewServer(engine *presale.Engine, ledger *presale.Ledger, log *slog.Logger) *Server {
	token := strings.TrimSpace(os.Getenv("DGX_RPC_TOKEN"))
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		engine:       engine,
		ledger:       ledger,
		log:          log,
		rateLimiters: make(map[string]*rateLimiter),
		authToken:    token,
	}
}

// SetAuthToken overrides the bearer token. Empty disables admin methods.
func (s *Server) SetAuthToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authToken = strings.TrimSpace(token)
}

// Emit implements events.Emitter: the server keeps a bounded buffer of recent
// sale events for the presale_listEvents query.
func (s *Server) Emit(evt events.Event) {
	if s == nil || evt == nil {
		return
	}
	observability.Events().RecordEvent(evt.EventType())
	payload, ok := evt.(interface{ Event() *types.Event })
	if !ok || payload.Event() == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recentEvents = append(s.recentEvents, payload.Event())
	if len(s.recentEvents) > recentEventCap {
		s.recentEvents = s.recentEvents[len(s.recentEvents)-recentEventCap:]
	}
}

// Start serves the RPC endpoint until the listener fails.
func (s *Server) Start(addr string) error {
	s.log.Info("starting JSON-RPC server", "addr", addr)
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handle)
	return http.ListenAndServe(addr, mux)
}

// Handler returns the HTTP handler so callers can mount the server on their
// own listener.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(s.handle)
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      int               `json:"id"`
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

// engineError maps engine sentinel errors onto HTTP statuses and RPC codes.
func engineError(err error) (int, int) {
	switch {
	case errors.Is(err, presale.ErrUnauthorized):
		return http.StatusForbidden, codeUnauthorized
	case errors.Is(err, presale.ErrNotFound), errors.Is(err, presale.ErrUserNotFound):
		return http.StatusNotFound, codeNotFound
	case errors.Is(err, presale.ErrInvalidAmount),
		errors.Is(err, presale.ErrInvalidPrice),
		errors.Is(err, presale.ErrExactPaymentRequired):
		return http.StatusBadRequest, codeInvalidParams
	case errors.Is(err, presale.ErrAlreadyExists),
		errors.Is(err, presale.ErrAlreadyLive),
		errors.Is(err, presale.ErrNotLive),
		errors.Is(err, presale.ErrSaleEnded),
		errors.Is(err, presale.ErrSaleNotEnded),
		errors.Is(err, presale.ErrAlreadyEnded),
		errors.Is(err, presale.ErrAlreadySettled),
		errors.Is(err, presale.ErrSoftCapNotReached),
		errors.Is(err, presale.ErrSoftCapReached),
		errors.Is(err, presale.ErrHardCapExceeded),
		errors.Is(err, presale.ErrExceedsDeposit),
		errors.Is(err, presale.ErrCustodyNotEmpty),
		errors.Is(err, presale.ErrInsufficientBalance):
		return http.StatusConflict, codeInvalidState
	default:
		return http.StatusInternalServerError, codeServerError
	}
}

func writeEngineError(w http.ResponseWriter, id interface{}, err error) {
	status, code := engineError(err)
	writeError(w, status, id, code, err.Error(), nil)
}

// handle is the main request handler that routes to specific handlers.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	w.Header().Set("Content-Type", "application/json")

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}

	recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	s.dispatch(recorder, r, req)
	observability.RPCMetrics().Observe(req.Method, recorder.status, time.Since(started))
}

func (s *Server) dispatch(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	switch req.Method {
	case "presale_create":
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		s.handleCreate(w, r, req)
	case "presale_deposit":
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		s.handleDeposit(w, r, req)
	case "presale_start":
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		s.handleStart(w, r, req)
	case "presale_end":
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		s.handleEnd(w, r, req)
	case "presale_withdrawRaised":
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		s.handleWithdrawRaised(w, r, req)
	case "presale_withdrawUnsold":
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		s.handleWithdrawUnsold(w, r, req)
	case "presale_close":
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		s.handleClose(w, r, req)
	case "presale_buy":
		if !s.allowSource(clientSource(r), time.Now()) {
			observability.RPCMetrics().RecordThrottle(req.Method, "rate_limit")
			s.log.Warn("purchase throttled",
				"method", req.Method,
				logging.MaskField("source", clientSource(r)))
			writeError(w, http.StatusTooManyRequests, req.ID, codeRateLimited, "purchase rate limit exceeded", nil)
			return
		}
		s.handleBuy(w, r, req)
	case "presale_claim":
		s.handleClaim(w, r, req)
	case "presale_refund":
		s.handleRefund(w, r, req)
	case "presale_get":
		s.handleGetSale(w, r, req)
	case "presale_getUser":
		s.handleGetUser(w, r, req)
	case "presale_listBuyers":
		s.handleListBuyers(w, r, req)
	case "presale_listEvents":
		s.handleListEvents(w, r, req)
	default:
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("unknown method %s", req.Method), nil)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) requireAuth(r *http.Request) *RPCError {
	s.mu.Lock()
	token := s.authToken
	s.mu.Unlock()
	if token == "" {
		return &RPCError{Code: codeUnauthorized, Message: "RPC authentication token not configured"}
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing Authorization header"}
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return &RPCError{Code: codeUnauthorized, Message: "Authorization header must use Bearer scheme"}
	}
	supplied := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if supplied == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing bearer token"}
	}
	if subtle.ConstantTimeCompare([]byte(supplied), []byte(token)) != 1 {
		return &RPCError{Code: codeUnauthorized, Message: "invalid RPC credentials"}
	}
	return nil
}

func (s *Server) allowSource(source string, now time.Time) bool {
	if source == "" {
		source = "unknown"
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	limiter, ok := s.rateLimiters[source]
	if !ok {
		limiter = &rateLimiter{windowStart: now}
		s.rateLimiters[source] = limiter
	}
	if now.Sub(limiter.windowStart) >= rateLimitWindow {
		limiter.windowStart = now
		limiter.count = 0
	}
	if limiter.count >= maxBuysPerWindow {
		return false
	}
	limiter.count++
	return true
}

func clientSource(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			candidate := strings.TrimSpace(parts[0])
			if candidate != "" {
				return candidate
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
