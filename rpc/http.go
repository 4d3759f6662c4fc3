package rpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"gildchain/native/ledger"
	"gildchain/observability/metrics"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
	codeRateLimited    = -32020

	codeRateCanOnlyDecrease = -32030
	codeInsufficientBalance = -32031
	codeInsufficientAllowed = -32032
	codeClockRegression     = -32033
)

// Server exposes the ledger engine over JSON-RPC 2.0.
type Server struct {
	engine *ledger.Engine
	log    *slog.Logger
	auth   *Authenticator

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	perMin   int

	methods map[string]route
}

// NewServer constructs an RPC server backed by the ledger engine. The
// authenticator gates every write method; read methods are open.
func NewServer(engine *ledger.Engine, auth *Authenticator, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		engine:   engine,
		log:      logger,
		auth:     auth,
		limiters: make(map[string]*rate.Limiter),
		perMin:   120,
	}
	s.methods = s.routes()
	return s
}

// SetRateLimit overrides how many write requests a source may issue per minute.
func (s *Server) SetRateLimit(perMin int) {
	if s == nil || perMin <= 0 {
		return
	}
	s.perMin = perMin
}

// Handler returns the http handler serving the RPC endpoint.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handle)
	return mux
}

// Start serves the RPC endpoint on addr until the listener fails.
func (s *Server) Start(addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.log.Info("rpc server listening", "addr", addr)
	return server.ListenAndServe()
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

func (s *Server) limiterFor(source string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	limiter, ok := s.limiters[source]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(s.perMin)), s.perMin)
		s.limiters[source] = limiter
	}
	return limiter
}

func clientSource(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// handle is the main request handler that routes to specific handlers.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	w.Header().Set("Content-Type", "application/json")
	requestID := uuid.NewString()

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

	handler, ok := s.methods[req.Method]
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "method not found", req.Method)
		return
	}

	var caller []byte
	if handler.write {
		if !s.limiterFor(clientSource(r)).Allow() {
			writeError(w, http.StatusTooManyRequests, req.ID, codeRateLimited, "rate limit exceeded", nil)
			metrics.Ledger().ObserveRequest(req.Method, true)
			return
		}
		identity, authErr := s.auth.Authenticate(r, handler.capability)
		if authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, codeUnauthorized, authErr.Error(), nil)
			metrics.Ledger().ObserveRequest(req.Method, true)
			return
		}
		caller = identity
	}

	result, rpcErr := handler.fn(caller, req.Params)
	if rpcErr != nil {
		s.log.Warn("rpc request failed",
			"requestId", requestID,
			"method", req.Method,
			"code", rpcErr.Code,
			"error", rpcErr.Message,
		)
		writeError(w, httpStatusFor(rpcErr.Code), req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		metrics.Ledger().ObserveRequest(req.Method, true)
		return
	}
	s.log.Debug("rpc request served", "requestId", requestID, "method", req.Method)
	metrics.Ledger().ObserveRequest(req.Method, false)
	writeResult(w, req.ID, result)
}

func httpStatusFor(code int) int {
	switch code {
	case codeUnauthorized:
		return http.StatusUnauthorized
	case codeMethodNotFound:
		return http.StatusNotFound
	case codeRateLimited:
		return http.StatusTooManyRequests
	case codeServerError:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

// errorFor maps ledger sentinels to JSON-RPC error objects.
func errorFor(err error) *RPCError {
	switch {
	case errors.Is(err, ledger.ErrRateCanOnlyDecrease):
		return &RPCError{Code: codeRateCanOnlyDecrease, Message: err.Error()}
	case errors.Is(err, ledger.ErrInsufficientBalance):
		return &RPCError{Code: codeInsufficientBalance, Message: err.Error()}
	case errors.Is(err, ledger.ErrInsufficientAllowance):
		return &RPCError{Code: codeInsufficientAllowed, Message: err.Error()}
	case errors.Is(err, ledger.ErrClockRegression):
		return &RPCError{Code: codeClockRegression, Message: err.Error()}
	case errors.Is(err, ledger.ErrUnauthorized):
		return &RPCError{Code: codeUnauthorized, Message: err.Error()}
	case errors.Is(err, ledger.ErrInvalidAmount), errors.Is(err, ledger.ErrRateNotInitialized):
		return &RPCError{Code: codeInvalidParams, Message: err.Error()}
	default:
		return &RPCError{Code: codeServerError, Message: err.Error()}
	}
}
