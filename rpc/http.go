package rpc

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vaultd/native/escrow"
	"vaultd/observability"
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
)

// Server exposes the escrow engine over JSON-RPC 2.0. Requests are HTTP POSTs
// against "/"; health and metrics endpoints ride on the same listener.
type Server struct {
	engine    *escrow.Engine
	log       *slog.Logger
	authToken string
	metrics   *observability.ModuleMetricsRegistry
}

// NewServer constructs an RPC server around the engine. An empty authToken
// falls back to the VAULTD_RPC_TOKEN environment variable; if both are empty,
// mutating methods are open (local development only).
func NewServer(engine *escrow.Engine, logger *slog.Logger, authToken string) *Server {
	token := strings.TrimSpace(authToken)
	if token == "" {
		token = strings.TrimSpace(os.Getenv("VAULTD_RPC_TOKEN"))
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		engine:    engine,
		log:       logger,
		authToken: token,
		metrics:   observability.ModuleMetrics(),
	}
}

// Router assembles the HTTP surface: the JSON-RPC endpoint plus health and
// prometheus scrape targets.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Post("/", s.handle)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// Start blocks serving the RPC surface on addr.
func (s *Server) Start(addr string) error {
	s.log.Info("starting JSON-RPC server", slog.String("addr", addr))
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return srv.ListenAndServe()
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

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, 0, codeParseError, "parse_error", err.Error())
		return
	}
	var req RPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, 0, codeParseError, "parse_error", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "invalid_request", "unsupported jsonrpc version")
		return
	}
	method := strings.TrimSpace(req.Method)
	handler, ok := s.escrowHandlers()[method]
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "method_not_found", fmt.Sprintf("unknown method %q", method))
		return
	}
	if handler.mutating {
		if authErr := s.requireAuth(r); authErr != nil {
			s.metrics.ObserveError(method, "unauthorized")
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
	}
	start := time.Now()
	handler.fn(w, r, &req)
	s.metrics.ObserveRequest(method, "handled", time.Since(start))
}

type rpcHandler struct {
	fn       func(http.ResponseWriter, *http.Request, *RPCRequest)
	mutating bool
}

func (s *Server) requireAuth(r *http.Request) *RPCError {
	if s.authToken == "" {
		return nil
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return &RPCError{Code: codeUnauthorized, Message: "unauthorized", Data: "missing bearer token"}
	}
	supplied := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if subtle.ConstantTimeCompare([]byte(supplied), []byte(s.authToken)) != 1 {
		return &RPCError{Code: codeUnauthorized, Message: "unauthorized", Data: "invalid bearer token"}
	}
	return nil
}

func writeResult(w http.ResponseWriter, id int, result interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result})
}

func writeError(w http.ResponseWriter, status, id, code int, message string, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(RPCResponse{
		JSONRPC: jsonRPCVersion,
		ID:      id,
		Error:   &RPCError{Code: code, Message: message, Data: data},
	})
}
