package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"claimlink/core"
	"claimlink/rpc/middleware"
)

const defaultMaxBodyBytes = 1 << 20

type ServerConfig struct {
	Auth           middleware.AuthConfig
	RateLimit      middleware.RateLimit
	AllowedOrigins []string
	MaxBodyBytes   int64
	ServiceName    string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
}

type handlerFunc func(w http.ResponseWriter, r *http.Request, req *RPCRequest)

// Server exposes a Node over JSON-RPC and streams its events over websocket.
type Server struct {
	node    *core.Node
	cfg     ServerConfig
	logger  *slog.Logger
	auth    *middleware.Authenticator
	limiter *middleware.RateLimiter
	obs     *middleware.Observability
	methods map[string]handlerFunc

	serverMu   sync.Mutex
	httpServer *http.Server
}

func NewServer(node *core.Node, cfg ServerConfig, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 15 * time.Second
	}
	s := &Server{
		node:    node,
		cfg:     cfg,
		logger:  logger,
		auth:    middleware.NewAuthenticator(cfg.Auth, logger),
		limiter: middleware.NewRateLimiter(cfg.RateLimit, logger),
		obs:     middleware.NewObservability(cfg.ServiceName, logger),
	}
	s.methods = map[string]handlerFunc{
		"claimlink_deposit":                  s.handleDeposit,
		"claimlink_depositNFT":               s.handleDepositNFT,
		"claimlink_depositWithAuthorization": s.handleDepositWithAuthorization,
		"claimlink_redeem":                   s.handleRedeem,
		"claimlink_redeemRecovered":          s.handleRedeemRecovered,
		"claimlink_refund":                   s.handleRefund,
		"claimlink_withdrawAccruedFees":      s.handleWithdrawAccruedFees,
		"claimlink_transferOwnership":        s.handleTransferOwnership,
		"claimlink_getDeposit":               s.handleGetDeposit,
		"claimlink_accruedFees":              s.handleAccruedFees,
		"claimlink_quoteFee":                 s.handleQuoteFee,
		"claimlink_listEvents":               s.handleListEvents,
		"claimlink_domain":                   s.handleDomain,
		"claimlink_stateRoot":                s.handleStateRoot,
		"asset_list":                         s.handleAssetList,
		"asset_balanceOf":                    s.handleAssetBalanceOf,
		"asset_approve":                      s.handleAssetApprove,
		"asset_setApprovalForAll":            s.handleAssetSetApprovalForAll,
		"asset_transfer":                     s.handleAssetTransfer,
	}
	return s
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.CORS(middleware.CORSConfig{AllowedOrigins: s.cfg.AllowedOrigins}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(gr chi.Router) {
		gr.Use(s.limiter.Middleware)
		gr.Use(s.auth.Middleware)
		gr.With(s.obs.Middleware("jsonrpc")).Post("/", s.handle)
		gr.With(s.obs.Middleware("ws_events")).Get("/ws/events", s.handleEventsWS)
	})
	return r
}

// Serve accepts connections on listener until Shutdown is called.
func (s *Server) Serve(listener net.Listener) error {
	srv := &http.Server{
		Handler:           otelhttp.NewHandler(s.Handler(), s.serviceName()),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
	}
	s.serverMu.Lock()
	s.httpServer = srv
	s.serverMu.Unlock()
	s.logger.Info("json-rpc server listening", slog.String("address", listener.Addr().String()))
	if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.serverMu.Lock()
	srv := s.httpServer
	s.serverMu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func (s *Server) serviceName() string {
	if s.cfg.ServiceName == "" {
		return "claimlinkd"
	}
	return s.cfg.ServiceName
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
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
			message = fmt.Sprintf("request body exceeds %d bytes", s.cfg.MaxBodyBytes)
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
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("method %s not found", req.Method), nil)
		return
	}
	handler(w, r, req)
}
