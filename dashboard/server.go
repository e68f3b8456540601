// Package dashboard serves a read-only HTTP view of the wallet: portfolios,
// quotes, the journaled ledger history as an SSE stream and live ledger
// events over websocket.
package dashboard

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/rs/cors"
	"go.uber.org/zap"
	"golang.org/x/crypto/acme/autocert"

	"github.com/vadiminshakov/carteira/internal/domain"
)

const (
	defaultPollInterval = 2 * time.Second
	defaultHeartbeat    = 20 * time.Second
	defaultOrigin       = "http://localhost:3000"
)

type wallet interface {
	Portfolio(ctx context.Context, identity string) (domain.Portfolio, error)
	Quotes(ctx context.Context) (domain.Quotes, error)
}

type eventLog interface {
	Replay(seq uint64) ([]domain.LedgerEventRecord, error)
}

type eventFeed interface {
	Subscribe() <-chan domain.LedgerEvent
	Unsubscribe(sub <-chan domain.LedgerEvent)
}

// Server exposes the wallet over HTTP. It never mutates the ledger.
type Server struct {
	Addr           string
	AllowedOrigins []string

	wallet       wallet
	events       eventLog
	hub          *Hub
	logger       *zap.Logger
	pollInterval time.Duration
	heartbeat    time.Duration
}

// Option configures a Server.
type Option func(*Server)

// WithPollInterval sets how often the SSE stream polls the journal.
func WithPollInterval(d time.Duration) Option {
	return func(s *Server) { s.pollInterval = d }
}

// WithHeartbeat sets the SSE keep-alive comment interval.
func WithHeartbeat(d time.Duration) Option {
	return func(s *Server) { s.heartbeat = d }
}

// WithAllowedOrigins sets the origins allowed to call the API and open websockets.
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) { s.AllowedOrigins = origins }
}

// NewServer creates a dashboard server. events may be nil when the journal is disabled.
func NewServer(addr string, w wallet, events eventLog, feed eventFeed, logger *zap.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		Addr:         addr,
		wallet:       w,
		events:       events,
		hub:          NewHub(feed, logger),
		logger:       logger,
		pollInterval: defaultPollInterval,
		heartbeat:    defaultHeartbeat,
	}
	for _, opt := range opts {
		opt(s)
	}
	if len(s.AllowedOrigins) == 0 {
		s.AllowedOrigins = []string{defaultOrigin}
	}
	return s
}

// Hub returns the websocket hub fed by live ledger events.
func (s *Server) Hub() *Hub { return s.hub }

// Handler returns the routed API wrapped with CORS and gzip.
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()

	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(gzipMiddleware)
	api.HandleFunc("/accounts/{identity}/portfolio", s.handlePortfolio).Methods(http.MethodGet)
	api.HandleFunc("/quotes", s.handleQuotes).Methods(http.MethodGet)
	api.HandleFunc("/events", s.handleEvents).Methods(http.MethodGet)

	// streams stay uncompressed so every event is flushed as it is written
	router.HandleFunc("/api/v1/events/stream", s.handleEventStream).Methods(http.MethodGet)
	router.HandleFunc("/ws", s.handleWebSocket)
	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	c := cors.New(cors.Options{
		AllowedOrigins: s.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Last-Event-ID"},
	})
	return c.Handler(router)
}

// Start runs the HTTP server (blocking) and shuts it down when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	go s.hub.Run(ctx)

	server := &http.Server{
		Addr:              s.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	go s.shutdownOnDone(ctx, server)

	s.logger.Info("dashboard listening", zap.String("addr", s.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// StartWithAutoTLS runs an HTTPS server with automatic TLS certificates via ACME.
// It also starts an HTTP server on port 80 to handle ACME HTTP-01 challenges.
func (s *Server) StartWithAutoTLS(ctx context.Context, domains []string, cacheDir string) error {
	if len(domains) == 0 {
		return fmt.Errorf("no domains provided for automatic TLS")
	}
	if cacheDir == "" {
		cacheDir = "cert-cache"
	}
	go s.hub.Run(ctx)

	manager := &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(domains...),
		Cache:      autocert.DirCache(cacheDir),
	}

	httpSrv := &http.Server{
		Addr:              ":80",
		Handler:           manager.HTTPHandler(nil),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	tlsConfig := manager.TLSConfig()
	tlsConfig.MinVersion = tls.VersionTLS12

	httpsSrv := &http.Server{
		Addr:              s.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
		TLSConfig:         tlsConfig,
	}

	go s.shutdownOnDone(ctx, httpSrv)
	go s.shutdownOnDone(ctx, httpsSrv)

	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("acme challenge server stopped", zap.Error(err))
		}
	}()

	s.logger.Info("dashboard listening with auto TLS",
		zap.String("addr", s.Addr), zap.Strings("domains", domains))
	if err := httpsSrv.ListenAndServeTLS("", ""); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) shutdownOnDone(ctx context.Context, server *http.Server) {
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Warn("server shutdown error", zap.String("addr", server.Addr), zap.Error(err))
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	identity := mux.Vars(r)["identity"]

	p, err := s.wallet.Portfolio(r.Context(), identity)
	if err != nil {
		s.respondError(w, err)
		return
	}

	resp := PortfolioResponse{Portfolio: p}
	quotes, err := s.wallet.Quotes(r.Context())
	if err != nil {
		s.logger.Debug("portfolio valuation skipped", zap.String("identity", identity), zap.Error(err))
	} else {
		total, unpriced := p.Value(quotes)
		resp.Valuation = &Valuation{Fiat: quotes.Fiat, Total: total, Unpriced: unpriced}
	}
	if resp.Holdings == nil {
		resp.Holdings = []domain.Holding{}
	}
	if resp.RecentTransfers == nil {
		resp.RecentTransfers = []domain.Transfer{}
	}

	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleQuotes(w http.ResponseWriter, r *http.Request) {
	quotes, err := s.wallet.Quotes(r.Context())
	if err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, quotes)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		respondJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "journal_disabled"})
		return
	}
	after := parseLastEventID("", r.URL.Query().Get("after"))
	identity := r.URL.Query().Get("identity")

	records, err := s.events.Replay(after)
	if err != nil {
		s.respondError(w, domain.NewPersistenceError("replay journal", err))
		return
	}

	out := make([]domain.LedgerEvent, 0, len(records))
	for _, rec := range records {
		if matchesIdentity(rec.Event, identity) {
			out = append(out, rec.Event)
		}
	}
	respondJSON(w, http.StatusOK, out)
}

// statusOf maps an error kind to the HTTP status reported for it.
func statusOf(err error) int {
	switch domain.Kind(err) {
	case "invalid_identity", "invalid_amount", "below_minimum", "unsupported_asset":
		return http.StatusBadRequest
	case "account_not_found", "recipient_not_found":
		return http.StatusNotFound
	case "quote_unavailable":
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondError(w http.ResponseWriter, err error) {
	status := statusOf(err)
	resp := ErrorResponse{Error: domain.Kind(err)}
	if status == http.StatusInternalServerError {
		s.logger.Error("dashboard request failed", zap.Error(err))
	} else {
		resp.Message = err.Error()
	}
	respondJSON(w, status, resp)
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func matchesIdentity(e domain.LedgerEvent, identity string) bool {
	return identity == "" || e.Identity == identity || e.Counterparty == identity
}
