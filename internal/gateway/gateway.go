// ABOUTME: Gateway wires the store, completion client, engine and HTTP server together
// ABOUTME: Manages the HTTP listener lifecycle and ordered shutdown of the engine and store

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/yuin/goldmark"
	"golang.org/x/sync/errgroup"

	"github.com/2389/chorus/internal/auth"
	"github.com/2389/chorus/internal/completion"
	"github.com/2389/chorus/internal/config"
	"github.com/2389/chorus/internal/conversation"
	"github.com/2389/chorus/internal/dedupe"
	"github.com/2389/chorus/internal/orchestrator"
	"github.com/2389/chorus/internal/store"
)

// sseHeartbeatInterval keeps idle event streams from being closed by proxies.
const sseHeartbeatInterval = 30 * time.Second

// Idempotency-Key replay window and capacity.
const (
	idempotencyTTL     = 10 * time.Minute
	idempotencyMaxKeys = 10_000
)

// Gateway serves the chorus HTTP API in front of the turn engine.
type Gateway struct {
	config       *config.Config
	store        store.Store
	engine       *orchestrator.Engine
	conversation *conversation.Service
	broadcaster  *conversation.EventBroadcaster
	httpServer   *http.Server
	markdown     goldmark.Markdown
	logger       *slog.Logger

	// idempotency replays sends retried with the same Idempotency-Key
	idempotency *dedupe.Cache[*pendingSend]

	heartbeat time.Duration
}

// New creates a Gateway from configuration: SQLite store, HTTP completion
// client and an engine using the configured timing.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("creating store: %w", err)
	}

	client := completion.NewClient(cfg.Completion.URL,
		completion.WithHeaders(cfg.Completion.Headers),
		completion.WithLogger(logger),
	)

	return newGateway(cfg, s, client, logger), nil
}

// newGateway assembles a Gateway around an existing store and completer.
func newGateway(cfg *config.Config, s store.Store, completer completion.Completer, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}

	broadcaster := conversation.NewEventBroadcaster(logger)
	hub := conversation.NewHub(s, broadcaster, logger)
	engine := orchestrator.New(completer, hub,
		orchestrator.WithTiming(cfg.Engine.Timing()),
		orchestrator.WithLogger(logger),
	)

	gw := &Gateway{
		config:       cfg,
		store:        s,
		engine:       engine,
		conversation: conversation.New(s, engine, broadcaster, logger),
		broadcaster:  broadcaster,
		markdown:     goldmark.New(),
		logger:       logger.With("component", "gateway"),
		heartbeat:    sseHeartbeatInterval,
		idempotency:  dedupe.New[*pendingSend](idempotencyTTL, idempotencyMaxKeys, time.Minute),
	}

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           gw.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	// Closing subscriber channels ends open event streams so Shutdown does not wait on them
	gw.httpServer.RegisterOnShutdown(broadcaster.Close)

	return gw
}

// routes registers every HTTP endpoint. With a JWT secret configured the
// /api/ tree requires a bearer token; /health stays open.
func (g *Gateway) routes() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("POST /api/conversations", g.handleCreateConversation)
	api.HandleFunc("GET /api/conversations", g.handleListConversations)
	api.HandleFunc("GET /api/conversations/{id}", g.handleGetConversation)
	api.HandleFunc("DELETE /api/conversations/{id}", g.handleDeleteConversation)
	api.HandleFunc("POST /api/conversations/{id}/messages", g.handleSendMessage)
	api.HandleFunc("POST /api/conversations/{id}/continue", g.handleContinue)
	api.HandleFunc("PUT /api/conversations/{id}/notifications", g.handleSetNotifications)
	api.HandleFunc("PUT /api/active", g.handleSetActive)
	api.HandleFunc("GET /api/events", g.handleEvents)

	var apiHandler http.Handler = api
	if secret := g.config.Auth.JWTSecret; secret != "" {
		apiHandler = auth.Middleware(auth.NewJWTVerifier([]byte(secret)))(api)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", g.handleHealth)
	mux.Handle("/api/", apiHandler)
	return mux
}

// Run starts the HTTP server and blocks until the context is canceled.
// Returns nil on graceful shutdown, or an error if the server fails.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
	}
	return g.Serve(ctx, ln)
}

// Serve runs the HTTP server on ln until ctx is canceled or the server fails,
// then shuts everything down.
func (g *Gateway) Serve(ctx context.Context, ln net.Listener) error {
	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("server error", "error", err)
			return fmt.Errorf("HTTP server: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-egCtx.Done()
		if ctx.Err() != nil {
			g.logger.Info("context canceled, initiating shutdown")
		}
		return g.gracefulShutdown()
	})

	return eg.Wait()
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() since the original context is already canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown stops accepting requests, then stops the engine so no callback
// reaches the store after it is closed.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))

	g.engine.Shutdown()
	g.broadcaster.Close()
	g.idempotency.Close()

	errs = appendCloseError(errs, "store close", g.store.Close())

	return errors.Join(errs...)
}
