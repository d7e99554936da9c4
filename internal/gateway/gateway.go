// ABOUTME: Gateway orchestrator that wires the store, hub, and HTTP server
// ABOUTME: Manages startup, routing, and graceful shutdown

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/talentlink/chat-gateway/internal/auth"
	"github.com/talentlink/chat-gateway/internal/config"
	"github.com/talentlink/chat-gateway/internal/hub"
	"github.com/talentlink/chat-gateway/internal/presence"
	"github.com/talentlink/chat-gateway/internal/store"
)

// Gateway orchestrates the chat-gateway server components: the SQLite store,
// the realtime hub, and the HTTP server carrying both the REST API and the
// websocket endpoint.
type Gateway struct {
	config     *config.Config
	store      store.Store
	presence   *presence.Tracker
	hub        *hub.Hub
	verifier   auth.TokenVerifier
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a gateway backed by the SQLite store at the configured path.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	return newGateway(cfg, st, logger), nil
}

// newGateway wires the components around an already-open store.
// Split out so tests can inject a mock store.
func newGateway(cfg *config.Config, st store.Store, logger *slog.Logger) *Gateway {
	tracker := presence.NewTracker(logger)

	g := &Gateway{
		config:   cfg,
		store:    st,
		presence: tracker,
		hub:      hub.New(st, tracker, logger),
		verifier: auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret)),
		logger:   logger.With("component", "gateway"),
	}

	corsWrapper := cors.New(cors.Options{
		AllowedOrigins:   cfg.Realtime.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})

	g.httpServer = &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: corsWrapper.Handler(g.Router()),
	}

	return g
}

// Router builds the HTTP routes: a health endpoint, the websocket endpoint,
// and the authenticated REST API under /api.
func (g *Gateway) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", g.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/ws", g.handleWebSocket).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(auth.HTTPAuthMiddleware(g.verifier))
	api.HandleFunc("/conversations", g.handleCreateConversation).Methods(http.MethodPost)
	api.HandleFunc("/conversations", g.handleListConversations).Methods(http.MethodGet)
	api.HandleFunc("/conversations/{id}/messages", g.handleConversationMessages).Methods(http.MethodGet)
	api.HandleFunc("/messages/{id}/read", g.handleMarkMessageRead).Methods(http.MethodPut)

	return r
}

// Run starts the HTTP server and blocks until the context is cancelled or the
// server fails.
func (g *Gateway) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("http server listening", "addr", g.httpServer.Addr)
		if err := g.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		g.logger.Info("shutdown signal received")
	case serverErr = <-errCh:
		g.logger.Error("http server failed", "error", serverErr)
	}

	shutdownErr := g.gracefulShutdown()
	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() intentionally since the original context is already canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := g.httpServer.Shutdown(ctx)
	g.hub.Close()
	if closeErr := g.store.Close(); err == nil {
		err = closeErr
	}
	return err
}

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status":"ok","connected_channels":%d,"online_users":%d}`,
		g.hub.ConnectedChannels(), g.presence.OnlineCount())
}
