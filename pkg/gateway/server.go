// Package gateway exposes the orchestrator over HTTP: routing and execution
// endpoints, session administration, health probes, Prometheus metrics, and a
// WebSocket event stream.
package gateway

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"

	"github.com/orquestra-labs/orquestra/internal/metrics"
	"github.com/orquestra-labs/orquestra/pkg/breaker"
	"github.com/orquestra-labs/orquestra/pkg/history"
	"github.com/orquestra-labs/orquestra/pkg/orchestrator"
	"github.com/orquestra-labs/orquestra/pkg/registry"
	"github.com/orquestra-labs/orquestra/pkg/router"
	"github.com/orquestra-labs/orquestra/pkg/store"
)

// Config holds server configuration and the wired components.
type Config struct {
	Host            string
	Port            int
	APIKey          string // when set, mutating endpoints require X-API-Key
	Router          *router.IntentRouter
	Registry        *registry.Registry
	Breaker         *breaker.Breaker
	Orchestrator    *orchestrator.Orchestrator
	History         *history.History
	Store           store.KeyValue
	ClassifierReady bool // whether an LLM credential was configured
	Metrics         *metrics.Metrics
	Logger          zerolog.Logger
}

// Server is the HTTP and WebSocket front of the orchestrator.
type Server struct {
	host            string
	port            int
	apiKey          string
	router          *router.IntentRouter
	registry        *registry.Registry
	breaker         *breaker.Breaker
	orchestrator    *orchestrator.Orchestrator
	history         *history.History
	store           store.KeyValue
	classifierReady bool
	metrics         *metrics.Metrics
	logger          zerolog.Logger

	server      *http.Server
	upgrader    websocket.Upgrader
	broadcaster *EventBroadcaster

	isShuttingDown bool
	shutdownMu     sync.RWMutex
}

// NewServer creates a new Server.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Port <= 0 {
		return nil, fmt.Errorf("invalid port: %d", cfg.Port)
	}
	if cfg.Router == nil {
		return nil, fmt.Errorf("router is required")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if cfg.Breaker == nil {
		return nil, fmt.Errorf("breaker is required")
	}
	if cfg.Orchestrator == nil {
		return nil, fmt.Errorf("orchestrator is required")
	}
	if cfg.History == nil {
		return nil, fmt.Errorf("history is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}

	return &Server{
		host:            cfg.Host,
		port:            cfg.Port,
		apiKey:          cfg.APIKey,
		router:          cfg.Router,
		registry:        cfg.Registry,
		breaker:         cfg.Breaker,
		orchestrator:    cfg.Orchestrator,
		history:         cfg.History,
		store:           cfg.Store,
		classifierReady: cfg.ClassifierReady,
		metrics:         cfg.Metrics,
		logger:          cfg.Logger,
		broadcaster:     NewEventBroadcaster(cfg.Logger, cfg.Metrics),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}, nil
}

// Handler builds the full route table. Exposed so tests can drive the server
// through httptest without binding a port.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/route", s.requireAPIKey(s.handleRoute))
	mux.HandleFunc("/execute", s.requireAPIKey(s.handleExecute))
	mux.HandleFunc("/orchestrate", s.requireAPIKey(s.handleOrchestrate))
	mux.HandleFunc("/admin/clear_session", s.requireAPIKey(s.handleClearSession))
	mux.HandleFunc("/graph/mermaid", s.handleGraphMermaid)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ready", s.handleReady)
	mux.HandleFunc("/ws", s.handleWebSocket)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics.Handler())
	}

	return s.withRequestID(mux)
}

// Start begins serving in a background goroutine.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.host, s.port),
		Handler: s.Handler(),
	}

	s.logger.Info().Str("host", s.host).Int("port", s.port).Msg("Starting gateway server")

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Gateway server error")
		}
	}()

	return nil
}

// Stop gracefully stops the server and disconnects WebSocket clients.
func (s *Server) Stop() error {
	s.shutdownMu.Lock()
	s.isShuttingDown = true
	s.shutdownMu.Unlock()

	s.logger.Info().Msg("Shutting down gateway server")

	s.broadcaster.Broadcast("server.shutdown", map[string]interface{}{
		"message": "Server is shutting down",
	})
	s.broadcaster.CloseAll()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown server: %w", err)
		}
	}

	s.logger.Info().Msg("Gateway server stopped")
	return nil
}

// Broadcaster exposes the event stream for other components.
func (s *Server) Broadcaster() *EventBroadcaster {
	return s.broadcaster
}

// withRequestID propagates a caller-supplied X-Request-Id or mints one.
func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-Id")
		if reqID == "" {
			reqID = uuid.New().String()
		}
		w.Header().Set("X-Request-Id", reqID)

		logger := s.logger.With().Str("request_id", reqID).Logger()
		r = r.WithContext(logger.WithContext(r.Context()))

		next.ServeHTTP(w, r)
	})
}

// requireAPIKey guards mutating endpoints when an API key is configured.
func (s *Server) requireAPIKey(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey != "" && r.Header.Get("X-API-Key") != s.apiKey {
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid or missing API key")
			return
		}
		next(w, r)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady reports whether the store answers and a classifier credential
// is present. Either missing makes the service not ready.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	storeStatus := "ok"
	ready := true
	if err := s.store.Ping(ctx); err != nil {
		storeStatus = err.Error()
		ready = false
	}

	classifierStatus := "ok"
	if !s.classifierReady {
		classifierStatus = "no credential configured"
		ready = false
	}

	status := http.StatusOK
	body := map[string]string{
		"status":     "ready",
		"store":      storeStatus,
		"classifier": classifierStatus,
	}
	if !ready {
		status = http.StatusServiceUnavailable
		body["status"] = "not ready"
	}
	writeJSON(w, status, body)
}

func (s *Server) handleGraphMermaid(w http.ResponseWriter, _ *http.Request) {
	diagram := s.orchestrator.Mermaid()
	if diagram == "" {
		writeError(w, http.StatusServiceUnavailable, "graph_unavailable", "orchestration graph failed to build")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(diagram))
}

// handleWebSocket upgrades the connection and registers it with the
// broadcaster. Inbound frames are drained and discarded; the stream is
// one-way.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.shutdownMu.RLock()
	if s.isShuttingDown {
		s.shutdownMu.RUnlock()
		http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
		return
	}
	s.shutdownMu.RUnlock()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}

	clientID, _ := gonanoid.New()
	client := &wsClient{id: clientID, conn: conn}
	s.broadcaster.add(client)

	s.logger.Info().Str("client_id", clientID).Str("ip", r.RemoteAddr).Msg("Client connected")

	go func() {
		defer func() {
			conn.Close()
			s.broadcaster.remove(clientID)
			s.logger.Info().Str("client_id", clientID).Msg("Client disconnected")
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					s.logger.Warn().Err(err).Str("client_id", clientID).Msg("WebSocket error")
				}
				return
			}
		}
	}()
}
