package web

import (
	"context"
	"fmt"
	"net/http"

	"github.com/vitos/crypto_signal_bot/internal/usecase"
	"go.uber.org/zap"
)

type Server struct {
	router   *http.ServeMux
	server   *http.Server
	executor *usecase.Executor
	store    *usecase.PositionStore
	monitor  *usecase.SignalMonitor
	logger   *zap.Logger
}

func NewServer(
	port int,
	executor *usecase.Executor,
	store *usecase.PositionStore,
	monitor *usecase.SignalMonitor,
	logger *zap.Logger,
) *Server {
	s := &Server{
		router:   http.NewServeMux(),
		executor: executor,
		store:    store,
		monitor:  monitor,
		logger:   logger,
	}
	s.routes()
	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: s.router,
	}
	return s
}

func (s *Server) routes() {
	// Webhook ingestion
	s.router.HandleFunc("POST /webhook", s.handleWebhook)

	// Health
	s.router.HandleFunc("GET /health", s.handleHealth)

	// Signal audit trail
	s.router.HandleFunc("GET /api/signals/status", s.handleSignalStatus)
	s.router.HandleFunc("GET /api/signals/recent", s.handleRecentSignals)

	// Open positions
	s.router.HandleFunc("GET /api/positions", s.handlePositions)
}

// Handler exposes the mux for tests.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) Start() error {
	s.logger.Info("Starting web server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
