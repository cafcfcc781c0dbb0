// Package gateway runs the HTTP server that fronts the buffering layer.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/nextlevelbuilder/goturn/internal/config"
)

const shutdownTimeout = 5 * time.Second

// RouteRegistrar is implemented by every handler in internal/http.
type RouteRegistrar interface {
	RegisterRoutes(mux *http.ServeMux)
}

// Server is the gateway HTTP server.
type Server struct {
	cfg      *config.Config
	handlers []RouteRegistrar

	mcpHandler http.Handler // nil = MCP disabled
	mcpPath    string

	httpServer *http.Server
	mux        *http.ServeMux
}

// NewServer creates a server with the given route handlers.
func NewServer(cfg *config.Config, handlers ...RouteRegistrar) *Server {
	return &Server{cfg: cfg, handlers: handlers}
}

// SetMCPHandler mounts the MCP tool server at path.
func (s *Server) SetMCPHandler(path string, h http.Handler) {
	s.mcpPath = path
	s.mcpHandler = h
}

// BuildMux creates and caches the HTTP mux with all routes registered.
func (s *Server) BuildMux() *http.ServeMux {
	if s.mux != nil {
		return s.mux
	}

	mux := http.NewServeMux()
	for _, h := range s.handlers {
		h.RegisterRoutes(mux)
	}
	if s.mcpHandler != nil {
		mux.Handle(s.mcpPath, s.requireGatewayToken(s.mcpHandler))
	}

	s.mux = mux
	return mux
}

// requireGatewayToken guards handlers that are not part of internal/http.
func (s *Server) requireGatewayToken(next http.Handler) http.Handler {
	token := s.cfg.Gateway.Token
	if token == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+token {
			http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Start listens until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Gateway.Host, s.cfg.Gateway.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("gateway listen %s: %w", addr, err)
	}
	slog.Info("gateway starting", "addr", ln.Addr().String())
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.httpServer = &http.Server{
		Handler:           s.BuildMux(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if err := s.httpServer.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("gateway server: %w", err)
	}
	return nil
}
