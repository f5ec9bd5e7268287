// Package server exposes the hub over WebSocket and serves /metrics and
// /healthz on the same listener.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"les02bridge/internal/config"
	"les02bridge/internal/hub"
)

// Hosts accepted when no origins are configured, on any port.
var localHosts = []string{"localhost", "127.0.0.1", "::1"}

// Server accepts subscribers and hands them to the hub.
type Server struct {
	cfg      config.WSConfig
	hub      *hub.Hub
	log      *zap.Logger
	upgrader websocket.Upgrader
	mux      *http.ServeMux
	http     *http.Server
	ln       net.Listener
}

// New builds the HTTP handlers. gatherer may be nil to disable /metrics.
func New(cfg config.WSConfig, h *hub.Hub, gatherer prometheus.Gatherer, log *zap.Logger) *Server {
	s := &Server{
		cfg: cfg,
		hub: h,
		log: log.Named("server"),
		mux: http.NewServeMux(),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}

	s.mux.HandleFunc(cfg.Path, s.handleWebSocket)
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	if gatherer != nil {
		s.mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.mux }

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Listen, err)
	}
	s.ln = ln
	s.http = &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("http server stopped", zap.Error(err))
		}
	}()
	s.log.Info("websocket server started", zap.String("url", "ws://"+ln.Addr().String()+s.cfg.Path))
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Shutdown stops accepting connections. Established WebSocket connections
// are owned by the hub and closed when it stops.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != s.cfg.Path {
		http.NotFound(w, r)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.String("remote", r.RemoteAddr), zap.Error(err))
		return
	}

	sub := newWSSubscriber(conn, s.cfg.OutboxSize, s.cfg.WriteTimeout, s.log)
	go sub.writePump()
	s.hub.Register(sub)
	go sub.readPump(s.hub)
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true // Same-origin requests have no Origin header
	}

	if len(s.cfg.AllowedOrigins) > 0 {
		for _, allowed := range s.cfg.AllowedOrigins {
			if allowed == "*" || strings.EqualFold(allowed, origin) {
				return true
			}
		}
	} else {
		if isLocalOrigin(origin) {
			return true
		}
	}

	s.log.Warn("rejected websocket from disallowed origin", zap.String("origin", origin))
	return false
}

func isLocalOrigin(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	host := u.Hostname()
	for _, h := range localHosts {
		if strings.EqualFold(host, h) {
			return true
		}
	}
	return false
}
