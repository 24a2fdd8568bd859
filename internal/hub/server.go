package hub

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/gorilla/websocket"
)

// Server serves the Session Hub's WebSocket endpoint over HTTP (spec §4.4,
// §6). Mirrors the gateway's httpServer/httpListener split so the Hub can
// be started and shut down independently of the daemon's other listeners.
type Server struct {
	hub       *Hub
	logger    *slog.Logger
	allowlist *HostAllowlist
	upgrader  websocket.Upgrader

	httpServer   *http.Server
	httpListener net.Listener
}

// NewServer wires hub behind an HTTP listener. allowedHosts follows spec
// §6's Host allowlist rule: nil or containing "*" allows any host.
func NewServer(hub *Hub, logger *slog.Logger, allowedHosts []string) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		hub:       hub,
		logger:    logger,
		allowlist: NewHostAllowlist(allowedHosts),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  8192,
			WriteBufferSize: 8192,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// ReplaceAllowlist swaps the Host allowlist in place, for config.Watcher's
// hot-reload of the daemon config file (SPEC_FULL §C.1).
func (s *Server) ReplaceAllowlist(entries []string) {
	s.allowlist.Replace(entries)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !s.allowlist.Allows(r.Host) {
		http.Error(w, "host not allowed", http.StatusForbidden)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("hub: upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := newConnection(s.hub, conn, r)
	s.hub.register(c)
	if c.authenticated.Load() {
		c.sendWelcome()
	} else {
		c.sendStatus("", errStatus("unauthorized", "invalid or missing token"))
	}
	c.run()
}

// ListenAndServe starts the HTTP listener on addr and blocks until it
// closes. Intended to run in its own goroutine.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("hub: listen %s: %w", addr, err)
	}
	s.httpListener = ln
	s.httpServer = &http.Server{Handler: s}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully stops the listener, waiting up to the context's
// deadline for in-flight connections to drain.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
