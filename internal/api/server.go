package api

import (
	"context"
	"net"
	"net/http"
	"time"
)

const (
	maxHeaderBytes    = 1 << 20 // 1 MB
	readHeaderTimeout = 10 * time.Second
	idleTimeout       = 60 * time.Second
)

// Server wraps an *http.Server to provide start/shutdown lifecycle. No write
// timeout is set because /ws connections are long lived.
type Server struct {
	httpServer *http.Server
}

func NewServer(addr string, handler http.Handler) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           handler,
			MaxHeaderBytes:    maxHeaderBytes,
			ReadHeaderTimeout: readHeaderTimeout,
			IdleTimeout:       idleTimeout,
		},
	}
}

// Run listens and serves until Shutdown. http.ErrServerClosed is not
// reported as an error.
func (s *Server) Run() error {
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Serve is Run on an existing listener.
func (s *Server) Serve(l net.Listener) error {
	err := s.httpServer.Serve(l)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server, allowing in-flight requests to complete.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
