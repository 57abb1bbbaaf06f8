// Package server implements the collaborative live-coding relay: a TCP
// listener, per-connection handlers, and the single dispatch worker that
// owns the shared session state.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"troopd/pkg/logger"
)

// Config holds everything needed to start a Server.
type Config struct {
	Host     string // bind address; "0.0.0.0" listens on every interface
	Port     int    // first port to try; successive ports are probed on conflict
	Password string // shared secret peers must present to authenticate
	AuthCost byte   // mhf.Hash cost parameter for the auth digest

	RateBytesPerSec int // per-connection inbound pacing, sustained rate
	RateBurst       int // per-connection inbound pacing, burst allowance

	EnableLog bool   // write a per-message performance log
	LogRoot   string // root directory; logs are written under <root>/logs
}

// Server owns the listener and the dispatch worker.
type Server struct {
	cfg      Config
	listener net.Listener
	dispatch *Dispatcher
	secret   *Secret
	logSink  *logSink
	wg       sync.WaitGroup
}

// New constructs a Server from cfg. It does not yet bind a listener; call
// Listen for that.
func New(cfg Config) (*Server, error) {
	secret, err := NewSecret(cfg.Password, cfg.AuthCost)
	if err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}

	var sink *logSink
	if cfg.EnableLog {
		sink, err = newLogSink(cfg.LogRoot)
		if err != nil {
			return nil, err
		}
	}

	return &Server{
		cfg:      cfg,
		dispatch: NewDispatcher(sink),
		secret:   secret,
		logSink:  sink,
	}, nil
}

// Listen binds the configured port, probing successive ports if it is
// already in use. On success s.cfg.Port holds the port actually bound.
func (s *Server) Listen() error {
	port := s.cfg.Port
	for {
		ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", s.cfg.Host, port))
		if err == nil {
			s.listener = ln
			s.cfg.Port = ln.Addr().(*net.TCPAddr).Port
			return nil
		}
		if !errors.Is(err, syscall.EADDRINUSE) {
			return fmt.Errorf("server: listen: %w", err)
		}
		port++
	}
}

// Port returns the port actually bound by Listen.
func (s *Server) Port() int { return s.cfg.Port }

// Run accepts connections until ctx is cancelled. Listen must have already
// succeeded.
func (s *Server) Run(ctx context.Context) error {
	go s.dispatch.Run(ctx)

	addr, err := discoverPublicAddr()
	if err != nil {
		logger.Error("server: could not discover public address: %v", err)
		addr = s.cfg.Host
	}
	logger.Info("server running @ %s on port %d", addr, s.cfg.Port)

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Error("server: accept: %v", err)
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			limiter := rate.NewLimiter(rate.Limit(s.cfg.RateBytesPerSec), s.cfg.RateBurst)
			c := newConnection(conn, s.dispatch, s.secret, limiter)
			c.serve(ctx)
		}()
	}
}

// Shutdown broadcasts KILL to every peer, gives sockets a moment to drain,
// then closes the listener and waits for every connection handler to return.
func (s *Server) Shutdown() error {
	s.dispatch.Shutdown("server shutting down")
	time.Sleep(200 * time.Millisecond)

	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}
	s.wg.Wait()

	if s.logSink != nil {
		s.logSink.Close()
	}
	return err
}

// discoverPublicAddr finds this host's public-facing address by opening a
// UDP "connection" to a well-known reachable address and reading the local
// endpoint the kernel chose for it; no packet is actually sent since UDP
// connect just fixes the route.
func discoverPublicAddr() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", err
	}
	defer conn.Close()
	local, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return "", fmt.Errorf("server: unexpected local addr type %T", conn.LocalAddr())
	}
	return local.IP.String(), nil
}
