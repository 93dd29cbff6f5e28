package server

import (
	"context"
	stderrors "errors"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/vango-dev/smarthttp/pkg/docroot"
	"github.com/vango-dev/smarthttp/pkg/script"
	"github.com/vango-dev/smarthttp/pkg/script/exec"
	"github.com/vango-dev/smarthttp/pkg/session"
	"github.com/vango-dev/smarthttp/pkg/workers"
)

// ErrServerClosed is returned by Serve after Shutdown.
var ErrServerClosed = stderrors.New("server: closed")

// Server accepts connections and serves one request on each.
type Server struct {
	config   Config
	root     docroot.Root
	sessions *session.Manager
	registry *workers.Registry
	cache    *script.Cache

	engineOpts []exec.Option
	middleware []Middleware
	handler    Handler

	logger *slog.Logger

	mu       sync.Mutex
	listener net.Listener
	closed   bool
	workers  sync.WaitGroup
	baseCtx  context.Context
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithRegistry sets the named worker registry.
func WithRegistry(r *workers.Registry) Option {
	return func(s *Server) {
		s.registry = r
	}
}

// WithCache sets the compiled script cache. By default the server creates
// one over its document root.
func WithCache(c *script.Cache) Option {
	return func(s *Server) {
		s.cache = c
	}
}

// WithEngineOptions passes options to every script engine, for example
// extra functions.
func WithEngineOptions(opts ...exec.Option) Option {
	return func(s *Server) {
		s.engineOpts = append(s.engineOpts, opts...)
	}
}

// WithMiddleware adds middleware, as Use does.
func WithMiddleware(mws ...Middleware) Option {
	return func(s *Server) {
		s.middleware = append(s.middleware, mws...)
	}
}

// New creates a server over root. sessions must not be nil.
func New(config Config, root docroot.Root, sessions *session.Manager, opts ...Option) *Server {
	config.applyDefaults()
	s := &Server{
		config:   config,
		root:     root,
		sessions: sessions,
		baseCtx:  context.Background(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "server")
	if s.registry == nil {
		s.registry = workers.NewRegistry()
	}
	if s.cache == nil {
		s.cache = script.NewCache(root, 0)
	}
	s.handler = chain(s.serveExchange, s.middleware)
	return s
}

// Use adds middleware around top-level dispatch. It must be called before
// Serve.
func (s *Server) Use(mw Middleware) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.middleware = append(s.middleware, mw)
	s.handler = chain(s.serveExchange, s.middleware)
}

// Config returns the server configuration with defaults applied.
func (s *Server) Config() Config {
	return s.config
}

// Cache returns the compiled script cache.
func (s *Server) Cache() *script.Cache {
	return s.cache
}

// Sessions returns the session manager.
func (s *Server) Sessions() *session.Manager {
	return s.sessions
}

// Addr returns the listener address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve accepts connections on ln and hands them to a fixed pool of
// Config.Workers goroutines. When every worker is busy the acceptor waits.
// Serve returns ErrServerClosed after Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		ln.Close()
		return ErrServerClosed
	}
	s.listener = ln
	s.mu.Unlock()

	conns := make(chan net.Conn)
	for i := 0; i < s.config.Workers; i++ {
		s.workers.Add(1)
		go s.worker(conns)
	}
	defer close(conns)

	s.logger.Info("server started", "address", ln.Addr().String(), "workers", s.config.Workers)
	var delay time.Duration
	for {
		c, err := ln.Accept()
		if err != nil {
			if s.isClosed() {
				return ErrServerClosed
			}
			if !retryableAccept(err) {
				return err
			}
			if delay == 0 {
				delay = 5 * time.Millisecond
			} else if delay *= 2; delay > maxAcceptDelay {
				delay = maxAcceptDelay
			}
			s.logger.Warn("accept failed; retrying", "error", err, "delay", delay)
			time.Sleep(delay)
			continue
		}
		delay = 0
		conns <- c
	}
}

const maxAcceptDelay = time.Second

// retryableAccept reports whether an accept error is transient, such as a
// timeout or running out of file descriptors.
func retryableAccept(err error) bool {
	var ne net.Error
	if stderrors.As(err, &ne) && ne.Timeout() {
		return true
	}
	var temp interface{ Temporary() bool }
	return stderrors.As(err, &temp) && temp.Temporary()
}

func (s *Server) worker(conns <-chan net.Conn) {
	defer s.workers.Done()
	for c := range conns {
		s.serveConn(s.baseCtx, c)
	}
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// ListenAndServe listens on the TCP address addr and calls Serve.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Run listens on addr and blocks until SIGINT or SIGTERM, then shuts down.
func (s *Server) Run(addr string) error {
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.ListenAndServe(addr)
	}()

	select {
	case err := <-errCh:
		if err == ErrServerClosed {
			return nil
		}
		return err
	case <-shutdown:
		s.logger.Info("shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()
		return s.Shutdown(ctx)
	}
}

// Shutdown stops accepting, waits for in-flight requests to finish or ctx
// to expire, and then shuts down the session manager. Running requests are
// not interrupted.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	ln := s.listener
	s.mu.Unlock()

	if ln != nil {
		ln.Close()
	}

	done := make(chan struct{})
	go func() {
		s.workers.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
		s.logger.Warn("shutdown timed out with requests in flight")
	}

	if serr := s.sessions.Shutdown(ctx); serr != nil && err == nil {
		err = serr
	}
	s.logger.Info("server shutdown complete")
	return err
}
