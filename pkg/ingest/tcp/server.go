// Package tcp accepts the connections of the FinishLynx scoreboard ports.
package tcp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/mpapenbr/weblynx-service-go/log"
	"github.com/mpapenbr/weblynx-service-go/pkg/config"
)

const (
	ListenerTiming  = "TIMING"
	ListenerResults = "RESULTS"

	DefaultShutdownTimeout = 5 * time.Second
)

var ErrShutdownTimeout = errors.New("connections not closed within shutdown timeout")

type (
	// ChunkHandler receives every chunk read from a connection.
	// The label identifies the remote endpoint and the listener.
	ChunkHandler interface {
		ProcessChunk(data []byte, label string)
	}

	ListenerConfig struct {
		Name string
		Addr string
	}

	Option func(*Server)

	Server struct {
		handler         ChunkHandler
		configs         []ListenerConfig
		readBufferSize  int
		shutdownTimeout time.Duration
		log             *log.Logger

		mu        sync.Mutex
		listeners map[string]net.Listener
		conns     map[net.Conn]struct{}
		wg        sync.WaitGroup
		cancel    context.CancelFunc
		closing   bool

		bytesRead   metric.Int64Counter
		chunksRead  metric.Int64Counter
		activeConns metric.Int64UpDownCounter
	}
)

func WithListener(name, addr string) Option {
	return func(s *Server) {
		s.configs = append(s.configs, ListenerConfig{Name: name, Addr: addr})
	}
}

func WithReadBufferSize(size int) Option {
	return func(s *Server) {
		if size > 0 {
			s.readBufferSize = size
		}
	}
}

func WithShutdownTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.shutdownTimeout = d
		}
	}
}

func WithLogger(l *log.Logger) Option {
	return func(s *Server) {
		s.log = l
	}
}

func NewServer(handler ChunkHandler, opts ...Option) *Server {
	ret := &Server{
		handler:         handler,
		readBufferSize:  config.DefaultReadBufferSize,
		shutdownTimeout: DefaultShutdownTimeout,
		log:             log.Default().Named("ingest.tcp"),
		listeners:       make(map[string]net.Listener),
		conns:           make(map[net.Conn]struct{}),
	}
	for _, opt := range opts {
		opt(ret)
	}
	ret.setupMetrics()
	return ret
}

func (s *Server) setupMetrics() {
	meter := otel.GetMeterProvider().Meter("weblynx.ingest")
	var err error
	if s.bytesRead, err = meter.Int64Counter("weblynx.ingest.bytes",
		metric.WithDescription("Number of received bytes"),
		metric.WithUnit("By")); err != nil {
		s.log.Error("failed to register metric", log.ErrorField(err))
	}
	if s.chunksRead, err = meter.Int64Counter("weblynx.ingest.chunks",
		metric.WithDescription("Number of received chunks"),
		metric.WithUnit("{count}")); err != nil {
		s.log.Error("failed to register metric", log.ErrorField(err))
	}
	if s.activeConns, err = meter.Int64UpDownCounter("weblynx.ingest.connections",
		metric.WithDescription("Number of open connections"),
		metric.WithUnit("{count}")); err != nil {
		s.log.Error("failed to register metric", log.ErrorField(err))
	}
}

// Start binds all configured listeners and starts accepting connections.
// If one listener cannot be bound, the already bound ones are closed again.
func (s *Server) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	var lc net.ListenConfig
	bound := make(map[string]net.Listener, len(s.configs))
	for _, c := range s.configs {
		ln, err := lc.Listen(ctx, "tcp", c.Addr)
		if err != nil {
			for _, l := range bound {
				_ = l.Close()
			}
			cancel()
			return fmt.Errorf("listen %s on %s: %w", c.Name, c.Addr, err)
		}
		bound[c.Name] = ln
	}

	s.mu.Lock()
	s.cancel = cancel
	s.listeners = bound
	s.mu.Unlock()

	for _, c := range s.configs {
		ln := bound[c.Name]
		s.log.Info("listening", log.String("listener", c.Name), log.String("addr", ln.Addr().String()))
		s.wg.Add(1)
		go s.acceptLoop(ctx, c.Name, ln)
	}
	return nil
}

// Addr returns the bound address of the named listener or nil.
func (s *Server) Addr(name string) net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ln, ok := s.listeners[name]; ok {
		return ln.Addr()
	}
	return nil
}

// Shutdown stops accepting, closes all open connections and waits for the
// handlers to finish. It waits at most the configured shutdown timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	if s.cancel != nil {
		s.cancel()
	}
	for _, ln := range s.listeners {
		_ = ln.Close()
	}
	for conn := range s.conns {
		if tc, ok := conn.(*net.TCPConn); ok {
			_ = tc.CloseWrite()
		}
		_ = conn.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	ctx, cancel := context.WithTimeout(ctx, s.shutdownTimeout)
	defer cancel()
	select {
	case <-done:
		s.log.Info("tcp server stopped")
		return nil
	case <-ctx.Done():
		return ErrShutdownTimeout
	}
}

func (s *Server) acceptLoop(ctx context.Context, name string, ln net.Listener) {
	defer s.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				s.log.Debug("accept loop stopped", log.String("listener", name))
				return
			}
			s.log.Warn("accept failed", log.String("listener", name), log.ErrorField(err))
			continue
		}
		if !s.track(conn) {
			_ = conn.Close()
			return
		}
		s.wg.Add(1)
		go s.handleConn(ctx, name, conn)
	}
}

func (s *Server) handleConn(ctx context.Context, name string, conn net.Conn) {
	defer s.wg.Done()
	defer s.untrack(conn)
	defer conn.Close()

	label := fmt.Sprintf("%s (%s)", conn.RemoteAddr().String(), name)
	attrs := metric.WithAttributes(attribute.String("listener", name))
	s.activeConns.Add(ctx, 1, attrs)
	defer s.activeConns.Add(context.Background(), -1, attrs)
	s.log.Info("client connected", log.String("conn", label))

	buf := make([]byte, s.readBufferSize)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			s.bytesRead.Add(ctx, int64(n), attrs)
			s.chunksRead.Add(ctx, 1, attrs)
			s.handler.ProcessChunk(bytes.Clone(buf[:n]), label)
		}
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				s.log.Info("client disconnected", log.String("conn", label))
			case ctx.Err() != nil || errors.Is(err, net.ErrClosed):
				s.log.Debug("connection closed on shutdown", log.String("conn", label))
			default:
				s.log.Warn("read failed", log.String("conn", label), log.ErrorField(err))
			}
			return
		}
	}
}

// returns false if the server is shutting down
func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, conn)
}
