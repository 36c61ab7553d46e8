package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// RequestRecorder observes served requests.
type RequestRecorder interface {
	RecordRequest(transport, status string, duration time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) RecordRequest(string, string, time.Duration) {}

// ArrowServer is a TCP server that executes Arrow IPC blocks.
type ArrowServer struct {
	handler  *BlockHandler
	auth     *Authenticator
	metrics  RequestRecorder
	logger   zerolog.Logger
	listener net.Listener
	running  bool
	mu       sync.Mutex
	quit     chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	conns  map[net.Conn]struct{}
	wg     sync.WaitGroup
}

// NewArrowServer creates a new ArrowServer instance. A nil auth disables
// authentication.
func NewArrowServer(handler *BlockHandler, auth *Authenticator, logger zerolog.Logger) *ArrowServer {
	if auth == nil {
		auth = NewAuthenticator(AuthConfig{}, logger)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &ArrowServer{
		handler: handler,
		auth:    auth,
		metrics: nopRecorder{},
		logger:  logger.With().Str("module", "arrow_server").Logger(),
		quit:    make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
		conns:   make(map[net.Conn]struct{}),
	}
}

// SetMetrics sets the request recorder. Call before Start.
func (s *ArrowServer) SetMetrics(m RequestRecorder) {
	if m != nil {
		s.metrics = m
	}
}

// Addr returns the listening address, or nil before Start.
func (s *ArrowServer) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Start starts the Arrow server on the specified address.
// This method blocks until the server is stopped or fails.
func (s *ArrowServer) Start(address string) error {
	lis, err := s.listen(address)
	if err != nil {
		return err
	}
	defer s.Stop()
	s.serve(lis)
	return nil
}

// StartAsync starts the server in a background goroutine.
func (s *ArrowServer) StartAsync(address string) error {
	lis, err := s.listen(address)
	if err != nil {
		return err
	}
	go s.serve(lis)
	return nil
}

func (s *ArrowServer) listen(address string) (net.Listener, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil, fmt.Errorf("server is already running")
	}

	lis, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", address, err)
	}
	s.listener = lis
	s.running = true
	s.logger.Info().Str("addr", lis.Addr().String()).Bool("auth", s.auth.IsEnabled()).Msg("arrow server listening")
	return lis, nil
}

func (s *ArrowServer) serve(lis net.Listener) {
	for {
		conn, err := lis.Accept()
		if err != nil {
			select {
			case <-s.quit:
				return
			default:
				s.logger.Warn().Err(err).Msg("accept failed")
				continue
			}
		}

		s.mu.Lock()
		if !s.running {
			s.mu.Unlock()
			_ = conn.Close()
			return
		}
		s.conns[conn] = struct{}{}
		s.wg.Add(1)
		s.mu.Unlock()

		go s.handleConnection(conn)
	}
}

// Stop stops the server, cancels in-flight blocks and waits for open
// connections to finish.
func (s *ArrowServer) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}

	s.running = false
	close(s.quit)
	s.cancel()
	if s.listener != nil {
		if err := s.listener.Close(); err != nil {
			s.logger.Debug().Err(err).Msg("close listener")
		}
	}
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info().Msg("arrow server stopped")
}

// handleConnection handles a single client connection.
func (s *ArrowServer) handleConnection(conn net.Conn) {
	log := s.logger.With().Str("remote", conn.RemoteAddr().String()).Logger()
	defer func() {
		_ = conn.Close()
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		s.wg.Done()
	}()

	if s.auth.IsEnabled() && !s.authenticate(conn, log) {
		return
	}

	for {
		data, err := ReadMessage(conn)
		if err != nil {
			if errors.Is(err, ErrMessageTooLarge) {
				_ = WriteError(conn, err)
			}
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				log.Debug().Err(err).Msg("read failed")
			}
			return
		}

		start := time.Now()
		response, err := s.handler.Handle(s.ctx, data)
		if err != nil {
			s.metrics.RecordRequest("arrow", "error", time.Since(start))
			log.Warn().Err(err).Msg("block failed")
			if err := WriteError(conn, err); err != nil {
				return
			}
			continue
		}
		s.metrics.RecordRequest("arrow", "ok", time.Since(start))

		if err := WriteMessage(conn, response); err != nil {
			log.Debug().Err(err).Msg("write failed")
			return
		}
	}
}

func (s *ArrowServer) authenticate(conn net.Conn, log zerolog.Logger) bool {
	frame, err := ReadMessage(conn)
	if err != nil {
		return false
	}
	resp, authErr := s.auth.Handshake(frame)
	if resp != nil {
		if err := WriteMessage(conn, resp); err != nil {
			return false
		}
	}
	if authErr != nil {
		s.metrics.RecordRequest("arrow", "unauthorized", 0)
		log.Warn().Err(authErr).Msg("authentication failed")
		return false
	}
	return true
}
