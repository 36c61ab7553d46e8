// Package network exposes block execution over ZeroMQ.
//
// This package implements:
//   - ZmqEndpoint: a REP socket serving Arrow IPC blocks
//   - Optional token authentication as a leading handshake frame
package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-zeromq/zmq4"
	"github.com/rs/zerolog"

	"github.com/VanDung-dev/HieraChain-BlockSTM/hierachain-engine/api"
)

// Common errors for network operations
var (
	ErrEndpointRunning = errors.New("endpoint already running")
	ErrBadFrames       = errors.New("unexpected frame count")
)

// BlockHandler executes one encoded block and returns the encoded results.
type BlockHandler interface {
	Handle(ctx context.Context, payload []byte) ([]byte, error)
}

// ZmqEndpoint serves blocks on a ZeroMQ REP socket. A request is one frame
// holding an Arrow IPC block; with authentication enabled it is two frames,
// the auth handshake followed by the block. Every request gets exactly one
// reply frame: results, or an api error frame.
type ZmqEndpoint struct {
	address string
	handler BlockHandler
	auth    *api.Authenticator
	metrics api.RequestRecorder
	logger  zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	socket zmq4.Socket
	mu     sync.Mutex

	served  atomic.Uint64
	failed  atomic.Uint64
	running bool
	wg      sync.WaitGroup
}

// NewZmqEndpoint creates an endpoint bound to address, e.g.
// "tcp://127.0.0.1:5555". A nil auth disables authentication.
func NewZmqEndpoint(address string, handler BlockHandler, auth *api.Authenticator, logger zerolog.Logger) *ZmqEndpoint {
	ctx, cancel := context.WithCancel(context.Background())
	if auth == nil {
		auth = api.NewAuthenticator(api.AuthConfig{}, logger)
	}
	return &ZmqEndpoint{
		address: address,
		handler: handler,
		auth:    auth,
		metrics: nopRecorder{},
		logger:  logger.With().Str("module", "zmq_endpoint").Logger(),
		ctx:     ctx,
		cancel:  cancel,
	}
}

type nopRecorder struct{}

func (nopRecorder) RecordRequest(string, string, time.Duration) {}

// SetMetrics sets the request recorder. Call before Start.
func (e *ZmqEndpoint) SetMetrics(m api.RequestRecorder) {
	if m != nil {
		e.metrics = m
	}
}

// Start binds the socket and begins serving in the background.
func (e *ZmqEndpoint) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return ErrEndpointRunning
	}

	socket := zmq4.NewRep(e.ctx)
	if err := socket.Listen(e.address); err != nil {
		_ = socket.Close()
		return fmt.Errorf("failed to bind rep socket: %w", err)
	}
	e.socket = socket
	e.running = true
	e.logger.Info().Str("addr", e.address).Bool("auth", e.auth.IsEnabled()).Msg("zmq endpoint listening")

	e.wg.Add(1)
	go e.serveLoop()
	return nil
}

// Addr returns the bound address, or nil before Start.
func (e *ZmqEndpoint) Addr() net.Addr {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.socket == nil {
		return nil
	}
	return e.socket.Addr()
}

// Stop gracefully shuts down the endpoint.
func (e *ZmqEndpoint) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	e.mu.Unlock()

	e.cancel()
	if err := e.socket.Close(); err != nil {
		e.logger.Debug().Err(err).Msg("close socket")
	}
	e.wg.Wait()
	e.logger.Info().Uint64("served", e.served.Load()).Uint64("failed", e.failed.Load()).Msg("zmq endpoint stopped")
}

// EndpointStats contains endpoint statistics.
type EndpointStats struct {
	Address   string `json:"address"`
	IsRunning bool   `json:"is_running"`
	Served    uint64 `json:"served"`
	Failed    uint64 `json:"failed"`
}

// GetStats returns current endpoint statistics.
func (e *ZmqEndpoint) GetStats() EndpointStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return EndpointStats{
		Address:   e.address,
		IsRunning: e.running,
		Served:    e.served.Load(),
		Failed:    e.failed.Load(),
	}
}

// serveLoop receives requests until the endpoint stops.
func (e *ZmqEndpoint) serveLoop() {
	defer e.wg.Done()

	for {
		msg, err := e.socket.Recv()
		if err != nil {
			select {
			case <-e.ctx.Done():
				return
			default:
				e.logger.Debug().Err(err).Msg("recv failed")
				continue
			}
		}

		start := time.Now()
		reply, err := e.process(msg.Frames)
		status := "ok"
		if err != nil {
			status = "error"
			e.failed.Add(1)
			e.logger.Warn().Err(err).Msg("request failed")
			reply = []byte(api.ErrorPrefix + err.Error())
		} else {
			e.served.Add(1)
		}
		e.metrics.RecordRequest("zmq", status, time.Since(start))

		if err := e.socket.Send(zmq4.NewMsg(reply)); err != nil {
			select {
			case <-e.ctx.Done():
				return
			default:
				e.logger.Debug().Err(err).Msg("send failed")
			}
		}
	}
}

// process authenticates and executes one request.
func (e *ZmqEndpoint) process(frames [][]byte) ([]byte, error) {
	want := 1
	if e.auth.IsEnabled() {
		want = 2
	}
	if len(frames) != want {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrBadFrames, len(frames), want)
	}

	if want == 2 {
		if _, err := e.auth.Handshake(frames[0]); err != nil {
			return nil, err
		}
	}
	return e.handler.Handle(e.ctx, frames[want-1])
}
