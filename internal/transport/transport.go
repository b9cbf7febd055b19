// Package transport moves wire envelopes over point-to-point TCP
// connections using length-prefixed msgpack frames.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/chris-fellows/cf-message-queue-sub000/internal/wire"
	"github.com/chris-fellows/cf-message-queue-sub000/pkg/logger"
)

// Handler processes one inbound envelope and returns the response envelope,
// or nil when the envelope carries a one-way message.
type Handler func(ctx context.Context, env *wire.Envelope, remoteAddr string) *wire.Envelope

// Server accepts connections on one address and feeds envelopes to a
// handler. The hub runs one Server per listening endpoint (the hub port and
// each queue port).
type Server struct {
	addr    string
	handler Handler
	logger  *logger.Logger

	mu       sync.Mutex
	listener net.Listener
	closed   bool
	wg       sync.WaitGroup
}

// NewServer creates a server bound to addr once Start is called.
func NewServer(addr string, handler Handler, log *logger.Logger) *Server {
	return &Server{addr: addr, handler: handler, logger: log}
}

// Start begins listening and accepting connections.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return fmt.Errorf("transport already started on %s", s.addr)
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln
	s.closed = false

	s.wg.Add(1)
	go s.acceptLoop(ln)

	s.logger.Info("Transport listening", logger.String("address", ln.Addr().String()))
	return nil
}

// Addr returns the bound address, valid after Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

// Stop closes the listener and waits for in-flight connections.
func (s *Server) Stop() error {
	s.mu.Lock()
	if s.closed || s.listener == nil {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	ln := s.listener
	s.mu.Unlock()

	err := ln.Close()
	s.wg.Wait()

	s.mu.Lock()
	s.listener = nil
	s.mu.Unlock()
	return err
}

func (s *Server) acceptLoop(ln net.Listener) {
	defer s.wg.Done()

	for {
		conn, err := ln.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed || errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn("Accept failed", logger.Error(err))
			continue
		}

		s.wg.Add(1)
		go s.serveConn(conn)
	}
}

// serveConn reads envelopes off one connection. Each envelope is handled in
// its own goroutine so a long-poll does not block later requests pipelined
// on the same connection; a write mutex keeps response frames intact.
func (s *Server) serveConn(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	remote := conn.RemoteAddr().String()
	var writeMu sync.Mutex
	var handlers sync.WaitGroup
	defer handlers.Wait()

	for {
		env, err := wire.ReadEnvelope(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				s.logger.Debug("Connection read ended", logger.String("remote", remote), logger.Error(err))
			}
			return
		}

		handlers.Add(1)
		go func(env *wire.Envelope) {
			defer handlers.Done()

			resp := s.handler(context.Background(), env, remote)
			if resp == nil {
				return
			}

			writeMu.Lock()
			err := wire.WriteEnvelope(conn, resp)
			writeMu.Unlock()
			if err != nil {
				s.logger.Warn("Failed to write response",
					logger.String("remote", remote),
					logger.String("type", string(resp.Type)),
					logger.Error(err),
				)
			}
		}(env)
	}
}

// defaultDialTimeout bounds connection establishment for one-shot sends.
const defaultDialTimeout = 5 * time.Second

// Send dials addr, writes the envelope and waits for the correlated
// response envelope. The context bounds the whole exchange.
func Send(ctx context.Context, env *wire.Envelope, addr string) (*wire.Envelope, error) {
	conn, err := dial(ctx, addr)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	if err := wire.WriteEnvelope(conn, env); err != nil {
		return nil, fmt.Errorf("failed to send %s to %s: %w", env.Type, addr, err)
	}

	resp, err := wire.ReadEnvelope(conn)
	if err != nil {
		return nil, fmt.Errorf("failed to read response from %s: %w", addr, err)
	}
	return resp, nil
}

// SendOneWay dials addr and writes the envelope without waiting for a
// response. Used for notification pushes.
func SendOneWay(ctx context.Context, env *wire.Envelope, addr string) error {
	conn, err := dial(ctx, addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	if err := wire.WriteEnvelope(conn, env); err != nil {
		return fmt.Errorf("failed to send %s to %s: %w", env.Type, addr, err)
	}
	return nil
}

func dial(ctx context.Context, addr string) (net.Conn, error) {
	d := net.Dialer{Timeout: defaultDialTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}
	return conn, nil
}
