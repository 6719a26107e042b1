package runtime

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"news-lab/contract"
	"news-lab/transport"
)

// Server is the lifecycle controller. Run is the TCP accept loop worker;
// the WebSocket endpoint reuses HandleConn so both transports share the
// registry, dispatcher and shutdown path. On cancellation it stops
// accepting, closes every registered transport, and waits for the
// receive loops within the grace period.
type Server struct {
	log        *slog.Logger
	registry   *Registry
	dispatcher *Dispatcher
	addr       string
	grace      time.Duration

	loops    sync.WaitGroup
	shutOnce sync.Once
}

func NewServer(log *slog.Logger, registry *Registry, dispatcher *Dispatcher,
	addr string, grace time.Duration) *Server {
	return &Server{
		log:        log,
		registry:   registry,
		dispatcher: dispatcher,
		addr:       addr,
		grace:      grace,
	}
}

// Run accepts raw TCP connections (newline-framed JSON) until the context
// is cancelled, then drives the coordinated shutdown.
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.log.Info("News server listening", "addr", s.addr)

	// Closing the listener is the only way to unblock Accept.
	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	for {
		netConn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			s.log.Warn("Accept failed", "error", err)
			continue
		}
		go s.HandleConn(ctx, transport.NewLineConn(netConn))
	}

	s.Shutdown()
	return nil
}

// HandleConn registers the transport and runs its receive loop until the
// client disconnects, the transport errors, or the context is cancelled.
// Removal from the registry happens exactly once whatever the exit path.
func (s *Server) HandleConn(ctx context.Context, conn contract.Conn) {
	s.loops.Add(1)
	defer s.loops.Done()

	c := NewConnection(conn)
	s.registry.Add(c)
	s.log.Info("Client connected", "connection_id", c.ID, "connections", s.registry.Len())

	defer func() {
		s.registry.Remove(c.ID)
		_ = c.Close()
		s.log.Info("Client disconnected", "connection_id", c.ID, "connections", s.registry.Len())
	}()

	for {
		frame, err := c.ReadFrame(ctx)
		if err != nil {
			if ctx.Err() == nil {
				s.log.Debug("Receive loop ended", "connection_id", c.ID, "error", err)
			}
			return
		}
		if len(bytes.TrimSpace(frame)) == 0 {
			continue
		}
		if err := s.dispatcher.HandleFrame(ctx, c, frame); err != nil {
			s.log.Debug("Write side failed, tearing down", "connection_id", c.ID, "error", err)
			return
		}
	}
}

// Shutdown closes every registered transport and waits for the receive
// loops within the grace period. Safe to invoke concurrently with normal
// operation and more than once.
func (s *Server) Shutdown() {
	s.shutOnce.Do(func() {
		s.log.Info("Closing all client connections", "connections", s.registry.Len())
		for _, conn := range s.registry.Snapshot() {
			_ = conn.Close()
		}

		done := make(chan struct{})
		go func() {
			s.loops.Wait()
			close(done)
		}()
		select {
		case <-done:
			s.log.Info("All receive loops finished")
		case <-time.After(s.grace):
			s.log.Warn("Grace period elapsed with receive loops still running")
		}
	})
}
