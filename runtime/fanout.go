package runtime

import (
	"context"
	"log/slog"
	"sync"

	"news-lab/domain/event"
	"news-lab/protocol"
)

// Fanout delivers an event to every registered connection, encoding it
// exactly once. A counting admission gate bounds how many Broadcast
// operations are in flight across the whole server; within one call every
// recipient is attempted concurrently and failures are isolated per
// recipient. Broadcast never reports an error to its caller.
type Fanout struct {
	log      *slog.Logger
	registry *Registry
	codec    *protocol.Codec
	gate     chan struct{}
}

func NewFanout(log *slog.Logger, registry *Registry, codec *protocol.Codec, broadcastLimit int) *Fanout {
	return &Fanout{
		log:      log,
		registry: registry,
		codec:    codec,
		gate:     make(chan struct{}, broadcastLimit),
	}
}

// Broadcast sends the event to every connection in the current registry
// snapshot except excludeConnectionID (empty string excludes nobody).
// The gate is held for the whole fan-out so the in-flight bound counts
// operations, not recipients. A recipient whose transport fails is closed
// and removed from the registry; delivery to the others continues.
func (f *Fanout) Broadcast(ctx context.Context, e event.Event, excludeConnectionID string) {
	frame, err := f.codec.EncodeEvent(e)
	if err != nil {
		f.log.Error("Failed to encode broadcast event", "kind", e.Kind(), "error", err)
		return
	}

	select {
	case f.gate <- struct{}{}:
	case <-ctx.Done():
		return
	}
	defer func() { <-f.gate }()

	var wg sync.WaitGroup
	for _, conn := range f.registry.Snapshot() {
		if conn.ID == excludeConnectionID {
			continue
		}
		wg.Add(1)
		go func(c *Connection) {
			defer wg.Done()
			if err := c.Send(ctx, frame); err != nil {
				f.log.Warn("Dropping connection after failed delivery",
					"connection_id", c.ID, "kind", e.Kind(), "error", err)
				f.registry.Remove(c.ID)
				_ = c.Close()
			}
		}(conn)
	}
	wg.Wait()
}
