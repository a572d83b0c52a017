// Package events delivers lifecycle events to the portal. The bus is
// fire-and-forget: emission failures are logged, never surfaced to the
// operation that triggered them.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/codewatch/codewatch/internal/logging"
)

// Event names emitted by the lifecycle core.
const (
	EventNewProjectAdded        = "newProjectAdded"
	EventProjectDeletion        = "projectDeletion"
	EventProjectLogsListChanged = "projectLogsListChanged"
)

// Bus is the outbound event surface.
type Bus interface {
	EmitOnListener(event string, payload interface{})
}

// Emission is one recorded event.
type Emission struct {
	Event   string
	Payload interface{}
}

// envelope is the wire form of an emission.
type envelope struct {
	Event   string      `json:"event"`
	Payload interface{} `json:"payload"`
}

const dialTimeout = 5 * time.Second

// PortalBus emits events as JSON over a websocket to the portal. The
// connection is dialed lazily and re-dialed after a write failure.
type PortalBus struct {
	url  string
	log  logging.Logger
	mu   sync.Mutex
	conn *websocket.Conn
}

// NewPortalBus creates a bus targeting the portal websocket URL.
func NewPortalBus(url string, log logging.Logger) *PortalBus {
	return &PortalBus{url: url, log: log.WithComponent("events")}
}

// EmitOnListener implements Bus.
func (b *PortalBus) EmitOnListener(event string, payload interface{}) {
	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.conn == nil {
		conn, _, err := websocket.Dial(ctx, b.url, nil)
		if err != nil {
			b.log.Warn(ctx, err, "portal unreachable, dropping event", "event", event)
			return
		}
		b.conn = conn
	}

	if err := wsjson.Write(ctx, b.conn, envelope{Event: event, Payload: payload}); err != nil {
		b.log.Warn(ctx, err, "event write failed, resetting connection", "event", event)
		_ = b.conn.Close(websocket.StatusInternalError, "write failed")
		b.conn = nil
	}
}

// Close shuts the portal connection down cleanly.
func (b *PortalBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn == nil {
		return nil
	}
	err := b.conn.Close(websocket.StatusNormalClosure, "shutdown")
	b.conn = nil
	return err
}

// MemoryBus records emissions in memory. Used in tests and as the
// default bus when no portal URL is configured.
type MemoryBus struct {
	mu     sync.Mutex
	events []Emission
}

// NewMemoryBus creates an empty recording bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{}
}

// EmitOnListener implements Bus.
func (b *MemoryBus) EmitOnListener(event string, payload interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, Emission{Event: event, Payload: payload})
}

// Events returns a copy of all recorded emissions.
func (b *MemoryBus) Events() []Emission {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Emission, len(b.events))
	copy(out, b.events)
	return out
}

// Named returns recorded emissions with the given event name.
func (b *MemoryBus) Named(event string) []Emission {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []Emission
	for _, e := range b.events {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}
