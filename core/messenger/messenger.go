// Package messenger sends events to the other servers of a network and fires
// the events received from them on the local event manager.
package messenger

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/nookure/nookcore/core/event"
	"github.com/nookure/nookcore/core/player"
)

// EventMessenger encodes events with a Codec and publishes them through a
// Transport. Encoding and transport failures are logged. They are only
// returned to the caller while debug is enabled.
type EventMessenger struct {
	log       *slog.Logger
	events    *event.Manager
	codec     *Codec
	transport Transport
	debug     func() bool

	prepared atomic.Bool
}

// Option ...
type Option func(*EventMessenger)

// WithDebug sets the function reporting whether debug mode is enabled.
func WithDebug(fn func() bool) Option {
	return func(m *EventMessenger) { m.debug = fn }
}

// New returns an EventMessenger firing received events on events. A nil log
// uses slog.Default().
func New(log *slog.Logger, events *event.Manager, codec *Codec, transport Transport, opts ...Option) *EventMessenger {
	if log == nil {
		log = slog.Default()
	}
	m := &EventMessenger{
		log:       log.With("subsystem", "messenger"),
		events:    events,
		codec:     codec,
		transport: transport,
		debug:     func() bool { return false },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Codec returns the codec used to encode events.
func (m *EventMessenger) Codec() *Codec { return m.codec }

// Prepare connects the transport. Calling Prepare again is a no-op.
func (m *EventMessenger) Prepare(ctx context.Context) error {
	if m.prepared.Swap(true) {
		return nil
	}
	m.transport.OnMessage(m.receive)
	if err := m.transport.Prepare(ctx); err != nil {
		m.prepared.Store(false)
		return fmt.Errorf("prepare messenger: %w", err)
	}
	return nil
}

// Publish sends data that was already encoded.
func (m *EventMessenger) Publish(ctx context.Context, sender player.Wrapper, data []byte) error {
	if err := m.transport.Publish(ctx, sender, data); err != nil {
		return m.fail("Could not publish event.", err)
	}
	return nil
}

// PublishEvent encodes e and sends it.
func (m *EventMessenger) PublishEvent(ctx context.Context, sender player.Wrapper, e event.Event) error {
	data, err := m.codec.Encode(e)
	if err != nil {
		return m.fail("Could not encode event.", err)
	}
	return m.Publish(ctx, sender, data)
}

// Decode decodes data into an event. The boolean is false if data could not be
// decoded.
func (m *EventMessenger) Decode(data []byte) (event.Event, bool) {
	e, err := m.codec.Decode(data)
	if err != nil {
		_ = m.fail("Could not decode event.", err)
		return nil, false
	}
	return e, true
}

func (m *EventMessenger) receive(data []byte) {
	e, ok := m.Decode(data)
	if !ok {
		return
	}
	m.log.Debug("Received event.", "event", e.EventName())
	if err := m.events.Fire(context.Background(), e); err != nil {
		m.log.Error("Could not fire received event.", "event", e.EventName(), "error", err)
	}
}

func (m *EventMessenger) fail(msg string, err error) error {
	m.log.Error(msg, "error", err)
	if m.debug() {
		return err
	}
	return nil
}

// Close closes the transport.
func (m *EventMessenger) Close() error {
	m.prepared.Store(false)
	return m.transport.Close()
}
