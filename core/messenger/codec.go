package messenger

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/nookure/nookcore/core/event"
	"github.com/vmihailenco/msgpack/v5"
)

// ErrUnknownEvent is returned by Decode for event names without a factory.
var ErrUnknownEvent = errors.New("unknown event")

// envelope is the wire format of an event: a message id unique to every
// Encode call, the event name and its msgpack encoded fields.
type envelope struct {
	ID      string             `msgpack:"id"`
	Name    string             `msgpack:"name"`
	Payload msgpack.RawMessage `msgpack:"payload"`
}

// MessageID returns the id of an encoded event. Copies of the same message
// share the id, separately encoded events never do.
func MessageID(data []byte) (string, bool) {
	var env struct {
		ID string `msgpack:"id"`
	}
	if err := msgpack.Unmarshal(data, &env); err != nil || env.ID == "" {
		return "", false
	}
	return env.ID, true
}

// Codec encodes events to bytes and back. Events can only be decoded once a
// factory is registered for their name.
type Codec struct {
	mu        sync.RWMutex
	factories map[string]func() event.Event
}

// NewCodec ...
func NewCodec() *Codec {
	return &Codec{factories: make(map[string]func() event.Event)}
}

// Register adds a factory for events of type E. The factory must return a
// pointer so the payload can be decoded into it.
func Register[E event.Event](c *Codec, factory func() E) {
	name := factory().EventName()
	c.RegisterFactory(name, func() event.Event { return factory() })
}

// RegisterFactory adds a factory for events named name, replacing any factory
// registered before.
func (c *Codec) RegisterFactory(name string, factory func() event.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.factories[name] = factory
}

// Registered reports whether events named name can be decoded.
func (c *Codec) Registered(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.factories[name]
	return ok
}

// Encode ...
func (c *Codec) Encode(e event.Event) ([]byte, error) {
	payload, err := msgpack.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode event %s: %w", e.EventName(), err)
	}
	b, err := msgpack.Marshal(envelope{ID: uuid.NewString(), Name: e.EventName(), Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("encode event %s: %w", e.EventName(), err)
	}
	return b, nil
}

// Decode ...
func (c *Codec) Decode(data []byte) (event.Event, error) {
	var env envelope
	if err := msgpack.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	c.mu.RLock()
	factory, ok := c.factories[env.Name]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, env.Name)
	}
	e := factory()
	if err := msgpack.Unmarshal(env.Payload, e); err != nil {
		return nil, fmt.Errorf("decode event %s: %w", env.Name, err)
	}
	return e, nil
}
