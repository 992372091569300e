package messenger

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/nookure/nookcore/core/player"
)

// ErrClosed is returned when publishing through a closed transport.
var ErrClosed = errors.New("transport closed")

// Transport carries encoded events between servers.
type Transport interface {
	// Prepare connects the transport. It is called once before any message is
	// published.
	Prepare(ctx context.Context) error
	// Publish sends data to the other servers. sender is the player that
	// caused the message and may be nil.
	Publish(ctx context.Context, sender player.Wrapper, data []byte) error
	// OnMessage sets the function called with every message received.
	OnMessage(fn func(data []byte))
	Close() error
}

// receivers holds the OnMessage function of a transport.
type receivers struct {
	rmu sync.RWMutex
	fn  func([]byte)
}

func (r *receivers) set(fn func([]byte)) {
	r.rmu.Lock()
	defer r.rmu.Unlock()
	r.fn = fn
}

func (r *receivers) deliver(data []byte) {
	r.rmu.RLock()
	fn := r.fn
	r.rmu.RUnlock()
	if fn != nil {
		fn(data)
	}
}

// LocalTransport delivers published messages back to the process itself. It is
// used on single servers and in tests.
type LocalTransport struct {
	receivers
	mu     sync.Mutex
	closed bool
}

// NewLocalTransport ...
func NewLocalTransport() *LocalTransport { return &LocalTransport{} }

// Prepare ...
func (t *LocalTransport) Prepare(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = false
	return nil
}

// Publish ...
func (t *LocalTransport) Publish(ctx context.Context, _ player.Wrapper, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return ErrClosed
	}
	t.deliver(slices.Clone(data))
	return nil
}

// OnMessage ...
func (t *LocalTransport) OnMessage(fn func(data []byte)) { t.set(fn) }

// Close ...
func (t *LocalTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}
