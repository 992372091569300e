package messenger

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/nookure/nookcore/core/player"
	"k8s.io/utils/clock"
)

// Channel is the plugin channel events travel on.
const Channel = "nookcore:events"

// DefaultDedupeWindow is the time a received message is remembered for.
const DefaultDedupeWindow = 5 * time.Second

// ErrNoCarrier is returned when no online player can carry a plugin message.
var ErrNoCarrier = errors.New("no player listening on " + Channel)

// ChannelTransport sends events as plugin messages through the connection of
// an online player. Proxies forward the message to the other servers, so the
// same message may arrive through more than one player. Copies of a message id
// are dropped within the dedupe window.
type ChannelTransport struct {
	receivers
	players player.Directory
	clock   clock.PassiveClock
	window  time.Duration

	mu     sync.Mutex
	seen   map[uint64]time.Time
	closed bool
}

// NewChannelTransport returns a transport choosing carriers from players. A
// nil clock uses the real time.
func NewChannelTransport(players player.Directory, clk clock.PassiveClock, window time.Duration) *ChannelTransport {
	if clk == nil {
		clk = clock.RealClock{}
	}
	if window <= 0 {
		window = DefaultDedupeWindow
	}
	return &ChannelTransport{
		players: players,
		clock:   clk,
		window:  window,
		seen:    make(map[uint64]time.Time),
	}
}

// Prepare ...
func (t *ChannelTransport) Prepare(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = false
	return nil
}

// Publish sends data through sender, or through any other listening player if
// sender is nil or does not listen on the channel.
func (t *ChannelTransport) Publish(ctx context.Context, sender player.Wrapper, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return ErrClosed
	}

	carrier := sender
	if carrier == nil || !listening(carrier) {
		carrier = nil
		for _, w := range t.players.Wrappers() {
			if listening(w) {
				carrier = w
				break
			}
		}
	}
	if carrier == nil {
		return ErrNoCarrier
	}
	return carrier.SendPluginMessage(Channel, data)
}

func listening(w player.Wrapper) bool {
	return slices.Contains(w.ListeningPluginChannels(), Channel)
}

// Receive handles a plugin message read from a player connection. Messages on
// other channels and copies of a message already received are ignored. Data
// without a message id is always delivered. It reports whether the message
// was delivered.
func (t *ChannelTransport) Receive(channel string, data []byte) bool {
	if channel != Channel {
		return false
	}
	id, hasID := MessageID(data)
	sum := xxhash.Sum64String(id)
	now := t.clock.Now()

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return false
	}
	if !hasID {
		t.mu.Unlock()
		t.deliver(slices.Clone(data))
		return true
	}
	for h, at := range t.seen {
		if now.Sub(at) >= t.window {
			delete(t.seen, h)
		}
	}
	if _, dup := t.seen[sum]; dup {
		t.mu.Unlock()
		return false
	}
	t.seen[sum] = now
	t.mu.Unlock()

	t.deliver(slices.Clone(data))
	return true
}

// OnMessage ...
func (t *ChannelTransport) OnMessage(fn func(data []byte)) { t.set(fn) }

// Close ...
func (t *ChannelTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	clear(t.seen)
	return nil
}
