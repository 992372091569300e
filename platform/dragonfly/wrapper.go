package dragonfly

import (
	"errors"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/df-mc/dragonfly/server/player"
	"github.com/df-mc/dragonfly/server/world"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
	nplayer "github.com/nookure/nookcore/core/player"
)

// ErrOffline is returned when a player left the server.
var ErrOffline = errors.New("player is offline")

// PermissionFunc reports whether a player holds a permission.
type PermissionFunc func(w *Wrapper, permission string) bool

// Operators grants every permission to the players named, compared
// case-insensitively. Other players hold no permission.
func Operators(names ...string) PermissionFunc {
	names = slices.Clone(names)
	return func(w *Wrapper, _ string) bool {
		return slices.ContainsFunc(names, func(n string) bool { return strings.EqualFold(n, w.Name()) })
	}
}

// online is the part of a dragonfly player the wrapper uses. It is only valid
// within a transaction of the player's world.
type online interface {
	Message(a ...any)
	SendTip(a ...any)
	Latency() time.Duration
	NameTag() string
	Position() mgl64.Vec3
	Teleport(pos mgl64.Vec3)
}

// job is run with the player in a transaction of its world.
type job func(p online)

// Wrapper is the nookcore view of a dragonfly player. It never blocks: actions
// are queued and run in order in a later transaction of the player's world, so
// its methods may be called from any goroutine, including from within a
// transaction. Ping and DisplayName return the values seen in the last
// transaction.
type Wrapper struct {
	handle *world.EntityHandle
	id     uuid.UUID
	name   string
	xuid   string
	perms  PermissionFunc

	// execWorld runs fn in a transaction of the player's world and reports
	// whether the player was still online. The entity handle is used if nil.
	execWorld func(fn job) bool

	latency atomic.Int64
	nameTag atomic.Pointer[string]

	mu      sync.Mutex
	queue   []job
	running bool
	closed  bool
}

func newWrapper(p *player.Player, perms PermissionFunc) *Wrapper {
	w := &Wrapper{handle: p.H(), id: p.UUID(), name: p.Name(), xuid: p.XUID(), perms: perms}
	w.observe(p)
	return w
}

// observe caches the values returned by Ping and DisplayName.
func (w *Wrapper) observe(p online) {
	w.latency.Store(p.Latency().Milliseconds())
	tag := p.NameTag()
	w.nameTag.Store(&tag)
}

func (w *Wrapper) exec(fn job) bool {
	if w.execWorld != nil {
		return w.execWorld(fn)
	}
	if w.handle == nil {
		return false
	}
	ran := false
	w.handle.ExecWorld(func(_ *world.Tx, e world.Entity) {
		if p, ok := e.(*player.Player); ok {
			fn(p)
			ran = true
		}
	})
	return ran
}

// enqueue schedules fn. It reports false if the player left.
func (w *Wrapper) enqueue(fn job) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return false
	}
	w.queue = append(w.queue, fn)
	if !w.running {
		w.running = true
		go w.drain()
	}
	return true
}

// drain runs the queued jobs until the queue is empty. Jobs queued together
// share a transaction.
func (w *Wrapper) drain() {
	for {
		w.mu.Lock()
		jobs := w.queue
		w.queue = nil
		if len(jobs) == 0 || w.closed {
			w.running = false
			w.mu.Unlock()
			return
		}
		w.mu.Unlock()

		ok := w.exec(func(p online) {
			for _, fn := range jobs {
				fn(p)
			}
			w.observe(p)
		})
		if !ok {
			w.close()
		}
	}
}

// close drops the queued jobs. Later actions are ignored.
func (w *Wrapper) close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	w.queue = nil
}

func (w *Wrapper) SendMessage(message string) {
	w.enqueue(func(p online) { p.Message(message) })
}

func (w *Wrapper) SendActionbar(message string) {
	w.enqueue(func(p online) { p.SendTip(message) })
}

// Ping returns the last known latency and schedules a refresh.
func (w *Wrapper) Ping() int {
	if !w.enqueue(func(online) {}) {
		return -1
	}
	return int(w.latency.Load())
}

func (w *Wrapper) DisplayName() string {
	if tag := w.nameTag.Load(); tag != nil && *tag != "" {
		return *tag
	}
	return w.name
}

func (w *Wrapper) Name() string    { return w.name }
func (w *Wrapper) UUID() uuid.UUID { return w.id }

// XUID returns the Xbox Live user ID of the player.
func (w *Wrapper) XUID() string { return w.xuid }

func (w *Wrapper) HasPermission(permission string) bool {
	return permission == "" || (w.perms != nil && w.perms(w, permission))
}

func (w *Wrapper) IsPlayer() bool { return true }

// SendPluginMessage always fails: Bedrock clients have no plugin channels.
func (w *Wrapper) SendPluginMessage(string, []byte) error {
	return nplayer.ErrChannelUnsupported
}

func (w *Wrapper) ListeningPluginChannels() []string { return nil }

// Teleport schedules moving the player to the position to has once its own
// queued actions ran. It returns ErrOffline if either player already left.
func (w *Wrapper) Teleport(to nplayer.Wrapper) error {
	target, ok := unwrap(to)
	if !ok {
		return errors.New("teleport target is not a dragonfly player")
	}
	if w.isClosed() {
		return ErrOffline
	}
	if !target.enqueue(func(p online) {
		pos := p.Position()
		w.enqueue(func(p online) { p.Teleport(pos) })
	}) {
		return ErrOffline
	}
	return nil
}

func (w *Wrapper) isClosed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

// bind returns a wrapper that uses p directly. It must only be used within
// the transaction tx.
func (w *Wrapper) bind(tx *world.Tx, p *player.Player) *TxWrapper {
	w.observe(p)
	return &TxWrapper{Wrapper: w, tx: tx, p: p}
}

// TxWrapper is a Wrapper bound to an open world transaction. It is handed to
// events and commands run within the transaction and must not be kept once
// the handler returns: use Detach to keep a reference.
type TxWrapper struct {
	*Wrapper
	tx *world.Tx
	p  *player.Player
}

// Unwrap returns the wrapper that remains valid after the transaction.
func (t *TxWrapper) Unwrap() *Wrapper { return t.Wrapper }

// Detach ...
func (t *TxWrapper) Detach() nplayer.Sender { return t.Wrapper }

func (t *TxWrapper) SendMessage(message string)   { t.p.Message(message) }
func (t *TxWrapper) SendActionbar(message string) { t.p.SendTip(message) }
func (t *TxWrapper) Ping() int                    { return int(t.p.Latency().Milliseconds()) }

func (t *TxWrapper) DisplayName() string {
	if tag := t.p.NameTag(); tag != "" {
		return tag
	}
	return t.name
}

// Teleport moves the player to to right away if to is in the same world, and
// schedules it like Wrapper.Teleport otherwise.
func (t *TxWrapper) Teleport(to nplayer.Wrapper) error {
	target, ok := unwrap(to)
	if !ok {
		return errors.New("teleport target is not a dragonfly player")
	}
	if target.handle != nil {
		if e, ok := target.handle.Entity(t.tx); ok {
			t.p.Teleport(e.Position())
			return nil
		}
	}
	return t.Wrapper.Teleport(to)
}

func unwrap(w nplayer.Wrapper) (*Wrapper, bool) {
	switch w := w.(type) {
	case *Wrapper:
		return w, true
	case *TxWrapper:
		return w.Wrapper, true
	}
	return nil, false
}

var (
	_ nplayer.Wrapper  = (*Wrapper)(nil)
	_ nplayer.Wrapper  = (*TxWrapper)(nil)
	_ nplayer.Detacher = (*TxWrapper)(nil)
	_ online           = (*player.Player)(nil)
)
