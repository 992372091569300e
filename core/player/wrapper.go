package player

import (
	"errors"
	"iter"
	"slices"
	"sync"

	"github.com/google/uuid"
)

// ErrChannelUnsupported is returned by SendPluginMessage on platforms that
// cannot deliver plugin messages to the client.
var ErrChannelUnsupported = errors.New("plugin channels are not supported by this platform")

// Wrapper is the platform independent view of an online player.
type Wrapper interface {
	Sender
	// SendPluginMessage sends data on a plugin channel through the player's
	// connection.
	SendPluginMessage(channel string, data []byte) error
	// ListeningPluginChannels returns the plugin channels the client listens on.
	ListeningPluginChannels() []string
	// Teleport moves the player to the position of another player.
	Teleport(to Wrapper) error
}

// Directory looks up online players by their UUID.
type Directory interface {
	Find(id uuid.UUID) (Wrapper, bool)
	Wrappers() []Wrapper
	Len() int
}

// WrapperManager maps platform players of type T to wrappers of type P. It
// keeps the wrappers in join order and indexes them by UUID as well.
type WrapperManager[T comparable, P Wrapper] struct {
	mu       sync.RWMutex
	wrappers map[T]P
	players  map[uuid.UUID]T
	order    []uuid.UUID
}

// NewWrapperManager ...
func NewWrapperManager[T comparable, P Wrapper]() *WrapperManager[T, P] {
	return &WrapperManager[T, P]{
		wrappers: make(map[T]P),
		players:  make(map[uuid.UUID]T),
	}
}

// Wrapper returns the wrapper of a platform player.
func (m *WrapperManager[T, P]) Wrapper(p T) (P, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.wrappers[p]
	return w, ok
}

// WrapperByUUID returns the wrapper of the player with the UUID passed.
func (m *WrapperManager[T, P]) WrapperByUUID(id uuid.UUID) (P, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.players[id]
	if !ok {
		var zero P
		return zero, false
	}
	w, ok := m.wrappers[p]
	return w, ok
}

// Player returns the platform player a wrapper belongs to.
func (m *WrapperManager[T, P]) Player(w P) (T, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.players[w.UUID()]
	if !ok {
		var zero T
		return zero, false
	}
	return p, true
}

// Add registers w as the wrapper of p, replacing any wrapper p had before.
func (m *WrapperManager[T, P]) Add(p T, w P) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if old, ok := m.wrappers[p]; ok {
		m.removeLocked(p, old)
	}
	id := w.UUID()
	if other, ok := m.players[id]; ok {
		m.removeLocked(other, m.wrappers[other])
	}
	m.wrappers[p] = w
	m.players[id] = p
	m.order = append(m.order, id)
}

// Remove removes the wrapper of p and returns it. Removing a player that was
// never added is a no-op.
func (m *WrapperManager[T, P]) Remove(p T) (P, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.wrappers[p]
	if !ok {
		return w, false
	}
	m.removeLocked(p, w)
	return w, true
}

func (m *WrapperManager[T, P]) removeLocked(p T, w P) {
	delete(m.wrappers, p)
	id := w.UUID()
	if cur, ok := m.players[id]; ok && cur == p {
		delete(m.players, id)
		m.order = slices.DeleteFunc(m.order, func(o uuid.UUID) bool { return o == id })
	}
}

// All returns the wrappers in the order they were added.
func (m *WrapperManager[T, P]) All() iter.Seq[P] {
	return func(yield func(P) bool) {
		for _, w := range m.snapshot() {
			if !yield(w) {
				return
			}
		}
	}
}

// Len returns the number of wrappers.
func (m *WrapperManager[T, P]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.wrappers)
}

// Clear removes all wrappers.
func (m *WrapperManager[T, P]) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.wrappers)
	clear(m.players)
	m.order = nil
}

// Find implements Directory.
func (m *WrapperManager[T, P]) Find(id uuid.UUID) (Wrapper, bool) {
	w, ok := m.WrapperByUUID(id)
	if !ok {
		return nil, false
	}
	return w, true
}

// Wrappers implements Directory.
func (m *WrapperManager[T, P]) Wrappers() []Wrapper {
	ws := m.snapshot()
	out := make([]Wrapper, len(ws))
	for i, w := range ws {
		out[i] = w
	}
	return out
}

func (m *WrapperManager[T, P]) snapshot() []P {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]P, 0, len(m.order))
	for _, id := range m.order {
		if w, ok := m.wrappers[m.players[id]]; ok {
			out = append(out, w)
		}
	}
	return out
}

var _ Directory = (*WrapperManager[string, Wrapper])(nil)
