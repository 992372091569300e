package event

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

var (
	// ErrNotEvent is wrapped by the HandlerError returned when a handler method
	// takes an argument that does not implement Event.
	ErrNotEvent = errors.New("handler argument does not implement event.Event")
	// ErrInvalidHandler is wrapped when a handler method has an unsupported
	// signature.
	ErrInvalidHandler = errors.New("invalid handler signature")

	eventType = reflect.TypeFor[Event]()
	errorType = reflect.TypeFor[error]()
)

type registration struct {
	id               uint64
	owner            string
	listener         any
	handler          string
	priority         Priority
	receiveCancelled bool
	call             func(Event) error
}

type chains map[reflect.Type][]registration

// Manager dispatches events to registered handlers. Registration is guarded by
// a mutex and publishes an immutable snapshot, so Fire never blocks on
// registration and handlers may register or unregister while an event is
// being fired.
type Manager struct {
	mu       sync.Mutex
	log      *slog.Logger
	next     uint64
	handlers chains
	snapshot atomic.Value // chains
	sem      *semaphore.Weighted
	onPanic  atomic.Value // func(owner string, reason any)
}

// DefaultAsyncLimit is the number of events FireAsync dispatches at the same
// time when NewManager is passed a limit of 0.
const DefaultAsyncLimit = 64

// NewManager returns an empty Manager. asyncLimit bounds the number of
// concurrent FireAsync dispatches.
func NewManager(log *slog.Logger, asyncLimit int64) *Manager {
	if log == nil {
		log = slog.Default()
	}
	if asyncLimit <= 0 {
		asyncLimit = DefaultAsyncLimit
	}
	m := &Manager{
		log:      log.With("subsystem", "events"),
		handlers: chains{},
		sem:      semaphore.NewWeighted(asyncLimit),
	}
	m.snapshot.Store(chains{})
	return m
}

// SetPanicHandler sets a function called with the owner of a handler that
// panicked. The panic is also returned from Fire as a HandlerError.
func (m *Manager) SetPanicHandler(fn func(owner string, reason any)) {
	m.onPanic.Store(fn)
}

// SubscribeOption configures a handler added through Subscribe.
type SubscribeOption func(*registration)

// WithPriority sets the priority of the handler.
func WithPriority(p Priority) SubscribeOption {
	return func(r *registration) {
		r.priority = p
	}
}

// ReceiveCancelled makes the handler run for events that were already
// cancelled by a handler before it.
func ReceiveCancelled() SubscribeOption {
	return func(r *registration) {
		r.receiveCancelled = true
	}
}

// Subscribe adds fn as handler for events of type E on behalf of owner. E must
// be the concrete type events are fired with, usually a pointer type. The
// function returned removes the handler.
func Subscribe[E Event](m *Manager, owner string, fn func(E) error, opts ...SubscribeOption) func() {
	if fn == nil {
		return func() {}
	}
	t := reflect.TypeFor[E]()
	reg := registration{
		owner:    owner,
		handler:  fmt.Sprintf("func(%v)", t),
		priority: Normal,
		call: func(e Event) error {
			return fn(e.(E))
		},
	}
	for _, opt := range opts {
		opt(&reg)
	}
	id := m.add(t, reg)

	var once sync.Once
	return func() {
		once.Do(func() {
			m.remove(func(r registration) bool { return r.id == id })
		})
	}
}

// RegisterListener registers every exported method of listener named Handle*
// or On* that takes a single argument. The argument must be a concrete type
// implementing Event, and the method may return an error. If any method is
// invalid, nothing is registered.
func (m *Manager) RegisterListener(listener any) error {
	return m.RegisterListenerFor("", listener)
}

// RegisterListenerFor is RegisterListener with an owner, so that the handlers
// can later be removed through UnregisterOwner.
func (m *Manager) RegisterListenerFor(owner string, listener any) error {
	if listener == nil {
		return &HandlerError{Err: errors.New("listener is nil")}
	}
	v := reflect.ValueOf(listener)
	t := v.Type()
	priorities, _ := listener.(PriorityProvider)

	type pending struct {
		key reflect.Type
		reg registration
	}
	var found []pending
	for i := 0; i < t.NumMethod(); i++ {
		method := t.Method(i)
		if !strings.HasPrefix(method.Name, "Handle") && !strings.HasPrefix(method.Name, "On") {
			continue
		}
		mt := method.Type
		if mt.NumIn() != 2 {
			continue
		}
		name := fmt.Sprintf("(%v).%s", t, method.Name)
		param := mt.In(1)
		if param.Kind() == reflect.Interface || !param.Implements(eventType) {
			return &HandlerError{Handler: name, Err: fmt.Errorf("%w: %v", ErrNotEvent, param)}
		}
		if mt.NumOut() > 1 || (mt.NumOut() == 1 && mt.Out(0) != errorType) {
			return &HandlerError{Handler: name, Err: fmt.Errorf("%w: must return nothing or an error", ErrInvalidHandler)}
		}
		fn := v.Method(i)
		priority := Normal
		if priorities != nil {
			priority = priorities.Priority(method.Name)
		}
		found = append(found, pending{key: param, reg: registration{
			owner:    owner,
			listener: listener,
			handler:  name,
			priority: priority,
			call: func(e Event) error {
				out := fn.Call([]reflect.Value{reflect.ValueOf(e)})
				if len(out) == 1 && !out[0].IsNil() {
					return out[0].Interface().(error)
				}
				return nil
			},
		}})
	}
	for _, p := range found {
		m.log.Debug("Registered event handler.", "handler", p.reg.handler, "priority", p.reg.priority)
		m.add(p.key, p.reg)
	}
	return nil
}

// UnregisterListener removes every handler registered for listener.
func (m *Manager) UnregisterListener(listener any) {
	m.remove(func(r registration) bool { return sameListener(r.listener, listener) })
}

// UnregisterOwner removes every handler registered on behalf of owner.
func (m *Manager) UnregisterOwner(owner string) {
	m.remove(func(r registration) bool { return r.owner == owner })
}

// UnregisterAll removes all handlers.
func (m *Manager) UnregisterAll() {
	m.mu.Lock()
	m.handlers = chains{}
	m.snapshot.Store(chains{})
	m.mu.Unlock()
}

// RenameOwner moves every handler of oldOwner to newOwner.
func (m *Manager) RenameOwner(oldOwner, newOwner string) {
	if newOwner == "" || oldOwner == newOwner {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, regs := range m.handlers {
		for i := range regs {
			if regs[i].owner == oldOwner {
				regs[i].owner = newOwner
			}
		}
	}
	m.publishLocked()
}

// HandlerCount returns the number of handlers that would run for e.
func (m *Manager) HandlerCount(e Event) int {
	return len(m.load()[reflect.TypeOf(e)])
}

// Fire calls the handlers of e in priority order on the calling goroutine. It
// stops at the first handler that returns an error or panics, returning a
// HandlerError, and when ctx is done.
func (m *Manager) Fire(ctx context.Context, e Event) error {
	if e == nil {
		return nil
	}
	regs := m.load()[reflect.TypeOf(e)]
	if len(regs) == 0 {
		return nil
	}
	m.log.Debug("Firing event.", "event", e.EventName(), "handlers", len(regs))

	c, canCancel := e.(cancellable)
	for _, reg := range regs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if canCancel && c.Cancelled() && reg.priority != Monitor && !reg.receiveCancelled {
			continue
		}
		if err := m.invoke(reg, e); err != nil {
			return &HandlerError{Handler: reg.handler, Err: err}
		}
	}
	return nil
}

// FireAsync fires e on a new goroutine. At most the manager's async limit of
// events are dispatched at the same time; the rest wait for a slot. The
// channel returned receives exactly one value: the result of Fire.
func (m *Manager) FireAsync(ctx context.Context, e Event) <-chan error {
	done := make(chan error, 1)
	go func() {
		if err := m.sem.Acquire(ctx, 1); err != nil {
			done <- err
			return
		}
		defer m.sem.Release(1)
		done <- m.Fire(ctx, e)
	}()
	return done
}

func (m *Manager) invoke(reg registration, e Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			m.log.Error("Event handler panicked.", "handler", reg.handler, "owner", reg.owner, "panic", r)
			if fn, ok := m.onPanic.Load().(func(string, any)); ok && fn != nil {
				fn(reg.owner, r)
			}
		}
	}()
	return reg.call(e)
}

func (m *Manager) add(t reflect.Type, reg registration) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	reg.id = m.next
	m.next++
	m.handlers[t] = append(m.handlers[t], reg)
	m.publishLocked()
	return reg.id
}

func (m *Manager) remove(match func(registration) bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for t, regs := range m.handlers {
		regs = slices.DeleteFunc(regs, match)
		if len(regs) == 0 {
			delete(m.handlers, t)
			continue
		}
		m.handlers[t] = regs
	}
	m.publishLocked()
}

// publishLocked stores a sorted copy of the handlers. Handlers of the same
// priority keep their registration order.
func (m *Manager) publishLocked() {
	snap := make(chains, len(m.handlers))
	for t, regs := range m.handlers {
		sorted := slices.Clone(regs)
		slices.SortStableFunc(sorted, func(a, b registration) int {
			return a.priority.Slot() - b.priority.Slot()
		})
		snap[t] = sorted
	}
	m.snapshot.Store(snap)
}

func (m *Manager) load() chains {
	if v := m.snapshot.Load(); v != nil {
		return v.(chains)
	}
	return nil
}

func sameListener(a, b any) bool {
	if a == nil || b == nil {
		return false
	}
	ta := reflect.TypeOf(a)
	if ta != reflect.TypeOf(b) || !ta.Comparable() {
		return false
	}
	return a == b
}
