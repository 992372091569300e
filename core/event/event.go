// Package event implements a typed event bus. Handlers are bound to the exact
// dynamic type of an event and run in priority order.
package event

import (
	"fmt"
	"sync/atomic"
)

// Event is implemented by every value that can be fired through a Manager.
type Event interface {
	// EventName returns a stable name for the event. It identifies the event
	// when it is sent to other servers.
	EventName() string
}

// Cancellable may be embedded in an event to allow handlers to cancel it.
// Once cancelled, handlers with a priority lower than Monitor are skipped
// unless they subscribed with ReceiveCancelled.
type Cancellable struct {
	cancelled atomic.Bool
}

// Cancel cancels the event.
func (c *Cancellable) Cancel() {
	c.cancelled.Store(true)
}

// SetCancelled sets the cancelled state of the event.
func (c *Cancellable) SetCancelled(cancelled bool) {
	c.cancelled.Store(cancelled)
}

// Cancelled reports whether the event was cancelled.
func (c *Cancellable) Cancelled() bool {
	return c.cancelled.Load()
}

type cancellable interface {
	Cancelled() bool
}

// Priority controls the order in which handlers of the same event run. Lower
// priorities run first so that higher priorities get the final say.
type Priority int

const (
	Lowest Priority = iota
	Low
	Normal
	High
	Highest
	// Monitor handlers run last and always observe the event, cancelled or
	// not. They should not modify it.
	Monitor
)

// Slot returns the position of the priority in the dispatch order.
func (p Priority) Slot() int {
	return int(p)
}

func (p Priority) String() string {
	switch p {
	case Lowest:
		return "lowest"
	case Low:
		return "low"
	case Normal:
		return "normal"
	case High:
		return "high"
	case Highest:
		return "highest"
	case Monitor:
		return "monitor"
	}
	return fmt.Sprintf("priority(%d)", int(p))
}

// PriorityProvider may be implemented by listeners passed to RegisterListener
// to choose a priority per handler method. Methods default to Normal.
type PriorityProvider interface {
	Priority(method string) Priority
}

// HandlerError is returned when a handler cannot be registered or fails while
// handling an event.
type HandlerError struct {
	// Handler describes the handler, for example "(*demo.listener).HandleJoin".
	Handler string
	Err     error
}

func (e *HandlerError) Error() string {
	if e.Handler == "" {
		return "event handler: " + e.Err.Error()
	}
	return "event handler " + e.Handler + ": " + e.Err.Error()
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}
