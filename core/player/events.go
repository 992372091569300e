package player

import "github.com/nookure/nookcore/core/event"

// JoinEvent is fired once a player joined and its wrapper was added.
type JoinEvent struct {
	Player Wrapper
}

// EventName ...
func (JoinEvent) EventName() string { return "nookcore:player_join" }

// QuitEvent is fired when a player left, before its wrapper is removed.
type QuitEvent struct {
	Player Wrapper
}

// EventName ...
func (QuitEvent) EventName() string { return "nookcore:player_quit" }

// ChatEvent is fired when a player sends a chat message. Cancelling it stops
// the message from being sent.
type ChatEvent struct {
	event.Cancellable
	Player  Wrapper
	Message string
}

// EventName ...
func (*ChatEvent) EventName() string { return "nookcore:player_chat" }
