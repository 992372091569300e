package player

import (
	"log/slog"

	"github.com/google/uuid"
)

// ConsoleSender is the Sender used for commands typed into the server console.
// Messages sent to it are written to its logger.
type ConsoleSender struct {
	log *slog.Logger
}

// NewConsoleSender ...
func NewConsoleSender(log *slog.Logger) *ConsoleSender {
	if log == nil {
		log = slog.Default()
	}
	return &ConsoleSender{log: log}
}

func (c *ConsoleSender) SendMessage(message string) { c.log.Info(message) }
func (c *ConsoleSender) SendActionbar(string)       {}
func (c *ConsoleSender) Ping() int                  { return -1 }
func (c *ConsoleSender) DisplayName() string        { return "Console" }
func (c *ConsoleSender) Name() string               { return "Console" }
func (c *ConsoleSender) UUID() uuid.UUID            { return uuid.Nil }
func (c *ConsoleSender) HasPermission(string) bool  { return true }
func (c *ConsoleSender) IsPlayer() bool             { return false }

var _ Sender = (*ConsoleSender)(nil)
