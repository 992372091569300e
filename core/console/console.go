// Package console reads command lines from a terminal and runs them through a
// command.Manager as the console sender.
package console

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nookure/nookcore/core/command"
	"github.com/nookure/nookcore/core/player"
)

// Fallback runs a line no registered command matched. It reports whether the
// line was handled.
type Fallback func(line string) bool

// Console provides a simple CLI backed command sender that reads commands from
// an io.Reader (defaulting to os.Stdin) and dispatches them.
type Console struct {
	commands *command.Manager
	log      *slog.Logger
	sender   player.Sender
	reader   io.Reader
	fallback Fallback
}

// New returns a Console dispatching to commands. Command output is written to
// log.
func New(commands *command.Manager, log *slog.Logger) *Console {
	if log == nil {
		log = slog.Default()
	}
	return &Console{
		commands: commands,
		log:      log,
		sender:   player.NewConsoleSender(log),
		reader:   os.Stdin,
	}
}

// WithReader sets a custom reader for the console input.
func (c *Console) WithReader(r io.Reader) *Console {
	if r != nil {
		c.reader = r
	}
	return c
}

// WithFallback sets the function running lines that match no command, for
// example the commands of the host platform.
func (c *Console) WithFallback(fn Fallback) *Console {
	c.fallback = fn
	return c
}

// Sender returns the sender commands are run as.
func (c *Console) Sender() player.Sender { return c.sender }

// Run starts consuming commands from the console. It blocks until the context
// is cancelled or the underlying reader reaches EOF.
func (c *Console) Run(ctx context.Context) {
	scanner := bufio.NewScanner(c.reader)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				c.log.Error("Console input error.", "error", err)
			}
			return
		}
		c.Execute(scanner.Text())
	}
}

// Execute runs a single line. Leading slashes are optional.
func (c *Console) Execute(line string) bool {
	line = strings.TrimPrefix(strings.TrimSpace(line), "/")
	if line == "" {
		return false
	}
	if c.commands.Dispatch(c.sender, line) {
		return true
	}
	if c.fallback != nil && c.fallback(line) {
		return true
	}
	c.log.Warn("Unknown command.", "command", strings.Fields(line)[0])
	return false
}
