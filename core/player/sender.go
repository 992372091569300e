package player

import (
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/sandertv/gophertunnel/minecraft/text"
)

// ErrPlaceholderPairs is returned by SendMiniMessage when the placeholders are
// not passed as key/value pairs.
var ErrPlaceholderPairs = errors.New("placeholders must be passed as key/value pairs")

// Sender is anything that can run commands and receive messages: an online
// player or the console.
type Sender interface {
	// SendMessage sends an already formatted message.
	SendMessage(message string)
	// SendActionbar shows a message above the hotbar. Senders without an
	// action bar ignore it.
	SendActionbar(message string)
	// Ping returns the latency of the sender in milliseconds, or -1 if unknown.
	Ping() int
	DisplayName() string
	Name() string
	UUID() uuid.UUID
	HasPermission(permission string) bool
	IsPlayer() bool
}

// Detacher is implemented by senders that are only valid while a command or
// an event is handled, such as a player bound to an open world transaction.
type Detacher interface {
	// Detach returns a sender that remains valid afterwards.
	Detach() Sender
}

// Detach returns a sender for s that may be used after the current command or
// event handler returned, for example from another goroutine.
func Detach(s Sender) Sender {
	if d, ok := s.(Detacher); ok {
		return d.Detach()
	}
	return s
}

// IsConsole reports whether s is not a player.
func IsConsole(s Sender) bool {
	return !s.IsPlayer()
}

// SendPlain sends message without formatting: colour tags are left as text
// and § formatting codes are removed.
func SendPlain(s Sender, message string) {
	s.SendMessage(text.Clean(message))
}

// SendMiniMessage renders the colour tags in message and sends it to s. Every
// "{key}" occurrence is replaced with its value from placeholders, which must
// alternate between keys and values. A blank message is not sent.
func SendMiniMessage(s Sender, message string, placeholders ...string) error {
	if strings.TrimSpace(message) == "" {
		return nil
	}
	if len(placeholders)%2 != 0 {
		return ErrPlaceholderPairs
	}
	for i := 0; i < len(placeholders); i += 2 {
		message = strings.ReplaceAll(message, "{"+placeholders[i]+"}", placeholders[i+1])
	}
	s.SendMessage(Format(message))
	return nil
}

var tagAliases = strings.NewReplacer(
	"<gray>", "<grey>", "</gray>", "</grey>",
	"<dark_gray>", "<dark-grey>", "</dark_gray>", "</dark-grey>",
	"<dark_red>", "<dark-red>", "</dark_red>", "</dark-red>",
	"<dark_green>", "<dark-green>", "</dark_green>", "</dark-green>",
	"<dark_blue>", "<dark-blue>", "</dark_blue>", "</dark-blue>",
	"<dark_aqua>", "<dark-aqua>", "</dark_aqua>", "</dark-aqua>",
	"<dark_purple>", "<dark-purple>", "</dark_purple>", "</dark-purple>",
	"<light_purple>", "<purple>", "</light_purple>", "</purple>",
	"<bold>", "<b>", "</bold>", "</b>",
	"<italic>", "<i>", "</italic>", "</i>",
)

// Format renders colour tags such as <red> or <b> into Minecraft formatting
// codes.
func Format(message string) string {
	return text.Colourf("%s", tagAliases.Replace(message))
}
