package logger

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/sandertv/gophertunnel/minecraft/text"
)

// NameKey is the attribute key that overrides the name prefix of a record. The
// plugin manager scopes loggers with it, so every plugin gets its own prefix.
const NameKey = "plugin"

// Options configures a Handler.
type Options struct {
	// Writer receives formatted lines. Defaults to os.Stderr.
	Writer io.Writer
	// Level controls the minimum level written. Sharing the same LevelVar
	// between handlers toggles debug output for all of them at once.
	Level *slog.LevelVar
	// Colour forces coloured output on or off. When nil, colours are used only
	// when Writer is a terminal.
	Colour *bool
	// Time adds a timestamp in front of every line.
	Time bool
}

type output struct {
	mu     sync.Mutex
	w      io.Writer
	level  *slog.LevelVar
	colour bool
	time   bool

	nameColour  *color.Color
	levelColour map[slog.Level]*color.Color
}

// Handler is a slog.Handler that renders records as "<name> | <LEVEL> > <message>"
// followed by the record's attributes as key=value pairs.
type Handler struct {
	name   string
	out    *output
	attrs  []prefixedAttr
	groups []string
}

// prefixedAttr is an attribute added through WithAttrs together with the
// groups open at that time.
type prefixedAttr struct {
	prefix string
	attr   slog.Attr
}

// NewHandler returns a Handler prefixing lines with name.
func NewHandler(name string, opts Options) *Handler {
	if opts.Writer == nil {
		opts.Writer = os.Stderr
	}
	if opts.Level == nil {
		opts.Level = new(slog.LevelVar)
	}
	useColour := false
	if opts.Colour != nil {
		useColour = *opts.Colour
	} else if opts.Writer == os.Stderr || opts.Writer == os.Stdout {
		useColour = !color.NoColor
	}
	out := &output{
		w:          opts.Writer,
		level:      opts.Level,
		colour:     useColour,
		time:       opts.Time,
		nameColour: color.New(color.FgCyan, color.Bold),
		levelColour: map[slog.Level]*color.Color{
			slog.LevelDebug: color.New(color.FgMagenta),
			slog.LevelInfo:  color.New(color.FgGreen),
			slog.LevelWarn:  color.New(color.FgYellow),
			slog.LevelError: color.New(color.FgRed, color.Bold),
		},
	}
	if useColour {
		out.nameColour.EnableColor()
		for _, c := range out.levelColour {
			c.EnableColor()
		}
	} else {
		out.nameColour.DisableColor()
		for _, c := range out.levelColour {
			c.DisableColor()
		}
	}
	return &Handler{name: name, out: out}
}

// Enabled ...
func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.out.level.Level()
}

// Handle ...
func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	name := h.name
	var buf bytes.Buffer

	var writeAttr func(prefix string, a slog.Attr)
	writeAttr = func(prefix string, a slog.Attr) {
		a.Value = a.Value.Resolve()
		if a.Equal(slog.Attr{}) {
			return
		}
		if a.Value.Kind() == slog.KindGroup {
			sub := prefix
			if a.Key != "" {
				sub = joinKey(prefix, a.Key)
			}
			for _, ga := range a.Value.Group() {
				writeAttr(sub, ga)
			}
			return
		}
		if a.Key == NameKey && prefix == "" {
			name = a.Value.String()
			return
		}
		buf.WriteByte(' ')
		buf.WriteString(joinKey(prefix, a.Key))
		buf.WriteByte('=')
		value := a.Value.String()
		if strings.ContainsAny(value, " \t\"=") {
			value = fmt.Sprintf("%q", value)
		}
		buf.WriteString(value)
	}
	for _, pa := range h.attrs {
		writeAttr(pa.prefix, pa.attr)
	}
	prefix := strings.Join(h.groups, ".")
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(prefix, a)
		return true
	})

	var line bytes.Buffer
	if h.out.time {
		t := r.Time
		if t.IsZero() {
			t = time.Now()
		}
		line.WriteString(t.Format("15:04:05 "))
	}
	line.WriteString(h.out.nameColour.Sprint(name))
	line.WriteString(" | ")
	line.WriteString(h.levelColour(r.Level).Sprint(LevelLabel(r.Level)))
	line.WriteString(" > ")
	line.WriteString(text.Clean(r.Message))
	line.Write(buf.Bytes())
	line.WriteByte('\n')

	h.out.mu.Lock()
	defer h.out.mu.Unlock()
	_, err := h.out.w.Write(line.Bytes())
	return err
}

// WithAttrs ...
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	prefix := strings.Join(h.groups, ".")
	clone := *h
	clone.attrs = slices.Clone(h.attrs)
	for _, a := range attrs {
		clone.attrs = append(clone.attrs, prefixedAttr{prefix: prefix, attr: a})
	}
	return &clone
}

// WithGroup ...
func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.groups = append(append([]string(nil), h.groups...), name)
	return &clone
}

func joinKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

func (h *Handler) levelColour(level slog.Level) *color.Color {
	switch {
	case level >= slog.LevelError:
		return h.out.levelColour[slog.LevelError]
	case level >= slog.LevelWarn:
		return h.out.levelColour[slog.LevelWarn]
	case level >= slog.LevelInfo:
		return h.out.levelColour[slog.LevelInfo]
	default:
		return h.out.levelColour[slog.LevelDebug]
	}
}

// LevelLabel returns the label printed for a level: DEBUG, INFO, WARNING or ERROR.
func LevelLabel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARNING"
	case level >= slog.LevelInfo:
		return "INFO"
	default:
		return "DEBUG"
	}
}

var _ slog.Handler = (*Handler)(nil)
