package player

import (
	"bytes"
	"log/slog"
	"slices"
	"testing"

	"github.com/google/uuid"
	"github.com/sandertv/gophertunnel/minecraft/text"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testWrapper struct {
	id       uuid.UUID
	name     string
	messages []string
	perms    map[string]bool
}

func newTestWrapper(name string) *testWrapper {
	return &testWrapper{id: uuid.New(), name: name, perms: map[string]bool{}}
}

func (w *testWrapper) SendMessage(m string)                   { w.messages = append(w.messages, m) }
func (w *testWrapper) SendActionbar(string)                   {}
func (w *testWrapper) Ping() int                              { return 25 }
func (w *testWrapper) DisplayName() string                    { return w.name }
func (w *testWrapper) Name() string                           { return w.name }
func (w *testWrapper) UUID() uuid.UUID                        { return w.id }
func (w *testWrapper) HasPermission(p string) bool            { return w.perms[p] }
func (w *testWrapper) IsPlayer() bool                         { return true }
func (w *testWrapper) SendPluginMessage(string, []byte) error { return ErrChannelUnsupported }
func (w *testWrapper) ListeningPluginChannels() []string      { return nil }
func (w *testWrapper) Teleport(Wrapper) error                 { return nil }

func TestSendMiniMessage(t *testing.T) {
	w := newTestWrapper("Steve")

	require.NoError(t, SendMiniMessage(w, "   "))
	assert.Empty(t, w.messages)

	require.NoError(t, SendMiniMessage(w, "Hello {player}, you have {count}%", "player", "Steve", "count", "50"))
	require.Len(t, w.messages, 1)
	assert.Equal(t, "Hello Steve, you have 50%", text.Clean(w.messages[0]))

	assert.ErrorIs(t, SendMiniMessage(w, "Hello {player}", "player"), ErrPlaceholderPairs)
	assert.Len(t, w.messages, 1)
}

func TestFormatColours(t *testing.T) {
	out := Format("<red>Denied</red>")
	assert.Contains(t, out, "§c")
	assert.Equal(t, "Denied", text.Clean(out))
	assert.Equal(t, Format("<grey>x</grey>"), Format("<gray>x</gray>"))
}

func TestSendPlain(t *testing.T) {
	w := newTestWrapper("Alex")
	SendPlain(w, "§aplain <red>tags</red>")
	assert.Equal(t, []string{"plain <red>tags</red>"}, w.messages)
}

type boundWrapper struct {
	*testWrapper
	owner *testWrapper
}

func (b boundWrapper) Detach() Sender { return b.owner }

func TestDetach(t *testing.T) {
	w := newTestWrapper("Steve")
	assert.Same(t, w, Detach(w))

	owner := newTestWrapper("Steve")
	bound := boundWrapper{testWrapper: newTestWrapper("Steve"), owner: owner}
	Detach(bound).SendMessage("later")
	assert.Equal(t, []string{"later"}, owner.messages)
	assert.Empty(t, bound.messages)
}

func TestConsoleSender(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsoleSender(slog.New(slog.NewTextHandler(&buf, nil)))

	assert.True(t, IsConsole(c))
	assert.Equal(t, -1, c.Ping())
	assert.Equal(t, "Console", c.Name())
	assert.Equal(t, "Console", c.DisplayName())
	assert.Equal(t, uuid.Nil, c.UUID())
	assert.True(t, c.HasPermission("anything.at.all"))

	c.SendActionbar("ignored")
	assert.Empty(t, buf.String())
	c.SendMessage("hello")
	assert.Contains(t, buf.String(), "msg=hello")
}

func TestWrapperManager(t *testing.T) {
	m := NewWrapperManager[string, *testWrapper]()
	steve, alex := newTestWrapper("Steve"), newTestWrapper("Alex")

	m.Add("steve", steve)
	m.Add("alex", alex)
	assert.Equal(t, 2, m.Len())

	w, ok := m.Wrapper("steve")
	require.True(t, ok)
	assert.Same(t, steve, w)

	w, ok = m.WrapperByUUID(alex.UUID())
	require.True(t, ok)
	assert.Same(t, alex, w)

	p, ok := m.Player(alex)
	require.True(t, ok)
	assert.Equal(t, "alex", p)

	assert.Equal(t, []*testWrapper{steve, alex}, slices.Collect(m.All()))

	found, ok := m.Find(steve.UUID())
	require.True(t, ok)
	assert.Equal(t, "Steve", found.Name())
	assert.Len(t, m.Wrappers(), 2)

	removed, ok := m.Remove("steve")
	require.True(t, ok)
	assert.Same(t, steve, removed)
	_, ok = m.WrapperByUUID(steve.UUID())
	assert.False(t, ok)

	_, ok = m.Remove("steve")
	assert.False(t, ok)

	m.Clear()
	assert.Equal(t, 0, m.Len())
	assert.Empty(t, slices.Collect(m.All()))
}

func TestWrapperManagerReplace(t *testing.T) {
	m := NewWrapperManager[string, *testWrapper]()
	first, second := newTestWrapper("Steve"), newTestWrapper("Steve")

	m.Add("steve", first)
	m.Add("steve", second)

	assert.Equal(t, 1, m.Len())
	_, ok := m.WrapperByUUID(first.UUID())
	assert.False(t, ok)
	w, ok := m.Wrapper("steve")
	require.True(t, ok)
	assert.Same(t, second, w)
}
