package dragonfly

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/df-mc/dragonfly/server/cmd"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
	"github.com/nookure/nookcore/core/command"
	"github.com/nookure/nookcore/core/event"
	nplayer "github.com/nookure/nookcore/core/player"
)

type testCore struct {
	events   *event.Manager
	commands *command.Manager
}

func newTestCore() *testCore {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &testCore{
		events:   event.NewManager(log, event.DefaultAsyncLimit),
		commands: command.NewManager(log, nil),
	}
}

func (c *testCore) Context() context.Context  { return context.Background() }
func (c *testCore) Events() *event.Manager     { return c.events }
func (c *testCore) Commands() *command.Manager { return c.commands }
func (c *testCore) PlayerSeen(context.Context, uuid.UUID, string) error {
	return nil
}

func TestOperators(t *testing.T) {
	perms := Operators("Steve")
	if !(&Wrapper{name: "steve", perms: perms}).HasPermission("nookcore.admin") {
		t.Fatal("operator lacks permission")
	}
	alex := &Wrapper{name: "Alex", perms: perms}
	if alex.HasPermission("nookcore.admin") {
		t.Fatal("non operator holds permission")
	}
	if !alex.HasPermission("") {
		t.Fatal("empty permission denied")
	}
	if (&Wrapper{name: "Steve"}).HasPermission("x") {
		t.Fatal("wrapper without permission function holds permission")
	}
}

func TestWrapperPluginChannels(t *testing.T) {
	w := &Wrapper{name: "Steve", id: uuid.New()}
	if err := w.SendPluginMessage("nookcore:events", []byte("x")); err != nplayer.ErrChannelUnsupported {
		t.Fatalf("expected ErrChannelUnsupported, got %v", err)
	}
	if len(w.ListeningPluginChannels()) != 0 {
		t.Fatal("wrapper listens on plugin channels")
	}
	if !w.IsPlayer() {
		t.Fatal("wrapper is not a player")
	}
}

func TestCommandBridge(t *testing.T) {
	c := newTestCore()
	New(c, nil, NewPlayers(), WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	var sender nplayer.Sender
	ping := command.Func{
		D: command.Data{Name: "nookbridgeping", Aliases: []string{"nbp"}, Description: "Replies with pong."},
		Fn: func(s nplayer.Sender, _ string, args []string) {
			sender = s
			s.SendMessage("pong " + strings.Join(args, " "))
		},
	}
	if err := c.commands.Register(ping); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, ok := cmd.ByAlias("nookbridgeping"); !ok {
		t.Fatal("command not registered with dragonfly")
	}
	if _, ok := cmd.ByAlias("nbp"); !ok {
		t.Fatal("alias not registered with dragonfly")
	}

	var buf bytes.Buffer
	src := consoleSource{log: slog.New(slog.NewTextHandler(&buf, nil))}
	b := bridge{a: &Adapter{core: c, perms: nil}, label: "nookbridgeping"}
	if !b.Allow(src) {
		t.Fatal("console not allowed to run command")
	}
	o := &cmd.Output{}
	b.Run(src, o, nil)
	if len(o.Messages()) != 1 || !strings.HasPrefix(o.Messages()[0].String(), "pong") {
		t.Fatalf("unexpected output: %v", o.Messages())
	}
	if sender == nil || sender.IsPlayer() || sender.Name() != "Console" || !sender.HasPermission("anything") {
		t.Fatalf("unexpected sender: %#v", sender)
	}

	c.commands.Unregister(ping)
	if b.Allow(src) {
		t.Fatal("unregistered command still allowed")
	}
	o = &cmd.Output{}
	b.Run(src, o, nil)
	if len(o.Errors()) != 1 {
		t.Fatalf("expected an error for an unregistered command, got %v", o.Errors())
	}
}

// fakePlayer is a player of a fakeWorld.
type fakePlayer struct {
	messages []string
	tips     []string
	pos      mgl64.Vec3
	latency  time.Duration
	tag      string
}

func (p *fakePlayer) Message(a ...any)        { p.messages = append(p.messages, fmt.Sprint(a...)) }
func (p *fakePlayer) SendTip(a ...any)        { p.tips = append(p.tips, fmt.Sprint(a...)) }
func (p *fakePlayer) Latency() time.Duration  { return p.latency }
func (p *fakePlayer) NameTag() string         { return p.tag }
func (p *fakePlayer) Position() mgl64.Vec3    { return p.pos }
func (p *fakePlayer) Teleport(pos mgl64.Vec3) { p.pos = pos }

// fakeWorld runs one transaction at a time, like a dragonfly world.
type fakeWorld struct {
	mu      sync.Mutex
	offline map[*fakePlayer]bool
}

func (w *fakeWorld) wrapper(name string, p *fakePlayer) *Wrapper {
	wr := &Wrapper{id: uuid.New(), name: name}
	wr.execWorld = func(fn job) bool {
		w.mu.Lock()
		defer w.mu.Unlock()
		if w.offline[p] {
			return false
		}
		fn(p)
		return true
	}
	return wr
}

// tx runs fn while a transaction is open.
func (w *fakeWorld) tx(fn func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fn()
}

// read returns the result of fn run in a transaction.
func read[T any](w *fakeWorld, fn func() T) T {
	w.mu.Lock()
	defer w.mu.Unlock()
	return fn()
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestWrapperCallsWithinTransaction(t *testing.T) {
	world := &fakeWorld{}
	steveP := &fakePlayer{latency: 42 * time.Millisecond, tag: "[Admin] Steve"}
	alexP := &fakePlayer{pos: mgl64.Vec3{1, 2, 3}}
	steve := world.wrapper("Steve", steveP)
	alex := world.wrapper("Alex", alexP)

	// A chat handler broadcasting to every player runs within the world
	// transaction of the sender.
	done := make(chan struct{})
	go world.tx(func() {
		defer close(done)
		steve.SendMessage("hello")
		alex.SendMessage("hello")
		steve.SendActionbar("tip")
		_ = steve.Ping()
		_ = alex.DisplayName()
		if err := steve.Teleport(alex); err != nil {
			t.Errorf("teleport: %v", err)
		}
	})
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("wrapper blocked within a transaction")
	}

	eventually(t, func() bool {
		return read(world, func() bool { return len(steveP.messages) == 1 && steveP.pos == alexP.pos })
	})
	read(world, func() any {
		if !slices.Equal(alexP.messages, []string{"hello"}) || !slices.Equal(steveP.tips, []string{"tip"}) {
			t.Errorf("unexpected messages: %v %v %v", steveP.messages, alexP.messages, steveP.tips)
		}
		return nil
	})
	eventually(t, func() bool { return steve.Ping() == 42 && steve.DisplayName() == "[Admin] Steve" })
	if got := alex.DisplayName(); got != "Alex" {
		t.Fatalf("expected the name without a name tag, got %q", got)
	}
}

func TestWrapperKeepsOrder(t *testing.T) {
	world := &fakeWorld{}
	p := &fakePlayer{}
	w := world.wrapper("Steve", p)

	var want []string
	world.tx(func() {
		for i := range 50 {
			msg := fmt.Sprint("line ", i)
			want = append(want, msg)
			w.SendMessage(msg)
		}
	})
	eventually(t, func() bool { return read(world, func() bool { return len(p.messages) == len(want) }) })
	read(world, func() any {
		if !slices.Equal(p.messages, want) {
			t.Errorf("messages out of order: %v", p.messages)
		}
		return nil
	})
}

func TestWrapperOffline(t *testing.T) {
	world := &fakeWorld{offline: map[*fakePlayer]bool{}}
	p := &fakePlayer{}
	w := world.wrapper("Steve", p)
	world.offline[p] = true

	w.SendMessage("lost")
	eventually(t, func() bool { return w.isClosed() })
	if w.Ping() != -1 {
		t.Fatal("offline player has a latency")
	}
	if err := w.Teleport(world.wrapper("Alex", &fakePlayer{})); err != ErrOffline {
		t.Fatalf("expected ErrOffline, got %v", err)
	}

	closed := world.wrapper("Alex", &fakePlayer{})
	closed.close()
	bob := world.wrapper("Bob", &fakePlayer{})
	if err := bob.Teleport(closed); err != ErrOffline {
		t.Fatalf("expected ErrOffline for an offline target, got %v", err)
	}
}

func TestOutputSenderDetach(t *testing.T) {
	var buf bytes.Buffer
	src := consoleSource{log: slog.New(slog.NewTextHandler(&buf, nil))}
	o := &cmd.Output{}
	s := (&Adapter{}).sender(src, nil, o)

	s.SendMessage("now")
	if len(o.Messages()) != 1 {
		t.Fatalf("expected the message on the command output, got %v", o.Messages())
	}
	detached := nplayer.Detach(s)
	detached.SendMessage("later")
	if len(o.Messages()) != 1 {
		t.Fatal("detached sender wrote to the finished output")
	}
	if !strings.Contains(buf.String(), "later") {
		t.Fatalf("detached message not logged: %q", buf.String())
	}
}
