// Package dragonfly connects NookCore to a dragonfly server: it tracks online
// players as wrappers, fires the player events of NookCore and makes the
// commands of the command manager available in game.
package dragonfly

import (
	"context"
	"log/slog"

	"github.com/df-mc/dragonfly/server"
	"github.com/df-mc/dragonfly/server/player"
	"github.com/google/uuid"
	"github.com/nookure/nookcore/core/command"
	"github.com/nookure/nookcore/core/event"
	nplayer "github.com/nookure/nookcore/core/player"
)

// Core is the part of the NookCore runtime the adapter uses.
type Core interface {
	Context() context.Context
	Events() *event.Manager
	Commands() *command.Manager
	PlayerSeen(ctx context.Context, id uuid.UUID, name string) error
}

// Players is the directory of dragonfly players. Pass it as the Players of the
// core configuration.
type Players = nplayer.WrapperManager[uuid.UUID, *Wrapper]

// NewPlayers ...
func NewPlayers() *Players {
	return nplayer.NewWrapperManager[uuid.UUID, *Wrapper]()
}

// Adapter links a Core to a dragonfly server.
type Adapter struct {
	core    Core
	srv     *server.Server
	log     *slog.Logger
	players *Players
	perms   PermissionFunc
}

// Option ...
type Option func(*Adapter)

// WithPermissions sets the function deciding the permissions of players. By
// default players hold no permission.
func WithPermissions(fn PermissionFunc) Option {
	return func(a *Adapter) { a.perms = fn }
}

// WithLogger ...
func WithLogger(log *slog.Logger) Option {
	return func(a *Adapter) { a.log = log }
}

// New returns an Adapter for srv. players must be the directory the core was
// configured with. The commands of the core's command manager are registered
// with dragonfly from now on.
func New(c Core, srv *server.Server, players *Players, opts ...Option) *Adapter {
	a := &Adapter{core: c, srv: srv, log: slog.Default(), players: players}
	for _, opt := range opts {
		opt(a)
	}
	a.log = a.log.With("subsystem", "dragonfly")
	c.Commands().SetRegistrar(registrar{a: a})
	return a
}

// Players returns the online players.
func (a *Adapter) Players() *Players { return a.players }

// Run accepts players joining the server until it is closed.
func (a *Adapter) Run() {
	for p := range a.srv.Accept() {
		a.Join(p)
	}
}

// Join starts tracking p. It must be called from within the transaction p
// was handed out in, as done by Run.
func (a *Adapter) Join(p *player.Player) {
	w := newWrapper(p, a.perms)
	a.players.Add(w.UUID(), w)
	p.Handle(&handler{a: a, w: w})

	if err := a.core.Events().Fire(a.core.Context(), nplayer.JoinEvent{Player: w.bind(p.Tx(), p)}); err != nil {
		a.log.Error("Fire join event.", "player", w.Name(), "error", err)
	}
	a.seen(w)
}

func (a *Adapter) quit(p *player.Player, w *Wrapper) {
	if err := a.core.Events().Fire(a.core.Context(), nplayer.QuitEvent{Player: w.bind(p.Tx(), p)}); err != nil {
		a.log.Error("Fire quit event.", "player", w.Name(), "error", err)
	}
	a.players.Remove(w.UUID())
	w.close()
	a.seen(w)
}

// seen records the player in the database without blocking the world.
func (a *Adapter) seen(w *Wrapper) {
	go func() {
		if err := a.core.PlayerSeen(a.core.Context(), w.UUID(), w.Name()); err != nil {
			a.log.Error("Record player.", "player", w.Name(), "error", err)
		}
	}()
}

// wrapper returns the tracked wrapper of p, creating one if p is unknown.
func (a *Adapter) wrapper(p *player.Player) *Wrapper {
	if w, ok := a.players.Wrapper(p.UUID()); ok {
		return w
	}
	return newWrapper(p, a.perms)
}
