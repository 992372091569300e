package dragonfly

import (
	"github.com/df-mc/dragonfly/server/player"
	nplayer "github.com/nookure/nookcore/core/player"
)

type handler struct {
	player.NopHandler
	a *Adapter
	w *Wrapper
}

func (h *handler) HandleChat(ctx *player.Context, message *string) {
	p := ctx.Val()
	e := &nplayer.ChatEvent{Player: h.w.bind(p.Tx(), p), Message: *message}
	if err := h.a.core.Events().Fire(h.a.core.Context(), e); err != nil {
		h.a.log.Error("Fire chat event.", "player", h.w.Name(), "error", err)
	}
	if e.Cancelled() {
		ctx.Cancel()
		return
	}
	*message = e.Message
}

func (h *handler) HandleQuit(p *player.Player) {
	h.a.quit(p, h.w)
}
