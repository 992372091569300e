package builtin

import (
	"fmt"

	"github.com/nookure/nookcore/core/player"
)

// reply formats a colour tagged message and sends it to sender.
func reply(sender player.Sender, format string, a ...any) {
	msg := format
	if len(a) > 0 {
		msg = fmt.Sprintf(format, a...)
	}
	if err := player.SendMiniMessage(sender, msg); err != nil {
		player.SendPlain(sender, msg)
	}
}

func replyError(sender player.Sender, err any) {
	reply(sender, "<red>%v", err)
}

func bytesToMiB(v uint64) float64 {
	return float64(v) / (1024 * 1024)
}
