package messenger

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nookure/nookcore/core/player"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"
)

// SocketEvent is the socket.io event events are relayed with.
const SocketEvent = "nookcore:event"

// ErrNotConnected is returned when publishing before the relay connected.
var ErrNotConnected = errors.New("socket.io relay is not connected")

// SocketIOConfig ...
type SocketIOConfig struct {
	// URL of the relay, for example ws://localhost:3000/socket.io/.
	URL       string
	Namespace string
	// ConnectTimeout defaults to 15 seconds.
	ConnectTimeout time.Duration
}

// SocketIOTransport relays events through a socket.io server. Every message is
// tagged with the origin of the process so that the relay's broadcast of our
// own messages is ignored.
type SocketIOTransport struct {
	receivers
	log    *slog.Logger
	conf   SocketIOConfig
	origin uuid.UUID

	mu sync.Mutex
	io *socket.Socket
}

// NewSocketIOTransport ...
func NewSocketIOTransport(log *slog.Logger, conf SocketIOConfig) *SocketIOTransport {
	if conf.ConnectTimeout <= 0 {
		conf.ConnectTimeout = 15 * time.Second
	}
	return &SocketIOTransport{
		log:    log.With("transport", "socket.io", "url", conf.URL),
		conf:   conf,
		origin: uuid.New(),
	}
}

// Origin returns the identifier messages of this transport are tagged with.
func (t *SocketIOTransport) Origin() uuid.UUID { return t.origin }

// Prepare connects to the relay and waits until the connection is established.
func (t *SocketIOTransport) Prepare(ctx context.Context) error {
	parsed, err := url.Parse(t.conf.URL)
	if err != nil {
		return fmt.Errorf("failed to parse URL: %w", err)
	}

	opts := socket.DefaultOptions()
	if parsed.Path != "" {
		opts.SetPath(parsed.Path)
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))

	baseURL := fmt.Sprintf("%s://%s", parsed.Scheme, parsed.Host)
	io := socket.NewManager(baseURL, opts).Socket(t.conf.Namespace, opts)

	connected := make(chan error, 1)
	io.Once(types.EventName("connect"), func(...any) {
		t.log.Info("Connected to relay.", "sid", io.Id())
		connected <- nil
	})
	io.Once(types.EventName("connect_error"), func(errs ...any) {
		err := errors.New("connect error")
		if len(errs) > 0 {
			if e, ok := errs[0].(error); ok {
				err = e
			}
		}
		connected <- err
	})
	io.On(types.EventName(SocketEvent), t.handle)
	io.Connect()

	select {
	case err := <-connected:
		if err != nil {
			io.Disconnect()
			return fmt.Errorf("socket.io connection failed: %w", err)
		}
	case <-ctx.Done():
		io.Disconnect()
		return fmt.Errorf("context cancelled while waiting for socket.io connection: %w", ctx.Err())
	case <-time.After(t.conf.ConnectTimeout):
		io.Disconnect()
		return fmt.Errorf("timed out after %v waiting for socket.io connection", t.conf.ConnectTimeout)
	}

	t.mu.Lock()
	t.io = io
	t.mu.Unlock()
	return nil
}

// Publish ...
func (t *SocketIOTransport) Publish(ctx context.Context, _ player.Wrapper, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	io := t.io
	t.mu.Unlock()
	if io == nil || !io.Connected() {
		return ErrNotConnected
	}
	io.Emit(SocketEvent, map[string]any{
		"origin":  t.origin.String(),
		"payload": base64.StdEncoding.EncodeToString(data),
	})
	return nil
}

// handle decodes a relayed message. Messages published by this transport are
// dropped.
func (t *SocketIOTransport) handle(args ...any) {
	if len(args) == 0 {
		return
	}
	msg, ok := args[0].(map[string]any)
	if !ok {
		t.log.Debug("Dropped malformed relay message.", "type", fmt.Sprintf("%T", args[0]))
		return
	}
	origin, _ := msg["origin"].(string)
	if origin == t.origin.String() {
		return
	}
	payload, _ := msg["payload"].(string)
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		t.log.Debug("Dropped relay message with invalid payload.", "origin", origin, "error", err)
		return
	}
	t.deliver(data)
}

// OnMessage ...
func (t *SocketIOTransport) OnMessage(fn func(data []byte)) { t.set(fn) }

// Close disconnects from the relay.
func (t *SocketIOTransport) Close() error {
	t.mu.Lock()
	io := t.io
	t.io = nil
	t.mu.Unlock()
	if io != nil {
		t.log.Info("Disconnecting from relay.", "sid", io.Id())
		io.Disconnect()
	}
	return nil
}
