package core

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/nookure/nookcore/core/boot"
	"github.com/nookure/nookcore/core/database"
	"github.com/nookure/nookcore/core/event"
	"github.com/nookure/nookcore/core/messenger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type greetEvent struct {
	From    string `msgpack:"from"`
	Message string `msgpack:"message"`
}

func (*greetEvent) EventName() string { return "test:greet" }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestUserConfig(t *testing.T) {
	conf, err := DefaultConfig().Config(discardLogger())
	require.NoError(t, err)
	assert.Equal(t, "nookcore", conf.DataFolder)
	assert.Equal(t, TransportLocal, conf.Transport)
	assert.True(t, conf.Plugins.Enabled)
	assert.Equal(t, boot.DefaultRepository, conf.UpdateRepository)
	assert.Empty(t, conf.Features)

	uc := DefaultConfig()
	uc.Core.Features = []string{"database", "NookCore-Messenger", "DATABASE"}
	uc.Messenger.Transport = "socket.io"
	conf, err = uc.Config(discardLogger())
	require.NoError(t, err)
	assert.Equal(t, []boot.Feature{boot.Database, boot.Messenger}, conf.Features)
	assert.Equal(t, TransportSocketIO, conf.Transport)
	assert.Equal(t, "http://localhost:3000", conf.SocketIO.URL)
}

func TestUserConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		edit func(*UserConfig)
	}{
		{name: "feature", edit: func(uc *UserConfig) { uc.Core.Features = []string{"teleport"} }},
		{name: "database", edit: func(uc *UserConfig) { uc.Database.Type = "ORACLE" }},
		{name: "transport", edit: func(uc *UserConfig) { uc.Messenger.Transport = "carrier-pigeon" }},
		{name: "socketio url", edit: func(uc *UserConfig) {
			uc.Messenger.Transport = "socketio"
			uc.Messenger.URL = " "
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uc := DefaultConfig()
			tt.edit(&uc)
			_, err := uc.Config(discardLogger())
			assert.Error(t, err)
		})
	}
}

func newTestCore(t *testing.T, features ...boot.Feature) *Core {
	t.Helper()
	dir := t.TempDir()
	c := New(Config{
		Log:        discardLogger(),
		DataFolder: dir,
		Features:   features,
		Database:   database.DefaultConfig(),
	})
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestCoreStart(t *testing.T) {
	c := newTestCore(t)
	require.NoError(t, c.Start(context.Background()))
	// Starting twice is a no-op.
	require.NoError(t, c.Start(context.Background()))

	for _, f := range boot.AllFeatures() {
		assert.True(t, c.Bootstrapper().Enabled(f), f.String())
	}
	require.NotNil(t, c.Database())
	assert.Equal(t, database.SQLite, c.Database().Provider())
	assert.FileExists(t, filepath.Join(c.Config().DataFolder, database.SQLiteFileName))
	assert.FileExists(t, filepath.Join(c.Config().DataFolder, "commands.toml"))
	require.NotNil(t, c.Messenger())
	assert.Nil(t, c.UpdateChecker())
	assert.False(t, c.PluginsEnabled())
	assert.False(t, c.StartTime().IsZero())

	id := uuid.New()
	require.NoError(t, c.PlayerSeen(context.Background(), id, "Steve"))
	rec, ok, err := c.PlayerRecord(context.Background(), id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Steve", rec.Name)
}

func TestCoreMessengerLoopback(t *testing.T) {
	c := newTestCore(t, boot.Messenger)
	messenger.Register(c.Codec(), func() *greetEvent { return &greetEvent{} })
	require.NoError(t, c.Start(context.Background()))
	assert.Nil(t, c.Database())

	var got *greetEvent
	event.Subscribe(c.Events(), "test", func(e *greetEvent) error {
		got = e
		return nil
	})
	require.NoError(t, c.Messenger().PublishEvent(context.Background(), nil, &greetEvent{From: "lobby", Message: "hi"}))
	require.NotNil(t, got)
	assert.Equal(t, "lobby", got.From)
	assert.Equal(t, "hi", got.Message)

	_, ok := c.ChannelTransport()
	assert.False(t, ok)
}

func newChannelCore(t *testing.T, platform *Platform) *Core {
	t.Helper()
	c := New(Config{
		Log:        discardLogger(),
		DataFolder: t.TempDir(),
		Features:   []boot.Feature{boot.Messenger},
		Transport:  TransportChannel,
		Platform:   platform,
	})
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestCoreChannelTransportUnsupported(t *testing.T) {
	c := newChannelCore(t, &Platform{Name: "dragonfly"})
	err := c.Start(context.Background())
	require.ErrorIs(t, err, ErrNoPluginChannels)
	assert.ErrorContains(t, err, "dragonfly")
	assert.Nil(t, c.Messenger())
	_, ok := c.ChannelTransport()
	assert.False(t, ok)
}

func TestCoreChannelTransportReceive(t *testing.T) {
	c := newChannelCore(t, &Platform{Name: "proxy", PluginChannels: true})
	messenger.Register(c.Codec(), func() *greetEvent { return &greetEvent{} })
	require.NoError(t, c.Start(context.Background()))

	var got []*greetEvent
	event.Subscribe(c.Events(), "test", func(e *greetEvent) error {
		got = append(got, e)
		return nil
	})
	tr, ok := c.ChannelTransport()
	require.True(t, ok)

	data, err := c.Codec().Encode(&greetEvent{From: "hub", Message: "hello"})
	require.NoError(t, err)
	assert.True(t, tr.Receive(messenger.Channel, data))
	// A copy forwarded through a second connection.
	assert.False(t, tr.Receive(messenger.Channel, data))

	require.Len(t, got, 1)
	assert.Equal(t, "hub", got[0].From)
	assert.Equal(t, "hello", got[0].Message)
}

func TestCoreWithoutDatabase(t *testing.T) {
	c := newTestCore(t, boot.Player)
	require.NoError(t, c.Start(context.Background()))
	assert.Nil(t, c.Database())
	assert.Nil(t, c.Messenger())
	assert.NoError(t, c.PlayerSeen(context.Background(), uuid.New(), "Alex"))
	_, _, err := c.PlayerRecord(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotStarted)
}

func TestCoreClose(t *testing.T) {
	c := newTestCore(t, boot.Database)
	require.NoError(t, c.Start(context.Background()))
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	select {
	case <-c.Done():
	default:
		t.Fatal("core not done after close")
	}
	assert.Error(t, c.Context().Err())
	assert.Nil(t, c.Database())
}

func TestCoreDebugFromEnv(t *testing.T) {
	t.Setenv(boot.DebugEnv, "1")

	c := newTestCore(t, boot.Logger)
	assert.True(t, c.Debug())
	c.SetDebug(false)
	assert.False(t, c.Debug())
}
