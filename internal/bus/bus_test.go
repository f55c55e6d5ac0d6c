package bus

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reel/internal/config"
	"reel/internal/logging"
)

func receive(t *testing.T, sub Subscription) Message {
	t.Helper()
	select {
	case msg, ok := <-sub.C():
		require.True(t, ok, "subscription closed")
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
	return Message{}
}

func TestMemoryBusFanOut(t *testing.T) {
	b := NewMemoryBus()
	defer b.Close()
	ctx := context.Background()

	first, err := b.Subscribe(ctx, "media/rip/done")
	require.NoError(t, err)
	second, err := b.Subscribe(ctx, "media/rip/done")
	require.NoError(t, err)
	other, err := b.Subscribe(ctx, "media/transcode/done")
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, "media/rip/done", []byte(`{"version":1}`)))

	assert.Equal(t, `{"version":1}`, string(receive(t, first).Payload))
	msg := receive(t, second)
	assert.Equal(t, "media/rip/done", msg.Topic)
	select {
	case <-other.C():
		t.Fatal("unexpected delivery on unrelated topic")
	default:
	}
}

func TestMemoryBusCloseEndsSubscriptions(t *testing.T) {
	b := NewMemoryBus()
	ctx := context.Background()
	sub, err := b.Subscribe(ctx, "t")
	require.NoError(t, err)

	require.NoError(t, sub.Close())
	_, ok := <-sub.C()
	assert.False(t, ok)
	require.NoError(t, b.Publish(ctx, "t", []byte("x")))

	require.NoError(t, b.Close())
	assert.ErrorIs(t, b.Publish(ctx, "t", []byte("x")), ErrClosed)
	_, err = b.Subscribe(ctx, "t")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestMemoryBusPublishHonorsContext(t *testing.T) {
	b := NewMemoryBus()
	defer b.Close()
	sub, err := b.Subscribe(context.Background(), "t")
	require.NoError(t, err)
	defer sub.Close()

	for i := 0; i < subscriptionBuffer; i++ {
		require.NoError(t, b.Publish(context.Background(), "t", []byte("fill")))
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, b.Publish(ctx, "t", []byte("overflow")), context.DeadlineExceeded)
}

func TestRedisBusRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	b := NewRedisBus(client, logging.NewNop())
	defer b.Close()
	ctx := context.Background()

	sub, err := b.Subscribe(ctx, "media/transcode/start")
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, "media/transcode/start", []byte(`{"phase":"start"}`)))
	msg := receive(t, sub)
	assert.Equal(t, "media/transcode/start", msg.Topic)
	assert.JSONEq(t, `{"phase":"start"}`, string(msg.Payload))

	require.NoError(t, sub.Close())
	for range sub.C() {
	}
}

func TestOpenRedisAndMemory(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := config.Default().Bus
	cfg.Transport = "redis"
	cfg.Host = mr.Host()
	cfg.Port = atoiPort(t, mr.Port())

	b, err := Open(context.Background(), cfg, nil)
	require.NoError(t, err)
	require.IsType(t, &RedisBus{}, b)
	require.NoError(t, b.Close())

	cfg.Transport = "memory"
	b, err = Open(context.Background(), cfg, nil)
	require.NoError(t, err)
	require.IsType(t, &MemoryBus{}, b)
	require.NoError(t, b.Close())
}

func TestOpenStopsRetryingWhenContextEnds(t *testing.T) {
	cfg := config.Default().Bus
	cfg.Transport = "redis"
	cfg.Host = "127.0.0.1"
	cfg.Port = 1
	cfg.ConnectRetry = 1

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	_, err := Open(ctx, cfg, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestOpenRejectsUnknownTransport(t *testing.T) {
	cfg := config.Default().Bus
	cfg.Transport = "amqp"
	_, err := Open(context.Background(), cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported transport")
}

func TestMQTTOptions(t *testing.T) {
	cfg := config.Default().Bus
	cfg.Host = "broker.lan"
	cfg.Port = 8883
	cfg.TLS = true
	cfg.Username = "reel"
	cfg.ClientID = "reel-test"

	opts := mqttOptions(cfg)
	require.Len(t, opts.Servers, 1)
	assert.Equal(t, "ssl://broker.lan:8883", opts.Servers[0].String())
	assert.Equal(t, "reel-test", opts.ClientID)
	assert.Equal(t, "reel", opts.Username)
	require.NotNil(t, opts.TLSConfig)
	assert.Equal(t, "broker.lan", opts.TLSConfig.ServerName)

	cfg.TLS = false
	cfg.ClientID = ""
	opts = mqttOptions(cfg)
	assert.Equal(t, "tcp://broker.lan:8883", opts.Servers[0].String())
	assert.Contains(t, opts.ClientID, "reel-")
}

func atoiPort(t *testing.T, value string) int {
	t.Helper()
	port, err := strconv.Atoi(value)
	require.NoError(t, err)
	return port
}
