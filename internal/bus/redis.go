package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"reel/internal/config"
	"reel/internal/logging"
	"reel/internal/services"
)

// RedisBus publishes and subscribes over Redis pub/sub channels. Topic names
// are used as channel names unchanged.
type RedisBus struct {
	client *redis.Client
	logger *slog.Logger
}

// DialRedis connects to the Redis server described by cfg and verifies it
// with PING.
func DialRedis(ctx context.Context, cfg config.Bus, logger *slog.Logger) (*RedisBus, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         address(cfg),
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.RedisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, services.Wrap(services.ErrTransient, "bus", "redis ping", address(cfg), err)
	}
	return NewRedisBus(client, logger), nil
}

// NewRedisBus wraps an existing client.
func NewRedisBus(client *redis.Client, logger *slog.Logger) *RedisBus {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &RedisBus{client: client, logger: logger}
}

// Publish sends payload on the channel named topic.
func (b *RedisBus) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := b.client.Publish(ctx, topic, payload).Err(); err != nil {
		return fmt.Errorf("redis publish %q: %w", topic, err)
	}
	return nil
}

// Subscribe returns once the server has confirmed the subscription.
func (b *RedisBus) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	ps := b.client.Subscribe(ctx, topic)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redis subscribe %q: %w", topic, err)
	}
	sub := &redisSub{ps: ps, ch: make(chan Message, subscriptionBuffer), done: make(chan struct{})}
	go sub.forward()
	return sub, nil
}

// Close releases the client connection pool.
func (b *RedisBus) Close() error {
	return b.client.Close()
}

type redisSub struct {
	ps   *redis.PubSub
	ch   chan Message
	done chan struct{}
	once sync.Once
}

func (s *redisSub) forward() {
	defer close(s.ch)
	in := s.ps.Channel()
	for {
		select {
		case <-s.done:
			return
		case msg, ok := <-in:
			if !ok {
				return
			}
			select {
			case s.ch <- Message{Topic: msg.Channel, Payload: []byte(msg.Payload)}:
			case <-s.done:
				return
			}
		}
	}
}

func (s *redisSub) C() <-chan Message { return s.ch }

func (s *redisSub) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.ps.Close()
	})
	return err
}

var _ Bus = (*RedisBus)(nil)
