// Package bus adapts message brokers to a small publish/subscribe interface.
//
// Three transports are provided: MQTT (the broker the ripper and the home
// automation talk to), Redis pub/sub and an in-process bus for tests and
// single-host setups. Delivery is at-least-once at best; consumers must
// tolerate duplicates.
package bus

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"reel/internal/config"
	"reel/internal/logging"
	"reel/internal/services"
)

// Message is one payload received on a topic.
type Message struct {
	Topic   string
	Payload []byte
}

// Subscription delivers messages for one topic until closed.
type Subscription interface {
	// C returns the delivery channel. It is closed after Close.
	C() <-chan Message
	Close() error
}

// Publisher sends a payload on a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// Bus is a broker connection.
type Bus interface {
	Publisher
	Subscribe(ctx context.Context, topic string) (Subscription, error)
	Close() error
}

const subscriptionBuffer = 64

// Open connects to the transport named by cfg.Transport. Connection failures
// are retried every cfg.ConnectRetry seconds until ctx ends.
func Open(ctx context.Context, cfg config.Bus, logger *slog.Logger) (Bus, error) {
	logger = logging.NewComponentLogger(logger, "bus")
	if cfg.Transport == "memory" {
		return NewMemoryBus(), nil
	}

	interval := time.Duration(cfg.ConnectRetry) * time.Second
	if interval <= 0 {
		interval = 5 * time.Second
	}

	var b Bus
	attempt := 0
	op := func() error {
		attempt++
		var err error
		switch cfg.Transport {
		case "mqtt":
			b, err = DialMQTT(ctx, cfg, logger)
		case "redis":
			b, err = DialRedis(ctx, cfg, logger)
		default:
			return backoff.Permanent(services.Wrap(services.ErrConfiguration, "bus", "open",
				fmt.Sprintf("unsupported transport %q", cfg.Transport), nil))
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		logger.Warn("broker connect failed; retrying",
			logging.String("transport", cfg.Transport),
			logging.String("addr", address(cfg)),
			logging.Int("attempt", attempt),
			logging.Duration("retry_in", wait),
			logging.Error(err),
		)
	}
	policy := backoff.WithContext(backoff.NewConstantBackOff(interval), ctx)
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("connect %s broker: %w", cfg.Transport, ctxErr)
		}
		return nil, err
	}
	logger.Info("broker connected",
		logging.String("transport", cfg.Transport),
		logging.String("addr", address(cfg)),
	)
	return b, nil
}

func address(cfg config.Bus) string {
	return net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
}
