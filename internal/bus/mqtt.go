package bus

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"reel/internal/config"
	"reel/internal/logging"
	"reel/internal/services"
)

const (
	mqttQoS        = 1
	mqttKeepAlive  = 60 * time.Second
	connectTimeout = 10 * time.Second
)

// MQTTBus talks to an MQTT broker with QoS 1 and automatic reconnects.
// Subscriptions are re-established after every reconnect.
type MQTTBus struct {
	client mqtt.Client
	logger *slog.Logger

	mu   sync.Mutex
	subs map[string][]*mqttSub
}

func mqttOptions(cfg config.Bus) *mqtt.ClientOptions {
	scheme := "tcp"
	var tlsConfig *tls.Config
	if cfg.TLS {
		scheme = "ssl"
		tlsConfig = &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12}
	}
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "reel-" + uuid.NewString()[:8]
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker((&url.URL{Scheme: scheme, Host: address(cfg)}).String())
	opts.SetClientID(clientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetKeepAlive(mqttKeepAlive)
	opts.SetConnectTimeout(connectTimeout)
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetOrderMatters(false)
	if tlsConfig != nil {
		opts.SetTLSConfig(tlsConfig)
	}
	return opts
}

// DialMQTT connects to the broker described by cfg.
func DialMQTT(ctx context.Context, cfg config.Bus, logger *slog.Logger) (*MQTTBus, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	b := &MQTTBus{logger: logger, subs: make(map[string][]*mqttSub)}

	opts := mqttOptions(cfg)
	opts.SetOnConnectHandler(b.onConnect)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("mqtt connection lost", logging.Error(err))
	})
	b.client = mqtt.NewClient(opts)

	if err := wait(ctx, b.client.Connect()); err != nil {
		return nil, services.Wrap(services.ErrTransient, "bus", "mqtt connect", address(cfg), err)
	}
	return b, nil
}

func (b *MQTTBus) onConnect(client mqtt.Client) {
	b.mu.Lock()
	topics := make([]string, 0, len(b.subs))
	for topic := range b.subs {
		topics = append(topics, topic)
	}
	b.mu.Unlock()
	for _, topic := range topics {
		token := client.Subscribe(topic, mqttQoS, b.route)
		go func(topic string) {
			if token.WaitTimeout(connectTimeout) && token.Error() != nil {
				b.logger.Warn("mqtt resubscribe failed", logging.String("topic", topic), logging.Error(token.Error()))
			}
		}(topic)
	}
}

// route fans one broker message out to every local subscription of its topic.
func (b *MQTTBus) route(_ mqtt.Client, msg mqtt.Message) {
	b.mu.Lock()
	subs := append([]*mqttSub(nil), b.subs[msg.Topic()]...)
	b.mu.Unlock()
	out := Message{Topic: msg.Topic(), Payload: append([]byte(nil), msg.Payload()...)}
	for _, sub := range subs {
		sub.deliver(out)
	}
}

// Publish sends payload with QoS 1 and waits for the broker acknowledgement.
func (b *MQTTBus) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := wait(ctx, b.client.Publish(topic, mqttQoS, false, payload)); err != nil {
		return fmt.Errorf("mqtt publish %q: %w", topic, err)
	}
	return nil
}

// Subscribe subscribes to topic on the broker.
func (b *MQTTBus) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	sub := &mqttSub{bus: b, topic: topic, ch: make(chan Message, subscriptionBuffer), done: make(chan struct{})}

	b.mu.Lock()
	first := len(b.subs[topic]) == 0
	b.subs[topic] = append(b.subs[topic], sub)
	b.mu.Unlock()

	if first {
		if err := wait(ctx, b.client.Subscribe(topic, mqttQoS, b.route)); err != nil {
			b.remove(sub)
			return nil, fmt.Errorf("mqtt subscribe %q: %w", topic, err)
		}
	}
	return sub, nil
}

// remove drops sub and reports whether topic has no local subscribers left.
func (b *MQTTBus) remove(sub *mqttSub) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.subs[sub.topic]
	out := list[:0]
	for _, other := range list {
		if other != sub {
			out = append(out, other)
		}
	}
	if len(out) == 0 {
		delete(b.subs, sub.topic)
		return true
	}
	b.subs[sub.topic] = out
	return false
}

// Close disconnects from the broker after a short quiesce period.
func (b *MQTTBus) Close() error {
	b.mu.Lock()
	var all []*mqttSub
	for _, subs := range b.subs {
		all = append(all, subs...)
	}
	b.subs = make(map[string][]*mqttSub)
	b.mu.Unlock()
	for _, sub := range all {
		sub.shutdown()
	}
	b.client.Disconnect(250)
	return nil
}

func wait(ctx context.Context, token mqtt.Token) error {
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

type mqttSub struct {
	bus   *MQTTBus
	topic string
	ch    chan Message
	done  chan struct{}

	once    sync.Once
	sending sync.RWMutex
}

func (s *mqttSub) C() <-chan Message { return s.ch }

func (s *mqttSub) deliver(msg Message) {
	s.sending.RLock()
	defer s.sending.RUnlock()
	select {
	case <-s.done:
		return
	default:
	}
	select {
	case s.ch <- msg:
	case <-s.done:
	}
}

func (s *mqttSub) Close() error {
	if s.bus.remove(s) && s.bus.client.IsConnected() {
		token := s.bus.client.Unsubscribe(s.topic)
		token.WaitTimeout(connectTimeout)
	}
	s.shutdown()
	return nil
}

func (s *mqttSub) shutdown() {
	s.once.Do(func() {
		close(s.done)
		s.sending.Lock()
		close(s.ch)
		s.sending.Unlock()
	})
}

var _ Bus = (*MQTTBus)(nil)
