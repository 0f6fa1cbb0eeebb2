// Package mqttpub forwards device events to an MQTT broker, one message per
// event on fbxos/events/{source}/{event}.
package mqttpub

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/koltyakov/fbxos/internal/events"
)

const (
	// DefaultTopicPrefix is prepended to every event topic.
	DefaultTopicPrefix = "fbxos/events"

	defaultConnectTimeout = 10 * time.Second
	defaultPublishTimeout = 5 * time.Second
	disconnectQuiesce     = 500 // milliseconds
	maxQoS                = 2
)

var (
	// ErrConnectionFailed wraps a broker that refused or did not answer the
	// connection.
	ErrConnectionFailed = errors.New("mqtt: connection failed")
	// ErrPublishFailed wraps a publish the broker rejected.
	ErrPublishFailed = errors.New("mqtt: publish failed")
	// ErrTimeout reports a publish that was not acknowledged in time.
	ErrTimeout = errors.New("mqtt: operation timed out")
	// ErrInvalidQoS rejects a QoS level above 2.
	ErrInvalidQoS = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")
)

// Config describes the broker connection.
type Config struct {
	// BrokerURL is tcp://, ssl:// or ws:// with optional user:password.
	BrokerURL   string
	ClientID    string
	TopicPrefix string
	QoS         byte
	Retain      bool
	// ConnectTimeout bounds the initial connection; zero means the default.
	ConnectTimeout time.Duration
}

type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token
}

// Publisher is an [events.Sink] publishing to MQTT.
type Publisher struct {
	pub    publisher
	client pahomqtt.Client
	cfg    Config
	log    *slog.Logger
}

// Connect dials the broker.
func Connect(cfg Config, logger *slog.Logger) (*Publisher, error) {
	if cfg.QoS > maxQoS {
		return nil, ErrInvalidQoS
	}
	opts, err := clientOptions(cfg)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		logger.Warn("mqtt connection lost", "err", err)
	})
	client := pahomqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout(cfg)) {
		// Stops the connect and reconnect goroutines paho keeps running.
		client.Disconnect(0)
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, connectTimeout(cfg))
	}
	if err := token.Error(); err != nil {
		client.Disconnect(0)
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	p := newPublisher(client, cfg, logger)
	p.client = client
	return p, nil
}

func newPublisher(pub publisher, cfg Config, logger *slog.Logger) *Publisher {
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = DefaultTopicPrefix
	}
	return &Publisher{pub: pub, cfg: cfg, log: logger}
}

func clientOptions(cfg Config) (*pahomqtt.ClientOptions, error) {
	u, err := url.Parse(strings.TrimSpace(cfg.BrokerURL))
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid MQTT broker URL %q", cfg.BrokerURL)
	}
	opts := pahomqtt.NewClientOptions()
	if u.User != nil {
		opts.SetUsername(u.User.Username())
		if pw, ok := u.User.Password(); ok {
			opts.SetPassword(pw)
		}
		u.User = nil
	}
	opts.AddBroker(u.String())
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = fmt.Sprintf("fbxos-%d", time.Now().UnixNano()%1_000_000)
	}
	opts.SetClientID(clientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(connectTimeout(cfg))
	if u.Scheme == "ssl" || u.Scheme == "tls" || u.Scheme == "mqtts" || u.Scheme == "wss" {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	return opts, nil
}

func connectTimeout(cfg Config) time.Duration {
	if cfg.ConnectTimeout > 0 {
		return cfg.ConnectTimeout
	}
	return defaultConnectTimeout
}

// TopicPrefix returns the prefix events are published under.
func (p *Publisher) TopicPrefix() string {
	return p.cfg.TopicPrefix
}

// Topic returns the topic of ev under prefix.
func Topic(prefix string, ev events.Event) string {
	return strings.TrimSuffix(prefix, "/") + "/" + topicSegment(ev.Source) + "/" + topicSegment(ev.Name)
}

func topicSegment(s string) string {
	s = strings.NewReplacer("/", "_", "+", "_", "#", "_").Replace(strings.TrimSpace(s))
	if s == "" {
		return "unknown"
	}
	return s
}

// Deliver implements [events.Sink].
func (p *Publisher) Deliver(ctx context.Context, ev events.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	topic := Topic(p.cfg.TopicPrefix, ev)
	token := p.pub.Publish(topic, p.cfg.QoS, p.cfg.Retain, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(defaultPublishTimeout):
		return fmt.Errorf("%w: publish %s", ErrTimeout, topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPublishFailed, topic, err)
	}
	p.log.Debug("event published", "topic", topic)
	return nil
}

// Close disconnects from the broker.
func (p *Publisher) Close() {
	if p.client != nil {
		p.client.Disconnect(disconnectQuiesce)
	}
}
