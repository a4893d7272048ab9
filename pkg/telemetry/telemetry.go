// Package telemetry publishes guidance events to an MQTT broker.
package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	MQTT "github.com/eclipse/paho.mqtt.golang"

	"github.com/teslashibe/go-wayfinder/pkg/guidance"
)

// ErrDisabled is returned by NewPublisher when telemetry is switched off.
var ErrDisabled = errors.New("telemetry: disabled")

// Config holds MQTT settings.
type Config struct {
	Enabled     bool          `yaml:"enabled" json:"enabled"`
	Broker      string        `yaml:"broker" json:"broker" validate:"omitempty,url"`
	ClientID    string        `yaml:"client_id" json:"client_id"`
	Username    string        `yaml:"username" json:"username"`
	Password    string        `yaml:"password" json:"-"`
	TopicPrefix string        `yaml:"topic_prefix" json:"topic_prefix" validate:"required_if=Enabled true"`
	QoS         byte          `yaml:"qos" json:"qos" validate:"lte=2"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout"`
	QueueSize   int           `yaml:"queue_size" json:"queue_size" validate:"gte=0"`
}

// DefaultConfig returns a disabled configuration pointing at a local broker.
func DefaultConfig() Config {
	return Config{
		Broker:      "tcp://localhost:1883",
		ClientID:    "wayfinder",
		TopicPrefix: "wayfinder",
		QoS:         1,
		Timeout:     5 * time.Second,
		QueueSize:   256,
	}
}

// client is the part of MQTT.Client the publisher uses.
type client interface {
	Connect() MQTT.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) MQTT.Token
}

type message struct {
	topic    string
	retained bool
	payload  []byte
}

// Publisher implements guidance.Observer. Observe only enqueues; Run does
// the network I/O.
type Publisher struct {
	cfg    Config
	client client
	logger *slog.Logger
	queue  chan message

	connected atomic.Bool
	published atomic.Uint64
	dropped   atomic.Uint64
}

// NewPublisher creates a publisher backed by a paho client.
func NewPublisher(cfg Config, logger *slog.Logger) (*Publisher, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := newPublisher(nil, cfg, logger)

	opts := MQTT.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(time.Minute)
	opts.SetOnConnectHandler(func(MQTT.Client) {
		p.connected.Store(true)
		p.logger.Info("mqtt connected", "broker", cfg.Broker)
	})
	opts.SetConnectionLostHandler(func(_ MQTT.Client, err error) {
		p.connected.Store(false)
		p.logger.Warn("mqtt connection lost", "error", err)
	})

	p.client = MQTT.NewClient(opts)
	return p, nil
}

func newPublisher(c client, cfg Config, logger *slog.Logger) *Publisher {
	d := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = d.Timeout
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = d.QueueSize
	}
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = d.TopicPrefix
	}
	return &Publisher{
		cfg:    cfg,
		client: c,
		logger: logger.With("component", "telemetry.publisher"),
		queue:  make(chan message, cfg.QueueSize),
	}
}

// Run connects and publishes queued events until ctx ends.
func (p *Publisher) Run(ctx context.Context) error {
	tok := p.client.Connect()
	if !tok.WaitTimeout(p.cfg.Timeout) {
		p.logger.Warn("mqtt connect still pending, retrying in background", "broker", p.cfg.Broker)
	} else if err := tok.Error(); err != nil {
		return fmt.Errorf("telemetry: connect %s: %w", p.cfg.Broker, err)
	}
	defer func() {
		p.client.Disconnect(250)
		p.connected.Store(false)
		p.logger.Info("mqtt disconnected")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case m := <-p.queue:
			p.publish(m)
		}
	}
}

func (p *Publisher) publish(m message) {
	tok := p.client.Publish(m.topic, p.cfg.QoS, m.retained, m.payload)
	if !tok.WaitTimeout(p.cfg.Timeout) {
		p.logger.Warn("mqtt publish timed out", "topic", m.topic)
		return
	}
	if err := tok.Error(); err != nil {
		p.logger.Warn("mqtt publish failed", "topic", m.topic, "error", err)
		return
	}
	p.published.Add(1)
}

// statePayload is the retained document on <prefix>/state.
type statePayload struct {
	Phase   string    `json:"phase"`
	Reason  string    `json:"reason,omitempty"`
	Kind    string    `json:"kind,omitempty"`
	Session string    `json:"session"`
	Since   time.Time `json:"since"`
}

// Observe implements guidance.Observer.
func (p *Publisher) Observe(ev guidance.Event) {
	switch ev.Kind {
	case guidance.EventStateChanged:
		if ev.State == nil {
			return
		}
		doc := statePayload{
			Phase:   ev.State.Phase.String(),
			Reason:  ev.State.Reason,
			Session: ev.State.Session,
			Since:   ev.State.Since,
		}
		if ev.State.Failure != nil {
			doc.Kind = ev.State.Failure.Kind.String()
		}
		p.enqueue(p.cfg.TopicPrefix+"/state", true, doc)

	case guidance.EventWaypoint, guidance.EventCorrection, guidance.EventSignal,
		guidance.EventRoute, guidance.EventSpeech, guidance.EventTracking:
		p.enqueue(p.cfg.TopicPrefix+"/events/"+string(ev.Kind), false, ev)
	}
}

func (p *Publisher) enqueue(topic string, retained bool, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		p.logger.Warn("telemetry encode failed", "topic", topic, "error", err)
		return
	}
	select {
	case p.queue <- message{topic: topic, retained: retained, payload: data}:
	default:
		p.dropped.Add(1)
	}
}

// Connected reports whether the broker connection is up.
func (p *Publisher) Connected() bool {
	return p.connected.Load()
}

// Stats returns published and dropped message counts.
func (p *Publisher) Stats() (published, dropped uint64) {
	return p.published.Load(), p.dropped.Load()
}
