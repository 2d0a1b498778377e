package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/kilianp07/evstation/core/events"
	coremon "github.com/kilianp07/evstation/core/monitoring"
	"github.com/kilianp07/evstation/infra/logger"
	"github.com/kilianp07/evstation/internal/eventbus"
)

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// Publisher forwards station events to the broker as JSON messages.
type Publisher struct {
	cli        pahoClient
	prefix     string
	qos        byte
	maxRetries int
	backoff    time.Duration
	logger     logger.Logger
}

// NewPublisher connects to the broker. The presence topic carries a retained
// "online" message while connected and the broker publishes "offline" when
// the connection drops.
func NewPublisher(cfg Config) (*Publisher, error) {
	cfg.SetDefaults()
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}
	log := logger.New("mqtt_publisher")
	p := &Publisher{
		prefix:     cfg.TopicPrefix,
		qos:        cfg.QoS,
		maxRetries: cfg.MaxRetries,
		backoff:    cfg.Backoff(),
		logger:     log,
	}
	opts.OnConnect = func(c paho.Client) {
		log.Infof("MQTT connected to %s", cfg.Broker)
		if token := c.Publish(p.presenceTopic(), p.qos, true, "online"); token.Wait() && token.Error() != nil {
			log.Errorf("presence publish error: %v", token.Error())
		}
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		log.Warnf("reconnecting to MQTT broker")
	}
	c := newMQTTClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}
	p.cli = c
	return p, nil
}

// NewClientOptions builds paho client options from Config.
func NewClientOptions(cfg Config) (*paho.ClientOptions, error) {
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.AutoReconnect = true
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	if cfg.UseTLS {
		tlsCfg, err := cfg.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	prefix := cfg.TopicPrefix
	if prefix == "" {
		prefix = "evstation"
	}
	opts.SetWill(prefix+"/station/online", "offline", cfg.QoS, true)
	return opts, nil
}

func (p *Publisher) presenceTopic() string { return p.prefix + "/station/online" }

// Topic returns the destination of e and whether the message is retained.
// Pile status is retained so late subscribers see the current state.
func (p *Publisher) Topic(e events.Event) (string, bool) {
	switch ev := e.(type) {
	case events.PileStatusChanged:
		return fmt.Sprintf("%s/piles/%s/status", p.prefix, ev.PileID), true
	case events.RequestDispatched:
		return p.prefix + "/dispatch", false
	case events.RerouteCompleted:
		return p.prefix + "/reroute", false
	case events.BillIssued:
		return p.prefix + "/bills", false
	default:
		return fmt.Sprintf("%s/%s", p.prefix, e.Kind()), false
	}
}

// Publish sends one event, retrying with exponential backoff.
func (p *Publisher) Publish(ctx context.Context, e events.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode %s: %w", e.Kind(), err)
	}
	topic, retained := p.Topic(e)
	var publishErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		token := p.cli.Publish(topic, p.qos, retained, payload)
		token.Wait()
		publishErr = token.Error()
		if publishErr == nil {
			p.logger.Debugf("published %s to %s", e.Kind(), topic)
			return nil
		}
		p.logger.Errorf("publish attempt %d to %s failed: %v", attempt+1, topic, publishErr)
		if attempt == p.maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.backoff * time.Duration(1<<attempt)):
		}
	}
	coremon.CaptureException(publishErr, map[string]string{"module": "mqtt", "topic": topic})
	return fmt.Errorf("publish %s: %w", topic, publishErr)
}

// Run forwards bus events until ctx is done or the bus closes.
func (p *Publisher) Run(ctx context.Context, bus *eventbus.Bus[events.Event]) {
	eventbus.Consume(ctx, bus, func(ctx context.Context, e events.Event) {
		_ = p.Publish(ctx, e)
	})
}

// Close publishes the offline presence and disconnects.
func (p *Publisher) Close() {
	if p.cli == nil || !p.cli.IsConnected() {
		return
	}
	p.cli.Publish(p.presenceTopic(), p.qos, true, "offline").WaitTimeout(time.Second)
	p.cli.Disconnect(250)
}
