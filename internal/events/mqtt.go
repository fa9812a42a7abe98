package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/SimplyPrint/nfc-reader/internal/config"
	"github.com/SimplyPrint/nfc-reader/internal/logging"
)

const (
	defaultConnectTimeout    = 10 * time.Second
	defaultPublishTimeout    = 5 * time.Second
	defaultDisconnectQuiesce = 1000 // milliseconds
	defaultKeepAlive         = 60 * time.Second
	maxReconnectInterval     = time.Minute
)

var (
	// ErrNotConnected is returned when publishing while the broker is unreachable.
	ErrNotConnected = errors.New("mqtt: client not connected")

	// ErrConnectionFailed is returned when the initial connection attempt fails.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrPublishFailed is returned when a publish is not acknowledged.
	ErrPublishFailed = errors.New("mqtt: publish failed")
)

// MQTTPublisher publishes card reads to <prefix>/card/read.
type MQTTPublisher struct {
	client pahomqtt.Client
	topic  string
	qos    byte

	mu     sync.Mutex
	closed bool
}

// ConnectMQTT connects to the broker described by cfg.
func ConnectMQTT(cfg config.MQTTConfig) (*MQTTPublisher, error) {
	opts := buildClientOptions(cfg)
	client := pahomqtt.NewClient(opts)

	token := client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	logging.Info(logging.CatEvents, "Connected to MQTT broker", map[string]any{
		"broker": cfg.Broker,
		"topic":  CardReadTopic(cfg.TopicPrefix),
	})
	return newMQTTPublisher(client, cfg), nil
}

func newMQTTPublisher(client pahomqtt.Client, cfg config.MQTTConfig) *MQTTPublisher {
	return &MQTTPublisher{
		client: client,
		topic:  CardReadTopic(cfg.TopicPrefix),
		qos:    byte(cfg.QoS),
	}
}

func buildClientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(maxReconnectInterval)
	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)

	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		logging.Warn(logging.CatEvents, "MQTT connection lost", map[string]any{
			"error": err.Error(),
		})
	})
	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		logging.Debug(logging.CatEvents, "MQTT connected", nil)
	})
	return opts
}

// CardReadTopic returns the topic card reads are published on.
func CardReadTopic(prefix string) string {
	return strings.TrimSuffix(prefix, "/") + "/card/read"
}

// PublishCardRead publishes ev as JSON, not retained.
func (p *MQTTPublisher) PublishCardRead(ev CardRead) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("%w: encoding event: %w", ErrPublishFailed, err)
	}

	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed || !p.client.IsConnected() {
		return ErrNotConnected
	}

	token := p.client.Publish(p.topic, p.qos, false, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

// Close disconnects from the broker. Further publishes fail with ErrNotConnected.
func (p *MQTTPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	p.client.Disconnect(defaultDisconnectQuiesce)
	return nil
}
