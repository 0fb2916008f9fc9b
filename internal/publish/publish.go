// Package publish fans live session status out to other consumers, such as
// a display or a coaching app, over MQTT.
package publish

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/workoutwise/formcheck/internal/monitoring"
	"github.com/workoutwise/formcheck/internal/session"
)

// DefaultTopicPrefix is the root of every status topic.
const DefaultTopicPrefix = "formcheck"

// Publisher delivers session status updates.
type Publisher interface {
	Publish(sum session.Summary) error
	Close()
}

// Nop discards every update.
type Nop struct{}

func (Nop) Publish(session.Summary) error { return nil }
func (Nop) Close()                        {}

// MQTTConfig describes the broker connection.
type MQTTConfig struct {
	Broker      string // e.g. tcp://localhost:1883
	ClientID    string
	TopicPrefix string
	QoS         byte
	// Timeout bounds connect and each publish. Zero means 5s.
	Timeout time.Duration
}

func (c MQTTConfig) timeout() time.Duration {
	if c.Timeout <= 0 {
		return 5 * time.Second
	}
	return c.Timeout
}

func (c MQTTConfig) prefix() string {
	if c.TopicPrefix == "" {
		return DefaultTopicPrefix
	}
	return strings.TrimSuffix(c.TopicPrefix, "/")
}

// MQTTPublisher publishes each status as retained JSON on
// <prefix>/<user>/<exercise>/<session>/status.
type MQTTPublisher struct {
	client mqtt.Client
	cfg    MQTTConfig
}

// NewMQTTPublisher connects to the broker.
func NewMQTTPublisher(cfg MQTTConfig) (*MQTTPublisher, error) {
	if cfg.Broker == "" {
		return nil, errors.New("mqtt broker address is required")
	}
	if cfg.QoS > 2 {
		return nil, fmt.Errorf("invalid mqtt qos %d", cfg.QoS)
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "formcheck"
	}
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(cfg.timeout()).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			monitoring.Logf("mqtt connection lost: %v", err)
		})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(cfg.timeout()) {
		return nil, fmt.Errorf("mqtt connect to %s timed out", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect error: %w", err)
	}
	monitoring.Logf("connected to MQTT broker %s", cfg.Broker)
	return newMQTTPublisher(client, cfg), nil
}

func newMQTTPublisher(client mqtt.Client, cfg MQTTConfig) *MQTTPublisher {
	return &MQTTPublisher{client: client, cfg: cfg}
}

// Topic is where the status of sum is published.
func (p *MQTTPublisher) Topic(sum session.Summary) string {
	user := sum.UserID
	if user == "" {
		user = "anonymous"
	}
	return fmt.Sprintf("%s/%s/%s/%s/status", p.cfg.prefix(), topicSafe(user), sum.Exercise, sum.ID)
}

// Publish implements Publisher.
func (p *MQTTPublisher) Publish(sum session.Summary) error {
	payload, err := json.Marshal(sum)
	if err != nil {
		return fmt.Errorf("json marshal error: %w", err)
	}
	token := p.client.Publish(p.Topic(sum), p.cfg.QoS, true, payload)
	if !token.WaitTimeout(p.cfg.timeout()) {
		return fmt.Errorf("mqtt publish for session %s timed out", sum.ID)
	}
	return token.Error()
}

// Close disconnects, allowing in-flight messages 250ms to drain.
func (p *MQTTPublisher) Close() {
	p.client.Disconnect(250)
}

// topicSafe strips MQTT wildcard and level characters from a topic level.
func topicSafe(s string) string {
	return strings.NewReplacer("/", "_", "+", "_", "#", "_").Replace(s)
}
