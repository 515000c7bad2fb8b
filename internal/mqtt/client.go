package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"battery-dispatch/internal/model"
)

// Config is the broker connection and topic layout.
type Config struct {
	Broker         string
	ClientID       string
	Username       string
	Password       string
	TopicPrefix    string // e.g. "battery-dispatch"; values publish under <prefix>/<name>
	TelemetryTopic string // optional; JSON TelemetrySample per message
}

// Client wraps the broker connection. It publishes named result values and
// forecast documents, and optionally subscribes to a telemetry topic.
type Client struct {
	client mqtt.Client
	cfg    Config
	log    *logrus.Logger

	onTelemetry func(model.TelemetrySample)
}

func NewClient(cfg Config, log *logrus.Logger) *Client {
	if cfg.ClientID == "" {
		cfg.ClientID = "battery-dispatch"
	}
	if log == nil {
		log = logrus.New()
	}
	c := &Client{cfg: cfg, log: log}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		c.log.WithError(err).Error("mqtt connection lost")
	})

	c.client = mqtt.NewClient(opts)
	return c
}

func (c *Client) Connect() error {
	c.log.WithField("broker", c.cfg.Broker).Info("connecting to mqtt broker")
	if token := c.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("connect to mqtt broker: %w", token.Error())
	}
	return nil
}

func (c *Client) Disconnect() {
	c.client.Disconnect(250)
}

// SetTelemetryHandler registers the callback invoked for every telemetry
// sample received on the configured topic.
func (c *Client) SetTelemetryHandler(fn func(model.TelemetrySample)) {
	c.onTelemetry = fn
}

func (c *Client) onConnect(client mqtt.Client) {
	if c.cfg.TelemetryTopic == "" || c.onTelemetry == nil {
		return
	}
	token := client.Subscribe(c.cfg.TelemetryTopic, 1, c.handleTelemetry)
	if token.Wait() && token.Error() != nil {
		c.log.WithError(token.Error()).Errorf("subscribe to %s failed", c.cfg.TelemetryTopic)
		return
	}
	c.log.WithField("topic", c.cfg.TelemetryTopic).Info("subscribed to telemetry")
}

func (c *Client) handleTelemetry(_ mqtt.Client, msg mqtt.Message) {
	var sample model.TelemetrySample
	if err := json.Unmarshal(msg.Payload(), &sample); err != nil {
		c.log.WithError(err).Warn("discarding malformed telemetry message")
		return
	}
	c.onTelemetry(sample)
}

func (c *Client) topic(name string) string {
	prefix := c.cfg.TopicPrefix
	if prefix == "" {
		prefix = "battery-dispatch"
	}
	return prefix + "/" + name
}
