package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"tiltmon/internal/config"
	"tiltmon/internal/tracker"
)

const publishTimeout = 5 * time.Second

var (
	// ErrNotConnected is returned when publishing while the broker is unreachable
	ErrNotConnected = errors.New("mqtt client not connected")

	// ErrStopped is returned by Connect after Disconnect
	ErrStopped = errors.New("mqtt client stopped")
)

type Client struct {
	client    mqtt.Client
	cfg       config.Config
	logger    *slog.Logger
	mu        sync.RWMutex
	connected bool

	stopCh   chan struct{}
	stopOnce sync.Once
}

// Telemetry is the payload published for every flushed device snapshot.
type Telemetry struct {
	MessageID    string    `json:"message_id"`
	DeviceID     int       `json:"device_id"`
	Label        string    `json:"label"`
	UUID         string    `json:"uuid"`
	Timestamp    time.Time `json:"timestamp"`
	Samples      uint64    `json:"samples"`
	TemperatureF float64   `json:"temperature_f"`
	Gravity      float64   `json:"specific_gravity"`
	TxPower      float64   `json:"tx_power"`
	RSSI         float64   `json:"rssi_dbm"`
}

// DeviceHealth is the retained last-seen state of a device.
type DeviceHealth struct {
	Label    string    `json:"label"`
	LastSeen time.Time `json:"last_seen"`
	Healthy  bool      `json:"healthy"`
}

// TelemetryFromSnapshot builds the telemetry payload for s.
func TelemetryFromSnapshot(s tracker.Snapshot) Telemetry {
	return Telemetry{
		MessageID:    uuid.NewString(),
		DeviceID:     s.DeviceID,
		Label:        s.Label,
		UUID:         s.UUID,
		Timestamp:    s.Timestamp,
		Samples:      s.Samples,
		TemperatureF: s.Temperature,
		Gravity:      s.Gravity,
		TxPower:      s.TxPower,
		RSSI:         s.Signal,
	}
}

// Topic returns "<prefix>/<label>/<kind>" with the label lower-cased.
func Topic(prefix, label, kind string) string {
	return fmt.Sprintf("%s/%s/%s", prefix, strings.ToLower(label), kind)
}

func NewClient(cfg config.Config, logger *slog.Logger) *Client {
	c := &Client{
		cfg:    cfg,
		logger: logger,
		stopCh: make(chan struct{}),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.MQTTBroker, cfg.MQTTPort))
	opts.SetClientID(cfg.MQTTClientID)
	opts.SetCleanSession(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)

	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		c.setConnected(true)
		logger.Info("mqtt connected", "broker", cfg.MQTTBroker, "port", cfg.MQTTPort)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		c.setConnected(false)
		logger.Warn("mqtt connection lost", "error", err)
	})

	c.client = mqtt.NewClient(opts)
	return c
}

// Connect waits for the initial broker connection, honouring ctx and
// Disconnect.
func (c *Client) Connect(ctx context.Context) error {
	select {
	case <-c.stopCh:
		return ErrStopped
	default:
	}

	if c.IsConnected() {
		return nil
	}

	// With ConnectRetry the token only completes once connected or stopped.
	token := c.client.Connect()

	const poll = 200 * time.Millisecond
	for {
		if token.WaitTimeout(poll) {
			if err := token.Error(); err != nil {
				return fmt.Errorf("mqtt connect: %w", err)
			}
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.stopCh:
			return ErrStopped
		default:
		}
	}
}

// PublishSnapshot publishes the telemetry of a flushed snapshot (QoS 1).
func (c *Client) PublishSnapshot(s tracker.Snapshot) error {
	t := TelemetryFromSnapshot(s)
	topic := Topic(c.cfg.MQTTTopicPrefix, s.Label, "telemetry")
	if err := c.publish(topic, false, t); err != nil {
		return fmt.Errorf("publish telemetry: %w", err)
	}
	c.logger.Debug("published telemetry", "topic", topic, "label", s.Label, "message_id", t.MessageID)
	return nil
}

// PublishHealth publishes the retained health state of a device.
func (c *Client) PublishHealth(h DeviceHealth) error {
	topic := Topic(c.cfg.MQTTTopicPrefix, h.Label, "health")
	if err := c.publish(topic, true, h); err != nil {
		return fmt.Errorf("publish health: %w", err)
	}
	c.logger.Debug("published device health", "topic", topic, "last_seen", h.LastSeen, "healthy", h.Healthy)
	return nil
}

func (c *Client) publish(topic string, retained bool, v any) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	token := c.client.Publish(topic, 1, retained, data)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish timeout for topic %s", topic)
	}
	if err := token.Error(); err != nil {
		c.logger.Error("mqtt publish failed", "topic", topic, "error", err)
		return err
	}
	return nil
}

// IsConnected returns whether the client is connected.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	connected := c.connected
	c.mu.RUnlock()
	return connected && c.client.IsConnected()
}

// Disconnect stops the client. It is idempotent; Connect fails with
// ErrStopped afterwards.
func (c *Client) Disconnect() {
	c.stopOnce.Do(func() { close(c.stopCh) })

	if c.client != nil {
		c.client.Disconnect(250)
	}

	c.setConnected(false)
	c.logger.Info("mqtt disconnected")
}

func (c *Client) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}
