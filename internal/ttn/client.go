package ttn

import (
	"fmt"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/scalewatch/scalewatch/internal/domain"
)

// ClientConfig carries the broker coordinates for one Things Stack
// application. Host is the regional cluster, e.g.
// "eu1.cloud.thethings.network".
type ClientConfig struct {
	Host              string
	AppID             string
	Tenant            string
	APIKey            string
	ReconnectInterval time.Duration
}

// Username returns the MQTT username, "{app}@{tenant}".
func (c ClientConfig) Username() string {
	return c.AppID + "@" + c.Tenant
}

// UplinkTopic returns the wildcard subscription covering all device
// uplinks for the application.
func (c ClientConfig) UplinkTopic() string {
	return fmt.Sprintf("v3/%s/devices/+/up", c.Username())
}

// DownlinkTopic returns the push-downlink topic for one device.
func (c ClientConfig) DownlinkTopic(deviceID string) string {
	return fmt.Sprintf("v3/%s/devices/%s/down/push", c.Username(), deviceID)
}

// Client owns the single MQTT connection shared by ingestion and the
// downlink path. It is the only place the raw paho handle lives;
// everything else goes through Connect, Publish, and the message
// handler registered before Connect.
type Client struct {
	cfg ClientConfig

	mu      sync.Mutex
	paho    mqtt.Client
	handler func(topic string, payload []byte)
}

// NewClient creates an unconnected client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Tenant == "" {
		cfg.Tenant = "ttn"
	}
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = 5 * time.Second
	}
	return &Client{cfg: cfg}
}

// SetHandler registers the inbound message handler. Must be called
// before Connect.
func (c *Client) SetHandler(h func(topic string, payload []byte)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = h
}

// Connect dials the broker over TLS and subscribes to the uplink
// wildcard topic. The subscription is reissued on every reconnect; the
// retry interval is fixed (no backoff growth, no retry cap). Messages
// published while disconnected are lost — the broker's QoS governs any
// redelivery.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("ssl://%s:8883", c.cfg.Host))
	opts.SetClientID(fmt.Sprintf("scalewatch-%d", time.Now().UnixNano()))
	opts.SetUsername(c.cfg.Username())
	opts.SetPassword(c.cfg.APIKey)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(c.cfg.ReconnectInterval)
	opts.SetMaxReconnectInterval(c.cfg.ReconnectInterval)
	opts.SetOrderMatters(true) // per-device ordering relies on in-order dispatch

	opts.SetOnConnectHandler(func(cl mqtt.Client) {
		topic := c.cfg.UplinkTopic()
		token := cl.Subscribe(topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
			c.mu.Lock()
			h := c.handler
			c.mu.Unlock()
			if h != nil {
				h(msg.Topic(), msg.Payload())
			}
		})
		token.Wait()
		if err := token.Error(); err != nil {
			log.Printf("[ttn] subscribe %s: %v", topic, err)
			return
		}
		log.Printf("[ttn] subscribed: %s", topic)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Printf("[ttn] connection lost: %v (reconnecting every %s)", err, c.cfg.ReconnectInterval)
	})

	c.paho = mqtt.NewClient(opts)
	token := c.paho.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("connect %s: %w", c.cfg.Host, err)
	}
	return nil
}

// UplinkTopic exposes the configured uplink subscription topic.
func (c *Client) UplinkTopic() string {
	return c.cfg.UplinkTopic()
}

// Connected reports whether the broker connection is currently up.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paho != nil && c.paho.IsConnected()
}

// Publish sends one message at QoS 0 and waits for the local publish
// ack. It does not wait for any network-server-side confirmation.
func (c *Client) Publish(topic string, payload []byte) error {
	c.mu.Lock()
	paho := c.paho
	c.mu.Unlock()

	if paho == nil || !paho.IsConnected() {
		return domain.ErrNotConnected
	}
	token := paho.Publish(topic, 0, false, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Close disconnects from the broker, allowing in-flight work to drain.
func (c *Client) Close() {
	c.mu.Lock()
	paho := c.paho
	c.paho = nil
	c.mu.Unlock()

	// Disconnect outside the lock: draining may still dispatch messages
	// whose handler takes c.mu.
	if paho != nil {
		paho.Disconnect(250)
	}
}
