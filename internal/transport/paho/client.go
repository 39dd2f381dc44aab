// Package paho implements the transport client adapter over the Eclipse
// Paho MQTT client.
package paho

import (
	"fmt"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"mqtt-transport/internal/logger"
	"mqtt-transport/internal/transport"
)

// Client adapts paho.mqtt.golang to the transport.Client contract.
//
// Paho does not expose MQTT message ids, so the adapter assigns its own:
// Subscribe returns a fresh mid immediately and a goroutine waits on the
// paho token, reporting the granted QoS from the SUBACK under that mid.
type Client struct {
	opts   *mqtt.ClientOptions
	client mqtt.Client
	log    *logger.Logger

	callbacks transport.Callbacks
	mid       atomic.Uint32
}

// NewClient builds a paho-backed client for the given connection
// parameters. The connection is not initiated until Connect.
func NewClient(params transport.ConnectionParams, log *logger.Logger) *Client {
	c := &Client{log: log}

	c.opts = mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%d", params.Host, params.Port)).
		SetClientID(params.ClientID).
		SetKeepAlive(params.Keepalive).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetMaxReconnectInterval(time.Minute)

	c.opts.SetOnConnectHandler(func(mqtt.Client) {
		if c.callbacks.OnConnect != nil {
			c.callbacks.OnConnect()
		}
	})
	c.opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		if c.callbacks.OnConnectionLost != nil {
			c.callbacks.OnConnectionLost(err)
		}
	})
	c.opts.SetDefaultPublishHandler(func(_ mqtt.Client, msg mqtt.Message) {
		if c.callbacks.OnMessage != nil {
			c.callbacks.OnMessage(msg.Topic(), msg.Payload())
		}
	})

	return c
}

// SetCallbacks installs the transport callbacks. Must be called before
// Connect.
func (c *Client) SetCallbacks(cb transport.Callbacks) {
	c.callbacks = cb
}

// SetWill configures the last-will message. Must be called before
// Connect.
func (c *Client) SetWill(topic string, payload []byte, qos byte, retain bool) error {
	if c.client != nil {
		return fmt.Errorf("will must be set before connect")
	}
	c.opts.SetBinaryWill(topic, payload, qos, retain)
	return nil
}

// Connect creates the paho client and initiates an asynchronous
// connection. Connection outcomes arrive via the installed callbacks;
// paho keeps retrying on its own.
func (c *Client) Connect() error {
	if c.client != nil {
		return fmt.Errorf("already connected")
	}

	c.client = mqtt.NewClient(c.opts)
	token := c.client.Connect()
	go func() {
		if token.Wait(); token.Error() != nil {
			c.log.Warn("broker connect attempt failed", "error", token.Error())
		}
	}()
	return nil
}

// Disconnect gracefully closes the connection and stops paho's network
// goroutines.
func (c *Client) Disconnect(quiesce time.Duration) {
	if c.client == nil {
		return
	}
	c.client.Disconnect(uint(quiesce.Milliseconds()))
}

// Subscribe issues a broker subscribe. The returned mid identifies the
// eventual ack callback; if the broker never answers, no ack is fired and
// the caller's timeout path takes over.
func (c *Client) Subscribe(filter string, qos byte) (uint16, error) {
	mid := c.nextMID()

	if c.client == nil {
		return mid, transport.ErrNoConnection
	}

	token := c.client.Subscribe(filter, qos, nil)
	go func() {
		if token.Wait(); token.Error() != nil {
			c.log.Warn("broker subscribe failed",
				"topic", filter, "mid", mid, "error", token.Error())
			return
		}

		granted := byte(0x80)
		if st, ok := token.(*mqtt.SubscribeToken); ok {
			if g, ok := st.Result()[filter]; ok {
				granted = g
			}
		}
		if c.callbacks.OnSubscribeAck != nil {
			c.callbacks.OnSubscribeAck(mid, []byte{granted})
		}
	}()

	if !c.client.IsConnectionOpen() {
		return mid, transport.ErrNoConnection
	}
	return mid, nil
}

// Unsubscribe issues a broker unsubscribe; the outcome is only logged.
func (c *Client) Unsubscribe(filter string) error {
	if c.client == nil {
		return transport.ErrNoConnection
	}

	token := c.client.Unsubscribe(filter)
	go func() {
		if token.Wait(); token.Error() != nil {
			c.log.Warn("broker unsubscribe failed",
				"topic", filter, "error", token.Error())
		}
	}()
	return nil
}

// Publish sends a message. Safe from any goroutine; paho serializes the
// actual network write.
func (c *Client) Publish(topic string, payload []byte, qos byte, retain bool) error {
	if c.client == nil || !c.client.IsConnectionOpen() {
		return transport.ErrNoConnection
	}

	token := c.client.Publish(topic, qos, retain, payload)
	go func() {
		if token.Wait(); token.Error() != nil {
			c.log.Warn("broker publish failed",
				"topic", topic, "error", token.Error())
		}
	}()
	return nil
}

// nextMID returns the next adapter-assigned message id, skipping zero.
func (c *Client) nextMID() uint16 {
	for {
		if mid := uint16(c.mid.Add(1)); mid != 0 {
			return mid
		}
	}
}
