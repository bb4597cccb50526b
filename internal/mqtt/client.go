package mqtt

import (
	"time"
)

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Client is the convenience layer over Conn for the node's main loop.
//
// Where Conn reports precise errors, Client reports success or failure and
// routes the detail to the logger. A wake/publish/sleep cycle does not
// branch on why an operation failed, only on whether it did; the logs carry
// the why. The last error is retained for callers that do need it, such as
// the reconnection gate distinguishing a refused CONNACK from a dead
// network.
//
// Like Conn, a Client belongs to a single goroutine.
type Client struct {
	conn    *Conn
	logger  Logger
	lastErr error
}

// NewClient builds a client over the given transport.
func NewClient(transport Transport, opts Options) *Client {
	return &Client{conn: NewConn(transport, opts)}
}

// SetLogger sets a logger for operation failures.
// If not set, failures are only observable through return values.
func (c *Client) SetLogger(logger Logger) {
	c.logger = logger
}

// Conn exposes the underlying state machine for callers that need packet
// identifiers or pending-acknowledgment counts.
func (c *Client) Conn() *Conn { return c.conn }

// LastError returns the error behind the most recent false return, or nil.
func (c *Client) LastError() error { return c.lastErr }

// IsConnected reports whether the handshake completed and the stream is
// still believed healthy.
func (c *Client) IsConnected() bool {
	return c.conn.State() == StateConnected
}

// Connect runs the connection handshake.
func (c *Client) Connect() bool {
	if err := c.conn.Connect(); err != nil {
		c.fail("MQTT connect failed", err)
		return false
	}
	c.lastErr = nil
	return true
}

// Publish sends one message. QoS 1 acknowledgments are collected by a later
// CheckMessages call, not here.
func (c *Client) Publish(topic string, payload []byte, qos byte, retain bool) bool {
	if _, err := c.conn.Publish(topic, payload, qos, retain); err != nil {
		c.fail("MQTT publish failed", err, "topic", topic)
		return false
	}
	return true
}

// Subscribe registers a handler for a topic filter at QoS 1.
func (c *Client) Subscribe(topic string, handler MessageHandler) bool {
	if _, err := c.conn.Subscribe(topic, 1, handler); err != nil {
		c.fail("MQTT subscribe failed", err, "topic", topic)
		return false
	}
	return true
}

// Ping sends a keepalive probe. A broker that stays silent leaves
// Conn.PingOutstanding set, which the next cycle treats as a dead link.
func (c *Client) Ping() bool {
	if err := c.conn.Ping(); err != nil {
		c.fail("MQTT ping failed", err)
		return false
	}
	return true
}

// CheckMessages drains everything the broker has already sent: queued
// PUBLISHes are dispatched to handlers, and PUBACK/SUBACK/PINGRESP update
// the connection bookkeeping. Each poll is a zero-wait check, so a quiet
// connection returns almost immediately.
func (c *Client) CheckMessages() {
	for {
		handled, err := c.conn.Poll(0)
		if err != nil {
			c.fail("MQTT poll failed", err)
			return
		}
		if !handled {
			return
		}
	}
}

// ReadTopic subscribes to a topic and waits up to the given duration for
// one message, returning its payload. Built for retained messages: the
// broker delivers those immediately after the subscription is granted,
// which is how the node fetches its configuration without a request/reply
// exchange.
func (c *Client) ReadTopic(topic string, wait time.Duration) ([]byte, bool) {
	var payload []byte
	received := false

	if _, err := c.conn.Subscribe(topic, 1, func(_ string, p []byte) {
		payload = p
		received = true
	}); err != nil {
		c.fail("MQTT subscribe failed", err, "topic", topic)
		return nil, false
	}

	deadline := time.Now().Add(wait)
	for !received && time.Now().Before(deadline) {
		if _, err := c.conn.Poll(defaultPollPause); err != nil {
			c.fail("MQTT poll failed", err, "topic", topic)
			return nil, false
		}
	}
	return payload, received
}

// Disconnect ends the session cleanly. Safe to call when already
// disconnected.
func (c *Client) Disconnect() {
	_ = c.conn.Disconnect()
}

// fail records and logs an operation failure.
func (c *Client) fail(msg string, err error, args ...any) {
	c.lastErr = err
	if c.logger != nil {
		c.logger.Error(msg, append(args, "error", err)...)
	}
}
