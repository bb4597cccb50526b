package mqtt

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-node/internal/mqtt/packet"
)

// ConnState is the connection lifecycle position.
//
// Transitions are strictly Disconnected -> Connecting -> Connected and back
// to Disconnected from anywhere. There is no half-open state: any stream
// error drops straight to Disconnected.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
)

// String returns a human-readable state name for logging.
func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MessageHandler is the callback signature for received messages.
//
// Handlers run synchronously inside Poll, on the caller's goroutine.
// They should not block for extended periods.
type MessageHandler func(topic string, payload []byte)

// Subscription records one topic filter's QoS negotiation: the level the
// client asked for and the level the broker granted in its SUBACK. The
// granted level is only meaningful once the SUBACK has been processed.
type Subscription struct {
	Filter       string
	RequestedQoS byte
	GrantedQoS   byte
}

// Conn is the MQTT connection state machine.
//
// It owns the protocol handshake, QoS 1 bookkeeping and keepalive state on
// top of a raw Transport. Everything is driven by explicit calls from a
// single goroutine: there are no internal goroutines, no locks, and nothing
// happens between calls. Inbound traffic is only processed when the caller
// invokes Poll.
//
// A sleepy sensor node wants exactly this shape: the main loop decides when
// wire work happens, and the radio can be powered down between calls.
type Conn struct {
	transport Transport
	opts      Options
	state     ConnState

	// nextID seeds packet identifier allocation. Identifiers are nonzero,
	// unique among outstanding operations, and wrap past 65535.
	nextID uint16

	// pendingPub holds QoS 1 publish identifiers awaiting PUBACK.
	pendingPub map[uint16]struct{}

	// pendingSub maps in-flight SUBSCRIBE identifiers to their requested
	// subscription, pending the broker's SUBACK.
	pendingSub map[uint16]Subscription

	// subs holds acknowledged subscriptions by topic filter, with the
	// broker's granted QoS filled in.
	subs map[string]Subscription

	// handlers maps topic filters to their message callbacks. A filter's
	// handler is registered at Subscribe time and fires once the broker
	// grants the subscription and matching traffic arrives.
	handlers map[string]MessageHandler

	// pingOutstanding is set by Ping and cleared when Poll sees a PINGRESP.
	// The caller checks it before pinging again to detect a dead broker.
	pingOutstanding bool

	// lastSend is the time of the most recent outbound packet. Any
	// traffic resets the broker's keepalive timer, so pings are only
	// needed after a quiet stretch.
	lastSend time.Time
}

// NewConn returns a connection machine in StateDisconnected.
func NewConn(transport Transport, opts Options) *Conn {
	return &Conn{
		transport:  transport,
		opts:       opts.withDefaults(),
		state:      StateDisconnected,
		nextID:     1,
		pendingPub: make(map[uint16]struct{}),
		pendingSub: make(map[uint16]Subscription),
		subs:       make(map[string]Subscription),
		handlers:   make(map[string]MessageHandler),
	}
}

// State returns the current lifecycle position.
func (c *Conn) State() ConnState { return c.state }

// PingOutstanding reports whether a PINGREQ has gone unanswered.
func (c *Conn) PingOutstanding() bool { return c.pingOutstanding }

// PendingPublishes returns the number of QoS 1 publishes awaiting PUBACK.
func (c *Conn) PendingPublishes() int { return len(c.pendingPub) }

// GrantedQoS returns the QoS level the broker granted for a topic filter.
// The second return is false until the filter's SUBACK has been processed
// by Poll. Brokers may grant a lower level than requested; deliveries on
// the filter then arrive at the granted level.
func (c *Conn) GrantedQoS(filter string) (byte, bool) {
	sub, ok := c.subs[filter]
	return sub.GrantedQoS, ok
}

// PingDue reports whether the keepalive interval has elapsed since the last
// outbound packet. Pinging earlier is harmless but wastes radio time.
func (c *Conn) PingDue() bool {
	return c.state == StateConnected && time.Since(c.lastSend) >= c.opts.KeepAlive
}

// Connect opens the transport and performs the CONNECT/CONNACK handshake.
//
// The session is always clean: the broker discards any state from previous
// connections, and this client re-subscribes from scratch each time. A
// refused CONNACK is reported as *ConnectError with the broker's return
// code; every failure path tears the transport down and lands back in
// StateDisconnected.
func (c *Conn) Connect() error {
	if c.state != StateDisconnected {
		return fmt.Errorf("%w: state %s", ErrAlreadyConnected, c.state)
	}

	c.state = StateConnecting
	if err := c.transport.Open(); err != nil {
		c.state = StateDisconnected
		return err
	}

	connect := &packet.Connect{
		ClientID:  c.opts.ClientID,
		Username:  c.opts.Username,
		Password:  c.opts.Password,
		KeepAlive: uint16(c.opts.KeepAlive / time.Second),
	}
	if err := c.send(connect); err != nil {
		c.drop()
		return fmt.Errorf("%w: sending CONNECT: %w", ErrConnectionFailed, err)
	}

	pkt, err := c.read(c.opts.ConnectTimeout)
	if err != nil {
		c.drop()
		return fmt.Errorf("%w: waiting for CONNACK: %w", ErrConnectionFailed, err)
	}
	ack, ok := pkt.(*packet.Connack)
	if !ok {
		c.drop()
		return fmt.Errorf("%w: expected CONNACK, got %s", ErrConnectionFailed, pkt.Kind())
	}
	if ack.ReturnCode != packet.ConnAccepted {
		c.drop()
		return &ConnectError{Code: ack.ReturnCode}
	}

	c.state = StateConnected
	c.pingOutstanding = false
	return nil
}

// Publish sends an application message.
//
// QoS 0 is fire-and-forget. QoS 1 allocates a packet identifier, records it
// as outstanding, and returns without waiting for the PUBACK; the
// acknowledgment is absorbed by a later Poll. The returned identifier is 0
// for QoS 0 messages.
func (c *Conn) Publish(topic string, payload []byte, qos byte, retain bool) (uint16, error) {
	if c.state != StateConnected {
		return 0, ErrNotConnected
	}
	if topic == "" {
		return 0, ErrInvalidTopic
	}

	pub := &packet.Publish{
		Topic:   topic,
		Payload: payload,
		QoS:     qos,
		Retain:  retain,
	}
	if qos == 1 {
		id, err := c.allocPacketID()
		if err != nil {
			return 0, err
		}
		pub.PacketID = id
	}

	if err := c.send(pub); err != nil {
		c.drop()
		return 0, err
	}
	if qos == 1 {
		c.pendingPub[pub.PacketID] = struct{}{}
	}
	return pub.PacketID, nil
}

// Subscribe asks the broker for a topic filter and registers the handler
// that will receive matching messages.
//
// The request is not confirmed here: the broker's SUBACK arrives through a
// later Poll, which logs nothing on success and reports ErrSubscribeRejected
// if the broker refused the filter. Messages may start flowing as soon as
// the broker processes the request, so the handler is registered before the
// SUBSCRIBE is sent.
func (c *Conn) Subscribe(topic string, qos byte, handler MessageHandler) (uint16, error) {
	if c.state != StateConnected {
		return 0, ErrNotConnected
	}
	if topic == "" {
		return 0, ErrInvalidTopic
	}

	id, err := c.allocPacketID()
	if err != nil {
		return 0, err
	}

	c.handlers[topic] = handler
	if err := c.send(&packet.Subscribe{PacketID: id, Topic: topic, QoS: qos}); err != nil {
		delete(c.handlers, topic)
		c.drop()
		return 0, err
	}
	c.pendingSub[id] = Subscription{Filter: topic, RequestedQoS: qos}
	return id, nil
}

// Ping sends a PINGREQ and marks it outstanding.
//
// The PINGRESP is cleared by Poll. Callers that find PingOutstanding still
// set when the next keepalive is due should treat the broker as gone and
// Disconnect.
func (c *Conn) Ping() error {
	if c.state != StateConnected {
		return ErrNotConnected
	}
	if err := c.send(&packet.Pingreq{}); err != nil {
		c.drop()
		return err
	}
	c.pingOutstanding = true
	return nil
}

// Poll reads and dispatches at most one inbound packet.
//
// It waits up to the given duration for traffic. Silence is normal: Poll
// returns (false, nil) when nothing arrived. A processed packet returns
// (true, nil) after its side effects ran:
//
//   - PUBLISH: the matching handler is invoked; QoS 1 deliveries are
//     acknowledged with a PUBACK before the handler runs.
//   - PUBACK: the identifier is removed from the outstanding set.
//   - SUBACK: the in-flight subscription is resolved and its granted QoS
//     recorded (see GrantedQoS); a 0x80 return code surfaces as
//     ErrSubscribeRejected and the handler is dropped.
//   - PINGRESP: the outstanding-ping flag is cleared.
//
// Stream errors tear the connection down and land in StateDisconnected.
func (c *Conn) Poll(wait time.Duration) (bool, error) {
	if c.state != StateConnected {
		return false, ErrNotConnected
	}

	pkt, err := c.read(wait)
	if err != nil {
		if errors.Is(err, ErrReadTimeout) {
			return false, nil
		}
		c.drop()
		return false, err
	}

	switch p := pkt.(type) {
	case *packet.Publish:
		if err := c.handlePublish(p); err != nil {
			c.drop()
			return true, err
		}
	case *packet.Puback:
		delete(c.pendingPub, p.PacketID)
	case *packet.Suback:
		sub, inFlight := c.pendingSub[p.PacketID]
		delete(c.pendingSub, p.PacketID)
		if !inFlight {
			break
		}
		if p.ReturnCode == packet.SubackFailure {
			delete(c.handlers, sub.Filter)
			return true, fmt.Errorf("%w: %s", ErrSubscribeRejected, sub.Filter)
		}
		sub.GrantedQoS = p.ReturnCode
		c.subs[sub.Filter] = sub
	case *packet.Pingresp:
		c.pingOutstanding = false
	default:
		// Brokers should not send anything else to a clean-session
		// QoS 1 client. Ignore rather than tear down.
	}
	return true, nil
}

// Disconnect sends DISCONNECT and closes the transport.
//
// The DISCONNECT is best-effort: a write failure at this point changes
// nothing, the transport is closed either way. All QoS 1 bookkeeping is
// discarded, matching the clean-session contract.
func (c *Conn) Disconnect() error {
	if c.state == StateDisconnected {
		return nil
	}
	// Ignore the write error: we are leaving regardless.
	_ = c.send(&packet.Disconnect{})
	c.drop()
	return nil
}

// handlePublish acknowledges and dispatches one inbound message.
func (c *Conn) handlePublish(p *packet.Publish) error {
	if p.QoS == 1 {
		if err := c.send(&packet.Puback{PacketID: p.PacketID}); err != nil {
			return err
		}
	}
	for filter, handler := range c.handlers {
		if topicMatches(filter, p.Topic) {
			handler(p.Topic, p.Payload)
		}
	}
	return nil
}

// allocPacketID returns the next free nonzero packet identifier.
//
// Identifiers wrap past 65535 back to 1 and skip anything still tied up in
// an unacknowledged publish or subscribe.
func (c *Conn) allocPacketID() (uint16, error) {
	for i := 0; i < 65535; i++ {
		id := c.nextID
		if c.nextID == 65535 {
			c.nextID = 1
		} else {
			c.nextID++
		}
		if _, busy := c.pendingPub[id]; busy {
			continue
		}
		if _, busy := c.pendingSub[id]; busy {
			continue
		}
		return id, nil
	}
	return 0, ErrNoFreePacketID
}

// send encodes one packet onto the transport and stamps the activity clock.
func (c *Conn) send(p packet.Packet) error {
	if err := packet.Encode(transportWriter{c.transport}, p); err != nil {
		return err
	}
	c.lastSend = time.Now()
	return nil
}

// read decodes one packet from the transport, waiting at most timeout for
// the first byte. ErrReadTimeout passes through untouched.
func (c *Conn) read(timeout time.Duration) (packet.Packet, error) {
	return packet.Decode(&transportReader{t: c.transport, timeout: timeout})
}

// drop closes the transport and resets to StateDisconnected, discarding all
// in-flight bookkeeping.
func (c *Conn) drop() {
	_ = c.transport.Close()
	c.state = StateDisconnected
	c.pingOutstanding = false
	c.pendingPub = make(map[uint16]struct{})
	c.pendingSub = make(map[uint16]Subscription)
	c.subs = make(map[string]Subscription)
	c.handlers = make(map[string]MessageHandler)
}

// transportWriter adapts a Transport to io.Writer for the packet encoder.
type transportWriter struct {
	t Transport
}

func (w transportWriter) Write(p []byte) (int, error) {
	return w.t.Write(p)
}

// transportReader adapts a Transport to io.Reader for the packet decoder.
// Each Read waits at most the configured timeout.
type transportReader struct {
	t       Transport
	timeout time.Duration
}

func (r *transportReader) Read(p []byte) (int, error) {
	return r.t.Read(p, r.timeout)
}

// topicMatches reports whether a topic filter matches a concrete topic name,
// honoring the + single-level and # multi-level wildcards.
func topicMatches(filter, topic string) bool {
	if filter == topic {
		return true
	}

	fParts := strings.Split(filter, "/")
	tParts := strings.Split(topic, "/")

	for i, fp := range fParts {
		if fp == "#" {
			return true
		}
		if i >= len(tParts) {
			return false
		}
		if fp != "+" && fp != tParts[i] {
			return false
		}
	}
	return len(fParts) == len(tParts)
}
