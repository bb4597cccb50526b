package mqtt

import (
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-node/internal/mqtt/packet"
)

func newTestConn(t *testing.T) (*Conn, *SimTransport) {
	t.Helper()
	sim := NewSimTransport()
	conn := NewConn(sim, Options{Host: "broker.test", ClientID: "graynode-test"})
	return conn, sim
}

func connectTestConn(t *testing.T) (*Conn, *SimTransport) {
	t.Helper()
	conn, sim := newTestConn(t)
	if err := conn.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	return conn, sim
}

// =============================================================================
// Connection Lifecycle Tests
// =============================================================================

func TestConnectHandshake(t *testing.T) {
	conn, sim := newTestConn(t)

	if got := conn.State(); got != StateDisconnected {
		t.Fatalf("initial State() = %v, want disconnected", got)
	}

	if err := conn.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if got := conn.State(); got != StateConnected {
		t.Errorf("State() after connect = %v, want connected", got)
	}

	written := sim.Written()
	if len(written) != 1 {
		t.Fatalf("wrote %d packets during handshake, want 1", len(written))
	}
	c, ok := written[0].(*packet.Connect)
	if !ok {
		t.Fatalf("first packet = %T, want *packet.Connect", written[0])
	}
	if c.ClientID != "graynode-test" {
		t.Errorf("CONNECT client id = %q, want %q", c.ClientID, "graynode-test")
	}
	if c.KeepAlive != 60 {
		t.Errorf("CONNECT keepalive = %d, want 60", c.KeepAlive)
	}
}

func TestConnectRefusedByBroker(t *testing.T) {
	conn, sim := newTestConn(t)
	sim.ConnackCode = packet.ConnRefusedBadCredentials

	err := conn.Connect()
	if err == nil {
		t.Fatal("Connect() succeeded, want refusal")
	}

	var connErr *ConnectError
	if !errors.As(err, &connErr) {
		t.Fatalf("Connect() error = %T, want *ConnectError", err)
	}
	if connErr.Code != packet.ConnRefusedBadCredentials {
		t.Errorf("refusal code = %v, want bad credentials", connErr.Code)
	}
	if got := conn.State(); got != StateDisconnected {
		t.Errorf("State() after refusal = %v, want disconnected", got)
	}
}

func TestConnectWhileConnected(t *testing.T) {
	conn, _ := connectTestConn(t)

	if err := conn.Connect(); !errors.Is(err, ErrAlreadyConnected) {
		t.Errorf("second Connect() error = %v, want ErrAlreadyConnected", err)
	}
}

func TestDisconnectSendsPacketAndResets(t *testing.T) {
	conn, sim := connectTestConn(t)

	if err := conn.Disconnect(); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}
	if got := conn.State(); got != StateDisconnected {
		t.Errorf("State() after disconnect = %v, want disconnected", got)
	}
	if got := len(sim.WrittenOfKind(packet.TypeDisconnect)); got != 1 {
		t.Errorf("wrote %d DISCONNECT packets, want 1", got)
	}

	// Idempotent on a dead connection.
	if err := conn.Disconnect(); err != nil {
		t.Errorf("repeat Disconnect() error = %v", err)
	}
}

func TestOperationsRequireConnection(t *testing.T) {
	conn, _ := newTestConn(t)

	if _, err := conn.Publish("t", nil, 0, false); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() error = %v, want ErrNotConnected", err)
	}
	if _, err := conn.Subscribe("t", 1, func(string, []byte) {}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Subscribe() error = %v, want ErrNotConnected", err)
	}
	if err := conn.Ping(); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Ping() error = %v, want ErrNotConnected", err)
	}
	if _, err := conn.Poll(0); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Poll() error = %v, want ErrNotConnected", err)
	}
}

// =============================================================================
// Publish / QoS 1 Bookkeeping Tests
// =============================================================================

func TestPublishQoS0LeavesNothingPending(t *testing.T) {
	conn, sim := connectTestConn(t)

	id, err := conn.Publish("graylogic/node/test/data", []byte(`{"v":1}`), 0, false)
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if id != 0 {
		t.Errorf("QoS 0 packet id = %d, want 0", id)
	}
	if got := conn.PendingPublishes(); got != 0 {
		t.Errorf("PendingPublishes() = %d, want 0", got)
	}

	pubs := sim.WrittenOfKind(packet.TypePublish)
	if len(pubs) != 1 {
		t.Fatalf("wrote %d PUBLISH packets, want 1", len(pubs))
	}
}

func TestPublishQoS1AckedByPoll(t *testing.T) {
	conn, _ := connectTestConn(t)

	id, err := conn.Publish("graylogic/node/test/data", []byte(`{"v":1}`), 1, false)
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if id == 0 {
		t.Error("QoS 1 packet id = 0, want nonzero")
	}
	if got := conn.PendingPublishes(); got != 1 {
		t.Fatalf("PendingPublishes() before poll = %d, want 1", got)
	}

	// The simulated broker queued a PUBACK; one poll absorbs it.
	handled, err := conn.Poll(0)
	if err != nil {
		t.Fatalf("Poll() error = %v", err)
	}
	if !handled {
		t.Fatal("Poll() handled nothing, want PUBACK")
	}
	if got := conn.PendingPublishes(); got != 0 {
		t.Errorf("PendingPublishes() after poll = %d, want 0", got)
	}
}

func TestPublishUnackedStaysPending(t *testing.T) {
	conn, sim := connectTestConn(t)
	sim.AckPublishes = false

	for i := 0; i < 3; i++ {
		if _, err := conn.Publish("t", []byte("x"), 1, false); err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
	}
	if handled, _ := conn.Poll(0); handled {
		t.Error("Poll() handled a packet, want silence")
	}
	if got := conn.PendingPublishes(); got != 3 {
		t.Errorf("PendingPublishes() = %d, want 3", got)
	}
}

func TestPublishEmptyTopicRejected(t *testing.T) {
	conn, _ := connectTestConn(t)
	if _, err := conn.Publish("", nil, 0, false); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Publish(\"\") error = %v, want ErrInvalidTopic", err)
	}
}

// =============================================================================
// Packet Identifier Tests
// =============================================================================

func TestPacketIDsUniqueWhilePending(t *testing.T) {
	conn, sim := connectTestConn(t)
	sim.AckPublishes = false

	seen := make(map[uint16]bool)
	for i := 0; i < 50; i++ {
		id, err := conn.Publish("t", nil, 1, false)
		if err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
		if id == 0 {
			t.Fatal("allocated packet id 0")
		}
		if seen[id] {
			t.Fatalf("packet id %d allocated twice", id)
		}
		seen[id] = true
	}
}

func TestPacketIDWrapSkipsZeroAndBusy(t *testing.T) {
	conn, sim := connectTestConn(t)
	sim.AckPublishes = false

	// Park the allocator just before the wrap point with id 1 still busy.
	conn.nextID = 65535
	conn.pendingPub[1] = struct{}{}

	id, err := conn.Publish("t", nil, 1, false)
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if id != 65535 {
		t.Fatalf("first id = %d, want 65535", id)
	}

	// Next allocation wraps: 1 is busy, 0 is never valid, so 2 comes out.
	id, err = conn.Publish("t", nil, 1, false)
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if id != 2 {
		t.Errorf("wrapped id = %d, want 2", id)
	}
}

// =============================================================================
// Subscribe / Inbound Message Tests
// =============================================================================

func TestSubscribeGrantedViaPoll(t *testing.T) {
	conn, sim := connectTestConn(t)

	id, err := conn.Subscribe("graylogic/node/test/cmd", 1, func(string, []byte) {})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	subs := sim.WrittenOfKind(packet.TypeSubscribe)
	if len(subs) != 1 {
		t.Fatalf("wrote %d SUBSCRIBE packets, want 1", len(subs))
	}
	if got := subs[0].(*packet.Subscribe); got.PacketID != id || got.QoS != 1 {
		t.Errorf("SUBSCRIBE = id %d qos %d, want id %d qos 1", got.PacketID, got.QoS, id)
	}

	if _, ok := conn.GrantedQoS("graylogic/node/test/cmd"); ok {
		t.Error("GrantedQoS() acknowledged before the SUBACK arrived")
	}

	handled, err := conn.Poll(0)
	if err != nil {
		t.Fatalf("Poll() error = %v, want SUBACK absorbed cleanly", err)
	}
	if !handled {
		t.Error("Poll() handled nothing, want SUBACK")
	}

	granted, ok := conn.GrantedQoS("graylogic/node/test/cmd")
	if !ok {
		t.Fatal("GrantedQoS() not recorded after SUBACK")
	}
	if granted != 1 {
		t.Errorf("GrantedQoS() = %d, want 1", granted)
	}
}

func TestSubscribeGrantDowngraded(t *testing.T) {
	conn, sim := connectTestConn(t)
	sim.DowngradeGrants = true

	if _, err := conn.Subscribe("graylogic/node/test/cmd", 1, func(string, []byte) {}); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	if _, err := conn.Poll(0); err != nil {
		t.Fatalf("Poll() error = %v, want downgrade accepted, not rejected", err)
	}

	granted, ok := conn.GrantedQoS("graylogic/node/test/cmd")
	if !ok {
		t.Fatal("GrantedQoS() not recorded after downgraded SUBACK")
	}
	if granted != 0 {
		t.Errorf("GrantedQoS() = %d, want broker's granted 0", granted)
	}
}

func TestSubscribeRejectedByBroker(t *testing.T) {
	conn, sim := connectTestConn(t)
	sim.RejectSubscribes = true

	if _, err := conn.Subscribe("forbidden/topic", 1, func(string, []byte) {}); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	_, err := conn.Poll(0)
	if !errors.Is(err, ErrSubscribeRejected) {
		t.Errorf("Poll() error = %v, want ErrSubscribeRejected", err)
	}
	if _, ok := conn.GrantedQoS("forbidden/topic"); ok {
		t.Error("GrantedQoS() recorded a rejected subscription")
	}
}

func TestInboundPublishDispatchedAndAcked(t *testing.T) {
	conn, sim := connectTestConn(t)

	var gotTopic string
	var gotPayload []byte
	calls := 0
	if _, err := conn.Subscribe("graylogic/node/test/cmd", 1, func(topic string, payload []byte) {
		gotTopic = topic
		gotPayload = payload
		calls++
	}); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if _, err := conn.Poll(0); err != nil { // SUBACK
		t.Fatalf("Poll(SUBACK) error = %v", err)
	}

	if err := sim.SimulateMessage("graylogic/node/test/cmd", []byte(`{"on":true}`), 1, 42); err != nil {
		t.Fatalf("SimulateMessage() error = %v", err)
	}
	handled, err := conn.Poll(0)
	if err != nil {
		t.Fatalf("Poll(PUBLISH) error = %v", err)
	}
	if !handled {
		t.Fatal("Poll() handled nothing, want PUBLISH")
	}

	if calls != 1 {
		t.Fatalf("handler invoked %d times, want 1", calls)
	}
	if gotTopic != "graylogic/node/test/cmd" {
		t.Errorf("handler topic = %q, want %q", gotTopic, "graylogic/node/test/cmd")
	}
	if string(gotPayload) != `{"on":true}` {
		t.Errorf("handler payload = %s, want {\"on\":true}", gotPayload)
	}

	// The QoS 1 delivery must have been acknowledged exactly once.
	acks := sim.WrittenOfKind(packet.TypePuback)
	if len(acks) != 1 {
		t.Fatalf("wrote %d PUBACK packets, want 1", len(acks))
	}
	if got := acks[0].(*packet.Puback).PacketID; got != 42 {
		t.Errorf("PUBACK id = %d, want 42", got)
	}
}

func TestInboundQoS0PublishNotAcked(t *testing.T) {
	conn, sim := connectTestConn(t)

	if _, err := conn.Subscribe("t", 0, func(string, []byte) {}); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if _, err := conn.Poll(0); err != nil {
		t.Fatalf("Poll(SUBACK) error = %v", err)
	}

	if err := sim.SimulateMessage("t", []byte("x"), 0, 0); err != nil {
		t.Fatalf("SimulateMessage() error = %v", err)
	}
	if _, err := conn.Poll(0); err != nil {
		t.Fatalf("Poll(PUBLISH) error = %v", err)
	}

	if got := len(sim.WrittenOfKind(packet.TypePuback)); got != 0 {
		t.Errorf("wrote %d PUBACK packets for QoS 0 delivery, want 0", got)
	}
}

func TestPollSilenceReturnsFalse(t *testing.T) {
	conn, _ := connectTestConn(t)

	handled, err := conn.Poll(0)
	if err != nil {
		t.Fatalf("Poll() error = %v", err)
	}
	if handled {
		t.Error("Poll() = true on an idle connection, want false")
	}
}

// =============================================================================
// Keepalive Tests
// =============================================================================

func TestPingAnsweredClearsOutstanding(t *testing.T) {
	conn, sim := connectTestConn(t)

	if err := conn.Ping(); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
	if !conn.PingOutstanding() {
		t.Fatal("PingOutstanding() = false right after Ping()")
	}
	if got := len(sim.WrittenOfKind(packet.TypePingreq)); got != 1 {
		t.Fatalf("wrote %d PINGREQ packets, want 1", got)
	}

	if _, err := conn.Poll(0); err != nil {
		t.Fatalf("Poll() error = %v", err)
	}
	if conn.PingOutstanding() {
		t.Error("PingOutstanding() = true after PINGRESP, want cleared")
	}
}

func TestPingDueAfterQuietStretch(t *testing.T) {
	conn, _ := connectTestConn(t)

	if conn.PingDue() {
		t.Error("PingDue() = true right after the handshake")
	}
	conn.lastSend = time.Now().Add(-2 * defaultKeepAlive)
	if !conn.PingDue() {
		t.Error("PingDue() = false after a quiet keepalive interval")
	}
}

func TestPingUnansweredStaysOutstanding(t *testing.T) {
	conn, sim := connectTestConn(t)
	sim.DropPings = true

	if err := conn.Ping(); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
	if handled, _ := conn.Poll(0); handled {
		t.Error("Poll() handled a packet, want silence")
	}
	if !conn.PingOutstanding() {
		t.Error("PingOutstanding() = false with no PINGRESP, want true")
	}
}

// =============================================================================
// Topic Matching Tests
// =============================================================================

func TestTopicMatches(t *testing.T) {
	tests := []struct {
		filter string
		topic  string
		want   bool
	}{
		{"a/b/c", "a/b/c", true},
		{"a/b/c", "a/b/d", false},
		{"a/+/c", "a/b/c", true},
		{"a/+/c", "a/b/c/d", false},
		{"a/#", "a/b/c/d", true},
		{"#", "anything/at/all", true},
		{"a/b", "a/b/c", false},
		{"a/b/c", "a/b", false},
		{"+/+", "a/b", true},
	}
	for _, tc := range tests {
		if got := topicMatches(tc.filter, tc.topic); got != tc.want {
			t.Errorf("topicMatches(%q, %q) = %v, want %v", tc.filter, tc.topic, got, tc.want)
		}
	}
}

// =============================================================================
// Failure Injection Tests
// =============================================================================

func TestWriteFailureDropsConnection(t *testing.T) {
	conn, sim := connectTestConn(t)
	sim.WriteErr = errors.New("socket reset")

	if _, err := conn.Publish("t", nil, 0, false); err == nil {
		t.Fatal("Publish() succeeded through a failing transport")
	}
	if got := conn.State(); got != StateDisconnected {
		t.Errorf("State() after write failure = %v, want disconnected", got)
	}
}
