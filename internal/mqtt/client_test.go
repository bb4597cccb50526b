package mqtt

import (
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-node/internal/mqtt/packet"
)

// captureLogger records log calls for assertions.
type captureLogger struct {
	errors []string
	warns  []string
}

func (l *captureLogger) Error(msg string, _ ...any) { l.errors = append(l.errors, msg) }
func (l *captureLogger) Warn(msg string, _ ...any)  { l.warns = append(l.warns, msg) }

func newTestClient(t *testing.T) (*Client, *SimTransport) {
	t.Helper()
	sim := NewSimTransport()
	client := NewClient(sim, Options{Host: "broker.test", ClientID: "graynode-test"})
	return client, sim
}

// =============================================================================
// Connection Tests
// =============================================================================

func TestClientConnectSuccess(t *testing.T) {
	client, _ := newTestClient(t)

	if !client.Connect() {
		t.Fatalf("Connect() = false, LastError() = %v", client.LastError())
	}
	if !client.IsConnected() {
		t.Error("IsConnected() = false after successful connect")
	}
	if client.LastError() != nil {
		t.Errorf("LastError() = %v after success, want nil", client.LastError())
	}
}

func TestClientConnectRefusedLogsAndReturnsFalse(t *testing.T) {
	client, sim := newTestClient(t)
	sim.ConnackCode = packet.ConnRefusedServerUnavailable
	logger := &captureLogger{}
	client.SetLogger(logger)

	if client.Connect() {
		t.Fatal("Connect() = true against a refusing broker")
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after refusal")
	}

	var connErr *ConnectError
	if !errors.As(client.LastError(), &connErr) {
		t.Errorf("LastError() = %v, want *ConnectError", client.LastError())
	}
	if len(logger.errors) != 1 {
		t.Errorf("logged %d errors, want 1", len(logger.errors))
	}
}

// =============================================================================
// Publish Tests
// =============================================================================

func TestClientPublishCollectsAckViaCheckMessages(t *testing.T) {
	client, _ := newTestClient(t)
	client.Connect()

	if !client.Publish("graylogic/node/test/data", []byte(`{"v":1}`), 1, false) {
		t.Fatalf("Publish() = false, LastError() = %v", client.LastError())
	}
	if got := client.Conn().PendingPublishes(); got != 1 {
		t.Fatalf("PendingPublishes() = %d, want 1", got)
	}

	client.CheckMessages()
	if got := client.Conn().PendingPublishes(); got != 0 {
		t.Errorf("PendingPublishes() after CheckMessages = %d, want 0", got)
	}
}

func TestClientPublishWhileDisconnected(t *testing.T) {
	client, _ := newTestClient(t)

	if client.Publish("t", nil, 0, false) {
		t.Error("Publish() = true while disconnected")
	}
	if !errors.Is(client.LastError(), ErrNotConnected) {
		t.Errorf("LastError() = %v, want ErrNotConnected", client.LastError())
	}
}

// =============================================================================
// CheckMessages Tests
// =============================================================================

func TestCheckMessagesDrainsBacklog(t *testing.T) {
	client, sim := newTestClient(t)
	client.Connect()

	received := 0
	if !client.Subscribe("graylogic/node/test/cmd", func(string, []byte) { received++ }) {
		t.Fatalf("Subscribe() = false, LastError() = %v", client.LastError())
	}

	// Three messages queue up while the node is busy elsewhere.
	for i := 0; i < 3; i++ {
		if err := sim.SimulateMessage("graylogic/node/test/cmd", []byte{byte(i)}, 0, 0); err != nil {
			t.Fatalf("SimulateMessage() error = %v", err)
		}
	}

	// One drain handles the SUBACK and all three deliveries.
	client.CheckMessages()
	if received != 3 {
		t.Errorf("handler invoked %d times, want 3", received)
	}
}

// =============================================================================
// ReadTopic Tests
// =============================================================================

func TestReadTopicReturnsQueuedMessage(t *testing.T) {
	client, sim := newTestClient(t)
	client.Connect()

	// A retained config document waiting at the broker.
	if err := sim.SimulateMessage("graylogic/node/test/config", []byte(`{"interval":300}`), 0, 0); err != nil {
		t.Fatalf("SimulateMessage() error = %v", err)
	}

	payload, ok := client.ReadTopic("graylogic/node/test/config", time.Second)
	if !ok {
		t.Fatalf("ReadTopic() = false, LastError() = %v", client.LastError())
	}
	if string(payload) != `{"interval":300}` {
		t.Errorf("ReadTopic() payload = %s, want {\"interval\":300}", payload)
	}
}

func TestReadTopicTimesOutOnSilence(t *testing.T) {
	client, _ := newTestClient(t)
	client.Connect()

	payload, ok := client.ReadTopic("graylogic/node/test/config", 20*time.Millisecond)
	if ok {
		t.Errorf("ReadTopic() = true on a silent topic, payload = %q", payload)
	}
}

// =============================================================================
// Keepalive Tests
// =============================================================================

func TestClientPingRoundTrip(t *testing.T) {
	client, _ := newTestClient(t)
	client.Connect()

	if !client.Ping() {
		t.Fatalf("Ping() = false, LastError() = %v", client.LastError())
	}
	client.CheckMessages()
	if client.Conn().PingOutstanding() {
		t.Error("PingOutstanding() = true after CheckMessages, want PINGRESP absorbed")
	}
}

// =============================================================================
// Disconnect Tests
// =============================================================================

func TestClientDisconnectIdempotent(t *testing.T) {
	client, sim := newTestClient(t)
	client.Connect()

	client.Disconnect()
	if client.IsConnected() {
		t.Error("IsConnected() = true after Disconnect()")
	}
	if got := len(sim.WrittenOfKind(packet.TypeDisconnect)); got != 1 {
		t.Errorf("wrote %d DISCONNECT packets, want 1", got)
	}

	client.Disconnect() // no-op, must not panic or log
}
