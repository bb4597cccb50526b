package mqtt

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/eapache/queue"

	"github.com/nerrad567/gray-logic-node/internal/mqtt/packet"
)

// SimTransport is an in-memory Transport backed by a scripted broker.
//
// Everything the connection layer writes is decoded and appended to an
// inspectable log, and the simulated broker answers the way a well-behaved
// Mosquitto would: CONNECT gets a CONNACK, SUBSCRIBE gets a SUBACK, PINGREQ
// gets a PINGRESP, and QoS 1 publishes get their PUBACK. Tests flip the
// exported knobs to script refusals and silence instead.
//
// Inbound traffic is delivered frame-at-a-time through a FIFO; tests inject
// broker-originated messages with SimulateMessage. Like the rest of the
// connection layer, SimTransport is single-goroutine only.
type SimTransport struct {
	// ConnackCode is the return code for the next CONNACK. The zero value
	// accepts the connection.
	ConnackCode packet.ConnectReturnCode

	// RejectSubscribes makes every SUBACK carry the 0x80 failure code.
	RejectSubscribes bool

	// DowngradeGrants makes every SUBACK grant QoS 0 regardless of the
	// requested level, like a broker capped below the client's ask.
	DowngradeGrants bool

	// AckPublishes controls automatic PUBACKs for outgoing QoS 1
	// publishes. Defaults to on; turn it off to test retry bookkeeping.
	AckPublishes bool

	// DropPings suppresses PINGRESP replies, simulating a broker that
	// died mid-session.
	DropPings bool

	// WriteErr, when set, is returned by the next Write. Simulates the
	// socket failing mid-operation.
	WriteErr error

	open    bool
	inbound *queue.Queue // of []byte, one encoded packet per element
	current []byte       // partially consumed inbound frame
	pending []byte       // written bytes not yet forming a whole packet
	written []packet.Packet
}

// NewSimTransport returns a closed simulated transport with a cooperative
// broker script.
func NewSimTransport() *SimTransport {
	return &SimTransport{
		AckPublishes: true,
		inbound:      queue.New(),
	}
}

// Open marks the transport connected. The simulated dial never fails.
func (t *SimTransport) Open() error {
	if t.open {
		return fmt.Errorf("%w: transport already open", ErrAlreadyConnected)
	}
	t.open = true
	return nil
}

// Read pops bytes from the inbound FIFO. An empty FIFO reads as a timeout,
// without actually sleeping, so polling tests run instantly.
func (t *SimTransport) Read(p []byte, _ time.Duration) (int, error) {
	if !t.open {
		return 0, ErrNotConnected
	}
	if len(t.current) == 0 {
		if t.inbound.Length() == 0 {
			return 0, ErrReadTimeout
		}
		t.current = t.inbound.Remove().([]byte)
	}
	n := copy(p, t.current)
	t.current = t.current[n:]
	return n, nil
}

// Write accepts encoded bytes from the connection layer, reassembles them
// into packets, logs each one and lets the broker script respond.
func (t *SimTransport) Write(p []byte) (int, error) {
	if !t.open {
		return 0, ErrNotConnected
	}
	if t.WriteErr != nil {
		err := t.WriteErr
		t.WriteErr = nil
		return 0, err
	}

	t.pending = append(t.pending, p...)
	for len(t.pending) > 0 {
		r := bytes.NewReader(t.pending)
		pkt, err := packet.Decode(r)
		if errors.Is(err, io.EOF) || errors.Is(err, packet.ErrShortRead) {
			// An incomplete packet stays buffered until the next
			// Write completes it.
			break
		}
		if err != nil {
			// Malformed bytes would wedge the buffer forever; fail
			// the write instead so the defect surfaces.
			t.pending = nil
			return 0, fmt.Errorf("undecodable write: %w", err)
		}
		t.pending = t.pending[len(t.pending)-r.Len():]
		t.written = append(t.written, pkt)
		t.respond(pkt)
	}
	return len(p), nil
}

// Close marks the transport disconnected. The written-packet log survives
// so tests can assert on a completed session.
func (t *SimTransport) Close() error {
	t.open = false
	t.current = nil
	t.pending = nil
	t.inbound = queue.New()
	return nil
}

// Written returns every packet the client has sent, in order.
func (t *SimTransport) Written() []packet.Packet {
	return t.written
}

// WrittenOfKind filters the written log by packet type.
func (t *SimTransport) WrittenOfKind(kind packet.Type) []packet.Packet {
	var out []packet.Packet
	for _, p := range t.written {
		if p.Kind() == kind {
			out = append(out, p)
		}
	}
	return out
}

// SimulateMessage queues a broker-originated PUBLISH for the next Read.
// QoS 1 messages need a nonzero packet identifier.
func (t *SimTransport) SimulateMessage(topic string, payload []byte, qos byte, packetID uint16) error {
	return t.enqueue(&packet.Publish{
		Topic:    topic,
		Payload:  payload,
		QoS:      qos,
		PacketID: packetID,
	})
}

// respond plays the broker's half of the conversation.
func (t *SimTransport) respond(p packet.Packet) {
	switch pkt := p.(type) {
	case *packet.Connect:
		_ = t.enqueue(&packet.Connack{ReturnCode: t.ConnackCode})
	case *packet.Subscribe:
		code := pkt.QoS
		if t.DowngradeGrants {
			code = 0
		}
		if t.RejectSubscribes {
			code = packet.SubackFailure
		}
		_ = t.enqueue(&packet.Suback{PacketID: pkt.PacketID, ReturnCode: code})
	case *packet.Pingreq:
		if !t.DropPings {
			_ = t.enqueue(&packet.Pingresp{})
		}
	case *packet.Publish:
		if pkt.QoS == 1 && t.AckPublishes {
			_ = t.enqueue(&packet.Puback{PacketID: pkt.PacketID})
		}
	}
}

// enqueue encodes one packet into the inbound FIFO.
func (t *SimTransport) enqueue(p packet.Packet) error {
	var buf bytes.Buffer
	if err := packet.Encode(&buf, p); err != nil {
		return err
	}
	t.inbound.Add(buf.Bytes())
	return nil
}
