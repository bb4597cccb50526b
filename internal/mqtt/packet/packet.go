package packet

import "fmt"

// Type is the 4-bit control packet type carried in the high nibble of the
// first header byte.
type Type byte

// Control packet types per MQTT 3.1.1 section 2.2.1.
const (
	TypeReserved Type = iota
	TypeConnect
	TypeConnack
	TypePublish
	TypePuback
	typePubrec   // unused: QoS 2 not supported
	typePubrel   // unused: QoS 2 not supported
	typePubcomp  // unused: QoS 2 not supported
	TypeSubscribe
	TypeSuback
	typeUnsubscribe // unused: node never unsubscribes
	typeUnsuback    // unused: node never unsubscribes
	TypePingreq
	TypePingresp
	TypeDisconnect
)

// String returns the packet type name stylised in caps, e.g. "CONNACK".
func (t Type) String() string {
	switch t {
	case TypeConnect:
		return "CONNECT"
	case TypeConnack:
		return "CONNACK"
	case TypePublish:
		return "PUBLISH"
	case TypePuback:
		return "PUBACK"
	case TypeSubscribe:
		return "SUBSCRIBE"
	case TypeSuback:
		return "SUBACK"
	case TypePingreq:
		return "PINGREQ"
	case TypePingresp:
		return "PINGRESP"
	case TypeDisconnect:
		return "DISCONNECT"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", byte(t))
	}
}

// MaxRemainingLength is the largest encodable remaining-length value:
// four continuation bytes of seven data bits each (MQTT 3.1.1 section 2.2.3).
const MaxRemainingLength = 268435455

// maxRemainingLengthBytes bounds the remaining-length field on the wire.
const maxRemainingLengthBytes = 4

// ConnectReturnCode is the second byte of the CONNACK variable header.
// Zero means the connection was accepted.
type ConnectReturnCode byte

// CONNACK return codes per MQTT 3.1.1 table 3.1.
const (
	ConnAccepted ConnectReturnCode = iota
	ConnRefusedProtocolVersion
	ConnRefusedIdentifier
	ConnRefusedServerUnavailable
	ConnRefusedBadCredentials
	ConnRefusedNotAuthorized
)

// String returns a human-readable description of the return code.
func (rc ConnectReturnCode) String() string {
	switch rc {
	case ConnAccepted:
		return "connection accepted"
	case ConnRefusedProtocolVersion:
		return "unacceptable protocol version"
	case ConnRefusedIdentifier:
		return "client identifier rejected"
	case ConnRefusedServerUnavailable:
		return "server unavailable"
	case ConnRefusedBadCredentials:
		return "bad username or password"
	case ConnRefusedNotAuthorized:
		return "not authorized"
	default:
		return fmt.Sprintf("unknown return code %d", byte(rc))
	}
}

// Packet is implemented by every decoded or encodable control packet.
type Packet interface {
	// Kind returns the control packet type.
	Kind() Type
}

// Connect is the first packet sent by the client after the transport opens.
// The encoder always sets the clean-session flag; the node has no use for
// persistent broker-side sessions across deep-sleep cycles.
type Connect struct {
	ClientID  string
	Username  string
	Password  string
	KeepAlive uint16 // seconds
}

// Kind returns TypeConnect.
func (Connect) Kind() Type { return TypeConnect }

// Connack is the broker's reply to CONNECT.
type Connack struct {
	SessionPresent bool
	ReturnCode     ConnectReturnCode
}

// Kind returns TypeConnack.
func (Connack) Kind() Type { return TypeConnack }

// Publish carries an application message in either direction.
// PacketID must be nonzero when QoS is 1 and is absent on the wire at QoS 0.
type Publish struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retain   bool
	Dup      bool
	PacketID uint16
}

// Kind returns TypePublish.
func (Publish) Kind() Type { return TypePublish }

// Puback acknowledges a QoS 1 publish.
type Puback struct {
	PacketID uint16
}

// Kind returns TypePuback.
func (Puback) Kind() Type { return TypePuback }

// Subscribe requests delivery for a single topic filter. The broker grants
// the final QoS in the matching SUBACK.
type Subscribe struct {
	PacketID uint16
	Topic    string
	QoS      byte
}

// Kind returns TypeSubscribe.
func (Subscribe) Kind() Type { return TypeSubscribe }

// SubackFailure is the SUBACK return code marking a rejected topic filter.
const SubackFailure byte = 0x80

// Suback acknowledges a SUBSCRIBE. ReturnCode is the granted QoS, or
// SubackFailure if the broker refused the filter.
type Suback struct {
	PacketID   uint16
	ReturnCode byte
}

// Kind returns TypeSuback.
func (Suback) Kind() Type { return TypeSuback }

// Pingreq is the client keepalive probe. No body.
type Pingreq struct{}

// Kind returns TypePingreq.
func (Pingreq) Kind() Type { return TypePingreq }

// Pingresp is the broker's reply to PINGREQ. No body.
type Pingresp struct{}

// Kind returns TypePingresp.
func (Pingresp) Kind() Type { return TypePingresp }

// Disconnect is the final packet of a clean shutdown. No body.
type Disconnect struct{}

// Kind returns TypeDisconnect.
func (Disconnect) Kind() Type { return TypeDisconnect }
