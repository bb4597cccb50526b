package mqtt

import (
	"errors"
	"fmt"

	"github.com/nerrad567/gray-logic-node/internal/mqtt/packet"
)

// Domain-specific errors for MQTT operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotConnected is returned when attempting operations on a disconnected client.
	ErrNotConnected = errors.New("mqtt: client not connected")

	// ErrAlreadyConnected is returned when Connect is called on a live connection.
	ErrAlreadyConnected = errors.New("mqtt: client already connected")

	// ErrConnectionFailed is returned when the initial connection attempt fails
	// before a CONNACK is received (socket errors, timeouts, malformed replies).
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrReadTimeout is returned by Transport.Read and Poll when no data
	// arrived within the allotted wait. It signals "nothing available",
	// not a broken connection.
	ErrReadTimeout = errors.New("mqtt: read timed out")

	// ErrSubscribeRejected is returned when the broker answers a SUBSCRIBE
	// with the 0x80 failure return code.
	ErrSubscribeRejected = errors.New("mqtt: subscription rejected by broker")

	// ErrInvalidTopic is returned when an empty topic is provided.
	ErrInvalidTopic = errors.New("mqtt: topic cannot be empty")

	// ErrNoFreePacketID is returned when all 65535 packet identifiers are
	// tied up in unacknowledged operations. In practice this means the
	// broker stopped acknowledging long ago.
	ErrNoFreePacketID = errors.New("mqtt: no free packet identifier")
)

// ConnectError reports a CONNACK that refused the connection. The broker's
// return code is preserved so callers can distinguish bad credentials from
// an unavailable server.
type ConnectError struct {
	Code packet.ConnectReturnCode
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("mqtt: broker refused connection: %s", e.Code)
}
