package packet

import "errors"

// Protocol errors for packet encoding and decoding.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrRemainingLengthOverflow is returned when a remaining-length value
	// exceeds MaxRemainingLength, or a decoded field uses more than four
	// continuation bytes.
	ErrRemainingLengthOverflow = errors.New("packet: remaining length exceeds 4-byte encoding")

	// ErrShortRead is returned when the stream ends before a complete
	// packet was read.
	ErrShortRead = errors.New("packet: short read")

	// ErrMalformed is returned when packet contents contradict the fixed
	// header, e.g. a PUBLISH body too small for its topic length.
	ErrMalformed = errors.New("packet: malformed packet")

	// ErrInvalidQoS is returned for QoS levels other than 0 or 1.
	// QoS 2 is deliberately unsupported.
	ErrInvalidQoS = errors.New("packet: invalid QoS level (must be 0 or 1)")

	// ErrZeroPacketID is returned when a QoS 1 packet carries packet id 0,
	// which the protocol forbids.
	ErrZeroPacketID = errors.New("packet: packet identifier must be nonzero")

	// ErrTopicTooLong is returned when a topic exceeds the uint16
	// length-prefix limit of 65535 bytes.
	ErrTopicTooLong = errors.New("packet: topic exceeds 65535 bytes")

	// ErrUnknownType is returned by Decode for packet types outside the
	// supported subset.
	ErrUnknownType = errors.New("packet: unknown or unsupported packet type")
)
