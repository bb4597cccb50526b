package packet

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Decode reads exactly one control packet from r: the fixed header, the
// remaining-length field and then precisely that many body bytes.
//
// The read is driven entirely by the transport underneath r; callers bound
// the wait by arming a read deadline before calling Decode. A deadline that
// fires before the first header byte arrives surfaces as the transport's
// timeout error; a stream that ends mid-packet surfaces as ErrShortRead.
func Decode(r io.Reader) (Packet, error) {
	var first [1]byte
	if _, err := io.ReadFull(r, first[:]); err != nil {
		// No bytes at all is not a protocol violation; pass the
		// transport error (timeout, closed) through untouched.
		return nil, err
	}

	remaining, err := decodeRemainingLength(r)
	if err != nil {
		return nil, err
	}

	body := make([]byte, remaining)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("%w: body (%d bytes): %v", ErrShortRead, remaining, err)
	}

	typ := Type(first[0] >> 4)
	flags := first[0] & 0x0F

	switch typ {
	case TypeConnack:
		return decodeConnack(body)
	case TypePublish:
		return decodePublish(flags, body)
	case TypePuback:
		if len(body) != 2 {
			return nil, fmt.Errorf("%w: PUBACK body length %d", ErrMalformed, len(body))
		}
		return &Puback{PacketID: binary.BigEndian.Uint16(body)}, nil
	case TypeSuback:
		if len(body) < 3 {
			return nil, fmt.Errorf("%w: SUBACK body length %d", ErrMalformed, len(body))
		}
		return &Suback{
			PacketID:   binary.BigEndian.Uint16(body),
			ReturnCode: body[2],
		}, nil
	case TypeConnect:
		return decodeConnect(body)
	case TypeSubscribe:
		return decodeSubscribe(body)
	case TypePingreq:
		return &Pingreq{}, nil
	case TypePingresp:
		return &Pingresp{}, nil
	case TypeDisconnect:
		return &Disconnect{}, nil
	default:
		return nil, fmt.Errorf("%w: type %d", ErrUnknownType, typ)
	}
}

// decodeRemainingLength reads the 1-4 byte variable-length field. Each byte
// contributes 7 data bits; the MSB flags a continuation. A fifth
// continuation byte is a protocol violation.
func decodeRemainingLength(r io.Reader) (uint32, error) {
	var value uint32
	multiplier := uint32(1)
	for i := 0; i < maxRemainingLengthBytes; i++ {
		var b [1]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return 0, fmt.Errorf("%w: remaining length: %v", ErrShortRead, err)
		}
		value += uint32(b[0]&0x7F) * multiplier
		if b[0]&0x80 == 0 {
			return value, nil
		}
		multiplier *= 128
	}
	return 0, ErrRemainingLengthOverflow
}

// decodeConnack parses the 2-byte CONNACK variable header.
func decodeConnack(body []byte) (Packet, error) {
	if len(body) != 2 {
		return nil, fmt.Errorf("%w: CONNACK body length %d", ErrMalformed, len(body))
	}
	return &Connack{
		SessionPresent: body[0]&0x01 != 0,
		ReturnCode:     ConnectReturnCode(body[1]),
	}, nil
}

// decodePublish parses topic, optional packet id and payload out of a
// PUBLISH body. QoS and the retain/DUP bits come from the header flags.
func decodePublish(flags byte, body []byte) (Packet, error) {
	qos := (flags >> 1) & 0x03
	if qos > 1 {
		return nil, ErrInvalidQoS
	}

	topic, rest, err := readString(body)
	if err != nil {
		return nil, fmt.Errorf("%w: PUBLISH topic: %v", ErrMalformed, err)
	}

	pkt := &Publish{
		Topic:  topic,
		QoS:    qos,
		Retain: flags&0x01 != 0,
		Dup:    flags&0x08 != 0,
	}
	if qos == 1 {
		if len(rest) < 2 {
			return nil, fmt.Errorf("%w: PUBLISH body too short for packet id", ErrMalformed)
		}
		pkt.PacketID = binary.BigEndian.Uint16(rest)
		if pkt.PacketID == 0 {
			return nil, ErrZeroPacketID
		}
		rest = rest[2:]
	}
	pkt.Payload = rest
	return pkt, nil
}

// decodeConnect parses a CONNECT body. The node never receives CONNECT from
// a broker; this path exists so the simulated transport can inspect what the
// state machine wrote.
func decodeConnect(body []byte) (Packet, error) {
	name, rest, err := readString(body)
	if err != nil || name != protocolName {
		return nil, fmt.Errorf("%w: CONNECT protocol name", ErrMalformed)
	}
	if len(rest) < 4 {
		return nil, fmt.Errorf("%w: CONNECT variable header", ErrMalformed)
	}
	level, flags := rest[0], rest[1]
	if level != protocolLevel {
		return nil, fmt.Errorf("%w: CONNECT protocol level %d", ErrMalformed, level)
	}
	keepAlive := binary.BigEndian.Uint16(rest[2:4])
	rest = rest[4:]

	pkt := &Connect{KeepAlive: keepAlive}
	if pkt.ClientID, rest, err = readString(rest); err != nil {
		return nil, fmt.Errorf("%w: CONNECT client id: %v", ErrMalformed, err)
	}
	if flags&connectFlagUsername != 0 {
		if pkt.Username, rest, err = readString(rest); err != nil {
			return nil, fmt.Errorf("%w: CONNECT username: %v", ErrMalformed, err)
		}
		if flags&connectFlagPassword != 0 {
			if pkt.Password, _, err = readString(rest); err != nil {
				return nil, fmt.Errorf("%w: CONNECT password: %v", ErrMalformed, err)
			}
		}
	}
	return pkt, nil
}

// decodeSubscribe parses a single-filter SUBSCRIBE body, mirroring what the
// node's encoder produces. Like decodeConnect it serves the simulated
// transport's packet log.
func decodeSubscribe(body []byte) (Packet, error) {
	if len(body) < 2 {
		return nil, fmt.Errorf("%w: SUBSCRIBE body length %d", ErrMalformed, len(body))
	}
	pkt := &Subscribe{PacketID: binary.BigEndian.Uint16(body)}
	if pkt.PacketID == 0 {
		return nil, ErrZeroPacketID
	}
	topic, rest, err := readString(body[2:])
	if err != nil {
		return nil, fmt.Errorf("%w: SUBSCRIBE topic: %v", ErrMalformed, err)
	}
	if len(rest) != 1 {
		return nil, fmt.Errorf("%w: SUBSCRIBE trailing bytes", ErrMalformed)
	}
	pkt.Topic = topic
	pkt.QoS = rest[0]
	return pkt, nil
}

// readString consumes one length-prefixed string from b and returns it with
// the unread remainder.
func readString(b []byte) (string, []byte, error) {
	if len(b) < 2 {
		return "", nil, errors.New("missing length prefix")
	}
	n := int(binary.BigEndian.Uint16(b))
	if len(b) < 2+n {
		return "", nil, fmt.Errorf("declared %d bytes, have %d", n, len(b)-2)
	}
	return string(b[2 : 2+n]), b[2+n:], nil
}
