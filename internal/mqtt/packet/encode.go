package packet

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// protocolName and protocolLevel identify MQTT 3.1.1 in the CONNECT
// variable header.
const (
	protocolName  = "MQTT"
	protocolLevel = 4
)

// CONNECT flag bits (MQTT 3.1.1 section 3.1.2.3).
const (
	connectFlagCleanSession = 1 << 1
	connectFlagPassword     = 1 << 6
	connectFlagUsername     = 1 << 7
)

// Encode writes one complete control packet to w: fixed header,
// remaining-length field and body. It returns the first write error
// encountered; a partial write leaves the stream unusable and the caller is
// expected to tear the connection down.
func Encode(w io.Writer, p Packet) error {
	var firstByte byte
	var body []byte
	var err error

	switch pkt := p.(type) {
	case *Connect:
		firstByte = byte(TypeConnect) << 4
		body, err = pkt.body()
	case *Connack:
		firstByte = byte(TypeConnack) << 4
		var sessionPresent byte
		if pkt.SessionPresent {
			sessionPresent = 1
		}
		body = []byte{sessionPresent, byte(pkt.ReturnCode)}
	case *Publish:
		firstByte, body, err = pkt.headerAndBody()
	case *Puback:
		firstByte = byte(TypePuback) << 4
		body = appendUint16(nil, pkt.PacketID)
	case *Subscribe:
		// SUBSCRIBE requires the reserved flags 0b0010.
		firstByte = byte(TypeSubscribe)<<4 | 0x02
		body, err = pkt.body()
	case *Suback:
		firstByte = byte(TypeSuback) << 4
		body = append(appendUint16(nil, pkt.PacketID), pkt.ReturnCode)
	case *Pingreq:
		firstByte = byte(TypePingreq) << 4
	case *Pingresp:
		firstByte = byte(TypePingresp) << 4
	case *Disconnect:
		firstByte = byte(TypeDisconnect) << 4
	default:
		return fmt.Errorf("%w: cannot encode %s", ErrUnknownType, p.Kind())
	}
	if err != nil {
		return err
	}

	header, err := encodeFixedHeader(firstByte, uint32(len(body)))
	if err != nil {
		return err
	}
	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("writing %s header: %w", p.Kind(), err)
	}
	if len(body) > 0 {
		if _, err := w.Write(body); err != nil {
			return fmt.Errorf("writing %s body: %w", p.Kind(), err)
		}
	}
	return nil
}

// encodeFixedHeader builds the 1-byte type+flags header followed by the
// remaining-length field (1-4 bytes, 7 data bits per byte, MSB set while
// more bytes follow).
func encodeFixedHeader(firstByte byte, remaining uint32) ([]byte, error) {
	if remaining > MaxRemainingLength {
		return nil, fmt.Errorf("%w: %d", ErrRemainingLengthOverflow, remaining)
	}
	header := make([]byte, 1, 5)
	header[0] = firstByte
	for {
		b := byte(remaining % 128)
		remaining /= 128
		if remaining > 0 {
			b |= 0x80
		}
		header = append(header, b)
		if remaining == 0 {
			return header, nil
		}
	}
}

// appendUint16 appends v big-endian.
func appendUint16(dst []byte, v uint16) []byte {
	return binary.BigEndian.AppendUint16(dst, v)
}

// appendString appends an MQTT length-prefixed string.
// The caller must have checked the 65535-byte limit.
func appendString(dst []byte, s string) []byte {
	dst = appendUint16(dst, uint16(len(s)))
	return append(dst, s...)
}

// body builds the CONNECT variable header and payload: protocol name and
// level, connect flags, keepalive, client id and optional credentials.
// A password without a username is silently dropped, as the protocol only
// defines the password flag in combination with the username flag.
func (p *Connect) body() ([]byte, error) {
	if len(p.ClientID) > math.MaxUint16 {
		return nil, fmt.Errorf("%w: client id", ErrTopicTooLong)
	}

	flags := byte(connectFlagCleanSession)
	if p.Username != "" {
		flags |= connectFlagUsername
		if p.Password != "" {
			flags |= connectFlagPassword
		}
	}

	body := appendString(nil, protocolName)
	body = append(body, protocolLevel, flags)
	body = appendUint16(body, p.KeepAlive)
	body = appendString(body, p.ClientID)
	if p.Username != "" {
		body = appendString(body, p.Username)
		if p.Password != "" {
			body = appendString(body, p.Password)
		}
	}
	return body, nil
}

// headerAndBody builds the PUBLISH first byte (type, DUP, QoS, retain bits)
// and its body (topic, packet id at QoS 1, then the raw payload).
func (p *Publish) headerAndBody() (byte, []byte, error) {
	if p.QoS > 1 {
		return 0, nil, ErrInvalidQoS
	}
	if len(p.Topic) > math.MaxUint16 {
		return 0, nil, ErrTopicTooLong
	}
	if p.QoS == 1 && p.PacketID == 0 {
		return 0, nil, ErrZeroPacketID
	}

	firstByte := byte(TypePublish) << 4
	if p.Dup {
		firstByte |= 1 << 3
	}
	firstByte |= p.QoS << 1
	if p.Retain {
		firstByte |= 1
	}

	body := appendString(nil, p.Topic)
	if p.QoS == 1 {
		body = appendUint16(body, p.PacketID)
	}
	body = append(body, p.Payload...)
	return firstByte, body, nil
}

// body builds the SUBSCRIBE variable header and payload: packet id, then a
// single topic filter with its requested QoS.
func (p *Subscribe) body() ([]byte, error) {
	if p.QoS > 1 {
		return nil, ErrInvalidQoS
	}
	if len(p.Topic) > math.MaxUint16 {
		return nil, ErrTopicTooLong
	}
	if p.PacketID == 0 {
		return nil, ErrZeroPacketID
	}
	body := appendUint16(nil, p.PacketID)
	body = appendString(body, p.Topic)
	return append(body, p.QoS), nil
}
