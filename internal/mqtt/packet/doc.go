// Package packet implements the MQTT 3.1.1 control packet subset used by
// Gray Logic Node: CONNECT/CONNACK, PUBLISH/PUBACK (QoS 0 and 1),
// SUBSCRIBE/SUBACK, PINGREQ/PINGRESP and DISCONNECT.
//
// The codec is written against the wire format directly rather than wrapping
// a client library, because the node owns its footprint and its failure
// behaviour end to end. Every packet is a 1-byte type+flags header, a
// variable-length remaining-length field (1-4 bytes, 7 data bits per byte
// with an MSB continuation flag) and a type-specific body. Strings are
// length-prefixed with a 2-byte big-endian length.
//
// # What is deliberately missing
//
//   - QoS 2 and its four-packet exchange
//   - Will messages (beyond the flag bits the encoder never sets)
//   - UNSUBSCRIBE/UNSUBACK (the node never unsubscribes within a wake cycle)
//
// # Usage
//
//	pkt := packet.Publish{Topic: "graylogic/node/data", Payload: reading, QoS: 1, PacketID: 7}
//	err := packet.Encode(conn, &pkt)
//
//	decoded, err := packet.Decode(conn)
//
// # Related Documents
//
//   - docs/protocols/mqtt.md — Topic structure and message formats
package packet
