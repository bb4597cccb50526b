// Package mqtt provides MQTT 3.1.1 client connectivity for Gray Logic Node.
//
// Unlike the Core, which rides on a full-featured client library, the node
// speaks a deliberately small protocol subset built directly on the codec in
// the packet subpackage:
//
//   - Clean-session connections only, with optional TLS
//   - QoS 0 and QoS 1 publishing (no QoS 2 handshake)
//   - Topic subscriptions dispatched to per-filter handlers
//   - Caller-driven keepalive via explicit PINGREQ
//
// # Architecture
//
// The package is layered. Transport moves raw bytes (a TCP/TLS socket in
// production, SimTransport in tests). Conn is the protocol state machine:
// handshake, packet identifiers, QoS 1 bookkeeping. Client wraps Conn in
// the success/failure shape the node's wake cycle wants.
//
//	main loop -> Client -> Conn -> Transport -> broker
//
// Everything is single-threaded on purpose. A battery node wakes, connects,
// publishes, and sleeps; there is no background traffic to service, so
// there are no goroutines or locks anywhere in this package. Inbound
// packets are only processed when the caller polls.
//
// # Usage
//
//	client := mqtt.NewClient(mqtt.NewNetTransport(cfg.Host, cfg.Port, cfg.TLS, 0), mqtt.Options{
//	    Host:     cfg.Host,
//	    ClientID: cfg.ClientID,
//	})
//	if !client.Connect() {
//	    return
//	}
//	defer client.Disconnect()
//
//	client.Publish("graylogic/node/livingroom/data", payload, 1, false)
//	client.CheckMessages() // collect the PUBACK
package mqtt
