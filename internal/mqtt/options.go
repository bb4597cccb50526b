package mqtt

import (
	"crypto/tls"
	"time"
)

// Connection constants.
const (
	// defaultConnectTimeout bounds the dial plus the CONNACK wait.
	defaultConnectTimeout = 10 * time.Second

	// defaultKeepAlive is the keepalive interval advertised in CONNECT.
	// The broker drops the connection after 1.5x this without traffic.
	defaultKeepAlive = 60 * time.Second

	// defaultPollPause is how long ReadTopic sleeps between polls while
	// waiting for a message to arrive.
	defaultPollPause = 100 * time.Millisecond

	// maxQoS is the highest QoS level this client speaks.
	maxQoS = 1

	// tlsMinVersion is the minimum TLS version for secure connections.
	tlsMinVersion = tls.VersionTLS12
)

// Options configures a connection to a broker.
//
// The zero value is not usable: Host and ClientID are required. Everything
// else has a sensible default applied by withDefaults.
type Options struct {
	Host     string
	Port     int
	TLS      bool
	ClientID string

	// Credentials are optional. A password without a username is ignored.
	Username string
	Password string

	// KeepAlive is the interval advertised to the broker, in seconds on
	// the wire. Zero selects defaultKeepAlive.
	KeepAlive time.Duration

	// ConnectTimeout bounds dialing and the CONNACK wait together.
	ConnectTimeout time.Duration
}

// withDefaults fills unset fields.
func (o Options) withDefaults() Options {
	if o.Port == 0 {
		if o.TLS {
			o.Port = 8883
		} else {
			o.Port = 1883
		}
	}
	if o.KeepAlive == 0 {
		o.KeepAlive = defaultKeepAlive
	}
	if o.ConnectTimeout == 0 {
		o.ConnectTimeout = defaultConnectTimeout
	}
	return o
}
