package mqtt

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"time"
)

// Transport carries encoded control packets between the client and a broker.
//
// Implementations must be stream-oriented: bytes written by one side arrive
// in order on the other. The connection layer owns packet framing; a
// Transport only moves bytes.
//
// Read blocks for at most the given timeout. When nothing arrives in time it
// returns ErrReadTimeout, which the caller treats as "no traffic", not as a
// failure. Any other error means the stream is unusable.
type Transport interface {
	// Open establishes the underlying stream. Calling Open on an
	// already-open transport is an error.
	Open() error

	// Read fills p with at least one byte or fails. A non-positive
	// timeout is a poll: return buffered data if any has arrived, or
	// ErrReadTimeout after at most a brief wait.
	Read(p []byte, timeout time.Duration) (int, error)

	// Write sends len(p) bytes or fails.
	Write(p []byte) (int, error)

	// Close tears the stream down. Close on a closed transport is a no-op.
	Close() error
}

// minReadWait is the deadline used for zero-wait polls. An already-expired
// deadline fails the read even when the broker's bytes are sitting in the
// kernel receive buffer, so "check now" still needs a little time on the
// clock.
const minReadWait = 10 * time.Millisecond

// NetTransport is the production Transport: a TCP socket to the broker,
// optionally wrapped in TLS.
type NetTransport struct {
	host        string
	port        int
	useTLS      bool
	dialTimeout time.Duration

	conn net.Conn
}

// NewNetTransport returns an unopened transport for the given broker address.
func NewNetTransport(host string, port int, useTLS bool, dialTimeout time.Duration) *NetTransport {
	if dialTimeout <= 0 {
		dialTimeout = defaultConnectTimeout
	}
	return &NetTransport{
		host:        host,
		port:        port,
		useTLS:      useTLS,
		dialTimeout: dialTimeout,
	}
}

// Open dials the broker. With TLS enabled the handshake runs inside the same
// dial timeout and the server certificate is verified against the system
// roots.
func (t *NetTransport) Open() error {
	if t.conn != nil {
		return fmt.Errorf("%w: transport already open", ErrAlreadyConnected)
	}

	addr := net.JoinHostPort(t.host, fmt.Sprintf("%d", t.port))
	dialer := &net.Dialer{Timeout: t.dialTimeout}

	var conn net.Conn
	var err error
	if t.useTLS {
		conn, err = tls.DialWithDialer(dialer, "tcp", addr, &tls.Config{
			MinVersion: tlsMinVersion,
		})
	} else {
		conn, err = dialer.Dial("tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("%w: dial %s: %w", ErrConnectionFailed, addr, err)
	}

	t.conn = conn
	return nil
}

// Read fills p, waiting at most timeout for data. Deadline expiry is mapped
// to ErrReadTimeout so callers can poll without treating silence as failure.
func (t *NetTransport) Read(p []byte, timeout time.Duration) (int, error) {
	if t.conn == nil {
		return 0, ErrNotConnected
	}
	if timeout <= 0 {
		timeout = minReadWait
	}
	if err := t.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return 0, fmt.Errorf("setting read deadline: %w", err)
	}

	n, err := t.conn.Read(p)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return n, ErrReadTimeout
		}
		return n, err
	}
	return n, nil
}

// Write sends p. The socket's write buffer makes short writes effectively
// impossible on a healthy connection; any error is fatal to the stream.
func (t *NetTransport) Write(p []byte) (int, error) {
	if t.conn == nil {
		return 0, ErrNotConnected
	}
	return t.conn.Write(p)
}

// Close shuts the socket down.
func (t *NetTransport) Close() error {
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	return err
}
