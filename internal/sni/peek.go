// Package sni extracts the Server Name Indication from a buffered prefix of a TLS ClientHello
// without consuming the underlying stream, so a later stage (TLS-terminating handshake or raw
// splice) can replay the same bytes.
package sni

import (
	"crypto/tls"
	"io"
	"net"
	"strings"
	"time"
)

// Peek feeds a peeked (non-consumed) prefix of a TLS ClientHello through a scratch TLS server
// state and returns the server name it carries, or ok=false if no SNI could be extracted.
//
// The returned name is the raw server name the TLS layer observed, e.g. "foo.bar.localhost";
// callers reduce it to a registered domain with Normalize below.
func Peek(prefix []byte) (serverName string, ok bool) {
	if len(prefix) == 0 {
		return "", false
	}

	captured := make(chan string, 1)
	conn := tls.Server(&prefixConn{data: prefix}, &tls.Config{
		GetConfigForClient: func(hello *tls.ClientHelloInfo) (*tls.Config, error) {
			captured <- hello.ServerName
			return nil, errAbortHandshake
		},
	})

	// Advance one step of the handshake state machine. We expect and ignore the error: the
	// GetConfigForClient callback above deliberately aborts once it has captured the SNI, and
	// we never intend to complete a real handshake here.
	_ = conn.Handshake()

	select {
	case name := <-captured:
		if len(name) == 0 {
			return "", false
		}
		return name, true
	default:
		return "", false
	}
}

// Normalize extracts the last two dot-separated labels of hostname and joins them with tld,
// e.g. Normalize("foo.bar.localhost", "localhost") == "bar.localhost". Returns ok=false if
// hostname has fewer than two labels.
func Normalize(hostname, tld string) (domain string, ok bool) {
	labels := strings.Split(hostname, ".")
	if len(labels) < 2 {
		return "", false
	}
	secondLast := labels[len(labels)-2]
	return secondLast + "." + tld, true
}

// errAbortHandshake is returned by GetConfigForClient once SNI has been captured, short-circuiting
// the rest of the (never-to-be-completed) handshake.
var errAbortHandshake = &abortError{}

type abortError struct{}

func (*abortError) Error() string { return "sni: handshake intentionally aborted after SNI capture" }

// prefixConn adapts a byte slice to net.Conn so tls.Server can read a ClientHello prefix without
// any real network I/O. Writes are discarded; reads past the prefix return io.EOF.
type prefixConn struct {
	data []byte
	pos  int
}

func (c *prefixConn) Read(b []byte) (int, error) {
	if c.pos >= len(c.data) {
		return 0, io.EOF
	}
	n := copy(b, c.data[c.pos:])
	c.pos += n
	return n, nil
}

func (c *prefixConn) Write(b []byte) (int, error)        { return len(b), nil }
func (c *prefixConn) Close() error                       { return nil }
func (c *prefixConn) LocalAddr() net.Addr                { return nil }
func (c *prefixConn) RemoteAddr() net.Addr               { return nil }
func (c *prefixConn) SetDeadline(t time.Time) error      { return nil }
func (c *prefixConn) SetReadDeadline(t time.Time) error  { return nil }
func (c *prefixConn) SetWriteDeadline(t time.Time) error { return nil }
