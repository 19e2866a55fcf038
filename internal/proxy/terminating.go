package proxy

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
)

// copyBufferSize is the size of each direction's scratch buffer for the terminating pump: two
// 4 KiB buffers, one per direction, copied concurrently.
const copyBufferSize = 4096

// TLSTerminating accepts a TLS handshake on upstream using a pre-built server configuration (a
// single certificate chain/key valid for <domain> and *.<domain>), then forwards plaintext to
// downstream.
type TLSTerminating struct {
	// Config is the *tls.Config this Service's certificate bundle was built into. It is shared,
	// immutable after construction, and safe for concurrent Run calls.
	Config *tls.Config
}

var _ Strategy = TLSTerminating{}

// NewTLSTerminating builds a TLSTerminating strategy from a single assembled certificate chain
// and private key.
func NewTLSTerminating(cert tls.Certificate) TLSTerminating {
	return TLSTerminating{Config: &tls.Config{Certificates: []tls.Certificate{cert}}}
}

// Run completes a TLS handshake on upstream, then forwards bytes to and from downstream until
// either side reaches EOF or errors. Both connections are closed before Run returns.
func (t TLSTerminating) Run(ctx context.Context, upstream net.Conn, downstream net.Conn) error {
	tlsConn := tls.Server(upstream, t.Config)
	defer tlsConn.Close()
	defer downstream.Close()

	if err := tlsConn.HandshakeContext(ctx); err != nil {
		return err
	}

	errc := make(chan error, 2)
	go func() { errc <- copyLoop(downstream, tlsConn) }()
	go func() { errc <- copyLoop(tlsConn, downstream) }()

	// The first direction to finish ends the session: closing both connections unblocks the
	// other direction, whose resulting error is not reported.
	err := <-errc
	tlsConn.Close()
	downstream.Close()
	<-errc
	return err
}

// copyLoop reads from src and writes to dst using a fixed scratch buffer. io.EOF ends the session
// successfully; any other read or write error terminates it with that error.
func copyLoop(dst, src net.Conn) error {
	buf := make([]byte, copyBufferSize)
	for {
		n, err := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return werr
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}
