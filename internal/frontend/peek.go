package frontend

import (
	"bufio"
	"net"

	"github.com/hauleth/dolores/internal/constants"
)

// sniPeekSize bounds how much of the ClientHello we buffer looking for an SNI extension.
var sniPeekSize = constants.Get().SNIPeekBufferSize

// peekPrefix reads up to n bytes from conn without consuming them from the stream conn presents
// to later readers: it returns both the raw peeked bytes (for SNI inspection) and a net.Conn
// (buffered) whose Read calls replay those same bytes before falling through to conn itself, so a
// later TLS handshake or raw splice sees an unmodified byte stream.
func peekPrefix(conn net.Conn, n int) (peeked []byte, buffered net.Conn, err error) {
	br := bufio.NewReaderSize(conn, n)
	if _, err = br.Peek(1); err != nil {
		return nil, nil, err
	}
	// A short peek (fewer than n bytes available so far, e.g. client sent a short first
	// segment) is still useful: return what the first read delivered rather than wait for n
	// bytes a client awaiting its ServerHello will never send.
	peeked, _ = br.Peek(br.Buffered())
	return peeked, &bufferedConn{Conn: conn, br: br}, nil
}

// bufferedConn is a net.Conn whose Read is served from br first, then falls through to the
// embedded Conn once br is drained. Write, Close and the rest of net.Conn pass straight through.
type bufferedConn struct {
	net.Conn
	br *bufio.Reader
}

func (c *bufferedConn) Read(b []byte) (int, error) {
	return c.br.Read(b)
}
