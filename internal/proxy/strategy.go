// Package proxy implements the two bidirectional pumps a registered Service is proxied through:
// Transparent (raw TCP splice) and TLSTerminating (TLS accepted at the front end, plaintext
// forwarded to the child). Both share a single Run operation so the front-end dispatcher never
// needs to know which kind of Service it is driving.
package proxy

import (
	"context"
	"net"
)

// Strategy drives data between an already-accepted front-end connection (upstream) and an
// already-connected child connection (downstream) until either side closes cleanly.
//
// Run must not return until both directions have finished. Both connections are closed before
// Run returns, regardless of outcome.
type Strategy interface {
	Run(ctx context.Context, upstream net.Conn, downstream net.Conn) error
}
