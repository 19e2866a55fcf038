// Package frontend implements the single public-facing TCP listener: it accepts a connection,
// peeks its TLS ClientHello for the Server Name Indication without consuming the stream, resolves
// that name against a registry.Store, and hands the (still-unread) connection off to the matched
// Service's proxy.Strategy.
package frontend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/netutil"

	"github.com/hauleth/dolores/internal/concurrencytracker"
	"github.com/hauleth/dolores/internal/connstats"
	"github.com/hauleth/dolores/internal/registry"
	"github.com/hauleth/dolores/internal/sni"
)

const ( // fer = Frontend ERror index into failureCounters
	ferSNIMissing = iota
	ferUnknownDomain
	ferDialFailed
	ferListSize
)

type stats struct {
	routedCount     int
	failureCounters [ferListSize]int
}

// Dispatcher owns one listen address. Construct with NewDispatcher, then call Serve.
type Dispatcher struct {
	listener net.Listener
	store    *registry.Store
	tld      string
	conns    *connstats.Tracker

	cct concurrencytracker.Counter

	Stdout      io.Writer
	Debug       bool
	DialTimeout time.Duration

	// Dashboard, if set, is handed connections that completed no usable SNI extraction instead
	// of having them dropped - e.g. a browser visiting the bare IP address.
	Dashboard ConnServer

	mu sync.RWMutex
	stats
}

// ConnServer serves a single already-accepted connection to completion. Implemented by
// *dashboard.Dashboard.
type ConnServer interface {
	ServeConn(ctx context.Context, conn net.Conn) error
}

// NewDispatcher wraps ln with a concurrency limit (when maxConns > 0, per
// golang.org/x/net/netutil.LimitListener) and prepares a Dispatcher that resolves accepted
// connections against store's domains, all suffixed with tld.
func NewDispatcher(ln net.Listener, store *registry.Store, tld string, maxConns int) *Dispatcher {
	if maxConns > 0 {
		ln = netutil.LimitListener(ln, maxConns)
	}
	return &Dispatcher{
		listener:    ln,
		store:       store,
		tld:         tld,
		conns:       connstats.NewTracker(ln.Addr().String()),
		Stdout:      io.Discard,
		DialTimeout: 5 * time.Second,
	}
}

// Serve accepts connections until ctx is done or the listener returns a fatal error. Each
// connection is handled in its own goroutine; Serve itself never blocks on a single connection.
func (d *Dispatcher) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		d.listener.Close()
	}()

	for {
		conn, err := d.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("frontend: accept on %s: %w", d.listener.Addr(), err)
			}
		}
		go d.handle(ctx, conn)
	}
}

// handle peeks the ClientHello, resolves the Service it names, and proxies the connection. A
// connection without usable SNI is handed to Dashboard when one is set. Any other failure to
// resolve a Service (no usable SNI and no Dashboard, unknown domain, dial failure) simply closes
// conn - there is no HTTP layer here to answer with an error page.
//
// A connection whose SNI names no registered service is logged and closed; no page listing the
// registered services is offered to it.
func (d *Dispatcher) handle(ctx context.Context, conn net.Conn) {
	// A UUID, not the remote address, keys connstats: a NAT'd client reusing the same
	// address:port across two connections would otherwise collide with itself mid-flight.
	key := uuid.NewString()
	remote := conn.RemoteAddr().String()
	d.conns.State(key, connstats.New)
	d.cct.Add()
	defer d.cct.Done()
	defer d.conns.State(key, connstats.Closed)

	peeked, buffered, err := peekPrefix(conn, sniPeekSize)
	if err != nil {
		d.logf("peek %s: %v", remote, err)
		conn.Close()
		return
	}

	serverName, ok := sni.Peek(peeked)
	if !ok {
		if d.Dashboard != nil {
			if err := d.Dashboard.ServeConn(ctx, buffered); err != nil {
				d.logf("dashboard connection from %s: %v", remote, err)
			}
			return
		}
		d.addFailure(ferSNIMissing)
		d.logf("no SNI from %s", remote)
		conn.Close()
		return
	}

	domain, ok := sni.Normalize(serverName, d.tld)
	if !ok {
		if d.Dashboard != nil {
			if err := d.Dashboard.ServeConn(ctx, buffered); err != nil {
				d.logf("dashboard connection from %s: %v", remote, err)
			}
			return
		}
		d.addFailure(ferSNIMissing)
		d.logf("unusable server name %q from %s", serverName, remote)
		conn.Close()
		return
	}

	svc, ok := d.store.Lookup(domain)
	if !ok {
		d.addFailure(ferUnknownDomain)
		d.logf("no service registered for %s (from %s)", domain, remote)
		conn.Close()
		return
	}

	dialer := net.Dialer{Timeout: d.DialTimeout}
	downstream, err := dialer.DialContext(ctx, "tcp", svc.Addr.String())
	if err != nil {
		d.addFailure(ferDialFailed)
		d.logf("dial %s for %s: %v", svc.Addr, domain, err)
		conn.Close()
		return
	}

	d.conns.State(key, connstats.Active)
	d.addSuccess()

	if err := svc.Proxy.Run(ctx, buffered, downstream); err != nil && !errors.Is(err, io.EOF) {
		d.logf("session for %s ended: %v", domain, err)
	}
}

func (d *Dispatcher) addFailure(ix int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failureCounters[ix]++
}

func (d *Dispatcher) addSuccess() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.routedCount++
}

func (d *Dispatcher) logf(format string, args ...interface{}) {
	if !d.Debug {
		return
	}
	fmt.Fprintf(d.Stdout, "dolores: "+format+"\n", args...)
}
