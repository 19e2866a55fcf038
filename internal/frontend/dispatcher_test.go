package frontend

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/hauleth/dolores/internal/registry"
	"github.com/hauleth/dolores/internal/wire"
)

// echoServer accepts one connection and copies everything it reads back to the writer, until EOF.
func echoServer(t *testing.T) net.Addr {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		io.Copy(conn, conn)
	}()

	return ln.Addr()
}

func TestDispatcherRoutesTerminatingService(t *testing.T) {
	backend := echoServer(t)
	addr, err := netip.ParseAddrPort(backend.String())
	if err != nil {
		t.Fatalf("parse backend addr: %v", err)
	}

	store := registry.NewStore()
	svc, err := registry.NewService("app", addr, wire.ProxyTerminating, "localhost", nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	store.Insert(svc)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	d := NewDispatcher(ln, store, "localhost", 0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Serve(ctx)

	raw, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial frontend: %v", err)
	}
	defer raw.Close()

	client := tls.Client(raw, &tls.Config{ServerName: "app.localhost", InsecureSkipVerify: true})
	defer client.Close()

	if err := client.HandshakeContext(ctx); err != nil {
		t.Fatalf("handshake: %v", err)
	}

	msg := []byte("hello dolores")
	if _, err := client.Write(msg); err != nil {
		t.Fatalf("write: %v", err)
	}

	buf := make([]byte, len(msg))
	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := io.ReadFull(client, buf); err != nil {
		t.Fatalf("read echo: %v", err)
	}
	if string(buf) != string(msg) {
		t.Errorf("echo = %q, want %q", buf, msg)
	}
}

func TestDispatcherDropsUnknownDomain(t *testing.T) {
	store := registry.NewStore()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	d := NewDispatcher(ln, store, "localhost", 0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Serve(ctx)

	raw, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial frontend: %v", err)
	}
	defer raw.Close()

	client := tls.Client(raw, &tls.Config{ServerName: "ghost.localhost", InsecureSkipVerify: true})
	defer client.Close()

	// The dispatcher closes the underlying connection once it sees there's no registered
	// service for ghost.localhost, so the handshake should fail rather than hang.
	client.SetDeadline(time.Now().Add(2 * time.Second))
	if err := client.Handshake(); err == nil {
		t.Error("expected handshake against an unregistered domain to fail")
	}
}

func TestReportIncludesRoutedAndErrors(t *testing.T) {
	store := registry.NewStore()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	d := NewDispatcher(ln, store, "localhost", 0)
	if d.Name() == "" {
		t.Error("Name() returned empty string")
	}
	report := d.Report(false)
	if !strings.Contains(report, "routed=0") || !strings.Contains(report, "errs=0") {
		t.Errorf("Report() = %q, want routed=0 and errs=0", report)
	}
}
