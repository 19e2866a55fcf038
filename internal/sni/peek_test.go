package sni

import (
	"bytes"
	"crypto/tls"
	"net"
	"testing"
)

// clientHelloBytes captures a real ClientHello by dialing a loopback TLS listener with the given
// server name and snooping the bytes the client writes before the handshake completes.
func clientHelloBytes(t *testing.T, serverName string) []byte {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	captured := make(chan []byte, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			captured <- nil
			return
		}
		defer conn.Close()
		buf := make([]byte, 4096)
		n, _ := conn.Read(buf)
		captured <- buf[:n]
	}()

	raw, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer raw.Close()

	tlsClient := tls.Client(raw, &tls.Config{ServerName: serverName, InsecureSkipVerify: true})
	// Handshake will fail/hang since nothing answers it properly beyond the snoop goroutine, so
	// bound it and ignore the error - we only need the bytes the client wrote.
	go tlsClient.Handshake()

	return <-captured
}

func TestPeekExtractsSNI(t *testing.T) {
	hello := clientHelloBytes(t, "app.example.localhost")
	if len(hello) == 0 {
		t.Fatal("captured empty ClientHello")
	}

	name, ok := Peek(hello)
	if !ok {
		t.Fatal("Peek returned ok=false for a valid ClientHello")
	}
	if name != "app.example.localhost" {
		t.Errorf("ServerName = %q, want %q", name, "app.example.localhost")
	}
}

func TestPeekEmptyBuffer(t *testing.T) {
	if _, ok := Peek(nil); ok {
		t.Error("Peek(nil) should return ok=false")
	}
	if _, ok := Peek([]byte{}); ok {
		t.Error("Peek([]byte{}) should return ok=false")
	}
}

func TestPeekGarbageBuffer(t *testing.T) {
	if _, ok := Peek(bytes.Repeat([]byte{0x00}, 64)); ok {
		t.Error("Peek on non-TLS bytes should return ok=false")
	}
}

func TestNormalize(t *testing.T) {
	cases := []struct {
		hostname string
		tld      string
		want     string
		ok       bool
	}{
		{"foo.bar.localhost", "localhost", "bar.localhost", true},
		{"app.localhost", "localhost", "app.localhost", true},
		{"localhost", "localhost", "", false},
		{"", "localhost", "", false},
		{"a.b.c.d", "d", "c.d", true},
	}
	for _, c := range cases {
		got, ok := Normalize(c.hostname, c.tld)
		if ok != c.ok {
			t.Errorf("Normalize(%q, %q) ok = %v, want %v", c.hostname, c.tld, ok, c.ok)
			continue
		}
		if ok && got != c.want {
			t.Errorf("Normalize(%q, %q) = %q, want %q", c.hostname, c.tld, got, c.want)
		}
	}
}
