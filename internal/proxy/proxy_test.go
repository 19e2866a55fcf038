package proxy

import (
	"bufio"
	"context"
	"crypto/tls"
	"net"
	"testing"
	"time"

	"github.com/hauleth/dolores/internal/certgen"
)

// pipeListener returns the two ends of one loopback TCP connection: the dialing side and the
// accepted side, standing in for a client and an accepted (or child) connection.
func pipeListener(t *testing.T) (net.Conn, net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, _ := ln.Accept()
		accepted <- c
	}()

	client, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	server := <-accepted

	return client, server
}

func TestTransparentEcho(t *testing.T) {
	client, upstream := pipeListener(t)
	defer client.Close()

	backendClient, downstream := pipeListener(t)

	go func() {
		r := bufio.NewReader(backendClient)
		line, _ := r.ReadString('\n')
		backendClient.Write([]byte(line))
	}()

	done := make(chan error, 1)
	go func() {
		done <- Transparent{}.Run(context.Background(), upstream, downstream)
	}()

	client.Write([]byte("hello\n"))
	client.SetReadDeadline(time.Now().Add(5 * time.Second))
	r := bufio.NewReader(client)
	line, err := r.ReadString('\n')
	if err != nil {
		t.Fatalf("ReadString: %v", err)
	}
	if line != "hello\n" {
		t.Errorf("got %q, want %q", line, "hello\n")
	}

	client.Close()
	backendClient.Close()
	<-done
}

func TestTLSTerminatingHandshakeAndEcho(t *testing.T) {
	bundle, err := certgen.SelfSigned("app.localhost")
	if err != nil {
		t.Fatalf("SelfSigned: %v", err)
	}
	tlsCert, err := bundle.TLSCertificate()
	if err != nil {
		t.Fatalf("TLSCertificate: %v", err)
	}

	client, upstream := pipeListener(t)
	defer client.Close()

	backendClient, downstream := pipeListener(t)
	go func() {
		r := bufio.NewReader(backendClient)
		line, _ := r.ReadString('\n')
		backendClient.Write([]byte(line))
	}()

	strategy := TLSTerminating{Config: &tls.Config{Certificates: []tls.Certificate{tlsCert}}}
	done := make(chan error, 1)
	go func() {
		done <- strategy.Run(context.Background(), upstream, downstream)
	}()

	tlsClient := tls.Client(client, &tls.Config{InsecureSkipVerify: true})
	if err := tlsClient.HandshakeContext(context.Background()); err != nil {
		t.Fatalf("client handshake: %v", err)
	}

	tlsClient.Write([]byte("hello\n"))
	tlsClient.SetReadDeadline(time.Now().Add(5 * time.Second))
	r := bufio.NewReader(tlsClient)
	line, err := r.ReadString('\n')
	if err != nil {
		t.Fatalf("ReadString: %v", err)
	}
	if line != "hello\n" {
		t.Errorf("got %q, want %q", line, "hello\n")
	}

	tlsClient.Close()
	backendClient.Close()
	<-done
}
