package dashboard

import (
	"bufio"
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/hauleth/dolores/internal/certgen"
	"github.com/hauleth/dolores/internal/registry"
	"github.com/hauleth/dolores/internal/wire"
)

func testCert(t *testing.T) tls.Certificate {
	t.Helper()
	bundle, err := certgen.SelfSigned("dashboard.localhost")
	if err != nil {
		t.Fatalf("SelfSigned: %v", err)
	}
	cert, err := bundle.TLSCertificate()
	if err != nil {
		t.Fatalf("TLSCertificate: %v", err)
	}
	return cert
}

func TestDashboardHealth(t *testing.T) {
	store := registry.NewStore()
	d := New(store, testCert(t))

	server, client := net.Pipe()
	go d.ServeConn(context.Background(), server)

	tlsClient := tls.Client(client, &tls.Config{InsecureSkipVerify: true})
	defer tlsClient.Close()

	req, _ := http.NewRequest("GET", "/health", nil)
	req.Write(tlsClient)

	tlsClient.SetReadDeadline(time.Now().Add(2 * time.Second))
	resp, err := http.ReadResponse(bufio.NewReader(tlsClient), req)
	if err != nil {
		t.Fatalf("ReadResponse: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestDashboardHomeListsServices(t *testing.T) {
	store := registry.NewStore()
	svc, err := registry.NewService("app", netip.MustParseAddrPort("[::1]:9001"), wire.ProxyPassthrough, "localhost", nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	store.Insert(svc)

	d := New(store, testCert(t))

	server, client := net.Pipe()
	go d.ServeConn(context.Background(), server)

	tlsClient := tls.Client(client, &tls.Config{InsecureSkipVerify: true})
	defer tlsClient.Close()

	req, _ := http.NewRequest("GET", "/", nil)
	req.Write(tlsClient)

	tlsClient.SetReadDeadline(time.Now().Add(2 * time.Second))
	resp, err := http.ReadResponse(bufio.NewReader(tlsClient), req)
	if err != nil {
		t.Fatalf("ReadResponse: %v", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	body := string(bodyBytes)
	if !strings.Contains(body, "app.localhost") {
		t.Errorf("home body = %q, want it to mention app.localhost", body)
	}
}
