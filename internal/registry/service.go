// Package registry implements the in-memory subdomain routing table (Store), the UNIX-datagram
// control server that mutates it (ControlServer), and the transient client used by the runner and
// the status CLI to talk to that server (Client).
package registry

import (
	"fmt"
	"net/netip"

	"github.com/hauleth/dolores/internal/certgen"
	"github.com/hauleth/dolores/internal/proxy"
	"github.com/hauleth/dolores/internal/wire"
)

// Service is the routed unit: a registered name/domain pair, the loopback address of the child
// that answers for it, and the proxy strategy that drives connections to it. Services are created
// by a successful Register, never mutated (a re-register replaces the whole entry), and destroyed
// by Deregister or server exit.
type Service struct {
	Name      string
	Domain    string
	Addr      netip.AddrPort
	ProxyKind wire.ProxyKind
	Proxy     proxy.Strategy
}

// CertSource supplies the certificate bundle a terminating Service's TLS configuration is built
// from. Passing nil to NewService falls back to a self-signed certificate for domain.
type CertSource interface {
	Certificate(domain string) (certgen.Bundle, error)
}

// selfSignedSource is the default CertSource: every terminating Service gets its own self-signed
// leaf for its own domain.
type selfSignedSource struct{}

func (selfSignedSource) Certificate(domain string) (certgen.Bundle, error) {
	return certgen.SelfSigned(domain)
}

// caSource mints CA-signed leaves instead of self-signing, used when dolores serve is given
// --ca-cert/--ca-key.
type caSource struct{ ca certgen.CA }

func (s caSource) Certificate(domain string) (certgen.Bundle, error) {
	return certgen.FromCA(domain, s.ca)
}

// NewCASource builds a CertSource that mints leaves signed by ca.
func NewCASource(ca certgen.CA) CertSource {
	return caSource{ca: ca}
}

// NewService builds a Service for name/addr/kind under tld, synchronously constructing its proxy
// handler. For a terminating Service this means building a *tls.Config from certs (defaulting to
// a fresh self-signed certificate when certs is nil) - the invariant that every terminating
// entry's handler carries a valid certificate chain for <domain> and *.<domain> is established
// here, at construction, not checked later.
func NewService(name string, addr netip.AddrPort, kind wire.ProxyKind, tld string, certs CertSource) (*Service, error) {
	domain := fmt.Sprintf("%s.%s", name, tld)

	svc := &Service{
		Name:      name,
		Domain:    domain,
		Addr:      addr,
		ProxyKind: kind,
	}

	switch kind {
	case wire.ProxyPassthrough:
		svc.Proxy = proxy.Transparent{}
	case wire.ProxyTerminating:
		if certs == nil {
			certs = selfSignedSource{}
		}
		bundle, err := certs.Certificate(domain)
		if err != nil {
			return nil, fmt.Errorf("registry: build certificate for %s: %w", domain, err)
		}
		tlsCert, err := bundle.TLSCertificate()
		if err != nil {
			return nil, fmt.Errorf("registry: assemble certificate for %s: %w", domain, err)
		}
		svc.Proxy = proxy.NewTLSTerminating(tlsCert)
	default:
		return nil, fmt.Errorf("registry: unknown proxy kind %v", kind)
	}

	return svc, nil
}
