// Package certgen builds the certificate chains dolores attaches to terminating Services: either
// a self-signed leaf for <domain> and *.<domain>, or a leaf signed by a provided CA. Small, pure
// constructors over crypto/x509, since no third-party X.509-generation library appears anywhere
// in the retrieval pack used to build this module.
package certgen

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"time"
)

// Bundle is a DER-encoded certificate chain and its PKCS#8 private key, ready to hand to
// tls.X509KeyPair or to assemble into a tls.Certificate directly.
type Bundle struct {
	CertDER []byte
	KeyDER  []byte
}

// TLSCertificate assembles the Bundle into a tls.Certificate suitable for tls.Config.Certificates.
func (b Bundle) TLSCertificate() (tls.Certificate, error) {
	return tls.X509KeyPair(encodePEMCert(b.CertDER), encodePEMKey(b.KeyDER))
}

// SelfSigned generates an ephemeral ECDSA P-256 key and a self-signed serving certificate valid
// for domain and its first-level wildcard ("*."+domain). The result is a leaf, not a CA: it is
// what a terminating Service or the dashboard actually presents to a connecting client. To mint a
// certificate capable of signing other leaves, use GenerateCA instead.
func SelfSigned(domain string) (Bundle, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return Bundle{}, fmt.Errorf("certgen: generate key: %w", err)
	}

	template := leafTemplate(domain)
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return Bundle{}, fmt.Errorf("certgen: create self-signed certificate: %w", err)
	}

	keyDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return Bundle{}, fmt.Errorf("certgen: marshal key: %w", err)
	}

	return Bundle{CertDER: der, KeyDER: keyDER}, nil
}

// GenerateCA generates an ephemeral ECDSA P-256 key and a self-signed certificate capable of
// signing further leaves for domain and its first-level wildcard - the bundle `dolores gen ca`
// writes out for later use as a `serve`/`gen cert` --ca-cert/--ca-key pair via LoadCA.
func GenerateCA(domain string) (Bundle, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return Bundle{}, fmt.Errorf("certgen: generate key: %w", err)
	}

	template := caTemplate(domain)
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return Bundle{}, fmt.Errorf("certgen: create CA certificate: %w", err)
	}

	keyDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return Bundle{}, fmt.Errorf("certgen: marshal key: %w", err)
	}

	return Bundle{CertDER: der, KeyDER: keyDER}, nil
}

// CA is a signing authority loaded from PEM certificate and key material (see LoadCA), used by
// FromCA to mint leaves rather than self-signing them.
type CA struct {
	cert *x509.Certificate
	key  *ecdsa.PrivateKey
}

// LoadCA parses a PEM-encoded CA certificate and PKCS#8 EC private key.
func LoadCA(certPEM, keyPEM []byte) (CA, error) {
	certDER, err := decodePEMBlock(certPEM, "CERTIFICATE")
	if err != nil {
		return CA{}, fmt.Errorf("certgen: decode CA certificate: %w", err)
	}
	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return CA{}, fmt.Errorf("certgen: parse CA certificate: %w", err)
	}

	keyDER, err := decodePEMBlock(keyPEM, "PRIVATE KEY")
	if err != nil {
		return CA{}, fmt.Errorf("certgen: decode CA key: %w", err)
	}
	rawKey, err := x509.ParsePKCS8PrivateKey(keyDER)
	if err != nil {
		return CA{}, fmt.Errorf("certgen: parse CA key: %w", err)
	}
	key, ok := rawKey.(*ecdsa.PrivateKey)
	if !ok {
		return CA{}, fmt.Errorf("certgen: CA key is not ECDSA")
	}

	return CA{cert: cert, key: key}, nil
}

// FromCA generates a serving leaf certificate for domain (and its wildcard) signed by ca.
func FromCA(domain string, ca CA) (Bundle, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return Bundle{}, fmt.Errorf("certgen: generate key: %w", err)
	}

	template := leafTemplate(domain)
	der, err := x509.CreateCertificate(rand.Reader, template, ca.cert, &key.PublicKey, ca.key)
	if err != nil {
		return Bundle{}, fmt.Errorf("certgen: create CA-signed certificate: %w", err)
	}

	keyDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return Bundle{}, fmt.Errorf("certgen: marshal key: %w", err)
	}

	return Bundle{CertDER: der, KeyDER: keyDER}, nil
}

// leafTemplate builds the certificate template shared by SelfSigned and FromCA: a genuine serving
// leaf valid for one year, with SANs {domain, "*."+domain}. It carries none of the CA-only
// attributes - it is what a terminating Service or the dashboard actually presents on the wire,
// not something that can itself sign further certificates.
func leafTemplate(domain string) *x509.Certificate {
	return &x509.Certificate{
		SerialNumber: newSerial(),
		Subject:      pkix.Name{CommonName: domain},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:     []string{domain, "*." + domain},
	}
}

// caTemplate builds the certificate template for GenerateCA: a self-issued authority for domain
// and its first-level wildcard, restricted by a permitted DNS name constraint of domain (no
// leading dot - RFC 5280 ".domain" constraints are a documented bug in the source this system was
// distilled from, not an intentional behavior) so it can only ever sign further certificates for
// that one domain tree.
func caTemplate(domain string) *x509.Certificate {
	return &x509.Certificate{
		SerialNumber:          newSerial(),
		Subject:               pkix.Name{CommonName: domain},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
		DNSNames:              []string{domain, "*." + domain},
		PermittedDNSDomains:   []string{domain},
	}
}

func newSerial() *big.Int {
	serial, _ := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	return serial
}
