package certgen

import (
	"encoding/pem"
	"fmt"
	"os"
)

func encodePEMCert(der []byte) []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
}

func encodePEMKey(der []byte) []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
}

func decodePEMBlock(data []byte, wantType string) ([]byte, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("certgen: no PEM block found")
	}
	if block.Type != wantType {
		return nil, fmt.Errorf("certgen: expected PEM block %q, got %q", wantType, block.Type)
	}
	return block.Bytes, nil
}

// WriteFiles writes b's certificate and key as PEM files at certPath and keyPath.
func (b Bundle) WriteFiles(certPath, keyPath string) error {
	if err := os.WriteFile(certPath, encodePEMCert(b.CertDER), 0o644); err != nil {
		return fmt.Errorf("certgen: write certificate: %w", err)
	}
	if err := os.WriteFile(keyPath, encodePEMKey(b.KeyDER), 0o600); err != nil {
		return fmt.Errorf("certgen: write key: %w", err)
	}
	return nil
}
