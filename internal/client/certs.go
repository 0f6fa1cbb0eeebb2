package client

import (
	"crypto/x509"
	_ "embed"
	"errors"
	"fmt"
	"os"
)

// vendorRootCAs holds the device vendor's ECC and RSA root certificates,
// which sign the TLS certificate served by every box.
//
//go:embed freebox_ca.pem
var vendorRootCAs []byte

// RootCAs returns the system pool extended with the vendor roots and, when
// extraFile is set, the PEM certificates it contains.
func RootCAs(extraFile string) (*x509.CertPool, error) {
	pool, err := x509.SystemCertPool()
	if err != nil || pool == nil {
		pool = x509.NewCertPool()
	}
	if !pool.AppendCertsFromPEM(vendorRootCAs) {
		return nil, errors.New("embedded vendor root certificates are invalid")
	}
	if extraFile == "" {
		return pool, nil
	}
	raw, err := os.ReadFile(extraFile)
	if err != nil {
		return nil, fmt.Errorf("read ca file: %w", err)
	}
	if !pool.AppendCertsFromPEM(raw) {
		return nil, fmt.Errorf("ca file %s contains no PEM certificates", extraFile)
	}
	return pool, nil
}
