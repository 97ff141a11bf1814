package identity

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	pkcs12 "software.sslmate.com/src/go-pkcs12"

	"github.com/pitr/gemini-ios-sub000/internal/tofu"
)

// KeyBits is the RSA modulus size of generated identities.
const KeyBits = 2048

// Generator produces a packaged client certificate.
type Generator interface {
	Generate(validityDays int, commonName string) (data []byte, fingerprint string, err error)
}

// RSAGenerator creates self-signed RSA certificates.
type RSAGenerator struct {
	// Now overrides the clock for NotBefore. Zero means time.Now.
	Now func() time.Time
}

var _ Generator = RSAGenerator{}

// Generate is the package level shortcut for RSAGenerator{}.Generate.
func Generate(validityDays int, commonName string) ([]byte, string, error) {
	return RSAGenerator{}.Generate(validityDays, commonName)
}

// Generate creates an RSA-2048 key and a self-signed client certificate for
// commonName, packaged as a PKCS#12 container with no password.
func (g RSAGenerator) Generate(validityDays int, commonName string) ([]byte, string, error) {
	if validityDays <= 0 {
		return nil, "", fmt.Errorf("validity must be at least one day, got %d", validityDays)
	}
	if strings.TrimSpace(commonName) == "" {
		return nil, "", errors.New("common name is required")
	}

	key, err := rsa.GenerateKey(rand.Reader, KeyBits)
	if err != nil {
		return nil, "", fmt.Errorf("generating rsa key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, "", fmt.Errorf("generating serial number: %w", err)
	}

	now := time.Now
	if g.Now != nil {
		now = g.Now
	}
	notBefore := now().Add(-time.Minute)

	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: commonName},
		NotBefore:             notBefore,
		NotAfter:              notBefore.AddDate(0, 0, validityDays),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, "", fmt.Errorf("creating certificate: %w", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, "", fmt.Errorf("parsing generated certificate: %w", err)
	}

	data, err := pkcs12.Passwordless.Encode(key, cert, nil, "")
	if err != nil {
		return nil, "", fmt.Errorf("encoding pkcs12: %w", err)
	}

	return data, Fingerprint(der), nil
}

// Fingerprint formats the SHA-256 of der as colon separated uppercase hex.
func Fingerprint(der []byte) string {
	return tofu.NewFingerprint(der).String()
}

// Decode unpacks a PKCS#12 container into a certificate usable for a TLS
// handshake.
func Decode(data []byte) (tls.Certificate, error) {
	key, cert, err := pkcs12.Decode(data, "")
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("decoding pkcs12: %w", err)
	}
	return tls.Certificate{
		Certificate: [][]byte{cert.Raw},
		PrivateKey:  key,
		Leaf:        cert,
	}, nil
}
