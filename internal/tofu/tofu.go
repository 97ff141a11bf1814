// Package tofu records server certificate fingerprints observed during TLS
// handshakes. Entries live for the lifetime of the process and are never
// used to reject a connection.
package tofu

import (
	"context"
	"crypto/sha256"
	"crypto/x509"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/pitr/gemini-ios-sub000/internal/cachemanager"
	"github.com/pitr/gemini-ios-sub000/internal/log"
)

// Fingerprint is the SHA-256 of a certificate's DER encoding, one
// uppercase hex component per byte.
type Fingerprint struct {
	Components []string
}

// NewFingerprint hashes a DER encoded certificate.
func NewFingerprint(der []byte) Fingerprint {
	sum := sha256.Sum256(der)
	components := make([]string, len(sum))
	for i, b := range sum {
		components[i] = fmt.Sprintf("%02X", b)
	}
	return Fingerprint{Components: components}
}

// FromCertificate fingerprints cert.
func FromCertificate(cert *x509.Certificate) Fingerprint {
	return NewFingerprint(cert.Raw)
}

// IsZero reports whether f holds no components.
func (f Fingerprint) IsZero() bool {
	return len(f.Components) == 0
}

// Equal compares two fingerprints component by component.
func (f Fingerprint) Equal(other Fingerprint) bool {
	return slices.Equal(f.Components, other.Components)
}

// String joins the components with colons.
func (f Fingerprint) String() string {
	return strings.Join(f.Components, ":")
}

// Cache maps a domain to the last fingerprint seen for it.
type Cache struct {
	mu      sync.Mutex
	entries cachemanager.CacheManager[string, Fingerprint]
}

// NewCache returns an empty fingerprint cache.
func NewCache() *Cache {
	return &Cache{
		entries: cachemanager.NewInMemoryCacheManager[string, Fingerprint](
			"fingerprints", cachemanager.NoExpiration, cachemanager.DefaultCleanupInterval),
	}
}

// Record stores fp for domain and returns the previous entry, if any.
// A changed fingerprint is logged but otherwise accepted.
func (c *Cache) Record(domain string, fp Fingerprint) (previous Fingerprint, existed bool) {
	ctx := context.Background()
	domain = strings.ToLower(domain)

	c.mu.Lock()
	previous, existed = c.entries.Get(ctx, domain)
	c.entries.Set(ctx, domain, fp, cachemanager.NoExpiration)
	c.mu.Unlock()

	switch {
	case !existed:
		log.Debug(log.CatTOFU, "first fingerprint", "domain", domain, "fingerprint", fp)
	case !previous.Equal(fp):
		log.Warn(log.CatTOFU, "fingerprint changed", "domain", domain, "previous", previous, "current", fp)
	}
	return previous, existed
}

// Get returns the fingerprint recorded for domain.
func (c *Cache) Get(domain string) (Fingerprint, bool) {
	return c.entries.Get(context.Background(), strings.ToLower(domain))
}

// Snapshot copies every entry.
func (c *Cache) Snapshot() map[string]Fingerprint {
	return c.entries.Items(context.Background())
}
