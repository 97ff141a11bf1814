package identity

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/pitr/gemini-ios-sub000/internal/cachemanager"
	"github.com/pitr/gemini-ios-sub000/internal/log"
)

// Store is the application service over a Repository. It is safe for
// concurrent use.
type Store struct {
	repo      Repository
	generator Generator
	certs     *cachemanager.ReadThroughCache[string, tls.Certificate, *Identity]
	now       func() time.Time
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithGenerator replaces the certificate generator.
func WithGenerator(g Generator) StoreOption {
	return func(s *Store) { s.generator = g }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// NewStore wraps repo.
func NewStore(repo Repository, opts ...StoreOption) *Store {
	s := &Store{
		repo:      repo,
		generator: RSAGenerator{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	decoded := cachemanager.NewInMemoryCacheManager[string, tls.Certificate](
		"identity-certs", cachemanager.NoExpiration, cachemanager.DefaultCleanupInterval)
	s.certs = cachemanager.NewReadThroughCache[string, tls.Certificate, *Identity](decoded, func(_ context.Context, id *Identity) (tls.Certificate, error) {
		return Decode(id.Data)
	}, cachemanager.NoExpiration)
	return s
}

// Create generates a certificate for host and saves it inactive.
func (s *Store) Create(host, name string, validityDays int) (*Identity, error) {
	host = NormalizeHost(host)
	if host == "" {
		return nil, errors.New("host is required")
	}
	if name == "" {
		name = host
	}

	data, fingerprint, err := s.generator.Generate(validityDays, name)
	if err != nil {
		return nil, fmt.Errorf("generating identity for %s: %w", host, err)
	}

	id := New(host, name, data, fingerprint)
	id.CreatedAt = s.now()
	if err := s.repo.Save(id); err != nil {
		return nil, fmt.Errorf("saving identity for %s: %w", host, err)
	}

	log.Info(log.CatIdentity, "identity created", "id", id.ID, "host", host, "fingerprint", fingerprint)
	return id, nil
}

// ActiveFor returns the identity to present to host. Lookup failures are
// logged and reported as no identity.
func (s *Store) ActiveFor(host string) (*Identity, bool) {
	host = NormalizeHost(host)
	id, err := s.repo.GetActive(host)
	if err != nil {
		var none *NoActiveIdentityError
		if !errors.As(err, &none) {
			log.ErrorErr(log.CatIdentity, "active identity lookup failed", err, "host", host)
		}
		return nil, false
	}
	return id, true
}

// Certificate decodes id for a TLS handshake. Decoded certificates are cached
// by GUID.
func (s *Store) Certificate(id *Identity) (*tls.Certificate, error) {
	cert, err := s.certs.Get(context.Background(), id.GUID, id)
	if err != nil {
		return nil, fmt.Errorf("identity %d: %w", id.ID, err)
	}
	return &cert, nil
}

// Activate makes id the only active identity for its host.
func (s *Store) Activate(id int64) error {
	if err := s.repo.Activate(id); err != nil {
		return fmt.Errorf("activating identity %d: %w", id, err)
	}
	log.Info(log.CatIdentity, "identity activated", "id", id)
	return nil
}

// Deactivate clears the active identity for host.
func (s *Store) Deactivate(host string) error {
	host = NormalizeHost(host)
	if err := s.repo.Deactivate(host); err != nil {
		return fmt.Errorf("deactivating identities for %s: %w", host, err)
	}
	log.Info(log.CatIdentity, "identities deactivated", "host", host)
	return nil
}

// RecordUse stamps last use. Failures are logged only.
func (s *Store) RecordUse(id *Identity) {
	at := s.now()
	if err := s.repo.RecordUse(id.ID, at); err != nil {
		log.ErrorErr(log.CatIdentity, "failed to record identity use", err, "id", id.ID)
		return
	}
	id.LastUsedAt = &at
}

// List returns identities, optionally filtered by host.
func (s *Store) List(host string) ([]*Identity, error) {
	if host == "" {
		return s.repo.List()
	}
	return s.repo.ListByHost(NormalizeHost(host))
}

// Delete removes an identity and forgets its decoded certificate.
func (s *Store) Delete(id int64) error {
	existing, err := s.repo.FindByID(id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(id); err != nil {
		return fmt.Errorf("deleting identity %d: %w", id, err)
	}
	s.certs.Invalidate(context.Background(), existing.GUID)
	log.Info(log.CatIdentity, "identity deleted", "id", id, "host", existing.Host)
	return nil
}

// ParseID parses a command line identity id.
func ParseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid identity id %q", s)
	}
	return id, nil
}
