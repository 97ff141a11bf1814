// Package identity manages client certificates presented to Gemini servers.
// Each identity belongs to one host; at most one identity per host is active
// and the active one is presented on every request to that host.
package identity

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Identity is a client certificate bound to a host.
type Identity struct {
	ID          int64
	GUID        string
	Host        string
	Name        string
	Active      bool
	Data        []byte // password-less PKCS#12
	Fingerprint string
	CreatedAt   time.Time
	LastUsedAt  *time.Time
}

// New builds an inactive, unsaved identity.
func New(host, name string, data []byte, fingerprint string) *Identity {
	return &Identity{
		GUID:        uuid.NewString(),
		Host:        NormalizeHost(host),
		Name:        name,
		Data:        data,
		Fingerprint: fingerprint,
		CreatedAt:   time.Now(),
	}
}

// NormalizeHost lowercases host so lookups are case-insensitive.
func NormalizeHost(host string) string {
	return strings.ToLower(strings.TrimSpace(host))
}

// Repository persists identities.
type Repository interface {
	// Save inserts the identity when ID is 0 and sets ID; otherwise updates it.
	Save(id *Identity) error

	// FindByID returns NotFoundError when no row matches.
	FindByID(id int64) (*Identity, error)

	// ListByHost returns identities for host, newest first.
	ListByHost(host string) ([]*Identity, error)

	// List returns every identity ordered by host then creation time.
	List() ([]*Identity, error)

	// GetActive returns NoActiveIdentityError when host has no active identity.
	GetActive(host string) (*Identity, error)

	// Activate makes id the only active identity of its host, atomically.
	Activate(id int64) error

	// Deactivate clears the active flag for every identity of host.
	Deactivate(host string) error

	// RecordUse sets last_used_at.
	RecordUse(id int64, at time.Time) error

	// Delete removes an identity. Returns NotFoundError when no row matches.
	Delete(id int64) error

	Close() error
}

// NotFoundError is returned when an identity does not exist.
type NotFoundError struct {
	ID int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("identity %d not found", e.ID)
}

// NoActiveIdentityError is returned when a host has no active identity.
type NoActiveIdentityError struct {
	Host string
}

func (e *NoActiveIdentityError) Error() string {
	return fmt.Sprintf("no active identity for host %s", e.Host)
}
