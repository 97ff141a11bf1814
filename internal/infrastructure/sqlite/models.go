package sqlite

import (
	"time"

	"github.com/pitr/gemini-ios-sub000/internal/identity"
)

// IdentityModel is a row of the identities table. Times are Unix seconds.
type IdentityModel struct {
	ID          int64
	GUID        string
	Host        string
	Name        string
	IsActive    bool
	Certificate []byte
	Fingerprint string
	CreatedAt   int64
	LastUsedAt  *int64 // nullable
}

func toIdentityModel(id *identity.Identity) *IdentityModel {
	m := &IdentityModel{
		ID:          id.ID,
		GUID:        id.GUID,
		Host:        identity.NormalizeHost(id.Host),
		Name:        id.Name,
		IsActive:    id.Active,
		Certificate: id.Data,
		Fingerprint: id.Fingerprint,
		CreatedAt:   id.CreatedAt.Unix(),
	}
	if id.LastUsedAt != nil {
		ts := id.LastUsedAt.Unix()
		m.LastUsedAt = &ts
	}
	return m
}

func (m *IdentityModel) toDomain() *identity.Identity {
	id := &identity.Identity{
		ID:          m.ID,
		GUID:        m.GUID,
		Host:        m.Host,
		Name:        m.Name,
		Active:      m.IsActive,
		Data:        m.Certificate,
		Fingerprint: m.Fingerprint,
		CreatedAt:   time.Unix(m.CreatedAt, 0),
	}
	if m.LastUsedAt != nil {
		t := time.Unix(*m.LastUsedAt, 0)
		id.LastUsedAt = &t
	}
	return id
}
