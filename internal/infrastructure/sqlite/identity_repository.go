package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pitr/gemini-ios-sub000/internal/identity"
	"github.com/pitr/gemini-ios-sub000/internal/log"
)

const identityColumns = `id, guid, host, name, is_active, certificate, fingerprint, created_at, last_used_at`

// identityRepository implements identity.Repository using SQLite.
type identityRepository struct {
	owner *DB
	db    *sql.DB
}

func newIdentityRepository(owner *DB) *identityRepository {
	return &identityRepository{owner: owner, db: owner.conn}
}

var _ identity.Repository = (*identityRepository)(nil)

func scanIdentity(scanner interface{ Scan(...any) error }) (*IdentityModel, error) {
	var model IdentityModel
	err := scanner.Scan(
		&model.ID, &model.GUID, &model.Host, &model.Name, &model.IsActive,
		&model.Certificate, &model.Fingerprint, &model.CreatedAt, &model.LastUsedAt,
	)
	return &model, err
}

// Save inserts a new identity (ID == 0) or updates an existing one.
func (r *identityRepository) Save(id *identity.Identity) error {
	model := toIdentityModel(id)

	if id.ID == 0 {
		result, err := r.db.Exec(
			`INSERT INTO identities (guid, host, name, is_active, certificate, fingerprint, created_at, last_used_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			model.GUID, model.Host, model.Name, model.IsActive,
			model.Certificate, model.Fingerprint, model.CreatedAt, model.LastUsedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert identity: %w", err)
		}
		rowID, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}
		id.ID = rowID
		return nil
	}

	result, err := r.db.Exec(
		`UPDATE identities SET host = ?, name = ?, is_active = ?, certificate = ?, fingerprint = ?, last_used_at = ?
		WHERE id = ?`,
		model.Host, model.Name, model.IsActive, model.Certificate, model.Fingerprint, model.LastUsedAt,
		model.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update identity: %w", err)
	}
	return requireAffected(result, id.ID)
}

// FindByID returns identity.NotFoundError when no row matches.
func (r *identityRepository) FindByID(id int64) (*identity.Identity, error) {
	row := r.db.QueryRow(`SELECT `+identityColumns+` FROM identities WHERE id = ?`, id)
	model, err := scanIdentity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &identity.NotFoundError{ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find identity by id: %w", err)
	}
	return model.toDomain(), nil
}

// ListByHost returns identities for host, newest first.
func (r *identityRepository) ListByHost(host string) ([]*identity.Identity, error) {
	return r.query(
		`SELECT `+identityColumns+` FROM identities WHERE host = ? ORDER BY created_at DESC, id DESC`,
		identity.NormalizeHost(host),
	)
}

// List returns every identity.
func (r *identityRepository) List() ([]*identity.Identity, error) {
	return r.query(`SELECT ` + identityColumns + ` FROM identities ORDER BY host, created_at, id`)
}

func (r *identityRepository) query(q string, args ...any) ([]*identity.Identity, error) {
	rows, err := r.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list identities: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*identity.Identity
	for rows.Next() {
		model, err := scanIdentity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan identity: %w", err)
		}
		out = append(out, model.toDomain())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate identities: %w", err)
	}
	return out, nil
}

// GetActive returns identity.NoActiveIdentityError when host has none.
func (r *identityRepository) GetActive(host string) (*identity.Identity, error) {
	host = identity.NormalizeHost(host)
	row := r.db.QueryRow(
		`SELECT `+identityColumns+` FROM identities WHERE host = ? AND is_active = 1`,
		host,
	)
	model, err := scanIdentity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &identity.NoActiveIdentityError{Host: host}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active identity: %w", err)
	}
	return model.toDomain(), nil
}

// Activate deactivates every identity of id's host and activates id in a
// single transaction.
func (r *identityRepository) Activate(id int64) (err error) {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var host string
	err = tx.QueryRow(`SELECT host FROM identities WHERE id = ?`, id).Scan(&host)
	if errors.Is(err, sql.ErrNoRows) {
		return &identity.NotFoundError{ID: id}
	}
	if err != nil {
		return fmt.Errorf("failed to look up identity host: %w", err)
	}

	if _, err = tx.Exec(`UPDATE identities SET is_active = 0 WHERE host = ? AND is_active = 1`, host); err != nil {
		return fmt.Errorf("failed to deactivate identities: %w", err)
	}
	if _, err = tx.Exec(`UPDATE identities SET is_active = 1 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to activate identity: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit activation: %w", err)
	}

	log.Debug(log.CatDB, "identity activated", "id", id, "host", host)
	return nil
}

// Deactivate clears the active flag for host.
func (r *identityRepository) Deactivate(host string) error {
	_, err := r.db.Exec(
		`UPDATE identities SET is_active = 0 WHERE host = ? AND is_active = 1`,
		identity.NormalizeHost(host),
	)
	if err != nil {
		return fmt.Errorf("failed to deactivate identities: %w", err)
	}
	return nil
}

// RecordUse stores the last-used timestamp.
func (r *identityRepository) RecordUse(id int64, at time.Time) error {
	result, err := r.db.Exec(`UPDATE identities SET last_used_at = ? WHERE id = ?`, at.Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to record identity use: %w", err)
	}
	return requireAffected(result, id)
}

// Delete removes an identity row.
func (r *identityRepository) Delete(id int64) error {
	result, err := r.db.Exec(`DELETE FROM identities WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete identity: %w", err)
	}
	return requireAffected(result, id)
}

// Close closes the owning database.
func (r *identityRepository) Close() error {
	return r.owner.Close()
}

func requireAffected(result sql.Result, id int64) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return &identity.NotFoundError{ID: id}
	}
	return nil
}
