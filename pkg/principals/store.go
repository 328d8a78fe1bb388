package principals

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a principal does not exist.
var ErrNotFound = errors.New("principal not found")

const principalColumns = `id, kind, email, display_name, superior_id, status,
	       suspended_at, suspended_by, suspend_reason, created_at, updated_at`

// Store provides read/write access to principal records.
type Store struct {
	db *sql.DB
}

// NewStore creates a new principal store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Create inserts a new principal. Status defaults to active.
func (s *Store) Create(ctx context.Context, p *Principal) error {
	if p.Status == "" {
		p.Status = StatusActive
	}

	query := `
		INSERT INTO principals (kind, email, display_name, superior_id, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`
	err := s.db.QueryRowContext(ctx, query,
		p.Kind, p.Email, p.DisplayName, p.SuperiorID, p.Status,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create principal: %w", err)
	}
	return nil
}

// Get retrieves a principal by ID.
func (s *Store) Get(ctx context.Context, id int64) (*Principal, error) {
	query := `SELECT ` + principalColumns + ` FROM principals WHERE id = $1`
	return scanPrincipal(s.db.QueryRowContext(ctx, query, id))
}

// GetByEmail retrieves a principal by email address.
func (s *Store) GetByEmail(ctx context.Context, email string) (*Principal, error) {
	query := `SELECT ` + principalColumns + ` FROM principals WHERE email = $1`
	return scanPrincipal(s.db.QueryRowContext(ctx, query, email))
}

// ListBySuperior lists the direct subordinates of a principal.
func (s *Store) ListBySuperior(ctx context.Context, superiorID int64) ([]*Principal, error) {
	query := `SELECT ` + principalColumns + ` FROM principals WHERE superior_id = $1 ORDER BY id`
	rows, err := s.db.QueryContext(ctx, query, superiorID)
	if err != nil {
		return nil, fmt.Errorf("failed to list subordinates: %w", err)
	}
	defer rows.Close()

	var out []*Principal
	for rows.Next() {
		p, err := scanPrincipal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// scanner abstracts *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanPrincipal(row scanner) (*Principal, error) {
	p := &Principal{}
	var superiorID, suspendedBy sql.NullInt64
	var suspendedAt sql.NullTime
	var suspendReason sql.NullString

	err := row.Scan(
		&p.ID, &p.Kind, &p.Email, &p.DisplayName, &superiorID, &p.Status,
		&suspendedAt, &suspendedBy, &suspendReason, &p.CreatedAt, &p.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan principal: %w", err)
	}

	p.SuperiorID = nullableInt64(superiorID)
	p.SuspendedAt = nullableTime(suspendedAt)
	p.SuspendedBy = nullableInt64(suspendedBy)
	p.SuspendReason = nullableString(suspendReason)
	return p, nil
}
