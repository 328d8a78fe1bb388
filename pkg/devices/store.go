package devices

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a device does not exist.
var ErrNotFound = errors.New("device not found")

// Store provides read/write access to device records. Methods taking an
// *sql.Tx participate in the suspension engine's transaction.
type Store struct {
	db *sql.DB
}

// NewStore creates a new device store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Create inserts a new device.
func (s *Store) Create(ctx context.Context, d *Device) error {
	query := `
		INSERT INTO devices (venue_id, owner_principal_id, name, power_on, locked, target_temp)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`
	err := s.db.QueryRowContext(ctx, query,
		d.VenueID, d.OwnerPrincipalID, d.Name, d.PowerOn, d.Locked, d.TargetTemp,
	).Scan(&d.ID, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create device: %w", err)
	}
	return nil
}

// Get retrieves a device by ID.
func (s *Store) Get(ctx context.Context, id int64) (*Device, error) {
	query := `
		SELECT id, venue_id, owner_principal_id, name, power_on, locked, target_temp, created_at, updated_at
		FROM devices
		WHERE id = $1
	`
	d := &Device{}
	var venueID sql.NullInt64
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&d.ID, &venueID, &d.OwnerPrincipalID, &d.Name,
		&d.PowerOn, &d.Locked, &d.TargetTemp, &d.CreatedAt, &d.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get device: %w", err)
	}
	if venueID.Valid {
		d.VenueID = &venueID.Int64
	}
	return d, nil
}

// ListByOwner lists all devices directly owned by a principal.
func (s *Store) ListByOwner(ctx context.Context, ownerID int64) ([]*Device, error) {
	query := `
		SELECT id, venue_id, owner_principal_id, name, power_on, locked, target_temp, created_at, updated_at
		FROM devices
		WHERE owner_principal_id = $1
		ORDER BY id
	`
	rows, err := s.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	defer rows.Close()
	return scanDevices(rows)
}

// ListByOwnerForUpdate loads a principal's devices within a transaction,
// taking row locks so a concurrent device edit cannot interleave with a
// suspend in progress.
func (s *Store) ListByOwnerForUpdate(ctx context.Context, tx *sql.Tx, ownerID int64) ([]*Device, error) {
	query := `
		SELECT id, venue_id, owner_principal_id, name, power_on, locked, target_temp, created_at, updated_at
		FROM devices
		WHERE owner_principal_id = $1
		ORDER BY id
		FOR UPDATE
	`
	rows, err := tx.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock devices: %w", err)
	}
	defer rows.Close()
	return scanDevices(rows)
}

// ApplyState writes a device's mutable state within a transaction.
func (s *Store) ApplyState(ctx context.Context, tx *sql.Tx, deviceID int64, powerOn, locked bool, targetTemp float64) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE devices
		SET power_on = $1, locked = $2, target_temp = $3, updated_at = NOW()
		WHERE id = $4
	`, powerOn, locked, targetTemp, deviceID)
	if err != nil {
		return fmt.Errorf("failed to update device %d: %w", deviceID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check device update: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanDevices(rows *sql.Rows) ([]*Device, error) {
	var out []*Device
	for rows.Next() {
		d := &Device{}
		var venueID sql.NullInt64
		if err := rows.Scan(
			&d.ID, &venueID, &d.OwnerPrincipalID, &d.Name,
			&d.PowerOn, &d.Locked, &d.TargetTemp, &d.CreatedAt, &d.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		if venueID.Valid {
			d.VenueID = &venueID.Int64
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
