package snapshots

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx, so snapshot operations
// can run inside the suspension engine's transaction or standalone (the
// retention sweeper).
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Store reads and writes the state_snapshots ledger.
type Store struct{}

// NewStore creates a snapshot store.
func NewStore() *Store {
	return &Store{}
}

// Capture appends a new active snapshot for the subject. Any previous
// active snapshot for the same subject is deactivated first: the newest
// capture is always the authoritative restore point, and the partial
// unique index would otherwise reject the insert.
func (s *Store) Capture(ctx context.Context, q DBTX, subjectType SubjectType, subjectID int64, actionType ActionType, payload json.RawMessage) (*StateSnapshot, error) {
	if err := validPayload(subjectType, payload); err != nil {
		return nil, fmt.Errorf("invalid snapshot payload for %s/%d: %w", subjectType, subjectID, err)
	}

	_, err := q.ExecContext(ctx, `
		UPDATE state_snapshots
		SET is_active = FALSE, consumed_at = NOW()
		WHERE subject_type = $1 AND subject_id = $2 AND is_active
	`, subjectType, subjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to deactivate prior snapshot: %w", err)
	}

	snap := &StateSnapshot{
		SubjectType:   subjectType,
		SubjectID:     subjectID,
		ActionType:    actionType,
		CapturedState: payload,
		IsActive:      true,
	}
	err = q.QueryRowContext(ctx, `
		INSERT INTO state_snapshots (subject_type, subject_id, action_type, captured_state, is_active)
		VALUES ($1, $2, $3, $4, TRUE)
		RETURNING id, captured_at
	`, subjectType, subjectID, actionType, []byte(payload)).Scan(&snap.ID, &snap.CapturedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to capture snapshot: %w", err)
	}
	return snap, nil
}

// ActiveFor returns the active snapshot for a subject, or nil if none
// exists.
func (s *Store) ActiveFor(ctx context.Context, q DBTX, subjectType SubjectType, subjectID int64) (*StateSnapshot, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, subject_type, subject_id, action_type, captured_state, is_active, captured_at, consumed_at
		FROM state_snapshots
		WHERE subject_type = $1 AND subject_id = $2 AND is_active
	`, subjectType, subjectID)

	snap, err := scanSnapshot(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load active snapshot: %w", err)
	}
	return snap, nil
}

// Consume marks a snapshot inactive and stamps consumed_at. Consuming an
// already-consumed snapshot is an error: it means two resumes raced past
// the row lock, which should be impossible.
func (s *Store) Consume(ctx context.Context, q DBTX, snapshotID int64) error {
	result, err := q.ExecContext(ctx, `
		UPDATE state_snapshots
		SET is_active = FALSE, consumed_at = NOW()
		WHERE id = $1 AND is_active
	`, snapshotID)
	if err != nil {
		return fmt.Errorf("failed to consume snapshot %d: %w", snapshotID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check snapshot consume: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("snapshot %d is not active", snapshotID)
	}
	return nil
}

// ListConsumedBefore returns consumed snapshots older than the cutoff,
// for archiving ahead of deletion.
func (s *Store) ListConsumedBefore(ctx context.Context, q DBTX, cutoff time.Time, limit int) ([]*StateSnapshot, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, subject_type, subject_id, action_type, captured_state, is_active, captured_at, consumed_at
		FROM state_snapshots
		WHERE NOT is_active AND consumed_at < $1
		ORDER BY consumed_at
		LIMIT $2
	`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list consumed snapshots: %w", err)
	}
	defer rows.Close()

	var out []*StateSnapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

// DeleteConsumedBefore deletes consumed snapshots older than the cutoff.
// The `NOT is_active` predicate is the retention-safety invariant: an
// active snapshot is never deleted regardless of age.
func (s *Store) DeleteConsumedBefore(ctx context.Context, q DBTX, cutoff time.Time) (int64, error) {
	result, err := q.ExecContext(ctx, `
		DELETE FROM state_snapshots
		WHERE NOT is_active AND consumed_at < $1
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired snapshots: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted snapshots: %w", err)
	}
	return n, nil
}

// CountForSubject returns the total number of snapshots (active and
// consumed) recorded for a subject.
func (s *Store) CountForSubject(ctx context.Context, q DBTX, subjectType SubjectType, subjectID int64) (int, error) {
	var n int
	err := q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM state_snapshots WHERE subject_type = $1 AND subject_id = $2
	`, subjectType, subjectID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count snapshots: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSnapshot(row scanner) (*StateSnapshot, error) {
	snap := &StateSnapshot{}
	var consumedAt sql.NullTime
	var payload []byte
	err := row.Scan(
		&snap.ID, &snap.SubjectType, &snap.SubjectID, &snap.ActionType,
		&payload, &snap.IsActive, &snap.CapturedAt, &consumedAt,
	)
	if err != nil {
		return nil, err
	}
	snap.CapturedState = json.RawMessage(payload)
	if consumedAt.Valid {
		snap.ConsumedAt = &consumedAt.Time
	}
	return snap, nil
}
