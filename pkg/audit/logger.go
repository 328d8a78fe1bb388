package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Logger records suspension audit entries. Implementations must treat
// entries as append-only.
type Logger interface {
	Log(ctx context.Context, entry *Entry) error
}

// DBLogger implements audit logging to PostgreSQL.
type DBLogger struct {
	db *sql.DB
}

// NewDBLogger creates a database-backed audit logger.
func NewDBLogger(db *sql.DB) (*DBLogger, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	return &DBLogger{db: db}, nil
}

// Log appends an audit entry.
func (l *DBLogger) Log(ctx context.Context, entry *Entry) error {
	var metadataJSON []byte
	var err error
	if entry.Metadata != nil {
		metadataJSON, err = json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}

	query := `
		INSERT INTO suspension_audit (action, principal_id, actor_id, reason, prior_status, new_status, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`
	err = l.db.QueryRowContext(ctx, query,
		entry.Action, entry.PrincipalID, entry.ActorID, entry.Reason,
		entry.PriorStatus, entry.NewStatus, metadataJSON,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}
	return nil
}

// ListByPrincipal returns a principal's audit history, newest first.
func (l *DBLogger) ListByPrincipal(ctx context.Context, principalID int64, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, action, principal_id, actor_id, reason, prior_status, new_status, metadata, created_at
		FROM suspension_audit
		WHERE principal_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := l.db.QueryContext(ctx, query, principalID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit entries: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		entry := &Entry{}
		var metadataJSON []byte
		if err := rows.Scan(
			&entry.ID, &entry.Action, &entry.PrincipalID, &entry.ActorID, &entry.Reason,
			&entry.PriorStatus, &entry.NewStatus, &metadataJSON, &entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &entry.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
			}
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// DeleteBefore removes audit entries older than the cutoff. Used by the
// retention sweeper; the audit window is configured independently of the
// snapshot window.
func (l *DBLogger) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := l.db.ExecContext(ctx,
		`DELETE FROM suspension_audit WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete audit entries: %w", err)
	}
	return result.RowsAffected()
}
