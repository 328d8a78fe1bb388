package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// migrations are idempotent DDL statements applied in order at startup.
// The partial unique index on state_snapshots enforces the at-most-one-
// active-snapshot invariant at the storage layer, so even a buggy writer
// cannot leave two authoritative restore points for the same subject.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS principals (
		id BIGSERIAL PRIMARY KEY,
		kind VARCHAR(20) NOT NULL,
		email VARCHAR(255) NOT NULL UNIQUE,
		display_name VARCHAR(255) NOT NULL DEFAULT '',
		superior_id BIGINT REFERENCES principals(id),
		status VARCHAR(20) NOT NULL DEFAULT 'active',
		suspended_at TIMESTAMP WITH TIME ZONE,
		suspended_by BIGINT,
		suspend_reason TEXT,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_principals_superior ON principals(superior_id)`,
	`CREATE INDEX IF NOT EXISTS idx_principals_status ON principals(status)`,

	`CREATE TABLE IF NOT EXISTS organizations (
		id BIGSERIAL PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		owner_principal_id BIGINT NOT NULL REFERENCES principals(id),
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS venues (
		id BIGSERIAL PRIMARY KEY,
		organization_id BIGINT NOT NULL REFERENCES organizations(id),
		name VARCHAR(255) NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS devices (
		id BIGSERIAL PRIMARY KEY,
		venue_id BIGINT REFERENCES venues(id),
		owner_principal_id BIGINT NOT NULL REFERENCES principals(id),
		name VARCHAR(255) NOT NULL DEFAULT '',
		power_on BOOLEAN NOT NULL DEFAULT TRUE,
		locked BOOLEAN NOT NULL DEFAULT FALSE,
		target_temp DOUBLE PRECISION NOT NULL DEFAULT 20.0,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_devices_owner ON devices(owner_principal_id)`,

	`CREATE TABLE IF NOT EXISTS state_snapshots (
		id BIGSERIAL PRIMARY KEY,
		subject_type VARCHAR(20) NOT NULL,
		subject_id BIGINT NOT NULL,
		action_type VARCHAR(20) NOT NULL,
		captured_state JSONB NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		captured_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		consumed_at TIMESTAMP WITH TIME ZONE
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_snapshots_one_active
		ON state_snapshots(subject_type, subject_id) WHERE is_active`,
	`CREATE INDEX IF NOT EXISTS idx_snapshots_consumed
		ON state_snapshots(consumed_at) WHERE NOT is_active`,

	`CREATE TABLE IF NOT EXISTS suspension_audit (
		id BIGSERIAL PRIMARY KEY,
		action VARCHAR(20) NOT NULL,
		principal_id BIGINT NOT NULL,
		actor_id BIGINT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		prior_status VARCHAR(20) NOT NULL,
		new_status VARCHAR(20) NOT NULL,
		metadata JSONB,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_suspension_audit_time ON suspension_audit(created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_suspension_audit_principal ON suspension_audit(principal_id)`,
}

// Migrate applies all migrations inside a single transaction.
func Migrate(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin migration transaction: %w", err)
	}
	defer tx.Rollback()

	for i, stmt := range migrations {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d failed: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migrations: %w", err)
	}
	return nil
}
