package retention

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenhq/warden/pkg/audit"
	"github.com/wardenhq/warden/pkg/config"
	"github.com/wardenhq/warden/pkg/snapshots"
)

type fakeArchiver struct {
	mu       sync.Mutex
	archived []*snapshots.StateSnapshot
	err      error
}

func (f *fakeArchiver) ArchiveSnapshots(ctx context.Context, snaps []*snapshots.StateSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.archived = append(f.archived, snaps...)
	return nil
}

func setupSweeper(t *testing.T, archiver Archiver) (*Sweeper, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	auditLog, err := audit.NewDBLogger(db)
	require.NoError(t, err)

	cfg := config.RetentionConfig{
		SnapshotWindow: 30 * 24 * time.Hour,
		AuditWindow:    90 * 24 * time.Hour,
	}
	return NewSweeper(db, snapshots.NewStore(), auditLog, archiver, cfg, nil), mock
}

func consumedRows(ids ...int64) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{
		"id", "subject_type", "subject_id", "action_type", "captured_state", "is_active", "captured_at", "consumed_at",
	})
	captured := time.Now().Add(-60 * 24 * time.Hour)
	consumed := time.Now().Add(-45 * 24 * time.Hour)
	for _, id := range ids {
		rows.AddRow(id, "principal", id, "suspend", []byte(`{"prior_status":"active"}`), false, captured, consumed)
	}
	return rows
}

func TestSweeper_Run(t *testing.T) {
	t.Run("without archiver deletes in bulk", func(t *testing.T) {
		sweeper, mock := setupSweeper(t, nil)

		// The bulk delete only ever touches inactive rows; an active
		// snapshot survives every sweep regardless of its age.
		mock.ExpectExec(`DELETE FROM state_snapshots\s+WHERE NOT is_active`).
			WithArgs(sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 4))
		mock.ExpectExec("DELETE FROM suspension_audit").
			WithArgs(sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 2))

		require.NoError(t, sweeper.Run(context.Background()))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("with archiver archives then deletes by id", func(t *testing.T) {
		archiver := &fakeArchiver{}
		sweeper, mock := setupSweeper(t, archiver)

		mock.ExpectQuery("FROM state_snapshots").
			WithArgs(sqlmock.AnyArg(), 1000).
			WillReturnRows(consumedRows(1, 2))
		mock.ExpectExec(`DELETE FROM state_snapshots WHERE id = \$1 AND NOT is_active`).
			WithArgs(int64(1)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`DELETE FROM state_snapshots WHERE id = \$1 AND NOT is_active`).
			WithArgs(int64(2)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery("FROM state_snapshots").
			WithArgs(sqlmock.AnyArg(), 1000).
			WillReturnRows(consumedRows())
		mock.ExpectExec("DELETE FROM suspension_audit").
			WithArgs(sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 0))

		require.NoError(t, sweeper.Run(context.Background()))
		assert.Len(t, archiver.archived, 2)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("archive failure blocks deletion", func(t *testing.T) {
		archiver := &fakeArchiver{err: errors.New("bucket unavailable")}
		sweeper, mock := setupSweeper(t, archiver)

		mock.ExpectQuery("FROM state_snapshots").
			WithArgs(sqlmock.AnyArg(), 1000).
			WillReturnRows(consumedRows(1))
		// No DELETE is expected: the rows stay until they can be archived.

		err := sweeper.Run(context.Background())
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "deletion skipped")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("audit sweep failure surfaces", func(t *testing.T) {
		sweeper, mock := setupSweeper(t, nil)

		mock.ExpectExec(`DELETE FROM state_snapshots\s+WHERE NOT is_active`).
			WithArgs(sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec("DELETE FROM suspension_audit").
			WillReturnError(sql.ErrConnDone)

		err := sweeper.Run(context.Background())
		assert.Error(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
