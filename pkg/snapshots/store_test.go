package snapshots

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenhq/warden/pkg/principals"
)

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func principalPayload(t *testing.T) json.RawMessage {
	t.Helper()
	payload, err := EncodePrincipalState(PrincipalState{PriorStatus: principals.StatusActive})
	require.NoError(t, err)
	return payload
}

func TestStore_Capture(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	t.Run("deactivates prior snapshot then inserts", func(t *testing.T) {
		db, mock := setupMockDB(t)

		mock.ExpectExec("UPDATE state_snapshots").
			WithArgs("principal", int64(1)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery("INSERT INTO state_snapshots").
			WithArgs("principal", int64(1), "suspend", sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id", "captured_at"}).AddRow(7, time.Now()))

		snap, err := store.Capture(ctx, db, SubjectPrincipal, 1, ActionSuspend, principalPayload(t))
		require.NoError(t, err)
		assert.Equal(t, int64(7), snap.ID)
		assert.True(t, snap.IsActive)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejects payload that does not match the subject type", func(t *testing.T) {
		db, mock := setupMockDB(t)

		_, err := store.Capture(ctx, db, SubjectPrincipal, 1, ActionSuspend, json.RawMessage(`{"prior_status":"banana"}`))
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "invalid snapshot payload")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejects unknown subject type", func(t *testing.T) {
		db, mock := setupMockDB(t)

		_, err := store.Capture(ctx, db, SubjectType("venue"), 1, ActionSuspend, json.RawMessage(`{}`))
		assert.Error(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestStore_ActiveFor(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	t.Run("returns the active snapshot", func(t *testing.T) {
		db, mock := setupMockDB(t)

		mock.ExpectQuery("FROM state_snapshots").
			WithArgs("principal", int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{
				"id", "subject_type", "subject_id", "action_type", "captured_state", "is_active", "captured_at", "consumed_at",
			}).AddRow(7, "principal", 1, "suspend", []byte(principalPayload(t)), true, time.Now(), nil))

		snap, err := store.ActiveFor(ctx, db, SubjectPrincipal, 1)
		require.NoError(t, err)
		require.NotNil(t, snap)
		assert.Equal(t, int64(7), snap.ID)
		assert.Nil(t, snap.ConsumedAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no active snapshot returns nil", func(t *testing.T) {
		db, mock := setupMockDB(t)

		mock.ExpectQuery("FROM state_snapshots").
			WithArgs("principal", int64(1)).
			WillReturnError(sql.ErrNoRows)

		snap, err := store.ActiveFor(ctx, db, SubjectPrincipal, 1)
		require.NoError(t, err)
		assert.Nil(t, snap)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestStore_Consume(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	t.Run("marks the snapshot consumed", func(t *testing.T) {
		db, mock := setupMockDB(t)

		mock.ExpectExec("UPDATE state_snapshots").
			WithArgs(int64(7)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, store.Consume(ctx, db, 7))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("consuming an inactive snapshot is an error", func(t *testing.T) {
		db, mock := setupMockDB(t)

		mock.ExpectExec("UPDATE state_snapshots").
			WithArgs(int64(7)).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := store.Consume(ctx, db, 7)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "not active")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestStore_DeleteConsumedBefore(t *testing.T) {
	db, mock := setupMockDB(t)
	store := NewStore()
	cutoff := time.Now().Add(-30 * 24 * time.Hour)

	// The delete predicate excludes active rows; only consumed snapshots
	// are ever eligible regardless of age.
	mock.ExpectExec(`DELETE FROM state_snapshots\s+WHERE NOT is_active AND consumed_at`).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := store.DeleteConsumedBefore(context.Background(), db, cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEncodeDecodePrincipalState(t *testing.T) {
	t.Run("rejects invalid prior status on encode", func(t *testing.T) {
		_, err := EncodePrincipalState(PrincipalState{PriorStatus: "deleted"})
		assert.Error(t, err)
	})

	t.Run("rejects invalid prior status on decode", func(t *testing.T) {
		_, err := DecodePrincipalState(json.RawMessage(`{"prior_status":"deleted"}`))
		assert.Error(t, err)
	})

	t.Run("round trips suspension metadata", func(t *testing.T) {
		at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		by := int64(9)
		reason := "unpaid invoices"

		payload, err := EncodePrincipalState(PrincipalState{
			PriorStatus:        principals.StatusSuspended,
			PriorSuspendedAt:   &at,
			PriorSuspendedBy:   &by,
			PriorSuspendReason: &reason,
		})
		require.NoError(t, err)

		state, err := DecodePrincipalState(payload)
		require.NoError(t, err)
		assert.Equal(t, principals.StatusSuspended, state.PriorStatus)
		require.NotNil(t, state.PriorSuspendedAt)
		assert.True(t, at.Equal(*state.PriorSuspendedAt))
		assert.Equal(t, by, *state.PriorSuspendedBy)
		assert.Equal(t, reason, *state.PriorSuspendReason)
	})
}
