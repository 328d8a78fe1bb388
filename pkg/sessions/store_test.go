package sessions

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChecker struct {
	suspended map[int64]bool
	err       error
}

func (f *fakeChecker) IsEffectivelySuspended(ctx context.Context, principalID int64) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.suspended[principalID], nil
}

func setupStore(t *testing.T, checker SuspensionChecker) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewStoreWithClient(client, time.Hour, checker), mr
}

func TestStore_IssueAndValidate(t *testing.T) {
	ctx := context.Background()

	t.Run("round trip", func(t *testing.T) {
		store, _ := setupStore(t, &fakeChecker{suspended: map[int64]bool{}})

		token, session, err := store.Issue(ctx, 42)
		require.NoError(t, err)
		assert.Equal(t, int64(42), session.PrincipalID)

		got, err := store.Validate(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, session.ID, got.ID)
		assert.Equal(t, int64(42), got.PrincipalID)
	})

	t.Run("suspended principal cannot log in", func(t *testing.T) {
		store, _ := setupStore(t, &fakeChecker{suspended: map[int64]bool{42: true}})

		_, _, err := store.Issue(ctx, 42)
		assert.ErrorIs(t, err, ErrSuspended)
	})

	t.Run("existing session dies once owner is suspended", func(t *testing.T) {
		checker := &fakeChecker{suspended: map[int64]bool{}}
		store, _ := setupStore(t, checker)

		token, _, err := store.Issue(ctx, 42)
		require.NoError(t, err)

		// Suspension lands after the token was issued.
		checker.suspended[42] = true
		_, err = store.Validate(ctx, token)
		assert.ErrorIs(t, err, ErrSuspended)
	})

	t.Run("unknown token", func(t *testing.T) {
		store, _ := setupStore(t, &fakeChecker{})
		_, err := store.Validate(ctx, "wdn_AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA")
		assert.ErrorIs(t, err, ErrInvalidSession)
	})

	t.Run("malformed token", func(t *testing.T) {
		store, _ := setupStore(t, &fakeChecker{})
		_, err := store.Validate(ctx, "not-a-token")
		assert.ErrorIs(t, err, ErrInvalidSession)
	})

	t.Run("expired session is evicted", func(t *testing.T) {
		store, mr := setupStore(t, &fakeChecker{})

		token, _, err := store.Issue(ctx, 42)
		require.NoError(t, err)

		mr.FastForward(2 * time.Hour)
		_, err = store.Validate(ctx, token)
		assert.ErrorIs(t, err, ErrInvalidSession)
	})

	t.Run("checker failure surfaces", func(t *testing.T) {
		store, _ := setupStore(t, &fakeChecker{err: errors.New("db down")})
		_, _, err := store.Issue(ctx, 42)
		assert.Error(t, err)
		assert.NotErrorIs(t, err, ErrSuspended)
	})
}

func TestStore_Refresh(t *testing.T) {
	ctx := context.Background()
	store, _ := setupStore(t, &fakeChecker{})

	token, session, err := store.Issue(ctx, 42)
	require.NoError(t, err)

	refreshed, err := store.Refresh(ctx, token)
	require.NoError(t, err)
	assert.False(t, refreshed.ExpiresAt.Before(session.ExpiresAt))

	_, err = store.Validate(ctx, token)
	assert.NoError(t, err)
}

func TestStore_Revoke(t *testing.T) {
	ctx := context.Background()

	t.Run("revoked token stops validating", func(t *testing.T) {
		store, _ := setupStore(t, &fakeChecker{})

		token, _, err := store.Issue(ctx, 42)
		require.NoError(t, err)

		require.NoError(t, store.Revoke(ctx, token))
		_, err = store.Validate(ctx, token)
		assert.ErrorIs(t, err, ErrInvalidSession)
	})

	t.Run("revoking an absent token is not an error", func(t *testing.T) {
		store, _ := setupStore(t, &fakeChecker{})
		assert.NoError(t, store.Revoke(ctx, "wdn_AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"))
		assert.NoError(t, store.Revoke(ctx, "garbage"))
	})
}

func TestStore_RevokeAll(t *testing.T) {
	ctx := context.Background()

	t.Run("revokes every session across principals", func(t *testing.T) {
		store, _ := setupStore(t, &fakeChecker{})

		var tokens []string
		for _, pid := range []int64{1, 1, 2, 3} {
			token, _, err := store.Issue(ctx, pid)
			require.NoError(t, err)
			tokens = append(tokens, token)
		}
		// Principal 4 has no sessions at all.
		count, err := store.RevokeAll(ctx, []int64{1, 2, 4})
		require.NoError(t, err)
		assert.Equal(t, 3, count)

		for _, token := range tokens[:3] {
			_, err := store.Validate(ctx, token)
			assert.ErrorIs(t, err, ErrInvalidSession)
		}
		// Principal 3 was not in the set; its session survives.
		_, err = store.Validate(ctx, tokens[3])
		assert.NoError(t, err)
	})

	t.Run("idempotent", func(t *testing.T) {
		store, _ := setupStore(t, &fakeChecker{})

		_, _, err := store.Issue(ctx, 1)
		require.NoError(t, err)

		count, err := store.RevokeAll(ctx, []int64{1})
		require.NoError(t, err)
		assert.Equal(t, 1, count)

		count, err = store.RevokeAll(ctx, []int64{1})
		require.NoError(t, err)
		assert.Equal(t, 0, count)
	})

	t.Run("empty principal set", func(t *testing.T) {
		store, _ := setupStore(t, &fakeChecker{})
		count, err := store.RevokeAll(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, 0, count)
	})
}
