package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/wardenhq/warden/pkg/config"
)

// ErrInvalidSession is returned when a token does not resolve to a live
// session.
var ErrInvalidSession = errors.New("invalid or expired session")

// ErrSuspended is returned when the session's owner is effectively
// suspended.
var ErrSuspended = errors.New("principal is suspended")

// Session is the credential record kept for each issued token.
type Session struct {
	ID          string    `json:"id"`
	PrincipalID int64     `json:"principal_id"`
	TokenHash   string    `json:"-"`
	IssuedAt    time.Time `json:"issued_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	LastUsedAt  time.Time `json:"last_used_at"`
}

// SuspensionChecker reports whether a principal or any of its ancestors
// is suspended. Satisfied by principals.Hierarchy.
type SuspensionChecker interface {
	IsEffectivelySuspended(ctx context.Context, principalID int64) (bool, error)
}

// Store manages credentials in Redis. Sessions are keyed by token hash
// with a per-principal index set for bulk revocation; Redis TTLs double
// as the credential retention policy.
type Store struct {
	client  *redis.Client
	checker SuspensionChecker
	ttl     time.Duration
}

// NewStore creates a Redis-backed session store.
func NewStore(cfg config.RedisConfig, ttl time.Duration, checker SuspensionChecker) (*Store, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.DB >= 0 {
		opts.DB = cfg.DB
	}
	if cfg.MaxRetries > 0 {
		opts.MaxRetries = cfg.MaxRetries
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Store{client: client, checker: checker, ttl: ttl}, nil
}

// NewStoreWithClient wires an existing Redis client, used by tests and by
// callers that share a connection pool.
func NewStoreWithClient(client *redis.Client, ttl time.Duration, checker SuspensionChecker) *Store {
	return &Store{client: client, checker: checker, ttl: ttl}
}

// Client exposes the underlying Redis client for health checks.
func (s *Store) Client() *redis.Client {
	return s.client
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}

func sessionKey(tokenHash string) string {
	return "session:" + tokenHash
}

func principalIndexKey(principalID int64) string {
	return fmt.Sprintf("principal_sessions:%d", principalID)
}

// Issue creates a new session for a principal and returns the plaintext
// token. Suspended principals (directly or via an ancestor) cannot log
// in.
func (s *Store) Issue(ctx context.Context, principalID int64) (string, *Session, error) {
	if s.checker != nil {
		suspended, err := s.checker.IsEffectivelySuspended(ctx, principalID)
		if err != nil {
			return "", nil, fmt.Errorf("failed to check suspension state: %w", err)
		}
		if suspended {
			return "", nil, ErrSuspended
		}
	}

	token, tokenHash, err := GenerateToken()
	if err != nil {
		return "", nil, fmt.Errorf("failed to generate token: %w", err)
	}

	now := time.Now().UTC()
	session := &Session{
		ID:          uuid.NewString(),
		PrincipalID: principalID,
		TokenHash:   tokenHash,
		IssuedAt:    now,
		ExpiresAt:   now.Add(s.ttl),
		LastUsedAt:  now,
	}

	data, err := json.Marshal(session)
	if err != nil {
		return "", nil, fmt.Errorf("failed to marshal session: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, sessionKey(tokenHash), data, s.ttl)
	pipe.SAdd(ctx, principalIndexKey(principalID), tokenHash)
	// The index set outlives individual sessions by a margin so revocation
	// can still find hashes whose session keys expired naturally.
	pipe.Expire(ctx, principalIndexKey(principalID), s.ttl*2)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", nil, fmt.Errorf("failed to store session: %w", err)
	}

	return token, session, nil
}

// Validate resolves a token to its session, enforcing expiry and the
// owner's effective suspension state, and bumps last-used. The live
// status check is what bounds the blast radius of a delayed revocation
// cascade: a stale token fails here even before it is purged.
func (s *Store) Validate(ctx context.Context, token string) (*Session, error) {
	if err := ValidateTokenFormat(token); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidSession, err)
	}

	tokenHash := HashToken(token)
	session, err := s.getByHash(ctx, tokenHash)
	if err != nil {
		return nil, err
	}

	if time.Now().UTC().After(session.ExpiresAt) {
		// Expired but not yet evicted; clean it up eagerly.
		s.client.Del(ctx, sessionKey(tokenHash))
		return nil, ErrInvalidSession
	}

	if s.checker != nil {
		suspended, err := s.checker.IsEffectivelySuspended(ctx, session.PrincipalID)
		if err != nil {
			return nil, fmt.Errorf("failed to check suspension state: %w", err)
		}
		if suspended {
			return nil, ErrSuspended
		}
	}

	session.LastUsedAt = time.Now().UTC()
	if data, err := json.Marshal(session); err == nil {
		s.client.Set(ctx, sessionKey(tokenHash), data, time.Until(session.ExpiresAt))
	}

	return session, nil
}

// Refresh extends a session's expiry by the configured TTL.
func (s *Store) Refresh(ctx context.Context, token string) (*Session, error) {
	session, err := s.Validate(ctx, token)
	if err != nil {
		return nil, err
	}

	session.ExpiresAt = time.Now().UTC().Add(s.ttl)
	data, err := json.Marshal(session)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := s.client.Set(ctx, sessionKey(session.TokenHash), data, s.ttl).Err(); err != nil {
		return nil, fmt.Errorf("failed to refresh session: %w", err)
	}
	return session, nil
}

// Revoke deletes a single session (logout). Revoking a token that is
// already gone is not an error.
func (s *Store) Revoke(ctx context.Context, token string) error {
	if err := ValidateTokenFormat(token); err != nil {
		return nil
	}
	tokenHash := HashToken(token)

	session, err := s.getByHash(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, ErrInvalidSession) {
			return nil
		}
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, sessionKey(tokenHash))
	pipe.SRem(ctx, principalIndexKey(session.PrincipalID), tokenHash)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}

// RevokeAll invalidates every session belonging to any principal in the
// set and returns the number of credentials revoked. It is idempotent —
// the suspension engine retries it on failure — and never errors on
// "nothing to revoke".
func (s *Store) RevokeAll(ctx context.Context, principalIDs []int64) (int, error) {
	var revoked int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)

	for _, principalID := range principalIDs {
		principalID := principalID
		g.Go(func() error {
			n, err := s.revokeForPrincipal(gctx, principalID)
			if err != nil {
				return err
			}
			atomic.AddInt64(&revoked, n)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return int(atomic.LoadInt64(&revoked)), fmt.Errorf("bulk revocation incomplete: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"principals": len(principalIDs),
		"revoked":    revoked,
	}).Debug("bulk session revocation complete")
	return int(revoked), nil
}

func (s *Store) revokeForPrincipal(ctx context.Context, principalID int64) (int64, error) {
	indexKey := principalIndexKey(principalID)

	hashes, err := s.client.SMembers(ctx, indexKey).Result()
	if err != nil && err != redis.Nil {
		return 0, fmt.Errorf("failed to list sessions for principal %d: %w", principalID, err)
	}
	if len(hashes) == 0 {
		return 0, nil
	}

	keys := make([]string, 0, len(hashes))
	for _, h := range hashes {
		keys = append(keys, sessionKey(h))
	}

	n, err := s.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to delete sessions for principal %d: %w", principalID, err)
	}
	if err := s.client.Del(ctx, indexKey).Err(); err != nil {
		return n, fmt.Errorf("failed to clear session index for principal %d: %w", principalID, err)
	}
	return n, nil
}

func (s *Store) getByHash(ctx context.Context, tokenHash string) (*Session, error) {
	data, err := s.client.Get(ctx, sessionKey(tokenHash)).Result()
	if err == redis.Nil {
		return nil, ErrInvalidSession
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	var session Session
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		s.client.Del(ctx, sessionKey(tokenHash))
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	session.TokenHash = tokenHash
	return &session, nil
}
