// Package session implements the server-side session store: a TTL-keyed
// Redis mapping from session ID to the exact refresh token issued for that
// session, plus a per-user index for multi-device revocation.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/harborline/storefront/pkg/database"
	apperrors "github.com/harborline/storefront/pkg/errors"
)

const (
	sessionKeyPrefix   = "storefront:session:"
	userIndexKeyPrefix = "storefront:user_sessions:"

	// defaultIdleTimeout is how long the client is kept open without traffic
	// before it is closed to free the connection.
	defaultIdleTimeout = 30 * time.Second

	// maxConnectAttempts caps the reconnect backoff loop.
	maxConnectAttempts = 5

	defaultConnectBaseWait = 500 * time.Millisecond
)

// FailureKind classifies a store failure. Callers react differently: login
// hard-fails on any store failure, refresh surfaces it as retryable.
type FailureKind string

const (
	FailureAuth        FailureKind = "auth"
	FailureUnreachable FailureKind = "unreachable"
	FailureTimeout     FailureKind = "timeout"
	FailureReset       FailureKind = "reset"
)

// StoreError is a classified session store failure. It matches
// apperrors.ErrUnavailable under errors.Is so handlers map it to 503.
type StoreError struct {
	Kind FailureKind
	Err  error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("session store %s: %v", e.Kind, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, apperrors.ErrUnavailable) succeed for any store
// failure regardless of kind.
func (e *StoreError) Is(target error) bool {
	return target == apperrors.ErrUnavailable
}

// classify maps a transport error onto a FailureKind.
func classify(err error) *StoreError {
	msg := err.Error()

	var netErr net.Error
	switch {
	case strings.Contains(msg, "NOAUTH"), strings.Contains(msg, "WRONGPASS"), strings.Contains(msg, "invalid password"):
		return &StoreError{Kind: FailureAuth, Err: err}
	case errors.As(err, &netErr) && netErr.Timeout(), errors.Is(err, context.DeadlineExceeded):
		return &StoreError{Kind: FailureTimeout, Err: err}
	case strings.Contains(msg, "connection reset"), strings.Contains(msg, "broken pipe"):
		return &StoreError{Kind: FailureReset, Err: err}
	default:
		return &StoreError{Kind: FailureUnreachable, Err: err}
	}
}

// Store manages the Redis client lifecycle and the session keyspace. The
// client connects lazily on first use, reconnects with bounded exponential
// backoff, and closes itself after an idle window. All methods are safe for
// concurrent use.
type Store struct {
	cfg    database.RedisConfig
	ttl    time.Duration
	logger *slog.Logger

	// Lifecycle knobs, injectable for tests.
	idleTimeout     time.Duration
	connectBaseWait time.Duration
	dial            func(ctx context.Context, cfg database.RedisConfig) (*redis.Client, error)

	mu        sync.Mutex
	client    *redis.Client
	idleTimer *time.Timer
	closed    bool
}

// NewStore creates a session store. ttl is the refresh-token lifetime; every
// session entry expires with its token.
func NewStore(cfg database.RedisConfig, ttl time.Duration, logger *slog.Logger) *Store {
	return &Store{
		cfg:             cfg,
		ttl:             ttl,
		logger:          logger,
		idleTimeout:     defaultIdleTimeout,
		connectBaseWait: defaultConnectBaseWait,
		dial:            database.NewRedisClient,
	}
}

// acquire returns a connected client, dialing lazily with backoff. The idle
// timer is reset on every call so the connection survives active use.
func (s *Store) acquire(ctx context.Context) (*redis.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, &StoreError{Kind: FailureUnreachable, Err: errors.New("store is closed")}
	}

	if s.client != nil {
		s.resetIdleTimerLocked()
		return s.client, nil
	}

	var lastErr error
	for attempt := 0; attempt < maxConnectAttempts; attempt++ {
		if attempt > 0 {
			wait := s.connectBaseWait << (attempt - 1)
			s.logger.Warn("session store connect failed, retrying",
				slog.Int("attempt", attempt+1),
				slog.Int("max_attempts", maxConnectAttempts),
				slog.Duration("backoff", wait),
				slog.String("error", lastErr.Error()),
			)
			select {
			case <-ctx.Done():
				return nil, classify(ctx.Err())
			case <-time.After(wait):
			}
		}

		client, err := s.dial(ctx, s.cfg)
		if err != nil {
			lastErr = err
			continue
		}

		s.client = client
		s.resetIdleTimerLocked()
		s.logger.Debug("session store connected", slog.String("addr", s.cfg.Addr()))
		return s.client, nil
	}

	return nil, classify(lastErr)
}

// resetIdleTimerLocked (re)arms the auto-disconnect timer. Caller holds mu.
func (s *Store) resetIdleTimerLocked() {
	if s.idleTimer != nil {
		s.idleTimer.Stop()
	}
	s.idleTimer = time.AfterFunc(s.idleTimeout, s.disconnectIdle)
}

// disconnectIdle closes the client after the idle window elapses.
func (s *Store) disconnectIdle() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client == nil {
		return
	}
	if err := s.client.Close(); err != nil {
		s.logger.Warn("session store idle close error", slog.String("error", err.Error()))
	}
	s.client = nil
	s.logger.Debug("session store disconnected after idle timeout")
}

// Set stores the refresh token under the session key and records the session
// in the user's index. Both entries carry the refresh-token TTL.
func (s *Store) Set(ctx context.Context, userID, sessionID, refreshToken string) error {
	client, err := s.acquire(ctx)
	if err != nil {
		return err
	}

	pipe := client.TxPipeline()
	pipe.Set(ctx, sessionKeyPrefix+sessionID, refreshToken, s.ttl)
	pipe.SAdd(ctx, userIndexKeyPrefix+userID, sessionID)
	pipe.Expire(ctx, userIndexKeyPrefix+userID, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return classify(err)
	}

	return nil
}

// Get returns the refresh token stored for the session. A missing entry
// returns apperrors.ErrNotFound; transport failures return a StoreError.
func (s *Store) Get(ctx context.Context, sessionID string) (string, error) {
	client, err := s.acquire(ctx)
	if err != nil {
		return "", err
	}

	value, err := client.Get(ctx, sessionKeyPrefix+sessionID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", apperrors.ErrNotFound
		}
		return "", classify(err)
	}

	return value, nil
}

// Delete removes one session entry and its index membership. Deleting a
// session that no longer exists is not an error.
func (s *Store) Delete(ctx context.Context, userID, sessionID string) error {
	client, err := s.acquire(ctx)
	if err != nil {
		return err
	}

	pipe := client.TxPipeline()
	pipe.Del(ctx, sessionKeyPrefix+sessionID)
	pipe.SRem(ctx, userIndexKeyPrefix+userID, sessionID)
	if _, err := pipe.Exec(ctx); err != nil {
		return classify(err)
	}

	return nil
}

// DeleteAllForUser removes every session recorded for the user. Used by
// logout-all and forced credential rotation.
func (s *Store) DeleteAllForUser(ctx context.Context, userID string) error {
	client, err := s.acquire(ctx)
	if err != nil {
		return err
	}

	indexKey := userIndexKeyPrefix + userID
	sessionIDs, err := client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return classify(err)
	}

	keys := make([]string, 0, len(sessionIDs)+1)
	for _, id := range sessionIDs {
		keys = append(keys, sessionKeyPrefix+id)
	}
	keys = append(keys, indexKey)

	if err := client.Del(ctx, keys...).Err(); err != nil {
		return classify(err)
	}

	return nil
}

// Ping checks connectivity for health reporting.
func (s *Store) Ping(ctx context.Context) error {
	client, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	if err := client.Ping(ctx).Err(); err != nil {
		return classify(err)
	}
	return nil
}

// Close shuts the store down permanently.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	if s.idleTimer != nil {
		s.idleTimer.Stop()
	}
	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	return err
}
