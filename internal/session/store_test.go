package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborline/storefront/pkg/database"
	apperrors "github.com/harborline/storefront/pkg/errors"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func configFor(t *testing.T, addr string) database.RedisConfig {
	t.Helper()
	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return database.RedisConfig{Host: host, Port: port}
}

func setupStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	store := NewStore(configFor(t, mr.Addr()), 168*time.Hour, testLogger())
	t.Cleanup(func() { _ = store.Close() })
	return store, mr
}

func TestStore_SetGetRoundTrip(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "user-1", "sess-1", "refresh-token-value"))

	got, err := store.Get(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "refresh-token-value", got)
}

func TestStore_Get_MissingSession(t *testing.T) {
	store, _ := setupStore(t)

	_, err := store.Get(context.Background(), "no-such-session")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestStore_Set_EntriesCarryTTL(t *testing.T) {
	store, mr := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "user-1", "sess-1", "token"))

	// Past the refresh lifetime the entry self-expires.
	mr.FastForward(168*time.Hour + time.Minute)

	_, err := store.Get(ctx, "sess-1")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestStore_Delete_RemovesEntryAndIndex(t *testing.T) {
	store, mr := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "user-1", "sess-1", "token"))
	require.NoError(t, store.Delete(ctx, "user-1", "sess-1"))

	_, err := store.Get(ctx, "sess-1")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.False(t, mr.Exists("storefront:session:sess-1"))

	members, _ := mr.SMembers("storefront:user_sessions:user-1")
	assert.NotContains(t, members, "sess-1")
}

func TestStore_Delete_MissingSessionIsNoError(t *testing.T) {
	store, _ := setupStore(t)

	assert.NoError(t, store.Delete(context.Background(), "user-1", "never-existed"))
}

func TestStore_DeleteAllForUser(t *testing.T) {
	store, mr := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "user-1", "sess-a", "token-a"))
	require.NoError(t, store.Set(ctx, "user-1", "sess-b", "token-b"))
	require.NoError(t, store.Set(ctx, "user-2", "sess-c", "token-c"))

	require.NoError(t, store.DeleteAllForUser(ctx, "user-1"))

	_, err := store.Get(ctx, "sess-a")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	_, err = store.Get(ctx, "sess-b")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	// Other users' sessions survive.
	got, err := store.Get(ctx, "sess-c")
	require.NoError(t, err)
	assert.Equal(t, "token-c", got)

	assert.False(t, mr.Exists("storefront:user_sessions:user-1"))
}

func TestStore_UnreachableHostIsUnavailable(t *testing.T) {
	// A server that was stopped before first use: connect attempts fail and
	// the bounded backoff loop is cut short by the context deadline.
	mr := miniredis.RunT(t)
	cfg := configFor(t, mr.Addr())
	mr.Close()

	store := NewStore(cfg, time.Hour, testLogger())
	t.Cleanup(func() { _ = store.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	err := store.Set(ctx, "user-1", "sess-1", "token")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrUnavailable)

	var storeErr *StoreError
	require.ErrorAs(t, err, &storeErr)
}

func TestStore_IdleDisconnectThenReconnect(t *testing.T) {
	mr := miniredis.RunT(t)
	store := NewStore(configFor(t, mr.Addr()), time.Hour, testLogger())
	store.idleTimeout = 20 * time.Millisecond
	t.Cleanup(func() { _ = store.Close() })
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "user-1", "sess-1", "token"))

	require.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return store.client == nil
	}, time.Second, 5*time.Millisecond, "client should close after the idle window")

	// The next call dials a fresh connection transparently.
	got, err := store.Get(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "token", got)

	store.mu.Lock()
	reconnected := store.client != nil
	store.mu.Unlock()
	assert.True(t, reconnected)
}

func TestStore_ConnectRetriesStopAtAttemptCap(t *testing.T) {
	store := NewStore(database.RedisConfig{Host: "localhost", Port: 6390}, time.Hour, testLogger())
	store.connectBaseWait = time.Millisecond

	var dials atomic.Int32
	store.dial = func(ctx context.Context, cfg database.RedisConfig) (*redis.Client, error) {
		dials.Add(1)
		return nil, errors.New("dial tcp: connect: connection refused")
	}
	t.Cleanup(func() { _ = store.Close() })

	err := store.Set(context.Background(), "user-1", "sess-1", "token")

	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrUnavailable)
	assert.Equal(t, int32(maxConnectAttempts), dials.Load())

	var storeErr *StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, FailureUnreachable, storeErr.Kind)
}

func TestStore_ClosedStoreRejectsCalls(t *testing.T) {
	store, _ := setupStore(t)
	require.NoError(t, store.Close())

	err := store.Set(context.Background(), "user-1", "sess-1", "token")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrUnavailable)
}

func TestClassify_Kinds(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want FailureKind
	}{
		{"auth failure", errors.New("NOAUTH Authentication required"), FailureAuth},
		{"wrong password", errors.New("WRONGPASS invalid username-password pair"), FailureAuth},
		{"deadline", context.DeadlineExceeded, FailureTimeout},
		{"reset", errors.New("read tcp: connection reset by peer"), FailureReset},
		{"refused", errors.New("dial tcp 127.0.0.1:6379: connect: connection refused"), FailureUnreachable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			classified := classify(tt.err)
			assert.Equal(t, tt.want, classified.Kind)
			assert.ErrorIs(t, classified, apperrors.ErrUnavailable)
		})
	}
}

func TestStore_ConcurrentUse(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	done := make(chan error, 20)
	for i := 0; i < 20; i++ {
		go func(n int) {
			id := "sess-" + strconv.Itoa(n)
			if err := store.Set(ctx, "user-1", id, "token-"+id); err != nil {
				done <- err
				return
			}
			_, err := store.Get(ctx, id)
			done <- err
		}(i)
	}

	for i := 0; i < 20; i++ {
		assert.NoError(t, <-done)
	}
}
