package token

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/keywarden/keywarden/internal/storage"
)

func newTestManager(t *testing.T) (*Manager, *storage.Store) {
	t.Helper()
	store, err := storage.Open(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	return NewManager(store, zap.NewNop()), store
}

func TestAccessToken_AbsentAndPresent(t *testing.T) {
	m, _ := newTestManager(t)

	_, ok, err := m.AccessToken("id1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, m.Set("id1", Tokens{Access: "acc", Refresh: "ref", ExpiresAt: 100}))

	tok, ok, err := m.AccessToken("id1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "acc", tok)
}

func TestClear_NullsWithoutDeleting(t *testing.T) {
	m, store := newTestManager(t)
	require.NoError(t, m.Set("id1", Tokens{Access: "acc", Refresh: "ref", ExpiresAt: 100}))
	require.NoError(t, m.Clear("id1"))

	_, ok, err := m.AccessToken("id1")
	require.NoError(t, err)
	assert.False(t, ok)

	// The key itself survives as a null, it is not removed.
	removed, err := store.Remove(storage.KeyAccessToken.Format("id1"))
	require.NoError(t, err)
	assert.True(t, removed)
}

func TestRefresh_MissingRefreshToken(t *testing.T) {
	m, _ := newTestManager(t)

	_, err := m.Refresh(context.Background(), "id1", func(ctx context.Context, refresh string) (Tokens, error) {
		t.Fatal("refresh callback must not run without a refresh token")
		return Tokens{}, nil
	})
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestRefresh_PersistsNewTokens(t *testing.T) {
	m, _ := newTestManager(t)
	require.NoError(t, m.Set("id1", Tokens{Access: "old", Refresh: "old-refresh"}))

	access, err := m.Refresh(context.Background(), "id1", func(ctx context.Context, refresh string) (Tokens, error) {
		assert.Equal(t, "old-refresh", refresh)
		return Tokens{Access: "new", Refresh: "new-refresh", ExpiresAt: 200}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "new", access)

	tok, ok, err := m.AccessToken("id1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "new", tok)
}

func TestRefresh_FailurePropagatesWithoutRetry(t *testing.T) {
	m, _ := newTestManager(t)
	require.NoError(t, m.Set("id1", Tokens{Access: "old", Refresh: "ref"}))

	boom := errors.New("server said no")
	var calls atomic.Int32
	_, err := m.Refresh(context.Background(), "id1", func(ctx context.Context, refresh string) (Tokens, error) {
		calls.Add(1)
		return Tokens{}, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int32(1), calls.Load())

	// The old access token is still on disk; callers must not reuse it,
	// but the manager does not destroy it either.
	tok, ok, err := m.AccessToken("id1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "old", tok)
}

func TestRefresh_SingleFlight(t *testing.T) {
	m, _ := newTestManager(t)
	require.NoError(t, m.Set("id1", Tokens{Access: "old", Refresh: "ref"}))

	const n = 16
	var calls atomic.Int32
	var ready, done sync.WaitGroup
	results := make([]string, n)
	errs := make([]error, n)

	ready.Add(n)
	done.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer done.Done()
			ready.Done()
			results[i], errs[i] = m.Refresh(context.Background(), "id1", func(ctx context.Context, refresh string) (Tokens, error) {
				calls.Add(1)
				// Hold the flight open long enough for every goroutine
				// to join it.
				time.Sleep(200 * time.Millisecond)
				return Tokens{Access: "shared", Refresh: "next"}, nil
			})
		}(i)
	}
	ready.Wait()
	done.Wait()

	assert.Equal(t, int32(1), calls.Load(), "refresh callback must run exactly once")
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "shared", results[i])
	}
}

func TestRefresh_SeparateAccountsDoNotShare(t *testing.T) {
	m, _ := newTestManager(t)
	require.NoError(t, m.Set("a", Tokens{Refresh: "ra"}))
	require.NoError(t, m.Set("b", Tokens{Refresh: "rb"}))

	var calls atomic.Int32
	fn := func(ctx context.Context, refresh string) (Tokens, error) {
		calls.Add(1)
		return Tokens{Access: "acc-" + refresh, Refresh: refresh}, nil
	}

	ta, err := m.Refresh(context.Background(), "a", fn)
	require.NoError(t, err)
	tb, err := m.Refresh(context.Background(), "b", fn)
	require.NoError(t, err)

	assert.Equal(t, "acc-ra", ta)
	assert.Equal(t, "acc-rb", tb)
	assert.Equal(t, int32(2), calls.Load())
}
