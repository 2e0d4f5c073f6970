// Package token persists per-account OAuth2 tokens and coordinates
// refreshes so that at most one refresh call is in flight per account:
// racing two refreshes against one refresh token gets the second rejected
// by typical OAuth2 servers.
package token

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/keywarden/keywarden/internal/storage"
)

// ErrNotAuthenticated indicates there is no refresh token to work with;
// the user has to log in again.
var ErrNotAuthenticated = errors.New("not authenticated")

// Tokens is the persisted token triple for one account.
type Tokens struct {
	Access    string
	Refresh   string
	ExpiresAt int64 // unix seconds
}

// RefreshFunc performs the actual network refresh. The token manager never
// retries it; a failure surfaces to the caller as-is.
type RefreshFunc func(ctx context.Context, refreshToken string) (Tokens, error)

// Manager reads and writes tokens through the shared store and single-
// flights refresh attempts per account identifier.
type Manager struct {
	store *storage.Store
	group singleflight.Group
	log   *zap.Logger
}

// NewManager wraps the shared store.
func NewManager(store *storage.Store, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{store: store, log: log}
}

// AccessToken returns the persisted access token for the account, if any.
func (m *Manager) AccessToken(accountID string) (string, bool, error) {
	var tok string
	ok, err := m.store.Get(storage.KeyAccessToken.Format(accountID), &tok)
	if err != nil {
		return "", false, fmt.Errorf("read access token: %w", err)
	}
	if !ok || tok == "" {
		return "", false, nil
	}
	return tok, true, nil
}

// Set persists the token triple for the account.
func (m *Manager) Set(accountID string, t Tokens) error {
	if err := m.store.Set(storage.KeyAccessToken.Format(accountID), t.Access); err != nil {
		return err
	}
	if err := m.store.Set(storage.KeyRefreshToken.Format(accountID), t.Refresh); err != nil {
		return err
	}
	return m.store.Set(storage.KeyTokenExpiresAt.Format(accountID), t.ExpiresAt)
}

// Clear nulls the token fields without deleting the keys, so a later login
// for the same account finds its slots in place.
func (m *Manager) Clear(accountID string) error {
	if err := m.store.Set(storage.KeyAccessToken.Format(accountID), nil); err != nil {
		return err
	}
	if err := m.store.Set(storage.KeyRefreshToken.Format(accountID), nil); err != nil {
		return err
	}
	return m.store.Set(storage.KeyTokenExpiresAt.Format(accountID), nil)
}

// Refresh replaces the account's tokens via fn, coordinating concurrent
// callers: while a refresh is in flight every additional caller waits on
// the same flight and receives its result without invoking fn again. A
// missing refresh token fails with ErrNotAuthenticated. Failures are never
// retried; the stale access token must not be reused after one.
func (m *Manager) Refresh(ctx context.Context, accountID string, fn RefreshFunc) (string, error) {
	access, err, shared := m.group.Do(accountID, func() (any, error) {
		var refresh string
		ok, err := m.store.Get(storage.KeyRefreshToken.Format(accountID), &refresh)
		if err != nil {
			return nil, fmt.Errorf("read refresh token: %w", err)
		}
		if !ok || refresh == "" {
			return nil, ErrNotAuthenticated
		}

		t, err := fn(ctx, refresh)
		if err != nil {
			return nil, err
		}
		if err := m.Set(accountID, t); err != nil {
			return nil, fmt.Errorf("persist refreshed tokens: %w", err)
		}
		m.log.Debug("access token refreshed", zap.String("accountId", accountID))
		return t.Access, nil
	})
	if err != nil {
		return "", err
	}
	if shared {
		m.log.Debug("refresh shared with in-flight call", zap.String("accountId", accountID))
	}
	return access.(string), nil
}
