// Package account maintains the account registry, the active-account
// pointer, and the session-protected user key that lets an account unlock
// without re-contacting the server.
package account

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/keywarden/keywarden/internal/storage"
)

// Account errors.
var (
	// ErrUnknownAccount indicates an identifier that has no registry entry.
	ErrUnknownAccount = errors.New("unknown account")
)

// Account is one registry entry. Entries are created at login and retained
// across logout; only explicit removal deletes them.
type Account struct {
	// Email is the identifier the user authenticates with.
	Email string `json:"email"`
	// Name is the display name from the profile, when known.
	Name string `json:"name,omitempty"`
	// EmailVerified mirrors the profile's verification flag.
	EmailVerified bool `json:"emailVerified"`
}

// Registry persists accounts and the active pointer through the storage
// engine.
type Registry struct {
	store *storage.Store
	log   *zap.Logger
}

// NewRegistry wraps the shared store.
func NewRegistry(store *storage.Store, log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{store: store, log: log}
}

// Upsert creates or replaces the registry entry for id.
func (r *Registry) Upsert(id string, a Account) error {
	accounts, err := r.all()
	if err != nil {
		return err
	}
	accounts[id] = a
	if err := r.store.Set(storage.KeyAccounts.Format(""), accounts); err != nil {
		return fmt.Errorf("persist account registry: %w", err)
	}
	r.log.Debug("account upserted", zap.String("accountId", id))
	return nil
}

// Get returns the registry entry for id.
func (r *Registry) Get(id string) (Account, bool, error) {
	accounts, err := r.all()
	if err != nil {
		return Account{}, false, err
	}
	a, ok := accounts[id]
	return a, ok, nil
}

// SetActive points the active-account pointer at id. The pointer may only
// name an existing registry entry.
func (r *Registry) SetActive(id string) error {
	if _, ok, err := r.Get(id); err != nil {
		return err
	} else if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAccount, id)
	}
	return r.store.Set(storage.KeyActiveAccountID.Format(""), id)
}

// ActiveID returns the active account identifier, if one is set.
func (r *Registry) ActiveID() (string, bool, error) {
	var id string
	ok, err := r.store.Get(storage.KeyActiveAccountID.Format(""), &id)
	if err != nil {
		return "", false, err
	}
	if !ok || id == "" {
		return "", false, nil
	}
	return id, true, nil
}

// ClearActive nulls the pointer while keeping every registry entry.
func (r *Registry) ClearActive() error {
	return r.store.Set(storage.KeyActiveAccountID.Format(""), nil)
}

func (r *Registry) all() (map[string]Account, error) {
	accounts := make(map[string]Account)
	if _, err := r.store.Get(storage.KeyAccounts.Format(""), &accounts); err != nil {
		return nil, fmt.Errorf("load account registry: %w", err)
	}
	return accounts, nil
}
