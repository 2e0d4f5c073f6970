// Package auth drives the credential-establishment protocol: password and
// API-key login, offline unlock, lock, and logout. It persists exactly the
// state needed to unlock later without re-contacting the server.
package auth

import (
	"context"
	"errors"
	"runtime"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/keywarden/keywarden/internal/account"
	"github.com/keywarden/keywarden/internal/crypto"
	"github.com/keywarden/keywarden/internal/identity"
	"github.com/keywarden/keywarden/internal/storage"
	"github.com/keywarden/keywarden/internal/token"
)

// IdentityClient is the slice of the identity service the orchestrator
// consumes.
type IdentityClient interface {
	Prelogin(ctx context.Context, email string) (crypto.KdfConfig, error)
	TokenPassword(ctx context.Context, r identity.PasswordTokenRequest) (*identity.TokenResponse, error)
	TokenClientCredentials(ctx context.Context, clientID, clientSecret string) (*identity.TokenResponse, error)
	TokenRefresh(ctx context.Context, refreshToken string) (*identity.TokenResponse, error)
	Profile(ctx context.Context, accessToken string) (*identity.Profile, error)
}

// Status is the local authentication state of the active account.
type Status string

const (
	StatusLoggedOut Status = "loggedOut"
	StatusLocked    Status = "locked"
	StatusUnlocked  Status = "unlocked"
)

const deviceName = "cli"

// Orchestrator wires the storage engine, account state, token manager, and
// identity client into the login/unlock/lock/logout protocol.
type Orchestrator struct {
	store    *storage.Store
	registry *account.Registry
	session  *account.SessionState
	tokens   *token.Manager
	identity IdentityClient
	log      *zap.Logger

	// TwoFactorPrompt, when set, is consulted once if a grant answers
	// two-factor-required; the grant is then retried with its result.
	TwoFactorPrompt func(providers []string) (*identity.TwoFactor, error)

	// NewDeviceOTPPrompt, when set, is consulted once if a grant answers
	// new-device-verification-required; the grant is then retried with
	// the emailed one-time code. This is the only built-in retry.
	NewDeviceOTPPrompt func() (string, error)

	// userKey holds the unlocked user key for the lifetime of this
	// process, sealed in locked memory between uses.
	userKey *crypto.SecureKey

	now func() time.Time
}

// New builds an orchestrator over the shared store.
func New(store *storage.Store, client IdentityClient, log *zap.Logger) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{
		store:    store,
		registry: account.NewRegistry(store, log),
		session:  account.NewSessionState(store),
		tokens:   token.NewManager(store, log),
		identity: client,
		log:      log,
		now:      time.Now,
	}
}

// LoginPassword runs the full password login protocol and returns the
// fresh session key as base64 text for out-of-band export. The key is
// never persisted. A non-nil twoFactor is attached to the first grant
// attempt; without one, a two-factor challenge goes through the
// TwoFactorPrompt callback.
func (o *Orchestrator) LoginPassword(ctx context.Context, email string, password []byte, twoFactor *identity.TwoFactor) (string, error) {
	cfg, err := o.identity.Prelogin(ctx, email)
	if err != nil {
		return "", newError(CodeAPI, "prelogin failed", err)
	}
	if err := cfg.Validate(); err != nil {
		return "", newError(CodeKDF, "server returned invalid kdf parameters", err)
	}

	masterKey, err := crypto.DeriveMasterKey(password, email, cfg)
	if err != nil {
		return "", newError(CodeKDF, "key derivation failed", err)
	}
	defer masterKey.Destroy()

	hash := masterKey.HashAuthentication(password, crypto.HashPurposeServerAuthorization)

	device, err := o.deviceInfo()
	if err != nil {
		return "", newError(CodeStorage, "resolve device identifier", err)
	}

	resp, err := o.passwordGrant(ctx, identity.PasswordTokenRequest{
		Email:        email,
		PasswordHash: hash,
		Device:       device,
		TwoFactor:    twoFactor,
	})
	if err != nil {
		return "", err
	}

	stretched, err := masterKey.Stretch()
	if err != nil {
		return "", newError(CodeCrypto, "stretch master key", err)
	}
	defer stretched.Destroy()

	userKey, err := stretched.DecryptKey(resp.Key)
	if err != nil {
		return "", newError(CodeCrypto, "decrypt user key", err)
	}
	defer userKey.Destroy()

	// Nothing is persisted yet, so the profile fetch uses the fresh
	// bearer token directly instead of going through the token manager.
	profile, err := o.identity.Profile(ctx, resp.AccessToken)
	if err != nil {
		return "", newError(CodeAPI, "fetch profile", err)
	}

	sessionKey, err := crypto.GenerateSessionKey()
	if err != nil {
		return "", newError(CodeCrypto, "generate session key", err)
	}
	defer sessionKey.Destroy()

	if err := o.persistLogin(profile, resp, cfg, userKey, sessionKey); err != nil {
		return "", err
	}
	o.retainUserKey(userKey)

	o.log.Info("logged in", zap.String("accountId", profile.ID))
	return sessionKey.ToBase64(), nil
}

// passwordGrant performs the token grant with the built-in single retries
// for new-device verification and, by the same shape, two-factor prompts.
func (o *Orchestrator) passwordGrant(ctx context.Context, req identity.PasswordTokenRequest) (*identity.TokenResponse, error) {
	resp, err := o.identity.TokenPassword(ctx, req)
	if err == nil {
		return resp, nil
	}

	if errors.Is(err, identity.ErrNewDeviceVerification) && o.NewDeviceOTPPrompt != nil {
		otp, perr := o.NewDeviceOTPPrompt()
		if perr != nil {
			return nil, newError(CodeNewDeviceVerification, "new device verification required", perr)
		}
		req.NewDeviceOTP = otp
		if resp, err = o.identity.TokenPassword(ctx, req); err == nil {
			return resp, nil
		}
	}

	var twoFactor *identity.TwoFactorRequiredError
	if errors.As(err, &twoFactor) {
		if o.TwoFactorPrompt == nil {
			return nil, newError(CodeTwoFactorRequired, "two-factor authentication required", err)
		}
		answer, perr := o.TwoFactorPrompt(twoFactor.Providers)
		if perr != nil {
			return nil, newError(CodeTwoFactorRequired, "two-factor authentication required", perr)
		}
		req.TwoFactor = answer
		resp, err = o.identity.TokenPassword(ctx, req)
		if err == nil {
			return resp, nil
		}
		if errors.As(err, &twoFactor) || errors.Is(err, identity.ErrInvalidCredentials) {
			return nil, newError(CodeTwoFactorInvalid, "two-step token rejected", err)
		}
	}

	return nil, classifyGrantError(err)
}

func classifyGrantError(err error) error {
	switch {
	case errors.Is(err, identity.ErrInvalidCredentials):
		return newError(CodeInvalidCredentials, "username or password is incorrect", err)
	case errors.Is(err, identity.ErrNewDeviceVerification):
		return newError(CodeNewDeviceVerification, "new device verification required", err)
	default:
		var twoFactor *identity.TwoFactorRequiredError
		if errors.As(err, &twoFactor) {
			return newError(CodeTwoFactorRequired, "two-factor authentication required", err)
		}
		return newError(CodeAPI, "authentication request failed", err)
	}
}

func (o *Orchestrator) persistLogin(profile *identity.Profile, resp *identity.TokenResponse, cfg crypto.KdfConfig, userKey, sessionKey *crypto.SymmetricKey) error {
	if err := o.store.EnsureVersion(); err != nil {
		return newError(CodeStorage, "initialize storage version", err)
	}

	acct := account.Account{
		Email:         profile.Email,
		Name:          profile.Name,
		EmailVerified: profile.EmailVerified,
	}
	if err := o.registry.Upsert(profile.ID, acct); err != nil {
		return newError(CodeStorage, "persist account", err)
	}
	if err := o.registry.SetActive(profile.ID); err != nil {
		return newError(CodeStorage, "set active account", err)
	}
	if err := o.tokens.Set(profile.ID, token.Tokens{
		Access:    resp.AccessToken,
		Refresh:   resp.RefreshToken,
		ExpiresAt: o.now().Unix() + resp.ExpiresIn,
	}); err != nil {
		return newError(CodeStorage, "persist tokens", err)
	}
	if resp.Key != "" {
		if err := o.store.Set(storage.KeyUserKeyEncrypted.Format(profile.ID), resp.Key); err != nil {
			return newError(CodeStorage, "persist encrypted user key", err)
		}
	}
	if err := o.store.Set(storage.KeyKdfConfig.Format(profile.ID), cfg); err != nil {
		return newError(CodeStorage, "persist kdf configuration", err)
	}
	if userKey != nil {
		if err := o.session.StoreUserKey(profile.ID, userKey, sessionKey); err != nil {
			return newError(CodeStorage, "persist session state", err)
		}
	}
	return nil
}

// LoginAPIKey authenticates with a client-credentials grant. There is no
// KDF and no user key; only tokens and identity are persisted. A session
// key is still generated for later use.
func (o *Orchestrator) LoginAPIKey(ctx context.Context, clientID, clientSecret string) (string, error) {
	resp, err := o.identity.TokenClientCredentials(ctx, clientID, clientSecret)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) {
			return "", newError(CodeInvalidCredentials, "client id or secret is incorrect", err)
		}
		return "", newError(CodeAPI, "authentication request failed", err)
	}

	profile, err := o.identity.Profile(ctx, resp.AccessToken)
	if err != nil {
		return "", newError(CodeAPI, "fetch profile", err)
	}

	sessionKey, err := crypto.GenerateSessionKey()
	if err != nil {
		return "", newError(CodeCrypto, "generate session key", err)
	}
	defer sessionKey.Destroy()

	if err := o.persistLogin(profile, resp, crypto.KdfConfig{Type: crypto.KdfPBKDF2SHA256, Iterations: crypto.DefaultPBKDF2Iterations}, nil, nil); err != nil {
		return "", err
	}

	o.log.Info("logged in with api key", zap.String("accountId", profile.ID))
	return sessionKey.ToBase64(), nil
}

// Unlock re-derives the master key from the supplied password and opens
// the persisted user-key envelope. A decryption failure is the password-
// correctness check. Success always yields a brand-new session key.
func (o *Orchestrator) Unlock(ctx context.Context, password []byte) (string, error) {
	id, acct, err := o.requireActive()
	if err != nil {
		return "", err
	}

	var cfg crypto.KdfConfig
	ok, err := o.store.Get(storage.KeyKdfConfig.Format(id), &cfg)
	if err != nil {
		return "", newError(CodeStorage, "load kdf configuration", err)
	}
	if !ok {
		return "", newError(CodeNotLoggedIn, "no master password credentials for this account", nil)
	}

	var encUserKey string
	ok, err = o.store.Get(storage.KeyUserKeyEncrypted.Format(id), &encUserKey)
	if err != nil {
		return "", newError(CodeStorage, "load encrypted user key", err)
	}
	if !ok || encUserKey == "" {
		return "", newError(CodeNotLoggedIn, "no master password credentials for this account", nil)
	}

	masterKey, err := crypto.DeriveMasterKey(password, acct.Email, cfg)
	if err != nil {
		return "", newError(CodeKDF, "key derivation failed", err)
	}
	defer masterKey.Destroy()

	stretched, err := masterKey.Stretch()
	if err != nil {
		return "", newError(CodeCrypto, "stretch master key", err)
	}
	defer stretched.Destroy()

	userKey, err := stretched.DecryptKey(encUserKey)
	if err != nil {
		return "", newError(CodeInvalidMasterPassword, "invalid master password", err)
	}
	defer userKey.Destroy()

	sessionKey, err := crypto.GenerateSessionKey()
	if err != nil {
		return "", newError(CodeCrypto, "generate session key", err)
	}
	defer sessionKey.Destroy()

	if err := o.session.StoreUserKey(id, userKey, sessionKey); err != nil {
		return "", newError(CodeStorage, "persist session state", err)
	}
	o.retainUserKey(userKey)

	o.log.Info("unlocked", zap.String("accountId", id))
	return sessionKey.ToBase64(), nil
}

// retainUserKey seals a copy of the user key in locked memory so UserKey
// can hand it out for the rest of this process's lifetime.
func (o *Orchestrator) retainUserKey(userKey *crypto.SymmetricKey) {
	cp, err := crypto.NewSymmetricKey(userKey.Bytes())
	if err != nil {
		return
	}
	o.userKey.Destroy()
	o.userKey = crypto.NewSecureKey(cp)
}

// UserKey opens the unlocked user key held by this process. The caller
// must Destroy the returned key. Fails when no login or unlock has
// happened in this process.
func (o *Orchestrator) UserKey() (*crypto.SymmetricKey, error) {
	if o.userKey.IsDestroyed() {
		return nil, newError(CodeNotLoggedIn, "vault is locked", nil)
	}
	key, err := o.userKey.Open()
	if err != nil {
		return nil, newError(CodeCrypto, "open user key", err)
	}
	return key, nil
}

// Lock clears the local session hint. Tokens stay; no server is contacted.
func (o *Orchestrator) Lock() error {
	id, _, err := o.requireActive()
	if err != nil {
		return err
	}
	if err := o.session.Clear(id); err != nil {
		return newError(CodeStorage, "clear session state", err)
	}
	o.userKey.Destroy()
	o.log.Info("locked", zap.String("accountId", id))
	return nil
}

// Logout nulls the account's token fields, clears the active pointer and
// the session hint, and keeps the registry entry for fast re-login.
func (o *Orchestrator) Logout() error {
	id, _, err := o.requireActive()
	if err != nil {
		return err
	}
	if err := o.tokens.Clear(id); err != nil {
		return newError(CodeStorage, "clear tokens", err)
	}
	if err := o.session.Clear(id); err != nil {
		return newError(CodeStorage, "clear session state", err)
	}
	if err := o.registry.ClearActive(); err != nil {
		return newError(CodeStorage, "clear active account", err)
	}
	o.userKey.Destroy()
	o.log.Info("logged out", zap.String("accountId", id))
	return nil
}

// Status derives the local state for the active account: LoggedOut without
// one, Unlocked when the supplied session key opens the session hint,
// Locked otherwise.
func (o *Orchestrator) Status(sessionKeyB64 string) (Status, error) {
	id, _, err := o.requireActive()
	if err != nil {
		if CodeOf(err) == CodeNotLoggedIn {
			return StatusLoggedOut, nil
		}
		return "", err
	}

	if sessionKeyB64 == "" {
		return StatusLocked, nil
	}
	sessionKey, err := crypto.SessionKeyFromBase64(sessionKeyB64)
	if err != nil {
		return StatusLocked, nil
	}
	defer sessionKey.Destroy()

	userKey, ok, err := o.session.LoadUserKey(id, sessionKey)
	if err != nil || !ok {
		return StatusLocked, nil
	}
	userKey.Destroy()
	return StatusUnlocked, nil
}

// AccessToken returns a valid access token for the active account,
// refreshing through the identity service when the persisted one has
// expired. Concurrent refreshes collapse into a single flight.
func (o *Orchestrator) AccessToken(ctx context.Context) (string, error) {
	id, _, err := o.requireActive()
	if err != nil {
		return "", err
	}

	var expiresAt int64
	if _, err := o.store.Get(storage.KeyTokenExpiresAt.Format(id), &expiresAt); err != nil {
		return "", newError(CodeStorage, "read token expiry", err)
	}

	if expiresAt > o.now().Unix() {
		if tok, ok, err := o.tokens.AccessToken(id); err != nil {
			return "", newError(CodeStorage, "read access token", err)
		} else if ok {
			return tok, nil
		}
	}

	tok, err := o.tokens.Refresh(ctx, id, func(ctx context.Context, refresh string) (token.Tokens, error) {
		resp, err := o.identity.TokenRefresh(ctx, refresh)
		if err != nil {
			return token.Tokens{}, err
		}
		return token.Tokens{
			Access:    resp.AccessToken,
			Refresh:   resp.RefreshToken,
			ExpiresAt: o.now().Unix() + resp.ExpiresIn,
		}, nil
	})
	if err != nil {
		if errors.Is(err, token.ErrNotAuthenticated) {
			return "", newError(CodeNotLoggedIn, "session expired", err)
		}
		if errors.Is(err, identity.ErrInvalidCredentials) {
			return "", newError(CodeInvalidCredentials, "refresh token rejected", err)
		}
		return "", newError(CodeAPI, "token refresh failed", err)
	}
	return tok, nil
}

// requireActive resolves the active account or fails with not-logged-in.
func (o *Orchestrator) requireActive() (string, account.Account, error) {
	id, ok, err := o.registry.ActiveID()
	if err != nil {
		return "", account.Account{}, newError(CodeStorage, "read active account", err)
	}
	if !ok {
		return "", account.Account{}, newError(CodeNotLoggedIn, "not logged in", nil)
	}
	acct, ok, err := o.registry.Get(id)
	if err != nil {
		return "", account.Account{}, newError(CodeStorage, "read account", err)
	}
	if !ok {
		return "", account.Account{}, newError(CodeNotLoggedIn, "not logged in", nil)
	}
	return id, acct, nil
}

// deviceInfo loads the stable device identifier, minting and persisting
// one on first use.
func (o *Orchestrator) deviceInfo() (identity.DeviceInfo, error) {
	var id string
	ok, err := o.store.Get(storage.KeyDeviceIdentifier.Format(""), &id)
	if err != nil {
		return identity.DeviceInfo{}, err
	}
	if !ok || id == "" {
		id = uuid.NewString()
		if err := o.store.Set(storage.KeyDeviceIdentifier.Format(""), id); err != nil {
			return identity.DeviceInfo{}, err
		}
	}
	return identity.DeviceInfo{Identifier: id, Name: deviceName, Type: deviceType()}, nil
}

func deviceType() int {
	switch runtime.GOOS {
	case "windows":
		return identity.DeviceTypeWindowsCLI
	case "darwin":
		return identity.DeviceTypeMacOsCLI
	default:
		return identity.DeviceTypeLinuxCLI
	}
}
