// Package identity is the client for the external identity service: the
// unauthenticated prelogin endpoint, the OAuth2 token endpoint, and the
// authenticated profile endpoint. It is the only component that talks to
// the network.
package identity

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/keywarden/keywarden/internal/crypto"
)

const (
	preloginPath = "/accounts/prelogin"
	tokenPath    = "/connect/token"
	profilePath  = "/accounts/profile"

	clientID   = "cli"
	tokenScope = "api offline_access"

	// Network calls rely on these timeouts as the practical cancellation
	// mechanism; there is no separate cancellation plumbing.
	requestTimeout = 60 * time.Second
	connectTimeout = 30 * time.Second
)

// Identity errors surfaced to the orchestrator.
var (
	// ErrInvalidCredentials indicates the grant was rejected outright.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrNewDeviceVerification indicates the server wants the emailed
	// one-time code for this device. Recoverable: retry the grant once
	// with the code included.
	ErrNewDeviceVerification = errors.New("new device verification required")
)

// TwoFactorRequiredError indicates the grant needs a second factor. The
// available providers are carried along for the prompt.
type TwoFactorRequiredError struct {
	Providers []string
}

func (e *TwoFactorRequiredError) Error() string {
	return "two-factor authentication required"
}

// APIError is any other non-success answer from the service.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("identity service returned status %d", e.Status)
	}
	return fmt.Sprintf("identity service returned status %d: %s", e.Status, e.Message)
}

// Client talks to one API host and one identity host, which may be the
// same.
type Client struct {
	apiURL      string
	identityURL string
	http        *http.Client
	log         *zap.Logger
}

// NewClient builds a client for the given base URLs. A nil httpClient gets
// the default timeouts.
func NewClient(apiURL, identityURL string, httpClient *http.Client, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: requestTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: connectTimeout}).DialContext,
			},
		}
	}
	return &Client{
		apiURL:      strings.TrimRight(apiURL, "/"),
		identityURL: strings.TrimRight(identityURL, "/"),
		http:        httpClient,
		log:         log,
	}
}

// Prelogin fetches the KDF configuration for the identifier. It requires
// no authentication.
func (c *Client) Prelogin(ctx context.Context, email string) (crypto.KdfConfig, error) {
	body, err := json.Marshal(preloginRequest{Email: email})
	if err != nil {
		return crypto.KdfConfig{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+preloginPath, bytes.NewReader(body))
	if err != nil {
		return crypto.KdfConfig{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return crypto.KdfConfig{}, fmt.Errorf("prelogin request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return crypto.KdfConfig{}, readAPIError(resp)
	}

	var pr preloginResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return crypto.KdfConfig{}, fmt.Errorf("prelogin: invalid response: %w", err)
	}
	return pr.toConfig(), nil
}

// TokenPassword performs the OAuth2 password grant.
func (c *Client) TokenPassword(ctx context.Context, r PasswordTokenRequest) (*TokenResponse, error) {
	form := url.Values{
		"grant_type":       {"password"},
		"username":         {r.Email},
		"password":         {r.PasswordHash},
		"scope":            {tokenScope},
		"client_id":        {clientID},
		"deviceType":       {strconv.Itoa(r.Device.Type)},
		"deviceIdentifier": {r.Device.Identifier},
		"deviceName":       {r.Device.Name},
	}
	if r.TwoFactor != nil {
		form.Set("twoFactorToken", r.TwoFactor.Token)
		form.Set("twoFactorProvider", strconv.Itoa(r.TwoFactor.Provider))
		if r.TwoFactor.Remember {
			form.Set("twoFactorRemember", "1")
		} else {
			form.Set("twoFactorRemember", "0")
		}
	}
	if r.NewDeviceOTP != "" {
		form.Set("newDeviceOtp", r.NewDeviceOTP)
	}

	headers := map[string]string{
		// Side-channel identifier for log correlation on the server.
		"Auth-Email":  base64.RawURLEncoding.EncodeToString([]byte(r.Email)),
		"Device-Type": strconv.Itoa(r.Device.Type),
	}
	return c.token(ctx, form, headers)
}

// TokenClientCredentials performs the OAuth2 client_credentials grant used
// by API-key login.
func (c *Client) TokenClientCredentials(ctx context.Context, apiClientID, clientSecret string) (*TokenResponse, error) {
	form := url.Values{
		"grant_type":    {"client_credentials"},
		"scope":         {"api"},
		"client_id":     {apiClientID},
		"client_secret": {clientSecret},
	}
	return c.token(ctx, form, nil)
}

// TokenRefresh exchanges a refresh token for a fresh token pair.
func (c *Client) TokenRefresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"client_id":     {clientID},
		"refresh_token": {refreshToken},
	}
	return c.token(ctx, form, nil)
}

// Profile fetches the identity fields with a bare bearer token. Used right
// after login, before anything is persisted, so it bypasses the token
// manager on purpose.
func (c *Client) Profile(ctx context.Context, accessToken string) (*Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+profilePath, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("profile request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, readAPIError(resp)
	}

	var p Profile
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, fmt.Errorf("profile: invalid response: %w", err)
	}
	return &p, nil
}

func (c *Client) token(ctx context.Context, form url.Values, headers map[string]string) (*TokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.identityURL+tokenPath, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		var tr TokenResponse
		if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
			return nil, fmt.Errorf("token: invalid response: %w", err)
		}
		return &tr, nil
	}
	return nil, decodeTokenError(resp)
}

// decodeTokenError classifies a token-endpoint failure into the typed
// signals the orchestrator reacts to.
func decodeTokenError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	var te tokenErrorResponse
	if err := json.Unmarshal(body, &te); err != nil {
		return &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}

	if len(te.TwoFactorProviders2) > 0 {
		providers := make([]string, 0, len(te.TwoFactorProviders2))
		for p := range te.TwoFactorProviders2 {
			providers = append(providers, p)
		}
		return &TwoFactorRequiredError{Providers: providers}
	}

	msg := strings.ToLower(te.ErrorModel.Message)
	if te.ErrorDescription == "new_device_verification_required" ||
		strings.Contains(msg, "new device verification") {
		return ErrNewDeviceVerification
	}

	if te.Error == "invalid_grant" || te.Error == "invalid_client" {
		return ErrInvalidCredentials
	}

	return &APIError{Status: resp.StatusCode, Message: te.ErrorModel.Message}
}

func readAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	return &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(body))}
}
