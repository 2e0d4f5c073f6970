package identity

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/keywarden/keywarden/internal/crypto"
)

// roundTripperFunc mocks the http.Client transport.
type roundTripperFunc func(req *http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func newMockedClient(fn roundTripperFunc) *Client {
	httpClient := &http.Client{Transport: fn, Timeout: time.Second}
	return NewClient("http://api.example.com", "http://id.example.com", httpClient, zap.NewNop())
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestPrelogin_MapsConfigAndDefaults(t *testing.T) {
	c := newMockedClient(func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, "http://api.example.com/accounts/prelogin", req.URL.String())
		assert.Equal(t, http.MethodPost, req.Method)
		return jsonResponse(200, `{"kdf":1,"kdfIterations":4,"kdfMemory":0,"kdfParallelism":0}`), nil
	})

	cfg, err := c.Prelogin(context.Background(), "user@example.com")
	require.NoError(t, err)
	assert.Equal(t, crypto.KdfArgon2id, cfg.Type)
	assert.Equal(t, uint32(4), cfg.Iterations)
	// Unset Argon2id parameters fall back to defaults.
	assert.Equal(t, uint32(crypto.DefaultArgon2MemoryMiB), cfg.Memory)
	assert.Equal(t, uint32(crypto.DefaultArgon2Parallelism), cfg.Parallelism)
}

func TestPrelogin_NetworkError(t *testing.T) {
	c := newMockedClient(func(req *http.Request) (*http.Response, error) {
		return nil, errors.New("network down")
	})
	_, err := c.Prelogin(context.Background(), "user@example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "prelogin request")
}

func TestTokenPassword_RequestShape(t *testing.T) {
	c := newMockedClient(func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, "http://id.example.com/connect/token", req.URL.String())
		assert.Equal(t, "application/x-www-form-urlencoded", req.Header.Get("Content-Type"))
		assert.Equal(t,
			base64.RawURLEncoding.EncodeToString([]byte("user@example.com")),
			req.Header.Get("Auth-Email"))
		assert.Equal(t, "25", req.Header.Get("Device-Type"))

		require.NoError(t, req.ParseForm())
		assert.Equal(t, "password", req.PostForm.Get("grant_type"))
		assert.Equal(t, "user@example.com", req.PostForm.Get("username"))
		assert.Equal(t, "hash", req.PostForm.Get("password"))
		assert.Equal(t, "api offline_access", req.PostForm.Get("scope"))
		assert.Equal(t, "cli", req.PostForm.Get("client_id"))
		assert.Equal(t, "dev-id", req.PostForm.Get("deviceIdentifier"))
		assert.Equal(t, "otp123", req.PostForm.Get("newDeviceOtp"))
		assert.Equal(t, "222", req.PostForm.Get("twoFactorToken"))
		assert.Equal(t, "0", req.PostForm.Get("twoFactorProvider"))
		assert.Equal(t, "1", req.PostForm.Get("twoFactorRemember"))

		return jsonResponse(200, `{"access_token":"acc","refresh_token":"ref","expires_in":3600,"Key":"2.a|b|c"}`), nil
	})

	tr, err := c.TokenPassword(context.Background(), PasswordTokenRequest{
		Email:        "user@example.com",
		PasswordHash: "hash",
		Device:       DeviceInfo{Identifier: "dev-id", Name: "host", Type: DeviceTypeLinuxCLI},
		TwoFactor:    &TwoFactor{Token: "222", Provider: 0, Remember: true},
		NewDeviceOTP: "otp123",
	})
	require.NoError(t, err)
	assert.Equal(t, "acc", tr.AccessToken)
	assert.Equal(t, "ref", tr.RefreshToken)
	assert.Equal(t, int64(3600), tr.ExpiresIn)
	assert.Equal(t, "2.a|b|c", tr.Key)
}

func TestToken_ErrorClassification(t *testing.T) {
	cases := map[string]struct {
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		"invalid grant": {
			400, `{"error":"invalid_grant"}`,
			func(t *testing.T, err error) { assert.ErrorIs(t, err, ErrInvalidCredentials) },
		},
		"invalid client": {
			400, `{"error":"invalid_client"}`,
			func(t *testing.T, err error) { assert.ErrorIs(t, err, ErrInvalidCredentials) },
		},
		"two factor required": {
			400, `{"error":"invalid_grant","TwoFactorProviders2":{"0":{},"1":{}}}`,
			func(t *testing.T, err error) {
				var tf *TwoFactorRequiredError
				require.ErrorAs(t, err, &tf)
				assert.Len(t, tf.Providers, 2)
			},
		},
		"new device by description": {
			400, `{"error":"invalid_grant","error_description":"new_device_verification_required"}`,
			func(t *testing.T, err error) { assert.ErrorIs(t, err, ErrNewDeviceVerification) },
		},
		"new device by message": {
			400, `{"ErrorModel":{"Message":"New device verification required, check your email"}}`,
			func(t *testing.T, err error) { assert.ErrorIs(t, err, ErrNewDeviceVerification) },
		},
		"other api error": {
			500, `{"ErrorModel":{"Message":"boom"}}`,
			func(t *testing.T, err error) {
				var apiErr *APIError
				require.ErrorAs(t, err, &apiErr)
				assert.Equal(t, 500, apiErr.Status)
				assert.Contains(t, apiErr.Error(), "boom")
			},
		},
		"non-json error": {
			502, `bad gateway`,
			func(t *testing.T, err error) {
				var apiErr *APIError
				require.ErrorAs(t, err, &apiErr)
				assert.Equal(t, 502, apiErr.Status)
			},
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			c := newMockedClient(func(req *http.Request) (*http.Response, error) {
				return jsonResponse(tc.status, tc.body), nil
			})
			_, err := c.TokenRefresh(context.Background(), "ref")
			require.Error(t, err)
			tc.check(t, err)
		})
	}
}

func TestProfile(t *testing.T) {
	c := newMockedClient(func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, "http://api.example.com/accounts/profile", req.URL.String())
		assert.Equal(t, "Bearer acc", req.Header.Get("Authorization"))
		return jsonResponse(200, `{"id":"u1","email":"user@example.com","name":"User","emailVerified":true}`), nil
	})

	p, err := c.Profile(context.Background(), "acc")
	require.NoError(t, err)
	assert.Equal(t, &Profile{ID: "u1", Email: "user@example.com", Name: "User", EmailVerified: true}, p)
}

func TestProfile_Unauthorized(t *testing.T) {
	c := newMockedClient(func(req *http.Request) (*http.Response, error) {
		return jsonResponse(401, `unauthorized`), nil
	})
	_, err := c.Profile(context.Background(), "stale")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 401, apiErr.Status)
}
