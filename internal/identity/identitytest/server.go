// Package identitytest provides an in-process fake of the identity service
// for tests: the prelogin, token, and profile endpoints with configurable
// accounts, two-factor and new-device behavior.
package identitytest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/keywarden/keywarden/internal/crypto"
)

// Account configures one fake user.
type Account struct {
	Email         string
	PasswordHash  string // expected "password" form value
	Kdf           crypto.KdfConfig
	UserKey       string // envelope returned in the token response
	ProfileID     string
	Name          string
	EmailVerified bool

	// TwoFactorToken, when set, must be supplied as twoFactorToken before
	// the grant succeeds.
	TwoFactorToken string
	// NewDeviceOTP, when set, must be supplied as newDeviceOtp before the
	// grant succeeds.
	NewDeviceOTP string
}

// Server is the fake identity service. The zero counters and issued tokens
// are exported so tests can assert call shapes.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	accounts map[string]*Account

	// APIClientID/APIClientSecret enable the client_credentials grant.
	APIClientID     string
	APIClientSecret string
	APIProfile      Account

	// Issued tokens, rotated on refresh.
	AccessToken  string
	RefreshToken string

	PreloginCalls int
	TokenCalls    int
	ProfileCalls  int

	// LastTokenForm captures the most recent token-endpoint form values.
	LastTokenForm map[string][]string
	// LastAuthEmail captures the Auth-Email header of the last password grant.
	LastAuthEmail string
}

// New starts the fake service. The caller owns shutdown via Close.
func New() *Server {
	s := &Server{
		accounts:     make(map[string]*Account),
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
	}

	r := chi.NewRouter()
	r.Post("/accounts/prelogin", s.prelogin)
	r.Post("/connect/token", s.token)
	r.Get("/accounts/profile", s.profile)

	s.Server = httptest.NewServer(r)
	return s
}

// AddAccount registers a fake user.
func (s *Server) AddAccount(a *Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[strings.ToLower(a.Email)] = a
}

func (s *Server) prelogin(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.PreloginCalls++

	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	// Unknown identifiers get defaults, the same as the real service, so
	// accounts cannot be enumerated through prelogin.
	cfg := crypto.DefaultPBKDF2Config()
	if a, ok := s.accounts[strings.ToLower(req.Email)]; ok {
		cfg = a.Kdf
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"kdf":            int(cfg.Type),
		"kdfIterations":  cfg.Iterations,
		"kdfMemory":      cfg.Memory,
		"kdfParallelism": cfg.Parallelism,
	})
}

func (s *Server) token(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.TokenCalls++

	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	s.LastTokenForm = r.PostForm

	switch r.PostForm.Get("grant_type") {
	case "password":
		s.LastAuthEmail = r.Header.Get("Auth-Email")
		s.passwordGrant(w, r)
	case "client_credentials":
		s.clientCredentialsGrant(w, r)
	case "refresh_token":
		s.refreshGrant(w, r)
	default:
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "unsupported_grant_type"})
	}
}

func (s *Server) passwordGrant(w http.ResponseWriter, r *http.Request) {
	a, ok := s.accounts[strings.ToLower(r.PostForm.Get("username"))]
	if !ok || r.PostForm.Get("password") != a.PasswordHash {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid_grant"})
		return
	}

	if a.TwoFactorToken != "" {
		sent := r.PostForm.Get("twoFactorToken")
		if sent == "" {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":               "invalid_grant",
				"TwoFactorProviders2": map[string]any{"0": map[string]any{}},
			})
			return
		}
		if sent != a.TwoFactorToken {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid_grant"})
			return
		}
	}

	if a.NewDeviceOTP != "" {
		sent := r.PostForm.Get("newDeviceOtp")
		if sent == "" {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":             "invalid_grant",
				"error_description": "new_device_verification_required",
			})
			return
		}
		if sent != a.NewDeviceOTP {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid_grant"})
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"access_token":  s.AccessToken,
		"refresh_token": s.RefreshToken,
		"expires_in":    3600,
		"Key":           a.UserKey,
	})
}

func (s *Server) clientCredentialsGrant(w http.ResponseWriter, r *http.Request) {
	if s.APIClientID == "" ||
		r.PostForm.Get("client_id") != s.APIClientID ||
		r.PostForm.Get("client_secret") != s.APIClientSecret {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid_client"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": s.AccessToken,
		"expires_in":   3600,
	})
}

func (s *Server) refreshGrant(w http.ResponseWriter, r *http.Request) {
	if r.PostForm.Get("refresh_token") != s.RefreshToken {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid_grant"})
		return
	}
	// Rotate both tokens on every successful refresh.
	s.AccessToken = fmt.Sprintf("%s+", s.AccessToken)
	s.RefreshToken = fmt.Sprintf("%s+", s.RefreshToken)
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token":  s.AccessToken,
		"refresh_token": s.RefreshToken,
		"expires_in":    3600,
	})
}

func (s *Server) profile(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ProfileCalls++

	auth := r.Header.Get("Authorization")
	if auth != "Bearer "+s.AccessToken {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	p := s.APIProfile
	for _, a := range s.accounts {
		p = *a
		break
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":            p.ProfileID,
		"email":         p.Email,
		"name":          p.Name,
		"emailVerified": p.EmailVerified,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
