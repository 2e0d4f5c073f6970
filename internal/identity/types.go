package identity

import "github.com/keywarden/keywarden/internal/crypto"

// Device type codes reported to the identity service, one per host OS the
// CLI runs on.
const (
	DeviceTypeWindowsCLI = 23
	DeviceTypeMacOsCLI   = 24
	DeviceTypeLinuxCLI   = 25
)

// DeviceInfo identifies the client installation to the identity service.
type DeviceInfo struct {
	// Identifier is a stable UUID for this installation.
	Identifier string
	// Name is a human-readable device name.
	Name string
	// Type is one of the DeviceType codes above.
	Type int
}

// TwoFactor carries a second-factor answer for a password grant.
type TwoFactor struct {
	// Token is the one-time code or recovery token.
	Token string
	// Provider is the numeric provider selector (authenticator, email, ...).
	Provider int
	// Remember asks the server to issue a remember token.
	Remember bool
}

// PasswordTokenRequest is the input to the OAuth2 password grant.
type PasswordTokenRequest struct {
	Email        string
	PasswordHash string
	Device       DeviceInfo
	TwoFactor    *TwoFactor
	// NewDeviceOTP is the emailed one-time code for new-device
	// verification, set only on the single built-in retry.
	NewDeviceOTP string
}

// TokenResponse is the successful answer of the token endpoint.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	// Key is the user key, wrapped by the stretched master key. Empty for
	// client-credential grants.
	Key string `json:"Key"`
}

// Profile is the identity payload returned by the profile endpoint.
type Profile struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	Name          string `json:"name"`
	EmailVerified bool   `json:"emailVerified"`
}

// preloginRequest/preloginResponse are the wire shapes of the prelogin
// endpoint.
type preloginRequest struct {
	Email string `json:"email"`
}

type preloginResponse struct {
	Kdf            int    `json:"kdf"`
	KdfIterations  uint32 `json:"kdfIterations"`
	KdfMemory      uint32 `json:"kdfMemory"`
	KdfParallelism uint32 `json:"kdfParallelism"`
}

func (r preloginResponse) toConfig() crypto.KdfConfig {
	cfg := crypto.KdfConfig{
		Type:        crypto.KdfType(r.Kdf),
		Iterations:  r.KdfIterations,
		Memory:      r.KdfMemory,
		Parallelism: r.KdfParallelism,
	}
	// Per-type defaults apply to whatever the server left unset.
	switch cfg.Type {
	case crypto.KdfPBKDF2SHA256:
		if cfg.Iterations == 0 {
			cfg.Iterations = crypto.DefaultPBKDF2Iterations
		}
	case crypto.KdfArgon2id:
		if cfg.Iterations == 0 {
			cfg.Iterations = crypto.DefaultArgon2Iterations
		}
		if cfg.Memory == 0 {
			cfg.Memory = crypto.DefaultArgon2MemoryMiB
		}
		if cfg.Parallelism == 0 {
			cfg.Parallelism = crypto.DefaultArgon2Parallelism
		}
	}
	return cfg
}

// tokenErrorResponse is the error body of the token endpoint.
type tokenErrorResponse struct {
	Error               string         `json:"error"`
	ErrorDescription    string         `json:"error_description"`
	TwoFactorProviders2 map[string]any `json:"TwoFactorProviders2"`
	ErrorModel          struct {
		Message string `json:"Message"`
	} `json:"ErrorModel"`
}
