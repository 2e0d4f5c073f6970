package auth

import (
	"errors"
	"fmt"
)

// Code classifies an authentication failure.
type Code int

const (
	// CodeInvalidCredentials: the server rejected the grant outright.
	CodeInvalidCredentials Code = iota + 1
	// CodeTwoFactorRequired: the grant needs a second factor.
	CodeTwoFactorRequired
	// CodeTwoFactorInvalid: the supplied second factor was rejected.
	CodeTwoFactorInvalid
	// CodeNewDeviceVerification: the server wants the emailed device code.
	CodeNewDeviceVerification
	// CodeNotLoggedIn: the operation needs an active, logged-in account.
	CodeNotLoggedIn
	// CodeInvalidMasterPassword: the supplied master password is wrong.
	CodeInvalidMasterPassword
	// CodeKDF: key derivation failed or the parameters are unusable.
	CodeKDF
	// CodeCrypto: a cryptographic operation failed.
	CodeCrypto
	// CodeStorage: a local read or write failed.
	CodeStorage
	// CodeAPI: a server request failed.
	CodeAPI
	// CodeInternal: catch-all.
	CodeInternal
)

// hints maps each code to a remediation hint, kept independent of whatever
// message the underlying error carries.
var hints = map[Code]string{
	CodeInvalidCredentials:    "Check your email address and master password, then try again.",
	CodeTwoFactorRequired:     "Provide your two-step login token and try again.",
	CodeTwoFactorInvalid:      "The two-step token was rejected. Request a fresh one and try again.",
	CodeNewDeviceVerification: "Check your email for the new-device verification code.",
	CodeNotLoggedIn:           "You are not logged in. Run the login command first.",
	CodeInvalidMasterPassword: "Invalid master password. Try again.",
	CodeKDF:                   "The key-derivation parameters are unusable. Log in again to refresh them.",
	CodeCrypto:                "A cryptographic operation failed. Your local data may be corrupt; logging in again rebuilds it.",
	CodeStorage:               "Could not read or write local data. Check permissions on the storage directory.",
	CodeAPI:                   "The server request failed. Check your network and server configuration.",
	CodeInternal:              "An unexpected error occurred.",
}

// Error is an authentication failure with a user-facing message and a
// remediation hint. Machine detail stays reachable through Unwrap.
type Error struct {
	Code    Code
	Message string
	Hint    string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is match two auth errors by code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func newError(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Hint: hints[code], Err: err}
}

// CodeOf extracts the failure code, or CodeInternal for foreign errors.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}
