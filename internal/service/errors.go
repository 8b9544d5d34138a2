package service

import "errors"

var (
	// ErrInvalidLink deliberately covers every verification/reset failure:
	// bad carrier, unknown user, wrong purpose, stale fingerprint, expiry,
	// lost activation race. Callers cannot distinguish why a link failed.
	ErrInvalidLink = errors.New("invalid link")

	ErrEmailTaken    = errors.New("email already registered")
	ErrUsernameTaken = errors.New("username already taken")
	ErrWeakPassword  = errors.New("password does not meet policy requirements")

	// ErrInvalidInput marks caller-correctable validation failures. Handlers
	// match it to return 400; anything not wrapping it is an internal fault
	// and must not reach the response body.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnknownEmail is surfaced by the reset-request flow. The original
	// product reveals account existence here; preserved on purpose, see
	// DESIGN.md.
	ErrUnknownEmail = errors.New("user with given email does not exist")

	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInactiveAccount    = errors.New("account is not active")
)
