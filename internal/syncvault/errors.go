package syncvault

import "errors"

// Domain error sentinels. Callers wrap these with fmt.Errorf("...: %w", ...)
// to attach context; check with errors.Is. Transport-level kinds (session
// expiry, rate limiting, server and network failures) live in
// internal/client.
var (
	ErrVaultNotFound = errors.New("syncvault: vault not found")
	ErrFileNotFound  = errors.New("syncvault: file not found")

	ErrConflict = errors.New("syncvault: server rejected push: version conflict")

	ErrInvalidState = errors.New("syncvault: invalid state")
	ErrInvalidData  = errors.New("syncvault: invalid data")
)
