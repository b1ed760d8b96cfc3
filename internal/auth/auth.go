// Package auth manages the client session: in-memory session state behind
// a reader-writer lock, password-based registration/login material
// preparation, token-refresh timing, and encrypted on-disk session
// persistence.
package auth

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/tonimelisma/lazuli-sync/internal/atomicfile"
	"github.com/tonimelisma/lazuli-sync/internal/client"
	"github.com/tonimelisma/lazuli-sync/internal/cryptoutil"
)

// refreshSkew is how far ahead of expiry a token is considered stale
// (now + refreshSkew >= expires_at).
const refreshSkew = 300 * time.Second

// AuthState is the in-memory session. AccessToken and
// EncryptionKey never leave the process; a scrubbed variant is what gets
// persisted to disk.
type AuthState struct {
	User           User
	DeviceID       string
	ServerURL      string
	AccessToken    string
	RefreshToken   string
	TokenExpiresAt time.Time

	// EncryptionKey is set only on the full registration/login path
	// (PrepareRegistration/PrepareLogin); the active simplified flow
	// (SetAuthStateSimple) leaves it nil.
	EncryptionKey []byte

	// Email and Salt are retained for session persistence; Salt is the
	// base64 form returned by the server/prepare functions.
	Email string
	Salt  string
}

// User mirrors client.User without importing the client package, keeping
// auth a leaf package the same way client is.
type User struct {
	ID                string
	Email             string
	EmailVerified     bool
	SubscriptionTier  string
	StorageQuotaBytes int64
	StorageUsedBytes  int64
}

// RegistrationMaterial is returned by PrepareRegistration: what to send to
// the server plus what to retain locally.
type RegistrationMaterial struct {
	Email         string
	SaltB64       string
	AuthHash      string
	EncryptionKey []byte
}

// LoginMaterial is returned by PrepareLogin.
type LoginMaterial struct {
	AuthHash      string
	EncryptionKey []byte
}

// sessionFile is the on-disk shape of auth.json: email, salt, device_id,
// server_url, and the sealed refresh token (nonce||ciphertext).
type sessionFile struct {
	Email                 string `json:"email"`
	Salt                  string `json:"salt"`
	DeviceID              string `json:"device_id"`
	ServerURL             string `json:"server_url"`
	EncryptedRefreshToken string `json:"encrypted_refresh_token"`
}

// AuthManager holds the current session and mediates access to it. One
// instance is shared across all tasks; token refresh is exclusive.
type AuthManager struct {
	mu          sync.RWMutex
	state       *AuthState
	sessionPath string
	logger      *slog.Logger
}

// New constructs an AuthManager persisting sessions at sessionPath
// (typically <app_data>/auth.json). A nil logger discards output.
func New(sessionPath string, logger *slog.Logger) *AuthManager {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &AuthManager{sessionPath: sessionPath, logger: logger}
}

// PrepareRegistration derives the material to send to /auth/register and
// the encryption key to retain: an Argon2id master key, HKDF-split
// auth/encryption keys, and a second fixed-salt Argon2id pass producing
// the auth hash.
func (m *AuthManager) PrepareRegistration(email, password string) (*RegistrationMaterial, error) {
	salt, err := cryptoutil.NewSalt()
	if err != nil {
		return nil, fmt.Errorf("auth: generating salt: %w", err)
	}

	authHash, encryptionKey, err := cryptoutil.EncryptionKeyFromPassword(password, salt)
	if err != nil {
		return nil, fmt.Errorf("auth: deriving registration material: %w", err)
	}

	return &RegistrationMaterial{
		Email:         email,
		SaltB64:       base64.StdEncoding.EncodeToString(salt),
		AuthHash:      authHash,
		EncryptionKey: encryptionKey,
	}, nil
}

// PrepareLogin is symmetric to PrepareRegistration, using a salt fetched
// from the server (GET /auth/salt) instead of generating a new one.
func (m *AuthManager) PrepareLogin(password, saltB64 string) (*LoginMaterial, error) {
	salt, err := base64.StdEncoding.DecodeString(saltB64)
	if err != nil {
		return nil, fmt.Errorf("auth: decoding salt: %w", err)
	}

	authHash, encryptionKey, err := cryptoutil.EncryptionKeyFromPassword(password, salt)
	if err != nil {
		return nil, fmt.Errorf("auth: deriving login material: %w", err)
	}

	return &LoginMaterial{AuthHash: authHash, EncryptionKey: encryptionKey}, nil
}

// SetAuthStateSimple installs a session without an encryption key: the
// active, server-authenticated plaintext flow. Sessions
// set this way are not persisted to disk, since persistence requires an
// encryption key to wrap the refresh token.
func (m *AuthManager) SetAuthStateSimple(user User, deviceID, serverURL, accessToken, refreshToken string, expiresIn int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state = &AuthState{
		User:           user,
		DeviceID:       deviceID,
		ServerURL:      serverURL,
		AccessToken:    accessToken,
		RefreshToken:   refreshToken,
		TokenExpiresAt: time.Now().Add(time.Duration(expiresIn) * time.Second),
	}
}

// SetAuthState installs a full session with an encryption key, email, and
// salt, enabling Persist to write an encrypted session file.
func (m *AuthManager) SetAuthState(user User, deviceID, serverURL, accessToken, refreshToken string, expiresIn int64, email, saltB64 string, encryptionKey []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state = &AuthState{
		User:           user,
		DeviceID:       deviceID,
		ServerURL:      serverURL,
		AccessToken:    accessToken,
		RefreshToken:   refreshToken,
		TokenExpiresAt: time.Now().Add(time.Duration(expiresIn) * time.Second),
		Email:          email,
		Salt:           saltB64,
		EncryptionKey:  encryptionKey,
	}
}

// ApplyRefresh updates the access/refresh tokens after a successful
// /auth/refresh call, leaving the rest of the session untouched.
func (m *AuthManager) ApplyRefresh(accessToken, refreshToken string, expiresIn int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == nil {
		return
	}

	m.state.AccessToken = accessToken
	m.state.RefreshToken = refreshToken
	m.state.TokenExpiresAt = time.Now().Add(time.Duration(expiresIn) * time.Second)
}

// Clear drops the in-memory session, e.g. on logout. The vault-key cache
// (held by callers, not here) must be dropped alongside it.
func (m *AuthManager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state = nil
}

// AccessToken implements client.TokenSource, letting an AuthManager be
// passed directly as a Client's token source.
func (m *AuthManager) AccessToken() (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.state == nil {
		return "", fmt.Errorf("auth: no active session")
	}

	return m.state.AccessToken, nil
}

// State returns a copy of the current session, or nil if unauthenticated.
func (m *AuthManager) State() *AuthState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.state == nil {
		return nil
	}

	cp := *m.state

	return &cp
}

// NeedsTokenRefresh reports whether the access token is within
// refreshSkew of expiry.
func (m *AuthManager) NeedsTokenRefresh() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.state == nil {
		return false
	}

	return !time.Now().Add(refreshSkew).Before(m.state.TokenExpiresAt)
}

// Persist writes the scrubbed session to sessionPath, encrypting the
// refresh token under the session's EncryptionKey. A session set via
// SetAuthStateSimple has no encryption key and is silently not persisted.
func (m *AuthManager) Persist() error {
	m.mu.RLock()
	state := m.state
	m.mu.RUnlock()

	if state == nil {
		return fmt.Errorf("auth: no active session to persist")
	}

	if len(state.EncryptionKey) == 0 {
		m.logger.Debug("auth: skipping session persistence, no encryption key (simplified flow)")
		return nil
	}

	sealed, err := cryptoutil.Seal(state.EncryptionKey, []byte(state.RefreshToken), []byte(state.DeviceID))
	if err != nil {
		return fmt.Errorf("auth: sealing refresh token: %w", err)
	}

	file := sessionFile{
		Email:                 state.Email,
		Salt:                  state.Salt,
		DeviceID:              state.DeviceID,
		ServerURL:             state.ServerURL,
		EncryptedRefreshToken: base64.StdEncoding.EncodeToString(sealed),
	}

	if err := atomicfile.WriteJSON(m.sessionPath, file); err != nil {
		return fmt.Errorf("auth: writing session file: %w", err)
	}

	return nil
}

// Refresher performs a token refresh given a refresh token. Implemented by
// *client.Client.
type Refresher interface {
	RefreshToken(ctx context.Context, refreshToken string) (*client.TokenRefreshResponse, error)
}

// Restore reads the session file, decrypts the refresh token with
// encryptionKey (re-derived from the user's password at startup, since the
// key itself is never stored), and calls refresh to obtain a fresh access
// token. On failure the session file is deleted.
func (m *AuthManager) Restore(ctx context.Context, encryptionKey []byte, refresher Refresher) error {
	var file sessionFile
	if err := atomicfile.ReadJSON(m.sessionPath, &file); err != nil {
		return fmt.Errorf("auth: reading session file: %w", err)
	}

	sealed, err := base64.StdEncoding.DecodeString(file.EncryptedRefreshToken)
	if err != nil {
		m.clearSessionFile()
		return fmt.Errorf("auth: decoding encrypted refresh token: %w", err)
	}

	refreshToken, err := cryptoutil.Open(encryptionKey, sealed, []byte(file.DeviceID))
	if err != nil {
		m.clearSessionFile()
		return fmt.Errorf("auth: decrypting refresh token: %w", err)
	}

	refreshed, err := refresher.RefreshToken(ctx, string(refreshToken))
	if err != nil {
		m.clearSessionFile()
		return fmt.Errorf("auth: refreshing restored session: %w", err)
	}

	m.SetAuthState(User{Email: file.Email}, file.DeviceID, file.ServerURL, refreshed.AccessToken, refreshed.RefreshToken, refreshed.ExpiresIn, file.Email, file.Salt, encryptionKey)

	return nil
}

// PeekSession reads the persisted session file's email and salt without
// decrypting the refresh token, letting a caller prompt for the password
// needed to derive the encryption key before calling Restore.
func (m *AuthManager) PeekSession() (email, saltB64 string, err error) {
	var file sessionFile
	if err := atomicfile.ReadJSON(m.sessionPath, &file); err != nil {
		return "", "", fmt.Errorf("auth: reading session file: %w", err)
	}

	return file.Email, file.Salt, nil
}

func (m *AuthManager) clearSessionFile() {
	if err := atomicfile.Remove(m.sessionPath); err != nil {
		m.logger.Warn("auth: failed to clear invalid session file", "error", err)
	}
}
