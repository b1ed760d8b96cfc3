package syncvault

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"runtime"

	"github.com/tonimelisma/lazuli-sync/internal/atomicfile"
)

// ManifestPath returns the path of the hidden manifest file inside
// vaultRoot.
func ManifestPath(vaultRoot string) string {
	return filepath.Join(vaultRoot, ManifestFileName)
}

// ReadManifest loads the VaultSyncManifest from vaultRoot, if present.
// Returns (nil, nil) if no manifest exists — callers treat that as "not
// connected".
func ReadManifest(vaultRoot string) (*VaultSyncManifest, error) {
	var m VaultSyncManifest

	err := atomicfile.ReadJSON(ManifestPath(vaultRoot), &m)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil //nolint:nilnil // sentinel for "no manifest"
	}

	if err != nil {
		return nil, fmt.Errorf("syncvault: reading manifest: %w", err)
	}

	return &m, nil
}

// WriteManifest writes m to vaultRoot atomically and marks it hidden on
// Windows (a no-op elsewhere).
func WriteManifest(vaultRoot string, m VaultSyncManifest) error {
	path := ManifestPath(vaultRoot)

	if err := atomicfile.WriteJSON(path, m); err != nil {
		return fmt.Errorf("syncvault: writing manifest: %w", err)
	}

	if runtime.GOOS == "windows" {
		hideWindowsFile(path)
	}

	return nil
}

// DeleteManifest removes the manifest file from vaultRoot. Absence is not
// an error.
func DeleteManifest(vaultRoot string) error {
	path := ManifestPath(vaultRoot)

	if err := removeIfExists(path); err != nil {
		return fmt.Errorf("syncvault: deleting manifest: %w", err)
	}

	return nil
}

// VaultConnection summarizes what ReadManifest plus the caller's current
// session tell us about a vault directory's binding.
type VaultConnection struct {
	RemoteVaultID    string
	ServerURL        string
	UserID           string
	IsSameUser       bool
	IsAlreadyEnabled bool
}

// DetectVaultConnection reads the manifest (if any) at vaultRoot and
// reports its binding against the currently logged-in userID and whether
// the store already has an enabled VaultState for it.
func DetectVaultConnection(vaultRoot, currentUserID string, store *StateStore) (*VaultConnection, error) {
	m, err := ReadManifest(vaultRoot)
	if err != nil {
		return nil, err
	}

	if m == nil {
		return nil, nil //nolint:nilnil // no manifest present
	}

	conn := &VaultConnection{
		RemoteVaultID: m.RemoteVaultID,
		ServerURL:     m.ServerURL,
		UserID:        m.UserID,
		IsSameUser:    m.UserID == currentUserID,
	}

	if v, ok := store.GetVault(m.RemoteVaultID); ok {
		conn.IsAlreadyEnabled = v.Enabled
	}

	return conn, nil
}

// AutoReconnectVault enables the vault when a manifest is present and its
// user matches (idempotent), rewriting the manifest only if server_url
// changed. Returns whether a reconnect happened.
func AutoReconnectVault(vaultRoot, currentUserID, currentServerURL string, store *StateStore) (bool, error) {
	m, err := ReadManifest(vaultRoot)
	if err != nil {
		return false, err
	}

	if m == nil || m.UserID != currentUserID {
		return false, nil
	}

	store.Enable(vaultRoot, m.RemoteVaultID)

	if m.ServerURL != currentServerURL {
		m.ServerURL = currentServerURL

		if err := WriteManifest(vaultRoot, *m); err != nil {
			return true, err
		}
	}

	return true, nil
}
