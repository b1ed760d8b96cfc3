package syncvault

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tonimelisma/lazuli-sync/internal/atomicfile"
)

// StateStore is the durable, process-local, JSON-on-disk sync-state
// store. It is indexed by vault_id as the primary key,
// with a side map from local path to vault_id for path-based lookups.
// Every mutation marks a dirty flag and immediately rewrites the file.
type StateStore struct {
	mu     sync.RWMutex
	path   string
	logger *slog.Logger

	state PersistedState
	dirty bool
}

// NewStateStore constructs an empty StateStore bound to path. Call Load to
// populate it from disk.
func NewStateStore(path string, logger *slog.Logger) *StateStore {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &StateStore{
		path:   path,
		logger: logger,
		state: PersistedState{
			Version:       StateVersion,
			Vaults:        make(map[string]VaultState),
			FileStates:    make(map[string]map[string]FileSyncState),
			PathToVaultID: make(map[string]string),
		},
	}
}

// Load reads the persisted state from disk. A missing file is not an error:
// the store starts empty. A load failure is logged and the store starts
// empty too — the StateStore never panics on a corrupt file.
func (s *StateStore) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var persisted PersistedState
	if err := atomicfile.ReadJSON(s.path, &persisted); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.logger.Debug("state store: no existing state file", "path", s.path)
			return nil
		}

		s.logger.Warn("state store: failed to load, starting empty", "path", s.path, "error", err)
		return nil
	}

	if persisted.Version < StateVersion {
		migrated, err := migrateState(s.path, persisted.Version)
		if err != nil {
			s.logger.Warn("state store: migration failed, starting empty", "error", err)
			return nil
		}

		persisted = migrated
	}

	if persisted.Vaults == nil {
		persisted.Vaults = make(map[string]VaultState)
	}

	if persisted.FileStates == nil {
		persisted.FileStates = make(map[string]map[string]FileSyncState)
	}

	if persisted.PathToVaultID == nil {
		persisted.PathToVaultID = make(map[string]string)
	}

	s.state = persisted

	return nil
}

// save rewrites the state file if the dirty flag is set. Must be called
// with s.mu write-locked, since it clears the dirty flag on success. On
// write failure, the dirty flag is left set so the next mutation retries.
func (s *StateStore) save() {
	if !s.dirty {
		return
	}

	if err := atomicfile.WriteJSON(s.path, s.state); err != nil {
		s.logger.Error("state store: save failed, will retry on next mutation", "path", s.path, "error", err)
		return
	}

	s.dirty = false
}

func (s *StateStore) markDirtyAndSave() {
	s.dirty = true
	s.save()
}

// GetVault returns the VaultState for vaultID, if present.
func (s *StateStore) GetVault(vaultID string) (VaultState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.state.Vaults[vaultID]

	return v, ok
}

// VaultIDForPath resolves a local vault path to its vault_id via the
// in-memory side map.
func (s *StateStore) VaultIDForPath(path string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.state.PathToVaultID[filepath.Clean(path)]

	return id, ok
}

// Enable creates or updates a VaultState binding path to vaultID, enabled
// and idle. Idempotent: calling it again with the same arguments leaves
// the VaultState's lifecycle untouched if already enabled.
func (s *StateStore) Enable(path, vaultID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	clean := filepath.Clean(path)

	existing, ok := s.state.Vaults[vaultID]
	if !ok {
		existing = VaultState{VaultID: vaultID, Lifecycle: VaultIdle}
	}

	existing.VaultID = vaultID
	existing.LocalPath = clean
	existing.Enabled = true

	if existing.Lifecycle == VaultDisabled || existing.Lifecycle == "" {
		existing.Lifecycle = VaultIdle
	}

	s.state.Vaults[vaultID] = existing
	s.state.PathToVaultID[clean] = vaultID

	s.markDirtyAndSave()
}

// Disable marks the vault disabled; it does not remove the VaultState or
// the path mapping (appstate's SyncState.DisableVault clears file states
// and the manifest separately).
func (s *StateStore) Disable(vaultID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.state.Vaults[vaultID]
	if !ok {
		return
	}

	v.Enabled = false
	v.Lifecycle = VaultDisabled
	s.state.Vaults[vaultID] = v

	s.markDirtyAndSave()
}

// SetLifecycle transitions a vault's lifecycle state, optionally recording
// an error string (cleared when transitioning away from VaultError).
func (s *StateStore) SetLifecycle(vaultID string, lifecycle VaultLifecycle, lastError string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.state.Vaults[vaultID]
	if !ok {
		return
	}

	v.Lifecycle = lifecycle
	v.LastError = lastError
	s.state.Vaults[vaultID] = v

	s.markDirtyAndSave()
}

// SetCursor updates the stored pull cursor for a vault.
func (s *StateStore) SetCursor(vaultID, cursor string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.state.Vaults[vaultID]
	if !ok {
		return
	}

	v.PullCursor = cursor
	s.state.Vaults[vaultID] = v

	s.markDirtyAndSave()
}

// SetLastSync stamps the last-sync timestamp (unix ms) for a vault.
func (s *StateStore) SetLastSync(vaultID string, whenMs int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.state.Vaults[vaultID]
	if !ok {
		return
	}

	v.LastSyncAtMs = whenMs
	s.state.Vaults[vaultID] = v

	s.markDirtyAndSave()
}

// RemoveVault deletes a vault's VaultState, its file states, and its path
// mapping entry. Used by logout (clear everything) and explicit vault
// removal.
func (s *StateStore) RemoveVault(vaultID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v, ok := s.state.Vaults[vaultID]; ok {
		delete(s.state.PathToVaultID, v.LocalPath)
	}

	delete(s.state.Vaults, vaultID)
	delete(s.state.FileStates, vaultID)

	s.markDirtyAndSave()
}

// ListVaults returns every known VaultState, enabled or not, in no
// particular order. Used by the command layer to enumerate vaults for
// status display and parallel sync dispatch.
func (s *StateStore) ListVaults() []VaultState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]VaultState, 0, len(s.state.Vaults))
	for _, v := range s.state.Vaults {
		out = append(out, v)
	}

	return out
}

// Clear empties the entire store (used on logout).
func (s *StateStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.Vaults = make(map[string]VaultState)
	s.state.FileStates = make(map[string]map[string]FileSyncState)
	s.state.PathToVaultID = make(map[string]string)

	s.markDirtyAndSave()
}

// GetFileState returns the FileSyncState for (vaultID, relativePath).
func (s *StateStore) GetFileState(vaultID, relativePath string) (FileSyncState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	files, ok := s.state.FileStates[vaultID]
	if !ok {
		return FileSyncState{}, false
	}

	fs, ok := files[relativePath]

	return fs, ok
}

// SetFileState upserts the FileSyncState for (vaultID, relativePath).
func (s *StateStore) SetFileState(vaultID, relativePath string, state FileSyncState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.FileStates[vaultID] == nil {
		s.state.FileStates[vaultID] = make(map[string]FileSyncState)
	}

	s.state.FileStates[vaultID][relativePath] = state

	s.markDirtyAndSave()
}

// RemoveFileState deletes the FileSyncState for (vaultID, relativePath),
// used when a delete is confirmed in either direction.
func (s *StateStore) RemoveFileState(vaultID, relativePath string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if files, ok := s.state.FileStates[vaultID]; ok {
		delete(files, relativePath)
	}

	s.markDirtyAndSave()
}

// ListFileStates returns a copy of every FileSyncState for vaultID, keyed
// by relative path.
func (s *StateStore) ListFileStates(vaultID string) map[string]FileSyncState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]FileSyncState, len(s.state.FileStates[vaultID]))
	for path, fs := range s.state.FileStates[vaultID] {
		out[path] = fs
	}

	return out
}

// ClearVaultFileStates removes every FileSyncState for vaultID without
// touching the VaultState itself. Used by DisableVault.
func (s *StateStore) ClearVaultFileStates(vaultID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.state.FileStates, vaultID)

	s.markDirtyAndSave()
}

// MarkSynced records that relativePath in vaultID is now synced at hash
// with the given remote version, stamping the current time.
func (s *StateStore) MarkSynced(vaultID, relativePath, hash string, version int64) {
	s.SetFileState(vaultID, relativePath, FileSyncState{
		LocalHash:      hash,
		RemoteHash:     hash,
		RemoteVersion:  version,
		LastSyncedAtMs: time.Now().UnixMilli(),
	})
}

// NeedsSync reports whether currentHash differs from the stored local_hash
// for (vaultID, path), or no state exists yet.
func (s *StateStore) NeedsSync(vaultID, path, currentHash string) bool {
	fs, ok := s.GetFileState(vaultID, path)
	return !ok || fs.LocalHash != currentHash
}

// CountPendingChanges walks snap and diffs it against the stored file
// states for vaultID, returning the number of changed-or-deleted entries a
// subsequent DetectChanges would emit.
func (s *StateStore) CountPendingChanges(vaultID string, snap Snapshot) int {
	states := s.ListFileStates(vaultID)

	hashes := make(map[string]string, len(states))
	for path, fs := range states {
		hashes[path] = fs.LocalHash
	}

	cs := DetectChanges(snap, hashes)

	return len(cs.Changed) + len(cs.Deleted)
}

// NewVaultID generates a fresh opaque vault identifier for cases where the
// caller must synthesize one locally (e.g. migrating legacy records that
// never had one).
func NewVaultID() string {
	return uuid.NewString()
}

func migrateState(path string, fromVersion int) (PersistedState, error) {
	if fromVersion >= StateVersion {
		return PersistedState{}, fmt.Errorf("syncvault: unexpected migration from version %d", fromVersion)
	}

	var legacy legacyPersistedStateV1
	if err := atomicfile.ReadJSON(path, &legacy); err != nil {
		return PersistedState{}, fmt.Errorf("syncvault: reading legacy state: %w", err)
	}

	migrated := PersistedState{
		Version:       StateVersion,
		Vaults:        make(map[string]VaultState),
		FileStates:    make(map[string]map[string]FileSyncState),
		PathToVaultID: make(map[string]string),
	}

	// v1 was keyed by local path directly; promote each path to a
	// synthesized vault_id, preserving every (path, relative_path) ->
	// hash/version tuple exactly.
	for legacyPath, files := range legacy.FileStates {
		vaultID := NewVaultID()

		migrated.Vaults[vaultID] = VaultState{
			VaultID:   vaultID,
			LocalPath: legacyPath,
			Enabled:   true,
			Lifecycle: VaultIdle,
		}
		migrated.PathToVaultID[legacyPath] = vaultID
		migrated.FileStates[vaultID] = files
	}

	return migrated, nil
}
