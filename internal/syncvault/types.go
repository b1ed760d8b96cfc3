// Package syncvault implements the client-side vault synchronization
// engine: the content-addressed change detector, the durable sync-state
// store, the pull/push protocol driver, the conflict detector/resolver,
// the filesystem watcher and debouncer, the retry queue, and the in-vault
// manifest that binds a local directory to a remote vault.
package syncvault

import "fmt"

// SyncExtensions lists the file extensions (without a leading dot) that the
// scanner includes. Anything else is skipped regardless of directory.
var SyncExtensions = map[string]bool{
	"md": true, "markdown": true, "txt": true,
	"png": true, "jpg": true, "jpeg": true, "gif": true, "webp": true, "svg": true,
	"pdf": true, "json": true, "yaml": true, "yml": true, "toml": true,
}

// SkipDirs lists directory names excluded from scanning wherever they occur
// in the tree.
var SkipDirs = map[string]bool{
	".git": true, ".obsidian": true, ".trash": true, "node_modules": true, ".sync": true,
}

// ManifestFileName is the hidden in-vault file binding a directory to a
// remote vault_id and server.
const ManifestFileName = ".lazuli-sync.json"

// StateVersion is the current on-disk schema version for PersistedState.
const StateVersion = 2

// VaultLifecycle is the operational state of a vault as tracked by the
// StateStore.
type VaultLifecycle string

const (
	VaultIdle     VaultLifecycle = "idle"
	VaultSyncing  VaultLifecycle = "syncing"
	VaultError    VaultLifecycle = "error"
	VaultDisabled VaultLifecycle = "disabled"
)

// FileInfo is one entry in a Scanner snapshot: a syncable file found on
// disk, normalized to a forward-slash relative path.
type FileInfo struct {
	RelativePath string `json:"relative_path"`
	Hash         string `json:"hash"`
	Size         int64  `json:"size"`
	ModifiedAtMs int64  `json:"modified_at_ms"`
}

// Snapshot is a Scanner's output: every syncable file found under a vault
// root at one instant, plus aggregate counters.
type Snapshot struct {
	Files     map[string]FileInfo `json:"files"`
	FileCount int                 `json:"file_count"`
	ByteTotal int64               `json:"byte_total"`
}

// ChangeSet is the result of diffing a Snapshot against the FileSyncState
// map: files that are new or whose hash changed, and files that vanished.
type ChangeSet struct {
	Changed []FileInfo
	Deleted []string
}

// IsEmpty reports whether the change set has nothing to push.
func (c ChangeSet) IsEmpty() bool {
	return len(c.Changed) == 0 && len(c.Deleted) == 0
}

// VaultState is the per-vault bookkeeping record kept by the StateStore.
// Invariant: there is at most one VaultState per vault_id, and the
// path<->vault_id mapping held alongside it is bijective at any instant.
type VaultState struct {
	VaultID      string         `json:"vault_id"`
	LocalPath    string         `json:"local_path"`
	Enabled      bool           `json:"enabled"`
	PullCursor   string         `json:"pull_cursor"`
	LastSyncAtMs int64          `json:"last_sync_at_ms"`
	Lifecycle    VaultLifecycle `json:"lifecycle"`
	LastError    string         `json:"last_error,omitempty"`
}

// FileSyncState is the per-(vault_id, relative_path) reconciliation record.
// A file is "synced" when local_hash == content_hash(on-disk) == remote_hash.
// Absence for a locally-present file means "new, not yet synced"; presence
// without a matching disk file means "tombstone — pending delete push".
type FileSyncState struct {
	LocalHash      string `json:"local_hash"`
	RemoteHash     string `json:"remote_hash"`
	RemoteVersion  int64  `json:"remote_version"`
	LastSyncedAtMs int64  `json:"last_synced_at_ms"`
}

// RemoteChangeOp is the operation kind carried by a RemoteChange from the
// server's /pull response.
type RemoteChangeOp string

const (
	RemoteCreate RemoteChangeOp = "create"
	RemoteUpdate RemoteChangeOp = "update"
	RemoteDelete RemoteChangeOp = "delete"
)

// RemoteChange is one entry the server returns from a pull.
type RemoteChange struct {
	ID          string         `json:"id"`
	EncodedPath string         `json:"encoded_path"`
	Op          RemoteChangeOp `json:"op"`
	ContentHash string         `json:"content_hash"`
	Size        int64          `json:"size"`
	ModifiedAt  int64          `json:"modified_at"`
	Version     int64          `json:"version"`
	DownloadURL string         `json:"download_url,omitempty"`
}

// VaultSyncManifest is the hidden in-vault JSON file that asserts "this
// directory is bound to this remote vault". Deleted on disable.
type VaultSyncManifest struct {
	RemoteVaultID string `json:"remote_vault_id"`
	ServerURL     string `json:"server_url"`
	UserID        string `json:"user_id"`
	ConnectedAtMs int64  `json:"connected_at"`
}

// PersistedState is the on-disk shape of the whole StateStore: every
// VaultState, every FileSyncState nested under its vault_id, and the
// path->vault_id convenience map. Pretty-printed JSON at
// <app_data>/sync_state.json.
type PersistedState struct {
	Version       int                                 `json:"version"`
	Vaults        map[string]VaultState               `json:"vaults"`
	FileStates    map[string]map[string]FileSyncState `json:"file_states"`
	PathToVaultID map[string]string                   `json:"path_to_vault_id"`
}

// legacyPersistedStateV1 is the pre-migration, path-keyed schema: vault_id
// did not exist as a concept, and file state was addressed directly by
// local path. Only used by the v1->v2 migration in state.go.
type legacyPersistedStateV1 struct {
	Version    int                                 `json:"version"`
	FileStates map[string]map[string]FileSyncState `json:"file_states"` // keyed by local path
}

// SyncOperationResult is returned by one Engine cycle. success is true iff
// Errors is empty; partial progress counters are always truthful even when
// success is false.
type SyncOperationResult struct {
	Success         bool     `json:"success"`
	FilesUploaded   int      `json:"files_uploaded"`
	FilesDownloaded int      `json:"files_downloaded"`
	FilesDeleted    int      `json:"files_deleted"`
	Conflicts       []string `json:"conflicts"`
	Errors          []string `json:"errors"`
	DurationMs      int64    `json:"duration_ms"`
}

func (r *SyncOperationResult) addError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// ConflictResolution is the caller's choice when resolving a detected
// conflict file.
type ConflictResolution int

const (
	KeepLocal ConflictResolution = iota
	KeepRemote
	KeepBoth
)

// ParseConflictResolution parses a resolution string case-insensitively,
// accepting "local"/"keep_local"/"keeplocal" and the remote/both analogs.
func ParseConflictResolution(s string) (ConflictResolution, error) {
	switch normalizeResolutionToken(s) {
	case "local", "keeplocal":
		return KeepLocal, nil
	case "remote", "keepremote":
		return KeepRemote, nil
	case "both", "keepboth":
		return KeepBoth, nil
	default:
		return 0, fmt.Errorf("syncvault: unknown conflict resolution %q", s)
	}
}

func normalizeResolutionToken(s string) string {
	out := make([]byte, 0, len(s))

	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '_' || c == '-' || c == ' ' {
			continue
		}

		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}

		out = append(out, c)
	}

	return string(out)
}

// ConflictInfo describes one detected conflict file for listing.
type ConflictInfo struct {
	OriginalPath     string `json:"original_path"`
	ConflictPath     string `json:"conflict_path"`
	LocalModifiedAt  int64  `json:"local_modified_at"`
	RemoteModifiedAt int64  `json:"remote_modified_at"`
	CreatedAt        int64  `json:"created_at"`
}

// QueueOperation is the kind of work a QueueItem represents.
type QueueOperation string

const (
	OpUpload   QueueOperation = "upload"
	OpDownload QueueOperation = "download"
	OpDelete   QueueOperation = "delete"
)

// Priority orders QueueItem selection; higher values are selected first.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

// QueueItem is one pending retry-queue entry.
type QueueItem struct {
	ID            string         `json:"id"`
	VaultPath     string         `json:"vault_path"`
	RelativePath  string         `json:"relative_path"`
	Operation     QueueOperation `json:"operation"`
	CreatedAtMs   int64          `json:"created_at_ms"`
	Attempts      int            `json:"attempts"`
	LastAttemptMs int64          `json:"last_attempt_ms"`
	LastError     string         `json:"last_error,omitempty"`
	Priority      Priority       `json:"priority"`
}

// FileChange is one filesystem-watcher event, already filtered to syncable
// paths but not yet debounced.
type FileChange struct {
	VaultPath    string
	RelativePath string
	Op           RemoteChangeOp
}
