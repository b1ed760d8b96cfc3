package syncvault

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/tonimelisma/lazuli-sync/internal/client"
	"github.com/tonimelisma/lazuli-sync/internal/cryptoutil"
)

// pullPageLimit bounds how many changes the server returns per /pull page.
const pullPageLimit = 200

// Engine drives one sync cycle for a single vault: pull, rescan, diff,
// push, finalize. Configured once and reused across cycles; a per-vault
// mutex enforces at most one in-flight cycle at a time.
type Engine struct {
	serverURL    string
	vaultID      string
	localPath    string
	additiveOnly bool

	client *client.Client
	state  *StateStore
	scan   *Scanner

	mu     sync.Mutex
	logger *slog.Logger
}

// NewEngine constructs an Engine for one vault. additiveOnly prevents the
// pull step from deleting or overwriting locally-present files — used on
// first connect to a pre-existing remote vault.
func NewEngine(serverURL, vaultID, localPath string, additiveOnly bool, c *client.Client, state *StateStore, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Engine{
		serverURL:    serverURL,
		vaultID:      vaultID,
		localPath:    localPath,
		additiveOnly: additiveOnly,
		client:       c,
		state:        state,
		scan:         NewScanner(logger),
		logger:       logger,
	}
}

// Sync runs one full cycle. Only one cycle per Engine may be in flight at a
// time; a concurrent call blocks until the prior cycle finishes.
func (e *Engine) Sync(ctx context.Context) (SyncOperationResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	started := time.Now()

	var result SyncOperationResult

	e.state.SetLifecycle(e.vaultID, VaultSyncing, "")

	if _, err := e.scan.Scan(ctx, e.localPath); err != nil {
		// Pre-scan is diagnostics only; a failure here does not abort the
		// cycle, since pull does not depend on it.
		e.logger.Warn("engine: pre-scan failed", "vault_id", e.vaultID, "error", err)
	}

	if err := e.pull(ctx, &result); err != nil {
		e.finishWithError(err, &result, started)
		return result, err
	}

	postScan, err := e.scan.Scan(ctx, e.localPath)
	if err != nil {
		e.finishWithError(fmt.Errorf("syncvault: post-scan: %w", err), &result, started)
		return result, err
	}

	changes := e.diff(postScan)

	if err := e.push(ctx, changes, &result); err != nil {
		e.finishWithError(err, &result, started)
		return result, err
	}

	result.Success = len(result.Errors) == 0
	result.DurationMs = time.Since(started).Milliseconds()

	if result.Success {
		e.state.SetLastSync(e.vaultID, time.Now().UnixMilli())
		e.state.SetLifecycle(e.vaultID, VaultIdle, "")
	} else {
		e.state.SetLifecycle(e.vaultID, VaultError, strings.Join(result.Errors, "; "))
	}

	return result, nil
}

func (e *Engine) finishWithError(err error, result *SyncOperationResult, started time.Time) {
	result.addError("%v", err)
	result.Success = false
	result.DurationMs = time.Since(started).Milliseconds()
	e.state.SetLifecycle(e.vaultID, VaultError, err.Error())
}

// pull repeatedly fetches change pages until has_more is false, applying
// each RemoteChange as it arrives.
func (e *Engine) pull(ctx context.Context, result *SyncOperationResult) error {
	vault, _ := e.state.GetVault(e.vaultID)
	cursor := vault.PullCursor

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		page, err := e.client.Pull(ctx, e.vaultID, client.PullRequest{Cursor: cursor, Limit: pullPageLimit})
		if err != nil {
			return fmt.Errorf("syncvault: pulling changes: %w", err)
		}

		for _, wire := range page.Changes {
			if err := ctx.Err(); err != nil {
				return err
			}

			e.applyRemoteChange(ctx, wire, result)
		}

		cursor = page.NextCursor
		e.state.SetCursor(e.vaultID, cursor)

		if !page.HasMore {
			break
		}
	}

	return nil
}

func (e *Engine) applyRemoteChange(ctx context.Context, wire client.RemoteChangeWire, result *SyncOperationResult) {
	relPath := decodeWirePath(wire.EncodedPath)

	if wire.Version < 0 {
		result.addError("%v", fmt.Errorf("%w: negative version %d for %s", ErrInvalidData, wire.Version, relPath))
		return
	}

	// Per-file versions are monotonic; a change older than what we already
	// hold is stale and must not be applied.
	if fs, ok := e.state.GetFileState(e.vaultID, relPath); ok && wire.Version < fs.RemoteVersion {
		e.logger.Debug("engine: skipping stale remote change",
			"path", relPath, "version", wire.Version, "stored_version", fs.RemoteVersion)
		return
	}

	switch RemoteChangeOp(wire.Op) {
	case RemoteDelete:
		e.applyRemoteDelete(relPath, result)
	case RemoteCreate, RemoteUpdate:
		e.applyRemoteWrite(ctx, relPath, wire, result)
	default:
		result.addError("%v", fmt.Errorf("%w: unknown remote op %q for %s", ErrInvalidData, wire.Op, relPath))
	}
}

func (e *Engine) applyRemoteDelete(relPath string, result *SyncOperationResult) {
	if e.additiveOnly {
		return
	}

	fullPath := filepath.Join(e.localPath, filepath.FromSlash(relPath))
	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		result.addError("deleting %s: %v", relPath, err)
		return
	}

	e.state.RemoveFileState(e.vaultID, relPath)
	result.FilesDeleted++
}

func (e *Engine) applyRemoteWrite(ctx context.Context, relPath string, wire client.RemoteChangeWire, result *SyncOperationResult) {
	fullPath := filepath.Join(e.localPath, filepath.FromSlash(relPath))

	if e.additiveOnly {
		if _, err := os.Stat(fullPath); err == nil {
			data, readErr := os.ReadFile(fullPath)
			if readErr != nil {
				result.addError("reading locally-present file %s: %v", relPath, readErr)
				return
			}

			e.state.SetFileState(e.vaultID, relPath, FileSyncState{
				LocalHash:      cryptoutil.HashBytes(data),
				RemoteHash:     wire.ContentHash,
				RemoteVersion:  wire.Version,
				LastSyncedAtMs: time.Now().UnixMilli(),
			})

			return
		}
	}

	if wire.DownloadURL == "" {
		result.addError("%v", fmt.Errorf("%w: remote change for %s has no download_url", ErrInvalidState, relPath))
		return
	}

	data, err := e.client.GetBytes(ctx, e.resolveURL(wire.DownloadURL))
	if err != nil {
		result.addError("downloading %s: %v", relPath, err)
		return
	}

	if !cryptoutil.VerifyHash(data, wire.ContentHash) {
		result.addError("%v", fmt.Errorf("%w: hash mismatch downloading %s", ErrInvalidData, relPath))
		return
	}

	if err := os.MkdirAll(filepath.Dir(fullPath), 0o700); err != nil {
		result.addError("creating directories for %s: %v", relPath, err)
		return
	}

	if err := os.WriteFile(fullPath, data, 0o600); err != nil {
		result.addError("writing %s: %v", relPath, err)
		return
	}

	e.state.MarkSynced(e.vaultID, relPath, wire.ContentHash, wire.Version)
	result.FilesDownloaded++
}

// diff re-derives a ChangeSet against the StateStore's file-state map.
func (e *Engine) diff(snap Snapshot) ChangeSet {
	states := e.state.ListFileStates(e.vaultID)

	hashes := make(map[string]string, len(states))
	for path, fs := range states {
		hashes[path] = fs.LocalHash
	}

	return DetectChanges(snap, hashes)
}

// push constructs and submits a change batch, then uploads accepted
// files.
func (e *Engine) push(ctx context.Context, changes ChangeSet, result *SyncOperationResult) error {
	if changes.IsEmpty() {
		return nil
	}

	req := client.PushRequest{Changes: make([]client.PushChange, 0, len(changes.Changed)+len(changes.Deleted))}

	for _, fi := range changes.Changed {
		req.Changes = append(req.Changes, e.buildPushChange(fi.RelativePath, "", fi.Hash, fi.Size, fi.ModifiedAtMs))
	}

	for _, relPath := range changes.Deleted {
		req.Changes = append(req.Changes, e.buildPushChange(relPath, "delete", "", 0, 0))
	}

	resp, err := e.client.Push(ctx, e.vaultID, req)
	if err != nil {
		return fmt.Errorf("syncvault: pushing changes: %w", err)
	}

	for _, encodedConflict := range resp.Conflicts {
		result.Conflicts = append(result.Conflicts, decodeWirePath(encodedConflict))
	}

	for _, pushResult := range resp.Results {
		if err := ctx.Err(); err != nil {
			return err
		}

		e.applyPushResult(ctx, pushResult, result)
	}

	return nil
}

func (e *Engine) buildPushChange(relPath, forceOp, hash string, size, modifiedAt int64) client.PushChange {
	op := forceOp

	var baseVersion *int64

	if fs, ok := e.state.GetFileState(e.vaultID, relPath); ok {
		v := fs.RemoteVersion
		baseVersion = &v

		if op == "" {
			op = "update"
		}
	} else if op == "" {
		op = "create"
	}

	return client.PushChange{
		EncodedPath: encodeWirePath(relPath),
		Op:          op,
		ContentHash: hash,
		Size:        size,
		ModifiedAt:  modifiedAt,
		BaseVersion: baseVersion,
	}
}

func (e *Engine) applyPushResult(ctx context.Context, pr client.PushResult, result *SyncOperationResult) {
	relPath := decodeWirePath(pr.EncodedPath)

	if pr.Status != "accepted" {
		if pr.Status == "conflict" {
			result.Conflicts = append(result.Conflicts, relPath)
			result.addError("%v", fmt.Errorf("%w for %s", ErrConflict, relPath))

			return
		}

		if pr.Error != "" {
			result.addError("push rejected for %s: %s", relPath, pr.Error)
		}

		return
	}

	if pr.UploadURL == "" {
		// No upload URL means this accepted result confirms a delete.
		e.state.RemoveFileState(e.vaultID, relPath)
		return
	}

	fullPath := filepath.Join(e.localPath, filepath.FromSlash(relPath))

	data, err := os.ReadFile(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			result.addError("%v", fmt.Errorf("%w: %s vanished before upload", ErrFileNotFound, relPath))
			return
		}

		result.addError("reading %s for upload: %v", relPath, err)

		return
	}

	if err := e.client.PutBytes(ctx, e.resolveURL(pr.UploadURL), data); err != nil {
		result.addError("uploading %s: %v", relPath, err)
		return
	}

	if pr.FileID != "" {
		if err := e.client.ConfirmUpload(ctx, e.vaultID, []string{pr.FileID}); err != nil {
			result.addError("confirming upload for %s: %v", relPath, err)
			return
		}
	}

	newVersion := int64(1)
	if pr.NewVersion != nil {
		newVersion = *pr.NewVersion
	}

	e.state.MarkSynced(e.vaultID, relPath, cryptoutil.HashBytes(data), newVersion)
	result.FilesUploaded++
}

// resolveURL joins a possibly-relative upload/download URL against the
// configured server URL.
func (e *Engine) resolveURL(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.IsAbs() {
		return raw
	}

	base, err := url.Parse(e.serverURL)
	if err != nil {
		return raw
	}

	return base.ResolveReference(parsed).String()
}

// encodeWirePath encodes a relative path for the wire:
// base64(UTF-8(path)).
func encodeWirePath(relPath string) string {
	return base64.StdEncoding.EncodeToString([]byte(relPath))
}

// decodeWirePath decodes a wire path, tolerating a plain (non-base64) path
// for forward compatibility: try base64 decode, require valid UTF-8 on
// success; on any failure return the string unchanged.
func decodeWirePath(encoded string) string {
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil || !utf8.Valid(decoded) {
		return encoded
	}

	return string(decoded)
}
