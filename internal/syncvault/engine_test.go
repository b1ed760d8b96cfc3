package syncvault

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/lazuli-sync/internal/client"
	"github.com/tonimelisma/lazuli-sync/internal/cryptoutil"
)

type fixedToken string

func (t fixedToken) AccessToken() (string, error) { return string(t), nil }

func newTestEngine(t *testing.T, handler http.Handler, additiveOnly bool) (*Engine, string) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	vaultDir := t.TempDir()
	statePath := filepath.Join(t.TempDir(), "sync_state.json")

	c := client.New(srv.URL, fixedToken("test-token"), nil)
	store := NewStateStore(statePath, nil)
	require.NoError(t, store.Load())
	store.Enable(vaultDir, "vault-1")

	return NewEngine(srv.URL, "vault-1", vaultDir, additiveOnly, c, store, nil), vaultDir
}

func emptyPullHandler(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/vaults/vault-1/sync/pull", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(client.PullResponse{HasMore: false})
	})
}

// TestEngineFirstPush: a new local file produces a create push entry and
// ends up marked synced at version 1.
func TestEngineFirstPush(t *testing.T) {
	var pushedBatch client.PushRequest

	mux := http.NewServeMux()
	emptyPullHandler(mux)
	mux.HandleFunc("/api/v1/vaults/vault-1/sync/push", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&pushedBatch))

		change := pushedBatch.Changes[0]
		newVersion := int64(1)

		_ = json.NewEncoder(w).Encode(client.PushResponse{
			Results: []client.PushResult{{
				EncodedPath: change.EncodedPath,
				Status:      "accepted",
				UploadURL:   "/upload/1",
				NewVersion:  &newVersion,
				FileID:      "file-1",
			}},
		})
	})
	mux.HandleFunc("/upload/1", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/api/v1/vaults/vault-1/sync/confirm", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	engine, vaultDir := newTestEngine(t, mux, false)

	require.NoError(t, os.MkdirAll(filepath.Join(vaultDir, "notes"), 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(vaultDir, "notes", "a.md"), []byte("hello"), 0o600))

	result, err := engine.Sync(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 1, result.FilesUploaded)

	require.Len(t, pushedBatch.Changes, 1)
	assert.Equal(t, "create", pushedBatch.Changes[0].Op)
	assert.Equal(t, cryptoutil.HashBytes([]byte("hello")), pushedBatch.Changes[0].ContentHash)
	assert.Len(t, pushedBatch.Changes[0].ContentHash, 64)

	fs, ok := engine.state.GetFileState("vault-1", "notes/a.md")
	require.True(t, ok)
	assert.Equal(t, int64(1), fs.RemoteVersion)
}

// TestEngineIdempotentSync: a second cycle with no changes pushes nothing.
func TestEngineIdempotentSync(t *testing.T) {
	pushCalls := 0

	mux := http.NewServeMux()
	emptyPullHandler(mux)
	mux.HandleFunc("/api/v1/vaults/vault-1/sync/push", func(w http.ResponseWriter, r *http.Request) {
		pushCalls++
		_ = json.NewEncoder(w).Encode(client.PushResponse{})
	})

	engine, vaultDir := newTestEngine(t, mux, false)
	_ = vaultDir

	result, err := engine.Sync(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 0, pushCalls)
	assert.Equal(t, 0, result.FilesUploaded)
	assert.Equal(t, 0, result.FilesDownloaded)
}

// TestEngineRemoteOnlyUpdate: a pulled update writes the file and bumps
// remote_version.
func TestEngineRemoteOnlyUpdate(t *testing.T) {
	const content = "updated content"

	hash := blake3Hex(t, content)
	encodedPath := base64.StdEncoding.EncodeToString([]byte("notes/a.md"))

	mux := http.NewServeMux()
	firstCall := true

	mux.HandleFunc("/api/v1/vaults/vault-1/sync/pull", func(w http.ResponseWriter, r *http.Request) {
		if firstCall {
			firstCall = false
			_ = json.NewEncoder(w).Encode(client.PullResponse{
				Changes: []client.RemoteChangeWire{{
					EncodedPath: encodedPath,
					Op:          "update",
					ContentHash: hash,
					DownloadURL: "/dl/123",
					Version:     2,
				}},
				HasMore: false,
			})

			return
		}

		_ = json.NewEncoder(w).Encode(client.PullResponse{HasMore: false})
	})
	mux.HandleFunc("/dl/123", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(content))
	})
	mux.HandleFunc("/api/v1/vaults/vault-1/sync/push", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(client.PushResponse{})
	})

	engine, vaultDir := newTestEngine(t, mux, false)

	result, err := engine.Sync(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 1, result.FilesDownloaded)
	assert.Equal(t, 0, result.FilesDeleted, "rescan-after-pull must not misclassify a download as a deletion")

	data, err := os.ReadFile(filepath.Join(vaultDir, "notes", "a.md"))
	require.NoError(t, err)
	assert.Equal(t, content, string(data))

	fs, ok := engine.state.GetFileState("vault-1", "notes/a.md")
	require.True(t, ok)
	assert.Equal(t, int64(2), fs.RemoteVersion)
}

// TestEngineLocalDeletePush: a vanished file with stored state pushes a
// delete and, once accepted, its FileSyncState is removed.
func TestEngineLocalDeletePush(t *testing.T) {
	var pushedBatch client.PushRequest

	mux := http.NewServeMux()
	emptyPullHandler(mux)
	mux.HandleFunc("/api/v1/vaults/vault-1/sync/push", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&pushedBatch))

		change := pushedBatch.Changes[0]
		_ = json.NewEncoder(w).Encode(client.PushResponse{
			Results: []client.PushResult{{
				EncodedPath: change.EncodedPath,
				Status:      "accepted",
			}},
		})
	})

	engine, _ := newTestEngine(t, mux, false)
	engine.state.SetFileState("vault-1", "notes/a.md", FileSyncState{LocalHash: "h", RemoteHash: "h", RemoteVersion: 3})

	result, err := engine.Sync(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Success)

	require.Len(t, pushedBatch.Changes, 1)
	assert.Equal(t, "delete", pushedBatch.Changes[0].Op)
	require.NotNil(t, pushedBatch.Changes[0].BaseVersion)
	assert.Equal(t, int64(3), *pushedBatch.Changes[0].BaseVersion)

	_, ok := engine.state.GetFileState("vault-1", "notes/a.md")
	assert.False(t, ok)
}

// TestEngineHashMismatchOnDownload: a corrupted download is a per-file
// error, not written to disk, and the cycle reports success == false.
func TestEngineHashMismatchOnDownload(t *testing.T) {
	encodedPath := base64.StdEncoding.EncodeToString([]byte("notes/a.md"))

	mux := http.NewServeMux()
	firstCall := true

	mux.HandleFunc("/api/v1/vaults/vault-1/sync/pull", func(w http.ResponseWriter, r *http.Request) {
		if firstCall {
			firstCall = false
			_ = json.NewEncoder(w).Encode(client.PullResponse{
				Changes: []client.RemoteChangeWire{{
					EncodedPath: encodedPath,
					Op:          "create",
					ContentHash: "0000000000000000000000000000000000000000000000000000000000000",
					DownloadURL: "/dl/999",
					Version:     1,
				}},
			})

			return
		}

		_ = json.NewEncoder(w).Encode(client.PullResponse{HasMore: false})
	})
	mux.HandleFunc("/dl/999", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not the expected content"))
	})
	mux.HandleFunc("/api/v1/vaults/vault-1/sync/push", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(client.PushResponse{})
	})

	engine, vaultDir := newTestEngine(t, mux, false)

	result, err := engine.Sync(context.Background())
	require.NoError(t, err)
	assert.False(t, result.Success)
	require.Len(t, result.Errors, 1)

	_, statErr := os.Stat(filepath.Join(vaultDir, "notes", "a.md"))
	assert.True(t, os.IsNotExist(statErr), "file must not be written on hash mismatch")
}

// TestEngineAdditiveConnectPreservesLocal: additive-only pull never
// overwrites a locally-present file.
func TestEngineAdditiveConnectPreservesLocal(t *testing.T) {
	encodedPath := base64.StdEncoding.EncodeToString([]byte("old.md"))

	mux := http.NewServeMux()
	firstCall := true

	mux.HandleFunc("/api/v1/vaults/vault-1/sync/pull", func(w http.ResponseWriter, r *http.Request) {
		if firstCall {
			firstCall = false
			_ = json.NewEncoder(w).Encode(client.PullResponse{
				Changes: []client.RemoteChangeWire{{
					EncodedPath: encodedPath,
					Op:          "update",
					ContentHash: blake3Hex(t, "remote content"),
					DownloadURL: "/dl/1",
					Version:     5,
				}},
			})

			return
		}

		_ = json.NewEncoder(w).Encode(client.PullResponse{HasMore: false})
	})
	mux.HandleFunc("/api/v1/vaults/vault-1/sync/push", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(client.PushResponse{})
	})

	engine, vaultDir := newTestEngine(t, mux, true)

	require.NoError(t, os.WriteFile(filepath.Join(vaultDir, "old.md"), []byte("local content"), 0o600))

	result, err := engine.Sync(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 0, result.FilesDownloaded)

	data, err := os.ReadFile(filepath.Join(vaultDir, "old.md"))
	require.NoError(t, err)
	assert.Equal(t, "local content", string(data), "additive-only pull must preserve the local file")

	fs, ok := engine.state.GetFileState("vault-1", "old.md")
	require.True(t, ok)
	assert.Equal(t, int64(5), fs.RemoteVersion)
}

// TestEngineSkipsStaleRemoteChange: a pulled change older than the stored
// remote_version is not applied.
func TestEngineSkipsStaleRemoteChange(t *testing.T) {
	encodedPath := base64.StdEncoding.EncodeToString([]byte("notes/a.md"))

	mux := http.NewServeMux()
	firstCall := true

	mux.HandleFunc("/api/v1/vaults/vault-1/sync/pull", func(w http.ResponseWriter, r *http.Request) {
		if firstCall {
			firstCall = false
			_ = json.NewEncoder(w).Encode(client.PullResponse{
				Changes: []client.RemoteChangeWire{{
					EncodedPath: encodedPath,
					Op:          "update",
					ContentHash: blake3Hex(t, "stale content"),
					DownloadURL: "/dl/stale",
					Version:     3,
				}},
			})

			return
		}

		_ = json.NewEncoder(w).Encode(client.PullResponse{HasMore: false})
	})
	mux.HandleFunc("/dl/stale", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("stale content"))
	})
	mux.HandleFunc("/api/v1/vaults/vault-1/sync/push", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(client.PushResponse{})
	})

	engine, vaultDir := newTestEngine(t, mux, false)
	engine.state.SetFileState("vault-1", "notes/a.md", FileSyncState{LocalHash: "h", RemoteHash: "h", RemoteVersion: 5})

	result, err := engine.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.FilesDownloaded)

	_, statErr := os.Stat(filepath.Join(vaultDir, "notes", "a.md"))
	assert.True(t, os.IsNotExist(statErr), "a stale change must not be applied")
}

// TestEngineRejectsNegativeVersion: the server's version field is signed on
// the wire; a negative value is a per-file error, never stored.
func TestEngineRejectsNegativeVersion(t *testing.T) {
	encodedPath := base64.StdEncoding.EncodeToString([]byte("notes/a.md"))

	mux := http.NewServeMux()
	firstCall := true

	mux.HandleFunc("/api/v1/vaults/vault-1/sync/pull", func(w http.ResponseWriter, r *http.Request) {
		if firstCall {
			firstCall = false
			_ = json.NewEncoder(w).Encode(client.PullResponse{
				Changes: []client.RemoteChangeWire{{
					EncodedPath: encodedPath,
					Op:          "create",
					ContentHash: blake3Hex(t, "content"),
					DownloadURL: "/dl/neg",
					Version:     -2,
				}},
			})

			return
		}

		_ = json.NewEncoder(w).Encode(client.PullResponse{HasMore: false})
	})
	mux.HandleFunc("/api/v1/vaults/vault-1/sync/push", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(client.PushResponse{})
	})

	engine, _ := newTestEngine(t, mux, false)

	result, err := engine.Sync(context.Background())
	require.NoError(t, err)
	assert.False(t, result.Success)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], ErrInvalidData.Error())
	assert.Contains(t, result.Errors[0], "negative version")

	_, ok := engine.state.GetFileState("vault-1", "notes/a.md")
	assert.False(t, ok)
}

// TestEnginePushConflictRejected: a push result with status "conflict" is
// recorded as a conflict and a per-file error, and the cycle continues.
func TestEnginePushConflictRejected(t *testing.T) {
	mux := http.NewServeMux()
	emptyPullHandler(mux)
	mux.HandleFunc("/api/v1/vaults/vault-1/sync/push", func(w http.ResponseWriter, r *http.Request) {
		var req client.PushRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		_ = json.NewEncoder(w).Encode(client.PushResponse{
			Results: []client.PushResult{{
				EncodedPath: req.Changes[0].EncodedPath,
				Status:      "conflict",
			}},
		})
	})

	engine, vaultDir := newTestEngine(t, mux, false)

	require.NoError(t, os.WriteFile(filepath.Join(vaultDir, "a.md"), []byte("contested"), 0o600))

	result, err := engine.Sync(context.Background())
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, []string{"a.md"}, result.Conflicts)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], ErrConflict.Error())

	_, ok := engine.state.GetFileState("vault-1", "a.md")
	assert.False(t, ok, "a conflicted push must not be marked synced")
}

func TestEncodeDecodeWirePathRoundTrip(t *testing.T) {
	for _, path := range []string{"notes/a.md", "attachments/x y.png", "日本語.md"} {
		assert.Equal(t, path, decodeWirePath(encodeWirePath(path)))
	}
}

func TestDecodeWirePathTreatsPlainPathAsFallback(t *testing.T) {
	assert.Equal(t, "notes/a.md", decodeWirePath("notes/a.md"))
}

func blake3Hex(t *testing.T, s string) string {
	t.Helper()

	return cryptoutil.HashBytes([]byte(s))
}
