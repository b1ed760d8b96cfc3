package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/lazuli-sync/internal/appstate"
	"github.com/tonimelisma/lazuli-sync/internal/syncvault"
)

func testLogger(t *testing.T) *slog.Logger {
	t.Helper()

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestStore(t *testing.T) *syncvault.StateStore {
	t.Helper()

	path := filepath.Join(t.TempDir(), "state.json")

	return syncvault.NewStateStore(path, testLogger(t))
}

func TestResolveVaultID_Known(t *testing.T) {
	store := newTestStore(t)
	store.Enable("/vault/path", "vault-1")

	cc := &CLIContext{State: &appstate.SyncState{Store: store}}

	id, err := resolveVaultID(cc, "/vault/path")
	require.NoError(t, err)
	assert.Equal(t, "vault-1", id)
}

func TestResolveVaultID_Unknown(t *testing.T) {
	store := newTestStore(t)
	cc := &CLIContext{State: &appstate.SyncState{Store: store}}

	_, err := resolveVaultID(cc, "/nowhere")
	require.Error(t, err)
	assert.True(t, errors.Is(err, syncvault.ErrVaultNotFound))
	assert.Contains(t, err.Error(), "no known vault")
}

func TestWatchPIDPath_StableForSamePath(t *testing.T) {
	a := watchPIDPath("/data", "/vault/one")
	b := watchPIDPath("/data", "/vault/one")
	assert.Equal(t, a, b)
}

func TestWatchPIDPath_DiffersByPath(t *testing.T) {
	a := watchPIDPath("/data", "/vault/one")
	b := watchPIDPath("/data", "/vault/two")
	assert.NotEqual(t, a, b)
}

func TestPrintSyncResultText_NoChanges(t *testing.T) {
	cc := &CLIContext{Quiet: true}
	printSyncResultText(cc, "/vault", syncvault.SyncOperationResult{DurationMs: 12})
}

func TestPrintSyncResultText_WithChanges(t *testing.T) {
	cc := &CLIContext{Quiet: true}
	printSyncResultText(cc, "/vault", syncvault.SyncOperationResult{
		FilesUploaded:   2,
		FilesDownloaded: 1,
		FilesDeleted:    1,
		Conflicts:       []string{"a.txt"},
		Errors:          []string{"boom"},
		DurationMs:      42,
	})
}

func TestReportSyncResult_JSONOutput(t *testing.T) {
	oldStdout := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)

	os.Stdout = w
	t.Cleanup(func() { os.Stdout = oldStdout })

	cc := &CLIContext{JSON: true, Quiet: true}
	result := syncvault.SyncOperationResult{FilesUploaded: 1, DurationMs: 10}

	err = reportSyncResult(cc, "/vault", result)
	require.NoError(t, err)

	w.Close()

	var buf bytes.Buffer
	_, readErr := buf.ReadFrom(r)
	require.NoError(t, readErr)

	var decoded syncvault.SyncOperationResult
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, result, decoded)
}

func TestReportSyncResult_ErrorsPropagate(t *testing.T) {
	cc := &CLIContext{Quiet: true}
	result := syncvault.SyncOperationResult{Errors: []string{"disk full"}}

	err := reportSyncResult(cc, "/vault", result)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 error")
}

func TestReportSyncOutcomes_MixedResults(t *testing.T) {
	cc := &CLIContext{Quiet: true}

	outcomes := []appstate.VaultSyncOutcome{
		{VaultID: "v1", Path: "/vault1", Result: syncvault.SyncOperationResult{FilesUploaded: 1}},
		{VaultID: "v2", Path: "/vault2", Err: assertErr("network down")},
	}

	err := reportSyncOutcomes(cc, outcomes)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 vault(s) failed")
}

func TestReportSyncOutcomes_AllSucceed(t *testing.T) {
	cc := &CLIContext{Quiet: true}

	outcomes := []appstate.VaultSyncOutcome{
		{VaultID: "v1", Path: "/vault1", Result: syncvault.SyncOperationResult{}},
	}

	err := reportSyncOutcomes(cc, outcomes)
	assert.NoError(t, err)
}

type simpleError string

func (e simpleError) Error() string { return string(e) }

func assertErr(msg string) error { return simpleError(msg) }
