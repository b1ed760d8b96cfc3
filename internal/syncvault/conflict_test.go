package syncvault

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateConflictPathRoundTripsToOriginal(t *testing.T) {
	cases := []string{
		"notes/a.md",
		"attachments/photo.jpeg",
		"root-level.txt",
	}

	for _, original := range cases {
		conflict := GenerateConflictPath(original, "deviceid-12345")
		assert.True(t, IsConflictFile(conflict))

		recovered, err := GetOriginalPath(conflict)
		require.NoError(t, err)
		assert.Equal(t, original, recovered)
	}
}

func TestGenerateConflictPathTruncatesDeviceIDTo8Chars(t *testing.T) {
	conflict := GenerateConflictPath("a.md", "abcdefghijklmnop")
	assert.Contains(t, conflict, ConflictSuffix+"abcdefgh")
}

func TestIsConflictFileFalseForOrdinaryPath(t *testing.T) {
	assert.False(t, IsConflictFile("notes/a.md"))
}

func TestGetOriginalPathErrorsOnNonConflictPath(t *testing.T) {
	_, err := GetOriginalPath("notes/a.md")
	assert.Error(t, err)
}

func TestListConflictsFindsGeneratedFile(t *testing.T) {
	root := t.TempDir()
	conflictName := GenerateConflictPath("a.md", "device12")

	require.NoError(t, os.WriteFile(filepath.Join(root, conflictName), []byte("conflicted"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.md"), []byte("original"), 0o600))

	mgr := NewConflictManager(nil)
	conflicts, err := mgr.ListConflicts(root)
	require.NoError(t, err)
	require.Len(t, conflicts, 1)

	assert.Equal(t, "a.md", conflicts[0].OriginalPath)
	assert.Greater(t, conflicts[0].CreatedAt, int64(0))
}

func TestResolveKeepLocalRemovesConflictFile(t *testing.T) {
	root := t.TempDir()
	conflictPath := filepath.Join(root, GenerateConflictPath("a.md", "device12"))

	require.NoError(t, os.WriteFile(filepath.Join(root, "a.md"), []byte("local"), 0o600))
	require.NoError(t, os.WriteFile(conflictPath, []byte("remote"), 0o600))

	require.NoError(t, NewConflictManager(nil).Resolve(conflictPath, KeepLocal))

	_, err := os.Stat(conflictPath)
	assert.True(t, os.IsNotExist(err))

	data, err := os.ReadFile(filepath.Join(root, "a.md"))
	require.NoError(t, err)
	assert.Equal(t, "local", string(data))
}

func TestResolveKeepRemoteOverwritesOriginal(t *testing.T) {
	root := t.TempDir()
	conflictPath := filepath.Join(root, GenerateConflictPath("a.md", "device12"))

	require.NoError(t, os.WriteFile(filepath.Join(root, "a.md"), []byte("local"), 0o600))
	require.NoError(t, os.WriteFile(conflictPath, []byte("remote"), 0o600))

	require.NoError(t, NewConflictManager(nil).Resolve(conflictPath, KeepRemote))

	_, err := os.Stat(conflictPath)
	assert.True(t, os.IsNotExist(err))

	data, err := os.ReadFile(filepath.Join(root, "a.md"))
	require.NoError(t, err)
	assert.Equal(t, "remote", string(data))
}

func TestResolveKeepBothRenamesConflictToCopy(t *testing.T) {
	root := t.TempDir()
	conflictPath := filepath.Join(root, GenerateConflictPath("a.md", "device12"))

	require.NoError(t, os.WriteFile(filepath.Join(root, "a.md"), []byte("local"), 0o600))
	require.NoError(t, os.WriteFile(conflictPath, []byte("remote"), 0o600))

	require.NoError(t, NewConflictManager(nil).Resolve(conflictPath, KeepBoth))

	_, err := os.Stat(conflictPath)
	assert.True(t, os.IsNotExist(err), "the conflict file itself should be renamed away")

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "original plus renamed copy")
}

func TestParseConflictResolutionCaseInsensitive(t *testing.T) {
	cases := map[string]ConflictResolution{
		"local":       KeepLocal,
		"KEEP_LOCAL":  KeepLocal,
		"remote":      KeepRemote,
		"KeepRemote":  KeepRemote,
		"both":        KeepBoth,
		"keep-both":   KeepBoth,
	}

	for input, want := range cases {
		got, err := ParseConflictResolution(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, got, input)
	}

	_, err := ParseConflictResolution("nonsense")
	assert.Error(t, err)
}
