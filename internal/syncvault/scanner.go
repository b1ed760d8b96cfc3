package syncvault

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/tonimelisma/lazuli-sync/internal/cryptoutil"
)

// Scanner walks a vault directory tree, hashing syncable files and
// producing a Snapshot.
type Scanner struct {
	logger *slog.Logger
}

// NewScanner creates a Scanner. A nil logger discards output.
func NewScanner(logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Scanner{logger: logger}
}

// Scan walks vaultRoot recursively and returns a Snapshot of every syncable
// file found. Read errors on individual files are logged and the file is
// skipped; the overall scan still succeeds. Directories in SkipDirs and any
// dotfile other than those with a ".md" extension are excluded.
func (s *Scanner) Scan(ctx context.Context, vaultRoot string) (Snapshot, error) {
	snap := Snapshot{Files: make(map[string]FileInfo)}

	err := filepath.WalkDir(vaultRoot, func(path string, d os.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		if walkErr != nil {
			s.logger.Warn("scanner: walk error, skipping", "path", path, "error", walkErr)
			return nil
		}

		rel, relErr := filepath.Rel(vaultRoot, path)
		if relErr != nil || rel == "." {
			return nil
		}

		if d.IsDir() {
			if shouldSkipDir(d.Name()) {
				return filepath.SkipDir
			}

			return nil
		}

		if err := s.scanFile(path, rel, d, &snap); err != nil {
			s.logger.Warn("scanner: skipping file", "path", path, "error", err)
		}

		return nil
	})
	if err != nil {
		return Snapshot{}, fmt.Errorf("syncvault: scanning %s: %w", vaultRoot, err)
	}

	return snap, nil
}

func (s *Scanner) scanFile(fullPath, rel string, d os.DirEntry, snap *Snapshot) error {
	if !isSyncable(rel) {
		return nil
	}

	resolved, err := resolveForRead(fullPath)
	if err != nil {
		return err
	}

	info, err := d.Info()
	if err != nil {
		return fmt.Errorf("stat: %w", err)
	}

	f, err := os.Open(resolved)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	hash, err := cryptoutil.HashReader(f)
	if err != nil {
		return fmt.Errorf("hashing: %w", err)
	}

	normPath := normalizePath(rel)

	fi := FileInfo{
		RelativePath: normPath,
		Hash:         hash,
		Size:         info.Size(),
		ModifiedAtMs: info.ModTime().UnixMilli(),
	}

	snap.Files[normPath] = fi
	snap.FileCount++
	snap.ByteTotal += fi.Size

	return nil
}

// resolveForRead follows a symlink when it resolves cleanly. Any
// resolution failure falls back to reading the path as-is, which will
// simply fail the subsequent Open.
func resolveForRead(path string) (string, error) {
	fi, err := os.Lstat(path)
	if err != nil {
		return "", err
	}

	if fi.Mode()&os.ModeSymlink == 0 {
		return path, nil
	}

	target, err := filepath.EvalSymlinks(path)
	if err != nil {
		return path, nil
	}

	return target, nil
}

func shouldSkipDir(name string) bool {
	if SkipDirs[name] {
		return true
	}

	return strings.HasPrefix(name, ".") && name != "."
}

// isSyncable reports whether rel (a forward- or backslash relative path)
// names a file the scanner should include: extension in SyncExtensions,
// and no path component other than the final ".md" segment is a dotfile.
func isSyncable(rel string) bool {
	parts := strings.Split(filepath.ToSlash(rel), "/")

	for i, part := range parts {
		isLast := i == len(parts)-1
		if strings.HasPrefix(part, ".") && !(isLast && hasSyncableExt(part) && strings.HasSuffix(part, ".md")) {
			return false
		}
	}

	return hasSyncableExt(parts[len(parts)-1])
}

func hasSyncableExt(name string) bool {
	ext := strings.TrimPrefix(filepath.Ext(name), ".")
	return SyncExtensions[strings.ToLower(ext)]
}

// normalizePath converts OS separators to forward slashes and applies
// Unicode NFC normalization, so that the same logical path produces the
// same map key regardless of the host filesystem's normalization form.
func normalizePath(rel string) string {
	return norm.NFC.String(filepath.ToSlash(rel))
}

// DetectChanges computes a ChangeSet from a fresh Snapshot against the
// previously stored hash for each path: changed = absent from previous or
// hash differs; deleted = present in previous but absent from snapshot.
func DetectChanges(snap Snapshot, previousHash map[string]string) ChangeSet {
	var cs ChangeSet

	for path, fi := range snap.Files {
		prevHash, ok := previousHash[path]
		if !ok || prevHash != fi.Hash {
			cs.Changed = append(cs.Changed, fi)
		}
	}

	for path := range previousHash {
		if _, ok := snap.Files[path]; !ok {
			cs.Deleted = append(cs.Deleted, path)
		}
	}

	return cs
}
