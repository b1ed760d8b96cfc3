package syncvault

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ConflictSuffix is the literal infix marking a conflict file. A path is a
// conflict file iff its basename contains this substring.
const ConflictSuffix = ".sync-conflict-"

// ConflictManager detects, lists, and resolves conflict files within a
// vault. Conflict files carry ".sync-conflict-<device8><unix_secs>"
// inserted before the extension.
type ConflictManager struct {
	logger *slog.Logger
}

// NewConflictManager constructs a ConflictManager.
func NewConflictManager(logger *slog.Logger) *ConflictManager {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &ConflictManager{logger: logger}
}

// GenerateConflictPath builds the sibling conflict path for originalPath:
// <stem>.sync-conflict-<device8><unix_secs><.ext>, where device8 is the
// first 8 characters of deviceID.
func GenerateConflictPath(originalPath, deviceID string) string {
	device8 := deviceID
	if len(device8) > 8 {
		device8 = device8[:8]
	}

	stem, ext := conflictStemExt(originalPath)
	unixSecs := time.Now().Unix()

	return fmt.Sprintf("%s%s%s%d%s", stem, ConflictSuffix, device8, unixSecs, ext)
}

// conflictStemExt splits a path into (stem, ext) the way conflict naming
// needs: the extension is everything from the last dot onward, except for
// a leading-dot-only basename (a dotfile with no other dot), which has no
// extension at all.
func conflictStemExt(path string) (stem, ext string) {
	dir, base := filepath.Split(path)

	idx := strings.LastIndex(base, ".")
	if idx <= 0 {
		return dir + base, ""
	}

	return dir + base[:idx], base[idx:]
}

// IsConflictFile reports whether path's basename contains the conflict
// infix.
func IsConflictFile(path string) bool {
	return strings.Contains(filepath.Base(path), ConflictSuffix)
}

// GetOriginalPath strips the conflict infix and everything after it up to
// (but not including) the trailing extension, recovering the path the
// conflict file shadows.
// GetOriginalPath(GenerateConflictPath(p, d)) == p for any path p and
// device id d of length >= 8.
func GetOriginalPath(conflictPath string) (string, error) {
	dir, base := filepath.Split(conflictPath)

	idx := strings.Index(base, ConflictSuffix)
	if idx < 0 {
		return "", fmt.Errorf("syncvault: %q is not a conflict file", conflictPath)
	}

	stem := base[:idx]
	rest := base[idx+len(ConflictSuffix):]

	ext := ""
	if dotIdx := strings.LastIndex(rest, "."); dotIdx >= 0 {
		ext = rest[dotIdx:]
	}

	return dir + stem + ext, nil
}

// ListConflicts scans vaultRoot recursively (skipping dotted directories,
// matching Scanner's own skip rules) and returns a ConflictInfo per
// detected conflict file. OriginalPath is relative to vaultRoot with
// forward slashes; ConflictPath is the walked path, usable with Resolve.
func (c *ConflictManager) ListConflicts(vaultRoot string) ([]ConflictInfo, error) {
	var conflicts []ConflictInfo

	err := filepath.WalkDir(vaultRoot, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil
		}

		if d.IsDir() {
			if path != vaultRoot && shouldSkipDir(d.Name()) {
				return filepath.SkipDir
			}

			return nil
		}

		if !IsConflictFile(path) {
			return nil
		}

		info, statErr := d.Info()
		if statErr != nil {
			return nil
		}

		rel, relErr := filepath.Rel(vaultRoot, path)
		if relErr != nil {
			return nil
		}

		original, origErr := GetOriginalPath(filepath.ToSlash(rel))
		if origErr != nil {
			return nil
		}

		createdAt := parseEmbeddedTimestamp(filepath.Base(path))

		conflicts = append(conflicts, ConflictInfo{
			OriginalPath:     original,
			ConflictPath:     path,
			LocalModifiedAt:  info.ModTime().UnixMilli(),
			RemoteModifiedAt: 0,
			CreatedAt:        createdAt,
		})

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("syncvault: listing conflicts in %s: %w", vaultRoot, err)
	}

	return conflicts, nil
}

// parseEmbeddedTimestamp extracts the unix_secs portion embedded after the
// device8 prefix in a conflict basename, returning it as milliseconds.
func parseEmbeddedTimestamp(base string) int64 {
	idx := strings.Index(base, ConflictSuffix)
	if idx < 0 {
		return 0
	}

	rest := base[idx+len(ConflictSuffix):]
	if len(rest) < 8 {
		return 0
	}

	digits := rest[8:]

	end := 0
	for end < len(digits) && digits[end] >= '0' && digits[end] <= '9' {
		end++
	}

	secs, err := strconv.ParseInt(digits[:end], 10, 64)
	if err != nil {
		return 0
	}

	return secs * 1000
}

// Resolve applies resolution to the conflict file at conflictPath.
func (c *ConflictManager) Resolve(conflictPath string, resolution ConflictResolution) error {
	original, err := GetOriginalPath(conflictPath)
	if err != nil {
		return err
	}

	switch resolution {
	case KeepLocal:
		if err := os.Remove(conflictPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("syncvault: removing conflict file: %w", err)
		}

		return nil

	case KeepRemote:
		data, err := os.ReadFile(conflictPath)
		if err != nil {
			return fmt.Errorf("syncvault: reading conflict file: %w", err)
		}

		if err := os.WriteFile(original, data, 0o600); err != nil {
			return fmt.Errorf("syncvault: overwriting original: %w", err)
		}

		if err := os.Remove(conflictPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("syncvault: removing conflict file after copy: %w", err)
		}

		return nil

	case KeepBoth:
		stem, ext := conflictStemExt(original)
		copyPath := fmt.Sprintf("%s (copy %d)%s", stem, time.Now().Unix(), ext)

		if err := os.Rename(conflictPath, copyPath); err != nil {
			return fmt.Errorf("syncvault: renaming conflict to copy: %w", err)
		}

		return nil

	default:
		return fmt.Errorf("syncvault: unknown conflict resolution %d", resolution)
	}
}
