package syncvault

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Watcher wraps one fsnotify.Watcher per vault, emitting filtered
// FileChange events onto a channel with a single producer and a single
// consumer; the Debouncer drains it. fsnotify.Watcher only watches the directories it is told
// about, so the Watcher walks the tree at Start and re-adds new
// directories as Create events for directories arrive.
type Watcher struct {
	vaultPath string
	logger    *slog.Logger

	fsw *fsnotify.Watcher
	out chan FileChange
}

// NewWatcher constructs a Watcher for vaultPath. Call Start to begin
// watching; call Close to release the underlying OS resources.
func NewWatcher(vaultPath string, logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		vaultPath: vaultPath,
		logger:    logger,
		fsw:       fsw,
		out:       make(chan FileChange, 256),
	}, nil
}

// Start adds every directory under vaultPath to the watch list and begins
// translating raw fsnotify events into FileChange values on the returned
// channel. The channel must be consumed by at most one goroutine (the
// Debouncer feed loop); taking the channel more than once is a caller bug.
func (w *Watcher) Start(ctx context.Context) (<-chan FileChange, error) {
	if err := w.addTree(w.vaultPath); err != nil {
		return nil, err
	}

	go w.loop(ctx)

	return w.out, nil
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}

		if d.IsDir() {
			if shouldSkipDir(filepath.Base(path)) && path != root {
				return filepath.SkipDir
			}

			return w.fsw.Add(path)
		}

		return nil
	})
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.out)

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}

			w.handleEvent(event)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}

			w.logger.Warn("watcher: fsnotify error", "vault", w.vaultPath, "error", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	rel, err := filepath.Rel(w.vaultPath, event.Name)
	if err != nil {
		return
	}

	if event.Has(fsnotify.Create) {
		// A newly created directory must be watched too.
		if fi, statErr := os.Stat(event.Name); statErr == nil && fi.IsDir() {
			if !shouldSkipDir(filepath.Base(event.Name)) {
				_ = w.fsw.Add(event.Name)
			}

			return
		}
	}

	if !passesWatchFilter(rel) {
		return
	}

	op, ok := mapEventOp(event)
	if !ok {
		return
	}

	change := FileChange{
		VaultPath:    w.vaultPath,
		RelativePath: normalizePath(rel),
		Op:           op,
	}

	select {
	case w.out <- change:
	default:
		w.logger.Warn("watcher: output channel full, dropping event", "vault", w.vaultPath, "path", rel)
	}
}

func mapEventOp(event fsnotify.Event) (RemoteChangeOp, bool) {
	switch {
	case event.Has(fsnotify.Create):
		return RemoteCreate, true
	case event.Has(fsnotify.Write):
		return RemoteUpdate, true
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		return RemoteDelete, true
	default:
		return "", false
	}
}

// passesWatchFilter admits a path when no component is hidden or on the
// ignore list, and the path is either a markdown note or anything under
// attachments/. Other syncable files elsewhere in the tree are picked up
// by the next full scan instead of the watcher.
func passesWatchFilter(rel string) bool {
	parts := strings.Split(filepath.ToSlash(rel), "/")

	for _, part := range parts {
		if strings.HasPrefix(part, ".") || SkipDirs[part] {
			return false
		}
	}

	if parts[0] == "attachments" && len(parts) > 1 {
		return true
	}

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(parts[len(parts)-1]), "."))

	return ext == "md"
}

// Close releases the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
