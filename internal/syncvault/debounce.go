package syncvault

import "sync"

// Debouncer coalesces a burst of FileChange events for the same
// (vault_path, relative_path) pair within a window:
//   - Create then Update collapses to Create (keep the earlier op).
//   - Create then Delete discards both (net no-op).
//   - Any other sequence adopts the later op.
type Debouncer struct {
	mu      sync.Mutex
	pending map[string]FileChange
}

// NewDebouncer constructs an empty Debouncer.
func NewDebouncer() *Debouncer {
	return &Debouncer{pending: make(map[string]FileChange)}
}

func debounceKey(c FileChange) string {
	return c.VaultPath + "\x00" + c.RelativePath
}

// Add folds change into the pending set, applying the coalescing rules.
func (d *Debouncer) Add(change FileChange) {
	d.mu.Lock()
	defer d.mu.Unlock()

	key := debounceKey(change)

	existing, ok := d.pending[key]
	if !ok {
		d.pending[key] = change
		return
	}

	switch {
	case existing.Op == RemoteCreate && change.Op == RemoteUpdate:
		// Keep the earlier Create.
		return
	case existing.Op == RemoteCreate && change.Op == RemoteDelete:
		delete(d.pending, key)
		return
	default:
		d.pending[key] = change
	}
}

// Take atomically drains and returns every pending change.
func (d *Debouncer) Take() []FileChange {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.pending) == 0 {
		return nil
	}

	out := make([]FileChange, 0, len(d.pending))
	for _, c := range d.pending {
		out = append(out, c)
	}

	d.pending = make(map[string]FileChange)

	return out
}

// HasPending reports whether any change is currently buffered.
func (d *Debouncer) HasPending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	return len(d.pending) > 0
}

// PendingCount returns the number of buffered changes.
func (d *Debouncer) PendingCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return len(d.pending)
}
