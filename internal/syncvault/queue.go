package syncvault

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Queue is a prioritized, deduplicating retry store. Upload and download
// items are tracked in separate lists; deletes are tracked alongside
// uploads (both push local state to the server).
type Queue struct {
	mu sync.RWMutex

	uploads   []QueueItem
	downloads []QueueItem

	maxRetries  int
	baseDelayMs int64
}

// Default retry settings: five attempts on a one-second base backoff.
const (
	defaultMaxRetries  = 5
	defaultBaseDelayMs = 1000
)

// NewQueue constructs a Queue with the reference defaults (max_retries=5,
// base_delay=1000ms).
func NewQueue() *Queue {
	return NewQueueWithConfig(defaultMaxRetries, defaultBaseDelayMs)
}

// NewQueueWithConfig constructs a Queue with custom retry settings.
func NewQueueWithConfig(maxRetries int, baseDelayMs int64) *Queue {
	return &Queue{maxRetries: maxRetries, baseDelayMs: baseDelayMs}
}

// NewQueueItem builds a QueueItem with a fresh ID, the given operation, and
// PriorityNormal.
func NewQueueItem(vaultPath, relativePath string, op QueueOperation) QueueItem {
	return QueueItem{
		ID:           uuid.NewString(),
		VaultPath:    vaultPath,
		RelativePath: relativePath,
		Operation:    op,
		CreatedAtMs:  time.Now().UnixMilli(),
		Priority:     PriorityNormal,
	}
}

// WithPriority returns a copy of item with its priority replaced.
func (item QueueItem) WithPriority(p Priority) QueueItem {
	item.Priority = p
	return item
}

// EnqueueUpload inserts item into the upload queue, removing any existing
// entry for the same (vault_path, relative_path) first, then inserting in
// priority order (highest first).
func (q *Queue) EnqueueUpload(item QueueItem) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.uploads = enqueueDedup(q.uploads, item)
}

// EnqueueDownload is the download-queue analog of EnqueueUpload.
func (q *Queue) EnqueueDownload(item QueueItem) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.downloads = enqueueDedup(q.downloads, item)
}

func enqueueDedup(list []QueueItem, item QueueItem) []QueueItem {
	filtered := list[:0:0]

	for _, existing := range list {
		if existing.VaultPath == item.VaultPath && existing.RelativePath == item.RelativePath {
			continue
		}

		filtered = append(filtered, existing)
	}

	pos := len(filtered)
	for i, existing := range filtered {
		if existing.Priority < item.Priority {
			pos = i
			break
		}
	}

	filtered = append(filtered, QueueItem{})
	copy(filtered[pos+1:], filtered[pos:])
	filtered[pos] = item

	return filtered
}

// NextUpload returns the highest-priority ready upload item, if any.
func (q *Queue) NextUpload() (QueueItem, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	return q.next(q.uploads)
}

// NextDownload is the download-queue analog of NextUpload.
func (q *Queue) NextDownload() (QueueItem, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	return q.next(q.downloads)
}

func (q *Queue) next(list []QueueItem) (QueueItem, bool) {
	now := time.Now().UnixMilli()

	for _, item := range list {
		if q.isReady(item, now) {
			return item, true
		}
	}

	return QueueItem{}, false
}

// isReady reports whether item may be attempted now: attempts below the
// retry ceiling, and either never attempted or the backoff window has
// elapsed since the last attempt.
func (q *Queue) isReady(item QueueItem, nowMs int64) bool {
	if item.Attempts >= q.maxRetries {
		return false
	}

	if item.LastAttemptMs == 0 {
		return true
	}

	return nowMs >= item.LastAttemptMs+q.calculateBackoff(item.Attempts)
}

// calculateBackoff returns base_delay * 2^min(attempts, 10).
func (q *Queue) calculateBackoff(attempts int) int64 {
	const maxExponent = 10

	exp := attempts
	if exp > maxExponent {
		exp = maxExponent
	}

	return q.baseDelayMs << uint(exp)
}

// CompleteUpload removes the upload item with the given ID.
func (q *Queue) CompleteUpload(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.uploads = removeByID(q.uploads, id)
}

// CompleteDownload removes the download item with the given ID.
func (q *Queue) CompleteDownload(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.downloads = removeByID(q.downloads, id)
}

func removeByID(list []QueueItem, id string) []QueueItem {
	out := list[:0:0]

	for _, item := range list {
		if item.ID != id {
			out = append(out, item)
		}
	}

	return out
}

// FailUpload increments attempts and stamps the failure for the upload item
// with the given ID.
func (q *Queue) FailUpload(id, errMsg string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	failItem(q.uploads, id, errMsg)
}

// FailDownload is the download-queue analog of FailUpload.
func (q *Queue) FailDownload(id, errMsg string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	failItem(q.downloads, id, errMsg)
}

func failItem(list []QueueItem, id, errMsg string) {
	for i := range list {
		if list[i].ID == id {
			list[i].Attempts++
			list[i].LastAttemptMs = time.Now().UnixMilli()
			list[i].LastError = errMsg

			return
		}
	}
}

// PendingUploads returns every upload item queued for vaultPath.
func (q *Queue) PendingUploads(vaultPath string) []QueueItem {
	q.mu.RLock()
	defer q.mu.RUnlock()

	return filterByVault(q.uploads, vaultPath)
}

// PendingDownloads returns every download item queued for vaultPath.
func (q *Queue) PendingDownloads(vaultPath string) []QueueItem {
	q.mu.RLock()
	defer q.mu.RUnlock()

	return filterByVault(q.downloads, vaultPath)
}

func filterByVault(list []QueueItem, vaultPath string) []QueueItem {
	var out []QueueItem

	for _, item := range list {
		if item.VaultPath == vaultPath {
			out = append(out, item)
		}
	}

	return out
}

// UploadCount and DownloadCount report total queue lengths.
func (q *Queue) UploadCount() int {
	q.mu.RLock()
	defer q.mu.RUnlock()

	return len(q.uploads)
}

func (q *Queue) DownloadCount() int {
	q.mu.RLock()
	defer q.mu.RUnlock()

	return len(q.downloads)
}

// FailedItems returns every item (upload or download) that has exhausted
// its retry budget.
func (q *Queue) FailedItems() []QueueItem {
	q.mu.RLock()
	defer q.mu.RUnlock()

	var failed []QueueItem

	for _, item := range q.uploads {
		if item.Attempts >= q.maxRetries {
			failed = append(failed, item)
		}
	}

	for _, item := range q.downloads {
		if item.Attempts >= q.maxRetries {
			failed = append(failed, item)
		}
	}

	return failed
}

// ClearVault removes every queued item for vaultPath from both queues.
func (q *Queue) ClearVault(vaultPath string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.uploads = removeByVault(q.uploads, vaultPath)
	q.downloads = removeByVault(q.downloads, vaultPath)
}

func removeByVault(list []QueueItem, vaultPath string) []QueueItem {
	out := list[:0:0]

	for _, item := range list {
		if item.VaultPath != vaultPath {
			out = append(out, item)
		}
	}

	return out
}

// ClearAll empties both queues.
func (q *Queue) ClearAll() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.uploads = nil
	q.downloads = nil
}

// RetryFailed resets attempts, last-attempt timestamp, and last error for
// every item that had exhausted its retry budget, re-admitting it.
func (q *Queue) RetryFailed() {
	q.mu.Lock()
	defer q.mu.Unlock()

	resetExhausted(q.uploads, q.maxRetries)
	resetExhausted(q.downloads, q.maxRetries)
}

func resetExhausted(list []QueueItem, maxRetries int) {
	for i := range list {
		if list[i].Attempts >= maxRetries {
			list[i].Attempts = 0
			list[i].LastAttemptMs = 0
			list[i].LastError = ""
		}
	}
}
