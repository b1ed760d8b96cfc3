package syncvault

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueEnqueueDedup(t *testing.T) {
	q := NewQueue()

	first := NewQueueItem("/vault", "notes/a.md", OpUpload)
	q.EnqueueUpload(first)

	second := NewQueueItem("/vault", "notes/a.md", OpUpload).WithPriority(PriorityHigh)
	q.EnqueueUpload(second)

	assert.Equal(t, 1, q.UploadCount(), "enqueuing the same path again must replace, not append")

	item, ok := q.NextUpload()
	require.True(t, ok)
	assert.Equal(t, second.ID, item.ID)
	assert.Equal(t, PriorityHigh, item.Priority)
}

func TestQueuePriorityOrdering(t *testing.T) {
	q := NewQueue()

	low := NewQueueItem("/vault", "a.md", OpUpload).WithPriority(PriorityLow)
	critical := NewQueueItem("/vault", "b.md", OpUpload).WithPriority(PriorityCritical)
	normal := NewQueueItem("/vault", "c.md", OpUpload).WithPriority(PriorityNormal)

	q.EnqueueUpload(low)
	q.EnqueueUpload(critical)
	q.EnqueueUpload(normal)

	item, ok := q.NextUpload()
	require.True(t, ok)
	assert.Equal(t, critical.ID, item.ID)
}

func TestQueueIsReadyBackoff(t *testing.T) {
	q := NewQueueWithConfig(5, 1000)

	item := NewQueueItem("/vault", "a.md", OpUpload)
	q.EnqueueUpload(item)

	q.FailUpload(item.ID, "network error")

	_, ok := q.NextUpload()
	assert.False(t, ok, "an item should not be ready immediately after a failed attempt")
}

func TestQueueExhaustedItemsNotReady(t *testing.T) {
	q := NewQueueWithConfig(2, 0)

	item := NewQueueItem("/vault", "a.md", OpUpload)
	q.EnqueueUpload(item)

	q.FailUpload(item.ID, "err")
	q.FailUpload(item.ID, "err")

	_, ok := q.NextUpload()
	assert.False(t, ok)

	failed := q.FailedItems()
	require.Len(t, failed, 1)
	assert.Equal(t, item.ID, failed[0].ID)
}

func TestQueueRetryFailedReadmits(t *testing.T) {
	q := NewQueueWithConfig(1, 0)

	item := NewQueueItem("/vault", "a.md", OpUpload)
	q.EnqueueUpload(item)
	q.FailUpload(item.ID, "err")

	require.Len(t, q.FailedItems(), 1)

	q.RetryFailed()

	assert.Empty(t, q.FailedItems())

	_, ok := q.NextUpload()
	assert.True(t, ok, "a reset item should be immediately ready again")
}

func TestQueueCalculateBackoffCaps(t *testing.T) {
	q := NewQueueWithConfig(20, 1000)

	assert.Equal(t, int64(1000), q.calculateBackoff(0))
	assert.Equal(t, int64(2000), q.calculateBackoff(1))
	assert.Equal(t, q.calculateBackoff(10), q.calculateBackoff(15), "exponent caps at 10")
}

func TestQueueCompleteRemovesItem(t *testing.T) {
	q := NewQueue()

	item := NewQueueItem("/vault", "a.md", OpUpload)
	q.EnqueueUpload(item)
	q.CompleteUpload(item.ID)

	assert.Equal(t, 0, q.UploadCount())
}

func TestQueueClearVaultOnlyAffectsThatVault(t *testing.T) {
	q := NewQueue()

	q.EnqueueUpload(NewQueueItem("/vault-a", "a.md", OpUpload))
	q.EnqueueUpload(NewQueueItem("/vault-b", "b.md", OpUpload))

	q.ClearVault("/vault-a")

	assert.Equal(t, 1, q.UploadCount())
	assert.Len(t, q.PendingUploads("/vault-b"), 1)
}

func TestQueueNewItemDefaultsToNormalPriority(t *testing.T) {
	item := NewQueueItem("/vault", "a.md", OpDownload)
	assert.Equal(t, PriorityNormal, item.Priority)
	assert.WithinDuration(t, time.Now(), time.UnixMilli(item.CreatedAtMs), time.Second)
}
