package queue

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CoderByBlood/whisper-cms-sub000/internal/core/domain"
)

// collector gathers delivered items under a lock so tests can wait for a
// count without racing the dispatcher.
type collector[T any] struct {
	mu    sync.Mutex
	items []T
}

func (c *collector[T]) add(item T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = append(c.items, item)
}

func (c *collector[T]) snapshot() []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]T(nil), c.items...)
}

func (c *collector[T]) waitLen(t *testing.T, n int) []T {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		got := c.snapshot()
		if len(got) >= n {
			return got
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d items, have %d", n, len(c.snapshot()))
	return nil
}

func TestQueueFIFODelivery(t *testing.T) {
	q := New[int]("test")
	defer q.Stop()

	var got collector[int]
	require.NoError(t, q.ForEachOwned(got.add))

	for i := 0; i < 10; i++ {
		require.NoError(t, q.Enqueue(i))
	}

	items := got.waitLen(t, 10)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, items)
}

func TestQueueEnqueueMany(t *testing.T) {
	q := New[string]("test")
	defer q.Stop()

	var got collector[string]
	require.NoError(t, q.ForEachOwned(got.add))
	require.NoError(t, q.EnqueueMany([]string{"a", "b", "c"}))

	assert.Equal(t, []string{"a", "b", "c"}, got.waitLen(t, 3))
}

func TestQueueItemsBeforeConsumerAreConsumedNotDelivered(t *testing.T) {
	q := New[int]("test")
	defer q.Stop()

	require.NoError(t, q.Enqueue(1))
	require.NoError(t, q.Enqueue(2))

	// wait until the dispatcher has drained both
	waitSeq(t, q, 2)

	var got collector[int]
	require.NoError(t, q.ForEachOwned(got.add))
	require.NoError(t, q.Enqueue(3))

	assert.Equal(t, []int{3}, got.waitLen(t, 1))
}

func TestQueueClockAdvancesOnConsumerPanic(t *testing.T) {
	q := New[int]("test")
	defer q.Stop()

	var got collector[int]
	require.NoError(t, q.ForEachOwned(func(v int) {
		if v == 1 {
			panic("boom")
		}
		got.add(v)
	}))

	require.NoError(t, q.Enqueue(0))
	require.NoError(t, q.Enqueue(1))
	require.NoError(t, q.Enqueue(2))

	assert.Equal(t, []int{0, 2}, got.waitLen(t, 2))
	waitSeq(t, q, 3)
}

func TestQueueReadDirty(t *testing.T) {
	q := New[int]("test")
	defer q.Stop()

	dirty, err := q.ReadDirty()
	require.NoError(t, err)
	assert.False(t, dirty)

	// a blocked consumer keeps the buffer non-empty
	release := make(chan struct{})
	require.NoError(t, q.ForEachOwned(func(int) { <-release }))
	require.NoError(t, q.Enqueue(1))
	require.NoError(t, q.Enqueue(2))
	close(release)

	waitSeq(t, q, 2)
	dirty, err = q.ReadDirty()
	require.NoError(t, err)
	assert.False(t, dirty)
}

func TestQueueEffectObservesClock(t *testing.T) {
	q := New[int]("test")
	defer q.Stop()

	var mu sync.Mutex
	var seqs []uint64
	require.NoError(t, q.Effect(func(seq uint64, dirty bool) {
		mu.Lock()
		seqs = append(seqs, seq)
		mu.Unlock()
	}))

	require.NoError(t, q.ForEachOwned(func(int) {}))
	require.NoError(t, q.Enqueue(1))
	require.NoError(t, q.Enqueue(2))
	waitSeq(t, q, 2)

	mu.Lock()
	defer mu.Unlock()
	// one observation at registration, one per dispatch
	assert.GreaterOrEqual(t, len(seqs), 3)
	assert.Equal(t, uint64(0), seqs[0])
	assert.Equal(t, uint64(2), seqs[len(seqs)-1])
}

func TestQueueReplaceConsumer(t *testing.T) {
	q := New[int]("test")
	defer q.Stop()

	var first, second collector[int]
	require.NoError(t, q.ForEachOwned(first.add))
	require.NoError(t, q.Enqueue(1))
	first.waitLen(t, 1)

	require.NoError(t, q.ForEachOwned(second.add))
	require.NoError(t, q.Enqueue(2))

	assert.Equal(t, []int{2}, second.waitLen(t, 1))
	assert.Equal(t, []int{1}, first.snapshot())
}

func TestQueueStopIsIdempotent(t *testing.T) {
	q := New[int]("test")
	q.Stop()
	q.Stop()

	assert.ErrorIs(t, q.Enqueue(1), domain.ErrQueueStopped)
	_, err := q.ReadSeq()
	assert.ErrorIs(t, err, domain.ErrQueueStopped)
	_, err = q.ReadDirty()
	assert.ErrorIs(t, err, domain.ErrQueueStopped)
}

func waitSeq[T any](t *testing.T, q *Queue[T], want uint64) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		seq, err := q.ReadSeq()
		require.NoError(t, err)
		if seq >= want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for seq %d", want)
}
