package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTrackAllocationAndDeallocation(t *testing.T) {
	b := New(0)
	b.TrackAllocation(1, 100)
	b.TrackAllocation(2, 200)
	assert.Equal(t, int64(300), b.TotalBytes())

	b.TrackDeallocation(1)
	assert.Equal(t, int64(200), b.TotalBytes())
}

func TestAllocateHandle_IssuesDistinctValues(t *testing.T) {
	b := New(0)
	seen := make(map[uint64]bool)
	for i := 0; i < 100; i++ {
		h := b.AllocateHandle()
		assert.False(t, seen[h], "handle %d issued twice", h)
		seen[h] = true
	}
}

func TestAllocateHandle_ConcurrentCallersGetDistinctHandles(t *testing.T) {
	b := New(0)
	const n = 50
	results := make(chan uint64, n)
	for i := 0; i < n; i++ {
		go func() { results <- b.AllocateHandle() }()
	}

	seen := make(map[uint64]bool)
	for i := 0; i < n; i++ {
		h := <-results
		assert.False(t, seen[h], "handle %d issued twice across goroutines", h)
		seen[h] = true
	}
}

func TestGetLRUModel_SkipsRefCounted(t *testing.T) {
	b := New(0)
	b.TrackAllocation(1, 10)
	b.TrackAllocation(2, 10)
	b.IncrementRefCount(1)

	handle, found := b.GetLRUModel()
	assert.True(t, found)
	assert.Equal(t, uint64(2), handle, "handle 1 is ref-counted, must not be selected")
}

func TestGetLRUModel_NoneEvictable(t *testing.T) {
	b := New(0)
	b.TrackAllocation(1, 10)
	b.IncrementRefCount(1)

	_, found := b.GetLRUModel()
	assert.False(t, found)
}

func TestRecordAccess_MovesToMRU(t *testing.T) {
	b := New(0)
	b.TrackAllocation(1, 10)
	b.TrackAllocation(2, 10)
	b.RecordAccess(1) // 1 is now most-recently-used

	handle, found := b.GetLRUModel()
	assert.True(t, found)
	assert.Equal(t, uint64(2), handle)
}

func TestNeedsEviction(t *testing.T) {
	b := New(100)
	b.TrackAllocation(1, 80)

	assert.False(t, b.NeedsEviction(10))
	assert.True(t, b.NeedsEviction(30))
}

func TestNeedsEviction_UnlimitedNeverTrue(t *testing.T) {
	b := New(0)
	b.TrackAllocation(1, 1<<40)
	assert.False(t, b.NeedsEviction(1<<40))
}

func TestGetEvictionCandidates_LRUOrderUntilEnoughFreed(t *testing.T) {
	b := New(100)
	b.TrackAllocation(1, 40) // oldest
	b.TrackAllocation(2, 40)
	b.TrackAllocation(3, 20) // newest

	candidates := b.GetEvictionCandidates(50)
	assert.Equal(t, []uint64{1, 2}, candidates, "must evict in LRU order until requiredBytes fits")
}

func TestGetEvictionCandidates_SkipsRefCounted(t *testing.T) {
	b := New(100)
	b.TrackAllocation(1, 40)
	b.TrackAllocation(2, 40)
	b.IncrementRefCount(1)

	candidates := b.GetEvictionCandidates(50)
	assert.Equal(t, []uint64{2}, candidates)
}

func TestPressureCallback_FiresOnRisingEdgeOnly(t *testing.T) {
	b := New(100)
	fireCount := 0
	b.SetPressureCallback(func(usage, limit int64) { fireCount++ })

	b.TrackAllocation(1, 95) // crosses 90% threshold
	assert.Equal(t, 1, fireCount)

	b.TrackAllocation(2, 1) // still over threshold, must not re-fire
	assert.Equal(t, 1, fireCount)

	b.TrackDeallocation(1)
	b.TrackDeallocation(2)
	b.TrackAllocation(3, 95) // falls then rises again: fires once more
	assert.Equal(t, 2, fireCount)
}

func TestDecrementRefCount_SaturatesAtZero(t *testing.T) {
	b := New(0)
	b.TrackAllocation(1, 10)
	b.DecrementRefCount(1) // already zero, must not underflow
	b.IncrementRefCount(1)
	b.DecrementRefCount(1)
	b.DecrementRefCount(1)

	handle, found := b.GetLRUModel()
	assert.True(t, found)
	assert.Equal(t, uint64(1), handle)
}

func TestErrOutOfMemory(t *testing.T) {
	err := ErrOutOfMemory(1024)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "1024")
}
