// Package memory implements the reference-counted LRU memory broker
// (spec.md §4.6, C7). The broker arbitrates eviction; it never evicts
// anything itself — the owning engine performs the actual unload.
package memory

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/localmind-ai/ondevice-sdk/internal/aierr"
)

// PressureFunc is invoked when resident usage crosses the 90%-of-limit
// threshold on the rising edge.
type PressureFunc func(usage, limit int64)

type record struct {
	sizeBytes  int64
	refCount   int64
	lastAccess uint64
}

// Broker tracks per-handle allocation size, reference counts, and LRU
// order under a single mutex, following the teacher's single-struct,
// single-mutex style for shared state (internal/orchestrator/registry.go).
type Broker struct {
	mu            sync.Mutex
	records       map[uint64]*record
	total         int64
	limit         int64
	seq           uint64
	onPressure    PressureFunc
	overThreshold bool

	handleSeq uint64
}

// New creates a broker with the given byte limit (0 = unlimited).
func New(limit int64) *Broker {
	return &Broker{
		records: make(map[uint64]*record),
		limit:   limit,
	}
}

// SetPressureCallback registers the callback invoked on threshold crossing.
func (b *Broker) SetPressureCallback(fn PressureFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onPressure = fn
}

// SetMemoryLimit changes the configured byte limit, re-evaluating the
// pressure threshold against current usage.
func (b *Broker) SetMemoryLimit(limit int64) {
	b.mu.Lock()
	b.limit = limit
	b.mu.Unlock()
	b.checkPressure()
}

func (b *Broker) threshold() int64 {
	if b.limit <= 0 {
		return -1
	}
	return int64(float64(b.limit) * 0.9)
}

// checkPressure re-evaluates the 90% threshold and fires onPressure on the
// rising edge, per spec.md's pressure-callback semantics.
func (b *Broker) checkPressure() {
	b.mu.Lock()
	th := b.threshold()
	if th < 0 {
		b.overThreshold = false
		b.mu.Unlock()
		return
	}
	usage := b.total
	limit := b.limit
	crossed := usage >= th
	fire := crossed && !b.overThreshold
	b.overThreshold = crossed
	cb := b.onPressure
	b.mu.Unlock()

	if fire && cb != nil {
		cb(usage, limit)
	}
}

// AllocateHandle issues a process-wide unique handle value. The LLM, STT,
// and TTS engines all share one Broker and must mint their handles from
// here, not from independent per-engine counters, so that records keyed
// by handle never alias across engine types.
func (b *Broker) AllocateHandle() uint64 {
	return atomic.AddUint64(&b.handleSeq, 1)
}

// TrackAllocation records a new handle's footprint and adds it to the
// global byte counter.
func (b *Broker) TrackAllocation(handle uint64, bytes int64) {
	b.mu.Lock()
	b.seq++
	b.records[handle] = &record{sizeBytes: bytes, lastAccess: b.seq}
	b.total += bytes
	b.mu.Unlock()

	b.checkPressure()
}

// TrackDeallocation removes a handle's record and subtracts its footprint.
func (b *Broker) TrackDeallocation(handle uint64) {
	b.mu.Lock()
	r, ok := b.records[handle]
	if ok {
		b.total -= r.sizeBytes
		delete(b.records, handle)
	}
	b.mu.Unlock()

	b.checkPressure()
}

// RecordAccess moves handle to the MRU end of the LRU ordering.
func (b *Broker) RecordAccess(handle uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if r, ok := b.records[handle]; ok {
		b.seq++
		r.lastAccess = b.seq
	}
}

// IncrementRefCount increases handle's reference count by one.
func (b *Broker) IncrementRefCount(handle uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if r, ok := b.records[handle]; ok {
		r.refCount++
	}
}

// DecrementRefCount decreases handle's reference count by one, saturating at zero.
func (b *Broker) DecrementRefCount(handle uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if r, ok := b.records[handle]; ok && r.refCount > 0 {
		r.refCount--
	}
}

// GetLRUModel returns the least-recently-used handle among evictable
// (ref_count == 0) records, and whether any such handle exists.
func (b *Broker) GetLRUModel() (uint64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var best uint64
	var bestSeq uint64
	found := false
	for h, r := range b.records {
		if r.refCount > 0 {
			continue
		}
		if !found || r.lastAccess < bestSeq {
			best, bestSeq, found = h, r.lastAccess, true
		}
	}
	return best, found
}

// NeedsEviction reports whether allocating requiredBytes more would exceed the
// configured limit. Always false when limit is 0 (unlimited).
func (b *Broker) NeedsEviction(requiredBytes int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.limit <= 0 {
		return false
	}
	return b.total+requiredBytes > b.limit
}

// GetEvictionCandidates returns handles in LRU→MRU order (skipping
// ref-counted ones), accumulating until their combined size would bring
// usage plus requiredBytes under the limit, or the full evictable set if
// even that is insufficient.
func (b *Broker) GetEvictionCandidates(requiredBytes int64) []uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	type entry = struct {
		handle uint64
		rec    *record
	}
	evictable := make([]entry, 0, len(b.records))
	for h, r := range b.records {
		if r.refCount == 0 {
			evictable = append(evictable, entry{h, r})
		}
	}
	sortByLRU(evictable)

	if b.limit <= 0 {
		return nil
	}

	var freed int64
	candidates := make([]uint64, 0, len(evictable))
	for _, e := range evictable {
		if b.total-freed+requiredBytes <= b.limit {
			break
		}
		candidates = append(candidates, e.handle)
		freed += e.rec.sizeBytes
	}
	return candidates
}

func sortByLRU(entries []struct {
	handle uint64
	rec    *record
}) {
	for i := 1; i < len(entries); i++ {
		j := i
		for j > 0 && entries[j-1].rec.lastAccess > entries[j].rec.lastAccess {
			entries[j-1], entries[j] = entries[j], entries[j-1]
			j--
		}
	}
}

// TotalBytes returns the current global byte accumulator (strict accounting).
func (b *Broker) TotalBytes() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.total
}

// ErrOutOfMemory is returned by callers that exhaust the eviction candidate
// set without freeing enough space; the broker itself never returns it —
// it only reports candidates.
func ErrOutOfMemory(requiredBytes int64) error {
	return aierr.New(aierr.ResourceOutOfMemory, "insufficient evictable memory to satisfy allocation",
		fmt.Sprintf("required_bytes=%d", requiredBytes)).
		WithRecovery("unload unused models or raise the configured memory limit")
}
