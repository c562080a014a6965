package executor

import (
	"sync"
	"weak"
)

// trackedPromise is the type-erased view of a Promise used by registry.
type trackedPromise interface {
	isPending() bool
	rejectPending(err error)
}

// weakPromise resolves a weak reference, returning nil once the promise has
// been garbage collected.
type weakPromise func() trackedPromise

func makeWeakPromise[T any](p *Promise[T]) weakPromise {
	wp := weak.Make(p)
	return func() trackedPromise {
		if v := wp.Value(); v != nil {
			return v
		}
		return nil
	}
}

// registry tracks the pending promises of an executor, using weak pointers
// so that abandoned promises may still be garbage collected. A ring of ids
// is walked incrementally by Scavenge, to drop settled or collected entries.
type registry struct {
	data map[uint64]weakPromise

	// ring is a circular buffer of ids, 0 marks a removed entry
	ring []uint64

	// head is the scavenger's cursor into ring
	head int

	nextID uint64
	mu     sync.Mutex

	// scavengeMu serializes Scavenge calls
	scavengeMu sync.Mutex
}

func newRegistry() *registry {
	return &registry{
		data:   make(map[uint64]weakPromise),
		ring:   make([]uint64, 0, 64),
		nextID: 1,
	}
}

// add registers a promise.
func add[T any](r *registry, p *Promise[T]) {
	wp := makeWeakPromise(p)

	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.nextID
	r.nextID++

	r.data[id] = wp
	r.ring = append(r.ring, id)
}

// Len returns the number of tracked entries, including any not yet
// scavenged.
func (r *registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.data)
}

// Scavenge checks up to batchSize entries, starting from the cursor,
// removing those that are settled or were collected.
func (r *registry) Scavenge(batchSize int) {
	r.scavengeMu.Lock()
	defer r.scavengeMu.Unlock()

	if batchSize <= 0 {
		return
	}

	type item struct {
		wp  weakPromise
		id  uint64
		idx int
	}

	r.mu.Lock()
	ringLen := len(r.ring)
	if ringLen == 0 {
		r.mu.Unlock()
		return
	}
	start := r.head
	end := min(start+batchSize, ringLen)
	items := make([]item, 0, end-start)
	for i := start; i < end; i++ {
		if id := r.ring[i]; id != 0 {
			if wp, ok := r.data[id]; ok {
				items = append(items, item{wp: wp, id: id, idx: i})
			}
		}
	}
	nextHead := end
	if nextHead >= ringLen {
		nextHead = 0
	}
	r.mu.Unlock()

	// resolve outside the lock, isPending takes the promise's own lock
	remove := items[:0]
	for _, it := range items {
		if p := it.wp(); p == nil || !p.isPending() {
			remove = append(remove, it)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, it := range remove {
		delete(r.data, it.id)
		if it.idx < len(r.ring) && r.ring[it.idx] == it.id {
			r.ring[it.idx] = 0
		}
	}

	r.head = nextHead

	if nextHead == 0 {
		// compact once per cycle, when mostly empty
		if capacity := len(r.ring); capacity > 256 && len(r.data) < capacity/4 {
			r.compact()
		}
	}
}

// RejectAll rejects every promise still pending with err, and clears the
// registry.
func (r *registry) RejectAll(err error) {
	r.mu.Lock()
	pending := make([]trackedPromise, 0, len(r.data))
	for _, id := range r.ring {
		if id == 0 {
			continue
		}
		if wp, ok := r.data[id]; ok {
			if p := wp(); p != nil && p.isPending() {
				pending = append(pending, p)
			}
		}
	}
	r.data = make(map[uint64]weakPromise)
	r.ring = r.ring[:0]
	r.head = 0
	r.mu.Unlock()

	// rejecting runs listeners, never under the registry lock
	for _, p := range pending {
		p.rejectPending(err)
	}
}

// compact removes null markers from the ring and rebuilds the map, so the
// memory held by deleted entries is released. Must be called with mu held.
func (r *registry) compact() {
	ring := make([]uint64, 0, len(r.data))
	data := make(map[uint64]weakPromise, len(r.data))
	for _, id := range r.ring {
		if id == 0 {
			continue
		}
		if wp, ok := r.data[id]; ok {
			ring = append(ring, id)
			data[id] = wp
		}
	}
	r.ring = ring
	r.data = data
	r.head = 0
}
