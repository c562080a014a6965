package local

import (
	"math/bits"
	"sync"
	"sync/atomic"

	"github.com/joeycumines/go-executor/internal/goid"
)

type (
	// Local is a goroutine-local slot holding a value of type T.
	//
	// The zero value is not usable, see [New].
	Local[T any] struct {
		initial   func() T
		onRemoval func(T)
		index     int
	}

	// remover is implemented by every Local, allowing RemoveAll to operate
	// on slots without knowing their value types.
	remover interface {
		Remove()
	}

	// block is the storage owned by a single goroutine.
	block struct {
		values   []any
		manifest []uint64
		size     int
	}
)

var (
	// nextIndex allocates slot indices, it is never reset.
	nextIndex atomic.Int64

	// slots maps index -> remover, populated by New, never pruned.
	slots sync.Map

	// blocks maps goroutine id -> *block.
	blocks     sync.Map
	blockCount atomic.Int64
)

// New allocates a new Local. Both initial and onRemoval are optional.
//
// If initial is provided, it is called at most once per goroutine, the first
// time [Local.Get] is called without a prior [Local.Set]. If onRemoval is
// provided, it is called with the old value whenever a set value is removed,
// including during [RemoveAll].
func New[T any](initial func() T, onRemoval func(T)) *Local[T] {
	x := &Local[T]{
		initial:   initial,
		onRemoval: onRemoval,
		index:     int(nextIndex.Add(1) - 1),
	}
	slots.Store(x.index, remover(x))
	return x
}

// Index returns the process-wide index of the slot.
func (x *Local[T]) Index() int { return x.index }

// Get returns the value for the calling goroutine, initializing it if
// necessary.
func (x *Local[T]) Get() T {
	b := currentBlock(true)
	if v, ok := b.load(x.index); ok {
		return as[T](v)
	}
	var v T
	if x.initial != nil {
		v = x.initial()
	}
	b.store(x.index, v)
	return v
}

// Lookup returns the value for the calling goroutine, without initializing
// it, or allocating storage for the goroutine.
func (x *Local[T]) Lookup() (T, bool) {
	if b := currentBlock(false); b != nil {
		if v, ok := b.load(x.index); ok {
			return as[T](v), true
		}
	}
	var zero T
	return zero, false
}

// Set stores the value for the calling goroutine.
func (x *Local[T]) Set(value T) {
	currentBlock(true).store(x.index, value)
}

// IsSet reports whether the calling goroutine holds a value for this slot.
func (x *Local[T]) IsSet() bool {
	b := currentBlock(false)
	return b != nil && b.has(x.index)
}

// Remove deletes the value for the calling goroutine, calling the removal
// callback if a value was present.
func (x *Local[T]) Remove() {
	b := currentBlock(false)
	if b == nil {
		return
	}
	v, ok := b.delete(x.index)
	if ok && x.onRemoval != nil {
		x.onRemoval(as[T](v))
	}
}

// RemoveAll removes every slot set on the calling goroutine, then discards
// the goroutine's storage block entirely. Removal callbacks run in index
// order. The block is discarded even if a callback panics.
func RemoveAll() {
	id := goid.Get()
	v, ok := blocks.Load(id)
	if !ok {
		return
	}
	b := v.(*block)
	defer func() {
		blocks.Delete(id)
		blockCount.Add(-1)
	}()
	for _, index := range b.indices() {
		if r, ok := slots.Load(index); ok {
			r.(remover).Remove()
		}
	}
}

// Blocks returns the number of goroutines currently owning a storage block.
func Blocks() int {
	return int(blockCount.Load())
}

// Size returns the number of slots set on the calling goroutine.
func Size() int {
	if b := currentBlock(false); b != nil {
		return b.size
	}
	return 0
}

func currentBlock(create bool) *block {
	id := goid.Get()
	if v, ok := blocks.Load(id); ok {
		return v.(*block)
	}
	if !create {
		return nil
	}
	b := new(block)
	blocks.Store(id, b)
	blockCount.Add(1)
	return b
}

func (b *block) has(index int) bool {
	word := index / 64
	return word < len(b.manifest) && b.manifest[word]&(1<<(index%64)) != 0
}

func (b *block) load(index int) (any, bool) {
	if !b.has(index) {
		return nil, false
	}
	return b.values[index], true
}

func (b *block) store(index int, value any) {
	if index >= len(b.values) {
		n := max(index+1, 2*len(b.values), 8)
		values := make([]any, n)
		copy(values, b.values)
		b.values = values
	}
	if word := index / 64; word >= len(b.manifest) {
		manifest := make([]uint64, word+1)
		copy(manifest, b.manifest)
		b.manifest = manifest
	}
	if !b.has(index) {
		b.manifest[index/64] |= 1 << (index % 64)
		b.size++
	}
	b.values[index] = value
}

func (b *block) delete(index int) (any, bool) {
	if !b.has(index) {
		return nil, false
	}
	v := b.values[index]
	b.values[index] = nil
	b.manifest[index/64] &^= 1 << (index % 64)
	b.size--
	return v, true
}

// indices snapshots the manifest, in ascending order.
func (b *block) indices() []int {
	out := make([]int, 0, b.size)
	for word, w := range b.manifest {
		for w != 0 {
			bit := bits.TrailingZeros64(w)
			out = append(out, word*64+bit)
			w &^= 1 << bit
		}
	}
	return out
}

func as[T any](v any) T {
	t, _ := v.(T)
	return t
}
