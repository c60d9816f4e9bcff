package linearhash

import (
	"errors"
	"iter"
	"sort"

	"github.com/google/btree"
)

// ErrInvalidSize is returned when a table is resized to zero buckets.
var ErrInvalidSize = errors.New("linearhash: bucket count must be positive")

// Key is the set of integer types a Table can be keyed by. The identity is
// used as the hash, so keys are expected to be small and mostly contiguous.
type Key interface {
	~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uint
}

// Primes is the table of bucket counts ResizeNearestPrime picks from: the
// largest values below successive powers of two.
var Primes = []int{
	1, 2, 3, 7, 13, 29, 61, 125, 251, 509, 1021, 2039, 4093, 8191, 16381, 32749, 65521,
}

// NearestPrime returns the smallest entry of Primes that is at least n, or the
// largest entry when n exceeds the table.
func NearestPrime(n int) int {
	i := sort.SearchInts(Primes, n)
	if i == len(Primes) {
		return Primes[len(Primes)-1]
	}
	return Primes[i]
}

type entry[K Key, V any] struct {
	key   K
	value V
}

func lessEntry[K Key, V any](a, b entry[K, V]) bool { return a.key < b.key }

const bucketDegree = 4

// Table maps integer keys to values through a fixed array of buckets selected
// by key modulo the bucket count. Each bucket is an ordered map, so iteration
// is deterministic: buckets in ascending index order, keys ascending within a
// bucket.
//
// Resizing discards every entry. Callers size a table once and resize only an
// empty table or one whose contents are being thrown away.
//
// Table is not safe for concurrent use, and mutating a table while ranging
// over it gives unspecified results.
type Table[K Key, V any] struct {
	buckets []*btree.BTreeG[entry[K, V]]
	free    *btree.FreeListG[entry[K, V]]
}

// New creates a table with exactly size buckets.
func New[K Key, V any](size int) (*Table[K, V], error) {
	t := &Table[K, V]{}
	if err := t.Resize(size); err != nil {
		return nil, err
	}
	return t, nil
}

// NewNearestPrime creates a table sized by ResizeNearestPrime.
func NewNearestPrime[K Key, V any](size int) *Table[K, V] {
	t := &Table[K, V]{}
	t.ResizeNearestPrime(size)
	return t
}

// Size returns the number of buckets.
func (t *Table[K, V]) Size() int { return len(t.buckets) }

// Resize replaces every bucket with exactly size empty buckets.
func (t *Table[K, V]) Resize(size int) error {
	if size <= 0 {
		return ErrInvalidSize
	}
	t.buckets = make([]*btree.BTreeG[entry[K, V]], size)
	t.free = btree.NewFreeListG[entry[K, V]](btree.DefaultFreeListSize)
	return nil
}

// ResizeNearestPrime resizes to NearestPrime(size) buckets and returns the
// chosen count.
func (t *Table[K, V]) ResizeNearestPrime(size int) int {
	n := NearestPrime(size)
	// n is always positive
	_ = t.Resize(n)
	return n
}

func (t *Table[K, V]) index(k K) int {
	return int(uint64(k) % uint64(len(t.buckets)))
}

func (t *Table[K, V]) bucket(k K, create bool) *btree.BTreeG[entry[K, V]] {
	i := t.index(k)
	b := t.buckets[i]
	if b == nil && create {
		b = btree.NewWithFreeListG[entry[K, V]](bucketDegree, lessEntry[K, V], t.free)
		t.buckets[i] = b
	}
	return b
}

// Insert stores value under k, replacing any previous value.
func (t *Table[K, V]) Insert(k K, value V) {
	t.bucket(k, true).ReplaceOrInsert(entry[K, V]{key: k, value: value})
}

// Remove deletes k if present.
func (t *Table[K, V]) Remove(k K) {
	if b := t.bucket(k, false); b != nil {
		b.Delete(entry[K, V]{key: k})
	}
}

// HasKey reports whether k is present.
func (t *Table[K, V]) HasKey(k K) bool {
	b := t.bucket(k, false)
	return b != nil && b.Has(entry[K, V]{key: k})
}

// Get returns the value stored under k.
func (t *Table[K, V]) Get(k K) (V, bool) {
	if b := t.bucket(k, false); b != nil {
		if e, ok := b.Get(entry[K, V]{key: k}); ok {
			return e.value, true
		}
	}
	var zero V
	return zero, false
}

// Index returns the value stored under k, first storing the zero value if k
// is absent.
func (t *Table[K, V]) Index(k K) V {
	b := t.bucket(k, true)
	if e, ok := b.Get(entry[K, V]{key: k}); ok {
		return e.value
	}
	var zero V
	b.ReplaceOrInsert(entry[K, V]{key: k, value: zero})
	return zero
}

// GetOrInsert returns the value under k, storing the result of create first
// if k is absent.
func (t *Table[K, V]) GetOrInsert(k K, create func() V) V {
	b := t.bucket(k, true)
	if e, ok := b.Get(entry[K, V]{key: k}); ok {
		return e.value
	}
	v := create()
	b.ReplaceOrInsert(entry[K, V]{key: k, value: v})
	return v
}

// Count returns the number of entries. It visits every bucket.
func (t *Table[K, V]) Count() int {
	n := 0
	for _, b := range t.buckets {
		if b != nil {
			n += b.Len()
		}
	}
	return n
}

// Empty reports whether the table holds no entries.
func (t *Table[K, V]) Empty() bool {
	for _, b := range t.buckets {
		if b != nil && b.Len() > 0 {
			return false
		}
	}
	return true
}

// MaxCollisions returns the number of entries in the fullest bucket.
func (t *Table[K, V]) MaxCollisions() int {
	m := 0
	for _, b := range t.buckets {
		if b != nil && b.Len() > m {
			m = b.Len()
		}
	}
	return m
}

// Clear removes every entry and keeps the bucket count.
func (t *Table[K, V]) Clear() {
	for _, b := range t.buckets {
		if b != nil {
			b.Clear(true)
		}
	}
}

// All iterates over every entry, buckets in ascending index order and keys in
// ascending order within a bucket. Each call starts a fresh pass.
func (t *Table[K, V]) All() iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		for _, b := range t.buckets {
			if b == nil {
				continue
			}
			stopped := false
			b.Ascend(func(e entry[K, V]) bool {
				if !yield(e.key, e.value) {
					stopped = true
					return false
				}
				return true
			})
			if stopped {
				return
			}
		}
	}
}

// Keys iterates over every key in the order of All.
func (t *Table[K, V]) Keys() iter.Seq[K] {
	return func(yield func(K) bool) {
		for k := range t.All() {
			if !yield(k) {
				return
			}
		}
	}
}
