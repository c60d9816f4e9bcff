package bank

import (
	"github.com/cuemby/mcci/pkg/fibheap"
	"github.com/cuemby/mcci/pkg/linearhash"
	"github.com/cuemby/mcci/pkg/types"
	"github.com/google/btree"
)

// Keyer extracts the single hash key a key set is filed under. The zero value
// of an implementation must be usable.
type Keyer[S any, K linearhash.Key] interface {
	KeyOf(s S) K
}

// PairKeyer extracts the two nested hash keys a key set is filed under. The
// zero value of an implementation must be usable.
type PairKeyer[S any, K1, K2 linearhash.Key] interface {
	Key1Of(s S) K1
	Key2Of(s S) K2
}

type subscriber struct {
	client types.ClientID
	handle fibheap.Handle
}

// clientMap is the set of clients filed under one key set, ordered by id.
type clientMap struct {
	tree *btree.BTreeG[subscriber]
}

func newClientMap() *clientMap {
	return &clientMap{tree: btree.NewG(4, func(a, b subscriber) bool { return a.client < b.client })}
}

func (m *clientMap) get(c types.ClientID) (fibheap.Handle, bool) {
	s, ok := m.tree.Get(subscriber{client: c})
	return s.handle, ok
}

func (m *clientMap) set(c types.ClientID, h fibheap.Handle) {
	m.tree.ReplaceOrInsert(subscriber{client: c, handle: h})
}

func (m *clientMap) remove(c types.ClientID) (fibheap.Handle, bool) {
	s, ok := m.tree.Delete(subscriber{client: c})
	return s.handle, ok
}

func (m *clientMap) len() int { return m.tree.Len() }

func (m *clientMap) each(fn func(types.ClientID, fibheap.Handle) bool) {
	m.tree.Ascend(func(s subscriber) bool { return fn(s.client, s.handle) })
}

func (m *clientMap) snapshot() []subscriber {
	out := make([]subscriber, 0, m.tree.Len())
	m.tree.Ascend(func(s subscriber) bool {
		out = append(out, s)
		return true
	})
	return out
}

type oneKey[S any, K linearhash.Key, X Keyer[S, K]] struct {
	table *linearhash.Table[K, *clientMap]
	keyer X
}

func (ix *oneKey[S, K, X]) clients(s S) *clientMap {
	m, _ := ix.table.Get(ix.keyer.KeyOf(s))
	return m
}

func (ix *oneKey[S, K, X]) add(s S, c types.ClientID, h fibheap.Handle) {
	ix.table.GetOrInsert(ix.keyer.KeyOf(s), newClientMap).set(c, h)
}

func (ix *oneKey[S, K, X]) removeClient(s S, c types.ClientID) (fibheap.Handle, bool) {
	k := ix.keyer.KeyOf(s)
	m, ok := ix.table.Get(k)
	if !ok {
		return fibheap.Nil, false
	}
	h, ok := m.remove(c)
	if m.len() == 0 {
		ix.table.Remove(k)
	}
	return h, ok
}

func (ix *oneKey[S, K, X]) removeKey(s S) { ix.table.Remove(ix.keyer.KeyOf(s)) }

func (ix *oneKey[S, K, X]) keyCount() int { return ix.table.Count() }

type twoKey[S any, K1, K2 linearhash.Key, X PairKeyer[S, K1, K2]] struct {
	table *linearhash.Table[K1, *linearhash.Table[K2, *clientMap]]
	size2 int
	keyer X
}

func (ix *twoKey[S, K1, K2, X]) clients(s S) *clientMap {
	inner, ok := ix.table.Get(ix.keyer.Key1Of(s))
	if !ok {
		return nil
	}
	m, _ := inner.Get(ix.keyer.Key2Of(s))
	return m
}

func (ix *twoKey[S, K1, K2, X]) add(s S, c types.ClientID, h fibheap.Handle) {
	inner := ix.table.GetOrInsert(ix.keyer.Key1Of(s), func() *linearhash.Table[K2, *clientMap] {
		return linearhash.NewNearestPrime[K2, *clientMap](ix.size2)
	})
	inner.GetOrInsert(ix.keyer.Key2Of(s), newClientMap).set(c, h)
}

func (ix *twoKey[S, K1, K2, X]) removeClient(s S, c types.ClientID) (fibheap.Handle, bool) {
	k1, k2 := ix.keyer.Key1Of(s), ix.keyer.Key2Of(s)
	inner, ok := ix.table.Get(k1)
	if !ok {
		return fibheap.Nil, false
	}
	m, ok := inner.Get(k2)
	if !ok {
		return fibheap.Nil, false
	}
	h, ok := m.remove(c)
	if m.len() == 0 {
		inner.Remove(k2)
		if inner.Empty() {
			ix.table.Remove(k1)
		}
	}
	return h, ok
}

func (ix *twoKey[S, K1, K2, X]) removeKey(s S) {
	k1 := ix.keyer.Key1Of(s)
	inner, ok := ix.table.Get(k1)
	if !ok {
		return
	}
	inner.Remove(ix.keyer.Key2Of(s))
	if inner.Empty() {
		ix.table.Remove(k1)
	}
}

func (ix *twoKey[S, K1, K2, X]) keyCount() int {
	n := 0
	for _, inner := range ix.table.All() {
		n += inner.Count()
	}
	return n
}

// NewOneKey creates a bank whose key sets hash through a single table of
// roughly size buckets.
func NewOneKey[S any, K linearhash.Key, X Keyer[S, K]](name string, maxClients, size int, opts ...Option) *Bank[S] {
	ix := &oneKey[S, K, X]{table: linearhash.NewNearestPrime[K, *clientMap](size)}
	return newBank[S](name, maxClients, ix, opts)
}

// NewTwoKey creates a bank whose key sets hash through an outer table of
// roughly size1 buckets holding inner tables of roughly size2 buckets.
func NewTwoKey[S any, K1, K2 linearhash.Key, X PairKeyer[S, K1, K2]](name string, maxClients, size1, size2 int, opts ...Option) *Bank[S] {
	ix := &twoKey[S, K1, K2, X]{
		table: linearhash.NewNearestPrime[K1, *linearhash.Table[K2, *clientMap]](size1),
		size2: size2,
	}
	return newBank[S](name, maxClients, ix, opts)
}
