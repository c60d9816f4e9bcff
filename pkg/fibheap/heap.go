package fibheap

import (
	"cmp"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

var (
	// ErrEmpty is returned when the minimum of an empty heap is requested or removed.
	ErrEmpty = errors.New("fibheap: heap is empty")

	// ErrInvalidKeyChange is returned when DecreaseKey is asked for a key that is not smaller.
	ErrInvalidKeyChange = errors.New("fibheap: new key is not smaller than the current key")

	// ErrInvalidSentinel is returned when a sentinel key is not below the current minimum.
	ErrInvalidSentinel = errors.New("fibheap: sentinel must be smaller than every key in the heap")

	// ErrInvalidHandle is returned for handles that do not name a live node.
	ErrInvalidHandle = errors.New("fibheap: handle does not name a live node")

	// ErrCorrupt reports a broken parent/child or ring relationship.
	ErrCorrupt = errors.New("fibheap: heap structure is corrupt")
)

// Handle is a stable reference to a node. A handle stays valid from Insert
// until the node is removed, across any number of key changes.
type Handle int32

// Nil is the handle of no node.
const Nil Handle = -1

type node[K cmp.Ordered, V any] struct {
	key    K
	value  V
	degree int
	mark   bool
	live   bool

	parent Handle
	child  Handle // any one child; children form their own ring
	prev   Handle // circular sibling ring
	next   Handle
}

// Heap is a min-ordered Fibonacci heap. Nodes live in an arena and refer to
// each other by Handle, so splicing rings never invalidates outstanding
// handles.
//
// Heap is not safe for concurrent use.
type Heap[K cmp.Ordered, V any] struct {
	nodes     []node[K, V]
	free      []Handle
	min       Handle
	count     int
	maxDegree int
	logger    zerolog.Logger
}

type options struct {
	logger   zerolog.Logger
	capacity int
}

// Option configures a Heap.
type Option func(*options)

// WithLogger sets the logger used for trace output of structural changes.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithCapacity preallocates room for n nodes.
func WithCapacity(n int) Option {
	return func(o *options) { o.capacity = n }
}

// New creates an empty heap.
func New[K cmp.Ordered, V any](opts ...Option) *Heap[K, V] {
	o := options{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	return &Heap[K, V]{
		nodes:  make([]node[K, V], 0, o.capacity),
		min:    Nil,
		logger: o.logger,
	}
}

// Len returns the number of elements in the heap.
func (h *Heap[K, V]) Len() int { return h.count }

// Empty reports whether the heap holds no elements.
func (h *Heap[K, V]) Empty() bool { return h.count == 0 }

// Contains reports whether x names a live node of this heap.
func (h *Heap[K, V]) Contains(x Handle) bool {
	return x >= 0 && int(x) < len(h.nodes) && h.nodes[x].live
}

// Key returns the key of a live node.
func (h *Heap[K, V]) Key(x Handle) K { return h.nodes[x].key }

// Value returns the payload of a live node.
func (h *Heap[K, V]) Value(x Handle) V { return h.nodes[x].value }

// Insert adds a new element and returns its handle.
func (h *Heap[K, V]) Insert(key K, value V) Handle {
	x := h.alloc(key, value)
	h.count++
	h.insertRoot(x)
	h.logger.Trace().Int32("handle", int32(x)).Int("count", h.count).Msg("insert")
	return x
}

// Minimum returns the handle of the element with the smallest key.
func (h *Heap[K, V]) Minimum() (Handle, error) {
	if h.min == Nil {
		return Nil, ErrEmpty
	}
	return h.min, nil
}

// RemoveMinimum deletes the element with the smallest key.
func (h *Heap[K, V]) RemoveMinimum() error {
	return h.extractMin(true)
}

// DecreaseKey lowers the key of x. The new key must be strictly smaller.
func (h *Heap[K, V]) DecreaseKey(x Handle, key K) error {
	if !h.Contains(x) {
		return ErrInvalidHandle
	}
	n := &h.nodes[x]
	if !(key < n.key) {
		return fmt.Errorf("%w: %v -> %v", ErrInvalidKeyChange, n.key, key)
	}
	n.key = key

	p := n.parent
	if p == Nil {
		if key < h.nodes[h.min].key {
			h.min = x
		}
		return nil
	}
	if h.nodes[p].key <= key {
		return nil
	}
	return h.cascadingCut(x, p)
}

// AlterKey moves x to a new key in either direction. An upward change forces
// x to the top by lowering it to floor, detaches it without releasing it and
// reinserts the same node, so x stays valid. floor must be below every key.
func (h *Heap[K, V]) AlterKey(x Handle, key K, floor K) error {
	if !h.Contains(x) {
		return ErrInvalidHandle
	}
	cur := h.nodes[x].key
	switch {
	case key < cur:
		return h.DecreaseKey(x, key)
	case key > cur:
		if !(floor < h.nodes[h.min].key) {
			return fmt.Errorf("%w: %v", ErrInvalidSentinel, floor)
		}
		if err := h.DecreaseKey(x, floor); err != nil {
			return err
		}
		return h.reinsert(x, key)
	}
	return nil
}

// Rekey is AlterKey without a sentinel: the node is cut to the root list and
// made the minimum directly, which works for any key values including the
// smallest representable one.
func (h *Heap[K, V]) Rekey(x Handle, key K) error {
	if !h.Contains(x) {
		return ErrInvalidHandle
	}
	cur := h.nodes[x].key
	switch {
	case key < cur:
		return h.DecreaseKey(x, key)
	case key > cur:
		if err := h.promote(x); err != nil {
			return err
		}
		return h.reinsert(x, key)
	}
	return nil
}

// Remove deletes x by lowering it to floor and removing the minimum. floor
// must be smaller than the current minimum key.
func (h *Heap[K, V]) Remove(x Handle, floor K) error {
	if !h.Contains(x) {
		return ErrInvalidHandle
	}
	if !(floor < h.nodes[h.min].key) {
		return fmt.Errorf("%w: %v", ErrInvalidSentinel, floor)
	}
	if err := h.DecreaseKey(x, floor); err != nil {
		return err
	}
	return h.extractMin(true)
}

// Delete removes x regardless of key values.
func (h *Heap[K, V]) Delete(x Handle) error {
	if !h.Contains(x) {
		return ErrInvalidHandle
	}
	if err := h.promote(x); err != nil {
		return err
	}
	return h.extractMin(true)
}

// Merge moves every element of other into h and leaves other empty. Nodes are
// relocated into h's arena; the returned function translates handles issued
// by other into handles of h.
func (h *Heap[K, V]) Merge(other *Heap[K, V]) func(Handle) Handle {
	remap := make(map[Handle]Handle, other.count)
	for i := range other.nodes {
		if other.nodes[i].live {
			remap[Handle(i)] = h.alloc(other.nodes[i].key, other.nodes[i].value)
		}
	}
	tr := func(x Handle) Handle {
		if x == Nil {
			return Nil
		}
		return remap[x]
	}
	for old, x := range remap {
		src := &other.nodes[old]
		dst := &h.nodes[x]
		dst.degree = src.degree
		dst.mark = src.mark
		dst.parent = tr(src.parent)
		dst.child = tr(src.child)
		dst.prev = tr(src.prev)
		dst.next = tr(src.next)
	}

	if other.min != Nil {
		om := tr(other.min)
		if h.min == Nil {
			h.min = om
		} else {
			h.splice(h.min, om)
			if h.nodes[om].key < h.nodes[h.min].key {
				h.min = om
			}
		}
	}
	h.count += other.count
	h.maxDegree = max(h.maxDegree, other.maxDegree)

	*other = Heap[K, V]{min: Nil, logger: other.logger}
	return tr
}

// Validate walks the whole structure and checks the heap order, ring links,
// parent pointers, degrees and the element count.
func (h *Heap[K, V]) Validate() error {
	if h.min == Nil {
		if h.count != 0 {
			return fmt.Errorf("%w: no minimum but count is %d", ErrCorrupt, h.count)
		}
		return nil
	}
	seen := 0
	var walk func(first, parent Handle) (int, error)
	walk = func(first, parent Handle) (int, error) {
		siblings := 0
		x := first
		for {
			n := &h.nodes[x]
			if !n.live {
				return 0, fmt.Errorf("%w: released node %d still linked", ErrCorrupt, x)
			}
			if n.parent != parent {
				return 0, fmt.Errorf("%w: node %d has parent %d, want %d", ErrCorrupt, x, n.parent, parent)
			}
			if h.nodes[n.next].prev != x {
				return 0, fmt.Errorf("%w: ring broken after node %d", ErrCorrupt, x)
			}
			if parent != Nil && n.key < h.nodes[parent].key {
				return 0, fmt.Errorf("%w: node %d is smaller than its parent", ErrCorrupt, x)
			}
			if parent == Nil && n.key < h.nodes[h.min].key {
				return 0, fmt.Errorf("%w: root %d is smaller than the minimum", ErrCorrupt, x)
			}
			children := 0
			if n.child != Nil {
				var err error
				if children, err = walk(n.child, x); err != nil {
					return 0, err
				}
			}
			if children != n.degree {
				return 0, fmt.Errorf("%w: node %d has %d children but degree %d", ErrCorrupt, x, children, n.degree)
			}
			seen++
			siblings++
			if seen > len(h.nodes) {
				return 0, fmt.Errorf("%w: cycle detected", ErrCorrupt)
			}
			x = n.next
			if x == first {
				return siblings, nil
			}
		}
	}
	if _, err := walk(h.min, Nil); err != nil {
		return err
	}
	if seen != h.count {
		return fmt.Errorf("%w: reached %d nodes, count is %d", ErrCorrupt, seen, h.count)
	}
	return nil
}

// Summary renders the root list and every tree, for debugging.
func (h *Heap[K, V]) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "max_degree=%d count=%d roots=", h.maxDegree, h.count)
	if h.min == Nil {
		return b.String()
	}
	var tree func(x Handle)
	tree = func(x Handle) {
		n := &h.nodes[x]
		fmt.Fprintf(&b, "%v:%v:%d:%t", n.value, n.key, n.degree, n.mark)
		if n.child == Nil {
			return
		}
		b.WriteString("(")
		c := n.child
		for {
			tree(c)
			b.WriteString(" ")
			c = h.nodes[c].next
			if c == n.child {
				break
			}
		}
		b.WriteString(")")
	}
	x := h.min
	for {
		tree(x)
		b.WriteString(" ")
		x = h.nodes[x].next
		if x == h.min {
			break
		}
	}
	return b.String()
}

func (h *Heap[K, V]) alloc(key K, value V) Handle {
	var x Handle
	if n := len(h.free); n > 0 {
		x = h.free[n-1]
		h.free = h.free[:n-1]
	} else {
		x = Handle(len(h.nodes))
		h.nodes = append(h.nodes, node[K, V]{})
	}
	h.nodes[x] = node[K, V]{
		key:    key,
		value:  value,
		live:   true,
		parent: Nil,
		child:  Nil,
		prev:   x,
		next:   x,
	}
	return x
}

func (h *Heap[K, V]) release(x Handle) {
	h.nodes[x] = node[K, V]{parent: Nil, child: Nil, prev: Nil, next: Nil}
	h.free = append(h.free, x)
}

// splice inserts the ring containing b right after a.
func (h *Heap[K, V]) splice(a, b Handle) {
	an := h.nodes[a].next
	bp := h.nodes[b].prev
	h.nodes[an].prev = bp
	h.nodes[bp].next = an
	h.nodes[a].next = b
	h.nodes[b].prev = a
}

// unlink takes x out of its ring, leaving it a ring of one.
func (h *Heap[K, V]) unlink(x Handle) {
	p, n := h.nodes[x].prev, h.nodes[x].next
	h.nodes[p].next = n
	h.nodes[n].prev = p
	h.nodes[x].prev = x
	h.nodes[x].next = x
}

func (h *Heap[K, V]) addChild(p, c Handle) {
	if h.nodes[p].child == Nil {
		h.nodes[p].child = c
	} else {
		h.splice(h.nodes[p].child, c)
	}
	h.nodes[c].parent = p
	h.nodes[c].mark = false
	h.nodes[p].degree++
}

func (h *Heap[K, V]) removeChild(p, c Handle) error {
	if h.nodes[c].parent != p {
		return fmt.Errorf("%w: node %d is not a child of %d", ErrCorrupt, c, p)
	}
	if h.nodes[c].next == c {
		if h.nodes[p].child != c {
			return fmt.Errorf("%w: node %d is not in the child ring of %d", ErrCorrupt, c, p)
		}
		h.nodes[p].child = Nil
	} else {
		if h.nodes[p].child == c {
			h.nodes[p].child = h.nodes[c].next
		}
		h.unlink(c)
	}
	h.nodes[c].parent = Nil
	h.nodes[c].mark = false
	h.nodes[p].degree--
	return nil
}

func (h *Heap[K, V]) insertRoot(x Handle) {
	if h.min == Nil {
		h.min = x
		return
	}
	h.splice(h.min, x)
	if h.nodes[x].key < h.nodes[h.min].key {
		h.min = x
	}
}

// cascadingCut moves x from under p to the root list, then keeps cutting
// marked ancestors until it reaches a root or marks an unmarked one.
func (h *Heap[K, V]) cascadingCut(x, p Handle) error {
	for {
		if err := h.removeChild(p, x); err != nil {
			return err
		}
		h.insertRoot(x)
		h.logger.Trace().Int32("handle", int32(x)).Int32("parent", int32(p)).Msg("cut")

		pp := h.nodes[p].parent
		if pp == Nil {
			return nil
		}
		if !h.nodes[p].mark {
			h.nodes[p].mark = true
			return nil
		}
		x, p = p, pp
	}
}

// promote makes x the minimum without touching its key.
func (h *Heap[K, V]) promote(x Handle) error {
	if p := h.nodes[x].parent; p != Nil {
		if err := h.cascadingCut(x, p); err != nil {
			return err
		}
	}
	h.min = x
	return nil
}

// reinsert detaches the current minimum x intact and files it under key.
func (h *Heap[K, V]) reinsert(x Handle, key K) error {
	if h.min != x {
		return fmt.Errorf("%w: node %d was not promoted to the minimum", ErrCorrupt, x)
	}
	if err := h.extractMin(false); err != nil {
		return err
	}
	h.nodes[x].key = key
	h.count++
	h.insertRoot(x)
	return nil
}

// extractMin removes the minimum root and consolidates the root list. With
// release false the node is detached but kept alive for reinsertion.
func (h *Heap[K, V]) extractMin(release bool) error {
	if h.min == Nil {
		return ErrEmpty
	}
	m := h.min
	h.count--

	if c := h.nodes[m].child; c != Nil {
		x := c
		for {
			h.nodes[x].parent = Nil
			x = h.nodes[x].next
			if x == c {
				break
			}
		}
		h.nodes[m].child = Nil
		h.nodes[m].degree = 0
		h.splice(m, c)
	}

	if h.nodes[m].next == m {
		if h.count != 0 {
			return fmt.Errorf("%w: root list exhausted with %d elements left", ErrCorrupt, h.count)
		}
		h.min = Nil
		h.maxDegree = 0
		h.retire(m, release)
		return nil
	}

	roots := make([]Handle, h.maxDegree+1)
	for i := range roots {
		roots[i] = Nil
	}
	cur := h.nodes[m].next
	for {
		x := cur
		cur = h.nodes[cur].next
		d := h.nodes[x].degree
		for {
			for d >= len(roots) {
				roots = append(roots, Nil)
			}
			y := roots[d]
			if y == Nil {
				break
			}
			// ties keep the node being walked as the parent
			if h.nodes[x].key > h.nodes[y].key {
				x, y = y, x
			}
			h.unlink(y)
			h.addChild(x, y)
			roots[d] = Nil
			d++
		}
		roots[d] = x
		if cur == m {
			break
		}
	}

	h.retire(m, release)
	h.min = Nil
	maxDegree := 0
	for d, r := range roots {
		if r == Nil {
			continue
		}
		h.nodes[r].prev = r
		h.nodes[r].next = r
		h.insertRoot(r)
		if d > maxDegree {
			maxDegree = d
		}
	}
	h.maxDegree = maxDegree
	h.logger.Trace().Int("count", h.count).Int("max_degree", maxDegree).Msg("consolidated")
	return nil
}

func (h *Heap[K, V]) retire(x Handle, release bool) {
	if release {
		h.release(x)
		return
	}
	n := &h.nodes[x]
	n.prev = x
	n.next = x
	n.parent = Nil
	n.child = Nil
	n.degree = 0
	n.mark = false
}
