/*
Package fibheap implements a generic min-ordered Fibonacci heap.

The heap backs every subscription bank: keys are expiry times, values name the
subscription. Insert and DecreaseKey run in amortized O(1), RemoveMinimum in
amortized O(log n).

Nodes are stored in an arena owned by the heap and linked by Handle rather
than by pointer. A handle returned by Insert stays valid until the node is
removed, including across upward key changes: AlterKey and Rekey detach the
node without releasing it and reinsert the same slot, so a bank can keep the
handle in its key index while a subscription's timeout is extended or
shortened.

	h := fibheap.New[types.Time, string]()
	x := h.Insert(30, "a")
	h.Insert(10, "b")
	_ = h.Rekey(x, 5)      // x is now the minimum
	_ = h.Rekey(x, 50)     // and now the maximum, same handle
	m, _ := h.Minimum()    // "b"
	_ = h.RemoveMinimum()

Precondition violations (removing from an empty heap, a DecreaseKey that does
not decrease, a sentinel that is not below the minimum, a stale handle) return
errors and leave the heap unchanged. ErrCorrupt means an internal invariant
was found broken; the heap must not be used afterwards.
*/
package fibheap
