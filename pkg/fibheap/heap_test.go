package fibheap

import (
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func minKey(t *testing.T, h *Heap[uint64, int]) uint64 {
	t.Helper()
	m, err := h.Minimum()
	require.NoError(t, err)
	return h.Key(m)
}

func drain(t *testing.T, h *Heap[uint64, int]) []uint64 {
	t.Helper()
	var keys []uint64
	for !h.Empty() {
		keys = append(keys, minKey(t, h))
		require.NoError(t, h.RemoveMinimum())
		require.NoError(t, h.Validate())
	}
	return keys
}

func TestEmptyHeap(t *testing.T) {
	h := New[uint64, int]()

	_, err := h.Minimum()
	assert.ErrorIs(t, err, ErrEmpty)
	assert.ErrorIs(t, h.RemoveMinimum(), ErrEmpty)
	assert.True(t, h.Empty())
	assert.NoError(t, h.Validate())
}

func TestInsertTracksMinimum(t *testing.T) {
	h := New[uint64, int]()
	for i, k := range []uint64{50, 20, 70, 10, 30, 10} {
		h.Insert(k, i)
	}

	assert.Equal(t, 6, h.Len())
	assert.Equal(t, uint64(10), minKey(t, h))
	m, _ := h.Minimum()
	assert.Equal(t, 3, h.Value(m), "first of equal keys stays the minimum")
}

func TestRemoveMinimumYieldsSortedKeys(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	h := New[uint64, int]()
	var want []uint64
	for i := range 500 {
		k := rng.Uint64N(1000)
		want = append(want, k)
		h.Insert(k, i)
	}
	slices.Sort(want)

	assert.Equal(t, want, drain(t, h))
}

func TestDecreaseKey(t *testing.T) {
	h := New[uint64, int]()
	handles := make([]Handle, 0, 64)
	for i := range 64 {
		handles = append(handles, h.Insert(uint64(100+i), i))
	}
	// force trees to form
	require.NoError(t, h.RemoveMinimum())
	require.NoError(t, h.Validate())

	require.NoError(t, h.DecreaseKey(handles[40], 5))
	assert.Equal(t, uint64(5), minKey(t, h))
	require.NoError(t, h.Validate())

	require.NoError(t, h.DecreaseKey(handles[63], 7))
	require.NoError(t, h.DecreaseKey(handles[62], 6))
	require.NoError(t, h.Validate())

	keys := drain(t, h)
	assert.Equal(t, []uint64{5, 6, 7}, keys[:3])
	assert.True(t, slices.IsSorted(keys))
}

func TestDecreaseKeyRejectsNonDecrease(t *testing.T) {
	h := New[uint64, int]()
	x := h.Insert(10, 0)

	assert.ErrorIs(t, h.DecreaseKey(x, 10), ErrInvalidKeyChange)
	assert.ErrorIs(t, h.DecreaseKey(x, 11), ErrInvalidKeyChange)
	assert.Equal(t, uint64(10), h.Key(x))
}

func TestCascadingCut(t *testing.T) {
	h := New[uint64, int]()
	handles := make([]Handle, 0, 33)
	for i := range 33 {
		handles = append(handles, h.Insert(uint64(i), i))
	}
	require.NoError(t, h.RemoveMinimum()) // one tree of 32 nodes

	// cut many grandchildren so ancestors get marked and cascade
	for i := 32; i >= 2; i -= 3 {
		require.NoError(t, h.DecreaseKey(handles[i], uint64(i)-1-uint64(i%2)))
		require.NoError(t, h.Validate())
	}
	assert.True(t, slices.IsSorted(drain(t, h)))
}

func TestAlterKeyKeepsHandle(t *testing.T) {
	h := New[uint64, int]()
	var handles []Handle
	for i := range 20 {
		handles = append(handles, h.Insert(uint64(10+i), i))
	}
	require.NoError(t, h.RemoveMinimum())
	x := handles[7]

	require.NoError(t, h.AlterKey(x, 1000, 0))
	require.NoError(t, h.Validate())
	assert.True(t, h.Contains(x))
	assert.Equal(t, uint64(1000), h.Key(x))
	assert.Equal(t, 7, h.Value(x))
	assert.Equal(t, 19, h.Len())

	require.NoError(t, h.AlterKey(x, 2, 0))
	assert.Equal(t, uint64(2), minKey(t, h))
	m, _ := h.Minimum()
	assert.Equal(t, x, m)

	require.NoError(t, h.AlterKey(x, 2, 0), "same key is a no-op")
	assert.ErrorIs(t, h.AlterKey(x, 50, 2), ErrInvalidSentinel)
}

func TestRekeyWithoutSentinel(t *testing.T) {
	h := New[uint64, int]()
	a := h.Insert(0, 1)
	b := h.Insert(0, 2)
	h.Insert(3, 3)

	require.NoError(t, h.Rekey(a, 9))
	require.NoError(t, h.Validate())
	assert.Equal(t, uint64(9), h.Key(a))
	assert.Equal(t, 3, h.Len())
	m, _ := h.Minimum()
	assert.Equal(t, b, m)

	assert.Equal(t, []uint64{0, 3, 9}, drain(t, h))
}

func TestRemoveWithSentinel(t *testing.T) {
	h := New[uint64, int]()
	var handles []Handle
	for i := range 10 {
		handles = append(handles, h.Insert(uint64(10+i), i))
	}
	require.NoError(t, h.RemoveMinimum())

	require.NoError(t, h.Remove(handles[5], 0))
	assert.False(t, h.Contains(handles[5]))
	assert.Equal(t, 8, h.Len())
	require.NoError(t, h.Validate())

	assert.ErrorIs(t, h.Remove(handles[6], 11), ErrInvalidSentinel)
	assert.ErrorIs(t, h.Remove(handles[5], 0), ErrInvalidHandle)

	assert.Equal(t, []uint64{11, 12, 13, 14, 16, 17, 18, 19}, drain(t, h))
}

func TestDelete(t *testing.T) {
	h := New[uint64, int]()
	a := h.Insert(0, 0)
	b := h.Insert(0, 1)
	c := h.Insert(5, 2)

	require.NoError(t, h.Delete(b))
	require.NoError(t, h.Delete(c))
	require.NoError(t, h.Validate())
	assert.Equal(t, 1, h.Len())
	m, _ := h.Minimum()
	assert.Equal(t, a, m)

	require.NoError(t, h.Delete(a))
	assert.True(t, h.Empty())
	assert.ErrorIs(t, h.Delete(a), ErrInvalidHandle)
}

func TestReleasedSlotsAreReused(t *testing.T) {
	h := New[uint64, int]()
	a := h.Insert(1, 0)
	require.NoError(t, h.RemoveMinimum())
	b := h.Insert(2, 1)

	assert.Equal(t, a, b)
	assert.Equal(t, 1, h.Value(b))
}

func TestMerge(t *testing.T) {
	a := New[uint64, int]()
	b := New[uint64, int]()
	for i := range 10 {
		a.Insert(uint64(2*i+1), i)
		b.Insert(uint64(2*i), i)
	}
	require.NoError(t, b.RemoveMinimum())
	kept := b.Insert(100, 42)

	tr := a.Merge(b)
	require.NoError(t, a.Validate())
	assert.True(t, b.Empty())
	assert.Equal(t, 20, a.Len())
	assert.Equal(t, uint64(1), minKey(t, a))
	assert.Equal(t, 42, a.Value(tr(kept)))

	keys := drain(t, a)
	assert.True(t, slices.IsSorted(keys))
	assert.Len(t, keys, 20)
}

// TestRandomOperations checks that the minimum always matches a reference
// model under a random mix of operations.
func TestRandomOperations(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	h := New[uint64, int]()
	live := map[Handle]uint64{}

	refMin := func() uint64 {
		m := ^uint64(0)
		for _, k := range live {
			m = min(m, k)
		}
		return m
	}
	pick := func() Handle {
		for x := range live {
			return x
		}
		return Nil
	}

	for step := range 3000 {
		switch op := rng.IntN(6); {
		case op <= 1 || len(live) == 0:
			k := rng.Uint64N(10_000) + 1
			live[h.Insert(k, step)] = k
		case op == 2:
			m, err := h.Minimum()
			require.NoError(t, err)
			delete(live, m)
			require.NoError(t, h.RemoveMinimum())
		case op == 3:
			x := pick()
			if live[x] > 1 {
				k := rng.Uint64N(live[x]-1) + 1
				require.NoError(t, h.DecreaseKey(x, k))
				live[x] = k
			}
		case op == 4:
			x := pick()
			k := rng.Uint64N(10_000) + 1
			require.NoError(t, h.Rekey(x, k))
			live[x] = k
		default:
			x := pick()
			require.NoError(t, h.Delete(x))
			delete(live, x)
		}

		require.Equal(t, len(live), h.Len())
		if len(live) > 0 {
			require.Equal(t, refMin(), minKey(t, h), "step %d", step)
		}
		if step%100 == 0 {
			require.NoError(t, h.Validate())
		}
	}
}

func TestSummary(t *testing.T) {
	h := New[uint64, string]()
	assert.Contains(t, h.Summary(), "count=0")
	h.Insert(3, "c")
	h.Insert(1, "a")
	assert.Contains(t, h.Summary(), "a:1:0:false")
}
