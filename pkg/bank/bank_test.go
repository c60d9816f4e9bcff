package bank

import (
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/cuemby/mcci/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func subscribers[S any](b *Bank[S], s S) []types.ClientID {
	return slices.Collect(b.Subscribers(s))
}

func TestAddFilesSubscription(t *testing.T) {
	b := NewVariableBank(8, 20)

	require.NoError(t, b.Add(4, 3, 100))
	require.NoError(t, b.Add(4, 1, 200))
	require.NoError(t, b.Add(5, 1, 50))

	assert.Equal(t, 3, b.Len())
	assert.Equal(t, 2, b.KeyCount())
	assert.Equal(t, []types.ClientID{1, 3}, subscribers(b, 4))
	assert.Equal(t, []types.ClientID{1}, subscribers(b, 5))
	assert.Empty(t, subscribers(b, 6))
	assert.True(t, b.Contains(4))
	assert.False(t, b.Contains(6))
	assert.True(t, b.ContainsClient(4, 3))
	assert.False(t, b.ContainsClient(5, 3))
	assert.Equal(t, uint32(2), b.OutstandingRequestCount(1))
	assert.Equal(t, uint32(1), b.OutstandingRequestCount(3))
	assert.Equal(t, uint32(0), b.OutstandingRequestCount(0))

	m, err := b.MinimumTimeout()
	require.NoError(t, err)
	assert.Equal(t, types.Time(50), m)
	assert.NoError(t, b.Validate())
}

func TestAddRejectsClientOutOfRange(t *testing.T) {
	b := NewHostBank(4, 20)

	assert.ErrorIs(t, b.Add(1, 4, 10), ErrClientOutOfRange)
	assert.ErrorIs(t, b.Add(1, 1000, 10), ErrClientOutOfRange)
	assert.NoError(t, b.Add(1, 3, 10))
	assert.Equal(t, uint32(0), b.OutstandingRequestCount(4))
	assert.Equal(t, 1, b.Len())
}

func TestAddAgainMovesExpiry(t *testing.T) {
	tests := []struct {
		name   string
		expiry types.Time
		min    types.Time
	}{
		{name: "later", expiry: 500, min: 200},
		{name: "earlier", expiry: 10, min: 10},
		{name: "same", expiry: 100, min: 100},
		{name: "zero", expiry: 0, min: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewHostVariableBank(4, 30)
			hv := types.HostVar{Host: 7, Variable: 2}
			require.NoError(t, b.Add(hv, 1, 100))
			require.NoError(t, b.Add(types.HostVar{Host: 7, Variable: 3}, 2, 200))

			require.NoError(t, b.Add(hv, 1, tt.expiry))

			assert.Equal(t, 2, b.Len())
			assert.Equal(t, uint32(1), b.OutstandingRequestCount(1))
			got, ok := b.Expiry(hv, 1)
			require.True(t, ok)
			assert.Equal(t, tt.expiry, got)
			m, err := b.MinimumTimeout()
			require.NoError(t, err)
			assert.Equal(t, tt.min, m)
			assert.NoError(t, b.Validate())
		})
	}
}

func TestRemoveMinimumDecrementsOwner(t *testing.T) {
	b := NewVariableRevisionBank(4, 100, 20)
	require.NoError(t, b.Add(types.VarRev{Variable: 1, Revision: 1}, 2, 30))
	require.NoError(t, b.Add(types.VarRev{Variable: 1, Revision: 2}, 2, 10))
	require.NoError(t, b.Add(types.VarRev{Variable: 1, Revision: 2}, 3, 20))

	require.NoError(t, b.RemoveMinimum())
	assert.Equal(t, uint32(1), b.OutstandingRequestCount(2))
	assert.Equal(t, uint32(1), b.OutstandingRequestCount(3))
	assert.False(t, b.ContainsClient(types.VarRev{Variable: 1, Revision: 2}, 2))
	assert.Equal(t, []types.ClientID{3}, subscribers(b, types.VarRev{Variable: 1, Revision: 2}))

	require.NoError(t, b.RemoveMinimum())
	assert.False(t, b.Contains(types.VarRev{Variable: 1, Revision: 2}))
	assert.Equal(t, 1, b.KeyCount())

	require.NoError(t, b.RemoveMinimum())
	assert.True(t, b.Empty())
	assert.Equal(t, 0, b.KeyCount())
	assert.ErrorIs(t, b.RemoveMinimum(), ErrEmpty)
	_, err := b.MinimumTimeout()
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestExpireBeforeIsStrict(t *testing.T) {
	b := NewVariableBank(4, 20)
	require.NoError(t, b.Add(1, 0, 100))
	require.NoError(t, b.Add(2, 1, 150))
	require.NoError(t, b.Add(3, 2, 200))

	n, err := b.ExpireBefore(150)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.False(t, b.Contains(1))
	assert.True(t, b.Contains(2), "expiry equal to now survives")

	n, err = b.ExpireBefore(1000)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.True(t, b.Empty())

	n, err = b.ExpireBefore(2000)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRemoveByKeyTouchesOnlyThatKey(t *testing.T) {
	b := NewRemoteRevisionBank(8, 20, 20)
	k := types.HostVarRev{Host: 9, Variable: 2, Revision: 5}
	sibling := types.HostVarRev{Host: 9, Variable: 2, Revision: 6}
	other := types.HostVarRev{Host: 8, Variable: 2, Revision: 5}
	require.NoError(t, b.Add(k, 1, 0))
	require.NoError(t, b.Add(k, 2, 40))
	require.NoError(t, b.Add(sibling, 1, 40))
	require.NoError(t, b.Add(other, 3, 40))

	n, err := b.RemoveByKey(k)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.False(t, b.Contains(k))
	assert.True(t, b.Contains(sibling))
	assert.True(t, b.Contains(other))
	assert.Equal(t, uint32(1), b.OutstandingRequestCount(1))
	assert.Equal(t, uint32(0), b.OutstandingRequestCount(2))
	assert.Equal(t, uint32(1), b.OutstandingRequestCount(3))
	assert.Equal(t, 2, b.Len())
	assert.NoError(t, b.Validate())

	n, err = b.RemoveByKey(k)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestHostVariableKeysDoNotCollide(t *testing.T) {
	b := NewHostVariableBank(4, 30)
	a := types.HostVar{Host: 1, Variable: 0}
	c := types.HostVar{Host: 0, Variable: 1 << 16}
	require.NoError(t, b.Add(a, 1, 10))
	require.NoError(t, b.Add(c, 2, 10))

	assert.Equal(t, []types.ClientID{1}, subscribers(b, a))
	assert.Equal(t, []types.ClientID{2}, subscribers(b, c))
}

func TestAllBank(t *testing.T) {
	b := NewAllBank(4)
	require.NoError(t, b.Add(types.Everything, 2, 10))
	require.NoError(t, b.Add(types.Everything, 0, 20))
	require.NoError(t, b.Add(types.Everything, 2, 30))

	assert.Equal(t, 2, b.Len())
	assert.Equal(t, []types.ClientID{0, 2}, subscribers(b, types.Everything))
	assert.Equal(t, "all", b.Name())
	assert.Equal(t, 4, b.MaxClients())
}

func TestSubscribersStopsEarly(t *testing.T) {
	b := NewHostBank(8, 20)
	for c := range types.ClientID(5) {
		require.NoError(t, b.Add(3, c, 10))
	}

	var seen []types.ClientID
	for c := range b.Subscribers(3) {
		seen = append(seen, c)
		if len(seen) == 2 {
			break
		}
	}
	assert.Equal(t, []types.ClientID{0, 1}, seen)
}

func TestRandomOperationsAgainstModel(t *testing.T) {
	const clients = 6
	rng := rand.New(rand.NewPCG(11, 7))
	b := NewVariableRevisionBank(clients, 13, 7)

	type sub struct {
		key    types.VarRev
		client types.ClientID
	}
	model := map[sub]types.Time{}
	count := func(c types.ClientID) uint32 {
		var n uint32
		for s := range model {
			if s.client == c {
				n++
			}
		}
		return n
	}

	for range 3000 {
		key := types.VarRev{Variable: types.VariableID(rng.IntN(4)), Revision: types.Revision(rng.IntN(5))}
		client := types.ClientID(rng.IntN(clients))
		switch rng.IntN(4) {
		case 0, 1:
			expiry := types.Time(rng.IntN(500))
			require.NoError(t, b.Add(key, client, expiry))
			model[sub{key, client}] = expiry
		case 2:
			n, err := b.RemoveByKey(key)
			require.NoError(t, err)
			removed := 0
			for s := range model {
				if s.key == key {
					delete(model, s)
					removed++
				}
			}
			assert.Equal(t, removed, n)
		case 3:
			now := types.Time(rng.IntN(200))
			_, err := b.ExpireBefore(now)
			require.NoError(t, err)
			for s, e := range model {
				if e < now {
					delete(model, s)
				}
			}
		}

		require.Equal(t, len(model), b.Len())
		for c := range types.ClientID(clients) {
			require.Equal(t, count(c), b.OutstandingRequestCount(c))
		}
	}
	require.NoError(t, b.Validate())
	for s, e := range model {
		got, ok := b.Expiry(s.key, s.client)
		require.True(t, ok)
		assert.Equal(t, e, got)
	}
}
