package schema

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cuemby/mcci/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
variables:
  - id: 7
    name: pressure
  - id: 1
    name: temperature
  - id: 3
    name: humidity
`

func TestParseAssignsDenseOrdinals(t *testing.T) {
	r, err := Parse([]byte(sample))
	require.NoError(t, err)

	assert.Equal(t, 3, r.Cardinality())
	for id, want := range map[types.VariableID]int{1: 0, 3: 1, 7: 2} {
		got, err := r.OrdinalOf(id)
		require.NoError(t, err)
		assert.Equal(t, want, got, "ordinal of %d", id)

		back, err := r.VariableOf(got)
		require.NoError(t, err)
		assert.Equal(t, id, back)
	}

	name, err := r.NameOf(7)
	require.NoError(t, err)
	assert.Equal(t, "pressure", name)
}

func TestUnknownVariable(t *testing.T) {
	r, err := Parse([]byte(sample))
	require.NoError(t, err)

	_, err = r.OrdinalOf(2)
	assert.ErrorIs(t, err, ErrUnknownVariable)
	_, err = r.VariableOf(3)
	assert.ErrorIs(t, err, ErrUnknownVariable)
	_, err = r.VariableOf(-1)
	assert.ErrorIs(t, err, ErrUnknownVariable)
	_, err = r.NameOf(99)
	assert.ErrorIs(t, err, ErrUnknownVariable)
}

func TestNewRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		vars []Variable
	}{
		{name: "zero id", vars: []Variable{{ID: 0, Name: "x"}}},
		{name: "empty name", vars: []Variable{{ID: 1}}},
		{name: "duplicate", vars: []Variable{{ID: 2, Name: "a"}, {ID: 2, Name: "b"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.vars)
			assert.ErrorIs(t, err, ErrInvalidSchema)
		})
	}
}

func TestFingerprint(t *testing.T) {
	a, err := New([]Variable{{ID: 1, Name: "a"}, {ID: 2, Name: "b"}})
	require.NoError(t, err)
	b, err := New([]Variable{{ID: 2, Name: "b"}, {ID: 1, Name: "a"}})
	require.NoError(t, err)
	c, err := New([]Variable{{ID: 1, Name: "a"}, {ID: 2, Name: "c"}})
	require.NoError(t, err)
	empty, err := New(nil)
	require.NoError(t, err)

	assert.Len(t, a.Fingerprint(), 64)
	assert.Equal(t, a.Fingerprint(), b.Fingerprint(), "order of declaration does not matter")
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())
	assert.NotEqual(t, a.Fingerprint(), empty.Fingerprint())
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0600))

	r, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, r.Cardinality())

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
