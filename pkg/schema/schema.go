package schema

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"

	"github.com/cuemby/mcci/pkg/types"
	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"
)

var (
	// ErrUnknownVariable is returned for variable ids or ordinals outside the schema.
	ErrUnknownVariable = errors.New("schema: unknown variable")

	// ErrInvalidSchema is returned when a schema document fails validation.
	ErrInvalidSchema = errors.New("schema: invalid")
)

// Variable is one schema entry.
type Variable struct {
	ID   types.VariableID `yaml:"id"`
	Name string           `yaml:"name"`
}

// Document is the on-disk form of a schema.
type Document struct {
	Variables []Variable `yaml:"variables"`
}

// Registry maps variable ids to dense ordinals and names. It is immutable
// once built and safe for concurrent use.
type Registry struct {
	variables   []Variable
	ordinals    map[types.VariableID]int
	fingerprint string
}

// Load reads a schema document from a YAML file.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file: %w", err)
	}
	return Parse(data)
}

// Parse builds a registry from YAML bytes.
func Parse(data []byte) (*Registry, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse schema: %w", err)
	}
	return New(doc.Variables)
}

// New builds a registry from a list of variables. Ordinals are assigned in
// ascending id order regardless of the order given.
func New(vars []Variable) (*Registry, error) {
	sorted := slices.Clone(vars)
	slices.SortFunc(sorted, func(a, b Variable) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})

	r := &Registry{
		variables: sorted,
		ordinals:  make(map[types.VariableID]int, len(sorted)),
	}
	for i, v := range sorted {
		if v.ID == 0 {
			return nil, fmt.Errorf("%w: variable %q has id 0", ErrInvalidSchema, v.Name)
		}
		if v.Name == "" {
			return nil, fmt.Errorf("%w: variable %d has no name", ErrInvalidSchema, v.ID)
		}
		if _, dup := r.ordinals[v.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate variable id %d", ErrInvalidSchema, v.ID)
		}
		r.ordinals[v.ID] = i
	}
	r.fingerprint = fingerprint(sorted)
	return r, nil
}

func fingerprint(vars []Variable) string {
	h := blake3.New()
	buf := make([]byte, 0, 64)
	for _, v := range vars {
		buf = strconv.AppendUint(buf[:0], uint64(v.ID), 10)
		buf = append(buf, ':')
		buf = append(buf, v.Name...)
		buf = append(buf, '\n')
		_, _ = h.Write(buf)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Cardinality returns the number of variables.
func (r *Registry) Cardinality() int { return len(r.variables) }

// OrdinalOf returns the dense index of id.
func (r *Registry) OrdinalOf(id types.VariableID) (int, error) {
	ord, ok := r.ordinals[id]
	if !ok {
		return 0, fmt.Errorf("%w: id %d", ErrUnknownVariable, id)
	}
	return ord, nil
}

// VariableOf returns the id at ordinal ord.
func (r *Registry) VariableOf(ord int) (types.VariableID, error) {
	if ord < 0 || ord >= len(r.variables) {
		return 0, fmt.Errorf("%w: ordinal %d", ErrUnknownVariable, ord)
	}
	return r.variables[ord].ID, nil
}

// NameOf returns the name of id.
func (r *Registry) NameOf(id types.VariableID) (string, error) {
	ord, err := r.OrdinalOf(id)
	if err != nil {
		return "", err
	}
	return r.variables[ord].Name, nil
}

// Fingerprint identifies the variable set. Two registries with the same ids
// and names have the same fingerprint.
func (r *Registry) Fingerprint() string { return r.fingerprint }

// Variables returns the variables in ordinal order.
func (r *Registry) Variables() []Variable { return slices.Clone(r.variables) }
