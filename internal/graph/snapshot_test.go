package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latticegraph/lattice/internal/entity"
)

func fnKey(name, path string, start int) entity.Key {
	return entity.Key{
		Language:  entity.LangGo,
		Kind:      entity.KindFunction,
		Name:      name,
		Path:      path,
		StartLine: start,
		EndLine:   start + 10,
	}
}

func TestNewSnapshot_Empty(t *testing.T) {
	t.Parallel()

	s, err := NewSnapshot(1, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, 0, s.EntityCount())
	assert.Equal(t, 0, s.EdgeCount())
	assert.Empty(t, s.Entities("", ""))
}

func TestNewSnapshot_RejectsDanglingEdges(t *testing.T) {
	t.Parallel()

	a := entity.New(fnKey("a", "a.go", 1))
	missing := fnKey("ghost", "b.go", 1)

	_, err := NewSnapshot(1, []*entity.Entity{a}, []Edge{
		{Source: a.Key, Target: missing, Kind: EdgeCalls},
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEntityNotFound)
}

func TestSnapshot_Adjacency(t *testing.T) {
	t.Parallel()

	a := entity.New(fnKey("a", "a.go", 1))
	b := entity.New(fnKey("b", "b.go", 1))
	c := entity.New(fnKey("c", "c.go", 1))

	s, err := NewSnapshot(1, []*entity.Entity{a, b, c}, []Edge{
		{Source: a.Key, Target: b.Key, Kind: EdgeCalls},
		{Source: c.Key, Target: b.Key, Kind: EdgeCalls},
		{Source: b.Key, Target: c.Key, Kind: EdgeUsesType},
	})
	require.NoError(t, err)

	t.Run("Forward", func(t *testing.T) {
		t.Parallel()
		fwd, err := s.Forward(a.Key)
		require.NoError(t, err)
		require.Len(t, fwd, 1)
		assert.Equal(t, b.Key, fwd[0].Key)
		assert.Equal(t, EdgeCalls, fwd[0].Kind)
	})

	t.Run("Reverse", func(t *testing.T) {
		t.Parallel()
		rev, err := s.Reverse(b.Key)
		require.NoError(t, err)
		require.Len(t, rev, 2)
		// Sorted by key ID: a.go before c.go.
		assert.Equal(t, a.Key, rev[0].Key)
		assert.Equal(t, c.Key, rev[1].Key)
	})

	t.Run("IsolatedEntityEmptyNotError", func(t *testing.T) {
		t.Parallel()
		d := entity.New(fnKey("d", "d.go", 1))
		s2, err := NewSnapshot(2, []*entity.Entity{d}, nil)
		require.NoError(t, err)

		fwd, err := s2.Forward(d.Key)
		require.NoError(t, err)
		assert.Empty(t, fwd)
	})

	t.Run("AbsentKeyIsError", func(t *testing.T) {
		t.Parallel()
		_, err := s.Forward(fnKey("nope", "nope.go", 1))
		assert.ErrorIs(t, err, ErrEntityNotFound)

		_, err = s.Reverse(fnKey("nope", "nope.go", 1))
		assert.ErrorIs(t, err, ErrEntityNotFound)
	})

	t.Run("InDegree", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, 2, s.InDegree(b.Key))
		assert.Equal(t, 0, s.InDegree(a.Key))
	})
}

func TestSnapshot_EntitiesFilter(t *testing.T) {
	t.Parallel()

	fn := entity.New(fnKey("f", "a.go", 1))
	st := entity.New(entity.Key{Language: entity.LangRust, Kind: entity.KindStruct, Name: "S", Path: "s.rs", StartLine: 1, EndLine: 4})
	ext := entity.New(entity.ExternalKey(entity.LangGo, entity.KindFunction, "Printf"))

	s, err := NewSnapshot(1, []*entity.Entity{fn, st, ext}, nil)
	require.NoError(t, err)

	assert.Len(t, s.Entities("", ""), 3)
	assert.Len(t, s.Entities(entity.KindFunction, ""), 2)
	assert.Len(t, s.Entities(entity.KindFunction, entity.LangGo), 2)
	assert.Len(t, s.Entities(entity.KindStruct, entity.LangRust), 1)
	assert.Empty(t, s.Entities(entity.KindEnum, ""))

	assert.Equal(t, 1, s.ExternalCount())
	assert.Equal(t, 2, s.CountByKind()[entity.KindFunction])
	assert.Equal(t, 2, s.CountByLanguage()[entity.LangGo])
}

func TestSnapshot_EntityLookup(t *testing.T) {
	t.Parallel()

	a := entity.New(fnKey("a", "pkg/a.go", 1))
	s, err := NewSnapshot(1, []*entity.Entity{a}, nil)
	require.NoError(t, err)

	got, err := s.Entity(a.Key)
	require.NoError(t, err)
	assert.Equal(t, a, got)

	// A key parsed from the wire form (underscored path) resolves to
	// the same entity.
	parsed, err := entity.ParseKey(a.Key.String())
	require.NoError(t, err)
	got, err = s.Entity(parsed)
	require.NoError(t, err)
	assert.Equal(t, a, got)

	_, err = s.Entity(fnKey("zz", "zz.go", 9))
	assert.ErrorIs(t, err, ErrEntityNotFound)
}

func TestSnapshot_CouplingEdgesNotInAdjacency(t *testing.T) {
	t.Parallel()

	a := entity.New(fnKey("a", "pkg/a.go", 1))
	b := entity.New(fnKey("b", "pkg/b.go", 1))
	s, err := NewSnapshot(1, []*entity.Entity{a, b}, []Edge{
		{Source: a.Key, Target: b.Key, Kind: EdgeCalls},
		{Source: a.Key, Target: b.Key, Kind: EdgeCoupledWith, Weight: 0.8, CoChanges: 5},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, s.EdgeCount())
	fwd, err := s.Forward(a.Key)
	require.NoError(t, err)
	require.Len(t, fwd, 1)
	assert.Equal(t, EdgeCalls, fwd[0].Kind)
	assert.Equal(t, 1, s.InDegree(b.Key))
}
