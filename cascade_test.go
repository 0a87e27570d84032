package hstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCascadeRequiresLayers(t *testing.T) {
	t.Parallel()
	_, err := NewCascade()
	require.ErrorIs(t, err, ErrConfig)
}

func TestCascadeSingleLayerBehavesLikeAdapter(t *testing.T) {
	t.Parallel()
	inner := NewInMemoryStore()
	c, err := NewCascade(inner)
	require.NoError(t, err)

	require.NoError(t, c.Store(ctx, "k", []byte("v")))
	got, err := c.Load(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, []byte("v"), got)

	_, err = c.Load(ctx, "absent")
	require.ErrorIs(t, err, ErrNotFound)

	direct, err := inner.Load(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, []byte("v"), direct)
}

func TestCascadeWriteThrough(t *testing.T) {
	t.Parallel()
	l0 := NewInMemoryStore()
	l1 := NewInMemoryStore()
	c, err := NewCascade(l0, l1)
	require.NoError(t, err)

	require.NoError(t, c.Store(ctx, "k", []byte("v")))
	for i, layer := range []Persist{l0, l1} {
		got, err := layer.Load(ctx, "k")
		require.NoError(t, err, "layer %d", i)
		require.Equal(t, []byte("v"), got)
	}
}

func TestCascadeHydratesUp(t *testing.T) {
	t.Parallel()
	l0 := NewInMemoryStore()
	l1 := NewInMemoryStore()

	// The block exists only in the slow layer.
	require.NoError(t, l1.Store(ctx, "b", []byte("bytes")))

	c, err := NewCascade(l0, l1)
	require.NoError(t, err)
	got, err := c.Load(ctx, "b")
	require.NoError(t, err)
	require.Equal(t, []byte("bytes"), got)

	// The read hydrated the fast layer.
	hydrated, err := l0.Load(ctx, "b")
	require.NoError(t, err)
	require.Equal(t, []byte("bytes"), hydrated)

	// A subsequent read is satisfied entirely by l0, even with the
	// slow layer gone.
	c2, err := NewCascade(l0, failingStore{})
	require.NoError(t, err)
	got, err = c2.Load(ctx, "b")
	require.NoError(t, err)
	require.Equal(t, []byte("bytes"), got)
}

func TestCascadeReadMiss(t *testing.T) {
	t.Parallel()
	c, err := NewCascade(NewInMemoryStore(), NewInMemoryStore())
	require.NoError(t, err)
	_, err = c.Load(ctx, "nope")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCascadeWriteFailureSurfaces(t *testing.T) {
	t.Parallel()
	c, err := NewCascade(NewInMemoryStore(), failingStore{})
	require.NoError(t, err)
	err = c.Store(ctx, "k", []byte("v"))
	require.Error(t, err)
}

func TestCascadeLoadErrorIsNotAMiss(t *testing.T) {
	t.Parallel()
	// A failing layer must not be silently skipped like a miss.
	l1 := NewInMemoryStore()
	require.NoError(t, l1.Store(ctx, "k", []byte("v")))
	c, err := NewCascade(failingStore{}, l1)
	require.NoError(t, err)
	_, err = c.Load(ctx, "k")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestCascadeDefensiveCopies(t *testing.T) {
	t.Parallel()
	c, err := NewCascade(NewInMemoryStore())
	require.NoError(t, err)

	buf := []byte("original")
	require.NoError(t, c.Store(ctx, "k", buf))
	buf[0] = 'X'

	got, err := c.Load(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, []byte("original"), got)

	got[0] = 'Y'
	again, err := c.Load(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, []byte("original"), again)
}
