package zstdwrap

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jrhy/hstore"
)

func TestRequiresInner(t *testing.T) {
	t.Parallel()
	_, err := New(nil)
	require.ErrorIs(t, err, hstore.ErrConfig)
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	p, err := New(hstore.NewInMemoryStore())
	require.NoError(t, err)

	require.NoError(t, p.Store(ctx, "k", []byte(`{"some":"block"}`)))
	got, err := p.Load(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, `{"some":"block"}`, string(got))

	_, err = p.Load(ctx, "absent")
	require.ErrorIs(t, err, hstore.ErrNotFound)
}

func TestBytesAtRestAreCompressed(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	inner := hstore.NewInMemoryStore()
	p, err := New(inner)
	require.NoError(t, err)

	block := []byte(strings.Repeat(`{"key":"value"},`, 1000))
	require.NoError(t, p.Store(ctx, "k", block))

	raw, err := inner.Load(ctx, "k")
	require.NoError(t, err)
	require.Less(t, len(raw), len(block))
	require.NotEqual(t, block, raw)
}

func TestBacksAStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	inner := hstore.NewInMemoryStore()
	p, err := New(inner)
	require.NoError(t, err)

	s, err := hstore.Open(ctx, hstore.Config{Persist: p})
	require.NoError(t, err)
	committed, err := s.Commit(ctx, map[string]interface{}{"compressed": true})
	require.NoError(t, err)

	reopened, err := hstore.Open(ctx, hstore.Config{Persist: p2(t, inner)})
	require.NoError(t, err)
	head, err := reopened.Head(ctx)
	require.NoError(t, err)
	require.NotNil(t, head)
	require.Equal(t, committed.Hash, head.Hash)
}

func p2(t *testing.T, inner hstore.Persist) *Persist {
	t.Helper()
	p, err := New(inner)
	require.NoError(t, err)
	return p
}
