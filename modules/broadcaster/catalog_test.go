package broadcaster

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogRescanFiltersAndSorts(t *testing.T) {
	src := newMemSource()
	for _, id := range []string{"c.flac", "notes.txt", "A.FLAC", "b.flac", "cover.jpg"} {
		src.put(id, []byte(id))
	}

	c := NewCatalog(src, []string{"flac"})
	assert.Equal(t, 0, c.Len())

	require.NoError(t, c.Rescan(context.Background()))
	assert.Equal(t, []string{"A.FLAC", "b.flac", "c.flac"}, c.Tracks())

	id, ok := c.Get(1)
	assert.True(t, ok)
	assert.Equal(t, "b.flac", id)

	_, ok = c.Get(3)
	assert.False(t, ok)
	_, ok = c.Get(-1)
	assert.False(t, ok)
}

func TestCatalogSetOrder(t *testing.T) {
	src := newMemSource()
	for _, id := range []string{"a.flac", "b.flac", "c.flac"} {
		src.put(id, []byte(id))
	}
	c := NewCatalog(src, []string{".flac"})
	require.NoError(t, c.Rescan(context.Background()))

	require.NoError(t, c.SetOrder([]string{"c.flac", "a.flac", "b.flac"}))
	assert.Equal(t, []string{"c.flac", "a.flac", "b.flac"}, c.Tracks())
	assert.Equal(t, 2, c.IndexOf("b.flac"))
	assert.Equal(t, -1, c.IndexOf("z.flac"))

	t.Run("rejects invalid orders", func(t *testing.T) {
		for name, order := range map[string][]string{
			"null":      nil,
			"unknown":   {"c.flac", "z.flac"},
			"duplicate": {"a.flac", "a.flac"},
		} {
			err := c.SetOrder(order)
			assert.True(t, errors.Is(err, ErrInvalidOrder), name)
		}
		assert.Equal(t, []string{"c.flac", "a.flac", "b.flac"}, c.Tracks())
	})

	t.Run("subset drops tracks from rotation", func(t *testing.T) {
		require.NoError(t, c.SetOrder([]string{"b.flac", "a.flac"}))
		assert.Equal(t, []string{"b.flac", "a.flac"}, c.Tracks())
	})

	t.Run("tracks is a copy", func(t *testing.T) {
		tracks := c.Tracks()
		tracks[0] = "mutated"
		id, _ := c.Get(0)
		assert.Equal(t, "b.flac", id)
	})
}

func TestCatalogRescanKeepsOrder(t *testing.T) {
	src := newMemSource()
	for _, id := range []string{"a.flac", "b.flac", "c.flac"} {
		src.put(id, []byte(id))
	}
	c := NewCatalog(src, []string{".flac"})
	require.NoError(t, c.Rescan(context.Background()))
	require.NoError(t, c.SetOrder([]string{"c.flac", "a.flac", "b.flac"}))

	src.put("e.flac", []byte("e"))
	src.put("d.flac", []byte("d"))
	src.remove("a.flac")
	require.NoError(t, c.Rescan(context.Background()))
	assert.Equal(t, []string{"c.flac", "b.flac", "d.flac", "e.flac"}, c.Tracks())

	// A track dropped from the order comes back at the end.
	require.NoError(t, c.SetOrder([]string{"d.flac", "c.flac"}))
	require.NoError(t, c.Rescan(context.Background()))
	assert.Equal(t, []string{"d.flac", "c.flac", "b.flac", "e.flac"}, c.Tracks())
}
