package broadcaster

import (
	"io"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTee(t *testing.T, src *memSource, id string, onDrop func(Sink, error)) *Tee {
	t.Helper()
	rc, err := src.Open(id, 0)
	require.NoError(t, err)
	return newTee(id, rc, onDrop)
}

func TestTeeFanOut(t *testing.T) {
	data := trackData(0x11, 10_000)
	src := newMemSource()
	src.put("a.flac", data)
	tee := openTee(t, src, "a.flac", nil)

	first, second, third := &testSink{}, &testSink{}, &testSink{}
	require.NoError(t, tee.Attach(first))

	_, err := tee.pump(1000)
	require.NoError(t, err)

	require.NoError(t, tee.Attach(second))
	_, err = tee.pump(1000)
	require.NoError(t, err)

	require.NoError(t, tee.Attach(third))
	tee.Detach(first)
	tee.Detach(first)
	_, err = tee.pump(1000)
	require.NoError(t, err)

	assert.Equal(t, data[:2000], first.Bytes())
	assert.Equal(t, data[1000:3000], second.Bytes())
	assert.Equal(t, data[2000:3000], third.Bytes())
	assert.Equal(t, int64(3000), tee.Offset())
	assert.Equal(t, 2, tee.Sinks())
}

func TestTeeDropsFailingSinkOnly(t *testing.T) {
	data := trackData(0x22, 5000)
	src := newMemSource()
	src.put("a.flac", data)

	var mu sync.Mutex
	var drops []error
	tee := openTee(t, src, "a.flac", func(_ Sink, err error) {
		mu.Lock()
		drops = append(drops, err)
		mu.Unlock()
	})

	good, bad := &testSink{}, &testSink{}
	require.NoError(t, tee.Attach(good))
	require.NoError(t, tee.Attach(bad))

	_, err := tee.pump(1000)
	require.NoError(t, err)

	bad.mu.Lock()
	bad.fail = true
	bad.mu.Unlock()

	for {
		_, err := tee.pump(1000)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
	}

	assert.Equal(t, data, good.Bytes())
	assert.Equal(t, data[:1000], bad.Bytes())
	assert.True(t, bad.closed)
	assert.Error(t, bad.err)
	assert.False(t, good.closed)
	assert.Len(t, drops, 1)
	assert.Equal(t, 1, tee.Sinks())
}

func TestTeeAttachAt(t *testing.T) {
	src := newMemSource()
	src.put("a.flac", trackData(0x33, 3000))
	tee := openTee(t, src, "a.flac", nil)

	_, err := tee.pump(1000)
	require.NoError(t, err)

	sink := &testSink{}
	attached, published, next, err := tee.attachAt(sink, 500)
	require.NoError(t, err)
	assert.False(t, attached)
	assert.Equal(t, int64(1000), published)
	assert.Nil(t, next)

	attached, _, _, err = tee.attachAt(sink, 1000)
	require.NoError(t, err)
	assert.True(t, attached)
}

func TestTeeHandOff(t *testing.T) {
	a, b := trackData(0x44, 2000), trackData(0x55, 2000)
	src := newMemSource()
	src.put("a.flac", a)
	src.put("b.flac", b)

	first := openTee(t, src, "a.flac", nil)
	sink := &testSink{}
	require.NoError(t, first.Attach(sink))
	for {
		if _, err := first.pump(1000); err == io.EOF {
			break
		}
	}
	first.end()
	assert.True(t, first.Ended())

	second := openTee(t, src, "b.flac", nil)
	first.handOff(second)

	assert.Equal(t, 0, first.Sinks())
	assert.Equal(t, 1, second.Sinks())
	assert.ErrorIs(t, first.Attach(&testSink{}), ErrTeeClosed)

	attached, published, next, err := first.attachAt(&testSink{}, 2000)
	require.NoError(t, err)
	assert.False(t, attached)
	assert.Equal(t, int64(2000), published)
	assert.Same(t, second, next)

	_, err = second.pump(1000)
	require.NoError(t, err)
	assert.Equal(t, concat(a, b[:1000]), sink.Bytes())
	assert.False(t, sink.closed)

	second.Close()
	assert.True(t, sink.closed)
	assert.True(t, errors.Is(sink.err, ErrTeeClosed))
	assert.Equal(t, 0, src.openHandles())
}
