package snowflake

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGenerator(t *testing.T) {
	_, err := NewGenerator(-1)
	assert.ErrorIs(t, err, ErrInvalidNode)
	_, err = NewGenerator(MaxNode + 1)
	assert.ErrorIs(t, err, ErrInvalidNode)

	g, err := NewGenerator(MaxNode)
	require.NoError(t, err)
	id, err := g.NextID()
	require.NoError(t, err)
	assert.Equal(t, int64(MaxNode), Node(id))
}

func TestNextIDEncodesTime(t *testing.T) {
	g, err := NewGenerator(3)
	require.NoError(t, err)

	before := time.Now().Add(-time.Millisecond)
	id, err := g.NextID()
	require.NoError(t, err)

	assert.Positive(t, id)
	assert.Equal(t, int64(3), Node(id))
	assert.WithinDuration(t, before, Time(id), time.Second)
}

func TestSequenceOverflowWaitsForNextMillisecond(t *testing.T) {
	g, err := NewGenerator(1)
	require.NoError(t, err)

	var mu sync.Mutex
	clock := int64(Epoch + 1000)
	calls := 0
	g.now = func() int64 {
		mu.Lock()
		defer mu.Unlock()
		calls++
		// advance after the sequence is exhausted
		if calls > sequenceMask+3 {
			return clock + 1
		}
		return clock
	}

	var prev int64
	for i := 0; i <= sequenceMask+1; i++ {
		id, err := g.NextID()
		require.NoError(t, err)
		require.Greater(t, id, prev)
		prev = id
	}
	assert.Equal(t, clock+1, Time(prev).UnixMilli())
}

func TestClockMovedBackwards(t *testing.T) {
	g, err := NewGenerator(1)
	require.NoError(t, err)

	clock := int64(Epoch + 10_000)
	g.now = func() int64 { return clock }
	_, err = g.NextID()
	require.NoError(t, err)

	clock -= 5_000
	_, err = g.NextID()
	assert.ErrorIs(t, err, ErrClockMovedBackwards)
}

func TestSmallDriftIsAbsorbed(t *testing.T) {
	g, err := NewGenerator(1)
	require.NoError(t, err)

	var mu sync.Mutex
	clock := int64(Epoch + 10_000)
	g.now = func() int64 {
		mu.Lock()
		defer mu.Unlock()
		return clock
	}
	first, err := g.NextID()
	require.NoError(t, err)

	mu.Lock()
	clock -= 5
	mu.Unlock()
	go func() {
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		clock += 10
		mu.Unlock()
	}()

	second, err := g.NextID()
	require.NoError(t, err)
	assert.Greater(t, second, first)
}
