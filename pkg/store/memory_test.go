package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_AppendAndReadAll(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.Append(ctx, "k", []byte("a"), 10, 0))
	require.NoError(t, m.Append(ctx, "k", []byte("b"), 10, 0))

	got, err := m.ReadAll(ctx, "k")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, []byte("a"), got[0])
	assert.Equal(t, []byte("b"), got[1])
}

func TestMemory_AppendTrimsToLastKeep(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		require.NoError(t, m.Append(ctx, "k", []byte(fmt.Sprintf("v%d", i)), 3, 0))
	}

	got, err := m.ReadAll(ctx, "k")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []byte("v4"), got[0])
	assert.Equal(t, []byte("v6"), got[2])
}

func TestMemory_ExpiredKeyReadsAsEmpty(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	now := time.Now()
	m.SetClock(func() time.Time { return now })
	require.NoError(t, m.Append(ctx, "k", []byte("a"), 10, time.Minute))

	m.SetClock(func() time.Time { return now.Add(2 * time.Minute) })
	got, err := m.ReadAll(ctx, "k")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMemory_AppendRefreshesTTL(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	now := time.Now()
	m.SetClock(func() time.Time { return now })
	require.NoError(t, m.Append(ctx, "k", []byte("a"), 10, time.Minute))

	// Second append 50s later pushes the deadline out another minute.
	m.SetClock(func() time.Time { return now.Add(50 * time.Second) })
	require.NoError(t, m.Append(ctx, "k", []byte("b"), 10, time.Minute))

	m.SetClock(func() time.Time { return now.Add(100 * time.Second) })
	got, err := m.ReadAll(ctx, "k")
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestMemory_IncrementAndDelete(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	n, err := m.Increment(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = m.Increment(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	require.NoError(t, m.Delete(ctx, "c"))
	n, err = m.Increment(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestMemory_FlagLifecycle(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	ok, err := m.Exists(ctx, "f")
	require.NoError(t, err)
	assert.False(t, ok)

	now := time.Now()
	m.SetClock(func() time.Time { return now })
	require.NoError(t, m.SetFlag(ctx, "f", time.Minute))

	ok, err = m.Exists(ctx, "f")
	require.NoError(t, err)
	assert.True(t, ok)

	m.SetClock(func() time.Time { return now.Add(61 * time.Second) })
	ok, err = m.Exists(ctx, "f")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemory_ConcurrentAppends(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = m.Append(ctx, "k", []byte(fmt.Sprintf("v%d", i)), 100, 0)
		}(i)
	}
	wg.Wait()

	got, err := m.ReadAll(ctx, "k")
	require.NoError(t, err)
	assert.Len(t, got, 20)
}

func TestMemory_PurgeExpired(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	now := time.Now()
	m.SetClock(func() time.Time { return now })
	require.NoError(t, m.SetFlag(ctx, "short", time.Second))
	require.NoError(t, m.SetFlag(ctx, "long", time.Hour))

	m.SetClock(func() time.Time { return now.Add(time.Minute) })
	purged, err := m.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, purged)

	ok, err := m.Exists(ctx, "long")
	require.NoError(t, err)
	assert.True(t, ok)
}
