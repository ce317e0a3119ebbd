package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMemoryStore(t *testing.T) Store {
	t.Helper()
	s := NewMemoryStore()
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestMemoryStore_GetSet(t *testing.T) {
	s := newTestMemoryStore(t)
	ctx := context.Background()

	_, err := s.Get(ctx, "missing")
	assert.True(t, IsNotFound(err))

	require.NoError(t, s.Set(ctx, "k", "v", 0))
	val, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", val)

	ok, err := s.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.Delete(ctx, "k"))
	_, err = s.Get(ctx, "k")
	assert.True(t, IsNotFound(err))
}

func TestMemoryStore_TTLExpiry(t *testing.T) {
	s := newTestMemoryStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", "v", 20*time.Millisecond))

	val, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", val)

	time.Sleep(30 * time.Millisecond)
	_, err = s.Get(ctx, "k")
	assert.True(t, IsNotFound(err), "expired entries read as missing")

	ok, err := s.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStore_Increment(t *testing.T) {
	s := newTestMemoryStore(t)
	ctx := context.Background()

	n, err := s.Increment(ctx, "counter")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = s.IncrementBy(ctx, "counter", 5)
	require.NoError(t, err)
	assert.Equal(t, int64(6), n)

	require.NoError(t, s.Set(ctx, "text", "not a number", 0))
	_, err = s.Increment(ctx, "text")
	assert.Error(t, err)
}

func TestMemoryStore_IncrementConcurrent(t *testing.T) {
	s := newTestMemoryStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Increment(ctx, "counter")
		}()
	}
	wg.Wait()

	val, err := s.Get(ctx, "counter")
	require.NoError(t, err)
	assert.Equal(t, "50", val)
}

func TestMemoryStore_Expire(t *testing.T) {
	s := newTestMemoryStore(t)
	ctx := context.Background()

	assert.True(t, IsNotFound(s.Expire(ctx, "missing", time.Minute)))

	require.NoError(t, s.Set(ctx, "k", "v", 0))
	require.NoError(t, s.Expire(ctx, "k", 20*time.Millisecond))

	time.Sleep(30 * time.Millisecond)
	_, err := s.Get(ctx, "k")
	assert.True(t, IsNotFound(err))
}

func TestMemoryStore_JSONRoundTrip(t *testing.T) {
	s := newTestMemoryStore(t)
	ctx := context.Background()

	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	require.NoError(t, s.SetJSON(ctx, "k", payload{Name: "velocity", Count: 3}, 0))

	var got payload
	require.NoError(t, s.GetJSON(ctx, "k", &got))
	assert.Equal(t, payload{Name: "velocity", Count: 3}, got)

	assert.True(t, IsNotFound(s.GetJSON(ctx, "missing", &got)))

	require.NoError(t, s.Set(ctx, "broken", "{not json", 0))
	assert.Error(t, s.GetJSON(ctx, "broken", &got))
}
