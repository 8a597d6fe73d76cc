package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewMemoryStore()
	s.now = func() time.Time { return now }

	require.NoError(t, s.Set(ctx, "oauth:state:abc", "google", time.Minute))
	require.NoError(t, s.Set(ctx, "forever", "1", 0))

	v, err := s.Get(ctx, "oauth:state:abc")
	require.NoError(t, err)
	assert.Equal(t, "google", v)

	now = now.Add(time.Minute)
	_, err = s.Get(ctx, "oauth:state:abc")
	assert.ErrorIs(t, err, ErrKeyNotFound)

	v, err = s.Get(ctx, "forever")
	require.NoError(t, err)
	assert.Equal(t, "1", v)

	require.NoError(t, s.Del(ctx, "forever"))
	_, err = s.Get(ctx, "forever")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestMemoryStore_Take(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Set(ctx, "oauth:state:abc", "google", time.Minute))

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if v, err := s.Take(ctx, "oauth:state:abc"); err == nil && v == "google" {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)

	_, err := s.Take(ctx, "oauth:state:abc")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}
