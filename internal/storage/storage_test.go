package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRepository_SaveGetDelete(t *testing.T) {
	repo := NewMemoryRepository()

	_, ok := repo.Get("missing")
	assert.False(t, ok)

	repo.Save("k", []byte("v"), time.Minute)
	v, ok := repo.Get("k")
	require.True(t, ok)
	assert.Equal(t, []byte("v"), v)

	repo.Delete("k")
	_, ok = repo.Get("k")
	assert.False(t, ok)
}

func TestMemoryRepository_ExpiresOnRead(t *testing.T) {
	repo := NewMemoryRepository()
	repo.Save("k", []byte("v"), time.Nanosecond)
	time.Sleep(time.Millisecond)

	_, ok := repo.Get("k")
	assert.False(t, ok, "expired entry must not be returned")
}

func TestMemoryRepository_ZeroTTLNeverExpires(t *testing.T) {
	repo := NewMemoryRepository()
	repo.Save("k", []byte("v"), 0)
	time.Sleep(time.Millisecond)

	_, ok := repo.Get("k")
	assert.True(t, ok)
}

func TestMemoryRepository_Sweep(t *testing.T) {
	repo := NewMemoryRepository()
	repo.Save("short", []byte("v"), time.Nanosecond)
	repo.Save("long", []byte("v"), time.Hour)
	time.Sleep(time.Millisecond)

	removed := repo.Sweep()
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, repo.Len())
}
