package feedback

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/math-professor/backend/internal/storage/models"
)

func resp(queryID string, version int) *models.Response {
	return &models.Response{
		QueryID:  queryID,
		Question: "what is 2+2",
		Answer:   "4",
		Route:    "knowledge",
		Version:  version,
	}
}

func TestResponseCachePutAndLatest(t *testing.T) {
	cache := NewResponseCache(4)
	cache.Put(resp("q1", 1))

	got, ok := cache.Latest("q1")
	require.True(t, ok)
	assert.Equal(t, 1, got.Version)

	_, ok = cache.Latest("missing")
	assert.False(t, ok)
}

func TestResponseCacheVersionsAccumulate(t *testing.T) {
	cache := NewResponseCache(4)
	cache.Put(resp("q1", 1))
	cache.AppendVersion(resp("q1", 2))
	cache.AppendVersion(resp("q1", 3))

	versions := cache.Versions("q1")
	require.Len(t, versions, 3)
	assert.Equal(t, 1, versions[0].Version)
	assert.Equal(t, 3, versions[2].Version)

	latest, ok := cache.Latest("q1")
	require.True(t, ok)
	assert.Equal(t, 3, latest.Version)
}

func TestResponseCacheAppendVersionIgnoresUnknownID(t *testing.T) {
	cache := NewResponseCache(4)
	cache.AppendVersion(resp("ghost", 2))

	assert.Equal(t, 0, cache.Len())
	_, ok := cache.Latest("ghost")
	assert.False(t, ok)
}

func TestResponseCacheEvictsOldestID(t *testing.T) {
	cache := NewResponseCache(2)
	cache.Put(resp("q1", 1))
	cache.Put(resp("q2", 1))
	cache.Put(resp("q3", 1))

	_, ok := cache.Latest("q1")
	assert.False(t, ok, "oldest ID is evicted at capacity")
	_, ok = cache.Latest("q2")
	assert.True(t, ok)
	_, ok = cache.Latest("q3")
	assert.True(t, ok)
	assert.Equal(t, 2, cache.Len())
}

func TestResponseCacheEvictionDropsAllVersions(t *testing.T) {
	cache := NewResponseCache(2)
	cache.Put(resp("q1", 1))
	cache.AppendVersion(resp("q1", 2))
	cache.Put(resp("q2", 1))
	cache.Put(resp("q3", 1))

	assert.Empty(t, cache.Versions("q1"))
}

func TestResponseCacheConcurrentAccess(t *testing.T) {
	cache := NewResponseCache(64)
	done := make(chan struct{})

	go func() {
		for i := 0; i < 200; i++ {
			cache.Put(resp(fmt.Sprintf("q%d", i), 1))
		}
		close(done)
	}()

	for i := 0; i < 200; i++ {
		cache.Latest(fmt.Sprintf("q%d", i))
		cache.Len()
	}
	<-done
}
