package aspect

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamforge/pipelinecore/pipeline/stage"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

type cachedItem struct {
	ID string `json:"id"`
}

func TestCacheObserverWritesPayload(t *testing.T) {
	client := newTestRedis(t)
	observe := CacheObserver(client, func(stage.StreamElement) string { return "item:a" }, time.Minute)

	observe(stage.NewElement(cachedItem{ID: "a"}))

	var got cachedItem
	ok, err := CacheLookup(context.Background(), client, "item:a", &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "a", got.ID)
}

func TestCacheObserverSkipsErrorElements(t *testing.T) {
	client := newTestRedis(t)
	observe := CacheObserver(client, func(stage.StreamElement) string { return "item:a" }, time.Minute)

	observe(stage.StreamElement{Error: assert.AnError})

	_, err := CacheLookup(context.Background(), client, "item:a", &cachedItem{})
	require.NoError(t, err)
}

func TestCacheLookupReportsMiss(t *testing.T) {
	client := newTestRedis(t)

	var got cachedItem
	ok, err := CacheLookup(context.Background(), client, "missing", &got)
	require.NoError(t, err)
	assert.False(t, ok)
}
