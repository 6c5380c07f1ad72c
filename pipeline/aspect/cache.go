package aspect

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/streamforge/pipelinecore/logger"
	"github.com/streamforge/pipelinecore/pipeline/stage"
)

// KeyFunc derives a cache key from an observed element, typically from a
// step's declared cacheKeyGenerator field.
type KeyFunc func(stage.StreamElement) string

// CacheObserver builds an onElement hook (the value an Aspect's Config
// stores under "onElement", surfaced by Config.OnElement and passed
// straight to stage.NewPassthroughStep) that writes every observed
// element's payload into client under a key derived by keyFn. It's meant
// for an AFTER_STEP aspect whose synthetic ObserveXSideEffectService
// caches a step's output for later reuse.
func CacheObserver(client *redis.Client, keyFn KeyFunc, ttl time.Duration) func(stage.StreamElement) {
	return func(elem stage.StreamElement) {
		if elem.Error != nil || elem.Payload == nil {
			return
		}

		encoded, err := json.Marshal(elem.Payload)
		if err != nil {
			logger.Warn("cache observer failed to encode payload", "error", err)
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		if err := client.Set(ctx, keyFn(elem), encoded, ttl).Err(); err != nil {
			logger.Warn("cache observer failed to write to redis", "error", err)
		}
	}
}

// CacheLookup reads a previously cached payload for key, decoding it into
// dest. It reports ok=false on a cache miss (redis.Nil) distinctly from a
// transport or decode error.
func CacheLookup(ctx context.Context, client *redis.Client, key string, dest any) (ok bool, err error) {
	raw, err := client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, err
	}
	return true, nil
}
