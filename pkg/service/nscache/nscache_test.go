package nscache_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/redis/go-redis/v9"
	"github.com/secmon-lab/argus/pkg/domain/interfaces"
	"github.com/secmon-lab/argus/pkg/domain/types"
	"github.com/secmon-lab/argus/pkg/service/nscache"
)

const testTTL = time.Hour

func runCacheTest(t *testing.T, newCache func(t *testing.T) interfaces.NamespaceCache) {
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	t.Run("unknown namespace is not known empty", func(t *testing.T) {
		c := newCache(t)
		empty, err := c.IsKnownEmpty(ctx, "unknown", base)
		gt.NoError(t, err).Required()
		gt.Bool(t, empty).False()
	})

	t.Run("cleared then populated", func(t *testing.T) {
		c := newCache(t)
		ns := types.NamespaceID("plant_a")

		gt.NoError(t, c.MarkCleared(ctx, ns, base)).Required()
		empty, err := c.IsKnownEmpty(ctx, ns, base.Add(time.Minute))
		gt.NoError(t, err).Required()
		gt.Bool(t, empty).True()

		gt.NoError(t, c.MarkPopulated(ctx, ns)).Required()
		empty, err = c.IsKnownEmpty(ctx, ns, base.Add(time.Minute))
		gt.NoError(t, err).Required()
		gt.Bool(t, empty).False()

		gt.NoError(t, c.MarkCleared(ctx, ns, base.Add(2*time.Minute))).Required()
		empty, err = c.IsKnownEmpty(ctx, ns, base.Add(3*time.Minute))
		gt.NoError(t, err).Required()
		gt.Bool(t, empty).True()
	})

	t.Run("entries expire after ttl", func(t *testing.T) {
		c := newCache(t)
		ns := types.NamespaceID("plant_b")

		gt.NoError(t, c.MarkCleared(ctx, ns, base)).Required()
		empty, err := c.IsKnownEmpty(ctx, ns, base.Add(testTTL+time.Second))
		gt.NoError(t, err).Required()
		gt.Bool(t, empty).False()
	})

	t.Run("sweep drops stale entries only", func(t *testing.T) {
		c := newCache(t)

		gt.NoError(t, c.MarkCleared(ctx, "old", base)).Required()
		gt.NoError(t, c.MarkCleared(ctx, "fresh", base.Add(50*time.Minute))).Required()
		gt.NoError(t, c.MarkPopulated(ctx, "never_cleared")).Required()

		removed, err := c.Sweep(ctx, base.Add(65*time.Minute))
		gt.NoError(t, err).Required()
		gt.Value(t, removed).Equal(2)

		empty, err := c.IsKnownEmpty(ctx, "fresh", base.Add(65*time.Minute))
		gt.NoError(t, err).Required()
		gt.Bool(t, empty).True()

		removed, err = c.Sweep(ctx, base.Add(65*time.Minute))
		gt.NoError(t, err).Required()
		gt.Value(t, removed).Equal(0)
	})
}

func TestMemoryCache(t *testing.T) {
	runCacheTest(t, func(t *testing.T) interfaces.NamespaceCache {
		return nscache.NewMemory(testTTL)
	})
}

func TestRedisCache(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}

	runCacheTest(t, func(t *testing.T) interfaces.NamespaceCache {
		client := redis.NewClient(&redis.Options{Addr: addr})
		prefix := fmt.Sprintf("argus_test:%d", time.Now().UnixNano())
		t.Cleanup(func() {
			ctx := context.Background()
			_ = client.Del(ctx, prefix+":cleared", prefix+":empty").Err()
			_ = client.Close()
		})
		return nscache.NewRedis(client, testTTL, nscache.WithKeyPrefix(prefix))
	})
}
