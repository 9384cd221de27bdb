package nscache

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/redis/go-redis/v9"
	"github.com/secmon-lab/argus/pkg/domain/model"
	"github.com/secmon-lab/argus/pkg/domain/types"
)

const DefaultKeyPrefix = "argus:nscache"

// Redis shares the cache between instances. It keeps two hashes keyed by namespace:
// "<prefix>:cleared" holds the last clear time in unix microseconds and "<prefix>:empty"
// holds "1" or "0".
type Redis struct {
	client     redis.UniversalClient
	ttl        time.Duration
	clearedKey string
	emptyKey   string
}

type RedisOption func(*Redis)

func WithKeyPrefix(prefix string) RedisOption {
	return func(r *Redis) {
		r.clearedKey = prefix + ":cleared"
		r.emptyKey = prefix + ":empty"
	}
}

func NewRedis(client redis.UniversalClient, ttl time.Duration, opts ...RedisOption) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	r := &Redis{
		client:     client,
		ttl:        ttl,
		clearedKey: DefaultKeyPrefix + ":cleared",
		emptyKey:   DefaultKeyPrefix + ":empty",
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Redis) MarkCleared(ctx context.Context, ns types.NamespaceID, now time.Time) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, r.clearedKey, ns.String(), now.UnixMicro())
		pipe.HSet(ctx, r.emptyKey, ns.String(), "1")
		return nil
	})
	if err != nil {
		return goerr.Wrap(err, "failed to mark namespace cleared", goerr.V(model.NamespaceKey, ns))
	}
	return nil
}

func (r *Redis) MarkPopulated(ctx context.Context, ns types.NamespaceID) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSetNX(ctx, r.clearedKey, ns.String(), 0)
		pipe.HSet(ctx, r.emptyKey, ns.String(), "0")
		return nil
	})
	if err != nil {
		return goerr.Wrap(err, "failed to mark namespace populated", goerr.V(model.NamespaceKey, ns))
	}
	return nil
}

func (r *Redis) IsKnownEmpty(ctx context.Context, ns types.NamespaceID, now time.Time) (bool, error) {
	var cleared, empty *redis.StringCmd
	_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		cleared = pipe.HGet(ctx, r.clearedKey, ns.String())
		empty = pipe.HGet(ctx, r.emptyKey, ns.String())
		return nil
	})
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, goerr.Wrap(err, "failed to read namespace cache", goerr.V(model.NamespaceKey, ns))
	}

	e, err := toEntry(cleared.Val(), empty.Val())
	if err != nil {
		return false, goerr.Wrap(err, "corrupted namespace cache entry", goerr.V(model.NamespaceKey, ns))
	}
	if e.expired(now, r.ttl) {
		return false, nil
	}
	return e.knownEmpty, nil
}

func (r *Redis) Sweep(ctx context.Context, now time.Time) (int, error) {
	all, err := r.client.HGetAll(ctx, r.clearedKey).Result()
	if err != nil {
		return 0, goerr.Wrap(err, "failed to read namespace cache")
	}

	var stale []string
	for ns, cleared := range all {
		e, err := toEntry(cleared, "")
		if err != nil || e.expired(now, r.ttl) {
			stale = append(stale, ns)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HDel(ctx, r.clearedKey, stale...)
		pipe.HDel(ctx, r.emptyKey, stale...)
		return nil
	})
	if err != nil {
		return 0, goerr.Wrap(err, "failed to sweep namespace cache", goerr.V("count", len(stale)))
	}
	return len(stale), nil
}

func toEntry(cleared, empty string) (entry, error) {
	us, err := strconv.ParseInt(cleared, 10, 64)
	if err != nil {
		return entry{}, goerr.Wrap(err, "invalid clear time", goerr.V("value", cleared))
	}

	e := entry{knownEmpty: empty == "1"}
	if us > 0 {
		e.lastCleared = time.UnixMicro(us)
	}
	return e, nil
}
