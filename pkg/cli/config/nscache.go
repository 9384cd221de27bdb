package config

import (
	"context"
	"log/slog"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/redis/go-redis/v9"
	"github.com/secmon-lab/argus/pkg/domain/interfaces"
	"github.com/secmon-lab/argus/pkg/service/nscache"
	"github.com/secmon-lab/argus/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// NamespaceCache holds the configuration of the cleared-namespace cache
type NamespaceCache struct {
	backend       string
	ttl           time.Duration
	redisAddr     string
	redisPassword string
	redisDB       int
	redisPrefix   string
}

func (x *NamespaceCache) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "cache-backend",
			Usage:       "Cleared-namespace cache backend (memory, redis)",
			Value:       CacheMemory,
			Category:    "Cache",
			Sources:     cli.EnvVars("ARGUS_CACHE_BACKEND"),
			Destination: &x.backend,
		},
		&cli.DurationFlag{
			Name:        "cache-ttl",
			Usage:       "How long a cleared namespace is known to be empty",
			Value:       nscache.DefaultTTL,
			Category:    "Cache",
			Sources:     cli.EnvVars("ARGUS_CACHE_TTL"),
			Destination: &x.ttl,
		},
		&cli.StringFlag{
			Name:        "redis-addr",
			Usage:       "Redis address (host:port)",
			Value:       "localhost:6379",
			Category:    "Cache",
			Sources:     cli.EnvVars("ARGUS_REDIS_ADDR"),
			Destination: &x.redisAddr,
		},
		&cli.StringFlag{
			Name:        "redis-password",
			Usage:       "Redis password",
			Category:    "Cache",
			Sources:     cli.EnvVars("ARGUS_REDIS_PASSWORD"),
			Destination: &x.redisPassword,
		},
		&cli.IntFlag{
			Name:        "redis-db",
			Usage:       "Redis database number",
			Category:    "Cache",
			Sources:     cli.EnvVars("ARGUS_REDIS_DB"),
			Destination: &x.redisDB,
		},
		&cli.StringFlag{
			Name:        "redis-key-prefix",
			Usage:       "Prefix of the Redis keys",
			Value:       "argus:",
			Category:    "Cache",
			Sources:     cli.EnvVars("ARGUS_REDIS_KEY_PREFIX"),
			Destination: &x.redisPrefix,
		},
	}
}

func (x NamespaceCache) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("backend", x.backend),
		slog.Duration("ttl", x.ttl),
		slog.String("redis_addr", x.redisAddr),
		slog.Int("redis_db", x.redisDB),
	)
}

// Configure builds the cache. The returned function releases its connections.
func (x *NamespaceCache) Configure(ctx context.Context) (interfaces.NamespaceCache, func(), error) {
	ttl := x.ttl
	if ttl <= 0 {
		ttl = nscache.DefaultTTL
	}

	switch x.backend {
	case CacheMemory, "":
		return nscache.NewMemory(ttl), func() {}, nil

	case CacheRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     x.redisAddr,
			Password: x.redisPassword,
			DB:       x.redisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, goerr.Wrap(err, "failed to connect to redis", goerr.V("addr", x.redisAddr))
		}
		logging.Default().Info("Using Redis namespace cache", "addr", x.redisAddr)

		cleanup := func() {
			if err := client.Close(); err != nil {
				logging.Default().Warn("failed to close redis client", logging.ErrAttr(err))
			}
		}
		return nscache.NewRedis(client, ttl, nscache.WithKeyPrefix(x.redisPrefix)), cleanup, nil

	default:
		return nil, nil, goerr.Wrap(ErrUnknownBackend, "invalid cache backend", goerr.V(BackendKey, x.backend))
	}
}
