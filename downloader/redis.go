package downloader

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Caches downloaded files in Redis, letting several instances share
// one copy of the static archive.
type Redis struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

func NewRedis(addr, password string, db int, logger *slog.Logger) (*Redis, error) {
	if logger == nil {
		logger = slog.Default()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return &Redis{
		client: client,
		prefix: "stopboard:download:",
		logger: logger.With("component", "redis_downloader"),
	}, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) key(url string) string {
	return r.prefix + cacheKey(url)
}

func (r *Redis) Get(
	ctx context.Context,
	url string,
	headers map[string]string,
	options GetOptions,
) ([]byte, error) {
	if options.Cache {
		body, err := r.client.Get(ctx, r.key(url)).Bytes()
		switch {
		case err == redis.Nil:
			r.logger.Debug("cache miss", "url", url)
		case err != nil:
			// Fall through to a plain download
			r.logger.Warn("cache get failed", "url", url, "error", err)
		default:
			r.logger.Debug("cache hit", "url", url, "size_bytes", len(body))
			return body, nil
		}
	}

	body, err := HTTPGet(ctx, url, headers, options)
	if err != nil {
		return nil, err
	}

	if options.Cache {
		err := r.client.Set(ctx, r.key(url), body, options.CacheTTL).Err()
		if err != nil {
			r.logger.Warn("cache set failed", "url", url, "error", err)
		}
	}

	return body, nil
}
