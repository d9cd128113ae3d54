// Package cache keeps successfully fetched pages in Redis for a bounded time so
// reruns within the TTL do not hit the job board again.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/JakeFAU/jobposting-crawler/internal/crawler"
)

// DefaultTTL bounds how long a cached page is served.
const DefaultTTL = 6 * time.Hour

const keyPrefix = "jobcrawler:page:"

// Client is the subset of the Redis client the cache uses.
type Client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// Connect parses a redis:// URL and pings the server.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("cache: invalid redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("cache: redis ping failed: %w", err)
	}
	return client, nil
}

type entry struct {
	URL        string      `json:"url"`
	StatusCode int         `json:"status_code"`
	Headers    http.Header `json:"headers,omitempty"`
	Body       []byte      `json:"body"`
}

// Fetcher serves pages from Redis and falls through to next on a miss.
type Fetcher struct {
	client Client
	next   crawler.Fetcher
	hasher crawler.Hasher
	ttl    time.Duration
	logger *zap.Logger
}

// New wraps next with a Redis page cache.
func New(client Client, next crawler.Fetcher, hasher crawler.Hasher, ttl time.Duration, logger *zap.Logger) *Fetcher {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{client: client, next: next, hasher: hasher, ttl: ttl, logger: logger.Named("cache")}
}

// Fetch returns a cached page when present. Cache failures are logged and
// never fail the fetch.
func (f *Fetcher) Fetch(ctx context.Context, request crawler.FetchRequest) (crawler.FetchResponse, error) {
	key, err := f.key(request.URL)
	if err != nil {
		return crawler.FetchResponse{}, err
	}

	if resp, ok := f.lookup(ctx, key); ok {
		return resp, nil
	}

	resp, err := f.next.Fetch(ctx, request)
	if err != nil {
		return crawler.FetchResponse{}, fmt.Errorf("cache miss fetch: %w", err)
	}
	if resp.StatusCode == http.StatusOK {
		f.store(ctx, key, resp)
	}
	return resp, nil
}

func (f *Fetcher) key(rawURL string) (string, error) {
	normalized, err := crawler.NormalizeURL(rawURL)
	if err != nil {
		return "", fmt.Errorf("cache key: %w", err)
	}
	digest, err := f.hasher.Hash([]byte(normalized))
	if err != nil {
		return "", fmt.Errorf("cache key hash: %w", err)
	}
	return keyPrefix + digest, nil
}

func (f *Fetcher) lookup(ctx context.Context, key string) (crawler.FetchResponse, bool) {
	data, err := f.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			f.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
		}
		return crawler.FetchResponse{}, false
	}
	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		f.logger.Warn("cache entry corrupt", zap.String("key", key), zap.Error(err))
		return crawler.FetchResponse{}, false
	}
	return crawler.FetchResponse{
		URL:        e.URL,
		StatusCode: e.StatusCode,
		Headers:    e.Headers,
		Body:       e.Body,
		FromCache:  true,
	}, true
}

func (f *Fetcher) store(ctx context.Context, key string, resp crawler.FetchResponse) {
	data, err := json.Marshal(entry{
		URL:        resp.URL,
		StatusCode: resp.StatusCode,
		Headers:    resp.Headers,
		Body:       resp.Body,
	})
	if err != nil {
		f.logger.Warn("cache encode failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := f.client.Set(ctx, key, data, f.ttl).Err(); err != nil {
		f.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
}
