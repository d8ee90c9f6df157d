package kvstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
)

// RedisClient is the part of the go-redis API the mirror needs. *redis.Client
// and *redis.ClusterClient both satisfy it.
type RedisClient interface {
	MSet(ctx context.Context, values ...interface{}) *redis.StatusCmd
	Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd
	MGet(ctx context.Context, keys ...string) *redis.SliceCmd
}

// Redis is a Store backed by a local mirror of a Redis keyspace. Get and Set
// only touch the mirror. Sync pushes local writes and pulls remote ones, and
// is meant to run on its own goroutine through Run.
type Redis struct {
	client RedisClient
	prefix string
	logger zerolog.Logger

	lock  sync.Mutex
	local *Memory
	dirty map[string]any
}

// RedisOption configures a Redis store.
type RedisOption func(*Redis)

// WithRedisLogger sets the logger used to report sync failures.
func WithRedisLogger(logger zerolog.Logger) RedisOption {
	return func(r *Redis) {
		r.logger = logger
	}
}

// NewRedis creates a Redis store whose keys are the tunable paths prefixed
// with prefix.
func NewRedis(client RedisClient, prefix string, opts ...RedisOption) *Redis {
	if client == nil {
		panic("redis store requires a client")
	}

	r := &Redis{
		client: client,
		prefix: strings.TrimSuffix(prefix, "/"),
		logger: zerolog.Nop(),
		local:  NewMemory(),
		dirty:  make(map[string]any),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// DialRedis connects to the Redis server at addr.
func DialRedis(addr, prefix string, opts ...RedisOption) *Redis {
	client := redis.NewClient(&redis.Options{Addr: addr})
	return NewRedis(client, prefix, opts...)
}

// Get returns the mirrored value at path.
func (r *Redis) Get(path string) (any, bool) {
	return r.local.Get(path)
}

// Set stores value in the mirror and queues it for the next Sync.
func (r *Redis) Set(path string, value any) {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.local.Set(path, value)
	r.dirty[path] = value
}

// Pending returns the number of writes not yet pushed.
func (r *Redis) Pending() int {
	r.lock.Lock()
	defer r.lock.Unlock()

	return len(r.dirty)
}

// Sync pushes queued writes to Redis, then pulls every key under the prefix.
// Keys written locally since the push keep their local value.
func (r *Redis) Sync(ctx context.Context) error {
	if err := r.push(ctx); err != nil {
		return err
	}

	return r.pull(ctx)
}

func (r *Redis) push(ctx context.Context) error {
	r.lock.Lock()
	pending := r.dirty
	r.dirty = make(map[string]any)
	r.lock.Unlock()

	if len(pending) == 0 {
		return nil
	}

	pairs := make([]interface{}, 0, 2*len(pending))
	for path, v := range pending {
		data, err := json.Marshal(v)
		if err != nil {
			r.logger.Warn().Err(err).Str("path", path).Msg("cannot encode value")
			continue
		}

		pairs = append(pairs, r.prefix+path, string(data))
	}

	if len(pairs) == 0 {
		return nil
	}

	if err := r.client.MSet(ctx, pairs...).Err(); err != nil {
		r.requeue(pending)
		return fmt.Errorf("push to redis: %w", err)
	}

	return nil
}

func (r *Redis) requeue(pending map[string]any) {
	r.lock.Lock()
	defer r.lock.Unlock()

	for path, v := range pending {
		if _, newer := r.dirty[path]; !newer {
			r.dirty[path] = v
		}
	}
}

func (r *Redis) pull(ctx context.Context) error {
	var (
		cursor uint64
		keys   []string
	)

	for {
		batch, next, err := r.client.Scan(ctx, cursor, r.prefix+"/*", 256).Result()
		if err != nil {
			return fmt.Errorf("scan redis: %w", err)
		}

		keys = append(keys, batch...)
		cursor = next

		if cursor == 0 {
			break
		}
	}

	if len(keys) == 0 {
		return nil
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return fmt.Errorf("read redis: %w", err)
	}

	r.lock.Lock()
	defer r.lock.Unlock()

	for i, key := range keys {
		raw, ok := values[i].(string)
		if !ok {
			continue
		}

		path := strings.TrimPrefix(key, r.prefix)
		if _, pending := r.dirty[path]; pending {
			continue
		}

		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			r.logger.Warn().Err(err).Str("key", key).Msg("cannot decode value")
			continue
		}

		r.local.Set(path, v)
	}

	return nil
}

// Run calls Sync every interval until ctx is done. Sync failures are logged
// and retried on the next interval.
func (r *Redis) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := r.Sync(ctx); err != nil && ctx.Err() == nil {
			r.logger.Error().Err(err).Msg("redis sync failed")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
