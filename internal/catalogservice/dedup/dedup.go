package dedup

import (
	"context"
	"sync"
	"time"

	"mercadito/pkg/config"
	"mercadito/pkg/logger"

	"github.com/go-redis/redis/v8"
)

// keyTTL bounds how long a stock-move key is remembered; replays older than
// this still hit the transactional ledger.
const keyTTL = 24 * time.Hour

// RedisDedup remembers stock-move idempotency keys in Redis. It is a fast
// pre-check only: any Redis failure reports the key as unseen and the
// database ledger decides.
type RedisDedup struct {
	client *redis.Client
	logger *logger.Logger
}

func NewRedisDedup(cfg *config.RedisConfig, log *logger.Logger) (*RedisDedup, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	log.Info("startup", "redis_connected", "Connected to Redis")
	return &RedisDedup{client: client, logger: log}, nil
}

// Seen is a pure read. Keys are only recorded by Mark after a move has
// actually applied, so a rejected move never looks like a committed one.
func (r *RedisDedup) Seen(ctx context.Context, key string) bool {
	n, err := r.client.Exists(ctx, "stock_move:"+key).Result()
	if err != nil {
		r.logger.Warn(key, "dedup_check_failed", "Redis unavailable, falling through to ledger")
		return false
	}
	return n > 0
}

func (r *RedisDedup) Mark(ctx context.Context, key string) {
	if err := r.client.Set(ctx, "stock_move:"+key, 1, keyTTL).Err(); err != nil {
		r.logger.Warn(key, "dedup_mark_failed", "Redis unavailable, ledger remains the replay guard")
	}
}

func (r *RedisDedup) Close() error {
	return r.client.Close()
}

// MemoryDedup is the in-process fallback used when Redis is not configured,
// and in tests.
type MemoryDedup struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewMemoryDedup() *MemoryDedup {
	return &MemoryDedup{seen: make(map[string]struct{})}
}

func (m *MemoryDedup) Seen(_ context.Context, key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.seen[key]
	return ok
}

func (m *MemoryDedup) Mark(_ context.Context, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen[key] = struct{}{}
}
