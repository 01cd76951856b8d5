package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	KeyPrefix    = "mediafetch"
	KeyCleanup   = "cleanup" // ZSET. mediafetch:cleanup path -> unix time the path is due for deletion.
	KeySeparator = ":"

	maxDue = 1000
)

type redisSchedule struct {
	cl  *redis.Client
	log *slog.Logger
}

func NewRedisSchedule(cl *redis.Client, log *slog.Logger) *redisSchedule {
	return &redisSchedule{
		cl:  cl,
		log: log.With(slog.String("item", "RedisCleanupSchedule")),
	}
}

func (r *redisSchedule) Schedule(ctx context.Context, path string, at time.Time) error {
	err := r.cl.ZAdd(ctx, getKey(KeyPrefix, KeyCleanup), redis.Z{
		Score:  float64(at.Unix()),
		Member: path,
	}).Err()
	if err != nil {
		return fmt.Errorf("cannot schedule cleanup of %s: %w", path, err)
	}

	return nil
}

func (r *redisSchedule) Due(ctx context.Context, now time.Time) ([]string, error) {
	paths, err := r.cl.ZRangeByScore(ctx, getKey(KeyPrefix, KeyCleanup), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.Unix(), 10),
		Count: maxDue,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("cannot get due paths: %w", err)
	}

	return paths, nil
}

func (r *redisSchedule) Remove(ctx context.Context, path string) error {
	if err := r.cl.ZRem(ctx, getKey(KeyPrefix, KeyCleanup), path).Err(); err != nil {
		return fmt.Errorf("cannot remove %s from cleanup schedule: %w", path, err)
	}

	return nil
}

type memorySchedule struct {
	mu    sync.Mutex
	items map[string]time.Time
}

func NewMemorySchedule() *memorySchedule {
	return &memorySchedule{
		items: make(map[string]time.Time),
	}
}

func (m *memorySchedule) Schedule(_ context.Context, path string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.items[path] = at

	return nil
}

func (m *memorySchedule) Due(_ context.Context, now time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var paths []string
	for path, at := range m.items {
		if !at.After(now) {
			paths = append(paths, path)
		}
		if len(paths) >= maxDue {
			break
		}
	}

	return paths, nil
}

func (m *memorySchedule) Remove(_ context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.items, path)

	return nil
}

func getKey(keys ...string) string {
	return strings.Join(keys, KeySeparator)
}
