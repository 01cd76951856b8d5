package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jgivc/mediafetch/internal/common"
	"github.com/jgivc/mediafetch/internal/entity"
	"github.com/redis/go-redis/v9"
)

const (
	KeyPrefix    = "mediafetch"
	KeyProgress  = "progress" // STRING. mediafetch:progress:<job_id> -> ProgressRecord JSON, EX ttl.
	KeySeparator = ":"
)

type redisStore struct {
	cl  *redis.Client
	log *slog.Logger
}

func NewRedisStore(cl *redis.Client, log *slog.Logger) *redisStore {
	return &redisStore{
		cl:  cl,
		log: log.With(slog.String("item", "RedisProgressStore")),
	}
}

func (r *redisStore) Put(ctx context.Context, id string, rec entity.ProgressRecord, ttl time.Duration) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("cannot marshal progress %s: %w", id, err)
	}

	if err := r.cl.Set(ctx, getKey(KeyPrefix, KeyProgress, id), data, ttl).Err(); err != nil {
		return fmt.Errorf("cannot save progress %s: %w", id, err)
	}

	return nil
}

func (r *redisStore) Get(ctx context.Context, id string) (*entity.ProgressRecord, error) {
	data, err := r.cl.Get(ctx, getKey(KeyPrefix, KeyProgress, id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, common.ErrJobNotFound
		}

		return nil, fmt.Errorf("cannot get progress %s: %w", id, err)
	}

	var rec entity.ProgressRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		r.log.Error("Broken progress record", slog.String("job_id", id), slog.Any("error", err))

		return nil, fmt.Errorf("cannot unmarshal progress %s: %w", id, err)
	}

	return &rec, nil
}

func getKey(keys ...string) string {
	return strings.Join(keys, KeySeparator)
}
