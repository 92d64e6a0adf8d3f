package rejection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/outreach-guard/internal/domain"
)

const (
	redisKeyPrefix     = "guard:rejection:"
	defaultMaxAttempts = 50
)

// RedisBackend stores one hash per recipient with fields "data" (JSON
// record) and "version". Updates run an optimistic WATCH/MULTI/EXEC loop so
// concurrent rejections for the same recipient never lose an increment.
type RedisBackend struct {
	client      *redis.Client
	timeout     time.Duration
	maxAttempts int
}

// NewRedisBackend creates a backend on an existing client. timeout bounds
// each network round-trip; zero means no extra bound.
func NewRedisBackend(client *redis.Client, timeout time.Duration) *RedisBackend {
	return &RedisBackend{
		client:      client,
		timeout:     timeout,
		maxAttempts: defaultMaxAttempts,
	}
}

// Name implements Backend.
func (b *RedisBackend) Name() string { return "redis" }

func (b *RedisBackend) redisKey(key string) string {
	return redisKeyPrefix + key
}

func (b *RedisBackend) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if b.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, b.timeout)
}

// Load implements Backend.
func (b *RedisBackend) Load(ctx context.Context, key string) (*domain.RejectionRecord, error) {
	ctx, cancel := b.callContext(ctx)
	defer cancel()

	vals, err := b.client.HGetAll(ctx, b.redisKey(key)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: redis hgetall: %w", ErrUnavailable, err)
	}
	rec, err := decodeRedisHash(vals)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrNotFound
	}
	return rec, nil
}

// Update implements Backend.
func (b *RedisBackend) Update(ctx context.Context, key string, mutate Mutator) (*domain.RejectionRecord, error) {
	rkey := b.redisKey(key)

	for attempt := 0; attempt < b.maxAttempts; attempt++ {
		var out *domain.RejectionRecord
		err := b.attempt(ctx, rkey, mutate, &out)
		if err == nil {
			return out, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			// Another writer touched the key between WATCH and EXEC.
			time.Sleep(time.Duration(attempt%5) * time.Millisecond)
			continue
		}
		return nil, err
	}
	return nil, fmt.Errorf("%w: %s", ErrTooManyConflicts, rkey)
}

func (b *RedisBackend) attempt(ctx context.Context, rkey string, mutate Mutator, out **domain.RejectionRecord) error {
	ctx, cancel := b.callContext(ctx)
	defer cancel()

	var localErr error
	err := b.client.Watch(ctx, func(tx *redis.Tx) error {
		vals, err := tx.HGetAll(ctx, rkey).Result()
		if err != nil {
			return err
		}
		rec, err := decodeRedisHash(vals)
		if err != nil {
			localErr = err
			return err
		}
		if rec == nil {
			rec = &domain.RejectionRecord{}
		}
		if err := mutate(rec); err != nil {
			localErr = err
			return err
		}
		rec.Version++

		data, err := json.Marshal(rec)
		if err != nil {
			localErr = err
			return err
		}

		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.HSet(ctx, rkey, "data", string(data), "version", rec.Version)
			if rec.TTLDays > 0 {
				p.Expire(ctx, rkey, time.Duration(rec.TTLDays)*24*time.Hour)
			}
			return nil
		})
		if err == nil {
			*out = rec
		}
		return err
	}, rkey)

	switch {
	case err == nil:
		return nil
	case localErr != nil:
		// Decode and mutation failures are not connectivity problems.
		return localErr
	case errors.Is(err, redis.TxFailedErr):
		return err
	default:
		return fmt.Errorf("%w: redis update: %w", ErrUnavailable, err)
	}
}

func decodeRedisHash(vals map[string]string) (*domain.RejectionRecord, error) {
	raw, ok := vals["data"]
	if !ok || raw == "" {
		return nil, nil
	}
	var rec domain.RejectionRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("decode rejection record: %w", err)
	}
	if v, err := strconv.ParseInt(vals["version"], 10, 64); err == nil {
		rec.Version = v
	}
	return &rec, nil
}
