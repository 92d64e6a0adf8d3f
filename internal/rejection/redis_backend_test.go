package rejection

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/outreach-guard/internal/domain"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return mr, client
}

func increment(rec *domain.RejectionRecord) error {
	rec.RejectionCount++
	rec.TTLDays = 30
	rec.LastRejectedAt = time.Now().UTC()
	return nil
}

func TestRedisBackend_LoadMissing(t *testing.T) {
	_, client := setupTestRedis(t)
	b := NewRedisBackend(client, time.Second)

	_, err := b.Load(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisBackend_UpdateRoundTrip(t *testing.T) {
	mr, client := setupTestRedis(t)
	b := NewRedisBackend(client, time.Second)
	ctx := context.Background()

	rec, err := b.Update(ctx, "k1", func(rec *domain.RejectionRecord) error {
		rec.RecipientEmail = "andrew@example.com"
		rec.AddTag("too_generic")
		return increment(rec)
	})
	require.NoError(t, err)
	assert.Equal(t, 1, rec.RejectionCount)
	assert.Equal(t, int64(1), rec.Version)

	loaded, err := b.Load(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, "andrew@example.com", loaded.RecipientEmail)
	assert.Equal(t, []string{"too_generic"}, loaded.RejectionTags)
	assert.Equal(t, int64(1), loaded.Version)

	assert.Equal(t, 30*24*time.Hour, mr.TTL(redisKeyPrefix+"k1"))
}

func TestRedisBackend_ConcurrentUpdatesNeverLoseIncrements(t *testing.T) {
	_, client := setupTestRedis(t)
	b := NewRedisBackend(client, 2*time.Second)
	ctx := context.Background()

	const writers = 20
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := b.Update(ctx, "shared", increment)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	rec, err := b.Load(ctx, "shared")
	require.NoError(t, err)
	assert.Equal(t, writers, rec.RejectionCount)
	assert.Equal(t, int64(writers), rec.Version)
}

func TestRedisBackend_CorruptRecordIsNotUnavailable(t *testing.T) {
	mr, client := setupTestRedis(t)
	b := NewRedisBackend(client, time.Second)

	mr.HSet(redisKeyPrefix+"bad", "data", "{not json", "version", "3")

	_, err := b.Load(context.Background(), "bad")
	require.Error(t, err)
	assert.False(t, IsUnavailable(err))

	_, err = b.Update(context.Background(), "bad", increment)
	require.Error(t, err)
	assert.False(t, IsUnavailable(err))
}

func TestRedisBackend_ServerDownIsUnavailable(t *testing.T) {
	mr, client := setupTestRedis(t)
	b := NewRedisBackend(client, 200*time.Millisecond)
	mr.Close()

	_, err := b.Load(context.Background(), "k1")
	require.Error(t, err)
	assert.True(t, IsUnavailable(err))

	_, err = b.Update(context.Background(), "k1", increment)
	require.Error(t, err)
	assert.True(t, IsUnavailable(err))
}
