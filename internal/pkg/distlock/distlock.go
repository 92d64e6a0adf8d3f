// Package distlock provides a single-holder lock shared by every replica of
// the service, so periodic jobs run on one host at a time.
package distlock

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Lock is a non-blocking distributed lock. A Lock value belongs to one
// goroutine; use separate values for concurrent holders.
type Lock interface {
	// TryAcquire returns true if the lock is now held by this value.
	TryAcquire(ctx context.Context) (bool, error)
	// Release gives the lock up if this value still holds it.
	Release(ctx context.Context) error
}

// New picks Redis when a client is available, otherwise a PostgreSQL
// advisory lock. With neither it returns a process-local lock.
func New(client *redis.Client, db *sql.DB, name string, ttl time.Duration) Lock {
	switch {
	case client != nil:
		return NewRedisLock(client, name, ttl)
	case db != nil:
		return NewPGAdvisoryLock(db, name)
	}
	return &localLock{held: make(chan struct{}, 1)}
}

// Run calls fn only if l can be acquired, releasing it afterwards. ran
// reports whether fn was called.
func Run(ctx context.Context, l Lock, fn func(ctx context.Context) error) (ran bool, err error) {
	ok, err := l.TryAcquire(ctx)
	if err != nil || !ok {
		return false, err
	}
	defer func() {
		// Release on a fresh context so a cancelled job still frees the lock.
		relCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if relErr := l.Release(relCtx); relErr != nil && err == nil {
			err = fmt.Errorf("release lock: %w", relErr)
		}
	}()
	return true, fn(ctx)
}

var (
	releaseScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		end
		return 0
	`)
	extendScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("pexpire", KEYS[1], ARGV[2])
		end
		return 0
	`)
)

// RedisLock is SET NX with a TTL and a random owner token. Release and
// Extend only touch the key while the token still matches.
type RedisLock struct {
	client *redis.Client
	key    string
	token  string
	ttl    time.Duration
}

// NewRedisLock creates a lock stored at guard:lock:{name}.
func NewRedisLock(client *redis.Client, name string, ttl time.Duration) *RedisLock {
	b := make([]byte, 16)
	rand.Read(b)
	return &RedisLock{
		client: client,
		key:    "guard:lock:" + name,
		token:  hex.EncodeToString(b),
		ttl:    ttl,
	}
}

// TryAcquire implements Lock.
func (l *RedisLock) TryAcquire(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire %s: %w", l.key, err)
	}
	return ok, nil
}

// Release implements Lock.
func (l *RedisLock) Release(ctx context.Context) error {
	return releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err()
}

// Extend pushes the TTL out for a long-running holder. It returns false if
// the lock was lost.
func (l *RedisLock) Extend(ctx context.Context, ttl time.Duration) (bool, error) {
	n, err := extendScript.Run(ctx, l.client, []string{l.key}, l.token, ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// PGAdvisoryLock uses session-scoped pg_try_advisory_lock on a pinned
// connection, so unlock runs in the same session. The lock is dropped with
// the connection if the process dies.
type PGAdvisoryLock struct {
	db     *sql.DB
	lockID int64
	conn   *sql.Conn
}

// NewPGAdvisoryLock derives a stable advisory lock ID from name.
func NewPGAdvisoryLock(db *sql.DB, name string) *PGAdvisoryLock {
	h := fnv.New64a()
	h.Write([]byte(name))
	return &PGAdvisoryLock{db: db, lockID: int64(h.Sum64())}
}

// TryAcquire implements Lock.
func (l *PGAdvisoryLock) TryAcquire(ctx context.Context) (bool, error) {
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return false, fmt.Errorf("advisory lock conn: %w", err)
	}
	var ok bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", l.lockID).Scan(&ok); err != nil {
		conn.Close()
		return false, fmt.Errorf("advisory lock %d: %w", l.lockID, err)
	}
	if !ok {
		conn.Close()
		return false, nil
	}
	l.conn = conn
	return true, nil
}

// Release implements Lock.
func (l *PGAdvisoryLock) Release(ctx context.Context) error {
	if l.conn == nil {
		return nil
	}
	defer func() {
		l.conn.Close()
		l.conn = nil
	}()
	_, err := l.conn.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", l.lockID)
	return err
}

// localLock serializes holders inside one process only.
type localLock struct {
	held chan struct{}
}

func (l *localLock) TryAcquire(context.Context) (bool, error) {
	select {
	case l.held <- struct{}{}:
		return true, nil
	default:
		return false, nil
	}
}

func (l *localLock) Release(context.Context) error {
	select {
	case <-l.held:
	default:
	}
	return nil
}
