package rejection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ignite/outreach-guard/internal/domain"
)

// FileBackend keeps one JSON file per recipient under dir. Writers hold an
// in-process mutex for the key plus an exclusive advisory lock on a sibling
// .lock file, so updates are atomic across goroutines and processes.
// Readers rely on rename being atomic and take no lock.
type FileBackend struct {
	dir   string
	locks sync.Map // key -> *sync.Mutex
}

// NewFileBackend creates the directory if needed.
func NewFileBackend(dir string) (*FileBackend, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating rejection directory: %w", err)
	}
	return &FileBackend{dir: dir}, nil
}

// Name implements Backend.
func (b *FileBackend) Name() string { return "local" }

func (b *FileBackend) dataPath(key string) string {
	return filepath.Join(b.dir, filepath.Base(key)+".json")
}

func (b *FileBackend) lockPath(key string) string {
	return filepath.Join(b.dir, filepath.Base(key)+".lock")
}

func (b *FileBackend) keyMutex(key string) *sync.Mutex {
	mu, _ := b.locks.LoadOrStore(key, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Load implements Backend.
func (b *FileBackend) Load(_ context.Context, key string) (*domain.RejectionRecord, error) {
	return b.read(key)
}

func (b *FileBackend) read(key string) (*domain.RejectionRecord, error) {
	data, err := os.ReadFile(b.dataPath(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", ErrUnavailable, key, err)
	}
	var rec domain.RejectionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode rejection record: %w", err)
	}
	return &rec, nil
}

// Update implements Backend.
func (b *FileBackend) Update(_ context.Context, key string, mutate Mutator) (*domain.RejectionRecord, error) {
	var out *domain.RejectionRecord
	err := b.withLock(key, func() error {
		rec, err := b.read(key)
		switch {
		case errors.Is(err, ErrNotFound):
			rec = &domain.RejectionRecord{}
		case err != nil:
			return err
		}
		if err := mutate(rec); err != nil {
			return err
		}
		rec.Version++
		if err := b.write(key, rec); err != nil {
			return err
		}
		out = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (b *FileBackend) withLock(key string, fn func() error) error {
	mu := b.keyMutex(key)
	mu.Lock()
	defer mu.Unlock()

	f, err := os.OpenFile(b.lockPath(key), os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("%w: opening lock: %w", ErrUnavailable, err)
	}
	defer f.Close()

	if err := lockFile(f); err != nil {
		return fmt.Errorf("%w: locking %s: %w", ErrUnavailable, key, err)
	}
	defer unlockFile(f)

	return fn()
}

func (b *FileBackend) write(key string, rec *domain.RejectionRecord) error {
	tmp, err := os.CreateTemp(b.dir, filepath.Base(key)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: creating temp file: %w", ErrUnavailable, err)
	}
	tmpName := tmp.Name()

	encoder := json.NewEncoder(tmp)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(rec); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("encoding rejection record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: closing temp file: %w", ErrUnavailable, err)
	}
	if err := os.Rename(tmpName, b.dataPath(key)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: renaming record: %w", ErrUnavailable, err)
	}
	return nil
}

// Sweep implements Sweeper. It removes records whose last rejection is
// older than cutoff, re-checking each one under its lock. Lock files are
// left in place; deleting one could split waiters across two inodes.
func (b *FileBackend) Sweep(ctx context.Context, cutoff time.Time) (int, error) {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return 0, fmt.Errorf("%w: listing %s: %w", ErrUnavailable, b.dir, err)
	}

	removed := 0
	for _, entry := range entries {
		if ctx.Err() != nil {
			return removed, ctx.Err()
		}
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".json" {
			continue
		}
		key := strings.TrimSuffix(name, ".json")

		err := b.withLock(key, func() error {
			rec, err := b.read(key)
			if err != nil {
				return err
			}
			if !rec.LastRejectedAt.Before(cutoff) {
				return nil
			}
			if err := os.Remove(b.dataPath(key)); err != nil {
				return err
			}
			removed++
			return nil
		})
		if err != nil && !errors.Is(err, ErrNotFound) {
			// Unreadable records are left for an operator to inspect.
			rlog.Warn("sweep skipped record", "key", key, "error", err)
		}
	}
	return removed, nil
}
