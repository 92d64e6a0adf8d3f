package rejection

import (
	"context"
	"time"

	"github.com/ignite/outreach-guard/internal/domain"
)

// Mutator applies one change to a record inside an atomic update. A fresh
// zero record is passed when none exists yet.
type Mutator func(rec *domain.RejectionRecord) error

// Backend is the storage contract every rejection memory backend meets.
type Backend interface {
	// Name identifies the backend in logs and health output.
	Name() string

	// Load returns the stored record for key, or ErrNotFound.
	Load(ctx context.Context, key string) (*domain.RejectionRecord, error)

	// Update atomically reads the record for key, applies mutate, and
	// writes the result. Concurrent updates to the same key never lose a
	// mutation. The returned record reflects the write.
	Update(ctx context.Context, key string, mutate Mutator) (*domain.RejectionRecord, error)
}

// Sweeper is implemented by backends that need explicit cleanup of records
// whose last activity is older than cutoff.
type Sweeper interface {
	Sweep(ctx context.Context, cutoff time.Time) (int, error)
}
