package api

import (
	"context"
	"time"

	"github.com/ignite/outreach-guard/internal/domain"
	"github.com/ignite/outreach-guard/internal/guard"
	"github.com/ignite/outreach-guard/internal/pkg/logger"
	"github.com/ignite/outreach-guard/internal/rejection"
)

var alog = logger.Component("api")

// StatsSource aggregates recorded guard decisions.
// *postgres.DecisionRepo implements it.
type StatsSource interface {
	StatsSince(ctx context.Context, since time.Time) (*domain.DecisionStats, error)
}

// Handlers contains the HTTP handlers for the quality gate.
type Handlers struct {
	guard *guard.Guard
	store *rejection.Store
	stats StatsSource
}

// NewHandlers creates the handler set. stats may be nil when no decision
// database is configured.
func NewHandlers(g *guard.Guard, store *rejection.Store, stats StatsSource) *Handlers {
	return &Handlers{
		guard: g,
		store: store,
		stats: stats,
	}
}
