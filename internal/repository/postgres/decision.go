package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/outreach-guard/internal/domain"
	"github.com/ignite/outreach-guard/internal/fingerprint"
)

// DecisionRepo is the guard's decision audit log in PostgreSQL. Recipients
// are stored by key hash, never by address.
type DecisionRepo struct{ db *sql.DB }

// NewDecisionRepo creates a Postgres-backed decision log.
func NewDecisionRepo(db *sql.DB) *DecisionRepo { return &DecisionRepo{db: db} }

// RecordDecision implements guard.DecisionRecorder.
func (r *DecisionRepo) RecordDecision(ctx context.Context, draft domain.LeadDraft, res domain.QualityGuardResult) error {
	failures, err := json.Marshal(res.RuleFailures)
	if err != nil {
		return fmt.Errorf("marshal rule failures: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO quality_guard_decisions
			(id, recipient_key, campaign_id, template_id, draft_fingerprint, mode,
			 passed, blocked_reason, rule_failures, overall_confidence, memory_hit, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())
	`, uuid.New().String(), fingerprint.RecipientKey(draft.RecipientEmail), draft.CampaignID,
		draft.TemplateID, res.DraftFingerprint, string(res.Mode), res.Passed, res.BlockedReason,
		string(failures), res.Evidence.OverallConfidence, res.RejectionMemoryHit)
	if err != nil {
		return fmt.Errorf("record decision: %w", err)
	}
	return nil
}

// StatsSince aggregates verdicts recorded at or after since.
func (r *DecisionRepo) StatsSince(ctx context.Context, since time.Time) (*domain.DecisionStats, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT passed, blocked_reason, jsonb_array_length(rule_failures) > 0 AS flagged, COUNT(*)
		FROM quality_guard_decisions
		WHERE created_at >= $1
		GROUP BY passed, blocked_reason, flagged
	`, since)
	if err != nil {
		return nil, fmt.Errorf("decision stats: %w", err)
	}
	defer rows.Close()

	stats := &domain.DecisionStats{Since: since, ByReason: make(map[string]int)}
	for rows.Next() {
		var (
			passed, flagged bool
			reason          string
			n               int
		)
		if err := rows.Scan(&passed, &reason, &flagged, &n); err != nil {
			return nil, fmt.Errorf("scan decision stats: %w", err)
		}
		stats.Total += n
		switch {
		case !passed:
			stats.Blocked += n
			stats.ByReason[reason] += n
		case flagged:
			stats.Passed += n
			stats.SoftFlagged += n
		default:
			stats.Passed += n
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("decision stats: %w", err)
	}
	return stats, nil
}

// PurgeBefore deletes decisions older than cutoff and returns how many were
// removed.
func (r *DecisionRepo) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM quality_guard_decisions WHERE created_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("purge decisions: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
