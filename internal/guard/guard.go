// Package guard is the pre-queue quality gate for outreach drafts. It runs
// an ordered set of rules over a draft and its enriched lead and returns a
// pass/block verdict with machine-readable reasons.
package guard

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/ignite/outreach-guard/internal/config"
	"github.com/ignite/outreach-guard/internal/domain"
	"github.com/ignite/outreach-guard/internal/fingerprint"
	"github.com/ignite/outreach-guard/internal/pkg/logger"
	"github.com/ignite/outreach-guard/internal/rejection"
	"github.com/ignite/outreach-guard/internal/signals"
)

// Blocked reasons, one per rule. GUARD-001 reports the store's reason.
const (
	ReasonRepeatDraft          = "repeat_draft"
	ReasonInsufficientEvidence = "insufficient_personalization"
	ReasonBannedOpener         = "banned_opener"
	ReasonGenericDensity       = "generic_phrase_density"
)

// TagGenericOpener is the rejection tag that teaches the guard a new banned
// opener.
const TagGenericOpener = "generic_opener"

const (
	defaultMaxRejections    = 2
	defaultDensityThreshold = 0.40
	defaultDecisionTimeout  = 200 * time.Millisecond
)

var glog = logger.Component("guard")

// Memory is the rejection history the guard reads and the approval surface
// writes through. *rejection.Store implements it.
type Memory interface {
	GetRejectionHistory(ctx context.Context, email string) (*domain.RejectionRecord, bool)
	ShouldBlockLead(ctx context.Context, email string, maxRejections int, hasNewEvidence bool) (bool, string)
	RecordRejection(ctx context.Context, in rejection.RejectionInput) (*domain.RejectionRecord, error)
}

// OpenerMemory persists banned openers learned from rejections so every
// guard over the same storage shares them. *rejection.Store implements it.
type OpenerMemory interface {
	LearnedOpeners(ctx context.Context) []string
	SaveLearnedOpener(ctx context.Context, pattern string) error
}

// DecisionRecorder receives every evaluated verdict. Each call is bounded by
// the configured decision timeout.
type DecisionRecorder interface {
	RecordDecision(ctx context.Context, draft domain.LeadDraft, result domain.QualityGuardResult) error
}

// Guard evaluates drafts. It holds no per-recipient state and is safe for
// concurrent use.
type Guard struct {
	memory    Memory
	learned   OpenerMemory
	pipeline  *signals.Pipeline
	decisions DecisionRecorder

	mode             domain.GuardMode
	maxRejections    int
	densityThreshold float64
	decisionTimeout  time.Duration
	phrases          []string

	mu      sync.RWMutex
	openers []*regexp.Regexp
	known   map[string]struct{} // compiled pattern strings in openers
}

// Option configures a Guard.
type Option func(*Guard)

// WithPipeline replaces the default extraction pipeline.
func WithPipeline(p *signals.Pipeline) Option {
	return func(g *Guard) { g.pipeline = p }
}

// WithDecisionRecorder sends every verdict to r.
func WithDecisionRecorder(r DecisionRecorder) Option {
	return func(g *Guard) { g.decisions = r }
}

// New builds a guard. An unknown mode, an out-of-range threshold or an
// uncompilable opener pattern is a configuration error.
func New(memory Memory, cfg config.GuardConfig, opts ...Option) (*Guard, error) {
	mode, err := domain.ParseGuardMode(cfg.Mode)
	if err != nil {
		return nil, err
	}

	g := &Guard{
		memory:           memory,
		pipeline:         signals.NewPipeline(),
		mode:             mode,
		maxRejections:    cfg.MaxRejections,
		densityThreshold: cfg.GenericDensityThreshold,
		decisionTimeout:  cfg.DecisionTimeout(),
		known:            make(map[string]struct{}),
	}
	if g.maxRejections == 0 {
		g.maxRejections = defaultMaxRejections
	}
	if g.densityThreshold == 0 {
		g.densityThreshold = defaultDensityThreshold
	}
	if g.decisionTimeout <= 0 {
		g.decisionTimeout = defaultDecisionTimeout
	}
	if g.maxRejections < 1 {
		return nil, fmt.Errorf("max rejections must be >= 1, got %d", g.maxRejections)
	}
	if g.densityThreshold < 0 || g.densityThreshold > 1 {
		return nil, fmt.Errorf("generic density threshold must be in (0,1], got %v", g.densityThreshold)
	}

	for _, p := range append(append([]string{}, defaultBannedOpeners...), cfg.BannedOpeners...) {
		re, err := compileOpener(p)
		if err != nil {
			return nil, fmt.Errorf("banned opener %q: %w", p, err)
		}
		g.addCompiled(re)
	}

	g.phrases = append(g.phrases, defaultGenericPhrases...)
	for _, p := range cfg.GenericPhrases {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			g.phrases = append(g.phrases, p)
		}
	}

	for _, opt := range opts {
		opt(g)
	}

	if om, ok := memory.(OpenerMemory); ok && g.mode != domain.GuardDisabled {
		g.learned = om
		g.syncLearned(context.Background())
	}
	return g, nil
}

// Mode returns the configured mode.
func (g *Guard) Mode() domain.GuardMode { return g.mode }

// MaxRejections returns the GUARD-001 threshold.
func (g *Guard) MaxRejections() int { return g.maxRejections }

// BannedOpeners returns the current opener patterns, seeds first.
func (g *Guard) BannedOpeners() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]string, len(g.openers))
	for i, re := range g.openers {
		out[i] = strings.TrimPrefix(re.String(), "(?i)")
	}
	return out
}

// AddBannedOpener compiles and appends an opener pattern. Duplicates are
// ignored.
func (g *Guard) AddBannedOpener(pattern string) error {
	re, err := compileOpener(pattern)
	if err != nil {
		return fmt.Errorf("banned opener %q: %w", pattern, err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.addCompiled(re)
	return nil
}

// addCompiled appends re unless an identical pattern is present. Callers
// hold mu or own g exclusively.
func (g *Guard) addCompiled(re *regexp.Regexp) {
	if _, ok := g.known[re.String()]; ok {
		return
	}
	g.known[re.String()] = struct{}{}
	g.openers = append(g.openers, re)
}

// syncLearned pulls openers other guard instances persisted.
func (g *Guard) syncLearned(ctx context.Context) {
	if g.learned == nil {
		return
	}
	for _, p := range g.learned.LearnedOpeners(ctx) {
		g.mu.RLock()
		_, seen := g.known["(?i)"+p]
		g.mu.RUnlock()
		if seen {
			continue
		}
		if err := g.AddBannedOpener(p); err != nil {
			glog.Warn("skipping stored opener", "error", err)
		}
	}
}

// Check evaluates every rule against the draft. All rules run so the result
// lists every failure. In hard mode any failure blocks; in soft mode
// failures are reported but the draft passes; disabled skips evaluation.
func (g *Guard) Check(ctx context.Context, draft domain.LeadDraft, lead *domain.EnrichedLead) domain.QualityGuardResult {
	result := domain.QualityGuardResult{
		Passed:       true,
		RuleFailures: []domain.RuleFailure{},
		Mode:         g.mode,
	}
	if g.mode == domain.GuardDisabled {
		return result
	}

	draft = draft.Normalized()
	fp := fingerprint.Fingerprint(draft.Subject, draft.Body)
	result.DraftFingerprint = fp

	var reasons []string
	fail := func(ruleID, reason, msg string) {
		result.RuleFailures = append(result.RuleFailures, domain.RuleFailure{RuleID: ruleID, Message: msg})
		reasons = append(reasons, reason)
	}

	// GUARD-001: rejection memory, with the evidence override.
	history, hasHistory := g.memory.GetRejectionHistory(ctx, draft.RecipientEmail)
	result.RejectionMemoryHit = hasHistory

	var evidence *domain.MergedPersonalizationContext
	if hasHistory && history.RejectionCount >= g.maxRejections {
		ev := g.pipeline.ExtractAll(lead)
		evidence = &ev
		blocked, reason := g.memory.ShouldBlockLead(ctx, draft.RecipientEmail, g.maxRejections, ev.MeetsMinimumEvidence())
		if blocked {
			fail(domain.RuleRejectionMemory, reason, fmt.Sprintf(
				"recipient rejected %d times (limit %d) with no new personalization evidence",
				history.RejectionCount, g.maxRejections))
		} else if reason == rejection.ReasonNewEvidenceOverride {
			glog.Info("rejection memory override", "recipient", draft.RecipientEmail, "rejections", history.RejectionCount)
		}
	}

	// GUARD-002: exact repeat of rejected content.
	if hasHistory && history.HasFingerprint(fp) {
		fail(domain.RuleRepeatDraft, ReasonRepeatDraft, "draft matches previously rejected content for this recipient")
	}

	// GUARD-003: minimum evidence, when GUARD-001 did not already extract.
	if evidence == nil {
		ev := g.pipeline.ExtractAll(lead)
		evidence = &ev
		if !ev.MeetsMinimumEvidence() {
			fail(domain.RuleMinimumEvidence, ReasonInsufficientEvidence, fmt.Sprintf(
				"need at least one company-specific and one role-impact signal, found %d and %d",
				ev.CompanySpecificCount, ev.RoleImpactCount))
		}
	}
	result.Evidence = *evidence

	// GUARD-004: banned openers.
	if pattern, ok := g.matchBannedOpener(ctx, draft.Body); ok {
		fail(domain.RuleBannedOpener, ReasonBannedOpener, fmt.Sprintf("body matches banned opener %q", pattern))
	}

	// GUARD-005: generic phrase density.
	if density, generic, total := genericDensity(draft.Body, g.phrases); density > g.densityThreshold {
		fail(domain.RuleGenericDensity, ReasonGenericDensity, fmt.Sprintf(
			"%d of %d sentences use generic phrasing (%.0f%% > %.0f%%)",
			generic, total, density*100, g.densityThreshold*100))
	}

	if len(result.RuleFailures) > 0 {
		if g.mode == domain.GuardHard {
			result.Passed = false
			result.BlockedReason = reasons[0]
			glog.Info("draft blocked",
				"recipient", draft.RecipientEmail,
				"campaign_id", draft.CampaignID,
				"reason", result.BlockedReason,
				"failures", len(result.RuleFailures))
		} else {
			glog.Info("draft would be blocked (soft mode)",
				"recipient", draft.RecipientEmail,
				"campaign_id", draft.CampaignID,
				"reason", reasons[0],
				"failures", len(result.RuleFailures))
		}
	}

	if g.decisions != nil {
		rctx, cancel := context.WithTimeout(ctx, g.decisionTimeout)
		err := g.decisions.RecordDecision(rctx, draft, result)
		cancel()
		if err != nil {
			glog.Warn("failed to record decision", "recipient", draft.RecipientEmail, "error", err)
		}
	}
	return result
}

func (g *Guard) matchBannedOpener(ctx context.Context, body string) (string, bool) {
	g.syncLearned(ctx)
	normalized := fingerprint.Normalize(body)

	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, re := range g.openers {
		if re.MatchString(normalized) {
			return strings.TrimPrefix(re.String(), "(?i)"), true
		}
	}
	return "", false
}

// RecordRejection writes a human rejection through to rejection memory. A
// rejection tagged generic_opener also teaches the guard the rejected
// draft's opening words.
func (g *Guard) RecordRejection(ctx context.Context, in rejection.RejectionInput) (*domain.RejectionRecord, error) {
	rec, err := g.memory.RecordRejection(ctx, in)
	if err != nil {
		return nil, err
	}

	if strings.EqualFold(strings.TrimSpace(in.Tag), TagGenericOpener) {
		g.learnOpener(ctx, in.Body)
	}
	return rec, nil
}

func (g *Guard) learnOpener(ctx context.Context, body string) {
	pattern := openerPattern(body)
	if pattern == "" {
		return
	}
	if _, ok := g.matchBannedOpener(ctx, body); ok {
		return
	}
	if err := g.AddBannedOpener(pattern); err != nil {
		glog.Warn("could not learn banned opener", "error", err)
		return
	}
	if g.learned != nil {
		if err := g.learned.SaveLearnedOpener(ctx, pattern); err != nil {
			glog.Warn("learned opener kept in memory only", "pattern", pattern, "error", err)
		}
	}
	glog.Info("learned banned opener", "pattern", pattern)
}
