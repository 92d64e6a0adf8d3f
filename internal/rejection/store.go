package rejection

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/ignite/outreach-guard/internal/domain"
	"github.com/ignite/outreach-guard/internal/fingerprint"
	"github.com/ignite/outreach-guard/internal/pkg/logger"
)

var rlog = logger.Component("rejection")

// Block reasons returned by ShouldBlockLead.
const (
	ReasonNewEvidenceOverride   = "new_evidence_override"
	ReasonMaxRejectionsExceeded = "max_rejections_exceeded"
)

// DefaultTTLDays is the rejection memory window when none is configured.
const DefaultTTLDays = 30

// RejectionInput is what the approval surface supplies when a human
// rejects a draft.
type RejectionInput struct {
	RecipientEmail string `json:"recipient_email"`
	Tag            string `json:"rejection_tag"`
	Subject        string `json:"subject"`
	Body           string `json:"body"`
	FeedbackText   string `json:"feedback_text"`
	TemplateID     string `json:"template_id"`
}

// Store owns every persisted RejectionRecord. Callers only ever receive
// copies. It is safe for concurrent use.
type Store struct {
	backends []Backend
	ttlDays  int
	now      func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithFallback appends a backend tried when the ones before it are
// unreachable.
func WithFallback(b Backend) Option {
	return func(s *Store) {
		if b != nil {
			s.backends = append(s.backends, b)
		}
	}
}

// WithTTLDays sets the rejection memory window.
func WithTTLDays(days int) Option {
	return func(s *Store) {
		if days > 0 {
			s.ttlDays = days
		}
	}
}

// WithClock sets a custom clock function (for testing).
func WithClock(fn func() time.Time) Option {
	return func(s *Store) { s.now = fn }
}

// NewStore creates a store on a primary backend.
func NewStore(primary Backend, opts ...Option) *Store {
	s := &Store{
		ttlDays: DefaultTTLDays,
		now:     time.Now,
	}
	if primary != nil {
		s.backends = append(s.backends, primary)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TTLDays returns the configured rejection memory window.
func (s *Store) TTLDays() int { return s.ttlDays }

// BackendNames lists the fallback chain in order.
func (s *Store) BackendNames() []string {
	names := make([]string, len(s.backends))
	for i, b := range s.backends {
		names[i] = b.Name()
	}
	return names
}

func (s *Store) ttl() time.Duration {
	return time.Duration(s.ttlDays) * 24 * time.Hour
}

// canFallBack reports whether a failed backend call should move on to the
// next backend. A caller that gave up is not a backend failure.
func canFallBack(ctx context.Context, err error) bool {
	return ctx.Err() == nil && IsUnavailable(err)
}

// RecordRejection registers one human rejection. It never returns a storage
// error: when every backend fails the event is logged and dropped and the
// returned record is nil.
func (s *Store) RecordRejection(ctx context.Context, in RejectionInput) (*domain.RejectionRecord, error) {
	email := domain.NormalizeEmail(in.RecipientEmail)
	if email == "" {
		return nil, ErrInvalidRecipient
	}
	key := fingerprint.RecipientKey(email)
	fp := fingerprint.Fingerprint(in.Subject, in.Body)
	now := s.now().UTC()

	mutate := func(rec *domain.RejectionRecord) error {
		if rec.RejectionCount > 0 && now.Sub(rec.LastRejectedAt) > s.ttl() {
			// The previous window lapsed; start a new one.
			*rec = domain.RejectionRecord{Version: rec.Version}
		}
		rec.RecipientEmail = email
		rec.TTLDays = s.ttlDays
		rec.RejectionCount++
		rec.LastRejectedAt = now
		rec.AddTag(strings.TrimSpace(in.Tag))
		rec.AddFingerprint(fp)
		rec.AddSubject(strings.TrimSpace(in.Subject))
		rec.AddTemplateID(strings.TrimSpace(in.TemplateID))
		rec.AddFeedback(strings.TrimSpace(in.FeedbackText))
		return nil
	}

	for i, b := range s.backends {
		rec, err := b.Update(ctx, key, mutate)
		if err == nil {
			if i > 0 {
				rlog.Warn("rejection recorded on fallback backend", "backend", b.Name(), "recipient", email)
			}
			return rec.Clone(), nil
		}
		if !canFallBack(ctx, err) {
			rlog.Error("rejection dropped", "backend", b.Name(), "recipient", email, "error", err)
			return nil, nil
		}
		rlog.Warn("rejection backend unavailable, falling back", "backend", b.Name(), "error", err)
	}

	rlog.Error("rejection dropped: no backend accepted the write", "recipient", email, "tag", in.Tag)
	return nil, nil
}

// load reads every backend in the chain. Rejections recorded on a fallback
// while the primary was down are merged into the primary's record, so
// their counts and fingerprints stay visible after it recovers. Records
// past the TTL window are ignored before merging.
func (s *Store) load(ctx context.Context, key string) (*domain.RejectionRecord, error) {
	var merged *domain.RejectionRecord
	lastErr := ErrNotFound
	now := s.now()
	for _, b := range s.backends {
		rec, err := b.Load(ctx, key)
		switch {
		case err == nil:
			rec.TTLDays = s.ttlDays
			if rec.Expired(now) {
				continue
			}
			if merged == nil {
				merged = rec
			} else {
				merged.Merge(rec)
			}
			continue
		case errors.Is(err, ErrNotFound):
			continue
		case ctx.Err() != nil:
			return nil, err
		case IsUnavailable(err):
			rlog.Warn("rejection backend unavailable on read, falling back", "backend", b.Name(), "error", err)
		default:
			// An unreadable record on one backend does not hide the others.
			rlog.Warn("rejection record unreadable", "backend", b.Name(), "error", err)
		}
		lastErr = err
	}
	if merged == nil {
		return nil, lastErr
	}
	return merged, nil
}

// GetRejectionHistory returns a copy of the recipient's live record. Expired
// and unreadable records are reported as absent; the store is not mutated.
func (s *Store) GetRejectionHistory(ctx context.Context, email string) (*domain.RejectionRecord, bool) {
	email = domain.NormalizeEmail(email)
	if email == "" {
		return nil, false
	}

	rec, err := s.load(ctx, fingerprint.RecipientKey(email))
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			rlog.Warn("rejection history unavailable, treating as none", "recipient", email, "error", err)
		}
		return nil, false
	}

	rec.TTLDays = s.ttlDays
	if rec.Expired(s.now()) {
		return nil, false
	}
	return rec.Clone(), true
}

// IsRepeatDraft reports whether fp was already rejected for this recipient
// inside the TTL window.
func (s *Store) IsRepeatDraft(ctx context.Context, email, fp string) bool {
	rec, ok := s.GetRejectionHistory(ctx, email)
	return ok && rec.HasFingerprint(fp)
}

// ShouldBlockLead applies the rejection threshold with the evidence
// override.
func (s *Store) ShouldBlockLead(ctx context.Context, email string, maxRejections int, hasNewEvidence bool) (bool, string) {
	rec, ok := s.GetRejectionHistory(ctx, email)
	return blockDecision(rec, ok, maxRejections, hasNewEvidence)
}

func blockDecision(rec *domain.RejectionRecord, ok bool, maxRejections int, hasNewEvidence bool) (bool, string) {
	if !ok || rec.RejectionCount < maxRejections {
		return false, ""
	}
	if hasNewEvidence {
		return false, ReasonNewEvidenceOverride
	}
	return true, ReasonMaxRejectionsExceeded
}

// RejectedTemplateIDs returns the templates already rejected for this
// recipient. The set is empty for unknown or expired recipients.
func (s *Store) RejectedTemplateIDs(ctx context.Context, email string) map[string]struct{} {
	out := make(map[string]struct{})
	rec, ok := s.GetRejectionHistory(ctx, email)
	if !ok {
		return out
	}
	for _, id := range rec.RejectedTemplateIDs {
		out[id] = struct{}{}
	}
	return out
}

// Sweep physically removes expired records from backends that need it.
// Redis and DynamoDB expire keys on their own and are skipped.
func (s *Store) Sweep(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.ttl())
	total := 0
	var firstErr error
	for _, b := range s.backends {
		sw, ok := b.(Sweeper)
		if !ok {
			continue
		}
		n, err := sw.Sweep(ctx, cutoff)
		total += n
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return total, firstErr
}
