package domain

import (
	"sort"
	"time"
)

// MaxFeedbackTexts bounds RejectionRecord.FeedbackTexts.
const MaxFeedbackTexts = 5

// RejectionRecord is the per-recipient rejection memory. Set-valued fields
// are kept sorted and de-duplicated so every encoding is deterministic.
type RejectionRecord struct {
	RecipientEmail           string    `json:"recipient_email"`
	RejectionCount           int       `json:"rejection_count"`
	LastRejectedAt           time.Time `json:"last_rejected_at"`
	RejectionTags            []string  `json:"rejection_tags"`
	RejectedSubjects         []string  `json:"rejected_subjects"`
	RejectedBodyFingerprints []string  `json:"rejected_body_fingerprints"`
	RejectedTemplateIDs      []string  `json:"rejected_template_ids"`
	FeedbackTexts            []string  `json:"feedback_texts"` // newest first
	TTLDays                  int       `json:"ttl_days"`
	Version                  int64     `json:"version"`
}

// Expired reports whether the record has had no activity within its TTL.
// A record exactly at the boundary is still live.
func (r *RejectionRecord) Expired(now time.Time) bool {
	if r == nil {
		return true
	}
	if r.TTLDays <= 0 {
		return false
	}
	return now.Sub(r.LastRejectedAt) > time.Duration(r.TTLDays)*24*time.Hour
}

// ExpiresAt returns the instant after which the record is logically absent.
func (r *RejectionRecord) ExpiresAt() time.Time {
	return r.LastRejectedAt.Add(time.Duration(r.TTLDays) * 24 * time.Hour)
}

// HasFingerprint reports whether fp is a rejected body fingerprint.
func (r *RejectionRecord) HasFingerprint(fp string) bool {
	return contains(r.RejectedBodyFingerprints, fp)
}

// AddTag appends a tag, keeping first-seen order and skipping duplicates.
func (r *RejectionRecord) AddTag(tag string) {
	if tag == "" {
		return
	}
	if contains(r.RejectionTags, tag) {
		return
	}
	r.RejectionTags = append(r.RejectionTags, tag)
}

// AddSubject adds a subject to the rejected subject set.
func (r *RejectionRecord) AddSubject(s string) {
	r.RejectedSubjects = insertSorted(r.RejectedSubjects, s)
}

// AddFingerprint adds a body fingerprint to the rejected set.
func (r *RejectionRecord) AddFingerprint(fp string) {
	r.RejectedBodyFingerprints = insertSorted(r.RejectedBodyFingerprints, fp)
}

// AddTemplateID adds a template ID to the rejected set.
func (r *RejectionRecord) AddTemplateID(id string) {
	r.RejectedTemplateIDs = insertSorted(r.RejectedTemplateIDs, id)
}

// AddFeedback prepends feedback, keeping only the newest MaxFeedbackTexts.
func (r *RejectionRecord) AddFeedback(text string) {
	if text == "" {
		return
	}
	fb := make([]string, 0, MaxFeedbackTexts)
	fb = append(fb, text)
	for _, t := range r.FeedbackTexts {
		if len(fb) == MaxFeedbackTexts {
			break
		}
		fb = append(fb, t)
	}
	r.FeedbackTexts = fb
}

// Merge folds in a record for the same recipient held by another backend,
// written while this one was unreachable. The two hold disjoint rejections,
// so counts add and sets union. Version stays this record's.
func (r *RejectionRecord) Merge(other *RejectionRecord) {
	if other == nil {
		return
	}
	r.RejectionCount += other.RejectionCount
	for _, t := range other.RejectionTags {
		r.AddTag(t)
	}
	for _, s := range other.RejectedSubjects {
		r.AddSubject(s)
	}
	for _, fp := range other.RejectedBodyFingerprints {
		r.AddFingerprint(fp)
	}
	for _, id := range other.RejectedTemplateIDs {
		r.AddTemplateID(id)
	}

	newer, older := r.FeedbackTexts, other.FeedbackTexts
	if other.LastRejectedAt.After(r.LastRejectedAt) {
		newer, older = older, newer
		r.LastRejectedAt = other.LastRejectedAt
	}
	fb := make([]string, 0, MaxFeedbackTexts)
	for _, t := range append(cloneStrings(newer), older...) {
		if len(fb) == MaxFeedbackTexts {
			break
		}
		fb = append(fb, t)
	}
	r.FeedbackTexts = fb
}

// Clone returns a deep copy so callers can never alias stored state.
func (r *RejectionRecord) Clone() *RejectionRecord {
	if r == nil {
		return nil
	}
	c := *r
	c.RejectionTags = cloneStrings(r.RejectionTags)
	c.RejectedSubjects = cloneStrings(r.RejectedSubjects)
	c.RejectedBodyFingerprints = cloneStrings(r.RejectedBodyFingerprints)
	c.RejectedTemplateIDs = cloneStrings(r.RejectedTemplateIDs)
	c.FeedbackTexts = cloneStrings(r.FeedbackTexts)
	return &c
}

func insertSorted(set []string, v string) []string {
	if v == "" {
		return set
	}
	i := sort.SearchStrings(set, v)
	if i < len(set) && set[i] == v {
		return set
	}
	set = append(set, "")
	copy(set[i+1:], set[i:])
	set[i] = v
	return set
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}
