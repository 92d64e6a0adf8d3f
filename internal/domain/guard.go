package domain

import (
	"errors"
	"fmt"
	"strings"
)

// GuardMode controls whether rule failures block, are only recorded, or are
// skipped entirely.
type GuardMode string

const (
	GuardHard     GuardMode = "hard"
	GuardSoft     GuardMode = "soft"
	GuardDisabled GuardMode = "disabled"
)

// ErrInvalidMode is returned by ParseGuardMode for unknown mode strings.
var ErrInvalidMode = errors.New("invalid guard mode")

// ParseGuardMode parses a mode string. Empty input means hard.
func ParseGuardMode(s string) (GuardMode, error) {
	switch GuardMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", GuardHard:
		return GuardHard, nil
	case GuardSoft:
		return GuardSoft, nil
	case GuardDisabled:
		return GuardDisabled, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
}

// Rule identifiers, evaluated in this order.
const (
	RuleRejectionMemory = "GUARD-001"
	RuleRepeatDraft     = "GUARD-002"
	RuleMinimumEvidence = "GUARD-003"
	RuleBannedOpener    = "GUARD-004"
	RuleGenericDensity  = "GUARD-005"
)

// RuleFailure is one failed rule with a human-readable message.
type RuleFailure struct {
	RuleID  string `json:"rule_id"`
	Message string `json:"message"`
}

// QualityGuardResult is the verdict for one draft.
type QualityGuardResult struct {
	Passed             bool                         `json:"passed"`
	BlockedReason      string                       `json:"blocked_reason,omitempty"`
	RuleFailures       []RuleFailure                `json:"rule_failures"`
	DraftFingerprint   string                       `json:"draft_fingerprint"`
	Evidence           MergedPersonalizationContext `json:"personalization_evidence"`
	RejectionMemoryHit bool                         `json:"rejection_memory_hit"`
	Mode               GuardMode                    `json:"mode"`
}

// Failed reports whether the given rule is among the failures.
func (r QualityGuardResult) Failed(ruleID string) bool {
	for _, f := range r.RuleFailures {
		if f.RuleID == ruleID {
			return true
		}
	}
	return false
}
