package domain

import "time"

// DecisionStats aggregates guard verdicts over a time window.
type DecisionStats struct {
	Since       time.Time      `json:"since"`
	Total       int            `json:"total"`
	Passed      int            `json:"passed"`
	Blocked     int            `json:"blocked"`
	SoftFlagged int            `json:"soft_flagged"` // passed in soft mode with rule failures
	ByReason    map[string]int `json:"blocked_by_reason"`
}
