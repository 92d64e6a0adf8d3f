package domain

// SignalType enumerates the kinds of personalization evidence.
type SignalType string

const (
	SignalCompanyIntel      SignalType = "company_intel"
	SignalHiring            SignalType = "hiring_signal"
	SignalTechStack         SignalType = "tech_stack"
	SignalContentEngagement SignalType = "content_engagement"
	SignalRoleImpact        SignalType = "role_impact"
)

// IsCompanySpecific reports whether the signal type counts toward
// company-specific evidence.
func (t SignalType) IsCompanySpecific() bool {
	switch t {
	case SignalCompanyIntel, SignalTechStack, SignalHiring:
		return true
	}
	return false
}

// PersonalizationSignal is one piece of lead-specific evidence.
type PersonalizationSignal struct {
	Type           SignalType `json:"signal_type"`
	Value          string     `json:"value"`
	Confidence     float64    `json:"confidence"`
	Source         string     `json:"source"` // field path the value came from
	UsableInOpener bool       `json:"usable_in_opener"`
}

// MergedPersonalizationContext is the ranked, scored union of all extractor
// output for a lead.
type MergedPersonalizationContext struct {
	Signals              []PersonalizationSignal `json:"signals"`
	CompanySpecificCount int                     `json:"company_specific_count"`
	RoleImpactCount      int                     `json:"role_impact_count"`
	OverallConfidence    float64                 `json:"overall_confidence"`
	RecommendedOpener    *PersonalizationSignal  `json:"recommended_opener_signal,omitempty"`
}

// MeetsMinimumEvidence requires at least one company-specific signal and one
// role-impact signal.
func (c MergedPersonalizationContext) MeetsMinimumEvidence() bool {
	return c.CompanySpecificCount >= 1 && c.RoleImpactCount >= 1
}
