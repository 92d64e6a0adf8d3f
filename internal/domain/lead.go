package domain

import "strings"

// LeadDraft is a finished outreach email produced by copy generation for a
// single send attempt. The gate never modifies it.
type LeadDraft struct {
	RecipientEmail string `json:"recipient_email"`
	Subject        string `json:"subject"`
	Body           string `json:"body"`
	TemplateID     string `json:"template_id"`
	CampaignID     string `json:"campaign_id"`
}

// Normalized returns a copy of the draft with the recipient email normalized.
func (d LeadDraft) Normalized() LeadDraft {
	d.RecipientEmail = NormalizeEmail(d.RecipientEmail)
	return d
}

// CompanyInfo is the company projection of an enriched lead.
type CompanyInfo struct {
	Name          string   `json:"name"`
	Description   string   `json:"description,omitempty"`
	Industry      string   `json:"industry,omitempty"`
	EmployeeCount int      `json:"employee_count,omitempty"`
	Technologies  []string `json:"technologies,omitempty"`
	IsHiring      bool     `json:"is_hiring,omitempty"`
	OpenRoles     []string `json:"open_roles,omitempty"`
	FundingStage  string   `json:"funding_stage,omitempty"`
	RecentNews    []string `json:"recent_news,omitempty"`
}

// EnrichedLead is the enrichment pipeline's view of a recipient. Every field
// is optional; missing data yields fewer personalization signals.
type EnrichedLead struct {
	Email             string      `json:"email"`
	FirstName         string      `json:"first_name,omitempty"`
	LastName          string      `json:"last_name,omitempty"`
	JobTitle          string      `json:"job_title,omitempty"`
	Company           CompanyInfo `json:"company"`
	OutreachHooks     []string    `json:"outreach_hooks,omitempty"`
	IntentSignals     []string    `json:"intent_signals,omitempty"`
	SourceType        string      `json:"source_type,omitempty"`
	SourceName        string      `json:"source_name,omitempty"`
	EngagementContent string      `json:"engagement_content,omitempty"`
}

// NormalizeEmail lowercases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
