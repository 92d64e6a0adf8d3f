package signals

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/outreach-guard/internal/domain"
)

func TestRoleImpactExtractor(t *testing.T) {
	tests := []struct {
		title    string
		wantArea string
		wantConf float64
	}{
		{"CTO", "technical strategy and platform scalability", 0.7},
		{"Co-Founder & CEO", "company growth and capital efficiency", 0.65},
		{"VP, Engineering", "engineering throughput and delivery speed", 0.7},
		{"Head of Growth", "pipeline generation and campaign ROI", 0.65},
		{"Director of Sales Operations", "revenue growth and sales productivity", 0.65},
		{"Senior Product Manager", "product adoption and roadmap execution", 0.6},
		{"Vice President of Sales", "revenue growth and sales productivity", 0.65},
		{"Vice President, Engineering", "engineering throughput and delivery speed", 0.7},
		{"Senior Vice President - Marketing", "pipeline generation and campaign ROI", 0.65},
		{"Product Owner", "product adoption and roadmap execution", 0.6},
		{"President", "company growth and capital efficiency", 0.65},
		{"Business Owner", "company growth and capital efficiency", 0.65},
		{"Founder", "company growth and capital efficiency", 0.65},
		{"Vice President", "responsibilities as Vice President", 0.5},
		{"Chief Storyteller", "responsibilities as Chief Storyteller", 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			got := RoleImpactExtractor{}.Extract(&domain.EnrichedLead{JobTitle: tt.title})
			require.Len(t, got, 1)
			assert.Equal(t, tt.wantArea, got[0].Value)
			assert.Equal(t, tt.wantConf, got[0].Confidence)
			assert.False(t, got[0].UsableInOpener)
			assert.Equal(t, "job_title", got[0].Source)
		})
	}

	assert.Empty(t, RoleImpactExtractor{}.Extract(&domain.EnrichedLead{JobTitle: "   "}))
}

func TestRoleImpactExtractor_WholeWordsOnly(t *testing.T) {
	// "director" contains "cto" as a substring.
	got := RoleImpactExtractor{}.Extract(&domain.EnrichedLead{JobTitle: "Director of Finance"})
	require.Len(t, got, 1)
	assert.Equal(t, "cost control and financial reporting", got[0].Value)
}

func TestHiringExtractor(t *testing.T) {
	lead := &domain.EnrichedLead{
		Company:       domain.CompanyInfo{IsHiring: true},
		OutreachHooks: []string{"Recently recruiting a data team", "Launched v2"},
		IntentSignals: []string{"recently recruiting a DATA team", "pricing page visits"},
	}
	got := HiringExtractor{}.Extract(lead)

	require.Len(t, got, 2)
	assert.Equal(t, "actively hiring", got[0].Value)
	assert.Equal(t, 0.75, got[0].Confidence)
	assert.Equal(t, "outreach_hooks[0]", got[1].Source)
	assert.True(t, got[1].UsableInOpener)
	for _, s := range got {
		assert.GreaterOrEqual(t, s.Confidence, 0.75)
		assert.LessOrEqual(t, s.Confidence, 0.85)
	}
}

func TestHiringExtractor_OpenRolesCapped(t *testing.T) {
	lead := &domain.EnrichedLead{Company: domain.CompanyInfo{
		IsHiring:  true,
		OpenRoles: []string{"SRE", "", "Data Engineer", "Designer", "PM"},
	}}
	got := HiringExtractor{}.Extract(lead)
	require.Len(t, got, maxRoleSignals)
	assert.Equal(t, "hiring a SRE", got[0].Value)
	assert.Equal(t, "company.open_roles[2]", got[1].Source)
}

func TestCompanyIntelExtractor_ConfidenceRange(t *testing.T) {
	got := CompanyIntelExtractor{}.Extract(richLead())
	require.Len(t, got, 5)
	assert.Equal(t, "company.recent_news[0]", got[0].Source)
	assert.Equal(t, "Northwind raised a Series B round", got[1].Value)
	assert.Equal(t, "Northwind builds freight routing software for regional carriers.", got[2].Value)
	assert.Equal(t, "Northwind is a growing company of under 250", got[4].Value)
	for _, s := range got {
		assert.GreaterOrEqual(t, s.Confidence, 0.6)
		assert.LessOrEqual(t, s.Confidence, 0.9)
	}
}

func TestContentEngagementExtractor(t *testing.T) {
	got := ContentEngagementExtractor{}.Extract(richLead())
	require.Len(t, got, 1)
	assert.Equal(t, "Ship It: Talked about cutting deploy times in half.", got[0].Value)
	assert.Equal(t, 0.85, got[0].Confidence)

	got = ContentEngagementExtractor{}.Extract(&domain.EnrichedLead{SourceType: "linkedin_post", SourceName: "Acme"})
	require.Len(t, got, 1)
	assert.Equal(t, "found via linkedin post Acme", got[0].Value)
	assert.Equal(t, 0.65, got[0].Confidence)
	assert.False(t, got[0].UsableInOpener)

	assert.Empty(t, ContentEngagementExtractor{}.Extract(&domain.EnrichedLead{SourceType: "podcast"}))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd...", truncate("abcdefghijk", 7))
}
