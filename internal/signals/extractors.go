package signals

import (
	"fmt"
	"strings"

	"github.com/ignite/outreach-guard/internal/domain"
)

const (
	maxValueChars   = 160
	maxTechSignals  = 5
	maxRoleSignals  = 3
	maxHookSignals  = 3
	fallbackCompany = "the company"
)

var hiringKeywords = []string{
	"hiring", "recruit", "job opening", "open role", "open position",
	"headcount", "growing the team", "building out", "new hire",
}

// CompanyIntelExtractor reads the company profile: description, funding,
// recent news, industry and size.
type CompanyIntelExtractor struct{}

func (CompanyIntelExtractor) Type() domain.SignalType { return domain.SignalCompanyIntel }

func (e CompanyIntelExtractor) Extract(lead *domain.EnrichedLead) []domain.PersonalizationSignal {
	c := lead.Company
	name := strings.TrimSpace(c.Name)
	if name == "" {
		name = fallbackCompany
	}

	var out []domain.PersonalizationSignal
	for i, news := range c.RecentNews {
		if news = clean(news); news != "" {
			out = append(out, signal(e.Type(), news, 0.9, fmt.Sprintf("company.recent_news[%d]", i), true))
			break
		}
	}
	if stage := clean(c.FundingStage); stage != "" {
		out = append(out, signal(e.Type(), fmt.Sprintf("%s raised a %s round", name, stage), 0.8, "company.funding_stage", true))
	}
	if desc := firstSentence(c.Description); desc != "" {
		conf := 0.7
		if len(desc) >= 60 {
			conf = 0.75
		}
		out = append(out, signal(e.Type(), desc, conf, "company.description", true))
	}
	if industry := clean(c.Industry); industry != "" {
		out = append(out, signal(e.Type(), fmt.Sprintf("%s operates in %s", name, industry), 0.6, "company.industry", false))
	}
	if c.EmployeeCount > 0 {
		out = append(out, signal(e.Type(), fmt.Sprintf("%s is a %s", name, sizeBand(c.EmployeeCount)), 0.65, "company.employee_count", false))
	}
	return out
}

func sizeBand(n int) string {
	switch {
	case n < 50:
		return "startup team of under 50"
	case n < 250:
		return "growing company of under 250"
	case n < 1000:
		return "mid-size company of under 1,000"
	}
	return "large organization of 1,000+"
}

// HiringExtractor reads hiring flags and hiring language in hooks and
// intent signals.
type HiringExtractor struct{}

func (HiringExtractor) Type() domain.SignalType { return domain.SignalHiring }

func (e HiringExtractor) Extract(lead *domain.EnrichedLead) []domain.PersonalizationSignal {
	var out []domain.PersonalizationSignal
	seen := make(map[string]bool)
	add := func(s domain.PersonalizationSignal) {
		key := strings.ToLower(s.Value)
		if seen[key] {
			return
		}
		seen[key] = true
		out = append(out, s)
	}

	c := lead.Company
	roles := 0
	for i, role := range c.OpenRoles {
		if role = clean(role); role == "" || roles == maxRoleSignals {
			continue
		}
		roles++
		add(signal(e.Type(), "hiring a "+role, 0.85, fmt.Sprintf("company.open_roles[%d]", i), true))
	}
	if c.IsHiring && roles == 0 {
		add(signal(e.Type(), "actively hiring", 0.75, "company.is_hiring", false))
	}

	hooks := 0
	for i, hook := range lead.OutreachHooks {
		if hook = clean(hook); hook == "" || hooks == maxHookSignals || !mentionsHiring(hook) {
			continue
		}
		hooks++
		add(signal(e.Type(), hook, 0.8, fmt.Sprintf("outreach_hooks[%d]", i), true))
	}
	for i, intent := range lead.IntentSignals {
		if intent = clean(intent); intent != "" && mentionsHiring(intent) {
			add(signal(e.Type(), intent, 0.75, fmt.Sprintf("intent_signals[%d]", i), false))
		}
	}
	return out
}

func mentionsHiring(s string) bool {
	lower := strings.ToLower(s)
	for _, kw := range hiringKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// TechStackExtractor reads the company's technology list. The first listed
// technology is treated as the primary one.
type TechStackExtractor struct{}

func (TechStackExtractor) Type() domain.SignalType { return domain.SignalTechStack }

func (e TechStackExtractor) Extract(lead *domain.EnrichedLead) []domain.PersonalizationSignal {
	var out []domain.PersonalizationSignal
	seen := make(map[string]bool)
	for i, tech := range lead.Company.Technologies {
		tech = clean(tech)
		key := strings.ToLower(tech)
		if tech == "" || seen[key] {
			continue
		}
		seen[key] = true
		if len(out) == 0 {
			out = append(out, signal(e.Type(), "runs on "+tech, 0.85, fmt.Sprintf("company.technologies[%d]", i), true))
		} else {
			out = append(out, signal(e.Type(), "uses "+tech, 0.8, fmt.Sprintf("company.technologies[%d]", i), false))
		}
		if len(out) == maxTechSignals {
			break
		}
	}
	return out
}

// ContentEngagementExtractor reads where the lead was found and what they
// published or engaged with there.
type ContentEngagementExtractor struct{}

func (ContentEngagementExtractor) Type() domain.SignalType { return domain.SignalContentEngagement }

func (e ContentEngagementExtractor) Extract(lead *domain.EnrichedLead) []domain.PersonalizationSignal {
	sourceName := clean(lead.SourceName)
	sourceType := strings.ReplaceAll(clean(lead.SourceType), "_", " ")
	content := firstSentence(lead.EngagementContent)

	switch {
	case content != "" && sourceName != "":
		return []domain.PersonalizationSignal{
			signal(e.Type(), fmt.Sprintf("%s: %s", sourceName, content), 0.85, "engagement_content", true),
		}
	case content != "":
		return []domain.PersonalizationSignal{
			signal(e.Type(), content, 0.75, "engagement_content", true),
		}
	case sourceName != "":
		where := sourceName
		if sourceType != "" {
			where = sourceType + " " + sourceName
		}
		return []domain.PersonalizationSignal{
			signal(e.Type(), "found via "+where, 0.65, "source_name", false),
		}
	}
	return nil
}

func signal(t domain.SignalType, value string, conf float64, source string, opener bool) domain.PersonalizationSignal {
	return domain.PersonalizationSignal{
		Type:           t,
		Value:          truncate(value, maxValueChars),
		Confidence:     conf,
		Source:         source,
		UsableInOpener: opener,
	}
}

func clean(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// firstSentence returns the first sentence of s, whitespace-normalized.
func firstSentence(s string) string {
	s = clean(s)
	if i := strings.IndexAny(s, ".!?"); i >= 0 {
		s = s[:i+1]
	}
	return s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n-3])) + "..."
}
