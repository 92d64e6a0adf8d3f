package signals

import (
	"strings"

	"github.com/ignite/outreach-guard/internal/domain"
)

// impactArea maps job title keywords to the business outcome that role owns.
// Entries are checked in order and the first match wins. Chief titles come
// first, then functional areas, then generic executive words, so
// "Product Owner" and "VP of Sales" resolve to their function.
type impactArea struct {
	keywords   []string
	area       string
	confidence float64
}

var impactTable = []impactArea{
	{[]string{"cto", "chief technology officer", "chief technical officer"}, "technical strategy and platform scalability", 0.7},
	{[]string{"ciso", "chief information security officer", "security"}, "security posture and compliance", 0.7},
	{[]string{"ceo", "chief executive officer"}, "company growth and capital efficiency", 0.65},
	{[]string{"cfo", "chief financial officer", "finance", "controller", "accounting"}, "cost control and financial reporting", 0.65},
	{[]string{"cro", "chief revenue officer", "sales", "revenue", "business development", "account executive"}, "revenue growth and sales productivity", 0.65},
	{[]string{"cmo", "chief marketing officer", "marketing", "demand generation", "growth"}, "pipeline generation and campaign ROI", 0.65},
	{[]string{"coo", "chief operating officer", "operations", "ops"}, "operational efficiency and process scale", 0.6},
	{[]string{"vp engineering", "head of engineering", "engineering", "engineer", "developer", "devops", "platform", "sre", "infrastructure"}, "engineering throughput and delivery speed", 0.7},
	{[]string{"data", "analytics", "machine learning", "ml", "ai"}, "data infrastructure and analytics maturity", 0.6},
	{[]string{"product"}, "product adoption and roadmap execution", 0.6},
	{[]string{"people", "hr", "human resources", "talent", "recruiting", "recruiter"}, "hiring velocity and retention", 0.55},
	{[]string{"customer success", "support", "customer experience"}, "customer retention and support cost", 0.55},
	{[]string{"founder", "co founder", "cofounder", "president", "owner", "managing director"}, "company growth and capital efficiency", 0.65},
}

// vpPrefixes are the words that turn "president" into a functional title.
var vpPrefixes = strings.NewReplacer(
	" senior vice president ", " svp ",
	" executive vice president ", " evp ",
	" vice president ", " vp ",
)

const unmappedRoleConfidence = 0.5

// RoleImpactExtractor maps the job title through a fixed title to impact
// area table. Role signals are never recommended as openers.
type RoleImpactExtractor struct{}

func (RoleImpactExtractor) Type() domain.SignalType { return domain.SignalRoleImpact }

func (e RoleImpactExtractor) Extract(lead *domain.EnrichedLead) []domain.PersonalizationSignal {
	title := clean(lead.JobTitle)
	if title == "" {
		return nil
	}

	padded := vpPrefixes.Replace(" " + titleWords(title) + " ")
	for _, entry := range impactTable {
		for _, kw := range entry.keywords {
			if strings.Contains(padded, " "+kw+" ") {
				return []domain.PersonalizationSignal{
					signal(e.Type(), entry.area, entry.confidence, "job_title", false),
				}
			}
		}
	}
	return []domain.PersonalizationSignal{
		signal(e.Type(), "responsibilities as "+title, unmappedRoleConfidence, "job_title", false),
	}
}

// titleWords lowercases a title and turns punctuation into spaces, so
// "VP, Engineering" and "Co-Founder & CEO" match whole-word keywords.
func titleWords(title string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(title) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
