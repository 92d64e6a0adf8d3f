// Package signals mines an enriched lead for personalization evidence and
// merges it into a ranked, scored context.
//
// The extractor set is closed: five variants, one per domain.SignalType,
// registered in a fixed order by DefaultExtractors. Extractors never return
// errors; missing lead fields simply produce fewer signals.
package signals

import (
	"fmt"
	"sort"

	"github.com/ignite/outreach-guard/internal/domain"
	"github.com/ignite/outreach-guard/internal/pkg/logger"
)

// topN is how many of the strongest signals feed OverallConfidence.
const topN = 5

var plog = logger.Component("signals")

// Extractor produces signals of one type from a lead.
type Extractor interface {
	Type() domain.SignalType
	Extract(lead *domain.EnrichedLead) []domain.PersonalizationSignal
}

// DefaultExtractors returns the five production extractors in evaluation
// order.
func DefaultExtractors() []Extractor {
	return []Extractor{
		CompanyIntelExtractor{},
		HiringExtractor{},
		TechStackExtractor{},
		ContentEngagementExtractor{},
		RoleImpactExtractor{},
	}
}

// Pipeline runs a fixed list of extractors and merges their output.
type Pipeline struct {
	extractors []Extractor
}

// NewPipeline creates a pipeline. With no extractors it uses
// DefaultExtractors.
func NewPipeline(extractors ...Extractor) *Pipeline {
	if len(extractors) == 0 {
		extractors = DefaultExtractors()
	}
	return &Pipeline{extractors: extractors}
}

// ExtractAll runs every extractor against lead and merges the results. A
// panicking extractor contributes nothing and does not stop the others.
func (p *Pipeline) ExtractAll(lead *domain.EnrichedLead) domain.MergedPersonalizationContext {
	if lead == nil {
		return Merge(nil)
	}

	var all []domain.PersonalizationSignal
	for _, ex := range p.extractors {
		all = append(all, runExtractor(ex, lead)...)
	}
	return Merge(all)
}

func runExtractor(ex Extractor, lead *domain.EnrichedLead) (out []domain.PersonalizationSignal) {
	defer func() {
		if r := recover(); r != nil {
			plog.Error("extractor failed", "extractor", string(ex.Type()), "error", fmt.Sprint(r))
			out = nil
		}
	}()
	return ex.Extract(lead)
}

// Merge ranks signals by descending confidence (stable, so extractor order
// breaks ties) and computes the summary counts.
func Merge(signals []domain.PersonalizationSignal) domain.MergedPersonalizationContext {
	ranked := make([]domain.PersonalizationSignal, 0, len(signals))
	for _, s := range signals {
		s.Confidence = clamp(s.Confidence)
		ranked = append(ranked, s)
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Confidence > ranked[j].Confidence
	})

	ctx := domain.MergedPersonalizationContext{Signals: ranked}

	n := len(ranked)
	if n > topN {
		n = topN
	}
	if n > 0 {
		sum := 0.0
		for _, s := range ranked[:n] {
			sum += s.Confidence
		}
		ctx.OverallConfidence = sum / float64(n)
	}

	for i := range ranked {
		s := &ranked[i]
		switch {
		case s.Type.IsCompanySpecific():
			ctx.CompanySpecificCount++
		case s.Type == domain.SignalRoleImpact:
			ctx.RoleImpactCount++
		}
		if ctx.RecommendedOpener == nil && s.UsableInOpener {
			opener := *s
			ctx.RecommendedOpener = &opener
		}
	}
	return ctx
}

func clamp(c float64) float64 {
	switch {
	case c < 0:
		return 0
	case c > 1:
		return 1
	}
	return c
}
