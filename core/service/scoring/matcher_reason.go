package scoring

import (
	"fmt"
	"strings"

	"matcher_server/core/domain"
	"matcher_server/core/service/assemble"
	"matcher_server/pkg/textutil"
)

// categoryKeywords bucket niches and offerings into broad business categories
// used to pick a collaboration idea.
var categoryKeywords = map[string][]string{
	"health":        {"health", "wellness", "medical", "fitness", "natural", "traditional", "mental"},
	"business":      {"business", "entrepreneur", "startup", "consulting", "coaching", "marketing"},
	"finance":       {"finance", "financial", "money", "investment", "wealth", "accounting"},
	"personal_dev":  {"improvement", "success", "mindset", "motivation", "leadership", "growth"},
	"spirituality":  {"spiritual", "spirituality", "meditation", "mindfulness"},
	"relationships": {"relationship", "relationships", "dating", "marriage", "family"},
	"content":       {"podcast", "speaking", "author", "book", "content", "media", "video"},
	"tech":          {"technology", "software", "digital", "online", "internet", "website", "app"},
}

// collaborationTemplates suggest a concrete first project per category pair.
var collaborationTemplates = map[[2]string]string{
	{"health", "content"}:                "Health expert interviews and wellness content series",
	{"health", "business"}:               "Wellness programs for entrepreneurs and business teams",
	{"finance", "business"}:              "Joint webinar on business financial strategies",
	{"personal_dev", "business"}:         "Mindset workshop for entrepreneurs",
	{"content", "content"}:               "Guest appearances on each other's podcasts/shows",
	{"tech", "business"}:                 "Technology solutions workshop for business clients",
	{"relationships", "personal_dev"}:    "Personal growth coaching partnership",
	{"spirituality", "health"}:           "Holistic wellness retreat collaboration",
}

// profileCategories classifies a bundle by its niche and offer texts.
func profileCategories(b *assemble.Bundle) map[string]struct{} {
	text := b.Niche + " " + strings.Join(b.Offers, " ")
	keywords := textutil.Keywords(text)
	cats := make(map[string]struct{})
	for cat, kws := range categoryKeywords {
		for _, kw := range kws {
			if _, ok := keywords[kw]; ok {
				cats[cat] = struct{}{}
				break
			}
		}
	}
	return cats
}

// collaborationIdea picks the first template matching the two category sets,
// in either orientation.
func collaborationIdea(target, candidate map[string]struct{}) string {
	for tc := range target {
		for mc := range candidate {
			if idea, ok := collaborationTemplates[[2]string{tc, mc}]; ok {
				return idea
			}
			if idea, ok := collaborationTemplates[[2]string{mc, tc}]; ok {
				return idea
			}
		}
	}
	return ""
}

// BuildReason assembles the human-readable explanation for a suggestion,
// from the target's point of view.
func BuildReason(target, candidate *assemble.Bundle, d Directional) string {
	var clauses []string

	if d.Intent && d.BestNeed != "" && d.BestOffer != "" {
		clauses = append(clauses, fmt.Sprintf("You need %s and they offer %s", d.BestNeed, d.BestOffer))
	}

	switch d.NicheTier {
	case NicheAligned:
		clauses = append(clauses, "Strong business alignment")
	case NicheComplementary:
		clauses = append(clauses, "Complementary referral fit")
	case NicheCompetitor:
		clauses = append(clauses, "Competitor — low recommendation")
	}

	if d.Momentum > 0.8 {
		clauses = append(clauses, "Very active recently")
	} else if d.Momentum < 0.3 {
		clauses = append(clauses, "Less active")
	}

	if d.Context > 0 {
		shared := sharedEvents(target, candidate)
		if shared == 1 {
			clauses = append(clauses, "Attended 1 shared event")
		} else {
			clauses = append(clauses, fmt.Sprintf("Attended %d shared events", shared))
		}
	}

	if target.Trust == domain.TrustPlatinum {
		clauses = append(clauses, "✅ Verified intent")
	}

	if idea := collaborationIdea(profileCategories(target), profileCategories(candidate)); idea != "" {
		clauses = append(clauses, "Idea: "+idea)
	}

	return strings.Join(clauses, ". ")
}

func sharedEvents(a, b *assemble.Bundle) int {
	n := 0
	for e := range a.Events {
		if _, ok := b.Events[e]; ok {
			n++
		}
	}
	return n
}
