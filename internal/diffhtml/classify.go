package diffhtml

import "strings"

// Keyword dictionaries for change-type scoring. The winning category is the
// one with the most keyword hits in the changed text; ties resolve in the
// order pricing > feature > design > content.
var changeKeywords = []struct {
	typ   ChangeType
	words []string
}{
	{ChangePricing, []string{
		"price", "pricing", "$", "€", "£", "/mo", "/month", "/yr", "/year",
		"cost", "plan", "tier", "billing", "subscription", "discount", "free trial",
	}},
	{ChangeFeature, []string{
		"feature", "new", "launch", "introducing", "capability", "integration",
		"api", "beta", "release", "now available", "support for",
	}},
	{ChangeDesign, []string{
		"class=", "layout", "color", "theme", "font", "banner", "hero",
		"background", "redesign", "logo", "img", "svg",
	}},
	{ChangeContent, []string{
		"blog", "article", "story", "about", "news", "post", "team",
		"testimonial", "case study", "faq", "guide",
	}},
}

// classify scores the changed text against the keyword dictionaries.
func classify(changed string) ChangeType {
	if changed == "" {
		return ChangeOther
	}
	lower := strings.ToLower(changed)

	best := ChangeOther
	bestScore := 0
	for _, cat := range changeKeywords {
		score := 0
		for _, w := range cat.words {
			score += strings.Count(lower, w)
		}
		if score > bestScore {
			bestScore = score
			best = cat.typ
		}
	}
	return best
}
