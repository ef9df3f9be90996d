package section

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// sectionTypes is the fixed classification dictionary, checked against the
// selector in this order.
var sectionTypes = []string{
	"hero", "pricing", "features", "testimonials", "cta", "navigation",
	"header", "footer", "form", "about", "team", "gallery", "blog", "faq",
	"content",
}

// selectorAliases map selector fragments to a canonical type when the
// fragment itself is not the type name.
var selectorAliases = map[string]string{
	"feature":     "features",
	"testimonial": "testimonials",
	"nav":         "navigation",
	"banner":      "hero",
	"price":       "pricing",
	"plan":        "pricing",
	"contact":     "form",
}

var ctaVerbs = []string{
	"sign up", "get started", "buy now", "subscribe", "try free",
	"start free", "book a demo", "contact sales",
}

// classifyType picks the section type: selector match first, then content
// heuristics, else "content".
func classifyType(selector, hunkText string, node *html.Node) string {
	sel := strings.ToLower(selector)
	for _, typ := range sectionTypes {
		if strings.Contains(sel, typ) {
			return typ
		}
	}
	for frag, typ := range selectorAliases {
		if strings.Contains(sel, frag) {
			return typ
		}
	}
	if typ := contentHeuristic(hunkText, node); typ != "" {
		return typ
	}
	return "content"
}

// contentHeuristic inspects the hunk text itself: currency means pricing,
// form controls mean form, quotes or stars mean testimonials, action verbs
// mean cta.
func contentHeuristic(hunkText string, node *html.Node) string {
	lower := strings.ToLower(hunkText)
	switch {
	case strings.ContainsAny(hunkText, "$€£¥") ||
		strings.Contains(lower, "/mo") || strings.Contains(lower, "per month"):
		return "pricing"
	case strings.Contains(lower, "<form") || strings.Contains(lower, "<input") ||
		strings.Contains(lower, "<textarea") || hasFormControl(node):
		return "form"
	case strings.ContainsAny(hunkText, "“”★⭐") ||
		strings.Contains(lower, "&quot;"):
		return "testimonials"
	}
	for _, verb := range ctaVerbs {
		if strings.Contains(lower, verb) {
			return "cta"
		}
	}
	return ""
}

func hasFormControl(node *html.Node) bool {
	if node == nil {
		return false
	}
	return len(findAllByTag(node, atom.Form)) > 0 || len(findAllByTag(node, atom.Input)) > 0
}

// confidence scores how sure the extractor is about a section: 0.5 base,
// +0.3 for an id match, +0.2 for a class match, +0.1 for a semantic tag
// selector, +0.15 for a content heuristic hit, capped at 1.0.
func confidence(selector, typ, hunkText string) float64 {
	score := 0.5
	sel := strings.ToLower(selector)
	if strings.Contains(sel, "#"+typ) {
		score += 0.3
	}
	if strings.Contains(sel, "."+typ) {
		score += 0.2
	}
	for a := range semanticTags {
		if strings.HasPrefix(sel, a.String()) {
			score += 0.1
			break
		}
	}
	if contentHeuristic(hunkText, nil) == typ {
		score += 0.15
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}
