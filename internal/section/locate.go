package section

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// needleLen is how much of a hunk's visible text is used to find its place
// in the document.
const needleLen = 50

// explicitSelectors are well-known section anchors checked before any
// structural heuristics.
var explicitSelectors = []string{
	"#hero", "#pricing", "#features", "#testimonials", "#cta", "#faq",
	"#about", "#team", "#contact",
	".hero", ".hero-section", ".pricing", ".pricing-table", ".pricing-section",
	".features", ".feature-grid", ".testimonials", ".cta", ".faq",
	"[data-section]",
}

var semanticTags = map[atom.Atom]bool{
	atom.Header:  true,
	atom.Nav:     true,
	atom.Main:    true,
	atom.Section: true,
	atom.Article: true,
	atom.Aside:   true,
	atom.Footer:  true,
}

// domainKeywords mark a div/section as a named region via its class or id.
var domainKeywords = []string{
	"hero", "pricing", "feature", "testimonial", "cta", "banner", "faq",
	"team", "about", "gallery", "blog", "contact",
}

// locate finds the section containing a hunk. Strategies run in order:
// explicit selectors, semantic ancestors, header keywords, content search,
// structural analogy. Returns "" when the hunk cannot be placed.
func locate(doc *html.Node, hunkText string) (string, *html.Node) {
	needle := hunkNeedle(hunkText)
	if needle == "" {
		return "", nil
	}

	// 1. Explicit selectors.
	for _, sel := range explicitSelectors {
		for _, n := range matchSimple(doc, sel) {
			if containsText(n, needle) {
				return sel, n
			}
		}
	}

	target := deepestContaining(doc, needle)
	if target == nil {
		return "", nil
	}

	// 2. Semantic HTML5 ancestors and keyword-named containers.
	for n := target; n != nil; n = n.Parent {
		if n.Type != html.ElementNode {
			continue
		}
		if semanticTags[n.DataAtom] || hasDomainKeyword(n) {
			return buildSelector(n), n
		}
	}

	// 3. Header keywords: an h1..h4 naming a known section, whose enclosing
	// element also contains the hunk.
	if sel, n := headerKeywordMatch(doc, needle); sel != "" {
		return sel, n
	}

	// 4. Content search: nearest block ancestor of the hunk's location.
	for n := target; n != nil; n = n.Parent {
		if n.Type != html.ElementNode {
			continue
		}
		switch n.DataAtom {
		case atom.Div, atom.Section, atom.Article:
			return buildSelector(n), n
		}
	}

	// 5. Structural analogy: a grid of 2-6 similarly-classed children
	// (pricing tables, feature grids).
	if sel, n := gridMatch(doc, needle); sel != "" {
		return sel, n
	}

	return "", nil
}

// hunkNeedle extracts the first needleLen characters of a hunk's visible
// text.
func hunkNeedle(hunkText string) string {
	nodes, err := html.ParseFragment(strings.NewReader(hunkText), &html.Node{
		Type:     html.ElementNode,
		Data:     "body",
		DataAtom: atom.Body,
	})
	if err != nil {
		return ""
	}
	var b strings.Builder
	for _, n := range nodes {
		collectText(n, &b)
	}
	text := strings.Join(strings.Fields(b.String()), " ")
	if len(text) > needleLen {
		text = text[:needleLen]
	}
	return text
}

func collectText(n *html.Node, b *strings.Builder) {
	if n.Type == html.TextNode {
		b.WriteString(n.Data)
		b.WriteByte(' ')
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, b)
	}
}

func textOf(n *html.Node) string {
	var b strings.Builder
	collectText(n, &b)
	return strings.Join(strings.Fields(b.String()), " ")
}

func containsText(n *html.Node, needle string) bool {
	return strings.Contains(textOf(n), needle)
}

// deepestContaining returns the deepest element whose text contains needle.
func deepestContaining(doc *html.Node, needle string) *html.Node {
	var best *html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && containsText(n, needle) {
			best = n
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return best
}

func hasDomainKeyword(n *html.Node) bool {
	if n.DataAtom != atom.Div && n.DataAtom != atom.Section {
		return false
	}
	hay := strings.ToLower(getAttr(n, "id") + " " + getAttr(n, "class"))
	for _, kw := range domainKeywords {
		if strings.Contains(hay, kw) {
			return true
		}
	}
	return false
}

var headerAtoms = []atom.Atom{atom.H1, atom.H2, atom.H3, atom.H4}

func headerKeywordMatch(doc *html.Node, needle string) (string, *html.Node) {
	for _, h := range headerAtoms {
		for _, hdr := range findAllByTag(doc, h) {
			text := strings.ToLower(textOf(hdr))
			matched := false
			for _, kw := range domainKeywords {
				if strings.Contains(text, kw) {
					matched = true
					break
				}
			}
			if !matched {
				continue
			}
			for n := hdr.Parent; n != nil; n = n.Parent {
				if n.Type != html.ElementNode {
					continue
				}
				switch n.DataAtom {
				case atom.Section, atom.Div, atom.Article:
					if containsText(n, needle) {
						return buildSelector(n), n
					}
				}
			}
		}
	}
	return "", nil
}

func gridMatch(doc *html.Node, needle string) (string, *html.Node) {
	var found *html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if found != nil {
			return
		}
		if n.Type == html.ElementNode && similarChildren(n) && containsText(n, needle) {
			found = n
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	if found == nil {
		return "", nil
	}
	return buildSelector(found), found
}

// similarChildren reports whether n has 2-6 element children sharing a
// class, the shape of pricing tables and feature grids.
func similarChildren(n *html.Node) bool {
	counts := map[string]int{}
	total := 0
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		total++
		if cls := strings.Fields(getAttr(c, "class")); len(cls) > 0 {
			counts[cls[0]]++
		}
	}
	if total < 2 || total > 6 {
		return false
	}
	for _, v := range counts {
		if v >= 2 && v == total {
			return true
		}
	}
	return false
}

// buildSelector renders a stable selector for an element: tag#id, then
// tag.class, then the bare tag.
func buildSelector(n *html.Node) string {
	tag := n.Data
	if id := getAttr(n, "id"); id != "" {
		return tag + "#" + id
	}
	if cls := strings.Fields(getAttr(n, "class")); len(cls) > 0 {
		return tag + "." + cls[0]
	}
	return tag
}

// matchSimple finds all nodes matching a single selector: tag, .class, #id,
// or [attr].
func matchSimple(root *html.Node, sel string) []*html.Node {
	var results []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if matchesSelector(n, sel) {
			results = append(results, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return results
}

func matchesSelector(n *html.Node, sel string) bool {
	if n.Type != html.ElementNode {
		return false
	}
	switch {
	case strings.HasPrefix(sel, "#"):
		return getAttr(n, "id") == sel[1:]
	case strings.HasPrefix(sel, "."):
		for _, c := range strings.Fields(getAttr(n, "class")) {
			if c == sel[1:] {
				return true
			}
		}
		return false
	case strings.HasPrefix(sel, "[") && strings.HasSuffix(sel, "]"):
		key := sel[1 : len(sel)-1]
		for _, a := range n.Attr {
			if a.Key == key {
				return true
			}
		}
		return false
	default:
		return n.Data == sel
	}
}

func findAllByTag(root *html.Node, tag atom.Atom) []*html.Node {
	var results []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == tag {
			results = append(results, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return results
}

func getAttr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
