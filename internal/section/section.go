// Package section maps diff hunks to logical page sections (hero, pricing,
// features, ...) with a confidence score. Extraction enriches alerts only;
// it never affects whether a change is stored, and any failure degrades to
// an empty section list.
package section

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/pagewatch/pagewatch/internal/diffhtml"
)

// Section is one identified page region touched by a change.
type Section struct {
	Selector         string   `json:"selector"`
	SectionType      string   `json:"section_type"`
	Confidence       float64  `json:"confidence"`
	BeforeSnippet    string   `json:"before_snippet,omitempty"`
	AfterSnippet     string   `json:"after_snippet,omitempty"`
	AttributeChanges []string `json:"attribute_changes,omitempty"`
}

const snippetMax = 200

// Extractor identifies sections in rendered HTML.
type Extractor struct {
	sanitize *bluemonday.Policy
}

// NewExtractor creates an Extractor. The strict sanitizer strips all markup
// from snippets so alert payloads carry text only.
func NewExtractor() *Extractor {
	return &Extractor{sanitize: bluemonday.StrictPolicy()}
}

// Extract maps each changed hunk to a section. Removed hunks are located in
// the old document, added hunks in the new one. Hunks that cannot be placed
// are dropped; parse failures return nil.
func (e *Extractor) Extract(oldHTML, newHTML string, hunks []diffhtml.Hunk) []Section {
	oldDoc, errOld := html.Parse(strings.NewReader(oldHTML))
	newDoc, errNew := html.Parse(strings.NewReader(newHTML))
	if errOld != nil || errNew != nil {
		return nil
	}

	var out []Section
	for i, h := range hunks {
		if h.Op == diffhtml.OpUnchanged {
			continue
		}
		doc := newDoc
		if h.Op == diffhtml.OpRemoved {
			doc = oldDoc
		}

		sel, node := locate(doc, h.Text)
		if sel == "" {
			continue
		}

		typ := classifyType(sel, h.Text, node)
		sec := Section{
			Selector:         sel,
			SectionType:      typ,
			Confidence:       confidence(sel, typ, h.Text),
			AttributeChanges: attributeChanges(hunks, i),
		}
		snippet := e.snippet(h.Text)
		if h.Op == diffhtml.OpRemoved {
			sec.BeforeSnippet = snippet
		} else {
			sec.AfterSnippet = snippet
		}
		out = append(out, sec)
	}
	return out
}

// Dominant returns the most frequent section type, or "" for no sections.
func Dominant(sections []Section) string {
	counts := map[string]int{}
	best, bestN := "", 0
	for _, s := range sections {
		counts[s.SectionType]++
		if counts[s.SectionType] > bestN {
			best, bestN = s.SectionType, counts[s.SectionType]
		}
	}
	return best
}

func (e *Extractor) snippet(text string) string {
	s := strings.TrimSpace(e.sanitize.Sanitize(text))
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > snippetMax {
		s = s[:snippetMax]
	}
	return s
}

// attributeChanges reports attribute-level edits when a removed hunk is
// immediately followed by an added hunk rewriting the same element.
func attributeChanges(hunks []diffhtml.Hunk, i int) []string {
	var before, after string
	switch {
	case hunks[i].Op == diffhtml.OpRemoved && i+1 < len(hunks) && hunks[i+1].Op == diffhtml.OpAdded:
		before, after = hunks[i].Text, hunks[i+1].Text
	case hunks[i].Op == diffhtml.OpAdded && i > 0 && hunks[i-1].Op == diffhtml.OpRemoved:
		// Reported on the removed side already.
		return nil
	default:
		return nil
	}

	oldEl := parseSingleElement(before)
	newEl := parseSingleElement(after)
	if oldEl == nil || newEl == nil || oldEl.Data != newEl.Data {
		return nil
	}

	oldAttrs := attrMap(oldEl)
	newAttrs := attrMap(newEl)
	var changes []string
	for k, ov := range oldAttrs {
		nv, ok := newAttrs[k]
		if !ok {
			changes = append(changes, k+`: removed`)
		} else if nv != ov {
			changes = append(changes, k+`: "`+ov+`" -> "`+nv+`"`)
		}
	}
	for k := range newAttrs {
		if _, ok := oldAttrs[k]; !ok {
			changes = append(changes, k+`: added`)
		}
	}
	return changes
}

func parseSingleElement(s string) *html.Node {
	nodes, err := html.ParseFragment(strings.NewReader(strings.TrimSpace(s)), &html.Node{
		Type:     html.ElementNode,
		Data:     "body",
		DataAtom: atom.Body,
	})
	if err != nil || len(nodes) != 1 || nodes[0].Type != html.ElementNode {
		return nil
	}
	return nodes[0]
}

func attrMap(n *html.Node) map[string]string {
	m := make(map[string]string, len(n.Attr))
	for _, a := range n.Attr {
		m[a.Key] = a.Val
	}
	return m
}
