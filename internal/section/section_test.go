package section

import (
	"strings"
	"testing"

	"github.com/pagewatch/pagewatch/internal/diffhtml"
)

const pricingPage = `<html><body>
<header><nav class="main-nav"><a href="/">Home</a></nav></header>
<div id="hero"><h1>Ship faster</h1><p>The platform teams rely on.</p></div>
<section id="pricing">
  <h2>Pricing</h2>
  <div class="plans">
    <div class="plan">Starter $9/mo for small teams getting started</div>
    <div class="plan">Pro $29/mo for growing companies with bigger needs</div>
    <div class="plan">Enterprise $99/mo with dedicated support included</div>
  </div>
</section>
<div class="feature-list"><h2>What you get</h2><p>Realtime sync across devices and platforms everywhere.</p></div>
<footer><p>All rights reserved.</p></footer>
</body></html>`

// WHAT: a hunk whose text lives under #pricing resolves through the
// explicit-selector strategy with a boosted confidence.
// WHY: explicit anchors are the first cascade stage; they must win before
// any structural guessing runs.
func TestExplicitSelector(t *testing.T) {
	e := NewExtractor()
	hunks := []diffhtml.Hunk{
		{Op: diffhtml.OpAdded, Text: `<div class="plan">Pro $29/mo for growing companies with bigger needs</div>`, Lines: 1},
	}
	secs := e.Extract(pricingPage, pricingPage, hunks)
	if len(secs) != 1 {
		t.Fatalf("sections = %d, want 1", len(secs))
	}
	s := secs[0]
	if s.Selector != "#pricing" {
		t.Errorf("Selector = %q, want #pricing", s.Selector)
	}
	if s.SectionType != "pricing" {
		t.Errorf("SectionType = %q, want pricing", s.SectionType)
	}
	// 0.5 base + 0.3 id match + 0.15 currency heuristic.
	if s.Confidence < 0.94 || s.Confidence > 0.96 {
		t.Errorf("Confidence = %v, want 0.95", s.Confidence)
	}
	if s.AfterSnippet == "" || strings.Contains(s.AfterSnippet, "<") {
		t.Errorf("AfterSnippet = %q, want sanitized text", s.AfterSnippet)
	}
}

// WHAT: content with no explicit anchor falls back to the nearest semantic
// or keyword-named ancestor.
func TestSemanticAncestorFallback(t *testing.T) {
	e := NewExtractor()
	hunks := []diffhtml.Hunk{
		{Op: diffhtml.OpAdded, Text: `<p>Realtime sync across devices and platforms everywhere.</p>`, Lines: 1},
	}
	secs := e.Extract(pricingPage, pricingPage, hunks)
	if len(secs) != 1 {
		t.Fatalf("sections = %d, want 1", len(secs))
	}
	if secs[0].Selector != "div.feature-list" {
		t.Errorf("Selector = %q, want div.feature-list", secs[0].Selector)
	}
	if secs[0].SectionType != "features" {
		t.Errorf("SectionType = %q, want features", secs[0].SectionType)
	}
}

// WHAT: removed hunks are located in the old document and land in
// BeforeSnippet.
func TestRemovedHunkUsesOldDocument(t *testing.T) {
	e := NewExtractor()
	newPage := strings.Replace(pricingPage,
		`<div id="hero"><h1>Ship faster</h1><p>The platform teams rely on.</p></div>`, "", 1)
	hunks := []diffhtml.Hunk{
		{Op: diffhtml.OpRemoved, Text: `<p>The platform teams rely on.</p>`, Lines: 1},
	}
	secs := e.Extract(pricingPage, newPage, hunks)
	if len(secs) != 1 {
		t.Fatalf("sections = %d, want 1", len(secs))
	}
	if secs[0].Selector != "#hero" {
		t.Errorf("Selector = %q, want #hero", secs[0].Selector)
	}
	if secs[0].BeforeSnippet == "" || secs[0].AfterSnippet != "" {
		t.Errorf("snippets = %+v, want before only", secs[0])
	}
}

// WHAT: unplaceable hunks and unchanged hunks are dropped, never guessed.
// WHY: sections enrich alerts; a wrong section is worse than none.
func TestUnplaceableHunksDropped(t *testing.T) {
	e := NewExtractor()
	hunks := []diffhtml.Hunk{
		{Op: diffhtml.OpUnchanged, Text: `<h1>Ship faster</h1>`, Lines: 1},
		{Op: diffhtml.OpAdded, Text: `<p>text that appears nowhere in the page at all honest</p>`, Lines: 1},
	}
	if secs := e.Extract(pricingPage, pricingPage, hunks); len(secs) != 0 {
		t.Errorf("sections = %+v, want none", secs)
	}
}

// WHAT: snippets are stripped of markup and truncated to 200 characters.
func TestSnippetTruncation(t *testing.T) {
	e := NewExtractor()
	long := strings.Repeat("feature text ", 40)
	page := `<html><body><section class="features"><p>` + long + `</p></section></body></html>`
	hunks := []diffhtml.Hunk{
		{Op: diffhtml.OpAdded, Text: `<p>` + long + `</p>`, Lines: 1},
	}
	secs := e.Extract(page, page, hunks)
	if len(secs) != 1 {
		t.Fatalf("sections = %d, want 1", len(secs))
	}
	if got := len(secs[0].AfterSnippet); got != 200 {
		t.Errorf("snippet length = %d, want 200", got)
	}
}

// WHAT: a removed/added pair rewriting one element reports the attribute
// delta.
func TestAttributeChanges(t *testing.T) {
	e := NewExtractor()
	oldPage := `<html><body><div id="hero"><a class="btn" href="/old">Get started with the new platform today</a></div></body></html>`
	newPage := `<html><body><div id="hero"><a class="btn btn-large" href="/new">Get started with the new platform today</a></div></body></html>`
	hunks := []diffhtml.Hunk{
		{Op: diffhtml.OpRemoved, Text: `<a class="btn" href="/old">Get started with the new platform today</a>`, Lines: 1},
		{Op: diffhtml.OpAdded, Text: `<a class="btn btn-large" href="/new">Get started with the new platform today</a>`, Lines: 1},
	}
	secs := e.Extract(oldPage, newPage, hunks)
	if len(secs) != 2 {
		t.Fatalf("sections = %d, want 2", len(secs))
	}
	changes := secs[0].AttributeChanges
	if len(changes) != 2 {
		t.Fatalf("AttributeChanges = %v, want class and href deltas", changes)
	}
	joined := strings.Join(changes, "; ")
	if !strings.Contains(joined, "class") || !strings.Contains(joined, "href") {
		t.Errorf("AttributeChanges = %v", changes)
	}
}

// WHAT: Dominant picks the most frequent type across sections.
func TestDominant(t *testing.T) {
	secs := []Section{
		{SectionType: "pricing"},
		{SectionType: "features"},
		{SectionType: "pricing"},
	}
	if got := Dominant(secs); got != "pricing" {
		t.Errorf("Dominant = %q, want pricing", got)
	}
	if got := Dominant(nil); got != "" {
		t.Errorf("Dominant(nil) = %q, want empty", got)
	}
}

// WHAT: classification heuristics on raw content.
func TestContentHeuristics(t *testing.T) {
	cases := []struct {
		text string
		want string
	}{
		{`<div>Only $19.99 today</div>`, "pricing"},
		{`<form><input name="email"></form>`, "form"},
		{`<blockquote>“Best tool ever” ★★★★★</blockquote>`, "testimonials"},
		{`<a>Sign up and get started now</a>`, "cta"},
		{`<p>plain paragraph</p>`, ""},
	}
	for _, c := range cases {
		if got := contentHeuristic(c.text, nil); got != c.want {
			t.Errorf("contentHeuristic(%q) = %q, want %q", c.text, got, c.want)
		}
	}
}
