// Package normalize reduces rendered HTML to a canonical form where byte
// equality means "no real change".
//
// The rules run as ordered regex substitutions, never through a DOM parser:
// this keeps normalization cheap, deterministic, and resilient to the
// malformed markup real pages ship. Normalize is pure and idempotent.
package normalize

import (
	"regexp"
	"strings"
)

type rule struct {
	re   *regexp.Regexp
	repl string
}

// Rules run in order. Each one strips a class of volatile noise that makes
// two renders of the same page differ without any real content change.
var rules = []rule{
	// 1. Script blocks, including their attributes.
	{regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script>`), ""},
	{regexp.MustCompile(`(?is)<script\b[^>]*/>`), ""},
	// 2. Noscript blocks.
	{regexp.MustCompile(`(?is)<noscript\b[^>]*>.*?</noscript>`), ""},
	// 3. HTML comments.
	{regexp.MustCompile(`(?s)<!--.*?-->`), ""},
	// 4. Timestamps. ISO-8601 first, then common localized forms, then
	// 13+ digit runs that look like unix milliseconds.
	{regexp.MustCompile(`\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}(:\d{2}(\.\d+)?)?(Z|[+-]\d{2}:?\d{2})?`), "[TIMESTAMP]"},
	{regexp.MustCompile(`(?i)\b(jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\.? \d{1,2},? \d{4}( at)?( \d{1,2}:\d{2}(:\d{2})?( ?(AM|PM))?)?`), "[TIMESTAMP]"},
	{regexp.MustCompile(`\b\d{1,2}/\d{1,2}/\d{2,4},? \d{1,2}:\d{2}(:\d{2})?( ?(AM|PM|am|pm))?\b`), "[TIMESTAMP]"},
	{regexp.MustCompile(`\b\d{13,}\b`), "[UNIX_TIMESTAMP]"},
	// 5. Framework-generated hash suffixes.
	{regexp.MustCompile(`__className_[0-9a-fA-F]+`), "__className_[HASH]"},
	{regexp.MustCompile(`__nextjs_[0-9a-fA-F]+`), "__nextjs_[HASH]"},
	{regexp.MustCompile(`id="[0-9a-f]{8,}"`), `id="[HASH]"`},
	{regexp.MustCompile(`class="[^"]*\b[0-9a-f]{8,}\b[^"]*"`), `class="[HASH_CLASS]"`},
	// 6. data-* attributes.
	{regexp.MustCompile(`\sdata-[a-zA-Z0-9_.:-]+(="[^"]*"|='[^']*')?`), ""},
	// 7. Dynamic ARIA references.
	{regexp.MustCompile(`\saria-(describedby|labelledby|controls)(="[^"]*"|='[^']*')?`), ""},
	// 8. Inline styles.
	{regexp.MustCompile(`\sstyle(="[^"]*"|='[^']*')`), ""},
	// 9. Volatile meta tags: CSRF, tokens, og:updated_time.
	{regexp.MustCompile(`(?i)<meta\b[^>]*(csrf|token|og:updated_time)[^>]*/?>`), ""},
	// 10. Cache-busting query suffixes.
	{regexp.MustCompile(`\?(v|t|_)=[^"'&<>\s]*`), "?[CACHE_BUST]"},
}

var (
	wsRun      = regexp.MustCompile(`\s+`)
	betweenTag = regexp.MustCompile(`>\s+<`)
	afterOpen  = regexp.MustCompile(`<\s+`)
	beforeEnd  = regexp.MustCompile(`\s+>`)
)

// Normalize applies the full rule pipeline. Empty input returns "".
func Normalize(html string) string {
	if html == "" {
		return ""
	}

	s := html
	for _, r := range rules {
		s = r.re.ReplaceAllString(s, r.repl)
	}

	// 11. Whitespace: collapse runs, remove between adjacent tags and
	// inside tag bracket edges, trim.
	s = wsRun.ReplaceAllString(s, " ")
	s = betweenTag.ReplaceAllString(s, "><")
	s = afterOpen.ReplaceAllString(s, "<")
	s = beforeEnd.ReplaceAllString(s, ">")
	return strings.TrimSpace(s)
}

// Lineify re-introduces line boundaries between adjacent tags. Normalized
// HTML is a single line; the line-level differ needs one element per line
// for its change percentage to mean anything.
func Lineify(html string) string {
	return strings.ReplaceAll(html, "><", ">\n<")
}
