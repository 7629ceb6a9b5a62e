package extract

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// DescriptionLimit is the maximum number of characters kept for free-text fields.
const DescriptionLimit = 300

// CleanText collapses whitespace runs into single spaces and trims the ends.
func CleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Truncate shortens s to at most limit runes. Truncating an already short string is a no-op.
func Truncate(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:limit]))
}

// HTMLText returns the visible text of an HTML fragment or document.
// Script and style contents are dropped. Unparseable input falls back to the raw bytes.
func HTMLText(body []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return CleanText(string(body))
	}
	doc.Find("script, style, noscript").Remove()
	return CleanText(doc.Text())
}

// HTMLFragmentText is HTMLText for a string fragment.
func HTMLFragmentText(fragment string) string {
	if !strings.ContainsAny(fragment, "<&") {
		return CleanText(fragment)
	}
	return HTMLText([]byte(fragment))
}
