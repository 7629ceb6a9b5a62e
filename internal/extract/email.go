package extract

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var emailRe = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)

// Asset names such as logo@2x.png match the address pattern.
var assetSuffixes = []string{".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp", ".css", ".js"}

// Emails returns the distinct addresses in text in order of first appearance.
// Comparison is case-insensitive; the first spelling wins.
func Emails(text string) []string {
	return appendEmails(nil, map[string]struct{}{}, emailRe.FindAllString(text, -1))
}

// MergeEmails concatenates address lists, dropping case-insensitive duplicates.
func MergeEmails(lists ...[]string) []string {
	var out []string
	seen := map[string]struct{}{}
	for _, list := range lists {
		out = appendEmails(out, seen, list)
	}
	return out
}

// MailtoEmails returns the addresses referenced by mailto: anchors in an HTML page.
func MailtoEmails(body []byte) []string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil
	}
	var raw []string
	doc.Find(`a[href^="mailto:"], a[href^="MAILTO:"]`).Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		addr := href[len("mailto:"):]
		if i := strings.IndexByte(addr, '?'); i >= 0 {
			addr = addr[:i]
		}
		raw = append(raw, emailRe.FindAllString(addr, -1)...)
	})
	return appendEmails(nil, map[string]struct{}{}, raw)
}

// PageEmails returns mailto: addresses followed by addresses found in the page text.
func PageEmails(body []byte) []string {
	return MergeEmails(MailtoEmails(body), Emails(HTMLText(body)))
}

func appendEmails(out []string, seen map[string]struct{}, candidates []string) []string {
	for _, c := range candidates {
		c = strings.Trim(strings.TrimSpace(c), ".")
		if c == "" || isAsset(c) {
			continue
		}
		key := strings.ToLower(c)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, c)
	}
	return out
}

func isAsset(addr string) bool {
	lower := strings.ToLower(addr)
	for _, suffix := range assetSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return false
}
