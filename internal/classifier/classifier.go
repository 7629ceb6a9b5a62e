// Package classifier decides whether a posting is remote-eligible.
package classifier

import (
	"strings"

	"github.com/JakeFAU/remote-lead-crawler/internal/crawler"
)

// RemoteKeywords is the fixed keyword set; a posting is remote when any one appears.
var RemoteKeywords = []string{
	"remote",
	"work from home",
	"telecommute",
	"anywhere",
	"distributed",
	"virtual",
	"home office",
}

// IsRemote reports whether title, company, description or location mention a remote keyword.
// Matching is a case-insensitive substring test.
func IsRemote(p crawler.Posting) bool {
	return MatchesKeywords(strings.Join([]string{p.Title, p.Company, p.Description, p.Location}, " "), RemoteKeywords)
}

// MatchesKeywords reports whether any keyword is a substring of text, ignoring case.
func MatchesKeywords(text string, keywords []string) bool {
	lower := strings.ToLower(text)
	for _, k := range keywords {
		if k != "" && strings.Contains(lower, strings.ToLower(k)) {
			return true
		}
	}
	return false
}
