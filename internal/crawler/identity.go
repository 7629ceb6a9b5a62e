package crawler

import "strings"

// syntheticRefPrefix marks references derived from posting text (see hash/sha256.Fingerprint).
const syntheticRefPrefix = "sha256:"

// IdentityKey computes the dedup key of a posting: the normalized (source, ref) pair,
// or the normalized (title, company, location) triple when ref is absent or was
// synthesized from that same text.
func IdentityKey(p Posting) string {
	ref := normalizeField(p.ExternalRef)
	if ref != "" && !strings.HasPrefix(ref, syntheticRefPrefix) {
		return "ref|" + normalizeField(p.SourceID) + "|" + ref
	}
	return "text|" + normalizeField(p.Title) + "|" + normalizeField(p.Company) + "|" + normalizeField(p.Location)
}

func normalizeField(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
