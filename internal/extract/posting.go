package extract

import (
	"github.com/JakeFAU/remote-lead-crawler/internal/crawler"
	"github.com/JakeFAU/remote-lead-crawler/internal/hash/sha256"
)

// Normalize returns a copy of p ready for the pipeline: text fields are cleaned, the
// description is truncated to limit, addresses in the full description are kept in
// DescriptionEmails, and ExternalRef is always non-empty.
func Normalize(p crawler.Posting, limit int) crawler.Posting {
	out := p
	out.Title = CleanText(p.Title)
	out.Company = CleanText(p.Company)
	out.Location = CleanText(p.Location)
	out.DetailURL = CleanText(p.DetailURL)
	out.CompanyURL = CleanText(p.CompanyURL)
	out.ProfileURL = CleanText(p.ProfileURL)

	full := CleanText(p.Description)
	out.DescriptionEmails = MergeEmails(p.DescriptionEmails, Emails(full))
	out.Description = Truncate(full, limit)

	out.ExternalRef = CleanText(p.ExternalRef)
	if out.ExternalRef == "" {
		out.ExternalRef = out.DetailURL
	}
	if out.ExternalRef == "" {
		out.ExternalRef = sha256.Fingerprint(out.Title, out.Company, out.Location)
	}
	return out
}
