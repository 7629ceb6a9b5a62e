package resolver

import (
	"bytes"
	"context"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/remote-lead-crawler/internal/extract"
)

// Stage names, in chain order.
const (
	StageDescription  = "description"
	StageCompanySite  = "company_site"
	StageContactPages = "contact_pages"
	StageProfilePage  = "profile_page"
)

// Selectors for the contact-info and about sections of origin profile pages.
var profileSectionSelectors = []string{
	"#contact-info",
	"section.pv-contact-info",
	".ci-email",
	".org-about-module",
	".org-top-card-summary",
	"[class*='contact']",
	"[class*='about']",
	"[id*='about']",
}

// DefaultStages is the standard chain: description, company site, contact pages, profile page.
func DefaultStages() []Stage {
	return []Stage{
		{Name: StageDescription, Run: scanDescription},
		{Name: StageCompanySite, Run: probeCompanySite},
		{Name: StageContactPages, Run: probeContactPages},
		{Name: StageProfilePage, Run: probeProfilePage},
	}
}

func scanDescription(_ context.Context, s *Session) []string {
	emails := extract.MergeEmails(s.Posting.DescriptionEmails, extract.Emails(s.Posting.Description))
	s.record(s.Posting.DetailURL, emails, DepthPosting)
	return emails
}

// companySiteURL returns the company website, reading it off the posting page when the
// origin did not expose it directly.
func (s *Session) companySiteURL(ctx context.Context) string {
	if s.Posting.CompanyURL != "" {
		return s.Posting.CompanyURL
	}
	if s.postingPage == nil {
		pg, ok := s.visit(ctx, s.Posting.DetailURL, false)
		if !ok {
			return ""
		}
		s.postingPage = pg
	}
	return extract.CompanyWebsite(s.postingPage.body, s.postingPage.url)
}

func probeCompanySite(ctx context.Context, s *Session) []string {
	site := s.companySiteURL(ctx)
	if site == "" {
		return nil
	}
	pg, ok := s.visit(ctx, site, false)
	if !ok {
		return nil
	}
	s.companyPage = pg
	emails := extract.PageEmails(pg.body)
	s.record(pg.url, emails, DepthLinked)
	return emails
}

func probeContactPages(ctx context.Context, s *Session) []string {
	if s.companyPage == nil {
		return nil
	}
	for _, link := range extract.ContactLinks(s.companyPage.body, s.companyPage.url, s.maxContactLinks) {
		pg, ok := s.visit(ctx, link, false)
		if !ok {
			continue
		}
		emails := extract.PageEmails(pg.body)
		s.record(pg.url, emails, DepthContact)
		if len(emails) > 0 {
			return emails
		}
	}
	return nil
}

func probeProfilePage(ctx context.Context, s *Session) []string {
	pg, ok := s.visit(ctx, s.Posting.ProfileURL, true)
	if !ok {
		return nil
	}
	emails := extract.MailtoEmails(pg.body)
	if len(emails) == 0 {
		emails = profileSectionEmails(pg.body)
	}
	s.record(pg.url, emails, DepthLinked)
	return emails
}

func profileSectionEmails(body []byte) []string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil
	}
	var found []string
	for _, sel := range profileSectionSelectors {
		doc.Find(sel).Each(func(_ int, section *goquery.Selection) {
			found = extract.MergeEmails(found, extract.Emails(extract.CleanText(section.Text())))
		})
		if len(found) > 0 {
			return found
		}
	}
	return nil
}
