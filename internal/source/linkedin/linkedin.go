// Package linkedin lists remote postings through LinkedIn's guest job-search endpoints.
package linkedin

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/remote-lead-crawler/internal/config"
	"github.com/JakeFAU/remote-lead-crawler/internal/crawler"
	"github.com/JakeFAU/remote-lead-crawler/internal/extract"
	"github.com/JakeFAU/remote-lead-crawler/internal/source"
)

const (
	// DefaultBaseURL is the public LinkedIn origin.
	DefaultBaseURL = "https://www.linkedin.com"
	// PageSize is the number of cards the guest search returns per page.
	PageSize = 25

	searchPath = "/jobs-guest/jobs/api/seeMoreJobPostings/search"
	detailPath = "/jobs-guest/jobs/api/jobPosting/"
	// remoteFilter restricts results to remote work.
	remoteFilter = "2"
)

var (
	reJobView = regexp.MustCompile(`(?i)/jobs/view/(?:[^/?#]*-)?(\d+)`)
	reJobURN  = regexp.MustCompile(`jobPosting:(\d+)`)
)

// Source implements crawler.Source for LinkedIn.
type Source struct {
	baseURL string
	fetcher crawler.Fetcher
}

// New returns a LinkedIn source rooted at baseURL that fetches through fetcher.
func New(baseURL string, fetcher crawler.Fetcher) *Source {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Source{baseURL: baseURL, fetcher: fetcher}
}

// ID implements crawler.Source.
func (s *Source) ID() string { return config.SourceLinkedIn }

// SearchURL builds the guest search URL for term and page.
func (s *Source) SearchURL(term crawler.SearchTerm, page int) string {
	q := url.Values{}
	q.Set("keywords", term.Query)
	if term.Location != "" {
		q.Set("location", term.Location)
	}
	if term.GeoID != "" {
		q.Set("geoId", term.GeoID)
	}
	q.Set("f_WT", remoteFilter)
	q.Set("start", strconv.Itoa(page*PageSize))
	return s.baseURL + searchPath + "?" + q.Encode()
}

// ListPostings implements crawler.Source. A full page of cards means another page may follow.
func (s *Source) ListPostings(ctx context.Context, term crawler.SearchTerm, page int) ([]crawler.Posting, bool, error) {
	body, err := source.Get(ctx, s.fetcher, s.SearchURL(term, page), "text/html")
	if err != nil {
		return nil, false, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, false, crawler.Exhausted(s.ID(), term, "unparseable result page")
	}

	cards := doc.Find("div.base-card, div.base-search-card")
	postings := make([]crawler.Posting, 0, cards.Length())
	cards.Each(func(_ int, card *goquery.Selection) {
		if p, ok := s.parseCard(card, term); ok {
			postings = append(postings, p)
		}
	})

	if len(postings) == 0 {
		if page == 0 {
			return nil, false, crawler.Exhausted(s.ID(), term, "no job cards on first page")
		}
		return nil, false, nil
	}
	return postings, cards.Length() >= PageSize, nil
}

func (s *Source) parseCard(card *goquery.Selection, term crawler.SearchTerm) (crawler.Posting, bool) {
	link, _ := card.Find("a.base-card__full-link").First().Attr("href")
	title := extract.CleanText(card.Find("h3.base-search-card__title").First().Text())
	subtitle := card.Find("h4.base-search-card__subtitle").First()
	if link == "" || title == "" {
		return crawler.Posting{}, false
	}

	detailURL := s.canonicalJobURL(link)
	id := jobID(link)
	if id == "" {
		urn, _ := card.Attr("data-entity-urn")
		if m := reJobURN.FindStringSubmatch(urn); len(m) == 2 {
			id = m[1]
		}
	}
	ref := detailURL
	if id != "" {
		ref = s.baseURL + "/jobs/view/" + id
	}

	profile, _ := subtitle.Find("a").First().Attr("href")
	return crawler.Posting{
		SourceID:    s.ID(),
		ExternalRef: ref,
		Title:       title,
		Company:     extract.CleanText(subtitle.Text()),
		Location:    extract.CleanText(card.Find("span.job-search-card__location").First().Text()),
		DetailURL:   detailURL,
		ProfileURL:  s.absolute(stripQuery(profile)),
		SearchLabel: term.Label(),
	}, true
}

// FetchDetail implements crawler.Source. It loads the guest posting view and adds the
// description plus the poster's profile link when one is shown.
func (s *Source) FetchDetail(ctx context.Context, p crawler.Posting) (crawler.Posting, error) {
	id := jobID(p.ExternalRef)
	if id == "" {
		id = jobID(p.DetailURL)
	}
	if id == "" {
		return p, nil
	}
	body, err := source.Get(ctx, s.fetcher, s.baseURL+detailPath+id, "text/html")
	if err != nil {
		return crawler.Posting{}, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return crawler.Posting{}, fmt.Errorf("parse posting %s: %w", id, err)
	}

	markup := doc.Find("div.show-more-less-html__markup, div.description__text").First()
	markup.Find("script, style").Remove()
	detail := crawler.Posting{
		Title:       extract.CleanText(doc.Find("h2.top-card-layout__title, h2.topcard__title").First().Text()),
		Company:     extract.CleanText(doc.Find("a.topcard__org-name-link, span.topcard__flavor").First().Text()),
		Location:    extract.CleanText(doc.Find("span.topcard__flavor--bullet").First().Text()),
		Description: extract.CleanText(markup.Text()),
		ProfileURL:  s.profileLink(doc),
	}
	if mailto := extract.MailtoEmails(body); len(mailto) > 0 {
		detail.DescriptionEmails = extract.MergeEmails(p.DescriptionEmails, mailto)
	}
	return p.Enrich(detail), nil
}

// profileLink prefers the recruiter who posted the job, then the company page.
func (s *Source) profileLink(doc *goquery.Document) string {
	selectors := []string{
		"a.message-the-recruiter__cta",
		"a.jobs-poster__name",
		"a[href*='/in/']",
		"a.topcard__org-name-link",
		"a[href*='/company/']",
	}
	for _, sel := range selectors {
		if href, ok := doc.Find(sel).First().Attr("href"); ok && strings.TrimSpace(href) != "" {
			return s.absolute(stripQuery(href))
		}
	}
	return ""
}

func (s *Source) canonicalJobURL(raw string) string {
	if id := jobID(raw); id != "" {
		return s.baseURL + "/jobs/view/" + id
	}
	return s.absolute(stripQuery(raw))
}

func (s *Source) absolute(href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	base, err := url.Parse(s.baseURL + "/")
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

func jobID(raw string) string {
	if m := reJobView.FindStringSubmatch(raw); len(m) == 2 {
		return m[1]
	}
	return ""
}

func stripQuery(raw string) string {
	if i := strings.IndexAny(raw, "?#"); i >= 0 {
		return raw[:i]
	}
	return raw
}
