// Package remoteok lists postings from the RemoteOK public JSON feed.
package remoteok

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/JakeFAU/remote-lead-crawler/internal/config"
	"github.com/JakeFAU/remote-lead-crawler/internal/crawler"
	"github.com/JakeFAU/remote-lead-crawler/internal/extract"
	"github.com/JakeFAU/remote-lead-crawler/internal/source"
)

// DefaultAPIURL is the public feed endpoint.
const DefaultAPIURL = "https://remoteok.com/api"

// The feed is a JSON array whose first element is a legal notice, not a job.
type job struct {
	Slug        string   `json:"slug"`
	Company     string   `json:"company"`
	Position    string   `json:"position"`
	URL         string   `json:"url"`
	ApplyURL    string   `json:"apply_url"`
	Tags        []string `json:"tags"`
	Description string   `json:"description"`
	Location    string   `json:"location"`
}

// Source implements crawler.Source over the RemoteOK feed. The feed has no paging:
// page 0 carries every matching job and later pages are empty.
type Source struct {
	apiURL  string
	fetcher crawler.Fetcher
}

// New returns a RemoteOK source that fetches through fetcher.
func New(apiURL string, fetcher crawler.Fetcher) *Source {
	if strings.TrimSpace(apiURL) == "" {
		apiURL = DefaultAPIURL
	}
	return &Source{apiURL: apiURL, fetcher: fetcher}
}

// ID implements crawler.Source.
func (s *Source) ID() string { return config.SourceRemoteOK }

// ListPostings implements crawler.Source.
func (s *Source) ListPostings(ctx context.Context, term crawler.SearchTerm, page int) ([]crawler.Posting, bool, error) {
	if page > 0 {
		return nil, false, nil
	}
	body, err := source.Get(ctx, s.fetcher, s.apiURL, "application/json")
	if err != nil {
		return nil, false, err
	}

	var feed []job
	if err := json.Unmarshal(body, &feed); err != nil {
		return nil, false, crawler.Exhausted(s.ID(), term, "feed is not a job array: "+err.Error())
	}

	var out []crawler.Posting
	for _, j := range feed {
		if j.Slug == "" || j.URL == "" {
			continue
		}
		if !matchesQuery(j, term.Query) || !matchesLocation(j.Location, term.Location) {
			continue
		}
		out = append(out, s.toPosting(j, term))
	}
	if len(out) == 0 {
		return nil, false, crawler.Exhausted(s.ID(), term, "no postings on first page")
	}
	return out, false, nil
}

// FetchDetail implements crawler.Source. The feed already carries the full posting.
func (s *Source) FetchDetail(_ context.Context, p crawler.Posting) (crawler.Posting, error) {
	return p, nil
}

func (s *Source) toPosting(j job, term crawler.SearchTerm) crawler.Posting {
	ref := j.URL
	if canonical, err := crawler.NormalizeURL(j.URL); err == nil {
		ref = canonical
	}
	location := j.Location
	if strings.TrimSpace(location) == "" {
		location = "Remote"
	}
	return crawler.Posting{
		SourceID:    s.ID(),
		ExternalRef: ref,
		Title:       j.Position,
		Company:     j.Company,
		Location:    location,
		Description: extract.HTMLFragmentText(j.Description),
		DetailURL:   j.URL,
		CompanyURL:  companyURL(j.ApplyURL),
		SearchLabel: term.Label(),
	}
}

// matchesQuery requires every word of query in the position, tags or description.
func matchesQuery(j job, query string) bool {
	words := strings.Fields(strings.ToLower(query))
	if len(words) == 0 {
		return true
	}
	haystack := strings.ToLower(strings.Join(append([]string{j.Position, j.Description}, j.Tags...), " "))
	for _, w := range words {
		if !strings.Contains(haystack, w) {
			return false
		}
	}
	return true
}

func matchesLocation(jobLocation, want string) bool {
	want = strings.ToLower(strings.TrimSpace(want))
	have := strings.ToLower(strings.TrimSpace(jobLocation))
	if want == "" || have == "" {
		return true
	}
	return strings.Contains(have, want) || strings.Contains(have, "worldwide") || strings.Contains(have, "anywhere")
}

// companyURL keeps an apply link only when it points at the employer's own site.
func companyURL(applyURL string) string {
	host := crawler.HostOf(applyURL)
	if host == "unknown" || extract.IsExcludedSite(host) {
		return ""
	}
	return applyURL
}
