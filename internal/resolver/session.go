package resolver

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/remote-lead-crawler/internal/crawler"
)

// Candidate depths count link hops from the posting. Pages the posting links to
// directly (company site, recruiter or company profile) sit one hop out.
const (
	DepthPosting = 0
	DepthLinked  = 1
	DepthContact = 2
)

// Session is the per-posting state shared by every stage.
type Session struct {
	Posting crawler.Posting

	maxPages        int
	maxContactLinks int
	fetchTimeout    time.Duration
	fetcher         crawler.Fetcher
	profileFetcher  crawler.Fetcher
	logger          *zap.Logger

	visited    map[string]struct{}
	pages      int
	candidates []crawler.ContactCandidate
	fatal      error

	postingPage *page
	companyPage *page
}

type page struct {
	url  string
	body []byte
}

// Pages is the number of fetches attempted so far.
func (s *Session) Pages() int { return s.pages }

// Candidates lists every page probed so far, in visit order.
func (s *Session) Candidates() []crawler.ContactCandidate {
	return append([]crawler.ContactCandidate(nil), s.candidates...)
}

// Visited reports whether rawURL was already fetched in this session.
func (s *Session) Visited(rawURL string) bool {
	key, err := crawler.NormalizeURL(rawURL)
	if err != nil {
		return false
	}
	_, ok := s.visited[key]
	return ok
}

// visit fetches rawURL unless it was already visited or the page budget is spent.
// Failed fetches still consume budget and are reported as not ok.
func (s *Session) visit(ctx context.Context, rawURL string, profile bool) (*page, bool) {
	if rawURL == "" || s.fatal != nil {
		return nil, false
	}
	key, err := crawler.NormalizeURL(rawURL)
	if err != nil {
		return nil, false
	}
	if _, seen := s.visited[key]; seen {
		return nil, false
	}
	if s.pages >= s.maxPages {
		return nil, false
	}
	s.visited[key] = struct{}{}
	s.pages++

	fetcher := s.fetcher
	if profile {
		fetcher = s.profileFetcher
	}
	fetchCtx := ctx
	if s.fetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, s.fetchTimeout)
		defer cancel()
	}
	resp, err := fetcher.Fetch(fetchCtx, crawler.FetchRequest{URL: rawURL})
	if err != nil {
		if isCapabilityLoss(err) {
			s.fatal = err
		}
		s.logger.Debug("resolver fetch failed", zap.String("url", rawURL), zap.Error(err))
		return nil, false
	}
	if resp.StatusCode >= http.StatusBadRequest {
		s.logger.Debug("resolver fetch status", zap.String("url", rawURL), zap.Int("status", resp.StatusCode))
		return nil, false
	}
	final := resp.URL
	if final == "" {
		final = rawURL
	}
	return &page{url: final, body: resp.Body}, true
}

func (s *Session) record(pageURL string, emails []string, depth int) {
	s.candidates = append(s.candidates, crawler.ContactCandidate{
		PageURL: pageURL,
		Emails:  append([]string(nil), emails...),
		Depth:   depth,
	})
}
