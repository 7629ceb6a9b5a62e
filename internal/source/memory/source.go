// Package memory provides a scripted in-memory Source for local runs and tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/remote-lead-crawler/internal/crawler"
)

// Page is one scripted ListPostings result.
type Page struct {
	Postings []crawler.Posting
	HasNext  bool
	Err      error
}

// Source serves scripted pages keyed by search-term label.
type Source struct {
	id string

	mu         sync.Mutex
	pages      map[string][]Page
	details    map[string]crawler.Posting
	detailErrs map[string]error
	listed     []string

	// OnDetail, when set, runs before every FetchDetail and may fail it.
	OnDetail func(ctx context.Context, p crawler.Posting) error
}

// New returns an empty Source reporting id.
func New(id string) *Source {
	return &Source{
		id:         id,
		pages:      map[string][]Page{},
		details:    map[string]crawler.Posting{},
		detailErrs: map[string]error{},
	}
}

// AddPage appends the next result page for term.
func (s *Source) AddPage(term crawler.SearchTerm, page Page) *Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages[term.Label()] = append(s.pages[term.Label()], page)
	return s
}

// SetDetail makes FetchDetail enrich the posting with ref using detail.
func (s *Source) SetDetail(ref string, detail crawler.Posting) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.details[ref] = detail
}

// SetDetailError makes FetchDetail fail for the posting with ref.
func (s *Source) SetDetailError(ref string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detailErrs[ref] = err
}

// Listed returns "label#page" for every ListPostings call in order.
func (s *Source) Listed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.listed...)
}

// ID implements crawler.Source.
func (s *Source) ID() string { return s.id }

// ListPostings implements crawler.Source. A term without scripted pages is exhausted.
func (s *Source) ListPostings(ctx context.Context, term crawler.SearchTerm, page int) ([]crawler.Posting, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	s.mu.Lock()
	s.listed = append(s.listed, fmt.Sprintf("%s#%d", term.Label(), page))
	pages := s.pages[term.Label()]
	s.mu.Unlock()

	if page >= len(pages) {
		if page == 0 {
			return nil, false, crawler.Exhausted(s.id, term, "no scripted pages")
		}
		return nil, false, nil
	}
	p := pages[page]
	if p.Err != nil {
		return nil, false, p.Err
	}
	out := make([]crawler.Posting, len(p.Postings))
	for i, posting := range p.Postings {
		posting.SourceID = s.id
		posting.SearchLabel = term.Label()
		out[i] = posting
	}
	return out, p.HasNext, nil
}

// FetchDetail implements crawler.Source.
func (s *Source) FetchDetail(ctx context.Context, p crawler.Posting) (crawler.Posting, error) {
	if s.OnDetail != nil {
		if err := s.OnDetail(ctx, p); err != nil {
			return crawler.Posting{}, err
		}
	}
	if err := ctx.Err(); err != nil {
		return crawler.Posting{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.detailErrs[p.ExternalRef]; err != nil {
		return crawler.Posting{}, err
	}
	if detail, ok := s.details[p.ExternalRef]; ok {
		return p.Enrich(detail), nil
	}
	return p, nil
}
