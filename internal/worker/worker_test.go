package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/remote-lead-crawler/internal/crawler"
	"github.com/JakeFAU/remote-lead-crawler/internal/extract"
	sourcemem "github.com/JakeFAU/remote-lead-crawler/internal/source/memory"
	"github.com/JakeFAU/remote-lead-crawler/internal/storage/memory"
)

type fakeLedger struct {
	mu        sync.Mutex
	store     *memory.LeadStore
	target    int
	outcomes  map[crawler.Outcome]int
	progress  []string
	exhausted []crawler.Pair
}

func newFakeLedger(target int) *fakeLedger {
	return &fakeLedger{store: memory.NewLeadStore(nil), target: target, outcomes: map[crawler.Outcome]int{}}
}

func (l *fakeLedger) Done() bool {
	return l.target > 0 && l.store.Len() >= l.target
}

func (l *fakeLedger) Observe(_ string, outcome crawler.Outcome) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.outcomes[outcome]++
}

func (l *fakeLedger) Known(p crawler.Posting) bool { return l.store.Contains(p) }

func (l *fakeLedger) Offer(_ context.Context, p crawler.Posting, emails []string) bool {
	_, ok := l.store.Offer(p, emails)
	if ok {
		l.Observe(p.SourceID, crawler.OutcomeAccepted)
	} else {
		l.Observe(p.SourceID, crawler.OutcomeDuplicate)
	}
	return ok
}

func (l *fakeLedger) Progress(pair crawler.Pair, nextPage int, finished bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.progress = append(l.progress, fmt.Sprintf("%d/%d:%d:%t", pair.Source, pair.Term, nextPage, finished))
}

func (l *fakeLedger) TermExhausted(pair crawler.Pair) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.exhausted = append(l.exhausted, pair)
}

func (l *fakeLedger) count(o crawler.Outcome) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.outcomes[o]
}

// descriptionResolver returns only the addresses already found in the description.
type descriptionResolver struct {
	err error
}

func (r descriptionResolver) Resolve(_ context.Context, p crawler.Posting) ([]string, error) {
	if r.err != nil {
		return nil, r.err
	}
	return extract.MergeEmails(p.DescriptionEmails), nil
}

var term = crawler.SearchTerm{Query: "data scientist"}

func remoteWithEmail(ref, email string) crawler.Posting {
	return crawler.Posting{ExternalRef: ref, Title: "Remote Data Scientist", Company: "Acme", Description: "Write to " + email}
}

func newWorker(src crawler.Source, ledger Ledger, r Resolver, cfg Config) *Worker {
	return New([]crawler.Source{src}, []crawler.SearchTerm{term}, r, ledger, cfg, zap.NewNop())
}

func TestDrainRunsPostingsThroughPipeline(t *testing.T) {
	t.Parallel()

	src := sourcemem.New("fake").
		AddPage(term, sourcemem.Page{Postings: []crawler.Posting{
			remoteWithEmail("a", "jobs@acme.io"),
			{ExternalRef: "b", Title: "Office Data Scientist", Company: "Beta", Description: "onsite, ask hr@beta.io"},
		}, HasNext: true}).
		AddPage(term, sourcemem.Page{Postings: []crawler.Posting{
			{ExternalRef: "c", Title: "Remote Analyst", Company: "Gamma", Description: "no contact"},
			remoteWithEmail("a", "jobs@acme.io"),
		}})
	ledger := newFakeLedger(0)

	err := newWorker(src, ledger, descriptionResolver{}, Config{}).Drain(context.Background(), crawler.Pair{})
	require.NoError(t, err)

	assert.Equal(t, 4, ledger.count(crawler.OutcomeSeen))
	assert.Equal(t, 1, ledger.count(crawler.OutcomeAccepted))
	assert.Equal(t, 1, ledger.count(crawler.OutcomeNotRemote))
	assert.Equal(t, 1, ledger.count(crawler.OutcomeNoEmail))
	assert.Equal(t, 1, ledger.count(crawler.OutcomeDuplicate))
	assert.Equal(t, []string{"0/0:1:false", "0/0:2:true"}, ledger.progress)

	leads := ledger.store.Leads()
	require.Len(t, leads, 1)
	assert.Equal(t, []string{"jobs@acme.io"}, leads[0].Emails)
	assert.Equal(t, "fake", leads[0].Posting.SourceID)
}

func TestDrainStartsAtResumePage(t *testing.T) {
	t.Parallel()

	src := sourcemem.New("fake").
		AddPage(term, sourcemem.Page{Postings: []crawler.Posting{remoteWithEmail("a", "a@x.io")}, HasNext: true}).
		AddPage(term, sourcemem.Page{Postings: []crawler.Posting{remoteWithEmail("b", "b@x.io")}})
	ledger := newFakeLedger(0)

	require.NoError(t, newWorker(src, ledger, descriptionResolver{}, Config{}).Drain(context.Background(), crawler.Pair{StartPage: 1}))
	assert.Equal(t, []string{"data scientist#1"}, src.Listed())
	assert.Equal(t, 1, ledger.store.Len())
}

func TestDrainCapsPagesAndPostings(t *testing.T) {
	t.Parallel()

	src := sourcemem.New("fake")
	for page := 0; page < 4; page++ {
		src.AddPage(term, sourcemem.Page{Postings: []crawler.Posting{
			remoteWithEmail(fmt.Sprintf("p%d-1", page), "a@x.io"),
			remoteWithEmail(fmt.Sprintf("p%d-2", page), "b@x.io"),
		}, HasNext: true})
	}
	ledger := newFakeLedger(0)

	cfg := Config{MaxPagesPerTerm: 2, MaxPostingsPerPage: 1}
	require.NoError(t, newWorker(src, ledger, descriptionResolver{}, cfg).Drain(context.Background(), crawler.Pair{}))
	assert.Equal(t, []string{"data scientist#0", "data scientist#1"}, src.Listed())
	assert.Equal(t, 2, ledger.count(crawler.OutcomeSeen))
	assert.Equal(t, "0/0:2:true", ledger.progress[len(ledger.progress)-1])
}

func TestDrainStopsWhenLedgerDone(t *testing.T) {
	t.Parallel()

	src := sourcemem.New("fake").AddPage(term, sourcemem.Page{Postings: []crawler.Posting{
		remoteWithEmail("a", "a@x.io"),
		remoteWithEmail("b", "b@x.io"),
		remoteWithEmail("c", "c@x.io"),
	}})
	ledger := newFakeLedger(2)

	require.NoError(t, newWorker(src, ledger, descriptionResolver{}, Config{}).Drain(context.Background(), crawler.Pair{}))
	assert.Equal(t, 2, ledger.store.Len())
	assert.Equal(t, 2, ledger.count(crawler.OutcomeSeen))
}

func TestDrainExhaustedTermIsNotAnError(t *testing.T) {
	t.Parallel()

	ledger := newFakeLedger(0)
	err := newWorker(sourcemem.New("fake"), ledger, descriptionResolver{}, Config{}).Drain(context.Background(), crawler.Pair{})
	require.NoError(t, err)
	assert.Equal(t, []crawler.Pair{{}}, ledger.exhausted)
	assert.Equal(t, []string{"0/0:0:true"}, ledger.progress)
}

func TestDrainListingFailureSkipsTerm(t *testing.T) {
	t.Parallel()

	src := sourcemem.New("fake").AddPage(term, sourcemem.Page{Err: &crawler.FetchError{URL: "u", Retryable: true, Err: errors.New("timeout")}})
	ledger := newFakeLedger(0)

	require.NoError(t, newWorker(src, ledger, descriptionResolver{}, Config{}).Drain(context.Background(), crawler.Pair{}))
	assert.Empty(t, ledger.exhausted)
	assert.Equal(t, []string{"0/0:0:true"}, ledger.progress)
}

func TestDrainContainsPostingErrors(t *testing.T) {
	t.Parallel()

	src := sourcemem.New("fake").AddPage(term, sourcemem.Page{Postings: []crawler.Posting{
		remoteWithEmail("bad", "a@x.io"),
		remoteWithEmail("good", "b@x.io"),
	}})
	src.SetDetailError("bad", &crawler.FetchError{URL: "u", StatusCode: 404, Err: errors.New("gone")})
	ledger := newFakeLedger(0)

	require.NoError(t, newWorker(src, ledger, descriptionResolver{}, Config{}).Drain(context.Background(), crawler.Pair{}))
	assert.Equal(t, 1, ledger.count(crawler.OutcomeSkipped))
	assert.Equal(t, 1, ledger.store.Len())
}

func TestDrainRecoversFromPanics(t *testing.T) {
	t.Parallel()

	src := sourcemem.New("fake").AddPage(term, sourcemem.Page{Postings: []crawler.Posting{
		remoteWithEmail("a", "a@x.io"),
	}})
	src.OnDetail = func(context.Context, crawler.Posting) error { panic("bad markup") }
	ledger := newFakeLedger(0)

	require.NoError(t, newWorker(src, ledger, descriptionResolver{}, Config{}).Drain(context.Background(), crawler.Pair{}))
	assert.Equal(t, 1, ledger.count(crawler.OutcomeSkipped))
	assert.Zero(t, ledger.store.Len())
}

func TestDrainReturnsFatalErrors(t *testing.T) {
	t.Parallel()

	src := sourcemem.New("fake").AddPage(term, sourcemem.Page{Postings: []crawler.Posting{remoteWithEmail("a", "a@x.io")}})
	ledger := newFakeLedger(0)

	err := newWorker(src, ledger, descriptionResolver{err: fmt.Errorf("browser: %w", crawler.ErrCapabilityLost)}, Config{}).
		Drain(context.Background(), crawler.Pair{})
	require.ErrorIs(t, err, crawler.ErrCapabilityLost)
	assert.Equal(t, 1, ledger.count(crawler.OutcomeSeen))
	assert.Equal(t, 1, ledger.count(crawler.OutcomeSkipped), "every seen posting ends with an outcome")
}

func TestDrainHonorsCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	src := sourcemem.New("fake").AddPage(term, sourcemem.Page{Postings: []crawler.Posting{
		remoteWithEmail("a", "a@x.io"),
		remoteWithEmail("b", "b@x.io"),
	}})
	src.OnDetail = func(_ context.Context, p crawler.Posting) error {
		if p.ExternalRef == "b" {
			cancel()
		}
		return nil
	}
	ledger := newFakeLedger(0)

	err := newWorker(src, ledger, descriptionResolver{}, Config{}).Drain(ctx, crawler.Pair{})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, ledger.store.Len())
}

func TestDrainRejectsUnknownPair(t *testing.T) {
	t.Parallel()

	err := newWorker(sourcemem.New("fake"), newFakeLedger(0), descriptionResolver{}, Config{}).
		Drain(context.Background(), crawler.Pair{Term: 3})
	require.ErrorIs(t, err, crawler.ErrFatalConfig)
}

// layoutSource panics while listing and remembers the scope it was listed under.
type layoutSource struct {
	mu     sync.Mutex
	scopes []string
}

func (s *layoutSource) ID() string { return "layout" }

func (s *layoutSource) ListPostings(ctx context.Context, _ crawler.SearchTerm, _ int) ([]crawler.Posting, bool, error) {
	s.mu.Lock()
	s.scopes = append(s.scopes, crawler.ScopeFrom(ctx))
	s.mu.Unlock()
	panic("unexpected markup")
}

func (s *layoutSource) FetchDetail(_ context.Context, p crawler.Posting) (crawler.Posting, error) {
	return p, nil
}

func TestDrainListingPanicSkipsTerm(t *testing.T) {
	t.Parallel()

	src := &layoutSource{}
	ledger := newFakeLedger(0)

	require.NotPanics(t, func() {
		require.NoError(t, newWorker(src, ledger, descriptionResolver{}, Config{}).Drain(context.Background(), crawler.Pair{}))
	})
	assert.Empty(t, ledger.exhausted)
	assert.Equal(t, []string{"0/0:0:true"}, ledger.progress)
	assert.Equal(t, []string{crawler.Pair{}.Scope()}, src.scopes)
}
