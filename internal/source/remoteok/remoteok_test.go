package remoteok

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/remote-lead-crawler/internal/crawler"
)

const feed = `[
  {"legal": "API terms of service"},
  {"slug": "data-scientist-acme-1", "company": "Acme", "position": "Senior Data Scientist",
   "url": "https://remoteok.com/remote-jobs/1", "apply_url": "https://acme.io/careers",
   "tags": ["python", "ml"], "location": "Worldwide",
   "description": "<p>Reach us at <b>jobs@acme.io</b></p>"},
  {"slug": "go-dev-beta-2", "company": "Beta", "position": "Go Developer",
   "url": "https://remoteok.com/remote-jobs/2", "apply_url": "https://www.linkedin.com/jobs/2",
   "tags": ["golang"], "location": "", "description": "Backend work"},
  {"slug": "data-analyst-gamma-3", "company": "Gamma", "position": "Data Analyst",
   "url": "https://remoteok.com/remote-jobs/3", "tags": ["sql"], "location": "Canada only",
   "description": "Dashboards"}
]`

type fakeFetcher struct {
	body  string
	err   error
	calls int
	urls  []string
}

func (f *fakeFetcher) Fetch(_ context.Context, req crawler.FetchRequest) (crawler.FetchResponse, error) {
	f.calls++
	f.urls = append(f.urls, req.URL)
	if f.err != nil {
		return crawler.FetchResponse{}, f.err
	}
	return crawler.FetchResponse{URL: req.URL, StatusCode: 200, Body: []byte(f.body)}, nil
}

func TestListPostingsFiltersByQuery(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{body: feed}
	src := New("https://remoteok.test/api", fetcher)

	postings, hasNext, err := src.ListPostings(context.Background(), crawler.SearchTerm{Query: "data scientist"}, 0)
	require.NoError(t, err)
	assert.False(t, hasNext)
	require.Len(t, postings, 1)

	p := postings[0]
	assert.Equal(t, "remoteok", p.SourceID)
	assert.Equal(t, "Senior Data Scientist", p.Title)
	assert.Equal(t, "Acme", p.Company)
	assert.Equal(t, "Worldwide", p.Location)
	assert.Equal(t, "Reach us at jobs@acme.io", p.Description)
	assert.Equal(t, "https://remoteok.com/remote-jobs/1", p.ExternalRef)
	assert.Equal(t, "https://acme.io/careers", p.CompanyURL)
	assert.Equal(t, "data scientist", p.SearchLabel)
	assert.Equal(t, []string{"https://remoteok.test/api"}, fetcher.urls)
}

func TestListPostingsLocationFilter(t *testing.T) {
	t.Parallel()

	src := New("https://remoteok.test/api", &fakeFetcher{body: feed})

	postings, _, err := src.ListPostings(context.Background(), crawler.SearchTerm{Query: "data", Location: "Germany"}, 0)
	require.NoError(t, err)
	require.Len(t, postings, 1)
	assert.Equal(t, "Acme", postings[0].Company)

	postings, _, err = src.ListPostings(context.Background(), crawler.SearchTerm{Query: "data", Location: "Canada"}, 0)
	require.NoError(t, err)
	assert.Len(t, postings, 2)
}

func TestListPostingsEmptyLocationDefaultsToRemote(t *testing.T) {
	t.Parallel()

	src := New("", &fakeFetcher{body: feed})
	postings, _, err := src.ListPostings(context.Background(), crawler.SearchTerm{Query: "go developer"}, 0)
	require.NoError(t, err)
	require.Len(t, postings, 1)
	assert.Equal(t, "Remote", postings[0].Location)
	assert.Empty(t, postings[0].CompanyURL, "job-board apply links are not company sites")
}

func TestListPostingsLaterPagesAreEmpty(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{body: feed}
	postings, hasNext, err := New("", fetcher).ListPostings(context.Background(), crawler.SearchTerm{Query: "data"}, 1)
	require.NoError(t, err)
	assert.Empty(t, postings)
	assert.False(t, hasNext)
	assert.Zero(t, fetcher.calls)
}

func TestListPostingsExhaustion(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"not an array": `{"error": "rate limited"}`,
		"no matches":   feed,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, _, err := New("", &fakeFetcher{body: body}).ListPostings(context.Background(), crawler.SearchTerm{Query: "astronaut"}, 0)
			require.Error(t, err)
			assert.ErrorIs(t, err, crawler.ErrAdapterExhausted)
			assert.True(t, crawler.EndsTerm(err))
		})
	}
}

func TestListPostingsPropagatesFetchErrors(t *testing.T) {
	t.Parallel()

	fetchErr := &crawler.FetchError{URL: DefaultAPIURL, Retryable: true, Err: errors.New("timeout")}
	_, _, err := New("", &fakeFetcher{err: fetchErr}).ListPostings(context.Background(), crawler.SearchTerm{Query: "data"}, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, crawler.ErrRetryableFetch)
	assert.False(t, crawler.EndsTerm(err))
}

func TestFetchDetailReturnsPostingUnchanged(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{}
	p := crawler.Posting{SourceID: "remoteok", ExternalRef: "x", Title: "t"}
	got, err := New("", fetcher).FetchDetail(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, p, got)
	assert.Zero(t, fetcher.calls)
}
