package crawler

import (
	"context"
	"io"
	"time"
)

// Source lists postings and fetches posting detail from one origin.
type Source interface {
	// ID identifies the origin; it is recorded on every posting.
	ID() string
	// ListPostings returns one result page for term and whether a next page exists.
	ListPostings(ctx context.Context, term SearchTerm, page int) ([]Posting, bool, error)
	// FetchDetail returns an enriched copy of p.
	FetchDetail(ctx context.Context, p Posting) (Posting, error)
}

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// ObjectStore is a BlobStore that can also read back and enumerate what it wrote.
type ObjectStore interface {
	BlobStore
	GetObject(ctx context.Context, path string) (io.ReadCloser, error)
	ListObjects(ctx context.Context, prefix string) ([]string, error)
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// LeadSink receives every accepted lead as it is discovered.
type LeadSink interface {
	StoreLead(ctx context.Context, runID string, lead Lead) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
