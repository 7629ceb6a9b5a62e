// Package crawler defines core types shared across subsystems.
package crawler

import (
	"net/http"
	"strings"
	"time"
)

// RunState represents the lifecycle state of a pipeline run.
type RunState string

// Run states reported by the driver.
const (
	RunStateIdle        RunState = "idle"
	RunStateRunning     RunState = "running"
	RunStateCompleted   RunState = "completed"
	RunStateInterrupted RunState = "interrupted"
	RunStateFailed      RunState = "failed"
)

// Terminal reports whether the state ends a run.
func (s RunState) Terminal() bool {
	switch s {
	case RunStateCompleted, RunStateInterrupted, RunStateFailed:
		return true
	default:
		return false
	}
}

// SearchTerm is one query issued against a source, optionally scoped to a location.
type SearchTerm struct {
	Query    string `json:"query" mapstructure:"query"`
	Location string `json:"location" mapstructure:"location"`
	// GeoID is an origin-specific location code (LinkedIn geoId).
	GeoID string `json:"geo_id,omitempty" mapstructure:"geo_id"`
}

// Label renders the term the way it is recorded in checkpoint rows.
func (t SearchTerm) Label() string {
	if t.Location == "" {
		return t.Query
	}
	return t.Location + "/" + t.Query
}

// Posting is one job listing as seen on a source. Postings are values; enrichment
// always produces a new copy.
type Posting struct {
	SourceID    string `json:"source_id"`
	ExternalRef string `json:"external_ref"`
	Title       string `json:"title"`
	Company     string `json:"company"`
	Location    string `json:"location"`
	Description string `json:"description"`
	DetailURL   string `json:"detail_url,omitempty"`
	// CompanyURL is the company website when the origin exposes it directly.
	CompanyURL string `json:"company_url,omitempty"`
	// ProfileURL links to a recruiter or company profile page on the origin.
	ProfileURL string `json:"profile_url,omitempty"`
	// SearchLabel is the label of the search term that surfaced the posting.
	SearchLabel string `json:"search_label,omitempty"`
	// DescriptionEmails holds addresses found in the full description before it was truncated.
	DescriptionEmails []string `json:"description_emails,omitempty"`
}

// Enrich returns a copy of p with every non-empty field of detail applied on top.
func (p Posting) Enrich(detail Posting) Posting {
	out := p
	out.DescriptionEmails = append([]string(nil), p.DescriptionEmails...)
	set := func(dst *string, v string) {
		if strings.TrimSpace(v) != "" {
			*dst = v
		}
	}
	set(&out.ExternalRef, detail.ExternalRef)
	set(&out.Title, detail.Title)
	set(&out.Company, detail.Company)
	set(&out.Location, detail.Location)
	set(&out.Description, detail.Description)
	set(&out.DetailURL, detail.DetailURL)
	set(&out.CompanyURL, detail.CompanyURL)
	set(&out.ProfileURL, detail.ProfileURL)
	if len(detail.DescriptionEmails) > 0 {
		out.DescriptionEmails = append([]string(nil), detail.DescriptionEmails...)
	}
	return out
}

// ContactCandidate is the result of probing one page for contact emails.
type ContactCandidate struct {
	PageURL string
	Emails  []string
	Depth   int
}

// Lead is an accepted, deduplicated posting with at least one discovered email.
type Lead struct {
	Posting        Posting   `json:"posting"`
	Emails         []string  `json:"emails"`
	RemoteEligible bool      `json:"remote_eligible"`
	DiscoveredAt   time.Time `json:"discovered_at"`
}

// Key returns the dedup identity of the lead.
func (l Lead) Key() string {
	return IdentityKey(l.Posting)
}

// Cursor is the resumable position of a run: the lowest (source, term) pair that has
// not finished and the page it was on.
type Cursor struct {
	Source int `json:"source"`
	Term   int `json:"term"`
	Page   int `json:"page"`
}

// Stats tracks run-wide counters.
type Stats struct {
	PostingsSeen       int `json:"postings_seen"`
	RejectedNotRemote  int `json:"rejected_not_remote"`
	RejectedNoEmail    int `json:"rejected_no_email"`
	RejectedDuplicate  int `json:"rejected_duplicate"`
	LeadsAccepted      int `json:"leads_accepted"`
	PostingsSkipped    int `json:"postings_skipped"`
	TermsExhausted     int `json:"terms_exhausted"`
	ConsecutiveNoEmail int `json:"consecutive_no_email"`
}

// RunCheckpoint is the durable snapshot of a run.
type RunCheckpoint struct {
	RunID   string    `json:"run_id"`
	Leads   []Lead    `json:"-"`
	Cursor  Cursor    `json:"cursor"`
	Stats   Stats     `json:"stats"`
	SavedAt time.Time `json:"saved_at"`
}

// RunSummary is published for downstream consumers once a run ends.
type RunSummary struct {
	RunID      string         `json:"run_id"`
	State      RunState       `json:"state"`
	Stats      Stats          `json:"stats"`
	Artifact   string         `json:"artifact"`
	ByLocation map[string]int `json:"by_location"`
	ByTerm     map[string]int `json:"by_term"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL     string
	Headers http.Header
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// Pair is one (source, term) unit of work and the page to start it from.
type Pair struct {
	Source    int
	Term      int
	StartPage int
}

// Outcome labels what happened to one posting.
type Outcome string

// Posting outcomes recorded in stats and metrics.
const (
	OutcomeSeen      Outcome = "seen"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeNotRemote Outcome = "not_remote"
	OutcomeNoEmail   Outcome = "no_email"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeAccepted  Outcome = "accepted"
)

// Record applies outcome to the counters.
func (s *Stats) Record(outcome Outcome) {
	switch outcome {
	case OutcomeSeen:
		s.PostingsSeen++
	case OutcomeSkipped:
		s.PostingsSkipped++
	case OutcomeNotRemote:
		s.RejectedNotRemote++
	case OutcomeNoEmail:
		s.RejectedNoEmail++
		s.ConsecutiveNoEmail++
	case OutcomeDuplicate:
		s.RejectedDuplicate++
	case OutcomeAccepted:
		s.LeadsAccepted++
		s.ConsecutiveNoEmail = 0
	}
}
