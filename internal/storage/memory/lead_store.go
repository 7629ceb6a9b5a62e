// Package memory holds in-process stores: the lead dedup store and an object store for tests
// and dry runs.
package memory

import (
	"sync"
	"time"

	"github.com/JakeFAU/remote-lead-crawler/internal/crawler"
)

// LeadStore is the ordered set of accepted leads keyed by posting identity.
type LeadStore struct {
	mu    sync.RWMutex
	leads []crawler.Lead
	keys  map[string]struct{}
	clock crawler.Clock
}

// NewLeadStore constructs an empty LeadStore. A nil clock uses time.Now.
func NewLeadStore(clock crawler.Clock) *LeadStore {
	return &LeadStore{
		keys:  make(map[string]struct{}),
		clock: clock,
	}
}

// Offer accepts p as a lead when emails is non-empty and no stored lead shares its identity key.
func (s *LeadStore) Offer(p crawler.Posting, emails []string) (crawler.Lead, bool) {
	if len(emails) == 0 {
		return crawler.Lead{}, false
	}
	key := crawler.IdentityKey(p)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.keys[key]; exists {
		return crawler.Lead{}, false
	}
	lead := crawler.Lead{
		Posting:        p,
		Emails:         append([]string(nil), emails...),
		RemoteEligible: true,
		DiscoveredAt:   s.now(),
	}
	s.keys[key] = struct{}{}
	s.leads = append(s.leads, lead)
	return lead, true
}

// Contains reports whether a lead with p's identity is already stored.
func (s *LeadStore) Contains(p crawler.Posting) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.keys[crawler.IdentityKey(p)]
	return ok
}

// Leads returns a copy of the accepted leads in discovery order.
func (s *LeadStore) Leads() []crawler.Lead {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]crawler.Lead, len(s.leads))
	for i, l := range s.leads {
		l.Emails = append([]string(nil), l.Emails...)
		out[i] = l
	}
	return out
}

// Len returns the number of accepted leads.
func (s *LeadStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.leads)
}

// Restore appends previously persisted leads, skipping any whose key is already present.
// It returns the number of leads added.
func (s *LeadStore) Restore(leads []crawler.Lead) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	added := 0
	for _, l := range leads {
		if len(l.Emails) == 0 {
			continue
		}
		key := l.Key()
		if _, exists := s.keys[key]; exists {
			continue
		}
		l.Emails = append([]string(nil), l.Emails...)
		s.keys[key] = struct{}{}
		s.leads = append(s.leads, l)
		added++
	}
	return added
}

func (s *LeadStore) now() time.Time {
	if s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock.Now()
}
