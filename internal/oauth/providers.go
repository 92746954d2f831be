package oauth

import (
	"sort"
	"strings"
	"sync"
)

// NormalizeProvider maps the spellings the backend and the callback page
// use for a provider onto one identifier: "Google-Ads" and "google ads"
// both become "google_ads".
func NormalizeProvider(p string) string {
	p = strings.ToLower(strings.TrimSpace(p))
	return strings.Map(func(r rune) rune {
		if r == '-' || r == ' ' {
			return '_'
		}
		return r
	}, p)
}

// ProviderSet is the set of providers connected during one session. Only
// the coordinator adds to it; everyone else reads snapshots.
type ProviderSet struct {
	mu sync.RWMutex
	m  map[string]struct{}
}

func NewProviderSet() *ProviderSet {
	return &ProviderSet{m: make(map[string]struct{})}
}

// add records a provider and reports whether it was new
func (s *ProviderSet) add(provider string) bool {
	p := NormalizeProvider(provider)
	if p == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.m[p]; ok {
		return false
	}
	s.m[p] = struct{}{}
	return true
}

// Has reports whether the provider, in any spelling, is connected
func (s *ProviderSet) Has(provider string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.m[NormalizeProvider(provider)]
	return ok
}

func (s *ProviderSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}

// Snapshot returns the connected providers in sorted order. The slice is a
// copy; later additions do not affect it.
func (s *ProviderSet) Snapshot() []string {
	s.mu.RLock()
	out := make([]string, 0, len(s.m))
	for p := range s.m {
		out = append(out, p)
	}
	s.mu.RUnlock()

	sort.Strings(out)
	return out
}
