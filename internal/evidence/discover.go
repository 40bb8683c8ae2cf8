package evidence

import (
	"context"
	"sort"

	"github.com/sells-group/lead-intel/internal/candidate"
	"github.com/sells-group/lead-intel/internal/search"
)

// Candidate is a company name surfaced by a discovery search.
type Candidate struct {
	Name    string   `json:"name"`
	Sources []string `json:"sources"`
}

// Discoverer finds candidate companies in search results, typically for
// queries like `"case de sucesso" TOTVS`.
type Discoverer struct {
	searcher search.Searcher
}

// NewDiscoverer builds a discoverer over a searcher.
func NewDiscoverer(s search.Searcher) *Discoverer {
	return &Discoverer{searcher: s}
}

// Discover searches for query and extracts candidate names from each hit.
// Candidates are ordered by how many results support them, then by name.
func (d *Discoverer) Discover(ctx context.Context, query string, limit int) []Candidate {
	if limit <= 0 {
		limit = DefaultResultsPerQuery
	}
	results := d.searcher.Search(ctx, query, limit)

	sources := map[string][]string{}
	for _, r := range results {
		for _, name := range candidate.ExtractNames(r.Title + "\n" + r.Snippet) {
			sources[name] = append(sources[name], r.URL)
		}
	}

	out := make([]Candidate, 0, len(sources))
	for name, urls := range sources {
		out = append(out, Candidate{Name: name, Sources: urls})
	}
	sort.Slice(out, func(i, j int) bool {
		if len(out[i].Sources) != len(out[j].Sources) {
			return len(out[i].Sources) > len(out[j].Sources)
		}
		return out[i].Name < out[j].Name
	})
	return out
}
