package evidence

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/lead-intel/internal/mention"
	"github.com/sells-group/lead-intel/internal/model"
	"github.com/sells-group/lead-intel/internal/search"
)

// DefaultResultsPerQuery is how many hits each evidence query asks for.
const DefaultResultsPerQuery = 10

// Collection is the raw output of one collection run.
type Collection struct {
	Items           []model.EvidenceItem
	SourcesChecked  map[string]int
	QueriesExecuted []string
}

// Collector runs a playbook's queries for a target and keeps the results
// that mention it.
type Collector struct {
	searcher search.Searcher
	playbook Playbook
	limit    int
	now      func() time.Time
}

// CollectorOption configures a Collector.
type CollectorOption func(*Collector)

// WithResultsPerQuery overrides DefaultResultsPerQuery.
func WithResultsPerQuery(n int) CollectorOption {
	return func(c *Collector) {
		if n > 0 {
			c.limit = n
		}
	}
}

// WithClock overrides the item timestamp source.
func WithClock(now func() time.Time) CollectorOption {
	return func(c *Collector) {
		c.now = now
	}
}

// NewCollector builds a collector over a searcher.
func NewCollector(s search.Searcher, pb Playbook, opts ...CollectorOption) *Collector {
	c := &Collector{
		searcher: s,
		playbook: pb,
		limit:    DefaultResultsPerQuery,
		now:      time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Collect runs every channel query for target. Results that do not mention
// the target are dropped; a URL seen twice counts once, attributed to the
// first channel that returned it. Collect stops early when ctx is done and
// returns what it has so far.
func (c *Collector) Collect(ctx context.Context, target *model.Target) Collection {
	name := target.SearchName()
	out := Collection{
		Items:           []model.EvidenceItem{},
		SourcesChecked:  map[string]int{},
		QueriesExecuted: []string{},
	}
	seen := map[string]struct{}{}

	for _, ch := range c.playbook.Channels {
		keywords := normalizeAll(ch.Keywords)
		for _, q := range ch.Render(name, c.playbook.Product) {
			if ctx.Err() != nil {
				return out
			}
			results := c.searcher.Search(ctx, q, c.limit)
			out.QueriesExecuted = append(out.QueriesExecuted, q)
			out.SourcesChecked[ch.Platform] += len(results)

			for _, r := range results {
				if _, dup := seen[r.URL]; dup {
					continue
				}
				text := r.Title + " " + r.Snippet
				if !mention.IsValidMention(text, name) {
					continue
				}
				kw := matchKeyword(mention.Normalize(text), keywords)
				if ch.RequireKeyword && kw == "" {
					continue
				}
				seen[r.URL] = struct{}{}
				out.Items = append(out.Items, c.item(ch, r, kw, keywords))
			}
		}
	}

	zap.L().Debug("evidence: collected",
		zap.String("target", name),
		zap.Int("items", len(out.Items)),
		zap.Int("queries", len(out.QueriesExecuted)),
	)
	return out
}

func (c *Collector) item(ch Channel, r search.Result, kw string, keywords []string) model.EvidenceItem {
	conf := model.ConfidenceMedium
	if matchKeyword(mention.Normalize(r.Title), keywords) != "" {
		conf = model.ConfidenceHigh
	}
	reason := fmt.Sprintf("%s result mentions target", ch.Type)
	if kw != "" {
		reason = fmt.Sprintf("%s result mentions target and %q", ch.Type, kw)
	}
	return model.EvidenceItem{
		Type:        ch.Type,
		Score:       ch.Weight,
		Title:       r.Title,
		Description: r.Snippet,
		URL:         r.URL,
		Timestamp:   c.now().UTC(),
		Confidence:  conf,
		Reason:      reason,
	}
}

func normalizeAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if n := mention.Normalize(s); n != "" {
			out = append(out, n)
		}
	}
	return out
}

// matchKeyword returns the first keyword that appears in text on token
// boundaries. Both sides must already be normalized.
func matchKeyword(text string, keywords []string) string {
	padded := " " + text + " "
	if i := slices.IndexFunc(keywords, func(k string) bool {
		return strings.Contains(padded, " "+k+" ")
	}); i >= 0 {
		return keywords[i]
	}
	return ""
}
