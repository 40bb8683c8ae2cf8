// Package search runs evidence web searches against a primary provider with
// transparent fallback to a secondary one.
package search

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Result is one organic search hit, normalized across providers.
type Result struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	URL     string `json:"url"`
}

// Provider is a single search backend. Any returned error makes the adapter
// fall through to the next provider.
type Provider interface {
	Name() string
	Search(ctx context.Context, query string, limit int) ([]Result, error)
}

// Searcher is what pipeline stages depend on. Implementations never fail: an
// empty slice means "no evidence".
type Searcher interface {
	Search(ctx context.Context, query string, limit int) []Result
}

// Adapter tries its providers in order and returns the first successful
// response. Each attempt is bounded by its own timeout and is never retried.
type Adapter struct {
	providers []Provider
	timeout   time.Duration
}

// AdapterOption configures an Adapter.
type AdapterOption func(*Adapter)

// WithTimeout bounds each provider attempt.
func WithTimeout(d time.Duration) AdapterOption {
	return func(a *Adapter) {
		a.timeout = d
	}
}

// NewAdapter builds an adapter over primary and fallback. A nil fallback
// leaves the primary alone.
func NewAdapter(primary, fallback Provider, opts ...AdapterOption) *Adapter {
	a := &Adapter{timeout: 15 * time.Second}
	for _, p := range []Provider{primary, fallback} {
		if p != nil {
			a.providers = append(a.providers, p)
		}
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Search returns up to limit results from the first provider that answers.
// A successful empty answer is final. When every provider fails the result
// is an empty, non-nil slice.
func (a *Adapter) Search(ctx context.Context, query string, limit int) []Result {
	query = strings.TrimSpace(query)
	if query == "" || limit <= 0 {
		return []Result{}
	}

	for i, p := range a.providers {
		results, err := a.attempt(ctx, p, query, limit)
		if err == nil {
			return results
		}

		log := zap.L().With(
			zap.String("provider", p.Name()),
			zap.String("query", query),
			zap.Error(err),
		)
		if i < len(a.providers)-1 {
			log.Warn("search: provider failed, falling back")
		} else {
			log.Warn("search: all providers failed")
		}
		if ctx.Err() != nil {
			break
		}
	}
	return []Result{}
}

func (a *Adapter) attempt(ctx context.Context, p Provider, query string, limit int) ([]Result, error) {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	raw, err := p.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}

	out := make([]Result, 0, min(len(raw), limit))
	for _, r := range raw {
		if strings.TrimSpace(r.URL) == "" {
			continue
		}
		out = append(out, Result{
			Title:   strings.TrimSpace(r.Title),
			Snippet: strings.TrimSpace(r.Snippet),
			URL:     strings.TrimSpace(r.URL),
		})
		if len(out) == limit {
			break
		}
	}
	return out, nil
}
