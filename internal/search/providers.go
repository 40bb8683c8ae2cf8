package search

import (
	"context"

	"github.com/sells-group/lead-intel/pkg/jina"
	"github.com/sells-group/lead-intel/pkg/serper"
)

// SerperProvider searches Google through Serper.
type SerperProvider struct {
	client   serper.Client
	country  string
	language string
}

// NewSerperProvider wraps a Serper client with a fixed locale.
func NewSerperProvider(client serper.Client, country, language string) *SerperProvider {
	return &SerperProvider{client: client, country: country, language: language}
}

// Name implements Provider.
func (p *SerperProvider) Name() string { return "serper" }

// Search implements Provider.
func (p *SerperProvider) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	resp, err := p.client.Search(ctx, serper.SearchRequest{
		Query:    query,
		Num:      limit,
		Country:  p.country,
		Language: p.language,
	})
	if err != nil {
		return nil, err
	}
	out := make([]Result, 0, len(resp.Organic))
	for _, o := range resp.Organic {
		out = append(out, Result{Title: o.Title, Snippet: o.Snippet, URL: o.Link})
	}
	return out, nil
}

// JinaProvider searches through Jina Search.
type JinaProvider struct {
	client   jina.Client
	country  string
	language string
}

// NewJinaProvider wraps a Jina client with a fixed locale.
func NewJinaProvider(client jina.Client, country, language string) *JinaProvider {
	return &JinaProvider{client: client, country: country, language: language}
}

// Name implements Provider.
func (p *JinaProvider) Name() string { return "jina" }

// Search implements Provider. Jina's description is the closest field to an
// organic snippet; page content is used when it is missing.
func (p *JinaProvider) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	resp, err := p.client.Search(ctx, query, jina.WithCount(limit), jina.WithLocale(p.country, p.language))
	if err != nil {
		return nil, err
	}
	out := make([]Result, 0, len(resp.Data))
	for _, d := range resp.Data {
		snippet := d.Description
		if snippet == "" {
			snippet = truncate(d.Content, 300)
		}
		out = append(out, Result{Title: d.Title, Snippet: snippet, URL: d.URL})
	}
	return out, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
