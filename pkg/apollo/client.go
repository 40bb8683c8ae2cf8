// Package apollo provides a client for Apollo.io organization enrichment.
package apollo

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://api.apollo.io"

// ErrNoMatch is returned when Apollo has no organization for the domain.
var ErrNoMatch = eris.New("apollo: no organization match")

// Client enriches organizations by domain.
type Client interface {
	EnrichOrganization(ctx context.Context, domain string) (*Organization, error)
}

// Organization is the subset of Apollo's organization record used here.
type Organization struct {
	ID                    string   `json:"id"`
	Name                  string   `json:"name"`
	WebsiteURL            string   `json:"website_url"`
	LinkedInURL           string   `json:"linkedin_url"`
	PrimaryDomain         string   `json:"primary_domain"`
	Industry              string   `json:"industry"`
	EstimatedNumEmployees int      `json:"estimated_num_employees"`
	AnnualRevenue         float64  `json:"annual_revenue"`
	FoundedYear           int      `json:"founded_year"`
	Phone                 string   `json:"phone"`
	City                  string   `json:"city"`
	State                 string   `json:"state"`
	Country               string   `json:"country"`
	TechnologyNames       []string `json:"technology_names"`
	Keywords              []string `json:"keywords"`
}

type enrichResponse struct {
	Organization *Organization `json:"organization"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the API base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates an Apollo client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) EnrichOrganization(ctx context.Context, domain string) (*Organization, error) {
	if domain == "" {
		return nil, eris.New("apollo: domain is required")
	}

	reqURL := c.baseURL + "/api/v1/organizations/enrich?" + url.Values{"domain": {domain}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "apollo: create request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "apollo: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "apollo: read response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("apollo: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var result enrichResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "apollo: unmarshal response")
	}
	if result.Organization == nil {
		return nil, eris.Wrapf(ErrNoMatch, "apollo: %s", domain)
	}
	return result.Organization, nil
}
