package apollo

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnrichOrganization_Success(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/v1/organizations/enrich", r.URL.Path)
		assert.Equal(t, "acme.com.br", r.URL.Query().Get("domain"))
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"organization":{
			"id":"org_1","name":"Acme","website_url":"http://www.acme.com.br",
			"linkedin_url":"http://www.linkedin.com/company/acme","industry":"machinery",
			"estimated_num_employees":320,"annual_revenue":45000000,"founded_year":1998,
			"city":"Campinas","state":"Sao Paulo","technology_names":["TOTVS","Microsoft Office 365"]
		}}`)) //nolint:errcheck
	}))
	defer srv.Close()

	org, err := NewClient("test-key", WithBaseURL(srv.URL)).EnrichOrganization(context.Background(), "acme.com.br")
	require.NoError(t, err)
	assert.Equal(t, "Acme", org.Name)
	assert.Equal(t, 320, org.EstimatedNumEmployees)
	assert.InDelta(t, 45000000, org.AnnualRevenue, 0.1)
	assert.Equal(t, []string{"TOTVS", "Microsoft Office 365"}, org.TechnologyNames)
}

func TestEnrichOrganization_NoMatch(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`)) //nolint:errcheck
	}))
	defer srv.Close()

	_, err := NewClient("k", WithBaseURL(srv.URL)).EnrichOrganization(context.Background(), "unknown.com.br")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoMatch))
}

func TestEnrichOrganization_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{name: "quota", status: http.StatusTooManyRequests, body: `{"error":"rate limit"}`, wantErr: "429"},
		{name: "forbidden", status: http.StatusForbidden, body: `{"error":"plan"}`, wantErr: "403"},
		{name: "malformed", status: http.StatusOK, body: `{`, wantErr: "unmarshal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body)) //nolint:errcheck
			}))
			defer srv.Close()

			_, err := NewClient("k", WithBaseURL(srv.URL)).EnrichOrganization(context.Background(), "acme.com.br")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestEnrichOrganization_EmptyDomain(t *testing.T) {
	t.Parallel()

	_, err := NewClient("k").EnrichOrganization(context.Background(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "domain is required")
}
