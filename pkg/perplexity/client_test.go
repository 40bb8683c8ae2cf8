package perplexity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatCompletion(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		body          string
		wantErr       string
		wantText      string
		wantCitations int
	}{
		{
			name:   "success",
			status: http.StatusOK,
			body: `{
				"id": "cmpl-123",
				"model": "sonar",
				"choices": [{"index": 0, "message": {"role": "assistant", "content": "  Acme has an active LinkedIn page.  "}}],
				"citations": ["https://linkedin.com/company/acme", "https://acme.com.br"],
				"usage": {"prompt_tokens": 10, "completion_tokens": 5}
			}`,
			wantText:      "Acme has an active LinkedIn page.",
			wantCitations: 2,
		},
		{
			name:    "rate_limit",
			status:  http.StatusTooManyRequests,
			body:    `{"error": "rate limit exceeded"}`,
			wantErr: "unexpected status 429",
		},
		{
			name:    "server_error",
			status:  http.StatusInternalServerError,
			body:    `{"error": "internal server error"}`,
			wantErr: "unexpected status 500",
		},
		{
			name:    "malformed_response",
			status:  http.StatusOK,
			body:    `{invalid json`,
			wantErr: "unmarshal response",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "/chat/completions", r.URL.Path)
				assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body)) //nolint:errcheck
			}))
			defer srv.Close()

			client := NewClient("test-key", WithBaseURL(srv.URL))
			resp, err := client.ChatCompletion(context.Background(), ChatCompletionRequest{
				Messages: []Message{{Role: "user", Content: "hi"}},
			})

			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantText, resp.Text())
			assert.Len(t, resp.Citations, tt.wantCitations)
		})
	}
}

func TestDefaultModelAndFilters(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "sonar", req["model"])
		assert.Equal(t, "month", req["search_recency_filter"])
		assert.Equal(t, []any{"linkedin.com"}, req["search_domain_filter"])
		w.Write([]byte(`{"id":"x","choices":[]}`)) //nolint:errcheck
	}))
	defer srv.Close()

	resp, err := NewClient("k", WithBaseURL(srv.URL)).ChatCompletion(context.Background(), ChatCompletionRequest{
		Messages:            []Message{{Role: "user", Content: "hi"}},
		SearchRecencyFilter: "month",
		SearchDomainFilter:  []string{"linkedin.com"},
	})
	require.NoError(t, err)
	assert.Empty(t, resp.Text())
}

func TestWithModel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ChatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "sonar-pro", req.Model)
		w.Write([]byte(`{"id":"x"}`)) //nolint:errcheck
	}))
	defer srv.Close()

	_, err := NewClient("k", WithBaseURL(srv.URL), WithModel("sonar-pro")).ChatCompletion(context.Background(), ChatCompletionRequest{})
	require.NoError(t, err)
}

func TestContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewClient("k", WithBaseURL(srv.URL)).ChatCompletion(ctx, ChatCompletionRequest{})
	require.Error(t, err)
}

func TestText_NilSafe(t *testing.T) {
	var r *ChatCompletionResponse
	assert.Empty(t, r.Text())
}

func TestSources(t *testing.T) {
	r := &ChatCompletionResponse{
		Citations: []string{"https://acme.com.br", " "},
		SearchResults: []SearchResult{
			{Title: "Acme", URL: "https://acme.com.br"},
			{Title: "Acme no LinkedIn", URL: "https://linkedin.com/company/acme"},
		},
	}
	assert.Equal(t, []string{"https://acme.com.br", "https://linkedin.com/company/acme"}, r.Sources())

	var nilResp *ChatCompletionResponse
	assert.NotNil(t, nilResp.Sources())
}

func TestAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(strings.Repeat("x", 2000))) //nolint:errcheck
	}))
	defer srv.Close()

	_, err := NewClient("k", WithBaseURL(srv.URL)).ChatCompletion(context.Background(), ChatCompletionRequest{})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.True(t, apiErr.Retryable())
	assert.LessOrEqual(t, len(apiErr.Body), maxErrorBody+3)

	assert.False(t, (&APIError{StatusCode: http.StatusBadRequest}).Retryable())
}
