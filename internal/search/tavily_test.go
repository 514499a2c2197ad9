package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rewriteTransport redirects every request to the test server.
type rewriteTransport struct {
	target *url.URL
}

func (rt rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.URL.Scheme = rt.target.Scheme
	req.URL.Host = rt.target.Host
	return http.DefaultTransport.RoundTrip(req)
}

func tavilyForServer(t *testing.T, srv *httptest.Server) *Tavily {
	t.Helper()
	target, err := url.Parse(srv.URL)
	require.NoError(t, err)
	return NewTavilyWithClient("test-key", "basic", &http.Client{
		Transport: rewriteTransport{target: target},
	})
}

func TestTavilySearch(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{
				{"title": "First", "url": "https://a.example/1", "content": "alpha", "published_date": "2026-01-10"},
				{"title": "Second", "url": "https://b.example/2", "content": "beta"},
				{"title": "Third", "url": "https://c.example/3", "content": "gamma"},
			},
		})
	}))
	defer srv.Close()

	results, err := tavilyForServer(t, srv).Search(context.Background(), "solid state batteries", 2)
	require.NoError(t, err)

	assert.Equal(t, "solid state batteries", gotBody["query"])
	assert.Equal(t, "test-key", gotBody["api_key"])
	assert.Equal(t, float64(2), gotBody["max_results"])

	require.Len(t, results, 2, "results truncated to the requested count")
	assert.Equal(t, "https://a.example/1", results[0].URL)
	assert.Equal(t, "alpha", results[0].Text)
	assert.Equal(t, "2026-01-10", results[0].PublishedDate)
}

func TestTavilySearchRetriesOn429(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{{"title": "OK", "url": "https://a.example/1", "content": "text"}},
		})
	}))
	defer srv.Close()

	results, err := tavilyForServer(t, srv).Search(context.Background(), "q", 5)
	require.NoError(t, err)
	assert.Len(t, results, 1)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestTavilySearchRateLimitCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := tavilyForServer(t, srv).Search(ctx, "q", 5)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTavilySearchErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := tavilyForServer(t, srv).Search(context.Background(), "q", 5)
	assert.ErrorContains(t, err, "502")

	missing := NewTavily("", "basic")
	_, err = missing.Search(context.Background(), "q", 5)
	assert.ErrorContains(t, err, "API key")
}
