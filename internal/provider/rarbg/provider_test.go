package rarbg

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riptide/riptide/internal/provider"
)

func init() {
	requestInterval = 5 * time.Millisecond
	rateLimitDelay = 5 * time.Millisecond
}

func newTestProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return New(Config{BaseURL: srv.URL, AppID: "riptide-test"}, zerolog.Nop())
}

func drainTV(t *testing.T, p *Provider, q provider.TVQuery) ([]provider.SearchResult, error) {
	t.Helper()

	out := make(chan provider.SearchResult, 128)
	err := p.SearchTV(context.Background(), q, out)
	close(out)

	var results []provider.SearchResult
	for r := range out {
		results = append(results, r)
	}
	return results, err
}

const torrentsBody = `{
	"torrent_results": [
		{
			"title": "Chernobyl.S01E01.1080p.AMZN.WEB-DL-NTb",
			"category": "TV HD Episodes",
			"download": "magnet:?xt=urn:btih:aaa",
			"seeders": 120,
			"episode_info": {"seasonnum": "1", "epnum": "1"}
		},
		{
			"title": "Chernobyl.S01E02.720p.WEB-DL",
			"category": "TV Episodes",
			"download": "magnet:?xt=urn:btih:bbb",
			"seeders": 40,
			"episode_info": {"seasonnum": "1", "epnum": "2"}
		}
	],
	"error_code": 0
}`

func TestSearchTV(t *testing.T) {
	var searchQuery atomic.Value

	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("get_token") != "" {
			fmt.Fprint(w, `{"token": "tok1"}`)
			return
		}
		searchQuery.Store(r.URL.Query())
		fmt.Fprint(w, torrentsBody)
	})

	ep := 1
	results, err := drainTV(t, p, provider.TVQuery{
		ImdbID: "tt7366338", Title: "Chernobyl", Season: 1, Episode: &ep,
	})
	require.NoError(t, err)
	require.Len(t, results, 2)

	first := results[0]
	assert.Equal(t, provider.SourceRarbg, first.Source)
	assert.Equal(t, "Chernobyl.S01E01.1080p.AMZN.WEB-DL-NTb", first.Title)
	assert.Equal(t, 120, first.Seeders)
	assert.Equal(t, "TV HD Episodes", first.Category)
	require.NotNil(t, first.EpisodeInfo.Season)
	assert.Equal(t, 1, *first.EpisodeInfo.Season)
	require.NotNil(t, first.EpisodeInfo.Episode)
	assert.Equal(t, 1, *first.EpisodeInfo.Episode)

	q := searchQuery.Load().(url.Values)
	assert.Equal(t, "tt7366338", q.Get("search_imdb"))
	assert.Equal(t, "S01E01", q.Get("search_string"))
	assert.Equal(t, "tok1", q.Get("token"))
	assert.Equal(t, "json_extended", q.Get("format"))
}

func TestSearchTVNoResults(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("get_token") != "" {
			fmt.Fprint(w, `{"token": "tok1"}`)
			return
		}
		fmt.Fprint(w, `{"error": "No results found", "error_code": 20}`)
	})

	results, err := drainTV(t, p, provider.TVQuery{Title: "Nonexistent Show", Season: 1})
	require.NoError(t, err)
	assert.Empty(t, results)
}

// An invalid-token response triggers exactly one transparent refresh and a
// retry of the failing request.
func TestSearchTVTokenRefresh(t *testing.T) {
	var tokenRequests, searchRequests atomic.Int32

	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("get_token") != "" {
			n := tokenRequests.Add(1)
			fmt.Fprintf(w, `{"token": "tok%d"}`, n)
			return
		}
		searchRequests.Add(1)
		if r.URL.Query().Get("token") == "tok1" {
			fmt.Fprint(w, `{"error": "Invalid token", "error_code": 4}`)
			return
		}
		fmt.Fprint(w, torrentsBody)
	})

	results, err := drainTV(t, p, provider.TVQuery{ImdbID: "tt7366338", Season: 1})
	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.EqualValues(t, 2, tokenRequests.Load())
	assert.EqualValues(t, 2, searchRequests.Load())
}

func TestSearchTVTokenRejectedAfterRefresh(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("get_token") != "" {
			fmt.Fprint(w, `{"token": "tok"}`)
			return
		}
		fmt.Fprint(w, `{"error": "Invalid token", "error_code": 4}`)
	})

	_, err := drainTV(t, p, provider.TVQuery{ImdbID: "tt7366338", Season: 1})
	require.Error(t, err)

	var perr *provider.Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, provider.ErrCodeAuth, perr.Code)
}

func TestSearchTVRateLimitRetry(t *testing.T) {
	var searchRequests atomic.Int32

	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("get_token") != "" {
			fmt.Fprint(w, `{"token": "tok"}`)
			return
		}
		if searchRequests.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, torrentsBody)
	})

	results, err := drainTV(t, p, provider.TVQuery{ImdbID: "tt7366338", Season: 1})
	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.EqualValues(t, 2, searchRequests.Load())
}

func TestSearchTVRateLimitExhaustion(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("get_token") != "" {
			fmt.Fprint(w, `{"token": "tok"}`)
			return
		}
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := drainTV(t, p, provider.TVQuery{ImdbID: "tt7366338", Season: 1})
	require.Error(t, err)
	assert.True(t, provider.IsRateLimit(err))
}

// Idle time before a search must not let consecutive requests through
// back-to-back: the second paced call always waits a full interval.
func TestPaceSpacingAfterIdle(t *testing.T) {
	p := New(Config{BaseURL: "http://127.0.0.1:0", AppID: "riptide-test"}, zerolog.Nop())
	p.lastRequest = time.Now().Add(-10 * requestInterval)

	start := time.Now()
	require.NoError(t, p.pace(context.Background()))
	require.NoError(t, p.pace(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), requestInterval)
}

func TestSearchMoviesCategoryTranslation(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("get_token") != "" {
			fmt.Fprint(w, `{"token": "tok"}`)
			return
		}
		fmt.Fprint(w, `{
			"torrent_results": [
				{"title": "A.Movie.2020.1080p", "category": "Movies/x264/1080", "download": "magnet:?xt=a", "seeders": 10},
				{"title": "A.Movie.2020.REMUX", "category": "Movies/BD Remux", "download": "magnet:?xt=b", "seeders": 5},
				{"title": "A.Movie.2020", "category": "Something Unknown", "download": "magnet:?xt=c", "seeders": 1}
			],
			"error_code": 0
		}`)
	})

	out := make(chan provider.SearchResult, 8)
	err := p.SearchMovies(context.Background(), provider.MovieQuery{ImdbID: "tt0000001"}, out)
	close(out)
	require.NoError(t, err)

	var categories []string
	for r := range out {
		categories = append(categories, r.Category)
	}
	assert.Equal(t, []string{"Movies HD", "Movies Bluray", "Movies"}, categories)
}
