package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riptide/riptide/internal/auth"
	"github.com/riptide/riptide/internal/config"
	"github.com/riptide/riptide/internal/history"
	applog "github.com/riptide/riptide/internal/logger"
	"github.com/riptide/riptide/internal/metadata"
	"github.com/riptide/riptide/internal/plex"
	"github.com/riptide/riptide/internal/provider"
	"github.com/riptide/riptide/internal/scheduler"
	"github.com/riptide/riptide/internal/search"
	"github.com/riptide/riptide/internal/stream"
	"github.com/riptide/riptide/internal/testutil"
)

type stubEpisodeLister struct {
	episodes []metadata.Episode
}

func (s *stubEpisodeLister) SeasonEpisodes(context.Context, int, int) ([]metadata.Episode, error) {
	return s.episodes, nil
}

type stubResolver struct{}

func (stubResolver) ResolveMovie(context.Context, int) (*metadata.MovieIdentity, error) {
	return &metadata.MovieIdentity{}, nil
}

func (stubResolver) ResolveSeries(context.Context, int) (*metadata.SeriesIdentity, error) {
	return &metadata.SeriesIdentity{}, nil
}

type stubSearcher struct{}

func (stubSearcher) Stream(_ context.Context, _ search.Request) <-chan provider.SearchResult {
	out := make(chan provider.SearchResult)
	close(out)
	return out
}

type stubPlexFinder struct{}

func (stubPlexFinder) Find(context.Context, int, string) (*plex.Item, error) {
	return nil, plex.ErrNotFound
}

func newTestServer(t *testing.T) *Server {
	t.Helper()

	tdb := testutil.NewTestDB(t)

	authService, err := auth.NewService(tdb.Conn, "")
	require.NoError(t, err)

	historyService := history.NewService(tdb.Conn, zerolog.Nop())
	resolver := history.NewResolver(&stubEpisodeLister{episodes: []metadata.Episode{
		{Number: 1, Name: "Pilot"},
		{Number: 2, Name: "Second"},
	}}, zerolog.Nop())

	streamHandler := stream.NewHandler(authService, stubResolver{}, stubSearcher{}, stubPlexFinder{}, zerolog.Nop())

	sched, err := scheduler.New(zerolog.Nop())
	require.NoError(t, err)

	cfg := config.Default()
	srv := NewServer(cfg, authService, historyService, resolver, streamHandler, sched, applog.NewCapture(100), "test", zerolog.Nop())
	return srv
}

func doRequest(srv *Server, method, path, token string, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}

	req := httptest.NewRequest(method, path, reader)
	req.RemoteAddr = "127.0.0.1:52000"
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	srv.Echo().ServeHTTP(rec, req)
	return rec
}

func mintToken(t *testing.T, srv *Server) string {
	t.Helper()

	rec := doRequest(srv, http.MethodPost, "/api/auth/token", "", `{"username":"tester"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp["token"])
	return resp["token"]
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(srv, http.MethodGet, "/api/health", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
}

func TestMintTokenRejectsRemoteClients(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/token", strings.NewReader(`{"username":"tester"}`))
	req.RemoteAddr = "203.0.113.9:41000"
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Echo().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHistoryRequiresToken(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(srv, http.MethodGet, "/api/history", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRecordAndListDownloads(t *testing.T) {
	srv := newTestServer(t)
	token := mintToken(t, srv)

	body := `{
		"media_type": "movie",
		"tmdb_id": 603,
		"imdb_id": "tt0133093",
		"title": "The.Matrix.1999.1080p-GRP",
		"source": "rarbg",
		"category": "Movies HD",
		"download": "magnet:?xt=urn:btih:abc"
	}`
	rec := doRequest(srv, http.MethodPost, "/api/downloads", token, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created history.Download
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.NotZero(t, created.ID)
	assert.Equal(t, history.MediaTypeMovie, created.MediaType)

	rec = doRequest(srv, http.MethodGet, "/api/history", token, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var list history.ListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Items, 1)
	assert.Equal(t, created.ID, list.Items[0].ID)
	assert.EqualValues(t, 1, list.TotalCount)
}

func TestRecordDownloadValidation(t *testing.T) {
	srv := newTestServer(t)
	token := mintToken(t, srv)

	rec := doRequest(srv, http.MethodPost, "/api/downloads", token, `{"media_type":"bogus"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp struct {
		Message string   `json:"message"`
		Errors  []string `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Errors)
}

func TestSeasonHistoryExpandsPack(t *testing.T) {
	srv := newTestServer(t)
	token := mintToken(t, srv)

	body := `{
		"media_type": "episode",
		"tmdb_id": 87108,
		"show_title": "Chernobyl",
		"title": "Chernobyl.S01.1080p-NTb",
		"source": "eztv",
		"download": "magnet:?xt=urn:btih:pack",
		"season": 1
	}`
	rec := doRequest(srv, http.MethodPost, "/api/downloads", token, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = doRequest(srv, http.MethodGet, "/api/history/series/87108/season/1", token, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Items []history.EpisodeDetails `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Items, 2)
	for i, item := range resp.Items {
		assert.Equal(t, history.SentinelID, item.ID)
		require.NotNil(t, item.Episode)
		assert.Equal(t, i+1, *item.Episode)
		assert.Equal(t, "Chernobyl", item.ShowTitle)
	}
}

func TestRecentLogsEndpoint(t *testing.T) {
	srv := newTestServer(t)
	token := mintToken(t, srv)

	_, err := srv.logCapture.Write([]byte(`{"time":"2026-08-31T00:00:00Z","level":"info","component":"api","message":"hello"}`))
	require.NoError(t, err)

	rec := doRequest(srv, http.MethodGet, "/api/logs", token, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Items []applog.Entry `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "hello", resp.Items[0].Message)
	assert.Equal(t, "api", resp.Items[0].Component)
}

func TestSeasonHistoryKeepsPerEpisodeEntries(t *testing.T) {
	srv := newTestServer(t)
	token := mintToken(t, srv)

	for ep := 1; ep <= 2; ep++ {
		body := fmt.Sprintf(`{
			"media_type": "episode",
			"tmdb_id": 87108,
			"show_title": "Chernobyl",
			"title": "Chernobyl.S01E0%d.1080p-NTb",
			"source": "eztv",
			"download": "magnet:?xt=urn:btih:e%d",
			"season": 1,
			"episode": %d
		}`, ep, ep, ep)
		rec := doRequest(srv, http.MethodPost, "/api/downloads", token, body)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	rec := doRequest(srv, http.MethodGet, "/api/history/series/87108/season/1", token, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Items []history.EpisodeDetails `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Items, 2)
	for _, item := range resp.Items {
		assert.NotEqual(t, history.SentinelID, item.ID)
	}
}
