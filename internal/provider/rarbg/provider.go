// Package rarbg implements the torrentapi-style JSON provider. The upstream
// requires a short-lived app token; an expired token is reported through a
// sentinel error code and refreshed transparently for the single failing
// request.
package rarbg

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/riptide/riptide/internal/provider"
)

const (
	// Upstream error codes. Code 20 is "no results", not a failure.
	codeInvalidToken = 4
	codeTooManyReqs  = 5
	codeNoResults    = 20

	rateLimitRetries = 3
)

// Vars so tests can shorten the waits.
var (
	// The API allows one request per two seconds per token.
	requestInterval = 2 * time.Second
	rateLimitDelay  = 2 * time.Second
)

// categories translates upstream category labels into canonical ones.
// Unknown labels fall through to the raw value.
var categories = map[string]string{
	"TV Episodes":        "TV Episodes",
	"TV HD Episodes":     "TV HD Episodes",
	"TV UHD Episodes":    "TV UHD Episodes",
	"Movies/XVID":        "Movies SD",
	"Movies/x264":        "Movies SD",
	"Movies/XVID/720":    "Movies HD",
	"Movies/x264/720":    "Movies HD",
	"Movies/x264/1080":   "Movies HD",
	"Movies/x264/4k":     "Movies UHD",
	"Movies/x265/1080":   "Movies HD",
	"Movies/x265/4k":     "Movies UHD",
	"Movies/x265/4k/HDR": "Movies UHD",
	"Movies/Full BD":     "Movies Bluray",
	"Movies/BD Remux":    "Movies Bluray",
}

// Config holds provider settings.
type Config struct {
	BaseURL string
	AppID   string
	Timeout time.Duration
}

// Provider searches the upstream JSON API for movies and TV episodes.
type Provider struct {
	cfg        Config
	httpClient *http.Client
	logger     zerolog.Logger

	mu          sync.Mutex
	token       string
	lastRequest time.Time
}

// New creates a new provider.
func New(cfg Config, logger zerolog.Logger) *Provider {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Provider{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger.With().Str("component", "rarbg").Logger(),
	}
}

// Source returns the provider identity.
func (p *Provider) Source() provider.Source {
	return provider.SourceRarbg
}

// SearchTV searches for episodes of a show. Episode == nil queries the whole
// season.
func (p *Provider) SearchTV(ctx context.Context, q provider.TVQuery, out chan<- provider.SearchResult) error {
	params := url.Values{}
	params.Set("mode", "search")
	if q.ImdbID != "" {
		params.Set("search_imdb", q.ImdbID)
	} else {
		params.Set("search_string", q.Title)
	}
	marker := fmt.Sprintf("S%02d", q.Season)
	if q.Episode != nil {
		marker = fmt.Sprintf("S%02dE%02d", q.Season, *q.Episode)
	}
	params.Set("search_string", appendMarker(params.Get("search_string"), marker))
	params.Set("category", "tv")

	torrents, err := p.search(ctx, params)
	if err != nil {
		return err
	}
	for _, t := range torrents {
		if !provider.Send(ctx, out, p.normalize(t, "TV Episodes")) {
			return ctx.Err()
		}
	}
	return nil
}

// SearchMovies searches for a movie by IMDB id, falling back to the title.
func (p *Provider) SearchMovies(ctx context.Context, q provider.MovieQuery, out chan<- provider.SearchResult) error {
	params := url.Values{}
	params.Set("mode", "search")
	if q.ImdbID != "" {
		params.Set("search_imdb", q.ImdbID)
	} else {
		params.Set("search_string", q.Title)
	}
	params.Set("category", "movies")

	torrents, err := p.search(ctx, params)
	if err != nil {
		return err
	}
	for _, t := range torrents {
		if !provider.Send(ctx, out, p.normalize(t, "Movies")) {
			return ctx.Err()
		}
	}
	return nil
}

type torrent struct {
	Title       string `json:"title"`
	Category    string `json:"category"`
	Download    string `json:"download"`
	Seeders     int    `json:"seeders"`
	EpisodeInfo *struct {
		SeasonNum  string `json:"seasonnum"`
		EpisodeNum string `json:"epnum"`
	} `json:"episode_info"`
}

type apiResponse struct {
	Torrents     []torrent `json:"torrent_results"`
	ErrorMessage string    `json:"error"`
	ErrorCode    int       `json:"error_code"`
}

// search performs one API request, refreshing the token once if the upstream
// reports it expired and backing off on rate limiting.
func (p *Provider) search(ctx context.Context, params url.Values) ([]torrent, error) {
	token, err := p.ensureToken(ctx)
	if err != nil {
		return nil, err
	}

	refreshed := false
	for attempt := 0; ; attempt++ {
		resp, err := p.doRequest(ctx, params, token)
		if err != nil {
			if provider.IsRateLimit(err) && attempt < rateLimitRetries {
				select {
				case <-time.After(rateLimitDelay):
					continue
				case <-ctx.Done():
					return nil, ctx.Err()
				}
			}
			return nil, err
		}

		switch resp.ErrorCode {
		case 0:
			return resp.Torrents, nil
		case codeNoResults:
			return nil, nil
		case codeInvalidToken:
			if refreshed {
				return nil, provider.NewAuthError(provider.SourceRarbg, fmt.Errorf("token rejected after refresh"))
			}
			refreshed = true
			token, err = p.refreshToken(ctx)
			if err != nil {
				return nil, err
			}
		case codeTooManyReqs:
			if attempt >= rateLimitRetries {
				return nil, provider.NewRateLimitError(provider.SourceRarbg)
			}
			select {
			case <-time.After(rateLimitDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		default:
			return nil, provider.NewSearchError(provider.SourceRarbg,
				fmt.Errorf("upstream error %d: %s", resp.ErrorCode, resp.ErrorMessage))
		}
	}
}

// doRequest issues one paced API call.
func (p *Provider) doRequest(ctx context.Context, params url.Values, token string) (*apiResponse, error) {
	if err := p.pace(ctx); err != nil {
		return nil, err
	}

	query := url.Values{}
	for k, v := range params {
		query[k] = v
	}
	query.Set("app_id", p.cfg.AppID)
	query.Set("token", token)
	query.Set("format", "json_extended")
	query.Set("sort", "seeders")
	query.Set("limit", "100")

	reqURL := fmt.Sprintf("%s?%s", p.cfg.BaseURL, query.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, provider.NewNetworkError(provider.SourceRarbg, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, provider.NewRateLimitError(provider.SourceRarbg)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, provider.NewSearchError(provider.SourceRarbg,
			fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	var decoded apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, provider.NewParseError(provider.SourceRarbg, "failed to decode response", err)
	}
	return &decoded, nil
}

// pace enforces the upstream's minimum request interval.
func (p *Provider) pace(ctx context.Context) error {
	p.mu.Lock()
	wait := requestInterval - time.Since(p.lastRequest)
	if wait < 0 {
		wait = 0
	}
	p.lastRequest = time.Now().Add(wait)
	p.mu.Unlock()

	if wait == 0 {
		return nil
	}
	select {
	case <-time.After(wait):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ensureToken returns the cached token, fetching one on first use.
func (p *Provider) ensureToken(ctx context.Context) (string, error) {
	p.mu.Lock()
	token := p.token
	p.mu.Unlock()
	if token != "" {
		return token, nil
	}
	return p.refreshToken(ctx)
}

// refreshToken fetches a new app token from the upstream.
func (p *Provider) refreshToken(ctx context.Context) (string, error) {
	if err := p.pace(ctx); err != nil {
		return "", err
	}

	reqURL := fmt.Sprintf("%s?get_token=get_token&app_id=%s", p.cfg.BaseURL, url.QueryEscape(p.cfg.AppID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", provider.NewNetworkError(provider.SourceRarbg, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", provider.NewAuthError(provider.SourceRarbg,
			fmt.Errorf("token request returned status %d", resp.StatusCode))
	}

	var decoded struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", provider.NewParseError(provider.SourceRarbg, "failed to decode token response", err)
	}
	if decoded.Token == "" {
		return "", provider.NewAuthError(provider.SourceRarbg, fmt.Errorf("upstream returned empty token"))
	}

	p.mu.Lock()
	p.token = decoded.Token
	p.mu.Unlock()

	p.logger.Debug().Msg("refreshed app token")
	return decoded.Token, nil
}

// normalize converts an upstream torrent into a SearchResult.
func (p *Provider) normalize(t torrent, fallbackCategory string) provider.SearchResult {
	category, ok := categories[t.Category]
	if !ok {
		category = fallbackCategory
	}

	var info provider.EpisodeInfo
	if t.EpisodeInfo != nil {
		if n, err := strconv.Atoi(t.EpisodeInfo.SeasonNum); err == nil {
			info.Season = provider.Int(n)
		}
		if n, err := strconv.Atoi(t.EpisodeInfo.EpisodeNum); err == nil {
			info.Episode = provider.Int(n)
		}
	}

	return provider.SearchResult{
		Source:      provider.SourceRarbg,
		Title:       t.Title,
		Seeders:     max(t.Seeders, 0),
		Download:    t.Download,
		Category:    category,
		EpisodeInfo: info,
	}
}

func appendMarker(s, marker string) string {
	if s == "" {
		return marker
	}
	return s + " " + marker
}
