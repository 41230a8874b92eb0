// Package kickass implements the HTML-scraping provider keyed on IMDB ids.
package kickass

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"github.com/riptide/riptide/internal/provider"
)

const maxPages = 5

// categories translates upstream category labels into canonical ones.
var categories = map[string]string{
	"TV":             "TV Episodes",
	"HD - TV shows":  "TV HD Episodes",
	"UHD - TV shows": "TV UHD Episodes",
	"Movies":         "Movies",
	"HD - Movies":    "Movies HD",
	"UHD - Movies":   "Movies UHD",
	"Anime":          "TV Episodes",
}

var episodeMarker = regexp.MustCompile(`(?i)S(\d{1,2})E(\d{1,2})`)

// Config holds provider settings.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Provider scrapes the upstream search listing. Every search is keyed on the
// IMDB cross-reference id; without one the provider yields nothing.
type Provider struct {
	cfg        Config
	httpClient *http.Client
	logger     zerolog.Logger
}

// New creates a new provider.
func New(cfg Config, logger zerolog.Logger) *Provider {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Provider{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger.With().Str("component", "kickass").Logger(),
	}
}

// Source returns the provider identity.
func (p *Provider) Source() provider.Source {
	return provider.SourceKickass
}

// SearchTV searches for episodes of a show. An empty IMDB id yields no
// results and makes no network call.
func (p *Provider) SearchTV(ctx context.Context, q provider.TVQuery, out chan<- provider.SearchResult) error {
	if q.ImdbID == "" {
		return nil
	}
	term := fmt.Sprintf("imdb:%s category:tv", strings.TrimPrefix(q.ImdbID, "tt"))
	return p.paginate(ctx, term, out, func(r *provider.SearchResult) bool {
		if r.EpisodeInfo.Season == nil || *r.EpisodeInfo.Season != q.Season {
			return false
		}
		if q.Episode != nil && (r.EpisodeInfo.Episode == nil || *r.EpisodeInfo.Episode != *q.Episode) {
			return false
		}
		return true
	})
}

// SearchMovies searches for a movie. An empty IMDB id yields no results and
// makes no network call.
func (p *Provider) SearchMovies(ctx context.Context, q provider.MovieQuery, out chan<- provider.SearchResult) error {
	if q.ImdbID == "" {
		return nil
	}
	term := fmt.Sprintf("imdb:%s category:movies", strings.TrimPrefix(q.ImdbID, "tt"))
	return p.paginate(ctx, term, out, nil)
}

// paginate walks listing pages until the upstream runs out of rows, forwarding
// rows that pass keep (nil keeps everything).
func (p *Provider) paginate(ctx context.Context, term string, out chan<- provider.SearchResult, keep func(*provider.SearchResult) bool) error {
	for page := 1; page <= maxPages; page++ {
		results, err := p.fetchPage(ctx, term, page)
		if err != nil {
			return err
		}
		if len(results) == 0 {
			return nil
		}
		for i := range results {
			if keep != nil && !keep(&results[i]) {
				continue
			}
			if !provider.Send(ctx, out, results[i]) {
				return ctx.Err()
			}
		}
	}
	return nil
}

// fetchPage retrieves and parses one listing page.
func (p *Provider) fetchPage(ctx context.Context, term string, page int) ([]provider.SearchResult, error) {
	reqURL := fmt.Sprintf("%s/usearch/%s/%d/?field=seeders&sorder=desc",
		p.cfg.BaseURL, url.PathEscape(term), page)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, provider.NewNetworkError(provider.SourceKickass, err)
	}
	defer resp.Body.Close()

	// The upstream answers 404 for a page past the last one.
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, provider.NewRateLimitError(provider.SourceKickass)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, provider.NewSearchError(provider.SourceKickass,
			fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, provider.NewParseError(provider.SourceKickass, "failed to parse listing", err)
	}

	var results []provider.SearchResult
	doc.Find("table.data tr").Each(func(_ int, row *goquery.Selection) {
		title := strings.TrimSpace(row.Find("a.cellMainLink").Text())
		if title == "" {
			return
		}

		magnet, _ := row.Find("a[href^='magnet:']").Attr("href")
		if magnet == "" {
			return
		}

		seeders, _ := strconv.Atoi(strings.TrimSpace(row.Find("td.green").First().Text()))

		rawCategory := strings.TrimSpace(row.Find("span.cat a").First().Text())
		category, ok := categories[rawCategory]
		if !ok {
			category = rawCategory
		}

		results = append(results, provider.SearchResult{
			Source:      provider.SourceKickass,
			Title:       title,
			Seeders:     max(seeders, 0),
			Download:    magnet,
			Category:    category,
			EpisodeInfo: parseEpisodeInfo(title),
		})
	})

	p.logger.Debug().Int("page", page).Int("results", len(results)).Msg("parsed listing page")
	return results, nil
}

// parseEpisodeInfo extracts a SxxEyy marker from a release title.
func parseEpisodeInfo(title string) provider.EpisodeInfo {
	m := episodeMarker.FindStringSubmatch(title)
	if m == nil {
		return provider.EpisodeInfo{}
	}
	season, _ := strconv.Atoi(m[1])
	episode, _ := strconv.Atoi(m[2])
	return provider.EpisodeInfo{Season: provider.Int(season), Episode: provider.Int(episode)}
}
