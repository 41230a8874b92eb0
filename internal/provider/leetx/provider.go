// Package leetx implements the HTML-scraping provider that needs a second
// request per result: the search listing carries seeders and category, the
// detail page carries the magnet link. Results are forwarded one by one as
// detail pages resolve, so the consumer sees page-one results before later
// pages are fetched.
package leetx

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

const maxPages = 3

// categories translates upstream category labels into canonical ones.
var categories = map[string]string{
	"TV":          "TV Episodes",
	"Movies":      "Movies",
	"Documentary": "TV Episodes",
	"Anime":       "TV Episodes",
}

var episodeMarker = regexp.MustCompile(`(?i)S(\d{1,2})E(\d{1,2})`)

// Config holds provider settings.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Provider scrapes the upstream search listing and detail pages.
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
		logger:     logger.With().Str("component", "1337x").Logger(),
	}
}

// Source returns the provider identity.
func (p *Provider) Source() provider.Source {
	return provider.SourceLeetx
}

// SearchTV searches for episodes of a show by name.
func (p *Provider) SearchTV(ctx context.Context, q provider.TVQuery, out chan<- provider.SearchResult) error {
	term := fmt.Sprintf("%s S%02d", q.Title, q.Season)
	if q.Episode != nil {
		term = fmt.Sprintf("%s S%02dE%02d", q.Title, q.Season, *q.Episode)
	}
	return p.paginate(ctx, term, "TV", out)
}

// SearchMovies searches for a movie by name and year.
func (p *Provider) SearchMovies(ctx context.Context, q provider.MovieQuery, out chan<- provider.SearchResult) error {
	term := q.Title
	if q.Year > 0 {
		term = fmt.Sprintf("%s %d", q.Title, q.Year)
	}
	return p.paginate(ctx, term, "Movies", out)
}

// listingRow is one parsed row of a search listing page.
type listingRow struct {
	title      string
	detailPath string
	seeders    int
	category   string
}

// paginate walks listing pages, resolving each row's magnet from its detail
// page and forwarding the result before touching the next row.
func (p *Provider) paginate(ctx context.Context, term, wantCategory string, out chan<- provider.SearchResult) error {
	for page := 1; page <= maxPages; page++ {
		rows, err := p.fetchListing(ctx, term, page)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}

		for _, row := range rows {
			if row.category != "" && row.category != wantCategory {
				continue
			}
			magnet, err := p.fetchMagnet(ctx, row.detailPath)
			if err != nil {
				// A broken detail page loses one result, not the sequence.
				p.logger.Warn().Err(err).Str("title", row.title).Msg("skipping result without magnet")
				continue
			}

			category, ok := categories[row.category]
			if !ok {
				category = categories[wantCategory]
			}
			result := provider.SearchResult{
				Source:      provider.SourceLeetx,
				Title:       row.title,
				Seeders:     max(row.seeders, 0),
				Download:    magnet,
				Category:    category,
				EpisodeInfo: parseEpisodeInfo(row.title),
			}
			if !provider.Send(ctx, out, result) {
				return ctx.Err()
			}
		}
	}
	return nil
}

// fetchListing retrieves and parses one search listing page.
func (p *Provider) fetchListing(ctx context.Context, term string, page int) ([]listingRow, error) {
	reqURL := fmt.Sprintf("%s/search/%s/%d/", p.cfg.BaseURL, url.PathEscape(term), page)
	doc, err := p.fetchDocument(ctx, reqURL)
	if err != nil {
		return nil, err
	}

	var rows []listingRow
	doc.Find("table.table-list tbody tr").Each(func(_ int, tr *goquery.Selection) {
		link := tr.Find("td.name a").Last()
		title := strings.TrimSpace(link.Text())
		href, _ := link.Attr("href")
		if title == "" || href == "" {
			return
		}
		seeders, _ := strconv.Atoi(strings.TrimSpace(tr.Find("td.seeds").First().Text()))
		category := strings.TrimSpace(tr.Find("td.name i").AttrOr("data-category", ""))

		rows = append(rows, listingRow{
			title:      title,
			detailPath: href,
			seeders:    seeders,
			category:   category,
		})
	})

	p.logger.Debug().Int("page", page).Int("rows", len(rows)).Msg("parsed listing page")
	return rows, nil
}

// fetchMagnet retrieves a detail page and extracts its magnet link.
func (p *Provider) fetchMagnet(ctx context.Context, detailPath string) (string, error) {
	doc, err := p.fetchDocument(ctx, p.cfg.BaseURL+detailPath)
	if err != nil {
		return "", err
	}
	magnet, ok := doc.Find("a[href^='magnet:']").First().Attr("href")
	if !ok {
		return "", provider.NewParseError(provider.SourceLeetx, "detail page has no magnet link", nil)
	}
	return magnet, nil
}

// fetchDocument retrieves a page and parses it.
func (p *Provider) fetchDocument(ctx context.Context, reqURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, provider.NewNetworkError(provider.SourceLeetx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, provider.NewRateLimitError(provider.SourceLeetx)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, provider.NewSearchError(provider.SourceLeetx,
			fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, provider.NewParseError(provider.SourceLeetx, "failed to parse page", err)
	}
	return doc, nil
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
