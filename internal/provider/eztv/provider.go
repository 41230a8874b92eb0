// Package eztv implements the TV-only provider that keys on the upstream's
// own show index. The canonical show name is resolved against the index by
// Levenshtein ratio; anything below the similarity threshold yields nothing
// rather than risking a wrong match.
package eztv

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	levenshtein "github.com/ka-weihe/fast-levenshtein"
	"github.com/rs/zerolog"

	"github.com/riptide/riptide/internal/provider"
)

// matchThreshold is the minimum similarity ratio (0-100) for accepting a
// show-index entry as the requested show.
const matchThreshold = 95

var episodeMarker = regexp.MustCompile(`(?i)S(\d{1,2})E(\d{1,2})`)

// Config holds provider settings.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Provider scrapes the upstream show index and show pages.
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
		logger:     logger.With().Str("component", "eztv").Logger(),
	}
}

// Source returns the provider identity.
func (p *Provider) Source() provider.Source {
	return provider.SourceEztv
}

// SearchTV resolves the show against the upstream index and scrapes its
// episode listing for the requested season, or episode when given.
func (p *Provider) SearchTV(ctx context.Context, q provider.TVQuery, out chan<- provider.SearchResult) error {
	showPath, err := p.resolveShow(ctx, q.Title)
	if err != nil {
		return err
	}
	if showPath == "" {
		p.logger.Debug().Str("title", q.Title).Msg("no show-index match above threshold")
		return nil
	}

	episodes, err := p.fetchShowEpisodes(ctx, showPath)
	if err != nil {
		return err
	}

	for _, r := range episodes {
		if r.EpisodeInfo.Season == nil || *r.EpisodeInfo.Season != q.Season {
			continue
		}
		if q.Episode != nil && (r.EpisodeInfo.Episode == nil || *r.EpisodeInfo.Episode != *q.Episode) {
			continue
		}
		if !provider.Send(ctx, out, r) {
			return ctx.Err()
		}
	}
	return nil
}

// showEntry is one row of the upstream show index.
type showEntry struct {
	name string
	path string
}

// resolveShow returns the show-page path for the closest index entry, or ""
// when nothing reaches the similarity threshold.
func (p *Provider) resolveShow(ctx context.Context, title string) (string, error) {
	shows, err := p.fetchShowIndex(ctx)
	if err != nil {
		return "", err
	}

	want := normalizeName(title)
	best := ""
	bestRatio := 0
	for _, s := range shows {
		r := ratio(want, normalizeName(s.name))
		if r > bestRatio {
			bestRatio = r
			best = s.path
		}
	}

	if bestRatio < matchThreshold {
		return "", nil
	}
	p.logger.Debug().Str("title", title).Str("path", best).Int("ratio", bestRatio).Msg("resolved show")
	return best, nil
}

// fetchShowIndex scrapes the upstream show list.
func (p *Provider) fetchShowIndex(ctx context.Context) ([]showEntry, error) {
	doc, err := p.fetchDocument(ctx, p.cfg.BaseURL+"/showlist/")
	if err != nil {
		return nil, err
	}

	var shows []showEntry
	doc.Find("a[href^='/shows/']").Each(func(_ int, link *goquery.Selection) {
		href, _ := link.Attr("href")
		name := strings.TrimSpace(link.Text())
		if href == "" || name == "" {
			return
		}
		shows = append(shows, showEntry{name: name, path: href})
	})

	if len(shows) == 0 {
		return nil, provider.NewParseError(provider.SourceEztv, "show index contained no entries", nil)
	}
	return shows, nil
}

// fetchShowEpisodes scrapes every release row of a show page.
func (p *Provider) fetchShowEpisodes(ctx context.Context, showPath string) ([]provider.SearchResult, error) {
	doc, err := p.fetchDocument(ctx, p.cfg.BaseURL+showPath)
	if err != nil {
		return nil, err
	}

	var results []provider.SearchResult
	doc.Find("tr.forum_header_border").Each(func(_ int, row *goquery.Selection) {
		title := strings.TrimSpace(row.Find("a.epinfo").Text())
		if title == "" {
			return
		}
		magnet, _ := row.Find("a.magnet").Attr("href")
		if magnet == "" {
			return
		}
		seeders, _ := strconv.Atoi(strings.TrimSpace(row.Find("td").Last().Text()))

		results = append(results, provider.SearchResult{
			Source:      provider.SourceEztv,
			Title:       title,
			Seeders:     max(seeders, 0),
			Download:    magnet,
			Category:    categorize(title),
			EpisodeInfo: parseEpisodeInfo(title),
		})
	})
	return results, nil
}

// fetchDocument retrieves a page and parses it.
func (p *Provider) fetchDocument(ctx context.Context, reqURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, provider.NewNetworkError(provider.SourceEztv, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, provider.NewRateLimitError(provider.SourceEztv)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, provider.NewSearchError(provider.SourceEztv,
			fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, provider.NewParseError(provider.SourceEztv, "failed to parse page", err)
	}
	return doc, nil
}

// categorize maps the quality string embedded in a release title onto a
// canonical category label.
func categorize(title string) string {
	lower := strings.ToLower(title)
	switch {
	case strings.Contains(lower, "2160p"), strings.Contains(lower, "4k"):
		return "TV UHD Episodes"
	case strings.Contains(lower, "1080p"), strings.Contains(lower, "720p"):
		return "TV HD Episodes"
	default:
		return "TV Episodes"
	}
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

// ratio is the Levenshtein similarity of two strings on a 0-100 scale.
func ratio(a, b string) int {
	if a == b {
		return 100
	}
	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if longest == 0 {
		return 100
	}
	dist := levenshtein.Distance(a, b)
	return (longest - dist) * 100 / longest
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
