package history

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/riptide/riptide/internal/metadata"
)

// SentinelID marks synthetic episode rows produced by season-pack expansion.
// These rows do not exist in the database.
const SentinelID int64 = -1

var episodeMarker = regexp.MustCompile(`(?i)S\d{1,2}E\d{1,2}`)

// EpisodeLister supplies ordered episode metadata for one season of a show.
type EpisodeLister interface {
	SeasonEpisodes(ctx context.Context, tmdbID, season int) ([]metadata.Episode, error)
}

// Resolver expands whole-season download records into per-episode rows for
// presentation. It reads episode metadata but never mutates persisted state.
type Resolver struct {
	episodes EpisodeLister
	logger   zerolog.Logger
}

// NewResolver creates a season-pack resolver.
func NewResolver(episodes EpisodeLister, logger zerolog.Logger) *Resolver {
	return &Resolver{
		episodes: episodes,
		logger:   logger.With().Str("component", "seasonpack").Logger(),
	}
}

// Resolve returns the season's episode rows ready for display. When the input
// is exactly one record with no episode number (a season pack), it is replaced
// by one synthetic record per episode of that season, each carrying SentinelID
// and inheriting the pack's download metadata. Any other input is returned
// unchanged.
func (r *Resolver) Resolve(ctx context.Context, entries []EpisodeDetails) ([]EpisodeDetails, error) {
	if len(entries) != 1 || entries[0].Episode != nil {
		return entries, nil
	}

	pack := entries[0]
	episodes, err := r.episodes.SeasonEpisodes(ctx, pack.TmdbID, pack.Season)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve season pack: %w", err)
	}

	r.logger.Debug().
		Int("tmdbId", pack.TmdbID).
		Int("season", pack.Season).
		Int("episodes", len(episodes)).
		Msg("expanding season pack")

	title := NormalizeTitle(pack.ReleaseTitle, episodes)
	expanded := make([]EpisodeDetails, 0, len(episodes))
	for _, ep := range episodes {
		num := ep.Number
		expanded = append(expanded, EpisodeDetails{
			ID:           SentinelID,
			TmdbID:       pack.TmdbID,
			ShowTitle:    pack.ShowTitle,
			Season:       pack.Season,
			Episode:      &num,
			EpisodeName:  ep.Name,
			AirDate:      ep.AirDate,
			ReleaseTitle: title,
			Source:       pack.Source,
			Category:     pack.Category,
			Download:     pack.Download,
		})
	}
	return expanded, nil
}

// NormalizeTitle rewrites a release title into a generic season-pack form:
// the SxxEyy marker becomes "S00E00" and any dotted episode-name tokens
// become "TITLE". Titles without a marker are returned as-is apart from name
// replacement.
func NormalizeTitle(title string, episodes []metadata.Episode) string {
	out := episodeMarker.ReplaceAllString(title, "S00E00")
	for _, ep := range episodes {
		name := strings.TrimSpace(ep.Name)
		if name == "" {
			continue
		}
		dotted := strings.Join(strings.Fields(name), ".")
		out = replaceFold(out, dotted, "TITLE")
	}
	return out
}

// replaceFold replaces all case-insensitive occurrences of old in s. The scan
// walks s itself so byte offsets stay valid even when case folding changes a
// rune's encoded length.
func replaceFold(s, old, new string) string {
	if old == "" {
		return s
	}
	var b strings.Builder
	last := 0
	for i := 0; i < len(s); {
		end, ok := matchFold(s, i, old)
		if !ok {
			_, size := utf8.DecodeRuneInString(s[i:])
			i += size
			continue
		}
		b.WriteString(s[last:i])
		b.WriteString(new)
		i = end
		last = end
	}
	if last == 0 {
		return s
	}
	b.WriteString(s[last:])
	return b.String()
}

// matchFold reports whether old matches s at byte offset i ignoring case,
// returning the offset just past the match.
func matchFold(s string, i int, old string) (int, bool) {
	for j := 0; j < len(old); {
		if i >= len(s) {
			return 0, false
		}
		sr, sn := utf8.DecodeRuneInString(s[i:])
		or, on := utf8.DecodeRuneInString(old[j:])
		if unicode.ToLower(sr) != unicode.ToLower(or) {
			return 0, false
		}
		i += sn
		j += on
	}
	return i, true
}
