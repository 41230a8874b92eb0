// Package metadata resolves canonical media identifiers into the
// cross-reference ids and episode listings the search core needs.
package metadata

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/riptide/riptide/internal/metadata/tmdb"
)

// Episode is one entry of a season's episode list, in airing order.
type Episode struct {
	Number  int    `json:"episode_number"`
	Name    string `json:"name"`
	AirDate string `json:"air_date"`
}

// MovieIdentity is the resolved identity of a movie.
type MovieIdentity struct {
	TmdbID int
	ImdbID string
	Title  string
	Year   int
}

// SeriesIdentity is the resolved identity of a series.
type SeriesIdentity struct {
	TmdbID int
	ImdbID string
	Title  string
}

// Lookuper is the subset of the TMDB client the service depends on.
type Lookuper interface {
	GetMovie(ctx context.Context, id int) (*tmdb.MovieDetails, error)
	GetSeries(ctx context.Context, id int) (*tmdb.TVDetails, error)
	GetSeasonDetails(ctx context.Context, seriesID, seasonNumber int) (*tmdb.SeasonDetails, error)
}

// Service fronts the movie-database client with a TTL cache.
type Service struct {
	client Lookuper
	cache  *Cache
	logger zerolog.Logger
}

// NewService creates a new metadata service. The cache is injected so the
// process owns exactly one.
func NewService(client Lookuper, cache *Cache, logger zerolog.Logger) *Service {
	return &Service{
		client: client,
		cache:  cache,
		logger: logger.With().Str("component", "metadata").Logger(),
	}
}

// ClearCache drops every cached lookup. Intended for test isolation.
func (s *Service) ClearCache() {
	s.cache.Clear()
}

// ResolveMovie maps a canonical movie id to its cross-reference identity.
func (s *Service) ResolveMovie(ctx context.Context, tmdbID int) (*MovieIdentity, error) {
	key := "movie:" + strconv.Itoa(tmdbID)
	if v, ok := s.cache.Get(key); ok {
		if id, ok := v.(*MovieIdentity); ok {
			return id, nil
		}
	}

	details, err := s.client.GetMovie(ctx, tmdbID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve movie %d: %w", tmdbID, err)
	}

	year := 0
	if len(details.ReleaseDate) >= 4 {
		year, _ = strconv.Atoi(details.ReleaseDate[:4])
	}
	identity := &MovieIdentity{
		TmdbID: details.ID,
		ImdbID: details.ImdbID,
		Title:  details.Title,
		Year:   year,
	}

	s.cache.Set(key, identity)
	return identity, nil
}

// ResolveSeries maps a canonical series id to its cross-reference identity.
func (s *Service) ResolveSeries(ctx context.Context, tmdbID int) (*SeriesIdentity, error) {
	key := "series:" + strconv.Itoa(tmdbID)
	if v, ok := s.cache.Get(key); ok {
		if id, ok := v.(*SeriesIdentity); ok {
			return id, nil
		}
	}

	details, err := s.client.GetSeries(ctx, tmdbID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve series %d: %w", tmdbID, err)
	}

	identity := &SeriesIdentity{
		TmdbID: details.ID,
		Title:  details.Name,
	}
	if details.ExternalIDs != nil {
		identity.ImdbID = details.ExternalIDs.ImdbID
	}

	s.cache.Set(key, identity)
	return identity, nil
}

// SeasonEpisodes returns the ordered episode list of one season.
func (s *Service) SeasonEpisodes(ctx context.Context, tmdbID, season int) ([]Episode, error) {
	key := fmt.Sprintf("season:%d:%d", tmdbID, season)
	if v, ok := s.cache.Get(key); ok {
		if eps, ok := v.([]Episode); ok {
			return eps, nil
		}
	}

	details, err := s.client.GetSeasonDetails(ctx, tmdbID, season)
	if err != nil {
		return nil, fmt.Errorf("failed to get season %d of series %d: %w", season, tmdbID, err)
	}

	episodes := make([]Episode, len(details.Episodes))
	for i, ep := range details.Episodes {
		episodes[i] = Episode{
			Number:  ep.EpisodeNumber,
			Name:    ep.Name,
			AirDate: ep.AirDate,
		}
	}

	s.cache.Set(key, episodes)
	return episodes, nil
}
