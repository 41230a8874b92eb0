// Package search fans a request out across every capable provider and merges
// their streamed results into a single arrival-ordered sequence.
package search

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/riptide/riptide/internal/provider"
)

// MediaType discriminates search requests.
type MediaType string

const (
	MediaTypeMovie  MediaType = "movie"
	MediaTypeSeries MediaType = "series"
)

// Request describes one aggregation call.
type Request struct {
	Type   MediaType
	TmdbID int
	ImdbID string
	Title  string
	Year   int
	Season int
	// Episode is nil for movies and whole-season queries.
	Episode *int
}

// resultBuffer smooths producer bursts; correctness does not depend on it.
const resultBuffer = 64

// taskState tracks the lifecycle of one provider task within an aggregation
// call.
type taskState int32

const (
	taskPending taskState = iota
	taskRunning
	taskCompletedOK
	taskCompletedError
)

// task is the ephemeral per-(provider, request) runtime entity. It lives for
// the duration of a single aggregation call and is owned by the Service.
type task struct {
	source provider.Source
	state  atomic.Int32
}

func (t *task) setState(s taskState) { t.state.Store(int32(s)) }

// Service runs concurrent searches across the provider registry.
type Service struct {
	registry *provider.Registry
	logger   zerolog.Logger
	active   atomic.Int32
}

// NewService creates a new aggregation service.
func NewService(registry *provider.Registry, logger zerolog.Logger) *Service {
	return &Service{
		registry: registry,
		logger:   logger.With().Str("component", "search").Logger(),
	}
}

// ActiveTasks returns the number of provider tasks currently running across
// all aggregation calls.
func (s *Service) ActiveTasks() int {
	return int(s.active.Load())
}

// Stream launches one task per capability-matching provider and returns a
// channel that carries every result in arrival order. The channel closes only
// after every task has finished and every buffered element has been
// delivered. A failing provider is logged and contributes nothing further; it
// never blocks or cancels its siblings. Cancellation of ctx stops all
// outstanding tasks promptly; the aggregator itself imposes no timeout.
func (s *Service) Stream(ctx context.Context, req Request) <-chan provider.SearchResult {
	out := make(chan provider.SearchResult, resultBuffer)
	var wg sync.WaitGroup

	run := func(t *task, search func() error) {
		defer wg.Done()
		defer s.active.Add(-1)
		defer func() {
			if r := recover(); r != nil {
				t.setState(taskCompletedError)
				s.logger.Error().
					Interface("panic", r).
					Str("provider", string(t.source)).
					Msg("provider search panicked")
			}
		}()

		t.setState(taskRunning)
		start := time.Now()
		if err := search(); err != nil {
			t.setState(taskCompletedError)
			s.logger.Warn().
				Err(err).
				Str("provider", string(t.source)).
				Dur("elapsed", time.Since(start)).
				Msg("provider search failed")
			return
		}
		t.setState(taskCompletedOK)
		s.logger.Debug().
			Str("provider", string(t.source)).
			Dur("elapsed", time.Since(start)).
			Msg("provider search completed")
	}

	switch req.Type {
	case MediaTypeSeries:
		q := provider.TVQuery{
			ImdbID:  req.ImdbID,
			TmdbID:  req.TmdbID,
			Title:   req.Title,
			Season:  req.Season,
			Episode: req.Episode,
		}
		searchers := s.registry.TVSearchers()
		s.logger.Info().
			Int("providers", len(searchers)).
			Int("tmdbId", req.TmdbID).
			Int("season", req.Season).
			Msg("starting TV search fan-out")
		for _, p := range searchers {
			t := &task{source: p.Source()}
			wg.Add(1)
			s.active.Add(1)
			go run(t, func() error { return p.SearchTV(ctx, q, out) })
		}

	case MediaTypeMovie:
		q := provider.MovieQuery{
			ImdbID: req.ImdbID,
			TmdbID: req.TmdbID,
			Title:  req.Title,
			Year:   req.Year,
		}
		searchers := s.registry.MovieSearchers()
		s.logger.Info().
			Int("providers", len(searchers)).
			Int("tmdbId", req.TmdbID).
			Msg("starting movie search fan-out")
		for _, p := range searchers {
			t := &task{source: p.Source()}
			wg.Add(1)
			s.active.Add(1)
			go run(t, func() error { return p.SearchMovies(ctx, q, out) })
		}
	}

	// Closing after the last producer exits is what lets the consumer treat
	// channel exhaustion as the done signal: buffered elements drain first.
	go func() {
		wg.Wait()
		close(out)
	}()

	return out
}
