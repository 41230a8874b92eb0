package provider

import "context"

// Provider is the base capability every upstream adapter implements.
type Provider interface {
	// Source returns the provider identity used to tag results.
	Source() Source
}

// TVSearcher is implemented by providers able to search for TV episodes.
//
// SearchTV pushes normalized results into out as upstream pages are parsed,
// preserving upstream order, and returns when pagination is exhausted, the
// upstream reports no further results, or ctx is cancelled. The sequence is
// not restartable. Implementations never close out; the caller owns the
// channel. An error return ends only this provider's sequence.
type TVSearcher interface {
	Provider
	SearchTV(ctx context.Context, q TVQuery, out chan<- SearchResult) error
}

// MovieSearcher is implemented by providers able to search for movies.
// Same contract shape as TVSearcher, without season/episode.
type MovieSearcher interface {
	Provider
	SearchMovies(ctx context.Context, q MovieQuery, out chan<- SearchResult) error
}

// Registry holds the active set of providers and filters them by capability
// before dispatch.
type Registry struct {
	providers []Provider
}

// NewRegistry creates a registry over the given providers.
func NewRegistry(providers ...Provider) *Registry {
	return &Registry{providers: providers}
}

// Register adds a provider to the registry.
func (r *Registry) Register(p Provider) {
	r.providers = append(r.providers, p)
}

// All returns every registered provider.
func (r *Registry) All() []Provider {
	return r.providers
}

// TVSearchers returns the providers that can search for TV episodes.
func (r *Registry) TVSearchers() []TVSearcher {
	out := make([]TVSearcher, 0, len(r.providers))
	for _, p := range r.providers {
		if ts, ok := p.(TVSearcher); ok {
			out = append(out, ts)
		}
	}
	return out
}

// MovieSearchers returns the providers that can search for movies.
func (r *Registry) MovieSearchers() []MovieSearcher {
	out := make([]MovieSearcher, 0, len(r.providers))
	for _, p := range r.providers {
		if ms, ok := p.(MovieSearcher); ok {
			out = append(out, ms)
		}
	}
	return out
}

// Send delivers a result to out unless ctx is cancelled first. It reports
// whether the send happened; producers stop on false.
func Send(ctx context.Context, out chan<- SearchResult, r SearchResult) bool {
	select {
	case out <- r:
		return true
	case <-ctx.Done():
		return false
	}
}
