// Package provider defines the search provider abstraction and the shared
// result type every upstream adapter normalizes into.
package provider

// Source identifies the upstream a result came from.
type Source string

const (
	SourceRarbg   Source = "rarbg"
	SourceKickass Source = "kickass"
	SourceEztv    Source = "eztv"
	SourceLeetx   Source = "1337x"
)

// EpisodeInfo locates a TV result within a show. Both fields are nil for
// movies and whole-season packs.
type EpisodeInfo struct {
	Season  *int `json:"seasonnum,omitempty"`
	Episode *int `json:"epnum,omitempty"`
}

// SearchResult is the normalized unit emitted by every provider. Results are
// value types; duplicates from different sources are distinct, valid results
// and are never deduplicated.
type SearchResult struct {
	Source      Source      `json:"source"`
	Title       string      `json:"title"`
	Seeders     int         `json:"seeders"`
	Download    string      `json:"download"`
	Category    string      `json:"category"`
	EpisodeInfo EpisodeInfo `json:"episode_info"`
}

// TVQuery carries everything a provider may need to search for episodes.
// Episode == nil means the whole season.
type TVQuery struct {
	ImdbID  string
	TmdbID  int
	Title   string
	Season  int
	Episode *int
}

// MovieQuery carries everything a provider may need to search for a movie.
type MovieQuery struct {
	ImdbID string
	TmdbID int
	Title  string
	Year   int
}

// Int returns a pointer to i. Convenience for building EpisodeInfo values.
func Int(i int) *int {
	return &i
}
