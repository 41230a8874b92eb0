package history

// MediaType represents the type of media a download refers to.
type MediaType string

const (
	MediaTypeMovie   MediaType = "movie"
	MediaTypeEpisode MediaType = "episode"
)

// Download is a persisted record of a user-initiated grab. For episode
// downloads, a nil Episode means the record is a whole-season pack.
type Download struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"userId"`
	MediaType MediaType `json:"mediaType"`
	TmdbID    int       `json:"tmdbId"`
	ImdbID    string    `json:"imdbId,omitempty"`
	ShowTitle string    `json:"showTitle,omitempty"`
	Title     string    `json:"title"`
	Source    string    `json:"source"`
	Category  string    `json:"category,omitempty"`
	Download  string    `json:"download"`
	Season    *int      `json:"season,omitempty"`
	Episode   *int      `json:"episode,omitempty"`
	CreatedAt string    `json:"createdAt"`
}

// CreateInput contains fields for recording a download.
type CreateInput struct {
	UserID    int64
	MediaType MediaType
	TmdbID    int
	ImdbID    string
	ShowTitle string
	Title     string
	Source    string
	Category  string
	Download  string
	Season    *int
	Episode   *int
}

// EpisodeDetails is the per-episode presentation row of a season's download
// history. Synthetic rows produced by season-pack resolution carry the
// sentinel id.
type EpisodeDetails struct {
	ID           int64  `json:"id"`
	TmdbID       int    `json:"tmdbId"`
	ShowTitle    string `json:"showTitle"`
	Season       int    `json:"season"`
	Episode      *int   `json:"episode,omitempty"`
	EpisodeName  string `json:"episodeName,omitempty"`
	AirDate      string `json:"airDate,omitempty"`
	ReleaseTitle string `json:"releaseTitle"`
	Source       string `json:"source"`
	Category     string `json:"category,omitempty"`
	Download     string `json:"download"`
}

// ListOptions contains options for listing downloads.
type ListOptions struct {
	UserID    int64
	MediaType string
	Page      int
	PageSize  int
}

// ListResponse contains paginated download results.
type ListResponse struct {
	Items      []*Download `json:"items"`
	Page       int         `json:"page"`
	PageSize   int         `json:"pageSize"`
	TotalCount int64       `json:"totalCount"`
}
