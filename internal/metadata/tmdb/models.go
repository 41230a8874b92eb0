package tmdb

// ExternalIDs carries cross-reference identifiers for a title.
type ExternalIDs struct {
	ImdbID string `json:"imdb_id"`
	TvdbID int    `json:"tvdb_id"`
}

// MovieDetails is the movie detail payload.
type MovieDetails struct {
	ID          int    `json:"id"`
	Title       string `json:"title"`
	ReleaseDate string `json:"release_date"`
	ImdbID      string `json:"imdb_id"`
}

// TVDetails is the series detail payload.
type TVDetails struct {
	ID           int          `json:"id"`
	Name         string       `json:"name"`
	FirstAirDate string       `json:"first_air_date"`
	ExternalIDs  *ExternalIDs `json:"external_ids"`
}

// SeasonEpisode is one episode entry of a season detail payload.
type SeasonEpisode struct {
	EpisodeNumber int    `json:"episode_number"`
	SeasonNumber  int    `json:"season_number"`
	Name          string `json:"name"`
	AirDate       string `json:"air_date"`
}

// SeasonDetails is the season detail payload.
type SeasonDetails struct {
	SeasonNumber int             `json:"season_number"`
	Episodes     []SeasonEpisode `json:"episodes"`
}

// ErrorResponse is the error payload.
type ErrorResponse struct {
	StatusCode    int    `json:"status_code"`
	StatusMessage string `json:"status_message"`
}
