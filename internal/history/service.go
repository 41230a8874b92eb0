// Package history persists user-initiated downloads and prepares them for
// presentation, expanding season packs into per-episode rows at read time.
package history

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"
)

// Service provides download history persistence.
type Service struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewService creates a new history service.
func NewService(db *sql.DB, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		logger: logger.With().Str("component", "history").Logger(),
	}
}

// Record persists a download.
func (s *Service) Record(ctx context.Context, input CreateInput) (*Download, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO downloads (user_id, media_type, tmdb_id, imdb_id, show_title, title, source, category, download, season, episode)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		input.UserID, string(input.MediaType), input.TmdbID,
		nullString(input.ImdbID), nullString(input.ShowTitle),
		input.Title, input.Source, nullString(input.Category), input.Download,
		nullInt(input.Season), nullInt(input.Episode))
	if err != nil {
		return nil, fmt.Errorf("failed to record download: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Int64("id", id).
		Str("source", input.Source).
		Str("title", input.Title).
		Msg("recorded download")

	return s.Get(ctx, id)
}

// Get fetches one download by id.
func (s *Service) Get(ctx context.Context, id int64) (*Download, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, media_type, tmdb_id, imdb_id, show_title, title, source, category, download, season, episode, created_at
		FROM downloads WHERE id = ?`, id)
	return scanDownload(row)
}

// List lists downloads with pagination and optional media-type filtering.
func (s *Service) List(ctx context.Context, opts ListOptions) (*ListResponse, error) {
	if opts.Page < 1 {
		opts.Page = 1
	}
	if opts.PageSize < 1 {
		opts.PageSize = 50
	}
	if opts.PageSize > 100 {
		opts.PageSize = 100
	}

	where := "WHERE user_id = ?"
	args := []any{opts.UserID}
	if opts.MediaType != "" {
		where += " AND media_type = ?"
		args = append(args, opts.MediaType)
	}

	var total int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM downloads "+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count downloads: %w", err)
	}

	query := `
		SELECT id, user_id, media_type, tmdb_id, imdb_id, show_title, title, source, category, download, season, episode, created_at
		FROM downloads ` + where + ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, opts.PageSize, (opts.Page-1)*opts.PageSize)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list downloads: %w", err)
	}
	defer rows.Close()

	items := make([]*Download, 0, opts.PageSize)
	for rows.Next() {
		d, err := scanDownload(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &ListResponse{
		Items:      items,
		Page:       opts.Page,
		PageSize:   opts.PageSize,
		TotalCount: total,
	}, nil
}

// ListSeason returns the episode download rows of one season of a show, in
// insertion order, ready for season-pack resolution.
func (s *Service) ListSeason(ctx context.Context, userID int64, tmdbID, season int) ([]EpisodeDetails, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, media_type, tmdb_id, imdb_id, show_title, title, source, category, download, season, episode, created_at
		FROM downloads
		WHERE user_id = ? AND media_type = 'episode' AND tmdb_id = ? AND season = ?
		ORDER BY episode ASC, id ASC`, userID, tmdbID, season)
	if err != nil {
		return nil, fmt.Errorf("failed to list season downloads: %w", err)
	}
	defer rows.Close()

	var entries []EpisodeDetails
	for rows.Next() {
		d, err := scanDownload(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, EpisodeDetails{
			ID:           d.ID,
			TmdbID:       d.TmdbID,
			ShowTitle:    d.ShowTitle,
			Season:       season,
			Episode:      d.Episode,
			ReleaseTitle: d.Title,
			Source:       d.Source,
			Category:     d.Category,
			Download:     d.Download,
		})
	}
	return entries, rows.Err()
}

// PruneOlderThan deletes download records older than the given number of
// days. Returns the number of deleted rows.
func (s *Service) PruneOlderThan(ctx context.Context, days int) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM downloads WHERE created_at < datetime('now', ?)`,
		fmt.Sprintf("-%d days", days))
	if err != nil {
		return 0, fmt.Errorf("failed to prune downloads: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info().Int64("deleted", n).Int("retentionDays", days).Msg("pruned download history")
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDownload(row rowScanner) (*Download, error) {
	var d Download
	var imdbID, showTitle, category sql.NullString
	var season, episode sql.NullInt64
	var mediaType string

	err := row.Scan(&d.ID, &d.UserID, &mediaType, &d.TmdbID, &imdbID, &showTitle,
		&d.Title, &d.Source, &category, &d.Download, &season, &episode, &d.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to scan download: %w", err)
	}

	d.MediaType = MediaType(mediaType)
	d.ImdbID = imdbID.String
	d.ShowTitle = showTitle.String
	d.Category = category.String
	if season.Valid {
		v := int(season.Int64)
		d.Season = &v
	}
	if episode.Valid {
		v := int(episode.Int64)
		d.Episode = &v
	}
	return &d, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(i *int) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*i), Valid: true}
}
