// Package tmdb is the movie-database client used for identity resolution and
// episode metadata.
package tmdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/riptide/riptide/internal/config"
)

var (
	ErrAPIKeyMissing = errors.New("TMDB API key is not configured")
	ErrNotFound      = errors.New("title not found")
	ErrAPIError      = errors.New("TMDB API error")
	ErrRateLimited   = errors.New("TMDB API rate limited")
)

// Client is a TMDB API client.
type Client struct {
	httpClient *http.Client
	config     config.TMDBConfig
	logger     zerolog.Logger
}

// NewClient creates a new TMDB client.
func NewClient(cfg config.TMDBConfig, logger zerolog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15
	}
	return &Client{
		httpClient: &http.Client{Timeout: time.Duration(timeout) * time.Second},
		config:     cfg,
		logger:     logger.With().Str("component", "tmdb").Logger(),
	}
}

// IsConfigured returns true if the API key is set.
func (c *Client) IsConfigured() bool {
	return c.config.APIKey != ""
}

// GetMovie gets movie details, including the IMDB cross-reference id.
func (c *Client) GetMovie(ctx context.Context, id int) (*MovieDetails, error) {
	if !c.IsConfigured() {
		return nil, ErrAPIKeyMissing
	}

	endpoint := fmt.Sprintf("%s/movie/%d", c.config.BaseURL, id)
	var details MovieDetails
	if err := c.doRequest(ctx, endpoint, nil, &details); err != nil {
		return nil, err
	}

	c.logger.Debug().Int("id", id).Str("title", details.Title).Msg("got movie details")
	return &details, nil
}

// GetSeries gets series details with external ids appended.
func (c *Client) GetSeries(ctx context.Context, id int) (*TVDetails, error) {
	if !c.IsConfigured() {
		return nil, ErrAPIKeyMissing
	}

	endpoint := fmt.Sprintf("%s/tv/%d", c.config.BaseURL, id)
	params := url.Values{}
	params.Set("append_to_response", "external_ids")

	var details TVDetails
	if err := c.doRequest(ctx, endpoint, params, &details); err != nil {
		return nil, err
	}

	c.logger.Debug().Int("id", id).Str("title", details.Name).Msg("got series details")
	return &details, nil
}

// GetSeasonDetails gets one season of a series including its episode list,
// in airing order.
func (c *Client) GetSeasonDetails(ctx context.Context, seriesID, seasonNumber int) (*SeasonDetails, error) {
	if !c.IsConfigured() {
		return nil, ErrAPIKeyMissing
	}

	endpoint := fmt.Sprintf("%s/tv/%d/season/%d", c.config.BaseURL, seriesID, seasonNumber)
	var details SeasonDetails
	if err := c.doRequest(ctx, endpoint, nil, &details); err != nil {
		return nil, err
	}

	c.logger.Debug().
		Int("seriesID", seriesID).
		Int("seasonNumber", seasonNumber).
		Int("episodes", len(details.Episodes)).
		Msg("got season details")
	return &details, nil
}

// doRequest performs an HTTP GET request and decodes the JSON response.
func (c *Client) doRequest(ctx context.Context, endpoint string, params url.Values, result interface{}) error {
	if params == nil {
		params = url.Values{}
	}
	params.Set("api_key", c.config.APIKey)
	reqURL := fmt.Sprintf("%s?%s", endpoint, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error().Err(err).Str("url", endpoint).Msg("HTTP request failed")
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil {
			c.logger.Error().
				Int("status", resp.StatusCode).
				Str("message", errResp.StatusMessage).
				Msg("TMDB API error")
		}

		switch resp.StatusCode {
		case http.StatusNotFound:
			return ErrNotFound
		case http.StatusUnauthorized:
			return fmt.Errorf("%w: invalid API key", ErrAPIError)
		case http.StatusTooManyRequests:
			return ErrRateLimited
		default:
			return fmt.Errorf("%w: status %d", ErrAPIError, resp.StatusCode)
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
