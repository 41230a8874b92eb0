// Package plex looks up media in a user's Plex library by TMDB id.
package plex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/riptide/riptide/internal/config"
)

const (
	userAgent = "Riptide"
	product   = "Riptide"
)

// ErrNotConfigured indicates the Plex server URL or token is missing.
var ErrNotConfigured = errors.New("plex is not configured")

// ErrNotFound indicates the library holds no item with the requested id.
var ErrNotFound = errors.New("item not in plex library")

// Item is a library entry matched by TMDB id.
type Item struct {
	RatingKey string `json:"ratingKey"`
	Title     string `json:"title"`
	Year      int    `json:"year"`
	Type      string `json:"type"`
	Library   string `json:"library"`
}

// Client handles communication with a Plex media server.
type Client struct {
	httpClient *http.Client
	logger     zerolog.Logger
	cfg        config.PlexConfig
	clientID   string
	version    string
}

// NewClient creates a new Plex client.
func NewClient(cfg config.PlexConfig, logger zerolog.Logger, version string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     logger.With().Str("component", "plex").Logger(),
		cfg:        cfg,
		clientID:   uuid.New().String(),
		version:    version,
	}
}

func (c *Client) doRequest(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("X-Plex-Client-Identifier", c.clientID)
	req.Header.Set("X-Plex-Product", product)
	req.Header.Set("X-Plex-Version", c.version)
	req.Header.Set("X-Plex-Platform", runtime.GOOS)
	req.Header.Set("X-Plex-Device", runtime.GOOS)
	req.Header.Set("X-Plex-Device-Name", product)
	req.Header.Set("X-Plex-Token", c.cfg.Token)
	req.Header.Set("Accept", "application/json")

	return c.httpClient.Do(req)
}

type sectionsResponse struct {
	MediaContainer struct {
		Directory []struct {
			Key   string `json:"key"`
			Title string `json:"title"`
			Type  string `json:"type"`
		} `json:"Directory"`
	} `json:"MediaContainer"`
}

type sectionItemsResponse struct {
	MediaContainer struct {
		Metadata []struct {
			RatingKey string `json:"ratingKey"`
			Title     string `json:"title"`
			Year      int    `json:"year"`
			Type      string `json:"type"`
			Guids     []struct {
				ID string `json:"id"`
			} `json:"Guid"`
		} `json:"Metadata"`
	} `json:"MediaContainer"`
}

// Find searches the configured server's libraries for an item with the given
// TMDB id. mediaType is "movie" or "tv". Returns ErrNotFound when no library
// holds the item.
func (c *Client) Find(ctx context.Context, tmdbID int, mediaType string) (*Item, error) {
	if c.cfg.URL == "" || c.cfg.Token == "" {
		return nil, ErrNotConfigured
	}

	sectionType := "movie"
	if mediaType == "tv" {
		sectionType = "show"
	}

	sections, err := c.listSections(ctx)
	if err != nil {
		return nil, err
	}

	guid := fmt.Sprintf("tmdb://%d", tmdbID)
	for _, section := range sections.MediaContainer.Directory {
		if section.Type != sectionType {
			continue
		}

		item, err := c.findInSection(ctx, section.Key, guid)
		if err != nil {
			c.logger.Warn().Err(err).Str("library", section.Title).Msg("library scan failed")
			continue
		}
		if item != nil {
			item.Library = section.Title
			c.logger.Debug().
				Int("tmdbId", tmdbID).
				Str("library", section.Title).
				Str("title", item.Title).
				Msg("found item in plex library")
			return item, nil
		}
	}

	return nil, ErrNotFound
}

func (c *Client) listSections(ctx context.Context) (*sectionsResponse, error) {
	resp, err := c.doRequest(ctx, fmt.Sprintf("%s/library/sections", strings.TrimRight(c.cfg.URL, "/")))
	if err != nil {
		return nil, fmt.Errorf("failed to get library sections: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("failed to get library sections: status %d, body: %s", resp.StatusCode, string(body))
	}

	var sections sectionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&sections); err != nil {
		return nil, fmt.Errorf("failed to decode library sections: %w", err)
	}
	return &sections, nil
}

func (c *Client) findInSection(ctx context.Context, key, guid string) (*Item, error) {
	url := fmt.Sprintf("%s/library/sections/%s/all?includeGuids=1",
		strings.TrimRight(c.cfg.URL, "/"), key)

	resp, err := c.doRequest(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to list section items: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("failed to list section items: status %d, body: %s", resp.StatusCode, string(body))
	}

	var items sectionItemsResponse
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, fmt.Errorf("failed to decode section items: %w", err)
	}

	for _, m := range items.MediaContainer.Metadata {
		for _, g := range m.Guids {
			if g.ID == guid {
				return &Item{
					RatingKey: m.RatingKey,
					Title:     m.Title,
					Year:      m.Year,
					Type:      m.Type,
				}, nil
			}
		}
	}
	return nil, nil
}

// TestConnection verifies the configured server is reachable.
func (c *Client) TestConnection(ctx context.Context) error {
	if c.cfg.URL == "" || c.cfg.Token == "" {
		return ErrNotConfigured
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	resp, err := c.doRequest(ctx, fmt.Sprintf("%s/identity", strings.TrimRight(c.cfg.URL, "/")))
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned error: status %d, body: %s", resp.StatusCode, string(body))
	}
	return nil
}
