package plex

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riptide/riptide/internal/config"
)

const sectionsBody = `{"MediaContainer":{"Directory":[
	{"key":"1","title":"Movies","type":"movie"},
	{"key":"2","title":"TV Shows","type":"show"}]}}`

const movieItemsBody = `{"MediaContainer":{"Metadata":[
	{"ratingKey":"100","title":"The Matrix","year":1999,"type":"movie",
	 "Guid":[{"id":"imdb://tt0133093"},{"id":"tmdb://603"}]}]}}`

func newTestClient(srv *httptest.Server) *Client {
	return NewClient(config.PlexConfig{URL: srv.URL, Token: "test-token"}, zerolog.Nop(), "test")
}

func TestFindMovie(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-token", r.Header.Get("X-Plex-Token"))
		switch r.URL.Path {
		case "/library/sections":
			fmt.Fprint(w, sectionsBody)
		case "/library/sections/1/all":
			assert.Equal(t, "1", r.URL.Query().Get("includeGuids"))
			fmt.Fprint(w, movieItemsBody)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	item, err := newTestClient(srv).Find(context.Background(), 603, "movie")
	require.NoError(t, err)
	assert.Equal(t, "100", item.RatingKey)
	assert.Equal(t, "The Matrix", item.Title)
	assert.Equal(t, 1999, item.Year)
	assert.Equal(t, "Movies", item.Library)
}

func TestFindSkipsWrongSectionType(t *testing.T) {
	var movieSectionHits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/library/sections":
			fmt.Fprint(w, sectionsBody)
		case "/library/sections/1/all":
			movieSectionHits++
			fmt.Fprint(w, movieItemsBody)
		default:
			fmt.Fprint(w, `{"MediaContainer":{"Metadata":[]}}`)
		}
	}))
	defer srv.Close()

	_, err := newTestClient(srv).Find(context.Background(), 603, "tv")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Zero(t, movieSectionHits)
}

func TestFindNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/library/sections":
			fmt.Fprint(w, sectionsBody)
		default:
			fmt.Fprint(w, `{"MediaContainer":{"Metadata":[]}}`)
		}
	}))
	defer srv.Close()

	_, err := newTestClient(srv).Find(context.Background(), 42, "movie")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFindNotConfigured(t *testing.T) {
	c := NewClient(config.PlexConfig{}, zerolog.Nop(), "test")
	_, err := c.Find(context.Background(), 603, "movie")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestTestConnection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/identity", r.URL.Path)
		fmt.Fprint(w, `{"MediaContainer":{}}`)
	}))
	defer srv.Close()

	require.NoError(t, newTestClient(srv).TestConnection(context.Background()))
}
