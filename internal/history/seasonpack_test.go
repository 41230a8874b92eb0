package history

import (
	"context"
	"errors"
	"testing"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riptide/riptide/internal/metadata"
)

type fakeEpisodeLister struct {
	episodes []metadata.Episode
	err      error
	calls    int
}

func (f *fakeEpisodeLister) SeasonEpisodes(_ context.Context, _, _ int) ([]metadata.Episode, error) {
	f.calls++
	return f.episodes, f.err
}

func intPtr(i int) *int { return &i }

func TestResolverExpandsSeasonPack(t *testing.T) {
	lister := &fakeEpisodeLister{episodes: []metadata.Episode{
		{Number: 1, Name: "Pilot", AirDate: "2019-05-06"},
		{Number: 2, Name: "Please Remain Calm", AirDate: "2019-05-13"},
	}}
	r := NewResolver(lister, zerolog.Nop())

	pack := EpisodeDetails{
		ID:           42,
		TmdbID:       87108,
		ShowTitle:    "Chernobyl",
		Season:       1,
		ReleaseTitle: "Chernobyl.S01.1080p.AMZN.WEB-DL.DDP5.1.H.264-NTb",
		Source:       "rarbg",
		Category:     "TV HD Episodes",
		Download:     "magnet:?xt=urn:btih:abc",
	}

	out, err := r.Resolve(context.Background(), []EpisodeDetails{pack})
	require.NoError(t, err)
	require.Len(t, out, 2)

	for i, entry := range out {
		assert.Equal(t, SentinelID, entry.ID)
		assert.Equal(t, pack.TmdbID, entry.TmdbID)
		assert.Equal(t, pack.ShowTitle, entry.ShowTitle)
		assert.Equal(t, 1, entry.Season)
		require.NotNil(t, entry.Episode)
		assert.Equal(t, i+1, *entry.Episode)
		assert.Equal(t, lister.episodes[i].Name, entry.EpisodeName)
		assert.Equal(t, pack.Download, entry.Download)
		assert.Equal(t, pack.Source, entry.Source)
	}
}

func TestResolverLeavesPerEpisodeEntriesUnchanged(t *testing.T) {
	lister := &fakeEpisodeLister{}
	r := NewResolver(lister, zerolog.Nop())

	entries := []EpisodeDetails{
		{ID: 1, Season: 1, Episode: intPtr(1), ReleaseTitle: "Show.S01E01.720p-GRP"},
		{ID: 2, Season: 1, Episode: intPtr(2), ReleaseTitle: "Show.S01E02.720p-GRP"},
	}

	out, err := r.Resolve(context.Background(), entries)
	require.NoError(t, err)
	assert.Equal(t, entries, out)
	assert.Zero(t, lister.calls, "metadata should not be consulted")
}

func TestResolverLeavesSingleEpisodeEntryUnchanged(t *testing.T) {
	lister := &fakeEpisodeLister{}
	r := NewResolver(lister, zerolog.Nop())

	entries := []EpisodeDetails{
		{ID: 7, Season: 2, Episode: intPtr(5), ReleaseTitle: "Show.S02E05.1080p-GRP"},
	}

	out, err := r.Resolve(context.Background(), entries)
	require.NoError(t, err)
	assert.Equal(t, entries, out)
	assert.Zero(t, lister.calls)
}

func TestResolverPropagatesMetadataError(t *testing.T) {
	lister := &fakeEpisodeLister{err: errors.New("tmdb unavailable")}
	r := NewResolver(lister, zerolog.Nop())

	_, err := r.Resolve(context.Background(), []EpisodeDetails{{TmdbID: 1, Season: 1}})
	require.Error(t, err)
}

func TestNormalizeTitle(t *testing.T) {
	episodes := []metadata.Episode{
		{Number: 3, Name: "Open Wide, O Earth"},
		{Number: 4, Name: "The Happiness of All Mankind"},
	}

	got := NormalizeTitle("Chernobyl.S01E04.The.Happiness.of.All.Mankind.1080p.AMZN.WEB-DL.DDP5.1.H.264-NTb", episodes)
	assert.Equal(t, "Chernobyl.S00E00.TITLE.1080p.AMZN.WEB-DL.DDP5.1.H.264-NTb", got)
}

func TestNormalizeTitleCaseInsensitive(t *testing.T) {
	episodes := []metadata.Episode{{Number: 1, Name: "Pilot"}}

	got := NormalizeTitle("show.s01e01.PILOT.720p-GRP", episodes)
	assert.Equal(t, "show.S00E00.TITLE.720p-GRP", got)
}

func TestNormalizeTitleMultibyteShowName(t *testing.T) {
	episodes := []metadata.Episode{{Number: 1, Name: "Pilot"}}

	got := NormalizeTitle("İİİ.S01E01.Pilot.720p-GRP", episodes)
	assert.Equal(t, "İİİ.S00E00.TITLE.720p-GRP", got)

	got = NormalizeTitle("İİİİİİİİ.Pilot", episodes)
	assert.Equal(t, "İİİİİİİİ.TITLE", got)
	assert.True(t, utf8.ValidString(got))
}

func TestNormalizeTitleNoMarker(t *testing.T) {
	got := NormalizeTitle("Some.Movie.2020.1080p-GRP", nil)
	assert.Equal(t, "Some.Movie.2020.1080p-GRP", got)
}
