package normalize

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"apod_fetcher/internal/domain"
)

func TestNormalize_Image(t *testing.T) {
	raw := []byte(`{
		"title": "  Foo   Bar\nBaz  ",
		"explanation": "A galaxy.\n",
		"date": "2024-01-01",
		"media_type": "image",
		"url": "https://apod.nasa.gov/apod/image/2401/x.jpg",
		"copyright": "\nTunc Tezel\n"
	}`)

	res, err := Normalize(raw)
	require.NoError(t, err)

	assert.Equal(t, "2024-01-01", domain.FormatDate(res.Date))
	assert.Equal(t, "Bar Baz", res.Title)
	assert.Equal(t, "A galaxy.", res.Explanation)
	require.NotNil(t, res.Copyright)
	assert.Equal(t, "Tunc Tezel", *res.Copyright)
	assert.Equal(t, "https://apod.nasa.gov/apod/image/2401/x.jpg", res.MediaURL.String())
	assert.Nil(t, res.VideoURL)
	assert.False(t, res.IsVideo())
}

func TestNormalize_ImageIgnoresThumbnail(t *testing.T) {
	raw := []byte(`{"title":"t","explanation":"e","date":"2024-01-01","media_type":"image",
		"url":"https://apod.nasa.gov/a.jpg","thumbnail_url":"https://apod.nasa.gov/b.jpg"}`)

	res, err := Normalize(raw)
	require.NoError(t, err)
	assert.Equal(t, "https://apod.nasa.gov/a.jpg", res.MediaURL.String())
	assert.Nil(t, res.VideoURL)
	assert.Nil(t, res.Copyright)
}

func TestNormalize_Video(t *testing.T) {
	raw := []byte(`{"title":"Eclipse","explanation":"e","date":"2024-04-08","media_type":"video",
		"url":"https://www.youtube.com/embed/abc","thumbnail_url":"https://img.youtube.com/vi/abc/0.jpg"}`)

	res, err := Normalize(raw)
	require.NoError(t, err)
	require.NotNil(t, res.VideoURL)
	assert.Equal(t, "https://www.youtube.com/embed/abc", res.VideoURL.String())
	assert.Equal(t, "https://img.youtube.com/vi/abc/0.jpg", res.MediaURL.String())
	assert.True(t, res.IsVideo())
}

func TestNormalize_VideoWithoutThumbnail(t *testing.T) {
	for name, raw := range map[string]string{
		"missing": `{"title":"t","explanation":"e","date":"2024-04-08","media_type":"video","url":"https://www.youtube.com/embed/abc"}`,
		"empty":   `{"title":"t","explanation":"e","date":"2024-04-08","media_type":"video","url":"https://www.youtube.com/embed/abc","thumbnail_url":""}`,
	} {
		t.Run(name, func(t *testing.T) {
			res, err := Normalize([]byte(raw))
			assert.Nil(t, res)
			assert.True(t, errors.Is(err, domain.ErrInvalidVideoResource), "got %v", err)
		})
	}
}

func TestNormalize_ParseErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `<html>`},
		{"empty", ``},
		{"missing title", `{"explanation":"e","date":"2024-01-01","media_type":"image","url":"https://a.b/c.jpg"}`},
		{"missing url", `{"title":"t","explanation":"e","date":"2024-01-01","media_type":"image"}`},
		{"bad date", `{"title":"t","explanation":"e","date":"01/01/2024","media_type":"image","url":"https://a.b/c.jpg"}`},
		{"relative url", `{"title":"t","explanation":"e","date":"2024-01-01","media_type":"image","url":"/c.jpg"}`},
		{"other media type", `{"title":"t","explanation":"e","date":"2024-01-01","media_type":"other","url":"https://a.b/c.jpg"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Normalize([]byte(tt.raw))
			assert.Nil(t, res)
			assert.True(t, errors.Is(err, domain.ErrParse), "got %v", err)
		})
	}
}
