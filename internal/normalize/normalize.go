// Package normalize turns raw APOD payloads into domain resources.
package normalize

import (
	"encoding/json"
	"fmt"
	"net/url"

	"apod_fetcher/internal/domain"
)

// Normalize parses raw payload bytes into a Resource. Errors match
// domain.ErrParse or domain.ErrInvalidVideoResource.
func Normalize(raw []byte) (*domain.Resource, error) {
	var p RawPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", domain.ErrParse, err)
	}
	return p.toResource()
}

func (p *RawPayload) toResource() (*domain.Resource, error) {
	if err := p.checkRequired(); err != nil {
		return nil, err
	}

	date, err := domain.ParseDate(*p.Date)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrParse, err)
	}

	primary, err := parseURL("url", *p.URL)
	if err != nil {
		return nil, err
	}

	res := &domain.Resource{
		Title:       Clean(*p.Title),
		Explanation: Clean(*p.Explanation),
		Date:        date,
	}
	if p.Copyright != nil {
		c := Clean(*p.Copyright)
		res.Copyright = &c
	}

	switch *p.MediaType {
	case MediaTypeImage:
		res.MediaURL = primary
	case MediaTypeVideo:
		if p.ThumbnailURL == nil || *p.ThumbnailURL == "" {
			return nil, fmt.Errorf("%w: %s", domain.ErrInvalidVideoResource, *p.Date)
		}
		thumb, err := parseURL("thumbnail_url", *p.ThumbnailURL)
		if err != nil {
			return nil, err
		}
		res.MediaURL = thumb
		res.VideoURL = primary
	default:
		return nil, fmt.Errorf("%w: unsupported media_type %q", domain.ErrParse, *p.MediaType)
	}

	return res, nil
}

func (p *RawPayload) checkRequired() error {
	fields := []struct {
		name  string
		value *string
	}{
		{"title", p.Title},
		{"explanation", p.Explanation},
		{"date", p.Date},
		{"media_type", p.MediaType},
		{"url", p.URL},
	}
	for _, f := range fields {
		if f.value == nil {
			return fmt.Errorf("%w: missing field %s", domain.ErrParse, f.name)
		}
	}
	return nil
}

func parseURL(field, raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrParse, field, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: %s is not an absolute url: %q", domain.ErrParse, field, raw)
	}
	return u, nil
}
