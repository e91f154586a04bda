package domain

import (
	"net/url"
	"time"
)

// Resource is one day's published image or video, ready for display.
type Resource struct {
	Title       string
	Explanation string
	Date        time.Time
	Copyright   *string
	// MediaURL points at the still image, or at the thumbnail for videos.
	MediaURL *url.URL
	VideoURL *url.URL
}

// IsVideo reports whether the resource carries a video.
func (r *Resource) IsVideo() bool {
	return r.VideoURL != nil
}

// Origin says where a fetched resource came from.
type Origin string

const (
	OriginCache    Origin = "cache"
	OriginRemote   Origin = "remote"
	OriginLastGood Origin = "last_good"
)

// FetchEvent describes a completed fetch.
type FetchEvent struct {
	Resource  *Resource
	Origin    Origin
	Fallback  bool
	Requested *time.Time
}
