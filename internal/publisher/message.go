package publisher

import (
	"time"

	"apod_fetcher/internal/domain"
)

const (
	ActionFetched  = "fetched"
	ActionFallback = "fallback"
)

// EventMessage is the JSON body published for every completed fetch.
type EventMessage struct {
	Action    string          `json:"action"`
	Origin    string          `json:"origin"`
	Requested string          `json:"requested"`
	Resource  ResourceMessage `json:"resource"`
	Timestamp time.Time       `json:"timestamp"`
}

type ResourceMessage struct {
	Date        string  `json:"date"`
	Title       string  `json:"title"`
	Explanation string  `json:"explanation"`
	Copyright   *string `json:"copyright,omitempty"`
	MediaURL    string  `json:"media_url"`
	VideoURL    *string `json:"video_url,omitempty"`
}

// NewResourceMessage flattens a resource into its wire form.
func NewResourceMessage(res *domain.Resource) ResourceMessage {
	msg := ResourceMessage{
		Date:        domain.FormatDate(res.Date),
		Title:       res.Title,
		Explanation: res.Explanation,
		Copyright:   res.Copyright,
	}
	if res.MediaURL != nil {
		msg.MediaURL = res.MediaURL.String()
	}
	if res.VideoURL != nil {
		v := res.VideoURL.String()
		msg.VideoURL = &v
	}
	return msg
}

func NewEventMessage(event domain.FetchEvent, now time.Time) EventMessage {
	action := ActionFetched
	if event.Fallback {
		action = ActionFallback
	}

	requested := "latest"
	if event.Requested != nil {
		requested = domain.FormatDate(*event.Requested)
	}

	return EventMessage{
		Action:    action,
		Origin:    string(event.Origin),
		Requested: requested,
		Resource:  NewResourceMessage(event.Resource),
		Timestamp: now.UTC(),
	}
}
