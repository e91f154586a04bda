package normalize

// Media types understood by the normalizer. The upstream API also knows
// "other", which cannot be displayed and is rejected.
const (
	MediaTypeImage = "image"
	MediaTypeVideo = "video"
)

// RawPayload is the JSON object served by the APOD API.
type RawPayload struct {
	Title        *string `json:"title"`
	Explanation  *string `json:"explanation"`
	Date         *string `json:"date"`
	MediaType    *string `json:"media_type"`
	Copyright    *string `json:"copyright,omitempty"`
	URL          *string `json:"url"`
	ThumbnailURL *string `json:"thumbnail_url,omitempty"`
}
