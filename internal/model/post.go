package model

// MediaType classifies the media shape of a publish result
type MediaType string

const (
	MediaTypeText     MediaType = "text"
	MediaTypeImage    MediaType = "image"
	MediaTypeVideo    MediaType = "video"
	MediaTypeCarousel MediaType = "carousel"
)

// Post is the content payload handed to a provider. The post record itself
// is owned by the content library; the pipeline only reads it.
type Post struct {
	ID        string   `json:"id"`
	Content   string   `json:"content"`
	Title     string   `json:"title,omitempty"`
	MediaURLs []string `json:"mediaUrls"`
	Hashtags  []string `json:"hashtags"`
}

// PublishResult is the normalized outcome of one provider publish call.
type PublishResult struct {
	Success        bool      `json:"success"`
	PlatformPostID string    `json:"platformPostId"`
	PlatformURL    string    `json:"platformUrl"`
	MediaType      MediaType `json:"mediaType"`
}
