package provider

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/postpilot/api/internal/media"
	"github.com/postpilot/api/internal/model"
)

const (
	mastodonMaxStatusLen = 500
	mastodonMaxMedia     = 4
)

// Mastodon publishes with a single synchronous status create. Media
// attachments upload inline beforehand; the instance processes small
// images synchronously so no poll loop is needed.
type Mastodon struct {
	api       *restClient
	media     MediaSource
	accountID string
}

func NewMastodon(ch *model.Channel, mediaSource MediaSource) *Mastodon {
	baseURL := ch.Meta("serverUrl")
	if baseURL == "" {
		baseURL = "https://mastodon.social"
	}
	return &Mastodon{
		api:       newRESTClient(PlatformMastodon, baseURL, ch.AccessToken),
		media:     mediaSource,
		accountID: ch.Meta("accountId"),
	}
}

func (m *Mastodon) Platform() string { return PlatformMastodon }
func (m *Mastodon) Kind() Kind       { return KindDirect }

type mastodonStatus struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Publish validates content limits, uploads any media inline, then creates
// the status in one request.
func (m *Mastodon) Publish(ctx context.Context, post *model.Post) (*model.PublishResult, error) {
	status := composeCaption(post.Content, post.Hashtags)
	if err := m.validate(status, post); err != nil {
		return nil, err
	}

	var mediaIDs []string
	for _, mediaURL := range post.MediaURLs {
		id, err := m.uploadMedia(ctx, mediaURL)
		if err != nil {
			return nil, fmt.Errorf("media upload failed: %w", err)
		}
		mediaIDs = append(mediaIDs, id)
	}

	body := map[string]interface{}{
		"status": status,
	}
	if len(mediaIDs) > 0 {
		body["media_ids"] = mediaIDs
	}

	var created mastodonStatus
	if err := m.api.postJSON(ctx, "/api/v1/statuses", body, &created); err != nil {
		return nil, err
	}

	return &model.PublishResult{
		Success:        true,
		PlatformPostID: created.ID,
		PlatformURL:    created.URL,
		MediaType:      media.GuessMediaType(post.MediaURLs),
	}, nil
}

func (m *Mastodon) validate(status string, post *model.Post) error {
	if strings.TrimSpace(status) == "" && len(post.MediaURLs) == 0 {
		return &ValidationError{Platform: PlatformMastodon, Reason: "status must carry text or media"}
	}
	if n := len([]rune(status)); n > mastodonMaxStatusLen {
		return &ValidationError{Platform: PlatformMastodon, Reason: fmt.Sprintf("status is %d characters, limit is %d", n, mastodonMaxStatusLen)}
	}
	if len(post.MediaURLs) > mastodonMaxMedia {
		return &ValidationError{Platform: PlatformMastodon, Reason: fmt.Sprintf("%d media attachments, limit is %d", len(post.MediaURLs), mastodonMaxMedia)}
	}
	return nil
}

// uploadMedia pushes one attachment through the v2 media endpoint.
func (m *Mastodon) uploadMedia(ctx context.Context, mediaURL string) (string, error) {
	data, contentType, err := m.media.Resolve(ctx, mediaURL)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", fileNameFor(contentType))
	if err != nil {
		return "", err
	}
	if _, err := part.Write(data); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.api.baseURL+"/api/v2/media", &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var attachment struct {
		ID string `json:"id"`
	}
	if err := m.api.doRequest(req, &attachment); err != nil {
		return "", err
	}
	return attachment.ID, nil
}

// UpdatePost edits the status text in place.
func (m *Mastodon) UpdatePost(ctx context.Context, platformPostID, content string) error {
	body := map[string]string{"status": content}
	return m.api.putJSON(ctx, "/api/v1/statuses/"+platformPostID, body, nil)
}

// DeletePost removes the status.
func (m *Mastodon) DeletePost(ctx context.Context, platformPostID string) error {
	return m.api.delete(ctx, "/api/v1/statuses/"+platformPostID)
}

// GetPosts lists the account's recent statuses.
func (m *Mastodon) GetPosts(ctx context.Context, limit int) ([]model.PublishResult, error) {
	var statuses []mastodonStatus
	endpoint := fmt.Sprintf("/api/v1/accounts/%s/statuses?limit=%d", m.accountID, limit)
	if err := m.api.getJSON(ctx, endpoint, &statuses); err != nil {
		return nil, err
	}

	results := make([]model.PublishResult, 0, len(statuses))
	for _, s := range statuses {
		results = append(results, model.PublishResult{
			Success:        true,
			PlatformPostID: s.ID,
			PlatformURL:    s.URL,
		})
	}
	return results, nil
}

// TestConnection verifies the credential against the instance.
func (m *Mastodon) TestConnection(ctx context.Context) error {
	var account struct {
		ID string `json:"id"`
	}
	return m.api.getJSON(ctx, "/api/v1/accounts/verify_credentials", &account)
}

// composeCaption appends hashtags that are not already in the content.
func composeCaption(content string, hashtags []string) string {
	var extra []string
	for _, tag := range hashtags {
		tag = strings.TrimPrefix(tag, "#")
		if tag == "" {
			continue
		}
		if !strings.Contains(content, "#"+tag) {
			extra = append(extra, "#"+tag)
		}
	}
	if len(extra) == 0 {
		return content
	}
	if strings.TrimSpace(content) == "" {
		return strings.Join(extra, " ")
	}
	return content + "\n\n" + strings.Join(extra, " ")
}

func fileNameFor(contentType string) string {
	switch {
	case strings.HasPrefix(contentType, "video/"):
		return "media.mp4"
	case contentType == "image/png":
		return "media.png"
	default:
		return "media.jpg"
	}
}
