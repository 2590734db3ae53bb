package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/postpilot/api/internal/media"
	"github.com/postpilot/api/internal/model"
)

const tiktokMaxCaptionLen = 2200

// TikTok publishes via chunked upload: an init call hands back byte-range
// instructions, each chunk PUT returns an acknowledgment token, and the
// finalize call takes the tokens in upload order to assemble the video.
type TikTok struct {
	api          *restClient
	media        MediaSource
	clientKey    string
	clientSecret string
	refreshToken string
}

func NewTikTok(ch *model.Channel, mediaSource MediaSource) *TikTok {
	baseURL := ch.Meta("apiUrl")
	if baseURL == "" {
		baseURL = "https://open.tiktokapis.com"
	}
	return &TikTok{
		api:          newRESTClient(PlatformTikTok, baseURL, ch.AccessToken),
		media:        mediaSource,
		clientKey:    ch.Meta("clientKey"),
		clientSecret: ch.Meta("clientSecret"),
		refreshToken: ch.RefreshToken,
	}
}

func (t *TikTok) Platform() string { return PlatformTikTok }
func (t *TikTok) Kind() Kind       { return KindChunkedUpload }

type tiktokChunk struct {
	Start     int64  `json:"start"`
	End       int64  `json:"end"`
	UploadURL string `json:"upload_url"`
}

type tiktokInitResponse struct {
	UploadID string        `json:"upload_id"`
	Chunks   []tiktokChunk `json:"chunks"`
}

// Publish uploads the video in chunks and creates the post from the
// finalized asset.
func (t *TikTok) Publish(ctx context.Context, post *model.Post) (*model.PublishResult, error) {
	caption := composeCaption(post.Content, post.Hashtags)
	if err := t.validate(caption, post); err != nil {
		return nil, err
	}

	data, contentType, err := t.media.Resolve(ctx, post.MediaURLs[0])
	if err != nil {
		return nil, fmt.Errorf("failed to resolve video: %w", err)
	}

	init, err := t.initUpload(ctx, int64(len(data)))
	if err != nil {
		return nil, err
	}

	tokens, err := t.uploadChunks(ctx, init, data, contentType)
	if err != nil {
		return nil, err
	}

	videoID, err := t.finalizeUpload(ctx, init.UploadID, tokens)
	if err != nil {
		return nil, err
	}

	var created struct {
		PostID   string `json:"post_id"`
		ShareURL string `json:"share_url"`
	}
	createBody := map[string]string{
		"video_id": videoID,
		"caption":  caption,
	}
	if err := t.api.postJSON(ctx, "/v2/post/publish/", createBody, &created); err != nil {
		return nil, err
	}

	return &model.PublishResult{
		Success:        true,
		PlatformPostID: created.PostID,
		PlatformURL:    created.ShareURL,
		MediaType:      model.MediaTypeVideo,
	}, nil
}

func (t *TikTok) validate(caption string, post *model.Post) error {
	if len(post.MediaURLs) != 1 {
		return &ValidationError{Platform: PlatformTikTok, Reason: fmt.Sprintf("expected exactly one video, got %d media items", len(post.MediaURLs))}
	}
	if !media.IsVideoURL(post.MediaURLs[0]) {
		return &ValidationError{Platform: PlatformTikTok, Reason: "media must be a video file"}
	}
	if n := len([]rune(caption)); n > tiktokMaxCaptionLen {
		return &ValidationError{Platform: PlatformTikTok, Reason: fmt.Sprintf("caption is %d characters, limit is %d", n, tiktokMaxCaptionLen)}
	}
	return nil
}

func (t *TikTok) initUpload(ctx context.Context, size int64) (*tiktokInitResponse, error) {
	body := map[string]interface{}{
		"source":     "FILE_UPLOAD",
		"video_size": size,
	}

	var init tiktokInitResponse
	if err := t.api.postJSON(ctx, "/v2/post/publish/video/init/", body, &init); err != nil {
		return nil, err
	}
	if init.UploadID == "" || len(init.Chunks) == 0 {
		return nil, fmt.Errorf("tiktok returned no upload instructions")
	}
	return &init, nil
}

// uploadChunks PUTs each instructed byte range and collects the per-chunk
// acknowledgment tokens. Order matters: finalize replays them as uploaded.
func (t *TikTok) uploadChunks(ctx context.Context, init *tiktokInitResponse, data []byte, contentType string) ([]string, error) {
	total := int64(len(data))
	tokens := make([]string, 0, len(init.Chunks))

	for i, chunk := range init.Chunks {
		if chunk.Start < 0 || chunk.End >= total || chunk.Start > chunk.End {
			return nil, fmt.Errorf("tiktok chunk %d has invalid range %d-%d for %d bytes", i, chunk.Start, chunk.End, total)
		}

		headers := map[string]string{
			"Content-Range": fmt.Sprintf("bytes %d-%d/%d", chunk.Start, chunk.End, total),
		}

		var ack struct {
			Token string `json:"token"`
		}
		if err := t.api.putBytes(ctx, chunk.UploadURL, data[chunk.Start:chunk.End+1], contentType, headers, &ack); err != nil {
			return nil, fmt.Errorf("chunk %d upload failed: %w", i, err)
		}
		if ack.Token == "" {
			return nil, fmt.Errorf("tiktok chunk %d returned no acknowledgment token", i)
		}
		tokens = append(tokens, ack.Token)
	}

	return tokens, nil
}

func (t *TikTok) finalizeUpload(ctx context.Context, uploadID string, tokens []string) (string, error) {
	body := map[string]interface{}{
		"upload_id": uploadID,
		"tokens":    tokens,
	}

	var finalized struct {
		VideoID string `json:"video_id"`
	}
	if err := t.api.postJSON(ctx, "/v2/post/publish/finalize/", body, &finalized); err != nil {
		return "", err
	}
	if finalized.VideoID == "" {
		return "", fmt.Errorf("tiktok finalize returned no video id")
	}
	return finalized.VideoID, nil
}

// DeletePost removes the published video.
func (t *TikTok) DeletePost(ctx context.Context, platformPostID string) error {
	body := map[string]string{"post_id": platformPostID}
	return t.api.postJSON(ctx, "/v2/post/delete/", body, nil)
}

// TestConnection verifies the credential.
func (t *TikTok) TestConnection(ctx context.Context) error {
	var info struct {
		Data struct {
			User struct {
				OpenID string `json:"open_id"`
			} `json:"user"`
		} `json:"data"`
	}
	return t.api.getJSON(ctx, "/v2/user/info/", &info)
}

// RefreshAccessToken exchanges the channel's refresh token for a new
// access token. Refresh runs as its own operation, never mid-publish.
func (t *TikTok) RefreshAccessToken(ctx context.Context) (string, time.Duration, error) {
	if t.refreshToken == "" {
		return "", 0, ErrNotSupported
	}

	body := map[string]string{
		"client_key":    t.clientKey,
		"client_secret": t.clientSecret,
		"grant_type":    "refresh_token",
		"refresh_token": t.refreshToken,
	}

	var refreshed struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := t.api.postJSON(ctx, "/v2/oauth/token/", body, &refreshed); err != nil {
		return "", 0, err
	}
	if refreshed.AccessToken == "" {
		return "", 0, fmt.Errorf("tiktok token refresh returned no access token")
	}
	return refreshed.AccessToken, time.Duration(refreshed.ExpiresIn) * time.Second, nil
}
