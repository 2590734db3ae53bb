package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/postpilot/api/internal/media"
	"github.com/postpilot/api/internal/model"
)

const (
	linkedinMaxCaptionLen = 3000
	linkedinMaxImages     = 9

	// LinkedIn gives no "asset ready" signal after the upload PUT; waiting a
	// fixed settle delay before referencing the asset avoids a create racing
	// the ingest.
	linkedinSettleDelay = 3 * time.Second
)

// LinkedIn publishes via two-phase upload: register an upload target for
// each asset, PUT the raw bytes, wait the settle delay, then create the
// UGC post referencing the asset URNs. Published UGC posts cannot be
// edited, so the editor capability is absent.
type LinkedIn struct {
	api         *restClient
	media       MediaSource
	author      string
	settleDelay time.Duration
}

func NewLinkedIn(ch *model.Channel, mediaSource MediaSource) *LinkedIn {
	baseURL := ch.Meta("apiUrl")
	if baseURL == "" {
		baseURL = "https://api.linkedin.com"
	}

	author := "urn:li:person:" + ch.Meta("memberId")
	if orgID := ch.Meta("organizationId"); orgID != "" {
		author = "urn:li:organization:" + orgID
	}

	return &LinkedIn{
		api:         newRESTClient(PlatformLinkedIn, baseURL, ch.AccessToken),
		media:       mediaSource,
		author:      author,
		settleDelay: linkedinSettleDelay,
	}
}

func (l *LinkedIn) Platform() string { return PlatformLinkedIn }
func (l *LinkedIn) Kind() Kind       { return KindTwoPhaseUpload }

type linkedinRegisterResponse struct {
	Value struct {
		Asset           string `json:"asset"`
		UploadMechanism struct {
			Request struct {
				UploadURL string `json:"uploadUrl"`
			} `json:"com.linkedin.digitalmedia.uploading.MediaUploadHttpRequest"`
		} `json:"uploadMechanism"`
	} `json:"value"`
}

// Publish runs the two-phase protocol and creates the UGC post.
func (l *LinkedIn) Publish(ctx context.Context, post *model.Post) (*model.PublishResult, error) {
	caption := composeCaption(post.Content, post.Hashtags)
	if err := l.validate(caption, post); err != nil {
		return nil, err
	}

	var assets []string
	for _, mediaURL := range post.MediaURLs {
		asset, err := l.uploadAsset(ctx, mediaURL)
		if err != nil {
			return nil, fmt.Errorf("asset upload failed: %w", err)
		}
		assets = append(assets, asset)
	}

	if len(assets) > 0 {
		if err := l.settle(ctx); err != nil {
			return nil, err
		}
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := l.api.postJSON(ctx, "/v2/ugcPosts", l.ugcPostBody(caption, post, assets), &created); err != nil {
		return nil, err
	}

	return &model.PublishResult{
		Success:        true,
		PlatformPostID: created.ID,
		PlatformURL:    "https://www.linkedin.com/feed/update/" + created.ID,
		MediaType:      media.GuessMediaType(post.MediaURLs),
	}, nil
}

func (l *LinkedIn) validate(caption string, post *model.Post) error {
	if n := len([]rune(caption)); n > linkedinMaxCaptionLen {
		return &ValidationError{Platform: PlatformLinkedIn, Reason: fmt.Sprintf("caption is %d characters, limit is %d", n, linkedinMaxCaptionLen)}
	}
	videos := 0
	for _, u := range post.MediaURLs {
		if media.IsVideoURL(u) {
			videos++
		}
	}
	if videos > 0 && len(post.MediaURLs) > 1 {
		return &ValidationError{Platform: PlatformLinkedIn, Reason: "video posts carry exactly one media item"}
	}
	if len(post.MediaURLs) > linkedinMaxImages {
		return &ValidationError{Platform: PlatformLinkedIn, Reason: fmt.Sprintf("%d images, limit is %d", len(post.MediaURLs), linkedinMaxImages)}
	}
	return nil
}

// uploadAsset registers an upload target and PUTs the raw bytes to it.
func (l *LinkedIn) uploadAsset(ctx context.Context, mediaURL string) (string, error) {
	recipe := "urn:li:digitalmediaRecipe:feedshare-image"
	if media.IsVideoURL(mediaURL) {
		recipe = "urn:li:digitalmediaRecipe:feedshare-video"
	}

	registerBody := map[string]interface{}{
		"registerUploadRequest": map[string]interface{}{
			"recipes": []string{recipe},
			"owner":   l.author,
			"serviceRelationships": []map[string]string{
				{"relationshipType": "OWNER", "identifier": "urn:li:userGeneratedContent"},
			},
		},
	}

	var registered linkedinRegisterResponse
	if err := l.api.postJSON(ctx, "/v2/assets?action=registerUpload", registerBody, &registered); err != nil {
		return "", err
	}

	uploadURL := registered.Value.UploadMechanism.Request.UploadURL
	if uploadURL == "" || registered.Value.Asset == "" {
		return "", fmt.Errorf("linkedin returned an incomplete upload registration")
	}

	data, contentType, err := l.media.Resolve(ctx, mediaURL)
	if err != nil {
		return "", err
	}

	if err := l.api.putBytes(ctx, uploadURL, data, contentType, nil, nil); err != nil {
		return "", err
	}

	return registered.Value.Asset, nil
}

// settle waits the fixed delay the platform needs before an uploaded asset
// is safe to reference.
func (l *LinkedIn) settle(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(l.settleDelay):
		return nil
	}
}

func (l *LinkedIn) ugcPostBody(caption string, post *model.Post, assets []string) map[string]interface{} {
	category := "NONE"
	if len(assets) > 0 {
		category = "IMAGE"
		if len(post.MediaURLs) == 1 && media.IsVideoURL(post.MediaURLs[0]) {
			category = "VIDEO"
		}
	}

	shareContent := map[string]interface{}{
		"shareCommentary":    map[string]string{"text": caption},
		"shareMediaCategory": category,
	}

	if len(assets) > 0 {
		mediaEntries := make([]map[string]interface{}, 0, len(assets))
		for _, asset := range assets {
			entry := map[string]interface{}{
				"status": "READY",
				"media":  asset,
			}
			if post.Title != "" {
				entry["title"] = map[string]string{"text": post.Title}
			}
			mediaEntries = append(mediaEntries, entry)
		}
		shareContent["media"] = mediaEntries
	}

	return map[string]interface{}{
		"author":         l.author,
		"lifecycleState": "PUBLISHED",
		"specificContent": map[string]interface{}{
			"com.linkedin.ugc.ShareContent": shareContent,
		},
		"visibility": map[string]string{
			"com.linkedin.ugc.MemberNetworkVisibility": "PUBLIC",
		},
	}
}

// DeletePost removes the UGC post.
func (l *LinkedIn) DeletePost(ctx context.Context, platformPostID string) error {
	return l.api.delete(ctx, "/v2/ugcPosts/"+sanitizeURN(platformPostID))
}

// TestConnection verifies the credential.
func (l *LinkedIn) TestConnection(ctx context.Context) error {
	var me struct {
		ID string `json:"id"`
	}
	return l.api.getJSON(ctx, "/v2/me", &me)
}

func sanitizeURN(urn string) string {
	return strings.ReplaceAll(urn, ":", "%3A")
}
