package provider

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/postpilot/api/internal/media"
	"github.com/postpilot/api/internal/model"
)

const (
	instagramMaxCaptionLen = 2200
	instagramMaxHashtags   = 30
	instagramMaxCarousel   = 10
	instagramPollInterval  = 5 * time.Second
	instagramImageDeadline = 60 * time.Second
	instagramVideoDeadline = 120 * time.Second
	instagramReelsDeadline = 180 * time.Second
)

// Instagram publishes through the Graph API container protocol: create a
// processing container per media item, poll it to FINISHED, then issue
// media_publish. Carousel children are created and polled to completion
// before the parent container exists; the parent is itself polled before
// the final publish call. A container that never finishes inside its
// deadline times out without media_publish ever being issued.
type Instagram struct {
	api          *restClient
	media        MediaSource
	igUserID     string
	videoAsReels bool
	pollInterval time.Duration

	imageDeadline time.Duration
	videoDeadline time.Duration
	reelsDeadline time.Duration
}

func NewInstagram(ch *model.Channel, mediaSource MediaSource) *Instagram {
	baseURL := ch.Meta("apiUrl")
	if baseURL == "" {
		baseURL = "https://graph.facebook.com/v19.0"
	}
	return &Instagram{
		api:           newRESTClient(PlatformInstagram, baseURL, ch.AccessToken),
		media:         mediaSource,
		igUserID:      ch.Meta("igUserId"),
		videoAsReels:  ch.Meta("publishVideoAs") == "reels",
		pollInterval:  instagramPollInterval,
		imageDeadline: instagramImageDeadline,
		videoDeadline: instagramVideoDeadline,
		reelsDeadline: instagramReelsDeadline,
	}
}

func (g *Instagram) Platform() string { return PlatformInstagram }
func (g *Instagram) Kind() Kind       { return KindContainerPoll }

// Publish drives the container state machine to a published post.
func (g *Instagram) Publish(ctx context.Context, post *model.Post) (*model.PublishResult, error) {
	caption := composeCaption(post.Content, post.Hashtags)
	if err := g.validate(caption, post); err != nil {
		return nil, err
	}

	var containerID string
	var err error
	if len(post.MediaURLs) > 1 {
		containerID, err = g.createCarousel(ctx, caption, post.MediaURLs)
	} else {
		containerID, err = g.createSingle(ctx, caption, post.MediaURLs[0])
	}
	if err != nil {
		return nil, err
	}

	postID, err := g.publishContainer(ctx, containerID)
	if err != nil {
		return nil, err
	}

	permalink, err := g.fetchPermalink(ctx, postID)
	if err != nil {
		// The post is live; a missing permalink is not worth a retry.
		permalink = ""
	}

	return &model.PublishResult{
		Success:        true,
		PlatformPostID: postID,
		PlatformURL:    permalink,
		MediaType:      media.GuessMediaType(post.MediaURLs),
	}, nil
}

func (g *Instagram) validate(caption string, post *model.Post) error {
	if len(post.MediaURLs) == 0 {
		return &ValidationError{Platform: PlatformInstagram, Reason: "instagram posts require at least one media item"}
	}
	if len(post.MediaURLs) > instagramMaxCarousel {
		return &ValidationError{Platform: PlatformInstagram, Reason: fmt.Sprintf("%d media items, carousel limit is %d", len(post.MediaURLs), instagramMaxCarousel)}
	}
	if n := len([]rune(caption)); n > instagramMaxCaptionLen {
		return &ValidationError{Platform: PlatformInstagram, Reason: fmt.Sprintf("caption is %d characters, limit is %d", n, instagramMaxCaptionLen)}
	}
	if len(post.Hashtags) > instagramMaxHashtags {
		return &ValidationError{Platform: PlatformInstagram, Reason: fmt.Sprintf("%d hashtags, limit is %d", len(post.Hashtags), instagramMaxHashtags)}
	}
	return nil
}

// createSingle creates one media container and polls it to completion.
func (g *Instagram) createSingle(ctx context.Context, caption, mediaURL string) (string, error) {
	containerID, deadline, err := g.createContainer(ctx, caption, mediaURL, false)
	if err != nil {
		return "", err
	}
	if err := g.waitForContainer(ctx, containerID, deadline); err != nil {
		return "", err
	}
	return containerID, nil
}

// createCarousel creates and polls every child container before the parent
// container exists, then polls the parent.
func (g *Instagram) createCarousel(ctx context.Context, caption string, mediaURLs []string) (string, error) {
	children := make([]string, 0, len(mediaURLs))
	for _, mediaURL := range mediaURLs {
		childID, deadline, err := g.createContainer(ctx, "", mediaURL, true)
		if err != nil {
			return "", fmt.Errorf("carousel item failed: %w", err)
		}
		if err := g.waitForContainer(ctx, childID, deadline); err != nil {
			return "", fmt.Errorf("carousel item failed: %w", err)
		}
		children = append(children, childID)
	}

	body := map[string]interface{}{
		"media_type": "CAROUSEL",
		"children":   children,
		"caption":    caption,
	}
	var parent struct {
		ID string `json:"id"`
	}
	if err := g.api.postJSON(ctx, "/"+g.igUserID+"/media", body, &parent); err != nil {
		return "", err
	}
	if parent.ID == "" {
		return "", fmt.Errorf("instagram returned no carousel container id")
	}

	if err := g.waitForContainer(ctx, parent.ID, g.imageDeadline); err != nil {
		return "", err
	}
	return parent.ID, nil
}

// createContainer creates one processing container and reports the polling
// deadline appropriate for its media type.
func (g *Instagram) createContainer(ctx context.Context, caption, mediaURL string, carouselItem bool) (string, time.Duration, error) {
	publicURL, err := g.media.PublicURL(ctx, mediaURL)
	if err != nil {
		return "", 0, fmt.Errorf("failed to resolve media URL: %w", err)
	}

	body := map[string]interface{}{}
	deadline := g.imageDeadline
	if media.IsVideoURL(mediaURL) {
		body["video_url"] = publicURL
		if g.videoAsReels && !carouselItem {
			body["media_type"] = "REELS"
			deadline = g.reelsDeadline
		} else {
			body["media_type"] = "VIDEO"
			deadline = g.videoDeadline
		}
	} else {
		body["image_url"] = publicURL
	}
	if caption != "" {
		body["caption"] = caption
	}
	if carouselItem {
		body["is_carousel_item"] = true
	}

	var container struct {
		ID string `json:"id"`
	}
	if err := g.api.postJSON(ctx, "/"+g.igUserID+"/media", body, &container); err != nil {
		return "", 0, err
	}
	if container.ID == "" {
		return "", 0, fmt.Errorf("instagram returned no container id")
	}
	return container.ID, deadline, nil
}

// waitForContainer polls the container status until it finishes or the
// deadline converts it into a timeout.
func (g *Instagram) waitForContainer(ctx context.Context, containerID string, deadline time.Duration) error {
	watcher := Watcher{
		Platform: PlatformInstagram,
		Interval: g.pollInterval,
		Deadline: deadline,
	}

	return watcher.Wait(ctx, containerID, func(ctx context.Context) (HandleStatus, string, error) {
		var status struct {
			StatusCode string `json:"status_code"`
			Status     string `json:"status"`
		}
		if err := g.api.getJSON(ctx, "/"+containerID+"?fields=status_code,status", &status); err != nil {
			return "", "", err
		}

		switch status.StatusCode {
		case "FINISHED", "PUBLISHED":
			return HandleFinished, "", nil
		case "ERROR", "EXPIRED":
			return HandleError, status.Status, nil
		case "IN_PROGRESS":
			return HandleProcessing, "", nil
		default:
			return HandlePending, "", nil
		}
	})
}

// publishContainer issues the final "make live" call for a finished
// container.
func (g *Instagram) publishContainer(ctx context.Context, containerID string) (string, error) {
	body := map[string]string{"creation_id": containerID}

	var published struct {
		ID string `json:"id"`
	}
	if err := g.api.postJSON(ctx, "/"+g.igUserID+"/media_publish", body, &published); err != nil {
		return "", err
	}
	if published.ID == "" {
		return "", fmt.Errorf("instagram publish returned no media id")
	}
	return published.ID, nil
}

func (g *Instagram) fetchPermalink(ctx context.Context, postID string) (string, error) {
	var info struct {
		Permalink string `json:"permalink"`
	}
	if err := g.api.getJSON(ctx, "/"+postID+"?fields=permalink", &info); err != nil {
		return "", err
	}
	return info.Permalink, nil
}

// DeletePost removes the published media.
func (g *Instagram) DeletePost(ctx context.Context, platformPostID string) error {
	return g.api.delete(ctx, "/"+platformPostID)
}

// GetPostAnalytics reads per-post engagement metrics from the insights
// edge.
func (g *Instagram) GetPostAnalytics(ctx context.Context, platformPostID string) (map[string]int64, error) {
	metrics := url.QueryEscape("impressions,reach,likes,comments,saved")
	var insights struct {
		Data []struct {
			Name   string `json:"name"`
			Values []struct {
				Value int64 `json:"value"`
			} `json:"values"`
		} `json:"data"`
	}
	if err := g.api.getJSON(ctx, "/"+platformPostID+"/insights?metric="+metrics, &insights); err != nil {
		return nil, err
	}

	out := make(map[string]int64, len(insights.Data))
	for _, metric := range insights.Data {
		if len(metric.Values) > 0 {
			out[metric.Name] = metric.Values[0].Value
		}
	}
	return out, nil
}

// TestConnection verifies the credential against the IG user node.
func (g *Instagram) TestConnection(ctx context.Context) error {
	var user struct {
		ID string `json:"id"`
	}
	return g.api.getJSON(ctx, "/"+g.igUserID+"?fields=id", &user)
}
