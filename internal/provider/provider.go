package provider

import (
	"context"
	"time"

	"github.com/postpilot/api/internal/model"
)

// Kind tags the publish state-machine shape a platform uses.
type Kind string

const (
	// KindDirect posts in a single synchronous request.
	KindDirect Kind = "direct"
	// KindTwoPhaseUpload registers an upload target, PUTs the bytes, waits a
	// fixed settle delay, then creates the post referencing the asset.
	KindTwoPhaseUpload Kind = "two_phase_upload"
	// KindChunkedUpload uploads byte ranges collecting per-chunk tokens,
	// finalizes with the ordered token list, then creates the post.
	KindChunkedUpload Kind = "chunked_upload"
	// KindContainerPoll creates a processing container, polls it to
	// completion, then publishes the finished container.
	KindContainerPoll Kind = "container_poll"
)

// Provider is the minimal contract every platform adapter satisfies.
// Capabilities beyond this are modeled structurally: a platform that cannot
// edit posts simply does not implement PostEditor, and callers discover
// that with a type assertion instead of hitting a throwing stub.
type Provider interface {
	Platform() string
	Kind() Kind
}

// Publisher publishes a post and reports the normalized result.
type Publisher interface {
	Provider
	Publish(ctx context.Context, post *model.Post) (*model.PublishResult, error)
}

// PostEditor updates the content of an already published post.
type PostEditor interface {
	Provider
	UpdatePost(ctx context.Context, platformPostID, content string) error
}

// PostDeleter removes a published post.
type PostDeleter interface {
	Provider
	DeletePost(ctx context.Context, platformPostID string) error
}

// PostReader lists recent posts published through the channel.
type PostReader interface {
	Provider
	GetPosts(ctx context.Context, limit int) ([]model.PublishResult, error)
}

// AnalyticsSource reads per-post engagement metrics.
type AnalyticsSource interface {
	Provider
	GetPostAnalytics(ctx context.Context, platformPostID string) (map[string]int64, error)
}

// ConnectionTester verifies the channel credential still works.
type ConnectionTester interface {
	Provider
	TestConnection(ctx context.Context) error
}

// TokenRefresher exchanges the channel's refresh token for a new access
// token. Refresh is an explicit operation, never interleaved mid-publish.
type TokenRefresher interface {
	Provider
	RefreshAccessToken(ctx context.Context) (accessToken string, expiresIn time.Duration, err error)
}

// Publish resolves the Publisher capability on p, returning ErrNotSupported
// for platforms that cannot publish at all.
func Publish(ctx context.Context, p Provider, post *model.Post) (*model.PublishResult, error) {
	pub, ok := p.(Publisher)
	if !ok {
		return nil, ErrNotSupported
	}
	return pub.Publish(ctx, post)
}
