package provider

import (
	"context"
	"fmt"

	"github.com/postpilot/api/internal/model"
)

// Platform identifiers as stored on channel records.
const (
	PlatformMastodon  = "mastodon"
	PlatformLinkedIn  = "linkedin"
	PlatformTikTok    = "tiktok"
	PlatformInstagram = "instagram"
)

// MediaSource supplies raw bytes or public URLs for a post's media. The
// media library's resolver satisfies this.
type MediaSource interface {
	Resolve(ctx context.Context, rawURL string) (data []byte, contentType string, err error)
	PublicURL(ctx context.Context, rawURL string) (string, error)
}

// Registry resolves a platform identifier plus channel credential into a
// concrete provider instance bound to that channel.
type Registry struct {
	media MediaSource
}

func NewRegistry(media MediaSource) *Registry {
	return &Registry{media: media}
}

// Resolve builds the provider for a channel's platform.
func (r *Registry) Resolve(ch *model.Channel) (Provider, error) {
	switch ch.Platform {
	case PlatformMastodon:
		return NewMastodon(ch, r.media), nil
	case PlatformLinkedIn:
		return NewLinkedIn(ch, r.media), nil
	case PlatformTikTok:
		return NewTikTok(ch, r.media), nil
	case PlatformInstagram:
		return NewInstagram(ch, r.media), nil
	}
	return nil, fmt.Errorf("unknown platform %q for channel %s", ch.Platform, ch.ID)
}
