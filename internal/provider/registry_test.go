package provider

import (
	"context"
	"testing"

	"github.com/postpilot/api/internal/model"
)

// fakeMedia is a canned MediaSource for adapter tests.
type fakeMedia struct {
	data        []byte
	contentType string
	publicURL   string
}

func (f *fakeMedia) Resolve(ctx context.Context, rawURL string) ([]byte, string, error) {
	return f.data, f.contentType, nil
}

func (f *fakeMedia) PublicURL(ctx context.Context, rawURL string) (string, error) {
	if f.publicURL != "" {
		return f.publicURL, nil
	}
	return rawURL, nil
}

func testChannel(platform, apiURL string) *model.Channel {
	return &model.Channel{
		ID:          "ch-1",
		Platform:    platform,
		AccessToken: "token",
		Metadata: map[string]string{
			"apiUrl":    apiURL,
			"serverUrl": apiURL,
			"igUserId":  "17890",
			"memberId":  "abc123",
			"accountId": "42",
		},
	}
}

func TestRegistryResolvesAllPlatforms(t *testing.T) {
	t.Parallel()
	r := NewRegistry(&fakeMedia{})

	tests := []struct {
		platform string
		kind     Kind
	}{
		{platform: PlatformMastodon, kind: KindDirect},
		{platform: PlatformLinkedIn, kind: KindTwoPhaseUpload},
		{platform: PlatformTikTok, kind: KindChunkedUpload},
		{platform: PlatformInstagram, kind: KindContainerPoll},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.platform, func(t *testing.T) {
			p, err := r.Resolve(testChannel(tt.platform, ""))
			if err != nil {
				t.Fatalf("Resolve(%s) error: %v", tt.platform, err)
			}
			if p.Platform() != tt.platform {
				t.Fatalf("Platform() = %s, want %s", p.Platform(), tt.platform)
			}
			if p.Kind() != tt.kind {
				t.Fatalf("Kind() = %s, want %s", p.Kind(), tt.kind)
			}
			if _, ok := p.(Publisher); !ok {
				t.Fatalf("%s does not publish", tt.platform)
			}
		})
	}
}

func TestRegistryRejectsUnknownPlatform(t *testing.T) {
	t.Parallel()
	r := NewRegistry(&fakeMedia{})
	if _, err := r.Resolve(testChannel("myspace", "")); err == nil {
		t.Fatal("expected error for unknown platform")
	}
}

// Capability gaps are structural: the type assertion fails instead of a
// stub method throwing at call time.
func TestCapabilityMatrix(t *testing.T) {
	t.Parallel()
	r := NewRegistry(&fakeMedia{})

	mastodon, _ := r.Resolve(testChannel(PlatformMastodon, ""))
	linkedin, _ := r.Resolve(testChannel(PlatformLinkedIn, ""))
	tiktok, _ := r.Resolve(testChannel(PlatformTikTok, ""))
	instagram, _ := r.Resolve(testChannel(PlatformInstagram, ""))

	if _, ok := mastodon.(PostEditor); !ok {
		t.Fatal("mastodon should edit posts")
	}
	if _, ok := linkedin.(PostEditor); ok {
		t.Fatal("linkedin cannot edit published UGC posts")
	}
	if _, ok := tiktok.(PostEditor); ok {
		t.Fatal("tiktok cannot edit posts")
	}
	if _, ok := instagram.(AnalyticsSource); !ok {
		t.Fatal("instagram should expose analytics")
	}
	if _, ok := mastodon.(PostReader); !ok {
		t.Fatal("mastodon should list posts")
	}
	if _, ok := tiktok.(TokenRefresher); !ok {
		t.Fatal("tiktok should refresh tokens")
	}
	if _, ok := mastodon.(TokenRefresher); ok {
		t.Fatal("mastodon tokens do not expire")
	}

	for _, p := range []Provider{mastodon, linkedin, tiktok, instagram} {
		if _, ok := p.(PostDeleter); !ok {
			t.Fatalf("%s should delete posts", p.Platform())
		}
		if _, ok := p.(ConnectionTester); !ok {
			t.Fatalf("%s should test connections", p.Platform())
		}
	}
}

func TestPublishHelperRejectsNonPublisher(t *testing.T) {
	t.Parallel()
	if _, err := Publish(context.Background(), bareProvider{}, &model.Post{}); err != ErrNotSupported {
		t.Fatalf("expected ErrNotSupported, got %v", err)
	}
}

type bareProvider struct{}

func (bareProvider) Platform() string { return "bare" }
func (bareProvider) Kind() Kind       { return KindDirect }
