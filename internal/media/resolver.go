package media

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/postpilot/api/internal/model"
)

const r2Scheme = "r2://"

// Resolver turns a media reference — an http(s) URL or an r2://<key> from
// the media library — into raw bytes for providers that upload directly,
// or a publicly reachable URL for providers that ingest by URL.
type Resolver struct {
	storage    Storage
	httpClient *http.Client
}

func NewResolver(storage Storage) *Resolver {
	return &Resolver{
		storage: storage,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// Resolve fetches the bytes and content type behind a media reference.
func (r *Resolver) Resolve(ctx context.Context, rawURL string) ([]byte, string, error) {
	if key, ok := strings.CutPrefix(rawURL, r2Scheme); ok {
		if r.storage == nil {
			return nil, "", fmt.Errorf("media storage not configured, cannot resolve %s", rawURL)
		}
		return r.storage.Download(ctx, key)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("invalid media URL %s: %w", rawURL, err)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to fetch media %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("media fetch %s returned status %d", rawURL, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read media %s: %w", rawURL, err)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return data, contentType, nil
}

// PublicURL returns a URL the platform can fetch the media from. Library
// keys get a time-limited signed URL; anything else passes through.
func (r *Resolver) PublicURL(ctx context.Context, rawURL string) (string, error) {
	key, ok := strings.CutPrefix(rawURL, r2Scheme)
	if !ok {
		return rawURL, nil
	}
	if r.storage == nil {
		return "", fmt.Errorf("media storage not configured, cannot sign %s", rawURL)
	}
	return r.storage.GetSignedURL(ctx, key, time.Hour)
}

// GuessMediaType classifies a post's media by its URLs.
func GuessMediaType(urls []string) model.MediaType {
	if len(urls) == 0 {
		return model.MediaTypeText
	}
	if len(urls) > 1 {
		return model.MediaTypeCarousel
	}
	if IsVideoURL(urls[0]) {
		return model.MediaTypeVideo
	}
	return model.MediaTypeImage
}

// IsVideoURL reports whether a media reference looks like a video file.
func IsVideoURL(rawURL string) bool {
	u := strings.ToLower(rawURL)
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	for _, ext := range []string{".mp4", ".mov", ".m4v", ".webm"} {
		if strings.HasSuffix(u, ext) {
			return true
		}
	}
	return false
}
