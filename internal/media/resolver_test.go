package media

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/postpilot/api/internal/model"
)

func TestResolveHTTP(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("pngdata"))
	}))
	defer srv.Close()

	r := NewResolver(nil)
	data, contentType, err := r.Resolve(context.Background(), srv.URL+"/a.png")
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if string(data) != "pngdata" || contentType != "image/png" {
		t.Fatalf("got %q %q", data, contentType)
	}
}

func TestResolveHTTPNon200(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	r := NewResolver(nil)
	if _, _, err := r.Resolve(context.Background(), srv.URL+"/gone.png"); err == nil {
		t.Fatal("expected error for 404 media")
	}
}

func TestResolveLibraryKeyWithoutStorage(t *testing.T) {
	t.Parallel()
	r := NewResolver(nil)
	if _, _, err := r.Resolve(context.Background(), "r2://media/a.png"); err == nil {
		t.Fatal("expected error resolving r2 key without storage")
	}
	if _, err := r.PublicURL(context.Background(), "r2://media/a.png"); err == nil {
		t.Fatal("expected error signing r2 key without storage")
	}
}

func TestPublicURLPassthrough(t *testing.T) {
	t.Parallel()
	r := NewResolver(nil)
	got, err := r.PublicURL(context.Background(), "https://cdn.example/a.png")
	if err != nil {
		t.Fatalf("PublicURL error: %v", err)
	}
	if got != "https://cdn.example/a.png" {
		t.Fatalf("PublicURL = %s", got)
	}
}

func TestGuessMediaType(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		urls []string
		want model.MediaType
	}{
		{name: "none", urls: nil, want: model.MediaTypeText},
		{name: "image", urls: []string{"a.jpg"}, want: model.MediaTypeImage},
		{name: "video", urls: []string{"a.mp4"}, want: model.MediaTypeVideo},
		{name: "multiple", urls: []string{"a.jpg", "b.jpg"}, want: model.MediaTypeCarousel},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := GuessMediaType(tt.urls); got != tt.want {
				t.Fatalf("GuessMediaType(%v) = %s, want %s", tt.urls, got, tt.want)
			}
		})
	}
}

func TestIsVideoURL(t *testing.T) {
	t.Parallel()
	tests := []struct {
		url  string
		want bool
	}{
		{url: "https://cdn.example/a.mp4", want: true},
		{url: "https://cdn.example/a.MOV", want: true},
		{url: "https://cdn.example/a.mp4?sig=abc", want: true},
		{url: "https://cdn.example/a.webm#t=10", want: true},
		{url: "https://cdn.example/a.jpg", want: false},
		{url: "https://cdn.example/mp4.jpg", want: false},
	}

	for _, tt := range tests {
		if got := IsVideoURL(tt.url); got != tt.want {
			t.Fatalf("IsVideoURL(%s) = %v, want %v", tt.url, got, tt.want)
		}
	}
}
