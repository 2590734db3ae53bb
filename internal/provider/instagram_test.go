package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/postpilot/api/internal/model"
)

// igFixture fakes the Graph API container protocol: containers created via
// POST /{ig}/media report IN_PROGRESS for a fixed number of polls before
// flipping to FINISHED.
type igFixture struct {
	mu             sync.Mutex
	pollsToFinish  int
	nextID         int
	remainingPolls map[string]int
	events         []string
	publishCalls   int
	failContainers bool
}

func newIGFixture(pollsToFinish int) *igFixture {
	return &igFixture{
		pollsToFinish:  pollsToFinish,
		remainingPolls: make(map[string]int),
	}
}

func (f *igFixture) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/17890/media":
			var body map[string]interface{}
			_ = json.NewDecoder(r.Body).Decode(&body)
			f.nextID++
			id := fmt.Sprintf("c%d", f.nextID)
			f.remainingPolls[id] = f.pollsToFinish
			if _, isCarousel := body["children"]; isCarousel {
				f.events = append(f.events, "create-parent "+id)
			} else {
				f.events = append(f.events, "create "+id)
			}
			_ = json.NewEncoder(w).Encode(map[string]string{"id": id})

		case r.Method == http.MethodPost && r.URL.Path == "/17890/media_publish":
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			f.publishCalls++
			f.events = append(f.events, "publish "+body["creation_id"])
			_ = json.NewEncoder(w).Encode(map[string]string{"id": "ig-post-1"})

		case r.Method == http.MethodGet && strings.Contains(r.URL.RawQuery, "status_code"):
			id := strings.TrimPrefix(r.URL.Path, "/")
			f.events = append(f.events, "poll "+id)
			if f.failContainers {
				_ = json.NewEncoder(w).Encode(map[string]string{"status_code": "ERROR", "status": "media rejected"})
				return
			}
			if f.remainingPolls[id] > 0 {
				f.remainingPolls[id]--
				_ = json.NewEncoder(w).Encode(map[string]string{"status_code": "IN_PROGRESS"})
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]string{"status_code": "FINISHED"})

		case r.Method == http.MethodGet && strings.Contains(r.URL.RawQuery, "permalink"):
			_ = json.NewEncoder(w).Encode(map[string]string{"permalink": "https://instagram.example/p/1"})

		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.RequestURI())
		}
	}
}

func newTestInstagram(srvURL string, media MediaSource) *Instagram {
	g := NewInstagram(testChannel(PlatformInstagram, srvURL), media)
	g.pollInterval = time.Millisecond
	return g
}

func TestInstagramSinglePublishPollsBeforePublish(t *testing.T) {
	t.Parallel()
	f := newIGFixture(2)
	srv := httptest.NewServer(f.handler(t))
	defer srv.Close()

	g := newTestInstagram(srv.URL, &fakeMedia{})
	result, err := g.Publish(context.Background(), &model.Post{Content: "pic", MediaURLs: []string{"https://cdn.example/a.jpg"}})
	if err != nil {
		t.Fatalf("Publish error: %v", err)
	}
	if result.PlatformPostID != "ig-post-1" {
		t.Fatalf("PlatformPostID = %s", result.PlatformPostID)
	}
	if result.PlatformURL != "https://instagram.example/p/1" {
		t.Fatalf("PlatformURL = %s", result.PlatformURL)
	}

	// create, 2x in-progress + 1 finished poll, then exactly one publish
	want := []string{"create c1", "poll c1", "poll c1", "poll c1", "publish c1"}
	if len(f.events) != len(want) {
		t.Fatalf("events = %v, want %v", f.events, want)
	}
	for i := range want {
		if f.events[i] != want[i] {
			t.Fatalf("event %d = %s, want %s", i, f.events[i], want[i])
		}
	}
}

func TestInstagramCarouselChildrenPolledBeforeParent(t *testing.T) {
	t.Parallel()
	f := newIGFixture(1)
	srv := httptest.NewServer(f.handler(t))
	defer srv.Close()

	g := newTestInstagram(srv.URL, &fakeMedia{})
	urls := []string{"https://cdn.example/1.jpg", "https://cdn.example/2.jpg", "https://cdn.example/3.jpg"}
	if _, err := g.Publish(context.Background(), &model.Post{Content: "set", MediaURLs: urls}); err != nil {
		t.Fatalf("Publish error: %v", err)
	}

	want := []string{
		"create c1", "poll c1", "poll c1",
		"create c2", "poll c2", "poll c2",
		"create c3", "poll c3", "poll c3",
		"create-parent c4", "poll c4", "poll c4",
		"publish c4",
	}
	if len(f.events) != len(want) {
		t.Fatalf("events = %v, want %v", f.events, want)
	}
	for i := range want {
		if f.events[i] != want[i] {
			t.Fatalf("event %d = %s, want %s", i, f.events[i], want[i])
		}
	}
	if f.publishCalls != 1 {
		t.Fatalf("media_publish called %d times, want 1", f.publishCalls)
	}
}

func TestInstagramContainerErrorNeverPublishes(t *testing.T) {
	t.Parallel()
	f := newIGFixture(0)
	f.failContainers = true
	srv := httptest.NewServer(f.handler(t))
	defer srv.Close()

	g := newTestInstagram(srv.URL, &fakeMedia{})
	_, err := g.Publish(context.Background(), &model.Post{Content: "pic", MediaURLs: []string{"https://cdn.example/a.jpg"}})

	var perr *ProcessingError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ProcessingError, got %v", err)
	}
	if perr.Detail != "media rejected" {
		t.Fatalf("Detail = %s", perr.Detail)
	}
	if f.publishCalls != 0 {
		t.Fatalf("media_publish called %d times on failed container", f.publishCalls)
	}
}

func TestInstagramStalledContainerTimesOutWithoutPublish(t *testing.T) {
	t.Parallel()
	// The container reports IN_PROGRESS forever; the deadline must convert
	// it into a timeout with media_publish never issued.
	f := newIGFixture(1 << 20)
	srv := httptest.NewServer(f.handler(t))
	defer srv.Close()

	g := newTestInstagram(srv.URL, &fakeMedia{})
	g.imageDeadline = 20 * time.Millisecond

	_, err := g.Publish(context.Background(), &model.Post{Content: "pic", MediaURLs: []string{"https://cdn.example/a.jpg"}})

	var terr *ProcessingTimeoutError
	if !errors.As(err, &terr) {
		t.Fatalf("expected ProcessingTimeoutError, got %v", err)
	}
	if f.publishCalls != 0 {
		t.Fatalf("media_publish called %d times on a stalled container", f.publishCalls)
	}
}

func TestInstagramReelsSelection(t *testing.T) {
	t.Parallel()
	var gotMediaType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.URL.Path == "/17890/media" {
			var body map[string]interface{}
			_ = json.NewDecoder(r.Body).Decode(&body)
			gotMediaType, _ = body["media_type"].(string)
			_ = json.NewEncoder(w).Encode(map[string]string{"id": "c1"})
			return
		}
		// First poll finishes immediately; remaining calls succeed blindly.
		_ = json.NewEncoder(w).Encode(map[string]string{"status_code": "FINISHED", "id": "ig-post-2"})
	}))
	defer srv.Close()

	ch := testChannel(PlatformInstagram, srv.URL)
	ch.Metadata["publishVideoAs"] = "reels"
	g := NewInstagram(ch, &fakeMedia{})
	g.pollInterval = time.Millisecond

	if _, err := g.Publish(context.Background(), &model.Post{Content: "v", MediaURLs: []string{"https://cdn.example/v.mp4"}}); err != nil {
		t.Fatalf("Publish error: %v", err)
	}
	if gotMediaType != "REELS" {
		t.Fatalf("media_type = %s, want REELS", gotMediaType)
	}
}

func TestInstagramValidation(t *testing.T) {
	t.Parallel()
	g := newTestInstagram("http://unused.invalid", &fakeMedia{})

	manyTags := make([]string, 31)
	for i := range manyTags {
		manyTags[i] = fmt.Sprintf("tag%d", i)
	}

	tests := []struct {
		name string
		post *model.Post
	}{
		{name: "no media", post: &model.Post{Content: "x"}},
		{name: "too many media", post: &model.Post{Content: "x", MediaURLs: make([]string, 11)}},
		{name: "caption too long", post: &model.Post{Content: strings.Repeat("a", 2201), MediaURLs: []string{"a.jpg"}}},
		{name: "too many hashtags", post: &model.Post{Content: "x", MediaURLs: []string{"a.jpg"}, Hashtags: manyTags}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			_, err := g.Publish(context.Background(), tt.post)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
		})
	}
}
