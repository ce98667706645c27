package rss

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"wingman/internal/watch"
	"wingman/pkg/logx"
)

type fakeRecorder struct {
	seen map[watch.Key]bool
}

func (f *fakeRecorder) IsSeen(_ context.Context, k watch.Key) (bool, error) {
	return f.seen[k], nil
}

const feedXML = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Release Notes</title>
    <item>
      <title>v2.0 released</title>
      <link>https://example.com/v2</link>
      <guid>release-v2</guid>
      <description>Big update</description>
      <author>editor@example.com (Editor)</author>
      <pubDate>Mon, 10 Aug 2026 12:00:00 GMT</pubDate>
    </item>
    <item>
      <title>v1.9 released</title>
      <link>https://example.com/v19</link>
      <guid>release-v19</guid>
      <description>Old update</description>
    </item>
  </channel>
</rss>`

func TestCheckParsesFeed(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte(feedXML))
	}))
	t.Cleanup(srv.Close)

	w := New(Config{Feeds: []string{srv.URL}}, &fakeRecorder{seen: map[watch.Key]bool{}}, logx.Nop())
	items, err := w.Check(context.Background())
	if err != nil {
		t.Fatalf("Check error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("items = %d, want 2", len(items))
	}
	it := items[0]
	if it.Source != watch.SourceRSS || it.Type != watch.TypePost {
		t.Fatalf("item = %+v", it)
	}
	if it.SourceID != "Release Notes#release-v2" {
		t.Fatalf("source id = %q", it.SourceID)
	}
	if it.Context != "Release Notes" || it.Title != "v2.0 released" {
		t.Fatalf("item = %+v", it)
	}
}

func TestCheckFiltersSeenEntries(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(feedXML))
	}))
	t.Cleanup(srv.Close)

	rec := &fakeRecorder{seen: map[watch.Key]bool{
		{Source: watch.SourceRSS, SourceID: "Release Notes#release-v2", Type: watch.TypePost}: true,
	}}
	w := New(Config{Feeds: []string{srv.URL}}, rec, logx.Nop())

	items, err := w.Check(context.Background())
	if err != nil {
		t.Fatalf("Check error: %v", err)
	}
	if len(items) != 1 || items[0].SourceID != "Release Notes#release-v19" {
		t.Fatalf("items = %+v, want only the unseen entry", items)
	}
}

func TestCheckDeadFeedDoesNotMaskOthers(t *testing.T) {
	t.Parallel()
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(feedXML))
	}))
	t.Cleanup(good.Close)
	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	t.Cleanup(dead.Close)

	w := New(Config{Feeds: []string{dead.URL, good.URL}}, &fakeRecorder{seen: map[watch.Key]bool{}}, logx.Nop())
	items, err := w.Check(context.Background())
	if err != nil {
		t.Fatalf("Check error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("items = %d, want 2 from the healthy feed", len(items))
	}
}
