package github

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"wingman/internal/watch"
	"wingman/pkg/logx"
)

type fakeRecorder struct {
	seen map[watch.Key]bool
}

func (f *fakeRecorder) IsSeen(_ context.Context, k watch.Key) (bool, error) {
	return f.seen[k], nil
}

type fakeCursor struct {
	t  time.Time
	ok bool
}

func (f *fakeCursor) LastSuccessful(context.Context, string) (time.Time, bool, error) {
	return f.t, f.ok, nil
}

const issuesJSON = `[
  {"number": 7, "title": "Crash", "body": "boom", "html_url": "https://github.com/o/r/issues/7",
   "created_at": "2026-08-01T10:00:00Z", "updated_at": "2026-08-02T10:00:00Z",
   "user": {"login": "alice"}},
  {"number": 8, "title": "Add thing", "body": "", "html_url": "https://github.com/o/r/pull/8",
   "created_at": "2026-08-01T11:00:00Z", "updated_at": "2026-08-01T11:00:00Z",
   "user": {"login": "bob"}, "pull_request": {}}
]`

const commentsJSON = `[
  {"id": 900, "body": "same here", "html_url": "https://github.com/o/r/issues/7#issuecomment-900",
   "issue_url": "https://api.github.com/repos/o/r/issues/7",
   "created_at": "2026-08-02T12:00:00Z", "user": {"login": "carol"}}
]`

func testServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/o/r/issues/comments", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(commentsJSON))
	})
	mux.HandleFunc("/repos/o/r/issues", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("sort") != "updated" {
			t.Errorf("missing sort=updated, query: %s", r.URL.RawQuery)
		}
		w.Write([]byte(issuesJSON))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestCheckClassifiesIssuesPRsAndComments(t *testing.T) {
	t.Parallel()
	srv := testServer(t)
	w := New(Config{Owner: "o", Repos: []string{"r"}, BaseURL: srv.URL},
		&fakeRecorder{seen: map[watch.Key]bool{}}, &fakeCursor{}, logx.Nop())

	items, err := w.Check(context.Background())
	if err != nil {
		t.Fatalf("Check error: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("items = %d, want 3", len(items))
	}

	byID := map[string]watch.Item{}
	for _, it := range items {
		byID[it.SourceID] = it
	}
	if it, ok := byID["r#issue7"]; !ok || it.Type != watch.TypeIssue || it.Author != "alice" {
		t.Fatalf("issue item wrong: %+v", it)
	}
	if it, ok := byID["r#pr8"]; !ok || it.Type != watch.TypePR {
		t.Fatalf("pull_request field did not map to pr: %+v", it)
	}
	if it, ok := byID["r#comment900"]; !ok || it.Type != watch.TypeComment || it.Title != "Comment on r#7" {
		t.Fatalf("comment item wrong: %+v", it)
	}
}

func TestCheckFiltersSeenItems(t *testing.T) {
	t.Parallel()
	srv := testServer(t)
	rec := &fakeRecorder{seen: map[watch.Key]bool{
		{Source: watch.SourceGitHub, SourceID: "r#issue7", Type: watch.TypeIssue}:     true,
		{Source: watch.SourceGitHub, SourceID: "r#comment900", Type: watch.TypeComment}: true,
	}}
	w := New(Config{Owner: "o", Repos: []string{"r"}, BaseURL: srv.URL}, rec, &fakeCursor{}, logx.Nop())

	items, err := w.Check(context.Background())
	if err != nil {
		t.Fatalf("Check error: %v", err)
	}
	if len(items) != 1 || items[0].SourceID != "r#pr8" {
		t.Fatalf("items = %+v, want only the unseen pr", items)
	}
}

func TestCheckCutsOffAtCursor(t *testing.T) {
	t.Parallel()
	srv := testServer(t)
	// Cursor between the two issues: only the newer one survives the cutoff.
	cur := &fakeCursor{t: time.Date(2026, 8, 2, 0, 0, 0, 0, time.UTC), ok: true}
	w := New(Config{Owner: "o", Repos: []string{"r"}, BaseURL: srv.URL},
		&fakeRecorder{seen: map[watch.Key]bool{}}, cur, logx.Nop())

	items, err := w.Check(context.Background())
	if err != nil {
		t.Fatalf("Check error: %v", err)
	}
	for _, it := range items {
		if it.SourceID == "r#pr8" {
			t.Fatalf("item older than cursor returned: %+v", it)
		}
	}
}

func TestCheckServerErrorIsTransient(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	w := New(Config{Owner: "o", Repos: []string{"r"}, BaseURL: srv.URL},
		&fakeRecorder{seen: map[watch.Key]bool{}}, &fakeCursor{}, logx.Nop())

	_, err := w.Check(context.Background())
	if err == nil {
		t.Fatal("expected error from 502 response")
	}
	if !watch.IsTransient(err) {
		t.Fatalf("err %v not marked transient", err)
	}
}
