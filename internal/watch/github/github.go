// Package github polls GitHub repositories for new issues, issue comments,
// and pull requests via the REST API.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"wingman/internal/watch"
	"wingman/pkg/logx"
)

const apiBase = "https://api.github.com"

type Config struct {
	Token   string
	Owner   string
	Repos   []string
	BaseURL string // overridable for tests
}

type Watcher struct {
	cfg    Config
	seen   watch.Recorder
	cursor watch.Cursor
	log    logx.Logger
	http   *http.Client
}

func New(cfg Config, seen watch.Recorder, cursor watch.Cursor, log logx.Logger) *Watcher {
	if cfg.BaseURL == "" {
		cfg.BaseURL = apiBase
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Watcher{
		cfg:    cfg,
		seen:   seen,
		cursor: cursor,
		log:    log.With(logx.String("watcher", "GitHubWatcher")),
		http:   &http.Client{Timeout: 30 * time.Second},
	}
}

func (w *Watcher) Name() string { return "GitHubWatcher" }

func (w *Watcher) Check(ctx context.Context) ([]watch.Item, error) {
	var since time.Time
	if w.cursor != nil {
		t, ok, err := w.cursor.LastSuccessful(ctx, w.Name())
		if err != nil {
			return nil, err
		}
		if ok {
			since = t
		}
	}

	var items []watch.Item
	var lastErr error
	for _, repo := range w.cfg.Repos {
		repoItems, err := w.checkRepo(ctx, repo, since)
		if err != nil {
			// One broken repo must not mask the others.
			w.log.Error("repo check failed", logx.String("repo", repo), logx.Err(err))
			lastErr = err
			continue
		}
		items = append(items, repoItems...)
	}
	if items == nil && lastErr != nil && len(w.cfg.Repos) == 1 {
		return nil, lastErr
	}
	return items, nil
}

type ghIssue struct {
	Number      int       `json:"number"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	HTMLURL     string    `json:"html_url"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	User        *ghUser   `json:"user"`
	PullRequest *struct{} `json:"pull_request,omitempty"`
}

type ghComment struct {
	ID        int64     `json:"id"`
	Body      string    `json:"body"`
	HTMLURL   string    `json:"html_url"`
	IssueURL  string    `json:"issue_url"`
	CreatedAt time.Time `json:"created_at"`
	User      *ghUser   `json:"user"`
}

type ghUser struct {
	Login string `json:"login"`
}

func (w *Watcher) checkRepo(ctx context.Context, repo string, since time.Time) ([]watch.Item, error) {
	var items []watch.Item

	issues, err := w.listIssues(ctx, repo, since)
	if err != nil {
		return nil, err
	}
	for _, is := range issues {
		if !since.IsZero() && is.UpdatedAt.Before(since) {
			break // sorted by updated desc; everything after is older
		}
		sourceID := fmt.Sprintf("%s#issue%d", repo, is.Number)
		itemType := watch.TypeIssue
		if is.PullRequest != nil {
			sourceID = fmt.Sprintf("%s#pr%d", repo, is.Number)
			itemType = watch.TypePR
		}
		ok, err := w.seen.IsSeen(ctx, watch.Key{Source: watch.SourceGitHub, SourceID: sourceID, Type: itemType})
		if err != nil {
			return nil, err
		}
		if ok {
			continue
		}
		items = append(items, watch.Item{
			Source:    watch.SourceGitHub,
			SourceID:  sourceID,
			Type:      itemType,
			Context:   repo,
			Title:     is.Title,
			Body:      is.Body,
			Author:    userLogin(is.User),
			URL:       is.HTMLURL,
			CreatedAt: is.CreatedAt.Format(time.RFC3339),
		})
	}

	comments, err := w.listComments(ctx, repo, since)
	if err != nil {
		return nil, err
	}
	for _, c := range comments {
		sourceID := fmt.Sprintf("%s#comment%d", repo, c.ID)
		ok, err := w.seen.IsSeen(ctx, watch.Key{Source: watch.SourceGitHub, SourceID: sourceID, Type: watch.TypeComment})
		if err != nil {
			return nil, err
		}
		if ok {
			continue
		}
		body := c.Body
		if len(body) > 2000 {
			body = body[:2000]
		}
		items = append(items, watch.Item{
			Source:    watch.SourceGitHub,
			SourceID:  sourceID,
			Type:      watch.TypeComment,
			Context:   repo,
			Title:     fmt.Sprintf("Comment on %s#%s", repo, issueNumberFromURL(c.IssueURL)),
			Body:      body,
			Author:    userLogin(c.User),
			URL:       c.HTMLURL,
			CreatedAt: c.CreatedAt.Format(time.RFC3339),
		})
	}

	return items, nil
}

func (w *Watcher) listIssues(ctx context.Context, repo string, since time.Time) ([]ghIssue, error) {
	q := url.Values{}
	q.Set("state", "all")
	q.Set("sort", "updated")
	q.Set("direction", "desc")
	q.Set("per_page", "100")
	if !since.IsZero() {
		q.Set("since", since.UTC().Format(time.RFC3339))
	}
	var issues []ghIssue
	u := fmt.Sprintf("%s/repos/%s/%s/issues?%s", w.cfg.BaseURL, w.cfg.Owner, repo, q.Encode())
	if err := w.getJSON(ctx, u, &issues); err != nil {
		return nil, err
	}
	return issues, nil
}

func (w *Watcher) listComments(ctx context.Context, repo string, since time.Time) ([]ghComment, error) {
	q := url.Values{}
	q.Set("per_page", "100")
	if !since.IsZero() {
		q.Set("since", since.UTC().Format(time.RFC3339))
	}
	var comments []ghComment
	u := fmt.Sprintf("%s/repos/%s/%s/issues/comments?%s", w.cfg.BaseURL, w.cfg.Owner, repo, q.Encode())
	if err := w.getJSON(ctx, u, &comments); err != nil {
		return nil, err
	}
	return comments, nil
}

func (w *Watcher) getJSON(ctx context.Context, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if w.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+w.cfg.Token)
	}

	resp, err := w.http.Do(req)
	if err != nil {
		return watch.Transient(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusForbidden && resp.Header.Get("X-RateLimit-Remaining") == "0":
		return watch.Transient(fmt.Errorf("github rate limited"))
	case resp.StatusCode >= 500:
		return watch.Transient(fmt.Errorf("github status %d", resp.StatusCode))
	default:
		return fmt.Errorf("github status %d for %s", resp.StatusCode, u)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode github response: %w", err)
	}
	return nil
}

func userLogin(u *ghUser) string {
	if u == nil || u.Login == "" {
		return "unknown"
	}
	return u.Login
}

// issueNumberFromURL extracts the trailing number of an API issue URL.
func issueNumberFromURL(u string) string {
	if i := strings.LastIndexByte(u, '/'); i >= 0 {
		return u[i+1:]
	}
	return "?"
}
