// Package reddit polls a single subreddit for new posts and comments using
// the OAuth password grant.
package reddit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"wingman/internal/watch"
	"wingman/pkg/logx"
)

const (
	defaultAuthURL = "https://www.reddit.com"
	defaultAPIURL  = "https://oauth.reddit.com"
)

type Config struct {
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
	UserAgent    string
	Subreddit    string

	AuthURL string // overridable for tests
	APIURL  string
}

type Watcher struct {
	cfg  Config
	seen watch.Recorder
	log  logx.Logger
	http *http.Client

	token   string
	tokenAt time.Time
}

func New(cfg Config, seen watch.Recorder, log logx.Logger) *Watcher {
	if cfg.AuthURL == "" {
		cfg.AuthURL = defaultAuthURL
	}
	if cfg.APIURL == "" {
		cfg.APIURL = defaultAPIURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "Wingman/1.0"
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Watcher{
		cfg:  cfg,
		seen: seen,
		log:  log.With(logx.String("watcher", "RedditWatcher")),
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

func (w *Watcher) Name() string { return "RedditWatcher" }

func (w *Watcher) Check(ctx context.Context) ([]watch.Item, error) {
	if err := w.ensureToken(ctx); err != nil {
		return nil, err
	}

	var items []watch.Item

	posts, err := w.checkListing(ctx, "/new.json?limit=25", watch.TypePost)
	if err != nil {
		// Missing or private subreddits are a configuration problem, not an
		// outage; log and report nothing rather than burn the failure counter.
		if status := statusOf(err); status == http.StatusNotFound || status == http.StatusForbidden {
			w.log.Warn("subreddit inaccessible, skipping",
				logx.String("subreddit", w.cfg.Subreddit), logx.Err(err))
			return nil, nil
		}
		return nil, err
	}
	items = append(items, posts...)

	comments, err := w.checkListing(ctx, "/comments.json?limit=50", watch.TypeComment)
	if err != nil {
		w.log.Error("comment check failed", logx.String("subreddit", w.cfg.Subreddit), logx.Err(err))
	} else {
		items = append(items, comments...)
	}

	return items, nil
}

type listing struct {
	Data struct {
		Children []struct {
			Data thing `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type thing struct {
	Name       string  `json:"name"` // fullname: t3_xxx (post) / t1_xxx (comment)
	Title      string  `json:"title"`
	SelfText   string  `json:"selftext"`
	Body       string  `json:"body"`
	LinkTitle  string  `json:"link_title"`
	Author     string  `json:"author"`
	Permalink  string  `json:"permalink"`
	CreatedUTC float64 `json:"created_utc"`
}

func (w *Watcher) checkListing(ctx context.Context, path string, itemType watch.ItemType) ([]watch.Item, error) {
	u := fmt.Sprintf("%s/r/%s%s", w.cfg.APIURL, w.cfg.Subreddit, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", w.cfg.UserAgent)
	req.Header.Set("Authorization", "Bearer "+w.token)

	resp, err := w.http.Do(req)
	if err != nil {
		return nil, watch.Transient(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		err := &statusError{status: resp.StatusCode, url: u}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, watch.Transient(err)
		}
		return nil, err
	}

	var l listing
	if err := json.NewDecoder(resp.Body).Decode(&l); err != nil {
		return nil, fmt.Errorf("decode listing: %w", err)
	}

	var items []watch.Item
	for _, ch := range l.Data.Children {
		t := ch.Data
		ok, err := w.seen.IsSeen(ctx, watch.Key{Source: watch.SourceReddit, SourceID: t.Name, Type: itemType})
		if err != nil {
			return nil, err
		}
		if ok {
			continue
		}

		author := t.Author
		if author == "" {
			author = "[deleted]"
		}
		created := time.Unix(int64(t.CreatedUTC), 0).UTC().Format(time.RFC3339)

		var title, body string
		if itemType == watch.TypePost {
			title = t.Title
			body = t.SelfText
		} else {
			linkTitle := t.LinkTitle
			if linkTitle == "" {
				linkTitle = "(unknown post)"
			}
			title = "Comment on: " + linkTitle
			body = t.Body
		}
		if len(body) > 2000 {
			body = body[:2000]
		}

		items = append(items, watch.Item{
			Source:    watch.SourceReddit,
			SourceID:  t.Name,
			Type:      itemType,
			Context:   w.cfg.Subreddit,
			Title:     title,
			Body:      body,
			Author:    author,
			URL:       "https://reddit.com" + t.Permalink,
			CreatedAt: created,
		})
	}
	return items, nil
}

// ensureToken fetches an OAuth token via the password grant. Tokens last an
// hour; refresh a little early.
func (w *Watcher) ensureToken(ctx context.Context) error {
	if w.token != "" && time.Since(w.tokenAt) < 50*time.Minute {
		return nil
	}

	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("username", w.cfg.Username)
	form.Set("password", w.cfg.Password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		w.cfg.AuthURL+"/api/v1/access_token", strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.SetBasicAuth(w.cfg.ClientID, w.cfg.ClientSecret)
	req.Header.Set("User-Agent", w.cfg.UserAgent)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := w.http.Do(req)
	if err != nil {
		return watch.Transient(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("reddit auth status %d", resp.StatusCode)
	}

	var out struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("decode auth response: %w", err)
	}
	if out.AccessToken == "" {
		return fmt.Errorf("reddit auth returned empty token")
	}
	w.token = out.AccessToken
	w.tokenAt = time.Now()
	return nil
}

type statusError struct {
	status int
	url    string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("reddit status %d for %s", e.status, e.url)
}

func statusOf(err error) int {
	var se *statusError
	if errors.As(err, &se) {
		return se.status
	}
	return 0
}
