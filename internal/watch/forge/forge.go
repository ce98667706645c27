// Package forge polls SPT-Forge for new mod versions (API) and new comments
// (page scrape). API access uses a bearer token cached in the store and
// refreshed by re-login when it expires.
package forge

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"wingman/internal/retry"
	"wingman/internal/watch"
	"wingman/pkg/logx"
)

const (
	defaultBaseURL = "https://forge.sp-tarkov.com"
	userAgent      = "Wingman/1.0"
)

type Mod struct {
	Name string
	ID   int
	Slug string
}

type Config struct {
	Email    string
	Password string
	Mods     []Mod
	BaseURL  string // overridable for tests
}

type Watcher struct {
	cfg    Config
	seen   watch.Recorder
	tokens watch.TokenCache
	log    logx.Logger
	http   *http.Client
}

func New(cfg Config, seen watch.Recorder, tokens watch.TokenCache, log logx.Logger) *Watcher {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Watcher{
		cfg:    cfg,
		seen:   seen,
		tokens: tokens,
		log:    log.With(logx.String("watcher", "ForgeWatcher")),
		http:   &http.Client{Timeout: 30 * time.Second},
	}
}

func (w *Watcher) Name() string { return "ForgeWatcher" }

// retryCfg covers transient Forge hiccups only; schema/auth errors are not
// in the retryable class.
func (w *Watcher) retryCfg() retry.Config {
	return retry.Config{
		MaxAttempts:   2,
		BaseDelay:     10 * time.Second,
		BackoffFactor: 2,
		RetryIf:       watch.IsTransient,
		Log:           w.log,
	}
}

func (w *Watcher) Check(ctx context.Context) ([]watch.Item, error) {
	var items []watch.Item
	for _, mod := range w.cfg.Mods {
		var versions []watch.Item
		err := retry.Do(ctx, w.retryCfg(), func(ctx context.Context) error {
			var verr error
			versions, verr = w.checkVersions(ctx, mod)
			return verr
		})
		if err != nil {
			w.log.Error("version check failed", logx.String("mod", mod.Name), logx.Err(err))
		} else {
			items = append(items, versions...)
		}

		var comments []watch.Item
		err = retry.Do(ctx, w.retryCfg(), func(ctx context.Context) error {
			var cerr error
			comments, cerr = w.scrapeComments(ctx, mod)
			return cerr
		})
		if err != nil {
			w.log.Warn("comment scrape failed", logx.String("mod", mod.Name), logx.Err(err))
		} else {
			items = append(items, comments...)
		}
	}
	return items, nil
}

type versionList struct {
	Data []struct {
		Version     string `json:"version"`
		CreatedAt   string `json:"created_at"`
		SPTVersions []struct {
			Version string `json:"version"`
		} `json:"spt_versions"`
	} `json:"data"`
}

func (w *Watcher) checkVersions(ctx context.Context, mod Mod) ([]watch.Item, error) {
	body, err := w.apiGet(ctx, fmt.Sprintf("/api/v0/mod/%d/versions", mod.ID))
	if err != nil {
		return nil, err
	}

	var vl versionList
	if err := json.Unmarshal(body, &vl); err != nil {
		return nil, fmt.Errorf("decode versions: %w", err)
	}

	var items []watch.Item
	for _, v := range vl.Data {
		version := v.Version
		if version == "" {
			version = "unknown"
		}
		sourceID := fmt.Sprintf("%s#version_%s", mod.Name, version)
		ok, err := w.seen.IsSeen(ctx, watch.Key{Source: watch.SourceForge, SourceID: sourceID, Type: watch.TypeModUpdate})
		if err != nil {
			return nil, err
		}
		if ok {
			continue
		}
		spt := make([]byte, 0, 32)
		for i, sv := range v.SPTVersions {
			if i > 0 {
				spt = append(spt, ", "...)
			}
			spt = append(spt, sv.Version...)
		}
		items = append(items, watch.Item{
			Source:    watch.SourceForge,
			SourceID:  sourceID,
			Type:      watch.TypeModUpdate,
			Context:   mod.Name,
			Title:     fmt.Sprintf("%s v%s", mod.Name, version),
			Body:      fmt.Sprintf("New version %s for SPT %s", version, spt),
			Author:    "You",
			URL:       fmt.Sprintf("%s/mod/%d", w.cfg.BaseURL, mod.ID),
			CreatedAt: v.CreatedAt,
		})
	}
	return items, nil
}

func (w *Watcher) scrapeComments(ctx context.Context, mod Mod) ([]watch.Item, error) {
	pageURL := fmt.Sprintf("%s/mod/%d", w.cfg.BaseURL, mod.ID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html")

	resp, err := w.http.Do(req)
	if err != nil {
		return nil, watch.Transient(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return nil, watch.Transient(fmt.Errorf("forge status %d", resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("forge status %d for %s", resp.StatusCode, pageURL)
	}

	comments, err := extractComments(resp.Body)
	if err != nil {
		return nil, err
	}
	if len(comments) == 0 {
		// Comments may be rendered client-side only; degrade gracefully.
		w.log.Debug("no comments found in page html", logx.String("mod", mod.Name))
		return nil, nil
	}

	var items []watch.Item
	for _, c := range comments {
		// A stable ID derived from content; the page exposes no comment IDs.
		sum := md5.Sum([]byte(fmt.Sprintf("%s:%.100s:%s", c.Author, c.Body, c.Timestamp)))
		sourceID := fmt.Sprintf("%s#comment_%x", mod.Name, sum[:6])

		ok, err := w.seen.IsSeen(ctx, watch.Key{Source: watch.SourceForge, SourceID: sourceID, Type: watch.TypeModComment})
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
			Source:    watch.SourceForge,
			SourceID:  sourceID,
			Type:      watch.TypeModComment,
			Context:   mod.Name,
			Title:     "Comment on " + mod.Name,
			Body:      body,
			Author:    c.Author,
			URL:       pageURL,
			CreatedAt: c.Timestamp,
		})
	}
	return items, nil
}

// apiGet performs an authenticated API request, logging in (and retrying the
// request once) when the cached token has expired.
func (w *Watcher) apiGet(ctx context.Context, path string) ([]byte, error) {
	token, err := w.tokens.CachedToken(ctx)
	if err != nil {
		return nil, err
	}
	if token == "" {
		if token, err = w.login(ctx); err != nil {
			return nil, err
		}
	}

	body, status, err := w.doGet(ctx, path, token)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized {
		if token, err = w.login(ctx); err != nil {
			return nil, err
		}
		body, status, err = w.doGet(ctx, path, token)
		if err != nil {
			return nil, err
		}
	}
	switch {
	case status == http.StatusOK:
		return body, nil
	case status == http.StatusTooManyRequests || status >= 500:
		return nil, watch.Transient(fmt.Errorf("forge api status %d", status))
	default:
		return nil, fmt.Errorf("forge api status %d for %s", status, path)
	}
}

func (w *Watcher) doGet(ctx context.Context, path, token string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.cfg.BaseURL+path, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := w.http.Do(req)
	if err != nil {
		return nil, 0, watch.Transient(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, 0, watch.Transient(err)
	}
	return body, resp.StatusCode, nil
}

func (w *Watcher) login(ctx context.Context) (string, error) {
	payload, err := json.Marshal(map[string]string{
		"email":    w.cfg.Email,
		"password": w.cfg.Password,
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.cfg.BaseURL+"/api/v0/auth/login", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.http.Do(req)
	if err != nil {
		return "", watch.Transient(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("forge login status %d", resp.StatusCode)
	}

	var out struct {
		Data struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode login response: %w", err)
	}
	if out.Data.Token == "" {
		return "", fmt.Errorf("forge login returned empty token")
	}
	if err := w.tokens.SaveToken(ctx, out.Data.Token); err != nil {
		return "", err
	}
	w.log.Info("forge token refreshed")
	return out.Data.Token, nil
}
