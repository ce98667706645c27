// Package rss polls arbitrary RSS/Atom feeds and reports new entries.
package rss

import (
	"context"
	"fmt"
	"time"

	"github.com/mmcdole/gofeed"

	"wingman/internal/watch"
	"wingman/pkg/logx"
)

type Config struct {
	Feeds []string
}

type Watcher struct {
	cfg    Config
	seen   watch.Recorder
	log    logx.Logger
	parser *gofeed.Parser
}

func New(cfg Config, seen watch.Recorder, log logx.Logger) *Watcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	p := gofeed.NewParser()
	p.UserAgent = "Wingman/1.0"
	return &Watcher{
		cfg:    cfg,
		seen:   seen,
		log:    log.With(logx.String("watcher", "RSSWatcher")),
		parser: p,
	}
}

func (w *Watcher) Name() string { return "RSSWatcher" }

func (w *Watcher) Check(ctx context.Context) ([]watch.Item, error) {
	var items []watch.Item
	for _, feedURL := range w.cfg.Feeds {
		fctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		feed, err := w.parser.ParseURLWithContext(feedURL, fctx)
		cancel()
		if err != nil {
			// One dead feed must not mask the others.
			w.log.Error("feed fetch failed", logx.String("url", feedURL), logx.Err(err))
			continue
		}

		feedItems, err := w.collect(ctx, feed, feedURL)
		if err != nil {
			return nil, err
		}
		items = append(items, feedItems...)
	}
	return items, nil
}

func (w *Watcher) collect(ctx context.Context, feed *gofeed.Feed, feedURL string) ([]watch.Item, error) {
	feedTitle := feed.Title
	if feedTitle == "" {
		feedTitle = feedURL
	}

	var items []watch.Item
	for _, entry := range feed.Items {
		guid := entry.GUID
		if guid == "" {
			guid = entry.Link
		}
		if guid == "" {
			continue // nothing stable to key on
		}
		sourceID := fmt.Sprintf("%s#%s", feedTitle, guid)

		ok, err := w.seen.IsSeen(ctx, watch.Key{Source: watch.SourceRSS, SourceID: sourceID, Type: watch.TypePost})
		if err != nil {
			return nil, err
		}
		if ok {
			continue
		}

		author := "unknown"
		if len(entry.Authors) > 0 && entry.Authors[0] != nil {
			author = entry.Authors[0].Name
		}
		created := ""
		if entry.PublishedParsed != nil {
			created = entry.PublishedParsed.UTC().Format(time.RFC3339)
		}
		body := entry.Description
		if body == "" {
			body = entry.Content
		}
		if len(body) > 2000 {
			body = body[:2000]
		}

		items = append(items, watch.Item{
			Source:    watch.SourceRSS,
			SourceID:  sourceID,
			Type:      watch.TypePost,
			Context:   feedTitle,
			Title:     entry.Title,
			Body:      body,
			Author:    author,
			URL:       entry.Link,
			CreatedAt: created,
		})
	}
	return items, nil
}
