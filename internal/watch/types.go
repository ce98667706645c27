package watch

import "context"

// Source identifies the platform an item came from.
type Source string

const (
	SourceGitHub Source = "github"
	SourceForge  Source = "forge"
	SourceReddit Source = "reddit"
	SourceRSS    Source = "rss"
)

// ItemType identifies what kind of content an item is within its source.
type ItemType string

const (
	TypeIssue      ItemType = "issue"
	TypePR         ItemType = "pr"
	TypeComment    ItemType = "comment"
	TypePost       ItemType = "post"
	TypeModUpdate  ItemType = "mod_update"
	TypeModComment ItemType = "mod_comment"
)

// Key is the global identity of an item: unique across the whole system.
type Key struct {
	Source   Source
	SourceID string
	Type     ItemType
}

// Item is one unit of discovered content. Items are ephemeral; they live for
// the duration of a single check cycle and are never retained afterwards.
type Item struct {
	Source   Source
	SourceID string // unique within source+type
	Type     ItemType
	Context  string // repo name, mod slug, subreddit, or feed title
	Title    string
	Body     string
	Author   string
	URL      string

	// CreatedAt is the source's own timestamp, as reported (may be empty).
	CreatedAt string
}

func (it Item) Key() Key {
	return Key{Source: it.Source, SourceID: it.SourceID, Type: it.Type}
}

// Watcher is a source-specific poller. Name is stable and keys the persisted
// watcher state. Check returns only items the watcher has not seen before;
// implementations filter against the store's IsSeen themselves.
type Watcher interface {
	Name() string
	Check(ctx context.Context) ([]Item, error)
}
