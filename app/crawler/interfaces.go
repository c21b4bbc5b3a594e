package crawler

import (
	"time"

	"github.com/lysyi3m/rsstank/app/database"
)

// FeedRepository is the slice of the feed store the crawler needs.
type FeedRepository interface {
	ListActiveFeeds() ([]database.Feed, error)
	UpdateChannel(id int64, title, link, description, imageURL string) error
	MarkPolled(id int64, polledAt time.Time, lastPubDate *time.Time) error
}

// ItemRepository persists freshly parsed items.
type ItemRepository interface {
	InsertItem(item *database.Item) (bool, error)
}

// KeyRepository resolves a feed's owning key for the enabled-at cutoff.
type KeyRepository interface {
	GetKey(id int64) (*database.AccessKey, error)
}
