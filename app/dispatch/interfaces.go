package dispatch

import (
	"context"
	"time"

	"github.com/lysyi3m/rsstank/app/database"
	"github.com/lysyi3m/rsstank/app/mailtank"
)

// FeedRepository is the slice of the feed store the dispatcher needs.
type FeedRepository interface {
	ListActiveFeeds() ([]database.Feed, error)
	MarkSent(id int64, sentAt time.Time) error
}

// ItemRepository reads a feed's stored items.
type ItemRepository interface {
	ListItems(feedID int64) ([]database.Item, error)
	ListItemsCreatedSince(feedID int64, since time.Time) ([]database.Item, error)
	LatestItemCreatedAt(feedID int64) (*time.Time, error)
}

// KeyRepository resolves a feed's owning key.
type KeyRepository interface {
	GetKey(id int64) (*database.AccessKey, error)
}

// Mailer creates mailings against the external API.
type Mailer interface {
	CreateMailing(ctx context.Context, layoutID string, mailingContext map[string]any, target mailtank.Target, attachments []mailtank.Attachment) (*mailtank.Mailing, error)
}

// MailerFactory builds a Mailer authenticated as the given key.
type MailerFactory func(keyContent string) Mailer
