// Package cleanup removes feed items that have already been mailed out.
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lysyi3m/rsstank/app/database"
)

type FeedRepository interface {
	ListAllFeeds() ([]database.Feed, error)
}

type ItemRepository interface {
	DeleteItemsCreatedBefore(feedID int64, cutoff time.Time) (int64, error)
}

type Cleaner struct {
	feedRepo FeedRepository
	itemRepo ItemRepository
}

func NewCleaner(feedRepo FeedRepository, itemRepo ItemRepository) *Cleaner {
	return &Cleaner{feedRepo: feedRepo, itemRepo: itemRepo}
}

// Run deletes, for every feed that has been dispatched at least once, the
// items ingested before the dispatch watermark. Items of never-sent feeds
// are kept: they are still waiting for their first mailing.
func (c *Cleaner) Run(ctx context.Context) error {
	feeds, err := c.feedRepo.ListAllFeeds()
	if err != nil {
		return fmt.Errorf("failed to list feeds: %w", err)
	}

	slog.Info("Cleanup started", "feeds", len(feeds))

	var total int64
	for i := range feeds {
		feed := &feeds[i]
		if feed.LastSentAt == nil {
			continue
		}

		deleted, err := c.itemRepo.DeleteItemsCreatedBefore(feed.ID, *feed.LastSentAt)
		if err != nil {
			slog.Error("Failed to delete sent items", "feed", feed.String(), "error", err)
			continue
		}
		if deleted > 0 {
			slog.Info("Sent items deleted", "feed", feed.String(), "tag", feed.Tag, "count", deleted)
		}
		total += deleted
	}

	slog.Info("Cleanup finished", "deleted", total)
	return nil
}
