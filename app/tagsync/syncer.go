// Package tagsync reconciles each key's feed list with the rss-prefixed
// tags of its Mailtank project.
package tagsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lysyi3m/rsstank/app/database"
	"github.com/lysyi3m/rsstank/app/mailtank"
)

// FeedRepository is the slice of the feed store the syncer needs.
type FeedRepository interface {
	ListFeedsForKey(keyID int64) ([]database.Feed, error)
	CreateFeed(feed *database.Feed) error
	DeleteFeed(id int64) error
}

// KeyRepository lists enabled keys and persists auto-disables.
type KeyRepository interface {
	ListEnabledKeys() ([]database.AccessKey, error)
	SetKeyEnabled(id int64, enabled bool) error
}

// TagLister lists project tags from the external API.
type TagLister interface {
	GetTags(ctx context.Context, mask string) ([]mailtank.Tag, error)
}

// TagListerFactory builds a TagLister authenticated as the given key.
type TagListerFactory func(keyContent string) TagLister

type Syncer struct {
	feedRepo  FeedRepository
	keyRepo   KeyRepository
	newClient TagListerFactory
}

func NewSyncer(feedRepo FeedRepository, keyRepo KeyRepository, newClient TagListerFactory) *Syncer {
	return &Syncer{
		feedRepo:  feedRepo,
		keyRepo:   keyRepo,
		newClient: newClient,
	}
}

// Run synchronizes the feed list of every enabled key. A 401/403 from the
// tag listing disables the offending key; other API errors are logged and
// the key is retried on the next cycle.
func (s *Syncer) Run(ctx context.Context) error {
	keys, err := s.keyRepo.ListEnabledKeys()
	if err != nil {
		return fmt.Errorf("failed to list enabled keys: %w", err)
	}

	slog.Info("Feed sync started", "keys", len(keys))

	for i := range keys {
		key := &keys[i]

		tags, err := s.newClient(key.Content).GetTags(ctx, TagMask(key.Namespace))
		if err != nil {
			slog.Warn("Failed to fetch tags for key", "key", key.Content, "error", err)

			var apiErr *mailtank.Error
			if errors.As(err, &apiErr) && apiErr.IsAuth() {
				if err := s.keyRepo.SetKeyEnabled(key.ID, false); err != nil {
					slog.Error("Failed to disable key", "key", key.Content, "error", err)
				} else {
					slog.Warn("Key disabled after authorization failure", "key", key.Content)
				}
			}
			continue
		}

		if err := s.syncKey(key, tags); err != nil {
			slog.Error("Feed sync failed for key", "key", key.Content, "error", err)
		}
	}

	slog.Info("Feed sync finished", "keys", len(keys))
	return nil
}

// syncKey reconciles one key's feeds against its current tags: feeds are
// created for new tags and deleted once their tag disappears.
func (s *Syncer) syncKey(key *database.AccessKey, tags []mailtank.Tag) error {
	feeds, err := s.feedRepo.ListFeedsForKey(key.ID)
	if err != nil {
		return fmt.Errorf("failed to list feeds: %w", err)
	}

	feedsByIdentity := make(map[string]*database.Feed, len(feeds))
	for i := range feeds {
		feed := &feeds[i]
		feedsByIdentity[feedIdentity(feed.SendingInterval, feed.URL)] = feed
	}

	kept := make(map[string]bool, len(tags))

	for _, tag := range tags {
		namespace, url, interval, err := ParseTag(tag.Name)
		if err != nil {
			slog.Warn("Skipping unparseable tag", "tag", tag.Name, "error", err)
			continue
		}
		if namespace != key.Namespace {
			slog.Warn("Skipping tag from a foreign namespace", "tag", tag.Name, "namespace", key.Namespace)
			continue
		}

		identity := feedIdentity(interval, url)
		if _, ok := feedsByIdentity[identity]; ok {
			kept[identity] = true
			continue
		}

		feed := &database.Feed{
			AccessKeyID:     key.ID,
			URL:             url,
			Tag:             tag.Name,
			SendingInterval: interval,
		}
		if err := s.feedRepo.CreateFeed(feed); err != nil {
			slog.Error("Failed to create feed", "key", key.Content, "url", url, "error", err)
			continue
		}
		kept[identity] = true
		slog.Info("Feed created from tag", "key", key.Content, "tag", tag.Name)
	}

	for identity, feed := range feedsByIdentity {
		if kept[identity] {
			continue
		}
		if err := s.feedRepo.DeleteFeed(feed.ID); err != nil {
			slog.Error("Failed to delete stale feed", "feed", feed.String(), "error", err)
			continue
		}
		slog.Info("Stale feed deleted", "feed", feed.String(), "tag", feed.Tag)
	}

	return nil
}

func feedIdentity(interval int, url string) string {
	return fmt.Sprintf("%d:%s", interval, url)
}
