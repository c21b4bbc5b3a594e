package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/lysyi3m/rsstank/app/database"
	"github.com/lysyi3m/rsstank/app/mailtank"
)

// pubDateFormat is the timestamp layout used in mailing contexts.
const pubDateFormat = "2006-01-02 15:04:05"

// Dispatcher assembles digests of unsent items and submits them to the
// mailing API. The last_sent_at watermark only advances on success, so a
// failed mailing is naturally retried on the next eligible cycle.
type Dispatcher struct {
	feedRepo  FeedRepository
	itemRepo  ItemRepository
	keyRepo   KeyRepository
	newMailer MailerFactory
	now       func() time.Time
}

func NewDispatcher(feedRepo FeedRepository, itemRepo ItemRepository, keyRepo KeyRepository, newMailer MailerFactory) *Dispatcher {
	return &Dispatcher{
		feedRepo:  feedRepo,
		itemRepo:  itemRepo,
		keyRepo:   keyRepo,
		newMailer: newMailer,
		now:       time.Now,
	}
}

// Run executes one dispatch sweep: a sequential pass over the feeds of
// enabled keys, dispatching every feed that is both due and has unsent
// items.
func (d *Dispatcher) Run(ctx context.Context) error {
	feeds, err := d.feedRepo.ListActiveFeeds()
	if err != nil {
		return fmt.Errorf("failed to list active feeds: %w", err)
	}

	slog.Info("Dispatch sweep started", "feeds", len(feeds))

	keys := make(map[int64]*database.AccessKey)
	sent := 0

	for i := range feeds {
		feed := &feeds[i]

		key, ok := keys[feed.AccessKeyID]
		if !ok {
			key, err = d.keyRepo.GetKey(feed.AccessKeyID)
			if err != nil {
				slog.Error("Failed to get access key, skipping feed", "feed", feed.String(), "error", err)
				continue
			}
			keys[feed.AccessKeyID] = key
		}
		if key == nil || !key.IsEnabled() {
			continue
		}

		if !IsTimeToSend(feed, key, d.now()) {
			continue
		}

		latest, err := d.itemRepo.LatestItemCreatedAt(feed.ID)
		if err != nil {
			slog.Error("Failed to get latest item time, skipping feed", "feed", feed.String(), "error", err)
			continue
		}
		if !HasItemsToSend(feed, latest) {
			continue
		}

		if err := d.Dispatch(ctx, feed, key); err != nil {
			slog.Error("Feed dispatch failed", "feed", feed.String(), "error", err)
			continue
		}
		sent++
	}

	slog.Info("Dispatch sweep finished", "feeds", len(feeds), "sent", sent)
	return nil
}

// Dispatch sends one digest for the feed. Callers must have established
// via HasItemsToSend that there is something to send; an empty selection
// here is a caller bug and panics.
//
// A mailing API error is logged with the feed and error detail and the
// watermark stays put; only infrastructure errors (storage) propagate.
func (d *Dispatcher) Dispatch(ctx context.Context, feed *database.Feed, key *database.AccessKey) error {
	items, err := d.selectItems(feed)
	if err != nil {
		return err
	}

	if len(items) == 0 {
		panic(fmt.Sprintf("dispatch of %s with no eligible items", feed.String()))
	}

	mailingContext := map[string]any{
		"items": itemsContext(items),
		"channel": map[string]any{
			"title":       feed.ChannelTitle,
			"link":        feed.ChannelLink,
			"description": feed.ChannelDescription,
			"image_url":   feed.ChannelImageURL,
		},
	}

	target := mailtank.Target{
		Tags:            []string{feed.Tag},
		UnsubscribeTags: []string{feed.Tag},
	}

	mailer := d.newMailer(key.Content)
	mailing, err := mailer.CreateMailing(ctx, key.LayoutID, mailingContext, target, nil)
	if err != nil {
		slog.Warn("Mailing creation failed", "feed", feed.String(), "error", err)
		return nil
	}

	now := d.now().UTC().Truncate(time.Second)
	if err := d.feedRepo.MarkSent(feed.ID, now); err != nil {
		return err
	}
	feed.LastSentAt = &now

	slog.Info("Mailing created", "feed", feed.String(), "mailing_id", mailing.ID, "items", len(items))
	return nil
}

// selectItems gathers the digest payload: the feed's items ordered by
// publication date, restricted to those ingested at or after the dispatch
// watermark (inclusive: the watermark is set to "now" at dispatch time,
// and an item created in that same second must not be lost; guid dedup
// below keeps it from being sent twice). Duplicate guids keep only the
// most recently published version. The returned list is oldest-first.
func (d *Dispatcher) selectItems(feed *database.Feed) ([]database.Item, error) {
	var items []database.Item
	var err error

	if feed.LastSentAt != nil {
		items, err = d.itemRepo.ListItemsCreatedSince(feed.ID, *feed.LastSentAt)
	} else {
		items, err = d.itemRepo.ListItems(feed.ID)
	}
	if err != nil {
		return nil, err
	}

	// Walk newest-first so the latest version of each guid wins, then
	// reverse once for presentation.
	seen := make(map[string]bool, len(items))
	selected := make([]database.Item, 0, len(items))
	for i := len(items) - 1; i >= 0; i-- {
		if seen[items[i].GUID] {
			continue
		}
		seen[items[i].GUID] = true
		selected = append(selected, items[i])
	}
	slices.Reverse(selected)

	return selected, nil
}

func itemsContext(items []database.Item) []map[string]any {
	entries := make([]map[string]any, 0, len(items))
	for _, item := range items {
		entries = append(entries, itemContext(item))
	}
	return entries
}

func itemContext(item database.Item) map[string]any {
	entry := map[string]any{
		"guid":        item.GUID,
		"title":       item.Title,
		"link":        item.Link,
		"description": item.Description,
		"author":      item.Author,
		"category":    item.Category,
		"comments":    item.Comments,
		"pub_date":    item.PubDate.UTC().Format(pubDateFormat),
	}

	if item.EnclosureURL != "" {
		enclosure := map[string]any{
			"url":    item.EnclosureURL,
			"type":   item.EnclosureType,
			"length": nil,
		}
		if item.EnclosureLength != nil {
			enclosure["length"] = *item.EnclosureLength
		}
		entry["enclosure"] = enclosure
	}

	if item.SourceURL != "" {
		entry["source"] = map[string]any{
			"url":     item.SourceURL,
			"content": item.SourceContent,
		}
	}

	return entry
}
