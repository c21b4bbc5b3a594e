package crawler

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/mmcdole/gofeed/rss"

	"github.com/lysyi3m/rsstank/app/database"
)

// Poller fetches one feed's document and stores its fresh items.
type Poller struct {
	httpClient *http.Client
	parser     *rss.Parser
	feedRepo   FeedRepository
	itemRepo   ItemRepository
	keyRepo    KeyRepository
	userAgent  string
	now        func() time.Time
}

func NewPoller(httpClient *http.Client, feedRepo FeedRepository, itemRepo ItemRepository, keyRepo KeyRepository, userAgent string) *Poller {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Poller{
		httpClient: httpClient,
		parser:     &rss.Parser{},
		feedRepo:   feedRepo,
		itemRepo:   itemRepo,
		keyRepo:    keyRepo,
		userAgent:  userAgent,
		now:        time.Now,
	}
}

// Poll fetches and parses the feed document, refreshes the feed's channel
// metadata, and stores every entry that passes the freshness rules:
//
//   - entries without a publication date are dropped with a warning (they
//     cannot be ordered or deduplicated by freshness);
//   - entries published in the future are skipped until they have happened;
//   - entries at or before the feed's last_pub_date watermark are skipped;
//   - entries published before the owning key was enabled are skipped.
//
// Afterwards last_polled_at is set and last_pub_date advances to the
// maximum publication date seen (forward only).
func (p *Poller) Poll(ctx context.Context, feed *database.Feed) error {
	key, err := p.keyRepo.GetKey(feed.AccessKeyID)
	if err != nil {
		return fmt.Errorf("failed to get access key: %w", err)
	}
	if key == nil {
		return fmt.Errorf("access key #%d not found", feed.AccessKeyID)
	}

	data, err := p.fetch(ctx, feed.URL)
	if err != nil {
		return fmt.Errorf("failed to fetch feed: %w", err)
	}

	doc, err := p.parser.Parse(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to parse feed: %w", err)
	}

	// Channel metadata is refreshed even when no new items are found.
	imageURL := ""
	if doc.Image != nil {
		imageURL = doc.Image.URL
	}
	if err := p.feedRepo.UpdateChannel(feed.ID, doc.Title, doc.Link, doc.Description, imageURL); err != nil {
		return err
	}
	feed.ChannelTitle = doc.Title
	feed.ChannelLink = doc.Link
	feed.ChannelDescription = doc.Description
	feed.ChannelImageURL = imageURL

	now := p.now().UTC().Truncate(time.Second)
	var maxPubDate *time.Time

	for _, entry := range doc.Items {
		guid := entryGUID(entry)

		pubDate := entry.PubDateParsed
		if pubDate == nil {
			slog.Warn("Feed entry has no publication date, dropping", "feed", feed.String(), "guid", guid)
			continue
		}
		pub := pubDate.UTC()

		if pub.After(now) {
			slog.Debug("Feed entry published in the future, skipping", "feed", feed.String(), "guid", guid, "pub_date", pub)
			continue
		}
		if feed.LastPubDate != nil && !pub.After(*feed.LastPubDate) {
			continue
		}
		if key.EnabledAt != nil && pub.Before(*key.EnabledAt) {
			slog.Debug("Feed entry predates key activation, skipping", "feed", feed.String(), "guid", guid, "pub_date", pub)
			continue
		}

		item := p.buildItem(feed.ID, guid, entry, pub, now)
		if _, err := p.itemRepo.InsertItem(item); err != nil {
			return err
		}

		if maxPubDate == nil || pub.After(*maxPubDate) {
			maxPubDate = &pub
		}
	}

	if err := p.feedRepo.MarkPolled(feed.ID, now, maxPubDate); err != nil {
		return err
	}
	feed.LastPolledAt = &now
	if maxPubDate != nil && (feed.LastPubDate == nil || maxPubDate.After(*feed.LastPubDate)) {
		feed.LastPubDate = maxPubDate
	}

	return nil
}

func (p *Poller) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", p.userAgent)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return data, nil
}

func entryGUID(entry *rss.Item) string {
	if entry.GUID != nil && entry.GUID.Value != "" {
		return entry.GUID.Value
	}
	return entry.Link
}

func (p *Poller) buildItem(feedID int64, guid string, entry *rss.Item, pubDate, createdAt time.Time) *database.Item {
	item := &database.Item{
		FeedID:      feedID,
		GUID:        guid,
		Title:       entry.Title,
		Link:        entry.Link,
		Description: entry.Description,
		Author:      entry.Author,
		Comments:    entry.Comments,
		PubDate:     pubDate,
		CreatedAt:   createdAt,
	}

	if len(entry.Categories) > 0 && entry.Categories[0] != nil {
		item.Category = entry.Categories[0].Value
	}

	if entry.Enclosure != nil {
		item.EnclosureURL = entry.Enclosure.URL
		item.EnclosureType = entry.Enclosure.Type
		if entry.Enclosure.Length != "" {
			if length, err := strconv.ParseInt(entry.Enclosure.Length, 10, 64); err == nil {
				item.EnclosureLength = &length
			}
		}
	}

	if entry.Source != nil {
		item.SourceURL = entry.Source.URL
		item.SourceContent = entry.Source.Title
	}

	return item
}
