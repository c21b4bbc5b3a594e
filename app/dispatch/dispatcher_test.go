package dispatch

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/lysyi3m/rsstank/app/database"
	"github.com/lysyi3m/rsstank/app/mailtank"
)

type fakeFeedRepo struct {
	feeds []database.Feed
	sent  map[int64]time.Time
}

func (f *fakeFeedRepo) ListActiveFeeds() ([]database.Feed, error) {
	return f.feeds, nil
}

func (f *fakeFeedRepo) MarkSent(id int64, sentAt time.Time) error {
	if f.sent == nil {
		f.sent = make(map[int64]time.Time)
	}
	f.sent[id] = sentAt
	return nil
}

type fakeItemRepo struct {
	items []database.Item
}

func (f *fakeItemRepo) ListItems(feedID int64) ([]database.Item, error) {
	var items []database.Item
	for _, item := range f.items {
		if item.FeedID == feedID {
			items = append(items, item)
		}
	}
	return items, nil
}

func (f *fakeItemRepo) ListItemsCreatedSince(feedID int64, since time.Time) ([]database.Item, error) {
	var items []database.Item
	for _, item := range f.items {
		if item.FeedID == feedID && !item.CreatedAt.Before(since) {
			items = append(items, item)
		}
	}
	return items, nil
}

func (f *fakeItemRepo) LatestItemCreatedAt(feedID int64) (*time.Time, error) {
	var latest *time.Time
	for _, item := range f.items {
		if item.FeedID != feedID {
			continue
		}
		if latest == nil || item.CreatedAt.After(*latest) {
			created := item.CreatedAt
			latest = &created
		}
	}
	return latest, nil
}

type fakeKeyRepo struct {
	keys map[int64]*database.AccessKey
}

func (f *fakeKeyRepo) GetKey(id int64) (*database.AccessKey, error) {
	return f.keys[id], nil
}

type fakeMailer struct {
	err error

	calls       int
	lastLayout  string
	lastContext map[string]any
	lastTarget  mailtank.Target
}

func (m *fakeMailer) CreateMailing(ctx context.Context, layoutID string, mailingContext map[string]any, target mailtank.Target, attachments []mailtank.Attachment) (*mailtank.Mailing, error) {
	m.calls++
	m.lastLayout = layoutID
	m.lastContext = mailingContext
	m.lastTarget = target

	if m.err != nil {
		return nil, m.err
	}
	return &mailtank.Mailing{ID: 42, Status: "ENQUEUED"}, nil
}

func allDayKey() *database.AccessKey {
	enabled := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return &database.AccessKey{
		ID:             1,
		Content:        "test-key",
		EnabledAt:      &enabled,
		Namespace:      "testns",
		FirstSendStart: 0,
		FirstSendEnd:   86399,
		LayoutID:       "layout-1",
	}
}

func testDispatcher(feedRepo *fakeFeedRepo, itemRepo *fakeItemRepo, keyRepo *fakeKeyRepo, mailer *fakeMailer) *Dispatcher {
	d := NewDispatcher(feedRepo, itemRepo, keyRepo, func(keyContent string) Mailer {
		return mailer
	})
	d.now = func() time.Time {
		return time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	}
	return d
}

func TestDispatcher_Run_SendsDueFeed(t *testing.T) {
	key := allDayKey()
	pub := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

	feedRepo := &fakeFeedRepo{feeds: []database.Feed{
		{ID: 7, AccessKeyID: 1, URL: "http://example.com/rss", Tag: "rss:testns:http://example.com/rss:3600", SendingInterval: 3600, ChannelTitle: "Example"},
	}}
	itemRepo := &fakeItemRepo{items: []database.Item{
		{FeedID: 7, GUID: "g1", Title: "First", PubDate: pub, CreatedAt: pub},
	}}
	keyRepo := &fakeKeyRepo{keys: map[int64]*database.AccessKey{1: key}}
	mailer := &fakeMailer{}

	d := testDispatcher(feedRepo, itemRepo, keyRepo, mailer)
	if err := d.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if mailer.calls != 1 {
		t.Fatalf("Expected 1 mailing, got %d", mailer.calls)
	}
	if mailer.lastLayout != "layout-1" {
		t.Errorf("Expected layout 'layout-1', got %q", mailer.lastLayout)
	}
	if len(mailer.lastTarget.Tags) != 1 || mailer.lastTarget.Tags[0] != "rss:testns:http://example.com/rss:3600" {
		t.Errorf("Mailing should target the feed's tag, got %v", mailer.lastTarget.Tags)
	}
	if len(mailer.lastTarget.UnsubscribeTags) != 1 || mailer.lastTarget.UnsubscribeTags[0] != "rss:testns:http://example.com/rss:3600" {
		t.Errorf("Unsubscribing should remove the feed's tag, got %v", mailer.lastTarget.UnsubscribeTags)
	}

	if _, ok := feedRepo.sent[7]; !ok {
		t.Error("Successful dispatch should advance the last_sent_at watermark")
	}

	items, ok := mailer.lastContext["items"].([]map[string]any)
	if !ok || len(items) != 1 {
		t.Fatalf("Mailing context should carry 1 item, got %v", mailer.lastContext["items"])
	}
	if items[0]["title"] != "First" {
		t.Errorf("Expected item title 'First', got %v", items[0]["title"])
	}
	if items[0]["pub_date"] != "2024-03-15 10:00:00" {
		t.Errorf("Expected formatted pub_date, got %v", items[0]["pub_date"])
	}
	channel, ok := mailer.lastContext["channel"].(map[string]any)
	if !ok || channel["title"] != "Example" {
		t.Errorf("Mailing context should carry the channel metadata, got %v", mailer.lastContext["channel"])
	}
}

func TestDispatcher_Run_SkipsDisabledKey(t *testing.T) {
	key := allDayKey()
	key.EnabledAt = nil

	pub := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	feedRepo := &fakeFeedRepo{feeds: []database.Feed{
		{ID: 7, AccessKeyID: 1, URL: "http://example.com/rss", SendingInterval: 3600},
	}}
	itemRepo := &fakeItemRepo{items: []database.Item{
		{FeedID: 7, GUID: "g1", PubDate: pub, CreatedAt: pub},
	}}
	keyRepo := &fakeKeyRepo{keys: map[int64]*database.AccessKey{1: key}}
	mailer := &fakeMailer{}

	d := testDispatcher(feedRepo, itemRepo, keyRepo, mailer)
	if err := d.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if mailer.calls != 0 {
		t.Errorf("Disabled key's feed should not be dispatched, got %d mailings", mailer.calls)
	}
}

func TestDispatcher_Run_SkipsFeedWithNothingNew(t *testing.T) {
	key := allDayKey()
	lastSent := time.Date(2024, 3, 15, 8, 0, 0, 0, time.UTC)

	// Item ingested before the watermark; feed is due by time but empty.
	feedRepo := &fakeFeedRepo{feeds: []database.Feed{
		{ID: 7, AccessKeyID: 1, URL: "http://example.com/rss", SendingInterval: 3600, LastSentAt: timePtr(lastSent)},
	}}
	itemRepo := &fakeItemRepo{items: []database.Item{
		{FeedID: 7, GUID: "g1", PubDate: lastSent.Add(-2 * time.Hour), CreatedAt: lastSent.Add(-2 * time.Hour)},
	}}
	keyRepo := &fakeKeyRepo{keys: map[int64]*database.AccessKey{1: key}}
	mailer := &fakeMailer{}

	d := testDispatcher(feedRepo, itemRepo, keyRepo, mailer)
	if err := d.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if mailer.calls != 0 {
		t.Errorf("Feed with no unsent items should not be dispatched, got %d mailings", mailer.calls)
	}
}

func TestDispatch_MailingErrorKeepsWatermark(t *testing.T) {
	key := allDayKey()
	pub := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

	feed := &database.Feed{ID: 7, AccessKeyID: 1, URL: "http://example.com/rss", SendingInterval: 3600}
	feedRepo := &fakeFeedRepo{}
	itemRepo := &fakeItemRepo{items: []database.Item{
		{FeedID: 7, GUID: "g1", PubDate: pub, CreatedAt: pub},
	}}
	keyRepo := &fakeKeyRepo{keys: map[int64]*database.AccessKey{1: key}}
	mailer := &fakeMailer{err: &mailtank.Error{Code: 503, Message: "Service Unavailable"}}

	d := testDispatcher(feedRepo, itemRepo, keyRepo, mailer)

	// The API failure is absorbed: logged, no error, no watermark.
	if err := d.Dispatch(context.Background(), feed, key); err != nil {
		t.Fatalf("Dispatch should absorb a mailing API error, got: %v", err)
	}

	if len(feedRepo.sent) != 0 {
		t.Error("Failed mailing should not advance the last_sent_at watermark")
	}
	if feed.LastSentAt != nil {
		t.Error("Failed mailing should leave the in-memory feed untouched")
	}
}

func TestDispatch_EmptySelectionPanics(t *testing.T) {
	key := allDayKey()
	feed := &database.Feed{ID: 7, AccessKeyID: 1, URL: "http://example.com/rss", SendingInterval: 3600}

	d := testDispatcher(&fakeFeedRepo{}, &fakeItemRepo{}, &fakeKeyRepo{}, &fakeMailer{})

	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("Dispatch with no eligible items should panic")
		}
		if msg, ok := r.(string); !ok || !strings.Contains(msg, "no eligible items") {
			t.Errorf("Unexpected panic value: %v", r)
		}
	}()

	d.Dispatch(context.Background(), feed, key)
}

func TestSelectItems_GUIDDedupKeepsLatest(t *testing.T) {
	base := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

	// "g1" appears twice; only the later-published version survives.
	itemRepo := &fakeItemRepo{items: []database.Item{
		{ID: 1, FeedID: 7, GUID: "g1", Title: "old version", PubDate: base, CreatedAt: base},
		{ID: 2, FeedID: 7, GUID: "g2", Title: "middle", PubDate: base.Add(time.Hour), CreatedAt: base.Add(time.Hour)},
		{ID: 3, FeedID: 7, GUID: "g1", Title: "new version", PubDate: base.Add(2 * time.Hour), CreatedAt: base.Add(2 * time.Hour)},
	}}

	d := testDispatcher(&fakeFeedRepo{}, itemRepo, &fakeKeyRepo{}, &fakeMailer{})

	items, err := d.selectItems(&database.Feed{ID: 7})
	if err != nil {
		t.Fatalf("selectItems failed: %v", err)
	}

	if len(items) != 2 {
		t.Fatalf("Expected 2 items after dedup, got %d", len(items))
	}
	if items[0].Title != "middle" {
		t.Errorf("Expected oldest-first ordering, got %q first", items[0].Title)
	}
	if items[1].Title != "new version" {
		t.Errorf("Duplicate guid should keep the later-published version, got %q", items[1].Title)
	}
}

func TestSelectItems_WatermarkBoundaryInclusive(t *testing.T) {
	lastSent := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

	// One item at the watermark second exactly, one before, one after.
	itemRepo := &fakeItemRepo{items: []database.Item{
		{ID: 1, FeedID: 7, GUID: "before", PubDate: lastSent.Add(-time.Hour), CreatedAt: lastSent.Add(-time.Hour)},
		{ID: 2, FeedID: 7, GUID: "boundary", PubDate: lastSent, CreatedAt: lastSent},
		{ID: 3, FeedID: 7, GUID: "after", PubDate: lastSent.Add(time.Hour), CreatedAt: lastSent.Add(time.Hour)},
	}}

	d := testDispatcher(&fakeFeedRepo{}, itemRepo, &fakeKeyRepo{}, &fakeMailer{})

	items, err := d.selectItems(&database.Feed{ID: 7, LastSentAt: timePtr(lastSent)})
	if err != nil {
		t.Fatalf("selectItems failed: %v", err)
	}

	if len(items) != 2 {
		t.Fatalf("Expected 2 items (boundary inclusive), got %d", len(items))
	}
	if items[0].GUID != "boundary" || items[1].GUID != "after" {
		t.Errorf("Expected [boundary after], got [%s %s]", items[0].GUID, items[1].GUID)
	}
}

func TestItemContext_Enclosure(t *testing.T) {
	length := int64(12345)
	item := database.Item{
		GUID:            "g1",
		Title:           "With enclosure",
		PubDate:         time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC),
		EnclosureURL:    "http://example.com/audio.mp3",
		EnclosureType:   "audio/mpeg",
		EnclosureLength: &length,
		SourceURL:       "http://example.com/source",
		SourceContent:   "Example Source",
	}

	entry := itemContext(item)

	enclosure, ok := entry["enclosure"].(map[string]any)
	if !ok {
		t.Fatal("Item with an enclosure should expose it in the context")
	}
	if enclosure["url"] != "http://example.com/audio.mp3" {
		t.Errorf("Unexpected enclosure url: %v", enclosure["url"])
	}
	if enclosure["length"] != int64(12345) {
		t.Errorf("Unexpected enclosure length: %v", enclosure["length"])
	}

	source, ok := entry["source"].(map[string]any)
	if !ok {
		t.Fatal("Item with a source should expose it in the context")
	}
	if source["content"] != "Example Source" {
		t.Errorf("Unexpected source content: %v", source["content"])
	}

	plain := itemContext(database.Item{GUID: "g2", PubDate: item.PubDate})
	if _, ok := plain["enclosure"]; ok {
		t.Error("Item without an enclosure should not expose one")
	}
	if _, ok := plain["source"]; ok {
		t.Error("Item without a source should not expose one")
	}
}
