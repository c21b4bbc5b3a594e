package database

import (
	"database/sql"
	"fmt"
	"time"
)

// FeedRepository handles database operations for feeds
type FeedRepository struct {
	db *DB
}

func NewFeedRepository(db *DB) *FeedRepository {
	return &FeedRepository{db: db}
}

const feedColumns = `id, access_key_id, url, tag, sending_interval,
	last_polled_at, last_sent_at, last_pub_date,
	channel_title, channel_link, channel_description, channel_image_url,
	created_at, updated_at`

func scanFeed(row interface{ Scan(...any) error }) (*Feed, error) {
	var feed Feed
	var lastPolledAt, lastSentAt, lastPubDate sql.NullInt64
	var createdAt, updatedAt int64

	err := row.Scan(&feed.ID, &feed.AccessKeyID, &feed.URL, &feed.Tag, &feed.SendingInterval,
		&lastPolledAt, &lastSentAt, &lastPubDate,
		&feed.ChannelTitle, &feed.ChannelLink, &feed.ChannelDescription, &feed.ChannelImageURL,
		&createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	feed.LastPolledAt = fromNullUnix(lastPolledAt)
	feed.LastSentAt = fromNullUnix(lastSentAt)
	feed.LastPubDate = fromNullUnix(lastPubDate)
	feed.CreatedAt = fromUnix(createdAt)
	feed.UpdatedAt = fromUnix(updatedAt)
	return &feed, nil
}

func (r *FeedRepository) GetFeed(id int64) (*Feed, error) {
	feed, err := scanFeed(r.db.QueryRow(`
		SELECT `+feedColumns+` FROM feeds WHERE id = ?
	`, id))

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get feed: %w", err)
	}
	return feed, nil
}

func (r *FeedRepository) listFeeds(query string, args ...any) ([]Feed, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list feeds: %w", err)
	}
	defer rows.Close()

	var feeds []Feed
	for rows.Next() {
		feed, err := scanFeed(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan feed row: %w", err)
		}
		feeds = append(feeds, *feed)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating feed rows: %w", err)
	}
	return feeds, nil
}

func (r *FeedRepository) ListFeedsForKey(keyID int64) ([]Feed, error) {
	return r.listFeeds(`
		SELECT `+feedColumns+` FROM feeds WHERE access_key_id = ? ORDER BY id
	`, keyID)
}

// ListActiveFeeds returns the feeds of enabled keys, in stable order.
// These are the feeds considered by the poll and dispatch cycles.
func (r *FeedRepository) ListActiveFeeds() ([]Feed, error) {
	return r.listFeeds(`
		SELECT f.id, f.access_key_id, f.url, f.tag, f.sending_interval,
			f.last_polled_at, f.last_sent_at, f.last_pub_date,
			f.channel_title, f.channel_link, f.channel_description, f.channel_image_url,
			f.created_at, f.updated_at
		FROM feeds f
		JOIN access_keys k ON k.id = f.access_key_id
		WHERE k.enabled_at IS NOT NULL
		ORDER BY f.id
	`)
}

func (r *FeedRepository) ListAllFeeds() ([]Feed, error) {
	return r.listFeeds(`SELECT ` + feedColumns + ` FROM feeds ORDER BY id`)
}

func (r *FeedRepository) CreateFeed(feed *Feed) error {
	now := time.Now().UTC()

	err := r.db.QueryRow(`
		INSERT INTO feeds (access_key_id, url, tag, sending_interval,
			last_polled_at, last_sent_at, last_pub_date,
			channel_title, channel_link, channel_description, channel_image_url,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`, feed.AccessKeyID, feed.URL, feed.Tag, feed.SendingInterval,
		toNullUnix(feed.LastPolledAt), toNullUnix(feed.LastSentAt), toNullUnix(feed.LastPubDate),
		feed.ChannelTitle, feed.ChannelLink, feed.ChannelDescription, feed.ChannelImageURL,
		toUnix(now), toUnix(now)).Scan(&feed.ID)

	if err != nil {
		return fmt.Errorf("failed to create feed: %w", err)
	}
	return nil
}

func (r *FeedRepository) DeleteFeed(id int64) error {
	_, err := r.db.Exec(`DELETE FROM feeds WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete feed: %w", err)
	}
	return nil
}

// UpdateChannel refreshes the feed's channel-level metadata. Called on
// every poll, even when the document contained no new items.
func (r *FeedRepository) UpdateChannel(id int64, title, link, description, imageURL string) error {
	_, err := r.db.Exec(`
		UPDATE feeds
		SET channel_title = ?, channel_link = ?, channel_description = ?,
			channel_image_url = ?, updated_at = ?
		WHERE id = ?
	`, title, link, description, imageURL, toUnix(time.Now()), id)

	if err != nil {
		return fmt.Errorf("failed to update feed channel metadata: %w", err)
	}
	return nil
}

// MarkPolled records a completed poll. last_pub_date only moves forward;
// a nil lastPubDate leaves the stored watermark untouched.
func (r *FeedRepository) MarkPolled(id int64, polledAt time.Time, lastPubDate *time.Time) error {
	_, err := r.db.Exec(`
		UPDATE feeds
		SET last_polled_at = ?1,
			last_pub_date = CASE
				WHEN ?2 IS NULL THEN last_pub_date
				WHEN last_pub_date IS NULL OR ?2 > last_pub_date THEN ?2
				ELSE last_pub_date
			END,
			updated_at = ?3
		WHERE id = ?4
	`, toUnix(polledAt), toNullUnix(lastPubDate), toUnix(time.Now()), id)

	if err != nil {
		return fmt.Errorf("failed to mark feed polled: %w", err)
	}
	return nil
}

// MarkSent advances the dispatch watermark. Only called after the mailing
// API accepted the digest.
func (r *FeedRepository) MarkSent(id int64, sentAt time.Time) error {
	_, err := r.db.Exec(`
		UPDATE feeds SET last_sent_at = ?, updated_at = ? WHERE id = ?
	`, toUnix(sentAt), toUnix(time.Now()), id)

	if err != nil {
		return fmt.Errorf("failed to mark feed sent: %w", err)
	}
	return nil
}

func (r *FeedRepository) GetFeedCount() (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM feeds`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get feed count: %w", err)
	}
	return count, nil
}
