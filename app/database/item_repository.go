package database

import (
	"database/sql"
	"fmt"
	"time"
)

// ItemRepository handles database operations for feed items
type ItemRepository struct {
	db *DB
}

func NewItemRepository(db *DB) *ItemRepository {
	return &ItemRepository{db: db}
}

const itemColumns = `id, feed_id, guid, title, link, description,
	author, category, comments, pub_date, created_at,
	enclosure_url, enclosure_type, enclosure_length, source_url, source_content`

func scanItem(row interface{ Scan(...any) error }) (*Item, error) {
	var item Item
	var pubDate, createdAt int64
	var enclosureLength sql.NullInt64

	err := row.Scan(&item.ID, &item.FeedID, &item.GUID, &item.Title, &item.Link, &item.Description,
		&item.Author, &item.Category, &item.Comments, &pubDate, &createdAt,
		&item.EnclosureURL, &item.EnclosureType, &enclosureLength,
		&item.SourceURL, &item.SourceContent)
	if err != nil {
		return nil, err
	}

	item.PubDate = fromUnix(pubDate)
	item.CreatedAt = fromUnix(createdAt)
	if enclosureLength.Valid {
		item.EnclosureLength = &enclosureLength.Int64
	}
	return &item, nil
}

// InsertItem stores an item, silently ignoring duplicates: the unique
// (feed_id, guid) index makes re-polls idempotent. Reports whether a row
// was actually inserted.
func (r *ItemRepository) InsertItem(item *Item) (bool, error) {
	var enclosureLength sql.NullInt64
	if item.EnclosureLength != nil {
		enclosureLength = sql.NullInt64{Int64: *item.EnclosureLength, Valid: true}
	}

	res, err := r.db.Exec(`
		INSERT INTO feed_items (feed_id, guid, title, link, description,
			author, category, comments, pub_date, created_at,
			enclosure_url, enclosure_type, enclosure_length, source_url, source_content)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (feed_id, guid) DO NOTHING
	`, item.FeedID, item.GUID, item.Title, item.Link, item.Description,
		item.Author, item.Category, item.Comments, toUnix(item.PubDate), toUnix(item.CreatedAt),
		item.EnclosureURL, item.EnclosureType, enclosureLength,
		item.SourceURL, item.SourceContent)

	if err != nil {
		return false, fmt.Errorf("failed to insert feed item: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return affected > 0, nil
}

func (r *ItemRepository) listItems(query string, args ...any) ([]Item, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list feed items: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan feed item row: %w", err)
		}
		items = append(items, *item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating feed item rows: %w", err)
	}
	return items, nil
}

// ListItems returns all items of a feed ordered by publication date.
func (r *ItemRepository) ListItems(feedID int64) ([]Item, error) {
	return r.listItems(`
		SELECT `+itemColumns+` FROM feed_items
		WHERE feed_id = ?
		ORDER BY pub_date, id
	`, feedID)
}

// ListItemsCreatedSince returns the feed's items with created_at >= since,
// ordered by publication date. The boundary is inclusive: the dispatch
// watermark is set to "now", and an item ingested at that same second must
// be picked up by the next cycle (guid dedup prevents double sends).
func (r *ItemRepository) ListItemsCreatedSince(feedID int64, since time.Time) ([]Item, error) {
	return r.listItems(`
		SELECT `+itemColumns+` FROM feed_items
		WHERE feed_id = ? AND created_at >= ?
		ORDER BY pub_date, id
	`, feedID, toUnix(since))
}

// LatestItemCreatedAt returns the most recent ingestion timestamp of the
// feed's items, or nil when the feed has none.
func (r *ItemRepository) LatestItemCreatedAt(feedID int64) (*time.Time, error) {
	var latest sql.NullInt64
	err := r.db.QueryRow(`
		SELECT MAX(created_at) FROM feed_items WHERE feed_id = ?
	`, feedID).Scan(&latest)

	if err != nil {
		return nil, fmt.Errorf("failed to get latest item creation time: %w", err)
	}
	return fromNullUnix(latest), nil
}

// DeleteItemsCreatedBefore removes items ingested before the cutoff.
// Used by the retention sweep once items are older than the feed's
// dispatch watermark.
func (r *ItemRepository) DeleteItemsCreatedBefore(feedID int64, cutoff time.Time) (int64, error) {
	res, err := r.db.Exec(`
		DELETE FROM feed_items WHERE feed_id = ? AND created_at < ?
	`, feedID, toUnix(cutoff))

	if err != nil {
		return 0, fmt.Errorf("failed to delete feed items: %w", err)
	}

	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return deleted, nil
}

func (r *ItemRepository) GetItemCount(feedID int64) (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM feed_items WHERE feed_id = ?`, feedID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get feed item count: %w", err)
	}
	return count, nil
}
