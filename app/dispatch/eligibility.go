package dispatch

import (
	"time"

	"github.com/lysyi3m/rsstank/app/database"
)

// IsTimeToSend decides whether the feed is due for a mailing at `now`.
//
// A feed that has never been sent may only go out while `now`'s UTC
// time of day falls inside the owning key's first-send window (both
// endpoints inclusive). Once sent, the feed is due again exactly at
// last_sent_at + sending_interval.
func IsTimeToSend(feed *database.Feed, key *database.AccessKey, now time.Time) bool {
	if feed.LastSentAt == nil {
		return inFirstSendWindow(key, now)
	}
	due := feed.LastSentAt.Add(time.Duration(feed.SendingInterval) * time.Second)
	return !now.Before(due)
}

// HasItemsToSend reports whether the feed holds anything unsent: at least
// one item, and either no dispatch has happened yet or an item was
// ingested strictly after the last one.
func HasItemsToSend(feed *database.Feed, latestItemCreatedAt *time.Time) bool {
	if latestItemCreatedAt == nil {
		return false
	}
	if feed.LastSentAt == nil {
		return true
	}
	return latestItemCreatedAt.After(*feed.LastSentAt)
}

// inFirstSendWindow checks `now`'s UTC seconds-of-day against the key's
// window. A window whose start exceeds its end crosses midnight.
func inFirstSendWindow(key *database.AccessKey, now time.Time) bool {
	utc := now.UTC()
	seconds := utc.Hour()*3600 + utc.Minute()*60 + utc.Second()

	start, end := key.FirstSendStart, key.FirstSendEnd
	if start <= end {
		return seconds >= start && seconds <= end
	}
	return seconds >= start || seconds <= end
}
