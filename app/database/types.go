package database

import (
	"fmt"
	"time"
)

// AccessKey is a Mailtank API credential together with the per-tenant
// dispatch settings. A key is enabled iff EnabledAt is non-nil.
type AccessKey struct {
	ID        int64
	Content   string
	EnabledAt *time.Time
	Namespace string
	Timezone  string

	// First-send window endpoints, stored as UTC seconds of day.
	// Computed from the key's local timezone preference at write time.
	FirstSendStart int
	FirstSendEnd   int

	LayoutID  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (k *AccessKey) IsEnabled() bool {
	return k.EnabledAt != nil
}

// Feed is one subscribed RSS source belonging to an access key.
type Feed struct {
	ID              int64
	AccessKeyID     int64
	URL             string
	Tag             string
	SendingInterval int // seconds between mailings

	LastPolledAt *time.Time
	LastSentAt   *time.Time
	LastPubDate  *time.Time

	ChannelTitle       string
	ChannelLink        string
	ChannelDescription string
	ChannelImageURL    string

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (f *Feed) String() string {
	url := f.URL
	if len(url) > 60 {
		url = url[:60]
	}
	return fmt.Sprintf("<Feed #%d %s>", f.ID, url)
}

// Item is one entry of a feed. Items are immutable once stored.
type Item struct {
	ID          int64
	FeedID      int64
	GUID        string
	Title       string
	Link        string
	Description string
	Author      string
	Category    string
	Comments    string
	PubDate     time.Time
	CreatedAt   time.Time

	EnclosureURL    string
	EnclosureType   string
	EnclosureLength *int64

	SourceURL     string
	SourceContent string
}
