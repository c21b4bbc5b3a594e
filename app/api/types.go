package api

import (
	"context"

	"github.com/lysyi3m/rsstank/app/database"
)

// KeyRepository is the slice of the key store the API needs.
type KeyRepository interface {
	ListKeys() ([]database.AccessKey, error)
	GetKey(id int64) (*database.AccessKey, error)
	GetKeyByContent(content string) (*database.AccessKey, error)
	CreateKey(key *database.AccessKey) error
	UpdateKey(key *database.AccessKey) error
	GetKeyCount() (int, error)
}

// FeedRepository exposes feed listings and counters.
type FeedRepository interface {
	ListFeedsForKey(keyID int64) ([]database.Feed, error)
	GetFeedCount() (int, error)
}

// JobTrigger runs a background job out of schedule.
type JobTrigger interface {
	Trigger(name string) error
}

// KeyVerifier probes the external API with a key before it is accepted.
type KeyVerifier func(ctx context.Context, keyContent string) error

type keyResponse struct {
	ID             int64  `json:"id"`
	Content        string `json:"content"`
	Enabled        bool   `json:"enabled"`
	EnabledAt      string `json:"enabled_at,omitempty"`
	Namespace      string `json:"namespace"`
	Timezone       string `json:"timezone"`
	FirstSendStart int    `json:"first_send_start"`
	FirstSendEnd   int    `json:"first_send_end"`
	LayoutID       string `json:"layout_id"`
}

type createKeyRequest struct {
	Content   string `json:"content" binding:"required"`
	Namespace string `json:"namespace"`
	Timezone  string `json:"timezone"`
	LayoutID  string `json:"layout_id"`
}

type updateKeyRequest struct {
	Enabled        *bool   `json:"enabled"`
	Namespace      *string `json:"namespace"`
	Timezone       *string `json:"timezone"`
	LayoutID       *string `json:"layout_id"`
	FirstSendStart *string `json:"first_send_start"`
	FirstSendEnd   *string `json:"first_send_end"`
}

type feedResponse struct {
	ID              int64  `json:"id"`
	URL             string `json:"url"`
	Tag             string `json:"tag"`
	SendingInterval int    `json:"sending_interval"`
	LastPolledAt    string `json:"last_polled_at,omitempty"`
	LastSentAt      string `json:"last_sent_at,omitempty"`
	ChannelTitle    string `json:"channel_title,omitempty"`
}
