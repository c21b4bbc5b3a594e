package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lysyi3m/rsstank/app/cfg"
	"github.com/lysyi3m/rsstank/app/database"
	"github.com/lysyi3m/rsstank/app/dispatch"
	"github.com/lysyi3m/rsstank/app/mailtank"
)

type Handler struct {
	keyRepo   KeyRepository
	feedRepo  FeedRepository
	scheduler JobTrigger
	verifyKey KeyVerifier
}

func NewHandler(keyRepo KeyRepository, feedRepo FeedRepository, scheduler JobTrigger, verifyKey KeyVerifier) *Handler {
	return &Handler{
		keyRepo:   keyRepo,
		feedRepo:  feedRepo,
		scheduler: scheduler,
		verifyKey: verifyKey,
	}
}

func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"version": cfg.Get().Version,
	})
}

func (h *Handler) GetStats(c *gin.Context) {
	keyCount, err := h.keyRepo.GetKeyCount()
	if err != nil {
		slog.Error("Database error", "operation", "key_count", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	feedCount, err := h.feedRepo.GetFeedCount()
	if err != nil {
		slog.Error("Database error", "operation", "feed_count", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"keys":  keyCount,
		"feeds": feedCount,
	})
}

func (h *Handler) ListKeys(c *gin.Context) {
	keys, err := h.keyRepo.ListKeys()
	if err != nil {
		slog.Error("Database error", "operation", "list_keys", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	responses := make([]keyResponse, 0, len(keys))
	for i := range keys {
		responses = append(responses, keyToResponse(&keys[i]))
	}
	c.JSON(http.StatusOK, gin.H{"keys": responses})
}

// CreateKey registers a Mailtank access key. The key is probed against
// the external API first; a key Mailtank rejects as unauthorized is not
// stored.
func (h *Handler) CreateKey(c *gin.Context) {
	var req createKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	existing, err := h.keyRepo.GetKeyByContent(req.Content)
	if err != nil {
		slog.Error("Database error", "operation", "get_key", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}
	if existing != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "key already registered"})
		return
	}

	if err := h.verifyKey(c.Request.Context(), req.Content); err != nil {
		var apiErr *mailtank.Error
		if errors.As(err, &apiErr) && apiErr.IsAuth() {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "key rejected by mailtank"})
			return
		}
		slog.Warn("Key verification failed", "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "could not verify key against mailtank"})
		return
	}

	timezone := req.Timezone
	if timezone == "" {
		timezone = "UTC"
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown timezone"})
		return
	}

	// The configured default window is a local time of day; convert it
	// with the key's timezone, same as an explicit window update would be.
	appCfg := cfg.Get()
	start, end, err := dispatch.LocalWindowToUTC(appCfg.FirstSendStart, appCfg.FirstSendEnd, loc)
	if err != nil {
		slog.Error("Bad default first-send window", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	key := &database.AccessKey{
		Content:        req.Content,
		Namespace:      req.Namespace,
		Timezone:       timezone,
		FirstSendStart: start,
		FirstSendEnd:   end,
		LayoutID:       req.LayoutID,
	}
	if err := h.keyRepo.CreateKey(key); err != nil {
		slog.Error("Database error", "operation", "create_key", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	c.JSON(http.StatusCreated, keyToResponse(key))
}

// UpdateKey mutates a key's settings. A first-send window is supplied as
// local times of day and persisted as UTC seconds-of-day, converted with
// the key's timezone.
func (h *Handler) UpdateKey(c *gin.Context) {
	key, ok := h.keyByParam(c)
	if !ok {
		return
	}

	var req updateKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.Namespace != nil {
		key.Namespace = *req.Namespace
	}
	if req.LayoutID != nil {
		key.LayoutID = *req.LayoutID
	}
	if req.Timezone != nil {
		if _, err := time.LoadLocation(*req.Timezone); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown timezone"})
			return
		}
		key.Timezone = *req.Timezone
	}

	if req.FirstSendStart != nil || req.FirstSendEnd != nil {
		if req.FirstSendStart == nil || req.FirstSendEnd == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "both first_send_start and first_send_end are required"})
			return
		}
		loc, err := time.LoadLocation(key.Timezone)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown timezone"})
			return
		}
		start, end, err := dispatch.LocalWindowToUTC(*req.FirstSendStart, *req.FirstSendEnd, loc)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		key.FirstSendStart = start
		key.FirstSendEnd = end
	}

	if req.Enabled != nil {
		if *req.Enabled && key.EnabledAt == nil {
			now := time.Now().UTC().Truncate(time.Second)
			key.EnabledAt = &now
		}
		if !*req.Enabled {
			key.EnabledAt = nil
		}
	}

	if err := h.keyRepo.UpdateKey(key); err != nil {
		slog.Error("Database error", "operation", "update_key", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	c.JSON(http.StatusOK, keyToResponse(key))
}

func (h *Handler) ListKeyFeeds(c *gin.Context) {
	key, ok := h.keyByParam(c)
	if !ok {
		return
	}

	feeds, err := h.feedRepo.ListFeedsForKey(key.ID)
	if err != nil {
		slog.Error("Database error", "operation", "list_feeds", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	responses := make([]feedResponse, 0, len(feeds))
	for i := range feeds {
		responses = append(responses, feedToResponse(&feeds[i]))
	}
	c.JSON(http.StatusOK, gin.H{"feeds": responses})
}

// RunJob triggers a background job (poll, send, sync, cleanup) out of
// schedule.
func (h *Handler) RunJob(c *gin.Context) {
	name := c.Param("name")
	if err := h.scheduler.Trigger(name); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job": name, "status": "queued"})
}

func (h *Handler) keyByParam(c *gin.Context) (*database.AccessKey, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad key id"})
		return nil, false
	}

	key, err := h.keyRepo.GetKey(id)
	if err != nil {
		slog.Error("Database error", "operation", "get_key", "error", err)
		c.Status(http.StatusInternalServerError)
		return nil, false
	}
	if key == nil {
		c.Status(http.StatusNotFound)
		return nil, false
	}
	return key, true
}

func keyToResponse(key *database.AccessKey) keyResponse {
	resp := keyResponse{
		ID:             key.ID,
		Content:        key.Content,
		Enabled:        key.IsEnabled(),
		Namespace:      key.Namespace,
		Timezone:       key.Timezone,
		FirstSendStart: key.FirstSendStart,
		FirstSendEnd:   key.FirstSendEnd,
		LayoutID:       key.LayoutID,
	}
	if key.EnabledAt != nil {
		resp.EnabledAt = key.EnabledAt.UTC().Format(time.RFC3339)
	}
	return resp
}

func feedToResponse(feed *database.Feed) feedResponse {
	resp := feedResponse{
		ID:              feed.ID,
		URL:             feed.URL,
		Tag:             feed.Tag,
		SendingInterval: feed.SendingInterval,
		ChannelTitle:    feed.ChannelTitle,
	}
	if feed.LastPolledAt != nil {
		resp.LastPolledAt = feed.LastPolledAt.UTC().Format(time.RFC3339)
	}
	if feed.LastSentAt != nil {
		resp.LastSentAt = feed.LastSentAt.UTC().Format(time.RFC3339)
	}
	return resp
}
