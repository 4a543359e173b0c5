package observations

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aerodrome-observer/backend/internal/access"
	"github.com/aerodrome-observer/backend/internal/aerodromes"
	"github.com/aerodrome-observer/backend/internal/middleware"
	"github.com/aerodrome-observer/backend/internal/models"
	"github.com/aerodrome-observer/backend/internal/realtime"
	"github.com/aerodrome-observer/backend/pkg/queue"
	"github.com/aerodrome-observer/backend/pkg/response"
	"github.com/aerodrome-observer/backend/pkg/storage"
)

const maxCaptionLen = 1000

// Store persists observations and their media.
type Store interface {
	Create(ctx context.Context, o *models.Observation) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Observation, error)
	Feed(ctx context.Context, q FeedQuery) ([]models.Observation, error)
	CreateMedia(ctx context.Context, m *models.ObservationMedia) error
	GetMedia(ctx context.Context, id uuid.UUID) (*models.ObservationMedia, error)
	ListMedia(ctx context.Context, observationIDs []uuid.UUID, status string) (map[uuid.UUID][]models.ObservationMedia, error)
}

// AerodromeFinder resolves an ICAO code.
type AerodromeFinder interface {
	GetByICAO(ctx context.Context, icao string) (*models.Aerodrome, error)
}

// MediaStorage is the object storage used for observation photos (pkg/storage.S3).
type MediaStorage interface {
	GeneratePresignedUploadURL(ctx context.Context, bucket, key, contentType string, expires time.Duration) (string, error)
	GeneratePresignedDownloadURL(ctx context.Context, bucket, key string, expires time.Duration) (string, error)
	Upload(ctx context.Context, bucket, key, contentType string, body io.Reader, contentLength int64) error
	PresignExpire() time.Duration
	MediaBucket() string
}

// VerifyQueue enqueues media verification jobs (pkg/queue.Queue).
type VerifyQueue interface {
	EnqueueMediaVerify(ctx context.Context, payload queue.MediaVerifyPayload) error
}

// Publisher delivers live feed events (realtime.Hub).
type Publisher interface {
	Publish(icao, event string, payload interface{}, restricted bool)
}

// SummaryInvalidator drops cached aerodrome summaries (aerodromes.Summaries).
type SummaryInvalidator interface {
	Invalidate(ctx context.Context, icao string)
}

// Handler handles observation HTTP endpoints.
type Handler struct {
	store        Store
	aerodromes   AerodromeFinder
	gate         *access.Gate
	storage      MediaStorage       // optional: nil disables media endpoints
	queue        VerifyQueue        // optional: nil disables upload completion
	publisher    Publisher          // optional
	summaries    SummaryInvalidator // optional
	defaultLimit int
	maxLimit     int
	logger       *zap.Logger
}

// NewHandler creates an observations handler.
func NewHandler(store Store, finder AerodromeFinder, gate *access.Gate, defaultLimit, maxLimit int, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if defaultLimit <= 0 {
		defaultLimit = 30
	}
	if maxLimit < defaultLimit {
		maxLimit = defaultLimit
	}
	return &Handler{store: store, aerodromes: finder, gate: gate, defaultLimit: defaultLimit, maxLimit: maxLimit, logger: logger}
}

// SetStorage sets the media object storage.
func (h *Handler) SetStorage(s MediaStorage) { h.storage = s }

// SetQueue sets the media verification queue.
func (h *Handler) SetQueue(q VerifyQueue) { h.queue = q }

// SetPublisher sets the live feed publisher.
func (h *Handler) SetPublisher(p Publisher) { h.publisher = p }

// SetSummaries sets the summary cache to invalidate on new observations.
func (h *Handler) SetSummaries(s SummaryInvalidator) { h.summaries = s }

// CreateRequest is the body of POST /aerodromes/:icao/observations.
type CreateRequest struct {
	Type      models.ObservationType `json:"type" binding:"required"`
	Caption   string                 `json:"caption"`
	Privacy   models.Privacy         `json:"privacy"`
	EventTime *time.Time             `json:"event_time"`
	Latitude  *float64               `json:"latitude" binding:"omitempty,min=-90,max=90"`
	Longitude *float64               `json:"longitude" binding:"omitempty,min=-180,max=180"`
}

// MediaRequest is the body of POST /observations/:id/media.
type MediaRequest struct {
	ContentType string `json:"content_type" binding:"required"`
	Filename    string `json:"filename"`
}

// FeedPage is a page of an aerodrome feed.
type FeedPage struct {
	ICAO      string               `json:"icao"`
	Limit     int                  `json:"limit"`
	Offset    int                  `json:"offset"`
	Items     []models.Observation `json:"items"`
	FetchedAt time.Time            `json:"fetched_at"`
}

func (h *Handler) resolveAerodrome(c *gin.Context) (*models.Aerodrome, bool) {
	icao, ok := aerodromes.NormalizeICAO(c.Param("icao"))
	if !ok {
		response.BadRequest(c, "invalid ICAO code")
		return nil, false
	}
	a, err := h.aerodromes.GetByICAO(c.Request.Context(), icao)
	if err != nil {
		if errors.Is(err, aerodromes.ErrNotFound) {
			response.NotFound(c, "aerodrome not found")
			return nil, false
		}
		h.logger.Error("resolve aerodrome", zap.Error(err), zap.String("icao", icao))
		response.ServiceUnavailable(c, "aerodrome data unavailable")
		return nil, false
	}
	return a, true
}

// Create handles POST /aerodromes/:icao/observations. Requires CapCreateObservation.
func (h *Handler) Create(c *gin.Context) {
	userID, _ := middleware.UserID(c)
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if !req.Type.Valid() {
		response.BadRequest(c, "invalid observation type")
		return
	}
	if req.Privacy == "" {
		req.Privacy = models.PrivacyPublic
	}
	if !req.Privacy.Valid() {
		response.BadRequest(c, "privacy must be public or collaborators")
		return
	}
	caption := strings.TrimSpace(req.Caption)
	if len([]rune(caption)) > maxCaptionLen {
		response.BadRequest(c, "caption too long")
		return
	}
	a, ok := h.resolveAerodrome(c)
	if !ok {
		return
	}

	o := &models.Observation{
		AerodromeID: a.ID,
		ICAO:        a.ICAO,
		CreatedBy:   userID,
		Type:        req.Type,
		Caption:     caption,
		Privacy:     req.Privacy,
		EventTime:   req.EventTime,
		Latitude:    req.Latitude,
		Longitude:   req.Longitude,
	}
	if d, ok := middleware.Decision(c); ok && d.Profile != nil {
		o.AuthorName = d.Profile.DisplayName
		o.AuthorRole = d.Profile.Role
	}
	if err := h.store.Create(c.Request.Context(), o); err != nil {
		h.logger.Error("create observation failed", zap.Error(err), zap.String("icao", a.ICAO))
		response.Internal(c, "failed to create observation")
		return
	}

	if h.publisher != nil {
		h.publisher.Publish(a.ICAO, realtime.EventObservationCreated, o, o.Privacy != models.PrivacyPublic)
	}
	if h.summaries != nil && o.Privacy == models.PrivacyPublic {
		h.summaries.Invalidate(c.Request.Context(), a.ICAO)
	}
	h.logger.Info("observation created",
		zap.String("observation_id", o.ID.String()),
		zap.String("icao", a.ICAO),
		zap.String("privacy", string(o.Privacy)))
	response.Created(c, o)
}

func (h *Handler) pageParams(c *gin.Context) (limit, offset int, ok bool) {
	limit, offset = h.defaultLimit, 0
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			response.BadRequest(c, "limit must be a positive integer")
			return 0, 0, false
		}
		limit = n
	}
	if limit > h.maxLimit {
		limit = h.maxLimit
	}
	if v := c.Query("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			response.BadRequest(c, "offset must be a non-negative integer")
			return 0, 0, false
		}
		offset = n
	}
	return limit, offset, true
}

// canReadRestricted evaluates the optional caller. Store failures degrade to public content.
func (h *Handler) canReadRestricted(c *gin.Context) bool {
	userID, ok := middleware.UserID(c)
	if !ok {
		return false
	}
	allowed, err := h.gate.Allow(c.Request.Context(), userID, access.CapReadRestricted)
	if err != nil {
		h.logger.Warn("feed authorization failed, serving public content", zap.Error(err))
		return false
	}
	return allowed
}

// Feed handles GET /aerodromes/:icao/feed. Optional JWT.
func (h *Handler) Feed(c *gin.Context) {
	limit, offset, ok := h.pageParams(c)
	if !ok {
		return
	}
	a, ok := h.resolveAerodrome(c)
	if !ok {
		return
	}
	restricted := h.canReadRestricted(c)
	items, err := h.store.Feed(c.Request.Context(), FeedQuery{
		AerodromeID:       a.ID,
		IncludeRestricted: restricted,
		Limit:             limit,
		Offset:            offset,
	})
	if err != nil {
		h.logger.Error("feed query failed", zap.Error(err), zap.String("icao", a.ICAO))
		response.ServiceUnavailable(c, "feed unavailable")
		return
	}
	if err := h.attachMedia(c.Request.Context(), items); err != nil {
		h.logger.Warn("attach feed media failed", zap.Error(err), zap.String("icao", a.ICAO))
	}
	if _, authed := middleware.UserID(c); !authed {
		c.Header("Cache-Control", "public, s-maxage=30, stale-while-revalidate=15")
	} else {
		c.Header("Cache-Control", "private, no-store")
	}
	response.OK(c, FeedPage{ICAO: a.ICAO, Limit: limit, Offset: offset, Items: items, FetchedAt: time.Now().UTC()})
}

func (h *Handler) attachMedia(ctx context.Context, items []models.Observation) error {
	if len(items) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, len(items))
	for i := range items {
		ids[i] = items[i].ID
	}
	media, err := h.store.ListMedia(ctx, ids, models.MediaReady)
	if err != nil {
		return err
	}
	for i := range items {
		list := media[items[i].ID]
		if h.storage != nil {
			for j := range list {
				url, err := h.storage.GeneratePresignedDownloadURL(ctx, list[j].StorageBucket, list[j].StoragePath, h.storage.PresignExpire())
				if err != nil {
					h.logger.Warn("presign media failed", zap.Error(err), zap.String("media_id", list[j].ID.String()))
					continue
				}
				list[j].URL = url
			}
		}
		items[i].Media = list
	}
	return nil
}

// loadOwned loads the observation in :id and checks the caller is its creator or an admin.
func (h *Handler) loadOwned(c *gin.Context) (*models.Observation, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid observation id")
		return nil, false
	}
	o, err := h.store.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c, "observation not found")
			return nil, false
		}
		h.logger.Error("load observation failed", zap.Error(err), zap.String("observation_id", id.String()))
		response.Internal(c, "failed to load observation")
		return nil, false
	}
	userID, _ := middleware.UserID(c)
	d, _ := middleware.Decision(c)
	isAdmin := d.Profile != nil && d.Profile.Role == models.RoleAdmin
	if o.CreatedBy != userID && !isAdmin {
		response.Fail(c, http.StatusForbidden, string(models.ReasonUnauthorized), "only the author or an admin can attach media")
		return nil, false
	}
	return o, true
}

func (h *Handler) requireStorage(c *gin.Context) bool {
	if h.storage == nil {
		response.ServiceUnavailable(c, "media storage not configured")
		return false
	}
	return true
}

// CreateUploadURL handles POST /observations/:id/media. Returns a presigned PUT URL.
func (h *Handler) CreateUploadURL(c *gin.Context) {
	if !h.requireStorage(c) {
		return
	}
	o, ok := h.loadOwned(c)
	if !ok {
		return
	}
	var req MediaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if !storage.ValidateMediaType(req.ContentType, req.Filename) {
		response.BadRequest(c, "invalid file type: only jpeg, png, webp and heic images allowed")
		return
	}
	contentType := storage.ContentTypeFor(req.ContentType, req.Filename)
	m := &models.ObservationMedia{
		ID:            uuid.New(),
		ObservationID: o.ID,
		StorageBucket: h.storage.MediaBucket(),
		MimeType:      contentType,
		Status:        models.MediaPending,
	}
	m.StoragePath = storage.MediaKey(o.ID.String(), m.ID.String(), contentType)

	expires := h.storage.PresignExpire()
	url, err := h.storage.GeneratePresignedUploadURL(c.Request.Context(), m.StorageBucket, m.StoragePath, contentType, expires)
	if err != nil {
		h.logger.Error("presign upload failed", zap.Error(err), zap.String("observation_id", o.ID.String()))
		response.Internal(c, "failed to generate upload URL")
		return
	}
	if err := h.store.CreateMedia(c.Request.Context(), m); err != nil {
		h.logger.Error("create media failed", zap.Error(err), zap.String("observation_id", o.ID.String()))
		response.Internal(c, "failed to record media")
		return
	}
	response.Created(c, gin.H{
		"media":      m,
		"upload_url": url,
		"expires_in": int(expires.Seconds()),
	})
}

// CompleteUpload handles POST /observations/:id/media/:mediaId/complete. Enqueues verification.
func (h *Handler) CompleteUpload(c *gin.Context) {
	o, ok := h.loadOwned(c)
	if !ok {
		return
	}
	mediaID, err := uuid.Parse(c.Param("mediaId"))
	if err != nil {
		response.BadRequest(c, "invalid media id")
		return
	}
	m, err := h.store.GetMedia(c.Request.Context(), mediaID)
	if err != nil || m.ObservationID != o.ID {
		if err == nil || errors.Is(err, ErrMediaNotFound) {
			response.NotFound(c, "media not found")
			return
		}
		h.logger.Error("load media failed", zap.Error(err), zap.String("media_id", mediaID.String()))
		response.Internal(c, "failed to load media")
		return
	}
	if m.Status == models.MediaReady {
		response.OK(c, m)
		return
	}
	if h.queue == nil {
		response.ServiceUnavailable(c, "media verification unavailable")
		return
	}
	err = h.queue.EnqueueMediaVerify(c.Request.Context(), queue.MediaVerifyPayload{
		MediaID:       m.ID,
		ObservationID: o.ID,
		Bucket:        m.StorageBucket,
		Key:           m.StoragePath,
	})
	if err != nil {
		h.logger.Error("enqueue media verify failed", zap.Error(err), zap.String("media_id", m.ID.String()))
		response.ServiceUnavailable(c, "media verification unavailable")
		return
	}
	response.Accepted(c, m)
}

// Upload handles POST /observations/:id/media/upload (multipart, form field "file").
func (h *Handler) Upload(c *gin.Context) {
	if !h.requireStorage(c) {
		return
	}
	o, ok := h.loadOwned(c)
	if !ok {
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, storage.MaxMediaFileSize+1<<20)
	file, err := c.FormFile("file")
	if err != nil {
		response.BadRequest(c, "missing file (form field: file) or file exceeds 10MB limit")
		return
	}
	if file.Size > storage.MaxMediaFileSize {
		response.BadRequest(c, "file size exceeds 10MB limit")
		return
	}
	declared := file.Header.Get("Content-Type")
	if !storage.ValidateMediaType(declared, file.Filename) {
		response.BadRequest(c, "invalid file type: only jpeg, png, webp and heic images allowed")
		return
	}
	contentType := storage.ContentTypeFor(declared, file.Filename)
	m := &models.ObservationMedia{
		ID:            uuid.New(),
		ObservationID: o.ID,
		StorageBucket: h.storage.MediaBucket(),
		MimeType:      contentType,
		Bytes:         file.Size,
		Status:        models.MediaReady,
	}
	m.StoragePath = storage.MediaKey(o.ID.String(), m.ID.String(), contentType)

	rc, err := file.Open()
	if err != nil {
		h.logger.Error("open uploaded file failed", zap.Error(err))
		response.Internal(c, "failed to read file")
		return
	}
	defer rc.Close()

	if err := h.storage.Upload(c.Request.Context(), m.StorageBucket, m.StoragePath, contentType, rc, file.Size); err != nil {
		h.logger.Error("S3 upload failed", zap.Error(err), zap.String("observation_id", o.ID.String()), zap.String("key", m.StoragePath))
		response.Internal(c, "failed to upload file to storage")
		return
	}
	if err := h.store.CreateMedia(c.Request.Context(), m); err != nil {
		h.logger.Error("create media failed", zap.Error(err), zap.String("observation_id", o.ID.String()))
		response.Internal(c, "failed to record media")
		return
	}
	response.Created(c, m)
}
