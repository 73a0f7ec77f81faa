// Package handlers provides HTTP handler implementations for the public API.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-complaint-backend/internal/domain"
	"github.com/tbourn/go-complaint-backend/internal/http/middleware"
	"github.com/tbourn/go-complaint-backend/internal/services"
)

// DefaultIdempotencyTTL is used when New is given a non-positive TTL.
const DefaultIdempotencyTTL = 24 * time.Hour

// retryAfterSeconds is advertised on 503 responses caused by storage faults.
const retryAfterSeconds = "1"

// ComplaintService is the subset of *services.ComplaintService used by the
// handlers. Errors follow the services sentinels (ErrComplaintNotFound,
// ErrConcurrencyConflict, *StorageError).
type ComplaintService interface {
	List(ctx context.Context, f domain.ListFilter) ([]domain.Complaint, error)
	Get(ctx context.Context, id string) (*domain.Complaint, error)
	Create(ctx context.Context, d domain.ComplaintDraft) (*domain.Complaint, error)
	UpdateStatus(ctx context.Context, id, status string) (*domain.Complaint, error)
	AddComment(ctx context.Context, complaintID string, d domain.CommentDraft) (*domain.Comment, error)
	Delete(ctx context.Context, id string) error
}

// IdempotencyStore persists the outcome of unsafe requests keyed by
// (scope, key). Lookup returns (nil, nil) when nothing replayable exists;
// an error means the store could not answer.
type IdempotencyStore interface {
	Lookup(ctx context.Context, scope, key string, now time.Time) (*domain.Idempotency, error)
	Remember(ctx context.Context, scope, key, resourceID string, status int, ttl time.Duration) error
}

// Handlers bundles the complaint service and idempotency store behind the
// HTTP endpoints.
type Handlers struct {
	svc      ComplaintService
	idem     IdempotencyStore
	idemTTL  time.Duration
	basePath string
	now      func() time.Time
}

// New constructs a Handlers instance. idem may be nil to disable replay.
// basePath is the mount point of the API and is used to build Location
// headers.
func New(svc ComplaintService, idem IdempotencyStore, basePath string, idemTTL time.Duration) *Handlers {
	if idemTTL <= 0 {
		idemTTL = DefaultIdempotencyTTL
	}
	basePath = strings.TrimRight(strings.TrimSpace(basePath), "/")
	return &Handlers{
		svc:      svc,
		idem:     idem,
		idemTTL:  idemTTL,
		basePath: basePath,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

//
// DTOs
//

// CreateComplaintRequest is the JSON payload for filing a complaint.
type CreateComplaintRequest struct {
	Title       string `json:"title"       binding:"required,max=512" example:"Leaky faucet"`
	Description string `json:"description" binding:"required"         example:"Kitchen sink drips all night"`
	Category    string `json:"category"    binding:"required,max=128" example:"Maintenance"`
	Priority    string `json:"priority"    binding:"required,max=64"  example:"Low"`
	CreatedBy   string `json:"createdBy"   binding:"required,max=256" example:"alice"`
}

// UpdateStatusRequest is the JSON payload for changing a complaint status.
// Any non-empty value is accepted.
type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required,max=64" example:"Resolved"`
}

// AddCommentRequest is the JSON payload for appending a comment.
type AddCommentRequest struct {
	Text   string `json:"text"   binding:"required" example:"Plumber scheduled"`
	Author string `json:"author" binding:"required,max=256" example:"bob"`
}

//
// Handlers
//

// ListComplaints godoc
// @ID          listComplaints
// @Summary     List complaints
// @Description Returns every complaint matching the optional filters, newest first, with comments embedded. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Complaints
// @Produce     json
//
// @Param       category       query   string  false  "Exact category (case-insensitive)"  example(Maintenance)
// @Param       status         query   string  false  "Exact status (case-insensitive)"    example(Open)
// @Param       search         query   string  false  "Substring of title or description (case-insensitive)"
// @Param       If-None-Match  header  string  false  "ETag from a previous response"
//
// @Success     200  {array}   domain.Complaint
// @Success     304  "Not Modified"
// @Failure     503  {object}  handlers.ErrorResponse  "Storage unavailable"
// @Router      /complaints [get]
func (h *Handlers) ListComplaints(c *gin.Context) {
	f := domain.ListFilter{
		Category: strings.TrimSpace(c.Query("category")),
		Status:   strings.TrimSpace(c.Query("status")),
		Search:   strings.TrimSpace(c.Query("search")),
	}

	items, err := h.svc.List(c.Request.Context(), f)
	if err != nil {
		h.storeFail(c, err)
		return
	}

	etag := listETag(items)
	c.Header("ETag", etag)
	if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
		c.Status(http.StatusNotModified)
		return
	}
	c.JSON(http.StatusOK, items)
}

// GetComplaint godoc
// @ID          getComplaint
// @Summary     Get a complaint
// @Description Returns one complaint with its comment thread.
// @Tags        Complaints
// @Produce     json
//
// @Param       id  path  string  true  "Complaint ID"  format(uuid)
//
// @Success     200  {object}  domain.Complaint
// @Success     304  "Not Modified"
// @Failure     404  {object}  handlers.ErrorResponse  "Complaint not found"
// @Failure     503  {object}  handlers.ErrorResponse  "Storage unavailable"
// @Router      /complaints/{id} [get]
func (h *Handlers) GetComplaint(c *gin.Context) {
	cp, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.storeFail(c, err)
		return
	}

	etag := complaintETag(cp)
	c.Header("ETag", etag)
	if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
		c.Status(http.StatusNotModified)
		return
	}
	c.JSON(http.StatusOK, cp)
}

// CreateComplaint godoc
// @ID          createComplaint
// @Summary     File a complaint
// @Description Creates a complaint with status "Open" and an empty comment thread. A repeated Idempotency-Key replays the first result.
// @Tags        Complaints
// @Accept      json
// @Produce     json
//
// @Param       Idempotency-Key  header  string                           false  "Client retry key"
// @Param       body             body    handlers.CreateComplaintRequest  true   "Complaint payload"
//
// @Success     201  {object}  domain.Complaint
// @Header      201  {string}  Location  "URL of the new complaint"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     503  {object}  handlers.ErrorResponse  "Storage unavailable"
// @Router      /complaints [post]
func (h *Handlers) CreateComplaint(c *gin.Context) {
	ctx := c.Request.Context()

	var req CreateComplaintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badBody(c, err)
		return
	}
	if field := firstBlank(
		"title", req.Title,
		"description", req.Description,
		"category", req.Category,
		"priority", req.Priority,
		"createdBy", req.CreatedBy,
	); field != "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, field+" is required")
		return
	}

	scope := middleware.IdempotencyScope(c)
	idemKey, _ := middlewareGetIdempotencyKey(c)
	if rec := h.replayable(c, scope, idemKey); rec != nil {
		if prev, err := h.svc.Get(ctx, rec.ResourceID); err == nil {
			c.Header("Idempotency-Replayed", "true")
			c.Header("Location", h.complaintURL(prev.ID))
			c.JSON(http.StatusCreated, prev)
			return
		}
	}

	cp, err := h.svc.Create(ctx, domain.ComplaintDraft{
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		Priority:    req.Priority,
		CreatedBy:   req.CreatedBy,
	})
	if err != nil {
		h.storeFail(c, err)
		return
	}

	h.remember(c, scope, idemKey, cp.ID, http.StatusCreated)

	c.Header("Location", h.complaintURL(cp.ID))
	c.JSON(http.StatusCreated, cp)
}

// UpdateStatus godoc
// @ID          updateComplaintStatus
// @Summary     Change a complaint status
// @Description Overwrites the status with any non-empty value and refreshes updatedAt.
// @Tags        Complaints
// @Accept      json
// @Produce     json
//
// @Param       id    path  string                        true  "Complaint ID"  format(uuid)
// @Param       body  body  handlers.UpdateStatusRequest  true  "New status"
//
// @Success     200  {object}  domain.Complaint
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Complaint not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Concurrent modification"
// @Failure     503  {object}  handlers.ErrorResponse  "Storage unavailable"
// @Router      /complaints/{id}/status [put]
func (h *Handlers) UpdateStatus(c *gin.Context) {
	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badBody(c, err)
		return
	}
	if strings.TrimSpace(req.Status) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "status is required")
		return
	}

	cp, err := h.svc.UpdateStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		h.storeFail(c, err)
		return
	}
	c.JSON(http.StatusOK, cp)
}

// AddComment godoc
// @ID          addComplaintComment
// @Summary     Comment on a complaint
// @Description Appends a comment to the thread and refreshes the complaint's updatedAt. A repeated Idempotency-Key replays the first result.
// @Tags        Comments
// @Accept      json
// @Produce     json
//
// @Param       id               path    string                      true   "Complaint ID"  format(uuid)
// @Param       Idempotency-Key  header  string                      false  "Client retry key"
// @Param       body             body    handlers.AddCommentRequest  true   "Comment payload"
//
// @Success     200  {object}  domain.Comment
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Complaint not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Concurrent modification"
// @Failure     503  {object}  handlers.ErrorResponse  "Storage unavailable"
// @Router      /complaints/{id}/comments [post]
func (h *Handlers) AddComment(c *gin.Context) {
	ctx := c.Request.Context()
	complaintID := c.Param("id")

	var req AddCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badBody(c, err)
		return
	}
	if field := firstBlank("text", req.Text, "author", req.Author); field != "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, field+" is required")
		return
	}

	scope := middleware.IdempotencyScope(c)
	idemKey, _ := middlewareGetIdempotencyKey(c)
	if rec := h.replayable(c, scope, idemKey); rec != nil {
		if prev, err := h.svc.Get(ctx, complaintID); err == nil {
			for i := range prev.Comments {
				if prev.Comments[i].ID == rec.ResourceID {
					c.Header("Idempotency-Replayed", "true")
					c.JSON(http.StatusOK, prev.Comments[i])
					return
				}
			}
		}
	}

	cm, err := h.svc.AddComment(ctx, complaintID, domain.CommentDraft{Text: req.Text, Author: req.Author})
	if err != nil {
		h.storeFail(c, err)
		return
	}

	h.remember(c, scope, idemKey, cm.ID, http.StatusOK)
	c.JSON(http.StatusOK, cm)
}

// DeleteComplaint godoc
// @ID          deleteComplaint
// @Summary     Delete a complaint
// @Description Removes a complaint together with all of its comments.
// @Tags        Complaints
//
// @Param       id  path  string  true  "Complaint ID"  format(uuid)
//
// @Success     204  "No Content"
// @Failure     404  {object}  handlers.ErrorResponse  "Complaint not found"
// @Failure     503  {object}  handlers.ErrorResponse  "Storage unavailable"
// @Router      /complaints/{id} [delete]
func (h *Handlers) DeleteComplaint(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.storeFail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

//
// Helpers
//

// storeFail maps service errors onto the error envelope.
func (h *Handlers) storeFail(c *gin.Context, err error) {
	var se *services.StorageError
	switch {
	case errors.Is(err, services.ErrComplaintNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "Complaint not found")
	case errors.Is(err, services.ErrConcurrencyConflict):
		fail(c, http.StatusConflict, ErrCodeConflict, "complaint was modified concurrently, retry the request")
	case errors.As(err, &se):
		c.Header("Retry-After", retryAfterSeconds)
		failWith(c, http.StatusServiceUnavailable, ErrCodeUnavailable, "complaint store unavailable", err)
	default:
		failWith(c, http.StatusInternalServerError, ErrCodeInternal, "internal server error", err)
	}
}

// replayable returns the stored outcome for (scope, key), or nil.
func (h *Handlers) replayable(c *gin.Context, scope, key string) *domain.Idempotency {
	if h.idem == nil || key == "" {
		return nil
	}
	rec, err := h.idem.Lookup(c.Request.Context(), scope, key, h.now())
	if err != nil {
		lg := middleware.LoggerFrom(c)
		lg.Warn().Err(err).Str("scope", scope).Msg("idempotency lookup failed")
		return nil
	}
	return rec
}

// remember stores the outcome of a successful unsafe request. Best effort.
func (h *Handlers) remember(c *gin.Context, scope, key, resourceID string, status int) {
	if h.idem == nil || key == "" {
		return
	}
	if err := h.idem.Remember(c.Request.Context(), scope, key, resourceID, status, h.idemTTL); err != nil {
		lg := middleware.LoggerFrom(c)
		lg.Warn().Err(err).Str("scope", scope).Msg("idempotency record not stored")
	}
}

func (h *Handlers) complaintURL(id string) string {
	return h.basePath + "/complaints/" + id
}

// firstBlank takes (name, value) pairs and returns the first name whose
// value is blank after trimming.
func firstBlank(pairs ...string) string {
	for i := 0; i+1 < len(pairs); i += 2 {
		if strings.TrimSpace(pairs[i+1]) == "" {
			return pairs[i]
		}
	}
	return ""
}

// listETag derives a weak validator from the result size and the latest
// modification in it.
func listETag(items []domain.Complaint) string {
	var latest int64
	for i := range items {
		if ts := items[i].UpdatedAt.UnixMicro(); ts > latest {
			latest = ts
		}
	}
	return fmt.Sprintf(`W/"complaints:%d:%d"`, len(items), latest)
}

func complaintETag(cp *domain.Complaint) string {
	return fmt.Sprintf(`W/"complaint:%s:%d:%d"`, cp.ID, cp.UpdatedAt.UnixMicro(), len(cp.Comments))
}

// middlewareGetIdempotencyKey returns the key validated by
// middleware.IdempotencyValidator, falling back to the raw header when the
// validator is not mounted.
func middlewareGetIdempotencyKey(c *gin.Context) (string, bool) {
	if k, found := middleware.GetIdempotencyKey(c); found {
		return k, true
	}
	if v := strings.TrimSpace(c.GetHeader(middleware.HeaderIdempotencyKey)); v != "" {
		return v, true
	}
	return "", false
}
