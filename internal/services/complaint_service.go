// Package services – ComplaintService
//
// ComplaintService is the application-level facade over a ComplaintStore. It
// normalizes caller input, translates backing-specific errors into the
// service error set, and instruments every call.
//
// Observability: each public method opens an OpenTelemetry span tagged with
// the complaint id and store backend, and records
// complaint_store_operation_duration_seconds. Storage faults are logged with
// the request-scoped zerolog logger carried in the context.
package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-complaint-backend/internal/domain"
	"github.com/tbourn/go-complaint-backend/internal/observability"
	"github.com/tbourn/go-complaint-backend/internal/repo"
	"github.com/tbourn/go-complaint-backend/internal/tablestore"
)

// ComplaintStore is the persistence contract both backings implement
// (repo.ComplaintRepo and tablestore.ComplaintTable). Not-found is reported
// with the backing's ErrNotFound sentinel.
type ComplaintStore interface {
	Create(ctx context.Context, d domain.ComplaintDraft) (*domain.Complaint, error)
	List(ctx context.Context, f domain.ListFilter) ([]domain.Complaint, error)
	Get(ctx context.Context, id string) (*domain.Complaint, error)
	UpdateStatus(ctx context.Context, id, status string) (*domain.Complaint, error)
	AddComment(ctx context.Context, complaintID string, d domain.CommentDraft) (*domain.Comment, error)
	Delete(ctx context.Context, id string) (bool, error)
}

var (
	_ ComplaintStore = (*repo.ComplaintRepo)(nil)
	_ ComplaintStore = (*tablestore.ComplaintTable)(nil)
)

// Store operation names used for spans, metrics and StorageError.Op.
const (
	opCreate       = "create"
	opList         = "list"
	opGet          = "get"
	opUpdateStatus = "update_status"
	opAddComment   = "add_comment"
	opDelete       = "delete"
)

// ComplaintService coordinates complaint reads and writes over one store.
type ComplaintService struct {
	Store   ComplaintStore
	Backend string // label for metrics and spans
}

// NewComplaintService returns a service over store. backend names the
// backing in telemetry.
func NewComplaintService(store ComplaintStore, backend string) *ComplaintService {
	return &ComplaintService{Store: store, Backend: backend}
}

// List returns complaints matching f, newest first.
func (s *ComplaintService) List(ctx context.Context, f domain.ListFilter) ([]domain.Complaint, error) {
	ctx, span := s.start(ctx, opList,
		attribute.String("filter.category", f.Category),
		attribute.String("filter.status", f.Status),
		attribute.Bool("filter.search", f.Search != ""),
	)
	defer span.End()

	began := time.Now()
	out, err := s.Store.List(ctx, f)
	if err = s.finish(ctx, span, opList, began, err); err != nil {
		return nil, err
	}
	if out == nil {
		out = []domain.Complaint{}
	}
	span.SetAttributes(attribute.Int("result.count", len(out)))
	return out, nil
}

// Get returns one complaint with its comments.
func (s *ComplaintService) Get(ctx context.Context, id string) (*domain.Complaint, error) {
	ctx, span := s.start(ctx, opGet, attribute.String("complaint.id", id))
	defer span.End()

	began := time.Now()
	c, err := s.Store.Get(ctx, id)
	if err = s.finish(ctx, span, opGet, began, err); err != nil {
		return nil, err
	}
	return c, nil
}

// Create trims the draft and stores a new open complaint.
func (s *ComplaintService) Create(ctx context.Context, d domain.ComplaintDraft) (*domain.Complaint, error) {
	ctx, span := s.start(ctx, opCreate, attribute.String("complaint.category", strings.TrimSpace(d.Category)))
	defer span.End()

	d = domain.ComplaintDraft{
		Title:       strings.TrimSpace(d.Title),
		Description: strings.TrimSpace(d.Description),
		Category:    strings.TrimSpace(d.Category),
		Priority:    strings.TrimSpace(d.Priority),
		CreatedBy:   strings.TrimSpace(d.CreatedBy),
	}

	began := time.Now()
	c, err := s.Store.Create(ctx, d)
	if err = s.finish(ctx, span, opCreate, began, err); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("complaint.id", c.ID))
	return c, nil
}

// UpdateStatus sets a new status and returns the updated complaint.
func (s *ComplaintService) UpdateStatus(ctx context.Context, id, status string) (*domain.Complaint, error) {
	status = strings.TrimSpace(status)
	ctx, span := s.start(ctx, opUpdateStatus,
		attribute.String("complaint.id", id),
		attribute.String("complaint.status", status),
	)
	defer span.End()

	began := time.Now()
	c, err := s.Store.UpdateStatus(ctx, id, status)
	if err = s.finish(ctx, span, opUpdateStatus, began, err); err != nil {
		return nil, err
	}
	return c, nil
}

// AddComment appends a comment and returns it with its assigned id.
func (s *ComplaintService) AddComment(ctx context.Context, complaintID string, d domain.CommentDraft) (*domain.Comment, error) {
	ctx, span := s.start(ctx, opAddComment, attribute.String("complaint.id", complaintID))
	defer span.End()

	d = domain.CommentDraft{
		Text:   strings.TrimSpace(d.Text),
		Author: strings.TrimSpace(d.Author),
	}

	began := time.Now()
	cm, err := s.Store.AddComment(ctx, complaintID, d)
	if err = s.finish(ctx, span, opAddComment, began, err); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("comment.id", cm.ID))
	return cm, nil
}

// Delete removes a complaint and its comments. A missing complaint yields
// ErrComplaintNotFound.
func (s *ComplaintService) Delete(ctx context.Context, id string) error {
	ctx, span := s.start(ctx, opDelete, attribute.String("complaint.id", id))
	defer span.End()

	began := time.Now()
	existed, err := s.Store.Delete(ctx, id)
	if err == nil && !existed {
		err = ErrComplaintNotFound
	}
	return s.finish(ctx, span, opDelete, began, err)
}

func (s *ComplaintService) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, observability.AttrStoreBackend.String(s.Backend))
	return observability.Tracer("services/ComplaintService").Start(ctx, op, trace.WithAttributes(attrs...))
}

// finish records the outcome of a store call and maps err into the service
// error set.
func (s *ComplaintService) finish(ctx context.Context, span trace.Span, op string, began time.Time, err error) error {
	var (
		outcome = observability.OutcomeOK
		out     error
	)
	switch {
	case err == nil:
	case errors.Is(err, ErrComplaintNotFound),
		errors.Is(err, repo.ErrNotFound),
		errors.Is(err, tablestore.ErrNotFound):
		outcome, out = observability.OutcomeNotFound, ErrComplaintNotFound
	case errors.Is(err, tablestore.ErrPreconditionFailed):
		outcome, out = observability.OutcomeConflict, ErrConcurrencyConflict
	default:
		outcome = observability.OutcomeError
		out = &StorageError{Op: op, Backend: s.Backend, Err: err}
		span.RecordError(err)
		span.SetStatus(codes.Error, "storage fault")
		zerolog.Ctx(ctx).Error().Err(err).
			Str("op", op).
			Str("backend", s.Backend).
			Msg("complaint store failure")
	}
	observability.ObserveStoreOp(s.Backend, op, outcome, began)
	return out
}
