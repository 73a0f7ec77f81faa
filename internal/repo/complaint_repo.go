// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the relational complaint store.
//
// A complaint is one row in "complaints"; each comment is one row in
// "comments" with a complaint_id FK declared ON DELETE CASCADE. Thread order
// is kept in comments.position, assigned at append time.
//
// Error semantics:
//   - A missing complaint yields ErrNotFound.
//   - Any other DB error is propagated unchanged.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-complaint-backend/internal/domain"
	"github.com/tbourn/go-complaint-backend/internal/search"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// ComplaintRepo stores complaints and their comments in two related tables.
// It holds no per-request state and is safe for concurrent use.
type ComplaintRepo struct {
	DB *gorm.DB

	// Now is the clock used for timestamps; nil means time.Now.
	Now func() time.Time
}

// NewComplaintRepo returns a repo over db using the wall clock.
func NewComplaintRepo(db *gorm.DB) *ComplaintRepo {
	return &ComplaintRepo{DB: db}
}

// now returns UTC truncated to microseconds, the finest precision both
// supported drivers round-trip.
func (r *ComplaintRepo) now() time.Time {
	clock := r.Now
	if clock == nil {
		clock = time.Now
	}
	return clock().UTC().Truncate(time.Microsecond)
}

// byPosition orders a thread for display. Two appends racing under READ
// COMMITTED can count the same position; created_at then id keep the
// order stable.
func byPosition(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC").Order("created_at ASC").Order("id ASC")
}

// Create inserts a new open complaint with no comments.
func (r *ComplaintRepo) Create(ctx context.Context, d domain.ComplaintDraft) (*domain.Complaint, error) {
	now := r.now()
	c := &domain.Complaint{
		ID:          uuid.NewString(),
		Title:       d.Title,
		Description: d.Description,
		Category:    d.Category,
		Priority:    d.Priority,
		Status:      domain.DefaultStatus,
		CreatedAt:   now,
		UpdatedAt:   now,
		CreatedBy:   d.CreatedBy,
		Comments:    []domain.Comment{},
	}
	if err := r.DB.WithContext(ctx).Omit(clause.Associations).Create(c).Error; err != nil {
		return nil, err
	}
	return c, nil
}

// List loads every complaint with its thread and filters in memory, newest
// first.
func (r *ComplaintRepo) List(ctx context.Context, f domain.ListFilter) ([]domain.Complaint, error) {
	var rows []domain.Complaint
	if err := r.DB.WithContext(ctx).Preload("Comments", byPosition).Find(&rows).Error; err != nil {
		return nil, err
	}
	for i := range rows {
		ensureThread(&rows[i])
	}
	return search.Filter(rows, f), nil
}

// Get returns the complaint with its ordered thread, or ErrNotFound.
func (r *ComplaintRepo) Get(ctx context.Context, id string) (*domain.Complaint, error) {
	var c domain.Complaint
	err := r.DB.WithContext(ctx).Preload("Comments", byPosition).First(&c, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	ensureThread(&c)
	return &c, nil
}

// UpdateStatus overwrites the status and refreshes updated_at.
func (r *ComplaintRepo) UpdateStatus(ctx context.Context, id, status string) (*domain.Complaint, error) {
	var out domain.Complaint
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Preload("Comments", byPosition).First(&out, "id = ?", id).Error; err != nil {
			return err
		}
		out.Status = status
		out.Touch(r.now())
		return tx.Model(&domain.Complaint{}).
			Where("id = ?", id).
			Updates(map[string]any{"status": out.Status, "updated_at": out.UpdatedAt}).Error
	})
	if err != nil {
		return nil, err
	}
	ensureThread(&out)
	return &out, nil
}

// AddComment appends a comment at the end of the thread and refreshes the
// parent's updated_at in the same transaction.
func (r *ComplaintRepo) AddComment(ctx context.Context, complaintID string, d domain.CommentDraft) (*domain.Comment, error) {
	var cm *domain.Comment
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var parent domain.Complaint
		if err := tx.Select("id", "updated_at").First(&parent, "id = ?", complaintID).Error; err != nil {
			return err
		}

		var n int64
		if err := tx.Model(&domain.Comment{}).Where("complaint_id = ?", complaintID).Count(&n).Error; err != nil {
			return err
		}

		now := r.now()
		cm = &domain.Comment{
			ID:          uuid.NewString(),
			ComplaintID: complaintID,
			Position:    int(n),
			Text:        d.Text,
			Author:      d.Author,
			CreatedAt:   now,
		}
		if err := tx.Create(cm).Error; err != nil {
			return err
		}

		parent.Touch(now)
		return tx.Model(&domain.Complaint{}).
			Where("id = ?", complaintID).
			Update("updated_at", parent.UpdatedAt).Error
	})
	if err != nil {
		return nil, err
	}
	return cm, nil
}

// Delete removes the complaint; the FK cascade removes its comments. It
// reports whether a row existed.
func (r *ComplaintRepo) Delete(ctx context.Context, id string) (bool, error) {
	res := r.DB.WithContext(ctx).Delete(&domain.Complaint{}, "id = ?", id)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func ensureThread(c *domain.Complaint) {
	if c.Comments == nil {
		c.Comments = []domain.Comment{}
	}
}
