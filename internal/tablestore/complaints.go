package tablestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tbourn/go-complaint-backend/internal/domain"
	"github.com/tbourn/go-complaint-backend/internal/search"
)

// DefaultPartition is the partition every complaint entity lives in.
const DefaultPartition = "Complaint"

// Entity property names.
const (
	propTitle       = "Title"
	propDescription = "Description"
	propCategory    = "Category"
	propPriority    = "Priority"
	propStatus      = "Status"
	propCreatedAt   = "CreatedAt"
	propUpdatedAt   = "UpdatedAt"
	propCreatedBy   = "CreatedBy"
	propComments    = "Comments"
)

// ComplaintTable stores each complaint as one entity with its comments
// serialized into a single JSON property.
//
// Status changes and comment appends are read-modify-write. With StrictETag
// unset the write is unconditional, so of two concurrent appends one may be
// lost. With StrictETag set the write carries the ETag that was read and a
// concurrent change makes it fail with ErrPreconditionFailed.
type ComplaintTable struct {
	Client     Client
	Partition  string
	StrictETag bool

	// Now is the clock used for timestamps; nil means time.Now.
	Now func() time.Time
}

// NewComplaintTable returns a store over client in the default partition.
func NewComplaintTable(client Client) *ComplaintTable {
	return &ComplaintTable{Client: client, Partition: DefaultPartition}
}

func (t *ComplaintTable) partition() string {
	if t.Partition == "" {
		return DefaultPartition
	}
	return t.Partition
}

// now returns UTC truncated to microseconds so both backings report the same
// precision.
func (t *ComplaintTable) now() time.Time {
	clock := t.Now
	if clock == nil {
		clock = time.Now
	}
	return clock().UTC().Truncate(time.Microsecond)
}

func (t *ComplaintTable) ifMatch(e Entity) string {
	if t.StrictETag {
		return e.ETag
	}
	return MatchAny
}

// Create adds a new open complaint with an empty thread.
func (t *ComplaintTable) Create(ctx context.Context, d domain.ComplaintDraft) (*domain.Complaint, error) {
	now := t.now()
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
	e, err := encodeComplaint(t.partition(), c)
	if err != nil {
		return nil, err
	}
	if _, err := t.Client.Add(ctx, e); err != nil {
		return nil, err
	}
	return c, nil
}

// List scans the whole partition and filters in memory, newest first.
func (t *ComplaintTable) List(ctx context.Context, f domain.ListFilter) ([]domain.Complaint, error) {
	ents, err := t.Client.Query(ctx, t.partition())
	if err != nil {
		return nil, err
	}
	all := make([]domain.Complaint, 0, len(ents))
	for _, e := range ents {
		c, err := decodeComplaint(e)
		if err != nil {
			return nil, err
		}
		all = append(all, *c)
	}
	return search.Filter(all, f), nil
}

// Get returns the complaint or ErrNotFound.
func (t *ComplaintTable) Get(ctx context.Context, id string) (*domain.Complaint, error) {
	e, err := t.Client.Get(ctx, t.partition(), id)
	if err != nil {
		return nil, err
	}
	return decodeComplaint(e)
}

// UpdateStatus overwrites the status and refreshes UpdatedAt.
func (t *ComplaintTable) UpdateStatus(ctx context.Context, id, status string) (*domain.Complaint, error) {
	var out *domain.Complaint
	err := t.modify(ctx, id, func(c *domain.Complaint, now time.Time) {
		c.Status = status
		c.Touch(now)
		out = c
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AddComment appends a comment to the embedded thread and rewrites the whole
// entity.
func (t *ComplaintTable) AddComment(ctx context.Context, complaintID string, d domain.CommentDraft) (*domain.Comment, error) {
	var cm domain.Comment
	err := t.modify(ctx, complaintID, func(c *domain.Complaint, now time.Time) {
		cm = domain.Comment{
			ID:        uuid.NewString(),
			Text:      d.Text,
			Author:    d.Author,
			CreatedAt: now,
		}
		c.Comments = append(c.Comments, cm)
		c.Touch(now)
	})
	if err != nil {
		return nil, err
	}
	return &cm, nil
}

// Delete removes the entity and, with it, every embedded comment.
func (t *ComplaintTable) Delete(ctx context.Context, id string) (bool, error) {
	err := t.Client.Delete(ctx, t.partition(), id, MatchAny)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (t *ComplaintTable) modify(ctx context.Context, id string, mutate func(*domain.Complaint, time.Time)) error {
	e, err := t.Client.Get(ctx, t.partition(), id)
	if err != nil {
		return err
	}
	c, err := decodeComplaint(e)
	if err != nil {
		return err
	}
	mutate(c, t.now())
	next, err := encodeComplaint(t.partition(), c)
	if err != nil {
		return err
	}
	_, err = t.Client.Update(ctx, next, t.ifMatch(e))
	return err
}

func encodeComplaint(partition string, c *domain.Complaint) (Entity, error) {
	comments := c.Comments
	if comments == nil {
		comments = []domain.Comment{}
	}
	blob, err := json.Marshal(comments)
	if err != nil {
		return Entity{}, fmt.Errorf("encode comments: %w", err)
	}
	return Entity{
		PartitionKey: partition,
		RowKey:       c.ID,
		Properties: map[string]string{
			propTitle:       c.Title,
			propDescription: c.Description,
			propCategory:    c.Category,
			propPriority:    c.Priority,
			propStatus:      c.Status,
			propCreatedAt:   c.CreatedAt.Format(time.RFC3339Nano),
			propUpdatedAt:   c.UpdatedAt.Format(time.RFC3339Nano),
			propCreatedBy:   c.CreatedBy,
			propComments:    string(blob),
		},
	}, nil
}

// decodeComplaint accepts comment blobs with either camelCase or PascalCase
// keys; encoding/json matches field names case-insensitively.
func decodeComplaint(e Entity) (*domain.Complaint, error) {
	p := e.Properties
	c := &domain.Complaint{
		ID:          e.RowKey,
		Title:       p[propTitle],
		Description: p[propDescription],
		Category:    p[propCategory],
		Priority:    p[propPriority],
		Status:      p[propStatus],
		CreatedBy:   p[propCreatedBy],
		Comments:    []domain.Comment{},
	}
	var err error
	if c.CreatedAt, err = parseTime(p[propCreatedAt]); err != nil {
		return nil, fmt.Errorf("decode %s: createdAt: %w", e.RowKey, err)
	}
	if c.UpdatedAt, err = parseTime(p[propUpdatedAt]); err != nil {
		return nil, fmt.Errorf("decode %s: updatedAt: %w", e.RowKey, err)
	}
	if blob := p[propComments]; blob != "" {
		if err := json.Unmarshal([]byte(blob), &c.Comments); err != nil {
			return nil, fmt.Errorf("decode %s: comments: %w", e.RowKey, err)
		}
		if c.Comments == nil {
			c.Comments = []domain.Comment{}
		}
	}
	return c, nil
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
