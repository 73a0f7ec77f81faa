// Package domain defines the complaint aggregate and its comment thread.
// The types carry GORM tags for the relational backing and JSON tags for the
// wire format; the flat table backing maps them onto entity properties in
// package tablestore.
package domain

import (
	"strings"
	"time"
)

// DefaultStatus is the status every complaint starts with.
const DefaultStatus = "Open"

// Complaint is a reported issue with its ordered comment thread.
//
// Fields:
//   - ID: UUID primary key (char(36)), assigned by the store at creation.
//   - Title/Description/Category/Priority: free text, immutable after creation.
//   - Status: free text, "Open" at creation; any value is accepted on update.
//   - CreatedAt: set once at creation.
//   - UpdatedAt: set at creation, refreshed on status change and comment append.
//   - CreatedBy: reporter identity, immutable.
//   - Comments: append-only thread in insertion order. Comment rows are
//     cascade-deleted with their complaint.
//
// Timestamps are owned by the store, so GORM's auto time tracking is disabled.
type Complaint struct {
	ID          string    `json:"id"          gorm:"type:char(36);primaryKey"`
	Title       string    `json:"title"       gorm:"type:text;not null"`
	Description string    `json:"description" gorm:"type:text;not null"`
	Category    string    `json:"category"    gorm:"type:text;not null"`
	Priority    string    `json:"priority"    gorm:"type:text;not null"`
	Status      string    `json:"status"      gorm:"type:text;not null;default:'Open'"`
	CreatedAt   time.Time `json:"createdAt"   gorm:"not null;autoCreateTime:false"`
	UpdatedAt   time.Time `json:"updatedAt"   gorm:"not null;autoUpdateTime:false"`
	CreatedBy   string    `json:"createdBy"   gorm:"type:text;not null"`

	Comments []Comment `json:"comments" gorm:"foreignKey:ComplaintID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Complaint.
func (Complaint) TableName() string { return "complaints" }

// Touch refreshes UpdatedAt to now, never moving it backwards.
func (c *Complaint) Touch(now time.Time) {
	if now.After(c.UpdatedAt) {
		c.UpdatedAt = now
	}
}

// Comment is a timestamped note appended to a complaint.
//
// ComplaintID and Position are relational bookkeeping (owner FK and thread
// order) and never leave the store.
type Comment struct {
	ID          string    `json:"id"        gorm:"type:char(36);primaryKey"`
	ComplaintID string    `json:"-"         gorm:"type:char(36);not null;index:idx_complaint_comments,priority:1"`
	Position    int       `json:"-"         gorm:"not null;default:0;index:idx_complaint_comments,priority:2"`
	Text        string    `json:"text"      gorm:"type:text;not null"`
	Author      string    `json:"author"    gorm:"type:text;not null"`
	CreatedAt   time.Time `json:"createdAt" gorm:"not null;autoCreateTime:false"`
}

// TableName returns the database table name for Comment.
func (Comment) TableName() string { return "comments" }

// ComplaintDraft carries the caller-supplied fields of a new complaint.
type ComplaintDraft struct {
	Title       string
	Description string
	Category    string
	Priority    string
	CreatedBy   string
}

// CommentDraft carries the caller-supplied fields of a new comment.
type CommentDraft struct {
	Text   string
	Author string
}

// ListFilter narrows a complaint listing. Empty fields do not constrain.
//
//   - Category: exact match, case-insensitive.
//   - Status:   exact match, case-insensitive.
//   - Search:   substring of Title or Description, case-insensitive.
type ListFilter struct {
	Category string
	Status   string
	Search   string
}

// IsZero reports whether the filter imposes no constraint at all.
func (f ListFilter) IsZero() bool {
	return strings.TrimSpace(f.Category) == "" &&
		strings.TrimSpace(f.Status) == "" &&
		strings.TrimSpace(f.Search) == ""
}
