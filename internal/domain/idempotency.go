package domain

import "time"

// Idempotency records the outcome of a completed unsafe request, keyed by
// (scope, key). Scope names the operation and its target (for example
// "comments:<complaint-id>"), Key is the client-supplied Idempotency-Key.
// A replay within the TTL window returns ResourceID instead of repeating the
// write.
type Idempotency struct {
	ID         string    `json:"id"          gorm:"type:TEXT NOT NULL;primaryKey"`
	Scope      string    `json:"scope"       gorm:"type:TEXT NOT NULL;uniqueIndex:ux_idem_scope_key,priority:1"`
	Key        string    `json:"key"         gorm:"type:TEXT NOT NULL;uniqueIndex:ux_idem_scope_key,priority:2"`
	ResourceID string    `json:"resource_id" gorm:"type:TEXT NOT NULL"`
	Status     int       `json:"status"      gorm:"not null"`
	CreatedAt  time.Time `json:"created_at"  gorm:"not null;autoCreateTime"`
	ExpiresAt  time.Time `json:"expires_at"  gorm:"not null;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }

// Expired reports whether the record is no longer replayable at now.
func (r Idempotency) Expired(now time.Time) bool { return !r.ExpiresAt.After(now) }
