package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-complaint-backend/internal/domain"
)

// ErrDuplicate reports that a live record already holds (scope, key).
var ErrDuplicate = errors.New("repo: idempotency key already recorded")

// IdempotencyRepo keeps replayable request outcomes in the idempotency
// table, one row per (scope, key).
type IdempotencyRepo struct {
	DB *gorm.DB

	// Now is the clock used for CreatedAt and ExpiresAt; nil means time.Now.
	Now func() time.Time
}

// NewIdempotencyRepo returns a repo over db using the wall clock.
func NewIdempotencyRepo(db *gorm.DB) *IdempotencyRepo {
	return &IdempotencyRepo{DB: db}
}

func (r *IdempotencyRepo) now() time.Time {
	if r.Now == nil {
		return time.Now().UTC()
	}
	return r.Now().UTC()
}

// Lookup returns the record for (scope, key) that is still live at now. A
// miss is (nil, nil); blank scopes and keys never match.
func (r *IdempotencyRepo) Lookup(ctx context.Context, scope, key string, now time.Time) (*domain.Idempotency, error) {
	if strings.TrimSpace(scope) == "" || strings.TrimSpace(key) == "" {
		return nil, nil
	}
	var rec domain.Idempotency
	err := r.DB.WithContext(ctx).
		Where("scope = ? AND key = ? AND expires_at > ?", scope, key, now).
		Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Insert records an outcome valid for ttl. An expired row under the same
// (scope, key) is replaced in the same transaction; a live one yields
// ErrDuplicate.
func (r *IdempotencyRepo) Insert(ctx context.Context, scope, key, resourceID string, status int, ttl time.Duration) (*domain.Idempotency, error) {
	now := r.now()
	rec := &domain.Idempotency{
		ID:         uuid.NewString(),
		Scope:      scope,
		Key:        key,
		ResourceID: resourceID,
		Status:     status,
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
	}
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		stale := tx.Where("scope = ? AND key = ? AND expires_at <= ?", scope, key, now)
		if err := stale.Delete(&domain.Idempotency{}).Error; err != nil {
			return err
		}
		return tx.Create(rec).Error
	})
	switch {
	case err == nil:
		return rec, nil
	case isUniqueViolation(err):
		return nil, ErrDuplicate
	default:
		return nil, err
	}
}

// Remember is Insert for callers that only care whether storage failed: a
// concurrent duplicate is not an error because the first writer wins.
func (r *IdempotencyRepo) Remember(ctx context.Context, scope, key, resourceID string, status int, ttl time.Duration) error {
	if _, err := r.Insert(ctx, scope, key, resourceID, status, ttl); err != nil && !errors.Is(err, ErrDuplicate) {
		return err
	}
	return nil
}

// isUniqueViolation recognizes duplicate-key errors from both drivers.
// glebarez/sqlite reports them as plain text.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	low := strings.ToLower(err.Error())
	for _, marker := range []string{"unique constraint failed", "constraint failed: unique", "duplicate key value"} {
		if strings.Contains(low, marker) {
			return true
		}
	}
	return false
}
