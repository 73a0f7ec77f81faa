package tablestore

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/tbourn/go-complaint-backend/internal/domain"
)

// IdempotencyPartition holds idempotency records next to the complaints.
const IdempotencyPartition = "Idempotency"

const (
	propScope      = "Scope"
	propKey        = "Key"
	propResourceID = "ResourceID"
	propHTTPStatus = "Status"
	propExpiresAt  = "ExpiresAt"
)

// IdempotencyTable keeps replay records for POST endpoints on a table
// Client. Records are addressed by (scope, key); expired ones are treated as
// absent and overwritten by the next Remember.
type IdempotencyTable struct {
	Client Client
	now    func() time.Time
}

// NewIdempotencyTable returns a record store on client.
func NewIdempotencyTable(client Client) *IdempotencyTable {
	return &IdempotencyTable{Client: client, now: time.Now}
}

func idemRowKey(scope, key string) string { return scope + "|" + key }

// Lookup returns the record for (scope, key) that is live at now. A miss is
// (nil, nil); an error means the table could not be read.
func (t *IdempotencyTable) Lookup(ctx context.Context, scope, key string, now time.Time) (*domain.Idempotency, error) {
	e, err := t.Client.Get(ctx, IdempotencyPartition, idemRowKey(scope, key))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rec, err := decodeIdempotency(e)
	if err != nil {
		return nil, err
	}
	if rec.Expired(now) {
		return nil, nil
	}
	return rec, nil
}

// Remember stores the outcome of a completed request. The first live record
// wins; an expired one is replaced.
func (t *IdempotencyTable) Remember(ctx context.Context, scope, key, resourceID string, status int, ttl time.Duration) error {
	now := t.now().UTC()
	rec := &domain.Idempotency{
		ID:         idemRowKey(scope, key),
		Scope:      scope,
		Key:        key,
		ResourceID: resourceID,
		Status:     status,
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
	}
	e := encodeIdempotency(rec)

	_, err := t.Client.Add(ctx, e)
	if !errors.Is(err, ErrExists) {
		return err
	}

	cur, err := t.Client.Get(ctx, IdempotencyPartition, e.RowKey)
	if errors.Is(err, ErrNotFound) {
		_, err = t.Client.Add(ctx, e)
		if errors.Is(err, ErrExists) {
			return nil
		}
		return err
	}
	if err != nil {
		return err
	}
	old, err := decodeIdempotency(cur)
	if err == nil && !old.Expired(now) {
		return nil
	}
	_, err = t.Client.Update(ctx, e, cur.ETag)
	if errors.Is(err, ErrPreconditionFailed) || errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

func encodeIdempotency(r *domain.Idempotency) Entity {
	return Entity{
		PartitionKey: IdempotencyPartition,
		RowKey:       r.ID,
		Properties: map[string]string{
			propScope:      r.Scope,
			propKey:        r.Key,
			propResourceID: r.ResourceID,
			propHTTPStatus: strconv.Itoa(r.Status),
			propCreatedAt:  r.CreatedAt.Format(time.RFC3339Nano),
			propExpiresAt:  r.ExpiresAt.Format(time.RFC3339Nano),
		},
	}
}

func decodeIdempotency(e Entity) (*domain.Idempotency, error) {
	p := e.Properties
	status, err := strconv.Atoi(p[propHTTPStatus])
	if err != nil {
		return nil, err
	}
	created, err := parseTime(p[propCreatedAt])
	if err != nil {
		return nil, err
	}
	expires, err := parseTime(p[propExpiresAt])
	if err != nil {
		return nil, err
	}
	return &domain.Idempotency{
		ID:         e.RowKey,
		Scope:      p[propScope],
		Key:        p[propKey],
		ResourceID: p[propResourceID],
		Status:     status,
		CreatedAt:  created,
		ExpiresAt:  expires,
	}, nil
}
