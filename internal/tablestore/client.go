// Package tablestore implements the flat complaint backing on a key-value
// "table": every complaint is one entity addressed by (partition key, row key)
// whose properties are plain strings, with the comment thread embedded as a
// JSON array. Each write produces a fresh opaque ETag that callers may use
// for conditional updates.
//
// Two table clients are provided: MemoryTable for development and tests, and
// RedisTable for shared deployments.
package tablestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MatchAny as an ifMatch argument makes a write unconditional.
const MatchAny = "*"

var (
	// ErrNotFound is returned when no entity exists at the given keys.
	ErrNotFound = errors.New("tablestore: entity not found")

	// ErrExists is returned by Add when the keys are already taken.
	ErrExists = errors.New("tablestore: entity already exists")

	// ErrPreconditionFailed is returned when ifMatch does not equal the
	// entity's current ETag.
	ErrPreconditionFailed = errors.New("tablestore: etag mismatch")

	// ErrInvalidEntity is returned for entities with empty keys or reserved
	// property names.
	ErrInvalidEntity = errors.New("tablestore: invalid entity")
)

// Entity is a single addressable record. Properties hold the payload; ETag
// and Timestamp are assigned by the table on every write and ignored on
// input.
type Entity struct {
	PartitionKey string
	RowKey       string
	ETag         string
	Timestamp    time.Time
	Properties   map[string]string
}

// Client is the minimal table API the complaint store needs. Implementations
// must be safe for concurrent use.
type Client interface {
	// CreateIfNotExists provisions the table. It is idempotent.
	CreateIfNotExists(ctx context.Context) error

	// Add inserts a new entity, failing with ErrExists on a key collision.
	Add(ctx context.Context, e Entity) (Entity, error)

	// Get returns the entity or ErrNotFound.
	Get(ctx context.Context, partitionKey, rowKey string) (Entity, error)

	// Query returns every entity in the partition, in no particular order.
	Query(ctx context.Context, partitionKey string) ([]Entity, error)

	// Update replaces the entity's properties. ifMatch is either MatchAny
	// or an ETag previously read; a stale tag yields ErrPreconditionFailed.
	Update(ctx context.Context, e Entity, ifMatch string) (Entity, error)

	// Delete removes the entity, honoring ifMatch like Update.
	Delete(ctx context.Context, partitionKey, rowKey, ifMatch string) error
}

// reservedPrefix marks bookkeeping fields in backends that store the ETag
// next to the properties.
const reservedPrefix = "_"

func validate(e Entity) error {
	if strings.TrimSpace(e.PartitionKey) == "" || strings.TrimSpace(e.RowKey) == "" {
		return ErrInvalidEntity
	}
	for k := range e.Properties {
		if k == "" || strings.HasPrefix(k, reservedPrefix) {
			return ErrInvalidEntity
		}
	}
	return nil
}

func newETag() string { return `W/"` + uuid.NewString() + `"` }

func cloneProps(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
