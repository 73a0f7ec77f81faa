package tablestore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdempotencyTable_LookupAndRemember(t *testing.T) {
	ctx := context.Background()
	tbl := NewIdempotencyTable(NewMemoryTable())

	rec, err := tbl.Lookup(ctx, "complaints", "k", time.Now())
	require.NoError(t, err)
	assert.Nil(t, rec)

	require.NoError(t, tbl.Remember(ctx, "complaints", "k", "c1", 201, time.Hour))
	require.NoError(t, tbl.Remember(ctx, "complaints", "k", "c2", 201, time.Hour), "duplicate is not an error")

	rec, err = tbl.Lookup(ctx, "complaints", "k", time.Now())
	require.NoError(t, err)
	assert.Equal(t, "c1", rec.ResourceID, "first writer wins")
	assert.Equal(t, 201, rec.Status)
	assert.Equal(t, "complaints", rec.Scope)

	rec, err = tbl.Lookup(ctx, "comments:c1", "k", time.Now())
	require.NoError(t, err)
	assert.Nil(t, rec, "scopes are independent")
}

func TestIdempotencyTable_ExpiredIsReplaced(t *testing.T) {
	ctx := context.Background()
	tbl := NewIdempotencyTable(NewMemoryTable())
	clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	tbl.now = func() time.Time { return clock }

	require.NoError(t, tbl.Remember(ctx, "complaints", "k", "old", 201, time.Minute))

	rec, err := tbl.Lookup(ctx, "complaints", "k", clock.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Nil(t, rec, "expired records are misses")

	clock = clock.Add(2 * time.Minute)
	require.NoError(t, tbl.Remember(ctx, "complaints", "k", "new", 201, time.Minute))
	rec, err = tbl.Lookup(ctx, "complaints", "k", clock)
	require.NoError(t, err)
	assert.Equal(t, "new", rec.ResourceID)
}
