package tablestore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runClientSuite checks the Client contract against any implementation.
func runClientSuite(t *testing.T, newClient func(t *testing.T) Client) {
	ctx := context.Background()

	t.Run("AddGetQuery", func(t *testing.T) {
		c := newClient(t)
		require.NoError(t, c.CreateIfNotExists(ctx))
		require.NoError(t, c.CreateIfNotExists(ctx), "provisioning is idempotent")

		a, err := c.Add(ctx, Entity{PartitionKey: "P", RowKey: "a", Properties: map[string]string{"X": "1"}})
		require.NoError(t, err)
		assert.NotEmpty(t, a.ETag)
		assert.False(t, a.Timestamp.IsZero())

		_, err = c.Add(ctx, Entity{PartitionKey: "P", RowKey: "b", Properties: map[string]string{"X": "2"}})
		require.NoError(t, err)
		_, err = c.Add(ctx, Entity{PartitionKey: "Q", RowKey: "a", Properties: map[string]string{"X": "3"}})
		require.NoError(t, err)

		got, err := c.Get(ctx, "P", "a")
		require.NoError(t, err)
		assert.Equal(t, "1", got.Properties["X"])
		assert.Equal(t, a.ETag, got.ETag)

		rows, err := c.Query(ctx, "P")
		require.NoError(t, err)
		assert.Len(t, rows, 2)

		empty, err := c.Query(ctx, "nothing-here")
		require.NoError(t, err)
		assert.Empty(t, empty)
	})

	t.Run("AddRejectsDuplicateAndInvalid", func(t *testing.T) {
		c := newClient(t)
		_, err := c.Add(ctx, Entity{PartitionKey: "P", RowKey: "a"})
		require.NoError(t, err)
		_, err = c.Add(ctx, Entity{PartitionKey: "P", RowKey: "a"})
		assert.ErrorIs(t, err, ErrExists)

		_, err = c.Add(ctx, Entity{PartitionKey: "", RowKey: "a"})
		assert.ErrorIs(t, err, ErrInvalidEntity)
		_, err = c.Add(ctx, Entity{PartitionKey: "P", RowKey: "z", Properties: map[string]string{"_etag": "x"}})
		assert.ErrorIs(t, err, ErrInvalidEntity)
	})

	t.Run("GetMissing", func(t *testing.T) {
		c := newClient(t)
		_, err := c.Get(ctx, "P", "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("UpdateReplacesAndRotatesETag", func(t *testing.T) {
		c := newClient(t)
		a, err := c.Add(ctx, Entity{PartitionKey: "P", RowKey: "a", Properties: map[string]string{"X": "1", "Y": "keep?"}})
		require.NoError(t, err)

		u, err := c.Update(ctx, Entity{PartitionKey: "P", RowKey: "a", Properties: map[string]string{"X": "2"}}, a.ETag)
		require.NoError(t, err)
		assert.NotEqual(t, a.ETag, u.ETag)

		got, err := c.Get(ctx, "P", "a")
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"X": "2"}, got.Properties, "update replaces the property set")

		_, err = c.Update(ctx, Entity{PartitionKey: "P", RowKey: "a", Properties: map[string]string{"X": "3"}}, a.ETag)
		assert.ErrorIs(t, err, ErrPreconditionFailed, "stale etag")

		_, err = c.Update(ctx, Entity{PartitionKey: "P", RowKey: "a", Properties: map[string]string{"X": "4"}}, MatchAny)
		assert.NoError(t, err)

		_, err = c.Update(ctx, Entity{PartitionKey: "P", RowKey: "missing"}, MatchAny)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		c := newClient(t)
		a, err := c.Add(ctx, Entity{PartitionKey: "P", RowKey: "a"})
		require.NoError(t, err)
		_, err = c.Update(ctx, Entity{PartitionKey: "P", RowKey: "a"}, MatchAny)
		require.NoError(t, err)

		assert.ErrorIs(t, c.Delete(ctx, "P", "a", a.ETag), ErrPreconditionFailed)
		require.NoError(t, c.Delete(ctx, "P", "a", MatchAny))
		assert.ErrorIs(t, c.Delete(ctx, "P", "a", MatchAny), ErrNotFound)

		rows, err := c.Query(ctx, "P")
		require.NoError(t, err)
		assert.Empty(t, rows)
	})
}
