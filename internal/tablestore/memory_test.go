package tablestore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryTable_Contract(t *testing.T) {
	runClientSuite(t, func(t *testing.T) Client { return NewMemoryTable() })
}

func TestMemoryTable_CopiesProperties(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryTable()
	props := map[string]string{"X": "1"}
	_, err := m.Add(ctx, Entity{PartitionKey: "P", RowKey: "a", Properties: props})
	require.NoError(t, err)

	props["X"] = "mutated"
	got, err := m.Get(ctx, "P", "a")
	require.NoError(t, err)
	assert.Equal(t, "1", got.Properties["X"])

	got.Properties["X"] = "mutated again"
	again, _ := m.Get(ctx, "P", "a")
	assert.Equal(t, "1", again.Properties["X"])
}

func TestMemoryTable_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m := NewMemoryTable()
	_, err := m.Query(ctx, "P")
	assert.ErrorIs(t, err, context.Canceled)
	_, err = m.Add(ctx, Entity{PartitionKey: "P", RowKey: "a"})
	assert.ErrorIs(t, err, context.Canceled)
}
