package tablestore

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

// newTestRedisTable connects to TEST_REDIS_ADDR and returns a table under a
// unique name, skipping when no server is configured.
func newTestRedisTable(t *testing.T) *RedisTable {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	ctx := context.Background()
	require.NoError(t, rdb.Ping(ctx).Err())

	name := "test-" + uuid.NewString()
	t.Cleanup(func() {
		iter := rdb.Scan(ctx, 0, name+":*", 100).Iterator()
		for iter.Next(ctx) {
			rdb.Del(ctx, iter.Val())
		}
		_ = rdb.Close()
	})
	return NewRedisTable(rdb, name)
}

func TestRedisTable_Contract(t *testing.T) {
	runClientSuite(t, func(t *testing.T) Client { return newTestRedisTable(t) })
}

func TestRedisTable_Keys(t *testing.T) {
	r := NewRedisTable(nil, "Complaints")
	require.Equal(t, "Complaints:e:Complaint:abc", r.entityKey("Complaint", "abc"))
	require.Equal(t, "Complaints:p:Complaint", r.partitionKey("Complaint"))
	require.Equal(t, "Complaints:meta", r.metaKey())
}

func TestRedisTable_HashRoundTrip(t *testing.T) {
	in := Entity{PartitionKey: "P", RowKey: "r", ETag: `W/"x"`, Properties: map[string]string{"A": "1"}}
	h := toHash(in)
	flat := make(map[string]string, len(h))
	for k, v := range h {
		flat[k] = v.(string)
	}
	out := fromHash("P", "r", flat)
	require.Equal(t, in.ETag, out.ETag)
	require.Equal(t, in.Properties, out.Properties)
}
