package tablestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Bookkeeping hash fields stored next to the entity properties.
const (
	fieldETag      = reservedPrefix + "etag"
	fieldTimestamp = reservedPrefix + "ts"
)

// maxTxRetries bounds optimistic retries for unconditional writes that lose
// a WATCH race.
const maxTxRetries = 5

// RedisTable is a Client on Redis. Layout, for table T:
//
//	T:meta                 hash, created when the table is provisioned
//	T:e:<partition>:<row>  hash of properties plus _etag and _ts
//	T:p:<partition>        set of row keys in the partition
//
// Conditional writes use WATCH/MULTI on the entity key.
type RedisTable struct {
	rdb   redis.UniversalClient
	table string
	now   func() time.Time
}

// NewRedisTable returns a table named table on rdb.
func NewRedisTable(rdb redis.UniversalClient, table string) *RedisTable {
	return &RedisTable{rdb: rdb, table: table, now: time.Now}
}

func (r *RedisTable) metaKey() string { return r.table + ":meta" }

func (r *RedisTable) entityKey(pk, rk string) string {
	return fmt.Sprintf("%s:e:%s:%s", r.table, pk, rk)
}

func (r *RedisTable) partitionKey(pk string) string {
	return fmt.Sprintf("%s:p:%s", r.table, pk)
}

func (r *RedisTable) CreateIfNotExists(ctx context.Context) error {
	return r.rdb.HSetNX(ctx, r.metaKey(), "created_at", r.now().UTC().Format(time.RFC3339Nano)).Err()
}

func (r *RedisTable) Add(ctx context.Context, e Entity) (Entity, error) {
	if err := validate(e); err != nil {
		return Entity{}, err
	}
	key := r.entityKey(e.PartitionKey, e.RowKey)
	var out Entity
	err := r.rdb.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrExists
		}
		out = r.stamp(e)
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, toHash(out))
			pipe.SAdd(ctx, r.partitionKey(e.PartitionKey), e.RowKey)
			return nil
		})
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		// Someone else created it between EXISTS and EXEC.
		return Entity{}, ErrExists
	}
	if err != nil {
		return Entity{}, err
	}
	return out, nil
}

func (r *RedisTable) Get(ctx context.Context, partitionKey, rowKey string) (Entity, error) {
	h, err := r.rdb.HGetAll(ctx, r.entityKey(partitionKey, rowKey)).Result()
	if err != nil {
		return Entity{}, err
	}
	if len(h) == 0 {
		return Entity{}, ErrNotFound
	}
	return fromHash(partitionKey, rowKey, h), nil
}

func (r *RedisTable) Query(ctx context.Context, partitionKey string) ([]Entity, error) {
	rows, err := r.rdb.SMembers(ctx, r.partitionKey(partitionKey)).Result()
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return []Entity{}, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(rows))
	_, err = r.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, rk := range rows {
			cmds[i] = pipe.HGetAll(ctx, r.entityKey(partitionKey, rk))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]Entity, 0, len(rows))
	for i, cmd := range cmds {
		h := cmd.Val()
		if len(h) == 0 {
			// Deleted between SMEMBERS and HGETALL.
			continue
		}
		out = append(out, fromHash(partitionKey, rows[i], h))
	}
	return out, nil
}

func (r *RedisTable) Update(ctx context.Context, e Entity, ifMatch string) (Entity, error) {
	if err := validate(e); err != nil {
		return Entity{}, err
	}
	key := r.entityKey(e.PartitionKey, e.RowKey)
	var out Entity
	err := r.conditional(ctx, key, ifMatch, func(pipe redis.Pipeliner) {
		out = r.stamp(e)
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, toHash(out))
	})
	if err != nil {
		return Entity{}, err
	}
	return out, nil
}

func (r *RedisTable) Delete(ctx context.Context, partitionKey, rowKey, ifMatch string) error {
	key := r.entityKey(partitionKey, rowKey)
	return r.conditional(ctx, key, ifMatch, func(pipe redis.Pipeliner) {
		pipe.Del(ctx, key)
		pipe.SRem(ctx, r.partitionKey(partitionKey), rowKey)
	})
}

// conditional runs write inside WATCH/MULTI after checking existence and the
// ETag. A lost race is retried for MatchAny and reported as a failed
// precondition otherwise.
func (r *RedisTable) conditional(ctx context.Context, key, ifMatch string, write func(redis.Pipeliner)) error {
	attempt := func(tx *redis.Tx) error {
		tag, err := tx.HGet(ctx, key, fieldETag).Result()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if ifMatch != MatchAny && ifMatch != tag {
			return ErrPreconditionFailed
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			write(pipe)
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := r.rdb.Watch(ctx, attempt, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
		if ifMatch != MatchAny {
			return ErrPreconditionFailed
		}
	}
	return fmt.Errorf("tablestore: %s: too much contention", key)
}

func (r *RedisTable) stamp(e Entity) Entity {
	return Entity{
		PartitionKey: e.PartitionKey,
		RowKey:       e.RowKey,
		ETag:         newETag(),
		Timestamp:    r.now().UTC(),
		Properties:   cloneProps(e.Properties),
	}
}

func toHash(e Entity) map[string]any {
	h := make(map[string]any, len(e.Properties)+2)
	for k, v := range e.Properties {
		h[k] = v
	}
	h[fieldETag] = e.ETag
	h[fieldTimestamp] = e.Timestamp.Format(time.RFC3339Nano)
	return h
}

func fromHash(pk, rk string, h map[string]string) Entity {
	e := Entity{PartitionKey: pk, RowKey: rk, Properties: make(map[string]string, len(h))}
	for k, v := range h {
		switch k {
		case fieldETag:
			e.ETag = v
		case fieldTimestamp:
			e.Timestamp, _ = time.Parse(time.RFC3339Nano, v)
		default:
			e.Properties[k] = v
		}
	}
	return e
}
