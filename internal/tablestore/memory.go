package tablestore

import (
	"context"
	"sync"
	"time"
)

// MemoryTable is a process-local Client. Entities are copied on the way in
// and out, so callers never share property maps with the table.
type MemoryTable struct {
	mu   sync.RWMutex
	data map[string]map[string]Entity // [partition][row]
	now  func() time.Time
}

// NewMemoryTable returns an empty table.
func NewMemoryTable() *MemoryTable {
	return &MemoryTable{
		data: make(map[string]map[string]Entity),
		now:  time.Now,
	}
}

func (m *MemoryTable) CreateIfNotExists(ctx context.Context) error { return ctx.Err() }

func (m *MemoryTable) Add(ctx context.Context, e Entity) (Entity, error) {
	if err := ctx.Err(); err != nil {
		return Entity{}, err
	}
	if err := validate(e); err != nil {
		return Entity{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	part := m.data[e.PartitionKey]
	if part == nil {
		part = make(map[string]Entity)
		m.data[e.PartitionKey] = part
	}
	if _, ok := part[e.RowKey]; ok {
		return Entity{}, ErrExists
	}
	stored := m.stamp(e)
	part[e.RowKey] = stored
	return copyEntity(stored), nil
}

func (m *MemoryTable) Get(ctx context.Context, partitionKey, rowKey string) (Entity, error) {
	if err := ctx.Err(); err != nil {
		return Entity{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.data[partitionKey][rowKey]
	if !ok {
		return Entity{}, ErrNotFound
	}
	return copyEntity(e), nil
}

func (m *MemoryTable) Query(ctx context.Context, partitionKey string) ([]Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	part := m.data[partitionKey]
	out := make([]Entity, 0, len(part))
	for _, e := range part {
		out = append(out, copyEntity(e))
	}
	return out, nil
}

func (m *MemoryTable) Update(ctx context.Context, e Entity, ifMatch string) (Entity, error) {
	if err := ctx.Err(); err != nil {
		return Entity{}, err
	}
	if err := validate(e); err != nil {
		return Entity{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.data[e.PartitionKey][e.RowKey]
	if !ok {
		return Entity{}, ErrNotFound
	}
	if ifMatch != MatchAny && ifMatch != cur.ETag {
		return Entity{}, ErrPreconditionFailed
	}
	stored := m.stamp(e)
	m.data[e.PartitionKey][e.RowKey] = stored
	return copyEntity(stored), nil
}

func (m *MemoryTable) Delete(ctx context.Context, partitionKey, rowKey, ifMatch string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.data[partitionKey][rowKey]
	if !ok {
		return ErrNotFound
	}
	if ifMatch != MatchAny && ifMatch != cur.ETag {
		return ErrPreconditionFailed
	}
	delete(m.data[partitionKey], rowKey)
	return nil
}

// stamp must be called with mu held.
func (m *MemoryTable) stamp(e Entity) Entity {
	return Entity{
		PartitionKey: e.PartitionKey,
		RowKey:       e.RowKey,
		ETag:         newETag(),
		Timestamp:    m.now().UTC(),
		Properties:   cloneProps(e.Properties),
	}
}

func copyEntity(e Entity) Entity {
	e.Properties = cloneProps(e.Properties)
	return e
}
