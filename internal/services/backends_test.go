package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-complaint-backend/internal/domain"
	"github.com/tbourn/go-complaint-backend/internal/repo"
	"github.com/tbourn/go-complaint-backend/internal/tablestore"
)

func stepClock() func() time.Time {
	var mu sync.Mutex
	cur := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		cur = cur.Add(time.Second)
		return cur
	}
}

func newSQLStore(t *testing.T) ComplaintStore {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	require.NoError(t, repo.AutoMigrate(db))
	r := repo.NewComplaintRepo(db)
	r.Now = stepClock()
	return r
}

func newTableStore(t *testing.T) ComplaintStore {
	t.Helper()
	tbl := tablestore.NewComplaintTable(tablestore.NewMemoryTable())
	tbl.Now = stepClock()
	return tbl
}

// Both backings must be observably identical through the service.
func TestBackends_Equivalent(t *testing.T) {
	for name, mk := range map[string]func(*testing.T) ComplaintStore{
		"sql":   newSQLStore,
		"table": newTableStore,
	} {
		t.Run(name, func(t *testing.T) {
			svc := NewComplaintService(mk(t), name)
			ctx := context.Background()

			a, err := svc.Create(ctx, domain.ComplaintDraft{Title: "Refund missing", Description: "Charged twice", Category: "Billing", Priority: "High", CreatedBy: "alice"})
			require.NoError(t, err)
			b, err := svc.Create(ctx, domain.ComplaintDraft{Title: "Leaky faucet", Description: "Kitchen", Category: "Maintenance", Priority: "Low", CreatedBy: "bob"})
			require.NoError(t, err)

			assert.Equal(t, domain.DefaultStatus, a.Status)
			assert.True(t, a.CreatedAt.Equal(a.UpdatedAt))

			cm1, err := svc.AddComment(ctx, a.ID, domain.CommentDraft{Text: "Looking into it", Author: "agent"})
			require.NoError(t, err)
			cm2, err := svc.AddComment(ctx, a.ID, domain.CommentDraft{Text: "Refund issued", Author: "agent"})
			require.NoError(t, err)

			up, err := svc.UpdateStatus(ctx, a.ID, "Resolved")
			require.NoError(t, err)
			assert.Equal(t, "Resolved", up.Status)
			assert.True(t, up.UpdatedAt.After(cm2.CreatedAt))

			got, err := svc.Get(ctx, a.ID)
			require.NoError(t, err)
			require.Len(t, got.Comments, 2)
			assert.Equal(t, cm1.ID, got.Comments[0].ID)
			assert.Equal(t, cm2.ID, got.Comments[1].ID)
			assert.True(t, got.CreatedAt.Equal(a.CreatedAt))
			assert.Equal(t, "alice", got.CreatedBy)

			list, err := svc.List(ctx, domain.ListFilter{})
			require.NoError(t, err)
			require.Len(t, list, 2)
			assert.Equal(t, b.ID, list[0].ID, "newest first")

			resolved, err := svc.List(ctx, domain.ListFilter{Status: "resolved", Search: "REFUND"})
			require.NoError(t, err)
			require.Len(t, resolved, 1)
			assert.Equal(t, a.ID, resolved[0].ID)

			require.NoError(t, svc.Delete(ctx, a.ID))
			_, err = svc.Get(ctx, a.ID)
			assert.ErrorIs(t, err, ErrComplaintNotFound)
			assert.ErrorIs(t, svc.Delete(ctx, a.ID), ErrComplaintNotFound)
			_, err = svc.AddComment(ctx, a.ID, domain.CommentDraft{Text: "late", Author: "x"})
			assert.ErrorIs(t, err, ErrComplaintNotFound)
		})
	}
}
