package services

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/go-complaint-backend/internal/domain"
	"github.com/tbourn/go-complaint-backend/internal/repo"
	"github.com/tbourn/go-complaint-backend/internal/tablestore"
)

func TestComplaintService_Create_TrimsDraft(t *testing.T) {
	store := new(MockStore)
	svc := NewComplaintService(store, "sql")

	want := domain.ComplaintDraft{Title: "Leak", Description: "Kitchen sink", Category: "Maintenance", Priority: "High", CreatedBy: "alice"}
	store.On("Create", mock.Anything, want).Return(&domain.Complaint{ID: "c1", Title: "Leak"}, nil).Once()

	c, err := svc.Create(context.Background(), domain.ComplaintDraft{
		Title: "  Leak ", Description: "Kitchen sink\n", Category: " Maintenance", Priority: "High ", CreatedBy: "\talice",
	})
	require.NoError(t, err)
	assert.Equal(t, "c1", c.ID)
	store.AssertExpectations(t)
}

func TestComplaintService_List_NilBecomesEmpty(t *testing.T) {
	store := new(MockStore)
	svc := NewComplaintService(store, "table")
	f := domain.ListFilter{Category: "billing"}
	store.On("List", mock.Anything, f).Return(nil, nil).Once()

	out, err := svc.List(context.Background(), f)
	require.NoError(t, err)
	assert.NotNil(t, out)
	assert.Empty(t, out)
}

func TestComplaintService_NotFoundMapping(t *testing.T) {
	for name, sentinel := range map[string]error{"repo": repo.ErrNotFound, "table": tablestore.ErrNotFound} {
		t.Run(name, func(t *testing.T) {
			store := new(MockStore)
			svc := NewComplaintService(store, name)
			ctx := context.Background()

			store.On("Get", mock.Anything, "x").Return(nil, sentinel)
			store.On("UpdateStatus", mock.Anything, "x", "Closed").Return(nil, sentinel)
			store.On("AddComment", mock.Anything, "x", domain.CommentDraft{Text: "t", Author: "a"}).Return(nil, sentinel)

			_, err := svc.Get(ctx, "x")
			assert.ErrorIs(t, err, ErrComplaintNotFound)
			_, err = svc.UpdateStatus(ctx, "x", " Closed ")
			assert.ErrorIs(t, err, ErrComplaintNotFound)
			_, err = svc.AddComment(ctx, "x", domain.CommentDraft{Text: " t ", Author: "a"})
			assert.ErrorIs(t, err, ErrComplaintNotFound)
			store.AssertExpectations(t)
		})
	}
}

func TestComplaintService_Delete(t *testing.T) {
	store := new(MockStore)
	svc := NewComplaintService(store, "sql")
	store.On("Delete", mock.Anything, "gone").Return(false, nil).Once()
	store.On("Delete", mock.Anything, "here").Return(true, nil).Once()

	assert.ErrorIs(t, svc.Delete(context.Background(), "gone"), ErrComplaintNotFound)
	assert.NoError(t, svc.Delete(context.Background(), "here"))
}

func TestComplaintService_ConflictMapping(t *testing.T) {
	store := new(MockStore)
	svc := NewComplaintService(store, "table")
	store.On("AddComment", mock.Anything, "c1", mock.Anything).Return(nil, tablestore.ErrPreconditionFailed)

	_, err := svc.AddComment(context.Background(), "c1", domain.CommentDraft{Text: "x", Author: "y"})
	assert.ErrorIs(t, err, ErrConcurrencyConflict)
}

func TestComplaintService_StorageFault_WrappedAndLogged(t *testing.T) {
	store := new(MockStore)
	svc := NewComplaintService(store, "sql")
	boom := errors.New("disk I/O error")
	store.On("UpdateStatus", mock.Anything, "c1", "Closed").Return(nil, boom)

	var buf bytes.Buffer
	ctx := zerolog.New(&buf).WithContext(context.Background())

	_, err := svc.UpdateStatus(ctx, "c1", "Closed")
	require.Error(t, err)

	var se *StorageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "update_status", se.Op)
	assert.Equal(t, "sql", se.Backend)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrComplaintNotFound)

	assert.Contains(t, buf.String(), "complaint store failure")
	assert.Contains(t, buf.String(), `"op":"update_status"`)
}

func TestComplaintService_ContextCancellationIsStorageFault(t *testing.T) {
	store := new(MockStore)
	svc := NewComplaintService(store, "sql")
	store.On("List", mock.Anything, domain.ListFilter{}).Return(nil, context.Canceled)

	_, err := svc.List(context.Background(), domain.ListFilter{})
	var se *StorageError
	assert.ErrorAs(t, err, &se)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStorageError_Message(t *testing.T) {
	err := &StorageError{Op: "get", Backend: "table", Err: errors.New("connection refused")}
	assert.Equal(t, "complaint store get (table): connection refused", err.Error())
}
