package services

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/tbourn/go-complaint-backend/internal/domain"
)

// MockStore is a testify mock of ComplaintStore.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) Create(ctx context.Context, d domain.ComplaintDraft) (*domain.Complaint, error) {
	args := m.Called(ctx, d)
	c, _ := args.Get(0).(*domain.Complaint)
	return c, args.Error(1)
}

func (m *MockStore) List(ctx context.Context, f domain.ListFilter) ([]domain.Complaint, error) {
	args := m.Called(ctx, f)
	out, _ := args.Get(0).([]domain.Complaint)
	return out, args.Error(1)
}

func (m *MockStore) Get(ctx context.Context, id string) (*domain.Complaint, error) {
	args := m.Called(ctx, id)
	c, _ := args.Get(0).(*domain.Complaint)
	return c, args.Error(1)
}

func (m *MockStore) UpdateStatus(ctx context.Context, id, status string) (*domain.Complaint, error) {
	args := m.Called(ctx, id, status)
	c, _ := args.Get(0).(*domain.Complaint)
	return c, args.Error(1)
}

func (m *MockStore) AddComment(ctx context.Context, complaintID string, d domain.CommentDraft) (*domain.Comment, error) {
	args := m.Called(ctx, complaintID, d)
	cm, _ := args.Get(0).(*domain.Comment)
	return cm, args.Error(1)
}

func (m *MockStore) Delete(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}
