package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/vytor/simclinic/internal/models"
)

// MockMemoryClient is a mock implementation of memory.ClientInterface
type MockMemoryClient struct {
	mock.Mock
}

func (m *MockMemoryClient) Get(ctx context.Context, studentID, curriculumID string) (*models.Memory, error) {
	args := m.Called(ctx, studentID, curriculumID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Memory), args.Error(1)
}

func (m *MockMemoryClient) Push(ctx context.Context, studentID, curriculumID string, update models.MemoryUpdate) error {
	args := m.Called(ctx, studentID, curriculumID, update)
	return args.Error(0)
}
