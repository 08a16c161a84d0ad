package mocks

import (
	"github.com/stretchr/testify/mock"

	"github.com/vytor/simclinic/internal/models"
)

// MockClassifier is a mock implementation of stage.Classifier
type MockClassifier struct {
	mock.Mock
}

func (m *MockClassifier) Classify(transcript string, memory *models.Memory) int {
	args := m.Called(transcript, memory)
	return args.Int(0)
}
