package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/vytor/simclinic/internal/oracle"
)

// MockOracleClient is a mock implementation of oracle.ClientInterface
type MockOracleClient struct {
	mock.Mock
}

func (m *MockOracleClient) Assess(ctx context.Context, req oracle.Request) (*oracle.Response, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*oracle.Response), args.Error(1)
}

func (m *MockOracleClient) ReleaseSession(ctx context.Context, handle string) error {
	args := m.Called(ctx, handle)
	return args.Error(0)
}
