package mocks

import (
	"context"

	"github.com/dukex/flowcanvas/pkg/models"
	"github.com/stretchr/testify/mock"
)

// MockRemoteStore is a mock implementation of persistence.RemoteStore interface.
type MockRemoteStore struct {
	mock.Mock
}

func (m *MockRemoteStore) Load(ctx context.Context, flowID, userID string) (*models.Graph, error) {
	args := m.Called(ctx, flowID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Graph), args.Error(1)
}

func (m *MockRemoteStore) Save(ctx context.Context, flowID, userID string, graph *models.Graph) error {
	args := m.Called(ctx, flowID, userID, graph)

	return args.Error(0)
}

func (m *MockRemoteStore) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockRemoteStore) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}
