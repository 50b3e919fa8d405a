package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/oggyb/event-network/internal/events"
)

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, routingKey string, event events.Envelope) error {
	args := m.Called(ctx, routingKey, event)
	return args.Error(0)
}

func (m *MockPublisher) Close() error {
	args := m.Called()
	return args.Error(0)
}
