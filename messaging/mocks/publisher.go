package mocks

import (
	"context"

	"climb-progression-system/messaging"

	"github.com/stretchr/testify/mock"
)

// EventPublisher mock
type EventPublisher struct {
	mock.Mock
}

func (m *EventPublisher) Publish(ctx context.Context, event messaging.ProgressionEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}
