package mocks

import (
	"context"

	"climb-progression-system/services"

	"github.com/stretchr/testify/mock"
)

// AdviceGenerator mock
type AdviceGenerator struct {
	mock.Mock
}

func (m *AdviceGenerator) GenerateQuest(ctx context.Context, req services.AdviceRequest) (*services.QuestAdvice, error) {
	args := m.Called(ctx, req)
	advice, _ := args.Get(0).(*services.QuestAdvice)
	return advice, args.Error(1)
}
