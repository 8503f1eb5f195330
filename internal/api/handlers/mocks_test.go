package handlers_test

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/zatekoja/outpatient-scheduling/internal/application/services"
	"github.com/zatekoja/outpatient-scheduling/internal/domain/entities"
)

// MockBatchRunner mocks the orchestrator
type MockBatchRunner struct {
	mock.Mock
}

func (m *MockBatchRunner) Run(ctx context.Context, trigger entities.BatchTrigger) *services.BatchRunReport {
	return m.Called(ctx, trigger).Get(0).(*services.BatchRunReport)
}

// MockBatchRunRepository mocks BatchRunRepository
type MockBatchRunRepository struct {
	mock.Mock
}

func (m *MockBatchRunRepository) Create(ctx context.Context, run *entities.BatchRun) error {
	return m.Called(ctx, run).Error(0)
}

func (m *MockBatchRunRepository) Update(ctx context.Context, run *entities.BatchRun) error {
	return m.Called(ctx, run).Error(0)
}

func (m *MockBatchRunRepository) LatestCommitted(ctx context.Context) (*entities.BatchRun, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.BatchRun), args.Error(1)
}

func (m *MockBatchRunRepository) List(ctx context.Context, limit int) ([]*entities.BatchRun, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.BatchRun), args.Error(1)
}

// MockQueueOperator mocks the queue runtime
type MockQueueOperator struct {
	mock.Mock
}

func (m *MockQueueOperator) view(args mock.Arguments) (*entities.QueueView, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.QueueView), args.Error(1)
}

func (m *MockQueueOperator) entry(args mock.Arguments) (*entities.QueueEntry, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.QueueEntry), args.Error(1)
}

func (m *MockQueueOperator) View(ctx context.Context) (*entities.QueueView, error) {
	return m.view(m.Called(ctx))
}

func (m *MockQueueOperator) Load(ctx context.Context) (*entities.QueueView, error) {
	return m.view(m.Called(ctx))
}

func (m *MockQueueOperator) Skip(ctx context.Context) (*entities.QueueView, error) {
	return m.view(m.Called(ctx))
}

func (m *MockQueueOperator) Snapshot(ctx context.Context) ([]*entities.QueueEntry, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.QueueEntry), args.Error(1)
}

func (m *MockQueueOperator) Stats(ctx context.Context) (*entities.QueueStats, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.QueueStats), args.Error(1)
}

func (m *MockQueueOperator) Current(ctx context.Context) (*entities.QueueEntry, error) {
	return m.entry(m.Called(ctx))
}

func (m *MockQueueOperator) Next(ctx context.Context) (*entities.QueueEntry, error) {
	return m.entry(m.Called(ctx))
}

func (m *MockQueueOperator) CallNext(ctx context.Context) (*entities.QueueEntry, error) {
	return m.entry(m.Called(ctx))
}

func (m *MockQueueOperator) MarkUnavailable(ctx context.Context) (*entities.QueueEntry, error) {
	return m.entry(m.Called(ctx))
}

func (m *MockQueueOperator) MarkCompleted(ctx context.Context) (*entities.QueueEntry, error) {
	return m.entry(m.Called(ctx))
}

func (m *MockQueueOperator) Restore(ctx context.Context, id string) (*entities.QueueEntry, error) {
	return m.entry(m.Called(ctx, id))
}

func (m *MockQueueOperator) SetStatus(ctx context.Context, id string, status entities.QueueEntryStatus) (*entities.QueueEntry, error) {
	return m.entry(m.Called(ctx, id, status))
}

// MockQueueRebuilder mocks the queue builder
type MockQueueRebuilder struct {
	mock.Mock
}

func (m *MockQueueRebuilder) RebuildFromLastRun(ctx context.Context) ([]*entities.QueueEntry, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.QueueEntry), args.Error(1)
}
