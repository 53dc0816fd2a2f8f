package mocks

import (
	"context"

	"github.com/dukex/automata/pkg/models"
	"github.com/dukex/automata/pkg/persistence"
	"github.com/stretchr/testify/mock"
)

// MockPersistence is a mock implementation of persistence.Persistence interface.
// Repository accessors return the embedded repository mocks.
type MockPersistence struct {
	mock.Mock

	Triggers   *MockTriggerRepository
	Executions *MockExecutionRepository
}

func NewMockPersistence() *MockPersistence {
	return &MockPersistence{
		Triggers:   &MockTriggerRepository{},
		Executions: &MockExecutionRepository{},
	}
}

func (m *MockPersistence) TriggerRepository() persistence.TriggerRepository {
	return m.Triggers
}

func (m *MockPersistence) ExecutionRepository() persistence.ExecutionRepository {
	return m.Executions
}

func (m *MockPersistence) ActionLogRepository() persistence.ActionLogRepository {
	args := m.Called()

	return args.Get(0).(persistence.ActionLogRepository)
}

func (m *MockPersistence) CredentialRepository() persistence.CredentialRepository {
	args := m.Called()

	return args.Get(0).(persistence.CredentialRepository)
}

func (m *MockPersistence) CredentialAccessLogRepository() persistence.CredentialAccessLogRepository {
	args := m.Called()

	return args.Get(0).(persistence.CredentialAccessLogRepository)
}

func (m *MockPersistence) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockPersistence) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

// MockTriggerRepository is a mock implementation of persistence.TriggerRepository interface.
type MockTriggerRepository struct {
	mock.Mock
}

func (m *MockTriggerRepository) GetAll(ctx context.Context) ([]*models.Trigger, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Trigger), args.Error(1)
}

func (m *MockTriggerRepository) GetByID(ctx context.Context, id string) (*models.Trigger, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Trigger), args.Error(1)
}

func (m *MockTriggerRepository) ListActiveByEvent(ctx context.Context, eventIdentifier string) ([]*models.Trigger, error) {
	args := m.Called(ctx, eventIdentifier)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Trigger), args.Error(1)
}

func (m *MockTriggerRepository) Save(ctx context.Context, trigger *models.Trigger) error {
	args := m.Called(ctx, trigger)

	return args.Error(0)
}

func (m *MockTriggerRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)

	return args.Error(0)
}

// MockExecutionRepository is a mock implementation of persistence.ExecutionRepository interface.
type MockExecutionRepository struct {
	mock.Mock
}

func (m *MockExecutionRepository) Create(ctx context.Context, execution *models.Execution) error {
	args := m.Called(ctx, execution)

	return args.Error(0)
}

func (m *MockExecutionRepository) Update(ctx context.Context, execution *models.Execution) error {
	args := m.Called(ctx, execution)

	return args.Error(0)
}

func (m *MockExecutionRepository) SaveStep(ctx context.Context, step *models.ExecutionStep) error {
	args := m.Called(ctx, step)

	return args.Error(0)
}

func (m *MockExecutionRepository) GetByID(ctx context.Context, id string) (*models.Execution, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Execution), args.Error(1)
}

func (m *MockExecutionRepository) ListByTrigger(ctx context.Context, triggerID string, limit int) ([]*models.Execution, error) {
	args := m.Called(ctx, triggerID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Execution), args.Error(1)
}
