package mocks

import (
	"context"
	"time"

	"github.com/dukex/automata/pkg/models"
	"github.com/stretchr/testify/mock"
)

// MockCredentialStore is a mock implementation of credentials.CredentialStore.
type MockCredentialStore struct {
	mock.Mock
}

func (m *MockCredentialStore) GetByID(ctx context.Context, id string) (*models.Credential, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Credential), args.Error(1)
}

func (m *MockCredentialStore) TouchLastUsed(ctx context.Context, id string, at time.Time) error {
	args := m.Called(ctx, id, at)

	return args.Error(0)
}

func (m *MockCredentialStore) MarkError(ctx context.Context, id string, message string) error {
	args := m.Called(ctx, id, message)

	return args.Error(0)
}

// MockAccessLogStore is a mock implementation of credentials.AccessLogStore.
type MockAccessLogStore struct {
	mock.Mock
}

func (m *MockAccessLogStore) Append(ctx context.Context, entry *models.CredentialAccessLog) error {
	args := m.Called(ctx, entry)

	return args.Error(0)
}

func (m *MockAccessLogStore) Update(ctx context.Context, entry *models.CredentialAccessLog) error {
	args := m.Called(ctx, entry)

	return args.Error(0)
}
