package clients

import (
	"context"
	"encoding/json"

	"github.com/ruteri/sui-escrow-gateway/interfaces"
	"github.com/stretchr/testify/mock"
)

// MockSaltProvider is a testify mock of interfaces.SaltProvider.
type MockSaltProvider struct {
	mock.Mock
}

func (m *MockSaltProvider) GetSalt(ctx context.Context, jwt string) (string, error) {
	args := m.Called(ctx, jwt)
	return args.String(0), args.Error(1)
}

// MockProofProvider is a testify mock of interfaces.ProofProvider.
type MockProofProvider struct {
	mock.Mock
}

func (m *MockProofProvider) GetProof(ctx context.Context, req interfaces.ProofRequest) (json.RawMessage, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(json.RawMessage), args.Error(1)
}
