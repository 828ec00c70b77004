package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/benmeehan/pnp-device/pkg/iothub"
)

// MockDeviceClient is a mock implementation of iothub.DeviceClientInterface
type MockDeviceClient struct {
	mock.Mock
}

func (m *MockDeviceClient) SendTelemetry(ctx context.Context, componentName string, payload []byte) error {
	args := m.Called(ctx, componentName, payload)
	return args.Error(0)
}

func (m *MockDeviceClient) SendProperties(ctx context.Context, payload []byte) (int, error) {
	args := m.Called(ctx, payload)
	return args.Int(0), args.Error(1)
}

func (m *MockDeviceClient) GetProperties(ctx context.Context) ([]byte, error) {
	args := m.Called(ctx)
	data, _ := args.Get(0).([]byte)
	return data, args.Error(1)
}

func (m *MockDeviceClient) SubscribeToProperties(handler iothub.PropertiesHandler) error {
	args := m.Called(handler)
	return args.Error(0)
}

func (m *MockDeviceClient) UnsubscribeFromProperties() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockDeviceClient) SubscribeToCommands(handler iothub.CommandHandler) error {
	args := m.Called(handler)
	return args.Error(0)
}

func (m *MockDeviceClient) UnsubscribeFromCommands() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockDeviceClient) SendCommandResponse(ctx context.Context, requestID string, status int, payload []byte) error {
	args := m.Called(ctx, requestID, status, payload)
	return args.Error(0)
}
