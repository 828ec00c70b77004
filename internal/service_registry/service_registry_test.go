package service_registry

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benmeehan/pnp-device/internal/constants"
	"github.com/benmeehan/pnp-device/internal/mocks"
	"github.com/benmeehan/pnp-device/internal/pnp"
	"github.com/benmeehan/pnp-device/internal/thermostat"
	"github.com/benmeehan/pnp-device/internal/utils"
)

type recordingService struct {
	name     string
	startErr error
	events   *[]string
}

func (s *recordingService) Start() error {
	*s.events = append(*s.events, "start "+s.name)
	return s.startErr
}

func (s *recordingService) Stop() error {
	*s.events = append(*s.events, "stop "+s.name)
	return nil
}

func TestServiceRegistry_StartAndStopInOrder(t *testing.T) {
	var events []string
	sr := NewServiceRegistry(nil, zerolog.Nop())
	sr.RegisterService("a", &recordingService{name: "a", events: &events})
	sr.RegisterService("b", &recordingService{name: "b", events: &events})
	sr.RegisterService("a", &recordingService{name: "duplicate", events: &events})

	require.NoError(t, sr.StartServices())
	require.NoError(t, sr.StopServices())

	assert.Equal(t, []string{"start a", "start b", "stop b", "stop a"}, events)
}

func TestServiceRegistry_RollsBackOnStartFailure(t *testing.T) {
	var events []string
	sr := NewServiceRegistry(nil, zerolog.Nop())
	sr.RegisterService("a", &recordingService{name: "a", events: &events})
	sr.RegisterService("b", &recordingService{name: "b", events: &events})
	sr.RegisterService("c", &recordingService{name: "c", startErr: errors.New("boom"), events: &events})

	err := sr.StartServices()

	assert.ErrorContains(t, err, "failed to start c: boom")
	assert.Equal(t, []string{"start a", "start b", "start c", "stop b", "stop a"}, events)
}

func TestServiceRegistry_RegisterServices(t *testing.T) {
	th, err := thermostat.New("", zerolog.Nop())
	require.NoError(t, err)
	device, err := pnp.NewDevice(constants.ThermostatModelID, th)
	require.NoError(t, err)

	config := &utils.Config{}
	config.Services.Properties.Enabled = true
	config.Services.Telemetry.Enabled = true

	sr := NewServiceRegistry(nil, zerolog.Nop())
	require.NoError(t, sr.RegisterServices(config, device, new(mocks.MockDeviceClient)))

	assert.Equal(t, []string{"properties", "telemetry"}, sr.serviceKeys)
}

func TestBuildMiddlewareChain(t *testing.T) {
	config := &utils.Config{}
	assert.Equal(t, 0, BuildMiddlewareChain(config, new(mocks.MockMQTTClient), zerolog.Nop()).Len())

	config.Middlewares.Trace.Enabled = true
	sr := NewServiceRegistry(new(mocks.MockMQTTClient), zerolog.Nop())
	assert.Equal(t, 1, sr.InitializeMiddlewares(config).Len())
}
