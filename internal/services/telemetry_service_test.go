package services_test

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/benmeehan/pnp-device/internal/mocks"
	"github.com/benmeehan/pnp-device/internal/services"
)

func TestTelemetryService_SendsComponentTelemetry(t *testing.T) {
	client := new(mocks.MockDeviceClient)
	sent := make(chan string, 16)
	client.On("SendTelemetry", mock.Anything, mock.Anything, []byte(`{"temperature":22.00}`)).
		Run(func(args mock.Arguments) {
			select {
			case sent <- args.String(1):
			default:
			}
		}).
		Return(nil)

	svc := services.NewTelemetryService(10*time.Millisecond, controllerDevice(t), client, zerolog.Nop())
	require.NoError(t, svc.Start())
	assert.Error(t, svc.Start())

	seen := map[string]bool{}
	require.Eventually(t, func() bool {
		for {
			select {
			case name := <-sent:
				seen[name] = true
			default:
				return seen["thermostat1"] && seen["thermostat2"]
			}
		}
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, svc.Stop())
	assert.Error(t, svc.Stop())
}

func TestTelemetryService_RejectsZeroInterval(t *testing.T) {
	svc := services.NewTelemetryService(0, controllerDevice(t), new(mocks.MockDeviceClient), zerolog.Nop())
	assert.Error(t, svc.Start())
}
