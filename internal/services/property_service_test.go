package services_test

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/benmeehan/pnp-device/internal/constants"
	"github.com/benmeehan/pnp-device/internal/controller"
	"github.com/benmeehan/pnp-device/internal/mocks"
	"github.com/benmeehan/pnp-device/internal/pnp"
	"github.com/benmeehan/pnp-device/internal/services"
	"github.com/benmeehan/pnp-device/internal/thermostat"
	"github.com/benmeehan/pnp-device/pkg/iothub"
	"github.com/benmeehan/pnp-device/pkg/properties"
)

func thermostatDevice(t *testing.T) *pnp.Device {
	t.Helper()
	th, err := thermostat.New("", zerolog.Nop())
	require.NoError(t, err)
	device, err := pnp.NewDevice(constants.ThermostatModelID, th)
	require.NoError(t, err)
	return device
}

func controllerDevice(t *testing.T) *pnp.Device {
	t.Helper()
	t1, err := thermostat.New("thermostat1", zerolog.Nop())
	require.NoError(t, err)
	t2, err := thermostat.New("thermostat2", zerolog.Nop())
	require.NoError(t, err)
	root := controller.NewRoot("SN-1", nil, []controller.Resetter{t1, t2}, zerolog.Nop())
	t.Cleanup(root.Close)

	device, err := pnp.NewDevice(constants.TemperatureControllerModelID, root, t1, t2)
	require.NoError(t, err)
	return device
}

func expectSend(client *mocks.MockDeviceClient, payload string) {
	client.On("SendProperties", mock.Anything, []byte(payload)).Return(1, nil).Once()
}

func TestPropertyService_AppliesFullTwinOnStart(t *testing.T) {
	client := new(mocks.MockDeviceClient)
	client.On("SubscribeToProperties", mock.Anything).Return(nil).Once()
	expectSend(client, `{"maxTempSinceLastReboot":22.00}`)
	client.On("GetProperties", mock.Anything).
		Return([]byte(`{"desired":{"targetTemperature":30,"$version":3},"reported":{"maxTempSinceLastReboot":22.00,"$version":2}}`), nil).Once()
	expectSend(client, `{"targetTemperature":{"value":30.00,"ac":200,"av":3,"ad":"success"}}`)
	expectSend(client, `{"maxTempSinceLastReboot":30.00}`)
	client.On("UnsubscribeFromProperties").Return(nil).Once()

	svc := services.NewPropertyService(1, time.Second, thermostatDevice(t), client, zerolog.Nop())
	require.NoError(t, svc.Start())
	require.NoError(t, svc.Stop())

	client.AssertExpectations(t)
}

func TestPropertyService_AcknowledgesPatches(t *testing.T) {
	client := new(mocks.MockDeviceClient)

	var handler iothub.PropertiesHandler
	client.On("SubscribeToProperties", mock.Anything).
		Run(func(args mock.Arguments) { handler = args.Get(0).(iothub.PropertiesHandler) }).
		Return(nil).Once()
	expectSend(client, `{"serialNumber":"SN-1"}`)
	expectSend(client, `{"thermostat1":{"__t":"c","maxTempSinceLastReboot":22.00}}`)
	expectSend(client, `{"thermostat2":{"__t":"c","maxTempSinceLastReboot":22.00}}`)
	client.On("GetProperties", mock.Anything).Return([]byte(`{"desired":{"$version":1},"reported":{"$version":1}}`), nil).Once()

	expectSend(client, `{"thermostat2":{"__t":"c","targetTemperature":{"value":"hot","ac":400,"av":5,"ad":"desired temperature is not a number"}}}`)
	expectSend(client, `{"fanSpeed":{"value":3,"ac":404,"av":5,"ad":"property is not part of the component interface"}}`)
	expectSend(client, `{"thermostat1":{"__t":"c","targetTemperature":{"value":25.00,"ac":200,"av":5,"ad":"success"}}}`)
	expectSend(client, `{"thermostat1":{"__t":"c","maxTempSinceLastReboot":25.00}}`)
	client.On("UnsubscribeFromProperties").Return(nil).Once()

	svc := services.NewPropertyService(1, time.Second, controllerDevice(t), client, zerolog.Nop())
	require.NoError(t, svc.Start())
	require.NotNil(t, handler)

	handler(properties.PayloadWritableUpdates,
		[]byte(`{"thermostat2":{"__t":"c","targetTemperature":"hot"},"fanSpeed":3,"thermostat1":{"targetTemperature":25},"$version":5}`))
	handler(properties.PayloadWritableUpdates, []byte(`{"targetTemperature":`))

	require.NoError(t, svc.Stop())
	client.AssertExpectations(t)
}

func TestPropertyService_StartFailsWithoutTwin(t *testing.T) {
	client := new(mocks.MockDeviceClient)
	client.On("SubscribeToProperties", mock.Anything).Return(nil).Once()
	expectSend(client, `{"maxTempSinceLastReboot":22.00}`)
	client.On("GetProperties", mock.Anything).Return(nil, errors.New("timed out")).Once()
	client.On("UnsubscribeFromProperties").Return(nil).Once()

	svc := services.NewPropertyService(1, time.Second, thermostatDevice(t), client, zerolog.Nop())

	assert.ErrorContains(t, svc.Start(), "timed out")
	assert.Error(t, svc.Stop())
	client.AssertExpectations(t)
}

func TestPropertyService_SubscribeFailure(t *testing.T) {
	client := new(mocks.MockDeviceClient)
	client.On("SubscribeToProperties", mock.Anything).Return(errors.New("not connected")).Once()

	svc := services.NewPropertyService(1, time.Second, thermostatDevice(t), client, zerolog.Nop())

	assert.ErrorContains(t, svc.Start(), "not connected")
	client.AssertNotCalled(t, "GetProperties", mock.Anything)
}
