package provisioning_test

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	MQTT "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/benmeehan/pnp-device/internal/mocks"
	"github.com/benmeehan/pnp-device/pkg/provisioning"
)

func newClient(transport *mocks.MockTransport, maxAttempts int) *provisioning.Client {
	return provisioning.NewClient("0ne00000001", "thermostat-1", "dtmi:com:example:Thermostat;1",
		1, maxAttempts, time.Millisecond, 5*time.Millisecond, 200*time.Millisecond, transport, zerolog.Nop())
}

// expectSubscription captures the response handler and allows the final unsubscribe.
func expectSubscription(transport *mocks.MockTransport) *MQTT.MessageHandler {
	var handler MQTT.MessageHandler
	transport.On("Subscribe", "$dps/registrations/res/#", byte(1), mock.Anything).
		Run(func(args mock.Arguments) { handler = args.Get(2).(MQTT.MessageHandler) }).
		Return(nil).Once()
	transport.On("Unsubscribe", []string{"$dps/registrations/res/#"}).Return(nil).Once()
	return &handler
}

func rid(topic string) string {
	_, rawQuery, _ := strings.Cut(topic, "?")
	query, _ := url.ParseQuery(rawQuery)
	return query.Get("$rid")
}

func TestUsername(t *testing.T) {
	assert.Equal(t, "0ne00000001/registrations/thermostat-1/api-version=2019-03-31", provisioning.Username("0ne00000001", "thermostat-1"))
}

func TestClient_RegisterPollsUntilAssigned(t *testing.T) {
	transport := new(mocks.MockTransport)
	handler := expectSubscription(transport)

	transport.On("Publish", mock.MatchedBy(func(topic string) bool {
		return strings.HasPrefix(topic, "$dps/registrations/PUT/iotdps-register/?$rid=")
	}), byte(1), false, []byte(`{"registrationId":"thermostat-1","payload":{"modelId":"dtmi:com:example:Thermostat;1"}}`)).
		Run(func(args mock.Arguments) {
			(*handler)(nil, mocks.NewMockMessage("$dps/registrations/res/202/?$rid="+rid(args.String(0)),
				[]byte(`{"operationId":"4.op1","status":"assigning"}`)))
		}).
		Return(nil).Once()

	transport.On("Publish", mock.MatchedBy(func(topic string) bool {
		return strings.HasPrefix(topic, "$dps/registrations/GET/iotdps-get-operationstatus/?$rid=") &&
			strings.HasSuffix(topic, "&operationId=4.op1")
	}), byte(1), false, mock.Anything).
		Run(func(args mock.Arguments) {
			(*handler)(nil, mocks.NewMockMessage("$dps/registrations/res/200/?$rid="+rid(args.String(0)),
				[]byte(`{"operationId":"4.op1","status":"assigned","registrationState":{"registrationId":"thermostat-1","assignedHub":"hub.azure-devices.net","deviceId":"thermostat-1","status":"assigned"}}`)))
		}).
		Return(nil).Once()

	assignment, err := newClient(transport, 5).Register(context.Background())

	require.NoError(t, err)
	assert.Equal(t, &provisioning.Assignment{AssignedHub: "hub.azure-devices.net", DeviceID: "thermostat-1"}, assignment)
	transport.AssertExpectations(t)
}

func TestClient_RegisterRejected(t *testing.T) {
	transport := new(mocks.MockTransport)
	handler := expectSubscription(transport)

	transport.On("Publish", mock.Anything, byte(1), false, mock.Anything).
		Run(func(args mock.Arguments) {
			(*handler)(nil, mocks.NewMockMessage("$dps/registrations/res/401/?$rid="+rid(args.String(0)),
				[]byte(`{"errorCode":401002,"message":"Unauthorized"}`)))
		}).
		Return(nil).Once()

	_, err := newClient(transport, 5).Register(context.Background())

	assert.ErrorIs(t, err, provisioning.ErrRegistrationFailed)
	assert.ErrorContains(t, err, "Unauthorized")
}

func TestClient_RegisterGivesUpAfterMaxAttempts(t *testing.T) {
	transport := new(mocks.MockTransport)
	handler := expectSubscription(transport)

	transport.On("Publish", mock.Anything, byte(1), false, mock.Anything).
		Run(func(args mock.Arguments) {
			(*handler)(nil, mocks.NewMockMessage("$dps/registrations/res/202/?$rid="+rid(args.String(0)),
				[]byte(`{"operationId":"4.op2","status":"assigning"}`)))
		}).
		Return(nil).Times(2)

	_, err := newClient(transport, 2).Register(context.Background())

	assert.ErrorIs(t, err, provisioning.ErrRegistrationFailed)
	transport.AssertExpectations(t)
}

func TestClient_RegisterTimesOut(t *testing.T) {
	transport := new(mocks.MockTransport)
	expectSubscription(transport)
	transport.On("Publish", mock.Anything, byte(1), false, mock.Anything).Return(nil).Once()

	_, err := newClient(transport, 3).Register(context.Background())

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
