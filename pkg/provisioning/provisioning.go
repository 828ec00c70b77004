// Package provisioning registers a device with the Azure Device Provisioning
// Service over MQTT using a symmetric key.
package provisioning

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	MQTT "github.com/eclipse/paho.mqtt.golang"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/rs/zerolog"

	"github.com/benmeehan/pnp-device/pkg/sas"
)

const (
	// DefaultEndpoint is the global DPS device endpoint.
	DefaultEndpoint = "global.azure-devices-provisioning.net"
	// APIVersion is sent in the MQTT username.
	APIVersion = "2019-03-31"

	responseFilter = "$dps/registrations/res/#"
	responsePrefix = "$dps/registrations/res/"
	registerTopic  = "$dps/registrations/PUT/iotdps-register/?$rid=%s"
	statusTopic    = "$dps/registrations/GET/iotdps-get-operationstatus/?$rid=%s&operationId=%s"

	statusAssigned  = "assigned"
	statusAssigning = "assigning"

	// keyName identifies registration tokens to DPS
	keyName = "registration"
)

// ErrRegistrationFailed is returned when DPS rejects or fails the registration.
var ErrRegistrationFailed = errors.New("device registration failed")

// Transport is the MQTT surface used by the provisioning client.
type Transport interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) error
	Subscribe(topic string, qos byte, callback MQTT.MessageHandler) error
	Unsubscribe(topics ...string) error
}

// Assignment is the IoT Hub a device was assigned to.
type Assignment struct {
	AssignedHub string
	DeviceID    string
}

type registrationRequest struct {
	RegistrationID string          `json:"registrationId"`
	Payload        *requestPayload `json:"payload,omitempty"`
}

type requestPayload struct {
	ModelID string `json:"modelId"`
}

type operationResponse struct {
	OperationID       string             `json:"operationId"`
	Status            string             `json:"status"`
	RegistrationState *registrationState `json:"registrationState,omitempty"`
	ErrorCode         int                `json:"errorCode,omitempty"`
	Message           string             `json:"message,omitempty"`
}

type registrationState struct {
	RegistrationID string `json:"registrationId"`
	AssignedHub    string `json:"assignedHub"`
	DeviceID       string `json:"deviceId"`
	Status         string `json:"status"`
	Substatus      string `json:"substatus,omitempty"`
	ErrorCode      int    `json:"errorCode,omitempty"`
	ErrorMessage   string `json:"errorMessage,omitempty"`
}

type response struct {
	status     int
	requestID  string
	retryAfter time.Duration
	body       []byte
}

// Client performs a single DPS registration.
type Client struct {
	idScope         string
	registrationID  string
	modelID         string
	qos             byte
	maxAttempts     int
	baseDelay       time.Duration
	maxDelay        time.Duration
	responseTimeout time.Duration

	transport Transport
	logger    zerolog.Logger

	pending cmap.ConcurrentMap[string, chan response]
}

// NewClient creates a provisioning client. baseDelay and maxDelay bound the
// wait between status polls when DPS does not send a retry-after hint.
func NewClient(
	idScope string,
	registrationID string,
	modelID string,
	qos int,
	maxAttempts int,
	baseDelay time.Duration,
	maxDelay time.Duration,
	responseTimeout time.Duration,
	transport Transport,
	logger zerolog.Logger,
) *Client {
	return &Client{
		idScope:         idScope,
		registrationID:  registrationID,
		modelID:         modelID,
		qos:             byte(qos),
		maxAttempts:     maxAttempts,
		baseDelay:       baseDelay,
		maxDelay:        maxDelay,
		responseTimeout: responseTimeout,
		transport:       transport,
		logger:          logger,
		pending:         cmap.New[chan response](),
	}
}

// Username returns the MQTT username for a registration.
func Username(idScope, registrationID string) string {
	return fmt.Sprintf("%s/registrations/%s/api-version=%s", idScope, registrationID, APIVersion)
}

// Credentials returns a provider producing the DPS username and SAS token.
func Credentials(idScope, registrationID string, signer *sas.Signer, lifetime time.Duration, logger zerolog.Logger) func() (string, string) {
	username := Username(idScope, registrationID)
	resource := idScope + "/registrations/" + registrationID
	return func() (string, string) {
		token, err := signer.Token(resource, time.Now().Add(lifetime), keyName)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to create provisioning SAS token")
			return username, ""
		}
		return username, token
	}
}

// Register sends the registration request and polls its operation status
// until the device is assigned, the registration fails, or the attempts run out.
func (c *Client) Register(ctx context.Context) (*Assignment, error) {
	if err := c.transport.Subscribe(responseFilter, c.qos, c.handleResponse); err != nil {
		return nil, fmt.Errorf("failed to subscribe to provisioning responses: %w", err)
	}
	defer func() {
		if err := c.transport.Unsubscribe(responseFilter); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to unsubscribe from provisioning responses")
		}
	}()

	body := registrationRequest{RegistrationID: c.registrationID}
	if c.modelID != "" {
		body.Payload = &requestPayload{ModelID: c.modelID}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize registration request: %w", err)
	}

	c.logger.Info().Str("registration_id", c.registrationID).Str("id_scope", c.idScope).Msg("Registering device with DPS")

	rid := uuid.NewString()
	resp, err := c.request(ctx, fmt.Sprintf(registerTopic, rid), rid, payload)
	if err != nil {
		return nil, err
	}

	poll := c.newBackOff()
	for attempt := 1; ; attempt++ {
		op, err := decodeOperation(resp)
		if err != nil {
			return nil, err
		}

		if op.Status == statusAssigned {
			state := op.RegistrationState
			if state == nil || state.AssignedHub == "" || state.DeviceID == "" {
				return nil, fmt.Errorf("%w: assigned without hub or device id", ErrRegistrationFailed)
			}
			c.logger.Info().Str("assigned_hub", state.AssignedHub).Str("device_id", state.DeviceID).Int("attempt", attempt).
				Msg("Device provisioned successfully")
			return &Assignment{AssignedHub: state.AssignedHub, DeviceID: state.DeviceID}, nil
		}
		if op.Status != statusAssigning && resp.status != 429 && op.Status != "unassigned" {
			return nil, fmt.Errorf("%w: status %q: %s", ErrRegistrationFailed, op.Status, operationError(op))
		}
		if attempt >= c.maxAttempts {
			return nil, fmt.Errorf("%w: still %q after %d attempts", ErrRegistrationFailed, op.Status, attempt)
		}

		delay := resp.retryAfter
		if delay <= 0 {
			delay = poll.NextBackOff()
		}
		c.logger.Debug().Str("operation_id", op.OperationID).Dur("delay", delay).Int("attempt", attempt).Msg("Registration pending, polling status")

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, fmt.Errorf("registration cancelled: %w", ctx.Err())
		}

		rid = uuid.NewString()
		if op.OperationID == "" {
			// throttled before an operation was created, so register again
			resp, err = c.request(ctx, fmt.Sprintf(registerTopic, rid), rid, payload)
		} else {
			resp, err = c.request(ctx, fmt.Sprintf(statusTopic, rid, url.QueryEscape(op.OperationID)), rid, []byte{})
		}
		if err != nil {
			return nil, err
		}
	}
}

// newBackOff paces status polls when DPS sends no retry-after hint. Each
// interval doubles from baseDelay up to maxDelay, randomized by half either way.
func (c *Client) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.baseDelay
	b.MaxInterval = c.maxDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0.5
	// attempts are bounded by maxAttempts instead
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

func (c *Client) request(ctx context.Context, topic, rid string, payload []byte) (response, error) {
	ch := make(chan response, 1)
	c.pending.Set(rid, ch)
	defer c.pending.Remove(rid)

	if err := c.transport.Publish(topic, c.qos, false, payload); err != nil {
		return response{}, fmt.Errorf("failed to publish provisioning request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.responseTimeout)
	defer cancel()

	select {
	case resp := <-ch:
		return resp, nil
	case <-ctx.Done():
		return response{}, fmt.Errorf("no response to provisioning request %s: %w", rid, ctx.Err())
	}
}

func (c *Client) handleResponse(_ MQTT.Client, msg MQTT.Message) {
	resp, err := parseResponseTopic(msg.Topic())
	if err != nil {
		c.logger.Error().Err(err).Msg("Ignoring malformed provisioning response")
		return
	}
	resp.body = msg.Payload()

	ch, ok := c.pending.Pop(resp.requestID)
	if !ok {
		c.logger.Warn().Str("rid", resp.requestID).Msg("Provisioning response for unknown request")
		return
	}
	ch <- resp
}

func decodeOperation(resp response) (operationResponse, error) {
	var op operationResponse
	if len(resp.body) > 0 {
		if err := json.Unmarshal(resp.body, &op); err != nil {
			return op, fmt.Errorf("failed to parse provisioning response: %w", err)
		}
	}
	if resp.status >= 300 && resp.status != 429 {
		return op, fmt.Errorf("%w: status %d: %s", ErrRegistrationFailed, resp.status, operationError(op))
	}
	return op, nil
}

func operationError(op operationResponse) string {
	switch {
	case op.RegistrationState != nil && op.RegistrationState.ErrorMessage != "":
		return op.RegistrationState.ErrorMessage
	case op.Message != "":
		return op.Message
	default:
		return "no error message"
	}
}

// parseResponseTopic parses "$dps/registrations/res/{status}/?$rid={rid}[&retry-after={s}]".
func parseResponseTopic(topic string) (response, error) {
	rest, ok := strings.CutPrefix(topic, responsePrefix)
	if !ok {
		return response{}, fmt.Errorf("not a provisioning response topic: %s", topic)
	}
	statusText, rawQuery, _ := strings.Cut(rest, "/?")
	status, err := strconv.Atoi(statusText)
	if err != nil {
		return response{}, fmt.Errorf("invalid status in provisioning topic %s: %w", topic, err)
	}
	query, err := url.ParseQuery(rawQuery)
	if err != nil {
		return response{}, fmt.Errorf("invalid query in provisioning topic %s: %w", topic, err)
	}

	resp := response{status: status, requestID: query.Get("$rid")}
	if resp.requestID == "" {
		return response{}, fmt.Errorf("provisioning topic has no request id: %s", topic)
	}
	if v := query.Get("retry-after"); v != "" {
		if seconds, err := strconv.Atoi(v); err == nil && seconds > 0 {
			resp.retryAfter = time.Duration(seconds) * time.Second
		}
	}
	return resp, nil
}
