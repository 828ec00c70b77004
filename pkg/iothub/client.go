package iothub

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	MQTT "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/rs/zerolog"

	"github.com/benmeehan/pnp-device/pkg/properties"
	"github.com/benmeehan/pnp-device/pkg/sas"
)

// ErrNotOpen is returned by twin requests made before Open.
var ErrNotOpen = errors.New("device client is not open")

// ErrClosed is returned by twin requests still waiting when the client closes.
var ErrClosed = errors.New("device client closed")

// Transport is the MQTT surface used by the device client. Publish and
// Subscribe block until the broker has acknowledged them.
type Transport interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) error
	Subscribe(topic string, qos byte, callback MQTT.MessageHandler) error
	Unsubscribe(topics ...string) error
}

// CommandRequest is a direct method invocation received from the hub.
type CommandRequest struct {
	// ComponentName is empty for commands on the root component.
	ComponentName string
	CommandName   string
	RequestID     string
	Payload       []byte
}

// PropertiesHandler receives twin documents. Full twins arrive as
// properties.PayloadAll and desired patches as properties.PayloadWritableUpdates.
type PropertiesHandler func(payloadType properties.PayloadType, payload []byte)

// CommandHandler receives direct method invocations. The handler answers
// later with SendCommandResponse.
type CommandHandler func(req CommandRequest)

// DeviceClientInterface is the device side of IoT Hub used by the services.
type DeviceClientInterface interface {
	SendTelemetry(ctx context.Context, componentName string, payload []byte) error
	SendProperties(ctx context.Context, payload []byte) (int, error)
	GetProperties(ctx context.Context) ([]byte, error)
	SubscribeToProperties(handler PropertiesHandler) error
	UnsubscribeFromProperties() error
	SubscribeToCommands(handler CommandHandler) error
	UnsubscribeFromCommands() error
	SendCommandResponse(ctx context.Context, requestID string, status int, payload []byte) error
}

// DeviceClient speaks the IoT Hub MQTT device protocol over a Transport.
type DeviceClient struct {
	deviceID        string
	qos             byte
	responseTimeout time.Duration

	transport Transport
	logger    zerolog.Logger

	// twin requests waiting for their $iothub/twin/res message, keyed by $rid
	pending cmap.ConcurrentMap[string, chan twinResponse]

	mu   sync.Mutex
	open bool
}

// NewDeviceClient creates a DeviceClient for deviceID.
func NewDeviceClient(deviceID string, qos int, responseTimeout time.Duration, transport Transport, logger zerolog.Logger) *DeviceClient {
	return &DeviceClient{
		deviceID:        deviceID,
		qos:             byte(qos),
		responseTimeout: responseTimeout,
		transport:       transport,
		logger:          logger,
		pending:         cmap.New[chan twinResponse](),
	}
}

// Credentials returns a provider producing the username and a fresh SAS
// token each time the MQTT connection is (re)established.
func Credentials(hostName, deviceID, modelID string, signer *sas.Signer, lifetime time.Duration, logger zerolog.Logger) func() (string, string) {
	username := Username(hostName, deviceID, modelID)
	resource := ResourceURI(hostName, deviceID)
	return func() (string, string) {
		token, err := signer.Token(resource, time.Now().Add(lifetime), "")
		if err != nil {
			logger.Error().Err(err).Msg("Failed to create SAS token")
			return username, ""
		}
		return username, token
	}
}

// Open subscribes to twin responses. It must be called before twin requests.
func (c *DeviceClient) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.open {
		return errors.New("device client is already open")
	}
	if err := c.transport.Subscribe(twinResponseFilter, c.qos, c.handleTwinResponse); err != nil {
		return fmt.Errorf("failed to subscribe to twin responses: %w", err)
	}
	c.open = true

	c.logger.Info().Str("device_id", c.deviceID).Msg("Device client opened")
	return nil
}

// Close unsubscribes from twin responses and fails pending requests.
func (c *DeviceClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.open {
		return ErrNotOpen
	}
	c.open = false
	for _, rid := range c.pending.Keys() {
		if ch, ok := c.pending.Pop(rid); ok {
			ch <- twinResponse{requestID: rid, err: ErrClosed}
		}
	}

	if err := c.transport.Unsubscribe(twinResponseFilter); err != nil {
		return fmt.Errorf("failed to unsubscribe from twin responses: %w", err)
	}
	return nil
}

// SendTelemetry publishes a telemetry message, tagged with componentName when set.
func (c *DeviceClient) SendTelemetry(ctx context.Context, componentName string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	topic := TelemetryTopic(c.deviceID, componentName)
	if err := c.transport.Publish(topic, c.qos, false, payload); err != nil {
		return fmt.Errorf("failed to send telemetry: %w", err)
	}
	return nil
}

// SendProperties patches the reported properties and returns the new twin version.
func (c *DeviceClient) SendProperties(ctx context.Context, payload []byte) (int, error) {
	rid := uuid.NewString()
	resp, err := c.twinRequest(ctx, fmt.Sprintf(twinReportedTopic, rid), rid, payload)
	if err != nil {
		return 0, fmt.Errorf("failed to send reported properties: %w", err)
	}
	return resp.version, nil
}

// GetProperties returns the full twin document.
func (c *DeviceClient) GetProperties(ctx context.Context) ([]byte, error) {
	rid := uuid.NewString()
	resp, err := c.twinRequest(ctx, fmt.Sprintf(twinGetTopic, rid), rid, []byte{})
	if err != nil {
		return nil, fmt.Errorf("failed to get twin: %w", err)
	}
	return resp.body, nil
}

// SubscribeToProperties delivers every desired properties patch to handler.
func (c *DeviceClient) SubscribeToProperties(handler PropertiesHandler) error {
	return c.transport.Subscribe(twinDesiredFilter, c.qos, func(_ MQTT.Client, msg MQTT.Message) {
		c.logger.Debug().Str("topic", msg.Topic()).Msg("Received desired properties patch")
		handler(properties.PayloadWritableUpdates, msg.Payload())
	})
}

// UnsubscribeFromProperties stops desired properties delivery.
func (c *DeviceClient) UnsubscribeFromProperties() error {
	return c.transport.Unsubscribe(twinDesiredFilter)
}

// SubscribeToCommands delivers every direct method invocation to handler.
func (c *DeviceClient) SubscribeToCommands(handler CommandHandler) error {
	return c.transport.Subscribe(methodsFilter, c.qos, func(_ MQTT.Client, msg MQTT.Message) {
		req, err := parseMethodTopic(msg.Topic())
		if err != nil {
			c.logger.Error().Err(err).Msg("Ignoring malformed method request")
			return
		}
		req.Payload = msg.Payload()
		handler(req)
	})
}

// UnsubscribeFromCommands stops direct method delivery.
func (c *DeviceClient) UnsubscribeFromCommands() error {
	return c.transport.Unsubscribe(methodsFilter)
}

// SendCommandResponse answers the method call identified by requestID. An
// empty payload is sent as {}.
func (c *DeviceClient) SendCommandResponse(ctx context.Context, requestID string, status int, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	topic := fmt.Sprintf(methodResponseTopic, status, requestID)
	if err := c.transport.Publish(topic, c.qos, false, payload); err != nil {
		return fmt.Errorf("failed to send command response: %w", err)
	}
	return nil
}

func (c *DeviceClient) twinRequest(ctx context.Context, topic, rid string, payload []byte) (twinResponse, error) {
	ch := make(chan twinResponse, 1)

	c.mu.Lock()
	if !c.open {
		c.mu.Unlock()
		return twinResponse{}, ErrNotOpen
	}
	c.pending.Set(rid, ch)
	c.mu.Unlock()
	defer c.pending.Remove(rid)

	if err := c.transport.Publish(topic, c.qos, false, payload); err != nil {
		return twinResponse{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.responseTimeout)
	defer cancel()

	select {
	case resp := <-ch:
		if resp.err != nil {
			return resp, fmt.Errorf("twin request %s: %w", rid, resp.err)
		}
		if resp.status < 200 || resp.status >= 300 {
			return resp, fmt.Errorf("twin request %s failed with status %d: %s", rid, resp.status, string(resp.body))
		}
		return resp, nil
	case <-ctx.Done():
		return twinResponse{}, fmt.Errorf("no response to twin request %s: %w", rid, ctx.Err())
	}
}

func (c *DeviceClient) handleTwinResponse(_ MQTT.Client, msg MQTT.Message) {
	resp, err := parseTwinResponseTopic(msg.Topic())
	if err != nil {
		c.logger.Error().Err(err).Msg("Ignoring malformed twin response")
		return
	}
	resp.body = msg.Payload()

	ch, ok := c.pending.Pop(resp.requestID)
	if !ok {
		c.logger.Warn().Str("rid", resp.requestID).Int("status", resp.status).Msg("Twin response for unknown request")
		return
	}
	ch <- resp
}
