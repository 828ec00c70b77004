package mqtt

import (
	"time"

	mqttLib "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

// MQTTTraceMiddleware logs every publish, subscription and received message.
type MQTTTraceMiddleware struct {
	next   MQTTMiddleware
	logger zerolog.Logger
}

// NewMQTTTraceMiddleware creates a trace middleware.
func NewMQTTTraceMiddleware(logger zerolog.Logger) *MQTTTraceMiddleware {
	return &MQTTTraceMiddleware{logger: logger.With().Str("middleware", "trace").Logger()}
}

// SetNext sets the next middleware in the chain.
func (m *MQTTTraceMiddleware) SetNext(next MQTTMiddleware) {
	m.next = next
}

func (m *MQTTTraceMiddleware) Publish(topic string, qos byte, retained bool, payload interface{}) error {
	start := time.Now()
	err := m.next.Publish(topic, qos, retained, payload)

	event := m.logger.Debug()
	if err != nil {
		event = m.logger.Error().Err(err)
	}
	event.Str("topic", topic).Uint8("qos", qos).Int("size", payloadSize(payload)).
		Dur("elapsed", time.Since(start)).Msg("MQTT publish")
	return err
}

func (m *MQTTTraceMiddleware) Subscribe(topic string, qos byte, callback mqttLib.MessageHandler) error {
	traced := func(client mqttLib.Client, msg mqttLib.Message) {
		m.logger.Debug().Str("topic", msg.Topic()).Int("size", len(msg.Payload())).Msg("MQTT message received")
		callback(client, msg)
	}

	err := m.next.Subscribe(topic, qos, traced)
	if err != nil {
		m.logger.Error().Err(err).Str("topic", topic).Msg("MQTT subscribe failed")
		return err
	}
	m.logger.Debug().Str("topic", topic).Uint8("qos", qos).Msg("MQTT subscribed")
	return nil
}

func (m *MQTTTraceMiddleware) Unsubscribe(topics ...string) error {
	err := m.next.Unsubscribe(topics...)
	if err != nil {
		m.logger.Error().Err(err).Strs("topics", topics).Msg("MQTT unsubscribe failed")
		return err
	}
	m.logger.Debug().Strs("topics", topics).Msg("MQTT unsubscribed")
	return nil
}

func payloadSize(payload interface{}) int {
	switch p := payload.(type) {
	case []byte:
		return len(p)
	case string:
		return len(p)
	default:
		return -1
	}
}
