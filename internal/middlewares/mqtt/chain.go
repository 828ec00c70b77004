package mqtt

import (
	"github.com/benmeehan/pnp-device/pkg/mqtt"
	mqttLib "github.com/eclipse/paho.mqtt.golang"
)

// ChainedMQTTClient wraps an MQTT client with a middleware chain. It is the
// transport handed to the IoT Hub and provisioning clients.
type ChainedMQTTClient struct {
	middlewares []MQTTMiddleware
	head        MQTTMiddleware
}

// NewChainedMQTTClient creates a new chained MQTT client.
func NewChainedMQTTClient(mqttClient mqtt.MQTTClient, middlewares []MQTTMiddleware) *ChainedMQTTClient {
	var head MQTTMiddleware = &directMQTTClient{mqttClient: mqttClient}
	// Chain middlewares
	for i := len(middlewares) - 1; i >= 0; i-- {
		middlewares[i].SetNext(head)
		head = middlewares[i]
	}
	return &ChainedMQTTClient{
		middlewares: middlewares,
		head:        head,
	}
}

// Publish sends a message through the middleware chain.
func (c *ChainedMQTTClient) Publish(topic string, qos byte, retained bool, payload interface{}) error {
	return c.head.Publish(topic, qos, retained, payload)
}

// Subscribe subscribes through the middleware chain.
func (c *ChainedMQTTClient) Subscribe(topic string, qos byte, callback mqttLib.MessageHandler) error {
	return c.head.Subscribe(topic, qos, callback)
}

// Unsubscribe unsubscribes through the middleware chain.
func (c *ChainedMQTTClient) Unsubscribe(topics ...string) error {
	return c.head.Unsubscribe(topics...)
}

// Len returns the number of middlewares in the chain.
func (c *ChainedMQTTClient) Len() int {
	return len(c.middlewares)
}

// directMQTTClient terminates the chain and delegates to the MQTT client.
type directMQTTClient struct {
	mqttClient mqtt.MQTTClient
}

func (d *directMQTTClient) SetNext(_ MQTTMiddleware) {}

func (d *directMQTTClient) Publish(topic string, qos byte, retained bool, payload interface{}) error {
	token := d.mqttClient.Publish(topic, qos, retained, payload)
	token.Wait()
	return token.Error()
}

func (d *directMQTTClient) Subscribe(topic string, qos byte, callback mqttLib.MessageHandler) error {
	token := d.mqttClient.Subscribe(topic, qos, callback)
	token.Wait()
	return token.Error()
}

func (d *directMQTTClient) Unsubscribe(topics ...string) error {
	token := d.mqttClient.Unsubscribe(topics...)
	token.Wait()
	return token.Error()
}
