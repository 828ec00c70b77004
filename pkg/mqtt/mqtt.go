package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/benmeehan/pnp-device/pkg/file"
)

// MQTTClient defines the interface for an MQTT client.
type MQTTClient interface {
	Connect() mqtt.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Unsubscribe(topics ...string) mqtt.Token
	Disconnect(quiesce uint)
}

// CredentialsProvider returns the username and password used for every
// connection attempt, so short lived tokens are refreshed on reconnect.
type CredentialsProvider func() (username string, password string)

// ConnectOptions configures MqttService.Initialize.
type ConnectOptions struct {
	Broker   string // e.g. ssl://myhub.azure-devices.net:8883
	ClientID string
	// CACertPath is a PEM bundle of trusted roots. The system pool is used when empty.
	CACertPath     string
	Credentials    CredentialsProvider
	KeepAlive      time.Duration
	ConnectTimeout time.Duration
	// AutoReconnect is disabled for short lived connections such as provisioning.
	AutoReconnect bool
}

// MqttService provides methods for MQTT operations.
type MqttService struct {
	client     MQTTClient
	fileClient file.FileOperations
	logger     zerolog.Logger
}

// NewMqttService creates a new MqttService instance.
func NewMqttService(fileClient file.FileOperations, logger zerolog.Logger) *MqttService {
	return &MqttService{
		fileClient: fileClient,
		logger:     logger,
	}
}

// Initialize sets up the MQTT client with TLS and credentials and starts the connection.
func (s *MqttService) Initialize(opts ConnectOptions) error {
	if opts.Broker == "" || opts.ClientID == "" {
		return errors.New("broker and client id are required")
	}

	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
	if opts.CACertPath != "" {
		caCert, err := s.fileClient.ReadFileRaw(opts.CACertPath)
		if err != nil {
			return fmt.Errorf("failed to read CA certificate: %w", err)
		}

		// Create a CA certificate pool and append the CA certificate to it
		caCertPool := x509.NewCertPool()
		if !caCertPool.AppendCertsFromPEM(caCert) {
			return fmt.Errorf("failed to append CA certificate")
		}
		tlsConfig.RootCAs = caCertPool
	}

	clientOpts := mqtt.NewClientOptions()
	clientOpts.AddBroker(opts.Broker)
	clientOpts.SetClientID(opts.ClientID)
	clientOpts.SetTLSConfig(tlsConfig)
	clientOpts.SetProtocolVersion(4)
	clientOpts.SetCleanSession(true)
	clientOpts.SetAutoReconnect(opts.AutoReconnect)
	clientOpts.SetOrderMatters(false)
	if opts.KeepAlive > 0 {
		clientOpts.SetKeepAlive(opts.KeepAlive)
	}
	if opts.ConnectTimeout > 0 {
		clientOpts.SetConnectTimeout(opts.ConnectTimeout)
	}
	if opts.Credentials != nil {
		clientOpts.SetCredentialsProvider(mqtt.CredentialsProvider(opts.Credentials))
	}
	clientOpts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		s.logger.Warn().Err(err).Str("broker", opts.Broker).Msg("MQTT connection lost")
	})
	clientOpts.SetReconnectingHandler(func(_ mqtt.Client, _ *mqtt.ClientOptions) {
		s.logger.Info().Str("broker", opts.Broker).Msg("Reconnecting to MQTT broker")
	})

	s.client = mqtt.NewClient(clientOpts)

	token := s.Connect()
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to connect to %s: %w", opts.Broker, token.Error())
	}

	s.logger.Info().Str("broker", opts.Broker).Str("client_id", opts.ClientID).Msg("Connected to MQTT broker")
	return nil
}

// Connect connects to the MQTT broker.
func (s *MqttService) Connect() mqtt.Token {
	return s.client.Connect()
}

// Publish sends a message to the specified topic.
func (s *MqttService) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	return s.client.Publish(topic, qos, retained, payload)
}

// Subscribe subscribes to the specified topic with a message handler.
func (s *MqttService) Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token {
	return s.client.Subscribe(topic, qos, callback)
}

// Unsubscribe unsubscribes from the specified topics.
func (s *MqttService) Unsubscribe(topics ...string) mqtt.Token {
	return s.client.Unsubscribe(topics...)
}

// Disconnect gracefully disconnects the MQTT client.
func (s *MqttService) Disconnect(quiesce uint) {
	if s.client == nil {
		return
	}
	s.client.Disconnect(quiesce)
}
