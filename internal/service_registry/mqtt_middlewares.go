package service_registry

import (
	"github.com/rs/zerolog"

	"github.com/benmeehan/pnp-device/internal/constants"
	mqtt_middleware "github.com/benmeehan/pnp-device/internal/middlewares/mqtt"
	"github.com/benmeehan/pnp-device/internal/utils"
	"github.com/benmeehan/pnp-device/pkg/mqtt"
)

// InitializeMiddlewares sets up the middleware chain in front of the registry's MQTT client.
func (sr *ServiceRegistry) InitializeMiddlewares(config *utils.Config) *mqtt_middleware.ChainedMQTTClient {
	return BuildMiddlewareChain(config, sr.mqttClient, sr.Logger)
}

// BuildMiddlewareChain wraps mqttClient with the middlewares enabled in config.
func BuildMiddlewareChain(config *utils.Config, mqttClient mqtt.MQTTClient, logger zerolog.Logger) *mqtt_middleware.ChainedMQTTClient {
	var middlewares []mqtt_middleware.MQTTMiddleware

	// Ordered middleware definitions
	middlewaresInOrder := []struct {
		name        string
		enabled     bool
		constructor func() mqtt_middleware.MQTTMiddleware
	}{
		{
			name:    constants.TRACE_MIDDLEWARE,
			enabled: config.Middlewares.Trace.Enabled,
			constructor: func() mqtt_middleware.MQTTMiddleware {
				return mqtt_middleware.NewMQTTTraceMiddleware(logger)
			},
		},
	}

	// Initialize middlewares in order
	for _, mw := range middlewaresInOrder {
		if mw.enabled {
			middlewares = append(middlewares, mw.constructor())
			logger.Info().Str("middleware", mw.name).Msg("Middleware initialized")
		} else {
			logger.Debug().Str("middleware", mw.name).Msg("Middleware is disabled, skipping")
		}
	}

	// Create and return chained MQTT client
	chainedClient := mqtt_middleware.NewChainedMQTTClient(mqttClient, middlewares)
	logger.Info().Int("middleware_count", len(middlewares)).Msg("Middleware chain initialized")
	return chainedClient
}
