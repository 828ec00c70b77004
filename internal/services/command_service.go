package services

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/benmeehan/pnp-device/internal/constants"
	"github.com/benmeehan/pnp-device/internal/pnp"
	"github.com/benmeehan/pnp-device/internal/utils"
	"github.com/benmeehan/pnp-device/pkg/iothub"
)

// CommandService receives direct method calls, runs them on the owning
// component and sends the response back to the hub.
type CommandService struct {
	// Configuration Fields
	workers          int
	maxExecutionTime time.Duration

	// Dependencies
	device *pnp.Device
	client iothub.DeviceClientInterface
	logger zerolog.Logger

	// Internal state management
	pool *utils.WorkerPool

	// Context for cancellation
	ctx    context.Context
	cancel context.CancelFunc
}

// NewCommandService initializes a new CommandService with given parameters.
func NewCommandService(workers int, maxExecutionTime time.Duration, device *pnp.Device, client iothub.DeviceClientInterface, logger zerolog.Logger) *CommandService {
	return &CommandService{
		workers:          workers,
		maxExecutionTime: maxExecutionTime,
		device:           device,
		client:           client,
		logger:           logger,
	}
}

// Start subscribes to direct methods.
func (cs *CommandService) Start() error {
	if cs.ctx != nil {
		return errors.New("command service is already running")
	}

	cs.ctx, cs.cancel = context.WithCancel(context.Background())
	cs.pool = utils.NewWorkerPool(cs.workers)

	ctx, pool := cs.ctx, cs.pool
	handler := func(req iothub.CommandRequest) { cs.dispatch(ctx, pool, req) }
	if err := cs.client.SubscribeToCommands(handler); err != nil {
		cs.logger.Error().Err(err).Msg("Failed to subscribe to commands")
		cs.shutdown()
		return err
	}

	cs.logger.Info().Int("workers", cs.workers).Msg("CommandService started successfully")
	return nil
}

// Stop unsubscribes and waits for running commands to finish.
func (cs *CommandService) Stop() error {
	if cs.ctx == nil {
		return errors.New("command service is not running")
	}

	err := cs.client.UnsubscribeFromCommands()
	if err != nil {
		cs.logger.Error().Err(err).Msg("Failed to unsubscribe from commands")
	}
	cs.shutdown()

	cs.logger.Info().Msg("CommandService stopped successfully")
	return err
}

func (cs *CommandService) shutdown() {
	cs.pool.Shutdown()
	cs.cancel()
	cs.ctx = nil
	cs.cancel = nil
}

// dispatch queues a command for execution.
func (cs *CommandService) dispatch(ctx context.Context, pool *utils.WorkerPool, req iothub.CommandRequest) {
	logger := cs.logger.With().Str("component", req.ComponentName).Str("command", req.CommandName).Str("rid", req.RequestID).Logger()
	logger.Info().Msg("Received command")

	if err := pool.Submit(func() { cs.execute(ctx, req, logger) }); err != nil {
		logger.Warn().Err(err).Msg("Received command but service is stopping, ignoring command")
	}
}

func (cs *CommandService) execute(ctx context.Context, req iothub.CommandRequest, logger zerolog.Logger) {
	ctx, cancel := context.WithTimeout(ctx, cs.maxExecutionTime)
	defer cancel()

	status, body := constants.StatusNotFound, []byte(nil)
	component, err := cs.device.Component(req.ComponentName)
	if err != nil {
		logger.Warn().Err(err).Msg("Command for unknown component")
	} else if handler, ok := component.(pnp.CommandHandler); ok {
		status, body = handler.HandleCommand(ctx, req.CommandName, req.Payload)
	} else {
		logger.Warn().Msg("Component does not accept commands")
	}

	if err := cs.client.SendCommandResponse(ctx, req.RequestID, status, body); err != nil {
		logger.Error().Err(err).Int("status", status).Msg("Failed to send command response")
		return
	}
	logger.Info().Int("status", status).Msg("Command response sent")
}
