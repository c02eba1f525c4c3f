package main

import (
	"context"

	"github.com/danmuck/matterctl/internal/config"
	"github.com/danmuck/matterctl/internal/device"
	"github.com/danmuck/matterctl/internal/logging"
	"github.com/danmuck/matterctl/internal/publish"
	"github.com/danmuck/matterctl/internal/shell"
)

const defaultConfigPath = "matterctl.toml"

type publisher interface {
	device.Publisher
	Close(ctx context.Context) error
}

// runtime is the wired controller plus whatever must be closed after it.
type runtime struct {
	cfg        config.Config
	controller *device.Controller
	publisher  publisher
}

func loadRuntime(ctx context.Context, path string) (*runtime, error) {
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, err
	}
	return newRuntime(ctx, cfg)
}

func newRuntime(ctx context.Context, cfg config.Config) (*runtime, error) {
	logger := logging.New("matterctl")

	var pub publisher = publish.Nop{}
	if cfg.MQTT.Enabled() {
		m, err := publish.NewMQTT(ctx, config.PublishConfig(cfg.MQTT), logger)
		if err != nil {
			return nil, err
		}
		pub = m
	}

	exec := shell.NewExecutor(config.Spawner(cfg.Shell), cfg.Shell.Executor, shell.WithLogger(logger))
	controller := device.NewController(exec, cfg.Device,
		device.WithPublisher(pub),
		device.WithLogger(logger),
	)
	return &runtime{cfg: cfg, controller: controller, publisher: pub}, nil
}

func (r *runtime) Close(ctx context.Context) {
	if err := r.publisher.Close(ctx); err != nil {
		logger := logging.New("matterctl")
		logger.Warn().Err(err).Msg("matterctl runtime close failed")
	}
}
