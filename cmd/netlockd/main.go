package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/example/netlock/internal/config"
	"github.com/example/netlock/internal/executor"
	"github.com/example/netlock/internal/logging"
	"github.com/example/netlock/internal/persistence/sqlite"
	"github.com/example/netlock/internal/schedule"
	"github.com/example/netlock/internal/seed"
)

func main() {
	if err := run(); err != nil {
		logger := logging.NewDefault()
		logger.Error().Err(err).Msg("daemon failed")
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := logging.New(os.Stderr, cfg.LogLevel, logging.Format(cfg.LogFormat))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logging.ContextWithLogger(ctx, logger)

	store, err := sqlite.Open(cfg.SQLiteDSN)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			logger.Error().Err(cerr).Msg("failed to close store")
		}
	}()
	if err := store.Migrate(ctx); err != nil {
		return err
	}

	idGenerator := uuid.NewString
	directory := &staticDirectory{}
	if cfg.SeedPath != "" {
		mode, err := seed.ParseMode(cfg.SeedMode)
		if err != nil {
			return err
		}
		importer := seed.NewImporter(store, logger, idGenerator, nil)
		importer.OnSync(directory.load)
		if err := importer.SyncFile(ctx, cfg.SeedPath, mode); err != nil {
			return err
		}
		if cfg.SeedWatch {
			go func() {
				if err := importer.Watch(ctx, cfg.SeedPath, mode); err != nil && ctx.Err() == nil {
					logger.Error().Err(err).Msg("seed watcher stopped")
				}
			}()
		}
	}

	exec, err := executor.New(executor.Config{
		Store:        store,
		Controller:   &loggingController{logger: logger},
		Directory:    directory,
		Logger:       logger,
		Interval:     cfg.ExecutorInterval,
		DispatchRate: cfg.DispatchRate,
	})
	if err != nil {
		return err
	}
	if err := exec.EvaluateOnce(ctx); err != nil {
		logger.Error().Err(err).Msg("initial evaluation failed")
	}
	if err := exec.Start(ctx); err != nil {
		return err
	}
	defer exec.Stop()

	logger.Info().Str("dsn", cfg.SQLiteDSN).Msg("netlockd running")
	<-ctx.Done()
	return nil
}

// staticDirectory serves the device inventory declared in the seed document,
// refreshed on every document sync. Device CRUD lives outside this daemon; a
// richer deployment would swap in a directory backed by the network
// controller.
type staticDirectory struct {
	mu      sync.RWMutex
	devices []schedule.DeviceRef
}

func (d *staticDirectory) load(doc schedule.Document) {
	devices := make([]schedule.DeviceRef, 0, len(doc.Devices))
	for _, record := range doc.Devices {
		devices = append(devices, record.DeviceRef())
	}
	d.mu.Lock()
	d.devices = devices
	d.mu.Unlock()
}

func (d *staticDirectory) Devices(_ context.Context) ([]schedule.DeviceRef, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]schedule.DeviceRef(nil), d.devices...), nil
}

// loggingController records the actions the executor would send to hardware.
// Actual device control lives in the network controller integration.
type loggingController struct {
	logger zerolog.Logger
}

func (c *loggingController) Apply(_ context.Context, device schedule.DeviceRef, action schedule.Action) error {
	c.logger.Info().
		Str("device", device.MAC).
		Str("action", string(action)).
		Msg("lock state transition")
	return nil
}
