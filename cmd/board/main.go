package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/tgienger/clientboard/internal/config"
	"github.com/tgienger/clientboard/internal/db"
	"github.com/tgienger/clientboard/internal/gateway"
	"github.com/tgienger/clientboard/internal/logging"
	"github.com/tgienger/clientboard/internal/models"
	"github.com/tgienger/clientboard/internal/notify"
	"github.com/tgienger/clientboard/internal/synchronizer"
	"github.com/tgienger/clientboard/internal/ui"
)

// Version information set via ldflags
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	fs := pflag.NewFlagSet("board", pflag.ExitOnError)
	config.Flags(fs)
	showVersion := fs.BoolP("version", "v", false, "print version and exit")
	fs.Parse(os.Args[1:])

	if *showVersion {
		fmt.Printf("board %s (commit: %s, built: %s)\n", version, commit, date)
		os.Exit(0)
	}

	if err := run(fs); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(fs *pflag.FlagSet) error {
	cfg, err := config.Load(fs)
	if err != nil {
		return err
	}

	logFile := cfg.LogFile
	if logFile == "" {
		logFile = logging.DefaultFile(cfg.DataDir)
	}
	log, err := logging.New(logging.Options{Level: cfg.LogLevel, File: logFile})
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database
	store, err := db.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer store.Close()

	bus, err := openBus(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer bus.Close()

	instance := models.NewID()
	gw := gateway.New(store, bus, gateway.Options{
		Latency: cfg.Latency,
		Jitter:  cfg.Jitter,
		Origin:  instance,
		Logger:  log,
	})
	sync := synchronizer.New(gw, bus, synchronizer.Options{
		Logger:     log,
		InstanceID: instance,
	})
	log.Info("starting",
		zap.String("version", version),
		zap.String("db", cfg.DBPath),
		zap.String("bus", cfg.Bus),
		zap.String("instance", instance))

	if cfg.Seed {
		if _, err := sync.Seed(ctx); err != nil {
			log.Warn("seeding failed", zap.Error(err))
		}
	}
	if _, err := sync.Restore(ctx); err != nil {
		log.Warn("could not restore session", zap.Error(err))
	}
	if _, err := sync.Poll(ctx); err != nil {
		log.Warn("initial sync failed", zap.Error(err))
	}

	// Create and run the application
	app := ui.NewApp(ctx, sync, ui.Options{PollInterval: cfg.PollInterval, Logger: log})
	defer app.Close()
	p := tea.NewProgram(app, tea.WithAltScreen(), tea.WithContext(ctx))

	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("running application: %w", err)
	}
	sync.Stop()
	return nil
}

func openBus(ctx context.Context, cfg config.Config, log *zap.Logger) (notify.Bus, error) {
	if cfg.Bus != config.BusRedis {
		return notify.NewLocalBus(), nil
	}
	bus, err := notify.NewRedisBus(ctx, notify.RedisOptions{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		Logger:   log,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return bus, nil
}
