package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	dispenser "github.com/gemc/dispenser_go/pkg"
	_ "github.com/gemc/dispenser_go/pkg/hdf5writer"
	"github.com/google/uuid"
	sqlx "github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
)

// Size of the sensitive element grid of every detector when no calibration
// database is configured.
const (
	gridSectors  = 6
	gridElements = 10
)

var dbConn *sqlx.DB
var configuration dispenser.Configuration

var (
	logger         Logger
	VerbosityLevel int
)

func init() {
	opts := &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}
	handlerStdOut := NewHandler(os.Stdout, opts)
	handlerStdErr := slog.NewJSONHandler(os.Stderr, opts)
	logger = Logger{
		InfoLog:  slog.New(handlerStdOut),
		ErrorLog: slog.New(handlerStdErr),
	}
}

func main() {
	configFilename := flag.String("config", "", "Configuration file path (json or yaml)")
	flags := registerOverrides(flag.CommandLine)
	flag.Parse()

	err := run(*configFilename, flags)
	if err != nil {
		logger.Error(err.Error())
	}
	os.Exit(dispenser.ExitCode(err))
}

func run(configFilename string, flags overrides) error {
	var err error
	configuration, err = dispenser.LoadConfiguration(configFilename)
	if err != nil {
		return fmt.Errorf("Error reading configuration file: %w", err)
	}
	flags.apply(&configuration)
	if configuration.Seed == 0 {
		configuration.Seed = time.Now().UnixNano()
	}
	if err := configuration.Validate(); err != nil {
		return fmt.Errorf("Invalid configuration: %w", err)
	}
	dispenser.SetConfiguration(configuration)
	dispenser.SetLogger(logger)

	VerbosityLevel = configuration.Verbosity
	if VerbosityLevel > 0 {
		message := fmt.Sprintf("Reading configuration file: %s", configFilename)
		logger.Info(message, "main")
		printConfiguration(configuration, logger)
	}
	sessionID := uuid.New().String()
	logger.Info(fmt.Sprintf("Session %s, seed %d", sessionID, configuration.Seed), "main")

	if configuration.MetricsAddr != "" {
		registry := prometheus.NewRegistry()
		if err := dispenser.RegisterMetrics(registry); err != nil {
			return fmt.Errorf("Error registering metrics: %w", err)
		}
		go func() {
			if err := dispenser.ServeMetrics(configuration.MetricsAddr, registry); err != nil {
				logger.Error(fmt.Sprintf("Metrics server stopped: %v", err))
			}
		}()
	}

	store, err := openConstantsStore(configuration)
	if err != nil {
		return err
	}
	if dbConn != nil {
		defer dbConn.Close()
	}

	routines, err := dispenser.NewRoutinesMap(configuration.Detectors, store)
	if err != nil {
		return err
	}

	// Outputs are truncated when opened, so the allocation must succeed first.
	rng := rand.New(rand.NewSource(configuration.Seed))
	eventDispenser, err := dispenser.NewEventDispenser(configuration, routines, rng)
	if err != nil {
		return err
	}

	var windower *dispenser.FrameWindower
	if configuration.Stream {
		opts, err := configuration.FrameOptions()
		if err != nil {
			return err
		}
		if windower, err = dispenser.NewFrameWindower(opts); err != nil {
			return err
		}
	}

	streamers, err := openStreamers(configuration, sessionID)
	if err != nil {
		return err
	}
	action := dispenser.NewRunAction(streamers, windower)

	generator := dispenser.UniformHitGenerator{
		Detectors:    routines.Detectors(),
		HitsPerEvent: configuration.HitsPerEvent,
		Sectors:      gridSectors,
		Elements:     gridElements,
		MaxTime:      100,
	}
	engine := dispenser.NewLocalEngine(routines, generator, action, configuration.NumWorkers, configuration.Seed)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	err = eventDispenser.ProcessEvents(ctx, engine)
	closeErr := action.Close(context.Background())
	if err != nil {
		return errors.Join(err, closeErr)
	}
	if closeErr != nil {
		return closeErr
	}

	duration := time.Since(start)
	message := fmt.Sprintf("Total events processed: %d in %d ms", engine.Processed(), duration.Milliseconds())
	logger.Info(message, "main")
	if windower != nil {
		message := fmt.Sprintf("Frames flushed: %d, payloads dropped: %d", windower.LastFrameFlushed(), windower.DroppedPayloads())
		logger.Info(message, "main")
	}
	return nil
}

// openConstantsStore connects to the calibration database selected by
// db_driver. Without one every detector uses unit gain and, in stream mode, a
// sector x element grid translation table.
func openConstantsStore(config dispenser.Configuration) (dispenser.ConstantsStore, error) {
	var err error
	switch config.DBDriver {
	case "mysql":
		dbConn, err = dispenser.ConnectToDatabase(config.User, config.Passwd, config.Host, config.DBName)
		if err != nil {
			return nil, fmt.Errorf("Error connection to database: %w", err)
		}
		return dispenser.NewSQLConstantsStore(dbConn), nil
	case "sqlite":
		dbConn, err = dispenser.OpenSQLiteDatabase(config.DBPath)
		if err != nil {
			return nil, fmt.Errorf("Error connection to database: %w", err)
		}
		return dispenser.NewSQLConstantsStore(dbConn), nil
	case "":
		store := dispenser.NewStaticConstantsStore()
		if config.Stream {
			for detector := range config.Detectors {
				store.SetTranslationTable(detector, dispenser.GridTranslationTable(gridSectors, gridElements))
			}
		}
		return store, nil
	}
	return nil, fmt.Errorf("unknown db_driver %q, expected mysql or sqlite", config.DBDriver)
}

func openStreamers(config dispenser.Configuration, sessionID string) ([]dispenser.Streamer, error) {
	if err := os.MkdirAll(config.OutputDir, 0o755); err != nil {
		return nil, &dispenser.ErrCantOpenOutput{Name: config.OutputDir, Err: err}
	}
	streamers := make([]dispenser.Streamer, 0, len(config.Outputs))
	for _, def := range config.Outputs {
		s, err := dispenser.NewStreamer(dispenser.StreamerOptions{
			Definition:       def,
			Dir:              config.OutputDir,
			SessionID:        sessionID,
			CompressionLevel: config.CompressionLevel,
			RedisAddr:        config.RedisAddr,
		})
		if err != nil {
			for _, opened := range streamers {
				opened.CloseConnection()
			}
			return nil, err
		}
		streamers = append(streamers, s)
	}
	return streamers, nil
}
