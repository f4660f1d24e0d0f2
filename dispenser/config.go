package main

import (
	"flag"
	"fmt"

	dispenser "github.com/gemc/dispenser_go/pkg"
)

// overrides holds the command line options that take precedence over the
// configuration file.
type overrides struct {
	fs           *flag.FlagSet
	nEvents      *int
	runNumber    *int
	runWeights   *string
	nEventBuffer *int
	variation    *string
	stream       *bool
	seed         *int64
	workers      *int
	metrics      *string
}

func registerOverrides(fs *flag.FlagSet) overrides {
	return overrides{
		fs:           fs,
		nEvents:      fs.Int("n", -1, "Number of events to process"),
		runNumber:    fs.Int("run", -1, "Run number used when no run weights are given"),
		runWeights:   fs.String("run_weights", "", "Run weights file"),
		nEventBuffer: fs.Int("n_event_buffer", 0, "Maximum number of events per engine call"),
		variation:    fs.String("variation", "", "Calibration variation"),
		stream:       fs.Bool("stream", false, "Window digitized hits into frames"),
		seed:         fs.Int64("seed", 0, "Random seed, 0 derives one from the clock"),
		workers:      fs.Int("workers", 0, "Number of engine workers"),
		metrics:      fs.String("metrics", "", "Address to expose prometheus metrics on"),
	}
}

func (o overrides) apply(config *dispenser.Configuration) {
	if *o.nEvents >= 0 {
		config.NEvents = *o.nEvents
	}
	if *o.runNumber >= 0 {
		config.RunNumber = *o.runNumber
	}
	if *o.runWeights != "" {
		config.RunWeights = *o.runWeights
	}
	if *o.nEventBuffer > 0 {
		config.NEventBuffer = *o.nEventBuffer
	}
	if *o.variation != "" {
		config.Variation = *o.variation
	}
	o.fs.Visit(func(f *flag.Flag) {
		if f.Name == "stream" {
			config.Stream = *o.stream
		}
	})
	if *o.seed != 0 {
		config.Seed = *o.seed
	}
	if *o.workers > 0 {
		config.NumWorkers = *o.workers
	}
	if *o.metrics != "" {
		config.MetricsAddr = *o.metrics
	}
}

func printConfiguration(config dispenser.Configuration, logger Logger) {
	logger.Info(fmt.Sprintf("Number of events: %d", config.NEvents), "config")
	logger.Info(fmt.Sprintf("Run number: %d", config.RunNumber), "config")
	logger.Info(fmt.Sprintf("Run weights: %s", config.RunWeights), "config")
	logger.Info(fmt.Sprintf("Event buffer: %d", config.NEventBuffer), "config")
	logger.Info(fmt.Sprintf("Variation: %s", config.Variation), "config")
	logger.Info(fmt.Sprintf("Seed: %d", config.Seed), "config")
	logger.Info(fmt.Sprintf("Number of workers: %d", config.NumWorkers), "config")
	logger.Info(fmt.Sprintf("Verbosity: %d", config.Verbosity), "config")
	logger.Info(fmt.Sprintf("Stream: %t", config.Stream), "config")
	logger.Info(fmt.Sprintf("Event time size: %s", config.EventTimeSize), "config")
	logger.Info(fmt.Sprintf("Frame duration: %s", config.FrameDuration), "config")
	logger.Info(fmt.Sprintf("Frame margin: %d", config.FrameMargin), "config")
	logger.Info(fmt.Sprintf("Frame flush: %s", config.FrameFlush), "config")
	for detector, routine := range config.Detectors {
		logger.Info(fmt.Sprintf("Detector %s: %s", detector, routine), "config")
	}
	logger.Info(fmt.Sprintf("Hits per event: %d", config.HitsPerEvent), "config")
	for _, out := range config.Outputs {
		logger.Info(fmt.Sprintf("Output: %s %s (%s)", out.Format, out.Name, out.Type), "config")
	}
	logger.Info(fmt.Sprintf("Output dir: %s", config.OutputDir), "config")
	logger.Info(fmt.Sprintf("Compression level: %d", config.CompressionLevel), "config")
	logger.Info(fmt.Sprintf("DB driver: %s", config.DBDriver), "config")
	logger.Info(fmt.Sprintf("DB path: %s", config.DBPath), "config")
	logger.Info(fmt.Sprintf("Host: %s", config.Host), "config")
	logger.Info(fmt.Sprintf("DB name: %s", config.DBName), "config")
	logger.Info(fmt.Sprintf("Redis: %s", config.RedisAddr), "config")
	logger.Info(fmt.Sprintf("Metrics: %s", config.MetricsAddr), "config")
}
