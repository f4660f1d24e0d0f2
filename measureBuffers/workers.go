package main

import (
	"context"
	"io/fs"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	dispenser "github.com/gemc/dispenser_go/pkg"
)

type measurement struct {
	Duration time.Duration
	Events   int
	Chunks   int
	Bytes    int64
}

// measure runs a whole session with config and reports its wall time and the
// size of what it wrote.
func measure(config dispenser.Configuration) (measurement, error) {
	var result measurement
	if err := os.MkdirAll(config.OutputDir, 0o755); err != nil {
		return result, err
	}

	store := dispenser.NewStaticConstantsStore()
	for detector := range config.Detectors {
		store.SetTranslationTable(detector, dispenser.GridTranslationTable(6, 10))
	}
	routines, err := dispenser.NewRoutinesMap(config.Detectors, store)
	if err != nil {
		return result, err
	}

	var windower *dispenser.FrameWindower
	if config.Stream {
		opts, err := config.FrameOptions()
		if err != nil {
			return result, err
		}
		if windower, err = dispenser.NewFrameWindower(opts); err != nil {
			return result, err
		}
	}

	streamers := make([]dispenser.Streamer, 0, len(config.Outputs))
	for _, def := range config.Outputs {
		s, err := dispenser.NewStreamer(dispenser.StreamerOptions{
			Definition:       def,
			Dir:              config.OutputDir,
			CompressionLevel: config.CompressionLevel,
			RedisAddr:        config.RedisAddr,
		})
		if err != nil {
			return result, err
		}
		streamers = append(streamers, s)
	}
	action := dispenser.NewRunAction(streamers, windower)

	generator := dispenser.UniformHitGenerator{
		Detectors:    routines.Detectors(),
		HitsPerEvent: config.HitsPerEvent,
		Sectors:      6,
		Elements:     10,
		MaxTime:      100,
	}
	engine := dispenser.NewLocalEngine(routines, generator, action, config.NumWorkers, config.Seed)
	d, err := dispenser.NewEventDispenser(config, routines, rand.New(rand.NewSource(config.Seed)))
	if err != nil {
		action.Close(context.Background())
		return result, err
	}

	chunks := 0
	for _, run := range d.RunEvents().Runs() {
		chunks += len(dispenser.ChunkSizes(d.RunEvents().Events(run), config.NEventBuffer))
	}

	start := time.Now()
	err = d.ProcessEvents(context.Background(), engine)
	if closeErr := action.Close(context.Background()); err == nil {
		err = closeErr
	}
	result.Duration = time.Since(start)
	result.Events = engine.Processed()
	result.Chunks = chunks
	if err != nil {
		return result, err
	}

	err = filepath.WalkDir(config.OutputDir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil || entry.IsDir() {
			return err
		}
		info, err := entry.Info()
		if err != nil {
			return err
		}
		result.Bytes += info.Size()
		return nil
	})
	return result, err
}
