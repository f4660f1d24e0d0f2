package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	dispenser "github.com/gemc/dispenser_go/pkg"
	_ "github.com/gemc/dispenser_go/pkg/hdf5writer"
)

var configuration dispenser.Configuration

var logger Logger

func init() {
	opts := &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}
	logger = Logger{
		InfoLog:  slog.New(slog.NewTextHandler(os.Stdout, opts)),
		ErrorLog: slog.New(slog.NewJSONHandler(os.Stderr, opts)),
	}
}

func main() {
	configFilename := flag.String("config", "", "Configuration file path (json or yaml)")
	buffers := flag.String("buffers", "1,10,100,1000", "Comma separated event buffer sizes")
	levels := flag.String("compression", "", "Comma separated compression levels, empty keeps the configured one")
	repetitions := flag.Int("repeat", 3, "Repetitions of every measurement")
	flag.Parse()

	var err error
	configuration, err = LoadConfiguration(*configFilename)
	if err != nil {
		message := fmt.Errorf("Error reading configuration file: %w", err)
		logger.Error(message.Error())
		os.Exit(dispenser.ExitCode(err))
	}
	dispenser.SetConfiguration(configuration)
	dispenser.SetLogger(logger)

	bufferSizes, err := parseInts(*buffers)
	if err != nil {
		logger.Error(fmt.Sprintf("Invalid buffer sizes: %v", err))
		os.Exit(1)
	}
	compressionLevels := []int{configuration.CompressionLevel}
	if *levels != "" {
		if compressionLevels, err = parseInts(*levels); err != nil {
			logger.Error(fmt.Sprintf("Invalid compression levels: %v", err))
			os.Exit(1)
		}
	}

	start := time.Now()
	for _, compressionLevel := range compressionLevels {
		for _, buffer := range bufferSizes {
			for i := 0; i < *repetitions; i++ {
				config := configuration
				config.NEventBuffer = buffer
				config.CompressionLevel = compressionLevel
				config.OutputDir = fmt.Sprintf("%s/buffer_%d_comp_%d", configuration.OutputDir, buffer, compressionLevel)

				result, err := measure(config)
				if err != nil {
					logger.Error(fmt.Sprintf("buffer %d, comp %d: %v", buffer, compressionLevel, err))
					os.Exit(dispenser.ExitCode(err))
				}
				fmt.Printf("(buffer %d, comp %d) Time: %d ms, %s events, %d chunks, output size %s\n",
					buffer, compressionLevel, result.Duration.Milliseconds(),
					humanize.Comma(int64(result.Events)), result.Chunks, humanize.Bytes(uint64(result.Bytes)))
			}
		}
	}

	duration := time.Since(start)
	fmt.Printf("Total time: %d ms\n", duration.Milliseconds())
}

func parseInts(list string) ([]int, error) {
	var values []int
	for _, field := range strings.Split(list, ",") {
		v, err := strconv.Atoi(strings.TrimSpace(field))
		if err != nil {
			return nil, err
		}
		if v < 0 {
			return nil, fmt.Errorf("%d must be >= 0", v)
		}
		values = append(values, v)
	}
	return values, nil
}
