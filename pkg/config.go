package dispenser

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// OutputDefinition selects one streamer: its format plugin, the output name
// (file base name, stream key) and the stream type ("event" or "stream").
type OutputDefinition struct {
	Format string `json:"format" yaml:"format"`
	Name   string `json:"name" yaml:"name"`
	Type   string `json:"type" yaml:"type"`
}

type Configuration struct {
	NEvents          int                `json:"n" yaml:"n"`
	RunNumber        int                `json:"run" yaml:"run"`
	RunWeights       string             `json:"run_weights" yaml:"run_weights"`
	NEventBuffer     int                `json:"n_event_buffer" yaml:"n_event_buffer"`
	Variation        string             `json:"variation" yaml:"variation"`
	Seed             int64              `json:"seed" yaml:"seed"`
	NumWorkers       int                `json:"num_workers" yaml:"num_workers"`
	Verbosity        int                `json:"verbosity" yaml:"verbosity"`
	Stream           bool               `json:"stream" yaml:"stream"`
	EventTimeSize    string             `json:"event_time_size" yaml:"event_time_size"`
	FrameDuration    string             `json:"frame_duration" yaml:"frame_duration"`
	FrameMargin      int                `json:"frame_margin" yaml:"frame_margin"`
	FrameFlush       string             `json:"frame_flush" yaml:"frame_flush"`
	Detectors        map[string]string  `json:"detectors" yaml:"detectors"`
	HitsPerEvent     int                `json:"hits_per_event" yaml:"hits_per_event"`
	Outputs          []OutputDefinition `json:"outputs" yaml:"outputs"`
	OutputDir        string             `json:"output_dir" yaml:"output_dir"`
	CompressionLevel int                `json:"compression_level" yaml:"compression_level"`
	DBDriver         string             `json:"db_driver" yaml:"db_driver"`
	DBPath           string             `json:"db_path" yaml:"db_path"`
	Host             string             `json:"host" yaml:"host"`
	User             string             `json:"user" yaml:"user"`
	Passwd           string             `json:"pass" yaml:"pass"`
	DBName           string             `json:"dbname" yaml:"dbname"`
	RedisAddr        string             `json:"redis_addr" yaml:"redis_addr"`
	MetricsAddr      string             `json:"metrics_addr" yaml:"metrics_addr"`
}

var configuration Configuration = DefaultConfiguration()

func GetConfiguration() Configuration {
	return configuration
}

func SetConfiguration(config Configuration) {
	configuration = config
}

// DefaultConfiguration returns the values used for every option the
// configuration file leaves out.
func DefaultConfiguration() Configuration {
	var config Configuration
	config.NEvents = 0
	config.RunNumber = 1
	config.NEventBuffer = 100
	config.Variation = "default"
	config.Seed = 0
	config.NumWorkers = 1
	config.Verbosity = 0
	config.Stream = false
	config.EventTimeSize = "0*ns"
	config.FrameDuration = "64000*ns"
	config.FrameMargin = 2
	config.FrameFlush = string(FlushMargin)
	config.Detectors = map[string]string{"flux": "flux"}
	config.HitsPerEvent = 1
	config.OutputDir = "."
	config.CompressionLevel = 4
	config.DBDriver = ""
	config.Host = "localhost"
	config.DBName = "gemc"
	return config
}

// LoadConfiguration reads a JSON or YAML (by extension) configuration file on
// top of the defaults. An empty filename returns the defaults.
func LoadConfiguration(filename string) (Configuration, error) {
	config := DefaultConfiguration()
	if filename == "" {
		return config, nil
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return config, &ErrOpenFile{Filename: filename, Err: err}
	}

	// decoding merges into non-nil maps
	defaultDetectors := config.Detectors
	config.Detectors = nil

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &config)
	default:
		err = json.Unmarshal(data, &config)
	}
	if err != nil {
		return config, fmt.Errorf("parsing configuration %s: %w", filename, err)
	}
	if len(config.Detectors) == 0 {
		config.Detectors = defaultDetectors
	}
	return config, nil
}

// Validate checks the options that would otherwise only fail once a run has
// started.
func (c Configuration) Validate() error {
	if c.NEvents < 0 {
		return &ErrConfiguration{Option: "n", Reason: fmt.Sprintf("number of events must be >= 0, got %d", c.NEvents)}
	}
	if c.NEventBuffer <= 0 {
		return &ErrConfiguration{Option: "n_event_buffer", Reason: fmt.Sprintf("must be > 0, got %d", c.NEventBuffer)}
	}
	if c.NumWorkers <= 0 {
		return &ErrConfiguration{Option: "num_workers", Reason: fmt.Sprintf("must be > 0, got %d", c.NumWorkers)}
	}
	for _, out := range c.Outputs {
		if _, err := ParseStreamType(out.Type); err != nil {
			return &ErrConfiguration{Option: "outputs", Reason: err.Error()}
		}
	}
	if c.Stream {
		if _, err := c.FrameOptions(); err != nil {
			return err
		}
	}
	return nil
}

// FrameOptions converts the duration strings and flush settings into the
// windower options.
func (c Configuration) FrameOptions() (FrameOptions, error) {
	frameDuration, err := ParseDuration(c.FrameDuration)
	if err != nil {
		return FrameOptions{}, &ErrFrameConfiguration{Reason: err.Error()}
	}
	eventDuration, err := ParseDuration(c.EventTimeSize)
	if err != nil {
		return FrameOptions{}, &ErrFrameConfiguration{Reason: err.Error()}
	}
	policy, err := ParseFlushPolicy(c.FrameFlush)
	if err != nil {
		return FrameOptions{}, err
	}
	opts := FrameOptions{
		FrameDuration: frameDuration,
		EventDuration: eventDuration,
		Margin:        c.FrameMargin,
		Policy:        policy,
	}
	return opts, opts.validate()
}
