package dispenser

import (
	"errors"
	"math"
	"testing"
)

func TestLoadConfiguration_Defaults(t *testing.T) {
	config, err := LoadConfiguration("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if config.NEventBuffer != 100 || config.RunNumber != 1 || config.Variation != "default" {
		t.Errorf("unexpected defaults %+v", config)
	}
	if config.Detectors["flux"] != "flux" {
		t.Errorf("expected the flux detector by default, got %v", config.Detectors)
	}
}

func TestLoadConfiguration_JSON(t *testing.T) {
	path := writeTempFile(t, "config.json", `{
		"n": 1000,
		"run_weights": "weights.txt",
		"n_event_buffer": 50,
		"stream": true,
		"frame_duration": "32*us",
		"detectors": {"ctof": "particle_counter"},
		"outputs": [{"format": "json", "name": "frames", "type": "stream"}]
	}`)
	config, err := LoadConfiguration(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if config.NEvents != 1000 || config.NEventBuffer != 50 || config.RunWeights != "weights.txt" {
		t.Errorf("unexpected configuration %+v", config)
	}
	if len(config.Detectors) != 1 || config.Detectors["ctof"] != "particle_counter" {
		t.Errorf("expected only ctof, got %v", config.Detectors)
	}
	if config.NumWorkers != 1 {
		t.Errorf("expected default workers, got %d", config.NumWorkers)
	}
	if err := config.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoadConfiguration_YAML(t *testing.T) {
	path := writeTempFile(t, "config.yaml", `
n: 20
run: 11
num_workers: 4
event_time_size: 250*ns
frame_flush: frontier
outputs:
  - format: csv
    name: events
    type: event
`)
	config, err := LoadConfiguration(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if config.NEvents != 20 || config.RunNumber != 11 || config.NumWorkers != 4 {
		t.Errorf("unexpected configuration %+v", config)
	}
	if len(config.Outputs) != 1 || config.Outputs[0].Format != "csv" {
		t.Errorf("unexpected outputs %+v", config.Outputs)
	}
	opts, err := config.FrameOptions()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.EventDuration != 250 || opts.FrameDuration != 64000 || opts.Policy != FlushFrontier || opts.Margin != 2 {
		t.Errorf("unexpected frame options %+v", opts)
	}
	if config.Detectors["flux"] != "flux" {
		t.Errorf("expected default detectors, got %v", config.Detectors)
	}
}

func TestLoadConfiguration_Errors(t *testing.T) {
	var openErr *ErrOpenFile
	if _, err := LoadConfiguration("/nonexistent/config.json"); !errors.As(err, &openErr) {
		t.Errorf("expected ErrOpenFile, got %v", err)
	}
	path := writeTempFile(t, "config.json", `{"n": "many"}`)
	if _, err := LoadConfiguration(path); err == nil {
		t.Error("expected error for an invalid configuration")
	}
}

func TestConfiguration_Validate(t *testing.T) {
	testCases := []struct {
		name   string
		modify func(c *Configuration)
		code   int
	}{
		{"negative events", func(c *Configuration) { c.NEvents = -1 }, ExitConfiguration},
		{"no buffer", func(c *Configuration) { c.NEventBuffer = 0 }, ExitConfiguration},
		{"no workers", func(c *Configuration) { c.NumWorkers = 0 }, ExitConfiguration},
		{"bad output type", func(c *Configuration) {
			c.Outputs = []OutputDefinition{{Format: "json", Name: "x", Type: "histogram"}}
		}, ExitConfiguration},
		{"zero frame", func(c *Configuration) { c.Stream = true; c.FrameDuration = "0*ns" }, ExitFrameConfiguration},
		{"bad unit", func(c *Configuration) { c.Stream = true; c.FrameDuration = "3*fortnights" }, ExitFrameConfiguration},
		{"negative event time", func(c *Configuration) { c.Stream = true; c.EventTimeSize = "-1*ns" }, ExitFrameConfiguration},
		{"zero margin", func(c *Configuration) { c.Stream = true; c.FrameMargin = 0 }, ExitFrameConfiguration},
		{"bad policy", func(c *Configuration) { c.Stream = true; c.FrameFlush = "eager" }, ExitFrameConfiguration},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			config := DefaultConfiguration()
			tc.modify(&config)
			err := config.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if code := ExitCode(err); code != tc.code {
				t.Errorf("expected exit code %d, got %d (%v)", tc.code, code, err)
			}
		})
	}

	// frame settings are only checked in stream mode
	config := DefaultConfiguration()
	config.FrameDuration = "nonsense"
	if err := config.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestParseDuration(t *testing.T) {
	testCases := []struct {
		input    string
		expected float64
	}{
		{"64000*ns", 64000},
		{"64*us", 64000},
		{"2*ms", 2e6},
		{"1*s", 1e9},
		{"500*ps", 0.5},
		{"250", 250},
		{" 16 * us ", 16000},
	}
	for _, tc := range testCases {
		got, err := ParseDuration(tc.input)
		if err != nil {
			t.Errorf("%q: unexpected error: %v", tc.input, err)
			continue
		}
		if math.Abs(got-tc.expected) > 1e-9 {
			t.Errorf("%q: expected %g, got %g", tc.input, tc.expected, got)
		}
	}
	for _, input := range []string{"", "ns", "10*parsecs", "*ns"} {
		if _, err := ParseDuration(input); err == nil {
			t.Errorf("%q: expected error", input)
		}
	}
}
