package main

import (
	dispenser "github.com/gemc/dispenser_go/pkg"
)

// LoadConfiguration reads the dispenser configuration with the defaults of a
// benchmark: no verbosity, hdf5 event output and a fixed seed so every
// measurement processes the same events.
func LoadConfiguration(filename string) (dispenser.Configuration, error) {
	config, err := dispenser.LoadConfiguration(filename)
	if err != nil {
		return config, err
	}
	if config.NEvents == 0 {
		config.NEvents = 10000
	}
	if config.Seed == 0 {
		config.Seed = 1
	}
	if len(config.Outputs) == 0 {
		config.Outputs = []dispenser.OutputDefinition{{Format: "hdf5", Name: "events", Type: "event"}}
	}
	config.Verbosity = 0
	return config, config.Validate()
}
