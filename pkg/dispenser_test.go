package dispenser

import (
	"context"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/tidwall/gjson"
)

func dispenserConfig() Configuration {
	config := DefaultConfiguration()
	config.NEventBuffer = 10
	return config
}

func TestNewEventDispenser_NoEventsSkipsWeights(t *testing.T) {
	config := dispenserConfig()
	config.NEvents = 0
	config.RunWeights = filepath.Join(t.TempDir(), "missing.txt")

	d, err := NewEventDispenser(config, nil, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("expected no error with zero events, got %v", err)
	}
	if d.TotalNumberOfEvents() != 0 {
		t.Errorf("expected no events, got %d", d.TotalNumberOfEvents())
	}
	engine := &fakeEngine{}
	if err := d.ProcessEvents(context.Background(), engine); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if engine.initialized != 0 {
		t.Error("expected the engine not to be initialized")
	}
}

func TestNewEventDispenser_MissingWeights(t *testing.T) {
	config := dispenserConfig()
	config.NEvents = 10
	config.RunWeights = filepath.Join(t.TempDir(), "missing.txt")

	_, err := NewEventDispenser(config, nil, rand.New(rand.NewSource(1)))
	if code := ExitCode(err); code != ExitRunWeightsFileNotFound {
		t.Errorf("expected exit code %d, got %d (%v)", ExitRunWeightsFileNotFound, code, err)
	}
}

func TestNewEventDispenser_SingleRun(t *testing.T) {
	config := dispenserConfig()
	config.NEvents = 42
	config.RunNumber = 11
	source := &sequenceSource{values: []float64{0.5}}

	d, err := NewEventDispenser(config, nil, source)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := d.RunEvents().Map(); len(got) != 1 || got[11] != 42 {
		t.Errorf("expected all events in run 11, got %v", got)
	}
	if source.draws != 0 {
		t.Errorf("expected no random draws, got %d", source.draws)
	}
	if d.Weights() != nil {
		t.Error("expected no weights table")
	}
}

func TestNewEventDispenser_Weighted(t *testing.T) {
	config := dispenserConfig()
	config.NEvents = 4
	config.RunWeights = writeTempFile(t, "weights.txt", "# run weight\n10 0.5\n20 0.5\n")
	source := &sequenceSource{values: []float64{0.1, 0.7, 0.2, 0.9}}

	d, err := NewEventDispenser(config, nil, source)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	allocation := d.RunEvents()
	if allocation.Events(10) != 2 || allocation.Events(20) != 2 {
		t.Errorf("unexpected allocation %v", allocation.Map())
	}
	if d.TotalNumberOfEvents() != 4 || source.draws != 4 {
		t.Errorf("expected 4 events from 4 draws, got %d from %d", d.TotalNumberOfEvents(), source.draws)
	}
	if runs := allocation.Runs(); runs[0] != 10 || runs[1] != 20 {
		t.Errorf("expected table order, got %v", runs)
	}
}

func TestEventDispenser_SetNumberOfEvents(t *testing.T) {
	config := dispenserConfig()
	config.NEvents = 4
	config.RunNumber = 7
	config.RunWeights = writeTempFile(t, "weights.txt", "10 1\n20 1\n")

	d, err := NewEventDispenser(config, nil, rand.New(rand.NewSource(3)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	d.SetNumberOfEvents(15)
	if got := d.RunEvents().Map(); len(got) != 1 || got[7] != 15 {
		t.Errorf("expected 15 events in run 7, got %v", got)
	}

	engine := &fakeEngine{}
	if err := d.ProcessEvents(context.Background(), engine); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(engine.calls) != 2 || engine.calls[1].nEvents != 5 {
		t.Errorf("expected chunks of 10 and 5, got %+v", engine.calls)
	}
}

func TestEventDispenser_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	config := dispenserConfig()
	config.NEvents = 300
	config.NEventBuffer = 40
	config.NumWorkers = 3
	config.RunWeights = writeTempFile(t, "weights.txt", "100 0.25\n200 0.75\n")
	config.Stream = true
	config.EventTimeSize = "250*ns"
	config.FrameDuration = "16*us"
	config.FrameFlush = string(FlushFrontier)
	if err := config.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	routines := fluxRoutines(t)
	opts, err := config.FrameOptions()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	windower, err := NewFrameWindower(opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var streamers []Streamer
	for _, def := range []OutputDefinition{
		{Format: "json", Name: "events", Type: "event"},
		{Format: "json", Name: "frames", Type: "stream"},
	} {
		s, err := NewStreamer(StreamerOptions{Definition: def, Dir: dir, SessionID: "e2e"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		streamers = append(streamers, s)
	}
	action := NewRunAction(streamers, windower)
	engine := NewLocalEngine(routines, testGenerator, action, config.NumWorkers, 99)

	d, err := NewEventDispenser(config, routines, rand.New(rand.NewSource(5)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := d.ProcessEvents(context.Background(), engine); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := action.Close(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	events := readLines(t, filepath.Join(dir, "events.jsonl"))
	if len(events) != 300 {
		t.Errorf("expected 300 events, got %d", len(events))
	}

	frames := readLines(t, filepath.Join(dir, "frames.jsonl"))
	payloads := 0
	for i, line := range frames {
		if got := gjson.Get(line, "header.frame_id").Int(); got != int64(i+1) {
			t.Fatalf("expected frame %d, got %d", i+1, got)
		}
		payloads += int(gjson.Get(line, "payloads.#").Int())
	}
	// two hits per event, each with an electronics address
	if payloads != 600 {
		t.Errorf("expected 600 payloads, got %d", payloads)
	}
	if windower.DroppedPayloads() != 0 {
		t.Errorf("expected no dropped payloads, got %d", windower.DroppedPayloads())
	}
	if windower.BufferedFrames() != 0 {
		t.Errorf("expected every frame flushed, %d left", windower.BufferedFrames())
	}
	// 300 events of 250 ns span 75 us, the last hits reach 105 ns later
	if len(frames) < 5 {
		t.Errorf("expected at least 5 frames of 16 us, got %d", len(frames))
	}
}
