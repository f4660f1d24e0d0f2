package dispenser

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/exp/slices"
)

// RunAction publishes a merged run: the event list to event outputs and,
// when frame windowing is enabled, the flushed frames to stream outputs.
type RunAction struct {
	eventStreamers []EventStreamer
	frameStreamers []FrameStreamer
	windower       *FrameWindower
	streamers      []Streamer
}

// NewRunAction sorts the open streamers by type. windower is nil when frame
// windowing is off; stream outputs then receive nothing.
func NewRunAction(streamers []Streamer, windower *FrameWindower) *RunAction {
	a := &RunAction{windower: windower, streamers: streamers}
	for _, s := range streamers {
		switch s.Type() {
		case EventStream:
			if es, ok := s.(EventStreamer); ok {
				a.eventStreamers = append(a.eventStreamers, es)
			}
		case FrameStream:
			if fs, ok := s.(FrameStreamer); ok {
				a.frameStreamers = append(a.frameStreamers, fs)
			}
		}
	}
	if windower == nil && len(a.frameStreamers) > 0 {
		logger.Error(fmt.Sprintf("%d stream outputs configured but stream mode is off, they will receive no frames",
			len(a.frameStreamers)))
	}
	return a
}

func (a *RunAction) Windower() *FrameWindower {
	return a.windower
}

// EndOfRun is called once per chunk, after every worker accumulator has been
// merged into run.
func (a *RunAction) EndOfRun(ctx context.Context, meta RunMetadata, eventsThisRun int, run *PerRunAccumulator) error {
	records := run.Records()
	if verbose() {
		message := fmt.Sprintf("End of run %d: %d events, %d records", meta.RunNumber, eventsThisRun, len(records))
		logger.Info(message, "runaction")
	}

	for _, s := range a.eventStreamers {
		report := PublishEventRunData(ctx, s, records)
		logReport(s.Name(), "Event Stream", report)
	}

	if a.windower != nil {
		frames, err := a.windower.ProcessRun(eventsThisRun, records)
		if err != nil {
			return fmt.Errorf("run %d: %w", meta.RunNumber, err)
		}
		a.publishFrames(ctx, frames)
	}

	run.Reset()
	return nil
}

func (a *RunAction) publishFrames(ctx context.Context, frames []*Frame) {
	for _, frame := range frames {
		for _, s := range a.frameStreamers {
			report := PublishFrameRunData(ctx, s, frame)
			logReport(s.Name(), fmt.Sprintf("Frame %d Stream", frame.ID()), report)
		}
	}
}

// Close flushes the frames still buffered and closes every streamer.
func (a *RunAction) Close(ctx context.Context) error {
	if a.windower != nil {
		frames := a.windower.Drain()
		if verbose() {
			logger.Info(fmt.Sprintf("Flushing %d remaining frames", len(frames)), "runaction")
		}
		a.publishFrames(ctx, frames)
	}

	var errs []error
	for _, s := range a.streamers {
		if err := s.CloseConnection(); err != nil {
			errs = append(errs, &ErrCantCloseOutput{Name: s.Name(), Err: err})
		}
	}
	return errors.Join(errs...)
}

func logReport(name string, kind string, report Report) {
	steps := make([]string, 0, len(report))
	for step := range report {
		steps = append(steps, step)
	}
	slices.Sort(steps)
	for i, step := range steps {
		message := fmt.Sprintf("%s %s report #%d <%s>: ", name, kind, i+1, step)
		if report[step] {
			if verbose() {
				logger.Info(message+"success", "runaction")
			}
			continue
		}
		logger.Error(message + "failure")
	}
}
