package dispenser

import (
	"fmt"
	"math"
)

// FlushPolicy decides how many buffered frames are released after a run.
type FlushPolicy string

const (
	// FlushMargin creates ceil(n*eventDuration/frameDuration)+margin frames
	// per run and flushes all but the last margin of them.
	FlushMargin FlushPolicy = "margin"
	// FlushFrontier flushes only the frames that end before the start time of
	// the next event, creating frames as payloads need them.
	FlushFrontier FlushPolicy = "frontier"
)

func ParseFlushPolicy(s string) (FlushPolicy, error) {
	switch FlushPolicy(s) {
	case "", FlushMargin:
		return FlushMargin, nil
	case FlushFrontier:
		return FlushFrontier, nil
	}
	return "", &ErrFrameConfiguration{Reason: fmt.Sprintf("unknown frame flush policy %q", s)}
}

type FrameOptions struct {
	FrameDuration float64 // ns
	EventDuration float64 // ns
	Margin        int
	Policy        FlushPolicy
}

func (o FrameOptions) validate() error {
	if o.FrameDuration <= 0 || math.IsNaN(o.FrameDuration) || math.IsInf(o.FrameDuration, 0) {
		return &ErrFrameConfiguration{Reason: fmt.Sprintf("frame duration must be > 0 ns, got %g", o.FrameDuration)}
	}
	if o.EventDuration < 0 || math.IsNaN(o.EventDuration) || math.IsInf(o.EventDuration, 0) {
		return &ErrFrameConfiguration{Reason: fmt.Sprintf("event duration must be >= 0 ns, got %g", o.EventDuration)}
	}
	if o.Margin < 1 {
		return &ErrFrameConfiguration{Reason: fmt.Sprintf("frame margin must be >= 1, got %d", o.Margin)}
	}
	if _, err := ParseFlushPolicy(string(o.Policy)); err != nil {
		return err
	}
	return nil
}

// FrameWindower turns the merged event records of consecutive runs into
// fixed duration frames with contiguous ids starting at 1, and releases them
// oldest first. It is used from a single goroutine.
type FrameWindower struct {
	opts             FrameOptions
	frames           []*Frame
	lastFrameCreated int
	lastFrameFlushed int
	eventIndex       int
	dropped          int
}

func NewFrameWindower(opts FrameOptions) (*FrameWindower, error) {
	if opts.Policy == "" {
		opts.Policy = FlushMargin
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}
	return &FrameWindower{opts: opts, frames: make([]*Frame, 0)}, nil
}

// FrameID returns the frame a hit belongs to, given the absolute index of its
// event in the session and its time at the electronics.
func (w *FrameWindower) FrameID(absoluteEventIndex int, timeAtElectronics int) int {
	t := float64(absoluteEventIndex)*w.opts.EventDuration + float64(timeAtElectronics)
	return int(math.Floor(t/w.opts.FrameDuration)) + 1
}

// FramesToCreate is the number of frames the margin policy opens for a run
// of n events.
func (w *FrameWindower) FramesToCreate(n int) int {
	return int(math.Ceil(float64(n)*w.opts.EventDuration/w.opts.FrameDuration)) + w.opts.Margin
}

// ProcessRun places the payloads of a completed run and returns the frames
// that can't receive any more payloads, in increasing id order. eventsThisRun
// is the number of events the engine processed for the run; records may hold
// fewer entries.
func (w *FrameWindower) ProcessRun(eventsThisRun int, records []*EventRecord) ([]*Frame, error) {
	nFramesToCreate := 0
	if w.opts.Policy == FlushMargin {
		nFramesToCreate = w.FramesToCreate(eventsThisRun)
		w.createFramesUpTo(w.lastFrameCreated + nFramesToCreate)
	}

	droppedBefore := w.dropped
	if err := w.placePayloads(records); err != nil {
		return nil, err
	}
	if dropped := w.dropped - droppedBefore; dropped > 0 {
		payloadsDroppedTotal.Add(float64(dropped))
		logger.Error(fmt.Sprintf("%d payloads target frames that were already flushed, last flushed frame is %d",
			dropped, w.lastFrameFlushed))
	}

	var flushed []*Frame
	switch w.opts.Policy {
	case FlushMargin:
		flushed = w.flush(nFramesToCreate - w.opts.Margin)
	case FlushFrontier:
		frontier := w.FrameID(w.eventIndex+eventsThisRun, 0)
		w.createFramesUpTo(frontier - 1)
		n := 0
		for n < len(w.frames) && w.frames[n].ID() < frontier {
			n++
		}
		flushed = w.flush(n)
	}

	w.eventIndex += eventsThisRun
	framesBuffered.Set(float64(len(w.frames)))
	return flushed, nil
}

// Drain releases every buffered frame, used when no more runs will follow.
func (w *FrameWindower) Drain() []*Frame {
	flushed := w.flush(len(w.frames))
	framesBuffered.Set(0)
	return flushed
}

func (w *FrameWindower) createFramesUpTo(frameID int) {
	for id := w.lastFrameCreated + 1; id <= frameID; id++ {
		w.frames = append(w.frames, NewFrame(id, w.opts.FrameDuration))
	}
	if frameID > w.lastFrameCreated {
		w.lastFrameCreated = frameID
	}
}

func (w *FrameWindower) placePayloads(records []*EventRecord) error {
	for _, record := range records {
		absoluteEventIndex := w.eventIndex + record.EventNumber
		for _, detector := range record.DetectorNames() {
			for _, digitized := range record.Detectors[detector].Digitized {
				tae := digitized.TimeAtElectronics()
				if tae == TimeAtElectronicsNotDefined {
					continue
				}
				payload, err := digitized.Payload()
				if err != nil {
					return fmt.Errorf("detector %s event %d: %w", detector, record.EventNumber, err)
				}
				frameID := w.FrameID(absoluteEventIndex, tae)
				if frameID <= w.lastFrameFlushed {
					w.dropped++
					continue
				}
				w.createFramesUpTo(frameID)
				// buffered frames are contiguous, oldest first
				w.frames[frameID-w.frames[0].ID()].AddPayload(payload)
			}
		}
	}
	return nil
}

func (w *FrameWindower) flush(n int) []*Frame {
	if n > len(w.frames) {
		n = len(w.frames)
	}
	if n <= 0 {
		return nil
	}
	flushed := make([]*Frame, n)
	copy(flushed, w.frames[:n])
	w.frames = w.frames[n:]
	w.lastFrameFlushed = flushed[n-1].ID()
	framesFlushedTotal.Add(float64(n))
	return flushed
}

func (w *FrameWindower) BufferedFrames() int {
	return len(w.frames)
}

func (w *FrameWindower) LastFrameCreated() int {
	return w.lastFrameCreated
}

func (w *FrameWindower) LastFrameFlushed() int {
	return w.lastFrameFlushed
}

// EventIndex is the number of events processed by all previous runs.
func (w *FrameWindower) EventIndex() int {
	return w.eventIndex
}

func (w *FrameWindower) DroppedPayloads() int {
	return w.dropped
}

func (w *FrameWindower) Options() FrameOptions {
	return w.opts
}
