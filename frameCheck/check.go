package main

import (
	"fmt"

	"github.com/tidwall/gjson"
)

type frameSummary struct {
	Frames        int
	FirstID       int64
	LastID        int64
	FrameDuration float64
	Payloads      int
	Channels      map[[3]int64]int
}

// checkFrames verifies that frame ids are contiguous and increasing, that
// every frame has the same duration and that every payload has the five
// crate, slot, channel, charge and time values.
func checkFrames(data string) (frameSummary, []string) {
	summary := frameSummary{Channels: make(map[[3]int64]int)}
	var problems []string
	line := 0
	gjson.ForEachLine(data, func(frame gjson.Result) bool {
		line++
		if !gjson.Valid(frame.Raw) {
			problems = append(problems, fmt.Sprintf("line %d: invalid json", line))
			return true
		}
		id := frame.Get("header.frame_id")
		if !id.Exists() {
			problems = append(problems, fmt.Sprintf("line %d: missing frame id", line))
			return true
		}
		if summary.Frames == 0 {
			summary.FirstID = id.Int()
			summary.FrameDuration = frame.Get("header.frame_duration").Float()
		} else {
			if id.Int() != summary.LastID+1 {
				problems = append(problems, fmt.Sprintf("line %d: frame %d follows frame %d", line, id.Int(), summary.LastID))
			}
			if d := frame.Get("header.frame_duration").Float(); d != summary.FrameDuration {
				problems = append(problems, fmt.Sprintf("line %d: frame duration %g, expected %g", line, d, summary.FrameDuration))
			}
		}
		summary.LastID = id.Int()
		summary.Frames++

		frame.Get("payloads").ForEach(func(_, payload gjson.Result) bool {
			values := payload.Array()
			if len(values) != 5 {
				problems = append(problems, fmt.Sprintf("line %d: payload %s has %d values", line, payload.Raw, len(values)))
				return true
			}
			summary.Channels[[3]int64{values[0].Int(), values[1].Int(), values[2].Int()}]++
			summary.Payloads++
			return true
		})
		return true
	})
	if summary.Frames > 0 && summary.FirstID != 1 {
		problems = append(problems, fmt.Sprintf("first frame is %d, expected 1", summary.FirstID))
	}
	return summary, problems
}

type eventSummary struct {
	Events   int
	Hits     int
	Sessions map[string]int
}

// checkEvents verifies that every event document has a header and that every
// digitized hit carries its hit number.
func checkEvents(data string) (eventSummary, []string) {
	summary := eventSummary{Sessions: make(map[string]int)}
	var problems []string
	line := 0
	gjson.ForEachLine(data, func(event gjson.Result) bool {
		line++
		if !gjson.Valid(event.Raw) {
			problems = append(problems, fmt.Sprintf("line %d: invalid json", line))
			return true
		}
		if !event.Get("event_number").Exists() || !event.Get("timestamp").Exists() {
			problems = append(problems, fmt.Sprintf("line %d: missing event header", line))
		}
		summary.Sessions[event.Get("session").String()]++
		event.Get("detectors").ForEach(func(detector, datum gjson.Result) bool {
			datum.Get("digitized").ForEach(func(_, hit gjson.Result) bool {
				if !hit.Get("hitn").Exists() {
					problems = append(problems, fmt.Sprintf("line %d: %s hit without hitn", line, detector.String()))
				}
				summary.Hits++
				return true
			})
			return true
		})
		summary.Events++
		return true
	})
	return summary, problems
}
