package dispenser

// PerRunAccumulator collects the event records one worker produced during one
// run. A worker writes only to its own accumulator, so Record takes no lock.
type PerRunAccumulator struct {
	records []*EventRecord
}

func NewPerRunAccumulator() *PerRunAccumulator {
	return &PerRunAccumulator{records: make([]*EventRecord, 0)}
}

func (a *PerRunAccumulator) Record(event *EventRecord) {
	a.records = append(a.records, event)
}

// MergeInto moves every record to the end of global, keeping their order, and
// leaves a empty.
func (a *PerRunAccumulator) MergeInto(global *PerRunAccumulator) {
	if a == global {
		return
	}
	global.records = append(global.records, a.records...)
	a.records = nil
}

func (a *PerRunAccumulator) Records() []*EventRecord {
	return a.records
}

func (a *PerRunAccumulator) Len() int {
	return len(a.records)
}

// Reset drops every record once they have been published.
func (a *PerRunAccumulator) Reset() {
	a.records = a.records[:0:0]
}
