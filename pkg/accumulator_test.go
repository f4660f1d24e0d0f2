package dispenser

import "testing"

func TestPerRunAccumulator_MergeInto(t *testing.T) {
	counts := []int{3, 0, 5, 1}
	accumulators := make([]*PerRunAccumulator, len(counts))
	tag := 0
	for i, c := range counts {
		accumulators[i] = NewPerRunAccumulator()
		for j := 0; j < c; j++ {
			record := NewEventRecord(tag, i, "")
			accumulators[i].Record(record)
			tag++
		}
	}

	global := NewPerRunAccumulator()
	for _, acc := range accumulators {
		acc.MergeInto(global)
		if acc.Len() != 0 {
			t.Errorf("expected merged accumulator to be empty, got %d records", acc.Len())
		}
	}

	if global.Len() != tag {
		t.Fatalf("expected %d records, got %d", tag, global.Len())
	}
	seen := make(map[int]bool)
	lastByThread := make(map[int]int)
	for _, record := range global.Records() {
		if seen[record.EventNumber] {
			t.Errorf("duplicate record %d", record.EventNumber)
		}
		seen[record.EventNumber] = true
		if last, ok := lastByThread[record.ThreadID]; ok && record.EventNumber <= last {
			t.Errorf("thread %d records out of order: %d after %d", record.ThreadID, record.EventNumber, last)
		}
		lastByThread[record.ThreadID] = record.EventNumber
	}
	for i := 0; i < tag; i++ {
		if !seen[i] {
			t.Errorf("record %d lost", i)
		}
	}
}

func TestPerRunAccumulator_MergeIntoSelf(t *testing.T) {
	acc := NewPerRunAccumulator()
	acc.Record(NewEventRecord(0, 0, ""))
	acc.MergeInto(acc)
	if acc.Len() != 1 {
		t.Errorf("expected 1 record, got %d", acc.Len())
	}
}

func TestPerRunAccumulator_Reset(t *testing.T) {
	acc := NewPerRunAccumulator()
	acc.Record(NewEventRecord(0, 0, ""))
	records := acc.Records()
	acc.Reset()
	if acc.Len() != 0 {
		t.Errorf("expected empty accumulator, got %d", acc.Len())
	}
	if len(records) != 1 {
		t.Errorf("reset must not clear records already handed out")
	}
}
