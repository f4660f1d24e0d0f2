package dispenser

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
)

type RunWeight struct {
	Run    int
	Weight float64
}

// RunWeightTable is the ordered run number -> weight table used to sample
// the run of every event. It is immutable once built.
type RunWeightTable struct {
	entries []RunWeight
	index   map[int]int
	total   float64
	last    int
}

func NewRunWeightTable(entries []RunWeight) (*RunWeightTable, error) {
	if len(entries) == 0 {
		return nil, &ErrRunWeights{Reason: "no runs defined"}
	}
	table := &RunWeightTable{
		entries: make([]RunWeight, 0, len(entries)),
		index:   make(map[int]int, len(entries)),
		last:    -1,
	}
	for _, e := range entries {
		if _, ok := table.index[e.Run]; ok {
			return nil, &ErrRunWeights{Reason: fmt.Sprintf("run %d defined more than once", e.Run)}
		}
		if math.IsNaN(e.Weight) || math.IsInf(e.Weight, 0) {
			return nil, &ErrRunWeights{Reason: fmt.Sprintf("run %d has non finite weight %g", e.Run, e.Weight)}
		}
		if e.Weight < 0 {
			return nil, &ErrRunWeights{Reason: fmt.Sprintf("run %d has negative weight %g", e.Run, e.Weight)}
		}
		table.index[e.Run] = len(table.entries)
		table.entries = append(table.entries, e)
		table.total += e.Weight
		if e.Weight > 0 {
			table.last = len(table.entries) - 1
		}
	}
	if math.IsInf(table.total, 0) {
		return nil, &ErrRunWeights{Reason: "sum of weights overflows"}
	}
	if table.total <= 0 {
		return nil, &ErrRunWeights{Reason: "all weights are zero"}
	}
	return table, nil
}

// LoadRunWeights reads a two column "run weight" text file. Blank lines and
// lines starting with # are ignored.
func LoadRunWeights(filename string) (*RunWeightTable, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, &ErrRunWeightsFileNotFound{Filename: filename, Err: err}
	}
	defer file.Close()

	entries := make([]RunWeight, 0)
	scanner := bufio.NewScanner(file)
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, &ErrRunWeights{Line: lineNumber, Reason: fmt.Sprintf("expected 2 columns, got %d", len(fields))}
		}
		run, err := strconv.Atoi(fields[0])
		if err != nil {
			return nil, &ErrRunWeights{Line: lineNumber, Reason: fmt.Sprintf("invalid run number %q", fields[0])}
		}
		weight, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, &ErrRunWeights{Line: lineNumber, Reason: fmt.Sprintf("invalid weight %q", fields[1])}
		}
		entries = append(entries, RunWeight{Run: run, Weight: weight})
	}
	if err := scanner.Err(); err != nil {
		return nil, &ErrRunWeightsFileNotFound{Filename: filename, Err: err}
	}

	table, err := NewRunWeightTable(entries)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	if verbose() {
		logger.Info(fmt.Sprintf("Loaded %d run weights from %s", table.Len(), filename), "runweights")
	}
	return table, nil
}

// Sample maps u in [0,1) to a run number. The table is walked in file order
// and the first run whose cumulative weight reaches u*TotalWeight is chosen.
// When rounding leaves u unmatched the last run with a positive weight is
// returned and clamped is true.
func (t *RunWeightTable) Sample(u float64) (run int, clamped bool) {
	target := u * t.total
	cumulative := 0.0
	for _, e := range t.entries {
		if e.Weight == 0 {
			continue
		}
		cumulative += e.Weight
		if target <= cumulative {
			return e.Run, false
		}
	}
	return t.lastRun(), true
}

func (t *RunWeightTable) lastRun() int {
	return t.entries[t.last].Run
}

// Runs returns the run numbers in file order.
func (t *RunWeightTable) Runs() []int {
	runs := make([]int, len(t.entries))
	for i, e := range t.entries {
		runs[i] = e.Run
	}
	return runs
}

func (t *RunWeightTable) Weight(run int) (float64, bool) {
	i, ok := t.index[run]
	if !ok {
		return 0, false
	}
	return t.entries[i].Weight, true
}

func (t *RunWeightTable) Len() int {
	return len(t.entries)
}

func (t *RunWeightTable) TotalWeight() float64 {
	return t.total
}
