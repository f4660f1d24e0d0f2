package dispenser

import (
	"math"
	"strconv"
	"strings"
)

// Identifier is one level of a sensitive element identity, e.g. sector 3.
type Identifier struct {
	Name  string
	Value int
}

// Hit is the raw simulated hit of one sensitive element in one event.
type Hit struct {
	Identity []Identifier
	Edeps    []float64 // MeV, one per step
	Times    []float64 // ns, one per step
	Pid      int
	Energy   float64 // MeV
}

func (h *Hit) TotalEnergyDeposited() float64 {
	total := 0.0
	for _, e := range h.Edeps {
		total += e
	}
	return total
}

// AverageTime is the energy weighted mean time of the steps, or the plain
// mean when no energy was deposited.
func (h *Hit) AverageTime() float64 {
	if len(h.Times) == 0 {
		return 0
	}
	total := h.TotalEnergyDeposited()
	sum := 0.0
	if total > 0 && len(h.Edeps) == len(h.Times) {
		for i, t := range h.Times {
			sum += t * h.Edeps[i]
		}
		return sum / total
	}
	for _, t := range h.Times {
		sum += t
	}
	return sum / float64(len(h.Times))
}

// TTID is the identity as translation table key components.
func (h *Hit) TTID() []int {
	ids := make([]int, len(h.Identity))
	for i, id := range h.Identity {
		ids[i] = id.Value
	}
	return ids
}

// TTKey joins identity values with "-", the translation table key format.
func TTKey(ids []int) string {
	parts := make([]string, len(ids))
	for i, v := range ids {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, "-")
}

// ReadoutSpecs describe the electronics time grid of a detector.
type ReadoutSpecs struct {
	TimeWindow    float64 // ns
	GridStartTime float64 // ns
}

// TimeCellIndex returns the 1-based electronics time cell of t.
func (r ReadoutSpecs) TimeCellIndex(t float64) int {
	return int(math.Floor((t-r.GridStartTime)/r.TimeWindow)) + 1
}
