package filter

import "sort"

// Reason is the human readable cause of a rejection. The strings are stable and
// appear in summaries, the render_tally table and the API.
type Reason string

const (
	ReasonBadRecord        Reason = "Bad route record"
	ReasonPublic           Reason = "Route is public"
	ReasonPrivate          Reason = "Route is private"
	ReasonOperatorNotIn    Reason = "Operator not included"
	ReasonOperatorExcluded Reason = "Operator excluded"
	ReasonModeNotIn        Reason = "Mode not included"
	ReasonModeExcluded     Reason = "Mode excluded"
	ReasonBadBox           Reason = "Bad bounding box"
	ReasonOutOfBox         Reason = "Out of bounding box"
	ReasonTooLong          Reason = "Route too long"
	ReasonTooShort         Reason = "Route too short"
	ReasonLowFrequency     Reason = "Low frequency"
	ReasonGeometryMissing  Reason = "Geometry missing"
	ReasonGeometryIO       Reason = "Geometry unreadable"
	ReasonInvalidLine      Reason = "Invalid line data"
	ReasonSegmentTooLong   Reason = "Segment too long"
)

// Tally counts rejected routes by reason for one run
type Tally struct {
	counts map[Reason]int
	total  int
}

// NewTally returns an empty tally
func NewTally() *Tally {
	return &Tally{counts: make(map[Reason]int)}
}

// Add records one rejection
func (t *Tally) Add(r Reason) {
	if t.counts == nil {
		t.counts = make(map[Reason]int)
	}
	t.counts[r]++
	t.total++
}

// Count returns how many routes were rejected for r
func (t *Tally) Count(r Reason) int {
	return t.counts[r]
}

// Total returns the number of rejections across all reasons
func (t *Tally) Total() int {
	return t.total
}

// Reasons returns the reasons seen so far, sorted
func (t *Tally) Reasons() []Reason {
	out := make([]Reason, 0, len(t.counts))
	for r := range t.counts {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Map returns a copy of the counts keyed by reason string
func (t *Tally) Map() map[string]int {
	out := make(map[string]int, len(t.counts))
	for r, n := range t.counts {
		out[string(r)] = n
	}
	return out
}
