package pronunciation

import (
	"math"
	"sort"
)

// Normalize converts provider segments into typed segments. Entries without a finite
// start and end are dropped, non-finite optional values become nil, and the result is
// sorted by start time.
func Normalize(raw []RawSegment) []Segment {
	out := make([]Segment, 0, len(raw))
	for _, r := range raw {
		if r.Start == nil || r.End == nil || !isFinite(*r.Start) || !isFinite(*r.End) {
			continue
		}
		out = append(out, Segment{
			Start:        *r.Start,
			End:          *r.End,
			AvgLogProb:   finiteOrNil(r.AvgLogProb),
			NoSpeechProb: finiteOrNil(r.NoSpeechProb),
			Text:         r.Text,
		})
	}
	sortByStart(out)
	return out
}

// sanitize applies the same rules as Normalize to already typed segments. It never
// mutates the caller's slice.
func sanitize(segments []Segment) []Segment {
	out := make([]Segment, 0, len(segments))
	for _, s := range segments {
		if !isFinite(s.Start) || !isFinite(s.End) {
			continue
		}
		s.AvgLogProb = finiteOrNil(s.AvgLogProb)
		s.NoSpeechProb = finiteOrNil(s.NoSpeechProb)
		out = append(out, s)
	}
	sortByStart(out)
	return out
}

func sortByStart(segments []Segment) {
	sort.SliceStable(segments, func(i, j int) bool { return segments[i].Start < segments[j].Start })
}

func finiteOrNil(v *float64) *float64 {
	if v == nil || !isFinite(*v) {
		return nil
	}
	x := *v
	return &x
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
