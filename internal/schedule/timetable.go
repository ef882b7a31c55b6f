package schedule

import (
	"cmp"
	"slices"
)

// Setpoint is a block's temperature directive. Reset marks the sentinel that
// reverts an overridden stretch of time back to the base schedule.
type Setpoint struct {
	Temperature float64
	Reset       bool
}

// Interval is a half-open [Start, End) slice of a zone's 24-hour ring.
type Interval struct {
	Start    string
	End      string
	Setpoint Setpoint
}

// RawBlock is a block as authored in a schedule definition: a time token
// (static or dynamic) and a setpoint. Source order is irrelevant, except as a
// tie-break when two blocks resolve to the same time of day.
type RawBlock struct {
	Time     string
	Setpoint Setpoint
}

// compile converts a zone's raw blocks into an ordered ring of intervals
// covering the full 24 hours: each block runs until the next block's start,
// the last one wrapping around to the first. A single-block zone compiles to
// one full-day interval. When blocks resolve to the same time of day, the
// earlier one (in source order) collapses to zero length and is dropped.
func compile(blocks []RawBlock, env map[string]string) ([]Interval, error) {
	resolved := make([]RawBlock, len(blocks))
	copy(resolved, blocks)
	for i := range resolved {
		t, err := ResolveTime(resolved[i].Time, env)
		if err != nil {
			return nil, err
		}
		resolved[i].Time = t
	}
	slices.SortStableFunc(resolved, func(a, b RawBlock) int {
		return cmp.Compare(timeValue(a.Time), timeValue(b.Time))
	})

	if len(resolved) == 1 {
		return []Interval{{Start: "00:00", End: "00:00", Setpoint: resolved[0].Setpoint}}, nil
	}

	intervals := make([]Interval, 0, len(resolved))
	for i := range resolved {
		next := resolved[(i+1)%len(resolved)]
		if resolved[i].Time == next.Time {
			// duplicate resolved times: the earlier block collapses to zero
			// length and is dropped, so the later block wins
			continue
		}
		intervals = append(intervals, Interval{Start: resolved[i].Time, End: next.Time, Setpoint: resolved[i].Setpoint})
	}
	if len(intervals) == 0 {
		return []Interval{{Start: "00:00", End: "00:00", Setpoint: resolved[len(resolved)-1].Setpoint}}, nil
	}
	slices.SortStableFunc(intervals, byStart)
	return intervals, nil
}

func byStart(a, b Interval) int {
	return cmp.Compare(timeValue(a.Start), timeValue(b.Start))
}

type taggedInterval struct {
	Interval
	override bool
}

// merge overlays the override ring onto the base ring. Non-reset override
// intervals win over base intervals; a reset override reverts to whatever the
// base schedule held at that point, until the next override boundary. The
// result is a non-overlapping, gap-free ring with adjacent equal setpoints
// coalesced. merge is not commutative.
func merge(base, override []Interval) []Interval {
	if len(base) == 0 {
		return coalesce(override)
	}

	entries := make([]taggedInterval, 0, len(base)+len(override))
	for _, interval := range base {
		entries = append(entries, taggedInterval{Interval: interval})
	}
	for _, interval := range override {
		entries = append(entries, taggedInterval{Interval: interval, override: true})
	}
	slices.SortStableFunc(entries, func(a, b taggedInterval) int {
		return cmp.Compare(timeValue(a.Start), timeValue(b.Start))
	})

	// the ring is circular: the base interval in effect before the first
	// entry is the last base interval in time order
	var lastBase Interval
	for i := len(entries) - 1; i >= 0; i-- {
		if !entries[i].override {
			lastBase = entries[i].Interval
			break
		}
	}

	// likewise, the override interval in effect before the first entry is the
	// last override in time order: when it holds a setpoint rather than a
	// reset, the walk starts inside an override region and that override owns
	// the stretch past 00:00
	var inOverride bool
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].override {
			inOverride = !entries[i].Setpoint.Reset
			break
		}
	}

	merged := make([]Interval, 0, len(entries))
	for _, entry := range entries {
		switch {
		case entry.override && entry.Setpoint.Reset:
			merged = append(merged, Interval{Start: entry.Start, End: lastBase.End, Setpoint: lastBase.Setpoint})
			inOverride = false
		case entry.override:
			merged = append(merged, entry.Interval)
			inOverride = true
		default:
			lastBase = entry.Interval
			if !inOverride {
				merged = append(merged, entry.Interval)
			}
		}
	}

	// recompute each end as the next entry's start and drop the intervals
	// that collapsed
	recomputed := make([]Interval, 0, len(merged))
	for i := range merged {
		end := merged[(i+1)%len(merged)].Start
		if merged[i].Start == end {
			continue
		}
		recomputed = append(recomputed, Interval{Start: merged[i].Start, End: end, Setpoint: merged[i].Setpoint})
	}
	if len(recomputed) == 0 && len(merged) > 0 {
		// a single owner of the whole ring: canonical full-day interval
		recomputed = []Interval{{Start: "00:00", End: "00:00", Setpoint: merged[len(merged)-1].Setpoint}}
	}
	return coalesce(recomputed)
}

// coalesce joins adjacent intervals holding the same setpoint. The sequence
// is processed linearly: the first interval starts the output.
func coalesce(intervals []Interval) []Interval {
	if len(intervals) == 0 {
		return intervals
	}
	joined := make([]Interval, 0, len(intervals))
	current := intervals[0]
	for _, interval := range intervals[1:] {
		if interval.Setpoint == current.Setpoint {
			current.End = interval.End
			continue
		}
		joined = append(joined, current)
		current = interval
	}
	return append(joined, current)
}
