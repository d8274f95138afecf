package forensics

import (
	"fmt"
	"math"
	"time"

	"github.com/SlimBron57/bitacora-sub000/internal/record"
	"github.com/SlimBron57/bitacora-sub000/internal/space"
)

// DetectSpatialClustering groups records whose pairwise distance is at most
// the cluster threshold; groups are the connected components of that
// relation. Every group of two or more records becomes a pattern. Members
// and groups follow input order. The scan is O(n²): callers bound the
// input, typically to one snapshot's records.
func (e *Engine) DetectSpatialClustering(recs []record.Record) []Pattern {
	n := len(recs)
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	find := func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra == rb {
			return
		}
		// lowest index stays root so groups come out in input order
		if rb < ra {
			ra, rb = rb, ra
		}
		parent[rb] = ra
	}

	threshold := e.cfg.ClusterThreshold
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if space.Distance(recs[i].Coords, recs[j].Coords) <= threshold {
				union(i, j)
			}
		}
	}

	groups := make(map[int][]string)
	var roots []int
	for i := 0; i < n; i++ {
		r := find(i)
		if _, ok := groups[r]; !ok {
			roots = append(roots, r)
		}
		groups[r] = append(groups[r], recs[i].ID)
	}

	var found []Pattern
	for _, r := range roots {
		members := groups[r]
		if len(members) < 2 {
			continue
		}
		found = append(found, Pattern{
			Members:     members,
			Description: fmt.Sprintf("spatial cluster of %d records within distance %.3f", len(members), threshold),
		})
	}
	return e.commit(PatternSpatialCluster, e.cfg.ClusterConfidence, found)
}

// DetectTemporalSequences walks the timeline and groups consecutive events
// whose gap, truncated to whole seconds, is at most the temporal window. Sequences of two or more events
// become patterns; the last open sequence is flushed at the end.
// pattern_detected events are derived from mining and are skipped.
func (e *Engine) DetectTemporalSequences() []Pattern {
	window := e.cfg.TemporalWindow
	var found []Pattern
	var cur []Event
	flush := func() {
		if len(cur) >= 2 {
			ids := make([]string, len(cur))
			for i, ev := range cur {
				ids[i] = ev.ID
			}
			span := cur[len(cur)-1].At.Sub(cur[0].At)
			found = append(found, Pattern{
				Members:     ids,
				Description: fmt.Sprintf("temporal sequence of %d events over %s", len(cur), span),
			})
		}
		cur = nil
	}

	for _, ev := range e.Timeline() {
		if ev.Kind == EventPatternDetected {
			continue
		}
		if len(cur) > 0 && ev.At.Sub(cur[len(cur)-1].At).Truncate(time.Second) > window {
			flush()
		}
		cur = append(cur, ev)
	}
	flush()
	return e.commit(PatternTemporalSequence, e.cfg.SequenceConfidence, found)
}

// DetectDrift follows each record's positions on the timeline (insert and
// update events). A coordinate component that moves in one direction over
// at least two steps is a trend; one whose direction flips on every step
// over at least three steps is an oscillation.
func (e *Engine) DetectDrift() []Pattern {
	tracks := make(map[string][][3]float64)
	var order []string
	for _, ev := range e.Timeline() {
		if ev.RecordID == "" || ev.Coords.IsZero() {
			continue
		}
		if ev.Kind != EventInsert && ev.Kind != EventUpdate {
			continue
		}
		if _, ok := tracks[ev.RecordID]; !ok {
			order = append(order, ev.RecordID)
		}
		tracks[ev.RecordID] = append(tracks[ev.RecordID], ev.Coords.Components())
	}

	var trends, oscillations []Pattern
	for _, id := range order {
		track := tracks[id]
		if len(track) < 3 {
			continue
		}
		trended, oscillated := false, false
		for axis := 0; axis < 3; axis++ {
			signs := make([]int, 0, len(track)-1)
			for i := 1; i < len(track); i++ {
				signs = append(signs, sign(track[i][axis]-track[i-1][axis]))
			}
			if !trended && monotone(signs) {
				trended = true
				trends = append(trends, Pattern{
					Members:     []string{id},
					Description: fmt.Sprintf("record drifts %s along component %d over %d steps", direction(signs[0]), axis, len(signs)),
				})
			}
			if !oscillated && len(signs) >= 3 && alternating(signs) {
				oscillated = true
				oscillations = append(oscillations, Pattern{
					Members:     []string{id},
					Description: fmt.Sprintf("record oscillates along component %d over %d steps", axis, len(signs)),
				})
			}
		}
	}
	out := e.commit(PatternTrend, e.cfg.TrendConfidence, trends)
	return append(out, e.commit(PatternOscillation, e.cfg.OscillationConfidence, oscillations)...)
}

// DetectAnomalies flags records whose nearest neighbour in recs is farther
// than the anomaly threshold. Fewer than two records yield nothing.
func (e *Engine) DetectAnomalies(recs []record.Record) []Pattern {
	if len(recs) < 2 {
		return []Pattern{}
	}
	var found []Pattern
	for i, r := range recs {
		nearest := math.Inf(1)
		for j, o := range recs {
			if i == j {
				continue
			}
			if d := space.Distance(r.Coords, o.Coords); d < nearest {
				nearest = d
			}
		}
		if nearest > e.cfg.AnomalyThreshold {
			found = append(found, Pattern{
				Members:     []string{r.ID},
				Description: fmt.Sprintf("isolated record, nearest neighbour at %.3f", nearest),
			})
		}
	}
	return e.commit(PatternAnomaly, e.cfg.AnomalyConfidence, found)
}

func sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

func monotone(signs []int) bool {
	if len(signs) < 2 || signs[0] == 0 {
		return false
	}
	for _, s := range signs[1:] {
		if s != signs[0] {
			return false
		}
	}
	return true
}

func alternating(signs []int) bool {
	for i, s := range signs {
		if s == 0 {
			return false
		}
		if i > 0 && s == signs[i-1] {
			return false
		}
	}
	return true
}

func direction(s int) string {
	if s > 0 {
		return "upward"
	}
	return "downward"
}
