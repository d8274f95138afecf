// Package forensics keeps an ordered event timeline and mines patterns
// from records and events after the fact.
package forensics

import (
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/SlimBron57/bitacora-sub000/internal/clock"
	"github.com/SlimBron57/bitacora-sub000/internal/metrics"
	"github.com/SlimBron57/bitacora-sub000/internal/record"
	"github.com/SlimBron57/bitacora-sub000/internal/space"
)

// Engine owns the timeline and the pattern log. Both only grow.
type Engine struct {
	cfg     Config
	clock   clock.Clock
	logger  *slog.Logger
	journal Journal
	metrics *metrics.Metrics

	mu       sync.RWMutex
	timeline []Event
	patterns []Pattern
}

func NewEngine(cfg Config) *Engine {
	return &Engine{
		cfg:    cfg,
		clock:  clock.Real{},
		logger: slog.Default(),
	}
}

// SetClock replaces the time source (for testing).
func (e *Engine) SetClock(c clock.Clock) { e.clock = c }

func (e *Engine) SetLogger(l *slog.Logger) { e.logger = l }

func (e *Engine) SetMetrics(m *metrics.Metrics) { e.metrics = m }

// SetJournal mirrors new events and patterns to j. Call Load afterwards to
// restore earlier history.
func (e *Engine) SetJournal(j Journal) { e.journal = j }

func (e *Engine) Config() Config { return e.cfg }

// Load restores the timeline and pattern log from the journal.
func (e *Engine) Load() error {
	if e.journal == nil {
		return nil
	}
	events, err := e.journal.LoadEvents()
	if err != nil {
		return fmt.Errorf("loading timeline: %w", err)
	}
	patterns, err := e.journal.LoadPatterns()
	if err != nil {
		return fmt.Errorf("loading patterns: %w", err)
	}
	slices.SortStableFunc(events, byTime)

	e.mu.Lock()
	e.timeline = events
	e.patterns = patterns
	e.mu.Unlock()
	e.logger.Debug("forensics state loaded", "events", len(events), "patterns", len(patterns))
	return nil
}

func byTime(a, b Event) int { return a.At.Compare(b.At) }

// RecordEvent appends ev to the timeline and keeps it ordered by time.
// Events with equal timestamps keep their insertion order. A missing id or
// timestamp is filled in. The stored event is returned.
func (e *Engine) RecordEvent(ev Event) Event {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.At.IsZero() {
		ev.At = e.clock.Now()
	}
	ev = ev.clone()

	e.mu.Lock()
	e.timeline = append(e.timeline, ev)
	slices.SortStableFunc(e.timeline, byTime)
	e.mu.Unlock()

	e.metrics.TimelineEvent(string(ev.Kind))
	if e.journal != nil {
		if err := e.journal.AppendEvent(ev); err != nil {
			e.logger.Warn("journal append failed", "event_id", ev.ID, "error", err)
		}
	}
	return ev.clone()
}

// Observe converts a record store activity into a timeline event. It is
// meant to be installed with record.Store.OnActivity.
func (e *Engine) Observe(a record.Activity) {
	kind := EventQuery
	switch a.Op {
	case record.OpInsert:
		kind = EventInsert
	case record.OpUpdate:
		kind = EventUpdate
	case record.OpDelete:
		kind = EventDelete
	}
	e.RecordEvent(Event{Kind: kind, At: a.At, RecordID: a.RecordID, Coords: a.Coords, Metadata: a.Meta})
}

// Timeline returns a deep copy of every event in chronological order.
func (e *Engine) Timeline() []Event {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return cloneEvents(e.timeline)
}

// Patterns returns a deep copy of the pattern log in detection order.
func (e *Engine) Patterns() []Pattern {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return clonePatterns(e.patterns)
}

// ReconstructTimeline returns events with start <= At <= end in
// chronological order. end before start yields an empty result, not an
// error.
func (e *Engine) ReconstructTimeline(start, end time.Time) []Event {
	if end.Before(start) {
		return []Event{}
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	lo, _ := slices.BinarySearchFunc(e.timeline, start, func(ev Event, t time.Time) int { return ev.At.Compare(t) })
	out := []Event{}
	for _, ev := range e.timeline[lo:] {
		if ev.At.After(end) {
			break
		}
		out = append(out, ev.clone())
	}
	return out
}

func (e *Engine) TimelineStats() TimelineStats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	st := TimelineStats{
		TotalEvents:    len(e.timeline),
		ByKind:         make(map[EventKind]int),
		TotalPatterns:  len(e.patterns),
		PatternsByKind: make(map[PatternKind]int),
	}
	for _, ev := range e.timeline {
		st.ByKind[ev.Kind]++
	}
	for _, p := range e.patterns {
		st.PatternsByKind[p.Kind]++
	}
	if n := len(e.timeline); n > 0 {
		st.First = e.timeline[0].At
		st.Last = e.timeline[n-1].At
	}
	return st
}

// Diff compares two versions of a record axis by axis in space.AxisNames
// order. Deltas are after minus before.
func (e *Engine) Diff(before, after record.Record) Diff {
	names := space.AxisNames()
	d := Diff{OldID: before.ID, NewID: after.ID, Axes: make([]AxisDelta, len(names))}
	for i, name := range names {
		delta := after.Features[i] - before.Features[i]
		d.Axes[i] = AxisDelta{Axis: name, Old: before.Features[i], New: after.Features[i], Delta: delta}
		d.FeatureDistance += math.Abs(delta)
	}
	oc, nc := before.Coords.Components(), after.Coords.Components()
	for i := range d.CoordDelta {
		d.CoordDelta[i] = nc[i] - oc[i]
	}
	d.SpatialDistance = space.Distance(before.Coords, after.Coords)
	d.Distance = d.SpatialDistance + d.FeatureDistance
	return d
}

// commit stamps, filters and logs freshly mined patterns. Patterns below
// the minimum confidence are dropped. Each surviving pattern also lands on
// the timeline as a pattern_detected event.
func (e *Engine) commit(kind PatternKind, confidence float64, found []Pattern) []Pattern {
	if len(found) == 0 {
		return []Pattern{}
	}
	if confidence < e.cfg.MinPatternConfidence {
		e.logger.Debug("patterns below confidence floor discarded", "kind", kind, "count", len(found), "confidence", confidence)
		return []Pattern{}
	}
	now := e.clock.Now()
	for i := range found {
		found[i].ID = uuid.New().String()
		found[i].Kind = kind
		found[i].Confidence = confidence
		found[i].DetectedAt = now
	}

	e.mu.Lock()
	e.patterns = append(e.patterns, clonePatterns(found)...)
	e.mu.Unlock()

	e.metrics.PatternsDetected(string(kind), len(found))
	e.logger.Info("patterns detected", "kind", kind, "count", len(found))
	for _, p := range found {
		if e.journal != nil {
			if err := e.journal.AppendPattern(p); err != nil {
				e.logger.Warn("journal append failed", "pattern_id", p.ID, "error", err)
			}
		}
		e.RecordEvent(Event{Kind: EventPatternDetected, At: now, Metadata: map[string]string{
			"pattern_id": p.ID,
			"pattern":    string(p.Kind),
		}})
	}
	return found
}
