package forensics

import (
	"maps"
	"slices"
	"time"

	"github.com/SlimBron57/bitacora-sub000/internal/space"
)

// EventKind classifies a timeline entry.
type EventKind string

const (
	EventInsert          EventKind = "insert"
	EventUpdate          EventKind = "update"
	EventDelete          EventKind = "delete"
	EventSnapshot        EventKind = "snapshot"
	EventQuery           EventKind = "query"
	EventPatternDetected EventKind = "pattern_detected"
)

// EventKinds lists every kind in display order.
var EventKinds = []EventKind{EventInsert, EventUpdate, EventDelete, EventSnapshot, EventQuery, EventPatternDetected}

// Event is one append-only timeline entry. RecordID and Coords are empty
// for events not tied to a record.
type Event struct {
	ID       string            `json:"id"`
	At       time.Time         `json:"at"`
	Kind     EventKind         `json:"kind"`
	RecordID string            `json:"record_id,omitempty"`
	Coords   space.Coordinates `json:"coords"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func (ev Event) clone() Event {
	ev.Metadata = maps.Clone(ev.Metadata)
	return ev
}

// PatternKind classifies a mined pattern.
type PatternKind string

const (
	PatternSpatialCluster   PatternKind = "spatial_cluster"
	PatternTemporalSequence PatternKind = "temporal_sequence"
	PatternTrend            PatternKind = "trend"
	PatternOscillation      PatternKind = "oscillation"
	PatternAnomaly          PatternKind = "anomaly"
)

// Pattern is a mined observation. Members are record ids for spatial,
// drift and anomaly patterns and event ids for temporal sequences.
type Pattern struct {
	ID          string      `json:"id"`
	Kind        PatternKind `json:"kind"`
	Members     []string    `json:"members"`
	Confidence  float64     `json:"confidence"`
	Description string      `json:"description"`
	DetectedAt  time.Time   `json:"detected_at"`
}

func (p Pattern) clone() Pattern {
	p.Members = slices.Clone(p.Members)
	return p
}

func cloneEvents(evs []Event) []Event {
	out := make([]Event, len(evs))
	for i, ev := range evs {
		out[i] = ev.clone()
	}
	return out
}

func clonePatterns(ps []Pattern) []Pattern {
	out := make([]Pattern, len(ps))
	for i, p := range ps {
		out[i] = p.clone()
	}
	return out
}

// AxisDelta is the change of one feature axis between two records.
type AxisDelta struct {
	Axis  string  `json:"axis"`
	Old   float64 `json:"old"`
	New   float64 `json:"new"`
	Delta float64 `json:"delta"`
}

// Diff compares two records. Distance is the coordinate distance plus the
// sum of absolute per-axis deltas.
type Diff struct {
	OldID           string      `json:"old_id"`
	NewID           string      `json:"new_id"`
	Axes            []AxisDelta `json:"axes"`
	CoordDelta      [3]float64  `json:"coord_delta"`
	SpatialDistance float64     `json:"spatial_distance"`
	FeatureDistance float64     `json:"feature_distance"`
	Distance        float64     `json:"distance"`
}

// TimelineStats summarizes the timeline and the pattern log. First and Last
// are zero when the timeline is empty.
type TimelineStats struct {
	TotalEvents    int                 `json:"total_events"`
	ByKind         map[EventKind]int   `json:"by_kind"`
	First          time.Time           `json:"first"`
	Last           time.Time           `json:"last"`
	TotalPatterns  int                 `json:"total_patterns"`
	PatternsByKind map[PatternKind]int `json:"patterns_by_kind"`
}

// Config holds the mining thresholds and the fixed confidence assigned to
// each pattern kind. Confidences are constants by kind, not derived from
// the data.
type Config struct {
	ClusterThreshold      float64
	TemporalWindow        time.Duration
	MinPatternConfidence  float64
	ClusterConfidence     float64
	SequenceConfidence    float64
	TrendConfidence       float64
	OscillationConfidence float64
	AnomalyConfidence     float64
	AnomalyThreshold      float64
}

func DefaultConfig() Config {
	return Config{
		ClusterThreshold:      0.3,
		TemporalWindow:        time.Hour,
		MinPatternConfidence:  0.7,
		ClusterConfidence:     0.85,
		SequenceConfidence:    0.80,
		TrendConfidence:       0.75,
		OscillationConfidence: 0.70,
		AnomalyConfidence:     0.80,
		AnomalyThreshold:      0.5,
	}
}

// Journal persists the timeline and the pattern log. Implemented by
// storage.Store.
type Journal interface {
	AppendEvent(ev Event) error
	AppendPattern(p Pattern) error
	LoadEvents() ([]Event, error)
	LoadPatterns() ([]Pattern, error)
}
