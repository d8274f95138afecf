// Package record implements the coordinate-addressed record store: records
// are positioned by their feature vector, indexed in an octree and served
// through radius and similarity queries.
package record

import (
	"cmp"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/SlimBron57/bitacora-sub000/internal/clock"
	"github.com/SlimBron57/bitacora-sub000/internal/errs"
	"github.com/SlimBron57/bitacora-sub000/internal/metrics"
	"github.com/SlimBron57/bitacora-sub000/internal/octree"
	"github.com/SlimBron57/bitacora-sub000/internal/space"
)

// DefaultTopK bounds every query result.
const DefaultTopK = 10

// radiusSlack widens the index lookup so rounding differences between the
// Cartesian index and the shape metric never drop a boundary hit. The final
// filter always uses the shape metric.
const radiusSlack = 1e-9

type entry struct {
	rec Record
	seq uint64
}

// Store owns the authoritative id → Record table.
type Store struct {
	space  space.Space
	topK   int
	effAx  space.Axis
	effOn  bool
	clock  clock.Clock
	logger *slog.Logger

	persist  Persister
	metrics  *metrics.Metrics
	activity func(Activity)

	mu         sync.RWMutex
	records    map[string]*entry
	index      *octree.Tree
	seq        uint64
	queries    uint64
	queryTotal time.Duration
}

// NewStore creates an empty store over sp. topK <= 0 uses DefaultTopK.
func NewStore(sp space.Space, topK int) *Store {
	if topK <= 0 {
		topK = DefaultTopK
	}
	lo, hi := sp.Bounds()
	effAx, effOn := space.EffectivenessAxis(sp)
	return &Store{
		space:   sp,
		topK:    topK,
		effAx:   effAx,
		effOn:   effOn,
		clock:   clock.Real{},
		logger:  slog.Default(),
		records: make(map[string]*entry),
		index:   octree.New(lo, hi),
	}
}

// SetClock replaces the time source (for testing).
func (s *Store) SetClock(c clock.Clock) { s.clock = c }

func (s *Store) SetLogger(l *slog.Logger) { s.logger = l }

// SetPersister mirrors every mutation to p. Call Load afterwards to
// restore previously persisted records.
func (s *Store) SetPersister(p Persister) { s.persist = p }

func (s *Store) SetMetrics(m *metrics.Metrics) { s.metrics = m }

// OnActivity registers fn to be called after every completed mutation and
// query. fn runs outside the store lock.
func (s *Store) OnActivity(fn func(Activity)) { s.activity = fn }

// SetEffectivenessAxis selects the feature axis overwritten by RecordUsage.
// Cubic stores default to the z axis; spherical stores write none unless
// one is set here.
func (s *Store) SetEffectivenessAxis(a space.Axis) { s.effAx, s.effOn = a, true }

func (s *Store) Space() space.Space { return s.space }

func (s *Store) TopK() int { return s.topK }

func (s *Store) emit(a Activity) {
	if s.activity != nil {
		s.activity(a)
	}
}

// Load replaces the in-memory table with the persister's records.
// Coordinates are recomputed from the stored feature vectors so a change of
// shape between runs is honored.
func (s *Store) Load() error {
	if s.persist == nil {
		return nil
	}
	recs, err := s.persist.LoadRecords()
	if err != nil {
		return fmt.Errorf("loading records: %w", err)
	}
	lo, hi := s.space.Bounds()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]*entry, len(recs))
	s.index = octree.New(lo, hi)
	s.seq = 0
	for _, r := range recs {
		coords, err := s.space.ToCoordinates(r.Features)
		if err != nil {
			s.logger.Warn("skipping persisted record", "record_id", r.ID, "error", err)
			continue
		}
		r.Coords = coords
		if r.Usage.UsageCount == 0 && r.Usage.Score == 0 {
			r.Usage = newEffectiveness()
		}
		s.seq++
		s.records[r.ID] = &entry{rec: r, seq: s.seq}
		s.index.Insert(r.ID, s.space.ToCartesian(coords))
	}
	s.metrics.SetRecords(len(s.records))
	s.logger.Debug("records loaded", "count", len(s.records))
	return nil
}

// Insert positions v, mints a content id and stores the record. Only a
// malformed feature vector (or a persistence failure when a persister is
// set) makes it fail.
func (s *Store) Insert(v space.FeatureVector, payload []byte, metadata map[string]string) (string, error) {
	coords, err := s.space.ToCoordinates(v)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	now := s.clock.Now()
	id := ContentID(payload, now)
	for {
		if _, taken := s.records[id]; !taken {
			break
		}
		now = now.Add(time.Nanosecond)
		id = ContentID(payload, now)
	}
	rec := Record{
		ID:        id,
		Features:  v,
		Coords:    coords,
		Payload:   append([]byte(nil), payload...),
		Metadata:  maps.Clone(metadata),
		CreatedAt: now,
		Usage:     newEffectiveness(),
	}
	if s.persist != nil {
		if err := s.persist.SaveRecord(rec); err != nil {
			s.mu.Unlock()
			return "", err
		}
	}
	s.seq++
	s.records[id] = &entry{rec: rec, seq: s.seq}
	s.index.Insert(id, s.space.ToCartesian(coords))
	total := len(s.records)
	s.mu.Unlock()

	s.metrics.RecordInserted(total)
	s.emit(Activity{Op: OpInsert, RecordID: id, Coords: coords, At: now})
	return id, nil
}

// Get returns a copy of the record with the given id.
func (s *Store) Get(id string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.records[id]
	if !ok {
		return Record{}, false
	}
	return e.rec.Clone(), true
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// All returns a consistent copy of every record in insertion order.
func (s *Store) All() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedLocked()
}

func (s *Store) sortedLocked() []Record {
	es := slices.Collect(maps.Values(s.records))
	slices.SortFunc(es, func(a, b *entry) int { return cmp.Compare(a.seq, b.seq) })
	out := make([]Record, len(es))
	for i, e := range es {
		out[i] = e.rec.Clone()
	}
	return out
}

// Lookup returns copies of the named records taken under one read lock, so
// the set reflects a single point in time. Any unknown id fails the call.
func (s *Store) Lookup(ids []string) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Record, 0, len(ids))
	for _, id := range ids {
		e, ok := s.records[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", errs.ErrRecordNotFound, id)
		}
		out = append(out, e.rec.Clone())
	}
	return out, nil
}

// QueryRadius returns records within radius of center ordered by ascending
// distance, ties broken by insertion order, capped at the store's top-K.
// No match yields an empty slice.
func (s *Store) QueryRadius(center space.Coordinates, radius float64) ([]Neighbor, error) {
	if err := center.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()

	type hit struct {
		e *entry
		d float64
	}
	var hits []hit

	s.mu.RLock()
	if radius >= 0 {
		for _, id := range s.index.QuerySphere(s.space.ToCartesian(center), radius+radiusSlack) {
			e := s.records[id]
			d := s.space.Distance(center, e.rec.Coords)
			if d <= radius {
				hits = append(hits, hit{e: e, d: d})
			}
		}
	}
	slices.SortFunc(hits, func(a, b hit) int {
		if c := cmp.Compare(a.d, b.d); c != 0 {
			return c
		}
		return cmp.Compare(a.e.seq, b.e.seq)
	})
	if len(hits) > s.topK {
		hits = hits[:s.topK]
	}
	out := make([]Neighbor, len(hits))
	for i, h := range hits {
		out[i] = Neighbor{Record: h.e.rec.Clone(), Distance: h.d}
	}
	s.mu.RUnlock()

	elapsed := s.observeQuery("radius", start)
	s.logger.Debug("radius query", "radius", radius, "results", len(out), "elapsed", elapsed)
	s.emit(Activity{Op: OpQuery, Coords: center, At: s.clock.Now(), Meta: map[string]string{
		"kind":    "radius",
		"radius":  strconv.FormatFloat(radius, 'g', -1, 64),
		"results": strconv.Itoa(len(out)),
	}})
	return out, nil
}

// QuerySimilarity scores every record by cosine similarity to query and
// returns those scoring at least minScore, best first, capped at top-K.
func (s *Store) QuerySimilarity(query space.FeatureVector, minScore float64) ([]Scored, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()

	type hit struct {
		e     *entry
		score float64
	}
	var hits []hit

	s.mu.RLock()
	for _, e := range s.records {
		sc := space.CosineSimilarity(query, e.rec.Features)
		if sc >= minScore {
			hits = append(hits, hit{e: e, score: sc})
		}
	}
	slices.SortFunc(hits, func(a, b hit) int {
		if c := cmp.Compare(b.score, a.score); c != 0 {
			return c
		}
		return cmp.Compare(a.e.seq, b.e.seq)
	})
	if len(hits) > s.topK {
		hits = hits[:s.topK]
	}
	out := make([]Scored, len(hits))
	for i, h := range hits {
		out[i] = Scored{Record: h.e.rec.Clone(), Score: h.score}
	}
	s.mu.RUnlock()

	elapsed := s.observeQuery("similarity", start)
	s.logger.Debug("similarity query", "min_score", minScore, "results", len(out), "elapsed", elapsed)
	s.emit(Activity{Op: OpQuery, At: s.clock.Now(), Meta: map[string]string{
		"kind":      "similarity",
		"min_score": strconv.FormatFloat(minScore, 'g', -1, 64),
		"results":   strconv.Itoa(len(out)),
	}})
	return out, nil
}

func (s *Store) observeQuery(kind string, start time.Time) time.Duration {
	elapsed := time.Since(start)
	s.mu.Lock()
	s.queries++
	s.queryTotal += elapsed
	s.mu.Unlock()
	s.metrics.ObserveQuery(kind, elapsed)
	return elapsed
}

// UpdateFeatureVector replaces the record's vector and coordinates and
// moves its index entry under the same write lock.
func (s *Store) UpdateFeatureVector(id string, v space.FeatureVector) error {
	coords, err := s.space.ToCoordinates(v)
	if err != nil {
		return err
	}

	s.mu.Lock()
	e, ok := s.records[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", errs.ErrRecordNotFound, id)
	}
	if err := s.replaceLocked(e, v, coords, e.rec.Usage); err != nil {
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	s.metrics.RecordUpdated()
	s.emit(Activity{Op: OpUpdate, RecordID: id, Coords: coords, At: s.clock.Now()})
	return nil
}

// replaceLocked persists first so a failed write leaves memory untouched.
func (s *Store) replaceLocked(e *entry, v space.FeatureVector, coords space.Coordinates, usage Effectiveness) error {
	next := e.rec
	next.Features = v
	next.Coords = coords
	next.Usage = usage
	if s.persist != nil {
		if err := s.persist.SaveRecord(next); err != nil {
			return err
		}
	}
	e.rec = next
	s.index.Move(next.ID, s.space.ToCartesian(coords))
	return nil
}

// Delete removes the record and its index entry.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	e, ok := s.records[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", errs.ErrRecordNotFound, id)
	}
	if s.persist != nil {
		if err := s.persist.DeleteRecord(id); err != nil {
			s.mu.Unlock()
			return err
		}
	}
	delete(s.records, id)
	s.index.Remove(id)
	total := len(s.records)
	s.mu.Unlock()

	s.metrics.RecordDeleted(total)
	s.emit(Activity{Op: OpDelete, RecordID: id, Coords: e.rec.Coords, At: s.clock.Now()})
	return nil
}

// RecordUsage folds u into the record's effectiveness. When the store has
// an effectiveness axis the score is written into it and the record is
// re-positioned; otherwise features and coordinates are left as they are.
func (s *Store) RecordUsage(id string, u Usage) (Effectiveness, error) {
	s.mu.Lock()
	e, ok := s.records[id]
	if !ok {
		s.mu.Unlock()
		return Effectiveness{}, fmt.Errorf("%w: %s", errs.ErrRecordNotFound, id)
	}
	usage := e.rec.Usage.apply(u)
	v, coords := e.rec.Features, e.rec.Coords
	if s.effOn {
		var err error
		v = v.With(s.effAx, usage.Score)
		if coords, err = s.space.ToCoordinates(v); err != nil {
			s.mu.Unlock()
			return Effectiveness{}, err
		}
	}
	if err := s.replaceLocked(e, v, coords, usage); err != nil {
		s.mu.Unlock()
		return Effectiveness{}, err
	}
	s.mu.Unlock()

	s.metrics.RecordUpdated()
	a := Activity{Op: OpUpdate, RecordID: id, At: s.clock.Now(), Meta: map[string]string{
		"effectiveness": strconv.FormatFloat(usage.Score, 'f', 4, 64),
	}}
	if s.effOn {
		a.Coords = coords
	}
	s.emit(a)
	return usage, nil
}

// Link records that id refers to target. Both records must exist; linking
// twice is a no-op. Links are kept in the order they were added and survive
// a later delete of target.
func (s *Store) Link(id, target string) error {
	s.mu.Lock()
	e, ok := s.records[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", errs.ErrRecordNotFound, id)
	}
	if _, ok := s.records[target]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: link target %s", errs.ErrRecordNotFound, target)
	}
	if slices.Contains(e.rec.Links, target) {
		s.mu.Unlock()
		return nil
	}
	next := e.rec
	next.Links = append(slices.Clone(e.rec.Links), target)
	if s.persist != nil {
		if err := s.persist.SaveRecord(next); err != nil {
			s.mu.Unlock()
			return err
		}
	}
	e.rec = next
	s.mu.Unlock()

	s.metrics.RecordUpdated()
	s.emit(Activity{Op: OpUpdate, RecordID: id, At: s.clock.Now(), Meta: map[string]string{"linked": target}})
	return nil
}

// QueryMetadata returns every record whose metadata has key set to value,
// in insertion order. An empty value matches any record carrying key. No
// match yields an empty slice.
func (s *Store) QueryMetadata(key, value string) []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var es []*entry
	for _, e := range s.records {
		v, ok := e.rec.Metadata[key]
		if ok && (value == "" || v == value) {
			es = append(es, e)
		}
	}
	slices.SortFunc(es, func(a, b *entry) int { return cmp.Compare(a.seq, b.seq) })
	out := make([]Record, len(es))
	for i, e := range es {
		out[i] = e.rec.Clone()
	}
	return out
}

// TopEffective returns up to k records with the highest effectiveness
// score, ties broken by insertion order.
func (s *Store) TopEffective(k int) []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	es := slices.Collect(maps.Values(s.records))
	slices.SortFunc(es, func(a, b *entry) int {
		if c := cmp.Compare(b.rec.Usage.Score, a.rec.Usage.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.seq, b.seq)
	})
	if k > 0 && len(es) > k {
		es = es[:k]
	}
	out := make([]Record, len(es))
	for i, e := range es {
		out[i] = e.rec.Clone()
	}
	return out
}

// Stats summarizes the store.
type Stats struct {
	Shape        space.Shape
	Records      int
	Queries      uint64
	AvgQueryTime time.Duration
	Index        octree.Stats
}

func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Stats{
		Shape:   s.space.Shape(),
		Records: len(s.records),
		Queries: s.queries,
		Index:   s.index.Stats(),
	}
	if s.queries > 0 {
		st.AvgQueryTime = s.queryTotal / time.Duration(s.queries)
	}
	return st
}
