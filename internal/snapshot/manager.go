// Package snapshot freezes record sets into compressed, checksummed artifacts
// on disk and keeps a registry of them with a retention budget.
package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/SlimBron57/bitacora-sub000/internal/cache"
	"github.com/SlimBron57/bitacora-sub000/internal/clock"
	"github.com/SlimBron57/bitacora-sub000/internal/compress"
	"github.com/SlimBron57/bitacora-sub000/internal/errs"
	"github.com/SlimBron57/bitacora-sub000/internal/metrics"
	"github.com/SlimBron57/bitacora-sub000/internal/record"
	"github.com/SlimBron57/bitacora-sub000/internal/storage"
)

const (
	payloadExt  = ".snapshot"
	sidecarExt  = ".metadata.json"
	sidecarRead = 8
)

type entry struct {
	snap Snapshot
	seq  uint64
}

// Manager owns the snapshot registry. All methods are safe for concurrent
// use.
type Manager struct {
	mu    sync.RWMutex
	snaps map[string]*entry
	seq   uint64

	dir   string
	max   int
	codec compress.Codec

	clock    clock.Clock
	logger   *slog.Logger
	metrics  *metrics.Metrics
	cache    *cache.Cache[[]Frozen]
	onChange []func(ChangeOp, Snapshot)
}

// NewManager opens the snapshot directory, creating it if needed, and
// registers every snapshot whose sidecar and payload are both present.
func NewManager(cfg Config, codec compress.Codec) (*Manager, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("snapshot directory is required")
	}
	if codec == nil {
		return nil, fmt.Errorf("compression codec is required")
	}
	if cfg.MaxSnapshots <= 0 {
		cfg.MaxSnapshots = DefaultMaxSnapshots
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: creating snapshot directory: %v", errs.ErrStorageIO, err)
	}

	m := &Manager{
		snaps:  make(map[string]*entry),
		dir:    cfg.Dir,
		max:    cfg.MaxSnapshots,
		codec:  codec,
		clock:  clock.Real{},
		logger: slog.Default(),
	}
	if err := m.load(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manager) SetClock(c clock.Clock)            { m.clock = c }
func (m *Manager) SetLogger(l *slog.Logger)          { m.logger = l }
func (m *Manager) SetMetrics(mt *metrics.Metrics)    { m.metrics = mt }
func (m *Manager) SetCache(c *cache.Cache[[]Frozen]) { m.cache = c }

// OnChange registers fn to be called after a snapshot is created, deleted or
// pruned. Listeners run outside the registry lock.
func (m *Manager) OnChange(fn func(ChangeOp, Snapshot)) {
	m.onChange = append(m.onChange, fn)
}

func (m *Manager) Dir() string { return m.dir }

func (m *Manager) payloadPath(id string) string { return filepath.Join(m.dir, id+payloadExt) }
func (m *Manager) sidecarPath(id string) string { return filepath.Join(m.dir, id+sidecarExt) }

func (m *Manager) load() error {
	dirents, err := os.ReadDir(m.dir)
	if err != nil {
		return fmt.Errorf("%w: reading snapshot directory: %v", errs.ErrStorageIO, err)
	}

	var names []string
	for _, d := range dirents {
		if !d.IsDir() && strings.HasSuffix(d.Name(), sidecarExt) {
			names = append(names, d.Name())
		}
	}

	loaded := make([]*Snapshot, len(names))
	var g errgroup.Group
	g.SetLimit(sidecarRead)
	for i, name := range names {
		g.Go(func() error {
			data, err := os.ReadFile(filepath.Join(m.dir, name))
			if err != nil {
				return fmt.Errorf("%w: reading %s: %v", errs.ErrStorageIO, name, err)
			}
			var s Snapshot
			if err := json.Unmarshal(data, &s); err != nil {
				m.logger.Warn("skipping unreadable snapshot sidecar", "file", name, "error", err)
				return nil
			}
			if _, err := os.Stat(m.payloadPath(s.ID)); err != nil {
				m.logger.Warn("skipping snapshot without payload", "snapshot_id", s.ID, "error", err)
				return nil
			}
			loaded[i] = &s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	var snaps []Snapshot
	for _, s := range loaded {
		if s != nil {
			snaps = append(snaps, *s)
		}
	}
	sort.SliceStable(snaps, func(i, j int) bool {
		if !snaps[i].CreatedAt.Equal(snaps[j].CreatedAt) {
			return snaps[i].CreatedAt.Before(snaps[j].CreatedAt)
		}
		return snaps[i].ID < snaps[j].ID
	})
	for _, s := range snaps {
		m.seq++
		m.snaps[s.ID] = &entry{snap: s, seq: m.seq}
	}
	if len(snaps) > 0 {
		m.logger.Info("snapshots loaded", "count", len(snaps), "dir", m.dir)
	}
	return nil
}

func digest(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Create freezes recs into a new snapshot and returns its id. Either both
// artifacts are written and the snapshot is registered, or nothing is.
// Registering may prune the oldest snapshots beyond the retention budget.
func (m *Manager) Create(name, description string, recs []record.Record, opts ...CreateOption) (string, error) {
	id := uuid.NewString()

	seen := make(map[string]bool, len(recs))
	frozen := make([]Frozen, 0, len(recs))
	ids := make([]string, 0, len(recs))
	for _, r := range recs {
		if seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		frozen = append(frozen, freeze(r, digest(r.Payload)))
		ids = append(ids, r.ID)
	}

	raw, err := json.Marshal(artifact{SnapshotID: id, Records: frozen})
	if err != nil {
		return "", fmt.Errorf("encoding snapshot: %w", err)
	}
	compressed, elapsed, err := m.codec.Compress(raw)
	if err != nil {
		if !errors.Is(err, errs.ErrCompression) {
			err = fmt.Errorf("%w: %v", errs.ErrCompression, err)
		}
		return "", fmt.Errorf("creating snapshot %q: %w", name, err)
	}

	now := m.clock.Now()
	snap := Snapshot{
		ID:               id,
		Name:             name,
		Description:      description,
		CreatedAt:        now,
		UpdatedAt:        now,
		RecordIDs:        ids,
		UncompressedSize: int64(len(raw)),
		CompressedSize:   int64(len(compressed)),
		CompressionTime:  elapsed,
		Compression:      m.codec.Algorithm(),
		CompressionLevel: m.codec.Level(),
		Checksum:         digest(compressed),
	}
	if len(raw) > 0 {
		snap.CompressionRatio = float64(len(compressed)) / float64(len(raw))
	}
	for _, opt := range opts {
		opt(&snap)
	}
	sidecar, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding snapshot metadata: %w", err)
	}

	m.mu.Lock()
	if err := storage.WriteFileAtomic(m.payloadPath(id), compressed, 0o644); err != nil {
		m.mu.Unlock()
		return "", fmt.Errorf("%w: writing snapshot payload: %v", errs.ErrStorageIO, err)
	}
	if err := storage.WriteFileAtomic(m.sidecarPath(id), sidecar, 0o644); err != nil {
		if rmErr := storage.RemoveIfExists(m.payloadPath(id)); rmErr != nil {
			m.logger.Warn("rolling back snapshot payload", "snapshot_id", id, "error", rmErr)
		}
		m.mu.Unlock()
		return "", fmt.Errorf("%w: writing snapshot metadata: %v", errs.ErrStorageIO, err)
	}
	m.seq++
	m.snaps[id] = &entry{snap: snap, seq: m.seq}
	pruned := m.pruneLocked()
	m.mu.Unlock()

	m.metrics.SnapshotCreated(snap.UncompressedSize, snap.CompressedSize)
	m.logger.Info("snapshot created",
		"snapshot_id", id,
		"name", name,
		"records", len(ids),
		"compressed_bytes", snap.CompressedSize,
		"ratio", snap.CompressionRatio,
		"compression_time", elapsed,
	)
	m.notify(ChangeCreated, snap)
	for _, p := range pruned {
		m.metrics.SnapshotPruned()
		m.logger.Info("snapshot pruned", "snapshot_id", p.ID, "name", p.Name)
		m.notify(ChangePruned, p)
	}
	return id, nil
}

// pruneLocked drops the oldest snapshots until the registry is within
// budget. Ties on CreatedAt fall back to registration order.
func (m *Manager) pruneLocked() []Snapshot {
	var pruned []Snapshot
	for len(m.snaps) > m.max {
		var oldest *entry
		for _, e := range m.snaps {
			if oldest == nil || older(e, oldest) {
				oldest = e
			}
		}
		id := oldest.snap.ID
		if err := m.removeFiles(id); err != nil {
			m.logger.Warn("removing pruned snapshot files", "snapshot_id", id, "error", err)
		}
		delete(m.snaps, id)
		m.cache.Del(id)
		pruned = append(pruned, oldest.snap.clone())
	}
	return pruned
}

func older(a, b *entry) bool {
	if !a.snap.CreatedAt.Equal(b.snap.CreatedAt) {
		return a.snap.CreatedAt.Before(b.snap.CreatedAt)
	}
	return a.seq < b.seq
}

func (m *Manager) removeFiles(id string) error {
	if err := storage.RemoveIfExists(m.sidecarPath(id)); err != nil {
		return err
	}
	return storage.RemoveIfExists(m.payloadPath(id))
}

func (m *Manager) notify(op ChangeOp, s Snapshot) {
	for _, fn := range m.onChange {
		fn(op, s)
	}
}

// Get returns the snapshot metadata for id.
func (m *Manager) Get(id string) (Snapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.snaps[id]
	if !ok {
		return Snapshot{}, false
	}
	return e.snap.clone(), true
}

// Delete removes the snapshot and its artifacts. Deleting an unknown id is a
// no-op.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	e, ok := m.snaps[id]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	if err := m.removeFiles(id); err != nil {
		m.mu.Unlock()
		return fmt.Errorf("%w: deleting snapshot %s: %v", errs.ErrStorageIO, id, err)
	}
	delete(m.snaps, id)
	m.cache.Del(id)
	snap := e.snap.clone()
	m.mu.Unlock()

	m.logger.Info("snapshot deleted", "snapshot_id", id)
	m.notify(ChangeDeleted, snap)
	return nil
}

// List returns every snapshot, newest first.
func (m *Manager) List() []Snapshot {
	m.mu.RLock()
	entries := make([]*entry, 0, len(m.snaps))
	for _, e := range m.snaps {
		entries = append(entries, e)
	}
	m.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool { return older(entries[j], entries[i]) })
	out := make([]Snapshot, len(entries))
	for i, e := range entries {
		out[i] = e.snap.clone()
	}
	return out
}

// Latest returns the most recently created snapshot.
func (m *Manager) Latest() (Snapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var newest *entry
	for _, e := range m.snaps {
		if newest == nil || older(newest, e) {
			newest = e
		}
	}
	if newest == nil {
		return Snapshot{}, false
	}
	return newest.snap.clone(), true
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.snaps)
}

// Compare diffs the record-id sets of two snapshots. Similarity is the
// unchanged count over the mean set size, and 1 when both sets are empty.
func (m *Manager) Compare(oldID, newID string) (Comparison, error) {
	m.mu.RLock()
	o, okOld := m.snaps[oldID]
	n, okNew := m.snaps[newID]
	var oldIDs, newIDs []string
	if okOld && okNew {
		oldIDs = o.snap.RecordIDs
		newIDs = n.snap.RecordIDs
	}
	m.mu.RUnlock()
	if !okOld {
		return Comparison{}, fmt.Errorf("%w: %s", errs.ErrSnapshotNotFound, oldID)
	}
	if !okNew {
		return Comparison{}, fmt.Errorf("%w: %s", errs.ErrSnapshotNotFound, newID)
	}

	inOld := make(map[string]bool, len(oldIDs))
	for _, id := range oldIDs {
		inOld[id] = true
	}
	inNew := make(map[string]bool, len(newIDs))
	for _, id := range newIDs {
		inNew[id] = true
	}

	c := Comparison{
		OldID:     oldID,
		NewID:     newID,
		Added:     []string{},
		Deleted:   []string{},
		Unchanged: []string{},
	}
	for _, id := range newIDs {
		if !inOld[id] {
			c.Added = append(c.Added, id)
		}
	}
	for _, id := range oldIDs {
		if inNew[id] {
			c.Unchanged = append(c.Unchanged, id)
		} else {
			c.Deleted = append(c.Deleted, id)
		}
	}

	mean := float64(len(inOld)+len(inNew)) / 2
	if mean == 0 {
		c.Similarity = 1
	} else {
		c.Similarity = float64(len(c.Unchanged)) / mean
	}
	return c, nil
}

// Records decodes the frozen record states of snapshot id. The artifact is
// verified against its checksum before it is decompressed. Decoded contents
// go through the cache when one is set.
func (m *Manager) Records(id string) ([]Frozen, error) {
	snap, ok := m.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", errs.ErrSnapshotNotFound, id)
	}
	if recs, ok := m.cache.Get(id); ok {
		return cloneFrozen(recs), nil
	}

	data, err := os.ReadFile(m.payloadPath(id))
	if err != nil {
		return nil, fmt.Errorf("%w: reading snapshot %s: %v", errs.ErrStorageIO, id, err)
	}
	if digest(data) != snap.Checksum {
		return nil, fmt.Errorf("%w: snapshot %s fails checksum", errs.ErrStorageIO, id)
	}

	codec := m.codec
	if codec.Algorithm() != snap.Compression || codec.Level() != snap.CompressionLevel {
		codec, err = compress.New(snap.Compression, snap.CompressionLevel)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errs.ErrCompression, err)
		}
	}
	raw, err := codec.Decompress(data)
	if err != nil {
		return nil, fmt.Errorf("decompressing snapshot %s: %w", id, err)
	}

	var a artifact
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, fmt.Errorf("%w: decoding snapshot %s: %v", errs.ErrStorageIO, id, err)
	}
	m.cache.Set(id, cloneFrozen(a.Records), int64(len(raw)))
	return a.Records, nil
}

// Refresh bumps UpdatedAt and rewrites the sidecar. The record set and the
// artifact are left untouched.
func (m *Manager) Refresh(id string) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.snaps[id]
	if !ok {
		return Snapshot{}, fmt.Errorf("%w: %s", errs.ErrSnapshotNotFound, id)
	}
	updated := e.snap.clone()
	updated.UpdatedAt = m.clock.Now()
	sidecar, err := json.MarshalIndent(updated, "", "  ")
	if err != nil {
		return Snapshot{}, fmt.Errorf("encoding snapshot metadata: %w", err)
	}
	if err := storage.WriteFileAtomic(m.sidecarPath(id), sidecar, 0o644); err != nil {
		return Snapshot{}, fmt.Errorf("%w: writing snapshot metadata: %v", errs.ErrStorageIO, err)
	}
	e.snap = updated
	return updated.clone(), nil
}
