package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/SlimBron57/bitacora-sub000/internal/cache"
	"github.com/SlimBron57/bitacora-sub000/internal/compress"
	"github.com/SlimBron57/bitacora-sub000/internal/config"
	"github.com/SlimBron57/bitacora-sub000/internal/forensics"
	"github.com/SlimBron57/bitacora-sub000/internal/metrics"
	"github.com/SlimBron57/bitacora-sub000/internal/record"
	"github.com/SlimBron57/bitacora-sub000/internal/snapshot"
	"github.com/SlimBron57/bitacora-sub000/internal/space"
	"github.com/SlimBron57/bitacora-sub000/internal/storage"
)

// app is every component of one CLI invocation, wired together.
type app struct {
	cfg       config.Config
	registry  *prometheus.Registry
	metrics   *metrics.Metrics
	store     *storage.Store
	records   *record.Store
	forensics *forensics.Engine
	snapshots *snapshot.Manager
	cache     *cache.Cache[[]snapshot.Frozen]
}

func setupLogging(level string) {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}

func forensicsConfig(cfg config.ForensicsConfig) forensics.Config {
	return forensics.Config{
		ClusterThreshold:      cfg.ClusterThreshold,
		TemporalWindow:        cfg.TemporalWindow(),
		MinPatternConfidence:  cfg.MinPatternConfidence,
		ClusterConfidence:     cfg.ClusterConfidence,
		SequenceConfidence:    cfg.SequenceConfidence,
		TrendConfidence:       cfg.TrendConfidence,
		OscillationConfidence: cfg.OscillationConfidence,
		AnomalyConfidence:     cfg.AnomalyConfidence,
		AnomalyThreshold:      cfg.AnomalyThreshold,
	}
}

// openApp loads the configuration and opens every component over the data
// directory. Callers must Close the result.
func openApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	setupLogging(cfg.Log.Level)
	return newApp(cfg)
}

func newApp(cfg config.Config) (*app, error) {
	a := &app{cfg: cfg, registry: prometheus.NewRegistry()}

	m, err := metrics.New(a.registry)
	if err != nil {
		return nil, fmt.Errorf("registering metrics: %w", err)
	}
	a.metrics = m

	shape, err := space.ParseShape(cfg.Space.Shape)
	if err != nil {
		return nil, err
	}
	sp, err := space.New(shape)
	if err != nil {
		return nil, err
	}

	a.store, err = storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	a.forensics = forensics.NewEngine(forensicsConfig(cfg.Forensics))
	a.forensics.SetMetrics(m)
	a.forensics.SetJournal(a.store)
	if err := a.forensics.Load(); err != nil {
		a.Close()
		return nil, err
	}

	a.records = record.NewStore(sp, cfg.Record.TopK)
	a.records.SetMetrics(m)
	a.records.SetPersister(a.store)
	if err := a.records.Load(); err != nil {
		a.Close()
		return nil, err
	}
	a.records.OnActivity(a.forensics.Observe)

	alg, err := compress.ParseAlgorithm(cfg.Snapshot.Compression)
	if err != nil {
		a.Close()
		return nil, err
	}
	codec, err := compress.New(alg, cfg.Snapshot.CompressionLevel)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.snapshots, err = snapshot.NewManager(snapshot.Config{
		Dir:          filepath.Join(cfg.Storage.DataDir, "snapshots"),
		MaxSnapshots: cfg.Snapshot.MaxSnapshots,
	}, codec)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("opening snapshots: %w", err)
	}
	a.snapshots.SetMetrics(m)

	a.cache, err = cache.New[[]snapshot.Frozen](int64(cfg.Snapshot.CacheMaxCost))
	if err != nil {
		a.Close()
		return nil, err
	}
	a.snapshots.SetCache(a.cache)
	a.snapshots.OnChange(a.snapshotEvent)

	return a, nil
}

// snapshotEvent puts snapshot lifecycle changes on the forensic timeline.
func (a *app) snapshotEvent(op snapshot.ChangeOp, s snapshot.Snapshot) {
	a.forensics.RecordEvent(forensics.Event{
		Kind: forensics.EventSnapshot,
		Metadata: map[string]string{
			"op":          string(op),
			"snapshot_id": s.ID,
			"name":        s.Name,
			"records":     fmt.Sprintf("%d", len(s.RecordIDs)),
		},
	})
}

// autoSnapshot takes a snapshot after a write when auto snapshots are
// enabled and the latest snapshot is older than the configured interval.
// Failures are logged; the write itself already succeeded.
func (a *app) autoSnapshot(ctx context.Context) {
	if !a.cfg.Snapshot.AutoEnabled {
		return
	}
	interval := a.cfg.Snapshot.Interval()
	if latest, ok := a.snapshots.Latest(); ok && time.Since(latest.CreatedAt) < interval {
		return
	}
	auto := snapshot.NewAutoSnapshotter(a.snapshots, a.records, interval)
	if _, err := auto.RunOnce(ctx); err != nil {
		slog.Warn("auto snapshot failed", "error", err)
	}
}

// recordsFor returns the current records, or the frozen records of
// snapshotID when it is set.
func (a *app) recordsFor(snapshotID string) ([]record.Record, error) {
	if snapshotID == "" {
		return a.records.All(), nil
	}
	frozen, err := a.snapshots.Records(snapshotID)
	if err != nil {
		return nil, err
	}
	out := make([]record.Record, len(frozen))
	for i, f := range frozen {
		out[i] = f.Record()
	}
	return out, nil
}

func (a *app) Close() {
	a.cache.Close()
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}
}
