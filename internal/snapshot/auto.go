package snapshot

import (
	"context"
	"encoding/binary"
	"log/slog"
	"math"
	"time"

	"github.com/SlimBron57/bitacora-sub000/internal/record"
)

// DefaultAutoInterval is used when NewAutoSnapshotter gets a non-positive
// interval.
const DefaultAutoInterval = time.Hour

// AutoTag marks snapshots taken by the AutoSnapshotter.
const AutoTag = "auto"

// RecordSource yields a consistent copy of the current record set.
type RecordSource interface {
	All() []record.Record
}

// AutoSnapshotter snapshots a record source on a fixed interval.
type AutoSnapshotter struct {
	mgr      *Manager
	src      RecordSource
	interval time.Duration
	logger   *slog.Logger

	// last is the record-id fingerprint of the previous auto snapshot; an
	// unchanged set is not captured twice.
	last string
}

func NewAutoSnapshotter(mgr *Manager, src RecordSource, interval time.Duration) *AutoSnapshotter {
	if interval <= 0 {
		interval = DefaultAutoInterval
	}
	return &AutoSnapshotter{
		mgr:      mgr,
		src:      src,
		interval: interval,
		logger:   slog.Default(),
	}
}

func (a *AutoSnapshotter) SetLogger(l *slog.Logger) { a.logger = l }

// Run takes a snapshot every interval until ctx is cancelled.
func (a *AutoSnapshotter) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		if _, err := a.RunOnce(ctx); err != nil {
			a.logger.Error("auto snapshot failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(a.interval):
		}
	}
}

// RunOnce takes one snapshot. It returns an empty id without error when the
// source is empty or unchanged since the last auto snapshot.
func (a *AutoSnapshotter) RunOnce(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	recs := a.src.All()
	if len(recs) == 0 {
		a.logger.Debug("auto snapshot skipped, no records")
		return "", nil
	}
	fp := fingerprint(recs)
	if fp == a.last {
		a.logger.Debug("auto snapshot skipped, records unchanged")
		return "", nil
	}

	name := "auto-" + a.mgr.clock.Now().Format("20060102T150405Z")
	id, err := a.mgr.Create(name, "periodic snapshot", recs, WithTags(AutoTag), WithCreatedBy("auto-snapshotter"))
	if err != nil {
		return "", err
	}
	a.last = fp
	return id, nil
}

// fingerprint covers ids and the exact coordinate bits so an update that
// moves a record, however slightly, counts as a change.
func fingerprint(recs []record.Record) string {
	var b []byte
	for _, r := range recs {
		b = append(b, r.ID...)
		b = append(b, 0)
		for _, c := range r.Coords.Components() {
			b = binary.BigEndian.AppendUint64(b, math.Float64bits(c))
		}
	}
	return digest(b)
}
