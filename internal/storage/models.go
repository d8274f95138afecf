package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/SlimBron57/bitacora-sub000/internal/errs"
)

// Timestamps are stored as Unix nanoseconds: record ids hash the exact
// creation instant, so sub-second precision must survive a round trip.
func toNanos(t time.Time) int64 { return t.UTC().UnixNano() }

func fromNanos(ns int64) time.Time { return time.Unix(0, ns).UTC() }

func marshalColumn(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unmarshalColumn(col, raw string, v any) error {
	if raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("decoding %s: %w", col, err)
	}
	return nil
}

// ioErr tags err as a storage failure for callers matching errs.ErrStorageIO.
func ioErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", errs.ErrStorageIO, op, err)
}
