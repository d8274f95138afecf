package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/SlimBron57/bitacora-sub000/internal/errs"
	"github.com/SlimBron57/bitacora-sub000/internal/record"
	"github.com/SlimBron57/bitacora-sub000/internal/space"
)

const payloadReaders = 8

var _ record.Persister = (*Store)(nil)

func (s *Store) payloadPath(id string) string {
	return filepath.Join(s.payloadDir, id+".payload")
}

func digest(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// SaveRecord upserts the record row. The payload is written once: ids are
// content addressed, so an existing payload file is never rewritten.
func (s *Store) SaveRecord(rec record.Record) error {
	features, err := marshalColumn(rec.Features)
	if err != nil {
		return ioErr("encoding features", err)
	}
	metadata, err := marshalColumn(rec.Metadata)
	if err != nil {
		return ioErr("encoding metadata", err)
	}
	usage, err := marshalColumn(rec.Usage)
	if err != nil {
		return ioErr("encoding usage", err)
	}
	links, err := marshalColumn(rec.Links)
	if err != nil {
		return ioErr("encoding links", err)
	}

	var inline []byte
	var wrote string
	if s.payloadDir == "" {
		inline = rec.Payload
		if inline == nil {
			inline = []byte{}
		}
	} else {
		path := s.payloadPath(rec.ID)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			if err := WriteFileAtomic(path, rec.Payload, 0o644); err != nil {
				return ioErr("writing payload", err)
			}
			wrote = path
		} else if err != nil {
			return ioErr("checking payload", err)
		}
	}

	_, err = s.db.Exec(`
		INSERT INTO records (id, created_at_ns, features, metadata, usage, links, payload, payload_size, payload_sha256)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET features = excluded.features, metadata = excluded.metadata,
			usage = excluded.usage, links = excluded.links`,
		rec.ID, toNanos(rec.CreatedAt), features, metadata, usage, links, inline, len(rec.Payload), digest(rec.Payload),
	)
	if err != nil {
		if wrote != "" {
			if rmErr := RemoveIfExists(wrote); rmErr != nil {
				s.logger.Warn("removing orphan payload file", "record_id", rec.ID, "error", rmErr)
			}
		}
		return ioErr("saving record "+rec.ID, err)
	}
	return nil
}

// DeleteRecord removes the row and the payload file. Deleting an absent
// record is a no-op.
func (s *Store) DeleteRecord(id string) error {
	if _, err := s.db.Exec(`DELETE FROM records WHERE id = ?`, id); err != nil {
		return ioErr("deleting record "+id, err)
	}
	if s.payloadDir != "" {
		if err := RemoveIfExists(s.payloadPath(id)); err != nil {
			s.logger.Warn("removing payload file", "record_id", id, "error", err)
		}
	}
	return nil
}

type recordRow struct {
	id        string
	createdAt int64
	features  string
	metadata  string
	usage     string
	links     string
	payload   []byte
	size      int
	sum       string
}

// LoadRecords returns every record ordered by creation time. Payload files
// are read concurrently and verified against their stored digest.
func (s *Store) LoadRecords() ([]record.Record, error) {
	rows, err := s.db.Query(`
		SELECT id, created_at_ns, features, metadata, usage, links, payload, payload_size, payload_sha256
		FROM records ORDER BY created_at_ns ASC, rowid ASC`)
	if err != nil {
		return nil, ioErr("querying records", err)
	}
	defer rows.Close()

	var raw []recordRow
	for rows.Next() {
		var r recordRow
		if err := rows.Scan(&r.id, &r.createdAt, &r.features, &r.metadata, &r.usage, &r.links, &r.payload, &r.size, &r.sum); err != nil {
			return nil, ioErr("scanning record", err)
		}
		raw = append(raw, r)
	}
	if err := rows.Err(); err != nil {
		return nil, ioErr("iterating records", err)
	}

	out := make([]record.Record, len(raw))
	var g errgroup.Group
	g.SetLimit(payloadReaders)
	for i, r := range raw {
		g.Go(func() error {
			rec, err := s.decodeRecord(r)
			if err != nil {
				return err
			}
			out[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) decodeRecord(r recordRow) (record.Record, error) {
	rec := record.Record{ID: r.id, CreatedAt: fromNanos(r.createdAt)}
	var features []float64
	if err := unmarshalColumn("features", r.features, &features); err != nil {
		return rec, ioErr("record "+r.id, err)
	}
	fv, err := space.NewFeatureVector(features)
	if err != nil {
		return rec, fmt.Errorf("record %s: %w", r.id, err)
	}
	rec.Features = fv
	if err := unmarshalColumn("metadata", r.metadata, &rec.Metadata); err != nil {
		return rec, ioErr("record "+r.id, err)
	}
	if err := unmarshalColumn("usage", r.usage, &rec.Usage); err != nil {
		return rec, ioErr("record "+r.id, err)
	}
	if err := unmarshalColumn("links", r.links, &rec.Links); err != nil {
		return rec, ioErr("record "+r.id, err)
	}

	payload := r.payload
	if s.payloadDir != "" {
		payload, err = os.ReadFile(s.payloadPath(r.id))
		if err != nil {
			return rec, ioErr("reading payload "+r.id, err)
		}
	}
	if digest(payload) != r.sum {
		return rec, fmt.Errorf("%w: payload %s fails digest check", errs.ErrStorageIO, r.id)
	}
	rec.Payload = payload
	return rec, nil
}

// CountRecords returns the number of persisted records.
func (s *Store) CountRecords() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM records`).Scan(&n); err != nil {
		return 0, ioErr("counting records", err)
	}
	return n, nil
}
