package storage

import (
	"github.com/SlimBron57/bitacora-sub000/internal/forensics"
)

var _ forensics.Journal = (*Store)(nil)

// --- Timeline ---

// AppendEvent stores ev. Re-appending an id already stored is ignored.
func (s *Store) AppendEvent(ev forensics.Event) error {
	coords, err := marshalColumn(ev.Coords)
	if err != nil {
		return ioErr("encoding coords", err)
	}
	meta, err := marshalColumn(ev.Metadata)
	if err != nil {
		return ioErr("encoding metadata", err)
	}
	_, err = s.db.Exec(`
		INSERT OR IGNORE INTO timeline_events (id, at_ns, kind, record_id, coords, metadata)
		VALUES (?, ?, ?, ?, ?, ?)`,
		ev.ID, toNanos(ev.At), string(ev.Kind), ev.RecordID, coords, meta,
	)
	if err != nil {
		return ioErr("appending event "+ev.ID, err)
	}
	return nil
}

// LoadEvents returns the timeline ordered by time, then by append order.
func (s *Store) LoadEvents() ([]forensics.Event, error) {
	rows, err := s.db.Query(`
		SELECT id, at_ns, kind, record_id, coords, metadata
		FROM timeline_events ORDER BY at_ns ASC, seq ASC`)
	if err != nil {
		return nil, ioErr("querying timeline", err)
	}
	defer rows.Close()

	var out []forensics.Event
	for rows.Next() {
		var (
			ev           forensics.Event
			at           int64
			kind         string
			coords, meta string
		)
		if err := rows.Scan(&ev.ID, &at, &kind, &ev.RecordID, &coords, &meta); err != nil {
			return nil, ioErr("scanning event", err)
		}
		ev.At = fromNanos(at)
		ev.Kind = forensics.EventKind(kind)
		if err := unmarshalColumn("coords", coords, &ev.Coords); err != nil {
			return nil, ioErr("event "+ev.ID, err)
		}
		if err := unmarshalColumn("metadata", meta, &ev.Metadata); err != nil {
			return nil, ioErr("event "+ev.ID, err)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, ioErr("iterating timeline", err)
	}
	return out, nil
}

// --- Patterns ---

func (s *Store) AppendPattern(p forensics.Pattern) error {
	members, err := marshalColumn(p.Members)
	if err != nil {
		return ioErr("encoding members", err)
	}
	_, err = s.db.Exec(`
		INSERT OR IGNORE INTO patterns (id, kind, members, confidence, description, detected_at_ns)
		VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, string(p.Kind), members, p.Confidence, p.Description, toNanos(p.DetectedAt),
	)
	if err != nil {
		return ioErr("appending pattern "+p.ID, err)
	}
	return nil
}

// LoadPatterns returns the pattern log in append order.
func (s *Store) LoadPatterns() ([]forensics.Pattern, error) {
	rows, err := s.db.Query(`
		SELECT id, kind, members, confidence, description, detected_at_ns
		FROM patterns ORDER BY seq ASC`)
	if err != nil {
		return nil, ioErr("querying patterns", err)
	}
	defer rows.Close()

	var out []forensics.Pattern
	for rows.Next() {
		var (
			p       forensics.Pattern
			kind    string
			members string
			at      int64
		)
		if err := rows.Scan(&p.ID, &kind, &members, &p.Confidence, &p.Description, &at); err != nil {
			return nil, ioErr("scanning pattern", err)
		}
		p.Kind = forensics.PatternKind(kind)
		p.DetectedAt = fromNanos(at)
		if err := unmarshalColumn("members", members, &p.Members); err != nil {
			return nil, ioErr("pattern "+p.ID, err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, ioErr("iterating patterns", err)
	}
	return out, nil
}
