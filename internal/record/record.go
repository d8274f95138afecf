package record

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"maps"
	"slices"
	"time"

	"github.com/SlimBron57/bitacora-sub000/internal/space"
)

// Record is one content-addressed unit of stored experience. The id never
// changes after insertion; features and coordinates may be replaced.
type Record struct {
	ID        string              `json:"id"`
	Features  space.FeatureVector `json:"features"`
	Coords    space.Coordinates   `json:"coords"`
	Payload   []byte              `json:"-"`
	Metadata  map[string]string   `json:"metadata,omitempty"`
	Links     []string            `json:"links,omitempty"`
	CreatedAt time.Time           `json:"created_at"`
	Usage     Effectiveness       `json:"usage"`
}

// Clone returns a deep copy so callers never alias store-owned memory.
func (r Record) Clone() Record {
	out := r
	if r.Payload != nil {
		out.Payload = append([]byte(nil), r.Payload...)
	}
	if r.Metadata != nil {
		out.Metadata = maps.Clone(r.Metadata)
	}
	out.Links = slices.Clone(r.Links)
	return out
}

// Neighbor is a radius query hit.
type Neighbor struct {
	Record   Record
	Distance float64
}

// Scored is a similarity query hit.
type Scored struct {
	Record Record
	Score  float64
}

// ContentID is the hex SHA-256 of payload followed by the big-endian
// nanosecond creation timestamp.
func ContentID(payload []byte, createdAt time.Time) string {
	h := sha256.New()
	h.Write(payload)
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(createdAt.UnixNano()))
	h.Write(ts[:])
	return hex.EncodeToString(h.Sum(nil))
}

// Op is the kind of store activity reported to the activity hook.
type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
	OpQuery  Op = "query"
)

// Activity describes one completed store operation.
type Activity struct {
	Op       Op
	RecordID string
	Coords   space.Coordinates
	At       time.Time
	Meta     map[string]string
}

// Persister mirrors the record table to durable storage. Implemented by
// storage.Store.
type Persister interface {
	SaveRecord(rec Record) error
	DeleteRecord(id string) error
	LoadRecords() ([]Record, error)
}
