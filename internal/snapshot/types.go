package snapshot

import (
	"maps"
	"slices"
	"time"

	"github.com/SlimBron57/bitacora-sub000/internal/compress"
	"github.com/SlimBron57/bitacora-sub000/internal/record"
	"github.com/SlimBron57/bitacora-sub000/internal/space"
)

// Snapshot is the metadata of one frozen record set. It is serialized as the
// sidecar next to the compressed artifact.
type Snapshot struct {
	ID               string             `json:"id"`
	Name             string             `json:"name"`
	Description      string             `json:"description"`
	CreatedAt        time.Time          `json:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at"`
	RecordIDs        []string           `json:"record_ids"`
	UncompressedSize int64              `json:"uncompressed_size"`
	CompressedSize   int64              `json:"compressed_size"`
	CompressionRatio float64            `json:"compression_ratio"`
	CompressionTime  time.Duration      `json:"compression_time_ns"`
	Compression      compress.Algorithm `json:"compression"`
	CompressionLevel int                `json:"compression_level"`
	Checksum         string             `json:"checksum_sha256"`
	Tags             []string           `json:"tags,omitempty"`
	CreatedBy        string             `json:"created_by,omitempty"`
}

func (s Snapshot) clone() Snapshot {
	s.RecordIDs = append([]string(nil), s.RecordIDs...)
	if s.Tags != nil {
		s.Tags = append([]string(nil), s.Tags...)
	}
	return s
}

// Comparison is the set difference between two snapshots.
type Comparison struct {
	OldID      string   `json:"old_id"`
	NewID      string   `json:"new_id"`
	Added      []string `json:"added"`
	Deleted    []string `json:"deleted"`
	Unchanged  []string `json:"unchanged"`
	Similarity float64  `json:"similarity"`
}

// Frozen is a record's state at snapshot time. Payload bytes stay with the
// record store; only their size and digest are captured.
type Frozen struct {
	ID            string               `json:"id"`
	Features      space.FeatureVector  `json:"features"`
	Coords        space.Coordinates    `json:"coords"`
	Metadata      map[string]string    `json:"metadata,omitempty"`
	Links         []string             `json:"links,omitempty"`
	CreatedAt     time.Time            `json:"created_at"`
	Usage         record.Effectiveness `json:"usage"`
	PayloadSize   int                  `json:"payload_size"`
	PayloadDigest string               `json:"payload_sha256"`
}

func freeze(r record.Record, digest string) Frozen {
	return Frozen{
		ID:            r.ID,
		Features:      r.Features,
		Coords:        r.Coords,
		Metadata:      maps.Clone(r.Metadata),
		Links:         slices.Clone(r.Links),
		CreatedAt:     r.CreatedAt,
		Usage:         r.Usage,
		PayloadSize:   len(r.Payload),
		PayloadDigest: digest,
	}
}

// Record rebuilds a payload-less record from the frozen state, suitable for
// forensic mining.
func (f Frozen) Record() record.Record {
	return record.Record{
		ID:        f.ID,
		Features:  f.Features,
		Coords:    f.Coords,
		Metadata:  maps.Clone(f.Metadata),
		Links:     slices.Clone(f.Links),
		CreatedAt: f.CreatedAt,
		Usage:     f.Usage,
	}
}

func cloneFrozen(recs []Frozen) []Frozen {
	out := make([]Frozen, len(recs))
	for i, f := range recs {
		f.Metadata = maps.Clone(f.Metadata)
		f.Links = slices.Clone(f.Links)
		out[i] = f
	}
	return out
}

type artifact struct {
	SnapshotID string   `json:"snapshot_id"`
	Records    []Frozen `json:"records"`
}

// Config controls where snapshots live and how many are retained.
type Config struct {
	Dir          string
	MaxSnapshots int
}

// DefaultMaxSnapshots is the retention budget when none is configured.
const DefaultMaxSnapshots = 100

// CreateOption customizes Create.
type CreateOption func(*Snapshot)

func WithTags(tags ...string) CreateOption {
	return func(s *Snapshot) { s.Tags = append(s.Tags, tags...) }
}

func WithCreatedBy(who string) CreateOption {
	return func(s *Snapshot) { s.CreatedBy = who }
}

// ChangeOp names a registry change reported to OnChange listeners.
type ChangeOp string

const (
	ChangeCreated ChangeOp = "created"
	ChangeDeleted ChangeOp = "deleted"
	ChangePruned  ChangeOp = "pruned"
)
