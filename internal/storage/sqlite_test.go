package storage

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/SlimBron57/bitacora-sub000/internal/errs"
	"github.com/SlimBron57/bitacora-sub000/internal/forensics"
	"github.com/SlimBron57/bitacora-sub000/internal/record"
	"github.com/SlimBron57/bitacora-sub000/internal/space"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func openDirStore(t *testing.T, dir string) *Store {
	t.Helper()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open(%s) failed: %v", dir, err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testRecord(t *testing.T, payload string, at time.Time) record.Record {
	t.Helper()
	v := space.FeatureVector{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7}
	c, err := space.DefaultCubic().ToCoordinates(v)
	if err != nil {
		t.Fatalf("ToCoordinates: %v", err)
	}
	return record.Record{
		ID:        record.ContentID([]byte(payload), at),
		Features:  v,
		Coords:    c,
		Payload:   []byte(payload),
		Metadata:  map[string]string{"source": "test"},
		CreatedAt: at,
		Usage:     record.Effectiveness{UsageCount: 2, Score: 0.75},
	}
}

// TestMigrationsIdempotent runs Open twice on the same database and verifies
// the schema_version count stays correct (migration not re-applied).
func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}

	v1, err := s1.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()

	v2, err := s2.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}

	if len(v1) != len(v2) {
		t.Errorf("migration count changed: %d -> %d", len(v1), len(v2))
	}
}

// TestMigrationsOrdered verifies migrations are applied in ascending numeric order.
func TestMigrationsOrdered(t *testing.T) {
	s := openTestStore(t)

	versions, err := s.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}

	if len(versions) != 3 {
		t.Fatalf("applied migrations = %v, want 3", versions)
	}

	for i := 1; i < len(versions); i++ {
		if versions[i] <= versions[i-1] {
			t.Errorf("migrations not in ascending order: %v", versions)
			break
		}
	}
}

// TestIndexesExist verifies that the migrations create their indexes.
func TestIndexesExist(t *testing.T) {
	s := openTestStore(t)

	indexes := []string{"idx_records_created", "idx_timeline_events_at", "idx_timeline_events_record", "idx_patterns_kind"}
	for _, idx := range indexes {
		var count int
		err := s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?", idx).Scan(&count)
		if err != nil {
			t.Fatalf("querying sqlite_master for %q: %v", idx, err)
		}
		if count != 1 {
			t.Errorf("index %q not found in sqlite_master", idx)
		}
	}
}

// TestRecordRoundTrip_Inline saves records to an in-memory store and loads them back in creation order.
func TestRecordRoundTrip_Inline(t *testing.T) {
	s := openTestStore(t)

	base := time.Date(2025, 1, 1, 0, 0, 0, 123456789, time.UTC)
	later := testRecord(t, "later", base.Add(time.Second))
	earlier := testRecord(t, "earlier", base)
	for _, r := range []record.Record{later, earlier} {
		if err := s.SaveRecord(r); err != nil {
			t.Fatalf("SaveRecord: %v", err)
		}
	}

	got, err := s.LoadRecords()
	if err != nil {
		t.Fatalf("LoadRecords: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d records, want 2", len(got))
	}
	if got[0].ID != earlier.ID {
		t.Errorf("first record = %q, want %q", got[0].ID, earlier.ID)
	}
	if !got[0].CreatedAt.Equal(base) {
		t.Errorf("CreatedAt = %v, want %v (nanosecond precision)", got[0].CreatedAt, base)
	}
	if got[0].Features != earlier.Features {
		t.Errorf("Features = %v, want %v", got[0].Features, earlier.Features)
	}
	if string(got[0].Payload) != "earlier" {
		t.Errorf("Payload = %q, want %q", got[0].Payload, "earlier")
	}
	if got[0].Metadata["source"] != "test" {
		t.Errorf("Metadata = %v", got[0].Metadata)
	}
	if got[0].Usage != earlier.Usage {
		t.Errorf("Usage = %+v, want %+v", got[0].Usage, earlier.Usage)
	}
}

// TestRecordPayloadFiles verifies one payload file per record and that updates do not rewrite it.
func TestRecordPayloadFiles(t *testing.T) {
	dir := t.TempDir()
	s := openDirStore(t, dir)

	r := testRecord(t, "payload bytes", time.Now().UTC())
	if err := s.SaveRecord(r); err != nil {
		t.Fatalf("SaveRecord: %v", err)
	}

	path := filepath.Join(dir, "payloads", r.ID+".payload")
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading payload file: %v", err)
	}
	if !bytes.Equal(b, r.Payload) {
		t.Errorf("payload file = %q, want %q", b, r.Payload)
	}

	r.Features[0] = 0.9
	r.Usage.Score = 0.1
	if err := s.SaveRecord(r); err != nil {
		t.Fatalf("SaveRecord (update): %v", err)
	}
	n, err := s.CountRecords()
	if err != nil {
		t.Fatalf("CountRecords: %v", err)
	}
	if n != 1 {
		t.Errorf("CountRecords = %d, want 1 after upsert", n)
	}

	got, err := s.LoadRecords()
	if err != nil {
		t.Fatalf("LoadRecords: %v", err)
	}
	if got[0].Features[0] != 0.9 || got[0].Usage.Score != 0.1 {
		t.Errorf("update not persisted: %+v", got[0])
	}

	if err := s.DeleteRecord(r.ID); err != nil {
		t.Fatalf("DeleteRecord: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("payload file still present after delete: %v", err)
	}
	if err := s.DeleteRecord(r.ID); err != nil {
		t.Errorf("second DeleteRecord = %v, want nil", err)
	}
}

// TestSaveRecord_FailedInsertRemovesNewPayload verifies a failed row write
// does not leave a payload file behind.
func TestSaveRecord_FailedInsertRemovesNewPayload(t *testing.T) {
	dir := t.TempDir()
	s := openDirStore(t, dir)
	if _, err := s.db.Exec(`DROP TABLE records`); err != nil {
		t.Fatalf("dropping records: %v", err)
	}

	r := testRecord(t, "never stored", time.Now().UTC())
	err := s.SaveRecord(r)
	if !errors.Is(err, errs.ErrStorageIO) {
		t.Fatalf("SaveRecord error = %v, want ErrStorageIO", err)
	}
	path := filepath.Join(dir, "payloads", r.ID+".payload")
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("payload file left behind: %v", err)
	}
}

// TestRecordLinksRoundTrip verifies links survive a save and load.
func TestRecordLinksRoundTrip(t *testing.T) {
	s := openTestStore(t)

	r := testRecord(t, "linked", time.Now().UTC())
	r.Links = []string{"a", "b"}
	if err := s.SaveRecord(r); err != nil {
		t.Fatalf("SaveRecord: %v", err)
	}
	r.Links = append(r.Links, "c")
	if err := s.SaveRecord(r); err != nil {
		t.Fatalf("SaveRecord (update): %v", err)
	}

	got, err := s.LoadRecords()
	if err != nil {
		t.Fatalf("LoadRecords: %v", err)
	}
	if len(got) != 1 || len(got[0].Links) != 3 || got[0].Links[2] != "c" {
		t.Errorf("links = %v, want [a b c]", got[0].Links)
	}
}

// TestLoadRecords_DetectsTamperedPayload verifies the stored digest is checked on load.
func TestLoadRecords_DetectsTamperedPayload(t *testing.T) {
	dir := t.TempDir()
	s := openDirStore(t, dir)

	r := testRecord(t, "original", time.Now().UTC())
	if err := s.SaveRecord(r); err != nil {
		t.Fatalf("SaveRecord: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "payloads", r.ID+".payload"), []byte("tampered"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	_, err := s.LoadRecords()
	if !errors.Is(err, errs.ErrStorageIO) {
		t.Errorf("LoadRecords error = %v, want ErrStorageIO", err)
	}
}

// TestRecordStoreRestart drives record.Store through a restart backed by the same directory.
func TestRecordStoreRestart(t *testing.T) {
	dir := t.TempDir()
	db := openDirStore(t, dir)

	rs := record.NewStore(space.DefaultSpherical(), 0)
	rs.SetPersister(db)
	id, err := rs.Insert(space.FeatureVector{0.5, 0.5, 0.5, 0.5, 0.5, 0.5, 0.5}, []byte("hello"), nil)
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	db.Close()

	db2 := openDirStore(t, dir)
	restored := record.NewStore(space.DefaultSpherical(), 0)
	restored.SetPersister(db2)
	if err := restored.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	rec, ok := restored.Get(id)
	if !ok {
		t.Fatalf("record %s missing after restart", id)
	}
	if string(rec.Payload) != "hello" {
		t.Errorf("Payload = %q, want %q", rec.Payload, "hello")
	}
}

// TestTimelineRoundTrip appends events out of order and verifies LoadEvents ordering and coords.
func TestTimelineRoundTrip(t *testing.T) {
	s := openTestStore(t)

	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	c, err := space.NewSpherical(0.5, 1, 2)
	if err != nil {
		t.Fatalf("NewSpherical: %v", err)
	}
	events := []forensics.Event{
		{ID: "e3", At: base.Add(time.Hour), Kind: forensics.EventQuery},
		{ID: "e1", At: base, Kind: forensics.EventInsert, RecordID: "r1", Coords: c, Metadata: map[string]string{"k": "v"}},
		{ID: "e2", At: base, Kind: forensics.EventUpdate, RecordID: "r1", Coords: c},
	}
	for _, ev := range events {
		if err := s.AppendEvent(ev); err != nil {
			t.Fatalf("AppendEvent: %v", err)
		}
	}
	// duplicate ids are ignored
	if err := s.AppendEvent(events[0]); err != nil {
		t.Fatalf("AppendEvent duplicate: %v", err)
	}

	got, err := s.LoadEvents()
	if err != nil {
		t.Fatalf("LoadEvents: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d events, want 3", len(got))
	}
	want := []string{"e1", "e2", "e3"}
	for i, ev := range got {
		if ev.ID != want[i] {
			t.Errorf("event[%d] = %q, want %q", i, ev.ID, want[i])
		}
	}
	if got[0].Coords != c {
		t.Errorf("Coords = %v, want %v", got[0].Coords, c)
	}
	if got[0].Metadata["k"] != "v" {
		t.Errorf("Metadata = %v", got[0].Metadata)
	}
	if !got[2].Coords.IsZero() {
		t.Errorf("query event coords = %v, want zero", got[2].Coords)
	}
}

// TestPatternRoundTrip appends patterns and loads them back in append order.
func TestPatternRoundTrip(t *testing.T) {
	s := openTestStore(t)

	at := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	ps := []forensics.Pattern{
		{ID: "p1", Kind: forensics.PatternSpatialCluster, Members: []string{"a", "b"}, Confidence: 0.85, Description: "cluster", DetectedAt: at},
		{ID: "p2", Kind: forensics.PatternTemporalSequence, Members: []string{"e1", "e2"}, Confidence: 0.8, DetectedAt: at},
	}
	for _, p := range ps {
		if err := s.AppendPattern(p); err != nil {
			t.Fatalf("AppendPattern: %v", err)
		}
	}

	got, err := s.LoadPatterns()
	if err != nil {
		t.Fatalf("LoadPatterns: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d patterns, want 2", len(got))
	}
	if got[0].ID != "p1" || got[0].Kind != forensics.PatternSpatialCluster || len(got[0].Members) != 2 {
		t.Errorf("pattern[0] = %+v", got[0])
	}
	if got[1].Confidence != 0.8 {
		t.Errorf("pattern[1].Confidence = %v, want 0.8", got[1].Confidence)
	}
}

// TestWriteFileAtomic verifies content replacement and that no temp files remain.
func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x.json")

	if err := WriteFileAtomic(path, []byte("one"), 0o600); err != nil {
		t.Fatalf("WriteFileAtomic: %v", err)
	}
	if err := WriteFileAtomic(path, []byte("two"), 0o600); err != nil {
		t.Fatalf("WriteFileAtomic: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(b) != "two" {
		t.Errorf("content = %q, want %q", b, "two")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("directory has %d entries, want 1", len(entries))
	}

	if err := WriteFileAtomic(filepath.Join(dir, "missing", "y"), []byte("z"), 0o600); err == nil {
		t.Error("expected error writing into a missing directory")
	}
}
