package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// TestDefaults verifies all default values are applied when no config file exists.
func TestDefaults(t *testing.T) {
	dataHome := t.TempDir()
	t.Setenv("XDG_DATA_HOME", dataHome)
	t.Setenv("BITACORA_RECORD_TOP_K", "")

	cfg, err := loadFromPath(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Storage.DataDir != filepath.Join(dataHome, "bitacora") {
		t.Errorf("Storage.DataDir = %q", cfg.Storage.DataDir)
	}
	if cfg.Space.Shape != "spherical" {
		t.Errorf("Space.Shape = %q, want spherical", cfg.Space.Shape)
	}
	if cfg.Record.TopK != 10 {
		t.Errorf("Record.TopK = %d, want 10", cfg.Record.TopK)
	}
	if cfg.Record.SimilarityMinScore != 0.7 {
		t.Errorf("Record.SimilarityMinScore = %v, want 0.7", cfg.Record.SimilarityMinScore)
	}
	if cfg.Snapshot.MaxSnapshots != 100 {
		t.Errorf("Snapshot.MaxSnapshots = %d, want 100", cfg.Snapshot.MaxSnapshots)
	}
	if cfg.Snapshot.Compression != "gzip" || cfg.Snapshot.CompressionLevel != 6 {
		t.Errorf("Snapshot compression = %s/%d, want gzip/6", cfg.Snapshot.Compression, cfg.Snapshot.CompressionLevel)
	}
	if cfg.Snapshot.Interval() != time.Hour {
		t.Errorf("Snapshot.Interval() = %v, want 1h", cfg.Snapshot.Interval())
	}
	if cfg.Forensics.ClusterThreshold != 0.3 {
		t.Errorf("Forensics.ClusterThreshold = %v, want 0.3", cfg.Forensics.ClusterThreshold)
	}
	if cfg.Forensics.TemporalWindow() != time.Hour {
		t.Errorf("Forensics.TemporalWindow() = %v, want 1h", cfg.Forensics.TemporalWindow())
	}
	if cfg.Forensics.ClusterConfidence != 0.85 || cfg.Forensics.SequenceConfidence != 0.80 {
		t.Errorf("confidences = %v/%v, want 0.85/0.80", cfg.Forensics.ClusterConfidence, cfg.Forensics.SequenceConfidence)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want info", cfg.Log.Level)
	}
}

// TestYAMLParsing verifies that nested sections are read from the file.
func TestYAMLParsing(t *testing.T) {
	path := writeTempConfig(t, `
storage:
  data_dir: /tmp/bitacora-test
space:
  shape: cubic
record:
  top_k: 25
  similarity_min_score: 0.5
snapshot:
  max_snapshots: 7
  compression: zstd
  compression_level: 3
  auto_enabled: true
  auto_interval: 15m
forensics:
  cluster_threshold: 0.25
  temporal_window_secs: 600
log:
  level: debug
`)

	cfg, err := loadFromPath(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Storage.DataDir != "/tmp/bitacora-test" {
		t.Errorf("Storage.DataDir = %q", cfg.Storage.DataDir)
	}
	if cfg.Space.Shape != "cubic" {
		t.Errorf("Space.Shape = %q", cfg.Space.Shape)
	}
	if cfg.Record.TopK != 25 {
		t.Errorf("Record.TopK = %d", cfg.Record.TopK)
	}
	if cfg.Record.SimilarityMinScore != 0.5 {
		t.Errorf("Record.SimilarityMinScore = %v", cfg.Record.SimilarityMinScore)
	}
	if cfg.Snapshot.MaxSnapshots != 7 {
		t.Errorf("Snapshot.MaxSnapshots = %d", cfg.Snapshot.MaxSnapshots)
	}
	if cfg.Snapshot.Compression != "zstd" || cfg.Snapshot.CompressionLevel != 3 {
		t.Errorf("Snapshot compression = %s/%d", cfg.Snapshot.Compression, cfg.Snapshot.CompressionLevel)
	}
	if !cfg.Snapshot.AutoEnabled {
		t.Error("Snapshot.AutoEnabled = false, want true")
	}
	if cfg.Snapshot.Interval() != 15*time.Minute {
		t.Errorf("Snapshot.Interval() = %v", cfg.Snapshot.Interval())
	}
	if cfg.Forensics.ClusterThreshold != 0.25 {
		t.Errorf("Forensics.ClusterThreshold = %v", cfg.Forensics.ClusterThreshold)
	}
	if cfg.Forensics.TemporalWindowSecs != 600 {
		t.Errorf("Forensics.TemporalWindowSecs = %d", cfg.Forensics.TemporalWindowSecs)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q", cfg.Log.Level)
	}
	// Untouched keys keep their defaults.
	if cfg.Forensics.AnomalyThreshold != 0.5 {
		t.Errorf("Forensics.AnomalyThreshold = %v", cfg.Forensics.AnomalyThreshold)
	}
}

// TestEnvOverride verifies that environment variables override config file values.
func TestEnvOverride(t *testing.T) {
	path := writeTempConfig(t, `
record:
  top_k: 25
forensics:
  cluster_threshold: 0.25
`)
	t.Setenv("BITACORA_RECORD_TOP_K", "3")
	t.Setenv("BITACORA_FORENSICS_CLUSTER_THRESHOLD", "0.1")
	t.Setenv("BITACORA_SNAPSHOT_AUTO_ENABLED", "true")

	cfg, err := loadFromPath(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Record.TopK != 3 {
		t.Errorf("Record.TopK = %d, want 3", cfg.Record.TopK)
	}
	if cfg.Forensics.ClusterThreshold != 0.1 {
		t.Errorf("Forensics.ClusterThreshold = %v, want 0.1", cfg.Forensics.ClusterThreshold)
	}
	if !cfg.Snapshot.AutoEnabled {
		t.Error("Snapshot.AutoEnabled = false, want true")
	}
}

// TestEnvOverrideUnparseable keeps the file value when the env var is malformed.
func TestEnvOverrideUnparseable(t *testing.T) {
	path := writeTempConfig(t, "record:\n  top_k: 25\n")
	t.Setenv("BITACORA_RECORD_TOP_K", "many")

	cfg, err := loadFromPath(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Record.TopK != 25 {
		t.Errorf("Record.TopK = %d, want 25", cfg.Record.TopK)
	}
}

func TestValidationRejects(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantKey string
	}{
		{"zero top k", "record:\n  top_k: 0\n", "record.top_k"},
		{"unknown shape", "space:\n  shape: hexagonal\n", "space.shape"},
		{"unknown compression", "snapshot:\n  compression: lz4\n", "snapshot.compression"},
		{"bad interval", "snapshot:\n  auto_interval: soon\n", "snapshot.auto_interval"},
		{"confidence above one", "forensics:\n  cluster_confidence: 1.5\n", "forensics.cluster_confidence"},
		{"non-positive threshold", "forensics:\n  cluster_threshold: 0\n", "forensics.cluster_threshold"},
		{"unknown log level", "log:\n  level: chatty\n", "log.level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadFromPath(writeTempConfig(t, tt.content))
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantKey) {
				t.Errorf("error = %q, want it to mention %q", err, tt.wantKey)
			}
		})
	}
}

func TestMalformedIntInFile(t *testing.T) {
	_, err := loadFromPath(writeTempConfig(t, "record:\n  top_k: 2.5\n"))
	if err == nil {
		t.Fatal("expected error for non-integer top_k")
	}
}

func TestSetKeyRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bitacora", "config.yaml")
	b := newFileBackend(path)

	if err := setKeyWith(b, "record.top_k", "42"); err != nil {
		t.Fatalf("set top_k: %v", err)
	}
	if err := setKeyWith(b, "forensics.cluster_threshold", "0.15"); err != nil {
		t.Fatalf("set cluster_threshold: %v", err)
	}
	if err := setKeyWith(b, "snapshot.auto_enabled", "1"); err != nil {
		t.Fatalf("set auto_enabled: %v", err)
	}
	if err := setKeyWith(b, "space.shape", "cubic"); err != nil {
		t.Fatalf("set shape: %v", err)
	}

	cfg, err := loadFromPath(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if cfg.Record.TopK != 42 {
		t.Errorf("Record.TopK = %d, want 42", cfg.Record.TopK)
	}
	if cfg.Forensics.ClusterThreshold != 0.15 {
		t.Errorf("Forensics.ClusterThreshold = %v, want 0.15", cfg.Forensics.ClusterThreshold)
	}
	if !cfg.Snapshot.AutoEnabled {
		t.Error("Snapshot.AutoEnabled = false, want true")
	}
	if cfg.Space.Shape != "cubic" {
		t.Errorf("Space.Shape = %q, want cubic", cfg.Space.Shape)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), "record:") || !strings.Contains(string(raw), "top_k: 42") {
		t.Errorf("config file is not nested YAML:\n%s", raw)
	}
}

func TestSetKeyRejects(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	b := newFileBackend(path)

	tests := []struct {
		key, value string
	}{
		{"no.such.key", "1"},
		{"record.top_k", "ten"},
		{"record.top_k", "0"},
		{"snapshot.auto_enabled", "maybe"},
		{"forensics.cluster_threshold", "close"},
		{"space.shape", "torus"},
	}
	for _, tt := range tests {
		if err := setKeyWith(b, tt.key, tt.value); err == nil {
			t.Errorf("setKeyWith(%q, %q) = nil, want error", tt.key, tt.value)
		}
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("rejected writes must not create the config file, stat err = %v", err)
	}
}

func TestShowAll(t *testing.T) {
	cfg := defaults()
	infos := ShowAll(cfg)
	if len(infos) != len(ValidKeys()) {
		t.Fatalf("ShowAll returned %d keys, ValidKeys %d", len(infos), len(ValidKeys()))
	}
	byKey := make(map[string]KeyInfo)
	for _, ki := range infos {
		if !strings.HasPrefix(ki.EnvVar, "BITACORA_") {
			t.Errorf("key %s has env var %q", ki.Key, ki.EnvVar)
		}
		byKey[ki.Key] = ki
	}
	if byKey["record.top_k"].Value != "10" {
		t.Errorf("record.top_k = %q, want 10", byKey["record.top_k"].Value)
	}
	if byKey["snapshot.compression"].Value != "gzip" {
		t.Errorf("snapshot.compression = %q, want gzip", byKey["snapshot.compression"].Value)
	}
}

func TestFlattenUnflatten(t *testing.T) {
	flat := map[string]any{"a.b": 1, "a.c": "x", "d": true}
	tree := unflatten(flat)
	back := make(map[string]any)
	flatten("", tree, back)
	if len(back) != 3 || back["a.b"] != 1 || back["a.c"] != "x" || back["d"] != true {
		t.Errorf("round trip = %v", back)
	}
}
