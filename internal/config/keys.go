package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kFloat
)

type keySpec struct {
	key     string
	field   string
	typ     keyType
	env     string
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "storage.data_dir", field: "Storage.DataDir", typ: kString, env: "BITACORA_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "space.shape", field: "Space.Shape", typ: kString, env: "BITACORA_SPACE_SHAPE",
		apply:   func(cfg *Config, v any) { cfg.Space.Shape = v.(string) },
		extract: func(cfg Config) any { return cfg.Space.Shape },
	},
	{
		key: "record.top_k", field: "Record.TopK", typ: kInt, env: "BITACORA_RECORD_TOP_K",
		apply:   func(cfg *Config, v any) { cfg.Record.TopK = v.(int) },
		extract: func(cfg Config) any { return cfg.Record.TopK },
	},
	{
		key: "record.similarity_min_score", field: "Record.SimilarityMinScore", typ: kFloat, env: "BITACORA_RECORD_SIMILARITY_MIN_SCORE",
		apply:   func(cfg *Config, v any) { cfg.Record.SimilarityMinScore = v.(float64) },
		extract: func(cfg Config) any { return cfg.Record.SimilarityMinScore },
	},
	{
		key: "snapshot.max_snapshots", field: "Snapshot.MaxSnapshots", typ: kInt, env: "BITACORA_SNAPSHOT_MAX_SNAPSHOTS",
		apply:   func(cfg *Config, v any) { cfg.Snapshot.MaxSnapshots = v.(int) },
		extract: func(cfg Config) any { return cfg.Snapshot.MaxSnapshots },
	},
	{
		key: "snapshot.compression", field: "Snapshot.Compression", typ: kString, env: "BITACORA_SNAPSHOT_COMPRESSION",
		apply:   func(cfg *Config, v any) { cfg.Snapshot.Compression = v.(string) },
		extract: func(cfg Config) any { return cfg.Snapshot.Compression },
	},
	{
		key: "snapshot.compression_level", field: "Snapshot.CompressionLevel", typ: kInt, env: "BITACORA_SNAPSHOT_COMPRESSION_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Snapshot.CompressionLevel = v.(int) },
		extract: func(cfg Config) any { return cfg.Snapshot.CompressionLevel },
	},
	{
		key: "snapshot.auto_enabled", field: "Snapshot.AutoEnabled", typ: kBool, env: "BITACORA_SNAPSHOT_AUTO_ENABLED",
		apply:   func(cfg *Config, v any) { cfg.Snapshot.AutoEnabled = v.(bool) },
		extract: func(cfg Config) any { return cfg.Snapshot.AutoEnabled },
	},
	{
		key: "snapshot.auto_interval", field: "Snapshot.AutoInterval", typ: kString, env: "BITACORA_SNAPSHOT_AUTO_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Snapshot.AutoInterval = v.(string) },
		extract: func(cfg Config) any { return cfg.Snapshot.AutoInterval },
	},
	{
		key: "snapshot.cache_max_cost", field: "Snapshot.CacheMaxCost", typ: kInt, env: "BITACORA_SNAPSHOT_CACHE_MAX_COST",
		apply:   func(cfg *Config, v any) { cfg.Snapshot.CacheMaxCost = v.(int) },
		extract: func(cfg Config) any { return cfg.Snapshot.CacheMaxCost },
	},
	{
		key: "forensics.cluster_threshold", field: "Forensics.ClusterThreshold", typ: kFloat, env: "BITACORA_FORENSICS_CLUSTER_THRESHOLD",
		apply:   func(cfg *Config, v any) { cfg.Forensics.ClusterThreshold = v.(float64) },
		extract: func(cfg Config) any { return cfg.Forensics.ClusterThreshold },
	},
	{
		key: "forensics.temporal_window_secs", field: "Forensics.TemporalWindowSecs", typ: kInt, env: "BITACORA_FORENSICS_TEMPORAL_WINDOW_SECS",
		apply:   func(cfg *Config, v any) { cfg.Forensics.TemporalWindowSecs = v.(int) },
		extract: func(cfg Config) any { return cfg.Forensics.TemporalWindowSecs },
	},
	{
		key: "forensics.min_pattern_confidence", field: "Forensics.MinPatternConfidence", typ: kFloat, env: "BITACORA_FORENSICS_MIN_PATTERN_CONFIDENCE",
		apply:   func(cfg *Config, v any) { cfg.Forensics.MinPatternConfidence = v.(float64) },
		extract: func(cfg Config) any { return cfg.Forensics.MinPatternConfidence },
	},
	{
		key: "forensics.cluster_confidence", field: "Forensics.ClusterConfidence", typ: kFloat, env: "BITACORA_FORENSICS_CLUSTER_CONFIDENCE",
		apply:   func(cfg *Config, v any) { cfg.Forensics.ClusterConfidence = v.(float64) },
		extract: func(cfg Config) any { return cfg.Forensics.ClusterConfidence },
	},
	{
		key: "forensics.sequence_confidence", field: "Forensics.SequenceConfidence", typ: kFloat, env: "BITACORA_FORENSICS_SEQUENCE_CONFIDENCE",
		apply:   func(cfg *Config, v any) { cfg.Forensics.SequenceConfidence = v.(float64) },
		extract: func(cfg Config) any { return cfg.Forensics.SequenceConfidence },
	},
	{
		key: "forensics.trend_confidence", field: "Forensics.TrendConfidence", typ: kFloat, env: "BITACORA_FORENSICS_TREND_CONFIDENCE",
		apply:   func(cfg *Config, v any) { cfg.Forensics.TrendConfidence = v.(float64) },
		extract: func(cfg Config) any { return cfg.Forensics.TrendConfidence },
	},
	{
		key: "forensics.oscillation_confidence", field: "Forensics.OscillationConfidence", typ: kFloat, env: "BITACORA_FORENSICS_OSCILLATION_CONFIDENCE",
		apply:   func(cfg *Config, v any) { cfg.Forensics.OscillationConfidence = v.(float64) },
		extract: func(cfg Config) any { return cfg.Forensics.OscillationConfidence },
	},
	{
		key: "forensics.anomaly_confidence", field: "Forensics.AnomalyConfidence", typ: kFloat, env: "BITACORA_FORENSICS_ANOMALY_CONFIDENCE",
		apply:   func(cfg *Config, v any) { cfg.Forensics.AnomalyConfidence = v.(float64) },
		extract: func(cfg Config) any { return cfg.Forensics.AnomalyConfidence },
	},
	{
		key: "forensics.anomaly_threshold", field: "Forensics.AnomalyThreshold", typ: kFloat, env: "BITACORA_FORENSICS_ANOMALY_THRESHOLD",
		apply:   func(cfg *Config, v any) { cfg.Forensics.AnomalyThreshold = v.(float64) },
		extract: func(cfg Config) any { return cfg.Forensics.AnomalyThreshold },
	},
	{
		key: "log.level", field: "Log.Level", typ: kString, env: "BITACORA_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

var specsByField = func() map[string]keySpec {
	m := make(map[string]keySpec, len(specs))
	for _, s := range specs {
		m[s.field] = s
	}
	return m
}()

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kBool:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if bv, err := strconv.ParseBool(v); err == nil {
					s.apply(cfg, bv)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		case kFloat:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if f, err := strconv.ParseFloat(v, 64); err == nil {
					s.apply(cfg, f)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse float from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kBool:
			if b, err := strconv.ParseBool(raw); err == nil {
				s.apply(cfg, b)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kFloat:
			if f, err := strconv.ParseFloat(raw, 64); err == nil {
				s.apply(cfg, f)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse float from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
