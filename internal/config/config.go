package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

type Config struct {
	Storage   StorageConfig
	Space     SpaceConfig
	Record    RecordConfig
	Snapshot  SnapshotConfig
	Forensics ForensicsConfig
	Log       LogConfig
}

type StorageConfig struct {
	DataDir string `validate:"required"`
}

type SpaceConfig struct {
	Shape string `validate:"oneof=spherical cubic"`
}

type RecordConfig struct {
	TopK               int     `validate:"min=1,max=10000"`
	SimilarityMinScore float64 `validate:"gte=-1,lte=1"`
}

type SnapshotConfig struct {
	MaxSnapshots     int    `validate:"min=1"`
	Compression      string `validate:"oneof=none gzip zstd"`
	CompressionLevel int    `validate:"min=-2,max=22"`
	AutoEnabled      bool
	AutoInterval     string `validate:"duration"`
	CacheMaxCost     int    `validate:"min=0"`
}

// Interval parses AutoInterval. Validate guarantees it parses.
func (s SnapshotConfig) Interval() time.Duration {
	d, _ := time.ParseDuration(s.AutoInterval)
	return d
}

type ForensicsConfig struct {
	ClusterThreshold      float64 `validate:"gt=0"`
	TemporalWindowSecs    int     `validate:"min=1"`
	MinPatternConfidence  float64 `validate:"gte=0,lte=1"`
	ClusterConfidence     float64 `validate:"gte=0,lte=1"`
	SequenceConfidence    float64 `validate:"gte=0,lte=1"`
	TrendConfidence       float64 `validate:"gte=0,lte=1"`
	OscillationConfidence float64 `validate:"gte=0,lte=1"`
	AnomalyConfidence     float64 `validate:"gte=0,lte=1"`
	AnomalyThreshold      float64 `validate:"gt=0"`
}

func (f ForensicsConfig) TemporalWindow() time.Duration {
	return time.Duration(f.TemporalWindowSecs) * time.Second
}

type LogConfig struct {
	Level string `validate:"oneof=debug info warn error"`
}

func defaults() Config {
	return Config{
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Space: SpaceConfig{
			Shape: "spherical",
		},
		Record: RecordConfig{
			TopK:               10,
			SimilarityMinScore: 0.7,
		},
		Snapshot: SnapshotConfig{
			MaxSnapshots:     100,
			Compression:      "gzip",
			CompressionLevel: 6,
			AutoEnabled:      false,
			AutoInterval:     "1h",
			CacheMaxCost:     64 << 20,
		},
		Forensics: ForensicsConfig{
			ClusterThreshold:      0.3,
			TemporalWindowSecs:    3600,
			MinPatternConfidence:  0.7,
			ClusterConfidence:     0.85,
			SequenceConfidence:    0.80,
			TrendConfidence:       0.75,
			OscillationConfidence: 0.70,
			AnomalyConfidence:     0.80,
			AnomalyThreshold:      0.5,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the YAML file at
// $XDG_CONFIG_HOME/bitacora/config.yaml, then applies BITACORA_*
// environment overrides, then validates the result.
func Load() (Config, error) {
	return loadWith(newFileBackend(configFilePath()))
}

func loadFromPath(path string) (Config, error) {
	return loadWith(newFileBackend(path))
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("duration", func(fl validator.FieldLevel) bool {
		d, err := time.ParseDuration(fl.Field().String())
		return err == nil && d > 0
	})
	return v
}

// Validate checks every field against its range. The error names each
// offending key.
func Validate(cfg Config) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validating config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s=%v fails %q", keyForField(fe.StructNamespace()), fe.Value(), fe.ActualTag()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

// keyForField maps a validator namespace such as "Config.Record.TopK" to
// the dotted key users set.
func keyForField(ns string) string {
	if s, ok := specsByField[strings.TrimPrefix(ns, "Config.")]; ok {
		return s.key
	}
	return ns
}
