// Package config loads the layered DecoyVal configuration
package config

import (
	"fmt"
	"runtime"
	"sort"

	"github.com/knadh/koanf/v2"

	"github.com/ChrisMcGann/DecoyVal/pkg/category"
	"github.com/ChrisMcGann/DecoyVal/pkg/targetdecoy"
)

// Config is the complete application configuration
type Config struct {
	Log        LogConfig        `koanf:"log"`
	Validation ValidationConfig `koanf:"validation"`
	Grouping   GroupingConfig   `koanf:"grouping"`
	Ingest     IngestConfig     `koanf:"ingest"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // text or json
}

// ValidationConfig holds the validation request
type ValidationConfig struct {
	Estimator  string  `koanf:"estimator"`
	Criterion  string  `koanf:"criterion"`
	Threshold  float64 `koanf:"threshold"`   // percent
	WindowSize int     `koanf:"window_size"` // 0 = Nmax
}

// GroupingConfig holds the pooling of sparse categories
type GroupingConfig struct {
	Enabled bool `koanf:"enabled"`
	MinNmax int  `koanf:"min_nmax"`
}

// IngestConfig holds hit ingestion settings
type IngestConfig struct {
	Workers int `koanf:"workers"`
}

// DefaultConfig returns the baseline configuration.
func DefaultConfig() Config {
	return Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Validation: ValidationConfig{
			Estimator: "classical",
			Criterion: "fdr",
			Threshold: 1.0,
		},
		Grouping: GroupingConfig{
			Enabled: true,
			MinNmax: 100,
		},
		Ingest: IngestConfig{
			Workers: runtime.NumCPU(),
		},
	}
}

// DefaultConfigAsMap flattens DefaultConfig for koanf's confmap provider.
func DefaultConfigAsMap() map[string]interface{} {
	def := DefaultConfig()
	return map[string]interface{}{
		"log.level":  def.Log.Level,
		"log.format": def.Log.Format,

		"validation.estimator":   def.Validation.Estimator,
		"validation.criterion":   def.Validation.Criterion,
		"validation.threshold":   def.Validation.Threshold,
		"validation.window_size": def.Validation.WindowSize,

		"grouping.enabled":  def.Grouping.Enabled,
		"grouping.min_nmax": def.Grouping.MinNmax,

		"ingest.workers": def.Ingest.Workers,
	}
}

// Load merges the sources in priority order and validates the result.
func Load(sources ...Source) (Config, error) {
	sorted := append([]Source(nil), sources...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority() < sorted[j].Priority()
	})

	k := koanf.New(".")
	for _, src := range sorted {
		if err := src.Load(k); err != nil {
			return Config{}, fmt.Errorf("failed to load %s: %w", src.Name(), err)
		}
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges and enumerations.
func (c Config) Validate() error {
	if _, err := targetdecoy.ParseEstimator(c.Validation.Estimator); err != nil {
		return err
	}
	if _, err := targetdecoy.ParseCriterion(c.Validation.Criterion); err != nil {
		return err
	}
	if c.Validation.Threshold < 0 || c.Validation.Threshold > 100 {
		return fmt.Errorf("threshold must be between 0 and 100, got %v", c.Validation.Threshold)
	}
	if c.Validation.WindowSize < 0 {
		return fmt.Errorf("window size must be non-negative, got %d", c.Validation.WindowSize)
	}
	if c.Ingest.Workers < 1 {
		return fmt.Errorf("workers must be positive, got %d", c.Ingest.Workers)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format '%s', must be text or json", c.Log.Format)
	}
	return nil
}

// Thresholds returns a fresh validation request for the configured criterion.
func (c Config) Thresholds() *targetdecoy.Thresholds {
	estimator, _ := targetdecoy.ParseEstimator(c.Validation.Estimator)
	criterion, _ := targetdecoy.ParseCriterion(c.Validation.Criterion)
	return targetdecoy.NewThresholds(estimator, criterion, c.Validation.Threshold)
}

// GroupOptions returns the finalisation options for a category.Group.
func (c Config) GroupOptions() category.Options {
	opts := category.DefaultOptions()
	opts.Grouping = c.Grouping.Enabled
	opts.MinNmax = c.Grouping.MinNmax
	opts.WindowSize = c.Validation.WindowSize
	if criterion, _ := targetdecoy.ParseCriterion(c.Validation.Criterion); criterion == targetdecoy.CriterionFDR {
		opts.FDR = c.Validation.Threshold
	}
	return opts
}
