package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/watchgate/watchgate/internal/screen"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied. It is a convenience wrapper around
// [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Unknown YAML fields are rejected so typos fail
// loudly instead of silently configuring nothing.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills zero values with the production defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8080"
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Scoring.Weights == (screen.Weights{}) {
		cfg.Scoring.Weights = screen.DefaultWeights()
	}
	if cfg.Scoring.Thresholds == (screen.Thresholds{}) {
		cfg.Scoring.Thresholds = screen.DefaultThresholds()
	}
	if cfg.Scoring.TopK == 0 {
		cfg.Scoring.TopK = 10
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	switch cfg.Embeddings.Name {
	case "", "openai", "ollama":
	default:
		errs = append(errs, fmt.Errorf("embeddings.name %q is invalid; valid values: openai, ollama, or empty to disable", cfg.Embeddings.Name))
	}
	if cfg.Embeddings.Name == "openai" && cfg.Embeddings.APIKey == "" {
		errs = append(errs, errors.New("embeddings.api_key is required for the openai provider"))
	}

	if (cfg.ANN.IndexPath == "") != (cfg.ANN.IDsPath == "") {
		errs = append(errs, errors.New("ann.index_path and ann.ids_path must be set together"))
	}

	t := cfg.Scoring.Thresholds
	if t.Block <= t.Clear {
		errs = append(errs, fmt.Errorf("scoring.thresholds: block (%v) must be above clear (%v)", t.Block, t.Clear))
	}
	if t.Block > 1 || t.Clear < 0 {
		errs = append(errs, fmt.Errorf("scoring.thresholds must lie in [0, 1], got block %v clear %v", t.Block, t.Clear))
	}
	for name, w := range map[string]float64{
		"jaro_winkler":  cfg.Scoring.Weights.JaroWinkler,
		"edit":          cfg.Scoring.Weights.Edit,
		"token_overlap": cfg.Scoring.Weights.TokenOverlap,
		"embedding":     cfg.Scoring.Weights.Embedding,
		"dob":           cfg.Scoring.Weights.DOB,
		"country":       cfg.Scoring.Weights.Country,
		"id_soft":       cfg.Scoring.Weights.IDSoft,
	} {
		if w < 0 {
			errs = append(errs, fmt.Errorf("scoring.weights.%s must not be negative, got %v", name, w))
		}
	}
	if cfg.Scoring.TopK < 0 {
		errs = append(errs, fmt.Errorf("scoring.top_k must not be negative, got %d", cfg.Scoring.TopK))
	}

	return errors.Join(errs...)
}
