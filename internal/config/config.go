// Package config holds the generation run configuration: defaults,
// optional YAML file overlay, and validation.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hypogenlab/hypogen/internal/decoder"
)

type Config struct {
	// External collaborators.
	ScorerAddr    string `yaml:"scorer_addr"`
	KnowledgeAddr string `yaml:"knowledge_addr"`

	// Stub mode runs the decode loop against the in-process scorer
	// instead of a Flight service.
	Stub       bool `yaml:"stub"`
	StubVocab  int  `yaml:"stub_vocab"`
	StubMaxSeq int  `yaml:"stub_max_seq"`

	// Tokenization.
	Encoding string `yaml:"encoding"`

	// Generation parameters.
	ModelKey         string               `yaml:"model_key"`
	Mode             string               `yaml:"mode"`
	Length           int                  `yaml:"length"`
	NumSamples       int                  `yaml:"num_samples"`
	Seed             int64                `yaml:"seed"`
	Filter           decoder.FilterConfig `yaml:"filter"`
	IncludeKnowledge bool                 `yaml:"include_knowledge"`

	// Observability.
	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
}

func Default() Config {
	return Config{
		StubVocab:   50257,
		StubMaxSeq:  1024,
		ModelKey:    "hypogen",
		Mode:        "causal",
		Length:      20,
		NumSamples:  1,
		Filter:      decoder.FilterConfig{Temperature: 1.0, TopK: 0, TopP: 0.9},
		MetricsAddr: ":9090",
		LogLevel:    "INFO",
		LogFormat:   "console",
	}
}

// Load overlays a YAML file onto the defaults. An empty path returns the
// defaults untouched.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if !c.Stub && c.ScorerAddr == "" {
		return fmt.Errorf("scorer_addr is required unless stub mode is enabled")
	}
	if c.Stub && c.StubVocab <= 0 {
		return fmt.Errorf("invalid stub_vocab: %d (must be positive)", c.StubVocab)
	}
	if c.Stub && c.StubMaxSeq <= 0 {
		return fmt.Errorf("invalid stub_max_seq: %d (must be positive)", c.StubMaxSeq)
	}
	if c.Length <= 0 {
		return fmt.Errorf("invalid length: %d (must be positive)", c.Length)
	}
	if c.NumSamples < 1 {
		return fmt.Errorf("invalid num_samples: %d (must be >= 1)", c.NumSamples)
	}
	if _, err := decoder.ParseInputMode(c.Mode); err != nil {
		return fmt.Errorf("invalid mode: %q", c.Mode)
	}
	if err := c.Filter.Validate(); err != nil {
		return err
	}
	if c.IncludeKnowledge && !c.Stub && c.KnowledgeAddr == "" {
		return fmt.Errorf("knowledge_addr is required when include_knowledge is set")
	}
	if c.ModelKey == "" {
		return fmt.Errorf("model_key must not be empty")
	}
	return nil
}

// InputMode converts the validated mode string.
func (c *Config) InputMode() decoder.InputMode {
	mode, _ := decoder.ParseInputMode(c.Mode)
	return mode
}
