// Package benchmark wires the sampler, worker pool, analyzers and
// result store into one run, and renders the run summary.
package benchmark

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"concord/internal/analyzer"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// ToolConfig describes one analysis tool. A tool with a script path is
// a browser script-injection tool; with an empty script it runs the
// deterministic stub adapter under that name.
type ToolConfig struct {
	Name    string `yaml:"name"`
	Script  string `yaml:"script,omitempty"`
	Collect string `yaml:"collect,omitempty"`
}

// ShardConfig splits the sampled sequence across independent executors.
// Index is 1-based; zero values mean "no sharding".
type ShardConfig struct {
	Index int `yaml:"index"`
	Total int `yaml:"total"`
}

// Config is the full benchmark configuration. Command-line flags
// override individual fields after loading.
type Config struct {
	Population  string       `yaml:"population"`
	Denylist    string       `yaml:"denylist,omitempty"`
	SampleSize  int          `yaml:"sample_size"`
	Concurrency int          `yaml:"concurrency"`
	TimeoutMs   int          `yaml:"timeout_ms"`
	Out         string       `yaml:"out"`
	Seed        *int64       `yaml:"seed,omitempty"`
	Shard       ShardConfig  `yaml:"shard,omitempty"`
	Headless    bool         `yaml:"headless"`
	Stub        bool         `yaml:"stub"`
	Tools       []ToolConfig `yaml:"tools"`
}

// DefaultConfig returns the embedded default configuration.
func DefaultConfig() (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(defaultsYAML, &cfg); err != nil {
		return nil, fmt.Errorf("benchmark: parse embedded defaults: %w", err)
	}
	return &cfg, nil
}

// LoadConfig reads a YAML config file over the embedded defaults.
func LoadConfig(path string) (*Config, error) {
	cfg, err := DefaultConfig()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("benchmark: read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("benchmark: parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the startup-fatal invariants before any task is
// dispatched.
func (c *Config) Validate() error {
	if c.Population == "" {
		return fmt.Errorf("config: population source is required")
	}
	if c.SampleSize < 0 {
		return fmt.Errorf("config: sample_size must be >= 0, got %d", c.SampleSize)
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("config: concurrency must be >= 1, got %d", c.Concurrency)
	}
	if c.TimeoutMs <= 0 {
		return fmt.Errorf("config: timeout_ms must be > 0, got %d", c.TimeoutMs)
	}
	if c.Out == "" {
		return fmt.Errorf("config: output destination is required")
	}
	if (c.Shard.Index != 0) != (c.Shard.Total != 0) {
		return fmt.Errorf("config: shard index and total are mutually dependent")
	}
	if c.Shard.Total != 0 {
		if c.Shard.Total < 1 {
			return fmt.Errorf("config: shard total must be >= 1, got %d", c.Shard.Total)
		}
		if c.Shard.Index < 1 || c.Shard.Index > c.Shard.Total {
			return fmt.Errorf("config: shard index %d out of range [1, %d]", c.Shard.Index, c.Shard.Total)
		}
	}
	if len(c.Tools) == 0 {
		return fmt.Errorf("config: at least one tool is required")
	}
	seen := make(map[string]bool, len(c.Tools))
	for _, t := range c.Tools {
		if t.Name == "" {
			return fmt.Errorf("config: tool with empty name")
		}
		if seen[t.Name] {
			return fmt.Errorf("config: duplicate tool %q", t.Name)
		}
		seen[t.Name] = true
		if !c.Stub && t.Script != "" && t.Collect == "" {
			return fmt.Errorf("config: tool %q has a script but no collect expression", t.Name)
		}
	}
	return nil
}

// ToolNames returns the configured tool names in order.
func (c *Config) ToolNames() []string {
	names := make([]string, len(c.Tools))
	for i, t := range c.Tools {
		names[i] = t.Name
	}
	return names
}

// BuildAnalyzers constructs the engine and tool set for the run. With
// Stub set, everything is deterministic and browser-free.
func (c *Config) BuildAnalyzers() (analyzer.Engine, []analyzer.Tool, error) {
	tools := make([]analyzer.Tool, 0, len(c.Tools))
	if c.Stub {
		for _, tc := range c.Tools {
			tools = append(tools, analyzer.NewStubTool(tc.Name))
		}
		return analyzer.NewStubEngine(), tools, nil
	}
	for _, tc := range c.Tools {
		if tc.Script == "" {
			tools = append(tools, analyzer.NewStubTool(tc.Name))
			continue
		}
		tool, err := analyzer.LoadScriptTool(tc.Name, tc.Script, tc.Collect)
		if err != nil {
			return nil, nil, fmt.Errorf("config: %w", err)
		}
		tools = append(tools, tool)
	}
	return analyzer.NewBrowserEngine(c.Headless), tools, nil
}
