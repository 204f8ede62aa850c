package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/microgrid/core/ledger"
	"github.com/kilianp07/microgrid/core/market"
	"github.com/kilianp07/microgrid/core/metrics"
	"github.com/kilianp07/microgrid/core/model"
	"github.com/kilianp07/microgrid/core/regulator"
	"github.com/kilianp07/microgrid/core/sim"
	"github.com/kilianp07/microgrid/infra/mqtt"
)

// Config is the full configuration surface of the simulator.
type Config struct {
	Simulation sim.Config          `json:"simulation"`
	Market     market.Config       `json:"market"`
	Battery    model.BatteryParams `json:"battery"`
	Ledger     ledger.Config       `json:"ledger"`
	Regulator  regulator.Config    `json:"regulator"`
	Metrics    metrics.Config      `json:"metrics"`
	MQTT       mqtt.Config         `json:"mqtt"`
	Logging    LoggingConfig       `json:"logging"`
	Export     ExportConfig        `json:"export"`
}

// LoggingConfig defines settings for the structured logger.
type LoggingConfig struct {
	// Level filters log output: trace, debug, info, warn or error.
	Level string `json:"level"`
}

// SetDefaults applies sane defaults.
func (c *LoggingConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
}

// Validate checks the level is known.
func (c LoggingConfig) Validate() error {
	switch strings.ToLower(c.Level) {
	case "trace", "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("unknown log level %s", c.Level)
	}
}

// ExportConfig defines where run artifacts are written.
type ExportConfig struct {
	// Dir is the output directory; empty disables export.
	Dir string `json:"dir"`
}

// Default returns a configuration populated with the reference community
// values, without reading any file.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	c.Simulation.SetDefaults()
	c.Market.SetDefaults()
	c.Ledger.SetDefaults()
	c.Regulator.SetDefaults()
	c.Metrics.SetDefaults()
	c.MQTT.SetDefaults()
	c.Logging.SetDefaults()
	if c.Battery == (model.BatteryParams{}) {
		c.Battery = model.BatteryParams{Efficiency: 0.95, MinSoC: 0.1, MaxSoC: 0.9}
	}
	if c.Ledger.Difficulty == 0 {
		c.Ledger.Difficulty = 3
	}
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := c.Simulation.Validate(); err != nil {
		return err
	}
	if err := c.Market.Validate(); err != nil {
		return err
	}
	if err := c.Battery.Validate(); err != nil {
		return err
	}
	if err := c.Ledger.Validate(); err != nil {
		return err
	}
	if err := c.Regulator.Validate(); err != nil {
		return err
	}
	return c.Logging.Validate()
}

// Load reads the configuration file at path, applies environment overrides
// (prefix "MG_", "__" separating nested keys) and validates the result.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// Optional environment overrides
	if err := k.Load(env.Provider("MG_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "mg_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
