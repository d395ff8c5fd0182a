// Package config provides unified configuration loading for tradernet.
// It supports loading from YAML files, a .env file and environment variables.
package config

import (
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/nvandessel/tradernet/internal/trader"
)

// Config contains all tradernet configuration settings.
type Config struct {
	// Simulation sizes the network and the run.
	Simulation SimulationConfig `json:"simulation" yaml:"simulation"`

	// Params describes how trader parameters are drawn.
	Params ParamsConfig `json:"params" yaml:"params"`

	// Logging contains settings for operational and anomaly logging.
	Logging LoggingConfig `json:"logging" yaml:"logging"`

	// Storage selects the run store backend.
	Storage StorageConfig `json:"storage" yaml:"storage"`

	// Server configures the HTTP API.
	Server ServerConfig `json:"server" yaml:"server"`

	// Backup configures run archives and their retention.
	Backup BackupConfig `json:"backup" yaml:"backup"`
}

// SimulationConfig sizes a run.
type SimulationConfig struct {
	// Nodes is the number of traders in the random trust network.
	Nodes int `json:"nodes" yaml:"nodes"`

	// EdgeProbability is p in the directed G(n, p) trust network.
	EdgeProbability float64 `json:"edge_probability" yaml:"edge_probability"`

	// Steps is the number of time steps to run.
	Steps int `json:"steps" yaml:"steps"`

	// StartStep is the first time step.
	StartStep int `json:"start_step" yaml:"start_step"`

	// Seed seeds the random source. 0 picks a random seed per run.
	Seed uint64 `json:"seed" yaml:"seed"`

	// MemoryLength is how many past steps each trader remembers.
	MemoryLength int `json:"memory_length" yaml:"memory_length"`

	// Workers parallelizes the quote and update passes. 1 runs serially.
	Workers int `json:"workers" yaml:"workers"`
}

// ParamsConfig holds one ParamConfig per trader parameter.
type ParamsConfig struct {
	A       ParamConfig `json:"a" yaml:"a"`
	B       ParamConfig `json:"b" yaml:"b"`
	C       ParamConfig `json:"c" yaml:"c"`
	D       ParamConfig `json:"d" yaml:"d"`
	S       ParamConfig `json:"s" yaml:"s"`
	Epsilon ParamConfig `json:"epsilon" yaml:"epsilon"`
}

// Distribution names accepted in ParamConfig.Dist.
const (
	DistNormal  = "normal"
	DistUniform = "uniform"
	DistChoice  = "choice"
)

// ParamConfig is either a fixed value or a distribution.
//
//	a: {value: 1}
//	b: {dist: normal, mean: 0, std: 1}
//	s: {dist: choice, values: [-1, 0, 1]}
//	d: {dist: uniform, min: -1, max: 1}
type ParamConfig struct {
	Value  *float64  `json:"value,omitempty" yaml:"value,omitempty"`
	Dist   string    `json:"dist,omitempty" yaml:"dist,omitempty"`
	Mean   float64   `json:"mean,omitempty" yaml:"mean,omitempty"`
	Std    float64   `json:"std,omitempty" yaml:"std,omitempty"`
	Min    float64   `json:"min,omitempty" yaml:"min,omitempty"`
	Max    float64   `json:"max,omitempty" yaml:"max,omitempty"`
	Values []float64 `json:"values,omitempty" yaml:"values,omitempty"`
}

// Fixed returns a ParamConfig with a constant value.
func Fixed(v float64) ParamConfig {
	return ParamConfig{Value: &v}
}

// Normal returns a normally distributed ParamConfig.
func Normal(mean, std float64) ParamConfig {
	return ParamConfig{Dist: DistNormal, Mean: mean, Std: std}
}

// Choice returns a ParamConfig drawing uniformly from values.
func Choice(values ...float64) ParamConfig {
	return ParamConfig{Dist: DistChoice, Values: values}
}

// UnmarshalYAML replaces the whole parameter, so a file setting only
// `value` does not inherit the default's distribution. A bare number is
// shorthand for {value: n}.
func (p *ParamConfig) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		var v float64
		if err := node.Decode(&v); err != nil {
			return fmt.Errorf("parameter must be a number or a mapping: %w", err)
		}
		*p = Fixed(v)
		return nil
	}

	type plain ParamConfig
	var out plain
	if err := node.Decode(&out); err != nil {
		return err
	}
	*p = ParamConfig(out)
	return nil
}

// Param converts the configuration into a trader.Param drawing from rng.
func (p ParamConfig) Param(rng *rand.Rand) trader.Param {
	if p.Value != nil {
		return trader.Constant(*p.Value)
	}
	switch p.Dist {
	case DistNormal:
		return trader.Normal(rng, p.Mean, p.Std)
	case DistUniform:
		return trader.Uniform(rng, p.Min, p.Max)
	case DistChoice:
		return trader.Choice(rng, p.Values...)
	default:
		return trader.Constant(0)
	}
}

// String renders the parameter compactly, e.g. "N(0, 1)".
func (p ParamConfig) String() string {
	if p.Value != nil {
		return strconv.FormatFloat(*p.Value, 'g', -1, 64)
	}
	switch p.Dist {
	case DistNormal:
		return fmt.Sprintf("N(%g, %g)", p.Mean, p.Std)
	case DistUniform:
		return fmt.Sprintf("U(%g, %g)", p.Min, p.Max)
	case DistChoice:
		parts := make([]string, len(p.Values))
		for i, v := range p.Values {
			parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		return "unset"
	}
}

func (p ParamConfig) validate(name string) error {
	if p.Value != nil {
		if p.Dist != "" {
			return fmt.Errorf("params.%s: value and dist are mutually exclusive", name)
		}
		return nil
	}
	switch p.Dist {
	case DistNormal:
		if p.Std < 0 {
			return fmt.Errorf("params.%s: std must be non-negative, got %g", name, p.Std)
		}
	case DistUniform:
		if p.Max < p.Min {
			return fmt.Errorf("params.%s: max %g is below min %g", name, p.Max, p.Min)
		}
	case DistChoice:
		if len(p.Values) == 0 {
			return fmt.Errorf("params.%s: choice needs at least one value", name)
		}
	case "":
		return fmt.Errorf("params.%s: either value or dist is required", name)
	default:
		return fmt.Errorf("params.%s: invalid dist: %s (valid: normal, uniform, choice)", name, p.Dist)
	}
	return nil
}

// LoggingConfig configures tradernet's logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "info" (default), "debug", or "trace".
	// "debug" enables anomaly logging to <dir>/anomalies.jsonl.
	// "trace" additionally records a summary of every step.
	Level string `json:"level" yaml:"level"`

	// Dir is where anomalies.jsonl is written. Defaults to ~/.tradernet.
	Dir string `json:"dir,omitempty" yaml:"dir,omitempty"`
}

// StorageConfig selects where runs are persisted.
type StorageConfig struct {
	// Driver is "sqlite" (default) or "postgres".
	Driver string `json:"driver" yaml:"driver"`

	// Path is the SQLite database file. Defaults to ~/.tradernet/tradernet.db.
	Path string `json:"path,omitempty" yaml:"path,omitempty"`

	// DSN is the postgres connection string. Supports ${VAR} syntax for env vars.
	DSN string `json:"dsn,omitempty" yaml:"dsn,omitempty"`
}

// RedactedDSN returns the DSN with any password masked.
func (s StorageConfig) RedactedDSN() string {
	if s.DSN == "" {
		return ""
	}
	at := strings.LastIndex(s.DSN, "@")
	scheme := strings.Index(s.DSN, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return "(set)"
	}
	userinfo := s.DSN[scheme+3 : at]
	if user, _, ok := strings.Cut(userinfo, ":"); ok {
		return s.DSN[:scheme+3] + user + ":***" + s.DSN[at:]
	}
	return s.DSN
}

// String implements fmt.Stringer to prevent accidental DSN logging.
func (s StorageConfig) String() string {
	return fmt.Sprintf("StorageConfig{Driver:%s, Path:%s, DSN:%s}", s.Driver, s.Path, s.RedactedDSN())
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Host string `json:"host" yaml:"host"`
	Port int    `json:"port" yaml:"port"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return s.Host + ":" + strconv.Itoa(s.Port)
}

// BackupConfig configures where run archives are written and how many are kept.
type BackupConfig struct {
	// Dir overrides the default ~/.tradernet/backups directory.
	Dir       string          `json:"dir,omitempty" yaml:"dir,omitempty"`
	Retention RetentionConfig `json:"retention" yaml:"retention"`
}

// RetentionConfig limits the archives kept after each backup. A backup is
// kept if any configured limit keeps it.
type RetentionConfig struct {
	MaxCount     int    `json:"max_count" yaml:"max_count"`
	MaxAge       string `json:"max_age,omitempty" yaml:"max_age,omitempty"`               // e.g. "30d", "2w", "720h"
	MaxTotalSize string `json:"max_total_size,omitempty" yaml:"max_total_size,omitempty"` // e.g. "100MB"
}

// Default returns a Config reproducing the published model on a
// 1000-trader network.
func Default() *Config {
	return &Config{
		Simulation: SimulationConfig{
			Nodes:           1000,
			EdgeProbability: 0.03,
			Steps:           100,
			StartStep:       0,
			Seed:            0,
			MemoryLength:    1,
			Workers:         1,
		},
		Params: ParamsConfig{
			A:       Fixed(1),
			B:       Normal(0, 1),
			C:       Normal(5, 2),
			D:       Normal(0, 1),
			S:       Choice(-1, 0, 1),
			Epsilon: Normal(0, 0.33),
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Storage: StorageConfig{
			Driver: "sqlite",
		},
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8080,
		},
		Backup: BackupConfig{
			Retention: RetentionConfig{MaxCount: 10},
		},
	}
}

// HomeDir returns the tradernet data directory: $TRADERNET_HOME if set,
// otherwise ~/.tradernet.
func HomeDir() (string, error) {
	if v := os.Getenv("TRADERNET_HOME"); v != "" {
		return v, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, ".tradernet"), nil
}

// Load loads configuration from the default locations and environment variables.
// Order: defaults -> ~/.tradernet/config.yaml -> .env -> environment variables
func Load() (*Config, error) {
	config := Default()

	if dir, err := HomeDir(); err == nil {
		configPath := filepath.Join(dir, "config.yaml")
		if _, statErr := os.Stat(configPath); statErr == nil {
			fileConfig, loadErr := LoadFromFile(configPath)
			if loadErr != nil {
				return nil, fmt.Errorf("loading config file: %w", loadErr)
			}
			config = fileConfig
		}
	}

	// A missing .env is fine; variables already set in the environment win.
	_ = godotenv.Load()

	applyEnvOverrides(config)

	return config, nil
}

// LoadFromFile loads configuration from a specific YAML file. Sections the
// file leaves out keep their defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	config.Storage.DSN = expandEnvVars(config.Storage.DSN)
	config.Backup.Dir = expandEnvVars(config.Backup.Dir)

	return config, nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	sim := c.Simulation
	if sim.Nodes < 1 {
		return fmt.Errorf("simulation.nodes must be positive, got %d", sim.Nodes)
	}
	if sim.EdgeProbability < 0 || sim.EdgeProbability > 1 {
		return fmt.Errorf("simulation.edge_probability must be between 0 and 1, got %f", sim.EdgeProbability)
	}
	if sim.Steps < 0 {
		return fmt.Errorf("simulation.steps must be non-negative, got %d", sim.Steps)
	}
	if sim.MemoryLength < 1 {
		return fmt.Errorf("simulation.memory_length must be at least 1, got %d", sim.MemoryLength)
	}
	if sim.Workers < 1 {
		return fmt.Errorf("simulation.workers must be at least 1, got %d", sim.Workers)
	}

	params := []struct {
		name string
		p    ParamConfig
	}{
		{"a", c.Params.A}, {"b", c.Params.B}, {"c", c.Params.C},
		{"d", c.Params.D}, {"s", c.Params.S}, {"epsilon", c.Params.Epsilon},
	}
	for _, np := range params {
		if err := np.p.validate(np.name); err != nil {
			return err
		}
	}
	if err := validateInitialState(c.Params.S); err != nil {
		return err
	}

	validLevels := map[string]bool{"info": true, "debug": true, "trace": true}
	if c.Logging.Level != "" && !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: info, debug, trace, or empty for default)", c.Logging.Level)
	}

	switch c.Storage.Driver {
	case "", "sqlite", "memory":
	case "postgres":
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("invalid storage driver: %s (valid: sqlite, postgres, memory)", c.Storage.Driver)
	}

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}

	if c.Backup.Retention.MaxCount < 0 {
		return fmt.Errorf("backup.retention.max_count must be non-negative, got %d", c.Backup.Retention.MaxCount)
	}

	return nil
}

// validateInitialState rejects initial states that trader.New would refuse.
func validateInitialState(p ParamConfig) error {
	valid := func(v float64) bool { return v == -1 || v == 0 || v == 1 }
	if p.Value != nil && !valid(*p.Value) {
		return fmt.Errorf("params.s: initial state must be -1, 0 or 1, got %g", *p.Value)
	}
	if p.Dist == DistChoice {
		for _, v := range p.Values {
			if !valid(v) {
				return fmt.Errorf("params.s: initial state must be -1, 0 or 1, got %g", v)
			}
		}
	}
	if p.Dist == DistNormal || p.Dist == DistUniform {
		return fmt.Errorf("params.s: initial state must be a value or a choice, got %s", p.Dist)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(config *Config) {
	if v := os.Getenv("TRADERNET_NODES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Simulation.Nodes = n
		}
	}
	if v := os.Getenv("TRADERNET_EDGE_PROBABILITY"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Simulation.EdgeProbability = f
		}
	}
	if v := os.Getenv("TRADERNET_STEPS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Simulation.Steps = n
		}
	}
	if v := os.Getenv("TRADERNET_SEED"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			config.Simulation.Seed = n
		}
	}
	if v := os.Getenv("TRADERNET_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Simulation.Workers = n
		}
	}

	if v := os.Getenv("TRADERNET_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}

	if v := os.Getenv("TRADERNET_STORAGE_DRIVER"); v != "" {
		config.Storage.Driver = v
	}
	if v := os.Getenv("TRADERNET_DB_PATH"); v != "" {
		config.Storage.Path = v
	}
	if v := os.Getenv("TRADERNET_DB_DSN"); v != "" {
		config.Storage.DSN = v
	}

	if v := os.Getenv("TRADERNET_BACKUP_DIR"); v != "" {
		config.Backup.Dir = v
	}

	if v := os.Getenv("TRADERNET_HOST"); v != "" {
		config.Server.Host = v
	}
	if v := os.Getenv("TRADERNET_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Server.Port = n
		}
	}
}

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, os.Getenv)
}
