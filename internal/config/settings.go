package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"graphscore/internal/boundary"
	"graphscore/internal/scoring"
)

// Config represents the application configuration
type Config struct {
	Environment string         `mapstructure:"environment"`
	Engine      EngineConfig   `mapstructure:"engine"`
	Boundary    BoundaryConfig `mapstructure:"boundary"`
	Server      ServerConfig   `mapstructure:"server"`
	Logging     LoggingConfig  `mapstructure:"logging"`
	Tracing     TracingConfig  `mapstructure:"tracing"`
}

// EngineConfig holds the numeric settings of the scoring pipeline
type EngineConfig struct {
	MaxIterations        int     `mapstructure:"max_iterations"`
	ConvergenceThreshold float64 `mapstructure:"convergence_threshold"`
	NormalizationEpsilon float64 `mapstructure:"normalization_epsilon"`
	DuplicateEdges       string  `mapstructure:"duplicate_edges"` // overwrite, sum
	ClampScores          bool    `mapstructure:"clamp_scores"`
}

// BoundaryConfig holds worker isolation settings
type BoundaryConfig struct {
	MaxInFlight      int  `mapstructure:"max_in_flight"`
	RequireMulticore bool `mapstructure:"require_multicore"`
}

// ServerConfig holds listener addresses
type ServerConfig struct {
	HTTPAddress           string `mapstructure:"http_address"`
	GRPCAddress           string `mapstructure:"grpc_address"`
	RequestTimeoutSeconds int    `mapstructure:"request_timeout_seconds"`
}

// LoggingConfig holds structured logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, text
	Dir    string `mapstructure:"dir"`
}

// TracingConfig holds OpenTelemetry exporter settings
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Endpoint    string `mapstructure:"endpoint"`
	ServiceName string `mapstructure:"service_name"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	v.SetDefault("engine.max_iterations", scoring.DefaultMaxIterations)
	v.SetDefault("engine.convergence_threshold", scoring.DefaultConvergenceThreshold)
	v.SetDefault("engine.normalization_epsilon", scoring.DefaultNormalizationEpsilon)
	v.SetDefault("engine.duplicate_edges", "overwrite")
	v.SetDefault("engine.clamp_scores", true)

	v.SetDefault("boundary.max_in_flight", 4)
	v.SetDefault("boundary.require_multicore", true)

	v.SetDefault("server.http_address", ":8080")
	v.SetDefault("server.grpc_address", ":9090")
	v.SetDefault("server.request_timeout_seconds", 30)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.dir", "")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "localhost:4318")
	v.SetDefault("tracing.service_name", "graphscore")
}

// Load reads configuration from YAML files and environment variables
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (e.g., GRAPHSCORE_ENGINE_MAX_ITERATIONS)
//  2. Environment-specific YAML (e.g., config.production.yaml)
//  3. Base YAML (config.yaml)
//  4. Built-in defaults
//
// An empty configPath means defaults and environment variables only.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			// If config file doesn't exist, use defaults with env vars
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	env := os.Getenv("GRAPHSCORE_ENV")
	if env == "" {
		env = v.GetString("environment")
	}

	if configPath != "" {
		configDir := filepath.Dir(configPath)
		configExt := filepath.Ext(configPath)
		configBase := strings.TrimSuffix(filepath.Base(configPath), configExt)

		envConfigPath := filepath.Join(configDir, fmt.Sprintf("%s.%s%s", configBase, env, configExt))
		if _, err := os.Stat(envConfigPath); err == nil {
			v.SetConfigFile(envConfigPath)
			if err := v.MergeInConfig(); err != nil {
				return nil, fmt.Errorf("failed to merge environment config: %w", err)
			}
		}
	}

	v.SetEnvPrefix("GRAPHSCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only resolves keys viper already knows; nested keys are bound explicitly
	for _, key := range []string{
		"engine.max_iterations",
		"engine.duplicate_edges",
		"engine.clamp_scores",
		"boundary.max_in_flight",
		"boundary.require_multicore",
		"server.http_address",
		"server.grpc_address",
		"logging.level",
		"logging.dir",
		"tracing.enabled",
		"tracing.endpoint",
	} {
		envKey := "GRAPHSCORE_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, envKey); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", envKey, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Environment = env

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// validate checks configuration ranges
func validate(cfg *Config) error {
	if cfg.Engine.MaxIterations <= 0 {
		return fmt.Errorf("engine.max_iterations must be greater than 0")
	}
	if cfg.Engine.ConvergenceThreshold <= 0 {
		return fmt.Errorf("engine.convergence_threshold must be greater than 0")
	}
	if cfg.Engine.NormalizationEpsilon <= 0 {
		return fmt.Errorf("engine.normalization_epsilon must be greater than 0")
	}
	if _, err := scoring.ParseDuplicateEdgePolicy(cfg.Engine.DuplicateEdges); err != nil {
		return fmt.Errorf("engine.duplicate_edges: %w", err)
	}

	if cfg.Boundary.MaxInFlight <= 0 {
		return fmt.Errorf("boundary.max_in_flight must be greater than 0")
	}

	if cfg.Server.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("server.request_timeout_seconds must be greater than 0")
	}

	switch strings.ToLower(cfg.Logging.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("logging.format must be json or text, got %q", cfg.Logging.Format)
	}

	if cfg.Tracing.Enabled && cfg.Tracing.Endpoint == "" {
		return fmt.Errorf("tracing.endpoint is required when tracing is enabled")
	}

	return nil
}

// ScoringOptions converts the engine section into engine options
func (c *Config) ScoringOptions() scoring.Options {
	policy, _ := scoring.ParseDuplicateEdgePolicy(c.Engine.DuplicateEdges)
	return scoring.Options{
		MaxIterations:        c.Engine.MaxIterations,
		ConvergenceThreshold: c.Engine.ConvergenceThreshold,
		NormalizationEpsilon: c.Engine.NormalizationEpsilon,
		DuplicateEdges:       policy,
		ClampScores:          c.Engine.ClampScores,
	}
}

// ClientOptions converts the boundary section into client options
func (c *Config) ClientOptions() boundary.ClientOptions {
	return boundary.ClientOptions{
		MaxInFlight:      int64(c.Boundary.MaxInFlight),
		RequireMulticore: c.Boundary.RequireMulticore,
	}
}

// RequestTimeout is the per-request deadline applied by the server
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSeconds) * time.Second
}
