package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
)

// EnvPrefix prefixes every environment override, e.g. QAO_LOOP_TICK_RATE.
const EnvPrefix = "QAO_"

// DefaultPath is used when neither --config nor QAO_CONFIG names a file.
const DefaultPath = "config/qao.toml"

type Config struct {
	Loop      LoopConfig      `toml:"loop" envPrefix:"LOOP_"`
	Logging   LoggingConfig   `toml:"logging" envPrefix:"LOG_"`
	Database  DatabaseConfig  `toml:"database" envPrefix:"DB_"`
	Scripting ScriptingConfig `toml:"scripting" envPrefix:"SCRIPTS_"`
	Scene     SceneConfig     `toml:"scene" envPrefix:"SCENE_"`
	Telemetry TelemetryConfig `toml:"telemetry" envPrefix:"OTEL_"`
}

type LoopConfig struct {
	TickRate            time.Duration `toml:"tick_rate" env:"TICK_RATE"`
	MaxConsecutiveSteps int           `toml:"max_consecutive_steps" env:"MAX_CONSECUTIVE_STEPS"`
	Headless            bool          `toml:"headless" env:"HEADLESS"`
	MaxSteps            int64         `toml:"max_steps" env:"MAX_STEPS"` // 0 = unbounded
}

type LoggingConfig struct {
	Level  string `toml:"level" env:"LEVEL"`
	Format string `toml:"format" env:"FORMAT"` // "json" or "console"
}

type DatabaseConfig struct {
	Driver          string        `toml:"driver" env:"DRIVER"` // "sqlite" or "postgres"
	DSN             string        `toml:"dsn" env:"DSN"`       // file path for sqlite
	MaxOpenConns    int           `toml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	MaxIdleConns    int           `toml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `toml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
}

type ScriptingConfig struct {
	Dir string `toml:"dir" env:"DIR"`
}

type SceneConfig struct {
	Path string `toml:"path" env:"PATH"`
}

type TelemetryConfig struct {
	Enabled     bool   `toml:"enabled" env:"ENABLED"`
	Endpoint    string `toml:"endpoint" env:"ENDPOINT"`
	ServiceName string `toml:"service_name" env:"SERVICE_NAME"`
}

// Load reads the TOML file at path over the defaults, then applies QAO_*
// environment overrides. A missing file is an error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := defaults()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in configuration with environment overrides.
func Default() (*Config, error) {
	cfg := defaults()
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

func defaults() *Config {
	return &Config{
		Loop: LoopConfig{
			TickRate:            time.Second / 60,
			MaxConsecutiveSteps: 4,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Database: DatabaseConfig{
			Driver:          "sqlite",
			DSN:             "qao.db",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Scripting: ScriptingConfig{
			Dir: "scripts",
		},
		Scene: SceneConfig{
			Path: "scenes/demo.yaml",
		},
		Telemetry: TelemetryConfig{
			ServiceName: "qaosim",
		},
	}
}
