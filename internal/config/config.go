// Package config loads the shell's settings: defaults, then an optional TOML
// file, then HAKAWATI_* environment overrides. A hakawati.env file beside the
// TOML file supplies variables the process does not set. Command-line flags
// are applied last by the caller.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/hakawati/hakawati/internal/logger"
	"github.com/hakawati/hakawati/internal/paths"
)

const (
	// DefaultIdentifier is the application identity used for per-user paths.
	DefaultIdentifier = "com.hakawati.app"

	// EnvPrefix prefixes every environment override.
	EnvPrefix = "HAKAWATI_"

	// FileName is the config file name inside the per-user config directory.
	FileName = "config.toml"

	// DotEnvFile holds HAKAWATI_* assignments next to the config file.
	// Variables set in the process environment win over it.
	DotEnvFile = "hakawati.env"
)

type Config struct {
	Identifier string `toml:"identifier" env:"IDENTIFIER"`
	DataDir    string `toml:"data_dir" env:"DATA_DIR"`
	LogLevel   string `toml:"log_level" env:"LOG_LEVEL"`
	LogFormat  string `toml:"log_format" env:"LOG_FORMAT"`

	Host    HostConfig    `toml:"host" envPrefix:"HOST_"`
	Updater UpdaterConfig `toml:"updater" envPrefix:"UPDATER_"`
}

type HostConfig struct {
	Addr            string        `toml:"addr" env:"ADDR"`
	AdminAddr       string        `toml:"admin_addr" env:"ADMIN_ADDR"`
	PublicDir       string        `toml:"public_dir" env:"PUBLIC_DIR"`
	ShutdownTimeout time.Duration `toml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	OpenFrontend    bool          `toml:"open_frontend" env:"OPEN_FRONTEND"`
}

type UpdaterConfig struct {
	Endpoint string        `toml:"endpoint" env:"ENDPOINT"`
	Timeout  time.Duration `toml:"timeout" env:"TIMEOUT"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Identifier: DefaultIdentifier,
		LogLevel:   "info",
		LogFormat:  string(logger.FormatText),
		Host: HostConfig{
			Addr:            "127.0.0.1:1420",
			AdminAddr:       "127.0.0.1:1421",
			PublicDir:       "dist",
			ShutdownTimeout: 15 * time.Second,
		},
		Updater: UpdaterConfig{
			Timeout: 10 * time.Second,
		},
	}
}

// DefaultPath returns the per-user config file for the identifier.
func DefaultPath(identifier string) (string, error) {
	return paths.ConfigFile(identifier, FileName)
}

// Load returns defaults overlaid with the TOML file at path (skipped when
// path is empty or the file does not exist) and then the environment,
// including a hakawati.env file in the same directory.
func Load(path string) (Config, error) {
	cfg := Default()
	if err := LoadFile(&cfg, path); err != nil {
		return cfg, err
	}

	environ := environMap()
	if path != "" {
		dotenv, err := ReadDotEnv(filepath.Join(filepath.Dir(path), DotEnvFile))
		if err != nil {
			return cfg, err
		}
		for k, v := range dotenv {
			if _, set := environ[k]; !set {
				environ[k] = v
			}
		}
	}
	if err := applyEnv(&cfg, environ); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ReadDotEnv parses a dotenv file without touching the process environment.
// A missing file yields an empty map.
func ReadDotEnv(path string) (map[string]string, error) {
	vars, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return vars, nil
}

// LoadFile decodes the TOML file at path into cfg. A missing file is not an
// error; unknown keys are.
func LoadFile(cfg *Config, path string) error {
	if path == "" {
		return nil
	}
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("load config %s: unknown keys %s", path, strings.Join(keys, ", "))
	}
	return nil
}

// ApplyEnv overrides cfg from HAKAWATI_* variables that are set.
func ApplyEnv(cfg *Config) error {
	return applyEnv(cfg, environMap())
}

func applyEnv(cfg *Config, environ map[string]string) error {
	opts := env.Options{Prefix: EnvPrefix, Environment: environ}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Identifier) == "" {
		return fmt.Errorf("identifier is required")
	}
	if c.DataDir != "" && !filepath.IsAbs(c.DataDir) {
		return fmt.Errorf("data_dir %q must be absolute", c.DataDir)
	}
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	switch logger.Format(c.LogFormat) {
	case logger.FormatText, logger.FormatJSON:
	default:
		return fmt.Errorf("log_format %q: want text or json", c.LogFormat)
	}
	if c.Host.Addr == "" {
		return fmt.Errorf("host.addr is required")
	}
	if c.Host.ShutdownTimeout <= 0 {
		return fmt.Errorf("host.shutdown_timeout must be positive")
	}
	return nil
}

func environMap() map[string]string {
	m := map[string]string{}
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			m[k] = v
		}
	}
	return m
}
