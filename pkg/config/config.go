// Package config loads cord settings from a YAML file with environment
// overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/hashicorp/go-hclog"
	"gopkg.in/yaml.v3"
)

// Environment overrides.
const (
	EnvDB       = "CORD_DB"
	EnvAuthor   = "CORD_AUTHOR"
	EnvLogLevel = "CORD_LOG_LEVEL"
	EnvConfig   = "CORD_CONFIG"
)

// Defaults.
const (
	DefaultDB        = ".cord/cord.db"
	DefaultConfig    = ".cord/config.yaml"
	DefaultListen    = ":8477"
	DefaultBatchSize = 256
	DefaultLogLevel  = "info"
)

// ID schemes.
const (
	IDSchemeRandom  = "random"
	IDSchemeContent = "content"
)

type Config struct {
	DB       string  `yaml:"db"`
	AuthorID string  `yaml:"author_id"`
	LogLevel string  `yaml:"log_level"`
	IDScheme string  `yaml:"id_scheme"` // random, content
	Sync     Sync    `yaml:"sync"`
	Relay    Relay   `yaml:"relay"`
	Signing  Signing `yaml:"signing"`
}

type Sync struct {
	BatchSize    int      `yaml:"batch_size"`
	VerifyDigest bool     `yaml:"verify_digest"`
	Push         bool     `yaml:"push"`
	Retries      uint64   `yaml:"retries"`
	Peers        []string `yaml:"peers,omitempty"`
}

type Relay struct {
	Listen    string `yaml:"listen"`
	AllowPush bool   `yaml:"allow_push"`
}

type Signing struct {
	KeyFile           string            `yaml:"key_file"`
	RequireSignatures bool              `yaml:"require_signatures"`
	Trusted           map[string]string `yaml:"trusted,omitempty"` // author id -> address
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		DB:       DefaultDB,
		LogLevel: DefaultLogLevel,
		IDScheme: IDSchemeRandom,
		Sync: Sync{
			BatchSize:    DefaultBatchSize,
			VerifyDigest: true,
			Push:         true,
		},
		Relay: Relay{Listen: DefaultListen},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. A missing file is not an error when optional is
// set.
func Load(path string, optional bool) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if cfg, err = Parse(bytes.NewReader(data)); err != nil {
			return Config{}, fmt.Errorf("config %s: %w", path, err)
		}
	case optional && errors.Is(err, os.ErrNotExist):
	default:
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	cfg.ApplyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults. Unknown fields are rejected.
func Parse(r io.Reader) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse yaml: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from the environment.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv(EnvDB); v != "" {
		c.DB = v
	}
	if v := getenv(EnvAuthor); v != "" {
		c.AuthorID = v
	}
	if v := getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
}

// Validate checks field values.
func (c Config) Validate() error {
	if c.DB == "" {
		return errors.New("db is required")
	}
	switch c.IDScheme {
	case IDSchemeRandom, IDSchemeContent:
	default:
		return fmt.Errorf("id_scheme %q: want %s or %s", c.IDScheme, IDSchemeRandom, IDSchemeContent)
	}
	if c.Sync.BatchSize <= 0 {
		return fmt.Errorf("sync.batch_size must be positive, got %d", c.Sync.BatchSize)
	}
	if hclog.LevelFromString(c.LogLevel) == hclog.NoLevel {
		return fmt.Errorf("log_level %q is not a known level", c.LogLevel)
	}
	return nil
}

// Marshal encodes the config as YAML.
func (c Config) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Logger builds the root logger for the configured level.
func (c Config) Logger(w io.Writer) hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:   "cord",
		Level:  hclog.LevelFromString(c.LogLevel),
		Output: w,
	})
}
