// Package config loads the tradesync YAML configuration.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Log     LogConfig     `yaml:"log"`
	Storage StorageConfig `yaml:"storage"`
	Cache   CacheConfig   `yaml:"cache"`
	Remote  RemoteConfig  `yaml:"remote"`
	Stream  StreamConfig  `yaml:"stream"`
	Metrics MetricsConfig `yaml:"metrics"`
}

type LogConfig struct {
	Level   string `yaml:"level"`   // debug, info, warn, error
	Backend string `yaml:"backend"` // slog, zap, logrus
}

type StorageConfig struct {
	Engine string `yaml:"engine"` // memory, bigcache, ristretto, redis, sqlite

	// sqlite
	Path string `yaml:"path"`
	// bigcache
	Shards     int           `yaml:"shards"`
	LifeWindow time.Duration `yaml:"life_window"`
	// ristretto
	MaxCostMB int64 `yaml:"max_cost_mb"`

	Redis RedisConfig `yaml:"redis"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type CacheConfig struct {
	Freshness    time.Duration `yaml:"freshness"`
	EntryTTL     time.Duration `yaml:"entry_ttl"`
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
	Codec        string        `yaml:"codec"`    // json, cbor, msgpack
	GenStore     string        `yaml:"genstore"` // local, redis, storage (sqlite keeps its own)
	GenTTL       time.Duration `yaml:"gen_ttl"`  // redis only
}

type RemoteConfig struct {
	BaseURL string        `yaml:"base_url"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
}

type StreamConfig struct {
	URL              string        `yaml:"url"`
	TokenParam       string        `yaml:"token_param"`
	Credential       string        `yaml:"credential"`
	Heartbeat        string        `yaml:"heartbeat"`
	OpenFailureDelay time.Duration `yaml:"open_failure_delay"`
	CompletionDelay  time.Duration `yaml:"completion_delay"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	ReconnectOnError bool          `yaml:"reconnect_on_error"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"` // empty disables the /metrics listener
}

// LoadDotEnv loads KEY=VALUE files into the process environment without
// overriding variables already set. Missing files are skipped.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("config: load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads path, expands ${VAR} references from the environment, applies
// defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(strings.NewReader(os.ExpandEnv(string(data))))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	c.Log.Level = coalesce(c.Log.Level, "info")
	c.Log.Backend = coalesce(c.Log.Backend, "slog")

	c.Storage.Engine = coalesce(c.Storage.Engine, "memory")
	c.Storage.Path = coalesce(c.Storage.Path, "tradesync.db")
	c.Storage.Redis.Addr = coalesce(c.Storage.Redis.Addr, "localhost:6379")

	c.Cache.Freshness = coalesce(c.Cache.Freshness, 30*time.Second)
	c.Cache.Codec = coalesce(c.Cache.Codec, "json")
	c.Cache.GenStore = coalesce(c.Cache.GenStore, defaultGenStore(c.Storage.Engine))

	c.Remote.Timeout = coalesce(c.Remote.Timeout, 10*time.Second)

	c.Stream.Heartbeat = coalesce(c.Stream.Heartbeat, "heartbeat")
	c.Stream.OpenFailureDelay = coalesce(c.Stream.OpenFailureDelay, 60*time.Second)
	c.Stream.CompletionDelay = coalesce(c.Stream.CompletionDelay, 15*time.Second)
	c.Stream.HandshakeTimeout = coalesce(c.Stream.HandshakeTimeout, 30*time.Second)
}

func (c *Config) Validate() error {
	var errs []error
	if !oneOf(c.Log.Level, "debug", "info", "warn", "error") {
		errs = append(errs, fmt.Errorf("log.level: unknown %q", c.Log.Level))
	}
	if !oneOf(c.Log.Backend, "slog", "zap", "logrus") {
		errs = append(errs, fmt.Errorf("log.backend: unknown %q", c.Log.Backend))
	}
	if !oneOf(c.Storage.Engine, "memory", "bigcache", "ristretto", "redis", "sqlite") {
		errs = append(errs, fmt.Errorf("storage.engine: unknown %q", c.Storage.Engine))
	}
	if !oneOf(c.Cache.Codec, "json", "cbor", "msgpack") {
		errs = append(errs, fmt.Errorf("cache.codec: unknown %q", c.Cache.Codec))
	}
	switch {
	case !oneOf(c.Cache.GenStore, "local", "redis", "storage"):
		errs = append(errs, fmt.Errorf("cache.genstore: unknown %q", c.Cache.GenStore))
	case c.Cache.GenStore == "local" && oneOf(c.Storage.Engine, "sqlite", "redis"):
		errs = append(errs, fmt.Errorf("cache.genstore: local generations reset on restart while %s entries persist", c.Storage.Engine))
	case c.Cache.GenStore == "storage" && c.Storage.Engine != "sqlite":
		errs = append(errs, fmt.Errorf("cache.genstore: storage engine %q keeps no generations", c.Storage.Engine))
	}
	if c.Cache.Freshness < 0 || c.Cache.EntryTTL < 0 || c.Cache.FetchTimeout < 0 {
		errs = append(errs, errors.New("cache: durations must not be negative"))
	}
	if c.Cache.EntryTTL > 0 && c.Cache.EntryTTL < c.Cache.Freshness {
		errs = append(errs, errors.New("cache.entry_ttl: shorter than freshness, entries would expire while still fresh"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// defaultGenStore keeps generations as durable as the entries they guard.
func defaultGenStore(engine string) string {
	switch engine {
	case "sqlite":
		return "storage"
	case "redis":
		return "redis"
	default:
		return "local"
	}
}

func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}
