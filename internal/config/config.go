// Package config loads the store and table definitions used by the kvdoc
// command.
package config

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/andreyvit/kvdoc"
	"github.com/andreyvit/kvdoc/badgerstore"
	"github.com/andreyvit/kvdoc/redisstore"
)

// StoreType names a storage backend.
type StoreType string

const (
	StoreMem    StoreType = "mem"
	StoreBolt   StoreType = "bolt"
	StoreRedis  StoreType = "redis"
	StoreBadger StoreType = "badger"
)

// Config describes a database: where it is stored and which tables it has.
type Config struct {
	// Verbose enables debug logging of every store operation
	Verbose bool `json:"verbose" yaml:"verbose"`

	Store StoreConfig `json:"store" yaml:"store"`

	Tables []TableConfig `json:"tables" yaml:"tables"`
}

// StoreConfig selects and configures the storage backend.
type StoreConfig struct {
	// Type is one of mem, bolt, redis, badger
	Type StoreType `json:"type" yaml:"type"`

	// Path is the database file (bolt) or directory (badger)
	Path string `json:"path" yaml:"path"`

	// Bucket is the Bolt bucket holding all keys
	Bucket string `json:"bucket" yaml:"bucket"`

	// InMemory runs badger without touching the disk
	InMemory bool `json:"in_memory" yaml:"in_memory"`

	Redis RedisConfig `json:"redis" yaml:"redis"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string `json:"addr" yaml:"addr"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`

	// Namespace is prepended to every key
	Namespace string `json:"namespace" yaml:"namespace"`
}

// TableConfig defines one table.
type TableConfig struct {
	Name string `json:"name" yaml:"name"`

	// Schema is a raw schema definition, as accepted by kvdoc.ParseSchema
	Schema any `json:"schema" yaml:"schema"`

	Strict bool `json:"strict" yaml:"strict"`

	// Encoding is json (default) or msgpack
	Encoding string `json:"encoding" yaml:"encoding"`

	// Key is a hex-encoded 32-byte encryption key
	Key string `json:"key" yaml:"key"`

	// KeyEnv names an environment variable holding the hex key
	KeyEnv string `json:"key_env" yaml:"key_env"`

	LegacyPointers bool `json:"legacy_pointers" yaml:"legacy_pointers"`

	// SuppressContent keeps values out of debug logs
	SuppressContent bool `json:"suppress_content" yaml:"suppress_content"`
}

// DefaultConfig returns a configuration with a local Bolt store and no tables.
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Type:   StoreBolt,
			Path:   "kvdoc.db",
			Bucket: kvdoc.DefaultBoltBucket,
			Redis: RedisConfig{
				Addr: "localhost:6379",
			},
		},
	}
}

// LoadFromFile loads configuration from a YAML or JSON file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadFromEnv overrides store settings from KVDOC_* environment variables.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("KVDOC_STORE"); v != "" {
		cfg.Store.Type = StoreType(v)
	}
	if v := os.Getenv("KVDOC_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("KVDOC_REDIS_ADDR"); v != "" {
		cfg.Store.Redis.Addr = v
	}
	if v := os.Getenv("KVDOC_REDIS_PASSWORD"); v != "" {
		cfg.Store.Redis.Password = v
	}
	if v := os.Getenv("KVDOC_REDIS_NAMESPACE"); v != "" {
		cfg.Store.Redis.Namespace = v
	}
	if v := os.Getenv("KVDOC_VERBOSE"); v != "" {
		cfg.Verbose = v == "true" || v == "1"
	}
}

// Validate validates the configuration, including every table schema.
func (c *Config) Validate() error {
	switch c.Store.Type {
	case StoreMem:
	case StoreBolt, StoreBadger:
		if c.Store.Path == "" && !(c.Store.Type == StoreBadger && c.Store.InMemory) {
			return fmt.Errorf("store.path is required for %s store", c.Store.Type)
		}
	case StoreRedis:
		if c.Store.Redis.Addr == "" {
			return fmt.Errorf("store.redis.addr is required for redis store")
		}
	default:
		return fmt.Errorf("invalid store type: %s (must be mem, bolt, redis or badger)", c.Store.Type)
	}

	seen := make(map[string]bool)
	for i, tc := range c.Tables {
		if tc.Name == "" {
			return fmt.Errorf("tables[%d]: name is required", i)
		}
		if seen[tc.Name] {
			return fmt.Errorf("tables[%d]: duplicate table %s", i, tc.Name)
		}
		seen[tc.Name] = true
		if _, err := tc.Options(); err != nil {
			return fmt.Errorf("table %s: %w", tc.Name, err)
		}
		n, err := kvdoc.ParseSchema(tc.Schema)
		if err != nil {
			return fmt.Errorf("table %s: %w", tc.Name, err)
		}
		if err := kvdoc.ValidateSchema(n); err != nil {
			return fmt.Errorf("table %s: %w", tc.Name, err)
		}
	}
	return nil
}

// Options converts the table settings into kvdoc.TableOptions.
func (tc *TableConfig) Options() (kvdoc.TableOptions, error) {
	enc, err := kvdoc.ParseEncoding(tc.Encoding)
	if err != nil {
		return kvdoc.TableOptions{}, err
	}
	opt := kvdoc.TableOptions{
		Strict:                     tc.Strict,
		Encoding:                   enc,
		LegacyPointers:             tc.LegacyPointers,
		SuppressContentWhenLogging: tc.SuppressContent,
	}

	keyHex := tc.Key
	if tc.KeyEnv != "" {
		keyHex = os.Getenv(tc.KeyEnv)
		if keyHex == "" {
			return kvdoc.TableOptions{}, fmt.Errorf("environment variable %s is empty", tc.KeyEnv)
		}
	}
	if keyHex != "" {
		key, err := hex.DecodeString(strings.TrimSpace(keyHex))
		if err != nil {
			return kvdoc.TableOptions{}, fmt.Errorf("invalid key: %w", err)
		}
		if len(key) != kvdoc.KeySize {
			return kvdoc.TableOptions{}, kvdoc.ErrInvalidKey
		}
		opt.EncryptionKey = key
	}
	return opt, nil
}

// OpenStore opens the configured backend.
func (c *Config) OpenStore(ctx context.Context) (kvdoc.Store, error) {
	switch c.Store.Type {
	case StoreMem:
		return kvdoc.NewMemStore(), nil
	case StoreBolt:
		s, err := kvdoc.OpenBolt(c.Store.Path, kvdoc.BoltOptions{Bucket: c.Store.Bucket})
		if err != nil {
			return nil, err
		}
		return s, nil
	case StoreBadger:
		s, err := badgerstore.Open(badgerstore.Options{Dir: c.Store.Path, InMemory: c.Store.InMemory})
		if err != nil {
			return nil, err
		}
		return s, nil
	case StoreRedis:
		s, err := redisstore.Open(ctx, redisstore.Options{
			Addr:      c.Store.Redis.Addr,
			Password:  c.Store.Redis.Password,
			DB:        c.Store.Redis.DB,
			Namespace: c.Store.Redis.Namespace,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("invalid store type: %s", c.Store.Type)
	}
}

// Open opens the store and registers every configured table.
func (c *Config) Open(ctx context.Context, logger *slog.Logger) (*kvdoc.DB, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	store, err := c.OpenStore(ctx)
	if err != nil {
		return nil, err
	}
	db := kvdoc.Open(store, kvdoc.Options{Logger: logger, Verbose: c.Verbose})
	for _, tc := range c.Tables {
		opt, err := tc.Options()
		if err == nil {
			_, err = db.AddTable(tc.Name, tc.Schema, opt)
		}
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("table %s: %w", tc.Name, err)
		}
	}
	return db, nil
}
