// Package config handles configuration loading and defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// Source represents where a configuration value came from.
type Source string

const (
	SourceDefault  Source = "default"
	SourceUserFile Source = "user file"
	SourceProjFile Source = "project file"
	SourceExplicit Source = "config flag"
	SourceEnv      Source = "environment"
	SourceFlag     Source = "flag"
)

// Backends.
const (
	BackendFirestore = "firestore"
	BackendRedis     = "redis"
	BackendJSON      = "json"
	BackendMemory    = "memory"
)

// Default values.
const (
	DefaultBackend     = BackendFirestore
	DefaultCollection  = "todos"
	DefaultJSONPath    = "todos.json"
	DefaultRedisAddr   = "localhost:6379"
	DefaultLogLevel    = "info"
	DefaultLogFormat   = "text"
	DefaultTheme       = "classic"
	ProjectFileName    = "tada.toml"
	UserConfigDirName  = "tada"
	UserConfigFileName = "config.toml"
)

// Firebase parameters are read from the environment under a primary prefix,
// falling back to an alias prefix per parameter.
const (
	PrimaryEnvPrefix  = "TADA_FIREBASE_"
	FallbackEnvPrefix = "FIREBASE_"
)

var (
	// ErrMissingProjectID means the Firestore backend was selected without a
	// project identifier. It is fatal; there is no fallback project.
	ErrMissingProjectID = errors.New("firebase project ID is missing")
	// ErrUnknownBackend is returned for a backend name this build does not know.
	ErrUnknownBackend = errors.New("unknown backend")
)

// Firebase holds the hosted store's connection parameters.
type Firebase struct {
	APIKey            string
	AuthDomain        string
	ProjectID         string
	StorageBucket     string
	MessagingSenderID string
	AppID             string
}

// RedisConfig holds connection settings for the redis backend.
type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
	Prefix   string `toml:"prefix"`
}

// Config holds the full configuration for tada.
type Config struct {
	Backend    string      `toml:"backend"`
	Collection string      `toml:"collection"`
	JSONPath   string      `toml:"json_path"`
	Redis      RedisConfig `toml:"redis"`

	// Logging configuration
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
	LogFile   string `toml:"log_file"`

	Theme string `toml:"theme"`

	// Environment only; never read from or written to a file.
	Firebase Firebase `toml:"-"`
}

// Flags are the root command-line overrides. Empty values are ignored.
type Flags struct {
	ConfigPath string
	Backend    string
	Collection string
	LogLevel   string
	Theme      string
}

// Load builds a Config from defaults, config files, the environment and
// flags, in increasing order of precedence.
func Load(flags Flags) (*Config, error) {
	cfg, _, err := LoadWithSources(flags)
	return cfg, err
}

// LoadWithSources is Load plus the source of every top-level setting.
func LoadWithSources(flags Flags) (*Config, map[string]Source, error) {
	cfg := &Config{}
	sources := map[string]Source{}
	setDefaults(cfg, sources)

	if flags.ConfigPath != "" {
		if err := loadFile(cfg, flags.ConfigPath, SourceExplicit, sources); err != nil {
			return nil, nil, err
		}
	} else {
		if p, err := userConfigPath(); err == nil {
			if err := loadFileIfExists(cfg, p, SourceUserFile, sources); err != nil {
				return nil, nil, err
			}
		}
		if err := loadFileIfExists(cfg, ProjectFileName, SourceProjFile, sources); err != nil {
			return nil, nil, err
		}
	}

	loadFromEnv(cfg, sources)
	applyFlags(cfg, flags, sources)
	return cfg, sources, nil
}

func setDefaults(cfg *Config, sources map[string]Source) {
	cfg.Backend = DefaultBackend
	cfg.Collection = DefaultCollection
	cfg.JSONPath = DefaultJSONPath
	cfg.Redis.Addr = DefaultRedisAddr
	cfg.LogLevel = DefaultLogLevel
	cfg.LogFormat = DefaultLogFormat
	cfg.Theme = DefaultTheme
	for _, k := range []string{"backend", "collection", "json_path", "redis.addr", "log_level", "log_format", "theme"} {
		sources[k] = SourceDefault
	}
}

func userConfigPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("user config dir: %w", err)
	}
	return filepath.Join(dir, UserConfigDirName, UserConfigFileName), nil
}

func loadFileIfExists(cfg *Config, path string, src Source, sources map[string]Source) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat %s: %w", path, err)
	}
	return loadFile(cfg, path, src, sources)
}

func loadFile(cfg *Config, path string, src Source, sources map[string]Source) error {
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return fmt.Errorf("parse %s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	for _, k := range md.Keys() {
		sources[k.String()] = src
	}
	return nil
}

func loadFromEnv(cfg *Config, sources map[string]Source) {
	set := func(key, env string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(env)); v != "" {
			*dst = v
			sources[key] = SourceEnv
		}
	}
	set("backend", "TADA_BACKEND", &cfg.Backend)
	set("collection", "TADA_COLLECTION", &cfg.Collection)
	set("json_path", "TADA_JSON_PATH", &cfg.JSONPath)
	set("redis.addr", "TADA_REDIS_ADDR", &cfg.Redis.Addr)
	set("redis.password", "TADA_REDIS_PASSWORD", &cfg.Redis.Password)
	set("redis.prefix", "TADA_REDIS_PREFIX", &cfg.Redis.Prefix)
	set("log_level", "TADA_LOG_LEVEL", &cfg.LogLevel)
	set("log_format", "TADA_LOG_FORMAT", &cfg.LogFormat)
	set("log_file", "TADA_LOG_FILE", &cfg.LogFile)
	set("theme", "TADA_THEME", &cfg.Theme)
	if v := os.Getenv("TADA_REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Redis.DB = n
			sources["redis.db"] = SourceEnv
		}
	}
	cfg.Firebase = FirebaseFromEnv()
}

// FirebaseFromEnv reads every Firebase parameter, preferring the primary
// prefix and falling back to the alias.
func FirebaseFromEnv() Firebase {
	return Firebase{
		APIKey:            lookupAliased("API_KEY"),
		AuthDomain:        lookupAliased("AUTH_DOMAIN"),
		ProjectID:         lookupAliased("PROJECT_ID"),
		StorageBucket:     lookupAliased("STORAGE_BUCKET"),
		MessagingSenderID: lookupAliased("MESSAGING_SENDER_ID"),
		AppID:             lookupAliased("APP_ID"),
	}
}

func lookupAliased(name string) string {
	if v := strings.TrimSpace(os.Getenv(PrimaryEnvPrefix + name)); v != "" {
		return v
	}
	return strings.TrimSpace(os.Getenv(FallbackEnvPrefix + name))
}

func applyFlags(cfg *Config, f Flags, sources map[string]Source) {
	set := func(key, v string, dst *string) {
		if v != "" {
			*dst = v
			sources[key] = SourceFlag
		}
	}
	set("backend", f.Backend, &cfg.Backend)
	set("collection", f.Collection, &cfg.Collection)
	set("log_level", f.LogLevel, &cfg.LogLevel)
	set("theme", f.Theme, &cfg.Theme)
}

// Validate reports configuration that makes the selected backend unusable.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendFirestore:
		if c.Firebase.ProjectID == "" {
			return ErrMissingProjectID
		}
	case BackendRedis:
		if c.Redis.Addr == "" {
			return errors.New("redis address is empty")
		}
	case BackendJSON, BackendMemory:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBackend, c.Backend)
	}
	if strings.TrimSpace(c.Collection) == "" {
		return errors.New("collection name is empty")
	}
	return nil
}

// Redacted returns printable key/value lines with secrets hidden.
func (c *Config) Redacted() [][2]string {
	hide := func(s string) string {
		if s == "" {
			return "(unset)"
		}
		return "[HIDDEN]"
	}
	show := func(s string) string {
		if s == "" {
			return "(unset)"
		}
		return s
	}
	return [][2]string{
		{"backend", c.Backend},
		{"collection", c.Collection},
		{"json_path", c.JSONPath},
		{"redis.addr", c.Redis.Addr},
		{"redis.password", hide(c.Redis.Password)},
		{"redis.db", strconv.Itoa(c.Redis.DB)},
		{"log_level", c.LogLevel},
		{"log_format", c.LogFormat},
		{"log_file", show(c.LogFile)},
		{"theme", c.Theme},
		{"firebase.api_key", hide(c.Firebase.APIKey)},
		{"firebase.auth_domain", show(c.Firebase.AuthDomain)},
		{"firebase.project_id", show(c.Firebase.ProjectID)},
		{"firebase.storage_bucket", show(c.Firebase.StorageBucket)},
		{"firebase.messaging_sender_id", show(c.Firebase.MessagingSenderID)},
		{"firebase.app_id", show(c.Firebase.AppID)},
	}
}
