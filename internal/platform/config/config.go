package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store drivers accepted by LABTRAIL_STORE.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
	StoreRedis    = "redis"
)

// Config is the whole process configuration.
type Config struct {
	Server  Server
	Store   StoreConfig
	Redis   RedisConfig
	Audit   AuditConfig
	History HistoryConfig
	Log     LogConfig
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	JWTSigningKey   string
	ShutdownTimeout time.Duration
}

// StoreConfig selects and locates the audit store.
type StoreConfig struct {
	Driver      string
	DatabaseURL string
	SQLitePath  string
}

// RedisConfig tunes the redis client used by the redis driver.
type RedisConfig struct {
	URL          string
	KeyPrefix    string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// AuditConfig tunes the recorder.
type AuditConfig struct {
	BufferSize    int
	AppendTimeout time.Duration
}

// HistoryConfig holds rendering defaults.
type HistoryConfig struct {
	ProfilesPath   string
	Location       *time.Location
	CurrencySymbol string
}

// LogConfig selects the log level and encoding.
type LogConfig struct {
	Level  string
	Format string
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() (Config, error) {
	return FromLookup(os.LookupEnv)
}

// FromLookup builds a Config from lookup. Tests pass a map-backed lookup.
func FromLookup(lookup func(string) (string, bool)) (Config, error) {
	e := env{lookup: lookup}

	cfg := Config{
		Server: Server{
			Addr:            e.str("LABTRAIL_ADDR", ":8080"),
			JWTSigningKey:   e.str("JWT_SIGNING_KEY", ""),
			ShutdownTimeout: e.duration("LABTRAIL_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Store: StoreConfig{
			Driver:      strings.ToLower(e.str("LABTRAIL_STORE", StoreMemory)),
			DatabaseURL: e.str("DATABASE_URL", ""),
			SQLitePath:  e.str("LABTRAIL_SQLITE_PATH", "labtrail.db"),
		},
		Redis: RedisConfig{
			URL:          e.str("REDIS_URL", ""),
			KeyPrefix:    e.str("REDIS_KEY_PREFIX", "labtrail:"),
			PoolSize:     e.integer("REDIS_POOL_SIZE", 10),
			MinIdleConns: e.integer("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  e.duration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  e.duration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: e.duration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Audit: AuditConfig{
			BufferSize:    e.integer("LABTRAIL_AUDIT_BUFFER", 1024),
			AppendTimeout: e.duration("LABTRAIL_AUDIT_APPEND_TIMEOUT", 2*time.Second),
		},
		History: HistoryConfig{
			ProfilesPath:   e.str("LABTRAIL_PROFILES", ""),
			CurrencySymbol: e.str("LABTRAIL_CURRENCY", "₹"),
		},
		Log: LogConfig{
			Level:  strings.ToLower(e.str("LOG_LEVEL", "info")),
			Format: strings.ToLower(e.str("LOG_FORMAT", "json")),
		},
	}

	tz := e.str("LABTRAIL_TZ", "Local")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		e.fail("LABTRAIL_TZ", err)
	}
	cfg.History.Location = loc

	if e.err != nil {
		return Config{}, e.err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Store.Driver {
	case StoreMemory, StoreSQLite:
	case StorePostgres:
		if c.Store.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the %s store", StorePostgres)
		}
	case StoreRedis:
		if c.Redis.URL == "" {
			return fmt.Errorf("REDIS_URL is required for the %s store", StoreRedis)
		}
	default:
		return fmt.Errorf("LABTRAIL_STORE: unknown driver %q", c.Store.Driver)
	}
	if c.Audit.BufferSize <= 0 {
		return fmt.Errorf("LABTRAIL_AUDIT_BUFFER must be positive")
	}
	if c.Audit.AppendTimeout <= 0 {
		return fmt.Errorf("LABTRAIL_AUDIT_APPEND_TIMEOUT must be positive")
	}
	return nil
}

// env reads variables and keeps the first parse failure.
type env struct {
	lookup func(string) (string, bool)
	err    error
}

func (e *env) fail(key string, err error) {
	if e.err == nil {
		e.err = fmt.Errorf("%s: %w", key, err)
	}
}

func (e *env) str(key, def string) string {
	if v, ok := e.lookup(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func (e *env) integer(key string, def int) int {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(key, err)
		return def
	}
	return n
}

func (e *env) duration(key string, def time.Duration) time.Duration {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(key, err)
		return def
	}
	return d
}
