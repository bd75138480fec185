package store

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/viper"
)

// Supported backend types.
const (
	TypePostgres = "postgres"
	TypeMySQL    = "mysql"
	TypeSQLite   = "sqlite"
	TypeMemory   = "memory"
)

// Config contains configuration shared by all store backends.
type Config struct {
	// Basic connection info
	Type     string // backend type (postgres, mysql, sqlite, memory)
	Host     string
	Port     int
	Username string
	Password string
	Database string
	FilePath string // file-based backends (SQLite)
	SSLMode  string

	// Connection pooling
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	// Timeouts
	ConnectTimeout time.Duration
	QueryTimeout   time.Duration

	// Backend-specific options
	Options map[string]string

	// Observability
	EnableMetrics     bool
	MetricLabels      prometheus.Labels
	MetricsRegisterer prometheus.Registerer
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Host:            "localhost",
		Port:            0, // Backend-specific default
		MaxOpenConns:    25,
		MaxIdleConns:    10,
		ConnMaxLifetime: 1 * time.Hour,
		ConnMaxIdleTime: 10 * time.Minute,
		ConnectTimeout:  30 * time.Second,
		QueryTimeout:    30 * time.Second,
		Options:         make(map[string]string),
		EnableMetrics:   false,
		MetricLabels:    make(prometheus.Labels),
	}
}

// Validate checks that the configuration is usable for its backend type.
func (c *Config) Validate() error {
	switch c.Type {
	case TypePostgres, TypeMySQL:
		if c.Host == "" {
			return NewConfigErrorForField("Host", c.Host, "host is required")
		}
		if c.Database == "" {
			return NewConfigErrorForField("Database", c.Database, "database is required")
		}
	case TypeSQLite, TypeMemory:
	case "":
		return NewConfigErrorForField("Type", c.Type, "backend type is required")
	default:
		return NewConfigErrorForField("Type", c.Type, "unsupported backend type")
	}
	if c.MaxOpenConns < 0 || c.MaxIdleConns < 0 {
		return NewConfigError("connection pool sizes must not be negative")
	}
	return nil
}

// IsSQL reports whether the backend is one of the SQL databases.
func (c *Config) IsSQL() bool {
	return c.Type == TypePostgres || c.Type == TypeMySQL || c.Type == TypeSQLite
}

// Convenience constructors

// PostgreSQLConfig returns a PostgreSQL configuration.
func PostgreSQLConfig(database, username, password string, opts ...Option) Config {
	return NewConfig(PostgreSQLOptions(database, username, password, opts...)...)
}

// MySQLConfig returns a MySQL configuration.
func MySQLConfig(database, username, password string, opts ...Option) Config {
	return NewConfig(MySQLOptions(database, username, password, opts...)...)
}

// SQLiteConfig returns a SQLite configuration; an empty path is in-memory.
func SQLiteConfig(filePath string, opts ...Option) Config {
	return NewConfig(SQLiteOptions(filePath, opts...)...)
}

// MemoryConfig returns an in-memory configuration.
func MemoryConfig(opts ...Option) Config {
	return NewConfig(MemoryOptions(opts...)...)
}

// LoadConfig reads configuration from an optional file and CRM_* environment
// variables (CRM_TYPE, CRM_HOST, CRM_METRICS_ENABLED, ...). Constant metric
// labels come from the metrics.labels map of the file. Options are applied
// last.
func LoadConfig(path string, opts ...Option) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CRM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	def := DefaultConfig()
	v.SetDefault("type", TypeMemory)
	v.SetDefault("host", def.Host)
	v.SetDefault("port", def.Port)
	v.SetDefault("ssl_mode", "disable")
	v.SetDefault("max_open_conns", def.MaxOpenConns)
	v.SetDefault("max_idle_conns", def.MaxIdleConns)
	v.SetDefault("conn_max_lifetime", def.ConnMaxLifetime)
	v.SetDefault("connect_timeout", def.ConnectTimeout)
	v.SetDefault("query_timeout", def.QueryTimeout)
	v.SetDefault("metrics.enabled", false)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, NewConfigErrorForField("path", path, err.Error())
		}
	}

	cfg := NewConfig(
		WithType(v.GetString("type")),
		WithHost(v.GetString("host")),
		WithPort(v.GetInt("port")),
		WithCredentials(v.GetString("username"), v.GetString("password")),
		WithDatabase(v.GetString("database")),
		WithFilePath(v.GetString("file_path")),
		WithSSL(v.GetString("ssl_mode")),
		WithMaxOpenConns(v.GetInt("max_open_conns")),
		WithMaxIdleConns(v.GetInt("max_idle_conns")),
		WithConnMaxLifetime(v.GetDuration("conn_max_lifetime")),
		WithConnectTimeout(v.GetDuration("connect_timeout")),
		WithQueryTimeout(v.GetDuration("query_timeout")),
		WithMetrics(v.GetBool("metrics.enabled")),
		WithMetricLabels(v.GetStringMapString("metrics.labels")),
		WithOptions(v.GetStringMapString("options")),
	)
	cfg.Apply(opts...)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
