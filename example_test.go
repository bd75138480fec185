package store_test

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	store "github.com/synergyfw/crmstore"
)

func TestBasicTypes(t *testing.T) {
	condition := store.Eq("name", "Acme")
	assert.Equal(t, store.Condition{Field: "name", Op: store.OpEq, Value: "Acme"}, condition)

	insert := store.NewInsert(map[string]any{"name": "Acme", "number_of_employees": 30})
	assert.Len(t, insert.Values, 2)

	assert.True(t, store.MatchByID.IsID())
	assert.False(t, store.MatchKey{"account_id", "name"}.IsID())
}

func TestErrorTypes(t *testing.T) {
	err := store.NewValidationError("test validation failed")
	assert.Equal(t, "validation error: test validation failed", err.Error())
	assert.ErrorIs(t, err, store.ErrValidationFailed)

	configErr := store.NewConfigError("invalid config")
	assert.Equal(t, "config error: invalid config", configErr.Error())

	queryErr := store.WrapQueryError(store.ErrInvalidQuery, "find", "accounts", "", nil)
	assert.ErrorIs(t, queryErr, store.ErrQueryFailed)
	assert.ErrorIs(t, queryErr, store.ErrInvalidQuery)

	notFound := store.NewRecordNotFoundError("Account", "42")
	assert.ErrorIs(t, notFound, store.ErrRecordNotFound)
	assert.True(t, store.IsRecordNotFoundError(fmt.Errorf("wrapped: %w", notFound)))
}

// Example_config shows the ways of building a backend configuration.
func Example_config() {
	// Convenience constructors
	pgConfig := store.PostgreSQLConfig("crm", "user", "password")

	// Options API
	config := store.NewConfig(
		store.PostgreSQLOptions("crm", "user", "password",
			store.WithHost("localhost"),
			store.WithPooling(25, 10, time.Hour),
			store.WithTimeouts(30*time.Second, 30*time.Second),
			store.WithMetricsEnabled(),
		)...,
	)

	// Defaults plus options
	sqliteConfig := store.DefaultConfig()
	sqliteConfig.Apply(store.SQLiteOptions("/tmp/crm.db")...)

	memConfig := store.MemoryConfig()

	for _, cfg := range []store.Config{pgConfig, config, sqliteConfig, memConfig} {
		if err := cfg.Validate(); err != nil {
			panic(err)
		}
		fmt.Println(cfg.Type, cfg.IsSQL())
	}

	// Output:
	// postgres true
	// postgres true
	// sqlite true
	// memory false
}

func TestUnifiedOptions(t *testing.T) {
	config := store.NewConfig(store.PostgreSQLOptions("testdb", "user", "pass")...)
	assert.Equal(t, store.TypePostgres, config.Type)
	assert.Equal(t, "testdb", config.Database)
	assert.Equal(t, 5432, config.Port)
	assert.Equal(t, "disable", config.SSLMode)

	config = store.NewConfig(store.MySQLOptions("testdb", "user", "pass")...)
	assert.Equal(t, store.TypeMySQL, config.Type)
	assert.Equal(t, 3306, config.Port)

	config = store.NewConfig(store.SQLiteOptions("/tmp/test.db")...)
	assert.Equal(t, store.TypeSQLite, config.Type)
	assert.Equal(t, "/tmp/test.db", config.FilePath)
	assert.Equal(t, 1, config.MaxOpenConns)

	config = store.DefaultConfig()
	config.Apply(
		store.WithHost("custom-host"),
		store.WithPort(9999),
		store.WithMetricsEnabled(),
		store.WithOption("custom", "value"),
	)
	assert.Equal(t, "custom-host", config.Host)
	assert.Equal(t, 9999, config.Port)
	assert.True(t, config.EnableMetrics)
	assert.Equal(t, "value", config.Options["custom"])
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  store.Config
		wantErr bool
	}{
		{"memory", store.MemoryConfig(), false},
		{"sqlite in memory", store.SQLiteConfig(""), false},
		{"postgres", store.PostgreSQLConfig("crm", "u", "p"), false},
		{"postgres without database", store.PostgreSQLConfig("", "u", "p"), true},
		{"mysql without host", store.MySQLConfig("crm", "u", "p", store.WithHost("")), true},
		{"missing type", store.DefaultConfig(), true},
		{"unknown type", store.NewConfig(func(c *store.Config) { c.Type = "oracle" }), true},
		{"negative pool", store.MemoryConfig(store.WithMaxOpenConns(-1)), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, store.IsConfigError(err))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	t.Run("defaults to memory", func(t *testing.T) {
		cfg, err := store.LoadConfig("")
		require.NoError(t, err)
		assert.Equal(t, store.TypeMemory, cfg.Type)
		assert.Equal(t, 30*time.Second, cfg.QueryTimeout)
		assert.Equal(t, time.Hour, cfg.ConnMaxLifetime)
		assert.Equal(t, 10, cfg.MaxIdleConns)
		assert.Equal(t, "disable", cfg.SSLMode)
		assert.Empty(t, cfg.MetricLabels)
	})

	t.Run("file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "crm.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
type: sqlite
file_path: /var/lib/crm.db
max_open_conns: 1
query_timeout: 5s
ssl_mode: require
metrics:
  enabled: true
  labels:
    service: crmctl
options:
  cache: shared
`), 0o600))

		cfg, err := store.LoadConfig(path)
		require.NoError(t, err)
		assert.Equal(t, store.TypeSQLite, cfg.Type)
		assert.Equal(t, "/var/lib/crm.db", cfg.FilePath)
		assert.Equal(t, 1, cfg.MaxOpenConns)
		assert.Equal(t, 5*time.Second, cfg.QueryTimeout)
		assert.True(t, cfg.EnableMetrics)
		assert.Equal(t, "crmctl", cfg.MetricLabels["service"])
		assert.Equal(t, "require", cfg.SSLMode)
		assert.Equal(t, "shared", cfg.Options["cache"])
	})

	t.Run("environment overrides file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "crm.yaml")
		require.NoError(t, os.WriteFile(path, []byte("type: sqlite\n"), 0o600))
		t.Setenv("CRM_TYPE", "postgres")
		t.Setenv("CRM_DATABASE", "crm")
		t.Setenv("CRM_USERNAME", "svc")
		t.Setenv("CRM_PASSWORD", "secret")

		cfg, err := store.LoadConfig(path)
		require.NoError(t, err)
		assert.Equal(t, store.TypePostgres, cfg.Type)
		assert.Equal(t, "crm", cfg.Database)
		assert.Equal(t, "svc", cfg.Username)
		assert.Equal(t, "secret", cfg.Password)
	})

	t.Run("options applied last", func(t *testing.T) {
		cfg, err := store.LoadConfig("", store.WithPort(6000))
		require.NoError(t, err)
		assert.Equal(t, 6000, cfg.Port)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := store.LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
		require.Error(t, err)
		assert.True(t, store.IsConfigError(err))
	})

	t.Run("invalid result", func(t *testing.T) {
		t.Setenv("CRM_TYPE", "mysql")
		_, err := store.LoadConfig("")
		require.Error(t, err)
		assert.True(t, store.IsConfigError(err))
	})
}
