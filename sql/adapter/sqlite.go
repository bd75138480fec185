package adapter

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mattn/go-sqlite3"

	store "github.com/synergyfw/crmstore"
)

// MemoryPath is the SQLite path for a private in-memory database.
const MemoryPath = ":memory:"

// SQLiteAdapter implements the Adapter interface for SQLite.
type SQLiteAdapter struct {
	*BaseSQLAdapter
}

// NewSQLiteAdapter creates a new SQLite adapter.
func NewSQLiteAdapter() *SQLiteAdapter {
	return &SQLiteAdapter{
		BaseSQLAdapter: NewBaseSQLAdapter("sqlite3", "sqlite"),
	}
}

// Connect establishes a connection to SQLite.
//
// An in-memory database lives inside a single connection, so the pool is
// pinned to exactly one connection that is never recycled.
func (a *SQLiteAdapter) Connect(ctx context.Context, config *store.Config) (*sql.DB, error) {
	cfg := *config
	if cfg.MaxOpenConns <= 0 || isMemoryPath(cfg.FilePath) {
		cfg.MaxOpenConns = 1
	}
	if isMemoryPath(cfg.FilePath) {
		cfg.MaxIdleConns = 1
		cfg.ConnMaxLifetime = 0
		cfg.ConnMaxIdleTime = 0
	}
	return a.BaseSQLAdapter.Connect(ctx, &cfg, a.ConnectionString(config))
}

func isMemoryPath(path string) bool {
	return path == "" || path == MemoryPath
}

// ConnectionString constructs a SQLite connection string. Foreign keys are
// enabled on every connection through the DSN.
func (a *SQLiteAdapter) ConnectionString(config *store.Config) string {
	dbPath := config.FilePath
	if isMemoryPath(dbPath) {
		dbPath = MemoryPath
	} else if !filepath.IsAbs(dbPath) && !strings.HasPrefix(dbPath, "file:") {
		dbPath = filepath.Clean(dbPath)
	}

	params := map[string]string{
		"_foreign_keys": "1",
		"_busy_timeout": "5000",
	}
	for key, value := range config.Options {
		params[key] = value
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, len(keys))
	for i, k := range keys {
		pairs[i] = fmt.Sprintf("%s=%s", k, params[k])
	}

	return fmt.Sprintf("%s?%s", dbPath, strings.Join(pairs, "&"))
}

// Dialect returns the SQLite dialect.
func (a *SQLiteAdapter) Dialect() Dialect {
	return Dialect{
		Name:        "sqlite",
		Placeholder: QuestionPlaceholder,
		Quote: func(identifier string) string {
			return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
		},
	}
}

// MigrationTableSQL returns the SQL to create the migration table.
func (a *SQLiteAdapter) MigrationTableSQL() string {
	return `CREATE TABLE IF NOT EXISTS schema_migrations (
		version TEXT PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`
}

// CreateTableSQL returns the DDL for a record schema.
func (a *SQLiteAdapter) CreateTableSQL(schema *store.Schema) []string {
	return buildCreateTable(schema, sqliteColumnType, "", false)
}

func sqliteColumnType(k store.Kind) string {
	switch k {
	case store.KindInt:
		return "INTEGER"
	case store.KindDecimal:
		return "NUMERIC"
	case store.KindDate:
		return "DATE"
	case store.KindTimestamp:
		return "TIMESTAMP"
	default:
		return "TEXT"
	}
}

// DefaultTxOptions returns default transaction options for SQLite.
// go-sqlite3 only accepts the default isolation level.
func (a *SQLiteAdapter) DefaultTxOptions() *sql.TxOptions {
	return &sql.TxOptions{}
}

func (a *SQLiteAdapter) IsUniqueConstraintViolation(err error) bool {
	var sqErr sqlite3.Error
	if !errors.As(err, &sqErr) {
		return false
	}
	return sqErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

func (a *SQLiteAdapter) IsForeignKeyViolation(err error) bool {
	var sqErr sqlite3.Error
	return errors.As(err, &sqErr) && sqErr.ExtendedCode == sqlite3.ErrConstraintForeignKey
}

func (a *SQLiteAdapter) IsConnectionError(err error) bool {
	var sqErr sqlite3.Error
	if errors.As(err, &sqErr) {
		switch sqErr.Code {
		case sqlite3.ErrCantOpen, sqlite3.ErrBusy, sqlite3.ErrLocked, sqlite3.ErrSchema:
			return true
		}
	}
	return a.BaseSQLAdapter.IsConnectionError(err)
}
