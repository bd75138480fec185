package adapter

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/lib/pq"

	store "github.com/synergyfw/crmstore"
)

// PostgreSQL error codes.
const (
	pgUniqueViolation     pq.ErrorCode = "23505"
	pgForeignKeyViolation pq.ErrorCode = "23503"
)

// PostgreSQLAdapter implements the Adapter interface for PostgreSQL.
type PostgreSQLAdapter struct {
	*BaseSQLAdapter
}

// NewPostgreSQLAdapter creates a new PostgreSQL adapter.
func NewPostgreSQLAdapter() *PostgreSQLAdapter {
	return &PostgreSQLAdapter{
		BaseSQLAdapter: NewBaseSQLAdapter("postgres", "postgres"),
	}
}

// Connect establishes a connection to PostgreSQL.
func (a *PostgreSQLAdapter) Connect(ctx context.Context, config *store.Config) (*sql.DB, error) {
	connStr := a.ConnectionString(config)
	return a.BaseSQLAdapter.Connect(ctx, config, connStr)
}

// ConnectionString constructs a PostgreSQL key/value connection string.
func (a *PostgreSQLAdapter) ConnectionString(config *store.Config) string {
	var parts []string

	if config.Host != "" {
		parts = append(parts, fmt.Sprintf("host=%s", config.Host))
	}
	if config.Port > 0 {
		parts = append(parts, fmt.Sprintf("port=%d", config.Port))
	}
	if config.Database != "" {
		parts = append(parts, fmt.Sprintf("dbname=%s", config.Database))
	}
	if config.Username != "" {
		parts = append(parts, fmt.Sprintf("user=%s", config.Username))
	}
	if config.Password != "" {
		parts = append(parts, fmt.Sprintf("password=%s", pgQuote(config.Password)))
	}

	sslMode := config.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	parts = append(parts, fmt.Sprintf("sslmode=%s", sslMode))

	if config.ConnectTimeout > 0 {
		parts = append(parts, fmt.Sprintf("connect_timeout=%d", int(config.ConnectTimeout.Seconds())))
	}

	keys := make([]string, 0, len(config.Options))
	for k := range config.Options {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, config.Options[k]))
	}

	return strings.Join(parts, " ")
}

func pgQuote(v string) string {
	if !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

// Dialect returns the PostgreSQL dialect.
func (a *PostgreSQLAdapter) Dialect() Dialect {
	return Dialect{
		Name:          "postgres",
		Placeholder:   DollarPlaceholder,
		SupportsILike: true,
		Quote:         pq.QuoteIdentifier,
	}
}

// MigrationTableSQL returns PostgreSQL-specific migration table SQL.
func (a *PostgreSQLAdapter) MigrationTableSQL() string {
	return `CREATE TABLE IF NOT EXISTS schema_migrations (
		version VARCHAR(255) PRIMARY KEY,
		applied_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	)`
}

// CreateTableSQL returns the DDL for a record schema.
func (a *PostgreSQLAdapter) CreateTableSQL(schema *store.Schema) []string {
	return buildCreateTable(schema, pgColumnType, "", false)
}

func pgColumnType(k store.Kind) string {
	switch k {
	case store.KindText:
		return "TEXT"
	case store.KindInt:
		return "INTEGER"
	case store.KindDecimal:
		return "NUMERIC(18,2)"
	case store.KindDate:
		return "DATE"
	case store.KindTimestamp:
		return "TIMESTAMPTZ"
	default:
		return "VARCHAR(255)"
	}
}

// DefaultTxOptions returns PostgreSQL-specific transaction options.
func (a *PostgreSQLAdapter) DefaultTxOptions() *sql.TxOptions {
	return &sql.TxOptions{
		Isolation: sql.LevelReadCommitted,
		ReadOnly:  false,
	}
}

// IsUniqueConstraintViolation checks for SQLSTATE 23505.
func (a *PostgreSQLAdapter) IsUniqueConstraintViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation
}

// IsForeignKeyViolation checks for SQLSTATE 23503.
func (a *PostgreSQLAdapter) IsForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pgForeignKeyViolation
}

// IsConnectionError adds PostgreSQL connection-exception class 08 to the
// common checks.
func (a *PostgreSQLAdapter) IsConnectionError(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Class() == "08" {
		return true
	}
	return a.BaseSQLAdapter.IsConnectionError(err)
}
