package adapter

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	store "github.com/synergyfw/crmstore"
)

// BaseSQLAdapter provides common functionality for all SQL adapters.
type BaseSQLAdapter struct {
	db         *sql.DB
	driverName string
	name       AdapterName
}

// NewBaseSQLAdapter creates a new base SQL adapter.
func NewBaseSQLAdapter(driverName string, name AdapterName) *BaseSQLAdapter {
	return &BaseSQLAdapter{
		driverName: driverName,
		name:       name,
	}
}

// Name returns the adapter name.
func (a *BaseSQLAdapter) Name() AdapterName {
	return a.name
}

// Connect opens the database, configures the pool and verifies the connection.
func (a *BaseSQLAdapter) Connect(ctx context.Context, config *store.Config, connectionString string) (*sql.DB, error) {
	db, err := sql.Open(a.driverName, connectionString)
	if err != nil {
		return nil, store.WrapConnectionError(err, "connect", a.driverName, config.Host)
	}

	a.configureConnectionPool(db, config)

	pingCtx := ctx
	if config.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, config.ConnectTimeout)
		defer cancel()
	}
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, store.WrapConnectionError(err, "ping", a.driverName, config.Host)
	}

	a.db = db
	return db, nil
}

func (a *BaseSQLAdapter) configureConnectionPool(db *sql.DB, config *store.Config) {
	if config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		db.SetMaxIdleConns(config.MaxIdleConns)
	}
	if config.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(config.ConnMaxLifetime)
	}
	if config.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(config.ConnMaxIdleTime)
	}
}

// Close closes the database connection.
func (a *BaseSQLAdapter) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

// DB returns the underlying database connection.
func (a *BaseSQLAdapter) DB() *sql.DB {
	return a.db
}

func (a *BaseSQLAdapter) SupportsTransactions() bool {
	return true
}

func (a *BaseSQLAdapter) MigrationTableName() string {
	return "schema_migrations"
}

// MigrationTableSQL returns the default migration table DDL.
func (a *BaseSQLAdapter) MigrationTableSQL() string {
	return `CREATE TABLE IF NOT EXISTS schema_migrations (
		version VARCHAR(255) PRIMARY KEY,
		applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`
}

// DefaultTxOptions returns default transaction options.
func (a *BaseSQLAdapter) DefaultTxOptions() *sql.TxOptions {
	return &sql.TxOptions{
		Isolation: sql.LevelReadCommitted,
		ReadOnly:  false,
	}
}

// IsConnectionError matches connection failures common to all drivers.
func (a *BaseSQLAdapter) IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, sql.ErrConnDone) {
		return true
	}
	return containsAny(err.Error(),
		"connection refused",
		"connection reset",
		"connection closed",
		"network is unreachable",
		"driver: bad connection",
	)
}

// IsTimeoutError matches deadline and cancellation failures.
func (a *BaseSQLAdapter) IsTimeoutError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	return containsAny(err.Error(), "timeout")
}

func containsAny(s string, patterns ...string) bool {
	s = strings.ToLower(s)
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

// buildCreateTable renders CREATE TABLE and index statements for a schema.
// With inlineIndexes the indexes are declared inside CREATE TABLE, for
// databases lacking CREATE INDEX IF NOT EXISTS.
func buildCreateTable(schema *store.Schema, columnType func(store.Kind) string, suffix string, inlineIndexes bool) []string {
	cols := schema.AllColumns()
	defs := make([]string, 0, len(cols)+len(schema.Indexes)+1)
	for _, c := range cols {
		def := fmt.Sprintf("%s %s NOT NULL", c.Name, columnType(c.Kind))
		if c.Name == store.ColumnID {
			def = fmt.Sprintf("%s VARCHAR(36) PRIMARY KEY", c.Name)
		}
		defs = append(defs, def)
	}

	var stmts []string
	for _, idx := range schema.Indexes {
		name := indexName(schema.Table, idx)
		if inlineIndexes {
			defs = append(defs, fmt.Sprintf("INDEX %s (%s)", name, strings.Join(idx, ", ")))
			continue
		}
		stmts = append(stmts, fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)",
			name, schema.Table, strings.Join(idx, ", ")))
	}

	create := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)%s",
		schema.Table, strings.Join(defs, ",\n\t"), suffix)
	return append([]string{create}, stmts...)
}

func indexName(table string, cols []string) string {
	return fmt.Sprintf("idx_%s_%s", table, strings.Join(cols, "_"))
}
