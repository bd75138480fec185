package adapter

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	store "github.com/synergyfw/crmstore"
)

// MySQL server error numbers.
const (
	mysqlTooManyConnections = 1040
	mysqlDuplicateEntry     = 1062
	mysqlRowIsReferenced    = 1451
	mysqlNoReferencedRow    = 1452
	mysqlServerGone         = 2006
	mysqlServerLostInQuery  = 2013
)

// MySQLAdapter implements the Adapter interface for MySQL.
type MySQLAdapter struct {
	*BaseSQLAdapter
}

// NewMySQLAdapter creates a new MySQL adapter.
func NewMySQLAdapter() *MySQLAdapter {
	return &MySQLAdapter{
		BaseSQLAdapter: NewBaseSQLAdapter("mysql", "mysql"),
	}
}

// Connect establishes a connection to MySQL.
func (a *MySQLAdapter) Connect(ctx context.Context, config *store.Config) (*sql.DB, error) {
	connStr := a.ConnectionString(config)
	return a.BaseSQLAdapter.Connect(ctx, config, connStr)
}

// ConnectionString constructs a MySQL DSN.
func (a *MySQLAdapter) ConnectionString(config *store.Config) string {
	cfg := mysql.NewConfig()
	cfg.User = config.Username
	cfg.Passwd = config.Password
	cfg.DBName = config.Database
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	// Report matched rather than changed rows so an update that rewrites
	// identical values is not mistaken for a missing record.
	cfg.ClientFoundRows = true

	if config.Host != "" || config.Port > 0 {
		host := config.Host
		if host == "" {
			host = "localhost"
		}
		port := config.Port
		if port == 0 {
			port = 3306
		}
		cfg.Net = "tcp"
		cfg.Addr = fmt.Sprintf("%s:%d", host, port)
	}
	if config.ConnectTimeout > 0 {
		cfg.Timeout = config.ConnectTimeout
	}

	cfg.Params = map[string]string{"charset": "utf8mb4"}
	for key, value := range config.Options {
		if strings.EqualFold(key, "charset") {
			key = "charset"
		}
		cfg.Params[key] = value
	}

	return cfg.FormatDSN()
}

// Dialect returns the MySQL dialect.
func (a *MySQLAdapter) Dialect() Dialect {
	return Dialect{
		Name:        "mysql",
		Placeholder: QuestionPlaceholder,
		Quote: func(identifier string) string {
			return "`" + strings.ReplaceAll(identifier, "`", "``") + "`"
		},
	}
}

// MigrationTableSQL returns MySQL-specific migration table SQL.
func (a *MySQLAdapter) MigrationTableSQL() string {
	return `CREATE TABLE IF NOT EXISTS schema_migrations (
		version VARCHAR(255) PRIMARY KEY,
		applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_bin`
}

// CreateTableSQL returns the DDL for a record schema. MySQL has no
// CREATE INDEX IF NOT EXISTS, so indexes are declared inline.
func (a *MySQLAdapter) CreateTableSQL(schema *store.Schema) []string {
	return buildCreateTable(schema, mysqlColumnType,
		" ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_bin", true)
}

func mysqlColumnType(k store.Kind) string {
	switch k {
	case store.KindText:
		return "TEXT"
	case store.KindInt:
		return "INT"
	case store.KindDecimal:
		return "DECIMAL(18,2)"
	case store.KindDate:
		return "DATE"
	case store.KindTimestamp:
		return "DATETIME(6)"
	default:
		return "VARCHAR(255)"
	}
}

// DefaultTxOptions returns MySQL-specific transaction options.
func (a *MySQLAdapter) DefaultTxOptions() *sql.TxOptions {
	return &sql.TxOptions{
		Isolation: sql.LevelRepeatableRead, // MySQL default
		ReadOnly:  false,
	}
}

func (a *MySQLAdapter) IsUniqueConstraintViolation(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry
}

func (a *MySQLAdapter) IsForeignKeyViolation(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) &&
		(myErr.Number == mysqlNoReferencedRow || myErr.Number == mysqlRowIsReferenced)
}

func (a *MySQLAdapter) IsConnectionError(err error) bool {
	if errors.Is(err, mysql.ErrInvalidConn) {
		return true
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case mysqlServerGone, mysqlServerLostInQuery, mysqlTooManyConnections:
			return true
		}
	}
	return a.BaseSQLAdapter.IsConnectionError(err)
}
