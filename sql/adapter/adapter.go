package adapter

import (
	"context"
	"database/sql"
	"fmt"

	store "github.com/synergyfw/crmstore"
)

// AdapterName identifies a registered adapter.
type AdapterName = string

// Adapter represents a SQL database adapter (PostgreSQL, MySQL, SQLite).
type Adapter interface {
	// Name returns the adapter's unique identifier.
	Name() AdapterName

	// Connect establishes a connection to the database.
	Connect(ctx context.Context, config *store.Config) (*sql.DB, error)

	// ConnectionString builds the connection string from config.
	ConnectionString(config *store.Config) string

	// Dialect describes the SQL flavour spoken by the database.
	Dialect() Dialect

	// Schema support
	MigrationTableName() string
	MigrationTableSQL() string
	CreateTableSQL(schema *store.Schema) []string

	// Transactions
	SupportsTransactions() bool
	DefaultTxOptions() *sql.TxOptions

	// Error classification
	IsUniqueConstraintViolation(err error) bool
	IsForeignKeyViolation(err error) bool
	IsConnectionError(err error) bool

	// Close releases any resources held by the adapter.
	Close() error
}

// Dialect captures the syntax differences the compilers care about.
type Dialect struct {
	Name          string
	Placeholder   func(n int) string
	SupportsILike bool
	Quote         func(identifier string) string
}

// DollarPlaceholder renders PostgreSQL-style positional placeholders.
func DollarPlaceholder(n int) string { return fmt.Sprintf("$%d", n) }

// QuestionPlaceholder renders MySQL/SQLite-style placeholders.
func QuestionPlaceholder(int) string { return "?" }

// ClassifyError maps a driver error onto the store sentinel errors so callers
// can use errors.Is without knowing the driver.
func ClassifyError(a Adapter, err error) error {
	switch {
	case err == nil:
		return nil
	case a.IsUniqueConstraintViolation(err):
		return fmt.Errorf("%w: %v", store.ErrUniqueConstraint, err)
	case a.IsForeignKeyViolation(err):
		return fmt.Errorf("%w: %v", store.ErrForeignKeyConstraint, err)
	case a.IsConnectionError(err):
		return store.WrapConnectionError(fmt.Errorf("%w: %v", store.ErrConnectionFailed, err), "query", a.Name(), "")
	default:
		return err
	}
}
