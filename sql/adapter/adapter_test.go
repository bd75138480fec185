package adapter

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	store "github.com/synergyfw/crmstore"
	"github.com/synergyfw/crmstore/records"
)

func TestPostgreSQLConnectionString(t *testing.T) {
	cfg := store.PostgreSQLConfig("crm", "svc", "p@ss word",
		store.WithHost("db.internal"),
		store.WithConnectTimeout(10*time.Second),
		store.WithOption("application_name", "crmctl"),
	)

	dsn := NewPostgreSQLAdapter().ConnectionString(&cfg)
	assert.Equal(t,
		"host=db.internal port=5432 dbname=crm user=svc password='p@ss word' sslmode=disable connect_timeout=10 application_name=crmctl",
		dsn)
}

func TestMySQLConnectionString(t *testing.T) {
	cfg := store.MySQLConfig("crm", "svc", "secret", store.WithHost("db.internal"))

	dsn := NewMySQLAdapter().ConnectionString(&cfg)
	parsed, err := mysql.ParseDSN(dsn)
	require.NoError(t, err)
	assert.Equal(t, "svc", parsed.User)
	assert.Equal(t, "secret", parsed.Passwd)
	assert.Equal(t, "crm", parsed.DBName)
	assert.Equal(t, "tcp", parsed.Net)
	assert.Equal(t, "db.internal:3306", parsed.Addr)
	assert.True(t, parsed.ParseTime)
	assert.True(t, parsed.ClientFoundRows)
	assert.Equal(t, time.UTC, parsed.Loc)
	assert.Equal(t, 30*time.Second, parsed.Timeout)
	assert.Contains(t, dsn, "charset=utf8mb4")
}

func TestSQLiteConnectionString(t *testing.T) {
	a := NewSQLiteAdapter()

	mem := store.SQLiteConfig("")
	assert.Equal(t, ":memory:?_busy_timeout=5000&_foreign_keys=1", a.ConnectionString(&mem))

	file := store.SQLiteConfig("data/../crm.db", store.WithOption("_journal_mode", "WAL"))
	assert.Equal(t, "crm.db?_busy_timeout=5000&_foreign_keys=1&_journal_mode=WAL", a.ConnectionString(&file))
}

func TestDialects(t *testing.T) {
	pg := NewPostgreSQLAdapter().Dialect()
	assert.Equal(t, "$3", pg.Placeholder(3))
	assert.True(t, pg.SupportsILike)
	assert.Equal(t, `"accounts"`, pg.Quote("accounts"))

	my := NewMySQLAdapter().Dialect()
	assert.Equal(t, "?", my.Placeholder(3))
	assert.Equal(t, "`odd``name`", my.Quote("odd`name"))

	lite := NewSQLiteAdapter().Dialect()
	assert.Equal(t, "?", lite.Placeholder(1))
	assert.False(t, lite.SupportsILike)
}

func TestCreateTableSQL(t *testing.T) {
	pg := NewPostgreSQLAdapter().CreateTableSQL(records.OpportunitySchema)
	require.Len(t, pg, 2)
	assert.Contains(t, pg[0], "CREATE TABLE IF NOT EXISTS opportunities")
	assert.Contains(t, pg[0], "id VARCHAR(36) PRIMARY KEY")
	assert.Contains(t, pg[0], "amount NUMERIC(18,2) NOT NULL")
	assert.Contains(t, pg[0], "close_date DATE NOT NULL")
	assert.Contains(t, pg[0], "created_at TIMESTAMPTZ NOT NULL")
	assert.Equal(t, "CREATE INDEX IF NOT EXISTS idx_opportunities_account_id_name ON opportunities (account_id, name)", pg[1])

	my := NewMySQLAdapter().CreateTableSQL(records.OpportunitySchema)
	require.Len(t, my, 1)
	assert.Contains(t, my[0], "INDEX idx_opportunities_account_id_name (account_id, name)")
	assert.True(t, strings.HasSuffix(my[0], "ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_bin"))

	lite := NewSQLiteAdapter().CreateTableSQL(records.LeadSchema)
	require.Len(t, lite, 1)
	assert.Contains(t, lite[0], "company TEXT NOT NULL")
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name    string
		adapter Adapter
		err     error
		want    error
	}{
		{"pq unique", NewPostgreSQLAdapter(), &pq.Error{Code: "23505"}, store.ErrUniqueConstraint},
		{"pq foreign key", NewPostgreSQLAdapter(), &pq.Error{Code: "23503"}, store.ErrForeignKeyConstraint},
		{"pq connection class", NewPostgreSQLAdapter(), &pq.Error{Code: "08006"}, store.ErrConnectionFailed},
		{"mysql duplicate", NewMySQLAdapter(), &mysql.MySQLError{Number: 1062}, store.ErrUniqueConstraint},
		{"mysql foreign key", NewMySQLAdapter(), &mysql.MySQLError{Number: 1452}, store.ErrForeignKeyConstraint},
		{"mysql bad conn", NewMySQLAdapter(), mysql.ErrInvalidConn, store.ErrConnectionFailed},
		{"sqlite unique", NewSQLiteAdapter(), sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintUnique}, store.ErrUniqueConstraint},
		{"sqlite primary key", NewSQLiteAdapter(), sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintPrimaryKey}, store.ErrUniqueConstraint},
		{"sqlite busy", NewSQLiteAdapter(), sqlite3.Error{Code: sqlite3.ErrBusy}, store.ErrConnectionFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ClassifyError(tt.adapter, fmt.Errorf("exec: %w", tt.err))
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, tt.want == store.ErrConnectionFailed, store.IsConnectionError(err))
		})
	}

	plain := errors.New("syntax error")
	assert.Same(t, plain, ClassifyError(NewSQLiteAdapter(), plain))
	assert.NoError(t, ClassifyError(NewSQLiteAdapter(), nil))
}

func TestRegistry(t *testing.T) {
	for _, name := range []string{"postgres", "postgresql", "mysql", "sqlite", "sqlite3"} {
		a, err := Get(name)
		require.NoError(t, err, name)
		assert.NotNil(t, a)
	}

	_, err := Get("oracle")
	assert.ErrorIs(t, err, store.ErrDriverNotFound)

	assert.Equal(t, []string{"mysql", "postgres", "postgresql", "sqlite", "sqlite3"}, List())
	assert.True(t, Exists("sqlite"))
}
