package adapter

import (
	"context"
	"errors"

	store "github.com/synergyfw/crmstore"
)

// ErrKeyNotFound is returned by Get for a missing key.
var ErrKeyNotFound = errors.New("key not found")

// Adapter represents a key-value store adapter.
type Adapter interface {
	// Name returns the adapter's unique identifier.
	Name() string

	// Connect establishes a connection to the key-value store.
	Connect(ctx context.Context, config *store.Config) (Connection, error)

	// ConnectionString builds the connection string from config.
	ConnectionString(config *store.Config) string

	// Store capabilities
	SupportsTransactions() bool
	SupportsPatternMatching() bool

	// Error classification
	IsKeyNotFoundError(err error) bool
	IsConnectionError(err error) bool

	// Close releases any resources held by the adapter.
	Close() error
}

// Reader reads keys.
type Reader interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Exists(ctx context.Context, key string) (bool, error)

	// Keys returns the keys matching a glob-style pattern ("prefix*"), sorted.
	Keys(ctx context.Context, pattern string) ([]string, error)
}

// Writer writes keys.
type Writer interface {
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// ReadWriter reads and writes keys; both connections and transactions are
// ReadWriters.
type ReadWriter interface {
	Reader
	Writer
}

// Connection represents a connection to a key-value store.
type Connection interface {
	ReadWriter

	// Batch operations
	MGet(ctx context.Context, keys []string) (map[string][]byte, error)
	MSet(ctx context.Context, pairs map[string][]byte) error
	MDelete(ctx context.Context, keys []string) error

	// Begin starts a transaction. Transactions are serialized; Begin blocks
	// until the previous one finishes or ctx is done.
	Begin(ctx context.Context) (Transaction, error)

	// Health and stats
	Ping(ctx context.Context) error
	Stats() interface{}
	Close() error
}

// Transaction buffers writes until Commit. Reads inside the transaction see
// its own writes.
type Transaction interface {
	ReadWriter
	Commit(ctx context.Context) error
	Rollback() error
}

// Config is the shared store configuration. KV-specific settings go in the
// Options map.
type Config = store.Config
