package sqlstore

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	store "github.com/synergyfw/crmstore"
	"github.com/synergyfw/crmstore/records"
	"github.com/synergyfw/crmstore/sql/adapter"
)

// SchemaVersion is the migration version that creates the record tables.
const SchemaVersion = "0001_crm_records"

// Service wraps a SQL adapter and provides the database service interface.
type Service struct {
	adapter  adapter.Adapter
	db       *sql.DB
	config   *store.Config
	registry *store.Registry
	logger   *zap.Logger
	metrics  *store.Metrics
	repo     *Repository
}

// Ensure Service implements the service interface.
var _ store.Service = (*Service)(nil)

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the logger used by the service and its repository.
func WithLogger(l *zap.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics overrides the metrics built from the config.
func WithMetrics(m *store.Metrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

// WithRegistry replaces the default CRM record registry.
func WithRegistry(r *store.Registry) ServiceOption {
	return func(s *Service) { s.registry = r }
}

// NewService creates a new SQL service with the given adapter.
func NewService(adpt adapter.Adapter, config *store.Config, opts ...ServiceOption) *Service {
	s := &Service{
		adapter:  adpt,
		config:   config,
		registry: records.Registry(),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Connect establishes the database connection and builds the repository.
func (s *Service) Connect(ctx context.Context) error {
	if err := s.config.Validate(); err != nil {
		return err
	}

	if s.metrics == nil {
		m, err := store.NewMetricsFromConfig(s.config)
		if err != nil {
			return store.WrapDriverError(err, s.adapter.Name(), "metrics")
		}
		s.metrics = m
	}

	db, err := s.adapter.Connect(ctx, s.config)
	if err != nil {
		return err
	}

	s.db = db
	s.repo = NewRepository(db, s.adapter, s.registry,
		store.WithLogger(s.logger),
		store.WithRepositoryMetrics(s.metrics),
	)
	s.logger.Info("connected",
		zap.String("adapter", s.adapter.Name()),
		zap.String("host", s.config.Host),
		zap.String("database", s.config.Database),
	)
	return nil
}

// DB returns the underlying database connection.
func (s *Service) DB() *sql.DB {
	return s.db
}

// Adapter returns the underlying adapter.
func (s *Service) Adapter() adapter.Adapter {
	return s.adapter
}

// Backend returns the record backend. It is nil until Connect succeeds.
func (s *Service) Backend() store.Backend {
	if s.repo == nil {
		return nil
	}
	return s.repo
}

// Repository returns the concrete SQL repository.
func (s *Service) Repository() *Repository {
	return s.repo
}

// Close closes the database connection.
func (s *Service) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Stats returns database connection statistics.
func (s *Service) Stats() interface{} {
	if s.db != nil {
		return s.db.Stats()
	}
	return sql.DBStats{}
}

// WithTimeout creates a context with timeout for operations.
func (s *Service) WithTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = s.config.QueryTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

// ExecuteSQL executes raw SQL (for migrations, table creation, etc.).
func (s *Service) ExecuteSQL(ctx context.Context, query string, args ...interface{}) error {
	_, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return store.WrapQueryError(adapter.ClassifyError(s.adapter, err), "execute_sql", "", query, args)
	}
	return nil
}

// Migrate creates the record tables once and records the schema version.
// DDL runs outside a transaction since MySQL commits implicitly on it; every
// statement is idempotent.
func (s *Service) Migrate(ctx context.Context) error {
	if s.db == nil {
		return store.ErrConnectionClosed
	}
	if err := s.ExecuteSQL(ctx, s.adapter.MigrationTableSQL()); err != nil {
		return err
	}

	dialect := s.adapter.Dialect()
	table := s.adapter.MigrationTableName()
	applied, err := NewQueryExecutor(s.db).Count(ctx,
		NewQueryBuilder(dialect, table).Select("COUNT(*)").WhereEq("version", SchemaVersion).Build())
	if err != nil {
		return store.WrapQueryError(err, "migrate", table, "", nil)
	}
	if applied > 0 {
		s.logger.Debug("schema up to date", zap.String("version", SchemaVersion))
		return nil
	}

	for _, schema := range s.registry.List() {
		for _, stmt := range s.adapter.CreateTableSQL(schema) {
			if err := s.ExecuteSQL(ctx, stmt); err != nil {
				return err
			}
		}
	}

	insert, err := CompileMutation(dialect, table, store.NewInsert(map[string]any{"version": SchemaVersion}))
	if err != nil {
		return err
	}
	if err := s.ExecuteSQL(ctx, insert.SQL, insert.Args...); err != nil {
		return err
	}
	s.logger.Info("schema migrated", zap.String("version", SchemaVersion))
	return nil
}

// Open creates and connects a new SQL service using the specified adapter.
func Open(ctx context.Context, adpt adapter.Adapter, config *store.Config, opts ...ServiceOption) (*Service, error) {
	service := NewService(adpt, config, opts...)
	if err := service.Connect(ctx); err != nil {
		return nil, err
	}
	return service, nil
}

// OpenWithName creates and connects a new SQL service using the adapter
// registered under adapterName.
func OpenWithName(ctx context.Context, adapterName string, config *store.Config, opts ...ServiceOption) (*Service, error) {
	adpt, err := adapter.Get(adapterName)
	if err != nil {
		return nil, store.WrapDriverError(err, adapterName, "get adapter")
	}
	return Open(ctx, adpt, config, opts...)
}

// OpenConfig opens the service for config.Type.
func OpenConfig(ctx context.Context, config *store.Config, opts ...ServiceOption) (*Service, error) {
	return OpenWithName(ctx, config.Type, config, opts...)
}
