package kvstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	store "github.com/synergyfw/crmstore"
	"github.com/synergyfw/crmstore/kv/adapter"
	"github.com/synergyfw/crmstore/records"
)

// Service wraps a KV adapter and provides the key-value service interface.
type Service struct {
	adapter    adapter.Adapter
	connection adapter.Connection
	config     *store.Config
	registry   *store.Registry
	logger     *zap.Logger
	metrics    *store.Metrics
	repo       *Repository
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

// NewService creates a new KV service with the given adapter.
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

// Connect establishes the key-value store connection.
func (s *Service) Connect(ctx context.Context) error {
	if s.metrics == nil {
		m, err := store.NewMetricsFromConfig(s.config)
		if err != nil {
			return store.WrapDriverError(err, s.adapter.Name(), "metrics")
		}
		s.metrics = m
	}

	connection, err := s.adapter.Connect(ctx, s.config)
	if err != nil {
		return store.WrapConnectionError(err, "connect", s.adapter.Name(), s.config.Host)
	}

	// Test connection
	pingCtx := ctx
	var cancel context.CancelFunc
	if s.config.ConnectTimeout > 0 {
		pingCtx, cancel = context.WithTimeout(ctx, s.config.ConnectTimeout)
		defer cancel()
	}

	if err := connection.Ping(pingCtx); err != nil {
		_ = connection.Close()
		return store.WrapConnectionError(err, "ping", s.adapter.Name(), s.config.Host)
	}

	s.connection = connection
	s.repo = NewRepository(s,
		store.WithLogger(s.logger),
		store.WithRepositoryMetrics(s.metrics),
	)
	s.logger.Info("connected", zap.String("adapter", s.adapter.Name()))
	return nil
}

// Connection returns the underlying connection.
func (s *Service) Connection() adapter.Connection {
	return s.connection
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

// Repository returns the concrete KV repository.
func (s *Service) Repository() *Repository {
	return s.repo
}

// Close closes the connection.
func (s *Service) Close() error {
	if s.connection != nil {
		return s.connection.Close()
	}
	return nil
}

// Stats returns connection statistics.
func (s *Service) Stats() interface{} {
	if s.connection != nil {
		return s.connection.Stats()
	}
	return nil
}

// WithTimeout creates a context with timeout for operations.
func (s *Service) WithTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = s.config.QueryTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

// rw returns the transaction carried by ctx, or the connection.
func (s *Service) rw(ctx context.Context) adapter.ReadWriter {
	if tx, ok := TransactionFromContext(ctx); ok {
		return tx
	}
	return s.connection
}

// Basic KV operations. All of them take part in the transaction carried
// by ctx.

// Get retrieves a value by key.
func (s *Service) Get(ctx context.Context, key string) ([]byte, error) {
	return s.rw(ctx).Get(ctx, key)
}

// Set stores a value.
func (s *Service) Set(ctx context.Context, key string, value []byte) error {
	return s.rw(ctx).Set(ctx, key, value)
}

// Delete removes a key.
func (s *Service) Delete(ctx context.Context, key string) error {
	return s.rw(ctx).Delete(ctx, key)
}

// Exists checks if a key exists.
func (s *Service) Exists(ctx context.Context, key string) (bool, error) {
	return s.rw(ctx).Exists(ctx, key)
}

// Keys returns all keys matching a pattern, sorted.
func (s *Service) Keys(ctx context.Context, pattern string) ([]string, error) {
	return s.rw(ctx).Keys(ctx, pattern)
}

// JSON operations for records

// GetJSON retrieves and unmarshals a JSON value.
func (s *Service) GetJSON(ctx context.Context, key string, target interface{}) error {
	data, err := s.Get(ctx, key)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("%w: %s: %v", store.ErrInvalidRecord, key, err)
	}
	return nil
}

// SetJSON marshals and stores a JSON value.
func (s *Service) SetJSON(ctx context.Context, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	return s.Set(ctx, key, data)
}

// Open creates and connects a new KV service using the specified adapter.
func Open(ctx context.Context, adpt adapter.Adapter, config *store.Config, opts ...ServiceOption) (*Service, error) {
	service := NewService(adpt, config, opts...)
	if err := service.Connect(ctx); err != nil {
		return nil, err
	}
	return service, nil
}

// OpenWithName creates and connects a new KV service using the specified adapter name.
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
