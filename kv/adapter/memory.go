package adapter

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	store "github.com/synergyfw/crmstore"
)

// MemoryAdapter implements the Adapter interface using in-memory storage.
// All connections of one adapter share its data.
type MemoryAdapter struct {
	store *MemoryStore
}

// MemoryStore represents an in-memory key-value store.
type MemoryStore struct {
	mu    sync.RWMutex
	data  map[string][]byte
	stats MemoryStats

	// txSem admits one transaction at a time.
	txSem chan struct{}
}

// MemoryStats tracks memory store statistics.
type MemoryStats struct {
	Keys         int64
	Gets         int64
	Sets         int64
	Deletes      int64
	Hits         int64
	Misses       int64
	Commits      int64
	Rollbacks    int64
	LastAccessed time.Time
}

// MemoryConnection implements the Connection interface for memory storage.
type MemoryConnection struct {
	store *MemoryStore
}

// NewMemoryAdapter creates a new memory adapter.
func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{
		store: &MemoryStore{
			data:  make(map[string][]byte),
			txSem: make(chan struct{}, 1),
		},
	}
}

// Name returns the adapter name.
func (a *MemoryAdapter) Name() string {
	return "memory"
}

// Connect establishes a connection to memory storage.
func (a *MemoryAdapter) Connect(ctx context.Context, config *Config) (Connection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &MemoryConnection{store: a.store}, nil
}

// ConnectionString returns a memory connection string.
func (a *MemoryAdapter) ConnectionString(config *Config) string {
	return "memory://localhost"
}

// Store capabilities
func (a *MemoryAdapter) SupportsTransactions() bool    { return true }
func (a *MemoryAdapter) SupportsPatternMatching() bool { return true }

// Error classification
func (a *MemoryAdapter) IsKeyNotFoundError(err error) bool {
	return errors.Is(err, ErrKeyNotFound)
}

func (a *MemoryAdapter) IsConnectionError(err error) bool {
	return false // Memory adapter doesn't have connection errors
}

// Close releases resources.
func (a *MemoryAdapter) Close() error {
	a.store.mu.Lock()
	defer a.store.mu.Unlock()

	// Clear all data
	a.store.data = make(map[string][]byte)
	a.store.stats = MemoryStats{}

	return nil
}

// MemoryStore primitives; callers hold mu.

func (s *MemoryStore) get(key string) ([]byte, bool) {
	s.stats.Gets++
	s.stats.LastAccessed = time.Now()
	v, ok := s.data[key]
	if ok {
		s.stats.Hits++
	} else {
		s.stats.Misses++
	}
	return v, ok
}

func (s *MemoryStore) set(key string, value []byte) {
	s.stats.Sets++
	s.stats.LastAccessed = time.Now()
	if _, exists := s.data[key]; !exists {
		s.stats.Keys++
	}
	s.data[key] = append([]byte(nil), value...)
}

func (s *MemoryStore) del(key string) {
	s.stats.Deletes++
	s.stats.LastAccessed = time.Now()
	if _, exists := s.data[key]; exists {
		delete(s.data, key)
		s.stats.Keys--
	}
}

func (s *MemoryStore) keys(pattern string) []string {
	var keys []string
	for key := range s.data {
		if matchPattern(key, pattern) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

// MemoryConnection implementations

// Get retrieves a value by key.
func (c *MemoryConnection) Get(ctx context.Context, key string) ([]byte, error) {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()

	value, ok := c.store.get(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	}
	return append([]byte(nil), value...), nil
}

// Set stores a value.
func (c *MemoryConnection) Set(ctx context.Context, key string, value []byte) error {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()

	c.store.set(key, value)
	return nil
}

// Delete removes a key.
func (c *MemoryConnection) Delete(ctx context.Context, key string) error {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()

	c.store.del(key)
	return nil
}

// Exists checks if a key exists.
func (c *MemoryConnection) Exists(ctx context.Context, key string) (bool, error) {
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()

	_, exists := c.store.data[key]
	return exists, nil
}

// Batch operations
func (c *MemoryConnection) MGet(ctx context.Context, keys []string) (map[string][]byte, error) {
	result := make(map[string][]byte)
	for _, key := range keys {
		if value, err := c.Get(ctx, key); err == nil {
			result[key] = value
		}
	}
	return result, nil
}

func (c *MemoryConnection) MSet(ctx context.Context, pairs map[string][]byte) error {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()

	for key, value := range pairs {
		c.store.set(key, value)
	}
	return nil
}

func (c *MemoryConnection) MDelete(ctx context.Context, keys []string) error {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()

	for _, key := range keys {
		c.store.del(key)
	}
	return nil
}

// Keys returns the sorted keys matching pattern.
func (c *MemoryConnection) Keys(ctx context.Context, pattern string) ([]string, error) {
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()

	return c.store.keys(pattern), nil
}

// Begin starts a write-buffering transaction.
func (c *MemoryConnection) Begin(ctx context.Context) (Transaction, error) {
	select {
	case c.store.txSem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &memoryTx{store: c.store, writes: make(map[string][]byte)}, nil
}

// Health and stats
func (c *MemoryConnection) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (c *MemoryConnection) Stats() interface{} {
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()

	return c.store.stats
}

func (c *MemoryConnection) Close() error {
	return nil // Nothing to close for memory
}

// memoryTx overlays buffered writes on the store. A nil value in writes
// marks a deleted key.
type memoryTx struct {
	store  *MemoryStore
	writes map[string][]byte
	done   bool
}

var errTxDone = errors.New("transaction already finished")

func (t *memoryTx) Get(ctx context.Context, key string) ([]byte, error) {
	if t.done {
		return nil, errTxDone
	}
	if v, ok := t.writes[key]; ok {
		if v == nil {
			return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, key)
		}
		return append([]byte(nil), v...), nil
	}
	return (&MemoryConnection{store: t.store}).Get(ctx, key)
}

func (t *memoryTx) Exists(ctx context.Context, key string) (bool, error) {
	if t.done {
		return false, errTxDone
	}
	if v, ok := t.writes[key]; ok {
		return v != nil, nil
	}
	return (&MemoryConnection{store: t.store}).Exists(ctx, key)
}

func (t *memoryTx) Keys(ctx context.Context, pattern string) ([]string, error) {
	if t.done {
		return nil, errTxDone
	}
	t.store.mu.RLock()
	base := t.store.keys(pattern)
	t.store.mu.RUnlock()

	seen := make(map[string]bool, len(base))
	var keys []string
	for _, k := range base {
		seen[k] = true
		if v, ok := t.writes[k]; ok && v == nil {
			continue
		}
		keys = append(keys, k)
	}
	for k, v := range t.writes {
		if v != nil && !seen[k] && matchPattern(k, pattern) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (t *memoryTx) Set(ctx context.Context, key string, value []byte) error {
	if t.done {
		return errTxDone
	}
	if value == nil {
		value = []byte{}
	}
	t.writes[key] = append([]byte(nil), value...)
	return nil
}

func (t *memoryTx) Delete(ctx context.Context, key string) error {
	if t.done {
		return errTxDone
	}
	t.writes[key] = nil
	return nil
}

// Commit applies every buffered write atomically.
func (t *memoryTx) Commit(ctx context.Context) error {
	if t.done {
		return errTxDone
	}
	if err := ctx.Err(); err != nil {
		t.finish(false)
		return fmt.Errorf("%w: %w", store.ErrTransactionAborted, err)
	}

	t.store.mu.Lock()
	for k, v := range t.writes {
		if v == nil {
			t.store.del(k)
		} else {
			t.store.set(k, v)
		}
	}
	t.store.mu.Unlock()

	t.finish(true)
	return nil
}

// Rollback discards buffered writes. It is a no-op after Commit.
func (t *memoryTx) Rollback() error {
	if t.done {
		return nil
	}
	t.finish(false)
	return nil
}

func (t *memoryTx) finish(committed bool) {
	t.done = true
	t.writes = nil
	t.store.mu.Lock()
	if committed {
		t.store.stats.Commits++
	} else {
		t.store.stats.Rollbacks++
	}
	t.store.mu.Unlock()
	<-t.store.txSem
}

// Helper function for pattern matching (simplified glob-style)
func matchPattern(key, pattern string) bool {
	if pattern == "*" {
		return true
	}

	// Simple prefix matching for now
	if strings.HasSuffix(pattern, "*") {
		prefix := strings.TrimSuffix(pattern, "*")
		return strings.HasPrefix(key, prefix)
	}

	return key == pattern
}
