package store

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ObjectType names a record type (Account, Contact, ...).
type ObjectType string

func (o ObjectType) String() string { return string(o) }

// Record is the contract every persisted record type satisfies.
// Records are plain structs embedding Base; the store owns ID and timestamps.
type Record interface {
	// Object returns the record's type. It must not dereference the receiver
	// so that it can be called on a typed nil.
	Object() ObjectType

	GetID() string
	SetID(id string)
	SetCreatedAt(t time.Time)
	SetUpdatedAt(t time.Time)

	// Values returns column values for writing, keyed by column name.
	Values() map[string]any

	// Pointers returns scan destinations keyed by column name.
	Pointers() map[string]any
}

// Base carries the identity and audit columns shared by all records.
type Base struct {
	ID        string    `json:"id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (b *Base) GetID() string            { return b.ID }
func (b *Base) SetID(id string)          { b.ID = id }
func (b *Base) SetCreatedAt(t time.Time) { b.CreatedAt = t }
func (b *Base) SetUpdatedAt(t time.Time) { b.UpdatedAt = t }

// IsNew reports whether the record has never been persisted.
func (b *Base) IsNew() bool { return b.ID == "" }

// BaseValues merges the base columns into values and returns it.
func (b *Base) BaseValues(values map[string]any) map[string]any {
	values[ColumnID] = b.ID
	values[ColumnCreatedAt] = b.CreatedAt
	values[ColumnUpdatedAt] = b.UpdatedAt
	return values
}

// BasePointers merges the base scan destinations into ptrs and returns it.
func (b *Base) BasePointers(ptrs map[string]any) map[string]any {
	ptrs[ColumnID] = &b.ID
	ptrs[ColumnCreatedAt] = &b.CreatedAt
	ptrs[ColumnUpdatedAt] = &b.UpdatedAt
	return ptrs
}

// Base column names.
const (
	ColumnID        = "id"
	ColumnCreatedAt = "created_at"
	ColumnUpdatedAt = "updated_at"
)

// NewID returns a new time-ordered record identifier.
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Kind is the storage type of a column.
type Kind int

const (
	KindString Kind = iota
	KindText
	KindInt
	KindDecimal
	KindDate
	KindTimestamp
)

// Column describes one stored field of a record type.
type Column struct {
	Name string
	Kind Kind
}

// Schema describes how a record type maps onto storage.
type Schema struct {
	Object  ObjectType
	Table   string
	Columns []Column // excluding the base columns
	Indexes [][]string
	New     func() Record
}

// AllColumns returns the base columns followed by the schema's own columns.
func (s *Schema) AllColumns() []Column {
	cols := make([]Column, 0, len(s.Columns)+3)
	cols = append(cols,
		Column{Name: ColumnID, Kind: KindString},
		Column{Name: ColumnCreatedAt, Kind: KindTimestamp},
		Column{Name: ColumnUpdatedAt, Kind: KindTimestamp},
	)
	return append(cols, s.Columns...)
}

// ColumnNames returns the names of AllColumns in order.
func (s *Schema) ColumnNames() []string {
	cols := s.AllColumns()
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return names
}

// HasColumn reports whether name is a column of this schema.
func (s *Schema) HasColumn(name string) bool {
	for _, c := range s.AllColumns() {
		if c.Name == name {
			return true
		}
	}
	return false
}

// Registry maps object types to their schemas.
type Registry struct {
	mu      sync.RWMutex
	schemas map[ObjectType]*Schema
}

// NewRegistry creates a registry holding the given schemas.
func NewRegistry(schemas ...*Schema) *Registry {
	r := &Registry{schemas: make(map[ObjectType]*Schema)}
	for _, s := range schemas {
		r.Register(s)
	}
	return r
}

// Register adds or replaces a schema.
func (r *Registry) Register(s *Schema) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.schemas[s.Object] = s
}

// Get returns the schema for an object type.
func (r *Registry) Get(object ObjectType) (*Schema, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.schemas[object]
	if !ok {
		return nil, fmt.Errorf("%w: unknown object type %q", ErrNotSupported, object)
	}
	return s, nil
}

// List returns all schemas ordered by object type.
func (r *Registry) List() []*Schema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Schema, 0, len(r.schemas))
	for _, s := range r.schemas {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Object < out[j].Object })
	return out
}
