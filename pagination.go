package store

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

// Cursor represents a pagination cursor that encodes position information.
// Records are paged in ID order; IDs are time ordered so this is also
// creation order.
type Cursor struct {
	LastID string `json:"id"` // Last item ID from previous page

	// Metadata
	PageSize  int32     `json:"page_size"`
	CreatedAt time.Time `json:"created_at"`
	Version   int       `json:"version"`
}

// CursorParams holds cursor-based pagination parameters.
type CursorParams struct {
	PageSize int32  // Number of items per page
	Cursor   string // Encoded cursor string (empty for first page)
}

// CursorResult holds the result of a cursor-based paginated query.
type CursorResult[T any] struct {
	Items      []T    // Items for current page
	NextCursor string // Encoded cursor for next page (empty if no more pages)
	HasMore    bool   // Whether there are more pages
	TotalCount int64  // Total count (if available, may be -1 for unknown)
}

// PaginationConfig holds cursor pagination configuration.
type PaginationConfig struct {
	DefaultPageSize int32
	MaxPageSize     int32
	MinPageSize     int32
	MaxCursorAge    time.Duration // How long cursors remain valid
}

// DefaultPaginationConfig returns sensible cursor pagination defaults.
func DefaultPaginationConfig() PaginationConfig {
	return PaginationConfig{
		DefaultPageSize: 20,
		MaxPageSize:     100,
		MinPageSize:     1,
		MaxCursorAge:    24 * time.Hour,
	}
}

// Paginator provides cursor-based pagination logic.
type Paginator struct {
	config PaginationConfig
}

// NewPaginator creates a new cursor paginator with default configuration.
func NewPaginator() *Paginator {
	return &Paginator{config: DefaultPaginationConfig()}
}

// NewPaginatorWithConfig creates a new cursor paginator with custom configuration.
func NewPaginatorWithConfig(config PaginationConfig) *Paginator {
	return &Paginator{config: config}
}

// ParseParams parses and validates cursor pagination parameters.
func (p *Paginator) ParseParams(pageSize int32, cursor string) CursorParams {
	if pageSize <= 0 {
		pageSize = p.config.DefaultPageSize
	}
	if pageSize > p.config.MaxPageSize {
		pageSize = p.config.MaxPageSize
	}
	if pageSize < p.config.MinPageSize {
		pageSize = p.config.MinPageSize
	}

	return CursorParams{
		PageSize: pageSize,
		Cursor:   cursor,
	}
}

// DecodeCursor decodes a cursor string into a Cursor struct.
func (p *Paginator) DecodeCursor(cursorStr string) (*Cursor, error) {
	if cursorStr == "" {
		return nil, nil
	}

	decoded, err := base64.URLEncoding.DecodeString(cursorStr)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor format: %w", err)
	}

	var cursor Cursor
	if err := json.Unmarshal(decoded, &cursor); err != nil {
		return nil, fmt.Errorf("invalid cursor content: %w", err)
	}

	if time.Since(cursor.CreatedAt) > p.config.MaxCursorAge {
		return nil, fmt.Errorf("cursor expired (age: %v, max: %v)",
			time.Since(cursor.CreatedAt), p.config.MaxCursorAge)
	}

	if cursor.Version != 1 {
		return nil, fmt.Errorf("unsupported cursor version: %d", cursor.Version)
	}

	return &cursor, nil
}

// EncodeCursor encodes a Cursor struct into a base64 string.
func (p *Paginator) EncodeCursor(cursor *Cursor) (string, error) {
	if cursor == nil {
		return "", nil
	}

	if cursor.CreatedAt.IsZero() {
		cursor.CreatedAt = time.Now()
	}
	if cursor.Version == 0 {
		cursor.Version = 1
	}

	data, err := json.Marshal(cursor)
	if err != nil {
		return "", fmt.Errorf("failed to marshal cursor: %w", err)
	}

	return base64.URLEncoding.EncodeToString(data), nil
}

// CreateCursor creates a new cursor positioned after the given ID.
func (p *Paginator) CreateCursor(id string, pageSize int32) *Cursor {
	return &Cursor{
		LastID:    id,
		PageSize:  pageSize,
		CreatedAt: time.Now(),
		Version:   1,
	}
}

// AfterID returns the ID a page should start after, or "" for the first page.
func (p *Paginator) AfterID(params CursorParams) (string, error) {
	cursor, err := p.DecodeCursor(params.Cursor)
	if err != nil {
		return "", err
	}
	if cursor == nil {
		return "", nil
	}
	return cursor.LastID, nil
}

// BuildCursorResult creates a cursor result from a page of records.
func BuildCursorResult[T Record](
	p *Paginator,
	items []T,
	pageSize int32,
	hasMore bool,
	totalCount int64,
) CursorResult[T] {
	result := CursorResult[T]{
		Items:      items,
		HasMore:    hasMore,
		TotalCount: totalCount,
	}

	if hasMore && len(items) > 0 {
		next := p.CreateCursor(items[len(items)-1].GetID(), pageSize)
		if encoded, err := p.EncodeCursor(next); err == nil {
			result.NextCursor = encoded
		}
	}

	return result
}

// ValidateCursor validates if a cursor string is valid.
func (p *Paginator) ValidateCursor(cursorStr string) error {
	_, err := p.DecodeCursor(cursorStr)
	return err
}

// Config returns the current pagination configuration.
func (p *Paginator) Config() PaginationConfig {
	return p.config
}
