package store

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Sentinel errors for common storage operations.
var (
	// Connection errors
	ErrConnectionFailed = errors.New("connection failed")
	ErrConnectionClosed = errors.New("connection closed")

	// Driver errors
	ErrDriverNotFound = errors.New("driver not found")

	// Transaction errors
	ErrTransactionAborted = errors.New("transaction aborted")

	// Query errors
	ErrQueryFailed  = errors.New("query failed")
	ErrInvalidQuery = errors.New("invalid query")
	ErrQuerySyntax  = errors.New("query syntax error")

	// Record errors
	ErrRecordNotFound = errors.New("record not found")
	ErrRecordExists   = errors.New("record already exists")
	ErrInvalidRecord  = errors.New("invalid record")
	ErrDuplicateMatch = errors.New("more than one record matches the upsert key")

	// Constraint errors
	ErrUniqueConstraint     = errors.New("unique constraint violation")
	ErrForeignKeyConstraint = errors.New("foreign key constraint violation")

	// Validation errors
	ErrValidationFailed = errors.New("validation failed")

	// Generic errors
	ErrNotSupported = errors.New("operation not supported")
	ErrInternal     = errors.New("internal error")
)

// ConnectionError represents connection-related errors.
type ConnectionError struct {
	Operation string
	Driver    string
	Host      string
	Err       error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection error during %s with %s driver at %s: %v",
		e.Operation, e.Driver, e.Host, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// DriverError represents driver-related errors.
type DriverError struct {
	Driver    string
	Operation string
	Err       error
}

func (e *DriverError) Error() string {
	return fmt.Sprintf("driver error with %s during %s: %v",
		e.Driver, e.Operation, e.Err)
}

func (e *DriverError) Unwrap() error {
	return e.Err
}

// TransactionError represents transaction-related errors.
type TransactionError struct {
	Operation string
	Err       error
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("transaction error during %s: %v", e.Operation, e.Err)
}

func (e *TransactionError) Unwrap() error {
	return e.Err
}

// QueryError represents query execution errors.
type QueryError struct {
	Operation string
	Table     string
	Query     string
	Args      []any
	Err       error
}

func (e *QueryError) Error() string {
	if e.Table != "" {
		return fmt.Sprintf("query error during %s on table %s: %v",
			e.Operation, e.Table, e.Err)
	}
	return fmt.Sprintf("query error during %s: %v", e.Operation, e.Err)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

func (e *QueryError) Is(target error) bool {
	return target == ErrQueryFailed
}

// RecordNotFoundError represents a record not found error.
type RecordNotFoundError struct {
	Object string
	ID     string
}

func (e *RecordNotFoundError) Error() string {
	return fmt.Sprintf("record not found: %s with ID %s", e.Object, e.ID)
}

// Is lets errors.Is(err, ErrRecordNotFound) match.
func (e *RecordNotFoundError) Is(target error) bool {
	return target == ErrRecordNotFound
}

// ValidationError represents validation errors.
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error for field %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// Is lets errors.Is(err, ErrValidationFailed) match.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidationFailed
}

// ConfigError represents configuration errors.
type ConfigError struct {
	Field   string
	Value   any
	Message string
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("config error for field %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("config error: %s", e.Message)
}

// Constructor functions for custom errors

// NewRecordNotFoundError creates a new record not found error.
func NewRecordNotFoundError(object, id string) *RecordNotFoundError {
	return &RecordNotFoundError{
		Object: object,
		ID:     id,
	}
}

// NewValidationError creates a new validation error.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{
		Message: message,
	}
}

// NewValidationErrorForField creates a new validation error for a specific field.
func NewValidationErrorForField(field string, value any, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// NewConfigError creates a new config error.
func NewConfigError(message string) *ConfigError {
	return &ConfigError{
		Message: message,
	}
}

// NewConfigErrorForField creates a new config error for a specific field.
func NewConfigErrorForField(field string, value any, message string) *ConfigError {
	return &ConfigError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// Wrapper functions for adding context to errors

// WrapConnectionError wraps an error as a connection error.
func WrapConnectionError(err error, operation, driver, host string) error {
	if err == nil {
		return nil
	}
	return &ConnectionError{Operation: operation, Driver: driver, Host: host, Err: err}
}

// WrapDriverError wraps an error as a driver error.
func WrapDriverError(err error, driver, operation string) error {
	if err == nil {
		return nil
	}
	return &DriverError{Driver: driver, Operation: operation, Err: err}
}

// WrapTransactionError wraps an error as a transaction error.
func WrapTransactionError(err error, operation string) error {
	if err == nil {
		return nil
	}
	return &TransactionError{Operation: operation, Err: err}
}

// WrapQueryError wraps an error as a query error.
func WrapQueryError(err error, operation, table, query string, args []any) error {
	if err == nil {
		return nil
	}
	return &QueryError{Operation: operation, Table: table, Query: query, Args: args, Err: err}
}

// RepositoryError represents repository operation errors.
type RepositoryError struct {
	EntityName string
	Operation  string
	Context    map[string]any
	Err        error
}

func (e *RepositoryError) Error() string {
	return fmt.Sprintf("repository error in %s.%s: %v", e.EntityName, e.Operation, e.Err)
}

func (e *RepositoryError) Unwrap() error {
	return e.Err
}

// WrapRepositoryError wraps an error with repository context.
func WrapRepositoryError(err error, entityName, operation string, context map[string]any) error {
	if err == nil {
		return nil
	}
	return &RepositoryError{
		EntityName: entityName,
		Operation:  operation,
		Context:    context,
		Err:        err,
	}
}

// Error checking functions

// IsConnectionError checks if an error is a connection error.
func IsConnectionError(err error) bool {
	var connErr *ConnectionError
	return errors.As(err, &connErr)
}

// IsTransactionError checks if an error is a transaction error.
func IsTransactionError(err error) bool {
	var txErr *TransactionError
	return errors.As(err, &txErr)
}

// IsQueryError checks if an error is a query error.
func IsQueryError(err error) bool {
	var queryErr *QueryError
	return errors.As(err, &queryErr)
}

// IsRecordNotFoundError checks if an error is a record not found error.
func IsRecordNotFoundError(err error) bool {
	var notFoundErr *RecordNotFoundError
	return errors.As(err, &notFoundErr)
}

// IsValidationError checks if an error is a validation error.
func IsValidationError(err error) bool {
	var validationErr *ValidationError
	return errors.As(err, &validationErr)
}

// IsConfigError checks if an error is a config error.
func IsConfigError(err error) bool {
	var configErr *ConfigError
	return errors.As(err, &configErr)
}

// IsBatchError checks if an error is a batch error.
func IsBatchError(err error) bool {
	var batchErr *BatchError
	return errors.As(err, &batchErr)
}

// NewValidationErrorFromValidator converts validator output into a ValidationError.
// The first failing field is reported as Field; all failures appear in Message.
func NewValidationErrorFromValidator(err error, object ObjectType) *ValidationError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &ValidationError{Message: fmt.Sprintf("%s: %v", object, err)}
	}

	messages := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		messages = append(messages, fmt.Sprintf("%s failed on %q", fe.Field(), fe.Tag()))
	}

	return &ValidationError{
		Field:   verrs[0].Field(),
		Value:   verrs[0].Value(),
		Message: fmt.Sprintf("%s: %s", object, strings.Join(messages, "; ")),
	}
}
