package store

// Mutation is a marker interface for write operations.
type Mutation interface{ isMutation() }

// Insert represents an insert operation with column values.
type Insert struct {
	Values map[string]any
}

func (Insert) isMutation() {}

// Update represents an update with SET values and a WHERE filter.
type Update struct {
	Set   map[string]any
	Where Node
}

func (Update) isMutation() {}

// Delete represents a delete with a WHERE filter.
type Delete struct {
	Where Node
}

func (Delete) isMutation() {}

// MutationResult holds the metadata of an executed mutation.
type MutationResult struct {
	RowsAffected int64
}

// Helper constructors

func NewInsert(values map[string]any) Insert { return Insert{Values: values} }

func NewUpdate(set map[string]any, where Node) Update { return Update{Set: set, Where: where} }

func NewDelete(where Node) Delete { return Delete{Where: where} }

// InsertRecord builds an insert of every column of rec.
func InsertRecord(rec Record) Insert {
	return NewInsert(rec.Values())
}

// UpdateRecord builds an update of every non-key column of rec, by ID.
func UpdateRecord(rec Record) Update {
	set := rec.Values()
	delete(set, ColumnID)
	delete(set, ColumnCreatedAt)
	return NewUpdate(set, Eq(ColumnID, rec.GetID()))
}

// DeleteRecord builds a delete of rec by ID.
func DeleteRecord(rec Record) Delete {
	return NewDelete(Eq(ColumnID, rec.GetID()))
}
