package records

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	store "github.com/synergyfw/crmstore"
)

func TestIsStage(t *testing.T) {
	for _, s := range Stages {
		assert.True(t, IsStage(s), s)
	}
	assert.False(t, IsStage("closed won"))
	assert.False(t, IsStage(""))
}

func TestRegistry(t *testing.T) {
	reg := Registry()
	for _, object := range []store.ObjectType{ObjectAccount, ObjectContact, ObjectOpportunity, ObjectLead, ObjectCase} {
		schema, err := reg.Get(object)
		require.NoError(t, err, object)
		assert.Equal(t, object, schema.New().Object())
	}
	assert.Len(t, reg.List(), 5)
}

// Every column must be readable and writable through the record maps.
func TestSchemasMatchRecords(t *testing.T) {
	for _, schema := range Registry().List() {
		t.Run(schema.Object.String(), func(t *testing.T) {
			rec := schema.New()
			values, ptrs := rec.Values(), rec.Pointers()
			assert.Len(t, values, len(schema.ColumnNames()))
			for _, col := range schema.ColumnNames() {
				assert.Contains(t, values, col)
				assert.Contains(t, ptrs, col)
			}
			for _, idx := range schema.Indexes {
				for _, col := range idx {
					assert.True(t, schema.HasColumn(col), col)
				}
			}
		})
	}
}

func TestValidation(t *testing.T) {
	ctx := context.Background()
	base := store.NewRepositoryBase("test", Registry())

	tests := []struct {
		name  string
		rec   store.Record
		valid bool
	}{
		{"account", &Account{Name: "Acme"}, true},
		{"account without name", &Account{}, false},
		{"account with negative employees", &Account{Name: "Acme", NumberOfEmployees: -1}, false},
		{"contact", &Contact{LastName: "Smith"}, true},
		{"contact without last name", &Contact{FirstName: "Jo"}, false},
		{"opportunity", &Opportunity{Name: "A", StageName: StageProspecting, CloseDate: time.Now()}, true},
		{"opportunity without close date", &Opportunity{Name: "A", StageName: StageProspecting}, false},
		{"lead", &Lead{LastName: "Lead 0", Company: "Company 0"}, true},
		{"lead without company", &Lead{LastName: "Lead 0"}, false},
		{"case", &Case{Status: "New", Origin: "Web"}, true},
		{"case without origin", &Case{Status: "New"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := base.Validate(ctx, tt.rec)
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, store.IsValidationError(err))
		})
	}
}
