package records

import (
	store "github.com/synergyfw/crmstore"
)

var (
	AccountSchema = &store.Schema{
		Object: ObjectAccount,
		Table:  "accounts",
		Columns: []store.Column{
			{Name: "name", Kind: store.KindString},
			{Name: "industry", Kind: store.KindString},
			{Name: "description", Kind: store.KindText},
			{Name: "number_of_employees", Kind: store.KindInt},
		},
		Indexes: [][]string{{"name"}},
		New:     func() store.Record { return &Account{} },
	}

	ContactSchema = &store.Schema{
		Object: ObjectContact,
		Table:  "contacts",
		Columns: []store.Column{
			{Name: "first_name", Kind: store.KindString},
			{Name: "last_name", Kind: store.KindString},
			{Name: "account_id", Kind: store.KindString},
		},
		Indexes: [][]string{{"account_id"}},
		New:     func() store.Record { return &Contact{} },
	}

	OpportunitySchema = &store.Schema{
		Object: ObjectOpportunity,
		Table:  "opportunities",
		Columns: []store.Column{
			{Name: "name", Kind: store.KindString},
			{Name: "stage_name", Kind: store.KindString},
			{Name: "close_date", Kind: store.KindDate},
			{Name: "amount", Kind: store.KindDecimal},
			{Name: "account_id", Kind: store.KindString},
		},
		Indexes: [][]string{{"account_id", "name"}},
		New:     func() store.Record { return &Opportunity{} },
	}

	LeadSchema = &store.Schema{
		Object: ObjectLead,
		Table:  "leads",
		Columns: []store.Column{
			{Name: "first_name", Kind: store.KindString},
			{Name: "last_name", Kind: store.KindString},
			{Name: "company", Kind: store.KindString},
			{Name: "status", Kind: store.KindString},
		},
		New: func() store.Record { return &Lead{} },
	}

	CaseSchema = &store.Schema{
		Object: ObjectCase,
		Table:  "cases",
		Columns: []store.Column{
			{Name: "subject", Kind: store.KindString},
			{Name: "status", Kind: store.KindString},
			{Name: "origin", Kind: store.KindString},
			{Name: "account_id", Kind: store.KindString},
		},
		New: func() store.Record { return &Case{} },
	}
)

// Registry returns a schema registry holding every CRM record type.
func Registry() *store.Registry {
	return store.NewRegistry(
		AccountSchema,
		ContactSchema,
		OpportunitySchema,
		LeadSchema,
		CaseSchema,
	)
}
