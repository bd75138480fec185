package reconcile_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	store "github.com/synergyfw/crmstore"
	kvstore "github.com/synergyfw/crmstore/kv"
	"github.com/synergyfw/crmstore/reconcile"
	"github.com/synergyfw/crmstore/records"
	sqlstore "github.com/synergyfw/crmstore/sql"
)

var fixedNow = time.Date(2024, time.May, 17, 15, 4, 5, 0, time.FixedZone("CEST", 2*60*60))

func today() time.Time {
	return time.Date(2024, time.May, 17, 0, 0, 0, 0, time.UTC)
}

// forEachBackend runs fn against a fresh memory store and a fresh
// in-memory SQLite database.
func forEachBackend(t *testing.T, fn func(t *testing.T, b store.Backend)) {
	t.Helper()

	t.Run("memory", func(t *testing.T) {
		cfg := store.MemoryConfig()
		svc, err := kvstore.OpenConfig(context.Background(), &cfg)
		require.NoError(t, err)
		t.Cleanup(func() { _ = svc.Close() })
		fn(t, svc.Backend())
	})

	t.Run("sqlite", func(t *testing.T) {
		cfg := store.SQLiteConfig("")
		svc, err := sqlstore.OpenConfig(context.Background(), &cfg)
		require.NoError(t, err)
		t.Cleanup(func() { _ = svc.Close() })
		require.NoError(t, svc.Migrate(context.Background()))
		fn(t, svc.Backend())
	})
}

func newReconciler(b store.Backend, opts ...reconcile.Option) *reconcile.Reconciler {
	opts = append([]reconcile.Option{reconcile.WithClock(func() time.Time { return fixedNow })}, opts...)
	return reconcile.New(b, opts...)
}

func accountsNamed(t *testing.T, b store.Backend, name string) []*records.Account {
	t.Helper()
	found, err := store.FindAll[*records.Account](context.Background(), b, store.Where(store.Eq("name", name)))
	require.NoError(t, err)
	return found
}

func count(t *testing.T, b store.Backend, object store.ObjectType) int64 {
	t.Helper()
	n, err := b.Count(context.Background(), object, store.Query{})
	require.NoError(t, err)
	return n
}

func TestToday(t *testing.T) {
	r := reconcile.New(nil, reconcile.WithClock(func() time.Time { return fixedNow }))
	assert.Equal(t, today(), r.Today())

	late := time.Date(2024, time.May, 17, 23, 30, 0, 0, time.FixedZone("PST", -8*60*60))
	r = reconcile.New(nil, reconcile.WithClock(func() time.Time { return late }))
	assert.Equal(t, time.Date(2024, time.May, 18, 0, 0, 0, 0, time.UTC), r.Today())
}

func TestUpsertAccount(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b store.Backend) {
		ctx := context.Background()
		r := newReconciler(b)

		first, err := r.UpsertAccount(ctx, "Globex")
		require.NoError(t, err)
		require.NotEmpty(t, first.ID)
		assert.Equal(t, reconcile.AccountCreatedMarker, first.Description)

		second, err := r.UpsertAccount(ctx, "Globex")
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, reconcile.AccountUpdatedMarker, second.Description)

		stored := accountsNamed(t, b, "Globex")
		require.Len(t, stored, 1)
		assert.Equal(t, reconcile.AccountUpdatedMarker, stored[0].Description)
	})
}

func TestUpsertAccount_EmptyName(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b store.Backend) {
		_, err := newReconciler(b).UpsertAccount(context.Background(), "")
		require.Error(t, err)
		assert.True(t, store.IsValidationError(err))
		assert.Zero(t, count(t, b, records.ObjectAccount))
	})
}

func TestUpsertAccountsWithContacts(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b store.Backend) {
		ctx := context.Background()
		r := newReconciler(b)

		jones, err := r.CreateAccount(ctx, &records.Account{Name: "Jones", Industry: "Retail"})
		require.NoError(t, err)

		contacts := []*records.Contact{
			{FirstName: "Ann", LastName: "Smith"},
			{FirstName: "Bob", LastName: "Jones"},
			{FirstName: "Cid", LastName: "Smith"},
		}
		saved, err := r.UpsertAccountsWithContacts(ctx, contacts)
		require.NoError(t, err)
		require.Len(t, saved, 3)

		for _, c := range saved {
			require.NotEmpty(t, c.ID)
			acct, err := store.Get[*records.Account](ctx, b, c.AccountID)
			require.NoError(t, err)
			assert.Equal(t, c.LastName, acct.Name)
		}
		assert.Equal(t, jones.ID, saved[1].AccountID)
		assert.Equal(t, saved[0].AccountID, saved[2].AccountID)

		smiths := accountsNamed(t, b, "Smith")
		require.Len(t, smiths, 1)
		assert.Equal(t, reconcile.AccountCreatedMarker, smiths[0].Description)

		stored := accountsNamed(t, b, "Jones")
		require.Len(t, stored, 1)
		assert.Equal(t, reconcile.AccountUpdatedMarker, stored[0].Description)
		assert.Equal(t, "Retail", stored[0].Industry)

		assert.EqualValues(t, 3, count(t, b, records.ObjectContact))
		assert.EqualValues(t, 2, count(t, b, records.ObjectAccount))
	})
}

func TestUpsertAccountsWithContacts_UpdatesExistingContacts(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b store.Backend) {
		ctx := context.Background()
		r := newReconciler(b)

		saved, err := r.UpsertAccountsWithContacts(ctx, []*records.Contact{{LastName: "Doe"}})
		require.NoError(t, err)
		id := saved[0].ID

		saved[0].LastName = "Roe"
		saved, err = r.UpsertAccountsWithContacts(ctx, saved)
		require.NoError(t, err)
		assert.Equal(t, id, saved[0].ID)

		c, err := store.Get[*records.Contact](ctx, b, id)
		require.NoError(t, err)
		acct, err := store.Get[*records.Account](ctx, b, c.AccountID)
		require.NoError(t, err)
		assert.Equal(t, "Roe", acct.Name)
		assert.EqualValues(t, 1, count(t, b, records.ObjectContact))
	})
}

func TestUpsertAccountsWithContacts_RollsBackOnFailure(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b store.Backend) {
		ctx := context.Background()
		r := newReconciler(b)

		contacts := []*records.Contact{
			{LastName: "Smith"},
			{Base: store.Base{ID: "missing-contact"}, LastName: "Jones"},
		}
		_, err := r.UpsertAccountsWithContacts(ctx, contacts)
		require.Error(t, err)
		assert.True(t, store.IsBatchError(err))
		assert.True(t, store.IsRecordNotFoundError(err))

		assert.Zero(t, count(t, b, records.ObjectAccount))
		assert.Zero(t, count(t, b, records.ObjectContact))
	})
}

func TestUpsertAccountsWithContacts_RetryAfterRollback(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b store.Backend) {
		ctx := context.Background()
		r := newReconciler(b)

		contacts := []*records.Contact{
			{FirstName: "Ann", LastName: "Smith"},
			{FirstName: strings.Repeat("x", 300), LastName: "Jones"},
		}
		_, err := r.UpsertAccountsWithContacts(ctx, contacts)
		require.Error(t, err)
		for _, c := range contacts {
			assert.Empty(t, c.ID)
			assert.Empty(t, c.AccountID)
			assert.True(t, c.CreatedAt.IsZero())
		}

		contacts[1].FirstName = "Bob"
		saved, err := r.UpsertAccountsWithContacts(ctx, contacts)
		require.NoError(t, err)
		require.Len(t, saved, 2)
		assert.NotEmpty(t, saved[0].ID)
		assert.NotEmpty(t, saved[1].AccountID)
		assert.EqualValues(t, 2, count(t, b, records.ObjectContact))
		assert.EqualValues(t, 2, count(t, b, records.ObjectAccount))
	})
}

// seedTwins stores n accounts sharing name, inserted in descending ID order.
// The lowest ID is returned.
func seedTwins(t *testing.T, b store.Backend, name string, n int) string {
	t.Helper()
	for i := n; i >= 1; i-- {
		acct := &records.Account{Base: store.Base{ID: fmt.Sprintf("twin-%02d", i)}, Name: name, Description: "seeded"}
		_, err := b.Create(context.Background(), acct)
		require.NoError(t, err)
	}
	return "twin-01"
}

func TestSharedAccountName_FirstMatchWins(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b store.Backend) {
		ctx := context.Background()
		r := newReconciler(b)
		lowest := seedTwins(t, b, "Twin", 2)

		acct, err := r.UpsertAccount(ctx, "Twin")
		require.NoError(t, err)
		assert.Equal(t, lowest, acct.ID)
		other, err := store.Get[*records.Account](ctx, b, "twin-02")
		require.NoError(t, err)
		assert.Equal(t, "seeded", other.Description)

		contacts, err := r.UpsertAccountsWithContacts(ctx, []*records.Contact{{LastName: "Twin"}})
		require.NoError(t, err)
		assert.Equal(t, lowest, contacts[0].AccountID)

		opps, err := r.UpsertOpportunities(ctx, "Twin", []string{"Deal"})
		require.NoError(t, err)
		assert.Equal(t, lowest, opps[0].AccountID)

		assert.EqualValues(t, 2, count(t, b, records.ObjectAccount))
	})
}

func TestUpsertOpportunities_ManySharedNames(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b store.Backend) {
		lowest := seedTwins(t, b, "Crowd", 12)

		opps, err := newReconciler(b).UpsertOpportunities(context.Background(), "Crowd", []string{"Deal"})
		require.NoError(t, err)
		require.Len(t, opps, 1)
		assert.Equal(t, lowest, opps[0].AccountID)
		assert.EqualValues(t, 12, count(t, b, records.ObjectAccount))
	})
}

func TestUpsertAccountsWithContacts_RejectsEmptyLastName(t *testing.T) {
	r := reconcile.New(nil)
	_, err := r.UpsertAccountsWithContacts(context.Background(), []*records.Contact{{FirstName: "Ann"}})
	require.Error(t, err)
	assert.True(t, store.IsValidationError(err))

	saved, err := r.UpsertAccountsWithContacts(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, saved)
}

func TestUpsertOpportunities(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b store.Backend) {
		ctx := context.Background()
		r := newReconciler(b)

		opps, err := r.UpsertOpportunities(ctx, "Acme", []string{"A", "B", "A"})
		require.NoError(t, err)
		require.Len(t, opps, 2)
		assert.Equal(t, "A", opps[0].Name)
		assert.Equal(t, "B", opps[1].Name)
		for _, o := range opps {
			assert.Equal(t, records.StageProspecting, o.StageName)
			assert.True(t, today().AddDate(0, 2, 0).Equal(o.CloseDate), "close date %s", o.CloseDate)
		}
		assert.EqualValues(t, 2, count(t, b, records.ObjectOpportunity))

		acme := accountsNamed(t, b, "Acme")
		require.Len(t, acme, 1)
		assert.Equal(t, reconcile.AccountCreatedMarker, acme[0].Description)

		again, err := r.UpsertOpportunities(ctx, "Acme", []string{"A"})
		require.NoError(t, err)
		require.Len(t, again, 1)
		assert.Equal(t, opps[0].ID, again[0].ID)
		assert.EqualValues(t, 2, count(t, b, records.ObjectOpportunity))

		a, err := store.Get[*records.Opportunity](ctx, b, opps[0].ID)
		require.NoError(t, err)
		assert.Equal(t, records.StageClosedWon, a.StageName)
		assert.True(t, today().Equal(a.CloseDate), "close date %s", a.CloseDate)
		assert.Equal(t, acme[0].ID, a.AccountID)

		bOpp, err := store.Get[*records.Opportunity](ctx, b, opps[1].ID)
		require.NoError(t, err)
		assert.Equal(t, records.StageProspecting, bOpp.StageName)

		assert.Len(t, accountsNamed(t, b, "Acme"), 1)
	})
}

func TestUpsertOpportunities_Idempotent(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b store.Backend) {
		ctx := context.Background()
		r := newReconciler(b)
		names := []string{"Renewal", "Upsell"}

		_, err := r.UpsertOpportunities(ctx, "Initech", names)
		require.NoError(t, err)
		_, err = r.UpsertOpportunities(ctx, "Initech", names)
		require.NoError(t, err)
		_, err = r.UpsertOpportunities(ctx, "Initech", names)
		require.NoError(t, err)

		assert.EqualValues(t, 1, count(t, b, records.ObjectAccount))
		assert.EqualValues(t, 2, count(t, b, records.ObjectOpportunity))
	})
}

func TestUpsertOpportunities_ScopedToAccount(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b store.Backend) {
		ctx := context.Background()
		r := newReconciler(b)

		first, err := r.UpsertOpportunities(ctx, "Acme", []string{"Deal"})
		require.NoError(t, err)
		second, err := r.UpsertOpportunities(ctx, "Globex", []string{"Deal"})
		require.NoError(t, err)

		assert.NotEqual(t, first[0].ID, second[0].ID)
		assert.NotEqual(t, first[0].AccountID, second[0].AccountID)
		assert.Equal(t, records.StageProspecting, second[0].StageName)
		assert.EqualValues(t, 2, count(t, b, records.ObjectOpportunity))
	})
}

func TestUpsertOpportunities_NoNames(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b store.Backend) {
		opps, err := newReconciler(b).UpsertOpportunities(context.Background(), "Acme", nil)
		require.NoError(t, err)
		assert.Empty(t, opps)
		assert.Len(t, accountsNamed(t, b, "Acme"), 1)
	})
}

func TestUpsertOpportunityList(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b store.Backend) {
		ctx := context.Background()
		core, logs := observer.New(zap.WarnLevel)
		r := newReconciler(b, reconcile.WithLogger(zap.New(core)))

		existing, err := r.UpsertOpportunities(ctx, "Acme", []string{"A", "B"})
		require.NoError(t, err)

		batch := []*records.Opportunity{
			existing[0],
			{Name: "Fresh", AccountID: existing[0].AccountID},
			{Base: store.Base{ID: "no-such-opportunity"}, Name: "Ghost"},
			{Name: ""},
			existing[1],
		}
		res, err := r.UpsertOpportunityList(ctx, batch)
		require.NoError(t, err)
		require.Len(t, res.Results, 5)
		assert.False(t, res.OK())
		assert.Len(t, res.Succeeded(), 3)

		failed := res.Failed()
		require.Len(t, failed, 2)
		assert.Equal(t, 2, failed[0].Index)
		assert.True(t, store.IsRecordNotFoundError(failed[0].Err))
		assert.Equal(t, 3, failed[1].Index)
		assert.True(t, store.IsValidationError(failed[1].Err))

		var batchErr *store.BatchError
		require.ErrorAs(t, res.Err(), &batchErr)
		assert.True(t, batchErr.Partial())

		assert.Equal(t, 2, logs.FilterMessage("opportunity not saved").Len())

		for _, ok := range res.Succeeded() {
			o, err := store.Get[*records.Opportunity](ctx, b, ok.ID)
			require.NoError(t, err)
			assert.Equal(t, records.StageQualification, o.StageName)
			assert.True(t, decimal.NewFromInt(reconcile.NormalizedAmount).Equal(o.Amount), "amount %s", o.Amount)
			assert.True(t, today().AddDate(0, 3, 0).Equal(o.CloseDate), "close date %s", o.CloseDate)
		}
		assert.True(t, res.Results[1].Created)
		assert.EqualValues(t, 3, count(t, b, records.ObjectOpportunity))
	})
}

func TestUpsertOpportunityList_Empty(t *testing.T) {
	res, err := reconcile.New(nil).UpsertOpportunityList(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, res.OK())
	assert.Empty(t, res.Results)
}

func TestMutators(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b store.Backend) {
		ctx := context.Background()
		r := newReconciler(b)

		acct, err := r.CreateAccount(ctx, &records.Account{Name: "Umbrella", NumberOfEmployees: 40})
		require.NoError(t, err)
		require.NotEmpty(t, acct.ID)

		updated, err := r.UpdateAccount(ctx, acct.ID, "Umbrella Corp", "Pharma")
		require.NoError(t, err)
		assert.Equal(t, "Umbrella Corp", updated.Name)
		stored, err := store.Get[*records.Account](ctx, b, acct.ID)
		require.NoError(t, err)
		assert.Equal(t, "Pharma", stored.Industry)
		assert.Equal(t, 40, stored.NumberOfEmployees)

		c, err := r.CreateContact(ctx, "Alice", "Wesker", acct.ID)
		require.NoError(t, err)
		assert.Equal(t, acct.ID, c.AccountID)

		_, err = r.UpdateContactLastName(ctx, c.ID, "Redfield")
		require.NoError(t, err)
		storedContact, err := store.Get[*records.Contact](ctx, b, c.ID)
		require.NoError(t, err)
		assert.Equal(t, "Redfield", storedContact.LastName)
		assert.Equal(t, "Alice", storedContact.FirstName)

		opps, err := r.UpsertOpportunities(ctx, "Umbrella Corp", []string{"Vaccine"})
		require.NoError(t, err)
		_, err = r.UpdateOpportunityStage(ctx, opps[0].ID, records.StageNeedsAnalysis)
		require.NoError(t, err)
		storedOpp, err := store.Get[*records.Opportunity](ctx, b, opps[0].ID)
		require.NoError(t, err)
		assert.Equal(t, records.StageNeedsAnalysis, storedOpp.StageName)
	})
}

func TestMutators_Errors(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b store.Backend) {
		ctx := context.Background()
		r := newReconciler(b)

		_, err := r.CreateContact(ctx, "Ann", "Smith", "no-such-account")
		assert.True(t, store.IsRecordNotFoundError(err))
		assert.Zero(t, count(t, b, records.ObjectContact))

		_, err = r.UpdateAccount(ctx, "no-such-account", "X", "Y")
		assert.True(t, store.IsRecordNotFoundError(err))

		_, err = r.UpdateContactLastName(ctx, "no-such-contact", "X")
		assert.True(t, store.IsRecordNotFoundError(err))

		_, err = r.UpdateOpportunityStage(ctx, "no-such-opportunity", records.StageClosedLost)
		assert.True(t, store.IsRecordNotFoundError(err))

		_, err = r.UpdateOpportunityStage(ctx, "any", "Negotiation")
		assert.True(t, store.IsValidationError(err))

		_, err = r.CreateAccount(ctx, &records.Account{})
		assert.True(t, store.IsValidationError(err))
		assert.Zero(t, count(t, b, records.ObjectAccount))
	})
}

func TestCreateAndDelete(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b store.Backend) {
		ctx := context.Background()
		r := newReconciler(b)

		n, err := r.CreateAndDeleteLeads(ctx, 5)
		require.NoError(t, err)
		assert.Equal(t, 5, n)
		assert.Zero(t, count(t, b, records.ObjectLead))

		n, err = r.CreateAndDeleteCases(ctx, 3)
		require.NoError(t, err)
		assert.Equal(t, 3, n)
		assert.Zero(t, count(t, b, records.ObjectCase))

		n, err = r.CreateAndDeleteLeads(ctx, 0)
		require.NoError(t, err)
		assert.Zero(t, n)

		n, err = r.CreateAndDeleteCases(ctx, -1)
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}
