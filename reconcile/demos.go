package reconcile

import (
	"context"
	"fmt"

	store "github.com/synergyfw/crmstore"
	"github.com/synergyfw/crmstore/records"
)

// CreateAndDeleteLeads creates n leads and deletes them again in the same
// unit of work. It returns the number of leads created.
func (r *Reconciler) CreateAndDeleteLeads(ctx context.Context, n int) (int, error) {
	leads := make([]*records.Lead, 0, max(n, 0))
	for i := range n {
		leads = append(leads, &records.Lead{
			LastName: fmt.Sprintf("Lead %d", i),
			Company:  fmt.Sprintf("Company %d", i),
			Status:   "Open - Not Contacted",
		})
	}
	return createAndDelete(ctx, r, leads)
}

// CreateAndDeleteCases creates n cases and deletes them again in the same
// unit of work. It returns the number of cases created.
func (r *Reconciler) CreateAndDeleteCases(ctx context.Context, n int) (int, error) {
	cases := make([]*records.Case, 0, max(n, 0))
	for i := range n {
		cases = append(cases, &records.Case{
			Subject: fmt.Sprintf("Case %d", i),
			Status:  "New",
			Origin:  "Web",
		})
	}
	return createAndDelete(ctx, r, cases)
}

func createAndDelete[T store.Record](ctx context.Context, r *Reconciler, items []T) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}
	recs := store.Records(items)

	var created int
	err := r.backend.WithTx(ctx, func(ctx context.Context) error {
		res, err := r.backend.Create(ctx, recs...)
		if err := saved(res, err); err != nil {
			return err
		}
		created = len(res.Succeeded())
		return saved(r.backend.Delete(ctx, recs...))
	})
	if err != nil {
		return 0, err
	}
	return created, nil
}
