package reconcile

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	store "github.com/synergyfw/crmstore"
	"github.com/synergyfw/crmstore/records"
)

// opportunityKey identifies an opportunity within its account.
var opportunityKey = store.MatchKey{"account_id", "name"}

// UpdateOpportunityStage moves an opportunity to stage.
func (r *Reconciler) UpdateOpportunityStage(ctx context.Context, id, stage string) (*records.Opportunity, error) {
	if !records.IsStage(stage) {
		return nil, store.NewValidationErrorForField("stage_name", stage, "unknown opportunity stage")
	}
	return mutate(ctx, r, id, func(o *records.Opportunity) error {
		o.StageName = stage
		return nil
	})
}

// UpsertOpportunities makes sure the account named accountName has exactly
// one opportunity per distinct name in names.
//
// The account is resolved like UpsertAccount but without marking a match as
// updated. Opportunities that already exist are closed as won today; new
// ones start prospecting with a close date two months out. Duplicate names
// collapse to one opportunity. The result follows the first appearance of
// each name.
func (r *Reconciler) UpsertOpportunities(ctx context.Context, accountName string, names []string) ([]*records.Opportunity, error) {
	wanted := distinct(names)
	today := r.Today()

	var out []*records.Opportunity
	err := r.backend.WithTx(ctx, func(ctx context.Context) error {
		acct, _, err := r.findOrCreateAccount(ctx, accountName, accountLookupLimit)
		if err != nil {
			return err
		}
		if len(wanted) == 0 {
			return nil
		}

		q := store.Where(
			store.Eq("account_id", acct.ID),
			store.InStrings("name", wanted),
		).WithOrder(store.Asc(store.ColumnID))
		existing, err := store.FindAll[*records.Opportunity](ctx, r.backend, q)
		if err != nil {
			return err
		}
		byName := make(map[string]*records.Opportunity, len(existing))
		for _, o := range existing {
			if _, ok := byName[o.Name]; !ok {
				byName[o.Name] = o
			}
		}

		batch := make([]*records.Opportunity, 0, len(wanted))
		for _, name := range wanted {
			if o, ok := byName[name]; ok {
				o.StageName = records.StageClosedWon
				o.CloseDate = today
				batch = append(batch, o)
				continue
			}
			batch = append(batch, &records.Opportunity{
				Name:      name,
				StageName: records.StageProspecting,
				CloseDate: today.AddDate(0, 2, 0),
				AccountID: acct.ID,
			})
		}

		if err := saved(r.backend.Upsert(ctx, opportunityKey, store.Records(batch)...)); err != nil {
			return err
		}
		r.logger.Debug("opportunities reconciled",
			zap.String("account", acct.ID),
			zap.Int("requested", len(names)),
			zap.Int("existing", len(byName)),
			zap.Int("saved", len(batch)),
		)
		out = batch
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UpsertOpportunityList moves every opportunity to Qualification with a
// close date three months out and the normalized amount, then upserts them
// by ID.
//
// The call is not atomic. Records that save are committed even when others
// fail; each failure is logged and reported in the returned BatchResult.
// The error return is reserved for failures of the whole call.
func (r *Reconciler) UpsertOpportunityList(ctx context.Context, opps []*records.Opportunity) (store.BatchResult, error) {
	if len(opps) == 0 {
		return store.NewBatchResult("upsert", records.ObjectOpportunity, 0), nil
	}

	closeDate := r.Today().AddDate(0, 3, 0)
	amount := decimal.NewFromInt(NormalizedAmount)
	for i, o := range opps {
		if o == nil {
			return store.BatchResult{}, store.NewValidationErrorForField("opportunities", i, "opportunity cannot be nil")
		}
		o.StageName = records.StageQualification
		o.CloseDate = closeDate
		o.Amount = amount
	}

	var res store.BatchResult
	err := r.backend.WithTx(ctx, func(ctx context.Context) error {
		var err error
		res, err = r.backend.Upsert(ctx, store.MatchByID, store.Records(opps)...)
		return err
	})
	if err != nil {
		return store.BatchResult{}, fmt.Errorf("normalize opportunities: %w", err)
	}

	for _, f := range res.Failed() {
		r.logger.Warn("opportunity not saved",
			zap.Int("index", f.Index),
			zap.String("id", opps[f.Index].ID),
			zap.Error(f.Err),
		)
	}
	return res, nil
}
