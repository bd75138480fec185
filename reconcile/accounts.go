package reconcile

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	store "github.com/synergyfw/crmstore"
	"github.com/synergyfw/crmstore/records"
)

// CreateAccount inserts a new account.
func (r *Reconciler) CreateAccount(ctx context.Context, acct *records.Account) (*records.Account, error) {
	err := r.backend.WithTx(ctx, func(ctx context.Context) error {
		return saved(r.backend.Create(ctx, acct))
	})
	if err != nil {
		return nil, err
	}
	return acct, nil
}

// UpdateAccount renames an account and sets its industry.
func (r *Reconciler) UpdateAccount(ctx context.Context, id, name, industry string) (*records.Account, error) {
	return mutate(ctx, r, id, func(a *records.Account) error {
		a.Name = name
		a.Industry = industry
		return nil
	})
}

// UpsertAccount finds the account named name and marks it updated, or
// creates it when there is none. The first match by ID wins when several
// accounts share the name.
func (r *Reconciler) UpsertAccount(ctx context.Context, name string) (*records.Account, error) {
	var acct *records.Account
	err := r.backend.WithTx(ctx, func(ctx context.Context) error {
		a, found, err := r.findOrCreateAccount(ctx, name, 1)
		if err != nil {
			return err
		}
		if found {
			a.Description = AccountUpdatedMarker
			if err := saved(r.backend.Update(ctx, a)); err != nil {
				return err
			}
		}
		acct = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return acct, nil
}

// findOrCreateAccount returns the first of at most limit accounts named
// name, or a new account carrying the created marker. found reports which.
func (r *Reconciler) findOrCreateAccount(ctx context.Context, name string, limit int) (*records.Account, bool, error) {
	if name == "" {
		return nil, false, store.NewValidationErrorForField("name", name, "account name cannot be empty")
	}

	q := store.Where(store.Eq("name", name)).
		WithOrder(store.Asc(store.ColumnID)).
		WithLimit(limit)
	matches, err := store.FindAll[*records.Account](ctx, r.backend, q)
	if err != nil {
		return nil, false, err
	}
	// MySQL pads trailing spaces when comparing, so recheck the name.
	for _, a := range matches {
		if a.Name == name {
			return a, true, nil
		}
	}

	acct := &records.Account{Name: name, Description: AccountCreatedMarker}
	if err := saved(r.backend.Create(ctx, acct)); err != nil {
		return nil, false, err
	}
	r.logger.Debug("account created", zap.String("name", name), zap.String("id", acct.ID))
	return acct, false, nil
}

// UpsertAccountsWithContacts links every contact to the account named after
// its last name, creating missing accounts, and saves the contacts.
//
// Accounts are resolved in bulk: one lookup for all distinct names, one
// update batch for the matches and one create batch for the rest. The
// contacts are then upserted by ID in a single batch.
func (r *Reconciler) UpsertAccountsWithContacts(ctx context.Context, contacts []*records.Contact) ([]*records.Contact, error) {
	if len(contacts) == 0 {
		return contacts, nil
	}

	lastNames := make([]string, 0, len(contacts))
	for i, c := range contacts {
		if c == nil {
			return nil, store.NewValidationErrorForField("contacts", i, "contact cannot be nil")
		}
		if c.LastName == "" {
			return nil, store.NewValidationErrorForField("last_name", i, "contact last name cannot be empty")
		}
		lastNames = append(lastNames, c.LastName)
	}
	names := distinct(lastNames)

	// A rolled back unit leaves no trace on the caller's contacts, so the
	// same slice can be retried.
	before := make([]contactState, len(contacts))
	for i, c := range contacts {
		before[i] = contactState{base: c.Base, accountID: c.AccountID}
	}

	err := r.backend.WithTx(ctx, func(ctx context.Context) error {
		byName, err := r.resolveAccounts(ctx, names)
		if err != nil {
			return err
		}

		for _, c := range contacts {
			acct := byName[c.LastName]
			if acct == nil || acct.ID == "" {
				return fmt.Errorf("%w: no account resolved for contact %q", store.ErrInternal, c.LastName)
			}
			c.AccountID = acct.ID
		}
		return saved(r.backend.Upsert(ctx, store.MatchByID, store.Records(contacts)...))
	})
	if err != nil {
		for i, c := range contacts {
			c.Base = before[i].base
			c.AccountID = before[i].accountID
		}
		return nil, err
	}
	return contacts, nil
}

type contactState struct {
	base      store.Base
	accountID string
}

// resolveAccounts maps every name to a persisted account. Existing accounts
// get the updated marker, missing ones are created with the created marker.
func (r *Reconciler) resolveAccounts(ctx context.Context, names []string) (map[string]*records.Account, error) {
	q := store.Where(store.InStrings("name", names)).WithOrder(store.Asc(store.ColumnID))
	existing, err := store.FindAll[*records.Account](ctx, r.backend, q)
	if err != nil {
		return nil, err
	}

	wanted := make(map[string]bool, len(names))
	for _, name := range names {
		wanted[name] = true
	}

	byName := make(map[string]*records.Account, len(names))
	var matched []*records.Account
	for _, a := range existing {
		if _, ok := byName[a.Name]; ok || !wanted[a.Name] {
			continue
		}
		a.Description = AccountUpdatedMarker
		byName[a.Name] = a
		matched = append(matched, a)
	}

	var missing []*records.Account
	for _, name := range names {
		if _, ok := byName[name]; ok {
			continue
		}
		a := &records.Account{Name: name, Description: AccountCreatedMarker}
		byName[name] = a
		missing = append(missing, a)
	}

	if len(matched) > 0 {
		if err := saved(r.backend.Update(ctx, store.Records(matched)...)); err != nil {
			return nil, err
		}
	}
	if len(missing) > 0 {
		if err := saved(r.backend.Create(ctx, store.Records(missing)...)); err != nil {
			return nil, err
		}
	}

	r.logger.Debug("accounts resolved",
		zap.Int("matched", len(matched)),
		zap.Int("created", len(missing)),
	)
	return byName, nil
}
