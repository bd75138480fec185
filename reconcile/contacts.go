package reconcile

import (
	"context"

	store "github.com/synergyfw/crmstore"
	"github.com/synergyfw/crmstore/records"
)

// CreateContact inserts a contact linked to an existing account.
// An unknown accountID is a *store.RecordNotFoundError.
func (r *Reconciler) CreateContact(ctx context.Context, firstName, lastName, accountID string) (*records.Contact, error) {
	c := &records.Contact{FirstName: firstName, LastName: lastName, AccountID: accountID}
	err := r.backend.WithTx(ctx, func(ctx context.Context) error {
		if _, err := store.Get[*records.Account](ctx, r.backend, accountID); err != nil {
			return err
		}
		return saved(r.backend.Create(ctx, c))
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// UpdateContactLastName sets a contact's last name.
func (r *Reconciler) UpdateContactLastName(ctx context.Context, id, lastName string) (*records.Contact, error) {
	return mutate(ctx, r, id, func(c *records.Contact) error {
		c.LastName = lastName
		return nil
	})
}
