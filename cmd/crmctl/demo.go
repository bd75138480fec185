package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	store "github.com/synergyfw/crmstore"
	"github.com/synergyfw/crmstore/reconcile"
	"github.com/synergyfw/crmstore/records"
)

// NewDemoCommand creates the demo command and one subcommand per
// reconciliation operation.
func NewDemoCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run a reconciliation operation",
		Long: `Run one reconciliation operation against the configured store.
SQL databases are migrated first.`,
	}

	cmd.AddCommand(
		demoCommand(rootOpts, "upsert-account <name>", "Find the account by name and mark it updated, or create it",
			checkArgs(rootOpts, cobra.ExactArgs(1)), func(ctx context.Context, _ *session, r *reconcile.Reconciler, args []string) (any, error) {
				acct, err := r.UpsertAccount(ctx, args[0])
				if err != nil {
					return nil, err
				}
				return recordList{acct}, nil
			}),
		demoCommand(rootOpts, "link-contacts <last-name>...", "Create contacts linked to an account named after each last name",
			checkArgs(rootOpts, cobra.MinimumNArgs(1)), func(ctx context.Context, _ *session, r *reconcile.Reconciler, args []string) (any, error) {
				contacts := make([]*records.Contact, len(args))
				for i, last := range args {
					contacts[i] = &records.Contact{LastName: last}
				}
				saved, err := r.UpsertAccountsWithContacts(ctx, contacts)
				if err != nil {
					return nil, err
				}
				return recordList(store.Records(saved)), nil
			}),
		demoCommand(rootOpts, "upsert-opportunities <account-name> <name>...", "Ensure one opportunity per name on the named account",
			checkArgs(rootOpts, cobra.MinimumNArgs(2)), func(ctx context.Context, _ *session, r *reconcile.Reconciler, args []string) (any, error) {
				opps, err := r.UpsertOpportunities(ctx, args[0], args[1:])
				if err != nil {
					return nil, err
				}
				return recordList(store.Records(opps)), nil
			}),
		demoCommand(rootOpts, "normalize-opportunities <id>...", "Reset opportunities to Qualification",
			checkArgs(rootOpts, cobra.MinimumNArgs(1)), runNormalize),
		demoCommand(rootOpts, "leads <count>", "Create and delete a batch of leads",
			checkArgs(rootOpts, cobra.ExactArgs(1)), func(ctx context.Context, _ *session, r *reconcile.Reconciler, args []string) (any, error) {
				n, err := parseCount(args[0])
				if err != nil {
					return nil, err
				}
				created, err := r.CreateAndDeleteLeads(ctx, n)
				if err != nil {
					return nil, err
				}
				return message(fmt.Sprintf("created and deleted %d leads", created)), nil
			}),
		demoCommand(rootOpts, "cases <count>", "Create and delete a batch of cases",
			checkArgs(rootOpts, cobra.ExactArgs(1)), func(ctx context.Context, _ *session, r *reconcile.Reconciler, args []string) (any, error) {
				n, err := parseCount(args[0])
				if err != nil {
					return nil, err
				}
				created, err := r.CreateAndDeleteCases(ctx, n)
				if err != nil {
					return nil, err
				}
				return message(fmt.Sprintf("created and deleted %d cases", created)), nil
			}),
	)
	return cmd
}

type demoFunc func(ctx context.Context, s *session, r *reconcile.Reconciler, args []string) (any, error)

func demoCommand(rootOpts *RootOptions, use, short string, args cobra.PositionalArgs, run demoFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, rootOpts, func(ctx context.Context, s *session) (any, error) {
				if err := s.migrate(ctx); err != nil {
					return nil, WrapExitError(ExitCommandError, "migrate", err)
				}
				return run(ctx, s, reconcile.New(s.backend, reconcile.WithLogger(s.logger)), args)
			})
		},
	}
}

// runNormalize loads the opportunities by ID and normalizes them. Unknown
// IDs are passed through so they show up as failures in the batch result.
func runNormalize(ctx context.Context, s *session, r *reconcile.Reconciler, args []string) (any, error) {
	opps := make([]*records.Opportunity, len(args))
	for i, id := range args {
		o, err := store.Get[*records.Opportunity](ctx, s.backend, id)
		switch {
		case store.IsRecordNotFoundError(err):
			o = &records.Opportunity{Base: store.Base{ID: id}, Name: id}
		case err != nil:
			return nil, err
		}
		opps[i] = o
	}

	res, err := r.UpsertOpportunityList(ctx, opps)
	if err != nil {
		return nil, err
	}
	out := batchSummary{Saved: len(res.Succeeded())}
	for _, f := range res.Failed() {
		out.Failures = append(out.Failures, fmt.Sprintf("[%d] %v", f.Index, f.Err))
	}
	if len(out.Failures) > 0 {
		return out, WrapExitError(ExitFailure, "some opportunities were not saved", res.Err())
	}
	return out, nil
}

func parseCount(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, WrapExitError(ExitCommandError, "invalid count", fmt.Errorf("%q is not a non-negative integer", s))
	}
	return n, nil
}

// batchSummary reports a batch call that may have partly failed.
type batchSummary struct {
	Saved    int      `json:"saved"`
	Failures []string `json:"failures,omitempty"`
}

func (b batchSummary) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "saved %d", b.Saved)
	for _, f := range b.Failures {
		fmt.Fprintf(&sb, "\nfailed %s", f)
	}
	return sb.String()
}
