package main

import (
	"context"

	"github.com/spf13/cobra"
)

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the record tables",
		Long: `Create the account, contact, opportunity, lead and case tables in the
configured SQL database. Running it again is a no-op. The memory backend
needs no migration.`,
		Args: checkArgs(rootOpts, cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, rootOpts, func(ctx context.Context, s *session) (any, error) {
				if err := s.migrate(ctx); err != nil {
					return nil, WrapExitError(ExitCommandError, "migrate", err)
				}
				return message("schema is up to date"), nil
			})
		},
	}
}

// message is plain text output.
type message string

func (m message) String() string { return string(m) }
