package main

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	store "github.com/synergyfw/crmstore"
	kvstore "github.com/synergyfw/crmstore/kv"
	sqlstore "github.com/synergyfw/crmstore/sql"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the crmctl command tree.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "crmctl",
		Short: "Reconcile CRM records in a SQL or in-memory store",
		Long: `crmctl runs the CRM record reconciliation operations against the
configured backend. The backend is read from --config and CRM_* environment
variables (CRM_TYPE=postgres|mysql|sqlite|memory, CRM_HOST, CRM_FILE_PATH, ...).`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          checkArgs(opts, cobra.NoArgs),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fail(cmd, opts, "invalid flag",
					fmt.Errorf("format %q must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
		return fail(c, opts, "invalid flag", err)
	})

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose logging")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "config file (yaml, json or toml)")

	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewDemoCommand(opts))
	cmd.AddCommand(NewListCommand(opts))

	return cmd
}

// newLogger returns a development logger in verbose mode and a production
// logger otherwise. Both write to stderr.
func newLogger(opts *RootOptions) (*zap.Logger, error) {
	if opts.Verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
}

// session is an open backend plus the logger commands share.
type session struct {
	backend store.Backend
	logger  *zap.Logger
	migrate func(context.Context) error
	close   func() error
}

func (s *session) Close() {
	_ = s.close()
	_ = s.logger.Sync()
}

// openSession loads the configuration and connects the backend it names.
func openSession(ctx context.Context, opts *RootOptions) (*session, error) {
	logger, err := newLogger(opts)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "logger", err)
	}

	cfg, err := store.LoadConfig(opts.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "load config", err)
	}
	logger.Debug("config loaded", zap.String("type", cfg.Type), zap.String("host", cfg.Host))

	if cfg.IsSQL() {
		svc, err := sqlstore.OpenConfig(ctx, &cfg, sqlstore.WithLogger(logger))
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "open store", err)
		}
		return &session{
			backend: svc.Backend(),
			logger:  logger,
			migrate: svc.Migrate,
			close:   svc.Close,
		}, nil
	}

	svc, err := kvstore.OpenConfig(ctx, &cfg, kvstore.WithLogger(logger))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "open store", err)
	}
	return &session{
		backend: svc.Backend(),
		logger:  logger,
		migrate: func(context.Context) error { return nil },
		close:   svc.Close,
	}, nil
}

// report writes err through the formatter and returns it.
func report(cmd *cobra.Command, opts *RootOptions, err error) error {
	_ = newFormatter(opts, cmd).Error(err)
	return err
}

// fail reports a bad invocation.
func fail(cmd *cobra.Command, opts *RootOptions, message string, err error) error {
	return report(cmd, opts, WrapExitError(ExitCommandError, message, err))
}

// checkArgs turns positional argument errors into reported command errors.
func checkArgs(opts *RootOptions, validate cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := validate(cmd, args); err != nil {
			return fail(cmd, opts, "invalid arguments", err)
		}
		return nil
	}
}

// withSession opens a session, runs fn and writes its result, or its
// failure together with any partial data, as one response.
func withSession(cmd *cobra.Command, opts *RootOptions, fn func(ctx context.Context, s *session) (any, error)) error {
	out := newFormatter(opts, cmd)
	ctx := cmd.Context()

	s, err := openSession(ctx, opts)
	if err != nil {
		_ = out.Error(err)
		return err
	}
	defer s.Close()

	data, err := fn(ctx, s)
	var exitErr *ExitError
	if err != nil && !errors.As(err, &exitErr) && store.IsValidationError(err) && !store.IsBatchError(err) {
		err = WrapExitError(ExitCommandError, "invalid input", err)
	}
	if werr := out.Result(data, err); werr != nil && err == nil {
		return werr
	}
	return err
}
