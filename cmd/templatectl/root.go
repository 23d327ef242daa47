package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/univer-labs/plugins-api/internal/platform/auditlog"
	"github.com/univer-labs/plugins-api/internal/platform/env"
	"github.com/univer-labs/plugins-api/internal/platform/objectstore"
	"github.com/univer-labs/plugins-api/internal/platform/postgres"
	"github.com/univer-labs/plugins-api/internal/repo/jsonfile"
	"github.com/univer-labs/plugins-api/internal/snapshot"
)

const (
	exitFailure      = 1
	exitCommandError = 2
)

var validFormats = []string{"text", "json"}

// exitError carries the process exit code for a failed command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }

func (e *exitError) Unwrap() error { return e.err }

func commandError(format string, args ...any) error {
	return &exitError{code: exitCommandError, err: fmt.Errorf(format, args...)}
}

func exitCode(err error) int {
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return exitFailure
}

type rootOptions struct {
	StorePath string
	Format    string
	Verbose   bool
}

// deps are the outside resources a command may reach for.
type deps struct {
	// openSnapshots returns the bucket snapshots are replicated to and the key
	// prefix they live under.
	openSnapshots func() (snapshot.Store, string, error)
	// auditHistory returns the newest audit events recorded for a template.
	auditHistory func(ctx context.Context, templateID string, limit int) ([]auditlog.Event, error)
}

func defaultDeps() deps {
	return deps{
		openSnapshots: openSnapshotBucket,
		auditHistory:  queryAuditHistory,
	}
}

func queryAuditHistory(ctx context.Context, templateID string, limit int) ([]auditlog.Event, error) {
	cfg, err := postgres.ConfigFromEnv()
	if err != nil {
		return nil, err
	}
	db, err := postgres.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Close() }()
	return auditlog.History(ctx, db, "template", templateID, limit)
}

func openSnapshotBucket() (snapshot.Store, string, error) {
	cfg, err := objectstore.ConfigFromEnv()
	if err != nil {
		return nil, "", err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	client, err := objectstore.NewMinIOClient(cfg)
	if err != nil {
		return nil, "", err
	}
	return objectstore.NewBucket(client, cfg), cfg.Prefix, nil
}

func newRootCommand(d deps) *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "templatectl",
		Short:         "Inspect and maintain the plugins API template store",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(validFormats, opts.Format) {
				return commandError("invalid format %q: must be one of %v", opts.Format, validFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.StorePath, "store", env.Trimmed("TEMPLATE_STORE_PATH", jsonfile.DefaultPath), "path of the template store file")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "log diagnostics to stderr")

	cmd.AddCommand(newCheckCommand(opts))
	cmd.AddCommand(newListCommand(opts))
	cmd.AddCommand(newExportCommand(opts))
	cmd.AddCommand(newSnapshotCommand(opts, d))
	cmd.AddCommand(newOpenAPICommand())
	cmd.AddCommand(newAuditCommand(opts, d))

	return cmd
}

func (o *rootOptions) logger(cmd *cobra.Command) *slog.Logger {
	if !o.Verbose {
		return slog.New(slog.DiscardHandler)
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelDebug}))
}
