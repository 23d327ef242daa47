package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/univer-labs/plugins-api/internal/platform/auditlog"
)

type auditRow struct {
	ID         int64     `json:"id"`
	OccurredAt time.Time `json:"occurred_at"`
	Actor      string    `json:"actor"`
	Action     string    `json:"action"`
	RequestID  string    `json:"request_id,omitempty"`
	Intact     bool      `json:"intact"`
}

func newAuditCommand(opts *rootOptions, d deps) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "audit <template-id>",
		Short: "Show the audit trail of a template and check each row's integrity hash",
		Long: `Audit reads the events recorded for a template from AUDIT_DATABASE_URL,
newest first. A row whose integrity hash no longer matches its contents is
flagged, and the command exits non-zero.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				return commandError("--limit must be positive")
			}
			events, err := d.auditHistory(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}

			rows := make([]auditRow, 0, len(events))
			tampered := 0
			for _, e := range events {
				intact, err := auditlog.Verify(e)
				if err != nil {
					return fmt.Errorf("event %d: %w", e.ID, err)
				}
				if !intact {
					tampered++
				}
				rows = append(rows, auditRow{
					ID:         e.ID,
					OccurredAt: e.OccurredAt.UTC(),
					Actor:      e.Actor,
					Action:     e.Action,
					RequestID:  e.RequestID,
					Intact:     intact,
				})
			}

			if opts.Format == "json" {
				if err := writeJSON(cmd.OutOrStdout(), rows); err != nil {
					return err
				}
			} else {
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tWHEN\tACTOR\tACTION\tINTEGRITY")
				for _, r := range rows {
					status := "ok"
					if !r.Intact {
						status = "MISMATCH"
					}
					fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", r.ID, r.OccurredAt.Format(time.RFC3339), r.Actor, r.Action, status)
				}
				if err := tw.Flush(); err != nil {
					return err
				}
			}

			if tampered > 0 {
				return &exitError{code: exitFailure, err: fmt.Errorf("%d audit events failed integrity check", tampered)}
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of events to show")
	return cmd
}
