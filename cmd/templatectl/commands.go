package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/univer-labs/plugins-api/internal/apispec"
	"github.com/univer-labs/plugins-api/internal/domain"
	"github.com/univer-labs/plugins-api/internal/repo/jsonfile"
	"github.com/univer-labs/plugins-api/internal/service/templates"
	"github.com/univer-labs/plugins-api/internal/snapshot"
)

type checkResult struct {
	Path    string `json:"path"`
	Exists  bool   `json:"exists"`
	Valid   bool   `json:"valid"`
	Count   int    `json:"count"`
	Problem string `json:"problem,omitempty"`
	// Skipped lists array elements the server ignores because they are not objects.
	Skipped []int `json:"skipped,omitempty"`
}

func newCheckCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Report whether the store file parses and how many templates it holds",
		Long: `Check reads the store file without modifying it. The API server treats an
unreadable file as empty and overwrites it on the next write; check exits
non-zero so the problem can be caught first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res := checkResult{Path: opts.StorePath}
			raw, err := os.ReadFile(opts.StorePath)
			switch {
			case errors.Is(err, fs.ErrNotExist):
				res.Valid = true
			case err != nil:
				return err
			default:
				res.Exists = true
				decoded, decodeErr := jsonfile.Parse(raw)
				switch {
				case decodeErr != nil:
					res.Problem = decodeErr.Error()
				case len(decoded.Skipped) > 0:
					res.Count = len(decoded.Templates)
					res.Skipped = decoded.Skipped
					res.Problem = fmt.Sprintf("elements %v are not template objects", decoded.Skipped)
				default:
					res.Valid = true
					res.Count = len(decoded.Templates)
				}
			}

			if err := writeCheck(cmd.OutOrStdout(), opts.Format, res); err != nil {
				return err
			}
			if !res.Valid {
				return &exitError{code: exitFailure, err: fmt.Errorf("store file %s is corrupt", res.Path)}
			}
			return nil
		},
	}
}

func writeCheck(w io.Writer, format string, res checkResult) error {
	if format == "json" {
		return writeJSON(w, res)
	}
	switch {
	case !res.Exists:
		_, err := fmt.Fprintf(w, "%s: missing (0 templates)\n", res.Path)
		return err
	case !res.Valid:
		_, err := fmt.Fprintf(w, "%s: corrupt: %s\n", res.Path, res.Problem)
		return err
	default:
		_, err := fmt.Fprintf(w, "%s: ok (%d templates)\n", res.Path, res.Count)
		return err
	}
}

func newListCommand(opts *rootOptions) *cobra.Command {
	var filter templates.Filter

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List seed and stored templates, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := jsonfile.New(opts.StorePath, jsonfile.WithLogger(opts.logger(cmd)))
			if err != nil {
				return commandError("%v", err)
			}
			store, err := templates.New(file)
			if err != nil {
				return err
			}
			items, err := store.List(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if opts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), items)
			}
			return writeTemplateTable(cmd.OutOrStdout(), items)
		},
	}

	cmd.Flags().StringVar(&filter.Category, "category", "", "only templates in this category (exact match)")
	cmd.Flags().StringVarP(&filter.Query, "query", "q", "", "case-insensitive substring of the template name")
	return cmd
}

func writeTemplateTable(w io.Writer, items []domain.Template) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCATEGORY\tNAME\tUPDATED")
	for _, t := range items {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", t.ID, t.Category, t.Name, t.UpdatedAt.UTC().Format(time.RFC3339))
	}
	return tw.Flush()
}

func newExportCommand(opts *rootOptions) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Copy the stored templates to another file",
		Long: `Export writes the persisted templates (seeds excluded) to --out, replacing
it atomically. A corrupt store file exports as an empty collection.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if out == "" {
				return commandError("--out is required")
			}
			file, err := jsonfile.New(opts.StorePath, jsonfile.WithLogger(opts.logger(cmd)))
			if err != nil {
				return commandError("%v", err)
			}
			items, err := file.Load(cmd.Context())
			if err != nil {
				return err
			}
			dest, err := jsonfile.New(out)
			if err != nil {
				return commandError("%v", err)
			}
			if err := dest.Save(cmd.Context(), items); err != nil {
				return err
			}
			if opts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), map[string]any{"path": dest.Path(), "count": len(items)})
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "exported %d templates to %s\n", len(items), dest.Path())
			return err
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "destination file")
	return cmd
}

func newSnapshotCommand(opts *rootOptions, d deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Work with store snapshots replicated to object storage",
	}
	cmd.AddCommand(newSnapshotPullCommand(opts, d))
	return cmd
}

func newSnapshotPullCommand(opts *rootOptions, d deps) *cobra.Command {
	var key string

	cmd := &cobra.Command{
		Use:   "pull",
		Short: "Restore a snapshot over the store file",
		Long: `Pull downloads a snapshot (the latest one unless --key is given), checks
that it is a valid template collection and atomically replaces the store
file with it. Stop the API server first: a running server keeps no cache,
but a write racing the restore would be lost.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, prefix, err := d.openSnapshots()
			if err != nil {
				return commandError("snapshot storage: %v", err)
			}
			n, err := snapshot.Pull(cmd.Context(), store, prefix, key, opts.StorePath)
			if err != nil {
				return err
			}
			if key == "" {
				key = snapshot.LatestKey(prefix)
			}
			if opts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), map[string]any{"key": key, "path": opts.StorePath, "count": n})
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "restored %d templates from %s to %s\n", n, key, opts.StorePath)
			return err
		},
	}

	cmd.Flags().StringVar(&key, "key", "", "object key of the snapshot (default: latest)")
	return cmd
}

func newOpenAPICommand() *cobra.Command {
	var asYAML bool

	cmd := &cobra.Command{
		Use:   "openapi",
		Short: "Print the API's OpenAPI document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if asYAML {
				_, err := cmd.OutOrStdout().Write(apispec.YAML())
				return err
			}
			doc, err := apispec.Load(cmd.Context())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(doc.JSON()))
			return err
		},
	}

	cmd.Flags().BoolVar(&asYAML, "yaml", false, "print the YAML source instead of JSON")
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
