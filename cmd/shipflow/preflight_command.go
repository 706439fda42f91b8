package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"shipflow/internal/preflight"
)

func newPreflightCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "preflight",
		Short: "Check directories, database, catalog, and collaborator endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			// A database failure is reported as a failed check rather than aborting.
			db, _ := ctx.database()
			results := preflight.RunAll(cmd.Context(), cfg, db)
			failed := preflight.Failed(results)

			if jsonOut {
				if err := writeJSON(cmd, results); err != nil {
					return err
				}
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), renderPreflight(results, newRenderer(cmd.OutOrStdout())))
			}
			if len(failed) > 0 {
				names := make([]string, 0, len(failed))
				for _, r := range failed {
					names = append(names, r.Name)
				}
				return fmt.Errorf("preflight failed: %s", strings.Join(names, ", "))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func renderPreflight(results []preflight.Result, r renderer) string {
	lines := r.sectionHeader("Preflight")
	for _, result := range results {
		kind := statusOK
		if !result.Passed {
			kind = statusError
		}
		lines = append(lines, r.statusLine(result.Name, kind, result.Detail))
	}
	return strings.Join(lines, "\n")
}
