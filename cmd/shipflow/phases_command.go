package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newPhasesCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "phases",
		Short: "Show the shipment count per lifecycle phase",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := ctx.shipmentService()
			if err != nil {
				return err
			}
			resp, err := svc.Phases(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd, resp)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderPhases(resp))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}
