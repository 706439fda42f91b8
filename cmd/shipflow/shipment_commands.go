package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"shipflow/internal/api"
	"shipflow/internal/shipment"
)

func newShipmentCommand(ctx *commandContext) *cobra.Command {
	shipmentCmd := &cobra.Command{
		Use:     "shipment",
		Aliases: []string{"shp"},
		Short:   "Create, update, and inspect shipments",
	}

	shipmentCmd.AddCommand(newShipmentAddCommand(ctx))
	shipmentCmd.AddCommand(newShipmentItemsCommand(ctx))
	shipmentCmd.AddCommand(newShipmentHoldCommand(ctx))
	shipmentCmd.AddCommand(newShipmentSessionCommand(ctx))
	shipmentCmd.AddCommand(newShipmentSignalCommand(ctx))
	shipmentCmd.AddCommand(newShipmentWakeCommand(ctx))
	shipmentCmd.AddCommand(newShipmentShowCommand(ctx))
	shipmentCmd.AddCommand(newShipmentHistoryCommand(ctx))

	return shipmentCmd
}

// mutateShipment applies fn and flags the shipment for evaluation on the
// next engine tick.
func mutateShipment(cmd *cobra.Command, ctx *commandContext, id string, fn func(context.Context, *shipment.Store) error) error {
	store, err := ctx.store()
	if err != nil {
		return err
	}
	if err := fn(cmd.Context(), store); err != nil {
		return err
	}
	return store.RequestWake(cmd.Context(), id)
}

func newShipmentAddCommand(ctx *commandContext) *cobra.Command {
	var (
		orderNumber string
		hold        string
		items       []string
	)

	cmd := &cobra.Command{
		Use:   "add <id>",
		Short: "Create or refresh a shipment from the order system",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			holdState, ok := shipment.ParseHoldState(strings.TrimSpace(hold))
			if !ok {
				return fmt.Errorf("unknown hold state %q (want on_hold, pending, or released)", hold)
			}
			lineItems, err := parseLineItems(items)
			if err != nil {
				return err
			}
			id := strings.TrimSpace(args[0])
			var created *shipment.Shipment
			err = mutateShipment(cmd, ctx, id, func(c context.Context, store *shipment.Store) error {
				if created, err = store.Upsert(c, shipment.Ingest{ID: id, OrderNumber: strings.TrimSpace(orderNumber), HoldState: holdState}); err != nil {
					return err
				}
				if len(lineItems) > 0 {
					return store.SetLineItems(c, id, lineItems)
				}
				return nil
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Shipment %s recorded (phase %s, hold %s, %d line items)\n",
				created.ID, created.Phase, holdState, max(len(lineItems), len(created.LineItems)))
			return nil
		},
	}
	cmd.Flags().StringVar(&orderNumber, "order", "", "Order number")
	cmd.Flags().StringVar(&hold, "hold", string(shipment.HoldPending), "Hold state: on_hold, pending, or released")
	cmd.Flags().StringSliceVar(&items, "item", nil, "Line item as SKU or SKU:QTY (repeatable)")
	return cmd
}

func newShipmentItemsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "items <id> <SKU[:QTY]> [SKU[:QTY]...]",
		Short: "Replace a shipment's ingest line items",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := parseLineItems(args[1:])
			if err != nil {
				return err
			}
			id := args[0]
			if err := mutateShipment(cmd, ctx, id, func(c context.Context, store *shipment.Store) error {
				return store.SetLineItems(c, id, items)
			}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Shipment %s now has %d line items\n", id, len(items))
			return nil
		},
	}
}

func newShipmentHoldCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "hold <id> <on_hold|pending|released>",
		Short: "Record the order system's hold state",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			hold, ok := shipment.ParseHoldState(args[1])
			if !ok {
				return fmt.Errorf("unknown hold state %q", args[1])
			}
			id := args[0]
			if err := mutateShipment(cmd, ctx, id, func(c context.Context, store *shipment.Store) error {
				return store.RecordHold(c, id, hold)
			}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Shipment %s hold is %s\n", id, hold)
			return nil
		},
	}
}

func newShipmentSessionCommand(ctx *commandContext) *cobra.Command {
	var (
		sessionID string
		spot      int
		state     string
	)

	cmd := &cobra.Command{
		Use:   "session <id>",
		Short: "Record the picking-session assignment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionState, ok := shipment.ParseSessionState(strings.TrimSpace(state))
			if !ok {
				return fmt.Errorf("unknown session state %q", state)
			}
			id := args[0]
			update := shipment.SessionUpdate{SessionID: strings.TrimSpace(sessionID), SpotNumber: spot, State: sessionState}
			if err := mutateShipment(cmd, ctx, id, func(c context.Context, store *shipment.Store) error {
				return store.RecordSession(c, id, update)
			}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Shipment %s session %s spot %d (%s)\n", id, update.SessionID, update.SpotNumber, sessionState)
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionID, "session-id", "", "Picking session id")
	cmd.Flags().IntVar(&spot, "spot", 0, "Spot number inside the session")
	cmd.Flags().StringVar(&state, "state", string(shipment.SessionNew), "Session state: new, active, inactive, readyToShip, closed")
	return cmd
}

func newShipmentSignalCommand(ctx *commandContext) *cobra.Command {
	var (
		detail string
		at     string
	)

	names := make([]string, 0, len(shipment.Signals))
	for _, s := range shipment.Signals {
		names = append(names, string(s))
	}

	cmd := &cobra.Command{
		Use:       "signal <id> <signal>",
		Short:     "Record a carrier, session, or order event",
		Long:      "Record an external event. Signals: " + strings.Join(names, ", "),
		Args:      cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			signal, ok := shipment.ParseSignal(args[1])
			if !ok {
				return fmt.Errorf("unknown signal %q (want one of %s)", args[1], strings.Join(names, ", "))
			}
			when := time.Now()
			if strings.TrimSpace(at) != "" {
				parsed, err := time.Parse(time.RFC3339, strings.TrimSpace(at))
				if err != nil {
					return fmt.Errorf("--at: %w", err)
				}
				when = parsed
			}
			id := args[0]
			if err := mutateShipment(cmd, ctx, id, func(c context.Context, store *shipment.Store) error {
				return store.RecordSignal(c, id, signal, when, detail)
			}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Shipment %s: %s recorded\n", id, signal)
			return nil
		},
	}
	cmd.Flags().StringVar(&detail, "detail", "", "Description for picking_issue and problem signals")
	cmd.Flags().StringVar(&at, "at", "", "Event time (RFC3339, default now)")
	return cmd
}

func newShipmentWakeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "wake <id>",
		Short: "Ask the engine to re-evaluate a shipment on its next tick",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			id := args[0]
			out := cmd.OutOrStdout()
			if client, err := newAPIClient(cfg); err == nil {
				if err := client.wake(cmd.Context(), id); err == nil {
					fmt.Fprintf(out, "Shipment %s woken via daemon\n", id)
					return nil
				} else if isAPIStatus(err, http.StatusNotFound) {
					return fmt.Errorf("shipment %s not found", id)
				}
			}
			store, err := ctx.store()
			if err != nil {
				return err
			}
			if err := store.RequestWake(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(out, "Shipment %s flagged for the next tick\n", id)
			return nil
		},
	}
}

func newShipmentShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a shipment and its decisions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := ctx.shipmentService()
			if err != nil {
				return err
			}
			view, err := svc.Describe(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd, view)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderShipment(view))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func newShipmentHistoryCommand(ctx *commandContext) *cobra.Command {
	var (
		limit   int
		jsonOut bool
	)

	cmd := &cobra.Command{
		Use:   "history <id>",
		Short: "Show a shipment's phase transitions, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := ctx.shipmentService()
			if err != nil {
				return err
			}
			history, err := svc.History(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd, history)
			}
			if len(history) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No transitions recorded")
				return nil
			}
			spec := tableSpec{headers: []string{"At", "From", "To", "Reasons"}}
			for _, h := range history {
				spec.rows = append(spec.rows, []string{h.At, h.From, h.To, strings.Join(h.Reasons, ", ")})
			}
			fmt.Fprintln(cmd.OutOrStdout(), spec.render())
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum transitions (0 for all)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

// parseLineItems reads "SKU" or "SKU:QTY" arguments.
func parseLineItems(args []string) ([]shipment.LineItem, error) {
	items := make([]shipment.LineItem, 0, len(args))
	for _, arg := range args {
		sku, qtyText, hasQty := strings.Cut(strings.TrimSpace(arg), ":")
		sku = strings.TrimSpace(sku)
		if sku == "" {
			return nil, fmt.Errorf("invalid line item %q: sku is required", arg)
		}
		qty := 1
		if hasQty {
			n, err := strconv.Atoi(strings.TrimSpace(qtyText))
			if err != nil || n <= 0 {
				return nil, fmt.Errorf("invalid line item %q: quantity must be a positive integer", arg)
			}
			qty = n
		}
		items = append(items, shipment.LineItem{SKU: sku, Quantity: qty})
	}
	if len(items) == 0 && len(args) > 0 {
		return nil, errors.New("no line items given")
	}
	return items, nil
}

func renderShipment(v api.ShipmentView) string {
	rows := [][]string{
		{"ID", v.ID},
		{"Order", v.OrderNumber},
		{"Phase", api.PhaseLabel(v.Phase, v.Subphase)},
		{"Hold", fmt.Sprintf("%s (seen on hold: %s)", v.HoldState, yesNo(v.SeenOnHold))},
		{"First Seen", v.FirstSeenAt},
		{"Last Evaluated", v.LastEvaluatedAt},
		{"Hydrated", v.HydratedAt},
		{"Fingerprint", v.Fingerprint},
		{"Packaging", v.PackagingID},
		{"Rate Checked", v.RateCheckedAt},
		{"Session Requested", v.SessionRequestedAt},
	}
	if v.SessionID != "" {
		rows = append(rows, []string{"Session", fmt.Sprintf("%s spot %d (%s)", v.SessionID, v.SpotNumber, v.SessionState)})
	}
	for _, pair := range [][2]string{
		{"Pick Started", v.PickStartedAt},
		{"Pick Ended", v.PickEndedAt},
		{"Picking Issue", v.PickingIssue},
		{"Label Created", v.LabelCreatedAt},
		{"In Transit", v.InTransitAt},
		{"Delivered", v.DeliveredAt},
		{"Cancelled", v.CancelledAt},
		{"Problem", v.Problem},
	} {
		if pair[1] != "" {
			rows = append(rows, []string{pair[0], pair[1]})
		}
	}
	rows = append(rows, []string{"Wake Requested", yesNo(v.WakeRequested)})
	summary := tableSpec{headers: []string{"Field", "Value"}, rows: rows}.render()

	if len(v.LineItems) == 0 {
		return summary + "\nNo line items"
	}
	items := tableSpec{headers: []string{"SKU", "Qty", "Kit", "Category"}, right: []int{1}}
	for _, item := range v.LineItems {
		items.rows = append(items.rows, []string{item.SKU, strconv.Itoa(item.Quantity), yesNo(item.IsKit), item.Category})
	}
	return summary + "\n" + items.render()
}
