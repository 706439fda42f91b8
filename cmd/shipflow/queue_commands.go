package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"shipflow/internal/api"
	"shipflow/internal/queue"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the work queues",
	}

	queueCmd.AddCommand(newQueueStatsCommand(ctx))
	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueDeadCommand(ctx))
	queueCmd.AddCommand(newQueueReplayCommand(ctx))
	queueCmd.AddCommand(newQueuePurgeCommand(ctx))

	return queueCmd
}

func newQueueStatsCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show entry counts per queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := ctx.queueService()
			if err != nil {
				return err
			}
			counts, err := svc.Stats(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd, counts)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderQueueCounts(counts))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var (
		states  []string
		limit   int
		jsonOut bool
	)

	cmd := &cobra.Command{
		Use:   "list <queue>",
		Short: "List entries of one queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed := make([]queue.State, 0, len(states))
			for _, raw := range states {
				state, ok := queue.ParseState(strings.TrimSpace(raw))
				if !ok {
					return fmt.Errorf("unknown state %q (want pending, leased, or dead)", raw)
				}
				parsed = append(parsed, state)
			}
			svc, err := ctx.queueService()
			if err != nil {
				return err
			}
			entries, err := svc.List(cmd.Context(), args[0], limit, parsed...)
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd, entries)
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderEntries(entries, false))
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&states, "state", "s", nil, "Filter by state (repeatable)")
	cmd.Flags().IntVar(&limit, "limit", 100, "Maximum entries to list")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

type deadLetterFlags struct {
	reason string
	since  string
	until  string
	limit  int
}

func (f *deadLetterFlags) register(cmd *cobra.Command, defaultLimit int) {
	cmd.Flags().StringVar(&f.reason, "reason", "", "Only entries with this reason")
	cmd.Flags().StringVar(&f.since, "since", "", "Only entries dead at or after this time (RFC3339 or duration like 24h)")
	cmd.Flags().StringVar(&f.until, "until", "", "Only entries dead before this time (RFC3339 or duration like 1h)")
	cmd.Flags().IntVar(&f.limit, "limit", defaultLimit, "Maximum entries")
}

func (f *deadLetterFlags) filter(now time.Time) (queue.DeadLetterFilter, error) {
	filter := queue.DeadLetterFilter{Reason: strings.TrimSpace(f.reason), Limit: f.limit}
	var err error
	if filter.Since, err = parseTimeFlag(f.since, now); err != nil {
		return filter, fmt.Errorf("--since: %w", err)
	}
	if filter.Until, err = parseTimeFlag(f.until, now); err != nil {
		return filter, fmt.Errorf("--until: %w", err)
	}
	return filter, nil
}

func (f *deadLetterFlags) empty() bool {
	return strings.TrimSpace(f.reason) == "" && strings.TrimSpace(f.since) == "" && strings.TrimSpace(f.until) == ""
}

// parseTimeFlag accepts RFC3339 or a Go duration meaning "that long before now".
func parseTimeFlag(value string, now time.Time) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q", value)
	}
	return now.Add(-d), nil
}

func newQueueDeadCommand(ctx *commandContext) *cobra.Command {
	var (
		flags   deadLetterFlags
		jsonOut bool
	)

	cmd := &cobra.Command{
		Use:   "dead <queue>",
		Short: "List dead-lettered entries, most recent first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := flags.filter(time.Now())
			if err != nil {
				return err
			}
			svc, err := ctx.queueService()
			if err != nil {
				return err
			}
			resp, err := svc.DeadLetters(cmd.Context(), args[0], filter)
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd, resp)
			}
			if len(resp.Entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No dead letters")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderEntries(resp.Entries, true))
			return nil
		},
	}
	flags.register(cmd, 100)
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func newQueueReplayCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "replay <queue> <id> [id...]",
		Short: "Return dead entries to pending with attempts reset",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseEntryIDs(args[1:])
			if err != nil {
				return err
			}
			svc, err := ctx.queueService()
			if err != nil {
				return err
			}
			resp, err := svc.Replay(cmd.Context(), api.ReplayRequest{Queue: args[0], IDs: ids})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Replayed %d of %d entries on %s\n", resp.Replayed, resp.Requested, resp.Queue)
			if skipped := int64(resp.Requested) - resp.Replayed; skipped > 0 {
				fmt.Fprintf(out, "%d entries were not dead or already have a live entry for the same shipment and reason\n", skipped)
			}
			return nil
		},
	}
}

func newQueuePurgeCommand(ctx *commandContext) *cobra.Command {
	var (
		flags deadLetterFlags
		all   bool
	)

	cmd := &cobra.Command{
		Use:   "purge <queue>",
		Short: "Delete dead-lettered entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if flags.empty() && !all {
				return errors.New("refusing to purge every dead entry; pass a filter or --all")
			}
			filter, err := flags.filter(time.Now())
			if err != nil {
				return err
			}
			svc, err := ctx.queueService()
			if err != nil {
				return err
			}
			n, err := svc.Purge(cmd.Context(), args[0], filter)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Purged %d dead entries from %s\n", n, args[0])
			return nil
		},
	}
	flags.register(cmd, 0)
	cmd.Flags().BoolVar(&all, "all", false, "Purge every dead entry of the queue")
	return cmd
}

func parseEntryIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid entry id %q", arg)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func renderEntries(entries []api.QueueEntry, dead bool) string {
	spec := tableSpec{right: []int{0, 4}}
	if dead {
		spec.headers = []string{"ID", "Shipment", "Reason", "State", "Attempts", "Dead At", "Last Error"}
	} else {
		spec.headers = []string{"ID", "Shipment", "Reason", "State", "Attempts", "Next Visible", "Last Error"}
	}
	for _, e := range entries {
		when := e.NextVisibleAt
		if dead {
			when = e.DeadAt
		}
		spec.rows = append(spec.rows, []string{
			strconv.FormatInt(e.ID, 10),
			e.ShipmentID,
			e.Reason,
			e.State,
			strconv.Itoa(e.Attempts),
			when,
			firstLine(e.LastError),
		})
	}
	return spec.render()
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
