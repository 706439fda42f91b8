package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"shipflow/internal/api"
	"shipflow/internal/queue"
)

type statusReport struct {
	Daemon    *api.StatusResponse        `json:"daemon,omitempty"`
	DaemonErr string                     `json:"daemonError,omitempty"`
	Queues    map[string]api.QueueCounts `json:"queues"`
	Phases    api.PhasesResponse         `json:"phases"`
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, queue, and shipment status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			report := statusReport{}

			if client, err := newAPIClient(cfg); err != nil {
				report.DaemonErr = err.Error()
			} else if status, err := client.status(cmd.Context()); err != nil {
				report.DaemonErr = err.Error()
			} else {
				report.Daemon = &status
			}

			queueSvc, err := ctx.queueService()
			if err != nil {
				return err
			}
			if report.Queues, err = queueSvc.Stats(cmd.Context()); err != nil {
				return err
			}
			shipmentSvc, err := ctx.shipmentService()
			if err != nil {
				return err
			}
			if report.Phases, err = shipmentSvc.Phases(cmd.Context()); err != nil {
				return err
			}

			if jsonOut {
				return writeJSON(cmd, report)
			}
			fmt.Fprint(cmd.OutOrStdout(), renderStatusReport(report, newRenderer(cmd.OutOrStdout())))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func renderStatusReport(report statusReport, r renderer) string {
	var lines []string
	lines = append(lines, r.sectionHeader("Daemon")...)
	if report.Daemon == nil {
		lines = append(lines, r.statusLine("Daemon", statusWarn, "not reachable ("+report.DaemonErr+")"))
	} else {
		d := report.Daemon
		kind, state := statusOK, "running"
		if !d.Running {
			kind, state = statusWarn, "stopped"
		}
		lines = append(lines, r.statusLine("Daemon", kind, fmt.Sprintf("%s (instance %s)", state, d.InstanceID)))
		engine := "no tick yet"
		if d.Engine.LastTickAt != "" {
			engine = fmt.Sprintf("last tick %s: %d selected, %d transitioned, %d failed",
				d.Engine.LastTickAt, d.Engine.LastTick.Selected, d.Engine.LastTick.Transitioned, d.Engine.LastTick.Failed)
		}
		engineKind := statusOK
		if d.Engine.LastError != "" {
			engineKind = statusError
			engine += "; " + d.Engine.LastError
		}
		lines = append(lines, r.statusLine("Engine", engineKind, engine))
		handlerKind := statusInfo
		if d.ErrorCount > 0 {
			handlerKind = statusWarn
		}
		lines = append(lines, r.statusLine("Handlers", handlerKind,
			fmt.Sprintf("%d processed, %d errors, %d in flight", d.ProcessedCount, d.ErrorCount, d.InflightCount)))
	}

	lines = append(lines, "")
	lines = append(lines, r.sectionHeader("Queues")...)
	lines = append(lines, renderQueueCounts(report.Queues))

	lines = append(lines, "")
	lines = append(lines, r.sectionHeader("Shipments")...)
	lines = append(lines, renderPhases(report.Phases))
	return strings.Join(lines, "\n") + "\n"
}

func renderQueueCounts(counts map[string]api.QueueCounts) string {
	spec := tableSpec{
		headers: []string{"Queue", "Pending", "Leased", "Dead"},
		right:   []int{1, 2, 3},
	}
	for _, name := range queue.Names {
		c, ok := counts[name]
		if !ok {
			continue
		}
		spec.rows = append(spec.rows, []string{name, strconv.Itoa(c.Pending), strconv.Itoa(c.Leased), strconv.Itoa(c.Dead)})
	}
	return spec.render()
}

func renderPhases(resp api.PhasesResponse) string {
	if len(resp.Phases) == 0 {
		return "No shipments"
	}
	spec := tableSpec{
		headers: []string{"Phase", "Count"},
		right:   []int{1},
		footer:  []string{"Total", strconv.Itoa(resp.Total)},
	}
	for _, row := range resp.Phases {
		spec.rows = append(spec.rows, []string{api.PhaseLabel(row.Phase, row.Subphase), strconv.Itoa(row.Count)})
	}
	return spec.render()
}
