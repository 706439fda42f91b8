package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"shipflow/internal/daemon"
	"shipflow/internal/logging"
	"shipflow/internal/observability"
	"shipflow/internal/preflight"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var skipPreflight bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the lifecycle engine, dispatchers, and monitoring API in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemonProcess(cmd.Context(), ctx, skipPreflight)
		},
	}
	cmd.Flags().BoolVar(&skipPreflight, "skip-preflight", false, "Start without running preflight checks")
	return cmd
}

func runDaemonProcess(cmdCtx context.Context, ctx *commandContext, skipPreflight bool) error {
	if cmdCtx == nil {
		cmdCtx = context.Background()
	}
	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := ctx.ensureConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, closeLog, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = closeLog() }()

	db, err := ctx.database()
	if err != nil {
		logger.Error("open database", logging.Error(err))
		return err
	}

	if !skipPreflight {
		for _, failed := range preflight.Failed(preflight.RunAll(signalCtx, cfg, db)) {
			logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
				logging.String("check", failed.Name),
				logging.String("detail", failed.Detail),
				logging.ErrorHint("run shipflow preflight for the full report"),
			)
		}
	}

	shutdownTelemetry := observability.Setup(cfg.Telemetry, 0, logger)
	defer func() {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer flushCancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Warn("telemetry shutdown failed", logging.Error(err))
		}
	}()

	d, err := daemon.New(cfg, db, logger)
	if err != nil {
		logger.Error("create daemon", logging.Error(err))
		return err
	}
	if err := d.Run(signalCtx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("daemon exited", logging.Error(err))
		return err
	}
	return nil
}
