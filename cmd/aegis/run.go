package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"aegis-hq/firewall/pkg/audit"
	"aegis-hq/firewall/pkg/audit/integrity"
	"aegis-hq/firewall/pkg/audit/sink"
	"aegis-hq/firewall/pkg/audit/storage"
	"aegis-hq/firewall/pkg/cli"
	"aegis-hq/firewall/pkg/config"
	"aegis-hq/firewall/pkg/learning"
	"aegis-hq/firewall/pkg/policy"
	"aegis-hq/firewall/pkg/server"
	"aegis-hq/firewall/pkg/service"
	"aegis-hq/firewall/pkg/telemetry/health"
	"aegis-hq/firewall/pkg/telemetry/logging"
	"aegis-hq/firewall/pkg/telemetry/metrics"
	"aegis-hq/firewall/pkg/telemetry/tracing"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	mode          string
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the firewall API server",
	Long: `Start the firewall API server with the specified configuration.

The server evaluates AI outputs over HTTP, records every verdict in the audit
trail, verifies the audit chain on schedule and tunes thresholds from reported
human decisions.

Examples:
  # Start with default config
  aegis run

  # Start with custom config
  aegis run --config /etc/aegis/config.yaml

  # Override listen address and mode
  aegis run --listen 0.0.0.0:8700 --mode HEALTHCARE

  # Validate config without starting server
  aegis run --dry-run

Sending SIGHUP re-reads the config file: a changed policy.mode is activated
and the policy pack is reloaded. Other settings need a restart.`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().StringVar(&runFlags.mode, "mode", "", "override the startup policy mode")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting server")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Apply flag overrides
	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}
	if runFlags.mode != "" {
		cfg.Policy.Mode = runFlags.mode
	}
	if err := config.Validate(cfg); err != nil {
		return cli.NewConfigError("flags", err.Error())
	}

	logger, err := logging.New(logging.FromConfig(cfg.Telemetry.Logging))
	if err != nil {
		return cli.NewConfigError("telemetry.logging", err.Error())
	}
	logger.Install()

	eng, err := buildEngine(cfg)
	if err != nil {
		return err
	}
	store, err := buildPolicyStore(cfg)
	if err != nil {
		return err
	}

	if runFlags.dryRun {
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Configuration valid (mode %s, %d policy modes)\n",
			store.Snapshot().Mode, len(store.Modes()))
		return nil
	}

	ctx, stop := cli.SetupSignalHandler(cmd.Context())
	defer stop()

	fmt.Fprintf(cmd.OutOrStdout(), "Aegis v%s\n", Version)
	slog.Info("Starting decision firewall",
		"version", Version,
		"config", cfgFile,
		"mode", store.Snapshot().Mode,
	)

	tracer, err := tracing.New(&cfg.Telemetry.Tracing, Version)
	if err != nil {
		return cli.NewConfigError("telemetry.tracing", err.Error())
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracer.Shutdown(shutdownCtx); err != nil {
			slog.Warn("Tracer shutdown failed", "error", err)
		}
	}()

	var collector *metrics.Collector
	if cfg.Telemetry.Metrics.Enabled {
		collector = metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
	}

	checker := health.New(cfg.Telemetry.Health.CheckTimeout)
	checker.RegisterCheck("policy", health.PolicyCheck(store))

	// Audit trail.
	auditStore, err := openAuditStorage(cfg)
	if err != nil {
		return err
	}
	defer auditStore.Close()
	if sq, ok := auditStore.(*storage.SQLiteStorage); ok {
		checker.RegisterCheck("audit_db", health.PingCheck(sq.DB()))
	}
	if err := replaySpill(ctx, cfg, auditStore); err != nil {
		return err
	}

	snk, err := sink.New(ctx, auditStore, sinkConfig(cfg))
	if err != nil {
		return fmt.Errorf("failed to start audit sink: %w", err)
	}
	defer func() {
		if err := snk.Close(); err != nil {
			slog.Error("Audit sink close failed", "error", err)
		}
	}()
	checker.RegisterCheck("audit_backlog", health.BacklogCheck(func() int { return snk.Stats().Pending }, cfg.Telemetry.Health.MaxAuditBacklog))

	scheduler, err := integrity.NewScheduler(auditStore, integrityConfig(cfg))
	if err != nil {
		return cli.NewConfigError("audit.integrity", err.Error())
	}
	scheduler.OnVerify = func(report *audit.VerifyReport, err error) {
		if err == nil {
			collector.RecordChainVerification(report.Valid, report.Checked)
		}
	}
	if err := scheduler.Start(ctx); err != nil {
		return err
	}
	defer scheduler.Stop()
	checker.RegisterCheck("audit_chain", health.ChainCheck(scheduler.LastReport))

	// Outcome learning.
	learnStore, err := openLearningStore(cfg)
	if err != nil {
		return err
	}
	learner, err := learning.New(learnerConfig(cfg), store, learnStore)
	if err != nil {
		learnStore.Close()
		return cli.NewConfigError("learning", err.Error())
	}
	defer learner.Close()
	if err := learner.Restore(ctx); err != nil {
		slog.Warn("Failed to restore learned thresholds", "error", err)
	}
	learner.Start(ctx)

	svc, err := service.New(service.Options{
		Engine:  eng,
		Policy:  store,
		Sink:    snk,
		Audit:   auditStore,
		Learner: learner,
		Metrics: collector,
		Tracer:  tracer,
	})
	if err != nil {
		return err
	}

	srv, err := server.New(cfg.Server, server.Options{
		Service:     svc,
		Audit:       auditStore,
		Verify:      scheduler.VerifyNow,
		Metrics:     collector,
		MetricsPath: cfg.Telemetry.Metrics.Path,
		Tracer:      tracer,
		Health:      checker,
		Version:     Version,
		Commit:      GitCommit,
		BuildTime:   BuildDate,
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Start(gctx) })
	g.Go(func() error { return svc.Run(gctx) })
	var watcher *policy.Watcher
	if cfg.Policy.PackPath != "" {
		watcher, err = policy.NewWatcher(policy.WatcherConfig{
			Path:             cfg.Policy.PackPath,
			DebounceInterval: cfg.Policy.DebounceInterval,
		}, store, nil)
		if err != nil {
			return err
		}
		watcher.OnReload = func(err error) { collector.RecordPolicyReload(err == nil) }
		if cfg.Policy.Watch {
			g.Go(func() error { return watcher.Watch(gctx) })
		} else {
			defer watcher.Close()
		}
	}
	g.Go(func() error {
		reload := cli.NotifyReload(gctx)
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-reload:
				if err := reloadConfig(svc, watcher); err != nil {
					slog.Error("Configuration reload failed", "error", err)
				}
			}
		}
	})

	fmt.Fprintf(cmd.OutOrStdout(), "✓ Server listening on %s\n", cfg.Server.ListenAddress)
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Health endpoint: http://%s/health\n", cfg.Server.ListenAddress)
	if collector.Enabled() {
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Metrics endpoint: http://%s%s\n", cfg.Server.ListenAddress, cfg.Telemetry.Metrics.Path)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "\nPress Ctrl+C to stop")

	if err := g.Wait(); err != nil {
		return cli.NewCommandError("run", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "✓ Server stopped")
	return nil
}

// reloadConfig re-reads the config file and applies the settings that can
// change at runtime: the active policy mode and the policy pack. A file that
// fails to load or validate changes nothing.
func reloadConfig(svc *service.Service, watcher *policy.Watcher) error {
	prev, next, err := config.Reload(cfgFile)
	if err != nil {
		return err
	}
	slog.Info("Configuration reloaded", "config", cfgFile)

	if watcher != nil {
		if err := watcher.Reload(); err != nil {
			return err
		}
	}
	if prev == nil || policy.ParseMode(next.Policy.Mode) != policy.ParseMode(prev.Policy.Mode) {
		if _, err := svc.SetPolicyMode(next.Policy.Mode); err != nil {
			return err
		}
	}
	return nil
}

// replaySpill re-appends records spilled by an earlier shutdown. The spill
// file is truncated once every record is stored.
func replaySpill(ctx context.Context, cfg *config.Config, store audit.Storage) error {
	path := cfg.Audit.Sink.SpillPath
	if path == "" {
		return nil
	}
	records, err := sink.ReadSpill(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read audit spill: %w", err)
	}
	if len(records) == 0 {
		return nil
	}
	n, err := sink.Replay(ctx, store, records)
	if err != nil {
		return fmt.Errorf("failed to replay audit spill after %d records: %w", n, err)
	}
	slog.Info("Replayed spilled audit records", "count", n, "path", path)
	return os.Truncate(path, 0)
}
