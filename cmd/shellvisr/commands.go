package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/loykin/shellvisr"
	"github.com/loykin/shellvisr/internal/config"
	"github.com/loykin/shellvisr/internal/history/factory"
	"github.com/loykin/shellvisr/internal/logger"
)

func buildRoot() *cobra.Command {
	root := &cobra.Command{
		Use:           "shellvisr",
		Short:         "Framework-shell supervisor",
		Long:          "shellvisr spawns, tracks and controls long-lived background shells,\nsurviving restarts of the supervisor itself.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(createServeCommand())
	api := &APIFlags{}
	root.PersistentFlags().StringVar(&api.URL, "api-url", "http://127.0.0.1:8951/api", "daemon API base URL")
	root.PersistentFlags().StringVar(&api.Key, "api-key", "", "shared secret for mutating requests")
	root.PersistentFlags().DurationVar(&api.Timeout, "api-timeout", 30*time.Second, "request timeout")
	root.AddCommand(
		createSpawnCommand(api),
		createListCommand(api),
		createGetCommand(api),
		createStopCommand(api),
		createRestartCommand(api),
		createRemoveCommand(api),
		createStatsCommand(api),
		createAttachCommand(api),
	)
	return root
}

func createServeCommand() *cobra.Command {
	f := &ServeFlags{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the supervisor with its HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(f)
		},
	}
	cmd.Flags().StringVarP(&f.ConfigPath, "config", "c", "", "TOML config file")
	cmd.Flags().StringVar(&f.Listen, "listen", "", "HTTP listen address (overrides config)")
	cmd.Flags().StringVar(&f.BaseDir, "base-dir", "", "state directory (overrides config)")
	cmd.Flags().BoolVar(&f.Daemonize, "daemonize", false, "detach and run in the background")
	cmd.Flags().StringVar(&f.PIDFile, "pidfile", "", "write the daemon pid here")
	cmd.Flags().StringVar(&f.LogFile, "logfile", "", "daemon stdout/stderr log")
	return cmd
}

func runServe(f *ServeFlags) error {
	cfg, err := config.Load(f.ConfigPath)
	if err != nil {
		return err
	}
	if f.Listen != "" {
		cfg.Listen = f.Listen
	}
	if f.BaseDir != "" {
		cfg.BaseDir = f.BaseDir
	}

	if f.Daemonize {
		if err := daemonize(f.PIDFile, f.LogFile); err != nil {
			return err
		}
	}

	logger.Setup(cfg.Log)

	mgr, err := shellvisr.New(shellvisr.Config{
		BaseDir:      cfg.BaseDir,
		SandboxRoot:  cfg.SandboxRoot,
		MaxShells:    cfg.MaxShells,
		GraceTimeout: cfg.GraceTimeout,
		GlobalEnv:    cfg.Env,
	})
	if err != nil {
		return err
	}
	defer mgr.Close()

	if cfg.HistoryDSN != "" {
		sink, err := factory.NewSinkFromDSN(cfg.HistoryDSN)
		if err != nil {
			return fmt.Errorf("history sink: %w", err)
		}
		mgr.SetHistorySinks(sink)
	}

	var metricsSrv *http.Server
	if cfg.MetricsListen != "" {
		if err := shellvisr.RegisterMetricsDefault(); err != nil {
			return err
		}
		collector := mgr.StartResourceCollector(0)
		defer collector.Stop()
		metricsSrv = shellvisr.NewMetricsServer(cfg.MetricsListen)
		defer shutdownHTTP(metricsSrv)
	}

	srv, err := shellvisr.NewHTTPServer(cfg.Listen, cfg.APIBase, cfg.APIKey, mgr)
	if err != nil {
		return err
	}
	defer shutdownHTTP(srv)

	slog.Info("shellvisr serving",
		"listen", cfg.Listen, "base", cfg.APIBase,
		"base_dir", mgr.BaseDir(), "run_id", mgr.RunID())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("shutting down", "signal", sig.String())
	if f.PIDFile != "" {
		_ = removePidFile(f.PIDFile)
	}
	return nil
}

func shutdownHTTP(srv *http.Server) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}
