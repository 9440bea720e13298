package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// version is set with -ldflags "-X main.version=...".
var version = "dev"

var (
	verbose bool
	logger  *zap.Logger
	cfg     Config
)

var rootCmd = &cobra.Command{
	Use:   "cropwise",
	Short: "Farm and crop state service",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg = mustConfig()
		config := zap.NewProductionConfig()
		if verbose || cfg.LogLevel == "debug" {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = config.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("cropwise", version)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	serveCmd.Flags().String("port", "", "listen port (overrides PORT)")
	rootCmd.AddCommand(serveCmd, versionCmd)
}

func serve(cmd *cobra.Command) error {
	ctx := cmd.Context()
	port, _ := cmd.Flags().GetString("port")
	if port == "" {
		port = cfg.Port
	}
	if port == "" {
		port = "8080"
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	app, err := newApp(initCtx, cfg, logger)
	cancel()
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := app.close(closeCtx); err != nil {
			logger.Warn("shutdown", zap.Error(err))
		}
	}()
	app.cron.Start()

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           app.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		// event streams end when the process is signalled
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("cropwise API listening", zap.String("addr", srv.Addr), zap.String("backend", cfg.Backend))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
