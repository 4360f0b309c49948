package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/LavishGent/routewise/internal/config"
	"github.com/LavishGent/routewise/internal/llm"
	"github.com/LavishGent/routewise/pkg/routewise"
)

const metricsShutdownTimeout = 5 * time.Second

// app carries the persistent flags and what PersistentPreRunE builds from
// them.
type app struct {
	configPath  string
	logLevel    string
	envFile     string
	metricsAddr string

	cfg    *config.Config
	logger *slog.Logger

	// clients replaces the openai-go clients; nil uses the default.
	clients llm.ClientFactory

	metricsSrv *http.Server
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "routewise",
		Short:         "Resilient routing for market-data vendors and LLM providers",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.teardown()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "", "config file (JSON or YAML)")
	flags.StringVar(&a.logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")
	flags.StringVar(&a.envFile, "env-file", "", "dotenv file to load before reading the environment (default .env when present)")
	flags.StringVar(&a.metricsAddr, "metrics-addr", "", "serve Prometheus /metrics on this address while the command runs")

	root.AddCommand(
		newChatCmd(a),
		newModelsCmd(a),
		newVendorsCmd(a),
		newCacheCmd(a),
		newConfigCmd(a),
		newVersionCmd(),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	if err := loadEnvFile(a.envFile); err != nil {
		return err
	}

	cfg, err := config.LoadWithEnv(a.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if a.logLevel != "" {
		cfg.Logging.Level = strings.ToLower(a.logLevel)
	}
	if a.metricsAddr != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Prometheus.Enabled = true
	}

	logger, err := newLogger(cmd.ErrOrStderr(), cfg.Logging)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logger
	return nil
}

func (a *app) teardown() error {
	if a.metricsSrv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
	defer cancel()
	err := a.metricsSrv.Shutdown(ctx)
	a.metricsSrv = nil
	return err
}

// loadEnvFile loads path, or .env when path is empty and the file exists.
// Variables already set in the environment win.
func loadEnvFile(path string) error {
	if path != "" {
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load env file %s: %w", path, err)
		}
		return nil
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

func newLogger(w io.Writer, cfg config.LoggingConfig) (*slog.Logger, error) {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "", "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level %q", cfg.Level)
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

// service builds the facade and, with --metrics-addr, starts serving its
// Prometheus registry.
func (a *app) service() (*routewise.Service, error) {
	svc, err := routewise.New(a.cfg,
		routewise.WithLogger(a.logger),
		routewise.WithClientFactory(a.clients),
	)
	if err != nil {
		return nil, err
	}
	if a.metricsAddr == "" {
		return svc, nil
	}
	h, ok := svc.MetricsHandler()
	if !ok {
		return svc, nil
	}
	if _, err := a.serveMetrics(h); err != nil {
		_ = svc.Close()
		return nil, err
	}
	return svc, nil
}

// serveMetrics serves h on /metrics and returns the bound address.
func (a *app) serveMetrics(h http.Handler) (string, error) {
	ln, err := net.Listen("tcp", a.metricsAddr)
	if err != nil {
		return "", fmt.Errorf("listen on %s: %w", a.metricsAddr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", h)
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	a.metricsSrv = srv

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Warn("Metrics server stopped", "error", err)
		}
	}()
	addr := ln.Addr().String()
	a.logger.Info("Serving metrics", "addr", addr)
	return addr, nil
}
