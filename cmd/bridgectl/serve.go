package main

import (
	"context"
	"io"
	"time"

	"github.com/danmuck/edgebridge/internal/bridge"
	"github.com/danmuck/edgebridge/internal/observability"
	"github.com/danmuck/edgebridge/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

type serveOptions struct {
	configPath string
	envFile    string
	listenAddr string
	metrics    string
	redisAddr  string
	noConsole  bool
}

func newServeCmd() *cobra.Command {
	var opts serveOptions
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Accept device connections and broadcast console commands",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(cmd, opts)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg, cmd.InOrStdin())
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "path to bridge TOML config")
	flags.StringVar(&opts.envFile, "env", ".env", "path to .env file (ignored if missing)")
	flags.StringVarP(&opts.listenAddr, "listen", "l", "", "device listen address (overrides config)")
	flags.StringVar(&opts.metrics, "metrics", "", "Prometheus listen address (overrides config)")
	flags.StringVar(&opts.redisAddr, "redis", "", "Redis address for the telemetry feed (overrides config)")
	flags.BoolVar(&opts.noConsole, "no-console", false, "do not read operator commands from stdin")
	return cmd
}

// resolveConfig applies defaults < file < env < flags.
func resolveConfig(cmd *cobra.Command, opts serveOptions) (runtimeConfig, error) {
	if err := loadDotEnv(opts.envFile); err != nil {
		return runtimeConfig{}, err
	}
	cfg, err := loadRuntimeConfig(opts.configPath)
	if err != nil {
		return runtimeConfig{}, err
	}
	applyEnv(&cfg)
	flags := cmd.Flags()
	if flags.Changed("listen") {
		cfg.Service.ListenAddr = opts.listenAddr
	}
	if flags.Changed("metrics") {
		cfg.MetricsAddr = opts.metrics
	}
	if flags.Changed("redis") {
		cfg.Telemetry.RedisAddr = opts.redisAddr
	}
	if opts.noConsole {
		cfg.ConsoleEnabled = false
	}
	if err := cfg.validate(); err != nil {
		return runtimeConfig{}, err
	}
	return cfg, nil
}

func runServe(ctx context.Context, cfg runtimeConfig, stdin io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	logger := observability.Logger("bridgectl")

	metrics := observability.NewMetrics()
	opts := []bridge.Option{
		bridge.WithRecorder(metrics),
		bridge.WithFrameSink(metrics),
	}
	if cfg.ConsoleEnabled {
		opts = append(opts, bridge.WithConsole(stdin))
	}

	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		if err := metrics.Register(reg); err != nil {
			return err
		}
		srv := observability.NewMetricsServer(cfg.MetricsAddr, reg)
		go func() {
			if err := srv.ListenAndServe(ctx); err != nil {
				logger.Error().Err(err).Str("addr", cfg.MetricsAddr).Msg("metrics server stopped")
			}
		}()
	}

	if cfg.Telemetry.Enabled() {
		pub, err := telemetry.NewRedisPublisher(cfg.Telemetry)
		if err != nil {
			return err
		}
		defer func() {
			cancel()
			_ = pub.Close()
		}()
		pingCtx, pingCancel := context.WithTimeout(ctx, 2*time.Second)
		if err := pub.Ping(pingCtx); err != nil {
			logger.Warn().Err(err).Str("redis", cfg.Telemetry.RedisAddr).Msg("telemetry redis unreachable, publishing best effort")
		}
		pingCancel()
		go pub.Run(ctx)
		opts = append(opts, bridge.WithFrameSink(pub))
	}

	logger.Info().
		Str("listen", cfg.Service.ListenAddr).
		Bool("console", cfg.ConsoleEnabled).
		Str("metrics", cfg.MetricsAddr).
		Bool("telemetry", cfg.Telemetry.Enabled()).
		Msg("bridgectl starting")
	return bridge.NewService(cfg.Service, opts...).Run(ctx)
}
