package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"aquasense/assess"
	"aquasense/broker"
	"aquasense/config"
	qhttp "aquasense/http"
	"aquasense/logging"
	"aquasense/monitoring"
	"aquasense/records"
)

func newServeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve assessments over HTTP (and NATS when configured)",
		Long: `Load the classifier and the record store, then serve the REST API,
the live record feed and, when nats.url is set, the NATS request subject.

Refuses to start when the classifier artifact cannot be loaded.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
}

func runServe(parent context.Context, opts *options) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, logger, err := opts.load()
	if err != nil {
		return err
	}
	defer logger.Sync()

	pred, err := openPredictor(cfg, logger)
	if err != nil {
		logger.Error("refusing to serve", zap.Error(err))
		return err
	}

	store, err := openStore(cfg, logger)
	if err != nil {
		return fmt.Errorf("open record store: %w", err)
	}
	defer store.Close()

	hub := monitoring.NewHub(logger.Logger)
	go hub.Run(ctx)
	metrics := monitoring.NewMetricsCollector()

	svc := assess.NewService(pred, records.WithListener(store, hub.Publish), logger.Logger, assess.WithCounter(metrics))

	server := qhttp.NewServer(qhttp.ServerConfig{
		Port:           cfg.HTTP.Port,
		Timeout:        cfg.HTTP.Timeout,
		MaxBodyBytes:   cfg.HTTP.MaxBodyBytes,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
	}, qhttp.NewHandlers(svc, hub, metrics, logger.Logger), logger.Logger)

	errCh := make(chan error, 2)
	go func() { errCh <- server.Start() }()

	if cfg.NATS.URL != "" {
		nc := broker.NewService(cfg.NATS, svc, logger.Logger)
		if err := nc.Connect(); err != nil {
			server.Stop(context.Background())
			return err
		}
		go func() { errCh <- nc.Start(ctx) }()
	}

	if path := opts.configPath(); path != "" {
		watchConfig(ctx, path, logger)
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			logger.Error("transport stopped", zap.Error(err))
			server.Stop(context.Background())
			return err
		}
	}
	stop()
	return server.Stop(context.Background())
}

// watchConfig applies log level changes without a restart. Other settings
// need one.
func watchConfig(ctx context.Context, path string, logger *logging.Logger) {
	w, err := config.NewWatcher(path, logger.Logger)
	if err != nil {
		logger.Warn("config hot reload disabled", zap.Error(err))
		return
	}
	go w.Run(ctx, func(cfg *config.Config) {
		if cfg.Log.Level == "" || cfg.Log.Level == logger.Level() {
			return
		}
		if err := logger.SetLevel(cfg.Log.Level); err != nil {
			logger.Warn("ignoring log level from config", zap.Error(err))
			return
		}
		logger.Info("log level changed", zap.String("level", cfg.Log.Level))
	})
}
