// Package cli is the aquasense command tree.
package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"aquasense/config"
	"aquasense/logging"
	"aquasense/prediction"
	"aquasense/records"
)

const defaultConfigFile = "config.yaml"

type options struct {
	cfgFile  string
	logLevel string
}

// NewRootCmd builds a fresh command tree.
func NewRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "aquasense",
		Short: "aquasense: water quality assessment",
		Long: `aquasense classifies water samples from four readings (pH, TDS,
turbidity, temperature) with a trained decision tree and keeps every
assessment in an append-only record log.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&opts.cfgFile, "config", "c", "", "config file (default: ./config.yaml if present)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override log.level from the config")

	root.AddCommand(
		newServeCmd(opts),
		newPredictCmd(opts),
		newHistoryCmd(opts),
		newGuidanceCmd(),
	)
	return root
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// configPath is the explicit --config, or ./config.yaml when it exists.
func (o *options) configPath() string {
	if o.cfgFile != "" {
		return o.cfgFile
	}
	if _, err := os.Stat(defaultConfigFile); err == nil {
		return defaultConfigFile
	}
	return ""
}

func (o *options) load() (*config.Config, *logging.Logger, error) {
	cfg, err := config.Load(o.configPath())
	if err != nil {
		return nil, nil, err
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func openPredictor(cfg *config.Config, logger *logging.Logger) (*prediction.Service, error) {
	pred, err := prediction.Open(cfg.Model.Type, cfg.Model.Path,
		prediction.WithCache(cfg.Prediction.CacheSize),
		prediction.WithLogger(logger.Logger))
	if errors.Is(err, prediction.ErrClassifierUnavailable) {
		return nil, fmt.Errorf("%w (train one with cmd/train_model)", err)
	}
	return pred, err
}

func openStore(cfg *config.Config, logger *logging.Logger) (records.Store, error) {
	return records.Open(records.Config{
		Driver:           cfg.Store.Driver,
		Path:             cfg.Store.Path,
		CorruptionPolicy: records.CorruptionPolicy(cfg.Store.CorruptionPolicy),
	}, logger.Logger)
}
