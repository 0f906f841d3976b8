package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"aquasense/assess"
	"aquasense/prediction"
)

func newPredictCmd(opts *options) *cobra.Command {
	var (
		ph, tds, turbidity, temperature string
		noRecord                        bool
	)
	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Classify one water sample and record it",
		Long: `Classify one sample from its four readings and append the result to
the record log.

Examples:
  aquasense predict --ph 7.2 --tds 300 --turbidity 1.2 --temperature 27
  aquasense predict --ph 5.6 --tds 400 --turbidity 2 --temperature 30 --no-record`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			features, err := prediction.ParseFeatures(ph, tds, turbidity, temperature)
			if err != nil {
				return err
			}
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			defer logger.Sync()

			pred, err := openPredictor(cfg, logger)
			if err != nil {
				return err
			}
			store, err := openStore(cfg, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			res, err := assess.NewService(pred, store, logger.Logger).Assess(cmd.Context(), features, !noRecord)
			if err != nil {
				return err
			}
			printResult(cmd, res)
			if res.StorageErr != nil {
				return fmt.Errorf("result not recorded: %w", res.StorageErr)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&ph, "ph", "", "pH reading")
	cmd.Flags().StringVar(&tds, "tds", "", "total dissolved solids (ppm)")
	cmd.Flags().StringVar(&turbidity, "turbidity", "", "turbidity (NTU)")
	cmd.Flags().StringVar(&temperature, "temperature", "", "temperature (°C)")
	cmd.Flags().BoolVar(&noRecord, "no-record", false, "classify without appending to the record log")
	return cmd
}

func printResult(cmd *cobra.Command, res assess.Result) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Predicted water quality: %s\n", styleLabel(res.Prediction))
	for _, a := range res.Advisories {
		fmt.Fprintf(out, "  %s %s\n", styleAdvisory.Render("!"), a.Message)
	}
	if res.StorageErr != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: prediction was not saved: %v\n", res.StorageErr)
	}
}
