package cli

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

func newHistoryCmd(opts *options) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List every recorded assessment, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			defer logger.Sync()

			store, err := openStore(cfg, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			history, err := store.LoadAll(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "    ")
				return enc.Encode(history)
			}
			return renderHistory(cmd.OutOrStdout(), history)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the records as JSON")
	return cmd
}
