package cli

import (
	"github.com/spf13/cobra"
)

func newGuidanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "guidance",
		Short: "Show the recommended range for each reading",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return renderGuidance(cmd.OutOrStdout())
		},
	}
}
