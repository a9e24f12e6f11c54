package cli

import (
	"github.com/spf13/cobra"
)

func unhealthyCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "unhealthy",
		Short: "Print positions of trees with unusually low NDRE as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, id, err := root.service()
			if err != nil {
				return err
			}
			resp, err := svc.UnhealthyTrees(cmd.Context(), id)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), resp)
		},
	}
}
