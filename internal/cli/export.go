package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/ispwatch/internal/wire"
)

// ExportCmd returns the export command
func ExportCmd() *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Print one day's measurements as JSON",
		Long: `Print the measurements of one period as a versioned JSON document.

This is what a filing host runs over ssh to pull measurements from the
measurement host. The history database is opened read-only.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := wire.ExportService()
			if err != nil {
				return err
			}
			data, err := svc.ExportPeriod(cmd.Context(), date)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return err
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "Period: YYYY-MM-DD, today or yesterday (default today)")

	return cmd
}
