package cli

import (
	"github.com/spf13/cobra"

	"zone-alerts/internal/app"
)

var (
	showZones  bool
	showTrades bool
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display tracked zones and trades",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.ShowOptions{
			Zones:  showZones,
			Trades: showTrades,
		}
		if !opts.Zones && !opts.Trades {
			opts.Zones = true
			opts.Trades = true
		}

		return getApp().Show(cmd.Context(), opts)
	},
}

func init() {
	showCmd.Flags().BoolVar(&showZones, "zones", false, "Show fresh demand zones only")
	showCmd.Flags().BoolVar(&showTrades, "trades", false, "Show open trades only")
}
