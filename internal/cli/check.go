package cli

import (
	"github.com/spf13/cobra"
)

var checkZonesCmd = &cobra.Command{
	Use:   "check-zones",
	Short: "Run one evaluation pass over fresh demand zones",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().CheckZones(cmd.Context())
	},
}

var checkTradesCmd = &cobra.Command{
	Use:   "check-trades",
	Short: "Run one evaluation pass over open trades",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().CheckTrades(cmd.Context())
	},
}
