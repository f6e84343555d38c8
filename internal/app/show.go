package app

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"
)

// Show prints the currently tracked records.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	if opts.Zones {
		zones, err := store.ListFreshZones(ctx)
		if err != nil {
			return err
		}
		if len(zones) == 0 {
			fmt.Fprintln(os.Stdout, "no fresh zones found")
		} else {
			writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(writer, "Ticker\tZone ID\tProximal\tDistal\tFreshness\tScore\tApproach\tEntry")
			for _, zone := range zones {
				fmt.Fprintf(
					writer,
					"%s\t%s\t%s\t%s\t%.1f\t%.1f\t%t\t%t\n",
					zone.Ticker,
					zone.ZoneID,
					zone.ProximalLine.StringFixed(2),
					zone.DistalLine.StringFixed(2),
					zone.Freshness,
					zone.TradeScore,
					zone.ZoneAlertSent,
					zone.ZoneEntrySent,
				)
			}
			writer.Flush()
		}
	}

	if opts.Trades {
		trades, err := store.ListOpenTrades(ctx)
		if err != nil {
			return err
		}
		if len(trades) == 0 {
			fmt.Fprintln(os.Stdout, "no open trades found")
			return nil
		}

		writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(writer, "Symbol\tEntry\tApproach\tEntryAlert\tLast Alert")
		for _, trade := range trades {
			lastAlert := ""
			if trade.LastAlertTime != nil {
				lastAlert = trade.LastAlertTime.Format(time.RFC3339)
			}
			fmt.Fprintf(
				writer,
				"%s\t%s\t%t\t%t\t%s\n",
				trade.Symbol,
				trade.EntryPrice.StringFixed(2),
				trade.AlertSent,
				trade.EntryAlertSent,
				lastAlert,
			)
		}
		writer.Flush()
	}

	return nil
}
