package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/evstation/config"
	"github.com/kilianp07/evstation/core/model"
	"github.com/kilianp07/evstation/core/tariff"
)

var (
	tariffStart  string
	tariffEnd    string
	tariffEnergy float64
)

var tariffCmd = &cobra.Command{
	Use:   "tariff",
	Short: "Price a charging session over a time window",
	Long: "Prints the peak, flat and valley split of a session. Prices come from " +
		"the configuration file when --config is given and from the standard tariff otherwise.",
	RunE: runTariff,
}

func init() {
	tariffCmd.Flags().StringVar(&tariffStart, "start", "", "session start (RFC3339)")
	tariffCmd.Flags().StringVar(&tariffEnd, "end", "", "session end (RFC3339)")
	tariffCmd.Flags().Float64Var(&tariffEnergy, "energy", 0, "energy delivered in kWh")
	_ = tariffCmd.MarkFlagRequired("start")
	_ = tariffCmd.MarkFlagRequired("end")
	rootCmd.AddCommand(tariffCmd)
}

func runTariff(cmd *cobra.Command, args []string) error {
	start, err := time.Parse(time.RFC3339, tariffStart)
	if err != nil {
		return fmt.Errorf("invalid --start: %w", err)
	}
	end, err := time.Parse(time.RFC3339, tariffEnd)
	if err != nil {
		return fmt.Errorf("invalid --end: %w", err)
	}
	if !end.After(start) {
		return fmt.Errorf("--end must be after --start")
	}
	if tariffEnergy != 0 && !model.ValidAmount(tariffEnergy) {
		return fmt.Errorf("--energy must be a non-negative finite number")
	}

	prices := tariff.DefaultPrices()
	if cmd.Flags().Changed("config") {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		prices = cfg.Tariff.Prices
	}
	b, err := prices.Split(start, end, tariffEnergy)
	if err != nil {
		return err
	}
	return printBreakdown(cmd.OutOrStdout(), prices, b)
}

func printBreakdown(out io.Writer, p tariff.Prices, b tariff.Breakdown) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIER\tMINUTES\tKWH\tPRICE\tFEE")
	fmt.Fprintf(tw, "peak\t%.0f\t%.3f\t%.2f\t%.2f\n", b.PeakMinutes, b.PeakEnergy, p.Peak, b.PeakEnergy*p.Peak)
	fmt.Fprintf(tw, "flat\t%.0f\t%.3f\t%.2f\t%.2f\n", b.FlatMinutes, b.FlatEnergy, p.Flat, b.FlatEnergy*p.Flat)
	fmt.Fprintf(tw, "valley\t%.0f\t%.3f\t%.2f\t%.2f\n", b.ValleyMinutes, b.ValleyEnergy, p.Valley, b.ValleyEnergy*p.Valley)
	fmt.Fprintf(tw, "charging\t\t\t\t%.2f\n", b.ChargingFee)
	fmt.Fprintf(tw, "service\t\t\t%.2f\t%.2f\n", p.ServiceRate, b.ServiceFee)
	fmt.Fprintf(tw, "total\t\t\t\t%.2f\n", b.TotalFee)
	return tw.Flush()
}
