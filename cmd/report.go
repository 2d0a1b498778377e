package cmd

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/evstation/app"
	"github.com/kilianp07/evstation/config"
	"github.com/kilianp07/evstation/core/report"
	"github.com/kilianp07/evstation/pkg/export"
)

var (
	reportPeriod string
	reportFormat string
	reportBills  bool
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print per pile statistics from the configured store",
	RunE:  runReport,
}

func init() {
	reportCmd.Flags().StringVar(&reportPeriod, "period", "day", "report period (day, week, month)")
	reportCmd.Flags().StringVar(&reportFormat, "format", "table", "output format (table, csv, json)")
	reportCmd.Flags().BoolVar(&reportBills, "bills", false, "print the bills of the window instead of the summary")
	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	start, end, err := report.Window(reportPeriod, time.Now())
	if err != nil {
		return err
	}
	var format export.Format
	if reportFormat != "table" {
		if format, err = export.ParseFormat(reportFormat); err != nil {
			return err
		}
	} else if reportBills {
		format = export.FormatCSV
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()
	store, err := app.OpenGateway(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer store.Close()

	bills, err := store.BillsBetween(ctx, start, end)
	if err != nil {
		return fmt.Errorf("load bills: %w", err)
	}
	out := cmd.OutOrStdout()
	if reportBills {
		return export.Bills(out, format, bills)
	}
	rows := report.Generate(bills, start, end, reportPeriod)
	if format == "" {
		return printReport(out, rows)
	}
	return export.Report(out, format, rows)
}

func printReport(out io.Writer, rows []report.Row) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PERIOD\tPILE\tSESSIONS\tHOURS\tKWH\tCHARGING\tSERVICE\tTOTAL")
	line := func(r report.Row, pile string) {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\n",
			r.Period, pile, r.Sessions, r.Duration, r.Energy, r.ChargingFee, r.ServiceFee, r.TotalFee)
	}
	for _, r := range rows {
		line(r, r.PileID)
	}
	if len(rows) > 0 {
		line(report.Totals(rows), "all")
	}
	return tw.Flush()
}
