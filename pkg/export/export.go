// Package export writes report rows and bills as CSV or JSON.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/kilianp07/evstation/core/model"
	"github.com/kilianp07/evstation/core/report"
)

// Format names an output encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// ParseFormat accepts "csv" or "json".
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatCSV, FormatJSON:
		return Format(s), nil
	}
	return "", fmt.Errorf("unsupported export format %q", s)
}

// WriteJSON encodes v as a single JSON document.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func num(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }

// WriteReportCSV writes report rows with a header line.
func WriteReportCSV(w io.Writer, rows []report.Row) error {
	cw := csv.NewWriter(w)
	header := []string{
		"time_period", "pile_id", "total_charging_times", "total_charging_duration",
		"total_charging_amount", "total_charging_fee", "total_service_fee", "total_fee",
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, r := range rows {
		rec := []string{
			r.Period,
			r.PileID,
			strconv.Itoa(r.Sessions),
			num(r.Duration),
			num(r.Energy),
			num(r.ChargingFee),
			num(r.ServiceFee),
			num(r.TotalFee),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteBillsCSV writes one line per bill.
func WriteBillsCSV(w io.Writer, bills []model.Bill) error {
	cw := csv.NewWriter(w)
	header := []string{
		"bill_id", "user_id", "pile_id", "queue_number", "start_time", "end_time",
		"charging_amount", "charging_fee", "service_fee", "total_fee",
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, b := range bills {
		rec := []string{
			b.ID,
			b.UserID,
			b.PileID,
			b.Ticket.String(),
			b.StartTime.Format(time.RFC3339),
			b.EndTime.Format(time.RFC3339),
			num(b.Energy),
			num(b.ChargingFee),
			num(b.ServiceFee),
			num(b.TotalFee),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Report writes rows in the given format.
func Report(w io.Writer, f Format, rows []report.Row) error {
	if f == FormatCSV {
		return WriteReportCSV(w, rows)
	}
	return WriteJSON(w, rows)
}

// Bills writes bills in the given format.
func Bills(w io.Writer, f Format, bills []model.Bill) error {
	if f == FormatCSV {
		return WriteBillsCSV(w, bills)
	}
	return WriteJSON(w, bills)
}
