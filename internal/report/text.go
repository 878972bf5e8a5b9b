package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/shopspring/decimal"

	"github.com/atmx/fill-ledger/internal/classify"
	"github.com/atmx/fill-ledger/internal/reconcile"
)

// View is any report that can render itself as a text table.
type View interface {
	writeText(w io.Writer)
}

// WriteText renders v as aligned plain-text tables.
func WriteText(w io.Writer, v View) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	v.writeText(tw)
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("report: write text: %w", err)
	}
	return nil
}

// WriteJSON renders v as indented JSON.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("report: write json: %w", err)
	}
	return nil
}

func usd(d decimal.Decimal) string {
	if d.IsNegative() {
		return "-$" + d.Neg().StringFixed(2)
	}
	return "$" + d.StringFixed(2)
}

func pct(d *decimal.Decimal) string {
	if d == nil {
		return "-"
	}
	return d.StringFixed(1) + "%"
}

func age(days *int) string {
	if days == nil {
		return "?"
	}
	return fmt.Sprintf("%dd", *days)
}

func labels(ls []classify.Label) string {
	parts := make([]string, 0, len(ls))
	for _, l := range ls {
		if l == classify.LabelOpen {
			continue
		}
		parts = append(parts, string(l))
	}
	return strings.Join(parts, ",")
}

func writeRows(w io.Writer, rows []PositionRow) {
	fmt.Fprintln(w, "#\tINSTRUMENT\tSHARES\tAVG\tLAST\tVALUE\tCOST\tPNL\tPNL%\tB/S\tAGE\tLABELS")
	for i, r := range rows {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%d/%d\t%s\t%s\n",
			i+1, r.InstrumentID, r.NetShares.StringFixed(2), r.AveragePrice.StringFixed(4),
			r.LastPrice.StringFixed(4), usd(r.CurrentValue), usd(r.CostBasis), usd(r.UnrealizedPnL),
			pct(r.UnrealizedPnLPct), r.BuyCount, r.SellCount, age(r.AgeDays), labels(r.Labels))
	}
}

func (v PositionsView) writeText(w io.Writer) {
	fmt.Fprintf(w, "Positions at %s\n\n", v.GeneratedAt.Format("2006-01-02 15:04:05 MST"))
	if len(v.Rows) == 0 {
		fmt.Fprintln(w, "No open positions.")
	} else {
		writeRows(w, v.Rows)
	}
	fmt.Fprintf(w, "\nOpen:\t%d\n", v.OpenCount)
	fmt.Fprintf(w, "Closed:\t%d\n", v.ClosedCount)
	fmt.Fprintf(w, "Cost basis:\t%s\n", usd(v.TotalCostBasis))
	fmt.Fprintf(w, "Current value:\t%s\n", usd(v.TotalValue))
	fmt.Fprintf(w, "Unrealized P&L:\t%s\n", usd(v.UnrealizedPnL))
}

func (v PnLView) writeText(w io.Writer) {
	r := v.Result
	fmt.Fprintf(w, "P&L reconciliation at %s\n\n", v.GeneratedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(w, "Total buy cost:\t%s\n", usd(r.TotalBuyCost))
	fmt.Fprintf(w, "Total sell proceeds:\t%s\n", usd(r.TotalSellProceeds))
	fmt.Fprintf(w, "Net cash flow:\t%s\n", usd(r.NetCashFlow))
	fmt.Fprintf(w, "Open cost basis:\t%s\n", usd(r.CostBasisOpen))
	fmt.Fprintf(w, "Open current value:\t%s\n", usd(r.CurrentValueOpen))
	fmt.Fprintf(w, "Realized P&L:\t%s\n", usd(r.RealizedPnL))
	fmt.Fprintf(w, "Unrealized P&L:\t%s\n", usd(r.UnrealizedPnL))
	fmt.Fprintf(w, "Total P&L:\t%s\n", usd(r.TotalPnL))
	fmt.Fprintf(w, "P&L if all closed:\t%s\n", usd(r.PnLIfClosed))
	fmt.Fprintf(w, "\nTrades:\t%d (executed %d, skipped %d, failed %d, unknown %d)\n",
		r.Counts.Total, r.Counts.Executed, r.Counts.Skipped, r.Counts.Failed, r.Counts.UnknownStatus)
	fmt.Fprintf(w, "Skip rate:\t%s%%\n", r.SkipRatePct.StringFixed(1))
	fmt.Fprintf(w, "Fail rate:\t%s%%\n", r.FailRatePct.StringFixed(1))
	fmt.Fprintf(w, "Open positions:\t%d\n", r.OpenPositions)
	writeWarnings(w, r.Warnings)
	if len(v.Rows) > 0 {
		fmt.Fprintln(w)
		writeRows(w, v.Rows)
	}
}

func writeWarnings(w io.Writer, ws []reconcile.Warning) {
	if len(ws) == 0 {
		fmt.Fprintln(w, "\nNo discrepancies found.")
		return
	}
	fmt.Fprintln(w, "\nWarnings:")
	for _, x := range ws {
		fmt.Fprintf(w, "  [%s]\t%s\n", x.Code, x.Message)
	}
}

func (v LargeView) writeText(w io.Writer) {
	fmt.Fprintf(w, "Positions worth at least %s\n\n", usd(v.ThresholdUSD))
	if len(v.Rows) == 0 {
		fmt.Fprintln(w, "No large positions.")
		return
	}
	writeRows(w, v.Rows)
	fmt.Fprintf(w, "\nTotal value:\t%s\n", usd(v.TotalValue))
}

func (v StaleView) writeText(w io.Writer) {
	fmt.Fprintf(w, "Positions without fills for %d days or more\n\n", v.StaleDays)
	if len(v.Stale) == 0 {
		fmt.Fprintln(w, "No stale positions.")
	} else {
		writeRows(w, v.Stale)
		fmt.Fprintf(w, "\nStale value:\t%s\n", usd(v.StaleValue))
	}
	if len(v.NearStale) > 0 {
		fmt.Fprintln(w, "\nApproaching stale:")
		writeRows(w, v.NearStale)
	}
	if len(v.AgeUnknown) > 0 {
		fmt.Fprintf(w, "\n%d open positions have no parsable timestamp:\n", len(v.AgeUnknown))
		for _, r := range v.AgeUnknown {
			fmt.Fprintf(w, "  %s\t%s\n", r.InstrumentID, usd(r.CurrentValue))
		}
	}
	if v.Ages.Aged > 0 {
		fmt.Fprintf(w, "\nOldest:\t%s (%dd)\n", v.Ages.OldestID, v.Ages.OldestDays)
		fmt.Fprintf(w, "Youngest:\t%s (%dd)\n", v.Ages.YoungestID, v.Ages.YoungestDays)
	}
}

func writeActivity(w io.Writer, rows []ActivityRow) {
	fmt.Fprintln(w, "#\tTIME\tDIRECTION\tSHARES\tPRICE\tVALUE\tSTATUS")
	for i, r := range rows {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			i+1, r.Time, r.Direction, r.Shares.String(), r.Price.String(), usd(r.USDValue), r.Status)
	}
}

func (v ActivityView) writeText(w io.Writer) {
	if len(v.Rows) == 0 {
		fmt.Fprintln(w, "No trades found.")
		return
	}
	fmt.Fprintf(w, "Last %d of %d trades\n\n", len(v.Rows), v.Total)
	writeActivity(w, v.Rows)
}

func (v StatsView) writeText(w io.Writer) {
	fmt.Fprintln(w, "Trading statistics")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Total trades:\t%d\n", v.TotalTrades)
	fmt.Fprintf(w, "Buy trades:\t%d\n", v.BuyTrades)
	fmt.Fprintf(w, "Sell trades:\t%d\n", v.SellTrades)
	fmt.Fprintf(w, "Successful:\t%d (%s%%)\n", v.Successful, v.SuccessRatePct.StringFixed(1))
	fmt.Fprintf(w, "Skipped:\t%d\n", v.Skipped)
	fmt.Fprintf(w, "Failed:\t%d\n", v.Failed)
	fmt.Fprintf(w, "Unreadable lines:\t%d\n", v.ParseDefects)
	fmt.Fprintf(w, "Total volume:\t%s\n", usd(v.Volume))
	fmt.Fprintf(w, "Instruments:\t%d (%d open)\n", v.Instruments, v.OpenPositions)
	if len(v.Recent) > 0 {
		fmt.Fprintln(w, "\nRecent activity:")
		writeActivity(w, v.Recent)
	}
}
