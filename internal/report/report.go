// Package report renders market snapshots as aligned plain-text tables for
// the terminal.
package report

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/seenimoa/niftypulse/internal/datasource"
	"github.com/seenimoa/niftypulse/pkg/models"
	"github.com/seenimoa/niftypulse/pkg/utils"
)

// ════════════════════════════════════════════════════════════════════
// Plain-text renderers (terminal / CLI)
// ════════════════════════════════════════════════════════════════════

// UnavailableText is shown in place of a section whose data could not be
// retrieved or was empty upstream.
const UnavailableText = "data currently unavailable"

var (
	line     = strings.Repeat("═", 60)
	thinLine = strings.Repeat("─", 60)
)

// unavailable writes the warning line for a section and reports whether it
// did. Callers render the section only when it returns false.
func unavailable[T any](w io.Writer, section string, res datasource.Result[T]) bool {
	if res.OK() {
		return false
	}
	fmt.Fprintf(w, "⚠️  %s: %s (%s)\n", section, UnavailableText, res.Status)
	return true
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

// Tickers writes the constituent symbols, numbered, optionally without
// repeats.
func Tickers(w io.Writer, res datasource.Result[[]models.Ticker], unique bool) error {
	if unavailable(w, "Constituents", res) {
		return nil
	}
	symbols := res.Data
	if unique {
		symbols = utils.DedupeTickers(symbols)
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "#\tSymbol\t")
	for i, s := range symbols {
		fmt.Fprintf(tw, "%d\t%s\t\n", i+1, s)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "%d symbols\n", len(symbols))
	return err
}

// Movers writes the gainers table followed by the losers table. A side with
// no rows prints a warning line instead of an empty table.
func Movers(w io.Writer, res datasource.Result[models.Movers]) error {
	if unavailable(w, "Top movers", res) {
		return nil
	}
	if err := moverTable(w, "Top Gainers", res.Data.Gainers); err != nil {
		return err
	}
	fmt.Fprintln(w)
	return moverTable(w, "Top Losers", res.Data.Losers)
}

func moverTable(w io.Writer, title string, rows []models.MoverRecord) error {
	fmt.Fprintf(w, "■ %s\n", title)
	if len(rows) == 0 {
		fmt.Fprintf(w, "⚠️  %s: %s (empty)\n", title, UnavailableText)
		return nil
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "Symbol\tLast Traded Price\tChange\tChange %\t")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t\n",
			r.Symbol, utils.FormatPrice(r.LastTradedPrice), utils.FormatPrice(r.Change), utils.FormatPct(r.PercentChange))
	}
	return tw.Flush()
}

// Indices writes the index performance table.
func Indices(w io.Writer, res datasource.Result[[]models.IndexSnapshot]) error {
	if unavailable(w, "Index performance", res) {
		return nil
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "Index\tLast Traded Price\tChange\tChange %\t")
	for _, s := range res.Data {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t\n",
			s.DisplayName, utils.FormatPrice(s.LastTradedPrice), utils.FormatPrice(s.Change), utils.FormatPct(s.PercentChange))
	}
	return tw.Flush()
}

// Overview writes the short info table of an index or stock.
func Overview(w io.Writer, res datasource.Result[models.Overview]) error {
	if unavailable(w, "Overview", res) {
		return nil
	}
	o := res.Data
	tw := newTable(w)
	rows := [][2]string{
		{"Symbol", o.Symbol},
		{"Name", dash(o.Name)},
		{"Market", dash(o.Market)},
		{"Open", utils.FormatPrice(o.Open)},
		{"Previous Close", utils.FormatPrice(o.PreviousClose)},
		{"Volume", utils.FormatVolume(o.Volume)},
	}
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t\n", r[0], r[1])
	}
	return tw.Flush()
}

// History writes the last n candles (all when n <= 0), oldest first.
func History(w io.Writer, res datasource.Result[[]models.OHLCV], n int) error {
	if unavailable(w, "Price history", res) {
		return nil
	}
	bars := res.Data
	if n > 0 && len(bars) > n {
		bars = bars[len(bars)-n:]
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "Date\tOpen\tHigh\tLow\tClose\tVolume\t")
	for _, b := range bars {
		vol := b.Volume
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t\n",
			b.Timestamp.In(utils.IST).Format("2006-01-02"),
			utils.FormatPrice(b.Open), utils.FormatPrice(b.High), utils.FormatPrice(b.Low), utils.FormatPrice(b.Close),
			utils.FormatVolume(&vol))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "%d of %d sessions\n", len(bars), len(res.Data))
	return err
}

// Headlines writes one line per headline, newest first.
func Headlines(w io.Writer, res datasource.Result[[]models.Headline]) error {
	if unavailable(w, "Headlines", res) {
		return nil
	}
	for _, h := range res.Data {
		when := "-"
		if !h.Published.IsZero() {
			when = h.Published.In(utils.IST).Format("02 Jan 15:04")
		}
		if _, err := fmt.Fprintf(w, "  [%s] %s (%s)\n", when, h.Title, h.Source); err != nil {
			return err
		}
	}
	return nil
}

// Dashboard writes every section of a snapshot, in the order of the web
// dashboard: overview, index performance, movers, constituents, headlines.
func Dashboard(w io.Writer, d *datasource.Dashboard) error {
	fmt.Fprintln(w, line)
	fmt.Fprintln(w, "  Indian Stock Market Dashboard")
	fmt.Fprintf(w, "  %s | Market: %s\n", utils.FormatDateTimeIST(d.FetchedAt), d.MarketStatus)
	fmt.Fprintf(w, "  Snapshot: %s\n", d.ID)
	fmt.Fprintln(w, line)

	sections := []struct {
		title  string
		render func() error
	}{
		{"NIFTY 200 OVERVIEW", func() error { return Overview(w, d.Overview) }},
		{"INDEX PERFORMANCE", func() error { return Indices(w, d.Indices) }},
		{"TOP MOVERS", func() error { return Movers(w, d.Movers) }},
		{"CONSTITUENTS", func() error { return constituentSummary(w, d.Constituents) }},
		{"MARKET HEADLINES", func() error { return Headlines(w, d.Headlines) }},
	}
	for _, s := range sections {
		fmt.Fprintf(w, "\n■ %s\n", s.title)
		if err := s.render(); err != nil {
			return err
		}
		fmt.Fprintln(w, thinLine)
	}
	_, err := fmt.Fprintf(w, "  Rendered %s\n", ReportTimestamp())
	return err
}

// constituentSummary prints the count and the first symbols instead of the
// full list.
func constituentSummary(w io.Writer, res datasource.Result[[]models.Ticker]) error {
	if unavailable(w, "Constituents", res) {
		return nil
	}
	unique := utils.DedupeTickers(res.Data)
	shown := unique
	if len(shown) > 10 {
		shown = shown[:10]
	}
	names := make([]string, len(shown))
	for i, s := range shown {
		names[i] = string(s)
	}
	suffix := ""
	if len(unique) > len(shown) {
		suffix = ", ..."
	}
	_, err := fmt.Fprintf(w, "  %d symbols (%d unique): %s%s\n", len(res.Data), len(unique), strings.Join(names, ", "), suffix)
	return err
}

func dash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

// ReportTimestamp returns the current IST time formatted for report footers.
func ReportTimestamp() string {
	return utils.NowIST().Format("02 Jan 2006, 03:04 PM IST")
}
