package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/seenimoa/niftypulse/api"
	"github.com/seenimoa/niftypulse/internal/datasource"
	"github.com/seenimoa/niftypulse/internal/report"
	"github.com/seenimoa/niftypulse/pkg/utils"
)

// --- Tickers Command ---

func tickersCmd(runtime func() *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tickers",
		Short: "List the NIFTY 200 constituent symbols",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			unique, _ := cmd.Flags().GetBool("unique")
			res := runtime().market.FetchConstituentSymbols(cmd.Context())
			return report.Tickers(cmd.OutOrStdout(), res, unique)
		},
	}
	cmd.Flags().Bool("unique", false, "drop repeated symbols")
	return cmd
}

// --- Movers Command ---

func moversCmd(runtime func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "movers",
		Short: "Show the NIFTY top gainers and losers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res := runtime().market.FetchTopMovers(cmd.Context())
			return report.Movers(cmd.OutOrStdout(), res)
		},
	}
}

// --- Indices Command ---

func indicesCmd(runtime func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "indices",
		Short: "Show index performance for the configured basket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res := runtime().market.FetchIndexSnapshots(cmd.Context())
			return report.Indices(cmd.OutOrStdout(), res)
		},
	}
}

// --- Overview Command ---

func overviewCmd(runtime func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "overview [symbol]",
		Short: "Show the quote overview of a symbol (default: the NIFTY 200 index)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			symbol := ""
			if len(args) == 1 {
				symbol = args[0]
			}
			res := runtime().market.FetchOverview(cmd.Context(), symbol)
			return report.Overview(cmd.OutOrStdout(), res)
		},
	}
}

// --- Stock Command ---

func stockCmd(runtime func() *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stock [symbol]",
		Short: "Show the overview and recent price history of a stock",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rangeSpec, _ := cmd.Flags().GetString("range")
			sessions, _ := cmd.Flags().GetInt("sessions")
			if !datasource.ValidHistoryRange(rangeSpec) {
				return fmt.Errorf("unsupported range %q", rangeSpec)
			}

			symbol := utils.NormalizeSymbol(args[0])
			market := runtime().market
			out := cmd.OutOrStdout()

			if utils.IsIndex(symbol) {
				fmt.Fprintf(out, "📈 %s (index)\n", symbol)
			} else {
				fmt.Fprintf(out, "📈 %s\n", symbol)
			}
			if err := report.Overview(out, market.FetchOverview(cmd.Context(), symbol)); err != nil {
				return err
			}
			fmt.Fprintf(out, "\nPrice history (%s)\n", rangeSpec)
			return report.History(out, market.FetchHistory(cmd.Context(), symbol, rangeSpec), sessions)
		},
	}
	cmd.Flags().String("range", datasource.DefaultHistoryRange, "history range (1mo, 3mo, 6mo, 1y, 5y, max, ...)")
	cmd.Flags().Int("sessions", 10, "number of most recent sessions to print (0 for all)")
	return cmd
}

// --- Headlines Command ---

func headlinesCmd(runtime func() *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "headlines",
		Short: "Show the latest market headlines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			if limit < 0 {
				return fmt.Errorf("limit must not be negative")
			}
			res := runtime().market.FetchHeadlines(cmd.Context(), limit)
			return report.Headlines(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().Int("limit", datasource.DefaultHeadlineLimit, "maximum number of headlines (0 for all)")
	return cmd
}

// --- Dashboard Command ---

func dashboardCmd(runtime func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Fetch every dashboard section at once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d := runtime().market.Snapshot(cmd.Context())
			return report.Dashboard(cmd.OutOrStdout(), d)
		},
	}
}

// --- Serve Command (API Server) ---

func serveCmd(runtime func() *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt := runtime()
			port, _ := cmd.Flags().GetInt("port")
			if port == 0 {
				port = rt.cfg.API.Port
			}
			addr := fmt.Sprintf("%s:%d", strings.TrimSpace(rt.cfg.API.Host), port)

			fmt.Fprintf(cmd.OutOrStdout(), "🌐 Starting niftypulse API server on %s\n", addr)
			srv := api.NewServer(rt.cfg, rt.market, rt.metrics, rt.logger)
			return srv.ListenAndServe(cmd.Context(), addr)
		},
	}
	cmd.Flags().Int("port", 0, "listen port (default: api.port from config)")
	return cmd
}
