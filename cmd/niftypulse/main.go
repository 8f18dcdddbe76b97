// niftypulse: NSE market dashboard data from the command line.
//
// Main CLI entrypoint using cobra command framework.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/seenimoa/niftypulse/internal/config"
	"github.com/seenimoa/niftypulse/internal/datasource"
	"github.com/seenimoa/niftypulse/internal/infra"
	"github.com/seenimoa/niftypulse/internal/logging"
	"github.com/seenimoa/niftypulse/internal/metrics"
	"github.com/seenimoa/niftypulse/pkg/utils"
)

// Build-time variables (set via -ldflags).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app holds everything a command needs, built once per invocation from the
// loaded configuration.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *metrics.Metrics
	market  *datasource.Aggregator
	sources []string
}

// newApp wires the fetcher, the sources and the aggregator. logLevel, when
// set, overrides the configured level.
func newApp(cfg *config.Config, logLevel string) (*app, error) {
	opts := cfg.LoggingOptions()
	if logLevel != "" {
		opts.Level = logLevel
	}
	logger, err := logging.New(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to set up logging: %w", err)
	}

	m := metrics.New()
	fetcher := infra.NewFetcher(cfg.FetchPolicy(), infra.WithObserver(m.ObserveFetch))
	sourceOpts := []datasource.Option{
		datasource.WithLogger(logger),
		datasource.WithRecorder(m),
	}

	nse := datasource.NewNSE(fetcher, cfg.NSEEndpoints(), sourceOpts...)
	yf := datasource.NewYFinance(fetcher, cfg.YahooEndpoints(), cfg.Sources.HistoryRange, sourceOpts...)
	news := datasource.NewNews(fetcher, cfg.Sources.NewsFeeds, sourceOpts...)

	return &app{
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		sources: []string{nse.Name(), yf.Name(), news.Name()},
		market: datasource.NewAggregator(nse, yf, news, cfg.Basket,
			datasource.WithOverviewSymbol(cfg.Dashboard.OverviewSymbol),
			datasource.WithHeadlineLimit(cfg.Dashboard.HeadlineLimit),
		),
	}, nil
}

func newRootCmd() *cobra.Command {
	var rt *app

	root := &cobra.Command{
		Use:   "niftypulse",
		Short: "niftypulse — NSE market dashboard data",
		Long: `niftypulse retrieves Indian market data for a dashboard:
NIFTY 200 constituents, top gainers and losers, index performance,
quote overviews, price history and market headlines.

Unavailable upstream data is reported, never fatal.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			var (
				cfg *config.Config
				err error
			)
			configFile, _ := cmd.Flags().GetString("config")
			if configFile != "" {
				cfg, err = config.LoadFromFile(configFile)
			} else {
				cfg, err = config.Load()
			}
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			logLevel, _ := cmd.Flags().GetString("log-level")
			rt, err = newApp(cfg, logLevel)
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if rt != nil {
				_ = rt.logger.Sync()
			}
		},
	}

	root.PersistentFlags().String("config", "", "config file path (default: ./config/config.yaml)")
	root.PersistentFlags().String("log-level", "", "log level override (debug, info, warn, error)")

	runtime := func() *app { return rt }
	root.AddCommand(
		versionCmd(),
		tickersCmd(runtime),
		moversCmd(runtime),
		indicesCmd(runtime),
		overviewCmd(runtime),
		stockCmd(runtime),
		headlinesCmd(runtime),
		dashboardCmd(runtime),
		serveCmd(runtime),
		statusCmd(runtime),
	)
	return root
}

// --- Version Command ---

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "niftypulse %s\n", version)
			fmt.Fprintf(out, "  commit:  %s\n", commit)
			fmt.Fprintf(out, "  built:   %s\n", date)
		},
	}
}

// --- Status Command ---

func statusCmd(runtime func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show market session and configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt := runtime()
			cfg := rt.cfg
			out := cmd.OutOrStdout()

			fmt.Fprintln(out, "═══════════════════════════════════════")
			fmt.Fprintln(out, "  niftypulse — System Status")
			fmt.Fprintln(out, "═══════════════════════════════════════")
			fmt.Fprintf(out, "  Version:       %s (%s)\n", version, commit)
			fmt.Fprintf(out, "  Market Status: %s\n", utils.MarketStatus())
			fmt.Fprintf(out, "  Time (IST):    %s\n", utils.FormatDateTimeIST(utils.NowIST()))
			fmt.Fprintln(out)

			fmt.Fprintln(out, "  Configuration:")
			fmt.Fprintf(out, "    Retry policy:  %d attempts, %s apart, %s timeout\n",
				cfg.Fetch.MaxAttempts, cfg.Fetch.RetryDelay, cfg.Fetch.Timeout)
			fmt.Fprintf(out, "    Sources:       %s\n", strings.Join(rt.sources, ", "))
			fmt.Fprintf(out, "    Index basket:  %d indices\n", len(cfg.Basket))
			fmt.Fprintf(out, "    News feeds:    %d\n", len(cfg.Sources.NewsFeeds))
			fmt.Fprintf(out, "    API Server:    %s:%d\n", cfg.API.Host, cfg.API.Port)
			fmt.Fprintln(out)

			fmt.Fprintln(out, "  Settings:")
			for _, s := range config.CheckSettings(cfg) {
				fmt.Fprintf(out, "    %-24s %-8s %s\n", s.Key+":", s.Source, s.Value)
			}
			fmt.Fprintln(out, "═══════════════════════════════════════")
			return nil
		},
	}
}
