package datasource

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/seenimoa/niftypulse/pkg/models"
	"github.com/seenimoa/niftypulse/pkg/utils"
)

// DefaultOverviewSymbol is the index summarized in the dashboard overview.
const DefaultOverviewSymbol = "^CNX200"

// DefaultHeadlineLimit caps the headlines included in a dashboard snapshot.
const DefaultHeadlineLimit = 10

// MarketData is everything the presentation layers read. *Aggregator
// implements it.
type MarketData interface {
	FetchConstituentSymbols(ctx context.Context) Result[[]models.Ticker]
	FetchTopMovers(ctx context.Context) Result[models.Movers]
	FetchIndexSnapshots(ctx context.Context) Result[[]models.IndexSnapshot]
	FetchOverview(ctx context.Context, symbol string) Result[models.Overview]
	FetchHistory(ctx context.Context, symbol, rangeSpec string) Result[[]models.OHLCV]
	FetchHeadlines(ctx context.Context, limit int) Result[[]models.Headline]
	Snapshot(ctx context.Context) *Dashboard
}

// Dashboard is one point-in-time view of every dashboard section. Each
// section carries its own status; a failed section never hides the others.
type Dashboard struct {
	ID           string                         `json:"id"`
	FetchedAt    time.Time                      `json:"fetched_at"`
	MarketStatus string                         `json:"market_status"`
	Overview     Result[models.Overview]        `json:"overview"`
	Indices      Result[[]models.IndexSnapshot] `json:"indices"`
	Movers       Result[models.Movers]          `json:"movers"`
	Constituents Result[[]models.Ticker]        `json:"constituents"`
	Headlines    Result[[]models.Headline]      `json:"headlines"`
}

// Aggregator fans requests out to the NSE, Yahoo Finance and news sources.
// It holds configuration only; every call fetches fresh data.
type Aggregator struct {
	nse            *NSE
	yfinance       *YFinance
	news           *News
	basket         []models.IndexMember
	overviewSymbol string
	headlineLimit  int
}

// AggregatorOption customizes an Aggregator.
type AggregatorOption func(*Aggregator)

// WithOverviewSymbol sets the symbol shown in the dashboard overview.
func WithOverviewSymbol(symbol string) AggregatorOption {
	return func(a *Aggregator) { a.overviewSymbol = symbol }
}

// WithHeadlineLimit sets how many headlines a snapshot includes.
func WithHeadlineLimit(n int) AggregatorOption {
	return func(a *Aggregator) { a.headlineLimit = n }
}

// NewAggregator creates an aggregator over the given sources. An empty basket
// falls back to models.DefaultIndexBasket.
func NewAggregator(nse *NSE, yf *YFinance, news *News, basket []models.IndexMember, opts ...AggregatorOption) *Aggregator {
	if len(basket) == 0 {
		basket = models.DefaultIndexBasket
	}
	a := &Aggregator{
		nse:            nse,
		yfinance:       yf,
		news:           news,
		basket:         basket,
		overviewSymbol: DefaultOverviewSymbol,
		headlineLimit:  DefaultHeadlineLimit,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Basket returns the configured index basket.
func (a *Aggregator) Basket() []models.IndexMember { return a.basket }

// FetchConstituentSymbols delegates to the NSE source.
func (a *Aggregator) FetchConstituentSymbols(ctx context.Context) Result[[]models.Ticker] {
	return a.nse.FetchConstituentSymbols(ctx)
}

// FetchTopMovers delegates to the NSE source.
func (a *Aggregator) FetchTopMovers(ctx context.Context) Result[models.Movers] {
	return a.nse.FetchTopMovers(ctx)
}

// FetchIndexSnapshots computes snapshots for the configured basket.
func (a *Aggregator) FetchIndexSnapshots(ctx context.Context) Result[[]models.IndexSnapshot] {
	return a.yfinance.FetchIndexSnapshots(ctx, a.basket)
}

// FetchOverview delegates to Yahoo Finance. A blank symbol means the
// configured overview index.
func (a *Aggregator) FetchOverview(ctx context.Context, symbol string) Result[models.Overview] {
	if symbol == "" {
		symbol = a.overviewSymbol
	}
	return a.yfinance.FetchOverview(ctx, symbol)
}

// FetchHistory delegates to Yahoo Finance.
func (a *Aggregator) FetchHistory(ctx context.Context, symbol, rangeSpec string) Result[[]models.OHLCV] {
	return a.yfinance.FetchHistory(ctx, symbol, rangeSpec)
}

// FetchHeadlines delegates to the news source.
func (a *Aggregator) FetchHeadlines(ctx context.Context, limit int) Result[[]models.Headline] {
	return a.news.FetchHeadlines(ctx, limit)
}

// Snapshot fetches every dashboard section concurrently and waits for all
// of them.
func (a *Aggregator) Snapshot(ctx context.Context) *Dashboard {
	now := utils.NowIST()
	d := &Dashboard{
		ID:           uuid.NewString(),
		FetchedAt:    now,
		MarketStatus: utils.MarketStatusAt(now),
	}

	// Sections never return an error to the group, so one failure can not
	// cancel the others.
	var g errgroup.Group
	g.Go(func() error {
		d.Overview = a.FetchOverview(ctx, "")
		return nil
	})
	g.Go(func() error {
		d.Indices = a.FetchIndexSnapshots(ctx)
		return nil
	})
	g.Go(func() error {
		d.Movers = a.FetchTopMovers(ctx)
		return nil
	})
	g.Go(func() error {
		d.Constituents = a.FetchConstituentSymbols(ctx)
		return nil
	})
	g.Go(func() error {
		d.Headlines = a.FetchHeadlines(ctx, a.headlineLimit)
		return nil
	})
	_ = g.Wait()

	return d
}
