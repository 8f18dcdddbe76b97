package datasource

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/seenimoa/niftypulse/pkg/models"
	"github.com/seenimoa/niftypulse/pkg/utils"
)

const yahooBaseURL = "https://query1.finance.yahoo.com"

// YahooEndpoints lists the Yahoo Finance APIs used by the YFinance source.
type YahooEndpoints struct {
	SparkURL string // batched close series for several symbols
	QuoteURL string // quote summary for one or more symbols
	ChartURL string // OHLCV candles; the symbol is appended as a path segment
}

// DefaultYahooEndpoints returns the public query1 endpoints.
func DefaultYahooEndpoints() YahooEndpoints {
	return YahooEndpoints{
		SparkURL: yahooBaseURL + "/v7/finance/spark",
		QuoteURL: yahooBaseURL + "/v7/finance/quote",
		ChartURL: yahooBaseURL + "/v8/finance/chart",
	}
}

// DefaultSparkRange is the history window requested for index snapshots. A
// single-day window yields one bar and therefore no prior close.
const DefaultSparkRange = "5d"

// DefaultHistoryRange is the candle window used for the selected-stock chart.
const DefaultHistoryRange = "1y"

var historyRanges = map[string]bool{
	"1d": true, "5d": true, "1mo": true, "3mo": true, "6mo": true,
	"1y": true, "2y": true, "5y": true, "10y": true, "ytd": true, "max": true,
}

// ValidHistoryRange reports whether r is a range the chart endpoint accepts.
func ValidHistoryRange(r string) bool { return historyRanges[r] }

// YFinance retrieves index snapshots, quote overviews and price history from
// Yahoo Finance.
type YFinance struct {
	http       HTTPGetter
	endpoints  YahooEndpoints
	sparkRange string
	sourceOptions
}

// NewYFinance creates a new Yahoo Finance data source. An empty sparkRange
// falls back to DefaultSparkRange.
func NewYFinance(getter HTTPGetter, endpoints YahooEndpoints, sparkRange string, opts ...Option) *YFinance {
	if strings.TrimSpace(sparkRange) == "" {
		sparkRange = DefaultSparkRange
	}
	return &YFinance{
		http:          getter,
		endpoints:     endpoints,
		sparkRange:    sparkRange,
		sourceOptions: buildOptions(opts),
	}
}

// Name returns the data source name.
func (y *YFinance) Name() string { return "Yahoo Finance" }

// --- Yahoo Finance API types ---

type yfSparkResponse struct {
	Spark struct {
		Result []yfSparkResult `json:"result"`
		Error  *yfError        `json:"error"`
	} `json:"spark"`
}

type yfSparkResult struct {
	Symbol   string          `json:"symbol"`
	Response []yfChartResult `json:"response"`
}

type yfQuoteResponse struct {
	QuoteResponse struct {
		Result []yfQuoteResult `json:"result"`
		Error  *yfError        `json:"error"`
	} `json:"quoteResponse"`
}

type yfQuoteResult struct {
	Symbol                     string         `json:"symbol"`
	ShortName                  string         `json:"shortName"`
	LongName                   string         `json:"longName"`
	Market                     string         `json:"market"`
	RegularMarketOpen          models.Decimal `json:"regularMarketOpen"`
	RegularMarketPreviousClose models.Decimal `json:"regularMarketPreviousClose"`
	RegularMarketVolume        *int64         `json:"regularMarketVolume"`
}

type yfChartResponse struct {
	Chart struct {
		Result []yfChartResult `json:"result"`
		Error  *yfError        `json:"error"`
	} `json:"chart"`
}

type yfChartResult struct {
	Meta       yfChartMeta  `json:"meta"`
	Timestamp  []int64      `json:"timestamp"`
	Indicators yfIndicators `json:"indicators"`
}

type yfChartMeta struct {
	Symbol   string `json:"symbol"`
	Currency string `json:"currency"`
}

type yfIndicators struct {
	Quote []yfOHLCV `json:"quote"`
}

type yfOHLCV struct {
	Open   yfSeries `json:"open"`
	High   yfSeries `json:"high"`
	Low    yfSeries `json:"low"`
	Close  yfSeries `json:"close"`
	Volume []*int64 `json:"volume"`
}

// yfSeries is one indicator array. An element that does not decode as a
// number becomes unavailable instead of failing the whole response, so a
// drifted value costs one observation and not the batch.
type yfSeries []models.Decimal

func (s *yfSeries) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(yfSeries, len(raw))
	for i, r := range raw {
		if err := json.Unmarshal(r, &out[i]); err != nil {
			out[i] = models.Unavailable()
		}
	}
	*s = out
	return nil
}

type yfError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

func (e *yfError) String() string {
	if e == nil {
		return ""
	}
	return e.Code + ": " + e.Description
}

// --- Index snapshots ---

// FetchIndexSnapshots computes the latest level and the change against the
// prior close for every basket member, in basket order.
//
// All members are requested in one batched spark call. A member missing from
// the response, or with fewer than two closes, is omitted without affecting
// the others. The spark range must span at least two sessions: a "1d" range
// returns one close per member and always yields StatusEmpty.
func (y *YFinance) FetchIndexSnapshots(ctx context.Context, basket []models.IndexMember) Result[[]models.IndexSnapshot] {
	const op = "indices"
	res := y.fetchIndexSnapshots(ctx, basket)
	y.logOutcome(op, res.Status, res.Err,
		zap.Int("members", len(basket)),
		zap.Int("snapshots", len(res.Data)),
	)
	y.record(op, res.Status)
	return res
}

func (y *YFinance) fetchIndexSnapshots(ctx context.Context, basket []models.IndexMember) Result[[]models.IndexSnapshot] {
	empty := []models.IndexSnapshot{}
	if len(basket) == 0 {
		return emptied(empty, fmt.Errorf("yfinance spark: %w: empty basket", ErrNoData))
	}

	symbols := make([]string, 0, len(basket))
	for _, m := range basket {
		symbols = append(symbols, m.Symbol)
	}

	q := url.Values{}
	q.Set("symbols", strings.Join(symbols, ","))
	q.Set("range", y.sparkRange)
	q.Set("interval", "1d")
	reqURL := y.endpoints.SparkURL + "?" + q.Encode()

	body, err := y.http.Get(ctx, reqURL, jsonHeaders())
	if err != nil {
		return transportFailed(empty, fmt.Errorf("yfinance spark: %w", err))
	}

	var resp yfSparkResponse
	if err := decodeJSONObject(body, &resp); err != nil {
		return parseFailed(empty, fmt.Errorf("yfinance spark: %w", err))
	}
	if len(resp.Spark.Result) == 0 {
		return emptied(empty, fmt.Errorf("yfinance spark: %w %s", ErrNoData, resp.Spark.Error.String()))
	}

	series := make(map[string]yfChartResult, len(resp.Spark.Result))
	for _, r := range resp.Spark.Result {
		if len(r.Response) == 0 {
			continue
		}
		series[strings.ToUpper(r.Symbol)] = r.Response[0]
	}

	snapshots := make([]models.IndexSnapshot, 0, len(basket))
	for _, m := range basket {
		s, ok := series[strings.ToUpper(m.Symbol)]
		if !ok {
			y.logger.Warn("index missing from spark response", zap.String("symbol", m.Symbol))
			continue
		}
		snap, ok := snapshotFromSeries(m, s)
		if !ok {
			y.logger.Warn("not enough history for index snapshot", zap.String("symbol", m.Symbol))
			continue
		}
		snapshots = append(snapshots, snap)
	}

	if len(snapshots) == 0 {
		return emptied(empty, fmt.Errorf("yfinance spark: %w: no member had two closes", ErrNoData))
	}
	return succeeded(snapshots)
}

type closeObservation struct {
	ts    int64
	close models.Decimal
}

// snapshotFromSeries derives the snapshot for one member. Observations with
// no close are dropped and the rest ordered by timestamp, so the prior close
// is always the second-to-last trading day regardless of response order.
func snapshotFromSeries(m models.IndexMember, s yfChartResult) (models.IndexSnapshot, bool) {
	if len(s.Indicators.Quote) == 0 {
		return models.IndexSnapshot{}, false
	}
	closes := s.Indicators.Quote[0].Close

	obs := make([]closeObservation, 0, len(s.Timestamp))
	for i, ts := range s.Timestamp {
		if i >= len(closes) || !closes[i].Valid {
			continue
		}
		obs = append(obs, closeObservation{ts: ts, close: closes[i]})
	}
	if len(obs) < 2 {
		return models.IndexSnapshot{}, false
	}
	sort.SliceStable(obs, func(i, j int) bool { return obs[i].ts < obs[j].ts })

	latest := obs[len(obs)-1].close
	prior := obs[len(obs)-2].close
	change := models.DecFrom(latest.Decimal.Sub(prior.Decimal))
	pct, ok := change.PercentOf(prior)
	if !ok {
		return models.IndexSnapshot{}, false
	}

	return models.IndexSnapshot{
		DisplayName:     m.DisplayName,
		Symbol:          m.Symbol,
		LastTradedPrice: latest,
		Change:          change,
		PercentChange:   pct,
	}, true
}

// --- Overview ---

// FetchOverview returns the quote summary of one symbol. NSE symbols and
// index names are converted to Yahoo form first.
func (y *YFinance) FetchOverview(ctx context.Context, symbol string) Result[models.Overview] {
	const op = "overview"
	res := y.fetchOverview(ctx, symbol)
	y.logOutcome(op, res.Status, res.Err, zap.String("symbol", symbol))
	y.record(op, res.Status)
	return res
}

func (y *YFinance) fetchOverview(ctx context.Context, symbol string) Result[models.Overview] {
	yfTicker := utils.ToYFinanceTicker(symbol)
	empty := models.Overview{Symbol: yfTicker}
	if yfTicker == "" {
		return emptied(empty, fmt.Errorf("yfinance quote: %w: blank symbol", ErrNoData))
	}

	q := url.Values{}
	q.Set("symbols", yfTicker)
	body, err := y.http.Get(ctx, y.endpoints.QuoteURL+"?"+q.Encode(), jsonHeaders())
	if err != nil {
		return transportFailed(empty, fmt.Errorf("yfinance quote %s: %w", yfTicker, err))
	}

	var resp yfQuoteResponse
	if err := decodeJSONObject(body, &resp); err != nil {
		return parseFailed(empty, fmt.Errorf("yfinance quote %s: %w", yfTicker, err))
	}
	if len(resp.QuoteResponse.Result) == 0 {
		return emptied(empty, fmt.Errorf("yfinance quote %s: %w %s", yfTicker, ErrNoData, resp.QuoteResponse.Error.String()))
	}

	r := resp.QuoteResponse.Result[0]
	return succeeded(models.Overview{
		Symbol:        coalesce(r.Symbol, yfTicker),
		Name:          coalesce(r.ShortName, r.LongName),
		Market:        r.Market,
		Open:          r.RegularMarketOpen,
		PreviousClose: r.RegularMarketPreviousClose,
		Volume:        r.RegularMarketVolume,
	})
}

// --- History ---

// FetchHistory returns daily OHLCV candles for symbol over rangeSpec (e.g.
// "1y", "6mo"), oldest first. Bars without a close are dropped.
func (y *YFinance) FetchHistory(ctx context.Context, symbol, rangeSpec string) Result[[]models.OHLCV] {
	const op = "history"
	res := y.fetchHistory(ctx, symbol, rangeSpec)
	y.logOutcome(op, res.Status, res.Err,
		zap.String("symbol", symbol),
		zap.Int("candles", len(res.Data)),
	)
	y.record(op, res.Status)
	return res
}

func (y *YFinance) fetchHistory(ctx context.Context, symbol, rangeSpec string) Result[[]models.OHLCV] {
	empty := []models.OHLCV{}
	yfTicker := utils.ToYFinanceTicker(symbol)
	if yfTicker == "" {
		return emptied(empty, fmt.Errorf("yfinance chart: %w: blank symbol", ErrNoData))
	}
	if strings.TrimSpace(rangeSpec) == "" {
		rangeSpec = DefaultHistoryRange
	}

	q := url.Values{}
	q.Set("range", rangeSpec)
	q.Set("interval", "1d")
	reqURL := strings.TrimSuffix(y.endpoints.ChartURL, "/") + "/" + url.PathEscape(yfTicker) + "?" + q.Encode()

	body, err := y.http.Get(ctx, reqURL, jsonHeaders())
	if err != nil {
		return transportFailed(empty, fmt.Errorf("yfinance chart %s: %w", yfTicker, err))
	}

	var resp yfChartResponse
	if err := decodeJSONObject(body, &resp); err != nil {
		return parseFailed(empty, fmt.Errorf("yfinance chart %s: %w", yfTicker, err))
	}
	if len(resp.Chart.Result) == 0 {
		return emptied(empty, fmt.Errorf("yfinance chart %s: %w %s", yfTicker, ErrNoData, resp.Chart.Error.String()))
	}

	candles := parseYFCandles(resp.Chart.Result[0])
	if len(candles) == 0 {
		return emptied(empty, fmt.Errorf("yfinance chart %s: %w", yfTicker, ErrNoData))
	}
	return succeeded(candles)
}

// --- Helpers ---

func parseYFCandles(result yfChartResult) []models.OHLCV {
	if len(result.Indicators.Quote) == 0 {
		return nil
	}
	q := result.Indicators.Quote[0]

	at := func(vals yfSeries, i int) models.Decimal {
		if i < len(vals) {
			return vals[i]
		}
		return models.Unavailable()
	}

	candles := make([]models.OHLCV, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		c := models.OHLCV{
			Timestamp: time.Unix(ts, 0).In(utils.IST),
			Open:      at(q.Open, i),
			High:      at(q.High, i),
			Low:       at(q.Low, i),
			Close:     at(q.Close, i),
		}
		if !c.Close.Valid {
			continue
		}
		if i < len(q.Volume) && q.Volume[i] != nil {
			c.Volume = *q.Volume[i]
		}
		candles = append(candles, c)
	}
	sort.SliceStable(candles, func(i, j int) bool { return candles[i].Timestamp.Before(candles[j].Timestamp) })
	return candles
}

// decodeJSONObject unmarshals body into v, requiring a top-level object.
func decodeJSONObject(body []byte, v any) error {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return fmt.Errorf("%w: top level is not a JSON object", ErrMalformed)
	}
	if err := json.Unmarshal(trimmed, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

func jsonHeaders() map[string]string {
	return map[string]string{"Accept": "application/json"}
}

func coalesce(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
