package datasource

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/seenimoa/niftypulse/pkg/models"
)

const nseBaseURL = "https://www.nseindia.com"

// NSEEndpoints lists the NSE pages and feeds used by the NSE source.
type NSEEndpoints struct {
	ListingURL string // HTML page whose first table lists the index constituents
	GainersURL string // JSON feed of the session's top gainers
	LosersURL  string // JSON feed of the session's top losers
}

// DefaultNSEEndpoints returns the NIFTY 200 listing page and the NIFTY
// top gainers / losers feeds.
func DefaultNSEEndpoints() NSEEndpoints {
	return NSEEndpoints{
		ListingURL: nseBaseURL + "/products-services/indices-equity-indices-broad-market-indices-nifty-200-list",
		GainersURL: nseBaseURL + "/live_market/dynaContent/live_analysis/nifty_top_gainers.json",
		LosersURL:  nseBaseURL + "/live_market/dynaContent/live_analysis/nifty_top_losers.json",
	}
}

// NSE retrieves the constituent list and the top movers from NSE India.
// It keeps no state between calls.
type NSE struct {
	http      HTTPGetter
	endpoints NSEEndpoints
	sourceOptions
}

// NewNSE creates a new NSE India data source.
func NewNSE(getter HTTPGetter, endpoints NSEEndpoints, opts ...Option) *NSE {
	return &NSE{
		http:          getter,
		endpoints:     endpoints,
		sourceOptions: buildOptions(opts),
	}
}

// Name returns the data source name.
func (n *NSE) Name() string { return "NSE India" }

// --- Constituent list ---

// FetchConstituentSymbols downloads the listing page and returns the
// "Symbol" column of its first table.
//
// Transport failures are retried up to the fetcher's MaxAttempts with
// RetryDelay between attempts. A page that loads but has no usable table
// ends the call immediately without further attempts.
func (n *NSE) FetchConstituentSymbols(ctx context.Context) Result[[]models.Ticker] {
	const op = "constituents"
	res := n.fetchConstituents(ctx)
	n.logOutcome(op, res.Status, res.Err, zap.Int("symbols", len(res.Data)))
	n.record(op, res.Status)
	return res
}

func (n *NSE) fetchConstituents(ctx context.Context) Result[[]models.Ticker] {
	empty := []models.Ticker{}
	policy := n.http.Policy()
	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		body, err := n.http.Get(ctx, n.endpoints.ListingURL, htmlHeaders())
		if err != nil {
			lastErr = err
			n.logger.Warn("constituent list fetch failed",
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", attempts),
				zap.String("url", n.endpoints.ListingURL),
				zap.Error(err),
			)
			if attempt < attempts {
				if serr := n.http.Sleep(ctx, policy.RetryDelay); serr != nil {
					lastErr = fmt.Errorf("%w (retry aborted: %v)", lastErr, serr)
					break
				}
			}
			continue
		}

		symbols, err := parseSymbolTable(body, "Symbol")
		if err != nil {
			return parseFailed(empty, fmt.Errorf("NSE constituents: %w", err))
		}
		if len(symbols) == 0 {
			return emptied(empty, fmt.Errorf("NSE constituents: %w", ErrNoData))
		}
		return succeeded(symbols)
	}

	return transportFailed(empty, fmt.Errorf("NSE constituents: gave up after %d attempts: %w", attempts, lastErr))
}

// parseSymbolTable returns the non-blank cells of column in the first table
// of an HTML document, in row order. Header matching ignores case and
// surrounding whitespace. Rows of nested tables are ignored.
func parseSymbolTable(body []byte, column string) ([]models.Ticker, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	tables := doc.Find("table")
	if tables.Length() == 0 {
		return nil, ErrNoTable
	}
	table := tables.First()

	rows := table.Find("tr").FilterFunction(func(_ int, row *goquery.Selection) bool {
		return row.Closest("table").IsSelection(table)
	})
	if rows.Length() == 0 {
		return nil, fmt.Errorf("%w: %q (empty table)", ErrMissingColumn, column)
	}

	// Header row: the first row made of <th> cells, else the first row.
	headerIdx := 0
	rows.EachWithBreak(func(i int, row *goquery.Selection) bool {
		if row.ChildrenFiltered("th").Length() > 0 {
			headerIdx = i
			return false
		}
		return true
	})

	col := -1
	rows.Eq(headerIdx).ChildrenFiltered("th, td").EachWithBreak(func(i int, cell *goquery.Selection) bool {
		if strings.EqualFold(strings.TrimSpace(cell.Text()), column) {
			col = i
			return false
		}
		return true
	})
	if col < 0 {
		return nil, fmt.Errorf("%w: %q", ErrMissingColumn, column)
	}

	symbols := make([]models.Ticker, 0, rows.Length())
	rows.Each(func(i int, row *goquery.Selection) {
		if i <= headerIdx || row.ChildrenFiltered("td").Length() == 0 {
			return
		}
		cells := row.ChildrenFiltered("th, td")
		if col >= cells.Length() {
			return
		}
		if s := strings.TrimSpace(cells.Eq(col).Text()); s != "" {
			symbols = append(symbols, models.Ticker(s))
		}
	})
	return symbols, nil
}

// --- Top movers ---

// FetchTopMovers returns the session's top gainers and losers.
//
// Both feeds are requested concurrently and joined before either is used. A
// transport or parse failure on either feed empties both sides. A feed whose
// data array is missing or empty leaves only its own side empty.
func (n *NSE) FetchTopMovers(ctx context.Context) Result[models.Movers] {
	const op = "movers"
	res := n.fetchMovers(ctx)
	n.logOutcome(op, res.Status, res.Err,
		zap.Int("gainers", len(res.Data.Gainers)),
		zap.Int("losers", len(res.Data.Losers)),
	)
	n.record(op, res.Status)
	return res
}

func emptyMovers() models.Movers {
	return models.Movers{Gainers: []models.MoverRecord{}, Losers: []models.MoverRecord{}}
}

func (n *NSE) fetchMovers(ctx context.Context) Result[models.Movers] {
	var gainersBody, losersBody []byte

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		body, err := n.http.Get(gctx, n.endpoints.GainersURL, nseJSONHeaders())
		if err != nil {
			return fmt.Errorf("gainers feed: %w", err)
		}
		gainersBody = body
		return nil
	})
	g.Go(func() error {
		body, err := n.http.Get(gctx, n.endpoints.LosersURL, nseJSONHeaders())
		if err != nil {
			return fmt.Errorf("losers feed: %w", err)
		}
		losersBody = body
		return nil
	})
	if err := g.Wait(); err != nil {
		return transportFailed(emptyMovers(), fmt.Errorf("NSE movers: %w", err))
	}

	gainers, err := n.parseMoversFeed(gainersBody)
	if err != nil {
		return parseFailed(emptyMovers(), fmt.Errorf("NSE movers: gainers feed: %w", err))
	}
	losers, err := n.parseMoversFeed(losersBody)
	if err != nil {
		return parseFailed(emptyMovers(), fmt.Errorf("NSE movers: losers feed: %w", err))
	}

	movers := models.Movers{Gainers: gainers, Losers: losers}
	if movers.Empty() {
		return emptied(emptyMovers(), fmt.Errorf("NSE movers: %w", ErrNoData))
	}
	return succeeded(movers)
}

// nseMoversFeed is the envelope of the gainers / losers feeds. Rows are kept
// raw so that one drifted row does not discard the whole feed.
type nseMoversFeed struct {
	Data []json.RawMessage `json:"data"`
}

// parseMoversFeed decodes a feed into MoverRecords. The top level must be a
// JSON object; a missing or null data field means no rows. Rows that are not
// objects or have no symbol are skipped; unreadable numeric fields become
// unavailable.
func (n *NSE) parseMoversFeed(body []byte) ([]models.MoverRecord, error) {
	var feed nseMoversFeed
	if err := decodeJSONObject(body, &feed); err != nil {
		return nil, err
	}

	records := make([]models.MoverRecord, 0, len(feed.Data))
	for i, raw := range feed.Data {
		var row map[string]json.RawMessage
		if err := json.Unmarshal(raw, &row); err != nil || row == nil {
			n.logger.Debug("skipping mover row", zap.Int("row", i), zap.Error(err))
			continue
		}

		var symbol string
		if err := json.Unmarshal(row["symbol"], &symbol); err != nil || strings.TrimSpace(symbol) == "" {
			n.logger.Debug("skipping mover row without symbol", zap.Int("row", i))
			continue
		}

		records = append(records, models.MoverRecord{
			Symbol:          models.Ticker(strings.TrimSpace(symbol)),
			LastTradedPrice: n.decimalField(row, "ltp"),
			Change:          n.decimalField(row, "change"),
			PercentChange:   n.decimalField(row, "pChange"),
		})
	}
	return records, nil
}

func (n *NSE) decimalField(row map[string]json.RawMessage, key string) models.Decimal {
	raw, ok := row[key]
	if !ok {
		return models.Unavailable()
	}
	var d models.Decimal
	if err := json.Unmarshal(raw, &d); err != nil {
		n.logger.Debug("unreadable mover field", zap.String("field", key), zap.Error(err))
		return models.Unavailable()
	}
	return d
}

// --- Request headers ---

func htmlHeaders() map[string]string {
	return map[string]string{
		"Accept": "text/html,application/xhtml+xml",
	}
}

func nseJSONHeaders() map[string]string {
	return map[string]string{
		"Accept":           "application/json",
		"Referer":          nseBaseURL,
		"X-Requested-With": "XMLHttpRequest",
	}
}
