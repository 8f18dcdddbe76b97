package datasource

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/seenimoa/niftypulse/pkg/models"
)

// sparkBody covers the member cases: a clean 2-day series, a 1-row series,
// an absent symbol, an out-of-order series with a null close, and a zero
// prior close.
const sparkBody = `{"spark":{"result":[
	{"symbol":"^NSEI","response":[{"meta":{"symbol":"^NSEI"},"timestamp":[1700000000,1700086400],
		"indicators":{"quote":[{"close":[100.0,102.0]}]}}]},
	{"symbol":"^CNX200","response":[{"meta":{"symbol":"^CNX200"},"timestamp":[1700086400],
		"indicators":{"quote":[{"close":[13000.0]}]}}]},
	{"symbol":"^CNX500","response":[{"meta":{"symbol":"^CNX500"},"timestamp":[1700172800,1700000000,1700086400],
		"indicators":{"quote":[{"close":[110.0,90.0,null]}]}}]},
	{"symbol":"ZERO","response":[{"timestamp":[1,2],"indicators":{"quote":[{"close":[0,5]}]}}]}
],"error":null}}`

var testBasket = []models.IndexMember{
	{Symbol: "^NSEI", DisplayName: "NIFTY 50"},
	{Symbol: "^CNX200", DisplayName: "NIFTY 200"},
	{Symbol: "^BSESN", DisplayName: "SENSEX"},
	{Symbol: "^CNX500", DisplayName: "NIFTY 500"},
	{Symbol: "ZERO", DisplayName: "Zero"},
}

func yahooServer(t *testing.T, h http.HandlerFunc) (*YFinance, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		h(w, r)
	}))
	t.Cleanup(srv.Close)
	y := NewYFinance(testFetcher(nil), YahooEndpoints{
		SparkURL: srv.URL + "/v7/finance/spark",
		QuoteURL: srv.URL + "/v7/finance/quote",
		ChartURL: srv.URL + "/v8/finance/chart",
	}, "", WithLogger(zaptest.NewLogger(t)))
	return y, &hits
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func val(d models.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

func sameSnapshots(a, b []models.IndexSnapshot) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Symbol != b[i].Symbol || a[i].DisplayName != b[i].DisplayName ||
			!a[i].LastTradedPrice.Equal(b[i].LastTradedPrice) ||
			!a[i].Change.Equal(b[i].Change) ||
			!a[i].PercentChange.Equal(b[i].PercentChange) {
			return false
		}
	}
	return true
}

func TestFetchIndexSnapshots(t *testing.T) {
	var query string
	y, hits := yahooServer(t, func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.RawQuery
		w.Write([]byte(sparkBody))
	})

	res := y.FetchIndexSnapshots(context.Background(), testBasket)
	if res.Status != StatusOK {
		t.Fatalf("status = %s (%v)", res.Status, res.Err)
	}
	if atomic.LoadInt32(hits) != 1 {
		t.Errorf("requests = %d, want one batched request", atomic.LoadInt32(hits))
	}
	if !strings.Contains(query, "range=5d") || !strings.Contains(query, "interval=1d") {
		t.Errorf("query = %q", query)
	}

	if len(res.Data) != 2 {
		t.Fatalf("snapshots = %+v, want NIFTY 50 and NIFTY 500 only", res.Data)
	}

	nifty := res.Data[0]
	if nifty.DisplayName != "NIFTY 50" || nifty.Symbol != "^NSEI" {
		t.Errorf("first snapshot = %+v", nifty)
	}
	if !approx(val(nifty.LastTradedPrice), 102) || !approx(val(nifty.Change), 2) || !approx(val(nifty.PercentChange), 2) {
		t.Errorf("NIFTY 50 = %+v, want ltp 102 change 2 pct 2", nifty)
	}

	// Sorted by timestamp with the null close dropped: 90 then 110.
	n500 := res.Data[1]
	if n500.DisplayName != "NIFTY 500" || !approx(val(n500.LastTradedPrice), 110) ||
		!approx(val(n500.Change), 20) || !approx(val(n500.PercentChange), 20.0/90.0*100) {
		t.Errorf("NIFTY 500 = %+v", n500)
	}
}

func TestFetchIndexSnapshotsRequestsAllSymbols(t *testing.T) {
	var symbols string
	y, _ := yahooServer(t, func(w http.ResponseWriter, r *http.Request) {
		symbols = r.URL.Query().Get("symbols")
		w.Write([]byte(sparkBody))
	})
	y.FetchIndexSnapshots(context.Background(), models.DefaultIndexBasket)
	if symbols != "^NSEI,^CNX200,^BSESN,^CNX500" {
		t.Errorf("symbols = %q", symbols)
	}
}

func TestFetchIndexSnapshotsDriftedCloseDropsOnlyThatMember(t *testing.T) {
	body := `{"spark":{"result":[
		{"symbol":"^NSEI","response":[{"timestamp":[1700000000,1700086400],
			"indicators":{"quote":[{"close":[100,102]}]}}]},
		{"symbol":"^BSESN","response":[{"timestamp":[1700000000,1700086400],
			"indicators":{"quote":[{"close":["n/a-drift",5]}]}}]}
	],"error":null}}`
	y, _ := yahooServer(t, respond(body))

	res := y.FetchIndexSnapshots(context.Background(), models.DefaultIndexBasket)
	if res.Status != StatusOK {
		t.Fatalf("status = %s (%v), want ok", res.Status, res.Err)
	}
	if len(res.Data) != 1 || res.Data[0].DisplayName != "NIFTY 50" {
		t.Fatalf("snapshots = %+v, want NIFTY 50 only", res.Data)
	}
	if !res.Data[0].PercentChange.Equal(models.Dec(2)) {
		t.Errorf("NIFTY 50 pct = %v, want 2", res.Data[0].PercentChange)
	}
}

func TestFetchIndexSnapshotsSingleSessionRangeIsEmpty(t *testing.T) {
	oneDay := `{"spark":{"result":[
		{"symbol":"^NSEI","response":[{"timestamp":[1700086400],"indicators":{"quote":[{"close":[102]}]}}]}
	],"error":null}}`
	var gotRange string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRange = r.URL.Query().Get("range")
		w.Write([]byte(oneDay))
	}))
	t.Cleanup(srv.Close)
	y := NewYFinance(testFetcher(nil), YahooEndpoints{SparkURL: srv.URL}, "1d", WithLogger(zaptest.NewLogger(t)))

	res := y.FetchIndexSnapshots(context.Background(), models.DefaultIndexBasket)
	if gotRange != "1d" {
		t.Errorf("range = %q, want 1d", gotRange)
	}
	if res.Status != StatusEmpty || len(res.Data) != 0 {
		t.Errorf("status = %s data = %+v, want empty", res.Status, res.Data)
	}
}

func TestYFSeriesToleratesBadElements(t *testing.T) {
	var s yfSeries
	if err := json.Unmarshal([]byte(`[1.5,"x",null,"2,000.25",{"a":1}]`), &s); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	want := []models.Decimal{models.Dec(1.5), models.Unavailable(), models.Unavailable(), models.Dec(2000.25), models.Unavailable()}
	if len(s) != len(want) {
		t.Fatalf("got %d values, want %d", len(s), len(want))
	}
	for i := range want {
		if !s[i].Equal(want[i]) {
			t.Errorf("value[%d] = %v, want %v", i, s[i], want[i])
		}
	}
	if err := json.Unmarshal([]byte(`{"close":1}`), &s); err == nil {
		t.Error("a non-array series must still fail")
	}
}

func TestFetchIndexSnapshotsDeterministic(t *testing.T) {
	y, _ := yahooServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(sparkBody))
	})
	first := y.FetchIndexSnapshots(context.Background(), testBasket)
	second := y.FetchIndexSnapshots(context.Background(), testBasket)
	if !sameSnapshots(first.Data, second.Data) || first.Status != second.Status {
		t.Errorf("repeated calls differ:\n%+v\n%+v", first, second)
	}
}

func TestFetchIndexSnapshotsFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		basket  []models.IndexMember
		want    Status
	}{
		{"transport", fail(http.StatusTooManyRequests), testBasket, StatusTransportError},
		{"malformed", respond(`{"spark":`), testBasket, StatusParseError},
		{"not an object", respond(`"oops"`), testBasket, StatusParseError},
		{"no result", respond(`{"spark":{"result":null,"error":{"code":"Bad Request","description":"Missing value"}}}`), testBasket, StatusEmpty},
		{"only short series", respond(sparkBody), []models.IndexMember{{Symbol: "^CNX200", DisplayName: "NIFTY 200"}}, StatusEmpty},
		{"empty basket", respond(sparkBody), nil, StatusEmpty},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			y, _ := yahooServer(t, tt.handler)
			res := y.FetchIndexSnapshots(context.Background(), tt.basket)
			if res.Status != tt.want {
				t.Errorf("status = %s, want %s (%v)", res.Status, tt.want, res.Err)
			}
			if res.Data == nil || len(res.Data) != 0 {
				t.Errorf("data = %#v, want empty non-nil slice", res.Data)
			}
		})
	}
}

func TestSnapshotFromSeriesNeverDividesByZero(t *testing.T) {
	s := yfChartResult{
		Timestamp:  []int64{1, 2},
		Indicators: yfIndicators{Quote: []yfOHLCV{{Close: []models.Decimal{models.Dec(0), models.Dec(10)}}}},
	}
	if _, ok := snapshotFromSeries(models.IndexMember{Symbol: "X"}, s); ok {
		t.Error("zero prior close should omit the member")
	}
	if _, ok := snapshotFromSeries(models.IndexMember{Symbol: "X"}, yfChartResult{}); ok {
		t.Error("series without quotes should omit the member")
	}
}

func TestFetchOverview(t *testing.T) {
	var symbols string
	y, _ := yahooServer(t, func(w http.ResponseWriter, r *http.Request) {
		symbols = r.URL.Query().Get("symbols")
		w.Write([]byte(`{"quoteResponse":{"result":[{"symbol":"RELIANCE.NS","shortName":"RELIANCE INDUSTRIES",
			"market":"in_market","regularMarketOpen":2450.5,"regularMarketPreviousClose":2440,"regularMarketVolume":5120000}],"error":null}}`))
	})

	res := y.FetchOverview(context.Background(), "reliance")
	if res.Status != StatusOK {
		t.Fatalf("status = %s (%v)", res.Status, res.Err)
	}
	if symbols != "RELIANCE.NS" {
		t.Errorf("requested %q, want RELIANCE.NS", symbols)
	}
	o := res.Data
	if o.Name != "RELIANCE INDUSTRIES" || o.Market != "in_market" || !o.Open.Equal(models.Dec(2450.5)) || !o.PreviousClose.Equal(models.Dec(2440)) {
		t.Errorf("overview = %+v", o)
	}
	if o.Volume == nil || *o.Volume != 5120000 {
		t.Errorf("volume = %v", o.Volume)
	}
}

func TestFetchOverviewMissingFields(t *testing.T) {
	y, _ := yahooServer(t, respond(`{"quoteResponse":{"result":[{"symbol":"^CNX200","longName":"NIFTY 200"}]}}`))
	res := y.FetchOverview(context.Background(), "^CNX200")
	if res.Status != StatusOK {
		t.Fatalf("status = %s", res.Status)
	}
	if res.Data.Name != "NIFTY 200" || res.Data.Open.Valid || res.Data.PreviousClose.Valid || res.Data.Volume != nil {
		t.Errorf("overview = %+v, want unavailable numeric fields", res.Data)
	}
}

func TestFetchOverviewUnknownSymbol(t *testing.T) {
	y, _ := yahooServer(t, respond(`{"quoteResponse":{"result":[],"error":null}}`))
	if res := y.FetchOverview(context.Background(), "NOSUCH"); res.Status != StatusEmpty {
		t.Errorf("status = %s, want empty", res.Status)
	}
	if res := y.FetchOverview(context.Background(), "  "); res.Status != StatusEmpty {
		t.Errorf("blank symbol status = %s, want empty", res.Status)
	}
}

func TestFetchHistory(t *testing.T) {
	var path, query string
	y, _ := yahooServer(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		query = r.URL.RawQuery
		w.Write([]byte(`{"chart":{"result":[{"meta":{"symbol":"TCS.NS","currency":"INR"},
			"timestamp":[1700086400,1700000000,1700172800],
			"indicators":{"quote":[{"open":[101,99,null],"high":[103,100,null],"low":[100,98,null],
				"close":[102,99.5,null],"volume":[2000,1500,null]}]}}],"error":null}}`))
	})

	res := y.FetchHistory(context.Background(), "TCS", "")
	if res.Status != StatusOK {
		t.Fatalf("status = %s (%v)", res.Status, res.Err)
	}
	if path != "/v8/finance/chart/TCS.NS" || !strings.Contains(query, "range=1y") {
		t.Errorf("request = %s?%s", path, query)
	}
	if len(res.Data) != 2 {
		t.Fatalf("candles = %+v, want 2 (null close dropped)", res.Data)
	}
	if !res.Data[0].Timestamp.Before(res.Data[1].Timestamp) {
		t.Error("candles should be oldest first")
	}
	if !res.Data[0].Close.Equal(models.Dec(99.5)) || res.Data[0].Volume != 1500 || !res.Data[1].High.Equal(models.Dec(103)) {
		t.Errorf("candles = %+v", res.Data)
	}
}

func TestFetchHistoryNotFound(t *testing.T) {
	y, _ := yahooServer(t, respond(`{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found, symbol may be delisted"}}}`))
	res := y.FetchHistory(context.Background(), "GONE", "6mo")
	if res.Status != StatusEmpty {
		t.Errorf("status = %s, want empty", res.Status)
	}
	if !strings.Contains(res.Error(), "delisted") {
		t.Errorf("error = %q, want upstream description", res.Error())
	}
}

func TestParseYFCandlesEmpty(t *testing.T) {
	if candles := parseYFCandles(yfChartResult{}); candles != nil {
		t.Fatalf("expected nil candles for empty result, got %d", len(candles))
	}
}
