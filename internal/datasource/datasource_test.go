package datasource

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/seenimoa/niftypulse/internal/infra"
	"github.com/seenimoa/niftypulse/pkg/models"
)

// --- Test helpers ---

// sleepLog records the delays requested between attempts.
type sleepLog struct {
	mu     sync.Mutex
	delays []time.Duration
	err    error
}

func (s *sleepLog) sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	return s.err
}

func (s *sleepLog) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.delays)
}

func testFetcher(sl *sleepLog) *infra.Fetcher {
	if sl == nil {
		sl = &sleepLog{}
	}
	return infra.NewFetcher(infra.FetchConfig{
		Timeout:     2 * time.Second,
		MaxAttempts: 3,
		RetryDelay:  5 * time.Second,
	}, infra.WithSleep(sl.sleep))
}

type statusRecorder struct {
	mu   sync.Mutex
	seen []string
}

func (r *statusRecorder) ObserveRetrieval(operation, status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, operation+"="+status)
}

const listingHTML = `<html><body>
<h1>NIFTY 200</h1>
<table>
  <thead><tr><th>Company Name</th><th> symbol </th><th>Series</th></tr></thead>
  <tbody>
    <tr><td>Reliance Industries</td><td>RELIANCE</td><td>EQ</td></tr>
    <tr><td>Tata Consultancy Services</td><td>TCS</td><td>EQ</td></tr>
    <tr><td>Blank</td><td>  </td><td>EQ</td></tr>
    <tr><td>Infosys</td><td>INFY</td><td>EQ</td></tr>
    <tr><td>Reliance again</td><td>RELIANCE</td><td>EQ</td></tr>
  </tbody>
</table>
<table><tr><th>Symbol</th></tr><tr><td>SECOND</td></tr></table>
</body></html>`

func nseForListing(t *testing.T, handler http.HandlerFunc, sl *sleepLog, opts ...Option) (*NSE, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	opts = append([]Option{WithLogger(zaptest.NewLogger(t))}, opts...)
	return NewNSE(testFetcher(sl), NSEEndpoints{ListingURL: srv.URL + "/list"}, opts...), &hits
}

// --- Result ---

func TestResultHelpers(t *testing.T) {
	ok := succeeded([]int{1})
	if !ok.OK() || ok.Unavailable() || ok.Error() != "" {
		t.Errorf("succeeded result: %+v", ok)
	}
	bad := transportFailed([]int{}, errors.New("boom"))
	if bad.OK() || !bad.Unavailable() || bad.Error() != "boom" {
		t.Errorf("failed result: %+v", bad)
	}
}

func TestResultMarshalJSON(t *testing.T) {
	data, err := json.Marshal(parseFailed([]models.Ticker{}, ErrNoTable))
	if err != nil {
		t.Fatal(err)
	}
	want := `{"status":"parse_error","data":[],"error":"no table found"}`
	if string(data) != want {
		t.Errorf("got %s, want %s", data, want)
	}

	data, _ = json.Marshal(succeeded([]models.Ticker{"TCS"}))
	if string(data) != `{"status":"ok","data":["TCS"]}` {
		t.Errorf("ok result JSON = %s", data)
	}
}

// --- Constituent list ---

func TestFetchConstituentSymbols(t *testing.T) {
	rec := &statusRecorder{}
	n, hits := nseForListing(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(listingHTML))
	}, nil, WithRecorder(rec))

	res := n.FetchConstituentSymbols(context.Background())
	if res.Status != StatusOK {
		t.Fatalf("status = %s (%v)", res.Status, res.Err)
	}
	want := []models.Ticker{"RELIANCE", "TCS", "INFY", "RELIANCE"}
	if len(res.Data) != len(want) {
		t.Fatalf("got %v, want %v", res.Data, want)
	}
	for i := range want {
		if res.Data[i] != want[i] {
			t.Errorf("symbol[%d] = %q, want %q", i, res.Data[i], want[i])
		}
	}
	if atomic.LoadInt32(hits) != 1 {
		t.Errorf("requests = %d, want 1", atomic.LoadInt32(hits))
	}
	if len(rec.seen) != 1 || rec.seen[0] != "constituents=ok" {
		t.Errorf("recorded %v", rec.seen)
	}
}

func TestFetchConstituentSymbolsRetriesThenSucceeds(t *testing.T) {
	sl := &sleepLog{}
	var calls int32
	n, hits := nseForListing(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(listingHTML))
	}, sl)

	res := n.FetchConstituentSymbols(context.Background())
	if res.Status != StatusOK || len(res.Data) != 4 {
		t.Fatalf("got %s %v (%v)", res.Status, res.Data, res.Err)
	}
	if atomic.LoadInt32(hits) != 3 {
		t.Errorf("requests = %d, want 3", atomic.LoadInt32(hits))
	}
	if sl.count() != 2 {
		t.Errorf("sleeps = %d, want 2", sl.count())
	}
	for _, d := range sl.delays {
		if d != 5*time.Second {
			t.Errorf("retry delay = %v, want 5s", d)
		}
	}
}

func TestFetchConstituentSymbolsGivesUpAfterMaxAttempts(t *testing.T) {
	sl := &sleepLog{}
	n, hits := nseForListing(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}, sl)

	res := n.FetchConstituentSymbols(context.Background())
	if res.Status != StatusTransportError {
		t.Fatalf("status = %s, want transport_error", res.Status)
	}
	if res.Data == nil || len(res.Data) != 0 {
		t.Errorf("data = %#v, want empty non-nil slice", res.Data)
	}
	if atomic.LoadInt32(hits) != 3 {
		t.Errorf("requests = %d, want exactly 3", atomic.LoadInt32(hits))
	}
	if sl.count() != 2 {
		t.Errorf("sleeps = %d, want 2 (none after the last attempt)", sl.count())
	}
	var fe *infra.FetchError
	if !errors.As(res.Err, &fe) || fe.StatusCode != http.StatusForbidden {
		t.Errorf("err = %v, want wrapped 403 FetchError", res.Err)
	}
}

func TestFetchConstituentSymbolsStopsWhenSleepCancelled(t *testing.T) {
	sl := &sleepLog{err: context.Canceled}
	n, hits := nseForListing(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}, sl)

	res := n.FetchConstituentSymbols(context.Background())
	if res.Status != StatusTransportError {
		t.Fatalf("status = %s", res.Status)
	}
	if atomic.LoadInt32(hits) != 1 {
		t.Errorf("requests = %d, want 1", atomic.LoadInt32(hits))
	}
}

func TestFetchConstituentSymbolsParseFailuresAreTerminal(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		status  Status
		wantErr error
	}{
		{"no table", "<html><body><p>maintenance</p></body></html>", StatusParseError, ErrNoTable},
		{"no symbol column", "<table><tr><th>Name</th></tr><tr><td>X</td></tr></table>", StatusParseError, ErrMissingColumn},
		{"header only", "<table><tr><th>Symbol</th></tr></table>", StatusEmpty, ErrNoData},
		{"all blank", "<table><tr><th>Symbol</th></tr><tr><td> </td></tr></table>", StatusEmpty, ErrNoData},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sl := &sleepLog{}
			n, hits := nseForListing(t, func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}, sl)

			res := n.FetchConstituentSymbols(context.Background())
			if res.Status != tt.status {
				t.Errorf("status = %s, want %s", res.Status, tt.status)
			}
			if !errors.Is(res.Err, tt.wantErr) {
				t.Errorf("err = %v, want %v", res.Err, tt.wantErr)
			}
			if len(res.Data) != 0 {
				t.Errorf("data = %v, want empty", res.Data)
			}
			if atomic.LoadInt32(hits) != 1 || sl.count() != 0 {
				t.Errorf("requests=%d sleeps=%d, want a single attempt", atomic.LoadInt32(hits), sl.count())
			}
		})
	}
}

func TestParseSymbolTableHeaderlessAndNested(t *testing.T) {
	body := `<table>
		<tr><td>Symbol</td><td>Name</td></tr>
		<tr><td>ITC</td><td><table><tr><td>nested</td></tr></table></td></tr>
		<tr><td>SBIN</td><td>State Bank</td></tr>
	</table>`
	got, err := parseSymbolTable([]byte(body), "Symbol")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0] != "ITC" || got[1] != "SBIN" {
		t.Errorf("got %v, want [ITC SBIN]", got)
	}
}

// --- Top movers ---

const gainersJSON = `{"data":[{"symbol":"TCS","ltp":3500.5,"change":25.5,"pChange":0.73,"series":"EQ"}]}`

func nseForMovers(t *testing.T, gainers, losers http.HandlerFunc) *NSE {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/gainers", gainers)
	mux.HandleFunc("/losers", losers)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return NewNSE(testFetcher(nil), NSEEndpoints{
		GainersURL: srv.URL + "/gainers",
		LosersURL:  srv.URL + "/losers",
	}, WithLogger(zaptest.NewLogger(t)))
}

func respond(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}
}

func fail(code int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(code) }
}

func TestFetchTopMoversOneSideEmpty(t *testing.T) {
	n := nseForMovers(t, respond(gainersJSON), respond(`{"data":[]}`))

	res := n.FetchTopMovers(context.Background())
	if res.Status != StatusOK {
		t.Fatalf("status = %s (%v)", res.Status, res.Err)
	}
	if len(res.Data.Gainers) != 1 || len(res.Data.Losers) != 0 {
		t.Fatalf("got %d gainers / %d losers, want 1 / 0", len(res.Data.Gainers), len(res.Data.Losers))
	}
	g := res.Data.Gainers[0]
	if g.Symbol != "TCS" || !g.LastTradedPrice.Equal(models.Dec(3500.5)) || !g.Change.Equal(models.Dec(25.5)) || !g.PercentChange.Equal(models.Dec(0.73)) {
		t.Errorf("gainer = %+v", g)
	}
	if res.Data.Losers == nil {
		t.Error("losers should be an empty slice, not nil")
	}
}

func TestFetchTopMoversPairing(t *testing.T) {
	tests := []struct {
		name    string
		gainers http.HandlerFunc
		losers  http.HandlerFunc
		want    Status
	}{
		{"gainers transport failure", fail(http.StatusInternalServerError), respond(gainersJSON), StatusTransportError},
		{"losers transport failure", respond(gainersJSON), fail(http.StatusForbidden), StatusTransportError},
		{"malformed gainers", respond(`{"data":[`), respond(gainersJSON), StatusParseError},
		{"html instead of json", respond(gainersJSON), respond(`<html>blocked</html>`), StatusParseError},
		{"top level array", respond(`[{"symbol":"TCS"}]`), respond(gainersJSON), StatusParseError},
		{"both empty", respond(`{"data":[]}`), respond(`{"time":"x"}`), StatusEmpty},
		{"null data", respond(`{"data":null}`), respond(`{"data":[]}`), StatusEmpty},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := nseForMovers(t, tt.gainers, tt.losers).FetchTopMovers(context.Background())
			if res.Status != tt.want {
				t.Errorf("status = %s, want %s (%v)", res.Status, tt.want, res.Err)
			}
			if res.Data.Gainers == nil || res.Data.Losers == nil {
				t.Fatal("sides must be non-nil empty slices")
			}
			if len(res.Data.Gainers) != 0 || len(res.Data.Losers) != 0 {
				t.Errorf("got %d/%d rows, want both sides empty", len(res.Data.Gainers), len(res.Data.Losers))
			}
		})
	}
}

func TestFetchTopMoversTolerantRows(t *testing.T) {
	gainers := `{"data":[
		{"symbol":"ITC","ltp":"1,234.50","change":"-","pChange":" 1.2 "},
		{"ltp":10},
		"garbage",
		{"symbol":"HDFCBANK","ltp":1600,"change":{"x":1},"pChange":null}
	]}`
	n := nseForMovers(t, respond(gainers), respond(`{"data":[]}`))

	res := n.FetchTopMovers(context.Background())
	if res.Status != StatusOK {
		t.Fatalf("status = %s (%v)", res.Status, res.Err)
	}
	if len(res.Data.Gainers) != 2 {
		t.Fatalf("gainers = %+v, want 2 rows", res.Data.Gainers)
	}
	itc := res.Data.Gainers[0]
	if !itc.LastTradedPrice.Equal(models.Dec(1234.5)) || itc.Change.Valid || !itc.PercentChange.Equal(models.Dec(1.2)) {
		t.Errorf("ITC = %+v", itc)
	}
	hdfc := res.Data.Gainers[1]
	if hdfc.Symbol != "HDFCBANK" || hdfc.Change.Valid || hdfc.PercentChange.Valid {
		t.Errorf("HDFCBANK = %+v", hdfc)
	}
}

func TestFetchTopMoversSendsBrowserHeaders(t *testing.T) {
	var mu sync.Mutex
	var referers []string
	capture := func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		referers = append(referers, r.Header.Get("Referer"))
		mu.Unlock()
		if !strings.Contains(r.Header.Get("User-Agent"), "Mozilla") {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Write([]byte(gainersJSON))
	}
	res := nseForMovers(t, capture, capture).FetchTopMovers(context.Background())
	if res.Status != StatusOK {
		t.Fatalf("status = %s (%v)", res.Status, res.Err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(referers) != 2 || referers[0] != nseBaseURL {
		t.Errorf("referers = %v", referers)
	}
}

// --- Repeatability ---

func sameMoverRows(a, b []models.MoverRecord) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Symbol != b[i].Symbol ||
			!a[i].LastTradedPrice.Equal(b[i].LastTradedPrice) ||
			!a[i].Change.Equal(b[i].Change) ||
			!a[i].PercentChange.Equal(b[i].PercentChange) {
			return false
		}
	}
	return true
}

func TestFetchConstituentSymbolsRepeatable(t *testing.T) {
	n, _ := nseForListing(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(listingHTML))
	}, nil)

	first := n.FetchConstituentSymbols(context.Background())
	second := n.FetchConstituentSymbols(context.Background())
	if first.Status != StatusOK || second.Status != first.Status {
		t.Fatalf("statuses = %s / %s", first.Status, second.Status)
	}
	if len(first.Data) != len(second.Data) {
		t.Fatalf("repeated calls differ: %v / %v", first.Data, second.Data)
	}
	for i := range first.Data {
		if first.Data[i] != second.Data[i] {
			t.Errorf("symbol[%d] = %q then %q", i, first.Data[i], second.Data[i])
		}
	}
}

func TestFetchTopMoversRepeatable(t *testing.T) {
	losers := `{"data":[{"symbol":"INFY","ltp":"1,480.25","change":-30.5,"pChange":"-2.02"}]}`
	n := nseForMovers(t, respond(gainersJSON), respond(losers))

	first := n.FetchTopMovers(context.Background())
	second := n.FetchTopMovers(context.Background())
	if first.Status != StatusOK || second.Status != first.Status {
		t.Fatalf("statuses = %s / %s", first.Status, second.Status)
	}
	if !sameMoverRows(first.Data.Gainers, second.Data.Gainers) || !sameMoverRows(first.Data.Losers, second.Data.Losers) {
		t.Errorf("repeated calls differ:\n%+v\n%+v", first.Data, second.Data)
	}
	if len(first.Data.Gainers) != 1 || len(first.Data.Losers) != 1 {
		t.Errorf("got %d/%d rows, want 1/1", len(first.Data.Gainers), len(first.Data.Losers))
	}
}
