package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/seenimoa/niftypulse/internal/datasource"
	"github.com/seenimoa/niftypulse/pkg/utils"
)

// maxHeadlines caps the limit query parameter of /market/headlines.
const maxHeadlines = 100

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status       string `json:"status"`
	MarketStatus string `json:"market_status"`
	Time         string `json:"time"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data: HealthResponse{
			Status:       "ok",
			MarketStatus: utils.MarketStatus(),
			Time:         utils.FormatDateTimeIST(utils.NowIST()),
		},
	})
}

// handleTickers returns the NIFTY 200 constituents. ?unique=true removes
// repeated symbols.
func (s *Server) handleTickers(w http.ResponseWriter, r *http.Request) {
	unique, err := boolParam(r, "unique")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res := s.market.FetchConstituentSymbols(r.Context())
	if unique && res.OK() {
		res.Data = utils.DedupeTickers(res.Data)
	}
	writeResult(w, res)
}

func (s *Server) handleMovers(w http.ResponseWriter, r *http.Request) {
	writeResult(w, s.market.FetchTopMovers(r.Context()))
}

func (s *Server) handleIndices(w http.ResponseWriter, r *http.Request) {
	writeResult(w, s.market.FetchIndexSnapshots(r.Context()))
}

// handleHeadlines returns market headlines, newest first. ?limit=N defaults
// to the configured dashboard limit.
func (s *Server) handleHeadlines(w http.ResponseWriter, r *http.Request) {
	limit := s.cfg.Dashboard.HeadlineLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxHeadlines {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("limit must be between 1 and %d", maxHeadlines))
			return
		}
		limit = n
	}
	writeResult(w, s.market.FetchHeadlines(r.Context(), limit))
}

// handleOverview returns the quote overview of {symbol}, or of the
// configured overview index when no symbol is given.
func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	symbol := strings.TrimSpace(chi.URLParam(r, "symbol"))
	writeResult(w, s.market.FetchOverview(r.Context(), symbol))
}

// handleHistory returns daily candles of {symbol}. ?range= accepts the
// chart ranges (1mo, 1y, max, ...), default 1y.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	symbol := strings.TrimSpace(chi.URLParam(r, "symbol"))
	rangeSpec := r.URL.Query().Get("range")
	if rangeSpec == "" {
		rangeSpec = datasource.DefaultHistoryRange
	}
	if !datasource.ValidHistoryRange(rangeSpec) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unsupported range %q", rangeSpec))
		return
	}
	writeResult(w, s.market.FetchHistory(r.Context(), symbol, rangeSpec))
}

// handleDashboard returns every dashboard section with its own status.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	d := s.market.Snapshot(r.Context())
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Status:  string(datasource.StatusOK),
		Data:    d,
	})
}

func boolParam(r *http.Request, name string) (bool, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s must be true or false", name)
	}
	return b, nil
}
