// Package api: configuration inspection endpoints.
package api

import (
	"net/http"

	"github.com/seenimoa/niftypulse/internal/config"
	"github.com/seenimoa/niftypulse/pkg/models"
)

// ConfigResponse is the JSON body returned by GET /api/v1/config.
type ConfigResponse struct {
	Fetch     config.FetchConfig     `json:"fetch"`
	Sources   config.SourcesConfig   `json:"sources"`
	Basket    []models.IndexMember   `json:"basket"`
	Dashboard config.DashboardConfig `json:"dashboard"`
	Logging   config.LoggingConfig   `json:"logging"`
}

// handleGetConfig returns the running configuration. The API section is
// left out.
func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data: ConfigResponse{
			Fetch:     s.cfg.Fetch,
			Sources:   s.cfg.Sources,
			Basket:    s.cfg.Basket,
			Dashboard: s.cfg.Dashboard,
			Logging:   s.cfg.Logging,
		},
	})
}

// handleGetSettings reports where each tunable setting came from (env,
// config file or default).
func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    config.CheckSettings(s.cfg),
	})
}
