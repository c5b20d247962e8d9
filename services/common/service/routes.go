// Package service provides common service infrastructure: the base service
// lifecycle, standard routes and a JSON request-statistics snapshot.
package service

import (
	"net/http"
	"time"

	"github.com/R3E-Network/compliance_layer/internal/httputil"
)

// =============================================================================
// Standard Response Types
// =============================================================================

// HealthResponse is the standard response for /health endpoint.
type HealthResponse struct {
	Status    string         `json:"status"`
	Service   string         `json:"service"`
	Version   string         `json:"version"`
	Timestamp string         `json:"timestamp"`
	Details   map[string]any `json:"details,omitempty"`
}

// InfoResponse is the standard response for /info endpoint.
type InfoResponse struct {
	Status     string         `json:"status"`
	Service    string         `json:"service"`
	Version    string         `json:"version"`
	Timestamp  string         `json:"timestamp"`
	Statistics map[string]any `json:"statistics,omitempty"`
}

// =============================================================================
// Standard Handlers
// =============================================================================

// HealthHandler returns the /health handler. An unhealthy service answers
// 503 so load balancers can act on it.
func HealthHandler(s *BaseService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := s.HealthStatus(r.Context())

		code := http.StatusOK
		if status != "healthy" {
			code = http.StatusServiceUnavailable
		}
		httputil.WriteJSON(w, code, HealthResponse{
			Status:    status,
			Service:   s.Name(),
			Version:   s.Version(),
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Details:   s.HealthDetails(),
		})
	}
}

// InfoHandler returns the /info handler. It includes statistics from the
// registered stats function if available.
func InfoHandler(s *BaseService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := InfoResponse{
			Status:    "active",
			Service:   s.Name(),
			Version:   s.Version(),
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}
		if s.statsFn != nil {
			resp.Statistics = s.statsFn()
		}
		httputil.WriteJSON(w, http.StatusOK, resp)
	}
}

// =============================================================================
// Route Registration
// =============================================================================

// RegisterStandardRoutes registers the standard /health and /info endpoints.
func (b *BaseService) RegisterStandardRoutes() {
	b.router.HandleFunc("/health", HealthHandler(b)).Methods(http.MethodGet)
	b.router.HandleFunc("/info", InfoHandler(b)).Methods(http.MethodGet)
}
