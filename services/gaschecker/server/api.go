package server

import "net/http"

// =============================================================================
// API Routes
// =============================================================================

// registerRoutes registers service-specific HTTP routes.
// /health and /info are registered by BaseService.RegisterStandardRoutes().
func (s *Service) registerRoutes() {
	router := s.Router()
	router.Handle("/gas-checker/run", s.limiter.Handler(http.HandlerFunc(s.handleRun))).Methods(http.MethodPost)
	router.HandleFunc("/gas-checker/certificates", s.handleListCertificates).Methods(http.MethodGet)
	router.HandleFunc("/gas-checker/certificates", s.handleCreateCertificate).Methods(http.MethodPost)
	router.HandleFunc("/gas-checker/runs", s.handleListRuns).Methods(http.MethodGet)
	router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	router.NotFoundHandler = http.HandlerFunc(s.handleNotFound)
}
