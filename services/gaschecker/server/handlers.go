package server

import (
	"context"
	"net/http"
	"strconv"

	svcerrors "github.com/R3E-Network/compliance_layer/internal/errors"
	"github.com/R3E-Network/compliance_layer/internal/httputil"
	"github.com/R3E-Network/compliance_layer/services/gaschecker"
)

// handleRun triggers one evaluation and returns its result.
func (s *Service) handleRun(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.runTimeout)
	defer cancel()

	result, err := s.runner.Run(ctx, gaschecker.TriggerManual)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, http.StatusOK, result)
}

func (s *Service) handleListCertificates(w http.ResponseWriter, r *http.Request) {
	certs, err := s.certs.List(r.Context())
	if err != nil {
		s.Logger().Entry(r.Context()).WithError(err).Error("list certificates failed")
		httputil.WriteError(w, err)
		return
	}
	if certs == nil {
		certs = []gaschecker.Certificate{}
	}
	httputil.WriteSuccess(w, http.StatusOK, certs)
}

func (s *Service) handleCreateCertificate(w http.ResponseWriter, r *http.Request) {
	var cert gaschecker.Certificate
	if !httputil.DecodeJSON(w, r, &cert) {
		return
	}
	cert.Normalize()
	if err := cert.Validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := s.certs.Create(r.Context(), &cert); err != nil {
		s.Logger().Entry(r.Context()).WithError(err).WithField("certificate_id", cert.ID).Warn("create certificate failed")
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, http.StatusCreated, cert)
}

func (s *Service) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			httputil.WriteError(w, svcerrors.Validation("limit must be a positive integer").WithDetail("limit", raw))
			return
		}
		limit = n
	}

	entries, err := s.audit.List(r.Context(), gaschecker.ClampAuditLimit(limit))
	if err != nil {
		s.Logger().Entry(r.Context()).WithError(err).Error("list runs failed")
		httputil.WriteError(w, err)
		return
	}
	if entries == nil {
		entries = []gaschecker.AuditEntry{}
	}
	httputil.WriteSuccess(w, http.StatusOK, entries)
}

func (s *Service) handleNotFound(w http.ResponseWriter, r *http.Request) {
	httputil.WriteError(w, svcerrors.NotFound("route", r.Method+" "+r.URL.Path))
}
