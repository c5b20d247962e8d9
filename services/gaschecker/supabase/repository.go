// Package supabase stores certificates and audit entries in Supabase tables
// through the PostgREST API.
package supabase

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	svcerrors "github.com/R3E-Network/compliance_layer/internal/errors"
	"github.com/R3E-Network/compliance_layer/services/gaschecker"
	"github.com/R3E-Network/compliance_layer/supabase/client"
)

// Default table names.
const (
	DefaultCertificatesTable = "gas_certificates"
	DefaultLogsTable         = "gas_checker_logs"
)

// =============================================================================
// Certificates
// =============================================================================

// CertificateRepository implements gaschecker.CertificateRepository.
type CertificateRepository struct {
	client *client.Client
	table  string
}

// NewCertificateRepository creates a repository over table.
func NewCertificateRepository(c *client.Client, table string) *CertificateRepository {
	if table == "" {
		table = DefaultCertificatesTable
	}
	return &CertificateRepository{client: c, table: table}
}

// List returns every certificate ordered by expiry.
func (r *CertificateRepository) List(ctx context.Context) ([]gaschecker.Certificate, error) {
	resp, err := r.client.From(r.table).
		Select("*").
		Order("expiry_date", true).
		Execute(ctx)
	if err != nil {
		return nil, transportError("list certificates", err)
	}
	if err := resp.Error(); err != nil {
		return nil, responseError("list certificates", err)
	}

	certs := []gaschecker.Certificate{}
	if err := resp.JSON(&certs); err != nil {
		return nil, svcerrors.DataAccess("decode certificates", err, false)
	}
	return certs, nil
}

// Create inserts a certificate.
func (r *CertificateRepository) Create(ctx context.Context, cert *gaschecker.Certificate) error {
	resp, err := r.client.From(r.table).ExecuteInsert(ctx, cert)
	if err != nil {
		return transportError("create certificate", err)
	}
	if err := resp.Error(); err != nil {
		var apiErr *client.APIError
		if errors.As(err, &apiErr) {
			switch {
			case apiErr.Code == "23505" || apiErr.StatusCode == http.StatusConflict:
				return svcerrors.Validation(fmt.Sprintf("certificate %s already exists", cert.ID))
			case apiErr.Code == "23514" || apiErr.Code == "22007" || apiErr.Code == "22008":
				return svcerrors.Validation(fmt.Sprintf("certificate rejected: %s", apiErr.Message))
			}
		}
		return responseError("create certificate", err)
	}
	return nil
}

// =============================================================================
// Audit log
// =============================================================================

// AuditRepository implements gaschecker.AuditLog.
type AuditRepository struct {
	client *client.Client
	table  string
}

// NewAuditRepository creates an audit log over table.
func NewAuditRepository(c *client.Client, table string) *AuditRepository {
	if table == "" {
		table = DefaultLogsTable
	}
	return &AuditRepository{client: c, table: table}
}

// Save appends result to the audit log.
func (r *AuditRepository) Save(ctx context.Context, result *gaschecker.Result) error {
	entry := gaschecker.NewAuditEntry(result)
	resp, err := r.client.From(r.table).ExecuteInsert(ctx, entry)
	if err != nil {
		return svcerrors.AuditWrite("save audit entry", err)
	}
	if err := resp.Error(); err != nil {
		return svcerrors.AuditWrite("save audit entry", err)
	}
	return nil
}

// List returns at most limit entries, newest first.
func (r *AuditRepository) List(ctx context.Context, limit int) ([]gaschecker.AuditEntry, error) {
	resp, err := r.client.From(r.table).
		Select("*").
		Order("timestamp", false).
		Limit(gaschecker.ClampAuditLimit(limit)).
		Execute(ctx)
	if err != nil {
		return nil, transportError("list audit entries", err)
	}
	if err := resp.Error(); err != nil {
		return nil, responseError("list audit entries", err)
	}

	entries := []gaschecker.AuditEntry{}
	if err := resp.JSON(&entries); err != nil {
		return nil, svcerrors.DataAccess("decode audit entries", err, false)
	}
	return entries, nil
}

// =============================================================================
// Error classification
// =============================================================================

// transportError wraps a failure to reach Supabase. Everything except caller
// cancellation is worth retrying.
func transportError(op string, err error) error {
	return svcerrors.DataAccess(op, err, !errors.Is(err, context.Canceled))
}

func responseError(op string, err error) error {
	var apiErr *client.APIError
	retryable := errors.As(err, &apiErr) && apiErr.Transient()
	return svcerrors.DataAccess(op, err, retryable)
}
