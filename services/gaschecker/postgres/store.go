// Package postgres stores certificates and audit entries in Postgres.
package postgres

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	svcerrors "github.com/R3E-Network/compliance_layer/internal/errors"
	"github.com/R3E-Network/compliance_layer/internal/platform/migrations"
	"github.com/R3E-Network/compliance_layer/services/gaschecker"
)

// =============================================================================
// Certificates
// =============================================================================

// CertificateStore implements gaschecker.CertificateRepository.
type CertificateStore struct {
	db    *sqlx.DB
	table string
}

// NewCertificateStore creates a store over table. Empty means the default.
func NewCertificateStore(db *sqlx.DB, table string) *CertificateStore {
	if table == "" {
		table = migrations.DefaultCertificatesTable
	}
	return &CertificateStore{db: db, table: pq.QuoteIdentifier(table)}
}

// List returns every certificate ordered by expiry.
func (s *CertificateStore) List(ctx context.Context) ([]gaschecker.Certificate, error) {
	query := fmt.Sprintf(`SELECT id, property_name, certificate_type,
		to_char(issue_date, 'YYYY-MM-DD') AS issue_date,
		to_char(expiry_date, 'YYYY-MM-DD') AS expiry_date,
		status, assigned_engineer, upload_status
		FROM %s ORDER BY expiry_date, id`, s.table)

	var certs []gaschecker.Certificate
	if err := s.db.SelectContext(ctx, &certs, query); err != nil {
		return nil, classify("list certificates", err)
	}
	if certs == nil {
		certs = []gaschecker.Certificate{}
	}
	return certs, nil
}

// Create inserts a certificate.
func (s *CertificateStore) Create(ctx context.Context, cert *gaschecker.Certificate) error {
	query := fmt.Sprintf(`INSERT INTO %s
		(id, property_name, certificate_type, issue_date, expiry_date, status, assigned_engineer, upload_status)
		VALUES (:id, :property_name, :certificate_type, :issue_date, :expiry_date, :status, :assigned_engineer, :upload_status)`, s.table)

	if _, err := s.db.NamedExecContext(ctx, query, cert); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) {
			switch pqErr.Code {
			case "23505":
				return svcerrors.Validation(fmt.Sprintf("certificate %s already exists", cert.ID))
			case "23514", "22007", "22008":
				return svcerrors.Validation(fmt.Sprintf("certificate rejected: %s", pqErr.Message))
			}
		}
		return classify("create certificate", err)
	}
	return nil
}

// =============================================================================
// Audit log
// =============================================================================

// AuditStore implements gaschecker.AuditLog.
type AuditStore struct {
	db    *sqlx.DB
	table string
}

// NewAuditStore creates an audit log over table. Empty means the default.
func NewAuditStore(db *sqlx.DB, table string) *AuditStore {
	if table == "" {
		table = migrations.DefaultLogsTable
	}
	return &AuditStore{db: db, table: pq.QuoteIdentifier(table)}
}

type auditRow struct {
	ID                string    `db:"id"`
	Timestamp         time.Time `db:"timestamp"`
	TotalCertificates int       `db:"total_certificates"`
	AlertsCount       int       `db:"alerts_count"`
	Results           []byte    `db:"results"`
}

// Save appends result to the audit log.
func (s *AuditStore) Save(ctx context.Context, result *gaschecker.Result) error {
	entry := gaschecker.NewAuditEntry(result)
	payload, err := json.Marshal(entry.Results)
	if err != nil {
		return svcerrors.AuditWrite("encode audit entry", err)
	}

	query := fmt.Sprintf(`INSERT INTO %s (id, timestamp, total_certificates, alerts_count, results)
		VALUES ($1, $2, $3, $4, $5)`, s.table)
	if _, err := s.db.ExecContext(ctx, query, entry.ID, entry.Timestamp, entry.TotalCertificates, entry.AlertsCount, payload); err != nil {
		return svcerrors.AuditWrite("save audit entry", err)
	}
	return nil
}

// List returns at most limit entries, newest first.
func (s *AuditStore) List(ctx context.Context, limit int) ([]gaschecker.AuditEntry, error) {
	query := fmt.Sprintf(`SELECT id, timestamp, total_certificates, alerts_count, results
		FROM %s ORDER BY timestamp DESC LIMIT $1`, s.table)

	var rows []auditRow
	if err := s.db.SelectContext(ctx, &rows, query, gaschecker.ClampAuditLimit(limit)); err != nil {
		return nil, classify("list audit entries", err)
	}

	entries := make([]gaschecker.AuditEntry, 0, len(rows))
	for _, row := range rows {
		entry := gaschecker.AuditEntry{
			ID:                row.ID,
			Timestamp:         row.Timestamp.UTC(),
			TotalCertificates: row.TotalCertificates,
			AlertsCount:       row.AlertsCount,
		}
		if len(row.Results) > 0 {
			var result gaschecker.Result
			if err := json.Unmarshal(row.Results, &result); err != nil {
				return nil, svcerrors.DataAccess(fmt.Sprintf("decode audit entry %s", row.ID), err, false)
			}
			entry.Results = &result
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// =============================================================================
// Error classification
// =============================================================================

// transientClasses are SQLSTATE classes worth retrying: connection
// exceptions, insufficient resources and operator intervention.
var transientClasses = []string{"08", "53", "57"}

func classify(op string, err error) error {
	return svcerrors.DataAccess(op, err, isTransient(err))
}

func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		for _, class := range transientClasses {
			if strings.HasPrefix(string(pqErr.Code), class) {
				return true
			}
		}
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
