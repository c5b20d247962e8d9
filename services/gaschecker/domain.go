// Package gaschecker tracks gas safety certificates, classifies them against
// the evaluation instant and produces the alerts and audit records of each
// run.
package gaschecker

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	svcerrors "github.com/R3E-Network/compliance_layer/internal/errors"
)

// DefaultCertificateType is used when a created certificate names no type.
const DefaultCertificateType = "Gas Safety Certificate"

// Status is the derived lifecycle state of a certificate.
type Status string

const (
	StatusValid        Status = "valid"
	StatusExpiringSoon Status = "expiring_soon"
	StatusExpired      Status = "expired"
	// StatusUnknown marks a certificate whose dates could not be evaluated.
	StatusUnknown Status = "unknown"
)

// UploadStatus tracks whether the certificate PDF has been uploaded.
type UploadStatus string

const (
	UploadUploaded UploadStatus = "uploaded"
	UploadPending  UploadStatus = "pending"
	UploadMissing  UploadStatus = "missing"
)

// Valid reports whether u is a known upload status.
func (u UploadStatus) Valid() bool {
	switch u {
	case UploadUploaded, UploadPending, UploadMissing:
		return true
	}
	return false
}

// Trigger records what started a run.
type Trigger string

const (
	TriggerSchedule Trigger = "schedule"
	TriggerManual   Trigger = "manual"
	TriggerStartup  Trigger = "startup"
)

// Certificate is a tracked compliance certificate. Dates are kept as the
// stored strings so alerts quote them verbatim.
type Certificate struct {
	ID               string       `json:"id" db:"id"`
	PropertyName     string       `json:"property_name" db:"property_name"`
	CertificateType  string       `json:"certificate_type" db:"certificate_type"`
	IssueDate        string       `json:"issue_date" db:"issue_date"`
	ExpiryDate       string       `json:"expiry_date" db:"expiry_date"`
	Status           Status       `json:"status,omitempty" db:"status"`
	AssignedEngineer string       `json:"assigned_engineer,omitempty" db:"assigned_engineer"`
	UploadStatus     UploadStatus `json:"upload_status" db:"upload_status"`
}

// Normalize fills defaults on a certificate about to be created.
func (c *Certificate) Normalize() {
	c.ID = strings.TrimSpace(c.ID)
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.PropertyName = strings.TrimSpace(c.PropertyName)
	c.CertificateType = strings.TrimSpace(c.CertificateType)
	if c.CertificateType == "" {
		c.CertificateType = DefaultCertificateType
	}
	c.IssueDate = strings.TrimSpace(c.IssueDate)
	c.ExpiryDate = strings.TrimSpace(c.ExpiryDate)
	if c.UploadStatus == "" {
		c.UploadStatus = UploadPending
	}
	// status is derived on every run and never accepted from callers
	c.Status = ""
}

// Validate checks a certificate before it is stored.
func (c *Certificate) Validate() error {
	if c.PropertyName == "" {
		return svcerrors.Validation("property_name is required")
	}
	if !c.UploadStatus.Valid() {
		return svcerrors.Validation(fmt.Sprintf("upload_status must be one of uploaded, pending, missing (got %q)", c.UploadStatus))
	}
	if _, _, err := c.Dates(); err != nil {
		return svcerrors.Validation(err.Error())
	}
	return nil
}

// Dates parses the issue and expiry dates and checks that expiry is after
// issue.
func (c *Certificate) Dates() (issue, expiry time.Time, err error) {
	issue, err = ParseDate(c.IssueDate)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid issue_date %q", c.IssueDate)
	}
	expiry, err = ParseDate(c.ExpiryDate)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid expiry_date %q", c.ExpiryDate)
	}
	if !expiry.After(issue) {
		return time.Time{}, time.Time{}, fmt.Errorf("expiry_date %s is not after issue_date %s", c.ExpiryDate, c.IssueDate)
	}
	return issue, expiry, nil
}

// dateLayouts are tried in order. A bare date is midnight UTC.
var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
}

// ParseDate parses a stored certificate date.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	var lastErr error
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// Result is the outcome of one evaluation run.
type Result struct {
	Timestamp           time.Time     `json:"timestamp"`
	Trigger             Trigger       `json:"trigger,omitempty"`
	TotalCertificates   int           `json:"total_certificates"`
	ValidCertificates   int           `json:"valid_certificates"`
	ExpiringSoon        int           `json:"expiring_soon"`
	ExpiredCertificates int           `json:"expired_certificates"`
	MissingUploads      int           `json:"missing_uploads"`
	InvalidCertificates int           `json:"invalid_certificates"`
	Alerts              []string      `json:"alerts"`
	CertificatesChecked []Certificate `json:"certificates_checked"`
	// Degraded is set when evaluation faulted and the fallback result was
	// returned instead.
	Degraded bool `json:"degraded"`
}

// Counts returns the per-state counters keyed by metric label.
func (r *Result) Counts() map[string]int {
	return map[string]int{
		"valid":           r.ValidCertificates,
		"expiring_soon":   r.ExpiringSoon,
		"expired":         r.ExpiredCertificates,
		"missing_uploads": r.MissingUploads,
		"invalid":         r.InvalidCertificates,
	}
}

// AuditEntry is one persisted run.
type AuditEntry struct {
	ID                string    `json:"id"`
	Timestamp         time.Time `json:"timestamp"`
	TotalCertificates int       `json:"total_certificates"`
	AlertsCount       int       `json:"alerts_count"`
	Results           *Result   `json:"results"`
}

// NewAuditEntry builds the audit record for result.
func NewAuditEntry(result *Result) *AuditEntry {
	return &AuditEntry{
		ID:                uuid.NewString(),
		Timestamp:         result.Timestamp,
		TotalCertificates: result.TotalCertificates,
		AlertsCount:       len(result.Alerts),
		Results:           result,
	}
}
