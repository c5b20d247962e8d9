package gaschecker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	svcerrors "github.com/R3E-Network/compliance_layer/internal/errors"
)

func TestParseDate(t *testing.T) {
	testCases := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{in: "2025-02-11", want: time.Date(2025, 2, 11, 0, 0, 0, 0, time.UTC)},
		{in: " 2025-02-11 ", want: time.Date(2025, 2, 11, 0, 0, 0, 0, time.UTC)},
		{in: "2025-02-11T09:30:00Z", want: time.Date(2025, 2, 11, 9, 30, 0, 0, time.UTC)},
		{in: "2025-02-11T09:30:00.250+01:00", want: time.Date(2025, 2, 11, 8, 30, 0, 250_000_000, time.UTC)},
		{in: "", wantErr: true},
		{in: "11/02/2025", wantErr: true},
		{in: "2025-02-30", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseDate(tc.in)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, tc.want.Equal(got), "got %v want %v", got, tc.want)
		})
	}
}

func TestCertificate_NormalizeAndValidate(t *testing.T) {
	c := Certificate{PropertyName: " Smith Property ", IssueDate: "2025-01-01", ExpiryDate: "2026-01-01", Status: StatusExpired}
	c.Normalize()

	assert.NotEmpty(t, c.ID)
	assert.Equal(t, "Smith Property", c.PropertyName)
	assert.Equal(t, DefaultCertificateType, c.CertificateType)
	assert.Equal(t, UploadPending, c.UploadStatus)
	assert.Empty(t, c.Status)
	assert.NoError(t, c.Validate())
}

func TestCertificate_ValidateRejects(t *testing.T) {
	base := Certificate{ID: "1", PropertyName: "A", IssueDate: "2025-01-01", ExpiryDate: "2026-01-01", UploadStatus: UploadUploaded}

	testCases := []struct {
		name   string
		mutate func(*Certificate)
	}{
		{"missing name", func(c *Certificate) { c.PropertyName = "" }},
		{"bad upload status", func(c *Certificate) { c.UploadStatus = "lost" }},
		{"bad issue date", func(c *Certificate) { c.IssueDate = "soon" }},
		{"expiry equals issue", func(c *Certificate) { c.ExpiryDate = c.IssueDate }},
		{"expiry before issue", func(c *Certificate) { c.ExpiryDate = "2024-12-31" }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := base
			tc.mutate(&c)
			err := c.Validate()
			assert.ErrorIs(t, err, svcerrors.ErrValidation)
		})
	}
}

func TestNewAuditEntry(t *testing.T) {
	result := NewEvaluator(0).Evaluate(evalNow, SeedCertificates())
	entry := NewAuditEntry(result)

	assert.NotEmpty(t, entry.ID)
	assert.Equal(t, result.Timestamp, entry.Timestamp)
	assert.Equal(t, 3, entry.TotalCertificates)
	assert.Equal(t, len(result.Alerts), entry.AlertsCount)
	assert.Same(t, result, entry.Results)
}
