package gaschecker

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/compliance_layer/pkg/testutil"
)

var evalNow = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

func cert(id, name, issue, expiry string, upload UploadStatus) Certificate {
	return Certificate{
		ID:              id,
		PropertyName:    name,
		CertificateType: DefaultCertificateType,
		IssueDate:       issue,
		ExpiryDate:      expiry,
		UploadStatus:    upload,
	}
}

// expectedAlerts derives the alert list from the classification rule so tests
// never hardcode a count.
func expectedAlerts(t *testing.T, now time.Time, lookahead time.Duration, certs []Certificate) []string {
	t.Helper()
	var expired, expiring, missing int
	var details []string
	for _, c := range certs {
		_, expiry, err := c.Dates()
		require.NoError(t, err)
		switch {
		case expiry.Before(now):
			expired++
			details = append(details, fmt.Sprintf("🚨 EXPIRED: %s gas certificate expired on %s", c.PropertyName, c.ExpiryDate))
		case !expiry.After(now.Add(lookahead)):
			expiring++
			days := int(expiry.Sub(now).Milliseconds() / 86400000)
			if expiry.Sub(now).Milliseconds()%86400000 != 0 {
				days++
			}
			details = append(details, fmt.Sprintf("⚠️ RENEW SOON: %s gas certificate expires on %s (%d days remaining)", c.PropertyName, c.ExpiryDate, days))
		}
		if c.UploadStatus == UploadMissing {
			missing++
			details = append(details, fmt.Sprintf("📄 MISSING UPLOAD: %s certificate file not uploaded", c.PropertyName))
		}
	}
	out := []string{}
	if expired > 0 {
		out = append(out, fmt.Sprintf("🚨 URGENT: %d certificate(s) have expired and require immediate renewal", expired))
	}
	if expiring > 0 {
		out = append(out, fmt.Sprintf("⚠️ ACTION REQUIRED: %d certificate(s) expiring within %d days", expiring, int(lookahead/(24*time.Hour))))
	}
	if missing > 0 {
		out = append(out, fmt.Sprintf("📄 UPLOAD REQUIRED: %d certificate(s) missing PDF uploads", missing))
	}
	return append(out, details...)
}

func TestEvaluate_Scenario(t *testing.T) {
	certs := []Certificate{
		cert("a", "Past Lane", testutil.DayOffset(evalNow, -366), testutil.DayOffset(evalNow, -1), UploadUploaded),
		cert("b", "Soon Street", testutil.DayOffset(evalNow, -355), testutil.DayOffset(evalNow, 10), UploadPending),
		cert("c", "Far Road", testutil.DayOffset(evalNow, -1), testutil.DayOffset(evalNow, 400), UploadMissing),
	}

	result := NewEvaluator(0).Evaluate(evalNow, certs)

	assert.Equal(t, 3, result.TotalCertificates)
	assert.Equal(t, 1, result.ExpiredCertificates)
	assert.Equal(t, 1, result.ExpiringSoon)
	assert.Equal(t, 1, result.ValidCertificates)
	assert.Equal(t, 1, result.MissingUploads)
	assert.Equal(t, 0, result.InvalidCertificates)
	assert.False(t, result.Degraded)
	assert.Equal(t, expectedAlerts(t, evalNow, DefaultLookahead, certs), result.Alerts)

	require.Len(t, result.CertificatesChecked, 3)
	assert.Equal(t, StatusExpired, result.CertificatesChecked[0].Status)
	assert.Equal(t, StatusExpiringSoon, result.CertificatesChecked[1].Status)
	assert.Equal(t, StatusValid, result.CertificatesChecked[2].Status)
	assert.Contains(t, result.Alerts, "⚠️ RENEW SOON: Soon Street gas certificate expires on "+testutil.DayOffset(evalNow, 10)+" (10 days remaining)")
}

func TestEvaluate_SummaryOrder(t *testing.T) {
	certs := []Certificate{
		cert("1", "Bristol HQ", "2024-01-15", "2025-01-15", UploadMissing),
		cert("2", "Jones Flat", "2024-06-10", testutil.DayOffset(evalNow, 5), UploadUploaded),
	}

	result := NewEvaluator(DefaultLookahead).Evaluate(evalNow, certs)

	require.Len(t, result.Alerts, 6)
	assert.True(t, strings.HasPrefix(result.Alerts[0], "🚨 URGENT: 1 certificate(s)"))
	assert.True(t, strings.HasPrefix(result.Alerts[1], "⚠️ ACTION REQUIRED: 1 certificate(s) expiring within 30 days"))
	assert.True(t, strings.HasPrefix(result.Alerts[2], "📄 UPLOAD REQUIRED: 1 certificate(s)"))
	assert.Equal(t, "🚨 EXPIRED: Bristol HQ gas certificate expired on 2025-01-15", result.Alerts[3])
	assert.Equal(t, "📄 MISSING UPLOAD: Bristol HQ certificate file not uploaded", result.Alerts[4])
	assert.True(t, strings.HasPrefix(result.Alerts[5], "⚠️ RENEW SOON: Jones Flat"))
}

func TestEvaluate_SummaryCountMatchesNonzeroCounters(t *testing.T) {
	testCases := []struct {
		name  string
		certs []Certificate
	}{
		{name: "empty"},
		{name: "all valid", certs: []Certificate{
			cert("1", "A", "2025-01-01", "2026-01-01", UploadUploaded),
			cert("2", "B", "2025-01-01", "2026-03-01", UploadPending),
		}},
		{name: "only missing", certs: []Certificate{
			cert("1", "A", "2025-01-01", "2026-01-01", UploadMissing),
		}},
		{name: "expired and missing", certs: []Certificate{
			cert("1", "A", "2024-01-01", "2025-01-01", UploadMissing),
			cert("2", "B", "2024-01-01", "2025-02-01", UploadUploaded),
		}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result := NewEvaluator(0).Evaluate(evalNow, tc.certs)

			want := 0
			for _, n := range []int{result.ExpiredCertificates, result.ExpiringSoon, result.MissingUploads} {
				if n > 0 {
					want++
				}
			}
			summaries := 0
			for _, a := range result.Alerts {
				if strings.Contains(a, "URGENT:") || strings.Contains(a, "ACTION REQUIRED:") || strings.Contains(a, "UPLOAD REQUIRED:") {
					summaries++
				}
			}
			assert.Equal(t, want, summaries)
			assert.Equal(t, expectedAlerts(t, evalNow, DefaultLookahead, tc.certs), result.Alerts)
		})
	}
}

func TestEvaluate_InclusiveBoundary(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	atBoundary := now.Add(DefaultLookahead)

	certs := []Certificate{
		cert("edge", "Edge House", "2025-01-01", testutil.Instant(atBoundary), UploadUploaded),
		cert("past-edge", "Past Edge", "2025-01-01", testutil.Instant(atBoundary.Add(time.Millisecond)), UploadUploaded),
		cert("now", "Right Now", "2025-01-01", testutil.Instant(now), UploadUploaded),
		cert("just-gone", "Just Gone", "2025-01-01", testutil.Instant(now.Add(-time.Millisecond)), UploadUploaded),
	}

	result := NewEvaluator(DefaultLookahead).Evaluate(now, certs)

	assert.Equal(t, StatusExpiringSoon, result.CertificatesChecked[0].Status)
	assert.Equal(t, StatusValid, result.CertificatesChecked[1].Status)
	assert.Equal(t, StatusExpiringSoon, result.CertificatesChecked[2].Status)
	assert.Equal(t, StatusExpired, result.CertificatesChecked[3].Status)
	assert.Contains(t, result.Alerts, fmt.Sprintf("⚠️ RENEW SOON: Edge House gas certificate expires on %s (30 days remaining)", testutil.Instant(atBoundary)))
	assert.Contains(t, result.Alerts, fmt.Sprintf("⚠️ RENEW SOON: Right Now gas certificate expires on %s (0 days remaining)", testutil.Instant(now)))
}

func TestEvaluate_DaysRemainingRoundsUp(t *testing.T) {
	testCases := []struct {
		offset time.Duration
		want   int
	}{
		{time.Millisecond, 1},
		{24 * time.Hour, 1},
		{24*time.Hour + time.Millisecond, 2},
		{10*24*time.Hour - time.Hour, 10},
		{0, 0},
	}

	for _, tc := range testCases {
		t.Run(tc.offset.String(), func(t *testing.T) {
			assert.Equal(t, tc.want, DaysRemaining(evalNow, evalNow.Add(tc.offset)))
		})
	}
}

func TestEvaluate_Idempotent(t *testing.T) {
	certs := SeedCertificates()
	e := NewEvaluator(0)

	first := e.Evaluate(evalNow, certs)
	second := e.Evaluate(evalNow, certs)

	assert.Equal(t, first.Alerts, second.Alerts)
	assert.Equal(t, first.CertificatesChecked, second.CertificatesChecked)
	first.Timestamp, second.Timestamp = time.Time{}, time.Time{}
	assert.Equal(t, first, second)
}

func TestEvaluate_DoesNotMutateInput(t *testing.T) {
	certs := SeedCertificates()
	certs[0].Status = StatusValid
	snapshot := append([]Certificate(nil), certs...)

	result := NewEvaluator(0).Evaluate(evalNow, certs)

	assert.Equal(t, snapshot, certs)
	assert.Equal(t, StatusExpired, result.CertificatesChecked[0].Status, "stored status is never trusted")
}

func TestEvaluate_InvalidDatesAreIsolated(t *testing.T) {
	certs := []Certificate{
		cert("bad-expiry", "Broken Cottage", "2024-01-01", "31/12/2025", UploadUploaded),
		cert("inverted", "Backwards Barn", "2025-05-01", "2025-04-01", UploadMissing),
		cert("ok", "Fine Farm", "2025-01-01", "2026-01-01", UploadUploaded),
	}

	result := NewEvaluator(0).Evaluate(evalNow, certs)

	assert.Equal(t, 3, result.TotalCertificates)
	assert.Equal(t, 2, result.InvalidCertificates)
	assert.Equal(t, 1, result.ValidCertificates)
	assert.Equal(t, 1, result.MissingUploads)
	assert.Equal(t, StatusUnknown, result.CertificatesChecked[0].Status)
	assert.Equal(t, StatusUnknown, result.CertificatesChecked[1].Status)
	assert.Equal(t, StatusValid, result.CertificatesChecked[2].Status)

	require.Len(t, result.Alerts, 4)
	assert.Equal(t, "📄 UPLOAD REQUIRED: 1 certificate(s) missing PDF uploads", result.Alerts[0])
	assert.Equal(t, `❗ DATA ERROR: Broken Cottage certificate bad-expiry: invalid expiry_date "31/12/2025"`, result.Alerts[1])
	assert.Equal(t, "❗ DATA ERROR: Backwards Barn certificate inverted: expiry_date 2025-04-01 is not after issue_date 2025-05-01", result.Alerts[2])
	assert.Equal(t, "📄 MISSING UPLOAD: Backwards Barn certificate file not uploaded", result.Alerts[3])
}

func TestEvaluate_CustomLookahead(t *testing.T) {
	e := NewEvaluator(7 * 24 * time.Hour)
	certs := []Certificate{
		cert("1", "Week Out", "2025-01-01", testutil.DayOffset(evalNow, 7), UploadUploaded),
		cert("2", "Fortnight", "2025-01-01", testutil.DayOffset(evalNow, 14), UploadUploaded),
	}

	result := e.Evaluate(evalNow, certs)

	assert.Equal(t, 7, e.LookaheadDays())
	assert.Equal(t, 1, result.ExpiringSoon)
	assert.Equal(t, 1, result.ValidCertificates)
	assert.Equal(t, "⚠️ ACTION REQUIRED: 1 certificate(s) expiring within 7 days", result.Alerts[0])
}

func TestEvaluate_EmptyInputHasNoAlerts(t *testing.T) {
	result := NewEvaluator(0).Evaluate(evalNow, nil)

	assert.NotNil(t, result.Alerts)
	assert.Empty(t, result.Alerts)
	assert.NotNil(t, result.CertificatesChecked)
	assert.Equal(t, evalNow, result.Timestamp)
}
