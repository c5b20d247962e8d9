package gaschecker

import "fmt"

func expiredAlert(c Certificate) string {
	return fmt.Sprintf("🚨 EXPIRED: %s gas certificate expired on %s", c.PropertyName, c.ExpiryDate)
}

func expiringAlert(c Certificate, daysRemaining int) string {
	return fmt.Sprintf("⚠️ RENEW SOON: %s gas certificate expires on %s (%d days remaining)", c.PropertyName, c.ExpiryDate, daysRemaining)
}

func missingUploadAlert(c Certificate) string {
	return fmt.Sprintf("📄 MISSING UPLOAD: %s certificate file not uploaded", c.PropertyName)
}

func dataErrorAlert(c Certificate, reason error) string {
	return fmt.Sprintf("❗ DATA ERROR: %s certificate %s: %v", c.PropertyName, c.ID, reason)
}

func expiredSummary(n int) string {
	return fmt.Sprintf("🚨 URGENT: %d certificate(s) have expired and require immediate renewal", n)
}

func expiringSummary(n, lookaheadDays int) string {
	return fmt.Sprintf("⚠️ ACTION REQUIRED: %d certificate(s) expiring within %d days", n, lookaheadDays)
}

func missingSummary(n int) string {
	return fmt.Sprintf("📄 UPLOAD REQUIRED: %d certificate(s) missing PDF uploads", n)
}

// FailureAlert is the single alert of a degraded result.
func FailureAlert(err error) string {
	return fmt.Sprintf("Error running gas checker: %v", err)
}
