package gaschecker

import "time"

// DefaultLookahead is the window in which a certificate counts as expiring
// soon.
const DefaultLookahead = 30 * 24 * time.Hour

const dayMillis = int64(24 * time.Hour / time.Millisecond)

// ComplianceEvaluator classifies certificates at an instant.
type ComplianceEvaluator interface {
	Evaluate(now time.Time, certificates []Certificate) *Result
}

// Evaluator is the default ComplianceEvaluator. It is a pure function of its
// inputs and never modifies the certificates passed in.
type Evaluator struct {
	lookahead time.Duration
}

// NewEvaluator creates an Evaluator. A non-positive lookahead selects
// DefaultLookahead.
func NewEvaluator(lookahead time.Duration) *Evaluator {
	if lookahead <= 0 {
		lookahead = DefaultLookahead
	}
	return &Evaluator{lookahead: lookahead}
}

// Lookahead returns the expiring-soon window.
func (e *Evaluator) Lookahead() time.Duration {
	return e.lookahead
}

// LookaheadDays returns the window in whole days, as shown in alerts.
func (e *Evaluator) LookaheadDays() int {
	return int(e.lookahead / (24 * time.Hour))
}

// Evaluate classifies every certificate relative to now.
//
// Per-certificate alerts follow input order. Summary alerts come first:
// expired, then expiring soon, then missing uploads, each only when its count
// is nonzero.
func (e *Evaluator) Evaluate(now time.Time, certificates []Certificate) *Result {
	result := &Result{
		Timestamp:           now,
		TotalCertificates:   len(certificates),
		Alerts:              []string{},
		CertificatesChecked: make([]Certificate, 0, len(certificates)),
	}

	horizon := now.Add(e.lookahead)
	var details []string

	for _, cert := range certificates {
		checked := cert

		if _, expiry, err := checked.Dates(); err != nil {
			checked.Status = StatusUnknown
			result.InvalidCertificates++
			details = append(details, dataErrorAlert(checked, err))
		} else {
			switch {
			case expiry.Before(now):
				checked.Status = StatusExpired
				result.ExpiredCertificates++
				details = append(details, expiredAlert(checked))
			case !expiry.After(horizon):
				checked.Status = StatusExpiringSoon
				result.ExpiringSoon++
				details = append(details, expiringAlert(checked, DaysRemaining(now, expiry)))
			default:
				checked.Status = StatusValid
				result.ValidCertificates++
			}
		}

		if checked.UploadStatus == UploadMissing {
			result.MissingUploads++
			details = append(details, missingUploadAlert(checked))
		}

		result.CertificatesChecked = append(result.CertificatesChecked, checked)
	}

	if result.ExpiredCertificates > 0 {
		result.Alerts = append(result.Alerts, expiredSummary(result.ExpiredCertificates))
	}
	if result.ExpiringSoon > 0 {
		result.Alerts = append(result.Alerts, expiringSummary(result.ExpiringSoon, e.LookaheadDays()))
	}
	if result.MissingUploads > 0 {
		result.Alerts = append(result.Alerts, missingSummary(result.MissingUploads))
	}
	result.Alerts = append(result.Alerts, details...)

	return result
}

// DaysRemaining is the ceiling of the whole-millisecond distance from now to
// expiry in days. It is zero or negative once expiry has passed.
func DaysRemaining(now, expiry time.Time) int {
	ms := expiry.Sub(now).Milliseconds()
	days := ms / dayMillis
	if ms > 0 && ms%dayMillis != 0 {
		days++
	}
	return int(days)
}
