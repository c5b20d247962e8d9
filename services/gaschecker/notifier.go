package gaschecker

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/R3E-Network/compliance_layer/internal/httputil"
)

// Notifier pushes run alerts to people who act on them.
type Notifier interface {
	Notify(ctx context.Context, result *Result) error
}

// AlertNotification is the webhook payload.
type AlertNotification struct {
	Service   string         `json:"service"`
	Timestamp time.Time      `json:"timestamp"`
	Trigger   Trigger        `json:"trigger,omitempty"`
	Degraded  bool           `json:"degraded"`
	Alerts    []string       `json:"alerts"`
	Counters  map[string]int `json:"counters"`
	Total     int            `json:"total_certificates"`
}

// WebhookNotifier posts alerts as JSON to a fixed URL.
type WebhookNotifier struct {
	client  *httputil.ServiceClient
	service string
}

// NewWebhookNotifier creates a notifier for url. token, when set, is sent as a
// bearer token.
func NewWebhookNotifier(url, token, service string, timeout time.Duration) *WebhookNotifier {
	return &WebhookNotifier{
		client: httputil.NewServiceClient(httputil.ServiceClientConfig{
			BaseURL:   url,
			AuthToken: token,
			Timeout:   timeout,
		}),
		service: service,
	}
}

// Notify implements Notifier.
func (n *WebhookNotifier) Notify(ctx context.Context, result *Result) error {
	payload := AlertNotification{
		Service:   n.service,
		Timestamp: result.Timestamp,
		Trigger:   result.Trigger,
		Degraded:  result.Degraded,
		Alerts:    result.Alerts,
		Counters:  result.Counts(),
		Total:     result.TotalCertificates,
	}

	resp, err := n.client.Post(ctx, "", payload)
	if err != nil {
		return fmt.Errorf("post alert webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _, _ := httputil.ReadAllWithLimit(resp.Body, 1024)
		return fmt.Errorf("alert webhook returned %d: %s", resp.StatusCode, string(body))
	}
	return nil
}
