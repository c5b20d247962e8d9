package supabase

import (
	"github.com/R3E-Network/compliance_layer/supabase/client"
)

// NewClient returns the PostgREST client shared by both repositories. The
// transport keeps its circuit breaker but never retries: fetch retries are
// owned by the runner and audit inserts are sent exactly once.
func NewClient(url, apiKey string) (*client.Client, error) {
	retry := client.DefaultRetryConfig()
	retry.MaxRetries = 0
	return client.NewEnhanced(client.EnhancedConfig{
		Config: client.Config{
			URL:    url,
			APIKey: apiKey,
		},
		RetryConfig:          retry,
		CircuitBreakerConfig: client.DefaultCircuitBreakerConfig(),
		EnableResilience:     true,
	})
}
