package client

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// =============================================================================
// Retry Configuration
// =============================================================================

// RetryConfig configures retry behavior.
type RetryConfig struct {
	MaxRetries        int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
	// Jitter adds randomness to backoff (0.0 to 1.0)
	Jitter               float64
	RetryableStatusCodes []int
}

// DefaultRetryConfig returns defaults for retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        3,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        10 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            0.1,
		RetryableStatusCodes: []int{
			http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout,
		},
	}
}

// =============================================================================
// Circuit Breaker
// =============================================================================

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig configures circuit breaker behavior.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures before opening.
	FailureThreshold int
	// SuccessThreshold is the number of half-open successes needed to close.
	SuccessThreshold int
	// Timeout is how long the circuit stays open before going half-open.
	Timeout       time.Duration
	OnStateChange func(from, to CircuitState)
}

// DefaultCircuitBreakerConfig returns defaults for the circuit breaker.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          30 * time.Second,
	}
}

// CircuitBreaker implements the circuit breaker pattern.
type CircuitBreaker struct {
	mu sync.RWMutex

	config CircuitBreakerConfig
	state  CircuitState

	failures  int
	successes int
	lastError error
	openedAt  time.Time
}

// NewCircuitBreaker creates a new circuit breaker.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 1
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 1
	}
	return &CircuitBreaker{
		config: config,
		state:  CircuitClosed,
	}
}

// ErrCircuitOpen is returned when the circuit is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Allow checks if a request should be allowed.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == CircuitOpen {
		if time.Since(cb.openedAt) > cb.config.Timeout {
			cb.transitionTo(CircuitHalfOpen)
			return nil
		}
		return ErrCircuitOpen
	}
	return nil
}

// RecordSuccess records a successful request.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		cb.failures = 0
	case CircuitHalfOpen:
		cb.successes++
		if cb.successes >= cb.config.SuccessThreshold {
			cb.transitionTo(CircuitClosed)
		}
	}
}

// RecordFailure records a failed request.
func (cb *CircuitBreaker) RecordFailure(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.lastError = err

	switch cb.state {
	case CircuitClosed:
		cb.failures++
		if cb.failures >= cb.config.FailureThreshold {
			cb.transitionTo(CircuitOpen)
		}
	case CircuitHalfOpen:
		cb.transitionTo(CircuitOpen)
	}
}

func (cb *CircuitBreaker) transitionTo(newState CircuitState) {
	oldState := cb.state
	cb.state = newState

	switch newState {
	case CircuitClosed:
		cb.failures = 0
		cb.successes = 0
	case CircuitOpen:
		cb.openedAt = time.Now()
		cb.successes = 0
	case CircuitHalfOpen:
		cb.successes = 0
	}

	if cb.config.OnStateChange != nil {
		go cb.config.OnStateChange(oldState, newState)
	}
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// LastError returns the last recorded error.
func (cb *CircuitBreaker) LastError() error {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.lastError
}

// =============================================================================
// Resilient HTTP Client
// =============================================================================

// ResilientClient wraps an HTTP client with retry and circuit breaker.
type ResilientClient struct {
	client         *http.Client
	retryConfig    RetryConfig
	circuitBreaker *CircuitBreaker

	totalRequests   int64
	successRequests int64
	failedRequests  int64
	retriedRequests int64
}

// ResilientClientConfig configures the resilient client.
type ResilientClientConfig struct {
	BaseClient           *http.Client
	RetryConfig          RetryConfig
	CircuitBreakerConfig CircuitBreakerConfig
}

// NewResilientClient creates a new resilient HTTP client.
func NewResilientClient(config ResilientClientConfig) *ResilientClient {
	if config.BaseClient == nil {
		config.BaseClient = &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
			},
		}
	}

	return &ResilientClient{
		client:         config.BaseClient,
		retryConfig:    config.RetryConfig,
		circuitBreaker: NewCircuitBreaker(config.CircuitBreakerConfig),
	}
}

// Do executes an HTTP request with retry and circuit breaker.
// Only idempotent methods are retried, and requests with a body only when
// req.GetBody is set.
func (rc *ResilientClient) Do(req *http.Request) (*http.Response, error) {
	atomic.AddInt64(&rc.totalRequests, 1)

	if err := rc.circuitBreaker.Allow(); err != nil {
		atomic.AddInt64(&rc.failedRequests, 1)
		return nil, err
	}

	replayable := isIdempotent(req.Method) &&
		(req.Body == nil || req.Body == http.NoBody || req.GetBody != nil)

	var lastErr error
	for attempt := 0; attempt <= rc.retryConfig.MaxRetries; attempt++ {
		if attempt > 0 {
			if !replayable {
				break
			}
			atomic.AddInt64(&rc.retriedRequests, 1)

			select {
			case <-req.Context().Done():
				atomic.AddInt64(&rc.failedRequests, 1)
				return nil, req.Context().Err()
			case <-time.After(rc.calculateBackoff(attempt)):
			}

			next := req.Clone(req.Context())
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					atomic.AddInt64(&rc.failedRequests, 1)
					return nil, fmt.Errorf("rewind request body: %w", err)
				}
				next.Body = body
			}
			req = next
		}

		resp, err := rc.client.Do(req)
		if err != nil {
			lastErr = err
			if rc.isRetryableError(err) {
				continue
			}
			rc.circuitBreaker.RecordFailure(err)
			atomic.AddInt64(&rc.failedRequests, 1)
			return nil, err
		}

		if rc.isRetryableStatusCode(resp.StatusCode) && attempt < rc.retryConfig.MaxRetries && replayable {
			lastErr = &HTTPError{StatusCode: resp.StatusCode}
			resp.Body.Close()
			continue
		}

		if resp.StatusCode >= 500 {
			rc.circuitBreaker.RecordFailure(&HTTPError{StatusCode: resp.StatusCode})
		} else {
			rc.circuitBreaker.RecordSuccess()
		}
		atomic.AddInt64(&rc.successRequests, 1)
		return resp, nil
	}

	rc.circuitBreaker.RecordFailure(lastErr)
	atomic.AddInt64(&rc.failedRequests, 1)
	return nil, lastErr
}

// isIdempotent reports whether a repeated request leaves the server in the
// same state. POST and PATCH inserts are sent exactly once.
func isIdempotent(method string) bool {
	switch method {
	case "", http.MethodGet, http.MethodHead, http.MethodOptions,
		http.MethodPut, http.MethodDelete:
		return true
	}
	return false
}

func (rc *ResilientClient) calculateBackoff(attempt int) time.Duration {
	multiplier := rc.retryConfig.BackoffMultiplier
	if multiplier <= 0 {
		multiplier = 1
	}
	backoff := float64(rc.retryConfig.InitialBackoff) * math.Pow(multiplier, float64(attempt-1))

	if rc.retryConfig.MaxBackoff > 0 && backoff > float64(rc.retryConfig.MaxBackoff) {
		backoff = float64(rc.retryConfig.MaxBackoff)
	}

	if rc.retryConfig.Jitter > 0 {
		backoff += backoff * rc.retryConfig.Jitter * (rand.Float64()*2 - 1)
	}

	return time.Duration(backoff)
}

func (rc *ResilientClient) isRetryableError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

func (rc *ResilientClient) isRetryableStatusCode(code int) bool {
	for _, retryable := range rc.retryConfig.RetryableStatusCodes {
		if code == retryable {
			return true
		}
	}
	return false
}

// HTTPError represents an HTTP error status.
type HTTPError struct {
	StatusCode int
}

func (e *HTTPError) Error() string {
	return http.StatusText(e.StatusCode)
}

// Metrics returns client metrics.
func (rc *ResilientClient) Metrics() map[string]int64 {
	return map[string]int64{
		"total_requests":   atomic.LoadInt64(&rc.totalRequests),
		"success_requests": atomic.LoadInt64(&rc.successRequests),
		"failed_requests":  atomic.LoadInt64(&rc.failedRequests),
		"retried_requests": atomic.LoadInt64(&rc.retriedRequests),
	}
}

// CircuitState returns the current circuit breaker state.
func (rc *ResilientClient) CircuitState() CircuitState {
	return rc.circuitBreaker.State()
}

// =============================================================================
// Enhanced Client with Resilience
// =============================================================================

// EnhancedConfig extends Config with resilience options.
type EnhancedConfig struct {
	Config
	RetryConfig          RetryConfig
	CircuitBreakerConfig CircuitBreakerConfig
	EnableResilience     bool
}

// NewEnhanced creates a new Supabase client with resilience features.
func NewEnhanced(cfg EnhancedConfig) (*Client, error) {
	if cfg.EnableResilience {
		resilient := NewResilientClient(ResilientClientConfig{
			BaseClient:           cfg.HTTPClient,
			RetryConfig:          cfg.RetryConfig,
			CircuitBreakerConfig: cfg.CircuitBreakerConfig,
		})
		cfg.HTTPClient = &http.Client{Transport: &resilientTransport{client: resilient}}
	}
	return New(cfg.Config)
}

// resilientTransport wraps ResilientClient as http.RoundTripper.
type resilientTransport struct {
	client *ResilientClient
}

func (rt *resilientTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return rt.client.Do(req)
}
