package remote

import (
	"math/rand"
	"net/http"
	"time"
)

// RetryConfig holds retry configuration for remote requests.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts per request.
	MaxAttempts int `yaml:"max_attempts"`

	// BackoffBase is the initial backoff duration.
	BackoffBase time.Duration `yaml:"backoff_base"`

	// BackoffMultiplier is applied to backoff on each retry.
	BackoffMultiplier float64 `yaml:"backoff_multiplier"`

	// MaxBackoff caps the maximum backoff duration.
	MaxBackoff time.Duration `yaml:"max_backoff"`
}

// DefaultRetryConfig returns retry defaults for lookup and store requests.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		BackoffBase:       500 * time.Millisecond,
		BackoffMultiplier: 2.0,
		MaxBackoff:        10 * time.Second,
	}
}

// backoff computes exponential backoff with +/- 25% jitter.
// attemptNum is zero-based, matching retryablehttp.Backoff.
func (r RetryConfig) backoff(_, _ time.Duration, attemptNum int, _ *http.Response) time.Duration {
	multiplier := 1.0
	for i := 0; i < attemptNum; i++ {
		multiplier *= r.BackoffMultiplier
	}

	backoff := time.Duration(float64(r.BackoffBase) * multiplier)
	if r.MaxBackoff > 0 && backoff > r.MaxBackoff {
		backoff = r.MaxBackoff
	}

	jitter := float64(backoff) * 0.25 * (rand.Float64()*2 - 1)
	return backoff + time.Duration(jitter)
}
