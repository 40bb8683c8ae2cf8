package resilience

import "time"

// FromConfig builds breaker and retry settings from plain config values.
// Zero values keep the defaults.
func FromConfig(failureThreshold, cooldownSecs, retryAttempts, retryBaseMs int) (BreakerConfig, RetryPolicy) {
	bc := DefaultBreakerConfig()
	if failureThreshold > 0 {
		bc.FailureThreshold = failureThreshold
	}
	if cooldownSecs > 0 {
		bc.Cooldown = time.Duration(cooldownSecs) * time.Second
	}

	rp := DefaultRetryPolicy()
	if retryAttempts > 0 {
		rp.Attempts = retryAttempts
	}
	if retryBaseMs > 0 {
		rp.BaseDelay = time.Duration(retryBaseMs) * time.Millisecond
	}
	return bc, rp
}
