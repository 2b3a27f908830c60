package config

import "github.com/gyromean/hywoma/internal/foundation/normalization"

// RetryBackoffMode enumerates backoff strategies for reconnect retries.
type RetryBackoffMode string

const (
	RetryBackoffFixed       RetryBackoffMode = "fixed"
	RetryBackoffLinear      RetryBackoffMode = "linear"
	RetryBackoffExponential RetryBackoffMode = "exponential"
)

var retryBackoffNormalizer = normalization.NewFromValues(RetryBackoffMode(""),
	RetryBackoffFixed, RetryBackoffLinear, RetryBackoffExponential)

// NormalizeRetryBackoff maps free-form input onto a RetryBackoffMode, empty
// for unknown.
func NormalizeRetryBackoff(raw string) RetryBackoffMode {
	return retryBackoffNormalizer.Normalize(raw)
}
