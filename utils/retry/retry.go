package retry

import (
	"context"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"github.com/kris-hansen/workbench/utils/config"
)

// RetryConfig holds configuration for retry operations
type RetryConfig struct {
	MaxRetries  int           // Maximum number of retry attempts
	InitialWait time.Duration // Initial wait time before first retry
	MaxWait     time.Duration // Maximum wait time between retries
	Factor      float64       // Exponential backoff factor
}

// DefaultRetryConfig provides sensible defaults for retry operations
var DefaultRetryConfig = RetryConfig{
	MaxRetries:  5,
	InitialWait: 1 * time.Second,
	MaxWait:     60 * time.Second,
	Factor:      2.0,
}

// Do runs operation, retrying while shouldRetry reports true. Waiting between
// attempts stops early when ctx is cancelled.
func Do[T any](ctx context.Context, operation func(context.Context) (T, error), shouldRetry func(error) bool, cfg RetryConfig) (T, error) {
	var zero T
	wait := cfg.InitialWait

	for attempt := 0; ; attempt++ {
		result, err := operation(ctx)
		if err == nil || !shouldRetry(err) || ctx.Err() != nil {
			return result, err
		}

		if attempt >= cfg.MaxRetries {
			return zero, fmt.Errorf("operation failed after %d retries: %w", cfg.MaxRetries, err)
		}

		retryWait := time.Duration(math.Min(float64(wait), float64(cfg.MaxWait)))
		if retryTime := extractRetryTime(err.Error()); retryTime > 0 {
			retryWait = retryTime
		}

		config.DebugLog("[Retry] Received retryable error: %v. Retrying in %v (attempt %d/%d)",
			err, retryWait, attempt+1, cfg.MaxRetries)
		log.Printf("Rate limit detected, retrying in %v (attempt %d/%d)...\n",
			retryWait, attempt+1, cfg.MaxRetries)

		timer := time.NewTimer(retryWait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}

		wait = time.Duration(float64(wait) * cfg.Factor)
	}
}

// Is429Error checks if the error is a rate limit (429) error
func Is429Error(err error) bool {
	if err == nil {
		return false
	}

	errMsg := strings.ToLower(err.Error())
	return strings.Contains(errMsg, "429") ||
		strings.Contains(errMsg, "rate limit") ||
		strings.Contains(errMsg, "quota exceeded") ||
		strings.Contains(errMsg, "too many requests")
}

// extractRetryTime pulls a hint like "retry in 18s" out of an error message.
// Returns 0 if none is found.
func extractRetryTime(errMsg string) time.Duration {
	retryPatterns := []string{
		"retry in ",
		"retry after ",
		"try again in ",
		"try again after ",
	}

	lower := strings.ToLower(errMsg)
	for _, pattern := range retryPatterns {
		if idx := strings.Index(lower, pattern); idx >= 0 {
			timeStr := lower[idx+len(pattern):]

			var seconds int
			if _, err := fmt.Sscanf(timeStr, "%ds", &seconds); err == nil {
				return time.Duration(seconds) * time.Second
			}
			if _, err := fmt.Sscanf(timeStr, "%d seconds", &seconds); err == nil {
				return time.Duration(seconds) * time.Second
			}
		}
	}

	return 0
}
