package ai

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	retryMaxAttempts       = 3
	initialBackoffDuration = 2 * time.Second
)

// invalidRequestErrors are API failures that no amount of retrying fixes.
var invalidRequestErrors = []string{
	"invalid_request_error",
	"invalid_api_key",
	"authentication",
	"model_not_found",
	"context_length_exceeded",
	"insufficient_quota",
}

func isPermanentAPIError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	for _, errType := range invalidRequestErrors {
		if strings.Contains(errStr, errType) {
			return true
		}
	}

	return false
}

// retryWithBackoff retries transient API failures with exponential backoff,
// respecting context cancellation between attempts.
func retryWithBackoff(ctx context.Context, op func() (string, error)) (string, error) {
	var lastErr error

	backoff := initialBackoffDuration

	for attempt := 0; attempt < retryMaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("context error: %w", ctx.Err())
		default:
		}

		result, err := op()
		if err == nil {
			return result, nil
		}
		if isPermanentAPIError(err) {
			return "", fmt.Errorf("permanent API error: %w", err)
		}

		lastErr = err

		if attempt < retryMaxAttempts-1 {
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return "", fmt.Errorf("context error: %w", ctx.Err())
			case <-timer.C:
				backoff *= 2
			}
		}
	}

	return "", fmt.Errorf("all %d API attempts failed: %w", retryMaxAttempts, lastErr)
}
