// Package retry implements caller-side retry policy for pipeline invocations.
// The pipeline itself never retries; callers such as the CLI wrap a lookup in
// Do and let DefaultRetryIf decide which typed failures are worth repeating.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sharetok/pkg/config"
	errs "sharetok/pkg/errors"
	"sharetok/pkg/logger"
)

// Operation is a function that performs an operation that might need retrying
type Operation func(ctx context.Context) error

// Config holds retry configuration
type Config struct {
	// MaxAttempts is the maximum number of attempts (0 means unlimited)
	MaxAttempts int
	Backoff     BackoffStrategy
	// RetryIf determines if an error should be retried
	RetryIf func(error) bool
	// OnRetry is called before each retry attempt
	OnRetry func(attempt int, err error, delay time.Duration)
	Logger  logger.Logger
}

// DefaultConfig returns a retry configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts: 3,
		Backoff:     DefaultExponentialBackoff(),
		RetryIf:     DefaultRetryIf,
		Logger:      logger.GetLogger(),
	}
}

// FromSettings builds a retry Config from the retry section of the service configuration
func FromSettings(rc config.RetryConfig, log logger.Logger) *Config {
	return &Config{
		MaxAttempts: rc.MaxAttempts,
		Backoff: &ExponentialBackoff{
			BaseDelay:    rc.BaseDelay,
			MaxDelay:     rc.MaxDelay,
			Multiplier:   rc.Multiplier,
			JitterFactor: rc.JitterFactor,
		},
		RetryIf: DefaultRetryIf,
		Logger:  log,
	}
}

// DefaultRetryIf retries typed errors whose class is transient and nothing else
func DefaultRetryIf(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var typed *errs.Error
	if errors.As(err, &typed) {
		if typed.Type == errs.ErrorTypeAPI && typed.Code != 0 {
			return errs.IsRetryableStatusCode(typed.Code)
		}
		return errs.IsRetryable(typed.Type)
	}

	return false
}

// Do executes an operation with retry logic
func Do(ctx context.Context, op Operation, cfg *Config) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.RetryIf == nil {
		cfg.RetryIf = DefaultRetryIf
	}

	var lastErr error
	for attempt := 1; ; attempt++ {
		if cfg.MaxAttempts > 0 && attempt > cfg.MaxAttempts {
			if cfg.Logger != nil {
				cfg.Logger.ErrorWithFields("max retry attempts exceeded", map[string]interface{}{
					"attempts":   attempt - 1,
					"last_error": lastErr.Error(),
				})
			}
			return fmt.Errorf("max retry attempts (%d) exceeded: %w", cfg.MaxAttempts, lastErr)
		}

		err := op(ctx)
		if err == nil {
			if attempt > 1 && cfg.Logger != nil {
				cfg.Logger.DebugWithFields("operation succeeded after retry", map[string]interface{}{
					"attempt": attempt,
				})
			}
			return nil
		}
		lastErr = err

		if !cfg.RetryIf(err) {
			return err
		}

		delay := cfg.Backoff.NextDelay(attempt)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err, delay)
		}
		if cfg.Logger != nil {
			cfg.Logger.WarnWithFields("retrying operation", map[string]interface{}{
				"attempt":      attempt,
				"error":        err.Error(),
				"delay_ms":     delay.Milliseconds(),
				"max_attempts": cfg.MaxAttempts,
			})
		}

		if err := Wait(ctx, delay); err != nil {
			return fmt.Errorf("retry cancelled: %w", err)
		}
	}
}

// DoWithResult executes an operation that returns a result with retry logic
func DoWithResult[T any](ctx context.Context, op func(ctx context.Context) (T, error), cfg *Config) (T, error) {
	var result T
	err := Do(ctx, func(ctx context.Context) error {
		var opErr error
		result, opErr = op(ctx)
		return opErr
	}, cfg)
	return result, err
}
