package retry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/loykin/apireplay/internal/common"
	"github.com/loykin/apireplay/internal/constants"
)

// Config controls how an operation is retried.
type Config struct {
	MaxRetries      int           // attempts after the first one
	InitialDelay    time.Duration // delay before the first retry
	MaxDelay        time.Duration // ceiling for backoff
	BackoffFactor   float64       // multiplier per retry
	RetryableErrors []string      // substrings that mark an error retryable

	// Retryable replaces the substring match when set.
	Retryable func(error) bool
	// Component names the logger component; defaults to "retry".
	Component string
}

// DefaultRetryConfig is used for run-store writes.
func DefaultRetryConfig() *Config {
	return &Config{
		MaxRetries:    3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2.0,
		RetryableErrors: []string{
			"connection refused",
			"connection reset",
			"timeout",
			"temporary failure",
			"deadlock",
			"lock wait timeout",
			"database is locked",
			"connection lost",
			"broken pipe",
		},
		Component: "store-retry",
	}
}

// StepConfig retries a replayed request at most once after delay, and only
// when classify accepts the error.
func StepConfig(delay time.Duration, classify func(error) bool) *Config {
	if delay < 0 {
		delay = 0
	}
	if delay == 0 {
		delay = constants.DefaultRetryDelay
	}
	return &Config{
		MaxRetries:    1,
		InitialDelay:  delay,
		MaxDelay:      delay,
		BackoffFactor: 1,
		Retryable:     classify,
		Component:     "step-retry",
	}
}

func (rc *Config) isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		if rc.Retryable == nil {
			return false
		}
	}
	if rc.Retryable != nil {
		return rc.Retryable(err)
	}

	errStr := strings.ToLower(err.Error())
	for _, retryableErr := range rc.RetryableErrors {
		if strings.Contains(errStr, retryableErr) {
			return true
		}
	}
	return false
}

func (rc *Config) calculateDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return rc.InitialDelay
	}
	factor := rc.BackoffFactor
	if factor < 1 {
		factor = 1
	}
	delay := time.Duration(float64(rc.InitialDelay) * math.Pow(factor, float64(attempt-1)))
	if rc.MaxDelay > 0 && delay > rc.MaxDelay {
		delay = rc.MaxDelay
	}
	return delay
}

func (rc *Config) logger() *common.Logger {
	name := rc.Component
	if name == "" {
		name = "retry"
	}
	return common.GetLogger().WithComponent(name)
}

// Do runs op until it succeeds, returns a non-retryable error, or runs out
// of attempts. op receives the 1-based attempt number. Do returns the number
// of attempts made and the last error unwrapped. A cancelled ctx stops the
// wait between attempts but never interrupts op itself.
func Do(ctx context.Context, config *Config, op func(attempt int) error) (int, error) {
	if config == nil {
		config = DefaultRetryConfig()
	}
	logger := config.logger()

	var lastErr error
	attempt := 0
	for attempt < config.MaxRetries+1 {
		attempt++
		err := op(attempt)
		if err == nil {
			if attempt > 1 {
				logger.Info("operation succeeded after retry", "attempt", attempt)
			}
			return attempt, nil
		}
		lastErr = err

		if attempt > config.MaxRetries {
			break
		}
		if !config.isRetryableError(err) {
			logger.Debug("operation failed with non-retryable error", "error", err, "attempt", attempt)
			return attempt, err
		}

		delay := config.calculateDelay(attempt)
		logger.Warn("operation failed, retrying",
			"error", err,
			"attempt", attempt,
			"max_attempts", config.MaxRetries+1,
			"retry_delay", delay)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempt, lastErr
		case <-timer.C:
		}
	}
	return attempt, lastErr
}

// RetryableOperation is a store operation that can be retried.
type RetryableOperation func() error

// WithRetry runs a store operation under config. The returned error wraps
// the last failure and notes the attempt count.
func WithRetry(ctx context.Context, config *Config, operation RetryableOperation) error {
	if config == nil {
		config = DefaultRetryConfig()
	}
	attempts, err := Do(ctx, config, func(int) error { return operation() })
	if err == nil {
		return nil
	}
	if ctx.Err() != nil && attempts <= config.MaxRetries && config.isRetryableError(err) {
		return fmt.Errorf("operation cancelled during retry: %w", errors.Join(ctx.Err(), err))
	}
	if attempts == 1 {
		return err
	}
	config.logger().Error("operation failed after all retry attempts", "error", err, "attempts", attempts)
	return fmt.Errorf("operation failed after %d attempts: %w", attempts, err)
}

// RetryableExec is a database exec that can be retried.
type RetryableExec func() (sql.Result, error)

// WithRetryExec runs exec under config.
func WithRetryExec(ctx context.Context, config *Config, exec RetryableExec) (sql.Result, error) {
	var result sql.Result
	err := WithRetry(ctx, config, func() error {
		var err error
		result, err = exec()
		return err
	})
	return result, err
}

// RetryableQuery is a database query that can be retried.
type RetryableQuery func() (*sql.Rows, error)

// WithRetryQuery runs query under config.
func WithRetryQuery(ctx context.Context, config *Config, query RetryableQuery) (*sql.Rows, error) {
	var rows *sql.Rows
	err := WithRetry(ctx, config, func() error {
		var err error
		rows, err = query()
		return err
	})
	return rows, err
}
