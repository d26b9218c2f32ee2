package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/nerrad567/litekeeper/internal/infrastructure/config"
)

// Preset strategy constants.
const (
	aggressiveRetries    = 10
	aggressiveBaseDelay  = 50 * time.Millisecond
	aggressiveMaxDelay   = 2 * time.Second
	aggressiveMultiplier = 1.5

	balancedRetries    = 5
	balancedBaseDelay  = 100 * time.Millisecond
	balancedMaxDelay   = 5 * time.Second
	balancedMultiplier = 2.0

	conservativeRetries    = 3
	conservativeBaseDelay  = 500 * time.Millisecond
	conservativeMaxDelay   = 30 * time.Second
	conservativeMultiplier = 3.0

	// defaultJitterFraction perturbs each delay by up to ±10% so
	// concurrent retriers don't wake in lockstep.
	defaultJitterFraction = 0.1
)

// Strategy describes an exponential backoff schedule.
type Strategy struct {
	// MaxRetries is the number of retries after the first attempt,
	// so an operation runs at most MaxRetries+1 times.
	MaxRetries int

	// BaseDelay is the delay before the first retry.
	BaseDelay time.Duration

	// MaxDelay caps the computed delay for any single retry.
	MaxDelay time.Duration

	// Multiplier grows the delay between successive retries.
	Multiplier float64

	// JitterFraction perturbs each delay by a uniform ±fraction.
	// Must be in [0, 1].
	JitterFraction float64
}

// Aggressive retries quickly and often. Suited to short statements on a
// busy database where lock windows are narrow.
func Aggressive() Strategy {
	return Strategy{
		MaxRetries:     aggressiveRetries,
		BaseDelay:      aggressiveBaseDelay,
		MaxDelay:       aggressiveMaxDelay,
		Multiplier:     aggressiveMultiplier,
		JitterFraction: defaultJitterFraction,
	}
}

// Balanced is the general-purpose middle ground.
func Balanced() Strategy {
	return Strategy{
		MaxRetries:     balancedRetries,
		BaseDelay:      balancedBaseDelay,
		MaxDelay:       balancedMaxDelay,
		Multiplier:     balancedMultiplier,
		JitterFraction: defaultJitterFraction,
	}
}

// Conservative retries rarely with long waits. Suited to maintenance
// work that should yield to foreground traffic.
func Conservative() Strategy {
	return Strategy{
		MaxRetries:     conservativeRetries,
		BaseDelay:      conservativeBaseDelay,
		MaxDelay:       conservativeMaxDelay,
		Multiplier:     conservativeMultiplier,
		JitterFraction: defaultJitterFraction,
	}
}

// FromConfig resolves a configured strategy. An explicit custom
// strategy wins over the preset name; an unknown or empty preset
// falls back to Balanced.
func FromConfig(cfg config.RetryConfig) Strategy {
	if cfg.Custom != nil {
		return Strategy{
			MaxRetries:     cfg.Custom.MaxRetries,
			BaseDelay:      time.Duration(cfg.Custom.BaseDelayMs) * time.Millisecond,
			MaxDelay:       time.Duration(cfg.Custom.MaxDelayMs) * time.Millisecond,
			Multiplier:     cfg.Custom.Multiplier,
			JitterFraction: cfg.Custom.JitterFraction,
		}
	}

	switch strings.ToLower(cfg.Preset) {
	case "aggressive":
		return Aggressive()
	case "conservative":
		return Conservative()
	default:
		return Balanced()
	}
}

// Delay computes the backoff before retry attempt (0-indexed), without
// jitter: min(MaxDelay, BaseDelay * Multiplier^attempt).
func (s Strategy) Delay(attempt int) time.Duration {
	d := time.Duration(float64(s.BaseDelay) * math.Pow(s.Multiplier, float64(attempt)))
	if s.MaxDelay > 0 && d > s.MaxDelay {
		d = s.MaxDelay
	}
	return d
}

// jitteredDelay applies the uniform ±JitterFraction perturbation.
func (s Strategy) jitteredDelay(attempt int) time.Duration {
	d := s.Delay(attempt)
	if s.JitterFraction <= 0 {
		return d
	}
	// Uniform in [-fraction, +fraction].
	offset := (rand.Float64()*2 - 1) * s.JitterFraction
	jittered := time.Duration(float64(d) * (1 + offset))
	if jittered < 0 {
		return 0
	}
	return jittered
}

// Operation is the unit of work Execute retries.
type Operation func(ctx context.Context) error

// Classifier reports whether an error is transient and worth retrying.
type Classifier func(error) bool

// transientPhrases are the SQLite error messages that indicate a lock
// condition which usually clears on its own.
var transientPhrases = []string{
	"database is locked",
	"database table is locked",
	"busy",
	"schema has changed",
	"cannot commit transaction",
}

// IsTransient is the default classifier. It matches the driver's typed
// busy/locked codes first and falls back to message phrases for errors
// that arrive already wrapped or stringified.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}

	msg := strings.ToLower(err.Error())
	for _, phrase := range transientPhrases {
		if strings.Contains(msg, phrase) {
			return true
		}
	}
	return false
}

// Execute runs op, retrying on errors the classifier marks transient.
//
// Non-transient errors return immediately. Transient errors retry up to
// strategy.MaxRetries times with exponential backoff and jitter; the
// sleep between attempts honours ctx cancellation. When all attempts
// fail, the returned error wraps ErrRetryExhausted, the attempt count,
// and the last underlying error.
//
// Parameters:
//   - ctx: Context for cancellation; checked before each attempt and
//     during backoff sleeps
//   - op: Operation to run
//   - classify: Transience test (nil means IsTransient)
//   - strategy: Backoff schedule
//
// Returns:
//   - error: nil on success, the fatal error, ctx.Err(), or an
//     *ExhaustedError
func Execute(ctx context.Context, op Operation, classify Classifier, strategy Strategy) error {
	if classify == nil {
		classify = IsTransient
	}

	var lastErr error
	attempts := strategy.MaxRetries + 1

	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if !classify(lastErr) {
			return lastErr
		}
		if attempt == attempts-1 {
			break
		}

		timer := time.NewTimer(strategy.jitteredDelay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return &ExhaustedError{Attempts: attempts, Err: lastErr}
}

// ExhaustedError reports that every attempt failed with a transient
// error. It matches errors.Is(err, ErrRetryExhausted) and unwraps to the
// last underlying error.
type ExhaustedError struct {
	// Attempts is the total number of attempts made (retries + 1).
	Attempts int

	// Err is the error from the final attempt.
	Err error
}

// Error implements the error interface.
func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retry: exhausted after %d attempts: %v", e.Attempts, e.Err)
}

// Unwrap exposes both the sentinel and the last underlying error.
func (e *ExhaustedError) Unwrap() []error {
	return []error{ErrRetryExhausted, e.Err}
}
