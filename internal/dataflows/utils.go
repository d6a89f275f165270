package dataflows

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

const DateLayout = "2006-01-02"

// RetryPolicy is an exponential backoff schedule for flaky upstream calls.
type RetryPolicy struct {
	Attempts int
	Initial  time.Duration
	Ceiling  time.Duration
	Factor   float64
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, Initial: 500 * time.Millisecond, Ceiling: 5 * time.Second, Factor: 2}
}

// permanentError stops Retry immediately.
type permanentError struct{ err error }

func (p permanentError) Error() string { return p.err.Error() }
func (p permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	d := time.Duration(float64(p.Initial) * math.Pow(p.Factor, float64(attempt)))
	if p.Ceiling > 0 && d > p.Ceiling {
		return p.Ceiling
	}
	return d
}

// Retry calls fn up to Attempts times, sleeping between failures. Errors
// wrapped with Permanent and context cancellation end the loop early.
func (p RetryPolicy) Retry(ctx context.Context, fn func() error) error {
	attempts := max(p.Attempts, 1)
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		var perm permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if i == attempts-1 {
			break
		}
		timer := time.NewTimer(p.delay(i))
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(ctx.Err(), err)
		}
	}
	return fmt.Errorf("giving up after %d attempts: %w", attempts, err)
}

func ValidateSymbol(symbol string) error {
	symbol = NormalizeSymbol(symbol)
	if len(symbol) == 0 {
		return fmt.Errorf("symbol cannot be empty")
	}
	if len(symbol) > 12 {
		return fmt.Errorf("symbol too long: %s", symbol)
	}
	return nil
}

// NormalizeSymbol upper-cases and trims a ticker.
func NormalizeSymbol(symbol string) string {
	return strings.TrimSpace(strings.ToUpper(symbol))
}

// ParseDateRange parses a yyyy-mm-dd range and rejects empty or inverted ranges.
func ParseDateRange(startDate, endDate string) (time.Time, time.Time, error) {
	start, err := time.Parse(DateLayout, strings.TrimSpace(startDate))
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid start_date %q, expected yyyy-mm-dd", startDate)
	}
	end, err := time.Parse(DateLayout, strings.TrimSpace(endDate))
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid end_date %q, expected yyyy-mm-dd", endDate)
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("empty date range %s to %s", startDate, endDate)
	}
	return start, end, nil
}
