package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
)

// Dispatcher serializes every broker call through one gate: concurrency of
// one, a minimum spacing between consecutive calls, and retry with
// exponential backoff on transient failures. Fatal errors return to the
// caller on the first attempt.
type Dispatcher struct {
	spacing     time.Duration
	base        time.Duration
	maxAttempts int

	mu       sync.Mutex
	lastCall time.Time
}

// NewDispatcher builds a dispatcher with the given spacing, backoff base and
// attempt budget (total attempts, not retries).
func NewDispatcher(spacing, base time.Duration, maxAttempts int) *Dispatcher {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Dispatcher{spacing: spacing, base: base, maxAttempts: maxAttempts}
}

// Do runs call under the gate. The mutex is held across the whole retry
// sequence, which is what bounds in-flight broker calls to one system-wide.
func (d *Dispatcher) Do(ctx context.Context, label string, call func() error) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var err error
	for attempt := 0; attempt < d.maxAttempts; attempt++ {
		if attempt > 0 {
			// base × 2^(attempt-1) plus jitter within one base interval, so
			// parallel engine instances don't retry in lockstep.
			delay := d.base * time.Duration(1<<(attempt-1))
			delay += time.Duration(rand.Int63n(int64(d.base) + 1))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
		if wait := d.spacing - time.Since(d.lastCall); wait > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}

		err = call()
		d.lastCall = time.Now()
		if err == nil {
			return nil
		}
		if !IsTransient(err) {
			return fmt.Errorf("%s: %w", label, err)
		}
		mtxOrderRetries.Inc()
		log.Printf("WARN: %s failed transiently (attempt %d/%d): %v", label, attempt+1, d.maxAttempts, err)
	}
	return fmt.Errorf("%s: retries exhausted: %w", label, err)
}

// IsTransient classifies an error as retryable: rate limiting, broker-side
// 5xx, or a dropped connection. Everything else (bad order, insufficient
// buying power, auth) is fatal for the operation.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *alpaca.APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	if errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "unexpected EOF")
}
