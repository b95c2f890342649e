package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"
)

type ErrorClassification struct {
	Retryable     bool
	RecordFailure bool
}

type ErrorClassifier func(err error) ErrorClassification

// Executor wraps one class of outbound call with retry and a circuit
// breaker. The tracker uses it for the advisory abort request, where
// repeated failures should back off rather than hammer the gateway.
type Executor struct {
	cfg     Config
	log     *slog.Logger
	breaker *gobreaker.CircuitBreaker[any]

	classifier ErrorClassifier
}

func NewExecutor(operation string, cfg Config, classifier ErrorClassifier, logger *slog.Logger) *Executor {
	cfg = cfg.normalize()
	if classifier == nil {
		classifier = func(error) ErrorClassification {
			return ErrorClassification{Retryable: false, RecordFailure: true}
		}
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("operation", operation)

	e := &Executor{cfg: cfg, log: logger, classifier: classifier}
	if cfg.BreakerEnabled {
		e.breaker = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
			Name:        operation,
			MaxRequests: cfg.BreakerHalfOpenMaxCalls,
			Timeout:     cfg.BreakerOpenTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				if counts.Requests < cfg.BreakerMinRequests {
					return false
				}
				return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.BreakerFailureRatio
			},
			IsSuccessful: func(err error) bool {
				if err == nil {
					return true
				}
				return !classifier(err).RecordFailure
			},
			OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
				logger.Warn("circuit_breaker_state_change", "from", from.String(), "to", to.String())
			},
		})
	}
	return e
}

func (e *Executor) Execute(ctx context.Context, fn func(context.Context) error) error {
	if fn == nil {
		return fmt.Errorf("resilience: operation callback is nil")
	}
	if e.breaker == nil {
		return e.executeWithRetry(ctx, fn)
	}
	_, err := e.breaker.Execute(func() (any, error) {
		return nil, e.executeWithRetry(ctx, fn)
	})
	return err
}

func (e *Executor) executeWithRetry(ctx context.Context, fn func(context.Context) error) error {
	backoff := e.cfg.RetryInitialBackoff

	var lastErr error
	for attempt := 1; attempt <= e.cfg.RetryMaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !e.classifier(lastErr).Retryable || attempt == e.cfg.RetryMaxAttempts {
			return lastErr
		}

		wait := min(backoff, e.cfg.RetryMaxBackoff)
		e.log.Warn("retry_attempt",
			"attempt", attempt,
			"max_attempts", e.cfg.RetryMaxAttempts,
			"backoff_ms", float64(wait.Microseconds())/1000.0,
			"error", lastErr,
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return lastErr
		case <-timer.C:
		}

		backoff = min(time.Duration(float64(backoff)*e.cfg.RetryMultiplier), e.cfg.RetryMaxBackoff)
	}

	return lastErr
}

func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
