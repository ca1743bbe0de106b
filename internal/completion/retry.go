package completion

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultBaseDelay = 500 * time.Millisecond
	defaultMaxDelay  = 8 * time.Second
)

// RetryConfig controls WithRetry.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	// Limiter, when set, is waited on before every attempt.
	Limiter *rate.Limiter
}

// RetryConfigFor derives the retry and rate limit settings of a provider entry.
func RetryConfigFor(cfg ProviderConfig) RetryConfig {
	rc := RetryConfig{MaxRetries: cfg.MaxRetries}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		rc.Limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return rc
}

type retryProvider struct {
	inner  Provider
	cfg    RetryConfig
	logger *zap.Logger
}

// WithRetry wraps p so transient failures are retried with exponential backoff.
// It returns p unchanged when neither retries nor a limiter are configured.
func WithRetry(p Provider, cfg RetryConfig, logger *zap.Logger) Provider {
	if cfg.MaxRetries <= 0 && cfg.Limiter == nil {
		return p
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = defaultBaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = defaultMaxDelay
	}
	return &retryProvider{inner: p, cfg: cfg, logger: logger}
}

func (r *retryProvider) Name() string { return r.inner.Name() }

func (r *retryProvider) Complete(ctx context.Context, prompt string, opts CallOptions) (string, error) {
	delay := r.cfg.BaseDelay
	for attempt := 0; ; attempt++ {
		if r.cfg.Limiter != nil {
			if err := r.cfg.Limiter.Wait(ctx); err != nil {
				return "", err
			}
		}
		text, err := r.inner.Complete(ctx, prompt, opts)
		if err == nil || attempt >= r.cfg.MaxRetries || !IsTransient(err) || ctx.Err() != nil {
			return text, err
		}

		r.logger.Debug("retrying completion",
			zap.String("provider", r.inner.Name()),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		case <-timer.C:
		}
		delay *= 2
		if delay > r.cfg.MaxDelay {
			delay = r.cfg.MaxDelay
		}
	}
}

var transientMarkers = []string{
	"429", "500", "502", "503", "504",
	"rate limit", "too many requests", "timeout", "timed out",
	"temporarily", "unavailable", "overloaded", "connection reset",
}

// IsTransient reports whether err looks like a failure worth retrying: a deadline,
// a rate limit or a server-side error.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, m := range transientMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
