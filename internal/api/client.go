package api

import (
	"context"
	"time"

	"github.com/dl-alexandre/syncapp/internal/errors"
	"github.com/dl-alexandre/syncapp/internal/logging"
	"github.com/dl-alexandre/syncapp/internal/types"
	"github.com/dl-alexandre/syncapp/internal/utils"
	"github.com/google/uuid"
)

// Classifier converts a raw provider error into an AppError with a retryable flag
type Classifier func(err error, reqCtx *types.RequestContext, logger logging.Logger) error

// Client runs provider calls under a retry policy with request tracing
type Client struct {
	service  string
	policy   RetryPolicy
	classify Classifier
	logger   logging.Logger
	jitter   func() float64
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewClient creates a client for one provider service ("drive", "gcs", "s3", "ssh", "local")
func NewClient(service string, policy RetryPolicy, logger logging.Logger) *Client {
	return &Client{
		service:  service,
		policy:   policy.normalized(),
		classify: classifierFor(service),
		logger:   logging.OrNoOp(logger),
		jitter:   defaultJitter,
		sleep:    sleepContext,
	}
}

func classifierFor(service string) Classifier {
	switch service {
	case "drive", "gcs":
		return func(err error, reqCtx *types.RequestContext, logger logging.Logger) error {
			return errors.ClassifyGoogleAPIError(service, err, reqCtx, logger)
		}
	case "s3":
		return errors.ClassifyS3Error
	default:
		return func(err error, reqCtx *types.RequestContext, logger logging.Logger) error {
			return errors.ClassifyGeneric(service, err, reqCtx, logger)
		}
	}
}

// WithClassifier replaces the error classifier
func (c *Client) WithClassifier(fn Classifier) *Client {
	cp := *c
	cp.classify = fn
	return &cp
}

// Service returns the provider name used for logging
func (c *Client) Service() string {
	return c.service
}

// Policy returns the retry policy in effect
func (c *Client) Policy() RetryPolicy {
	return c.policy
}

// Logger returns the client's logger
func (c *Client) Logger() logging.Logger {
	return c.logger
}

// NewRequestContext creates a new request context with trace ID
func (c *Client) NewRequestContext(session string, requestType types.RequestType) *types.RequestContext {
	return &types.RequestContext{
		Service:     c.service,
		Session:     session,
		RequestType: requestType,
		TraceID:     uuid.New().String(),
	}
}

// ExecuteWithRetry executes a provider call with retry logic
func ExecuteWithRetry[T any](ctx context.Context, client *Client, reqCtx *types.RequestContext, fn func() (T, error)) (T, error) {
	var result T
	var lastErr error

	logger := client.logger.WithTraceID(reqCtx.TraceID)
	logger.Debug("Provider operation starting",
		logging.F("service", client.service),
		logging.F("requestType", reqCtx.RequestType),
		logging.F("session", reqCtx.Session),
		logging.F("url", reqCtx.URL),
	)

	start := time.Now()
	delay := client.policy.BaseDelay

	for attempt := 0; ; attempt++ {
		result, lastErr = fn()
		if lastErr == nil {
			logger.Debug("Provider operation completed",
				logging.F("duration_ms", time.Since(start).Milliseconds()),
				logging.F("attempts", attempt+1),
			)
			return result, nil
		}

		classified := client.classify(lastErr, reqCtx, client.logger)
		if !utils.IsRetryable(classified) {
			logger.Error("Provider operation failed (non-retryable)",
				logging.F("duration_ms", time.Since(start).Milliseconds()),
				logging.F("error", lastErr.Error()),
				logging.F("attempts", attempt+1),
			)
			return result, classified
		}

		if client.policy.MaxRetries > 0 && attempt >= client.policy.MaxRetries {
			logger.Error("Provider operation failed after max retries",
				logging.F("duration_ms", time.Since(start).Milliseconds()),
				logging.F("attempts", attempt+1),
				logging.F("error", lastErr.Error()),
			)
			return result, classified
		}

		wait := delay
		if ra, ok := retryAfter(lastErr); ok {
			wait = ra
		}
		logger.Warn("Provider operation failed (retryable)",
			logging.F("attempt", attempt+1),
			logging.F("delay_ms", wait.Milliseconds()),
			logging.F("error", lastErr.Error()),
		)
		if err := client.sleep(ctx, wait); err != nil {
			return result, err
		}

		var ok bool
		delay, ok = client.policy.next(delay, client.jitter())
		if !ok {
			logger.Error("Provider operation failed, backoff ceiling reached",
				logging.F("duration_ms", time.Since(start).Milliseconds()),
				logging.F("attempts", attempt+1),
				logging.F("error", lastErr.Error()),
			)
			return result, classified
		}
	}
}

// Do runs fn under the retry policy when there is no result value
func (c *Client) Do(ctx context.Context, reqCtx *types.RequestContext, fn func() error) error {
	_, err := ExecuteWithRetry(ctx, c, reqCtx, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
