package api

import (
	"errors"
	"math/rand"
	"strconv"
	"time"

	"github.com/dl-alexandre/syncapp/internal/utils"
	"google.golang.org/api/googleapi"
)

// RetryPolicy describes capped exponential backoff with jitter.
//
// The delay starts at BaseDelay and after each failure is multiplied by a
// random factor in [1, 1+MaxGrowth). Once the next delay would reach
// Ceiling*BaseDelay the operation gives up and the last error is returned.
type RetryPolicy struct {
	BaseDelay  time.Duration
	MaxGrowth  float64
	Ceiling    float64
	MaxRetries int // 0 means bounded by Ceiling only
}

// DefaultRetryPolicy returns the policy used for provider calls
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		BaseDelay:  time.Duration(utils.DefaultRetryDelayMs) * time.Millisecond,
		MaxGrowth:  utils.DefaultRetryGrowthLimit,
		Ceiling:    utils.DefaultRetryCeiling,
		MaxRetries: utils.DefaultMaxRetries,
	}
}

// NoRetry returns a policy that never retries
func NoRetry() RetryPolicy {
	return RetryPolicy{BaseDelay: time.Millisecond, MaxGrowth: 0, Ceiling: 1, MaxRetries: 0}
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.BaseDelay <= 0 {
		p.BaseDelay = time.Duration(utils.DefaultRetryDelayMs) * time.Millisecond
	}
	if p.MaxGrowth < 0 {
		p.MaxGrowth = 0
	}
	if p.Ceiling <= 0 {
		p.Ceiling = utils.DefaultRetryCeiling
	}
	return p
}

// limit is the total backoff budget after which retries stop
func (p RetryPolicy) limit() time.Duration {
	return time.Duration(p.Ceiling * float64(p.BaseDelay))
}

// next grows delay by the jittered factor. ok is false once the ceiling is hit.
func (p RetryPolicy) next(delay time.Duration, jitter float64) (time.Duration, bool) {
	grown := time.Duration(float64(delay) * (1 + p.MaxGrowth*jitter))
	if grown >= p.limit() {
		return grown, false
	}
	return grown, true
}

// retryAfter honours a provider supplied Retry-After header, capped at MaxRetryDelayMs
func retryAfter(err error) (time.Duration, bool) {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) || apiErr.Header == nil {
		return 0, false
	}
	v := apiErr.Header.Get("Retry-After")
	if v == "" {
		return 0, false
	}
	seconds, convErr := strconv.Atoi(v)
	if convErr != nil {
		return 0, false
	}
	delay := time.Duration(seconds) * time.Second
	if max := time.Duration(utils.MaxRetryDelayMs) * time.Millisecond; delay > max {
		delay = max
	}
	return delay, true
}

func defaultJitter() float64 {
	return rand.Float64()
}
