package errors

import (
	"context"
	stderrors "errors"
	"net"

	"github.com/dl-alexandre/syncapp/internal/logging"
	"github.com/dl-alexandre/syncapp/internal/types"
	"github.com/dl-alexandre/syncapp/internal/utils"
	"google.golang.org/api/googleapi"
)

// ClassifyGoogleAPIError converts a Drive or Cloud Storage error into an AppError
func ClassifyGoogleAPIError(service string, err error, reqCtx *types.RequestContext, logger logging.Logger) error {
	var apiErr *googleapi.Error
	if !stderrors.As(err, &apiErr) {
		return classifyTransportError(service, err, reqCtx, logger)
	}

	var code string
	var retryable bool

	switch apiErr.Code {
	case 400:
		code = utils.ErrCodeInvalidArgument
	case 401:
		code = utils.ErrCodeAuthExpired
	case 403:
		code = utils.ErrCodePermissionDenied
		for _, e := range apiErr.Errors {
			switch e.Reason {
			case "sharingRateLimitExceeded", "userRateLimitExceeded", "rateLimitExceeded":
				code = utils.ErrCodeRateLimited
				retryable = true
			case "dailyLimitExceeded":
				code = utils.ErrCodeRateLimited
			case "cannotExportFile", "exportSizeLimitExceeded":
				code = utils.ErrCodeUnexportable
			}
		}
	case 404:
		code = utils.ErrCodeFileNotFound
	case 408:
		code = utils.ErrCodeTimeout
		retryable = true
	case 429:
		code = utils.ErrCodeRateLimited
		retryable = true
	case 500, 502, 503, 504:
		code = utils.ErrCodeProviderError
		retryable = true
	default:
		code = utils.ErrCodeUnknown
		retryable = apiErr.Code >= 500
	}

	logger.Debug("API error classified",
		logging.F("httpStatus", apiErr.Code),
		logging.F("errorCode", code),
		logging.F("retryable", retryable),
		logging.F("message", apiErr.Message),
		logging.F("traceId", reqCtx.TraceID),
		logging.F("service", service),
	)

	builder := utils.NewCLIError(code, apiErr.Message).
		WithHTTPStatus(apiErr.Code).
		WithRetryable(retryable).
		WithContext("traceId", reqCtx.TraceID).
		WithContext("requestType", string(reqCtx.RequestType)).
		WithContext("service", service)

	if reqCtx.URL != "" {
		builder.WithContext("url", reqCtx.URL)
	}
	if len(apiErr.Errors) > 0 {
		builder.WithProviderReason(apiErr.Errors[0].Reason)
	}
	switch code {
	case utils.ErrCodeAuthExpired:
		builder.WithContext("suggestedAction", "refresh the stored token for session "+reqCtx.Session)
	case utils.ErrCodeFileNotFound:
		builder.WithContext("suggestedAction", "object may have been removed; re-run index")
	case utils.ErrCodeRateLimited:
		builder.WithContext("suggestedAction", "rate limit exceeded, retrying with backoff")
	}

	return utils.WrapAppError(builder.Build(), err)
}

// classifyTransportError handles errors that never reached the provider API
func classifyTransportError(service string, err error, reqCtx *types.RequestContext, logger logging.Logger) error {
	code := utils.ErrCodeNetworkError
	retryable := true

	var netErr net.Error
	switch {
	case stderrors.Is(err, context.Canceled):
		code = utils.ErrCodeCancelled
		retryable = false
	case stderrors.Is(err, context.DeadlineExceeded):
		code = utils.ErrCodeTimeout
		retryable = false
	case stderrors.As(err, &netErr) && netErr.Timeout():
		code = utils.ErrCodeTimeout
	}

	logger.Debug("Non-API error",
		logging.F("error", err.Error()),
		logging.F("errorCode", code),
		logging.F("traceId", reqCtx.TraceID),
		logging.F("service", service),
	)

	return utils.WrapAppError(utils.NewCLIError(code, err.Error()).
		WithRetryable(retryable).
		WithContext("traceId", reqCtx.TraceID).
		WithContext("service", service).
		Build(), err)
}

// ClassifyGeneric passes AppErrors through and treats anything else as a transport failure
func ClassifyGeneric(service string, err error, reqCtx *types.RequestContext, logger logging.Logger) error {
	var appErr *utils.AppError
	if stderrors.As(err, &appErr) {
		return err
	}
	return classifyTransportError(service, err, reqCtx, logger)
}
