package errors

import (
	stderrors "errors"

	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/smithy-go"
	"github.com/dl-alexandre/syncapp/internal/logging"
	"github.com/dl-alexandre/syncapp/internal/types"
	"github.com/dl-alexandre/syncapp/internal/utils"
)

// ClassifyS3Error converts an AWS SDK error into an AppError
func ClassifyS3Error(err error, reqCtx *types.RequestContext, logger logging.Logger) error {
	var apiErr smithy.APIError
	if !stderrors.As(err, &apiErr) {
		return classifyTransportError("s3", err, reqCtx, logger)
	}

	status := 0
	var respErr *awshttp.ResponseError
	if stderrors.As(err, &respErr) {
		status = respErr.HTTPStatusCode()
	}

	code := utils.ErrCodeProviderError
	retryable := false

	switch apiErr.ErrorCode() {
	case "NoSuchKey", "NoSuchBucket", "NotFound":
		code = utils.ErrCodeFileNotFound
	case "AccessDenied", "Forbidden", "AllAccessDisabled":
		code = utils.ErrCodePermissionDenied
	case "InvalidAccessKeyId", "SignatureDoesNotMatch", "ExpiredToken":
		code = utils.ErrCodeAuthExpired
	case "SlowDown", "Throttling", "ThrottlingException", "RequestLimitExceeded", "TooManyRequestsException":
		code = utils.ErrCodeRateLimited
		retryable = true
	case "RequestTimeout", "RequestTimeTooSkewed":
		code = utils.ErrCodeTimeout
		retryable = true
	case "InternalError", "ServiceUnavailable":
		retryable = true
	case "InvalidArgument", "InvalidBucketName", "InvalidObjectState":
		code = utils.ErrCodeInvalidArgument
	default:
		retryable = status >= 500 || status == 429
	}

	logger.Debug("S3 error classified",
		logging.F("httpStatus", status),
		logging.F("awsCode", apiErr.ErrorCode()),
		logging.F("errorCode", code),
		logging.F("retryable", retryable),
		logging.F("traceId", reqCtx.TraceID),
	)

	builder := utils.NewCLIError(code, apiErr.ErrorMessage()).
		WithHTTPStatus(status).
		WithProviderReason(apiErr.ErrorCode()).
		WithRetryable(retryable).
		WithContext("traceId", reqCtx.TraceID).
		WithContext("requestType", string(reqCtx.RequestType)).
		WithContext("service", "s3")
	if reqCtx.URL != "" {
		builder.WithContext("url", reqCtx.URL)
	}

	return utils.WrapAppError(builder.Build(), err)
}
