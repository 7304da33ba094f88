package httpclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	apperrors "github.com/harborline/storefront/pkg/errors"
)

// downstreamErrorResponse mirrors the httputil.ErrorResponse envelope so
// structured error bodies from our own API can be parsed by clients.
type downstreamErrorResponse struct {
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// ParseResponseError reads the body of a non-2xx response and translates it
// into an AppError from our taxonomy. The response body is fully consumed and
// closed.
func ParseResponseError(resp *http.Response, serviceName string) error {
	defer func() { _ = resp.Body.Close() }()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%s returned status %d (failed to read body: %w)", serviceName, resp.StatusCode, err)
	}

	var downstream downstreamErrorResponse
	if json.Unmarshal(bodyBytes, &downstream) == nil && downstream.Error != nil {
		return mapDownstreamError(resp.StatusCode, downstream.Error.Code, downstream.Error.Message)
	}

	return fmt.Errorf("%s returned status %d: %s", serviceName, resp.StatusCode, string(bodyBytes))
}

func mapDownstreamError(status int, code, message string) error {
	switch code {
	case "SESSION_EXPIRED":
		return apperrors.SessionExpired()
	case "TOKEN_EXPIRED":
		return apperrors.TokenExpired()
	case "TOKEN_MALFORMED":
		return apperrors.TokenMalformed()
	case "SERVICE_UNAVAILABLE":
		return apperrors.Unavailable(message)
	}

	switch status {
	case http.StatusNotFound:
		return &apperrors.AppError{Code: code, Message: message, Status: status, Err: apperrors.ErrNotFound}
	case http.StatusConflict:
		return &apperrors.AppError{Code: code, Message: message, Status: status, Err: apperrors.ErrConflict}
	case http.StatusUnauthorized:
		return apperrors.Unauthorized(message)
	case http.StatusForbidden:
		return apperrors.Forbidden(message)
	case http.StatusUnprocessableEntity:
		return apperrors.Validation(message, nil)
	case http.StatusServiceUnavailable:
		return apperrors.Unavailable(message)
	default:
		return &apperrors.AppError{Code: code, Message: message, Status: status}
	}
}
