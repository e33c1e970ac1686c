package httpclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	apperrors "github.com/Milly-Sporty/sportypredict-frontend-sub000/pkg/errors"
)

// upstreamError mirrors the error envelope returned by the SportyPredict
// API: {"status":"error","message":"..."}.
type upstreamError struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// ParseResponseError reads the body of a non-2xx HTTP response and
// translates it into an AppError that preserves the upstream semantics.
// The caller should only invoke this when resp.StatusCode indicates an
// error. The response body is fully consumed and closed.
func ParseResponseError(resp *http.Response, serviceName string) error {
	defer func() { _ = resp.Body.Close() }()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20)) // 1 MB limit
	if err != nil {
		return fmt.Errorf("%s returned status %d (failed to read body: %w)", serviceName, resp.StatusCode, err)
	}

	message := ""
	var upstream upstreamError
	if json.Unmarshal(bodyBytes, &upstream) == nil && upstream.Message != "" {
		message = upstream.Message
	}
	if message == "" {
		message = fmt.Sprintf("status %d: %s", resp.StatusCode, string(bodyBytes))
	}
	qualified := fmt.Sprintf("%s: %s", serviceName, message)

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return apperrors.Unauthorized(qualified)
	case resp.StatusCode == http.StatusForbidden:
		return apperrors.Forbidden(qualified)
	case resp.StatusCode == http.StatusNotFound:
		return apperrors.NotFound(serviceName, message)
	case resp.StatusCode == http.StatusConflict:
		return apperrors.AlreadyExists(serviceName, "resource", message)
	case resp.StatusCode == http.StatusBadRequest:
		return apperrors.InvalidInput(qualified)
	case resp.StatusCode == http.StatusUnprocessableEntity:
		return apperrors.PaymentFailed(qualified)
	case resp.StatusCode == http.StatusServiceUnavailable:
		return apperrors.ServiceUnavailable(qualified)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%s server error (%d): %s", serviceName, resp.StatusCode, message)
	default:
		return &apperrors.AppError{
			Code:    "UPSTREAM_ERROR",
			Message: qualified,
			Status:  resp.StatusCode,
		}
	}
}

// IsClientError returns true if the HTTP status code is a 4xx client error.
func IsClientError(status int) bool {
	return status >= 400 && status < 500
}
