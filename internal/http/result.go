package httpapi

import (
	"net/http"

	"pneumodetect/internal/apperr"

	"go.uber.org/zap"
)

// Result is the JSON envelope every endpoint returns. error_code is set
// only on failures and is one of the stable apperr codes.
type Result struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Data      any    `json:"data,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`
}

func Ok(message string, data any) Result {
	return Result{Success: true, Message: message, Data: data}
}

func Fail(code apperr.Code, message string) Result {
	return Result{Success: false, Message: message, ErrorCode: string(code)}
}

// statusFor maps an error code to its HTTP status.
func statusFor(code apperr.Code) int {
	switch code {
	case apperr.CodeValidation:
		return http.StatusBadRequest
	case apperr.CodeUnauthorized:
		return http.StatusUnauthorized
	case apperr.CodeForbidden:
		return http.StatusForbidden
	case apperr.CodeNotFound:
		return http.StatusNotFound
	case apperr.CodeInvalidState:
		return http.StatusConflict
	case apperr.CodeRateLimited:
		return http.StatusTooManyRequests
	case apperr.CodeModelError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err through the envelope. Internal causes are
// logged server-side and never shown to clients.
func writeError(w http.ResponseWriter, logger *zap.Logger, err error) {
	ae := apperr.From(err)
	if ae.Code == apperr.CodeInternal && ae.Err != nil {
		logger.Error("Request failed", zap.Error(ae.Err))
	}
	writeJSON(w, statusFor(ae.Code), Fail(ae.Code, ae.Message))
}
