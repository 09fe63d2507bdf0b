// Package http provides HTTP server and handler implementations.
//
// This file implements the Builder Pattern for constructing JSON responses
// and maps ledger errors onto status codes and a stable error envelope.

package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"saldo/internal/analytics"
	"saldo/internal/core"
	"saldo/internal/log"
)

// Error codes returned in the "code" field of error bodies.
const (
	CodeInvalidInput      = "invalid_input"
	CodeInvalidJSON       = "invalid_json"
	CodeUnauthorized      = "unauthorized"
	CodeNotFound          = "not_found"
	CodeConflict          = "conflict"
	CodeInitialBalanceSet = "initial_balance_set"
	CodeRateLimited       = "rate_limited"
	CodePartialWrite      = "partial_write"
	CodeInternal          = "internal"
)

// ConflictRetryAfter is advertised to clients when a write keeps losing
// the version race.
const ConflictRetryAfter = 1

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error   string            `json:"error"`
	Code    string            `json:"code"`
	Details []core.FieldError `json:"details,omitempty"`
}

// JSONResponseBuilder provides a fluent API for building JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	body       any
	headers    map[string]string
}

// NewJSONResponse creates a new response builder with default 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

// Status sets the HTTP status code for the response.
func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

// Header adds a custom header to the response.
func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Body sets the value encoded as the response body.
func (b *JSONResponseBuilder) Body(v any) *JSONResponseBuilder {
	b.body = v
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if b.body == nil {
		w.WriteHeader(b.statusCode)
		return
	}

	payload, err := json.Marshal(b.body)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"failed to encode response","code":"internal"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(b.statusCode)
	_, _ = w.Write(payload)
	_, _ = w.Write([]byte("\n"))
}

// ErrorResponse creates a standard error response.
func ErrorResponse(statusCode int, code, message string) *JSONResponseBuilder {
	return NewJSONResponse().
		Status(statusCode).
		Body(ErrorBody{Error: message, Code: code})
}

// BadRequestError creates a 400 Bad Request error response.
func BadRequestError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, CodeInvalidInput, message)
}

// ValidationErrorResponse reports every rejected field.
func ValidationErrorResponse(v *core.ValidationError) *JSONResponseBuilder {
	return NewJSONResponse().
		Status(http.StatusBadRequest).
		Body(ErrorBody{Error: "Invalid input", Code: CodeInvalidInput, Details: v.Fields})
}

// NotFoundError creates a 404 Not Found error response.
func NotFoundError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusNotFound, CodeNotFound, message)
}

// UnauthorizedError creates a 401 Unauthorized error response.
func UnauthorizedError() *JSONResponseBuilder {
	return ErrorResponse(http.StatusUnauthorized, CodeUnauthorized, "Unauthorized").
		Header("WWW-Authenticate", `Bearer realm="saldo"`)
}

// TooManyRequestsError creates a 429 response. Callers set Retry-After.
func TooManyRequestsError() *JSONResponseBuilder {
	return ErrorResponse(http.StatusTooManyRequests, CodeRateLimited, "Too Many Requests")
}

// InternalServerError creates a 500 Internal Server Error response.
func InternalServerError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, CodeInternal, message)
}

// ErrorFor maps a ledger error onto its HTTP response. Partial writes are
// checked first since their cause may itself be a conflict.
func ErrorFor(err error) *JSONResponseBuilder {
	var verr *core.ValidationError
	switch {
	case errors.Is(err, core.ErrPartialWrite):
		return ErrorResponse(http.StatusInternalServerError, CodePartialWrite,
			"The write was only partly applied; the account is being reconciled")
	case errors.As(err, &verr):
		return ValidationErrorResponse(verr)
	case errors.Is(err, ErrInvalidJSON):
		return ErrorResponse(http.StatusBadRequest, CodeInvalidJSON, "Request body must be a JSON object")
	case errors.Is(err, core.ErrValidation),
		errors.Is(err, analytics.ErrInvalidWindow),
		errors.Is(err, analytics.ErrInvalidMonths):
		return BadRequestError(err.Error())
	case errors.Is(err, core.ErrInitialBalanceSet):
		return ErrorResponse(http.StatusBadRequest, CodeInitialBalanceSet, "Initial balance already set")
	case errors.Is(err, core.ErrUnauthorized):
		return UnauthorizedError()
	case errors.Is(err, core.ErrNotFound):
		return NotFoundError("Not found")
	case errors.Is(err, core.ErrConflict), errors.Is(err, core.ErrVersionConflict):
		return ErrorResponse(http.StatusConflict, CodeConflict, "Concurrent update, try again").
			Header("Retry-After", strconv.Itoa(ConflictRetryAfter))
	case errors.Is(err, core.ErrRateLimited):
		return TooManyRequestsError().Header("Retry-After", "60")
	default:
		return InternalServerError("Internal server error")
	}
}

// writeError logs server-side failures and writes the mapped response.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	resp := ErrorFor(err)
	if resp.statusCode >= http.StatusInternalServerError {
		logger := log.FromContext(r.Context()).WithComponent(log.ComponentHTTP)
		log.NewStructuredLogger(logger).LogError(r.Context(), "Request failed", err, r.Pattern,
			log.NewFields().WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, r.UserAgent()))
	}
	resp.Write(w)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	NewJSONResponse().Status(status).Body(v).Write(w)
}
