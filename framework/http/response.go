package http

import (
	"encoding/json"
	"net/http"

	"github.com/jmgilman/go/errors"

	"github.com/km-arc/go-container/framework/http/validation"
)

// ── Response ─────────────────────────────────────────────────────────────────

// Response wraps http.ResponseWriter with Laravel-style helpers.
type Response struct {
	w http.ResponseWriter
}

// NewResponse wraps a ResponseWriter.
func NewResponse(w http.ResponseWriter) *Response {
	return &Response{w: w}
}

// ── JSON responses ────────────────────────────────────────────────────────────

// JSON sends a JSON response.
//
//	res.JSON(http.StatusOK, map[string]any{"message": "ok"})
func (res *Response) JSON(status int, data any) {
	res.w.Header().Set("Content-Type", "application/json")
	res.w.WriteHeader(status)
	_ = json.NewEncoder(res.w).Encode(data)
}

// Success sends 200 JSON: {"data": v}
func (res *Response) Success(v any) {
	res.JSON(http.StatusOK, envelope{"data": v})
}

// Created sends 201 JSON: {"data": v}
func (res *Response) Created(v any) {
	res.JSON(http.StatusCreated, envelope{"data": v})
}

// NoContent sends 204 with no body.
func (res *Response) NoContent() {
	res.w.WriteHeader(http.StatusNoContent)
}

// NotFound sends 404.
func (res *Response) NotFound(message ...string) {
	msg := first(message, "Not found.")
	res.JSON(http.StatusNotFound, envelope{"message": msg})
}

// ValidationError sends 422 with the standard Laravel error bag.
//
//	res.ValidationError(validator.Errors())
func (res *Response) ValidationError(bag *validation.Errors) {
	res.JSON(http.StatusUnprocessableEntity, bag)
}

// Fail sends a coded error: {"error": {"code": ..., "message": ...}}. The
// status follows the error's code; errors without one are reported as 500.
//
//	res.Fail(errors.Wrap(err, errors.CodeConflict, "alias already in use"))
func (res *Response) Fail(err error) {
	body := errors.ToJSON(err)
	if body == nil {
		res.NoContent()
		return
	}
	res.JSON(StatusFor(errors.GetCode(err)), envelope{"error": body})
}

// StatusFor maps an error code to its HTTP status.
func StatusFor(code errors.ErrorCode) int {
	switch code {
	case errors.CodeNotFound:
		return http.StatusNotFound
	case errors.CodeAlreadyExists, errors.CodeConflict:
		return http.StatusConflict
	case errors.CodeInvalidInput, errors.CodeSchemaFailed:
		return http.StatusUnprocessableEntity
	case errors.CodeUnauthorized:
		return http.StatusUnauthorized
	case errors.CodeForbidden:
		return http.StatusForbidden
	case errors.CodeTimeout:
		return http.StatusGatewayTimeout
	case errors.CodeUnavailable:
		return http.StatusServiceUnavailable
	case errors.CodeNotImplemented:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

// ── Helpers ──────────────────────────────────────────────────────────────────

type envelope map[string]any

func first(ss []string, fallback string) string {
	if len(ss) > 0 && ss[0] != "" {
		return ss[0]
	}
	return fallback
}
