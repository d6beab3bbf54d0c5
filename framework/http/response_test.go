package http_test

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jmgilman/go/errors"

	gohttp "github.com/km-arc/go-container/framework/http"
	"github.com/km-arc/go-container/framework/http/validation"
)

// ── helpers ──────────────────────────────────────────────────────────────────

func newResponse(t *testing.T) (*gohttp.Response, *httptest.ResponseRecorder) {
	t.Helper()
	rr := httptest.NewRecorder()
	return gohttp.NewResponse(rr), rr
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&m); err != nil {
		t.Fatalf("decodeJSON: %v", err)
	}
	return m
}

// ── JSON ──────────────────────────────────────────────────────────────────────

func TestResponse_JSON(t *testing.T) {
	res, rr := newResponse(t)
	res.JSON(http.StatusOK, map[string]any{"key": "val"})

	if rr.Code != http.StatusOK {
		t.Errorf("status: got %d want 200", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q want application/json", ct)
	}
	m := decodeJSON(t, rr)
	if m["key"] != "val" {
		t.Errorf("body key: got %v want val", m["key"])
	}
}

func TestResponse_Success(t *testing.T) {
	res, rr := newResponse(t)
	res.Success(map[string]any{"count": float64(2)})

	if rr.Code != http.StatusOK {
		t.Errorf("status: got %d want 200", rr.Code)
	}
	m := decodeJSON(t, rr)
	data, ok := m["data"].(map[string]any)
	if !ok {
		t.Fatalf("expected data envelope, got %T", m["data"])
	}
	if data["count"] != float64(2) {
		t.Errorf("data.count: got %v want 2", data["count"])
	}
}

func TestResponse_Created(t *testing.T) {
	res, rr := newResponse(t)
	res.Created(map[string]any{"alias": "db"})

	if rr.Code != http.StatusCreated {
		t.Errorf("status: got %d want 201", rr.Code)
	}
	if _, ok := decodeJSON(t, rr)["data"]; !ok {
		t.Error("expected 'data' key in response")
	}
}

func TestResponse_NoContent(t *testing.T) {
	res, rr := newResponse(t)
	res.NoContent()

	if rr.Code != http.StatusNoContent {
		t.Errorf("status: got %d want 204", rr.Code)
	}
	if rr.Body.Len() != 0 {
		t.Errorf("expected empty body, got %q", rr.Body.String())
	}
}

// ── Error helpers ─────────────────────────────────────────────────────────────

func TestResponse_NotFound(t *testing.T) {
	res, rr := newResponse(t)
	res.NotFound()

	if rr.Code != http.StatusNotFound {
		t.Errorf("status: got %d want 404", rr.Code)
	}
	if m := decodeJSON(t, rr); m["message"] != "Not found." {
		t.Errorf("message: got %v", m["message"])
	}
}

// ── Fail ──────────────────────────────────────────────────────────────────────

func TestResponse_Fail_CodedError(t *testing.T) {
	res, rr := newResponse(t)
	cause := stderrors.New("alias [db] already points at [database]")
	res.Fail(errors.Wrap(cause, errors.CodeConflict, "alias already in use"))

	if rr.Code != http.StatusConflict {
		t.Errorf("status: got %d want 409", rr.Code)
	}
	m := decodeJSON(t, rr)
	body, ok := m["error"].(map[string]any)
	if !ok {
		t.Fatalf("expected error envelope, got %T", m["error"])
	}
	if body["code"] != "CONFLICT" {
		t.Errorf("code: got %v want CONFLICT", body["code"])
	}
	if body["message"] != "alias already in use" {
		t.Errorf("message: got %v", body["message"])
	}
}

func TestResponse_Fail_PlainError(t *testing.T) {
	res, rr := newResponse(t)
	res.Fail(stderrors.New("unexpected"))

	if rr.Code != http.StatusInternalServerError {
		t.Errorf("status: got %d want 500", rr.Code)
	}
	body := decodeJSON(t, rr)["error"].(map[string]any)
	if body["code"] != "UNKNOWN" {
		t.Errorf("code: got %v want UNKNOWN", body["code"])
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		code errors.ErrorCode
		want int
	}{
		{errors.CodeNotFound, http.StatusNotFound},
		{errors.CodeConflict, http.StatusConflict},
		{errors.CodeAlreadyExists, http.StatusConflict},
		{errors.CodeInvalidInput, http.StatusUnprocessableEntity},
		{errors.CodeUnavailable, http.StatusServiceUnavailable},
		{errors.CodeTimeout, http.StatusGatewayTimeout},
		{errors.CodeInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			if got := gohttp.StatusFor(tt.code); got != tt.want {
				t.Errorf("got %d want %d", got, tt.want)
			}
		})
	}
}

// ── ValidationError ───────────────────────────────────────────────────────────

func TestResponse_ValidationError(t *testing.T) {
	res, rr := newResponse(t)

	v := validation.Make(
		map[string]string{"alias": ""},
		validation.Rules{"alias": "required|name"},
	)
	_ = v.Fails()
	res.ValidationError(v.Errors())

	if rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("status: got %d want 422", rr.Code)
	}

	var body struct {
		Errors map[string][]string `json:"errors"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := body.Errors["alias"]; !ok {
		t.Error("expected 'alias' key in errors")
	}
}
