package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kestrelcommerce/kestrel/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type errorEnvelopeBody struct {
	Error struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Fields  map[string]string `json:"fields"`
	} `json:"error"`
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorEnvelopeBody {
	t.Helper()
	var body errorEnvelopeBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func jsonRequest(method, path string) *http.Request {
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set("Accept", "application/json")
	return req
}

func TestErrorCodeToHTTPStatus(t *testing.T) {
	cases := map[string]int{
		domain.EINVALID:      http.StatusBadRequest,
		domain.EUNAUTHORIZED: http.StatusUnauthorized,
		domain.EPAYMENT:      http.StatusPaymentRequired,
		domain.EFORBIDDEN:    http.StatusForbidden,
		domain.ENOTFOUND:     http.StatusNotFound,
		domain.ECONFLICT:     http.StatusConflict,
		domain.EGONE:         http.StatusGone,
		domain.ERATELIMIT:    http.StatusTooManyRequests,
		domain.EINTERNAL:     http.StatusInternalServerError,
		domain.ENOTIMPL:      http.StatusNotImplemented,
		"unknown_code":       http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, ErrorCodeToHTTPStatus(code), "code %q", code)
	}
}

func TestErrorResponse_JSON(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"not found", domain.NotFound("order.get", "order", "abc-123"), http.StatusNotFound, domain.ENOTFOUND},
		{"invalid", domain.Invalid("checkout.create", "cart is empty"), http.StatusBadRequest, domain.EINVALID},
		{"forbidden", domain.Forbidden("order.get", "not your order"), http.StatusForbidden, domain.EFORBIDDEN},
		// FinalizationError status wins over the code-mapped status.
		{"finalization forbidden", domain.FinalizationFailed(403, domain.EFORBIDDEN, "checkout.finalize", "session does not belong to this customer"), http.StatusForbidden, domain.EFORBIDDEN},
		{"finalization unpaid maps 400 not 402", domain.FinalizationFailed(400, domain.EPAYMENT, "checkout.finalize", "payment has not succeeded for this session"), http.StatusBadRequest, domain.EPAYMENT},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			ErrorResponse(rec, jsonRequest(http.MethodGet, "/test"), tc.err)

			assert.Equal(t, tc.wantStatus, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			assert.Equal(t, tc.wantCode, decodeError(t, rec).Error.Code)
		})
	}
}

func TestErrorResponse_PlainTextForNonJSONClients(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Accept", "text/html")
	rec := httptest.NewRecorder()

	ErrorResponse(rec, req, domain.NotFound("order.get", "order", "abc-123"))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NotEmpty(t, rec.Body.String())
	assert.NotContains(t, rec.Header().Get("Content-Type"), "application/json")
}

func TestErrorResponse_InternalHidesDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	err := domain.Internal(nil, "db.query", "failed to connect to database at 192.168.1.100:5432")

	ErrorResponse(rec, jsonRequest(http.MethodGet, "/test"), err)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, "An internal error occurred. Please try again later.", body.Error.Message)
	assert.NotContains(t, body.Error.Message, "192.168")
}

func TestValidationErrorResponse(t *testing.T) {
	t.Run("field map in body", func(t *testing.T) {
		err := domain.NewValidationError("checkout.create", "email", "email is required")
		err = domain.AddFieldError(err, "phone", "phone is required")

		rec := httptest.NewRecorder()
		ValidationErrorResponse(rec, jsonRequest(http.MethodPost, "/test"), err)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		body := decodeError(t, rec)
		assert.Equal(t, domain.EINVALID, body.Error.Code)
		require.Len(t, body.Error.Fields, 2)
		assert.Equal(t, "email is required", body.Error.Fields["email"])
	})

	t.Run("falls back for non-validation errors", func(t *testing.T) {
		rec := httptest.NewRecorder()
		ValidationErrorResponse(rec, jsonRequest(http.MethodPost, "/test"), domain.NotFound("order.get", "order", "123"))

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestConvenienceResponses(t *testing.T) {
	cases := []struct {
		name    string
		respond func(w http.ResponseWriter, r *http.Request)
		want    int
	}{
		{"NotFoundResponse", NotFoundResponse, http.StatusNotFound},
		{"UnauthorizedResponse", UnauthorizedResponse, http.StatusUnauthorized},
		{"ForbiddenResponse", ForbiddenResponse, http.StatusForbidden},
		{"InternalErrorResponse", func(w http.ResponseWriter, r *http.Request) { InternalErrorResponse(w, r, nil) }, http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tc.respond(rec, jsonRequest(http.MethodGet, "/test"))
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestAcceptsJSON(t *testing.T) {
	build := func(accept, contentType, path string) *http.Request {
		if path == "" {
			path = "/test"
		}
		req := httptest.NewRequest(http.MethodGet, path, nil)
		if accept != "" {
			req.Header.Set("Accept", accept)
		}
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		return req
	}

	assert.True(t, acceptsJSON(build("application/json", "", "")))
	assert.True(t, acceptsJSON(build("application/json; charset=utf-8", "", "")))
	assert.True(t, acceptsJSON(build("", "application/json", "")))
	assert.True(t, acceptsJSON(build("", "", "/api/orders.json")))
	assert.False(t, acceptsJSON(build("text/html", "", "/orders")))
	assert.False(t, acceptsJSON(build("", "", "/orders")))
}
