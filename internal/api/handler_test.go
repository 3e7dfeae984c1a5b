package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/strefethen/dlna-hub-go/internal/apperrors"
)

func TestRequestIDMiddleware(t *testing.T) {
	t.Run("generates an id", func(t *testing.T) {
		var seen string
		h := RequestIDMiddleware(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
			seen = RequestIDFrom(r.Context())
		}))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/sessions", nil))

		require.NotEmpty(t, seen)
		require.Equal(t, seen, rec.Header().Get("X-Request-Id"))
	})

	t.Run("honors the caller's id", func(t *testing.T) {
		var seen string
		h := RequestIDMiddleware(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
			seen = RequestIDFrom(r.Context())
		}))
		req := httptest.NewRequest(http.MethodGet, "/v1/sessions", nil)
		req.Header.Set("X-Request-Id", "trace-42")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		require.Equal(t, "trace-42", seen)
		require.Equal(t, "trace-42", rec.Header().Get("X-Request-Id"))
	})
}

func TestRequestIDFromBareContext(t *testing.T) {
	require.Empty(t, RequestIDFrom(context.Background()))
}

func TestHandlerWritesErrorEnvelope(t *testing.T) {
	h := Handler(func(http.ResponseWriter, *http.Request) error {
		return apperrors.NewNotFoundResource("session", "abc")
	})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/sessions/abc", nil))

	require.Equal(t, http.StatusNotFound, rec.Code)
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, apperrors.ErrorTypeInvalidRequest, body.Error.Type)
	require.Equal(t, "NOT_FOUND", body.Error.Code)
	require.Contains(t, body.Error.Message, "abc")
}

func TestRecovererMiddleware(t *testing.T) {
	h := RecovererMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/sessions", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, apperrors.ErrorTypeAPIError, body.Error.Type)
	require.Equal(t, "INTERNAL_ERROR", body.Error.Code)
}
