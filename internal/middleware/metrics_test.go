package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	t.Run("passes_request_through", func(t *testing.T) {
		handler := Metrics()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		}))

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusTeapot, w.Code)
	})

	t.Run("defaults_status_to_200", func(t *testing.T) {
		handler := Metrics()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Handler that never calls WriteHeader.
			_, _ = w.Write([]byte("ok"))
		}))

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestResponseWriter_Hijack(t *testing.T) {
	t.Run("errors_when_underlying_writer_cannot_hijack", func(t *testing.T) {
		// httptest.ResponseRecorder does not implement http.Hijacker.
		rw := &responseWriter{ResponseWriter: httptest.NewRecorder()}

		_, _, err := rw.Hijack()
		require.Error(t, err)
	})
}
