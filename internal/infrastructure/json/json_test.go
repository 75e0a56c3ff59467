package json_test

import (
	stdjson "encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fennwick/sotto/internal/infrastructure/json"
	"github.com/stretchr/testify/require"
)

func TestWrite(t *testing.T) {
	rec := httptest.NewRecorder()

	require.NoError(t, json.Write(rec, http.StatusOK, map[string]string{"status": "ok"}))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()

	json.WriteError(rec, http.StatusNotFound, "Unknown route.")

	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp json.ErrorResponse
	require.NoError(t, stdjson.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, http.StatusText(http.StatusNotFound), resp.Error)
	require.Equal(t, "Unknown route.", resp.Message)
}

func TestWriteRateLimitError(t *testing.T) {
	rec := httptest.NewRecorder()

	json.WriteRateLimitError(rec, 3)

	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "3", rec.Header().Get("Retry-After"))
}

func TestWriteRateLimitErrorOmitsZeroRetryAfter(t *testing.T) {
	rec := httptest.NewRecorder()

	json.WriteRateLimitError(rec, 0)

	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Empty(t, rec.Header().Get("Retry-After"))
}
