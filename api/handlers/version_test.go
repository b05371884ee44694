package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetVersion(t *testing.T) {
	SetBuildInfo("1.2.3", "abc1234", "2026-08-30")
	t.Cleanup(func() { SetBuildInfo("dev", "none", "unknown") })

	rec := httptest.NewRecorder()
	GetVersion(rec, httptest.NewRequest(http.MethodGet, "/api/version", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var got VersionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, VersionResponse{
		Service: "insight-api",
		Version: "1.2.3",
		Commit:  "abc1234",
		Date:    "2026-08-30",
	}, got)
}
