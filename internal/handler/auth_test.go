package handler

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arlens/internal/config"
	"arlens/internal/logger"
)

func postForm(values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestLoginHandler(t *testing.T) {
	handler := LoginHandler(&config.Config{Password: "secret"}, logger.Discard())

	rec := httptest.NewRecorder()
	handler(rec, postForm(url.Values{"password": {"secret"}}))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, AuthCookie, cookies[0].Name)
	assert.Equal(t, "true", cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)

	rec = httptest.NewRecorder()
	handler(rec, postForm(url.Values{"password": {"wrong"}}))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, rec.Result().Cookies())

	rec = httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/auth/login", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestLogoutHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	LogoutHandler(rec, httptest.NewRequest(http.MethodGet, "/auth/logout", nil))

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, AuthCookie, cookies[0].Name)
	assert.Less(t, cookies[0].MaxAge, 0)
}

func TestLogsHandlers(t *testing.T) {
	dir := t.TempDir()
	log, err := logger.NewLogger(&config.Config{LogDirectory: dir})
	require.NoError(t, err)
	log.Warning("queue full")

	rec := httptest.NewRecorder()
	ShowLogsHandler(log, "warning")(rec, httptest.NewRequest(http.MethodGet, "/logs/warning", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "queue full")
	assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))

	rec = httptest.NewRecorder()
	ClearLogsHandler(log, "warning")(rec, httptest.NewRequest(http.MethodPost, "/logs/warning/clear", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	data, err := os.ReadFile(filepath.Join(dir, "warning.log"))
	require.NoError(t, err)
	assert.Empty(t, data)

	rec = httptest.NewRecorder()
	ClearLogsHandler(log, "warning")(rec, httptest.NewRequest(http.MethodGet, "/logs/warning/clear", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestShowLogsHandler_Missing(t *testing.T) {
	rec := httptest.NewRecorder()
	ShowLogsHandler(logger.Discard(), "error")(rec, httptest.NewRequest(http.MethodGet, "/logs/error", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
