package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/myaccess/kiosk-console/internal/session"
	"github.com/myaccess/kiosk-console/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestRequestScopedLogger(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	sessions := session.NewManager(session.Options{Store: testutil.NewMockConfigStore()})
	t.Cleanup(sessions.CloseAll)

	h := NewHandler(sessions, nil, "test")
	e := echo.New()
	SetupMiddleware(e, zap.New(core), MiddlewareOptions{RequestLogging: true})
	RegisterRoutes(e, h, NewWebSocketHandler(h))

	req := httptest.NewRequest(http.MethodPut, "/api/devices/dev-1/ui-config",
		strings.NewReader(`{"components": [{"id": "g", "type": "gauge", "path": "x"}]}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rid := rec.Header().Get(echo.HeaderXRequestID)
	require.NotEmpty(t, rid)

	rejected := logs.FilterMessage("layout rejected").All()
	require.Len(t, rejected, 1)
	assert.Equal(t, rid, rejected[0].ContextMap()["requestId"])

	requests := logs.FilterMessage("request").All()
	require.Len(t, requests, 1)
	assert.Equal(t, rid, requests[0].ContextMap()["requestId"])
	assert.EqualValues(t, http.StatusBadRequest, requests[0].ContextMap()["status"])
}

func TestCORSOnlyWhenOriginsSet(t *testing.T) {
	for _, origins := range [][]string{nil, {"http://kiosk.local"}} {
		e := echo.New()
		SetupMiddleware(e, nil, MiddlewareOptions{AllowOrigins: origins})
		e.GET("/api/health", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

		req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		req.Header.Set(echo.HeaderOrigin, "http://kiosk.local")
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		if origins == nil {
			assert.Empty(t, rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
		} else {
			assert.Equal(t, "http://kiosk.local", rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
		}
	}
}
