package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

func doRequest(e *echo.Echo, ip string) int {
	req := httptest.NewRequest(http.MethodPost, "/token", nil)
	req.RemoteAddr = ip + ":51000"
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec.Code
}

func TestLimiterBlocksOverLimit(t *testing.T) {
	e := echo.New()
	l := NewLimiter()
	e.POST("/token", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}, l.Middleware())

	for i := 0; i < DefaultRequestsPerMinute; i++ {
		assert.Equal(t, http.StatusOK, doRequest(e, "127.0.0.1"))
	}
	assert.Equal(t, http.StatusTooManyRequests, doRequest(e, "127.0.0.1"))

	// Other clients keep their own budget.
	assert.Equal(t, http.StatusOK, doRequest(e, "127.0.0.2"))
}

func TestCleanupDropsExpiredBuckets(t *testing.T) {
	l := NewLimiter()
	l.window = -1 // every bucket is immediately expired

	assert.True(t, l.allow("127.0.0.1"))
	l.Cleanup()
	assert.Empty(t, l.buckets)
}
