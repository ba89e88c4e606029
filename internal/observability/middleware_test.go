package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/danmuck/atbench/internal/testutil/testlog"
)

func TestStatusMiddlewareRecordsRoute(t *testing.T) {
	testlog.Start(t)
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(StatusMiddleware(zerolog.Nop(), "bench-test"))
	r.GET("/results/:id", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	for i := 0; i < 2; i++ {
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/results/abc", nil))
	}

	got := testutil.ToFloat64(httpRequests.WithLabelValues("bench-test", "GET", "/results/:id", "404"))
	if got != 2 {
		t.Fatalf("expected 2 requests for route template, got %v", got)
	}
}
