package station

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/atbench/internal/observability"
	"github.com/danmuck/atbench/internal/report"
)

const serverName = "atbench"

// StatusServer exposes health, prometheus metrics and the latest run of a
// station over HTTP.
type StatusServer struct {
	Addr     string
	Appeared time.Time

	station *Station
	router  *gin.Engine
}

func NewStatusServer(st *Station, addr string, corsOrigins []string) *StatusServer {
	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.StatusMiddleware(log.Logger, serverName))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(corsOrigins),
		AllowMethods: []string{"GET"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &StatusServer{
		Addr:     addr,
		Appeared: time.Now(),
		station:  st,
		router:   r,
	}
	s.registerRoutes()
	return s
}

func (s *StatusServer) HTTPRouter() *gin.Engine {
	return s.router
}

// RunView is the /results document.
type RunView struct {
	RunID   string          `json:"run_id"`
	Started time.Time       `json:"started"`
	Passed  int             `json:"passed"`
	Failed  int             `json:"failed"`
	Total   int             `json:"total"`
	Results []report.Record `json:"results"`
}

func newRunView(run report.Run) RunView {
	sum := report.Summarize(run.Results)
	return RunView{
		RunID:   run.ID,
		Started: run.Started.UTC(),
		Passed:  sum.Passed,
		Failed:  sum.Failed,
		Total:   sum.Total,
		Results: report.Records(run.Results),
	}
}

func (s *StatusServer) registerRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.Appeared).String(),
			"service": serverName,
		})
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.GET("/results", func(c *gin.Context) {
		run, ok := s.station.Last()
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "no completed run"})
			return
		}
		c.JSON(http.StatusOK, newRunView(run))
	})
}

// Serve listens on Addr until ctx is cancelled, then shuts down gracefully.
func (s *StatusServer) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return err
	}
	return s.serve(ctx, ln)
}

func (s *StatusServer) serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	log.Info().Str("addr", ln.Addr().String()).Msg("status server listening")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		<-errCh
		return err
	}
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
