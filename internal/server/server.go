// Package server exposes the operator surface over HTTP: health, prometheus
// metrics, queue depths and a redacted view of the persistent state. It is
// read-only; all mutation goes through the CLI and the pipeline itself.
package server

import (
	"fmt"
	"log"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pytrel-systems/dragon/internal/queue"
	"github.com/pytrel-systems/dragon/internal/state"
	"github.com/pytrel-systems/dragon/internal/telemetry"
)

// Server serves the ops endpoints.
type Server struct {
	queue   *queue.Store
	states  *state.Store
	metrics *telemetry.Metrics
	logger  *log.Logger
}

// New creates an ops server over the given stores and metrics.
func New(q *queue.Store, st *state.Store, m *telemetry.Metrics) *Server {
	return &Server{
		queue:   q,
		states:  st,
		metrics: m,
		logger:  log.New(log.Writer(), "[HTTP] ", log.LstdFlags),
	}
}

// Run starts the server on addr and blocks.
func (s *Server) Run(addr string) error {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		s.logger.Printf("%d %s %s: %v", code, req.Method, req.URL.Path, err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]any{"error": msg})
		}
	}

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	e.GET("/queue", s.handleQueueCounts)
	e.GET("/queue/:area", s.handleQueueList)
	e.GET("/state", s.handleState)

	return e.Start(addr)
}

func (s *Server) handleQueueCounts(c echo.Context) error {
	counts, err := s.queue.Count()
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, counts)
}

func (s *Server) handleQueueList(c echo.Context) error {
	area := queue.Area(c.Param("area"))
	switch area {
	case queue.AreaOutbox, queue.AreaSent, queue.AreaDead:
	default:
		return echo.NewHTTPError(http.StatusNotFound, "unknown queue area")
	}
	limit := 50
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = n
	}
	paths, err := s.queue.List(area, limit)
	if err != nil {
		return err
	}
	ids := make([]string, 0, len(paths))
	for _, p := range paths {
		base := filepath.Base(p)
		ids = append(ids, base[:len(base)-len(".json")])
	}
	return c.JSON(http.StatusOK, map[string]any{"area": area, "jobs": ids})
}

// handleState returns cursors and cooldowns but only the sizes of the memory
// maps; individual replied-to ids stay out of the HTTP surface.
func (s *Server) handleState(c echo.Context) error {
	st := s.states.Load()
	return c.JSON(http.StatusOK, map[string]any{
		"ts_unix":                    st.TSUnix,
		"x_mentions_since_id":        st.MentionsCursor,
		"search_cursors":             st.SearchCursors,
		"last_daily_post_by_channel": st.LastDailyPostUnix,
		"conversations_tracked":      len(st.Conversations),
		"replied_ids_tracked":        len(st.RepliedIDs),
	})
}
