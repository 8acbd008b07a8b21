// Package httpapi serves the daemon's operational endpoints.
package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"daily-news-bot/preference"
	"daily-news-bot/state"
)

const defaultTop = 10

// Cycles runs the bot's cycles. Implementations serialize runs.
type Cycles interface {
	Curate(ctx context.Context) error
	Learn(ctx context.Context) error
}

// StateReader exposes the persisted state for inspection.
type StateReader interface {
	LoadSeen(ctx context.Context) (state.SeenSet, error)
	LoadLearning(ctx context.Context) (state.LearningData, error)
	LoadCursor(ctx context.Context) (state.Cursor, error)
}

// Server is the ops HTTP server.
type Server struct {
	echo   *echo.Echo
	cycles Cycles
	state  StateReader
	logger zerolog.Logger

	// base outlives requests; triggered cycles run under it.
	base context.Context
	wg   sync.WaitGroup
}

// New creates a Server. Cycles triggered over HTTP run under base.
func New(base context.Context, cycles Cycles, st StateReader, logger zerolog.Logger) *Server {
	s := &Server{
		cycles: cycles,
		state:  st,
		logger: logger.With().Str("component", "httpapi").Logger(),
		base:   base,
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			s.logger.Debug().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Msg("http request")
			return nil
		},
	}))
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := "internal error"
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if m, ok := he.Message.(string); ok {
				msg = m
			}
		}
		s.logger.Warn().Err(err).Int("status", code).Str("path", c.Path()).Msg("http request error")
		if !c.Response().Committed {
			c.JSON(code, map[string]string{"error": msg})
		}
	}

	e.GET("/healthz", s.handleHealth)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/api/preferences", s.handlePreferences)
	e.POST("/api/curate", s.handleTrigger("curate", cycles.Curate))
	e.POST("/api/learn", s.handleTrigger("learn", cycles.Learn))
	s.echo = e
	return s
}

// ServeHTTP lets the server be used as an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Start listens on addr until Shutdown.
func (s *Server) Start(addr string) error {
	s.logger.Info().Str("addr", addr).Msg("starting ops http server")
	if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the listener and waits for triggered cycles to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.echo.Shutdown(ctx)
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return err
}

type healthStatus struct {
	Status         string     `json:"status"`
	Message        string     `json:"msg,omitempty"`
	LastCurationAt *time.Time `json:"lastCurationAt,omitempty"`
	LastLearningAt *time.Time `json:"lastLearningAt,omitempty"`
	LastSlateSize  int        `json:"lastSlateSize"`
}

func (s *Server) handleHealth(c echo.Context) error {
	cur, err := s.state.LoadCursor(c.Request().Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("healthcheck can't read the store")
		return c.JSON(http.StatusServiceUnavailable, healthStatus{Status: "error", Message: "can't read the store"})
	}
	h := healthStatus{Status: "ok", LastSlateSize: cur.LastSlateSize}
	if !cur.LastCurationAt.IsZero() {
		h.LastCurationAt = &cur.LastCurationAt
	}
	if !cur.LastLearningAt.IsZero() {
		h.LastLearningAt = &cur.LastLearningAt
	}
	return c.JSON(http.StatusOK, h)
}

type preferencesResponse struct {
	Sources   []preference.Weight `json:"sources"`
	Tags      []preference.Weight `json:"tags"`
	LikedURLs []string            `json:"likedUrls"`
	Seen      int                 `json:"seen"`
	Applied   int                 `json:"appliedMessages"`
	UpdatedAt time.Time           `json:"updatedAt"`
}

func (s *Server) handlePreferences(c echo.Context) error {
	top := defaultTop
	if q := c.QueryParam("top"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid value for 'top'")
		}
		top = n
	}

	ctx := c.Request().Context()
	data, err := s.state.LoadLearning(ctx)
	if err != nil {
		return err
	}
	seen, err := s.state.LoadSeen(ctx)
	if err != nil {
		return err
	}

	liked := data.Preferences.LikedURLs
	if liked == nil {
		liked = []string{}
	}
	return c.JSON(http.StatusOK, preferencesResponse{
		Sources:   data.Preferences.TopSources(top),
		Tags:      data.Preferences.TopTags(top),
		LikedURLs: liked,
		Seen:      seen.Len(),
		Applied:   len(data.Applied),
		UpdatedAt: data.UpdatedAt,
	})
}

func (s *Server) handleTrigger(name string, run func(context.Context) error) echo.HandlerFunc {
	return func(c echo.Context) error {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := run(s.base); err != nil {
				s.logger.Error().Err(err).Str("cycle", name).Msg("triggered cycle failed")
			}
		}()
		return c.JSON(http.StatusAccepted, map[string]string{"status": "accepted", "cycle": name})
	}
}
