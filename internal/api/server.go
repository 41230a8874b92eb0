// Package api hosts the HTTP surface: the /ws stream endpoint and the REST
// plumbing around download history.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	apimw "github.com/riptide/riptide/internal/api/middleware"
	"github.com/riptide/riptide/internal/api/ratelimit"
	"github.com/riptide/riptide/internal/auth"
	"github.com/riptide/riptide/internal/config"
	"github.com/riptide/riptide/internal/history"
	applog "github.com/riptide/riptide/internal/logger"
	"github.com/riptide/riptide/internal/scheduler"
	"github.com/riptide/riptide/internal/stream"
)

// Server handles HTTP requests for the Riptide API.
type Server struct {
	echo    *echo.Echo
	cfg     *config.Config
	logger  zerolog.Logger
	version string

	authService    *auth.Service
	historyService *history.Service
	resolver       *history.Resolver
	streamHandler  *stream.Handler
	sched          *scheduler.Scheduler
	tokenLimiter   *ratelimit.Limiter
	logCapture     *applog.Capture
}

// NewServer creates a new API server instance.
func NewServer(
	cfg *config.Config,
	authService *auth.Service,
	historyService *history.Service,
	resolver *history.Resolver,
	streamHandler *stream.Handler,
	sched *scheduler.Scheduler,
	logCapture *applog.Capture,
	version string,
	logger zerolog.Logger,
) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:           e,
		cfg:            cfg,
		logger:         logger.With().Str("component", "api").Logger(),
		version:        version,
		authService:    authService,
		historyService: historyService,
		resolver:       resolver,
		streamHandler:  streamHandler,
		sched:          sched,
		tokenLimiter:   ratelimit.NewLimiter(),
		logCapture:     logCapture,
	}

	s.setupMiddleware()
	s.setupRoutes()
	s.tokenLimiter.StartCleanup(5 * time.Minute)

	return s
}

func (s *Server) setupMiddleware() {
	s.echo.Use(echomw.Recover())
	s.echo.Use(echomw.RequestID())
	s.echo.Use(echomw.BodyLimit("1M"))
	s.echo.Use(apimw.SecurityHeaders())

	s.echo.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	s.echo.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogMethod:   true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			if v.Error != nil {
				s.logger.Error().
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Err(v.Error).
					Msg("request error")
			} else {
				s.logger.Info().
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Msg("request")
			}
			return nil
		},
	}))

	s.echo.Use(echomw.GzipWithConfig(echomw.GzipConfig{
		Level: 5,
		Skipper: func(c echo.Context) bool {
			return c.Request().Header.Get("Upgrade") == "websocket"
		},
	}))
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	addr := s.cfg.Server.Address()
	s.logger.Info().Str("addr", addr).Msg("starting HTTP server")
	return s.echo.Start(addr)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Echo exposes the underlying router for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}
