package api

import (
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/riptide/riptide/internal/auth"
	"github.com/riptide/riptide/internal/history"
	applog "github.com/riptide/riptide/internal/logger"
)

const userContextKey = "user"

func (s *Server) setupRoutes() {
	s.echo.GET("/ws", s.streamHandler.HandleWS)

	api := s.echo.Group("/api")
	api.GET("/health", s.handleHealth)
	api.POST("/auth/token", s.handleMintToken, s.loopbackOnly, s.tokenLimiter.Middleware())

	protected := api.Group("", s.requireAuth)
	protected.GET("/history", s.handleListHistory)
	protected.GET("/history/series/:tmdbID/season/:season", s.handleSeasonHistory)
	protected.POST("/downloads", s.handleRecordDownload)
	protected.GET("/tasks", s.handleListTasks)
	protected.GET("/logs", s.handleRecentLogs)
}

// requireAuth validates the bearer token and stores the user on the context.
func (s *Server) requireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		header := c.Request().Header.Get(echo.HeaderAuthorization)
		token := strings.TrimPrefix(header, "Bearer ")
		if token == header {
			token = ""
		}

		user, err := s.authService.ValidateToken(token, auth.ScopeStream)
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
		}

		c.Set(userContextKey, user)
		return next(c)
	}
}

// loopbackOnly restricts an endpoint to requests from the local machine.
func (s *Server) loopbackOnly(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		ip := net.ParseIP(c.RealIP())
		if ip == nil || !ip.IsLoopback() {
			return echo.NewHTTPError(http.StatusForbidden, "token minting is restricted to the local machine")
		}
		return next(c)
	}
}

func currentUser(c echo.Context) *auth.User {
	user, _ := c.Get(userContextKey).(*auth.User)
	return user
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"version": s.version,
	})
}

type mintTokenRequest struct {
	Username string `json:"username"`
}

func (s *Server) handleMintToken(c echo.Context) error {
	var req mintTokenRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Username) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "username is required")
	}

	token, err := s.authService.GenerateToken(1, req.Username, []string{auth.ScopeStream})
	if err != nil {
		s.logger.Error().Err(err).Msg("token generation failed")
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to generate token")
	}

	return c.JSON(http.StatusOK, map[string]string{"token": token})
}

func (s *Server) handleListHistory(c echo.Context) error {
	user := currentUser(c)

	page, _ := strconv.Atoi(c.QueryParam("page"))
	pageSize, _ := strconv.Atoi(c.QueryParam("page_size"))
	mediaType := c.QueryParam("type")
	if mediaType != "" && mediaType != string(history.MediaTypeMovie) && mediaType != string(history.MediaTypeEpisode) {
		return echo.NewHTTPError(http.StatusBadRequest, `type must be "movie" or "episode"`)
	}

	resp, err := s.historyService.List(c.Request().Context(), history.ListOptions{
		UserID:    user.ID,
		MediaType: mediaType,
		Page:      page,
		PageSize:  pageSize,
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("history listing failed")
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list history")
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleSeasonHistory(c echo.Context) error {
	user := currentUser(c)

	tmdbID, err := strconv.Atoi(c.Param("tmdbID"))
	if err != nil || tmdbID <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "tmdbID must be a positive integer")
	}
	season, err := strconv.Atoi(c.Param("season"))
	if err != nil || season < 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "season must be a non-negative integer")
	}

	entries, err := s.historyService.ListSeason(c.Request().Context(), user.ID, tmdbID, season)
	if err != nil {
		s.logger.Error().Err(err).Msg("season listing failed")
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list season history")
	}

	resolved, err := s.resolver.Resolve(c.Request().Context(), entries)
	if err != nil {
		s.logger.Error().Err(err).Msg("season pack resolution failed")
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to resolve season pack")
	}
	if resolved == nil {
		resolved = []history.EpisodeDetails{}
	}

	return c.JSON(http.StatusOK, map[string]any{"items": resolved})
}

type recordDownloadRequest struct {
	MediaType string `json:"media_type"`
	TmdbID    int    `json:"tmdb_id"`
	ImdbID    string `json:"imdb_id"`
	ShowTitle string `json:"show_title"`
	Title     string `json:"title"`
	Source    string `json:"source"`
	Category  string `json:"category"`
	Download  string `json:"download"`
	Season    *int   `json:"season"`
	Episode   *int   `json:"episode"`
}

func (r *recordDownloadRequest) validate() []string {
	var errs []string
	if r.MediaType != string(history.MediaTypeMovie) && r.MediaType != string(history.MediaTypeEpisode) {
		errs = append(errs, `media_type: must be "movie" or "episode"`)
	}
	if r.TmdbID <= 0 {
		errs = append(errs, "tmdb_id: must be a positive integer")
	}
	if strings.TrimSpace(r.Title) == "" {
		errs = append(errs, "title: required")
	}
	if strings.TrimSpace(r.Source) == "" {
		errs = append(errs, "source: required")
	}
	if strings.TrimSpace(r.Download) == "" {
		errs = append(errs, "download: required")
	}
	if r.MediaType == string(history.MediaTypeEpisode) && r.Season == nil {
		errs = append(errs, "season: required for episode downloads")
	}
	if r.Episode != nil && r.Season == nil {
		errs = append(errs, "season: required when episode is set")
	}
	return errs
}

func (s *Server) handleRecordDownload(c echo.Context) error {
	user := currentUser(c)

	var req recordDownloadRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if errs := req.validate(); len(errs) > 0 {
		return c.JSON(http.StatusBadRequest, map[string]any{
			"message": "validation failed",
			"errors":  errs,
		})
	}

	download, err := s.historyService.Record(c.Request().Context(), history.CreateInput{
		UserID:    user.ID,
		MediaType: history.MediaType(req.MediaType),
		TmdbID:    req.TmdbID,
		ImdbID:    req.ImdbID,
		ShowTitle: req.ShowTitle,
		Title:     req.Title,
		Source:    req.Source,
		Category:  req.Category,
		Download:  req.Download,
		Season:    req.Season,
		Episode:   req.Episode,
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("download recording failed")
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to record download")
	}

	return c.JSON(http.StatusCreated, download)
}

func (s *Server) handleListTasks(c echo.Context) error {
	return c.JSON(http.StatusOK, s.sched.ListTasks())
}

func (s *Server) handleRecentLogs(c echo.Context) error {
	entries := []applog.Entry{}
	if s.logCapture != nil {
		entries = s.logCapture.Recent()
	}
	return c.JSON(http.StatusOK, map[string]any{"items": entries})
}
