package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/riptide/riptide/internal/auth"
	"github.com/riptide/riptide/internal/metadata"
	"github.com/riptide/riptide/internal/plex"
	"github.com/riptide/riptide/internal/provider"
	"github.com/riptide/riptide/internal/search"
)

const (
	writeWait      = 10 * time.Second
	requestWait    = 30 * time.Second
	maxMessageSize = 4096
)

// State is the lifecycle phase of a session.
type State int32

const (
	StateConnecting State = iota
	StateAuthenticating
	StateAwaitingRequest
	StateStreaming
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateAwaitingRequest:
		return "awaiting_request"
	case StateStreaming:
		return "streaming"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// TokenValidator authenticates bearer tokens for the stream scope.
type TokenValidator interface {
	ValidateToken(tokenString, requiredScope string) (*auth.User, error)
}

// IdentityResolver cross-references canonical ids against external ids.
type IdentityResolver interface {
	ResolveMovie(ctx context.Context, tmdbID int) (*metadata.MovieIdentity, error)
	ResolveSeries(ctx context.Context, tmdbID int) (*metadata.SeriesIdentity, error)
}

// Searcher fans a request out to providers and merges their results.
type Searcher interface {
	Stream(ctx context.Context, req search.Request) <-chan provider.SearchResult
}

// PlexFinder looks an item up in the user's Plex library.
type PlexFinder interface {
	Find(ctx context.Context, tmdbID int, mediaType string) (*plex.Item, error)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler upgrades websocket connections and runs one session per
// connection.
type Handler struct {
	validator TokenValidator
	resolver  IdentityResolver
	searcher  Searcher
	plex      PlexFinder
	logger    zerolog.Logger
}

// NewHandler creates a stream handler.
func NewHandler(validator TokenValidator, resolver IdentityResolver, searcher Searcher, plexFinder PlexFinder, logger zerolog.Logger) *Handler {
	return &Handler{
		validator: validator,
		resolver:  resolver,
		searcher:  searcher,
		plex:      plexFinder,
		logger:    logger.With().Str("component", "stream").Logger(),
	}
}

// HandleWS upgrades the connection and runs the session to completion.
func (h *Handler) HandleWS(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	session := newSession(conn, h)
	session.run(c.Request().Context())
	return nil
}

// session serves exactly one request over one connection. No pipelining: the
// first well-formed frame decides the whole session, which always terminates
// with a close frame carrying a reason.
type session struct {
	conn    *websocket.Conn
	handler *Handler
	logger  zerolog.Logger
	state   atomic.Int32
}

func newSession(conn *websocket.Conn, h *Handler) *session {
	return &session{
		conn:    conn,
		handler: h,
		logger:  h.logger,
	}
}

func (s *session) setState(st State) { s.state.Store(int32(st)) }

func (s *session) run(ctx context.Context) {
	defer s.conn.Close()
	defer s.setState(StateClosed)

	s.setState(StateConnecting)
	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(requestWait))

	req, err := s.readRequest()
	if err != nil {
		s.fail(0, CodeInvalidRequest, err.Error(), nil)
		return
	}

	s.setState(StateAuthenticating)
	user, err := s.handler.validator.ValidateToken(req.Authorization, auth.ScopeStream)
	if err != nil {
		s.logger.Warn().Err(err).Msg("authentication failed")
		s.fail(req.ID, CodeAuthFailure, err.Error(), nil)
		return
	}
	s.logger = s.logger.With().Int64("userId", user.ID).Logger()

	s.setState(StateAwaitingRequest)
	s.conn.SetReadDeadline(time.Time{})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// The client sends nothing further; the next read only ever reports
	// disconnect, which must cancel outstanding provider tasks.
	go func() {
		for {
			if _, _, err := s.conn.NextReader(); err != nil {
				cancel()
				return
			}
		}
	}()

	switch req.Method {
	case MethodPing:
		s.close(ReasonPong)
	case MethodStream:
		s.handleStream(ctx, req)
	case MethodPlex:
		s.handlePlex(ctx, req)
	default:
		s.fail(req.ID, CodeMethodNotFound, fmt.Sprintf("unknown method %q", req.Method), nil)
	}
}

func (s *session) readRequest() (*Request, error) {
	_, data, err := s.conn.ReadMessage()
	if err != nil {
		return nil, errors.New("failed to read request frame")
	}

	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, errors.New("malformed request frame")
	}
	return &req, nil
}

func (s *session) handleStream(ctx context.Context, req *Request) {
	var params StreamParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		s.fail(req.ID, CodeInvalidParams, "malformed stream params", nil)
		return
	}

	searchReq, fieldErrors := s.buildSearchRequest(ctx, params)
	if len(fieldErrors) > 0 {
		s.fail(req.ID, CodeInvalidParams, "invalid stream params", fieldErrors)
		return
	}
	if searchReq == nil {
		s.fail(req.ID, CodeUpstreamError, "failed to resolve media identity", nil)
		return
	}

	s.setState(StateStreaming)
	s.logger.Info().
		Str("type", string(searchReq.Type)).
		Int("tmdbId", searchReq.TmdbID).
		Msg("streaming search results")

	count := 0
	for result := range s.handler.searcher.Stream(ctx, *searchReq) {
		if err := s.writeJSON(result); err != nil {
			// Client gone; the cancelled context drains remaining tasks.
			s.logger.Debug().Err(err).Msg("client disconnected mid-stream")
			return
		}
		count++
	}

	if ctx.Err() != nil {
		return
	}
	s.logger.Info().Int("results", count).Msg("stream finished")
	s.close(ReasonFinished)
}

// buildSearchRequest validates params and resolves the external identity of
// the requested media. A non-empty field-error list means validation failed;
// a nil request with no field errors means identity resolution failed.
func (s *session) buildSearchRequest(ctx context.Context, params StreamParams) (*search.Request, []string) {
	var fieldErrors []string
	if params.TmdbID <= 0 {
		fieldErrors = append(fieldErrors, "tmdb_id: must be a positive integer")
	}

	switch params.Type {
	case "movie":
		if len(fieldErrors) > 0 {
			return nil, fieldErrors
		}
		identity, err := s.handler.resolver.ResolveMovie(ctx, params.TmdbID)
		if err != nil {
			s.logger.Error().Err(err).Int("tmdbId", params.TmdbID).Msg("movie identity resolution failed")
			return nil, nil
		}
		return &search.Request{
			Type:   search.MediaTypeMovie,
			TmdbID: identity.TmdbID,
			ImdbID: identity.ImdbID,
			Title:  identity.Title,
			Year:   identity.Year,
		}, nil

	case "series":
		if params.Season == nil {
			fieldErrors = append(fieldErrors, "season: required for series")
		}
		if len(fieldErrors) > 0 {
			return nil, fieldErrors
		}
		identity, err := s.handler.resolver.ResolveSeries(ctx, params.TmdbID)
		if err != nil {
			s.logger.Error().Err(err).Int("tmdbId", params.TmdbID).Msg("series identity resolution failed")
			return nil, nil
		}
		return &search.Request{
			Type:    search.MediaTypeSeries,
			TmdbID:  identity.TmdbID,
			ImdbID:  identity.ImdbID,
			Title:   identity.Title,
			Season:  *params.Season,
			Episode: params.Episode,
		}, nil

	default:
		fieldErrors = append(fieldErrors, `type: must be "movie" or "series"`)
		return nil, fieldErrors
	}
}

func (s *session) handlePlex(ctx context.Context, req *Request) {
	var params PlexParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		s.fail(req.ID, CodeInvalidParams, "malformed plex params", nil)
		return
	}

	var fieldErrors []string
	if params.TmdbID <= 0 {
		fieldErrors = append(fieldErrors, "tmdb_id: must be a positive integer")
	}
	if params.MediaType != "movie" && params.MediaType != "tv" {
		fieldErrors = append(fieldErrors, `media_type: must be "movie" or "tv"`)
	}
	if len(fieldErrors) > 0 {
		s.fail(req.ID, CodeInvalidParams, "invalid plex params", fieldErrors)
		return
	}

	s.setState(StateStreaming)
	item, err := s.handler.plex.Find(ctx, params.TmdbID, params.MediaType)
	if err != nil {
		s.fail(req.ID, CodeUpstreamError, err.Error(), nil)
		return
	}

	if err := s.writeJSON(item); err != nil {
		return
	}
	s.close(ReasonFinished)
}

// fail emits a terminal error frame and closes the connection with the error
// message as reason.
func (s *session) fail(id, code int, message string, data any) {
	frame := NewErrorFrame(id, code, message, data)
	if err := s.writeJSON(frame); err == nil {
		s.close(message)
	}
}

func (s *session) writeJSON(v any) error {
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(v)
}

func (s *session) close(reason string) {
	// Close reasons are capped at 123 bytes by the websocket protocol.
	if len(reason) > 123 {
		reason = reason[:120] + "..."
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	s.conn.WriteMessage(websocket.CloseMessage, msg)
}
