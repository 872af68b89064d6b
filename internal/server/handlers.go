package server

import (
	"errors"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lox/homepoker/internal/auth"
	"github.com/lox/homepoker/internal/handhistory"
	"github.com/lox/homepoker/internal/protocol"
	"github.com/lox/homepoker/internal/router"
	"github.com/lox/homepoker/internal/statistics"
	"github.com/lox/homepoker/internal/storage"
)

const (
	defaultPageSize  = 50
	maxPageSize      = 500
	defaultBoardSize = 10
)

// apiError is the body of every failed HTTP request.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func abort(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, apiError{Code: code, Message: message})
}

func (s *Server) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound), router.IsNotFound(err):
		abort(c, http.StatusNotFound, protocol.CodeNotFound, err.Error())
	case errors.Is(err, router.ErrClosed):
		abort(c, http.StatusServiceUnavailable, protocol.CodeInternal, err.Error())
	default:
		s.logger.Error().Err(err).Str("path", c.Request.URL.Path).Msg("Request failed")
		abort(c, http.StatusInternalServerError, protocol.CodeInternal, "internal error")
	}
}

func badRequest(c *gin.Context, err error) {
	abort(c, http.StatusBadRequest, protocol.CodeRejected, err.Error())
}

// viewer is the player whose hole cards may be shown in responses. With
// an authenticator only a valid token names one.
func (s *Server) viewer(c *gin.Context) string {
	if s.auth == nil {
		return c.GetHeader("X-Player-ID")
	}
	id, err := s.auth.Authenticate(c.Request.Context(), auth.TokenFromRequest(c.Request))
	if err != nil {
		return ""
	}
	return id.PlayerID
}

func (s *Server) listTables(c *gin.Context) {
	c.JSON(http.StatusOK, s.router.Tables())
}

func (s *Server) tableState(c *gin.Context) {
	playerID := s.viewer(c)
	if s.auth == nil && c.Query("player_id") != "" {
		playerID = c.Query("player_id")
	}
	snap, err := s.router.GameState(c.Request.Context(), c.Param("id"), playerID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) tableChat(c *gin.Context) {
	lines, err := s.router.ChatHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, lines)
}

func (s *Server) playerHands(c *gin.Context) {
	limit, offset, err := page(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	hands, err := s.repo.GetHandsForPlayer(c.Request.Context(), c.Param("id"), limit, offset)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, redact(hands, s.viewer(c)))
}

func (s *Server) playerStats(c *gin.Context) {
	filters, err := parseFilters(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	playerID := c.Param("id")
	hands, err := s.repo.GetHandsForPlayer(c.Request.Context(), playerID, 0, 0)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, statistics.CalculatePlayerStatistics(hands, playerID, filters))
}

func (s *Server) hand(c *gin.Context) {
	e, err := s.repo.GetHand(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, e.Redacted(s.viewer(c)))
}

func (s *Server) sessionHands(c *gin.Context) {
	hands, err := s.repo.GetHandsForSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, redact(hands, s.viewer(c)))
}

func (s *Server) sessionStats(c *gin.Context) {
	sessionID := c.Param("id")
	hands, err := s.repo.GetHandsForSession(c.Request.Context(), sessionID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, statistics.CalculateSessionStatistics(hands, sessionID))
}

func (s *Server) sessionLeaderboard(c *gin.Context) {
	metric := statistics.MetricNetChips
	if m := c.Query("metric"); m != "" {
		var err error
		if metric, err = statistics.ParseMetric(m); err != nil {
			badRequest(c, err)
			return
		}
	}
	limit, err := intQuery(c, "limit", defaultBoardSize)
	if err != nil {
		badRequest(c, err)
		return
	}
	hands, err := s.repo.GetHandsForSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, statistics.GenerateLeaderboard(hands, metric, statistics.Filters{}, limit))
}

// sessionPHH exports a session as a PHH file. Hole cards are masked
// unless they were shown down.
func (s *Server) sessionPHH(c *gin.Context) {
	sessionID := c.Param("id")
	hands, err := s.repo.GetHandsForSession(c.Request.Context(), sessionID)
	if err != nil {
		s.fail(c, err)
		return
	}
	data, err := handhistory.EncodeSession(hands, s.variant, false)
	if err != nil {
		s.fail(c, err)
		return
	}
	disposition := mime.FormatMediaType("attachment", map[string]string{"filename": sessionID + ".phhs"})
	if disposition == "" {
		disposition = "attachment"
	}
	c.Header("Content-Disposition", disposition)
	c.Data(http.StatusOK, "application/toml", data)
}

func redact(hands []*handhistory.Entry, viewerID string) []*handhistory.Entry {
	out := make([]*handhistory.Entry, len(hands))
	for i, h := range hands {
		out[i] = h.Redacted(viewerID)
	}
	return out
}

func page(c *gin.Context) (limit, offset int, err error) {
	if limit, err = intQuery(c, "limit", defaultPageSize); err != nil {
		return 0, 0, err
	}
	if offset, err = intQuery(c, "offset", 0); err != nil {
		return 0, 0, err
	}
	return min(limit, maxPageSize), offset, nil
}

func intQuery(c *gin.Context, name string, def int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.New(name + " must be a non-negative integer")
	}
	return n, nil
}

// parseFilters reads session, position, hand_type, from and to (RFC 3339).
func parseFilters(c *gin.Context) (statistics.Filters, error) {
	f := statistics.Filters{
		SessionID: c.Query("session"),
		Position:  c.Query("position"),
	}
	for _, t := range c.QueryArray("hand_type") {
		f.HandTypes = append(f.HandTypes, handhistory.HandType(t))
	}
	var err error
	if f.From, err = timeQuery(c, "from"); err != nil {
		return f, err
	}
	if f.To, err = timeQuery(c, "to"); err != nil {
		return f, err
	}
	return f, nil
}

func timeQuery(c *gin.Context, name string) (time.Time, error) {
	raw := c.Query(name)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, errors.New(name + " must be an RFC 3339 timestamp")
	}
	return t, nil
}
