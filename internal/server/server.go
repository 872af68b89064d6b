// Package server exposes the router over WebSocket and a read-only HTTP
// API for hand history and statistics.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/lox/homepoker/internal/auth"
	"github.com/lox/homepoker/internal/protocol"
	"github.com/lox/homepoker/internal/router"
	"github.com/lox/homepoker/internal/storage"
)

const shutdownTimeout = 10 * time.Second

// Option configures a Server.
type Option func(*Server)

// WithGatherer serves metrics from g on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithAuthenticator makes clients prove who they are with a bearer token
// instead of naming themselves.
func WithAuthenticator(a auth.Authenticator) Option {
	return func(s *Server) { s.auth = a }
}

// WithVariant sets the PHH variant used by session exports.
func WithVariant(v string) Option {
	return func(s *Server) { s.variant = v }
}

// Server is the network boundary of the engine.
type Server struct {
	router   *router.Router
	repo     storage.HandRepository
	decoder  *protocol.Decoder
	gatherer prometheus.Gatherer
	auth     auth.Authenticator
	variant  string
	upgrader websocket.Upgrader
	engine   *gin.Engine
	logger   zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// New builds the HTTP handler tree.
func New(r *router.Router, repo storage.HandRepository, logger zerolog.Logger, opts ...Option) (*Server, error) {
	decoder, err := protocol.NewDecoder()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		router:   r,
		repo:     repo,
		decoder:  decoder,
		gatherer: prometheus.DefaultGatherer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Home games are played from whatever origin serves the client
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger.With().Str("component", "server").Logger(),
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.engine = s.routes()
	return s, nil
}

func (s *Server) routes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	e := gin.New()
	e.Use(gin.Recovery(), s.requestLogger())

	e.GET("/ws", s.handleWebSocket)
	e.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "OK") })
	e.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))

	e.GET("/tables", s.listTables)
	e.GET("/tables/:id/state", s.tableState)
	e.GET("/tables/:id/chat", s.tableChat)
	e.GET("/players/:id/hands", s.playerHands)
	e.GET("/players/:id/stats", s.playerStats)
	e.GET("/hands/:id", s.hand)
	e.GET("/sessions/:id/hands", s.sessionHands)
	e.GET("/sessions/:id/stats", s.sessionStats)
	e.GET("/sessions/:id/leaderboard", s.sessionLeaderboard)
	e.GET("/sessions/:id/phh", s.sessionPHH)
	return e
}

// Handler returns the HTTP handler, mostly for tests.
func (s *Server) Handler() http.Handler { return s.engine }

// ListenAndServe serves addr until ctx ends, then shuts down gracefully and
// closes open WebSocket connections.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info().Str("addr", addr).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		s.cancel()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.logger.Info().Msg("Shutting down server")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// handleWebSocket upgrades a client and runs its pumps until either side
// hangs up.
func (s *Server) handleWebSocket(c *gin.Context) {
	playerID, ok := s.identify(c)
	if !ok {
		return
	}

	ws, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}
	conn := newConnection(uuid.NewString(), playerID, ws, s.logger)
	if err := s.router.Connect(conn); err != nil {
		s.logger.Warn().Err(err).Msg("Rejecting connection")
		conn.Close()
		return
	}
	defer s.router.Disconnect(conn.ID())
	s.logger.Info().Str("conn_id", conn.ID()).Str("player_id", playerID).Msg("Client connected")

	g, ctx := errgroup.WithContext(s.ctx)
	g.Go(func() error { return conn.writePump(ctx) })
	g.Go(func() error { return conn.readPump(ctx, func(ctx context.Context, data []byte) { s.handleFrame(ctx, conn, data) }) })
	_ = g.Wait()
	s.logger.Info().Str("conn_id", conn.ID()).Str("player_id", playerID).Msg("Client disconnected")
}

// identify names the player behind a request. With an authenticator the
// bearer token decides; otherwise the player_id query parameter or the
// X-Player-ID header is trusted. It writes the error response itself.
func (s *Server) identify(c *gin.Context) (string, bool) {
	if s.auth == nil {
		playerID := c.Query("player_id")
		if playerID == "" {
			playerID = c.GetHeader("X-Player-ID")
		}
		if playerID == "" {
			abort(c, http.StatusBadRequest, protocol.CodeRejected, "player_id is required")
			return "", false
		}
		return playerID, true
	}

	id, err := s.auth.Authenticate(c.Request.Context(), auth.TokenFromRequest(c.Request))
	switch {
	case err == nil:
		return id.PlayerID, true
	case errors.Is(err, auth.ErrInvalidToken):
		abort(c, http.StatusUnauthorized, protocol.CodeRejected, "invalid token")
	default:
		s.logger.Warn().Err(err).Msg("Identity service unavailable")
		abort(c, http.StatusServiceUnavailable, protocol.CodeInternal, "identity service unavailable")
	}
	return "", false
}

// handleFrame decodes one inbound frame and submits it. Failures have
// already been reported to the client by the router.
func (s *Server) handleFrame(ctx context.Context, conn *Connection, data []byte) {
	msg, err := s.decoder.Decode(data)
	if err != nil {
		conn.logger.Debug().Err(err).Msg("Rejected frame")
		s.router.SendError(conn.ID(), err)
		return
	}
	if err := s.router.Submit(ctx, conn.ID(), msg); err != nil {
		conn.logger.Debug().Err(err).Str("type", string(msg.Type())).Msg("Message rejected")
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if c.FullPath() == "/ws" {
			return
		}
		s.logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	}
}
