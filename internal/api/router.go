// Package api is the admin HTTP API and the websocket chat endpoint.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/wfunc/emojirades/internal/bot"
	"github.com/wfunc/emojirades/internal/command"
	apperrors "github.com/wfunc/emojirades/internal/errors"
	"github.com/wfunc/emojirades/internal/middleware"
	"github.com/wfunc/emojirades/internal/utils"
)

// HistoryStore pages a channel's score history out of durable storage,
// newest first, along with the channel's total entry count.
type HistoryStore interface {
	ChannelHistory(ctx context.Context, workspace, channel string, page, size int) ([]game.ScoreEvent, int64, error)
}

// Router API router
type Router struct {
	engine  *gin.Engine
	bot     *bot.Bot
	catalog *command.Catalog
	auth    *middleware.AuthMiddleware
	ws      *WebSocketHandler
	history HistoryStore
	log     *zap.Logger
}

// NewRouter creates the router. ws may be nil when no workspace uses the
// websocket transport.
func NewRouter(b *bot.Bot, catalog *command.Catalog, jwt *utils.JWTManager, ws *WebSocketHandler, log *zap.Logger) *Router {
	if log == nil {
		log = zap.NewNop()
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestLogger(log))

	r := &Router{
		engine:  engine,
		bot:     b,
		catalog: catalog,
		auth:    middleware.NewAuthMiddleware(jwt),
		ws:      ws,
		log:     log,
	}
	r.setupRoutes()
	return r
}

// UseHistoryStore serves channel history from h instead of the in-memory
// ledger. Call before serving.
func (r *Router) UseHistoryStore(h HistoryStore) {
	r.history = h
}

func (r *Router) setupRoutes() {
	r.engine.GET("/health", r.healthCheck)

	v1 := r.engine.Group("/api/v1")
	v1.Use(r.auth.RequireAuth(), r.auth.RequireRole(utils.RoleAdmin))
	{
		v1.GET("/commands", r.listCommands)
		v1.GET("/workspaces", r.listWorkspaces)

		channel := v1.Group("/workspaces/:workspace/channels/:channel")
		{
			channel.GET("/status", r.channelStatus)
			channel.GET("/leaderboard", r.leaderboard)
			channel.GET("/history", r.history)
		}
	}

	if r.ws != nil {
		r.engine.GET(r.ws.Path()+"/:workspace", r.ws.Connect)
	}

	r.engine.NoRoute(func(c *gin.Context) {
		middleware.Abort(c, apperrors.New(apperrors.ErrNotFound, c.Request.URL.Path))
	})
}

func (r *Router) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "healthy",
		"workspaces": len(r.bot.Workspaces()),
	})
}

// Handler the HTTP handler
func (r *Router) Handler() http.Handler {
	return r.engine
}

// Engine returns the gin engine (for tests)
func (r *Router) Engine() *gin.Engine {
	return r.engine
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.ClientIP()))
	}
}
