package api

import (
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/wfunc/emojirades/internal/config"
	apperrors "github.com/wfunc/emojirades/internal/errors"
	"github.com/wfunc/emojirades/internal/middleware"
	wstransport "github.com/wfunc/emojirades/internal/transport/websocket"
)

const defaultWebSocketPath = "/ws"

// WebSocketHandler upgrades chat connections onto workspace transports.
type WebSocketHandler struct {
	path       string
	upgrader   websocket.Upgrader
	mu         sync.RWMutex
	transports map[string]*wstransport.Transport
	logger     *zap.Logger
}

// NewWebSocketHandler creates the handler.
func NewWebSocketHandler(cfg config.WebSocketConfig, logger *zap.Logger) *WebSocketHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	path := strings.TrimSuffix(cfg.Path, "/")
	if path == "" {
		path = defaultWebSocketPath
	}
	return &WebSocketHandler{
		path: path,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		transports: make(map[string]*wstransport.Transport),
		logger:     logger,
	}
}

// Add serves workspace over t.
func (h *WebSocketHandler) Add(workspace string, t *wstransport.Transport) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.transports[workspace] = t
}

// Path route prefix
func (h *WebSocketHandler) Path() string { return h.path }

// Connect handles GET <path>/:workspace?user=<id>&name=<display>.
func (h *WebSocketHandler) Connect(c *gin.Context) {
	workspace := c.Param("workspace")
	h.mu.RLock()
	t, ok := h.transports[workspace]
	h.mu.RUnlock()
	if !ok {
		middleware.Abort(c, apperrors.Newf(apperrors.ErrNotFound, "workspace %s", workspace))
		return
	}

	user := strings.TrimSpace(c.Query("user"))
	if user == "" {
		middleware.Abort(c, apperrors.New(apperrors.ErrMissingArg, "user"))
		return
	}
	if user == t.BotID() {
		middleware.Abort(c, apperrors.New(apperrors.ErrNotPermitted, "cannot connect as the bot"))
		return
	}
	name := strings.TrimSpace(c.Query("name"))

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed",
			zap.String("workspace", workspace),
			zap.String("user_id", user),
			zap.Error(err))
		return
	}

	client := t.Serve(conn, user, name)
	h.logger.Info("websocket connected",
		zap.String("workspace", workspace),
		zap.String("client_id", client.ID),
		zap.String("user_id", user))
}
