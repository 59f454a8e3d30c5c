package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/wfunc/emojirades/internal/bot"
	apperrors "github.com/wfunc/emojirades/internal/errors"
	"github.com/wfunc/emojirades/internal/game"
	"github.com/wfunc/emojirades/internal/middleware"
)

const (
	defaultHistoryLimit = 10
	maxHistoryLimit     = 100
)

// WorkspaceResponse one workspace in the listing
type WorkspaceResponse struct {
	ID       string   `json:"id"`
	BotID    string   `json:"bot_id"`
	Channels []string `json:"channels"`
}

// StatusResponse game state of a channel. The emojirade itself is never
// exposed.
type StatusResponse struct {
	Workspace    string `json:"workspace"`
	Channel      string `json:"channel"`
	Step         string `json:"step"`
	Winner       string `json:"winner,omitempty"`
	OldWinner    string `json:"old_winner,omitempty"`
	HasEmojirade bool   `json:"has_emojirade"`
}

// StandingResponse leaderboard row
type StandingResponse struct {
	Rank        int    `json:"rank"`
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Score       int    `json:"score"`
}

// HistoryResponse ledger entry
type HistoryResponse struct {
	UserID    string `json:"user_id"`
	Operation string `json:"operation"`
	Timestamp int64  `json:"timestamp"`
}

func (r *Router) listCommands(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"commands": r.catalog.Describe()})
}

func (r *Router) listWorkspaces(c *gin.Context) {
	workspaces := r.bot.Workspaces()
	out := make([]WorkspaceResponse, 0, len(workspaces))
	for _, w := range workspaces {
		out = append(out, WorkspaceResponse{
			ID:       w.ID,
			BotID:    w.Transport().BotID(),
			Channels: w.Store().Channels(),
		})
	}
	c.JSON(http.StatusOK, gin.H{"workspaces": out})
}

// workspace resolves :workspace or aborts with 404.
func (r *Router) workspace(c *gin.Context) (*bot.Workspace, bool) {
	id := c.Param("workspace")
	w, ok := r.bot.Workspace(id)
	if !ok {
		middleware.Abort(c, apperrors.Newf(apperrors.ErrNotFound, "workspace %s", id))
	}
	return w, ok
}

func (r *Router) channelStatus(c *gin.Context) {
	w, ok := r.workspace(c)
	if !ok {
		return
	}
	channel := c.Param("channel")
	st, known := w.Store().Lookup(channel)
	if !known {
		st = game.NewChannelState()
	}
	c.JSON(http.StatusOK, StatusResponse{
		Workspace:    w.ID,
		Channel:      channel,
		Step:         string(st.Step),
		Winner:       st.Winner,
		OldWinner:    st.OldWinner,
		HasEmojirade: len(st.Emojirade) > 0,
	})
}

func (r *Router) leaderboard(c *gin.Context) {
	w, ok := r.workspace(c)
	if !ok {
		return
	}
	channel := c.Param("channel")
	standings := w.Ledger().Leaderboard(channel)
	out := make([]StandingResponse, 0, len(standings))
	for i, s := range standings {
		out = append(out, StandingResponse{
			Rank:        i + 1,
			UserID:      s.User,
			DisplayName: w.Transport().DisplayName(c.Request.Context(), s.User),
			Score:       s.Score,
		})
	}
	c.JSON(http.StatusOK, gin.H{"channel": channel, "leaderboard": out})
}

func (r *Router) history(c *gin.Context) {
	w, ok := r.workspace(c)
	if !ok {
		return
	}

	limit, ok := queryInt(c, "limit", defaultHistoryLimit, maxHistoryLimit)
	if !ok {
		return
	}
	page, ok := queryInt(c, "page", 1, 0)
	if !ok {
		return
	}

	channel := c.Param("channel")
	var (
		events []game.ScoreEvent
		total  int64
	)
	if r.history != nil {
		var err error
		events, total, err = r.history.ChannelHistory(c.Request.Context(), w.ID, channel, page, limit)
		if err != nil {
			middleware.Abort(c, apperrors.Wrap(err, apperrors.ErrPersistenceRead, "channel history"))
			return
		}
	} else {
		all := w.Ledger().History(channel, 0)
		total = int64(len(all))
		start := len(all)
		if page-1 <= len(all)/limit {
			start = min((page-1)*limit, len(all))
		}
		events = all[start:min(start+limit, len(all))]
	}

	out := make([]HistoryResponse, 0, len(events))
	for _, e := range events {
		out = append(out, HistoryResponse{
			UserID:    e.User,
			Operation: string(e.Operation),
			Timestamp: e.Timestamp.Unix(),
		})
	}
	c.JSON(http.StatusOK, gin.H{"channel": channel, "page": page, "total": total, "history": out})
}

// queryInt reads a positive integer query parameter, bounded by maxValue
// when it is positive. It aborts the request on bad input.
func queryInt(c *gin.Context, name string, def, maxValue int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || (maxValue > 0 && n > maxValue) {
		if maxValue > 0 {
			middleware.Abort(c, apperrors.Newf(apperrors.ErrInvalidParam, "%s must be 1..%d", name, maxValue))
		} else {
			middleware.Abort(c, apperrors.Newf(apperrors.ErrInvalidParam, "%s must be a positive integer", name))
		}
		return 0, false
	}
	return n, true
}
