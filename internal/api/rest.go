package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/kkbullenn/trivia-app/internal/dispatch"
	"github.com/kkbullenn/trivia-app/internal/domain"
	"github.com/kkbullenn/trivia-app/internal/errors"
)

// Request/response surface for clients that poll instead of holding a
// websocket. Same atomic store operations underneath, different transport.

func (a *API) listSessions(c *gin.Context) {
	sessions, err := a.store.ListActiveSessions(c.Request.Context())
	if err != nil {
		renderError(c, err)
		return
	}

	type summary struct {
		SessionID    int64  `json:"sessionId"`
		Name         string `json:"name"`
		HostID       int64  `json:"hostId"`
		Participants int    `json:"participants"`
	}

	out := make([]summary, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, summary{
			SessionID:    s.SessionID,
			Name:         s.Name,
			HostID:       s.HostID,
			Participants: s.Participants,
		})
	}

	c.JSON(http.StatusOK, gin.H{"sessions": out})
}

func (a *API) currentIndex(c *gin.Context) {
	sessionID, err := sessionParam(c)
	if err != nil {
		renderError(c, err)
		return
	}

	idx, err := a.store.CurrentIndex(c.Request.Context(), sessionID)
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"currentIndex": idx})
}

func (a *API) control(c *gin.Context) {
	sessionID, err := sessionParam(c)
	if err != nil {
		renderError(c, err)
		return
	}

	userID, err := strconv.ParseInt(c.Query("userId"), 10, 64)
	if err != nil {
		renderError(c, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("missing or invalid userId")))
		return
	}

	ctx := c.Request.Context()
	if err := a.authorizeHost(ctx, sessionID, userID); err != nil {
		renderError(c, err)
		return
	}

	action := c.Query("action")
	switch action {
	case "next", "prev":
	default:
		renderError(c, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("invalid action: %q", action)))
		return
	}

	var (
		index int
		moved bool
	)
	if action == "next" {
		r, err := a.nav.Advance(ctx, sessionID)
		if err != nil {
			renderError(c, err)
			return
		}
		index, moved = r.Index, r.Moved
	} else {
		r, err := a.nav.Retreat(ctx, sessionID)
		if err != nil {
			renderError(c, err)
			return
		}
		index, moved = r.Index, r.Moved
	}

	c.JSON(http.StatusOK, gin.H{"currentIndex": index, "moved": moved})
}

func (a *API) getLeaderboard(c *gin.Context) {
	sessionID, err := sessionParam(c)
	if err != nil {
		renderError(c, err)
		return
	}

	l, err := a.lb.GetLeaderboard(c.Request.Context(), sessionID)
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, dispatch.Leaderboard{
		Type:      dispatch.TypeLeaderboard,
		SessionID: l.SessionID,
		Entries:   dispatch.ToEntries(l.Entries),
	})
}

func (a *API) getCachedScores(c *gin.Context) {
	sessionID, err := sessionParam(c)
	if err != nil {
		renderError(c, err)
		return
	}

	totals, err := a.lb.CachedTotals(c.Request.Context(), sessionID)
	if err != nil {
		renderError(c, err)
		return
	}

	type total struct {
		ParticipantID int64 `json:"participantId"`
		TotalScore    int   `json:"totalScore"`
	}

	out := make([]total, 0, len(totals))
	for _, t := range totals {
		out = append(out, total{ParticipantID: t.UserID, TotalScore: t.TotalScore})
	}

	c.JSON(http.StatusOK, gin.H{"sessionId": sessionID, "scores": out})
}

func (a *API) endSession(c *gin.Context) {
	sessionID, err := sessionParam(c)
	if err != nil {
		renderError(c, err)
		return
	}

	userID, err := strconv.ParseInt(c.Query("userId"), 10, 64)
	if err != nil {
		renderError(c, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("missing or invalid userId")))
		return
	}

	ctx := c.Request.Context()
	if err := a.authorizeHost(ctx, sessionID, userID); err != nil {
		renderError(c, err)
		return
	}

	ended, err := a.store.EndSession(ctx, sessionID)
	if err != nil {
		renderError(c, err)
		return
	}

	if ended {
		a.eb.Publish(ctx, domain.EventSessionEnded{SessionID: sessionID})
	}

	c.JSON(http.StatusOK, gin.H{"sessionId": sessionID, "ended": ended})
}

func sessionParam(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return 0, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("invalid session id: %q", c.Param("id")))
	}
	return id, nil
}
