// Package api is the transport boundary: the persistent websocket surface for
// live play and a companion request/response surface for polling clients.
// Host-only authorization for navigation is enforced here, at the boundary.
package api

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/kkbullenn/trivia-app/internal/answer"
	"github.com/kkbullenn/trivia-app/internal/dispatch"
	"github.com/kkbullenn/trivia-app/internal/domain"
	"github.com/kkbullenn/trivia-app/internal/errors"
	"github.com/kkbullenn/trivia-app/internal/event"
	"github.com/kkbullenn/trivia-app/internal/leaderboard"
	"github.com/kkbullenn/trivia-app/internal/navigation"
	"github.com/kkbullenn/trivia-app/internal/registry"
)

// Store is the slice of the session store the boundary needs.
type Store interface {
	FindSession(ctx context.Context, sessionID int64) (*domain.Session, error)
	ListActiveSessions(ctx context.Context) ([]domain.SessionSummary, error)
	JoinSession(ctx context.Context, sessionID, userID int64) error
	LeaveSession(ctx context.Context, sessionID, userID int64) (bool, error)
	CurrentIndex(ctx context.Context, sessionID int64) (*int, error)
	EndSession(ctx context.Context, sessionID int64) (bool, error)
}

type Config struct {
	Engine      *gin.Engine
	EventBus    *event.Bus
	Registry    *registry.Registry
	Dispatcher  *dispatch.Dispatcher
	Store       Store
	Navigation  *navigation.Service
	Answer      *answer.Service
	Leaderboard *leaderboard.Service
}

type API struct {
	eb  *event.Bus
	reg *registry.Registry
	d   *dispatch.Dispatcher

	store Store
	nav   *navigation.Service
	ans   *answer.Service
	lb    *leaderboard.Service
}

func New(c Config) *API {
	a := &API{
		eb:    c.EventBus,
		reg:   c.Registry,
		d:     c.Dispatcher,
		store: c.Store,
		nav:   c.Navigation,
		ans:   c.Answer,
		lb:    c.Leaderboard,
	}

	e := c.Engine
	e.GET("/quiz/ws", a.handleWebSocket)

	e.GET("/api/sessions", a.listSessions)
	e.GET("/api/sessions/:id/current", a.currentIndex)
	e.GET("/api/sessions/:id/leaderboard", a.getLeaderboard)
	e.GET("/api/sessions/:id/scores", a.getCachedScores)
	e.POST("/api/sessions/:id/control", a.control)
	e.POST("/api/sessions/:id/end", a.endSession)

	return a
}

// authorizeHost checks that the acting user hosts the session.
func (a *API) authorizeHost(ctx context.Context, sessionID, userID int64) error {
	ss, err := a.store.FindSession(ctx, sessionID)
	if err != nil {
		return err
	}

	if ss.HostID != userID {
		return errors.New(errors.CodePermissionDenied,
			errors.WithMessagef("only the host may control the session: session=%d user=%d", sessionID, userID))
	}

	return nil
}

func renderError(c *gin.Context, err error) {
	e := errors.Convert(err)
	c.JSON(e.HTTPStatusCode(), gin.H{
		"code":    e.Code,
		"message": e.Message,
	})
}
