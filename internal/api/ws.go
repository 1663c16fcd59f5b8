package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/kkbullenn/trivia-app/internal/answer"
	"github.com/kkbullenn/trivia-app/internal/dispatch"
	"github.com/kkbullenn/trivia-app/internal/domain"
	"github.com/kkbullenn/trivia-app/internal/errors"
	"github.com/kkbullenn/trivia-app/internal/registry"
	"github.com/kkbullenn/trivia-app/internal/telemetry"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func (a *API) handleWebSocket(c *gin.Context) {
	sock, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.WarnContext(c.Request.Context(), "ws: upgrade failed", "error", err)
		return
	}

	conn := newWSConn(sock)
	defer a.cleanup(conn)

	for {
		_, data, err := sock.ReadMessage()
		if err != nil {
			return
		}

		a.handleFrame(c.Request.Context(), conn, data)
	}
}

func (a *API) handleFrame(ctx context.Context, conn *wsConn, data []byte) {
	msg, err := DecodeMessage(data)
	if err != nil {
		// Protocol errors drop the frame, never the connection.
		slog.WarnContext(ctx, "ws: dropped frame", "conn", conn.ID(), "error", err)
		return
	}

	switch m := msg.(type) {
	case JoinMessage:
		err = a.handleJoin(ctx, conn, m)
	case NextMessage:
		err = a.handleNavigate(ctx, conn, true)
	case PrevMessage:
		err = a.handleNavigate(ctx, conn, false)
	case AnswerMessage:
		err = a.handleAnswer(ctx, conn, m)
	}

	if err != nil {
		slog.ErrorContext(ctx, "ws: handle message failed", "conn", conn.ID(), "error", err)
		a.sendErrorNotice(ctx, conn, err)
	}
}

func (a *API) handleJoin(ctx context.Context, conn *wsConn, m JoinMessage) error {
	if err := a.store.JoinSession(ctx, m.SessionID, m.UserID); err != nil {
		return err
	}

	if a.reg.Register(registry.Binding{
		SessionID: m.SessionID,
		UserID:    m.UserID,
		Username:  m.Username,
	}, conn) {
		telemetry.LiveConnections.Inc()
	}

	slog.InfoContext(ctx, "ws: participant joined",
		"session", m.SessionID,
		"user", m.UserID,
		"conn", conn.ID(),
	)

	a.eb.Publish(ctx, domain.EventRosterChanged{
		SessionID:   m.SessionID,
		PlayerCount: a.reg.Count(m.SessionID),
	})

	return nil
}

func (a *API) handleNavigate(ctx context.Context, conn *wsConn, forward bool) error {
	b, ok := a.reg.BindingFor(conn)
	if !ok {
		return errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("navigate before join"))
	}

	if err := a.authorizeHost(ctx, b.SessionID, b.UserID); err != nil {
		return err
	}

	if forward {
		_, err := a.nav.Advance(ctx, b.SessionID)
		return err
	}
	_, err := a.nav.Retreat(ctx, b.SessionID)
	return err
}

func (a *API) handleAnswer(ctx context.Context, conn *wsConn, m AnswerMessage) error {
	b, ok := a.reg.BindingFor(conn)
	if !ok {
		return errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("answer before join"))
	}

	resp, err := a.ans.Submit(ctx, answer.SubmitRequest{
		SessionID:   b.SessionID,
		UserID:      b.UserID,
		Username:    b.Username,
		SelectedKey: m.Answer,
	})
	if err != nil {
		return err
	}

	result := dispatch.AnswerResult{
		Type:            dispatch.TypeAnswerResult,
		QuestionID:      resp.QuestionID,
		QuestionIndex:   resp.QuestionIndex,
		SelectedAnswer:  resp.SelectedKey,
		CorrectAnswer:   resp.CorrectKey,
		IsCorrect:       resp.IsCorrect,
		AlreadyAnswered: resp.AlreadyAnswered,
		ScoreAwarded:    resp.Score,
		AnsweredCount:   resp.AnsweredCount,
		TotalQuestions:  resp.TotalQuestions,
		Leaderboard:     dispatch.ToEntries(resp.Leaderboard),
	}
	if err := a.d.SendToParticipant(ctx, b.SessionID, b.UserID, result); err != nil {
		return err
	}

	if resp.Completion != nil {
		return a.d.SendToParticipant(ctx, b.SessionID, b.UserID, dispatch.QuizComplete{
			Type:           dispatch.TypeQuizComplete,
			SessionID:      b.SessionID,
			TotalQuestions: resp.TotalQuestions,
			AnsweredCount:  resp.AnsweredCount,
			TotalScore:     resp.Completion.TotalScore,
			TotalMaxScore:  resp.Completion.TotalMaxScore,
			Leaderboard:    dispatch.ToEntries(resp.Completion.Leaderboard),
			CategoryName:   resp.Completion.CategoryName,
		})
	}

	return nil
}

// cleanup runs when the read loop exits. The disconnect is a lifecycle event,
// not an error: unregister, mark the participant as left, tell the room.
func (a *API) cleanup(conn *wsConn) {
	// The request context is gone by now; cleanup gets its own.
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	b, ok := a.reg.Unregister(conn)
	if !ok {
		_ = conn.Close()
		return
	}
	telemetry.LiveConnections.Dec()

	if _, err := a.store.LeaveSession(ctx, b.SessionID, b.UserID); err != nil {
		slog.ErrorContext(ctx, "ws: mark participant left failed",
			"session", b.SessionID,
			"user", b.UserID,
			"error", err,
		)
	}

	slog.InfoContext(ctx, "ws: participant disconnected",
		"session", b.SessionID,
		"user", b.UserID,
		"conn", conn.ID(),
	)

	a.eb.Publish(ctx, domain.EventRosterChanged{
		SessionID:   b.SessionID,
		PlayerCount: a.reg.Count(b.SessionID),
	})

	_ = conn.Close()
}

func (a *API) sendErrorNotice(ctx context.Context, conn *wsConn, cause error) {
	e := errors.Convert(cause)
	b, err := json.Marshal(dispatch.ErrorNotice{
		Type:    dispatch.TypeError,
		Code:    int(e.Code),
		Message: e.Message,
	})
	if err != nil {
		return
	}

	if err := conn.Send(ctx, b); err != nil {
		slog.WarnContext(ctx, "ws: send error notice failed", "conn", conn.ID(), "error", err)
	}
}
