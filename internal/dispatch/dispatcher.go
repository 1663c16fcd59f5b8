// Package dispatch fans structured state out to every live connection in a
// session. It serializes a payload once, pushes it to the registry's snapshot,
// and treats per-connection send failures as implicit disconnects.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/kkbullenn/trivia-app/internal/domain"
	"github.com/kkbullenn/trivia-app/internal/event"
	"github.com/kkbullenn/trivia-app/internal/registry"
	"github.com/kkbullenn/trivia-app/internal/telemetry"
)

const maxConcurrentSends = 100

type Config struct {
	Registry *registry.Registry
	EventBus *event.Bus
}

type Dispatcher struct {
	reg *registry.Registry
}

func New(c Config) *Dispatcher {
	d := &Dispatcher{reg: c.Registry}

	c.EventBus.Subscribe(domain.EventNameQuestionChanged, func(ctx context.Context, e event.Event) error {
		return d.publishQuestionChanged(ctx, e.(domain.EventQuestionChanged))
	})
	c.EventBus.Subscribe(domain.EventNameLeaderboardUpdated, func(ctx context.Context, e event.Event) error {
		return d.publishLeaderboardUpdated(ctx, e.(domain.EventLeaderboardUpdated))
	})
	c.EventBus.Subscribe(domain.EventNameRosterChanged, func(ctx context.Context, e event.Event) error {
		return d.publishRosterChanged(ctx, e.(domain.EventRosterChanged))
	})
	c.EventBus.Subscribe(domain.EventNameSessionEnded, func(ctx context.Context, e event.Event) error {
		return d.Broadcast(ctx, e.(domain.EventSessionEnded).SessionID, SessionEnded{
			Type:      TypeSessionEnded,
			SessionID: e.(domain.EventSessionEnded).SessionID,
		})
	})

	return d
}

// Broadcast serializes the payload once and sends it to every connection in
// the session. A dead connection is unregistered and closed; delivery to the
// rest continues.
func (d *Dispatcher) Broadcast(ctx context.Context, sessionID int64, payload any) error {
	return d.send(ctx, d.reg.ConnectionsIn(sessionID), payload)
}

// SendToParticipant delivers the payload to every live connection owned by
// one participant (a reconnecting user may hold several).
func (d *Dispatcher) SendToParticipant(ctx context.Context, sessionID, userID int64, payload any) error {
	return d.send(ctx, d.reg.ParticipantConnections(sessionID, userID), payload)
}

func (d *Dispatcher) send(ctx context.Context, conns []registry.Conn, payload any) error {
	if len(conns) == 0 {
		return nil
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("dispatch: marshal payload: %v", err)
	}

	var eg errgroup.Group
	eg.SetLimit(maxConcurrentSends)

	for _, c := range conns {
		c := c
		eg.Go(func() error {
			if err := c.Send(ctx, b); err != nil {
				d.dropConn(ctx, c, err)
			} else {
				telemetry.BroadcastsSent.Inc()
			}
			return nil
		})
	}

	return eg.Wait()
}

func (d *Dispatcher) dropConn(ctx context.Context, c registry.Conn, cause error) {
	telemetry.BroadcastFailures.Inc()
	slog.WarnContext(ctx, "dispatch: send failed, dropping connection",
		"conn", c.ID(),
		"error", cause,
	)

	if _, ok := d.reg.Unregister(c); ok {
		telemetry.LiveConnections.Dec()
	}
	_ = c.Close()
}

func (d *Dispatcher) publishQuestionChanged(ctx context.Context, e domain.EventQuestionChanged) error {
	return d.Broadcast(ctx, e.SessionID, QuestionChanged{
		Type:           TypeQuestion,
		Index:          e.Index,
		TotalQuestions: e.TotalQuestions,
		CategoryName:   e.CategoryName,
		QuestionText:   e.Question.QuestionText,
		Options:        e.Question.Options,
		CorrectKey:     e.Question.CorrectKey,
		Points:         e.Question.Points,
		MediaURL:       e.Question.MediaURL,
	})
}

func (d *Dispatcher) publishLeaderboardUpdated(ctx context.Context, e domain.EventLeaderboardUpdated) error {
	return d.Broadcast(ctx, e.Leaderboard.SessionID, Leaderboard{
		Type:      TypeLeaderboard,
		SessionID: e.Leaderboard.SessionID,
		Entries:   ToEntries(e.Leaderboard.Entries),
	})
}

func (d *Dispatcher) publishRosterChanged(ctx context.Context, e domain.EventRosterChanged) error {
	return d.Broadcast(ctx, e.SessionID, LobbyInfo{
		Type:        TypeLobbyInfo,
		PlayerCount: e.PlayerCount,
	})
}

// ToEntries converts domain leaderboard entries to their wire form.
func ToEntries(entries []domain.LeaderboardEntry) []LeaderboardEntry {
	out := make([]LeaderboardEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, LeaderboardEntry{
			ParticipantID: e.UserID,
			Username:      e.Username,
			TotalScore:    e.TotalScore,
			Rank:          e.Rank,
		})
	}
	return out
}
