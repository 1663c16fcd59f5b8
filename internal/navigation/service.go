// Package navigation moves a session's authoritative question index forward
// and backward, one step at a time, clamped to the question list. Who may
// navigate is the caller's concern; this service is authority-agnostic.
package navigation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kkbullenn/trivia-app/internal/domain"
	"github.com/kkbullenn/trivia-app/internal/event"
)

// Store is the slice of the session store the controller relies on. The
// check-and-move is a single conditional mutation inside the store, so two
// concurrent calls can never both win a double-skip.
type Store interface {
	AdvanceIndex(ctx context.Context, sessionID int64) (int, bool, error)
	RetreatIndex(ctx context.Context, sessionID int64) (int, bool, error)
	QuestionIDs(ctx context.Context, sessionID int64) ([]int64, error)
	FindQuestion(ctx context.Context, questionID int64) (*domain.Question, error)
	CategoryName(ctx context.Context, categoryID int64) (string, error)
}

type Config struct {
	Store    Store
	EventBus *event.Bus
}

type Service struct {
	store Store
	eb    *event.Bus
}

func NewService(c Config) *Service {
	return &Service{
		store: c.Store,
		eb:    c.EventBus,
	}
}

// Result reports where the index ended up. Moved is false when the call hit
// the floor or ceiling; that is a defined outcome, not an error, and no
// broadcast happens for it.
type Result struct {
	Index int
	Moved bool
}

func (s *Service) Advance(ctx context.Context, sessionID int64) (*Result, error) {
	idx, moved, err := s.store.AdvanceIndex(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("navigation: advance: %w", err)
	}

	return s.finish(ctx, sessionID, idx, moved)
}

func (s *Service) Retreat(ctx context.Context, sessionID int64) (*Result, error) {
	idx, moved, err := s.store.RetreatIndex(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("navigation: retreat: %w", err)
	}

	return s.finish(ctx, sessionID, idx, moved)
}

func (s *Service) finish(ctx context.Context, sessionID int64, idx int, moved bool) (*Result, error) {
	if moved {
		if err := s.publishQuestion(ctx, sessionID, idx); err != nil {
			return nil, err
		}
	}

	return &Result{Index: idx, Moved: moved}, nil
}

// publishQuestion reads the question at the new index back from the store and
// hands it to the dispatcher via the bus.
func (s *Service) publishQuestion(ctx context.Context, sessionID int64, idx int) error {
	ids, err := s.store.QuestionIDs(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("navigation: question ids: %w", err)
	}
	if idx < 0 || idx >= len(ids) {
		return fmt.Errorf("navigation: index %d out of range for %d questions", idx, len(ids))
	}

	q, err := s.store.FindQuestion(ctx, ids[idx])
	if err != nil {
		return fmt.Errorf("navigation: load question: %w", err)
	}

	categoryName, err := s.store.CategoryName(ctx, q.CategoryID)
	if err != nil {
		// The question is still broadcastable without its category label.
		slog.WarnContext(ctx, "navigation: category lookup failed",
			"session", sessionID,
			"category", q.CategoryID,
			"error", err,
		)
	}

	s.eb.Publish(ctx, domain.EventQuestionChanged{
		SessionID:      sessionID,
		Index:          idx,
		TotalQuestions: len(ids),
		CategoryName:   categoryName,
		Question:       *q,
	})

	return nil
}
