// Package answer scores submissions against the session's current question.
// Scoring is exactly-once per (session, question, participant): the first
// persisted answer wins and every later submission for the same key reads it
// back unchanged.
package answer

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/kkbullenn/trivia-app/internal/domain"
	"github.com/kkbullenn/trivia-app/internal/errors"
	"github.com/kkbullenn/trivia-app/internal/event"
	"github.com/kkbullenn/trivia-app/internal/telemetry"
)

type Store interface {
	CurrentIndex(ctx context.Context, sessionID int64) (*int, error)
	QuestionIDs(ctx context.Context, sessionID int64) ([]int64, error)
	FindQuestion(ctx context.Context, questionID int64) (*domain.Question, error)
	CategoryName(ctx context.Context, categoryID int64) (string, error)
	FindAnswer(ctx context.Context, sessionID, questionID, userID int64) (*domain.Answer, error)
	RecordAnswer(ctx context.Context, a domain.Answer) error
	Leaderboard(ctx context.Context, sessionID int64) ([]domain.LeaderboardEntry, error)
	CountAnswered(ctx context.Context, sessionID, userID int64) (int, error)
	TotalPoints(ctx context.Context, sessionID int64) (int, error)
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

type SubmitRequest struct {
	SessionID   int64
	UserID      int64
	Username    string
	SelectedKey string
}

type SubmitResponse struct {
	QuestionID      int64
	QuestionIndex   int
	SelectedKey     string
	CorrectKey      string
	IsCorrect       bool
	AlreadyAnswered bool
	Score           int
	AnsweredCount   int
	TotalQuestions  int
	// Leaderboard is the recomputed board after a fresh score; nil when the
	// submission was a replay.
	Leaderboard []domain.LeaderboardEntry
	// Completion is set the one time AnsweredCount reaches TotalQuestions.
	Completion *Completion
}

type Completion struct {
	TotalScore    int
	TotalMaxScore int
	Leaderboard   []domain.LeaderboardEntry
	CategoryName  string
}

// Submit scores the participant's answer to the session's current question.
// A persistence failure surfaces as an error and nothing is broadcast.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*SubmitResponse, error) {
	idx, err := s.store.CurrentIndex(ctx, req.SessionID)
	if err != nil {
		return nil, fmt.Errorf("answer: current index: %w", err)
	}
	if idx == nil {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithMessagef("no active question: session=%d", req.SessionID))
	}

	ids, err := s.store.QuestionIDs(ctx, req.SessionID)
	if err != nil {
		return nil, fmt.Errorf("answer: question ids: %w", err)
	}
	if *idx < 0 || *idx >= len(ids) {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithMessagef("index %d out of range: session=%d", *idx, req.SessionID))
	}

	q, err := s.store.FindQuestion(ctx, ids[*idx])
	if err != nil {
		return nil, fmt.Errorf("answer: load question: %w", err)
	}

	existing, err := s.store.FindAnswer(ctx, req.SessionID, q.QuestionID, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("answer: lookup existing: %w", err)
	}
	if existing != nil {
		return s.replay(ctx, req, q, *idx, len(ids), existing)
	}

	a := domain.Answer{
		SessionID:   req.SessionID,
		QuestionID:  q.QuestionID,
		UserID:      req.UserID,
		SelectedKey: req.SelectedKey,
		IsCorrect:   keysEqual(req.SelectedKey, q.CorrectKey),
	}
	if a.IsCorrect {
		a.Score = q.Points
	}

	if err := s.store.RecordAnswer(ctx, a); err != nil {
		if errors.Is(err, errors.CodeAlreadyExists) {
			// Lost a race against another connection of the same user; the
			// winner's row is the answer of record.
			return s.replayAfterConflict(ctx, req, q, *idx, len(ids))
		}
		return nil, fmt.Errorf("answer: record: %w", err)
	}

	telemetry.AnswersScored.WithLabelValues(strconv.FormatBool(a.IsCorrect)).Inc()

	return s.finishFresh(ctx, req, q, *idx, len(ids), a)
}

// replay returns the stored result untouched: no rescoring, no leaderboard
// recomputation, no broadcast.
func (s *Service) replay(ctx context.Context, req SubmitRequest, q *domain.Question, idx, total int, a *domain.Answer) (*SubmitResponse, error) {
	telemetry.AnswersReplayed.Inc()

	count, err := s.store.CountAnswered(ctx, req.SessionID, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("answer: count answered: %w", err)
	}

	return &SubmitResponse{
		QuestionID:      q.QuestionID,
		QuestionIndex:   idx,
		SelectedKey:     a.SelectedKey,
		CorrectKey:      q.CorrectKey,
		IsCorrect:       a.IsCorrect,
		AlreadyAnswered: true,
		Score:           a.Score,
		AnsweredCount:   count,
		TotalQuestions:  total,
	}, nil
}

func (s *Service) replayAfterConflict(ctx context.Context, req SubmitRequest, q *domain.Question, idx, total int) (*SubmitResponse, error) {
	a, err := s.store.FindAnswer(ctx, req.SessionID, q.QuestionID, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("answer: re-read after conflict: %w", err)
	}
	if a == nil {
		return nil, errors.New(errors.CodeInternal,
			errors.WithMessagef("conflict without winner row: session=%d question=%d user=%d",
				req.SessionID, q.QuestionID, req.UserID))
	}

	return s.replay(ctx, req, q, idx, total, a)
}

func (s *Service) finishFresh(ctx context.Context, req SubmitRequest, q *domain.Question, idx, total int, a domain.Answer) (*SubmitResponse, error) {
	lb, err := s.store.Leaderboard(ctx, req.SessionID)
	if err != nil {
		return nil, fmt.Errorf("answer: leaderboard: %w", err)
	}

	count, err := s.store.CountAnswered(ctx, req.SessionID, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("answer: count answered: %w", err)
	}

	s.eb.Publish(ctx, domain.EventScoreRecorded{
		SessionID:  req.SessionID,
		UserID:     req.UserID,
		Username:   req.Username,
		TotalScore: totalFor(lb, req.UserID),
	})

	resp := &SubmitResponse{
		QuestionID:     q.QuestionID,
		QuestionIndex:  idx,
		SelectedKey:    a.SelectedKey,
		CorrectKey:     q.CorrectKey,
		IsCorrect:      a.IsCorrect,
		Score:          a.Score,
		AnsweredCount:  count,
		TotalQuestions: total,
		Leaderboard:    lb,
	}

	// Completion is per participant; others keep playing undisturbed.
	if count >= total {
		c, err := s.buildCompletion(ctx, req, q, lb)
		if err != nil {
			return nil, err
		}
		resp.Completion = c
	}

	return resp, nil
}

func (s *Service) buildCompletion(ctx context.Context, req SubmitRequest, q *domain.Question, lb []domain.LeaderboardEntry) (*Completion, error) {
	maxScore, err := s.store.TotalPoints(ctx, req.SessionID)
	if err != nil {
		return nil, fmt.Errorf("answer: total points: %w", err)
	}

	categoryName, err := s.store.CategoryName(ctx, q.CategoryID)
	if err != nil {
		// The completion is still deliverable without its category label.
		slog.WarnContext(ctx, "answer: category lookup failed",
			"session", req.SessionID,
			"category", q.CategoryID,
			"error", err,
		)
	}

	return &Completion{
		TotalScore:    totalFor(lb, req.UserID),
		TotalMaxScore: maxScore,
		Leaderboard:   lb,
		CategoryName:  categoryName,
	}, nil
}

// keysEqual compares option keys trimmed and case-insensitively.
func keysEqual(selected, correct string) bool {
	return strings.EqualFold(strings.TrimSpace(selected), strings.TrimSpace(correct))
}

func totalFor(lb []domain.LeaderboardEntry, userID int64) int {
	for _, e := range lb {
		if e.UserID == userID {
			return e.TotalScore
		}
	}
	return 0
}
