// Package store is the durable session store. It owns the authoritative
// current-question index and the answer set; every mutation goes through a
// single conditional statement so concurrent callers race down to one winner
// instead of losing updates.
package store

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kkbullenn/trivia-app/internal/domain"
	"github.com/kkbullenn/trivia-app/internal/errors"
)

type Config struct {
	DB *pgxpool.Pool
}

type Store struct {
	db *pgxpool.Pool
}

func NewStore(c Config) *Store {
	return &Store{db: c.DB}
}

const (
	pgCodeForeignKeyViolation = "23503"
	pgCodeUniqueViolation     = "23505"
)

func (s *Store) FindSession(ctx context.Context, sessionID int64) (*domain.Session, error) {
	const stmt = `
SELECT session_id, session_name, host_user_id, category_id, status, current_index
FROM sessions
WHERE session_id = $1;`

	var ss domain.Session
	err := s.db.QueryRow(ctx, stmt, sessionID).
		Scan(&ss.SessionID, &ss.Name, &ss.HostID, &ss.CategoryID, &ss.Status, &ss.CurrentIndex)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithMessagef("session not found: session=%d", sessionID))
	}
	if err != nil {
		return nil, fmt.Errorf("find session: %w", err)
	}

	return &ss, nil
}

// ListActiveSessions returns active sessions with their joined participant
// counts, busiest first.
func (s *Store) ListActiveSessions(ctx context.Context) ([]domain.SessionSummary, error) {
	const stmt = `
SELECT s.session_id, s.session_name, s.host_user_id, s.status, COALESCE(sp.cnt, 0) AS participants
FROM sessions s
LEFT JOIN (
	SELECT session_id, COUNT(*) AS cnt
	FROM session_participants
	WHERE status = 'joined'
	GROUP BY session_id
) sp ON s.session_id = sp.session_id
WHERE s.status = 'active'
ORDER BY participants DESC, s.session_id DESC;`

	rows, err := s.db.Query(ctx, stmt)
	if err != nil {
		return nil, fmt.Errorf("list active sessions: %w", err)
	}

	return pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.SessionSummary, error) {
		var sm domain.SessionSummary
		err := r.Scan(&sm.SessionID, &sm.Name, &sm.HostID, &sm.Status, &sm.Participants)
		return sm, err
	})
}

// JoinSession upserts the participant into the joined state. Rejoining after
// a leave resumes the same answer history.
func (s *Store) JoinSession(ctx context.Context, sessionID, userID int64) (err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			err = stderrors.Join(err, tx.Rollback(ctx))
		}
	}()

	const (
		joinStmt = `
INSERT INTO session_participants (session_id, participant_id, joined_at, left_at, status)
VALUES ($1, $2, now(), NULL, 'joined')
ON CONFLICT (session_id, participant_id)
DO UPDATE SET status = 'joined', joined_at = now(), left_at = NULL;`
		activateStmt = `UPDATE sessions SET status = 'active' WHERE session_id = $1 AND status = 'pending';`
	)

	if _, err = tx.Exec(ctx, joinStmt, sessionID, userID); err != nil {
		// A broken FK means the session or user row does not exist.
		var pgErr *pgconn.PgError
		if stderrors.As(err, &pgErr) && pgErr.Code == pgCodeForeignKeyViolation {
			return errors.New(errors.CodeNotFound,
				errors.WithMessagef("session or user not found: session=%d user=%d", sessionID, userID),
				errors.WithCause(err))
		}
		return fmt.Errorf("join session: %w", err)
	}
	if _, err = tx.Exec(ctx, activateStmt, sessionID); err != nil {
		return fmt.Errorf("activate session: %w", err)
	}

	return tx.Commit(ctx)
}

// LeaveSession marks a joined participant as left. Returns false if the
// participant was not in the joined state.
func (s *Store) LeaveSession(ctx context.Context, sessionID, userID int64) (bool, error) {
	const stmt = `
UPDATE session_participants
SET status = 'left', left_at = now()
WHERE session_id = $1 AND participant_id = $2 AND status = 'joined';`

	tag, err := s.db.Exec(ctx, stmt, sessionID, userID)
	if err != nil {
		return false, fmt.Errorf("leave session: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

func (s *Store) FindParticipant(ctx context.Context, sessionID, userID int64) (*domain.Participant, error) {
	const stmt = `
SELECT sp.session_id, sp.participant_id, u.username, sp.status, sp.joined_at, sp.left_at
FROM session_participants sp
JOIN users u ON u.user_id = sp.participant_id
WHERE sp.session_id = $1 AND sp.participant_id = $2;`

	var p domain.Participant
	err := s.db.QueryRow(ctx, stmt, sessionID, userID).
		Scan(&p.SessionID, &p.UserID, &p.Username, &p.Status, &p.JoinedAt, &p.LeftAt)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithMessagef("participant not found: session=%d user=%d", sessionID, userID))
	}
	if err != nil {
		return nil, fmt.Errorf("find participant: %w", err)
	}

	return &p, nil
}

// CurrentIndex returns the authoritative index, or nil before the session has
// started navigating.
func (s *Store) CurrentIndex(ctx context.Context, sessionID int64) (*int, error) {
	const stmt = `SELECT current_index FROM sessions WHERE session_id = $1;`

	var idx *int
	err := s.db.QueryRow(ctx, stmt, sessionID).Scan(&idx)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithMessagef("session not found: session=%d", sessionID))
	}
	if err != nil {
		return nil, fmt.Errorf("current index: %w", err)
	}

	return idx, nil
}

// AdvanceIndex atomically moves the index forward by one, clamped below the
// question count. A session that has not started yet moves to index 0 and
// becomes active. Returns the resulting index and whether it moved; hitting
// the ceiling is a no-op, not an error.
func (s *Store) AdvanceIndex(ctx context.Context, sessionID int64) (int, bool, error) {
	const stmt = `
UPDATE sessions
SET current_index = COALESCE(current_index, -1) + 1,
    status = CASE WHEN status = 'pending' THEN 'active' ELSE status END
WHERE session_id = $1
  AND COALESCE(current_index, -1) + 1 < (SELECT COUNT(*) FROM session_questions WHERE session_id = $1)
RETURNING current_index;`

	var idx int
	err := s.db.QueryRow(ctx, stmt, sessionID).Scan(&idx)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return s.clampedIndex(ctx, sessionID)
	}
	if err != nil {
		return 0, false, fmt.Errorf("advance index: %w", err)
	}

	return idx, true, nil
}

// RetreatIndex is the symmetric conditional decrement, floored at 0.
func (s *Store) RetreatIndex(ctx context.Context, sessionID int64) (int, bool, error) {
	const stmt = `
UPDATE sessions
SET current_index = current_index - 1
WHERE session_id = $1 AND current_index > 0
RETURNING current_index;`

	var idx int
	err := s.db.QueryRow(ctx, stmt, sessionID).Scan(&idx)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return s.clampedIndex(ctx, sessionID)
	}
	if err != nil {
		return 0, false, fmt.Errorf("retreat index: %w", err)
	}

	return idx, true, nil
}

// clampedIndex reads the index back after a boundary no-op.
func (s *Store) clampedIndex(ctx context.Context, sessionID int64) (int, bool, error) {
	idx, err := s.CurrentIndex(ctx, sessionID)
	if err != nil {
		return 0, false, err
	}
	if idx == nil {
		return 0, false, nil
	}

	return *idx, false, nil
}

func (s *Store) QuestionIDs(ctx context.Context, sessionID int64) ([]int64, error) {
	const stmt = `SELECT question_id FROM session_questions WHERE session_id = $1 ORDER BY question_id ASC;`

	rows, err := s.db.Query(ctx, stmt, sessionID)
	if err != nil {
		return nil, fmt.Errorf("question ids: %w", err)
	}

	return pgx.CollectRows(rows, func(r pgx.CollectableRow) (int64, error) {
		var id int64
		err := r.Scan(&id)
		return id, err
	})
}

func (s *Store) FindQuestion(ctx context.Context, questionID int64) (*domain.Question, error) {
	const stmt = `
SELECT question_id, category_id, question_text, options, correct_key, points, COALESCE(media_url, '')
FROM questions
WHERE question_id = $1;`

	var q domain.Question
	err := s.db.QueryRow(ctx, stmt, questionID).
		Scan(&q.QuestionID, &q.CategoryID, &q.QuestionText, &q.Options, &q.CorrectKey, &q.Points, &q.MediaURL)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithMessagef("question not found: question=%d", questionID))
	}
	if err != nil {
		return nil, fmt.Errorf("find question: %w", err)
	}

	return &q, nil
}

func (s *Store) CategoryName(ctx context.Context, categoryID int64) (string, error) {
	const stmt = `SELECT category_name FROM categories WHERE category_id = $1;`

	var name string
	err := s.db.QueryRow(ctx, stmt, categoryID).Scan(&name)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return "", errors.New(errors.CodeNotFound,
			errors.WithMessagef("category not found: category=%d", categoryID))
	}
	if err != nil {
		return "", fmt.Errorf("category name: %w", err)
	}

	return name, nil
}

// FindAnswer returns the stored answer for (session, question, participant),
// or nil when none exists.
func (s *Store) FindAnswer(ctx context.Context, sessionID, questionID, userID int64) (*domain.Answer, error) {
	const stmt = `
SELECT session_id, question_id, participant_id, selected_answer, is_correct, score, created_at
FROM answers
WHERE session_id = $1 AND question_id = $2 AND participant_id = $3;`

	var a domain.Answer
	err := s.db.QueryRow(ctx, stmt, sessionID, questionID, userID).
		Scan(&a.SessionID, &a.QuestionID, &a.UserID, &a.SelectedKey, &a.IsCorrect, &a.Score, &a.CreatedAt)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find answer: %w", err)
	}

	return &a, nil
}

// RecordAnswer inserts the answer row. The (session, question, participant)
// unique key makes a concurrent double-submit fail here with
// CodeAlreadyExists; callers fall back to reading the winner's row.
func (s *Store) RecordAnswer(ctx context.Context, a domain.Answer) error {
	const stmt = `
INSERT INTO answers (session_id, question_id, participant_id, selected_answer, is_correct, score)
VALUES ($1, $2, $3, $4, $5, $6);`

	_, err := s.db.Exec(ctx, stmt, a.SessionID, a.QuestionID, a.UserID, a.SelectedKey, a.IsCorrect, a.Score)

	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) && pgErr.Code == pgCodeUniqueViolation {
		return errors.New(errors.CodeAlreadyExists, errors.WithCause(err))
	}
	if err != nil {
		return fmt.Errorf("record answer: %w", err)
	}

	return nil
}

// Leaderboard sums each participant's answer scores and dense-ranks them,
// ties broken by join order.
func (s *Store) Leaderboard(ctx context.Context, sessionID int64) ([]domain.LeaderboardEntry, error) {
	const stmt = `
SELECT t.participant_id, u.username, t.total_score,
       DENSE_RANK() OVER (ORDER BY t.total_score DESC) AS rank_pos
FROM (
	SELECT participant_id, SUM(score) AS total_score
	FROM answers
	WHERE session_id = $1
	GROUP BY participant_id
) t
JOIN users u ON u.user_id = t.participant_id
JOIN session_participants sp ON sp.session_id = $1 AND sp.participant_id = t.participant_id
ORDER BY t.total_score DESC, sp.joined_at ASC, t.participant_id ASC;`

	rows, err := s.db.Query(ctx, stmt, sessionID)
	if err != nil {
		return nil, fmt.Errorf("leaderboard: %w", err)
	}

	return pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.LeaderboardEntry, error) {
		var e domain.LeaderboardEntry
		err := r.Scan(&e.UserID, &e.Username, &e.TotalScore, &e.Rank)
		return e, err
	})
}

// CountAnswered returns how many distinct questions the participant has
// answered in the session.
func (s *Store) CountAnswered(ctx context.Context, sessionID, userID int64) (int, error) {
	const stmt = `SELECT COUNT(*) FROM answers WHERE session_id = $1 AND participant_id = $2;`

	var n int
	if err := s.db.QueryRow(ctx, stmt, sessionID, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count answered: %w", err)
	}

	return n, nil
}

// TotalPoints is the maximum achievable score for the session.
func (s *Store) TotalPoints(ctx context.Context, sessionID int64) (int, error) {
	const stmt = `
SELECT COALESCE(SUM(q.points), 0)
FROM session_questions sq
JOIN questions q ON q.question_id = sq.question_id
WHERE sq.session_id = $1;`

	var n int
	if err := s.db.QueryRow(ctx, stmt, sessionID).Scan(&n); err != nil {
		return 0, fmt.Errorf("total points: %w", err)
	}

	return n, nil
}

// EndSession moves the session to completed. Returns false if it already was.
func (s *Store) EndSession(ctx context.Context, sessionID int64) (bool, error) {
	const stmt = `
UPDATE sessions
SET status = 'completed', ended_at = now()
WHERE session_id = $1 AND status <> 'completed';`

	tag, err := s.db.Exec(ctx, stmt, sessionID)
	if err != nil {
		return false, fmt.Errorf("end session: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}
