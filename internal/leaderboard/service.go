// Package leaderboard keeps a Redis mirror of per-participant totals and
// throttles leaderboard broadcasts. The durable answer rows stay the source
// of truth for ranks; Redis serves cheap polling reads and the publish lock.
package leaderboard

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kkbullenn/trivia-app/internal/domain"
	"github.com/kkbullenn/trivia-app/internal/errors"
	"github.com/kkbullenn/trivia-app/internal/event"
)

const publishInterval = 200 * time.Millisecond

// Board is the store-side authoritative leaderboard query.
type Board interface {
	Leaderboard(ctx context.Context, sessionID int64) ([]domain.LeaderboardEntry, error)
}

type Config struct {
	EventBus *event.Bus
	Board    Board
	Redis    redis.UniversalClient
	Prefix   string
}

type Service struct {
	eb     *event.Bus
	board  Board
	redis  redis.UniversalClient
	prefix string

	mu      sync.Mutex
	pending map[int64]bool
}

func NewService(c Config) *Service {
	s := &Service{
		eb:      c.EventBus,
		board:   c.Board,
		redis:   c.Redis,
		prefix:  c.Prefix,
		pending: make(map[int64]bool),
	}

	s.eb.Subscribe(domain.EventNameScoreRecorded, func(ctx context.Context, e event.Event) error {
		return s.UpdateLeaderboard(ctx, e.(domain.EventScoreRecorded))
	})

	return s
}

// GetLeaderboard returns the ranked board for a session.
func (s *Service) GetLeaderboard(ctx context.Context, sessionID int64) (*domain.Leaderboard, error) {
	entries, err := s.board.Leaderboard(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get leaderboard: %w", err)
	}

	if len(entries) == 0 {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithMessagef("leaderboard not found: session=%d", sessionID))
	}

	return &domain.Leaderboard{
		SessionID: sessionID,
		Entries:   entries,
	}, nil
}

// CachedTotal is a participant's score as mirrored in Redis, unranked.
type CachedTotal struct {
	UserID     int64
	TotalScore int
}

// CachedTotals serves the Redis mirror, score-descending. Polling clients
// read this without touching the durable store.
func (s *Service) CachedTotals(ctx context.Context, sessionID int64) ([]CachedTotal, error) {
	res, err := s.redis.ZRevRangeWithScores(ctx, s.leaderboardKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("cached totals: %w", err)
	}

	totals := make([]CachedTotal, 0, len(res))
	for _, z := range res {
		id, err := strconv.ParseInt(z.Member.(string), 10, 64)
		if err != nil {
			continue
		}
		totals = append(totals, CachedTotal{UserID: id, TotalScore: int(z.Score)})
	}

	return totals, nil
}

// UpdateLeaderboard mirrors the new total into the ZSET and schedules a
// broadcast.
func (s *Service) UpdateLeaderboard(ctx context.Context, e domain.EventScoreRecorded) error {
	if err := s.redis.ZAdd(ctx, s.leaderboardKey(e.SessionID), redis.Z{
		Score:  float64(e.TotalScore),
		Member: strconv.FormatInt(e.UserID, 10),
	}).Err(); err != nil {
		return fmt.Errorf("update leaderboard: %w", err)
	}

	return s.schedulePublish(ctx, e.SessionID)
}

// schedulePublish collapses bursts of score updates into at most one
// immediate broadcast per interval. The SetNX also keeps multiple processes
// sharing the Redis from all publishing at once. A score landing while the
// lock is held still goes out: one trailing publish fires at the end of the
// interval so the last update of a burst is never lost.
func (s *Service) schedulePublish(ctx context.Context, sessionID int64) error {
	ok, err := s.redis.SetNX(ctx, s.publishLockKey(sessionID), time.Now().UnixMilli(), publishInterval).Result()
	if err != nil {
		return fmt.Errorf("setnx: %w", err)
	}

	if !ok {
		s.scheduleTrailing(context.WithoutCancel(ctx), sessionID)
		return nil
	}

	return s.publish(ctx, sessionID)
}

func (s *Service) scheduleTrailing(ctx context.Context, sessionID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending[sessionID] {
		return
	}
	s.pending[sessionID] = true

	time.AfterFunc(publishInterval, func() {
		s.mu.Lock()
		delete(s.pending, sessionID)
		s.mu.Unlock()

		if err := s.publish(ctx, sessionID); err != nil {
			slog.ErrorContext(ctx, "leaderboard: trailing publish failed",
				"session", sessionID,
				"error", err,
			)
		}
	})
}

func (s *Service) publish(ctx context.Context, sessionID int64) error {
	l, err := s.GetLeaderboard(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("publish leaderboard: session=%d: %w", sessionID, err)
	}

	s.eb.Publish(ctx, domain.EventLeaderboardUpdated{
		Leaderboard: *l,
	})

	return nil
}

func (s *Service) leaderboardKey(sessionID int64) string {
	return fmt.Sprintf("%s:%d:leaderboard", s.prefix, sessionID)
}

func (s *Service) publishLockKey(sessionID int64) string {
	return fmt.Sprintf("%s:%d:time", s.prefix, sessionID)
}
