package domain

import "time"

type SessionStatus string

const (
	SessionPending   SessionStatus = "pending"
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
)

// Session is one group playing through a fixed question list together.
// CurrentIndex is nil until the host navigates for the first time.
type Session struct {
	SessionID    int64
	Name         string
	HostID       int64
	CategoryID   int64
	Status       SessionStatus
	CurrentIndex *int
}

// SessionSummary is the lobby-browser view of an active session.
type SessionSummary struct {
	SessionID    int64
	Name         string
	HostID       int64
	Status       SessionStatus
	Participants int
}

type ParticipantStatus string

const (
	ParticipantJoined ParticipantStatus = "joined"
	ParticipantLeft   ParticipantStatus = "left"
)

// Participant identifies a user within a session. A user may reconnect on a
// new connection and keeps the same answer history.
type Participant struct {
	SessionID int64
	UserID    int64
	Username  string
	Status    ParticipantStatus
	JoinedAt  time.Time
	LeftAt    *time.Time
}

type Question struct {
	QuestionID   int64
	CategoryID   int64
	QuestionText string
	// Options maps an option key (e.g. "A") to its display text. Keys are unique.
	Options    map[string]string
	CorrectKey string
	Points     int
	MediaURL   string
}

// Answer is keyed by (session, question, participant); at most one row exists
// per key, and once written it is never re-scored.
type Answer struct {
	SessionID   int64
	QuestionID  int64
	UserID      int64
	SelectedKey string
	IsCorrect   bool
	Score       int
	CreatedAt   time.Time
}

// Leaderboard holds the ranked scores for a session, ordered by total score
// descending. Ranks are dense: tied scores share a rank and the next distinct
// score continues at rank+1.
type Leaderboard struct {
	SessionID int64
	Entries   []LeaderboardEntry
}

type LeaderboardEntry struct {
	UserID     int64
	Username   string
	TotalScore int
	Rank       int
}
