package domain

const (
	EventNameQuestionChanged    = "question.changed"
	EventNameScoreRecorded      = "score.recorded"
	EventNameLeaderboardUpdated = "leaderboard.updated"
	EventNameRosterChanged      = "roster.changed"
	EventNameSessionEnded       = "session.ended"
)

// EventQuestionChanged is published after the authoritative index moved and
// carries everything the clients need to render the new question.
type EventQuestionChanged struct {
	SessionID      int64
	Index          int
	TotalQuestions int
	CategoryName   string
	Question       Question
}

func (EventQuestionChanged) Name() string { return EventNameQuestionChanged }

// EventScoreRecorded is published once per freshly persisted answer. A
// resubmitted answer never produces this event.
type EventScoreRecorded struct {
	SessionID  int64
	UserID     int64
	Username   string
	TotalScore int
}

func (EventScoreRecorded) Name() string { return EventNameScoreRecorded }

type EventLeaderboardUpdated struct {
	Leaderboard Leaderboard
}

func (EventLeaderboardUpdated) Name() string { return EventNameLeaderboardUpdated }

// EventRosterChanged fires when a participant joins or leaves a session.
type EventRosterChanged struct {
	SessionID   int64
	PlayerCount int
}

func (EventRosterChanged) Name() string { return EventNameRosterChanged }

type EventSessionEnded struct {
	SessionID int64
}

func (EventSessionEnded) Name() string { return EventNameSessionEnded }
