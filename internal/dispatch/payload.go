package dispatch

// Outbound message types. Every server→client message is a flat tagged
// object; Type always carries one of these values.
const (
	TypeLobbyInfo    = "lobbyInfo"
	TypeQuestion     = "question"
	TypeLeaderboard  = "leaderboard"
	TypeAnswerResult = "answerResult"
	TypeQuizComplete = "quizComplete"
	TypeSessionEnded = "sessionEnded"
	TypeError        = "error"
)

// ErrorNotice tells one client a request was rejected; the connection stays
// open.
type ErrorNotice struct {
	Type    string `json:"type"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type LobbyInfo struct {
	Type        string `json:"type"`
	PlayerCount int    `json:"playerCount"`
}

type QuestionChanged struct {
	Type           string            `json:"type"`
	Index          int               `json:"index"`
	TotalQuestions int               `json:"totalQuestions"`
	CategoryName   string            `json:"categoryName"`
	QuestionText   string            `json:"questionText"`
	Options        map[string]string `json:"options"`
	CorrectKey     string            `json:"correctKey"`
	Points         int               `json:"points"`
	MediaURL       string            `json:"mediaUrl,omitempty"`
}

type Leaderboard struct {
	Type      string             `json:"type"`
	SessionID int64              `json:"sessionId"`
	Entries   []LeaderboardEntry `json:"entries"`
}

type LeaderboardEntry struct {
	ParticipantID int64  `json:"participantId"`
	Username      string `json:"username"`
	TotalScore    int    `json:"totalScore"`
	Rank          int    `json:"rank"`
}

type AnswerResult struct {
	Type            string             `json:"type"`
	QuestionID      int64              `json:"questionId"`
	QuestionIndex   int                `json:"questionIndex"`
	SelectedAnswer  string             `json:"selectedAnswer"`
	CorrectAnswer   string             `json:"correctAnswer"`
	IsCorrect       bool               `json:"isCorrect"`
	AlreadyAnswered bool               `json:"alreadyAnswered"`
	ScoreAwarded    int                `json:"scoreAwarded"`
	AnsweredCount   int                `json:"answeredCount"`
	TotalQuestions  int                `json:"totalQuestions"`
	Leaderboard     []LeaderboardEntry `json:"leaderboard,omitempty"`
}

type QuizComplete struct {
	Type           string             `json:"type"`
	SessionID      int64              `json:"sessionId"`
	TotalQuestions int                `json:"totalQuestions"`
	AnsweredCount  int                `json:"answeredCount"`
	TotalScore     int                `json:"totalScore"`
	TotalMaxScore  int                `json:"totalMaxScore"`
	Leaderboard    []LeaderboardEntry `json:"leaderboard"`
	CategoryName   string             `json:"categoryName,omitempty"`
}

type SessionEnded struct {
	Type      string `json:"type"`
	SessionID int64  `json:"sessionId"`
}
