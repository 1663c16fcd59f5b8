package answer_test

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kkbullenn/trivia-app/internal/answer"
	"github.com/kkbullenn/trivia-app/internal/domain"
	"github.com/kkbullenn/trivia-app/internal/errors"
	"github.com/kkbullenn/trivia-app/internal/event"
)

// fakeStore keeps answers in a map keyed the way the answers table is keyed,
// so a second RecordAnswer for the same key fails like the unique index does.
type fakeStore struct {
	mu        sync.Mutex
	index     *int
	questions []domain.Question
	usernames map[int64]string
	answers   map[string]domain.Answer

	// recordErr, when set, fails the next RecordAnswer call exactly once.
	recordErr error
	// hideAnswerOnce makes the next FindAnswer miss, simulating a row that
	// lands between the existence check and the insert.
	hideAnswerOnce bool
	// categoryErr fails every CategoryName call.
	categoryErr error
}

func answerKey(sessionID, questionID, userID int64) string {
	return fmt.Sprintf("%d:%d:%d", sessionID, questionID, userID)
}

func (f *fakeStore) CurrentIndex(ctx context.Context, sessionID int64) (*int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.index, nil
}

func (f *fakeStore) QuestionIDs(ctx context.Context, sessionID int64) ([]int64, error) {
	ids := make([]int64, 0, len(f.questions))
	for _, q := range f.questions {
		ids = append(ids, q.QuestionID)
	}
	return ids, nil
}

func (f *fakeStore) FindQuestion(ctx context.Context, questionID int64) (*domain.Question, error) {
	for _, q := range f.questions {
		if q.QuestionID == questionID {
			q := q
			return &q, nil
		}
	}
	return nil, errors.New(errors.CodeNotFound)
}

func (f *fakeStore) CategoryName(ctx context.Context, categoryID int64) (string, error) {
	if f.categoryErr != nil {
		return "", f.categoryErr
	}
	return "Science", nil
}

func (f *fakeStore) FindAnswer(ctx context.Context, sessionID, questionID, userID int64) (*domain.Answer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.hideAnswerOnce {
		f.hideAnswerOnce = false
		return nil, nil
	}

	a, ok := f.answers[answerKey(sessionID, questionID, userID)]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (f *fakeStore) RecordAnswer(ctx context.Context, a domain.Answer) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.recordErr != nil {
		err := f.recordErr
		f.recordErr = nil
		return err
	}

	key := answerKey(a.SessionID, a.QuestionID, a.UserID)
	if _, ok := f.answers[key]; ok {
		return errors.New(errors.CodeAlreadyExists)
	}
	if f.answers == nil {
		f.answers = make(map[string]domain.Answer)
	}
	f.answers[key] = a
	return nil
}

func (f *fakeStore) Leaderboard(ctx context.Context, sessionID int64) ([]domain.LeaderboardEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	totals := make(map[int64]int)
	for _, a := range f.answers {
		totals[a.UserID] += a.Score
	}

	entries := make([]domain.LeaderboardEntry, 0, len(totals))
	for userID, total := range totals {
		entries = append(entries, domain.LeaderboardEntry{
			UserID:     userID,
			Username:   f.usernames[userID],
			TotalScore: total,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].TotalScore != entries[j].TotalScore {
			return entries[i].TotalScore > entries[j].TotalScore
		}
		return entries[i].UserID < entries[j].UserID
	})

	rank := 0
	prev := -1
	for i := range entries {
		if entries[i].TotalScore != prev {
			rank++
			prev = entries[i].TotalScore
		}
		entries[i].Rank = rank
	}
	return entries, nil
}

func (f *fakeStore) CountAnswered(ctx context.Context, sessionID, userID int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	count := 0
	for _, a := range f.answers {
		if a.SessionID == sessionID && a.UserID == userID {
			count++
		}
	}
	return count, nil
}

func (f *fakeStore) TotalPoints(ctx context.Context, sessionID int64) (int, error) {
	total := 0
	for _, q := range f.questions {
		total += q.Points
	}
	return total, nil
}

type scoreRecorder struct {
	mu     sync.Mutex
	events []domain.EventScoreRecorded
}

func (r *scoreRecorder) subscribe(b *event.Bus) {
	b.Subscribe(domain.EventNameScoreRecorded, func(ctx context.Context, e event.Event) error {
		r.mu.Lock()
		defer r.mu.Unlock()

		r.events = append(r.events, e.(domain.EventScoreRecorded))
		return nil
	})
}

func (r *scoreRecorder) all() []domain.EventScoreRecorded {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]domain.EventScoreRecorded(nil), r.events...)
}

func intPtr(i int) *int { return &i }

func twoQuestionStore() *fakeStore {
	return &fakeStore{
		index: intPtr(0),
		questions: []domain.Question{
			{
				QuestionID:   101,
				CategoryID:   1,
				QuestionText: "q1",
				Options:      map[string]string{"A": "a", "B": "b"},
				CorrectKey:   "A",
				Points:       5,
			},
			{
				QuestionID:   102,
				CategoryID:   1,
				QuestionText: "q2",
				Options:      map[string]string{"A": "a", "B": "b", "C": "c"},
				CorrectKey:   "B",
				Points:       10,
			},
		},
		usernames: map[int64]string{10: "alice", 20: "bob"},
		answers:   make(map[string]domain.Answer),
	}
}

func TestService_Submit_PlayThrough(t *testing.T) {
	t.Parallel()

	store := twoQuestionStore()
	eb := event.NewBus()
	rec := &scoreRecorder{}
	rec.subscribe(eb)

	s := answer.NewService(answer.Config{Store: store, EventBus: eb})
	ctx := context.Background()

	// first question: correct
	res, err := s.Submit(ctx, answer.SubmitRequest{SessionID: 1, UserID: 10, Username: "alice", SelectedKey: "A"})
	require.NoError(t, err)

	assert.Equal(t, int64(101), res.QuestionID)
	assert.True(t, res.IsCorrect)
	assert.False(t, res.AlreadyAnswered)
	assert.Equal(t, 5, res.Score)
	assert.Equal(t, 1, res.AnsweredCount)
	assert.Equal(t, 2, res.TotalQuestions)
	assert.Nil(t, res.Completion)
	require.Len(t, res.Leaderboard, 1)
	assert.Equal(t, 5, res.Leaderboard[0].TotalScore)

	// host moves on, second question: wrong
	store.index = intPtr(1)

	res, err = s.Submit(ctx, answer.SubmitRequest{SessionID: 1, UserID: 10, Username: "alice", SelectedKey: "C"})
	require.NoError(t, err)

	assert.Equal(t, int64(102), res.QuestionID)
	assert.False(t, res.IsCorrect)
	assert.Equal(t, "B", res.CorrectKey)
	assert.Equal(t, 0, res.Score)
	assert.Equal(t, 2, res.AnsweredCount)

	// answered every question: completion fires once, with the running total
	// against the maximum the session offers
	require.NotNil(t, res.Completion)
	assert.Equal(t, 5, res.Completion.TotalScore)
	assert.Equal(t, 15, res.Completion.TotalMaxScore)
	assert.Equal(t, "Science", res.Completion.CategoryName)

	eb.Stop()

	events := rec.all()
	require.Len(t, events, 2)
	assert.Equal(t, 5, events[0].TotalScore)
	assert.Equal(t, 5, events[1].TotalScore)
}

func TestService_Submit_ReplayKeepsFirstAnswer(t *testing.T) {
	t.Parallel()

	store := twoQuestionStore()
	eb := event.NewBus()
	rec := &scoreRecorder{}
	rec.subscribe(eb)

	s := answer.NewService(answer.Config{Store: store, EventBus: eb})
	ctx := context.Background()

	first, err := s.Submit(ctx, answer.SubmitRequest{SessionID: 1, UserID: 10, Username: "alice", SelectedKey: "B"})
	require.NoError(t, err)
	assert.False(t, first.IsCorrect)

	// retrying with the right key changes nothing
	second, err := s.Submit(ctx, answer.SubmitRequest{SessionID: 1, UserID: 10, Username: "alice", SelectedKey: "A"})
	require.NoError(t, err)

	assert.True(t, second.AlreadyAnswered)
	assert.Equal(t, "B", second.SelectedKey, "the stored key is reported, not the retried one")
	assert.False(t, second.IsCorrect)
	assert.Equal(t, 0, second.Score)
	assert.Nil(t, second.Leaderboard)
	assert.Nil(t, second.Completion)

	eb.Stop()
	assert.Len(t, rec.all(), 1, "a replay must not publish a score event")
}

func TestService_Submit_KeyComparison(t *testing.T) {
	tests := map[string]struct {
		selected    string
		wantCorrect bool
	}{
		"exact match":              {selected: "A", wantCorrect: true},
		"lowercase matches":        {selected: "a", wantCorrect: true},
		"surrounding spaces match": {selected: "  A ", wantCorrect: true},
		"different key is wrong":   {selected: "B", wantCorrect: false},
		"empty selection is wrong": {selected: "", wantCorrect: false},
		"unknown option is scored": {selected: "Z", wantCorrect: false},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			store := twoQuestionStore()
			eb := event.NewBus()
			s := answer.NewService(answer.Config{Store: store, EventBus: eb})

			res, err := s.Submit(context.Background(), answer.SubmitRequest{
				SessionID: 1, UserID: 10, Username: "alice", SelectedKey: tt.selected,
			})
			eb.Stop()

			require.NoError(t, err)
			assert.Equal(t, tt.wantCorrect, res.IsCorrect)
		})
	}
}

func TestService_Submit_NoActiveQuestion(t *testing.T) {
	t.Parallel()

	store := twoQuestionStore()
	store.index = nil
	eb := event.NewBus()
	s := answer.NewService(answer.Config{Store: store, EventBus: eb})

	_, err := s.Submit(context.Background(), answer.SubmitRequest{SessionID: 1, UserID: 10, SelectedKey: "A"})
	eb.Stop()

	assert.True(t, errors.Is(err, errors.CodeNotFound))
}

// A failed category lookup degrades the completion to an empty label instead
// of failing the submission.
func TestService_Submit_CompletionWithoutCategory(t *testing.T) {
	t.Parallel()

	store := twoQuestionStore()
	store.categoryErr = assert.AnError
	eb := event.NewBus()
	s := answer.NewService(answer.Config{Store: store, EventBus: eb})
	ctx := context.Background()

	_, err := s.Submit(ctx, answer.SubmitRequest{SessionID: 1, UserID: 10, Username: "alice", SelectedKey: "A"})
	require.NoError(t, err)

	store.index = intPtr(1)
	res, err := s.Submit(ctx, answer.SubmitRequest{SessionID: 1, UserID: 10, Username: "alice", SelectedKey: "B"})
	eb.Stop()

	require.NoError(t, err)
	require.NotNil(t, res.Completion)
	assert.Empty(t, res.Completion.CategoryName)
	assert.Equal(t, 15, res.Completion.TotalScore)
}

// A lost insert race falls back to the winner's row instead of failing the
// submission.
func TestService_Submit_ConflictFallsBackToWinner(t *testing.T) {
	t.Parallel()

	store := twoQuestionStore()
	store.answers[answerKey(1, 101, 10)] = domain.Answer{
		SessionID:   1,
		QuestionID:  101,
		UserID:      10,
		SelectedKey: "A",
		IsCorrect:   true,
		Score:       5,
	}
	// the service sees no existing row, yet the insert still conflicts
	store.hideAnswerOnce = true
	store.recordErr = errors.New(errors.CodeAlreadyExists)

	eb := event.NewBus()
	rec := &scoreRecorder{}
	rec.subscribe(eb)
	s := answer.NewService(answer.Config{Store: store, EventBus: eb})

	res, err := s.Submit(context.Background(), answer.SubmitRequest{SessionID: 1, UserID: 10, Username: "alice", SelectedKey: "B"})
	eb.Stop()

	require.NoError(t, err)
	assert.True(t, res.AlreadyAnswered)
	assert.Equal(t, "A", res.SelectedKey)
	assert.True(t, res.IsCorrect)
	assert.Equal(t, 5, res.Score)
	assert.Empty(t, rec.all())
}
