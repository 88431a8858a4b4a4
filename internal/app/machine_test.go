package app

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"live-quiz-service/internal/domain"
)

func TestStateMachineHappyPath(t *testing.T) {
	s := domain.Session{ID: 1, Phase: domain.PhaseCreated, QuestionsCount: 3}

	s, err := Start(s)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseActive, s.Phase)
	assert.Equal(t, 0, s.CurrentQuestionIndex)
	assert.True(t, s.TimerRunning)

	s, err = PauseTimer(s)
	require.NoError(t, err)
	assert.False(t, s.TimerRunning)

	s, err = ResumeTimer(s)
	require.NoError(t, err)
	assert.True(t, s.TimerRunning)

	s, err = Advance(s, 1)
	require.NoError(t, err)
	s, err = Advance(s, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, s.CurrentQuestionIndex)

	s, err = End(s)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseCompleted, s.Phase)
	assert.False(t, s.TimerRunning)
}

func TestStateMachineGuards(t *testing.T) {
	created := domain.Session{Phase: domain.PhaseCreated, QuestionsCount: 2}
	active := domain.Session{Phase: domain.PhaseActive, QuestionsCount: 2, TimerRunning: true}
	paused := domain.Session{Phase: domain.PhaseActive, QuestionsCount: 2}
	completed := domain.Session{Phase: domain.PhaseCompleted, QuestionsCount: 2}

	cases := []struct {
		name  string
		apply func() (domain.Session, error)
		from  domain.Session
	}{
		{"start twice", func() (domain.Session, error) { return Start(active) }, active},
		{"start completed", func() (domain.Session, error) { return Start(completed) }, completed},
		{"advance before start", func() (domain.Session, error) { return Advance(created, 1) }, created},
		{"advance skips", func() (domain.Session, error) { return Advance(active, 2) }, active},
		{"advance backwards", func() (domain.Session, error) { return Advance(active, 0) }, active},
		{"advance past end", func() (domain.Session, error) {
			last := active
			last.CurrentQuestionIndex = 1
			return Advance(last, 2)
		}, domain.Session{Phase: domain.PhaseActive, QuestionsCount: 2, TimerRunning: true, CurrentQuestionIndex: 1}},
		{"pause paused", func() (domain.Session, error) { return PauseTimer(paused) }, paused},
		{"pause created", func() (domain.Session, error) { return PauseTimer(created) }, created},
		{"resume running", func() (domain.Session, error) { return ResumeTimer(active) }, active},
		{"resume completed", func() (domain.Session, error) { return ResumeTimer(completed) }, completed},
		{"end twice", func() (domain.Session, error) { return End(completed) }, completed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.apply()
			assert.True(t, errors.Is(err, domain.ErrInvalidTransition), "got %v", err)
			assert.Equal(t, tc.from, got)
		})
	}
}

func TestEndFromCreatedAborts(t *testing.T) {
	s, err := End(domain.Session{Phase: domain.PhaseCreated})
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseCompleted, s.Phase)
}

func TestCheckSubmissionOrder(t *testing.T) {
	session := domain.Session{ID: 1, Phase: domain.PhaseActive}
	current := domain.Question{ID: 10, SessionID: 1}
	member := domain.Participant{ID: 5, SessionID: 1}
	ok := domain.AnswerSubmission{ParticipantID: 5, QuestionID: 10, SelectedAnswer: 2}

	reason := func(err error) domain.RejectReason {
		var rejected *domain.RejectedResponseError
		require.True(t, errors.As(err, &rejected), "got %v", err)
		return rejected.Reason
	}

	require.NoError(t, checkSubmission(session, current, member, true, ok, false))

	inactive := session
	inactive.Phase = domain.PhaseCompleted
	// every guard fails here; the phase check wins
	bad := domain.AnswerSubmission{ParticipantID: 9, QuestionID: 11, SelectedAnswer: 7}
	assert.Equal(t, domain.ReasonSessionNotActive, reason(checkSubmission(inactive, current, domain.Participant{}, false, bad, true)))
	assert.Equal(t, domain.ReasonStaleQuestion, reason(checkSubmission(session, current, domain.Participant{}, false, bad, true)))

	sameQuestion := bad
	sameQuestion.QuestionID = 10
	assert.Equal(t, domain.ReasonUnknownParticipant, reason(checkSubmission(session, current, domain.Participant{}, false, sameQuestion, true)))
	stranger := domain.Participant{ID: 9, SessionID: 2}
	assert.Equal(t, domain.ReasonUnknownParticipant, reason(checkSubmission(session, current, stranger, true, sameQuestion, true)))

	badOption := ok
	badOption.SelectedAnswer = 4
	assert.Equal(t, domain.ReasonInvalidOption, reason(checkSubmission(session, current, member, true, badOption, true)))
	badOption.SelectedAnswer = -1
	assert.Equal(t, domain.ReasonInvalidOption, reason(checkSubmission(session, current, member, true, badOption, false)))

	assert.Equal(t, domain.ReasonDuplicateResponse, reason(checkSubmission(session, current, member, true, ok, true)))
}
