package app

import (
	"fmt"

	"live-quiz-service/internal/domain"
)

// The transition functions below never mutate their input; on error the
// original session is returned untouched.

// Start moves a created session to its first question.
func Start(s domain.Session) (domain.Session, error) {
	if s.Phase != domain.PhaseCreated {
		return s, fmt.Errorf("start from %s: %w", s.Phase, domain.ErrInvalidTransition)
	}
	next := s
	next.Phase = domain.PhaseActive
	next.CurrentQuestionIndex = 0
	next.TimerRunning = true
	return next, nil
}

// Advance moves to target, which must be exactly the next question.
func Advance(s domain.Session, target int) (domain.Session, error) {
	if s.Phase != domain.PhaseActive {
		return s, fmt.Errorf("advance from %s: %w", s.Phase, domain.ErrInvalidTransition)
	}
	if target != s.CurrentQuestionIndex+1 {
		return s, fmt.Errorf("advance to %d from %d: %w", target, s.CurrentQuestionIndex, domain.ErrInvalidTransition)
	}
	if target >= s.QuestionsCount {
		return s, fmt.Errorf("advance past last question %d: %w", s.QuestionsCount-1, domain.ErrInvalidTransition)
	}
	next := s
	next.CurrentQuestionIndex = target
	next.TimerRunning = true
	return next, nil
}

// PauseTimer stops a running timer.
func PauseTimer(s domain.Session) (domain.Session, error) {
	if s.Phase != domain.PhaseActive || !s.TimerRunning {
		return s, fmt.Errorf("pause timer (phase %s, running %t): %w", s.Phase, s.TimerRunning, domain.ErrInvalidTransition)
	}
	next := s
	next.TimerRunning = false
	return next, nil
}

// ResumeTimer restarts a paused timer.
func ResumeTimer(s domain.Session) (domain.Session, error) {
	if s.Phase != domain.PhaseActive || s.TimerRunning {
		return s, fmt.Errorf("resume timer (phase %s, running %t): %w", s.Phase, s.TimerRunning, domain.ErrInvalidTransition)
	}
	next := s
	next.TimerRunning = true
	return next, nil
}

// End completes a session. Allowed from created (abort) and active.
func End(s domain.Session) (domain.Session, error) {
	if s.Phase == domain.PhaseCompleted {
		return s, fmt.Errorf("end from %s: %w", s.Phase, domain.ErrInvalidTransition)
	}
	next := s
	next.Phase = domain.PhaseCompleted
	next.TimerRunning = false
	return next, nil
}

// checkSubmission applies the acceptance guards in order. current is the
// session's current question; hasPrior reports an existing response for the pair.
func checkSubmission(s domain.Session, current domain.Question, participant domain.Participant, found bool, sub domain.AnswerSubmission, hasPrior bool) error {
	if s.Phase != domain.PhaseActive {
		return domain.Rejected(domain.ReasonSessionNotActive)
	}
	if sub.QuestionID != current.ID {
		return domain.Rejected(domain.ReasonStaleQuestion)
	}
	if !found || participant.SessionID != s.ID {
		return domain.Rejected(domain.ReasonUnknownParticipant)
	}
	if sub.SelectedAnswer < 0 || sub.SelectedAnswer >= domain.OptionsPerQuestion {
		return domain.Rejected(domain.ReasonInvalidOption)
	}
	if hasPrior {
		return domain.Rejected(domain.ReasonDuplicateResponse)
	}
	return nil
}
