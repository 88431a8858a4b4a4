package app

import (
	"fmt"
	"strings"

	"live-quiz-service/internal/domain"
)

// ValidateGenerated checks generator output against the request before anything is stored.
func ValidateGenerated(req domain.GenerationRequest, quiz domain.GeneratedQuiz) error {
	if len(quiz.Questions) != req.QuestionsCount {
		return &domain.GenerationError{Cause: fmt.Errorf("expected %d questions, got %d", req.QuestionsCount, len(quiz.Questions))}
	}
	for i, q := range quiz.Questions {
		if strings.TrimSpace(q.Question) == "" {
			return &domain.GenerationError{Cause: fmt.Errorf("question %d has no text", i)}
		}
		if len(q.Options) != domain.OptionsPerQuestion {
			return &domain.GenerationError{Cause: fmt.Errorf("question %d has %d options", i, len(q.Options))}
		}
		if q.CorrectAnswer < 0 || q.CorrectAnswer >= domain.OptionsPerQuestion {
			return &domain.GenerationError{Cause: fmt.Errorf("question %d has correct answer %d", i, q.CorrectAnswer)}
		}
	}
	return nil
}
