package memory

import (
	"context"
	"fmt"
	"strings"

	"live-quiz-service/internal/domain"
)

// StaticGenerator serves question sets from an in-memory bank (useful for tests/demos).
// Topics missing from the bank get placeholder questions so the service runs without
// an external generator.
type StaticGenerator struct {
	bank map[string]domain.GeneratedQuiz
}

func NewStaticGenerator(bank map[string]domain.GeneratedQuiz) *StaticGenerator {
	normalised := make(map[string]domain.GeneratedQuiz, len(bank))
	for topic, quiz := range bank {
		normalised[strings.ToLower(strings.TrimSpace(topic))] = quiz
	}
	return &StaticGenerator{bank: normalised}
}

func (g *StaticGenerator) Generate(_ context.Context, req domain.GenerationRequest) (domain.GeneratedQuiz, error) {
	if quiz, ok := g.bank[strings.ToLower(strings.TrimSpace(req.Topic))]; ok {
		if len(quiz.Questions) < req.QuestionsCount {
			return quiz, nil
		}
		return domain.GeneratedQuiz{Title: quiz.Title, Questions: quiz.Questions[:req.QuestionsCount]}, nil
	}

	questions := make([]domain.GeneratedQuestion, req.QuestionsCount)
	for i := range questions {
		questions[i] = domain.GeneratedQuestion{
			Question:      fmt.Sprintf("%s: question %d", req.Topic, i+1),
			Options:       []string{"Option A", "Option B", "Option C", "Option D"},
			CorrectAnswer: i % domain.OptionsPerQuestion,
		}
	}
	return domain.GeneratedQuiz{Title: req.Topic + " Quiz", Questions: questions}, nil
}

// SampleBank provides a minimal set of quiz data for demos.
func SampleBank() map[string]domain.GeneratedQuiz {
	return map[string]domain.GeneratedQuiz{
		"arithmetic": {
			Title: "Arithmetic Warm-up",
			Questions: []domain.GeneratedQuestion{
				{Question: "What is 2 + 2?", Options: []string{"3", "4", "5", "22"}, CorrectAnswer: 1},
				{Question: "What is 3 * 3?", Options: []string{"6", "9", "33", "12"}, CorrectAnswer: 1},
				{Question: "What is 10 - 7?", Options: []string{"3", "17", "2", "7"}, CorrectAnswer: 0},
				{Question: "What is 12 / 4?", Options: []string{"4", "2", "8", "3"}, CorrectAnswer: 3},
				{Question: "What is 5 + 6?", Options: []string{"10", "12", "11", "56"}, CorrectAnswer: 2},
			},
		},
	}
}
