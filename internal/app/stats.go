package app

import (
	"math"
	"sort"

	"live-quiz-service/internal/domain"
)

// LiveTally counts responses per option of a question.
func LiveTally(question domain.Question, responses []domain.Response) domain.LiveTally {
	counts := make([]int, domain.OptionsPerQuestion)
	total := 0
	for _, r := range responses {
		if r.QuestionID != question.ID {
			continue
		}
		total++
		if r.SelectedAnswer >= 0 && r.SelectedAnswer < len(counts) {
			counts[r.SelectedAnswer]++
		}
	}

	options := make([]domain.OptionTally, len(counts))
	for i, c := range counts {
		options[i] = domain.OptionTally{Option: i, Count: c, Percentage: percentOf(c, total)}
	}
	return domain.LiveTally{QuestionID: question.ID, Total: total, Options: options}
}

// QuizStats summarises participation. question may be nil when no question is selected.
func QuizStats(participants []domain.Participant, question *domain.Question, responses []domain.Response) domain.QuizStats {
	stats := domain.QuizStats{TotalParticipants: len(participants)}
	for _, p := range participants {
		if p.IsConnected {
			stats.ActiveParticipants++
		}
	}
	if question == nil {
		return stats
	}

	var totalTime, correct int
	for _, r := range responses {
		if r.QuestionID != question.ID {
			continue
		}
		stats.CurrentResponses++
		totalTime += r.ResponseTime
		if r.SelectedAnswer == question.CorrectAnswer {
			correct++
		}
	}
	if stats.CurrentResponses > 0 {
		stats.AverageResponseTime = float64(totalTime) / float64(stats.CurrentResponses)
		stats.CorrectRate = float64(correct) / float64(stats.CurrentResponses) * 100
	}
	return stats
}

// FinalRanking orders participants by correct answers (desc) then average latency (asc).
// Participants that tie on both keep their roster order.
func FinalRanking(questions []domain.Question, participants []domain.Participant, responses []domain.Response) []domain.Ranking {
	type key struct{ participant, question int64 }
	byPair := make(map[key]domain.Response, len(responses))
	for _, r := range responses {
		k := key{r.ParticipantID, r.QuestionID}
		if _, seen := byPair[k]; !seen {
			byPair[k] = r
		}
	}

	rankings := make([]domain.Ranking, 0, len(participants))
	for _, p := range participants {
		var correct, answered, totalTime int
		for _, q := range questions {
			r, ok := byPair[key{p.ID, q.ID}]
			if !ok {
				continue
			}
			answered++
			totalTime += r.ResponseTime
			if r.SelectedAnswer == q.CorrectAnswer {
				correct++
			}
		}

		avg := 0.0
		if answered > 0 {
			avg = float64(totalTime) / float64(answered)
		}
		rankings = append(rankings, domain.Ranking{
			ParticipantID:       p.ID,
			ParticipantName:     p.Name,
			CorrectAnswers:      correct,
			TotalQuestions:      len(questions),
			AverageResponseTime: avg,
			Score:               percentOf(correct, len(questions)),
		})
	}

	sort.SliceStable(rankings, func(i, j int) bool {
		if rankings[i].CorrectAnswers != rankings[j].CorrectAnswers {
			return rankings[i].CorrectAnswers > rankings[j].CorrectAnswers
		}
		return rankings[i].AverageResponseTime < rankings[j].AverageResponseTime
	})
	for i := range rankings {
		rankings[i].Rank = i + 1
	}
	return rankings
}

func percentOf(part, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(part) / float64(total) * 100))
}
