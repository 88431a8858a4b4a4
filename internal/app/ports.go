package app

import (
	"context"

	"live-quiz-service/internal/domain"
)

// Sequence hands out monotonically increasing ids per entity name.
type Sequence interface {
	Next(name string) (int64, error)
}

// Store owns sessions, questions, participants and responses (in-memory, Redis-assisted, etc).
// Every method is atomic with respect to a single entity; lookups of unknown ids
// return an error wrapping domain.ErrNotFound.
type Store interface {
	CreateSession(session domain.Session) (domain.Session, error)
	GetSession(id int64) (domain.Session, error)
	GetSessionByRoomCode(code string) (domain.Session, error)
	UpdateSession(session domain.Session) error
	DeleteSession(id int64) error

	CreateQuestions(questions []domain.Question) ([]domain.Question, error)
	GetQuestion(id int64) (domain.Question, error)
	QuestionsBySession(sessionID int64) ([]domain.Question, error)

	CreateParticipant(participant domain.Participant) (domain.Participant, error)
	GetParticipant(id int64) (domain.Participant, error)
	ParticipantsBySession(sessionID int64) ([]domain.Participant, error)
	SetParticipantConnected(id int64, connected bool) (domain.Participant, error)

	CreateResponse(response domain.Response) (domain.Response, error)
	ResponsesByQuestion(questionID int64) ([]domain.Response, error)
}

// Generator produces the question set for a new session.
type Generator interface {
	Generate(ctx context.Context, req domain.GenerationRequest) (domain.GeneratedQuiz, error)
}

// Broadcaster fans events out to every connection subscribed to a session.
type Broadcaster interface {
	Broadcast(sessionID int64, event domain.Event)
}

// Archiver keeps the final ranking of completed sessions beyond process lifetime.
type Archiver interface {
	SaveResults(ctx context.Context, session domain.Session, rankings []domain.Ranking) error
	// LoadResults returns the newest row archived under sessionID; it may describe
	// an earlier session with the same id.
	LoadResults(ctx context.Context, sessionID int64) (domain.SessionResults, error)
}

// RoomCodeRegistry reserves join codes outside the store (e.g. Redis).
type RoomCodeRegistry interface {
	Reserve(ctx context.Context, code string) (bool, error)
	Release(ctx context.Context, code string) error
}
